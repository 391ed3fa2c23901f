package temporal

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/testsuite"
)

const (
	testSwapID = "swap-test-1"
	testUserID = "default"
)

// newSwapEnv sets up a workflow test environment with all activities
// registered, returning the env and the Activities handle used for mocking.
func newSwapEnv(t *testing.T) (*testsuite.TestWorkflowEnvironment, *Activities) {
	t.Helper()

	testSuite := &testsuite.WorkflowTestSuite{}
	env := testSuite.NewTestWorkflowEnvironment()

	activities := &Activities{}
	env.RegisterActivity(activities.CreateSwapRecord)
	env.RegisterActivity(activities.MarkSwapStep)
	env.RegisterActivity(activities.ResolveAccounts)
	env.RegisterActivity(activities.PreAuthorizeGatewayPayment)
	env.RegisterActivity(activities.CommitGatewayPayment)
	env.RegisterActivity(activities.CancelGatewayPayment)
	env.RegisterActivity(activities.WithdrawCrypto)
	env.RegisterActivity(activities.VerifyChainPayment)
	env.RegisterActivity(activities.RecordSwapHistory)
	env.RegisterActivity(activities.FinalizeSwap)
	env.RegisterActivity(activities.PublishSwapEvent)

	// Bookkeeping activities succeed by default; tests override the
	// money-moving ones per scenario.
	env.OnActivity(activities.CreateSwapRecord, mock.Anything, mock.Anything).Return(nil)
	env.OnActivity(activities.MarkSwapStep, mock.Anything, mock.Anything).Return(nil)
	env.OnActivity(activities.RecordSwapHistory, mock.Anything, mock.Anything).Return(nil)
	env.OnActivity(activities.FinalizeSwap, mock.Anything, mock.Anything).Return(nil)
	env.OnActivity(activities.PublishSwapEvent, mock.Anything, mock.Anything).Return(nil)

	return env, activities
}

func TestSwapWorkflow_LocalToCrypto_Completes(t *testing.T) {
	env, activities := newSwapEnv(t)

	env.OnActivity(activities.ResolveAccounts, mock.Anything, mock.Anything).
		Return(&ResolveAccountsResult{
			PayerRef: "252611234567",
			PayeeRef: "0x2222222222222222222222222222222222222222",
		}, nil)

	// The payer is charged the full send amount.
	env.OnActivity(activities.PreAuthorizeGatewayPayment, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			input := args.Get(1).(PreAuthorizeGatewayPaymentInput)
			assert.Equal(t, PhaseDebit, input.Phase)
			assert.Equal(t, "252611234567", input.AccountNumber)
			assert.True(t, input.Amount.Equal(decimal.NewFromInt(100)))
		}).
		Return(&PreAuthorizeGatewayPaymentResult{TransactionID: "TXN-1"}, nil)

	env.OnActivity(activities.CommitGatewayPayment, mock.Anything, mock.Anything).
		Return(&CommitGatewayPaymentResult{}, nil)

	// The payee receives the net amount: 100 minus the 2% fee.
	env.OnActivity(activities.WithdrawCrypto, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			input := args.Get(1).(WithdrawCryptoInput)
			assert.Equal(t, "0x2222222222222222222222222222222222222222", input.Address)
			assert.True(t, input.Amount.Equal(decimal.RequireFromString("98.00")),
				"expected net 98.00, got %s", input.Amount)
		}).
		Return(&WithdrawCryptoResult{WithdrawID: "WD-1"}, nil)

	env.ExecuteWorkflow(SwapWorkflow, SwapWorkflowInput{
		SwapID:          testSwapID,
		UserID:          testUserID,
		SendAmount:      decimal.NewFromInt(100),
		SendCurrency:    "EvcPlus",
		ReceiveCurrency: "USDT (BEP20)",
	})

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var result SwapWorkflowResult
	require.NoError(t, env.GetWorkflowResult(&result))
	assert.Equal(t, "completed", result.Outcome)
	assert.Equal(t, "local_to_crypto", result.Direction)
	assert.Equal(t, "TXN-1", result.GatewayTransactionID)
	assert.Equal(t, "WD-1", result.ExchangeWithdrawID)
	assert.True(t, result.ServiceFee.Equal(decimal.RequireFromString("2.00")))
	assert.True(t, result.NetReceiveAmount.Equal(decimal.RequireFromString("98.00")))
}

func TestSwapWorkflow_InsufficientBalance_Rejected(t *testing.T) {
	env, activities := newSwapEnv(t)

	env.OnActivity(activities.ResolveAccounts, mock.Anything, mock.Anything).
		Return(&ResolveAccountsResult{PayerRef: "252611234567", PayeeRef: "0xabc"}, nil)

	env.OnActivity(activities.PreAuthorizeGatewayPayment, mock.Anything, mock.Anything).
		Return(&PreAuthorizeGatewayPaymentResult{
			Rejected: true,
			Reason:   insufficientBalanceMessage,
		}, nil)

	env.ExecuteWorkflow(SwapWorkflow, SwapWorkflowInput{
		SwapID:          testSwapID,
		UserID:          testUserID,
		SendAmount:      decimal.NewFromInt(100),
		SendCurrency:    "EvcPlus",
		ReceiveCurrency: "USDT (BEP20)",
	})

	require.True(t, env.IsWorkflowCompleted())
	// A business rejection is a successful workflow with a rejected outcome.
	require.NoError(t, env.GetWorkflowError())

	var result SwapWorkflowResult
	require.NoError(t, env.GetWorkflowResult(&result))
	assert.Equal(t, "rejected", result.Outcome)
	assert.Equal(t, insufficientBalanceMessage, result.FailureReason)

	env.AssertNotCalled(t, "CommitGatewayPayment", mock.Anything, mock.Anything)
	env.AssertNotCalled(t, "WithdrawCrypto", mock.Anything, mock.Anything)
}

func TestSwapWorkflow_CommitFails_CancelsExactlyOnce(t *testing.T) {
	env, activities := newSwapEnv(t)

	env.OnActivity(activities.ResolveAccounts, mock.Anything, mock.Anything).
		Return(&ResolveAccountsResult{PayerRef: "252611234567", PayeeRef: "0xabc"}, nil)

	env.OnActivity(activities.PreAuthorizeGatewayPayment, mock.Anything, mock.Anything).
		Return(&PreAuthorizeGatewayPaymentResult{TransactionID: "TXN-1"}, nil)

	env.OnActivity(activities.CommitGatewayPayment, mock.Anything, mock.Anything).
		Return(nil, errors.New("gateway timeout"))

	cancelCalls := 0
	env.OnActivity(activities.CancelGatewayPayment, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			cancelCalls++
			input := args.Get(1).(CancelGatewayPaymentInput)
			assert.Equal(t, "TXN-1", input.TransactionID)
		}).
		Return(&CancelGatewayPaymentResult{Released: true}, nil)

	env.ExecuteWorkflow(SwapWorkflow, SwapWorkflowInput{
		SwapID:          testSwapID,
		UserID:          testUserID,
		SendAmount:      decimal.NewFromInt(100),
		SendCurrency:    "EvcPlus",
		ReceiveCurrency: "USDT (BEP20)",
	})

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var result SwapWorkflowResult
	require.NoError(t, env.GetWorkflowResult(&result))
	assert.Equal(t, "rejected", result.Outcome)
	assert.Equal(t, "payment confirmation failed", result.FailureReason)
	assert.Equal(t, 1, cancelCalls)

	env.AssertNotCalled(t, "WithdrawCrypto", mock.Anything, mock.Anything)
}

func TestSwapWorkflow_CancelRefused_StillRejects(t *testing.T) {
	env, activities := newSwapEnv(t)

	env.OnActivity(activities.ResolveAccounts, mock.Anything, mock.Anything).
		Return(&ResolveAccountsResult{PayerRef: "252611234567", PayeeRef: "0xabc"}, nil)

	env.OnActivity(activities.PreAuthorizeGatewayPayment, mock.Anything, mock.Anything).
		Return(&PreAuthorizeGatewayPaymentResult{TransactionID: "TXN-1"}, nil)

	env.OnActivity(activities.CommitGatewayPayment, mock.Anything, mock.Anything).
		Return(&CommitGatewayPaymentResult{Rejected: true, Reason: "commit declined"}, nil)

	// Compensation itself fails; the saga still ends rejected.
	env.OnActivity(activities.CancelGatewayPayment, mock.Anything, mock.Anything).
		Return(nil, errors.New("gateway unreachable"))

	env.ExecuteWorkflow(SwapWorkflow, SwapWorkflowInput{
		SwapID:          testSwapID,
		UserID:          testUserID,
		SendAmount:      decimal.NewFromInt(100),
		SendCurrency:    "EvcPlus",
		ReceiveCurrency: "USDT (BEP20)",
	})

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var result SwapWorkflowResult
	require.NoError(t, env.GetWorkflowResult(&result))
	assert.Equal(t, "rejected", result.Outcome)
	assert.Equal(t, "commit declined", result.FailureReason)
}

func TestSwapWorkflow_CryptoToLocal_Completes(t *testing.T) {
	env, activities := newSwapEnv(t)

	env.OnActivity(activities.ResolveAccounts, mock.Anything, mock.Anything).
		Return(&ResolveAccountsResult{
			PayerRef: "0x3333333333333333333333333333333333333333",
			PayeeRef: "252611234567",
		}, nil)

	env.OnActivity(activities.VerifyChainPayment, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			input := args.Get(1).(VerifyChainPaymentInput)
			assert.Equal(t, "0x3333333333333333333333333333333333333333", input.FromAddress)
			assert.True(t, input.ExpectedAmount.Equal(decimal.NewFromInt(100)))
		}).
		Return(&VerifyChainPaymentResult{Found: true, TxHash: "0xhash", Attempts: 1}, nil)

	// The payout charges the payee leg with the net amount: 100 minus 3%.
	env.OnActivity(activities.PreAuthorizeGatewayPayment, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			input := args.Get(1).(PreAuthorizeGatewayPaymentInput)
			assert.Equal(t, PhasePayout, input.Phase)
			assert.Equal(t, "252611234567", input.AccountNumber)
			assert.True(t, input.Amount.Equal(decimal.RequireFromString("97.00")),
				"expected net 97.00, got %s", input.Amount)
		}).
		Return(&PreAuthorizeGatewayPaymentResult{TransactionID: "PAYOUT-1"}, nil)

	env.OnActivity(activities.CommitGatewayPayment, mock.Anything, mock.Anything).
		Return(&CommitGatewayPaymentResult{}, nil)

	env.ExecuteWorkflow(SwapWorkflow, SwapWorkflowInput{
		SwapID:          testSwapID,
		UserID:          testUserID,
		SendAmount:      decimal.NewFromInt(100),
		SendCurrency:    "USDT (BEP20)",
		ReceiveCurrency: "EvcPlus",
	})

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var result SwapWorkflowResult
	require.NoError(t, env.GetWorkflowResult(&result))
	assert.Equal(t, "completed", result.Outcome)
	assert.Equal(t, "crypto_to_local", result.Direction)
	assert.Equal(t, "0xhash", result.ChainTxHash)
	assert.True(t, result.NetReceiveAmount.Equal(decimal.RequireFromString("97.00")))
}

func TestSwapWorkflow_ChainPaymentNotFound_Rejected(t *testing.T) {
	env, activities := newSwapEnv(t)

	env.OnActivity(activities.ResolveAccounts, mock.Anything, mock.Anything).
		Return(&ResolveAccountsResult{PayerRef: "0xwallet", PayeeRef: "252611234567"}, nil)

	env.OnActivity(activities.VerifyChainPayment, mock.Anything, mock.Anything).
		Return(&VerifyChainPaymentResult{Found: false, Attempts: 3}, nil)

	env.ExecuteWorkflow(SwapWorkflow, SwapWorkflowInput{
		SwapID:          testSwapID,
		UserID:          testUserID,
		SendAmount:      decimal.NewFromInt(100),
		SendCurrency:    "USDT (BEP20)",
		ReceiveCurrency: "EvcPlus",
	})

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var result SwapWorkflowResult
	require.NoError(t, env.GetWorkflowResult(&result))
	assert.Equal(t, "rejected", result.Outcome)
	assert.Equal(t, verificationPendingMessage, result.FailureReason)

	env.AssertNotCalled(t, "PreAuthorizeGatewayPayment", mock.Anything, mock.Anything)
}

func TestSwapWorkflow_CryptoToCrypto_RejectedBeforeExternalCalls(t *testing.T) {
	env, activities := newSwapEnv(t)
	_ = activities

	env.ExecuteWorkflow(SwapWorkflow, SwapWorkflowInput{
		SwapID:          testSwapID,
		UserID:          testUserID,
		SendAmount:      decimal.NewFromInt(100),
		SendCurrency:    "USDT (BEP20)",
		ReceiveCurrency: "Solana",
	})

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var result SwapWorkflowResult
	require.NoError(t, env.GetWorkflowResult(&result))
	assert.Equal(t, "rejected", result.Outcome)
	assert.Contains(t, result.FailureReason, "not supported")

	env.AssertNotCalled(t, "ResolveAccounts", mock.Anything, mock.Anything)
	env.AssertNotCalled(t, "PreAuthorizeGatewayPayment", mock.Anything, mock.Anything)
	env.AssertNotCalled(t, "WithdrawCrypto", mock.Anything, mock.Anything)
	env.AssertNotCalled(t, "VerifyChainPayment", mock.Anything, mock.Anything)
}

func TestSwapWorkflow_UnknownCurrency_Fails(t *testing.T) {
	env, _ := newSwapEnv(t)

	env.ExecuteWorkflow(SwapWorkflow, SwapWorkflowInput{
		SwapID:          testSwapID,
		UserID:          testUserID,
		SendAmount:      decimal.NewFromInt(100),
		SendCurrency:    "Doubloons",
		ReceiveCurrency: "EvcPlus",
	})

	require.True(t, env.IsWorkflowCompleted())
	assert.Error(t, env.GetWorkflowError())
}

func TestSwapWorkflow_AccountMissing_Rejected(t *testing.T) {
	env, activities := newSwapEnv(t)

	env.OnActivity(activities.ResolveAccounts, mock.Anything, mock.Anything).
		Return(&ResolveAccountsResult{
			Rejected: true,
			Reason:   "account missing: no USDT (BEP20) address registered",
		}, nil)

	env.ExecuteWorkflow(SwapWorkflow, SwapWorkflowInput{
		SwapID:          testSwapID,
		UserID:          testUserID,
		SendAmount:      decimal.NewFromInt(50),
		SendCurrency:    "EvcPlus",
		ReceiveCurrency: "USDT (BEP20)",
	})

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var result SwapWorkflowResult
	require.NoError(t, env.GetWorkflowResult(&result))
	assert.Equal(t, "rejected", result.Outcome)
	assert.Contains(t, result.FailureReason, "account missing")

	env.AssertNotCalled(t, "PreAuthorizeGatewayPayment", mock.Anything, mock.Anything)
}

func TestSwapWorkflow_LocalToLocal_PayoutAfterDebit(t *testing.T) {
	env, activities := newSwapEnv(t)

	env.OnActivity(activities.ResolveAccounts, mock.Anything, mock.Anything).
		Return(&ResolveAccountsResult{
			PayerRef: "252611111111",
			PayeeRef: "252622222222",
		}, nil)

	var preauthPhases []string
	env.OnActivity(activities.PreAuthorizeGatewayPayment, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			input := args.Get(1).(PreAuthorizeGatewayPaymentInput)
			preauthPhases = append(preauthPhases, input.Phase)
			switch input.Phase {
			case PhaseDebit:
				assert.Equal(t, "252611111111", input.AccountNumber)
				assert.True(t, input.Amount.Equal(decimal.NewFromInt(100)))
			case PhasePayout:
				assert.Equal(t, "252622222222", input.AccountNumber)
				// 1.1% fee on a local to local swap.
				assert.True(t, input.Amount.Equal(decimal.RequireFromString("98.90")),
					"expected net 98.90, got %s", input.Amount)
			}
		}).
		Return(&PreAuthorizeGatewayPaymentResult{TransactionID: "TXN-1"}, nil)

	env.OnActivity(activities.CommitGatewayPayment, mock.Anything, mock.Anything).
		Return(&CommitGatewayPaymentResult{}, nil)

	env.ExecuteWorkflow(SwapWorkflow, SwapWorkflowInput{
		SwapID:          testSwapID,
		UserID:          testUserID,
		SendAmount:      decimal.NewFromInt(100),
		SendCurrency:    "EvcPlus",
		ReceiveCurrency: "Zaad",
	})

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var result SwapWorkflowResult
	require.NoError(t, env.GetWorkflowResult(&result))
	assert.Equal(t, "completed", result.Outcome)
	assert.Equal(t, "local_to_local", result.Direction)
	assert.Equal(t, []string{PhaseDebit, PhasePayout}, preauthPhases)
}
