package temporal

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/taranswap/taran/service/currency"
	"github.com/taranswap/taran/service/fees"
)

// SwapWorkflowInput contains input for the swap saga. The fee quote and
// direction are derived inside the workflow from the currency pair so the
// caller cannot submit a stale quote.
type SwapWorkflowInput struct {
	SwapID          string          `json:"swap_id"`
	UserID          string          `json:"user_id"`
	SendAmount      decimal.Decimal `json:"send_amount"`
	SendCurrency    string          `json:"send_currency"`
	ReceiveCurrency string          `json:"receive_currency"`
}

// SwapWorkflowResult contains the terminal state of the swap saga. Business
// rejections finish the workflow successfully with Outcome "rejected";
// workflow errors are reserved for infrastructure failures.
type SwapWorkflowResult struct {
	SwapID               string          `json:"swap_id"`
	Direction            string          `json:"direction"`
	Outcome              string          `json:"outcome"`
	FailureReason        string          `json:"failure_reason,omitempty"`
	SendAmount           decimal.Decimal `json:"send_amount"`
	ServiceFee           decimal.Decimal `json:"service_fee"`
	NetReceiveAmount     decimal.Decimal `json:"net_receive_amount"`
	GatewayTransactionID string          `json:"gateway_transaction_id,omitempty"`
	ExchangeWithdrawID   string          `json:"exchange_withdraw_id,omitempty"`
	ChainTxHash          string          `json:"chain_tx_hash,omitempty"`
	FinishedAt           time.Time       `json:"finished_at"`
}

// Saga steps recorded on the swap row as the workflow progresses.
const (
	StepResolvingAccounts = "resolving_accounts"
	StepPreAuthorizing    = "preauthorizing"
	StepCommitting        = "committing"
	StepWithdrawing       = "withdrawing"
	StepVerifyingChain    = "verifying_chain"
	StepPayingOut         = "paying_out"
)

const verificationPendingMessage = "we could not confirm your transfer yet, please try again in a few minutes"

// SwapWorkflow executes one currency swap as a saga:
//
//  1. Persist the saga row and resolve both account legs.
//  2. Collect the user's funds: gateway preauthorize+commit for local
//     currencies, chain verification for crypto.
//  3. Deliver the net amount: exchange withdrawal for crypto, gateway
//     preauthorize+commit for local payouts (cancelled if the commit fails).
//  4. Record history, finalize the row, and publish the event.
//
// Every step writes its transition to the database before moving on, so a
// crashed worker resumes with a row that reflects reality.
func SwapWorkflow(ctx workflow.Context, input SwapWorkflowInput) (*SwapWorkflowResult, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("SwapWorkflow started",
		"swap_id", input.SwapID,
		"send_currency", input.SendCurrency,
		"receive_currency", input.ReceiveCurrency,
		"send_amount", input.SendAmount.String(),
	)

	quote, err := fees.QuoteForSymbols(input.SendAmount, input.SendCurrency, input.ReceiveCurrency)
	if err != nil {
		return nil, fmt.Errorf("invalid currency pair: %w", err)
	}

	result := &SwapWorkflowResult{
		SwapID:           input.SwapID,
		Direction:        quote.Direction.String(),
		SendAmount:       input.SendAmount,
		ServiceFee:       quote.ServiceFee,
		NetReceiveAmount: quote.NetReceiveAmount,
	}

	// Persistence and publishing activities are idempotent; retry them.
	storeCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    30 * time.Second,
			MaximumAttempts:    5,
		},
	})

	// Money-moving activities get exactly one attempt: a timed-out charge
	// or withdrawal may have landed, and repeating it moves money twice.
	moneyCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 60 * time.Second,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts: 1,
		},
	})

	// Chain verification polls for several minutes; retries live inside the
	// explorer client.
	verifyCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 10 * time.Minute,
		HeartbeatTimeout:    30 * time.Second,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts: 1,
		},
	})

	// Step 1: persist the saga row.
	err = workflow.ExecuteActivity(storeCtx, "CreateSwapRecord", CreateSwapRecordInput{
		SwapID:          input.SwapID,
		UserID:          input.UserID,
		Direction:       result.Direction,
		SendAmount:      input.SendAmount,
		SendCurrency:    input.SendCurrency,
		ReceiveAmount:   quote.NetReceiveAmount,
		ReceiveCurrency: input.ReceiveCurrency,
	}).Get(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create swap record: %w", err)
	}

	// Crypto-to-crypto never touches an external service: there is no
	// corridor for it, so reject before resolving anything.
	if quote.Direction == currency.CryptoToCrypto {
		return rejectSwap(storeCtx, result, "crypto to crypto swaps are not supported")
	}

	// Step 2: resolve both account legs.
	if err := markStep(storeCtx, input.SwapID, StepResolvingAccounts); err != nil {
		return nil, err
	}

	var resolved ResolveAccountsResult
	err = workflow.ExecuteActivity(storeCtx, "ResolveAccounts", ResolveAccountsInput{
		SwapID:          input.SwapID,
		UserID:          input.UserID,
		Direction:       result.Direction,
		SendCurrency:    input.SendCurrency,
		ReceiveCurrency: input.ReceiveCurrency,
	}).Get(ctx, &resolved)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve accounts: %w", err)
	}
	if resolved.Rejected {
		return rejectSwap(storeCtx, result, resolved.Reason)
	}

	// Step 3: run the corridor.
	switch quote.Direction {
	case currency.LocalToLocal, currency.LocalToCrypto:
		return runLocalOriginated(ctx, storeCtx, moneyCtx, input, quote, resolved, result)
	case currency.CryptoToLocal:
		return runCryptoOriginated(ctx, storeCtx, moneyCtx, verifyCtx, input, quote, resolved, result)
	default:
		return nil, fmt.Errorf("unsupported direction %q", result.Direction)
	}
}

// runLocalOriginated collects mobile money from the payer, then delivers
// either an exchange withdrawal or a local payout.
func runLocalOriginated(
	ctx workflow.Context,
	storeCtx, moneyCtx workflow.Context,
	input SwapWorkflowInput,
	quote fees.Quote,
	resolved ResolveAccountsResult,
	result *SwapWorkflowResult,
) (*SwapWorkflowResult, error) {
	logger := workflow.GetLogger(ctx)

	// Reserve the full send amount against the payer.
	if err := markStep(storeCtx, input.SwapID, StepPreAuthorizing); err != nil {
		return nil, err
	}

	var preauth PreAuthorizeGatewayPaymentResult
	err := workflow.ExecuteActivity(moneyCtx, "PreAuthorizeGatewayPayment", PreAuthorizeGatewayPaymentInput{
		SwapID:        input.SwapID,
		Phase:         PhaseDebit,
		AccountNumber: resolved.PayerRef,
		Amount:        input.SendAmount,
		Description:   fmt.Sprintf("swap %s %s to %s", input.SwapID, input.SendCurrency, input.ReceiveCurrency),
	}).Get(ctx, &preauth)
	if err != nil {
		return nil, fmt.Errorf("payer preauthorization failed: %w", err)
	}
	if preauth.Rejected {
		return rejectSwap(storeCtx, result, preauth.Reason)
	}
	result.GatewayTransactionID = preauth.TransactionID

	// Settle the reservation.
	if err := markStep(storeCtx, input.SwapID, StepCommitting); err != nil {
		return nil, err
	}

	var commit CommitGatewayPaymentResult
	err = workflow.ExecuteActivity(moneyCtx, "CommitGatewayPayment", CommitGatewayPaymentInput{
		SwapID:        input.SwapID,
		Phase:         PhaseDebit,
		TransactionID: preauth.TransactionID,
		Description:   "swap " + input.SwapID,
	}).Get(ctx, &commit)
	if err != nil || commit.Rejected {
		// The reservation is holding the payer's money with nothing to
		// show for it. Release it, best effort, exactly once.
		reason := commit.Reason
		if err != nil {
			reason = "payment confirmation failed"
			logger.Error("debit commit failed", "swap_id", input.SwapID, "error", err)
		}
		cancelGatewayPayment(ctx, moneyCtx, input.SwapID, PhaseDebit, preauth.TransactionID)
		return rejectSwap(storeCtx, result, reason)
	}

	// Deliver the net amount.
	var externalRef string
	if quote.Direction == currency.LocalToCrypto {
		if err := markStep(storeCtx, input.SwapID, StepWithdrawing); err != nil {
			return nil, err
		}

		var withdraw WithdrawCryptoResult
		err = workflow.ExecuteActivity(moneyCtx, "WithdrawCrypto", WithdrawCryptoInput{
			SwapID:          input.SwapID,
			ReceiveCurrency: input.ReceiveCurrency,
			Address:         resolved.PayeeRef,
			Amount:          quote.NetReceiveAmount,
		}).Get(ctx, &withdraw)
		if err != nil {
			// The payer's money is committed but nothing was delivered.
			// There is no compensating action against a settled charge;
			// the row stays uncompensated and flagged for reconciliation.
			logger.Error("withdrawal failed after committed debit",
				"swap_id", input.SwapID, "error", err)
			return rejectSwap(storeCtx, result, "withdrawal failed, flagged for manual review")
		}
		if withdraw.Rejected {
			logger.Error("withdrawal rejected after committed debit",
				"swap_id", input.SwapID, "reason", withdraw.Reason)
			return rejectSwap(storeCtx, result, withdraw.Reason)
		}
		result.ExchangeWithdrawID = withdraw.WithdrawID
		externalRef = withdraw.WithdrawID
	} else {
		payoutRef, rejectReason, err := runLocalPayout(ctx, storeCtx, moneyCtx, input.SwapID, resolved.PayeeRef, quote.NetReceiveAmount)
		if err != nil {
			return nil, err
		}
		if rejectReason != "" {
			return rejectSwap(storeCtx, result, rejectReason)
		}
		externalRef = payoutRef
	}

	return completeSwap(ctx, storeCtx, input, quote, result, externalRef)
}

// runCryptoOriginated verifies the user's on-chain transfer into the deposit
// address, then pays out mobile money.
func runCryptoOriginated(
	ctx workflow.Context,
	storeCtx, moneyCtx, verifyCtx workflow.Context,
	input SwapWorkflowInput,
	quote fees.Quote,
	resolved ResolveAccountsResult,
	result *SwapWorkflowResult,
) (*SwapWorkflowResult, error) {
	if err := markStep(storeCtx, input.SwapID, StepVerifyingChain); err != nil {
		return nil, err
	}

	var verified VerifyChainPaymentResult
	err := workflow.ExecuteActivity(verifyCtx, "VerifyChainPayment", VerifyChainPaymentInput{
		SwapID:         input.SwapID,
		FromAddress:    resolved.PayerRef,
		ExpectedAmount: input.SendAmount,
	}).Get(ctx, &verified)
	if err != nil {
		return nil, fmt.Errorf("chain verification failed: %w", err)
	}
	if !verified.Found {
		return rejectSwap(storeCtx, result, verificationPendingMessage)
	}
	result.ChainTxHash = verified.TxHash

	payoutRef, rejectReason, err := runLocalPayout(ctx, storeCtx, moneyCtx, input.SwapID, resolved.PayeeRef, quote.NetReceiveAmount)
	if err != nil {
		return nil, err
	}
	if rejectReason != "" {
		return rejectSwap(storeCtx, result, rejectReason)
	}

	return completeSwap(ctx, storeCtx, input, quote, result, payoutRef)
}

// runLocalPayout delivers mobile money to the payee as its own
// preauthorize+commit pair, releasing the reservation if the commit fails.
// It returns the payout's gateway handle, or a non-empty rejection reason.
func runLocalPayout(
	ctx workflow.Context,
	storeCtx, moneyCtx workflow.Context,
	swapID, payeeNumber string,
	amount decimal.Decimal,
) (string, string, error) {
	logger := workflow.GetLogger(ctx)

	if err := markStep(storeCtx, swapID, StepPayingOut); err != nil {
		return "", "", err
	}

	var preauth PreAuthorizeGatewayPaymentResult
	err := workflow.ExecuteActivity(moneyCtx, "PreAuthorizeGatewayPayment", PreAuthorizeGatewayPaymentInput{
		SwapID:        swapID,
		Phase:         PhasePayout,
		AccountNumber: payeeNumber,
		Amount:        amount,
		Description:   "swap payout " + swapID,
	}).Get(ctx, &preauth)
	if err != nil {
		return "", "", fmt.Errorf("payout preauthorization failed: %w", err)
	}
	if preauth.Rejected {
		return "", preauth.Reason, nil
	}

	var commit CommitGatewayPaymentResult
	err = workflow.ExecuteActivity(moneyCtx, "CommitGatewayPayment", CommitGatewayPaymentInput{
		SwapID:        swapID,
		Phase:         PhasePayout,
		TransactionID: preauth.TransactionID,
		Description:   "swap payout " + swapID,
	}).Get(ctx, &commit)
	if err != nil || commit.Rejected {
		reason := commit.Reason
		if err != nil {
			reason = "payout confirmation failed"
			logger.Error("payout commit failed", "swap_id", swapID, "error", err)
		}
		cancelGatewayPayment(ctx, moneyCtx, swapID, PhasePayout, preauth.TransactionID)
		return "", reason, nil
	}

	return preauth.TransactionID, "", nil
}

// cancelGatewayPayment releases a reservation, best effort. Failures are
// logged, not returned: the saga is already on its rejection path and the
// database flags uncompensated reservations for reconciliation.
func cancelGatewayPayment(ctx workflow.Context, moneyCtx workflow.Context, swapID, phase, transactionID string) {
	logger := workflow.GetLogger(ctx)

	var cancel CancelGatewayPaymentResult
	err := workflow.ExecuteActivity(moneyCtx, "CancelGatewayPayment", CancelGatewayPaymentInput{
		SwapID:        swapID,
		Phase:         phase,
		TransactionID: transactionID,
		Description:   "swap " + swapID + " rollback",
	}).Get(ctx, &cancel)
	if err != nil {
		logger.Error("failed to release gateway reservation",
			"swap_id", swapID,
			"transaction_id", transactionID,
			"error", err,
		)
		return
	}
	if !cancel.Released {
		logger.Error("gateway refused to release reservation",
			"swap_id", swapID,
			"transaction_id", transactionID,
			"reason", cancel.Reason,
		)
	}
}

// completeSwap records history, finalizes the row, publishes the event, and
// fills in the terminal result.
func completeSwap(
	ctx workflow.Context,
	storeCtx workflow.Context,
	input SwapWorkflowInput,
	quote fees.Quote,
	result *SwapWorkflowResult,
	externalRef string,
) (*SwapWorkflowResult, error) {
	err := workflow.ExecuteActivity(storeCtx, "RecordSwapHistory", RecordSwapHistoryInput{
		TransactionID:   "hist-" + input.SwapID,
		SwapID:          input.SwapID,
		UserID:          input.UserID,
		Direction:       result.Direction,
		SendAmount:      input.SendAmount,
		SendCurrency:    input.SendCurrency,
		ReceiveAmount:   quote.NetReceiveAmount,
		ReceiveCurrency: input.ReceiveCurrency,
		ExternalRef:     externalRef,
	}).Get(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to record swap history: %w", err)
	}

	err = workflow.ExecuteActivity(storeCtx, "FinalizeSwap", FinalizeSwapInput{
		SwapID:  input.SwapID,
		Outcome: "completed",
	}).Get(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to finalize swap: %w", err)
	}

	publishSwapEvent(ctx, storeCtx, input.SwapID)

	result.Outcome = "completed"
	result.FinishedAt = workflow.Now(ctx)
	return result, nil
}

// rejectSwap finalizes the saga as rejected and publishes the event. The
// workflow itself completes successfully: the swap was handled, the business
// said no.
func rejectSwap(storeCtx workflow.Context, result *SwapWorkflowResult, reason string) (*SwapWorkflowResult, error) {
	err := workflow.ExecuteActivity(storeCtx, "FinalizeSwap", FinalizeSwapInput{
		SwapID:        result.SwapID,
		Outcome:       "rejected",
		FailureReason: reason,
	}).Get(storeCtx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to finalize rejected swap: %w", err)
	}

	publishSwapEvent(storeCtx, storeCtx, result.SwapID)

	result.Outcome = "rejected"
	result.FailureReason = reason
	result.FinishedAt = workflow.Now(storeCtx)
	return result, nil
}

// publishSwapEvent publishes the finalized swap, best effort. The saga's
// durable state lives in the database; a missed event must not fail the
// swap.
func publishSwapEvent(ctx workflow.Context, storeCtx workflow.Context, swapID string) {
	err := workflow.ExecuteActivity(storeCtx, "PublishSwapEvent", PublishSwapEventInput{
		SwapID: swapID,
	}).Get(ctx, nil)
	if err != nil {
		workflow.GetLogger(ctx).Error("failed to publish swap event",
			"swap_id", swapID,
			"error", err,
		)
	}
}

// markStep records a saga transition.
func markStep(storeCtx workflow.Context, swapID, step string) error {
	err := workflow.ExecuteActivity(storeCtx, "MarkSwapStep", MarkSwapStepInput{
		SwapID: swapID,
		Step:   step,
	}).Get(storeCtx, nil)
	if err != nil {
		return fmt.Errorf("failed to mark step %s: %w", step, err)
	}
	return nil
}
