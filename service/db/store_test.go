package db

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSwapParams() CreateSwapParams {
	return CreateSwapParams{
		ID:              uuid.NewString(),
		UserID:          "default",
		Direction:       "local_to_crypto",
		SendAmount:      decimal.NewFromInt(100),
		SendCurrency:    "EvcPlus",
		ReceiveAmount:   decimal.RequireFromString("98.00"),
		ReceiveCurrency: "USDT (BEP20)",
		Step:            "initializing",
	}
}

func TestSwapLifecycle(t *testing.T) {
	SkipIfNoTestDB(t)

	store := NewTestStore(t)
	defer store.Close()
	defer store.Cleanup(t)

	ctx := context.Background()

	params := newSwapParams()
	swap, err := store.CreateSwap(ctx, params)
	require.NoError(t, err)
	assert.Equal(t, params.ID, swap.ID)
	assert.Equal(t, "initializing", swap.Step)
	assert.Nil(t, swap.Outcome)
	assert.True(t, swap.SendAmount.Equal(decimal.NewFromInt(100)))
	assert.True(t, swap.ReceiveAmount.Equal(decimal.RequireFromString("98.00")))

	require.NoError(t, store.UpdateSwapStep(ctx, swap.ID, "preauth"))
	require.NoError(t, store.SetSwapAccountRefs(ctx, swap.ID, "252611234567", "0xabc"))
	require.NoError(t, store.SetSwapGatewayTxn(ctx, swap.ID, "TXN-1"))
	require.NoError(t, store.SetSwapWithdrawal(ctx, swap.ID, "WD-1"))
	require.NoError(t, store.FinalizeSwap(ctx, swap.ID, OutcomeCompleted, ""))

	got, err := store.GetSwap(ctx, swap.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Outcome)
	assert.Equal(t, OutcomeCompleted, *got.Outcome)
	assert.Nil(t, got.FailureReason)
	require.NotNil(t, got.GatewayTxnID)
	assert.Equal(t, "TXN-1", *got.GatewayTxnID)
	require.NotNil(t, got.WithdrawID)
	assert.Equal(t, "WD-1", *got.WithdrawID)
	assert.False(t, got.Compensated)
}

func TestFinalizeSwap_RejectedKeepsReason(t *testing.T) {
	SkipIfNoTestDB(t)

	store := NewTestStore(t)
	defer store.Close()
	defer store.Cleanup(t)

	ctx := context.Background()

	swap, err := store.CreateSwap(ctx, newSwapParams())
	require.NoError(t, err)

	require.NoError(t, store.SetSwapGatewayTxn(ctx, swap.ID, "TXN-2"))
	require.NoError(t, store.MarkSwapCompensated(ctx, swap.ID))
	require.NoError(t, store.FinalizeSwap(ctx, swap.ID, OutcomeRejected, "payment confirmation failed"))

	got, err := store.GetSwap(ctx, swap.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Outcome)
	assert.Equal(t, OutcomeRejected, *got.Outcome)
	require.NotNil(t, got.FailureReason)
	assert.Equal(t, "payment confirmation failed", *got.FailureReason)
	assert.True(t, got.Compensated)
}

func TestGetSwap_NotFound(t *testing.T) {
	SkipIfNoTestDB(t)

	store := NewTestStore(t)
	defer store.Close()
	defer store.Cleanup(t)

	_, err := store.GetSwap(context.Background(), uuid.NewString())
	assert.ErrorIs(t, err, ErrSwapNotFound)

	err = store.UpdateSwapStep(context.Background(), uuid.NewString(), "preauth")
	assert.ErrorIs(t, err, ErrSwapNotFound)
}

func TestAppendAndListTransactions(t *testing.T) {
	SkipIfNoTestDB(t)

	store := NewTestStore(t)
	defer store.Close()
	defer store.Cleanup(t)

	ctx := context.Background()

	swap, err := store.CreateSwap(ctx, newSwapParams())
	require.NoError(t, err)

	txn, err := store.AppendTransaction(ctx, AppendTransactionParams{
		ID:              uuid.NewString(),
		SwapID:          swap.ID,
		UserID:          "default",
		Direction:       swap.Direction,
		SendAmount:      swap.SendAmount,
		SendCurrency:    swap.SendCurrency,
		ReceiveAmount:   swap.ReceiveAmount,
		ReceiveCurrency: swap.ReceiveCurrency,
		ExternalRef:     "TXN-1/WD-1",
	})
	require.NoError(t, err)
	assert.Equal(t, swap.ID, txn.SwapID)

	list, err := store.ListTransactions(ctx, "default", 10, 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "TXN-1/WD-1", list[0].ExternalRef)
	assert.True(t, list[0].SendAmount.Equal(decimal.NewFromInt(100)))
}

func TestAccountBook(t *testing.T) {
	SkipIfNoTestDB(t)

	store := NewTestStore(t)
	defer store.Close()
	defer store.Cleanup(t)

	ctx := context.Background()
	number := "252611234567"
	address := "0x69be2364f0b9f42a957eba9c208bc7447c763fcf"

	_, err := store.UpsertAccount(ctx, UpsertAccountParams{
		ID: uuid.NewString(), UserID: "default", Label: "EvcPlus",
		Kind: AccountKindLocal, Number: &number,
	})
	require.NoError(t, err)

	_, err = store.UpsertAccount(ctx, UpsertAccountParams{
		ID: uuid.NewString(), UserID: "default", Label: "USDT (BEP20)",
		Kind: AccountKindCrypto, Address: &address,
	})
	require.NoError(t, err)

	// Replacing an existing label keeps one account per currency.
	newNumber := "252617654321"
	_, err = store.UpsertAccount(ctx, UpsertAccountParams{
		ID: uuid.NewString(), UserID: "default", Label: "EvcPlus",
		Kind: AccountKindLocal, Number: &newNumber,
	})
	require.NoError(t, err)

	accounts, err := store.ListAccounts(ctx, "default")
	require.NoError(t, err)
	assert.Len(t, accounts, 2)

	evc, err := store.GetAccountByLabel(ctx, "default", "EvcPlus")
	require.NoError(t, err)
	require.NotNil(t, evc.Number)
	assert.Equal(t, newNumber, *evc.Number)

	_, err = store.GetAccountByLabel(ctx, "default", "Zaad")
	assert.ErrorIs(t, err, ErrAccountNotFound)

	require.NoError(t, store.DeleteAccount(ctx, "default", "EvcPlus"))
	assert.ErrorIs(t, store.DeleteAccount(ctx, "default", "EvcPlus"), ErrAccountNotFound)
}

func TestOnboardingProfile(t *testing.T) {
	SkipIfNoTestDB(t)

	store := NewTestStore(t)
	defer store.Close()
	defer store.Cleanup(t)

	ctx := context.Background()

	_, err := store.GetOnboarding(ctx, "default")
	assert.ErrorIs(t, err, ErrOnboardingNotFound)

	p, err := store.SaveOnboarding(ctx, "default", "EvcPlus", "252611234567")
	require.NoError(t, err)
	assert.Equal(t, "EvcPlus", p.AccountType)

	p, err = store.SaveOnboarding(ctx, "default", "Zaad", "252617654321")
	require.NoError(t, err)
	assert.Equal(t, "Zaad", p.AccountType)

	got, err := store.GetOnboarding(ctx, "default")
	require.NoError(t, err)
	assert.Equal(t, "252617654321", got.Number)
}
