package temporal

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Gateway phases. The debit phase charges the swap's payer and its
// transaction handle is stored on the saga row; the payout phase charges the
// receiving leg of a local settlement and its handle only lands in the
// history row's external ref.
const (
	PhaseDebit  = "debit"
	PhasePayout = "payout"
)

// insufficientBalanceMessage replaces the gateway's terse 5206 message with
// something a user can act on.
const insufficientBalanceMessage = "insufficient balance in your mobile money account"

// PreAuthorizeGatewayPaymentInput contains parameters for reserving funds at
// the payment gateway.
type PreAuthorizeGatewayPaymentInput struct {
	SwapID        string          `json:"swap_id"`
	Phase         string          `json:"phase"`
	AccountNumber string          `json:"account_number"`
	Amount        decimal.Decimal `json:"amount"`
	Description   string          `json:"description"`
}

// PreAuthorizeGatewayPaymentResult contains the gateway's transaction handle,
// or a business rejection with the reason to surface to the user.
type PreAuthorizeGatewayPaymentResult struct {
	TransactionID string `json:"transaction_id"`
	Rejected      bool   `json:"rejected"`
	Reason        string `json:"reason,omitempty"`
}

// gatewayReferenceID derives the merchant reference for a preauthorization.
// Every reservation needs its own reference and a local settlement opens two
// (debit, then payout), so the phase is folded in. Kept deterministic so a
// re-delivered activity resends the same reference instead of opening a
// second reservation.
func gatewayReferenceID(swapID, phase string) string {
	return swapID + "-" + phase
}

// PreAuthorizeGatewayPayment reserves funds against a mobile-money account.
// Gateway refusals come back as business rejections rather than activity
// errors: retrying a refused charge would just refuse again.
func (a *Activities) PreAuthorizeGatewayPayment(ctx context.Context, input PreAuthorizeGatewayPaymentInput) (*PreAuthorizeGatewayPaymentResult, error) {
	a.logger.InfoContext(ctx, "preauthorizing gateway payment",
		"swap_id", input.SwapID,
		"phase", input.Phase,
		"amount", input.Amount.String(),
	)

	start := time.Now()
	resp, err := a.gateway.PreAuthorize(ctx, input.AccountNumber, input.Amount, gatewayReferenceID(input.SwapID, input.Phase), input.Description)
	a.recordGatewayCall("preauthorize", err == nil, start)
	if err != nil {
		return nil, fmt.Errorf("gateway preauthorize failed: %w", err)
	}

	if bizErr := resp.BusinessError(); bizErr != nil {
		reason := bizErr.Msg
		if bizErr.InsufficientBalance() {
			reason = insufficientBalanceMessage
		}
		a.logger.InfoContext(ctx, "gateway refused preauthorization",
			"swap_id", input.SwapID,
			"phase", input.Phase,
			"code", bizErr.Code,
			"reason", reason,
		)
		return &PreAuthorizeGatewayPaymentResult{Rejected: true, Reason: reason}, nil
	}

	txnID := resp.TransactionID()
	if txnID == "" {
		// Accepted but unusable: without a handle there is nothing to
		// commit or cancel, so treat it as a refusal.
		a.logger.WarnContext(ctx, "gateway accepted preauthorization without a transaction id",
			"swap_id", input.SwapID,
			"phase", input.Phase,
		)
		return &PreAuthorizeGatewayPaymentResult{
			Rejected: true,
			Reason:   "payment gateway returned no transaction reference",
		}, nil
	}

	if input.Phase == PhaseDebit {
		if err := a.store.SetSwapGatewayTxn(ctx, input.SwapID, txnID); err != nil {
			return nil, fmt.Errorf("failed to record gateway transaction: %w", err)
		}
	}

	a.logger.InfoContext(ctx, "gateway payment preauthorized",
		"swap_id", input.SwapID,
		"phase", input.Phase,
		"transaction_id", txnID,
	)
	return &PreAuthorizeGatewayPaymentResult{TransactionID: txnID}, nil
}

// CommitGatewayPaymentInput contains parameters for committing a reserved
// payment.
type CommitGatewayPaymentInput struct {
	SwapID        string `json:"swap_id"`
	Phase         string `json:"phase"`
	TransactionID string `json:"transaction_id"`
	Description   string `json:"description"`
}

// CommitGatewayPaymentResult reports whether the gateway settled the
// reservation.
type CommitGatewayPaymentResult struct {
	Rejected bool   `json:"rejected"`
	Reason   string `json:"reason,omitempty"`
}

// CommitGatewayPayment settles a previously reserved payment.
func (a *Activities) CommitGatewayPayment(ctx context.Context, input CommitGatewayPaymentInput) (*CommitGatewayPaymentResult, error) {
	a.logger.InfoContext(ctx, "committing gateway payment",
		"swap_id", input.SwapID,
		"phase", input.Phase,
		"transaction_id", input.TransactionID,
	)

	start := time.Now()
	resp, err := a.gateway.Commit(ctx, input.TransactionID, input.Description)
	a.recordGatewayCall("commit", err == nil, start)
	if err != nil {
		return nil, fmt.Errorf("gateway commit failed: %w", err)
	}

	if bizErr := resp.BusinessError(); bizErr != nil {
		a.logger.WarnContext(ctx, "gateway refused commit",
			"swap_id", input.SwapID,
			"phase", input.Phase,
			"code", bizErr.Code,
			"msg", bizErr.Msg,
		)
		return &CommitGatewayPaymentResult{Rejected: true, Reason: bizErr.Msg}, nil
	}

	return &CommitGatewayPaymentResult{}, nil
}

// CancelGatewayPaymentInput contains parameters for releasing a reservation
// that will not be committed.
type CancelGatewayPaymentInput struct {
	SwapID        string `json:"swap_id"`
	Phase         string `json:"phase"`
	TransactionID string `json:"transaction_id"`
	Description   string `json:"description"`
}

// CancelGatewayPaymentResult reports whether the reservation was released.
type CancelGatewayPaymentResult struct {
	Released bool   `json:"released"`
	Reason   string `json:"reason,omitempty"`
}

// CancelGatewayPayment releases a reservation after a failed commit. A
// refusal from the gateway is reported in the result rather than as an
// error: the saga is already failing and the uncompensated reservation is
// left flagged for reconciliation.
func (a *Activities) CancelGatewayPayment(ctx context.Context, input CancelGatewayPaymentInput) (*CancelGatewayPaymentResult, error) {
	a.logger.InfoContext(ctx, "cancelling gateway payment",
		"swap_id", input.SwapID,
		"phase", input.Phase,
		"transaction_id", input.TransactionID,
	)

	start := time.Now()
	resp, err := a.gateway.Cancel(ctx, input.TransactionID, input.Description)
	a.recordGatewayCall("cancel", err == nil, start)
	if err != nil {
		return nil, fmt.Errorf("gateway cancel failed: %w", err)
	}

	if bizErr := resp.BusinessError(); bizErr != nil {
		a.logger.ErrorContext(ctx, "gateway refused to release reservation",
			"swap_id", input.SwapID,
			"transaction_id", input.TransactionID,
			"code", bizErr.Code,
			"msg", bizErr.Msg,
		)
		return &CancelGatewayPaymentResult{Reason: bizErr.Msg}, nil
	}

	if err := a.store.MarkSwapCompensated(ctx, input.SwapID); err != nil {
		return nil, fmt.Errorf("failed to mark swap compensated: %w", err)
	}

	a.logger.InfoContext(ctx, "gateway reservation released",
		"swap_id", input.SwapID,
		"transaction_id", input.TransactionID,
	)
	return &CancelGatewayPaymentResult{Released: true}, nil
}

func (a *Activities) recordGatewayCall(operation string, ok bool, start time.Time) {
	if a.metrics == nil {
		return
	}
	status := "success"
	if !ok {
		status = "error"
	}
	a.metrics.RecordGatewayCall(operation, status, time.Since(start).Seconds())
}
