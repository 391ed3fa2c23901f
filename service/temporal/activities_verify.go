package temporal

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.temporal.io/sdk/activity"

	"github.com/taranswap/taran/service/bscscan"
)

// VerifyChainPaymentInput contains parameters for confirming the user's
// transfer into the platform deposit address.
type VerifyChainPaymentInput struct {
	SwapID         string          `json:"swap_id"`
	FromAddress    string          `json:"from_address"`
	ExpectedAmount decimal.Decimal `json:"expected_amount"`
}

// VerifyChainPaymentResult reports whether the transfer was observed
// on-chain. Not finding it within the polling window is a business
// rejection, not an error: the user may simply not have sent yet.
type VerifyChainPaymentResult struct {
	Found    bool   `json:"found"`
	TxHash   string `json:"tx_hash,omitempty"`
	Attempts int    `json:"attempts"`
}

// VerifyChainPayment polls the chain explorer for a transfer from the user's
// wallet into the deposit address worth at least the expected amount. The
// explorer client owns the retry loop; this activity runs a single attempt
// and heartbeats while waiting.
func (a *Activities) VerifyChainPayment(ctx context.Context, input VerifyChainPaymentInput) (*VerifyChainPaymentResult, error) {
	a.logger.InfoContext(ctx, "verifying chain payment",
		"swap_id", input.SwapID,
		"from", input.FromAddress,
		"expected_amount", input.ExpectedAmount.String(),
	)

	// Heartbeat while the explorer client sleeps between polls so Temporal
	// knows the activity is still alive.
	heartbeatCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-heartbeatCtx.Done():
				return
			case <-ticker.C:
				activity.RecordHeartbeat(ctx, "polling chain explorer")
			}
		}
	}()

	result, err := a.verifier.VerifyReceived(ctx, bscscan.VerifyParams{
		SystemAddress:  a.systemDepositAddress,
		FromAddress:    input.FromAddress,
		ExpectedAmount: input.ExpectedAmount,
		MaxAttempts:    a.verifyMaxAttempts,
		RetryDelay:     a.verifyRetryDelay,
	})
	if err != nil {
		if a.metrics != nil {
			a.metrics.RecordVerifierCheck("error")
		}
		return nil, fmt.Errorf("chain verification failed: %w", err)
	}

	if a.metrics != nil {
		if result.Found {
			a.metrics.RecordVerifierCheck("found")
		} else {
			a.metrics.RecordVerifierCheck("not_found")
		}
		a.metrics.RecordVerifierAttempts(result.Found, result.Attempts)
	}

	if !result.Found {
		a.logger.InfoContext(ctx, "chain payment not found",
			"swap_id", input.SwapID,
			"attempts", result.Attempts,
		)
		return &VerifyChainPaymentResult{Attempts: result.Attempts}, nil
	}

	if err := a.store.SetSwapChainTx(ctx, input.SwapID, result.TxHash); err != nil {
		return nil, fmt.Errorf("failed to record chain tx hash: %w", err)
	}

	a.logger.InfoContext(ctx, "chain payment verified",
		"swap_id", input.SwapID,
		"tx_hash", result.TxHash,
		"attempts", result.Attempts,
	)
	return &VerifyChainPaymentResult{
		Found:    true,
		TxHash:   result.TxHash,
		Attempts: result.Attempts,
	}, nil
}
