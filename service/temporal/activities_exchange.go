package temporal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/taranswap/taran/service/binance"
	"github.com/taranswap/taran/service/currency"
)

// WithdrawCryptoInput contains parameters for sending crypto to the user's
// wallet from the exchange account.
type WithdrawCryptoInput struct {
	SwapID          string          `json:"swap_id"`
	ReceiveCurrency string          `json:"receive_currency"`
	Address         string          `json:"address"`
	Amount          decimal.Decimal `json:"amount"`
}

// WithdrawCryptoResult contains the exchange's withdrawal id, or a business
// rejection when the destination address is unusable.
type WithdrawCryptoResult struct {
	WithdrawID string `json:"withdraw_id"`
	Rejected   bool   `json:"rejected"`
	Reason     string `json:"reason,omitempty"`
}

// WithdrawCrypto submits a withdraw-to-address request for the net receive
// amount. An invalid destination address is a business rejection; exchange
// refusals and transport failures are activity errors. The workflow runs
// this with a single attempt since a timed-out withdrawal may still have
// gone through.
func (a *Activities) WithdrawCrypto(ctx context.Context, input WithdrawCryptoInput) (*WithdrawCryptoResult, error) {
	cur, ok := currency.Lookup(input.ReceiveCurrency)
	if !ok || cur.Network == "" {
		return nil, fmt.Errorf("currency %q has no withdrawal network", input.ReceiveCurrency)
	}

	if err := binance.ValidateAddress(cur.Network, input.Address); err != nil {
		a.logger.InfoContext(ctx, "withdrawal rejected for invalid address",
			"swap_id", input.SwapID,
			"network", cur.Network,
			"error", err,
		)
		return &WithdrawCryptoResult{Rejected: true, Reason: err.Error()}, nil
	}

	a.logger.InfoContext(ctx, "submitting exchange withdrawal",
		"swap_id", input.SwapID,
		"network", cur.Network,
		"amount", input.Amount.String(),
	)

	start := time.Now()
	result, err := a.exchange.Withdraw(ctx, binance.WithdrawParams{
		Coin:    binance.DefaultCoin,
		Network: cur.Network,
		Address: input.Address,
		Amount:  input.Amount,
		Name:    "taran swap " + input.SwapID,
	})
	if a.metrics != nil {
		status := "success"
		if err != nil {
			status = "error"
		}
		a.metrics.RecordExchangeCall("withdraw", status, time.Since(start).Seconds())
	}
	if err != nil {
		var apiErr *binance.APIError
		if errors.As(err, &apiErr) {
			// The exchange understood the request and said no. Retrying
			// identical input will not change its mind.
			a.logger.WarnContext(ctx, "exchange refused withdrawal",
				"swap_id", input.SwapID,
				"code", apiErr.Code,
				"msg", apiErr.Msg,
			)
			return &WithdrawCryptoResult{Rejected: true, Reason: apiErr.Msg}, nil
		}
		return nil, fmt.Errorf("exchange withdrawal failed: %w", err)
	}

	if err := a.store.SetSwapWithdrawal(ctx, input.SwapID, result.ID); err != nil {
		return nil, fmt.Errorf("failed to record withdrawal id: %w", err)
	}

	a.logger.InfoContext(ctx, "exchange withdrawal accepted",
		"swap_id", input.SwapID,
		"withdraw_id", result.ID,
		"status", result.Status,
	)
	return &WithdrawCryptoResult{WithdrawID: result.ID}, nil
}
