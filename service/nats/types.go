package nats

import (
	"time"

	"github.com/taranswap/taran/service/db"
)

// SwapEvent represents a completed or rejected swap published to NATS.
// Events go to the subject "swaps.{direction}" in JetStream, so consumers
// can subscribe to one corridor or to "swaps.>" for everything.
type SwapEvent struct {
	// Swap identifiers
	SwapID    string `json:"swap_id"`
	UserID    string `json:"user_id"`
	Direction string `json:"direction"`
	Outcome   string `json:"outcome"`

	// Amounts as decimal strings to keep precision on the wire
	SendAmount      string `json:"send_amount"`
	SendCurrency    string `json:"send_currency"`
	ReceiveAmount   string `json:"receive_amount"`
	ReceiveCurrency string `json:"receive_currency"`

	// External references, present depending on the corridor
	GatewayTransactionID string `json:"gateway_transaction_id,omitempty"`
	ExchangeWithdrawID   string `json:"exchange_withdraw_id,omitempty"`
	ChainTxHash          string `json:"chain_tx_hash,omitempty"`

	// Set only on rejected swaps
	FailureReason string `json:"failure_reason,omitempty"`

	// Metadata
	PublishedAt time.Time `json:"published_at"`
}

// FromDBSwap converts a finalized swap row to a SwapEvent for publishing.
func FromDBSwap(swap *db.Swap) *SwapEvent {
	event := &SwapEvent{
		SwapID:          swap.ID,
		UserID:          swap.UserID,
		Direction:       swap.Direction,
		SendAmount:      swap.SendAmount.String(),
		SendCurrency:    swap.SendCurrency,
		ReceiveAmount:   swap.ReceiveAmount.String(),
		ReceiveCurrency: swap.ReceiveCurrency,
		PublishedAt:     time.Now().UTC(),
	}

	if swap.Outcome != nil {
		event.Outcome = *swap.Outcome
	}
	if swap.GatewayTxnID != nil {
		event.GatewayTransactionID = *swap.GatewayTxnID
	}
	if swap.WithdrawID != nil {
		event.ExchangeWithdrawID = *swap.WithdrawID
	}
	if swap.ChainTxHash != nil {
		event.ChainTxHash = *swap.ChainTxHash
	}
	if swap.FailureReason != nil {
		event.FailureReason = *swap.FailureReason
	}

	return event
}
