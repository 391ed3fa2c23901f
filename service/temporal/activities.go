package temporal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/taranswap/taran/service/accounts"
	"github.com/taranswap/taran/service/binance"
	"github.com/taranswap/taran/service/bscscan"
	"github.com/taranswap/taran/service/db"
	"github.com/taranswap/taran/service/metrics"
	natspkg "github.com/taranswap/taran/service/nats"
	"github.com/taranswap/taran/service/waafipay"
)

// StoreInterface defines the database operations needed by activities.
// This allows for easy mocking in tests.
type StoreInterface interface {
	CreateSwap(ctx context.Context, params db.CreateSwapParams) (*db.Swap, error)
	GetSwap(ctx context.Context, id string) (*db.Swap, error)
	UpdateSwapStep(ctx context.Context, id, step string) error
	SetSwapAccountRefs(ctx context.Context, id, payerRef, payeeRef string) error
	SetSwapGatewayTxn(ctx context.Context, id, gatewayTxnID string) error
	SetSwapWithdrawal(ctx context.Context, id, withdrawID string) error
	SetSwapChainTx(ctx context.Context, id, txHash string) error
	MarkSwapCompensated(ctx context.Context, id string) error
	FinalizeSwap(ctx context.Context, id, outcome, failureReason string) error
	AppendTransaction(ctx context.Context, params db.AppendTransactionParams) (*db.Transaction, error)
}

// GatewayInterface defines the mobile-money gateway operations needed by
// activities. This allows for easy mocking in tests.
type GatewayInterface interface {
	PreAuthorize(ctx context.Context, accountNo string, amount decimal.Decimal, referenceID, description string) (*waafipay.Response, error)
	Commit(ctx context.Context, transactionID, description string) (*waafipay.Response, error)
	Cancel(ctx context.Context, transactionID, description string) (*waafipay.Response, error)
}

// ExchangeInterface defines the exchange operations needed by activities.
type ExchangeInterface interface {
	Withdraw(ctx context.Context, params binance.WithdrawParams) (*binance.WithdrawResult, error)
}

// VerifierInterface defines the chain verification operations needed by
// activities.
type VerifierInterface interface {
	VerifyReceived(ctx context.Context, params bscscan.VerifyParams) (*bscscan.VerifyResult, error)
}

// ResolverInterface defines the account resolution operations needed by
// activities.
type ResolverInterface interface {
	ResolveLocalNumber(ctx context.Context, userID, symbol string) (string, error)
	ResolveCryptoAddress(ctx context.Context, userID, symbol string) (string, error)
	ResolveSourceWallet(ctx context.Context, userID, symbol string) (string, error)
}

// PublisherInterface defines the NATS publishing operations needed by
// activities.
type PublisherInterface interface {
	PublishSwap(ctx context.Context, event *natspkg.SwapEvent) error
}

// Activities holds the dependencies needed by Temporal activities.
// Following go-kit pattern, all dependencies are explicit.
type Activities struct {
	store     StoreInterface
	gateway   GatewayInterface
	exchange  ExchangeInterface
	verifier  VerifierInterface
	resolver  ResolverInterface
	publisher PublisherInterface
	metrics   *metrics.Metrics
	logger    *slog.Logger

	// Deposit address the chain verifier checks transfers into, plus the
	// polling bounds passed through to the explorer client.
	systemDepositAddress string
	verifyMaxAttempts    int
	verifyRetryDelay     time.Duration
}

// ActivitiesConfig bundles the dependencies for NewActivities.
type ActivitiesConfig struct {
	Store                StoreInterface
	Gateway              GatewayInterface
	Exchange             ExchangeInterface
	Verifier             VerifierInterface
	Resolver             ResolverInterface
	Publisher            PublisherInterface
	Metrics              *metrics.Metrics // Optional: if nil, no metrics will be recorded
	Logger               *slog.Logger
	SystemDepositAddress string
	VerifyMaxAttempts    int
	VerifyRetryDelay     time.Duration
}

// NewActivities creates a new Activities instance with explicit dependencies.
func NewActivities(cfg ActivitiesConfig) *Activities {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.VerifyMaxAttempts == 0 {
		cfg.VerifyMaxAttempts = bscscan.DefaultMaxAttempts
	}
	if cfg.VerifyRetryDelay == 0 {
		cfg.VerifyRetryDelay = bscscan.DefaultRetryDelay
	}
	return &Activities{
		store:                cfg.Store,
		gateway:              cfg.Gateway,
		exchange:             cfg.Exchange,
		verifier:             cfg.Verifier,
		resolver:             cfg.Resolver,
		publisher:            cfg.Publisher,
		metrics:              cfg.Metrics,
		logger:               cfg.Logger,
		systemDepositAddress: cfg.SystemDepositAddress,
		verifyMaxAttempts:    cfg.VerifyMaxAttempts,
		verifyRetryDelay:     cfg.VerifyRetryDelay,
	}
}

// CreateSwapRecordInput contains parameters for persisting a new swap saga.
type CreateSwapRecordInput struct {
	SwapID          string          `json:"swap_id"`
	UserID          string          `json:"user_id"`
	Direction       string          `json:"direction"`
	SendAmount      decimal.Decimal `json:"send_amount"`
	SendCurrency    string          `json:"send_currency"`
	ReceiveAmount   decimal.Decimal `json:"receive_amount"`
	ReceiveCurrency string          `json:"receive_currency"`
}

// CreateSwapRecord persists the initial saga row so every later transition
// has something to update.
func (a *Activities) CreateSwapRecord(ctx context.Context, input CreateSwapRecordInput) error {
	a.logger.InfoContext(ctx, "creating swap record",
		"swap_id", input.SwapID,
		"direction", input.Direction,
		"send_amount", input.SendAmount.String(),
		"send_currency", input.SendCurrency,
	)

	_, err := a.store.CreateSwap(ctx, db.CreateSwapParams{
		ID:              input.SwapID,
		UserID:          input.UserID,
		Direction:       input.Direction,
		SendAmount:      input.SendAmount,
		SendCurrency:    input.SendCurrency,
		ReceiveAmount:   input.ReceiveAmount,
		ReceiveCurrency: input.ReceiveCurrency,
		Step:            "initializing",
	})
	if err != nil {
		return fmt.Errorf("failed to create swap record: %w", err)
	}
	return nil
}

// MarkSwapStepInput contains parameters for recording a saga transition.
type MarkSwapStepInput struct {
	SwapID string `json:"swap_id"`
	Step   string `json:"step"`
}

// MarkSwapStep records the saga's current step.
func (a *Activities) MarkSwapStep(ctx context.Context, input MarkSwapStepInput) error {
	if err := a.store.UpdateSwapStep(ctx, input.SwapID, input.Step); err != nil {
		return fmt.Errorf("failed to update swap step: %w", err)
	}
	a.logger.DebugContext(ctx, "swap step updated",
		"swap_id", input.SwapID,
		"step", input.Step,
	)
	return nil
}

// ResolveAccountsInput contains parameters for resolving the payer and payee
// references of a swap.
type ResolveAccountsInput struct {
	SwapID          string `json:"swap_id"`
	UserID          string `json:"user_id"`
	Direction       string `json:"direction"`
	SendCurrency    string `json:"send_currency"`
	ReceiveCurrency string `json:"receive_currency"`
}

// ResolveAccountsResult contains the resolved references, or a business
// rejection when the user's account book cannot satisfy the swap.
type ResolveAccountsResult struct {
	PayerRef string `json:"payer_ref"`
	PayeeRef string `json:"payee_ref"`
	Rejected bool   `json:"rejected"`
	Reason   string `json:"reason,omitempty"`
}

// ResolveAccounts looks up both legs of the swap in the account book.
// Missing or invalid accounts are business rejections, not activity errors,
// so the workflow can finalize the swap instead of retrying.
func (a *Activities) ResolveAccounts(ctx context.Context, input ResolveAccountsInput) (*ResolveAccountsResult, error) {
	a.logger.InfoContext(ctx, "resolving swap accounts",
		"swap_id", input.SwapID,
		"direction", input.Direction,
	)

	var payerRef, payeeRef string
	var err error

	switch input.Direction {
	case "local_to_local":
		payerRef, err = a.resolver.ResolveLocalNumber(ctx, input.UserID, input.SendCurrency)
		if err == nil {
			payeeRef, err = a.resolver.ResolveLocalNumber(ctx, input.UserID, input.ReceiveCurrency)
		}
	case "local_to_crypto":
		payerRef, err = a.resolver.ResolveLocalNumber(ctx, input.UserID, input.SendCurrency)
		if err == nil {
			payeeRef, err = a.resolver.ResolveCryptoAddress(ctx, input.UserID, input.ReceiveCurrency)
		}
	case "crypto_to_local":
		payerRef, err = a.resolver.ResolveSourceWallet(ctx, input.UserID, input.SendCurrency)
		if err == nil {
			payeeRef, err = a.resolver.ResolveLocalNumber(ctx, input.UserID, input.ReceiveCurrency)
		}
	default:
		return nil, fmt.Errorf("unsupported direction %q", input.Direction)
	}

	if err != nil {
		if isAccountRejection(err) {
			a.logger.InfoContext(ctx, "swap rejected during account resolution",
				"swap_id", input.SwapID,
				"reason", err.Error(),
			)
			return &ResolveAccountsResult{Rejected: true, Reason: err.Error()}, nil
		}
		return nil, fmt.Errorf("failed to resolve accounts: %w", err)
	}

	if err := a.store.SetSwapAccountRefs(ctx, input.SwapID, payerRef, payeeRef); err != nil {
		return nil, fmt.Errorf("failed to record account refs: %w", err)
	}

	return &ResolveAccountsResult{PayerRef: payerRef, PayeeRef: payeeRef}, nil
}

// isAccountRejection reports whether a resolver failure is the user's
// configuration rather than infrastructure.
func isAccountRejection(err error) bool {
	return errors.Is(err, accounts.ErrAccountMissing) ||
		errors.Is(err, accounts.ErrInvalidPhoneNumber) ||
		errors.Is(err, accounts.ErrSystemAddress)
}

// RecordSwapHistoryInput contains parameters for appending the permanent
// history row of a completed swap.
type RecordSwapHistoryInput struct {
	TransactionID   string          `json:"transaction_id"`
	SwapID          string          `json:"swap_id"`
	UserID          string          `json:"user_id"`
	Direction       string          `json:"direction"`
	SendAmount      decimal.Decimal `json:"send_amount"`
	SendCurrency    string          `json:"send_currency"`
	ReceiveAmount   decimal.Decimal `json:"receive_amount"`
	ReceiveCurrency string          `json:"receive_currency"`
	ExternalRef     string          `json:"external_ref"`
}

// RecordSwapHistory appends the completed swap to the transaction history.
func (a *Activities) RecordSwapHistory(ctx context.Context, input RecordSwapHistoryInput) error {
	_, err := a.store.AppendTransaction(ctx, db.AppendTransactionParams{
		ID:              input.TransactionID,
		SwapID:          input.SwapID,
		UserID:          input.UserID,
		Direction:       input.Direction,
		SendAmount:      input.SendAmount,
		SendCurrency:    input.SendCurrency,
		ReceiveAmount:   input.ReceiveAmount,
		ReceiveCurrency: input.ReceiveCurrency,
		ExternalRef:     input.ExternalRef,
	})
	if err != nil {
		return fmt.Errorf("failed to append transaction history: %w", err)
	}

	a.logger.InfoContext(ctx, "swap history recorded",
		"swap_id", input.SwapID,
		"external_ref", input.ExternalRef,
	)
	return nil
}

// FinalizeSwapInput contains parameters for recording a saga's terminal
// outcome.
type FinalizeSwapInput struct {
	SwapID        string `json:"swap_id"`
	Outcome       string `json:"outcome"`
	FailureReason string `json:"failure_reason,omitempty"`
}

// FinalizeSwap records the terminal outcome of the saga.
func (a *Activities) FinalizeSwap(ctx context.Context, input FinalizeSwapInput) error {
	if err := a.store.FinalizeSwap(ctx, input.SwapID, input.Outcome, input.FailureReason); err != nil {
		return fmt.Errorf("failed to finalize swap: %w", err)
	}

	a.logger.InfoContext(ctx, "swap finalized",
		"swap_id", input.SwapID,
		"outcome", input.Outcome,
		"failure_reason", input.FailureReason,
	)
	return nil
}

// PublishSwapEventInput contains parameters for publishing a finalized swap.
type PublishSwapEventInput struct {
	SwapID string `json:"swap_id"`
}

// PublishSwapEvent loads the finalized swap and publishes it to JetStream.
func (a *Activities) PublishSwapEvent(ctx context.Context, input PublishSwapEventInput) error {
	swap, err := a.store.GetSwap(ctx, input.SwapID)
	if err != nil {
		return fmt.Errorf("failed to load swap for publishing: %w", err)
	}

	event := natspkg.FromDBSwap(swap)
	subject := "swaps." + event.Direction

	start := time.Now()
	err = a.publisher.PublishSwap(ctx, event)
	if a.metrics != nil {
		status := "success"
		if err != nil {
			status = "error"
		}
		a.metrics.RecordNATSPublish(subject, status, time.Since(start).Seconds())
	}
	if err != nil {
		return fmt.Errorf("failed to publish swap event: %w", err)
	}

	a.logger.InfoContext(ctx, "swap event published",
		"swap_id", input.SwapID,
		"subject", subject,
	)
	return nil
}
