// Package db provides Postgres persistence for swaps, the append-only
// transaction history, and the user's account book (the configuration
// surface the orchestrator reads before a saga starts).
package db

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

var (
	ErrSwapNotFound        = errors.New("swap not found")
	ErrAccountNotFound     = errors.New("account not found")
	ErrOnboardingNotFound  = errors.New("onboarding profile not found")
	ErrTransactionNotFound = errors.New("transaction not found")
)

// Swap outcome values.
const (
	OutcomeCompleted = "completed"
	OutcomeRejected  = "rejected"
)

// Account kinds, matching the app's account book.
const (
	AccountKindLocal  = "local"
	AccountKindCrypto = "crypto"
)

// Store provides database operations for the service.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new Store with the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Migrate applies the embedded schema migrations in filename order.
func (s *Store) Migrate(ctx context.Context) error {
	entries, err := fs.ReadDir(migrationFiles, "migrations")
	if err != nil {
		return fmt.Errorf("failed to read migrations: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)

	for _, name := range names {
		sql, err := fs.ReadFile(migrationFiles, "migrations/"+name)
		if err != nil {
			return fmt.Errorf("failed to read migration %s: %w", name, err)
		}
		if _, err := s.pool.Exec(ctx, string(sql)); err != nil {
			return fmt.Errorf("migration %s failed: %w", name, err)
		}
	}
	return nil
}

// Swap is one saga instance. The row is updated after every state
// transition so a stranded reservation can be reconciled from the
// gateway_transaction_id it keeps.
type Swap struct {
	ID              string
	UserID          string
	Direction       string
	SendAmount      decimal.Decimal
	SendCurrency    string
	ReceiveAmount   decimal.Decimal
	ReceiveCurrency string
	PayerRef        *string
	PayeeRef        *string
	Step            string
	Outcome         *string
	FailureReason   *string
	GatewayTxnID    *string
	WithdrawID      *string
	ChainTxHash     *string
	Compensated     bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// CreateSwapParams contains the parameters for creating a swap row.
type CreateSwapParams struct {
	ID              string
	UserID          string
	Direction       string
	SendAmount      decimal.Decimal
	SendCurrency    string
	ReceiveAmount   decimal.Decimal
	ReceiveCurrency string
	Step            string
}

const swapColumns = `id, user_id, direction, send_amount::text, send_currency,
	receive_amount::text, receive_currency, payer_ref, payee_ref, step,
	outcome, failure_reason, gateway_txn_id, withdraw_id, chain_tx_hash,
	compensated, created_at, updated_at`

// CreateSwap inserts a new swap row in its initial step.
func (s *Store) CreateSwap(ctx context.Context, params CreateSwapParams) (*Swap, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO swaps (id, user_id, direction, send_amount, send_currency,
			receive_amount, receive_currency, step)
		VALUES ($1, $2, $3, $4::numeric, $5, $6::numeric, $7, $8)
		RETURNING `+swapColumns,
		params.ID, params.UserID, params.Direction,
		params.SendAmount.String(), params.SendCurrency,
		params.ReceiveAmount.String(), params.ReceiveCurrency,
		params.Step,
	)
	return scanSwap(row)
}

// GetSwap retrieves a swap by id.
func (s *Store) GetSwap(ctx context.Context, id string) (*Swap, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+swapColumns+` FROM swaps WHERE id = $1`, id)
	swap, err := scanSwap(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSwapNotFound
		}
		return nil, err
	}
	return swap, nil
}

// ListSwaps returns swaps newest first.
func (s *Store) ListSwaps(ctx context.Context, userID string, limit, offset int32) ([]*Swap, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+swapColumns+` FROM swaps
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`,
		userID, limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var swaps []*Swap
	for rows.Next() {
		swap, err := scanSwap(rows)
		if err != nil {
			return nil, err
		}
		swaps = append(swaps, swap)
	}
	return swaps, rows.Err()
}

// UpdateSwapStep records a state transition.
func (s *Store) UpdateSwapStep(ctx context.Context, id, step string) error {
	return s.execSwapUpdate(ctx, id, `UPDATE swaps SET step = $2, updated_at = now() WHERE id = $1`, step)
}

// SetSwapAccountRefs records the resolved payer/payee references.
func (s *Store) SetSwapAccountRefs(ctx context.Context, id, payerRef, payeeRef string) error {
	return s.execSwapUpdate(ctx, id,
		`UPDATE swaps SET payer_ref = $2, payee_ref = $3, updated_at = now() WHERE id = $1`,
		payerRef, payeeRef)
}

// SetSwapGatewayTxn records the gateway transaction handle from a successful
// preauthorize.
func (s *Store) SetSwapGatewayTxn(ctx context.Context, id, gatewayTxnID string) error {
	return s.execSwapUpdate(ctx, id,
		`UPDATE swaps SET gateway_txn_id = $2, updated_at = now() WHERE id = $1`, gatewayTxnID)
}

// SetSwapWithdrawal records the exchange withdrawal id.
func (s *Store) SetSwapWithdrawal(ctx context.Context, id, withdrawID string) error {
	return s.execSwapUpdate(ctx, id,
		`UPDATE swaps SET withdraw_id = $2, updated_at = now() WHERE id = $1`, withdrawID)
}

// SetSwapChainTx records the on-chain transfer hash matched by the verifier.
func (s *Store) SetSwapChainTx(ctx context.Context, id, txHash string) error {
	return s.execSwapUpdate(ctx, id,
		`UPDATE swaps SET chain_tx_hash = $2, updated_at = now() WHERE id = $1`, txHash)
}

// MarkSwapCompensated records that a compensating cancel was issued for the
// swap's gateway reservation.
func (s *Store) MarkSwapCompensated(ctx context.Context, id string) error {
	return s.execSwapUpdate(ctx, id,
		`UPDATE swaps SET compensated = true, updated_at = now() WHERE id = $1`)
}

// FinalizeSwap records the terminal outcome. failureReason is only stored
// for rejected swaps.
func (s *Store) FinalizeSwap(ctx context.Context, id, outcome, failureReason string) error {
	var reason *string
	if outcome == OutcomeRejected && failureReason != "" {
		reason = &failureReason
	}
	return s.execSwapUpdate(ctx, id, `
		UPDATE swaps SET outcome = $2, failure_reason = $3, step = $2, updated_at = now()
		WHERE id = $1`, outcome, reason)
}

func (s *Store) execSwapUpdate(ctx context.Context, id, sql string, args ...any) error {
	allArgs := append([]any{id}, args...)
	tag, err := s.pool.Exec(ctx, sql, allArgs...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrSwapNotFound
	}
	return nil
}

// Transaction is one append-only history entry, written exactly once per
// completed swap and never mutated afterward.
type Transaction struct {
	ID              string
	SwapID          string
	UserID          string
	Direction       string
	SendAmount      decimal.Decimal
	SendCurrency    string
	ReceiveAmount   decimal.Decimal
	ReceiveCurrency string
	ExternalRef     string
	CreatedAt       time.Time
}

// AppendTransactionParams contains the parameters for a history append.
type AppendTransactionParams struct {
	ID              string
	SwapID          string
	UserID          string
	Direction       string
	SendAmount      decimal.Decimal
	SendCurrency    string
	ReceiveAmount   decimal.Decimal
	ReceiveCurrency string
	ExternalRef     string
}

// AppendTransaction inserts a history entry. A single INSERT, so concurrent
// sagas cannot lose each other's appends.
func (s *Store) AppendTransaction(ctx context.Context, params AppendTransactionParams) (*Transaction, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO transactions (id, swap_id, user_id, direction, send_amount,
			send_currency, receive_amount, receive_currency, external_ref)
		VALUES ($1, $2, $3, $4, $5::numeric, $6, $7::numeric, $8, $9)
		RETURNING id, swap_id, user_id, direction, send_amount::text, send_currency,
			receive_amount::text, receive_currency, external_ref, created_at`,
		params.ID, params.SwapID, params.UserID, params.Direction,
		params.SendAmount.String(), params.SendCurrency,
		params.ReceiveAmount.String(), params.ReceiveCurrency,
		params.ExternalRef,
	)

	var t Transaction
	var sendAmount, receiveAmount string
	err := row.Scan(&t.ID, &t.SwapID, &t.UserID, &t.Direction, &sendAmount,
		&t.SendCurrency, &receiveAmount, &t.ReceiveCurrency, &t.ExternalRef, &t.CreatedAt)
	if err != nil {
		return nil, err
	}
	if t.SendAmount, err = decimal.NewFromString(sendAmount); err != nil {
		return nil, fmt.Errorf("bad send_amount in db: %w", err)
	}
	if t.ReceiveAmount, err = decimal.NewFromString(receiveAmount); err != nil {
		return nil, fmt.Errorf("bad receive_amount in db: %w", err)
	}
	return &t, nil
}

// ListTransactions returns history entries newest first.
func (s *Store) ListTransactions(ctx context.Context, userID string, limit, offset int32) ([]*Transaction, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, swap_id, user_id, direction, send_amount::text, send_currency,
			receive_amount::text, receive_currency, external_ref, created_at
		FROM transactions
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`,
		userID, limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Transaction
	for rows.Next() {
		var t Transaction
		var sendAmount, receiveAmount string
		err := rows.Scan(&t.ID, &t.SwapID, &t.UserID, &t.Direction, &sendAmount,
			&t.SendCurrency, &receiveAmount, &t.ReceiveCurrency, &t.ExternalRef, &t.CreatedAt)
		if err != nil {
			return nil, err
		}
		if t.SendAmount, err = decimal.NewFromString(sendAmount); err != nil {
			return nil, fmt.Errorf("bad send_amount in db: %w", err)
		}
		if t.ReceiveAmount, err = decimal.NewFromString(receiveAmount); err != nil {
			return nil, fmt.Errorf("bad receive_amount in db: %w", err)
		}
		out = append(out, &t)
	}
	return out, rows.Err()
}

func scanSwap(row pgx.Row) (*Swap, error) {
	var swap Swap
	var sendAmount, receiveAmount string
	err := row.Scan(
		&swap.ID, &swap.UserID, &swap.Direction, &sendAmount, &swap.SendCurrency,
		&receiveAmount, &swap.ReceiveCurrency, &swap.PayerRef, &swap.PayeeRef,
		&swap.Step, &swap.Outcome, &swap.FailureReason, &swap.GatewayTxnID,
		&swap.WithdrawID, &swap.ChainTxHash, &swap.Compensated,
		&swap.CreatedAt, &swap.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if swap.SendAmount, err = decimal.NewFromString(sendAmount); err != nil {
		return nil, fmt.Errorf("bad send_amount in db: %w", err)
	}
	if swap.ReceiveAmount, err = decimal.NewFromString(receiveAmount); err != nil {
		return nil, fmt.Errorf("bad receive_amount in db: %w", err)
	}
	return &swap, nil
}
