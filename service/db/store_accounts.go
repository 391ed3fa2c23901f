package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
)

// Account is one entry in the user's account book: a mobile-money number or
// a crypto wallet address, keyed by currency label.
type Account struct {
	ID        string
	UserID    string
	Label     string
	Kind      string // "local" or "crypto"
	Number    *string
	Address   *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// UpsertAccountParams contains the parameters for adding or replacing an
// account. Exactly one of Number/Address should be set depending on Kind.
type UpsertAccountParams struct {
	ID      string
	UserID  string
	Label   string
	Kind    string
	Number  *string
	Address *string
}

const accountColumns = `id, user_id, label, kind, number, address, created_at, updated_at`

// UpsertAccount adds an account, replacing any existing one with the same
// label (the app allows one account per currency).
func (s *Store) UpsertAccount(ctx context.Context, params UpsertAccountParams) (*Account, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO user_accounts (id, user_id, label, kind, number, address)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id, label) DO UPDATE
			SET kind = EXCLUDED.kind,
			    number = EXCLUDED.number,
			    address = EXCLUDED.address,
			    updated_at = now()
		RETURNING `+accountColumns,
		params.ID, params.UserID, params.Label, params.Kind, params.Number, params.Address,
	)
	return scanAccount(row)
}

// GetAccountByLabel retrieves the account registered for a currency label.
func (s *Store) GetAccountByLabel(ctx context.Context, userID, label string) (*Account, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM user_accounts WHERE user_id = $1 AND label = $2`,
		userID, label,
	)
	account, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return account, nil
}

// ListAccounts returns all accounts for a user.
func (s *Store) ListAccounts(ctx context.Context, userID string) ([]*Account, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+accountColumns+` FROM user_accounts WHERE user_id = $1 ORDER BY label`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []*Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, account)
	}
	return accounts, rows.Err()
}

// DeleteAccount removes an account by label.
func (s *Store) DeleteAccount(ctx context.Context, userID, label string) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM user_accounts WHERE user_id = $1 AND label = $2`, userID, label)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// OnboardingProfile is the record written when the user first sets up the
// app: their primary mobile-money account.
type OnboardingProfile struct {
	UserID      string
	AccountType string
	Number      string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// SaveOnboarding writes or replaces the user's onboarding record.
func (s *Store) SaveOnboarding(ctx context.Context, userID, accountType, number string) (*OnboardingProfile, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO onboarding_profiles (user_id, account_type, number)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO UPDATE
			SET account_type = EXCLUDED.account_type,
			    number = EXCLUDED.number,
			    updated_at = now()
		RETURNING user_id, account_type, number, created_at, updated_at`,
		userID, accountType, number,
	)

	var p OnboardingProfile
	if err := row.Scan(&p.UserID, &p.AccountType, &p.Number, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

// GetOnboarding retrieves the user's onboarding record.
func (s *Store) GetOnboarding(ctx context.Context, userID string) (*OnboardingProfile, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT user_id, account_type, number, created_at, updated_at
		 FROM onboarding_profiles WHERE user_id = $1`, userID)

	var p OnboardingProfile
	err := row.Scan(&p.UserID, &p.AccountType, &p.Number, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOnboardingNotFound
		}
		return nil, err
	}
	return &p, nil
}

func scanAccount(row pgx.Row) (*Account, error) {
	var a Account
	err := row.Scan(&a.ID, &a.UserID, &a.Label, &a.Kind, &a.Number, &a.Address,
		&a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}
