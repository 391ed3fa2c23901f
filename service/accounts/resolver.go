// Package accounts resolves the payer and payee references for a swap from
// the user's stored account book and onboarding record. The core treats this
// surface as read-only: resolution happens before a saga touches any
// external service, and every failure here is terminal.
package accounts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/taranswap/taran/service/db"
)

var (
	// ErrAccountMissing means no usable account is registered for the
	// requested currency.
	ErrAccountMissing = errors.New("account missing")

	// ErrInvalidPhoneNumber means the stored mobile-money number is too
	// short or contains non-digits after cleanup.
	ErrInvalidPhoneNumber = errors.New("invalid phone number")

	// ErrSystemAddress means the user registered the platform's own deposit
	// address instead of their wallet. A configuration error, not a
	// transient failure.
	ErrSystemAddress = errors.New("wallet address is the system deposit address")
)

// somaliaCountryCode is prefixed onto bare 9-digit subscriber numbers.
const somaliaCountryCode = "252"

// StoreInterface is the slice of db.Store the resolver needs.
type StoreInterface interface {
	GetOnboarding(ctx context.Context, userID string) (*db.OnboardingProfile, error)
	GetAccountByLabel(ctx context.Context, userID, label string) (*db.Account, error)
}

// Resolver reads the account book and produces validated account references.
type Resolver struct {
	store                StoreInterface
	systemDepositAddress string
	logger               *slog.Logger
}

// NewResolver creates a resolver. systemDepositAddress is the platform's
// BEP20 deposit address, used for the own-address guard.
func NewResolver(store StoreInterface, systemDepositAddress string, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Resolver{
		store:                store,
		systemDepositAddress: systemDepositAddress,
		logger:               logger,
	}
}

// ResolveLocalNumber finds the user's mobile-money number for a currency:
// the onboarding record wins if it matches the currency, otherwise the added
// account with that label. The number is normalized before return.
func (r *Resolver) ResolveLocalNumber(ctx context.Context, userID, symbol string) (string, error) {
	if onboard, err := r.store.GetOnboarding(ctx, userID); err == nil {
		if onboard.AccountType == symbol && onboard.Number != "" {
			return NormalizePhoneNumber(onboard.Number)
		}
	} else if !errors.Is(err, db.ErrOnboardingNotFound) {
		return "", fmt.Errorf("failed to load onboarding record: %w", err)
	}

	account, err := r.store.GetAccountByLabel(ctx, userID, symbol)
	if err != nil {
		if errors.Is(err, db.ErrAccountNotFound) {
			return "", fmt.Errorf("%w: no %s account registered", ErrAccountMissing, symbol)
		}
		return "", fmt.Errorf("failed to load %s account: %w", symbol, err)
	}
	if account.Number == nil || *account.Number == "" {
		return "", fmt.Errorf("%w: %s account has no number", ErrAccountMissing, symbol)
	}
	return NormalizePhoneNumber(*account.Number)
}

// ResolveCryptoAddress finds the user's wallet address for a crypto
// currency label.
func (r *Resolver) ResolveCryptoAddress(ctx context.Context, userID, symbol string) (string, error) {
	account, err := r.store.GetAccountByLabel(ctx, userID, symbol)
	if err != nil {
		if errors.Is(err, db.ErrAccountNotFound) {
			return "", fmt.Errorf("%w: no %s address registered", ErrAccountMissing, symbol)
		}
		return "", fmt.Errorf("failed to load %s account: %w", symbol, err)
	}
	if account.Address == nil || *account.Address == "" {
		return "", fmt.Errorf("%w: %s account has no address", ErrAccountMissing, symbol)
	}
	return *account.Address, nil
}

// ResolveSourceWallet resolves the user's own wallet for a crypto-originated
// swap and rejects the platform's deposit address: the user must send from
// their wallet, not register ours.
func (r *Resolver) ResolveSourceWallet(ctx context.Context, userID, symbol string) (string, error) {
	address, err := r.ResolveCryptoAddress(ctx, userID, symbol)
	if err != nil {
		return "", err
	}
	if strings.EqualFold(address, r.systemDepositAddress) {
		r.logger.Warn("user registered the system deposit address as their wallet",
			"user_id", userID,
			"symbol", symbol,
		)
		return "", ErrSystemAddress
	}
	return address, nil
}

// NormalizePhoneNumber strips formatting characters, prefixes the Somalia
// country code onto bare 9-digit numbers, and validates the result.
func NormalizePhoneNumber(raw string) (string, error) {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '+', '-', '(', ')':
			return -1
		}
		return r
	}, raw)

	for _, r := range cleaned {
		if r < '0' || r > '9' {
			return "", fmt.Errorf("%w: %q contains non-digits", ErrInvalidPhoneNumber, raw)
		}
	}

	if len(cleaned) == 9 && !strings.HasPrefix(cleaned, somaliaCountryCode) {
		cleaned = somaliaCountryCode + cleaned
	}

	if len(cleaned) < 10 {
		return "", fmt.Errorf("%w: %q is too short", ErrInvalidPhoneNumber, raw)
	}

	return cleaned, nil
}
