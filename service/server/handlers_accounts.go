package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/taranswap/taran/service/accounts"
	"github.com/taranswap/taran/service/binance"
	"github.com/taranswap/taran/service/currency"
	"github.com/taranswap/taran/service/db"
)

// upsertAccountRequest is the body for POST /api/v1/accounts. Label is a
// currency symbol from the registry; the account kind follows its class.
type upsertAccountRequest struct {
	UserID  string `json:"user_id"`
	Label   string `json:"label"`
	Number  string `json:"number,omitempty"`
	Address string `json:"address,omitempty"`
}

// accountResponse is the JSON shape of one account book entry.
type accountResponse struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Label     string    `json:"label"`
	Kind      string    `json:"kind"`
	Number    *string   `json:"number,omitempty"`
	Address   *string   `json:"address,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toAccountResponse(a *db.Account) accountResponse {
	return accountResponse{
		ID:        a.ID,
		UserID:    a.UserID,
		Label:     a.Label,
		Kind:      a.Kind,
		Number:    a.Number,
		Address:   a.Address,
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.UpdatedAt,
	}
}

// handleUpsertAccount adds or replaces an account book entry. Local entries
// carry a normalized phone number; crypto entries carry a validated wallet
// address for the label's network.
func handleUpsertAccount(store *db.Store, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req upsertAccountRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, "invalid request body", http.StatusBadRequest)
			return
		}

		if req.UserID == "" {
			writeError(w, "user_id is required", http.StatusBadRequest)
			return
		}

		cur, ok := currency.Lookup(req.Label)
		if !ok {
			writeError(w, "label must be a supported currency", http.StatusBadRequest)
			return
		}

		params := db.UpsertAccountParams{
			ID:     uuid.New().String(),
			UserID: req.UserID,
			Label:  req.Label,
		}

		switch cur.Class {
		case currency.ClassLocal:
			normalized, err := accounts.NormalizePhoneNumber(req.Number)
			if err != nil {
				writeError(w, err.Error(), http.StatusBadRequest)
				return
			}
			params.Kind = db.AccountKindLocal
			params.Number = &normalized
		case currency.ClassCrypto:
			if err := binance.ValidateAddress(cur.Network, req.Address); err != nil {
				writeError(w, err.Error(), http.StatusBadRequest)
				return
			}
			addr := req.Address
			if cur.Network == currency.NetworkBEP20 {
				addr = binance.NormalizeBEP20Address(addr)
			}
			params.Kind = db.AccountKindCrypto
			params.Address = &addr
		}

		account, err := store.UpsertAccount(r.Context(), params)
		if err != nil {
			logger.ErrorContext(r.Context(), "failed to upsert account",
				"user_id", req.UserID,
				"label", req.Label,
				"error", err,
			)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		logger.InfoContext(r.Context(), "account saved",
			"user_id", account.UserID,
			"label", account.Label,
			"kind", account.Kind,
		)

		writeJSON(w, toAccountResponse(account), http.StatusOK)
	})
}

// handleListAccounts returns a user's account book.
func handleListAccounts(store *db.Store, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := r.URL.Query().Get("user_id")
		if userID == "" {
			writeError(w, "user_id query parameter is required", http.StatusBadRequest)
			return
		}

		list, err := store.ListAccounts(r.Context(), userID)
		if err != nil {
			logger.ErrorContext(r.Context(), "failed to list accounts", "user_id", userID, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		out := make([]accountResponse, 0, len(list))
		for _, a := range list {
			out = append(out, toAccountResponse(a))
		}
		writeJSON(w, out, http.StatusOK)
	})
}

// handleDeleteAccount removes one account book entry by label.
func handleDeleteAccount(store *db.Store, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		label := r.PathValue("label")
		userID := r.URL.Query().Get("user_id")
		if userID == "" {
			writeError(w, "user_id query parameter is required", http.StatusBadRequest)
			return
		}

		if err := store.DeleteAccount(r.Context(), userID, label); err != nil {
			if errors.Is(err, db.ErrAccountNotFound) {
				writeError(w, "account not found", http.StatusNotFound)
				return
			}
			logger.ErrorContext(r.Context(), "failed to delete account",
				"user_id", userID,
				"label", label,
				"error", err,
			)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	})
}

// saveOnboardingRequest is the body for POST /api/v1/onboarding. The
// onboarding record is the mobile-money number captured at signup; it takes
// precedence over the account book when resolving local payout targets.
type saveOnboardingRequest struct {
	UserID      string `json:"user_id"`
	AccountType string `json:"account_type"`
	Number      string `json:"number"`
}

// onboardingResponse is the JSON shape of the onboarding profile.
type onboardingResponse struct {
	UserID      string    `json:"user_id"`
	AccountType string    `json:"account_type"`
	Number      string    `json:"number"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func toOnboardingResponse(p *db.OnboardingProfile) onboardingResponse {
	return onboardingResponse{
		UserID:      p.UserID,
		AccountType: p.AccountType,
		Number:      p.Number,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

// handleSaveOnboarding writes or replaces the user's onboarding record.
func handleSaveOnboarding(store *db.Store, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req saveOnboardingRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, "invalid request body", http.StatusBadRequest)
			return
		}

		if req.UserID == "" {
			writeError(w, "user_id is required", http.StatusBadRequest)
			return
		}
		class, err := currency.ClassOf(req.AccountType)
		if err != nil || class != currency.ClassLocal {
			writeError(w, "account_type must be a supported mobile money provider", http.StatusBadRequest)
			return
		}
		normalized, err := accounts.NormalizePhoneNumber(req.Number)
		if err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		profile, err := store.SaveOnboarding(r.Context(), req.UserID, req.AccountType, normalized)
		if err != nil {
			logger.ErrorContext(r.Context(), "failed to save onboarding profile",
				"user_id", req.UserID,
				"error", err,
			)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		logger.InfoContext(r.Context(), "onboarding profile saved",
			"user_id", profile.UserID,
			"account_type", profile.AccountType,
		)

		writeJSON(w, toOnboardingResponse(profile), http.StatusOK)
	})
}

// handleGetOnboarding returns the user's onboarding record.
func handleGetOnboarding(store *db.Store, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := r.URL.Query().Get("user_id")
		if userID == "" {
			writeError(w, "user_id query parameter is required", http.StatusBadRequest)
			return
		}

		profile, err := store.GetOnboarding(r.Context(), userID)
		if err != nil {
			if errors.Is(err, db.ErrOnboardingNotFound) {
				writeError(w, "onboarding profile not found", http.StatusNotFound)
				return
			}
			logger.ErrorContext(r.Context(), "failed to get onboarding profile", "user_id", userID, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		writeJSON(w, toOnboardingResponse(profile), http.StatusOK)
	})
}
