package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taranswap/taran/service/db"
)

// Handler tests that exercise the real Postgres store. They skip when no
// test database is reachable so the pure handler tests still run anywhere.

func seedSwap(t *testing.T, store *db.TestStore, userID string) *db.Swap {
	t.Helper()

	swap, err := store.CreateSwap(context.Background(), db.CreateSwapParams{
		ID:              uuid.NewString(),
		UserID:          userID,
		Direction:       "local_to_crypto",
		SendAmount:      decimal.NewFromInt(100),
		SendCurrency:    "EvcPlus",
		ReceiveAmount:   decimal.RequireFromString("98.00"),
		ReceiveCurrency: "USDT (BEP20)",
		Step:            "initializing",
	})
	require.NoError(t, err)
	return swap
}

func TestHandleGetSwap_DB(t *testing.T) {
	db.SkipIfNoTestDB(t)

	store := db.NewTestStore(t)
	defer store.Close()
	defer store.Cleanup(t)

	swap := seedSwap(t, store, "user-1")

	mux := http.NewServeMux()
	mux.Handle("GET /api/v1/swaps/{id}", handleGetSwap(store.Store, testLogger()))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/swaps/"+swap.ID, nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp swapResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, swap.ID, resp.ID)
	assert.Equal(t, "local_to_crypto", resp.Direction)
	assert.Equal(t, "100", resp.SendAmount)
	assert.Equal(t, "98", resp.ReceiveAmount)
	assert.Nil(t, resp.Outcome)
}

func TestHandleGetSwap_DB_NotFound(t *testing.T) {
	db.SkipIfNoTestDB(t)

	store := db.NewTestStore(t)
	defer store.Close()
	defer store.Cleanup(t)

	mux := http.NewServeMux()
	mux.Handle("GET /api/v1/swaps/{id}", handleGetSwap(store.Store, testLogger()))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/swaps/"+uuid.NewString(), nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleListSwaps_DB(t *testing.T) {
	db.SkipIfNoTestDB(t)

	store := db.NewTestStore(t)
	defer store.Close()
	defer store.Cleanup(t)

	seedSwap(t, store, "user-1")
	seedSwap(t, store, "user-1")
	seedSwap(t, store, "user-2")

	handler := handleListSwaps(store.Store, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/swaps?user_id=user-1", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp []swapResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Len(t, resp, 2)
	for _, s := range resp {
		assert.Equal(t, "user-1", s.UserID)
	}
}

func TestHandleListSwaps_DB_RequiresUserID(t *testing.T) {
	db.SkipIfNoTestDB(t)

	store := db.NewTestStore(t)
	defer store.Close()

	handler := handleListSwaps(store.Store, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/swaps", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleListTransactions_DB(t *testing.T) {
	db.SkipIfNoTestDB(t)

	store := db.NewTestStore(t)
	defer store.Close()
	defer store.Cleanup(t)

	swap := seedSwap(t, store, "user-1")
	_, err := store.AppendTransaction(context.Background(), db.AppendTransactionParams{
		ID:              "hist-" + swap.ID,
		SwapID:          swap.ID,
		UserID:          swap.UserID,
		Direction:       swap.Direction,
		SendAmount:      swap.SendAmount,
		SendCurrency:    swap.SendCurrency,
		ReceiveAmount:   swap.ReceiveAmount,
		ReceiveCurrency: swap.ReceiveCurrency,
		ExternalRef:     "WD-1",
	})
	require.NoError(t, err)

	handler := handleListTransactions(store.Store, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/transactions?user_id=user-1", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp []transactionResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp, 1)
	assert.Equal(t, swap.ID, resp[0].SwapID)
	assert.Equal(t, "WD-1", resp[0].ExternalRef)
}

func TestHandleUpsertAccount_DB_Local(t *testing.T) {
	db.SkipIfNoTestDB(t)

	store := db.NewTestStore(t)
	defer store.Close()
	defer store.Cleanup(t)

	handler := handleUpsertAccount(store.Store, testLogger())

	body := `{"user_id": "user-1", "label": "EvcPlus", "number": "61 123 4567"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/accounts", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp accountResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "local", resp.Kind)
	require.NotNil(t, resp.Number)
	assert.Equal(t, "252611234567", *resp.Number, "phone number should be normalized with country code")
	assert.Nil(t, resp.Address)
}

func TestHandleUpsertAccount_DB_Crypto(t *testing.T) {
	db.SkipIfNoTestDB(t)

	store := db.NewTestStore(t)
	defer store.Close()
	defer store.Cleanup(t)

	handler := handleUpsertAccount(store.Store, testLogger())

	body := `{"user_id": "user-1", "label": "USDT (BEP20)", "address": "0x8ba1f109551bd432803012645ac136ddd64dba72"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/accounts", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp accountResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "crypto", resp.Kind)
	require.NotNil(t, resp.Address)
	assert.Equal(t, "0x8ba1f109551BD432803012645Ac136ddd64DBA72", *resp.Address, "address should be checksummed")
}

func TestHandleUpsertAccount_DB_Validation(t *testing.T) {
	db.SkipIfNoTestDB(t)

	store := db.NewTestStore(t)
	defer store.Close()
	defer store.Cleanup(t)

	handler := handleUpsertAccount(store.Store, testLogger())

	tests := []struct {
		name string
		body string
	}{
		{"unknown label", `{"user_id": "u", "label": "Doubloons", "number": "611234567"}`},
		{"bad phone number", `{"user_id": "u", "label": "Zaad", "number": "abc"}`},
		{"bad address", `{"user_id": "u", "label": "USDT (BEP20)", "address": "not-hex"}`},
		{"missing user id", `{"label": "Zaad", "number": "611234567"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/accounts", bytes.NewBufferString(tt.body))
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestHandleDeleteAccount_DB(t *testing.T) {
	db.SkipIfNoTestDB(t)

	store := db.NewTestStore(t)
	defer store.Close()
	defer store.Cleanup(t)

	number := "252611234567"
	_, err := store.UpsertAccount(context.Background(), db.UpsertAccountParams{
		ID:     uuid.NewString(),
		UserID: "user-1",
		Label:  "Zaad",
		Kind:   db.AccountKindLocal,
		Number: &number,
	})
	require.NoError(t, err)

	mux := http.NewServeMux()
	mux.Handle("DELETE /api/v1/accounts/{label}", handleDeleteAccount(store.Store, testLogger()))

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/accounts/Zaad?user_id=user-1", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)

	// Deleting again reports not found.
	req = httptest.NewRequest(http.MethodDelete, "/api/v1/accounts/Zaad?user_id=user-1", nil)
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleOnboarding_DB(t *testing.T) {
	db.SkipIfNoTestDB(t)

	store := db.NewTestStore(t)
	defer store.Close()
	defer store.Cleanup(t)

	save := handleSaveOnboarding(store.Store, testLogger())

	body := `{"user_id": "user-1", "account_type": "EvcPlus", "number": "611234567"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/onboarding", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	save.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var saved onboardingResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&saved))
	assert.Equal(t, "252611234567", saved.Number)

	get := handleGetOnboarding(store.Store, testLogger())

	req = httptest.NewRequest(http.MethodGet, "/api/v1/onboarding?user_id=user-1", nil)
	rec = httptest.NewRecorder()
	get.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var got onboardingResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	assert.Equal(t, "EvcPlus", got.AccountType)
	assert.Equal(t, "252611234567", got.Number)
}

func TestHandleSaveOnboarding_DB_RejectsCryptoType(t *testing.T) {
	db.SkipIfNoTestDB(t)

	store := db.NewTestStore(t)
	defer store.Close()
	defer store.Cleanup(t)

	handler := handleSaveOnboarding(store.Store, testLogger())

	body := `{"user_id": "user-1", "account_type": "USDT (BEP20)", "number": "611234567"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/onboarding", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleGetOnboarding_DB_NotFound(t *testing.T) {
	db.SkipIfNoTestDB(t)

	store := db.NewTestStore(t)
	defer store.Close()
	defer store.Cleanup(t)

	handler := handleGetOnboarding(store.Store, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/onboarding?user_id=nobody", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
