package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubmitSwap_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "POST", r.Method)
		assert.Equal(t, "/api/v1/swaps", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body map[string]interface{}
		err := json.NewDecoder(r.Body).Decode(&body)
		require.NoError(t, err)

		assert.Equal(t, "user-1", body["user_id"])
		assert.Equal(t, "100", body["send_amount"])
		assert.Equal(t, "EvcPlus", body["send_currency"])

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(SubmitSwapResult{
			SwapID:           "swap-id-1",
			WorkflowRunID:    "run-1",
			Direction:        "local_to_crypto",
			SendAmount:       "100",
			ServiceFee:       "2",
			NetReceiveAmount: "98",
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, nil, nil)
	result, err := client.SubmitSwap(context.Background(), SubmitSwapParams{
		UserID:          "user-1",
		SendAmount:      "100",
		SendCurrency:    "EvcPlus",
		ReceiveCurrency: "USDT (BEP20)",
	})
	require.NoError(t, err)
	assert.Equal(t, "swap-id-1", result.SwapID)
	assert.Equal(t, "98", result.NetReceiveAmount)
}

func TestSubmitSwap_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{
			"error": "send_amount must be positive",
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, nil, nil)
	_, err := client.SubmitSwap(context.Background(), SubmitSwapParams{
		UserID:          "user-1",
		SendAmount:      "-5",
		SendCurrency:    "EvcPlus",
		ReceiveCurrency: "Zaad",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "send_amount must be positive")
}

func TestGetSwap_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "GET", r.Method)
		assert.Equal(t, "/api/v1/swaps/swap-id-1", r.URL.Path)

		outcome := "completed"
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(Swap{
			ID:        "swap-id-1",
			UserID:    "user-1",
			Direction: "local_to_crypto",
			Step:      "finalizing",
			Outcome:   &outcome,
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, nil, nil)
	swap, err := client.GetSwap(context.Background(), "swap-id-1")
	require.NoError(t, err)
	assert.Equal(t, "swap-id-1", swap.ID)
	require.NotNil(t, swap.Outcome)
	assert.Equal(t, "completed", *swap.Outcome)
}

func TestGetSwap_NotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"error": "swap not found"})
	}))
	defer server.Close()

	client := NewClient(server.URL, nil, nil)
	_, err := client.GetSwap(context.Background(), "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "swap not found")
}

func TestListSwaps_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/swaps", r.URL.Path)
		assert.Equal(t, "user-1", r.URL.Query().Get("user_id"))
		assert.Equal(t, "10", r.URL.Query().Get("limit"))

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode([]Swap{
			{ID: "a", UserID: "user-1"},
			{ID: "b", UserID: "user-1"},
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, nil, nil)
	swaps, err := client.ListSwaps(context.Background(), "user-1", 10)
	require.NoError(t, err)
	assert.Len(t, swaps, 2)
}

func TestGetQuote_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/quote", r.URL.Path)
		assert.Equal(t, "100", r.URL.Query().Get("send_amount"))
		assert.Equal(t, "EvcPlus", r.URL.Query().Get("send_currency"))

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(Quote{
			SendAmount:       "100",
			Direction:        "local_to_local",
			ServiceFeeRate:   "0.011",
			ServiceFee:       "1.1",
			NetReceiveAmount: "98.9",
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, nil, nil)
	quote, err := client.GetQuote(context.Background(), "100", "EvcPlus", "Zaad")
	require.NoError(t, err)
	assert.Equal(t, "98.9", quote.NetReceiveAmount)
}

func TestUpsertAccount_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "POST", r.Method)
		assert.Equal(t, "/api/v1/accounts", r.URL.Path)

		number := "252611234567"
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(Account{
			ID:     "acct-1",
			UserID: "user-1",
			Label:  "EvcPlus",
			Kind:   "local",
			Number: &number,
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, nil, nil)
	account, err := client.UpsertAccount(context.Background(), UpsertAccountParams{
		UserID: "user-1",
		Label:  "EvcPlus",
		Number: "611234567",
	})
	require.NoError(t, err)
	assert.Equal(t, "local", account.Kind)
	require.NotNil(t, account.Number)
	assert.Equal(t, "252611234567", *account.Number)
}

func TestDeleteAccount_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "DELETE", r.Method)
		assert.Equal(t, "/api/v1/accounts/Zaad", r.URL.Path)
		assert.Equal(t, "user-1", r.URL.Query().Get("user_id"))

		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client := NewClient(server.URL, nil, nil)
	err := client.DeleteAccount(context.Background(), "user-1", "Zaad")
	assert.NoError(t, err)
}

func TestAwaitSwap_ResolvesWhenOutcomeSet(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)

		swap := Swap{ID: "swap-id-1", Step: "withdrawing"}
		if n >= 3 {
			outcome := "completed"
			swap.Outcome = &outcome
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(swap)
	}))
	defer server.Close()

	client := NewClient(server.URL, nil, nil)
	swap, err := client.AwaitSwap(context.Background(), "swap-id-1", AwaitOptions{
		PollInterval: 10 * time.Millisecond,
		Timeout:      5 * time.Second,
	})
	require.NoError(t, err)
	require.NotNil(t, swap.Outcome)
	assert.Equal(t, "completed", *swap.Outcome)
	assert.GreaterOrEqual(t, calls.Load(), int32(3))
}

func TestAwaitSwap_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(Swap{ID: "swap-id-1", Step: "verifying_chain"})
	}))
	defer server.Close()

	client := NewClient(server.URL, nil, nil)
	_, err := client.AwaitSwap(context.Background(), "swap-id-1", AwaitOptions{
		PollInterval: 10 * time.Millisecond,
		Timeout:      50 * time.Millisecond,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAwaitTimeout)
}
