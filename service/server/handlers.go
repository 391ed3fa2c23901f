package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/taranswap/taran/service/currency"
	"github.com/taranswap/taran/service/db"
	"github.com/taranswap/taran/service/fees"
	"github.com/taranswap/taran/service/metrics"
	"github.com/taranswap/taran/service/temporal"
)

const defaultListLimit = 50

// submitSwapRequest is the body for POST /api/v1/swaps.
type submitSwapRequest struct {
	UserID          string `json:"user_id"`
	SendAmount      string `json:"send_amount"`
	SendCurrency    string `json:"send_currency"`
	ReceiveCurrency string `json:"receive_currency"`
}

// submitSwapResponse is returned once the saga has been started. The swap is
// asynchronous; callers poll GET /api/v1/swaps/{id} for the outcome.
type submitSwapResponse struct {
	SwapID           string `json:"swap_id"`
	WorkflowRunID    string `json:"workflow_run_id"`
	Direction        string `json:"direction"`
	SendAmount       string `json:"send_amount"`
	ServiceFee       string `json:"service_fee"`
	NetReceiveAmount string `json:"net_receive_amount"`
}

// swapResponse is the JSON shape of a swap row.
type swapResponse struct {
	ID              string    `json:"id"`
	UserID          string    `json:"user_id"`
	Direction       string    `json:"direction"`
	SendAmount      string    `json:"send_amount"`
	SendCurrency    string    `json:"send_currency"`
	ReceiveAmount   string    `json:"receive_amount"`
	ReceiveCurrency string    `json:"receive_currency"`
	PayerRef        *string   `json:"payer_ref,omitempty"`
	PayeeRef        *string   `json:"payee_ref,omitempty"`
	Step            string    `json:"step"`
	Outcome         *string   `json:"outcome,omitempty"`
	FailureReason   *string   `json:"failure_reason,omitempty"`
	GatewayTxnID    *string   `json:"gateway_txn_id,omitempty"`
	WithdrawID      *string   `json:"withdraw_id,omitempty"`
	ChainTxHash     *string   `json:"chain_tx_hash,omitempty"`
	Compensated     bool      `json:"compensated"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func toSwapResponse(s *db.Swap) swapResponse {
	return swapResponse{
		ID:              s.ID,
		UserID:          s.UserID,
		Direction:       s.Direction,
		SendAmount:      s.SendAmount.String(),
		SendCurrency:    s.SendCurrency,
		ReceiveAmount:   s.ReceiveAmount.String(),
		ReceiveCurrency: s.ReceiveCurrency,
		PayerRef:        s.PayerRef,
		PayeeRef:        s.PayeeRef,
		Step:            s.Step,
		Outcome:         s.Outcome,
		FailureReason:   s.FailureReason,
		GatewayTxnID:    s.GatewayTxnID,
		WithdrawID:      s.WithdrawID,
		ChainTxHash:     s.ChainTxHash,
		Compensated:     s.Compensated,
		CreatedAt:       s.CreatedAt,
		UpdatedAt:       s.UpdatedAt,
	}
}

// transactionResponse is the JSON shape of a history row.
type transactionResponse struct {
	ID              string    `json:"id"`
	SwapID          string    `json:"swap_id"`
	UserID          string    `json:"user_id"`
	Direction       string    `json:"direction"`
	SendAmount      string    `json:"send_amount"`
	SendCurrency    string    `json:"send_currency"`
	ReceiveAmount   string    `json:"receive_amount"`
	ReceiveCurrency string    `json:"receive_currency"`
	ExternalRef     string    `json:"external_ref,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

func toTransactionResponse(t *db.Transaction) transactionResponse {
	return transactionResponse{
		ID:              t.ID,
		SwapID:          t.SwapID,
		UserID:          t.UserID,
		Direction:       t.Direction,
		SendAmount:      t.SendAmount.String(),
		SendCurrency:    t.SendCurrency,
		ReceiveAmount:   t.ReceiveAmount.String(),
		ReceiveCurrency: t.ReceiveCurrency,
		ExternalRef:     t.ExternalRef,
		CreatedAt:       t.CreatedAt,
	}
}

// handleSubmitSwap validates the request, quotes it, and starts the swap
// saga. Persistence happens inside the workflow, not here, so a submit that
// fails to reach Temporal leaves no partial row behind.
func handleSubmitSwap(orchestrator SwapOrchestrator, m *metrics.Metrics, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req submitSwapRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, "invalid request body", http.StatusBadRequest)
			return
		}

		if req.UserID == "" {
			writeError(w, "user_id is required", http.StatusBadRequest)
			return
		}
		if req.SendCurrency == "" || req.ReceiveCurrency == "" {
			writeError(w, "send_currency and receive_currency are required", http.StatusBadRequest)
			return
		}

		sendAmount, err := decimal.NewFromString(req.SendAmount)
		if err != nil {
			writeError(w, "send_amount must be a decimal number", http.StatusBadRequest)
			return
		}
		if sendAmount.Sign() <= 0 {
			writeError(w, "send_amount must be positive", http.StatusBadRequest)
			return
		}

		quote, err := fees.QuoteForSymbols(sendAmount, req.SendCurrency, req.ReceiveCurrency)
		if err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		swapID := uuid.New().String()
		input := temporal.SwapWorkflowInput{
			SwapID:          swapID,
			UserID:          req.UserID,
			SendAmount:      sendAmount,
			SendCurrency:    req.SendCurrency,
			ReceiveCurrency: req.ReceiveCurrency,
		}

		runID, err := orchestrator.StartSwap(r.Context(), input)
		if err != nil {
			logger.ErrorContext(r.Context(), "failed to start swap workflow",
				"swap_id", swapID,
				"error", err,
			)
			writeError(w, "failed to start swap", http.StatusInternalServerError)
			return
		}

		if m != nil {
			m.RecordSwapStarted(quote.Direction.String())
		}

		logger.InfoContext(r.Context(), "swap submitted",
			"swap_id", swapID,
			"user_id", req.UserID,
			"direction", quote.Direction.String(),
			"send_amount", sendAmount.String(),
		)

		writeJSON(w, submitSwapResponse{
			SwapID:           swapID,
			WorkflowRunID:    runID,
			Direction:        quote.Direction.String(),
			SendAmount:       quote.SendAmount.String(),
			ServiceFee:       quote.ServiceFee.String(),
			NetReceiveAmount: quote.NetReceiveAmount.String(),
		}, http.StatusAccepted)
	})
}

// handleGetSwap returns a single swap by id.
func handleGetSwap(store *db.Store, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")

		swap, err := store.GetSwap(r.Context(), id)
		if err != nil {
			if errors.Is(err, db.ErrSwapNotFound) {
				writeError(w, "swap not found", http.StatusNotFound)
				return
			}
			logger.ErrorContext(r.Context(), "failed to get swap", "swap_id", id, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		writeJSON(w, toSwapResponse(swap), http.StatusOK)
	})
}

// handleListSwaps returns a user's swaps, newest first.
func handleListSwaps(store *db.Store, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := r.URL.Query().Get("user_id")
		if userID == "" {
			writeError(w, "user_id query parameter is required", http.StatusBadRequest)
			return
		}
		limit, offset := parsePagination(r)

		swaps, err := store.ListSwaps(r.Context(), userID, limit, offset)
		if err != nil {
			logger.ErrorContext(r.Context(), "failed to list swaps", "user_id", userID, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		out := make([]swapResponse, 0, len(swaps))
		for _, s := range swaps {
			out = append(out, toSwapResponse(s))
		}
		writeJSON(w, out, http.StatusOK)
	})
}

// handleListTransactions returns a user's settled history, newest first.
func handleListTransactions(store *db.Store, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := r.URL.Query().Get("user_id")
		if userID == "" {
			writeError(w, "user_id query parameter is required", http.StatusBadRequest)
			return
		}
		limit, offset := parsePagination(r)

		txns, err := store.ListTransactions(r.Context(), userID, limit, offset)
		if err != nil {
			logger.ErrorContext(r.Context(), "failed to list transactions", "user_id", userID, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		out := make([]transactionResponse, 0, len(txns))
		for _, t := range txns {
			out = append(out, toTransactionResponse(t))
		}
		writeJSON(w, out, http.StatusOK)
	})
}

// quoteResponse is the JSON shape of a fee quote.
type quoteResponse struct {
	SendAmount       string `json:"send_amount"`
	SendCurrency     string `json:"send_currency"`
	ReceiveCurrency  string `json:"receive_currency"`
	Direction        string `json:"direction"`
	ServiceFeeRate   string `json:"service_fee_rate"`
	ServiceFee       string `json:"service_fee"`
	NetReceiveAmount string `json:"net_receive_amount"`
}

// handleGetQuote computes the fee breakdown for a proposed swap without
// starting one.
func handleGetQuote(logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		sendCurrency := q.Get("send_currency")
		receiveCurrency := q.Get("receive_currency")
		if sendCurrency == "" || receiveCurrency == "" {
			writeError(w, "send_currency and receive_currency query parameters are required", http.StatusBadRequest)
			return
		}

		sendAmount, err := decimal.NewFromString(q.Get("send_amount"))
		if err != nil {
			writeError(w, "send_amount must be a decimal number", http.StatusBadRequest)
			return
		}
		if sendAmount.Sign() <= 0 {
			writeError(w, "send_amount must be positive", http.StatusBadRequest)
			return
		}

		quote, err := fees.QuoteForSymbols(sendAmount, sendCurrency, receiveCurrency)
		if err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		writeJSON(w, quoteResponse{
			SendAmount:       quote.SendAmount.String(),
			SendCurrency:     sendCurrency,
			ReceiveCurrency:  receiveCurrency,
			Direction:        quote.Direction.String(),
			ServiceFeeRate:   quote.ServiceFeeRate.String(),
			ServiceFee:       quote.ServiceFee.String(),
			NetReceiveAmount: quote.NetReceiveAmount.String(),
		}, http.StatusOK)
	})
}

// currencyResponse is one entry in the supported-currency listing.
type currencyResponse struct {
	Symbol  string `json:"symbol"`
	Class   string `json:"class"`
	Network string `json:"network,omitempty"`
}

// handleListCurrencies returns the static currency registry.
func handleListCurrencies() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		symbols := currency.Symbols()
		out := make([]currencyResponse, 0, len(symbols))
		for _, sym := range symbols {
			c, _ := currency.Lookup(sym)
			out = append(out, currencyResponse{
				Symbol:  c.Symbol,
				Class:   c.Class.String(),
				Network: c.Network,
			})
		}
		writeJSON(w, out, http.StatusOK)
	})
}

// withdrawStatusResponse is the JSON shape of an exchange withdrawal status.
type withdrawStatusResponse struct {
	WithdrawID string `json:"withdraw_id"`
	Status     int    `json:"status"`
	TxHash     string `json:"tx_hash,omitempty"`
}

// handleGetWithdrawStatus proxies a withdrawal status lookup to the exchange.
func handleGetWithdrawStatus(exchange ExchangeStatusClient, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")

		status, err := exchange.GetWithdrawStatus(r.Context(), id)
		if err != nil {
			logger.ErrorContext(r.Context(), "failed to get withdrawal status", "withdraw_id", id, "error", err)
			writeError(w, "failed to get withdrawal status", http.StatusBadGateway)
			return
		}
		if status == nil {
			writeError(w, "withdrawal not found", http.StatusNotFound)
			return
		}

		writeJSON(w, withdrawStatusResponse{
			WithdrawID: status.ID,
			Status:     status.Status,
			TxHash:     status.TxID,
		}, http.StatusOK)
	})
}

// parsePagination reads limit/offset query parameters with sane bounds.
func parsePagination(r *http.Request) (limit, offset int32) {
	limit = defaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if v, err := strconv.ParseInt(raw, 10, 32); err == nil && v > 0 && v <= 500 {
			limit = int32(v)
		}
	}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		if v, err := strconv.ParseInt(raw, 10, 32); err == nil && v >= 0 {
			offset = int32(v)
		}
	}
	return limit, offset
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, data interface{}, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		// The status code is already on the wire; all that is left is to
		// make the failed body write visible.
		slog.Error("failed to encode response body", "error", err)
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, map[string]string{"error": message}, status)
}
