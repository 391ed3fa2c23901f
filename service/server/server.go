package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/taranswap/taran/service/binance"
	"github.com/taranswap/taran/service/db"
	"github.com/taranswap/taran/service/metrics"
	"github.com/taranswap/taran/service/temporal"
)

// SwapOrchestrator starts swap sagas. Satisfied by *temporal.Client; narrow
// so handlers can be tested without a Temporal server.
type SwapOrchestrator interface {
	StartSwap(ctx context.Context, input temporal.SwapWorkflowInput) (string, error)
}

// ExchangeStatusClient looks up withdrawal status at the exchange.
// Satisfied by *binance.Client.
type ExchangeStatusClient interface {
	GetWithdrawStatus(ctx context.Context, withdrawID string) (*binance.WithdrawStatus, error)
}

// Server represents the HTTP server for the swap service.
type Server struct {
	addr         string
	store        *db.Store
	orchestrator SwapOrchestrator
	exchange     ExchangeStatusClient
	metrics      *metrics.Metrics
	logger       *slog.Logger
	server       *http.Server
}

// New creates a new HTTP server with the given dependencies.
// The orchestrator starts swap workflows; the exchange client is used for
// withdrawal status lookups. The metrics is optional - if nil, the metrics
// endpoint won't be available.
func New(addr string, store *db.Store, orchestrator SwapOrchestrator, exchange ExchangeStatusClient, m *metrics.Metrics, logger *slog.Logger) *Server {
	return &Server{
		addr:         addr,
		store:        store,
		orchestrator: orchestrator,
		exchange:     exchange,
		metrics:      m,
		logger:       logger,
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	mux := http.NewServeMux()

	// Swap routes
	mux.Handle("POST /api/v1/swaps", s.instrument("/api/v1/swaps",
		handleSubmitSwap(s.orchestrator, s.metrics, s.logger)))
	mux.Handle("GET /api/v1/swaps/{id}", s.instrument("/api/v1/swaps/{id}",
		handleGetSwap(s.store, s.logger)))
	mux.Handle("GET /api/v1/swaps", s.instrument("/api/v1/swaps",
		handleListSwaps(s.store, s.logger)))
	mux.Handle("GET /api/v1/transactions", s.instrument("/api/v1/transactions",
		handleListTransactions(s.store, s.logger)))

	// Quote and currency routes
	mux.Handle("GET /api/v1/quote", s.instrument("/api/v1/quote",
		handleGetQuote(s.logger)))
	mux.Handle("GET /api/v1/currencies", s.instrument("/api/v1/currencies",
		handleListCurrencies()))

	// Account book routes
	mux.Handle("POST /api/v1/accounts", s.instrument("/api/v1/accounts",
		handleUpsertAccount(s.store, s.logger)))
	mux.Handle("GET /api/v1/accounts", s.instrument("/api/v1/accounts",
		handleListAccounts(s.store, s.logger)))
	mux.Handle("DELETE /api/v1/accounts/{label}", s.instrument("/api/v1/accounts/{label}",
		handleDeleteAccount(s.store, s.logger)))

	// Onboarding routes
	mux.Handle("POST /api/v1/onboarding", s.instrument("/api/v1/onboarding",
		handleSaveOnboarding(s.store, s.logger)))
	mux.Handle("GET /api/v1/onboarding", s.instrument("/api/v1/onboarding",
		handleGetOnboarding(s.store, s.logger)))

	// Withdrawal status route
	mux.Handle("GET /api/v1/withdrawals/{id}", s.instrument("/api/v1/withdrawals/{id}",
		handleGetWithdrawStatus(s.exchange, s.logger)))

	// Health check endpoint
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Prometheus metrics endpoint (if metrics collector is configured)
	if s.metrics != nil {
		mux.Handle("GET /metrics", promhttp.Handler())
		s.logger.Info("Prometheus metrics endpoint enabled")
	}

	// Wrap mux with CORS middleware
	handler := corsMiddleware(mux)

	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("starting HTTP server", "addr", s.addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}

	return nil
}

// instrument wraps a handler with HTTP metrics when metrics are configured.
func (s *Server) instrument(name string, h http.Handler) http.Handler {
	if s.metrics == nil {
		return h
	}
	return metrics.HTTPMetricsMiddleware(s.metrics, name)(h)
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")

	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// corsMiddleware adds CORS headers to all responses and handles OPTIONS preflight requests.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "3600")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
