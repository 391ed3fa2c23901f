// Package client is the HTTP client for the taran swap service API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

// ErrAwaitTimeout is returned by AwaitSwap when the swap does not reach a
// terminal outcome within the polling window.
var ErrAwaitTimeout = errors.New("timed out waiting for swap outcome")

// Swap is one swap as reported by the server. Amounts are decimal strings;
// the client does not do arithmetic on them.
type Swap struct {
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

// Transaction is one settled history row.
type Transaction struct {
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

// Quote is a fee breakdown for a proposed swap.
type Quote struct {
	SendAmount       string `json:"send_amount"`
	SendCurrency     string `json:"send_currency"`
	ReceiveCurrency  string `json:"receive_currency"`
	Direction        string `json:"direction"`
	ServiceFeeRate   string `json:"service_fee_rate"`
	ServiceFee       string `json:"service_fee"`
	NetReceiveAmount string `json:"net_receive_amount"`
}

// Currency is one entry in the server's supported-currency listing.
type Currency struct {
	Symbol  string `json:"symbol"`
	Class   string `json:"class"`
	Network string `json:"network,omitempty"`
}

// Account is one entry in a user's account book.
type Account struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Label     string    `json:"label"`
	Kind      string    `json:"kind"`
	Number    *string   `json:"number,omitempty"`
	Address   *string   `json:"address,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SubmitSwapParams are the inputs for starting a swap.
type SubmitSwapParams struct {
	UserID          string `json:"user_id"`
	SendAmount      string `json:"send_amount"`
	SendCurrency    string `json:"send_currency"`
	ReceiveCurrency string `json:"receive_currency"`
}

// SubmitSwapResult is returned once the swap saga has been started.
type SubmitSwapResult struct {
	SwapID           string `json:"swap_id"`
	WorkflowRunID    string `json:"workflow_run_id"`
	Direction        string `json:"direction"`
	SendAmount       string `json:"send_amount"`
	ServiceFee       string `json:"service_fee"`
	NetReceiveAmount string `json:"net_receive_amount"`
}

// Client is the HTTP client for the taran swap service.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a new swap service client.
func NewClient(baseURL string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     logger,
	}
}

// SubmitSwap starts a swap saga. The swap runs asynchronously; poll GetSwap
// or use AwaitSwap for the outcome.
func (c *Client) SubmitSwap(ctx context.Context, params SubmitSwapParams) (*SubmitSwapResult, error) {
	body, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/api/v1/swaps", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		return nil, c.parseErrorResponse(resp)
	}

	var result SubmitSwapResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	c.logger.Debug("swap submitted", "swap_id", result.SwapID, "direction", result.Direction)
	return &result, nil
}

// GetSwap retrieves a single swap by id.
func (c *Client) GetSwap(ctx context.Context, swapID string) (*Swap, error) {
	u := fmt.Sprintf("%s/api/v1/swaps/%s", c.baseURL, url.PathEscape(swapID))
	req, err := http.NewRequestWithContext(ctx, "GET", u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.parseErrorResponse(resp)
	}

	var swap Swap
	if err := json.NewDecoder(resp.Body).Decode(&swap); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &swap, nil
}

// ListSwaps retrieves a user's swaps, newest first.
func (c *Client) ListSwaps(ctx context.Context, userID string, limit int) ([]*Swap, error) {
	q := url.Values{}
	q.Set("user_id", userID)
	if limit > 0 {
		q.Set("limit", fmt.Sprintf("%d", limit))
	}

	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/api/v1/swaps?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.parseErrorResponse(resp)
	}

	var swaps []*Swap
	if err := json.NewDecoder(resp.Body).Decode(&swaps); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return swaps, nil
}

// ListTransactions retrieves a user's settled history, newest first.
func (c *Client) ListTransactions(ctx context.Context, userID string, limit int) ([]*Transaction, error) {
	q := url.Values{}
	q.Set("user_id", userID)
	if limit > 0 {
		q.Set("limit", fmt.Sprintf("%d", limit))
	}

	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/api/v1/transactions?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.parseErrorResponse(resp)
	}

	var txns []*Transaction
	if err := json.NewDecoder(resp.Body).Decode(&txns); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return txns, nil
}

// GetQuote computes the fee breakdown for a proposed swap without starting one.
func (c *Client) GetQuote(ctx context.Context, sendAmount, sendCurrency, receiveCurrency string) (*Quote, error) {
	q := url.Values{}
	q.Set("send_amount", sendAmount)
	q.Set("send_currency", sendCurrency)
	q.Set("receive_currency", receiveCurrency)

	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/api/v1/quote?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.parseErrorResponse(resp)
	}

	var quote Quote
	if err := json.NewDecoder(resp.Body).Decode(&quote); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &quote, nil
}

// ListCurrencies retrieves the server's supported-currency registry.
func (c *Client) ListCurrencies(ctx context.Context) ([]*Currency, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/api/v1/currencies", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.parseErrorResponse(resp)
	}

	var currencies []*Currency
	if err := json.NewDecoder(resp.Body).Decode(&currencies); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return currencies, nil
}

// UpsertAccountParams are the inputs for adding an account book entry.
type UpsertAccountParams struct {
	UserID  string `json:"user_id"`
	Label   string `json:"label"`
	Number  string `json:"number,omitempty"`
	Address string `json:"address,omitempty"`
}

// UpsertAccount adds or replaces an account book entry.
func (c *Client) UpsertAccount(ctx context.Context, params UpsertAccountParams) (*Account, error) {
	body, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/api/v1/accounts", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.parseErrorResponse(resp)
	}

	var account Account
	if err := json.NewDecoder(resp.Body).Decode(&account); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	c.logger.Debug("account saved", "label", account.Label, "kind", account.Kind)
	return &account, nil
}

// ListAccounts retrieves a user's account book.
func (c *Client) ListAccounts(ctx context.Context, userID string) ([]*Account, error) {
	q := url.Values{}
	q.Set("user_id", userID)

	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/api/v1/accounts?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.parseErrorResponse(resp)
	}

	var accounts []*Account
	if err := json.NewDecoder(resp.Body).Decode(&accounts); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return accounts, nil
}

// DeleteAccount removes an account book entry by label.
func (c *Client) DeleteAccount(ctx context.Context, userID, label string) error {
	q := url.Values{}
	q.Set("user_id", userID)

	u := fmt.Sprintf("%s/api/v1/accounts/%s?%s", c.baseURL, url.PathEscape(label), q.Encode())
	req, err := http.NewRequestWithContext(ctx, "DELETE", u, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		return c.parseErrorResponse(resp)
	}

	c.logger.Debug("account deleted", "label", label)
	return nil
}

// WithdrawStatus is the exchange-side status of a crypto withdrawal.
type WithdrawStatus struct {
	WithdrawID string `json:"withdraw_id"`
	Status     int    `json:"status"`
	TxHash     string `json:"tx_hash,omitempty"`
}

// GetWithdrawStatus retrieves the exchange-side status of a withdrawal.
func (c *Client) GetWithdrawStatus(ctx context.Context, withdrawID string) (*WithdrawStatus, error) {
	u := fmt.Sprintf("%s/api/v1/withdrawals/%s", c.baseURL, url.PathEscape(withdrawID))
	req, err := http.NewRequestWithContext(ctx, "GET", u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.parseErrorResponse(resp)
	}

	var status WithdrawStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &status, nil
}

// AwaitOptions control how AwaitSwap polls for a terminal outcome.
type AwaitOptions struct {
	// PollInterval between GetSwap calls. Defaults to 2s.
	PollInterval time.Duration
	// Timeout for the whole wait. Defaults to 5m.
	Timeout time.Duration
}

// AwaitSwap polls the server until the swap reaches a terminal outcome
// (completed or rejected) and returns the final swap.
func (c *Client) AwaitSwap(ctx context.Context, swapID string, opts AwaitOptions) (*Swap, error) {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 2 * time.Second
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Minute
	}

	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	ticker := time.NewTicker(opts.PollInterval)
	defer ticker.Stop()

	for {
		swap, err := c.GetSwap(ctx, swapID)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ErrAwaitTimeout
			}
			return nil, err
		}
		if swap.Outcome != nil {
			return swap, nil
		}

		select {
		case <-ctx.Done():
			return nil, ErrAwaitTimeout
		case <-ticker.C:
		}
	}
}

// parseErrorResponse attempts to parse an error response from the server.
func (c *Client) parseErrorResponse(resp *http.Response) error {
	var errResp struct {
		Error string `json:"error"`
	}

	body, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error == "" {
		return fmt.Errorf("request failed with status %d: %s", resp.StatusCode, string(body))
	}

	return fmt.Errorf("request failed: %s", errResp.Error)
}
