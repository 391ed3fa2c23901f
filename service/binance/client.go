// Package binance is a client for the exchange withdrawal API. Requests are
// authenticated with an API-key header and an HMAC-SHA256 signature computed
// over the canonical query string.
package binance

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

const (
	withdrawApplyPath   = "/sapi/v1/capital/withdraw/apply"
	withdrawHistoryPath = "/sapi/v1/capital/withdraw/history"

	apiKeyHeader = "X-MBX-APIKEY"

	// DefaultCoin is the only asset this system withdraws.
	DefaultCoin = "USDT"
)

// Config holds the exchange API credentials and endpoint.
type Config struct {
	APIKey    string
	APISecret string
	BaseURL   string
}

// Client is the exchange withdrawal client. Withdrawals are asynchronous at
// the exchange side: an accepted request carries an id but no settlement
// guarantee.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *slog.Logger
	now        func() time.Time // test seam for signature timestamps
}

// NewClient creates an exchange client. A nil httpClient gets a 30s timeout
// default; a nil logger discards output.
func NewClient(cfg Config, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Client{cfg: cfg, httpClient: httpClient, logger: logger, now: time.Now}
}

// WithdrawParams describes a withdraw-to-address request.
type WithdrawParams struct {
	Coin    string
	Network string
	Address string
	Amount  decimal.Decimal
	Name    string // optional label shown in the exchange UI
}

// WithdrawResult is the exchange's acknowledgement of a withdrawal request.
type WithdrawResult struct {
	ID      string
	Status  string
	Coin    string
	Network string
	Address string
	Amount  decimal.Decimal
	TxID    string
}

type withdrawResponse struct {
	ID   string `json:"id"`
	TxID string `json:"txId"`
}

// APIError is a well-formed refusal from the exchange: the HTTP exchange
// worked but the request was declined. Distinct from transport errors so
// callers can avoid pointless retries.
type APIError struct {
	Code int64  `json:"code"`
	Msg  string `json:"msg"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("binance api error: %s (code %d)", e.Msg, e.Code)
}

// Withdraw submits a withdraw-to-address request. The returned id means the
// exchange accepted the request, nothing more; a missing id is a hard
// failure.
func (c *Client) Withdraw(ctx context.Context, params WithdrawParams) (*WithdrawResult, error) {
	if params.Coin == "" {
		params.Coin = DefaultCoin
	}
	if err := ValidateAddress(params.Network, params.Address); err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("coin", params.Coin)
	q.Set("network", params.Network)
	q.Set("address", params.Address)
	q.Set("amount", params.Amount.String())
	if params.Name != "" {
		q.Set("name", params.Name)
	}

	body, err := c.signedRequest(ctx, http.MethodPost, withdrawApplyPath, q)
	if err != nil {
		return nil, err
	}

	var resp withdrawResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode withdraw response: %w", err)
	}
	if resp.ID == "" {
		return nil, fmt.Errorf("binance: withdraw response missing id")
	}

	c.logger.Info("withdrawal accepted",
		"id", resp.ID,
		"coin", params.Coin,
		"network", params.Network,
		"amount", params.Amount.String(),
	)

	return &WithdrawResult{
		ID:      resp.ID,
		Status:  "processing",
		Coin:    params.Coin,
		Network: params.Network,
		Address: params.Address,
		Amount:  params.Amount,
		TxID:    resp.TxID,
	}, nil
}

// WithdrawStatus looks up a prior withdrawal in the exchange's history.
type WithdrawStatus struct {
	ID     string `json:"id"`
	Status int    `json:"status"`
	TxID   string `json:"txId"`
}

// GetWithdrawStatus returns the exchange-side status of a withdrawal by id.
func (c *Client) GetWithdrawStatus(ctx context.Context, withdrawID string) (*WithdrawStatus, error) {
	body, err := c.signedRequest(ctx, http.MethodGet, withdrawHistoryPath, url.Values{})
	if err != nil {
		return nil, err
	}

	var history []WithdrawStatus
	if err := json.Unmarshal(body, &history); err != nil {
		return nil, fmt.Errorf("failed to decode withdraw history: %w", err)
	}

	for i := range history {
		if history[i].ID == withdrawID {
			return &history[i], nil
		}
	}
	return nil, fmt.Errorf("binance: withdrawal %s not found in history", withdrawID)
}

// signedRequest appends the timestamp and HMAC signature to the query,
// executes the request, and returns the raw body for 2xx responses.
func (c *Client) signedRequest(ctx context.Context, method, path string, q url.Values) ([]byte, error) {
	q.Set("timestamp", strconv.FormatInt(c.now().UnixMilli(), 10))
	queryString := q.Encode()
	signature := c.sign(queryString)

	u := fmt.Sprintf("%s%s?%s&signature=%s", c.cfg.BaseURL, path, queryString, signature)

	req, err := http.NewRequestWithContext(ctx, method, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set(apiKeyHeader, c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr APIError
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Msg != "" {
			return nil, &apiErr
		}
		return nil, fmt.Errorf("binance: unexpected status %d", resp.StatusCode)
	}

	return body, nil
}

func (c *Client) sign(queryString string) string {
	mac := hmac.New(sha256.New, []byte(c.cfg.APISecret))
	mac.Write([]byte(queryString))
	return hex.EncodeToString(mac.Sum(nil))
}
