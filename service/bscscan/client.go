// Package bscscan queries the public BSCScan token-transfer index to verify
// that a USDT BEP20 transfer landed on-chain. This is the only component in
// the system that retries: non-receipt may self-resolve while a transfer
// confirms, so VerifyReceived polls a bounded number of attempts.
package bscscan

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	// USDTBEP20Contract is the USDT token contract on BNB Smart Chain.
	USDTBEP20Contract = "0x55d398326f99059fF775485246999027B3197955"

	// usdtDecimals: USDT uses 18 decimals on BSC.
	usdtDecimals = 18

	// transferPageSize is how many recent transfers one query scans.
	transferPageSize = 50

	// DefaultMaxAttempts and DefaultRetryDelay bound the verification wait:
	// worst case two sleeps of 15s between three queries.
	DefaultMaxAttempts = 3
	DefaultRetryDelay  = 15 * time.Second
)

// amountTolerance absorbs rounding between the quoted amount and the
// on-chain value, in whole token units.
var amountTolerance = decimal.NewFromFloat(0.001)

// Config holds the index endpoint and optional API key.
type Config struct {
	BaseURL string
	APIKey  string
}

// Client is a read-only client over the transfer index.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates an index client. A nil httpClient gets a 30s timeout
// default; a nil logger discards output.
func NewClient(cfg Config, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Client{cfg: cfg, httpClient: httpClient, logger: logger}
}

// TokenTransfer is one row from the index. Value is an integer string in the
// token's smallest unit.
type TokenTransfer struct {
	BlockNumber     string `json:"blockNumber"`
	TimeStamp       string `json:"timeStamp"`
	Hash            string `json:"hash"`
	From            string `json:"from"`
	To              string `json:"to"`
	Value           string `json:"value"`
	ContractAddress string `json:"contractAddress"`
	TokenDecimal    string `json:"tokenDecimal"`
	TokenSymbol     string `json:"tokenSymbol"`
}

type indexResponse struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

// The index signals "nothing found" through status 0 plus one of these
// messages; that is a valid empty answer, not an error.
var noResultMessages = map[string]struct{}{
	"No transactions found": {},
	"NOTOK":                 {},
	"No records found":      {},
}

// TokenTransfers returns the most recent token transfers touching address for
// the given token contract, newest first.
func (c *Client) TokenTransfers(ctx context.Context, address, contractAddress string) ([]TokenTransfer, error) {
	params := url.Values{}
	params.Set("module", "account")
	params.Set("action", "tokentx")
	params.Set("address", address)
	params.Set("contractaddress", contractAddress)
	params.Set("page", "1")
	params.Set("offset", strconv.Itoa(transferPageSize))
	params.Set("sort", "desc")
	if c.cfg.APIKey != "" {
		params.Set("apikey", c.cfg.APIKey)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("bscscan: unexpected status %d", resp.StatusCode)
	}

	var out indexResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	if out.Status != "1" {
		if _, ok := noResultMessages[strings.TrimSpace(out.Message)]; ok {
			return nil, nil
		}
		return nil, fmt.Errorf("bscscan: %s", out.Message)
	}

	var transfers []TokenTransfer
	if err := json.Unmarshal(out.Result, &transfers); err != nil {
		return nil, fmt.Errorf("failed to decode transfer list: %w", err)
	}
	return transfers, nil
}

// VerifyParams describes a verification request: did fromAddress send at
// least ExpectedAmount USDT to SystemAddress?
type VerifyParams struct {
	SystemAddress  string
	FromAddress    string
	ExpectedAmount decimal.Decimal
	MaxAttempts    int           // defaults to DefaultMaxAttempts
	RetryDelay     time.Duration // defaults to DefaultRetryDelay
}

// VerifyResult reports the outcome of a verification.
type VerifyResult struct {
	Found       bool
	TxHash      string
	BlockNumber string
	Value       string
	Attempts    int
}

// VerifyReceived scans recent incoming transfers for one from FromAddress to
// SystemAddress worth at least ExpectedAmount minus a small tolerance,
// retrying up to MaxAttempts with RetryDelay between attempts. Address
// comparison is case-insensitive. Only transport/protocol errors from the
// index are returned as errors; exhausting attempts returns Found=false.
func (c *Client) VerifyReceived(ctx context.Context, params VerifyParams) (*VerifyResult, error) {
	if params.MaxAttempts <= 0 {
		params.MaxAttempts = DefaultMaxAttempts
	}
	if params.RetryDelay <= 0 {
		params.RetryDelay = DefaultRetryDelay
	}

	minValue := minSmallestUnit(params.ExpectedAmount)
	systemLower := strings.ToLower(params.SystemAddress)
	fromLower := strings.ToLower(params.FromAddress)

	for attempt := 1; attempt <= params.MaxAttempts; attempt++ {
		c.logger.Debug("verifying on-chain transfer",
			"attempt", attempt,
			"max_attempts", params.MaxAttempts,
			"from", fromLower,
			"to", systemLower,
		)

		transfers, err := c.TokenTransfers(ctx, params.SystemAddress, USDTBEP20Contract)
		if err != nil {
			return nil, err
		}

		for _, tx := range transfers {
			if strings.ToLower(tx.To) != systemLower || strings.ToLower(tx.From) != fromLower {
				continue
			}
			value, ok := new(big.Int).SetString(tx.Value, 10)
			if !ok {
				continue
			}
			if value.Cmp(minValue) >= 0 {
				c.logger.Info("transfer verified on-chain",
					"tx_hash", tx.Hash,
					"value", tx.Value,
					"attempt", attempt,
				)
				return &VerifyResult{
					Found:       true,
					TxHash:      tx.Hash,
					BlockNumber: tx.BlockNumber,
					Value:       tx.Value,
					Attempts:    attempt,
				}, nil
			}
		}

		if attempt < params.MaxAttempts {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(params.RetryDelay):
			}
		}
	}

	c.logger.Info("transfer not found after all attempts",
		"attempts", params.MaxAttempts,
		"expected_amount", params.ExpectedAmount.String(),
	)
	return &VerifyResult{Found: false, Attempts: params.MaxAttempts}, nil
}

// minSmallestUnit converts the expected amount, minus the tolerance, into the
// token's smallest unit.
func minSmallestUnit(expected decimal.Decimal) *big.Int {
	min := expected.Sub(amountTolerance)
	if min.Sign() < 0 {
		min = decimal.Zero
	}
	return min.Shift(usdtDecimals).BigInt()
}
