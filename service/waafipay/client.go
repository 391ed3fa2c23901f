// Package waafipay is a client for the WaafiPay preauthorization API. All
// three operations (preauthorize, commit, cancel) go to the same /asm
// endpoint and are discriminated by the serviceName field. Credentials
// travel in the request body; there is no cryptographic signature.
package waafipay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	schemaVersion = "1.0"
	channelName   = "WEB"
	paymentMethod = "MWALLET_ACCOUNT"
	wireCurrency  = "USD"

	servicePreAuthorize = "API_PREAUTHORIZE"
	serviceCommit       = "API_PREAUTHORIZE_COMMIT"
	serviceCancel       = "API_PREAUTHORIZE_CANCEL"

	// CodeSuccess is the only response code that means the operation was
	// accepted by the gateway.
	CodeSuccess = "2001"

	// CodeInsufficientBalance means the payer account cannot cover the
	// amount. Surfaced distinctly so callers can show a useful message.
	CodeInsufficientBalance = "5206"
)

// Config holds the merchant credentials and endpoint for the gateway.
type Config struct {
	MerchantUID string
	APIUserID   string
	APIKey      string
	BaseURL     string
}

// Client is the WaafiPay HTTP client. It never retries; retry policy belongs
// to the orchestrator, and a retried preauthorize must carry a fresh
// reference id.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a gateway client. A nil httpClient gets a 30s timeout
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

type request struct {
	SchemaVersion string        `json:"schemaVersion"`
	RequestID     string        `json:"requestId"`
	Timestamp     string        `json:"timestamp"`
	ChannelName   string        `json:"channelName"`
	ServiceName   string        `json:"serviceName"`
	ServiceParams serviceParams `json:"serviceParams"`
}

type serviceParams struct {
	MerchantUID   string    `json:"merchantUid"`
	APIUserID     string    `json:"apiUserId"`
	APIKey        string    `json:"apiKey"`
	PaymentMethod string    `json:"paymentMethod,omitempty"`
	PayerInfo     *payer    `json:"payerInfo,omitempty"`
	TransactionID string    `json:"transactionId,omitempty"`
	Description   string    `json:"description,omitempty"`
	Transaction   *txnInfo  `json:"transactionInfo,omitempty"`
}

type payer struct {
	AccountNo string `json:"accountNo"`
}

type txnInfo struct {
	ReferenceID string  `json:"referenceId"`
	InvoiceID   string  `json:"invoiceId"`
	Amount      float64 `json:"amount"`
	Currency    string  `json:"currency"`
	Description string  `json:"description"`
}

// ResponseParams carries the gateway's transaction handles.
type ResponseParams struct {
	State         string `json:"state"`
	TransactionID string `json:"transactionId"`
	ReferenceID   string `json:"referenceId"`
}

// Response is the common shape returned by all three operations.
type Response struct {
	ResponseCode string          `json:"responseCode"`
	ResponseMsg  string          `json:"responseMsg"`
	Params       *ResponseParams `json:"params,omitempty"`
}

// Succeeded reports whether the gateway accepted the operation.
func (r *Response) Succeeded() bool {
	return r.ResponseCode == CodeSuccess
}

// TransactionID returns the transaction handle, or empty if absent.
func (r *Response) TransactionID() string {
	if r.Params == nil {
		return ""
	}
	return r.Params.TransactionID
}

// ResponseError is a well-formed gateway refusal: the HTTP exchange worked
// but the operation was declined. Distinct from transport errors so the
// orchestrator can pass the provider's message through to the user.
type ResponseError struct {
	Code string
	Msg  string
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("waafipay: %s (code %s)", e.Msg, e.Code)
}

// InsufficientBalance reports whether the refusal was the known
// insufficient-balance code.
func (e *ResponseError) InsufficientBalance() bool {
	return e.Code == CodeInsufficientBalance
}

// BusinessError returns a *ResponseError when the response is a refusal,
// nil when it succeeded.
func (r *Response) BusinessError() *ResponseError {
	if r.Succeeded() {
		return nil
	}
	msg := r.ResponseMsg
	if msg == "" {
		msg = "operation refused"
	}
	return &ResponseError{Code: r.ResponseCode, Msg: msg}
}

// PreAuthorize reserves funds against a mobile-money account. Each call
// creates a new reservation at the gateway, so callers must supply a fresh
// referenceID per attempt.
func (c *Client) PreAuthorize(ctx context.Context, accountNo string, amount decimal.Decimal, referenceID, description string) (*Response, error) {
	req := request{
		SchemaVersion: schemaVersion,
		RequestID:     newRequestID(),
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		ChannelName:   channelName,
		ServiceName:   servicePreAuthorize,
		ServiceParams: serviceParams{
			MerchantUID:   c.cfg.MerchantUID,
			APIUserID:     c.cfg.APIUserID,
			APIKey:        c.cfg.APIKey,
			PaymentMethod: paymentMethod,
			PayerInfo:     &payer{AccountNo: accountNo},
			Transaction: &txnInfo{
				ReferenceID: referenceID,
				InvoiceID:   newInvoiceID(),
				Amount:      amount.InexactFloat64(),
				Currency:    wireCurrency,
				Description: description,
			},
		},
	}

	c.logger.Debug("waafipay preauthorize",
		"account", accountNo,
		"amount", amount.String(),
		"reference_id", referenceID,
	)

	return c.do(ctx, req)
}

// Commit finalizes a previously reserved transaction. transactionID must come
// from a successful PreAuthorize.
func (c *Client) Commit(ctx context.Context, transactionID, description string) (*Response, error) {
	req := request{
		SchemaVersion: schemaVersion,
		RequestID:     newRequestID(),
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		ChannelName:   channelName,
		ServiceName:   serviceCommit,
		ServiceParams: serviceParams{
			MerchantUID:   c.cfg.MerchantUID,
			APIUserID:     c.cfg.APIUserID,
			APIKey:        c.cfg.APIKey,
			TransactionID: transactionID,
			Description:   description,
		},
	}

	c.logger.Debug("waafipay commit", "transaction_id", transactionID)

	return c.do(ctx, req)
}

// Cancel releases a reservation. Safe to call after the transaction was
// already finalized or cancelled; the gateway returns a refusal code which
// callers treat as best-effort.
func (c *Client) Cancel(ctx context.Context, transactionID, description string) (*Response, error) {
	req := request{
		SchemaVersion: schemaVersion,
		RequestID:     newRequestID(),
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		ChannelName:   channelName,
		ServiceName:   serviceCancel,
		ServiceParams: serviceParams{
			MerchantUID:   c.cfg.MerchantUID,
			APIUserID:     c.cfg.APIUserID,
			APIKey:        c.cfg.APIKey,
			TransactionID: transactionID,
			Description:   description,
		},
	}

	c.logger.Debug("waafipay cancel", "transaction_id", transactionID)

	return c.do(ctx, req)
}

func (c *Client) do(ctx context.Context, payload request) (*Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/asm", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("waafipay: unexpected status %d", resp.StatusCode)
	}

	var out Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	c.logger.Debug("waafipay response",
		"service", payload.ServiceName,
		"code", out.ResponseCode,
		"msg", out.ResponseMsg,
	)

	return &out, nil
}

func newRequestID() string {
	return "REQ_" + uuid.NewString()
}

func newInvoiceID() string {
	return "INV_" + uuid.NewString()
}
