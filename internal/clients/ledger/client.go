// Package ledger provides a client for the external account ledger API.
package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/bobmcallan/accrue/internal/common"
	"github.com/bobmcallan/accrue/internal/interfaces"
	"github.com/bobmcallan/accrue/internal/models"
)

const (
	DefaultTimeout    = 15 * time.Second
	DefaultRateLimit  = 20 // requests per second
	DefaultMaxRetries = 3
)

// retryBackoff is the wait before the first retry; it doubles per attempt.
var retryBackoff = 200 * time.Millisecond

// Compile-time interface check
var _ interfaces.Ledger = (*Client)(nil)

// Client implements interfaces.Ledger over HTTP.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *common.Logger
	limiter    *rate.Limiter
	maxRetries int
}

// ClientOption configures the client
type ClientOption func(*Client)

// WithLogger sets the logger
func WithLogger(logger *common.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithRateLimit sets the rate limit
func WithRateLimit(requestsPerSecond int) ClientOption {
	return func(c *Client) {
		if requestsPerSecond > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond)
		}
	}
}

// WithTimeout sets the HTTP timeout
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// WithMaxRetries sets how many times a transient failure is retried.
func WithMaxRetries(n int) ClientOption {
	return func(c *Client) {
		if n >= 0 {
			c.maxRetries = n
		}
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// NewClient creates a new ledger client
func NewClient(baseURL, apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		limiter:    rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateLimit),
		logger:     common.NewSilentLogger(),
		maxRetries: DefaultMaxRetries,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// NewClientFromConfig creates a ledger client from the [ledger] section.
func NewClientFromConfig(cfg common.LedgerConfig, logger *common.Logger) *Client {
	return NewClient(cfg.BaseURL, cfg.APIKey,
		WithLogger(logger),
		WithRateLimit(cfg.RateLimit),
		WithTimeout(cfg.GetTimeout()),
		WithMaxRetries(cfg.MaxRetries),
	)
}

// APIError represents an API error
type APIError struct {
	StatusCode int
	Message    string
	Endpoint   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("ledger API error: %s (status: %d, endpoint: %s)", e.Message, e.StatusCode, e.Endpoint)
}

// Unwrap maps 402 Payment Required to models.ErrInsufficientFunds.
func (e *APIError) Unwrap() error {
	if e.StatusCode == http.StatusPaymentRequired {
		return models.ErrInsufficientFunds
	}
	return nil
}

// retryable reports whether a status may succeed on retry.
func (e *APIError) retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

type movementRequest struct {
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
}

type movementResponse struct {
	AccountID string `json:"account_id"`
	Balance   string `json:"balance"`
	Currency  string `json:"currency"`
}

// Debit withdraws amount from the account and returns the new balance.
func (c *Client) Debit(ctx context.Context, accountID string, amount decimal.Decimal, currency string) (decimal.Decimal, error) {
	return c.move(ctx, "debit", accountID, amount, currency)
}

// Credit deposits amount into the account and returns the new balance.
func (c *Client) Credit(ctx context.Context, accountID string, amount decimal.Decimal, currency string) (decimal.Decimal, error) {
	return c.move(ctx, "credit", accountID, amount, currency)
}

func (c *Client) move(ctx context.Context, op, accountID string, amount decimal.Decimal, currency string) (decimal.Decimal, error) {
	if accountID == "" {
		return decimal.Zero, fmt.Errorf("ledger %s: account id is required", op)
	}
	if !amount.IsPositive() {
		return decimal.Zero, fmt.Errorf("ledger %s: %w", op, models.ErrInvalidAmount)
	}

	path := fmt.Sprintf("/v1/accounts/%s/%s", url.PathEscape(accountID), op)
	body, err := json.Marshal(movementRequest{Amount: amount.StringFixed(2), Currency: currency})
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to encode request: %w", err)
	}
	key := interfaces.IdempotencyKey(ctx)

	var resp movementResponse
	for attempt := 0; ; attempt++ {
		err = c.post(ctx, path, key, body, &resp)
		if err == nil {
			break
		}
		if attempt >= c.maxRetries || !transient(err) {
			return decimal.Zero, err
		}
		wait := retryBackoff << attempt
		c.logger.Warn().
			Str("op", op).
			Str("account", accountID).
			Int("attempt", attempt+1).
			Dur("backoff", wait).
			Err(err).
			Msg("Ledger request failed, retrying")
		select {
		case <-ctx.Done():
			return decimal.Zero, ctx.Err()
		case <-time.After(wait):
		}
	}

	balance, err := decimal.NewFromString(resp.Balance)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid balance %q in ledger response: %w", resp.Balance, err)
	}
	return balance, nil
}

// transient reports whether err is worth retrying with the same idempotency key.
func transient(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.retryable()
	}
	var decodeErr *decodeError
	return !errors.As(err, &decodeErr)
}

type decodeError struct{ err error }

func (e *decodeError) Error() string { return "failed to decode response: " + e.err.Error() }
func (e *decodeError) Unwrap() error { return e.err }

// post performs a rate-limited POST request
func (c *Client) post(ctx context.Context, path, idempotencyKey string, body []byte, result interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	c.logger.Debug().Str("url", path).Str("idempotency_key", idempotencyKey).Msg("Ledger API request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		msg, _ := io.ReadAll(resp.Body)
		return &APIError{
			StatusCode: resp.StatusCode,
			Message:    string(bytes.TrimSpace(msg)),
			Endpoint:   path,
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return &decodeError{err: err}
	}

	return nil
}
