package quote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"solana-intent-settlement/internal/solana"
)

// Default configuration values.
const (
	DefaultTimeout     = 30 * time.Second
	DefaultMaxRetries  = 3
	DefaultRetryDelay  = 1 * time.Second
	DefaultMaxDelay    = 10 * time.Second
	DefaultBackoffMult = 2.0
)

// ErrNoRoute is returned when the aggregator has no route for the pair.
var ErrNoRoute = errors.New("no route")

// HTTPQuoter asks an aggregator quote endpoint for the output amount.
// Request: GET endpoint?inputMint=..&outputMint=..&amount=..
// Response: {"outAmount": "<decimal u64>"}
type HTTPQuoter struct {
	endpoint    string
	client      *http.Client
	slippageBps uint16
	maxRetries  int
	retryDelay  time.Duration
	maxDelay    time.Duration
	backoffMult float64
}

// Option configures HTTPQuoter.
type Option func(*HTTPQuoter)

// WithTimeout sets HTTP client timeout.
func WithTimeout(d time.Duration) Option {
	return func(q *HTTPQuoter) {
		q.client.Timeout = d
	}
}

// WithMaxRetries sets maximum retry attempts.
func WithMaxRetries(n int) Option {
	return func(q *HTTPQuoter) {
		q.maxRetries = n
	}
}

// WithRetryDelay sets initial retry delay.
func WithRetryDelay(d time.Duration) Option {
	return func(q *HTTPQuoter) {
		q.retryDelay = d
	}
}

// WithMaxDelay sets maximum retry delay.
func WithMaxDelay(d time.Duration) Option {
	return func(q *HTTPQuoter) {
		q.maxDelay = d
	}
}

// WithHTTPClient sets custom http.Client.
func WithHTTPClient(client *http.Client) Option {
	return func(q *HTTPQuoter) {
		q.client = client
	}
}

// WithSlippageBps forwards a slippage tolerance to the aggregator.
func WithSlippageBps(bps uint16) Option {
	return func(q *HTTPQuoter) {
		q.slippageBps = bps
	}
}

// NewHTTPQuoter creates a quoter for endpoint.
func NewHTTPQuoter(endpoint string, opts ...Option) *HTTPQuoter {
	q := &HTTPQuoter{
		endpoint:    endpoint,
		client:      &http.Client{Timeout: DefaultTimeout},
		maxRetries:  DefaultMaxRetries,
		retryDelay:  DefaultRetryDelay,
		maxDelay:    DefaultMaxDelay,
		backoffMult: DefaultBackoffMult,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Compile-time interface check.
var _ Quoter = (*HTTPQuoter)(nil)

type quoteResponse struct {
	OutAmount string `json:"outAmount"`
	Error     string `json:"error,omitempty"`
}

// Quote fetches a quote with retries and exponential backoff.
// 4xx responses other than 429 are not retried.
func (q *HTTPQuoter) Quote(ctx context.Context, tokenIn, tokenOut solana.PublicKey, amount uint64) (uint64, error) {
	u, err := url.Parse(q.endpoint)
	if err != nil {
		return 0, fmt.Errorf("parse endpoint: %w", err)
	}
	params := u.Query()
	params.Set("inputMint", tokenIn.String())
	params.Set("outputMint", tokenOut.String())
	params.Set("amount", strconv.FormatUint(amount, 10))
	if q.slippageBps > 0 {
		params.Set("slippageBps", strconv.FormatUint(uint64(q.slippageBps), 10))
	}
	u.RawQuery = params.Encode()

	delay := q.retryDelay
	var lastErr error

	for attempt := 0; attempt <= q.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return 0, ctx.Err()
			case <-time.After(delay):
			}
			// Exponential backoff
			delay = time.Duration(float64(delay) * q.backoffMult)
			if delay > q.maxDelay {
				delay = q.maxDelay
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
		if err != nil {
			return 0, fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Accept", "application/json")

		resp, err := q.client.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("http request: %w", err)
			continue
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("read response: %w", err)
			continue
		}

		// Handle rate limiting
		if resp.StatusCode == http.StatusTooManyRequests {
			lastErr = fmt.Errorf("rate limited (429)")
			continue
		}

		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			var qr quoteResponse
			if json.Unmarshal(body, &qr) == nil && qr.Error != "" {
				return 0, fmt.Errorf("%w: %s", ErrNoRoute, qr.Error)
			}
			return 0, fmt.Errorf("%w: status %d", ErrNoRoute, resp.StatusCode)
		}

		if resp.StatusCode != http.StatusOK {
			lastErr = fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
			continue
		}

		var qr quoteResponse
		if err := json.Unmarshal(body, &qr); err != nil {
			lastErr = fmt.Errorf("unmarshal response: %w", err)
			continue
		}

		out, err := strconv.ParseUint(qr.OutAmount, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("parse outAmount %q: %w", qr.OutAmount, err)
		}
		return out, nil
	}

	return 0, fmt.Errorf("max retries exceeded: %w", lastErr)
}
