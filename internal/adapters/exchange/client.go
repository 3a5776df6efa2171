package exchange

// client.go: HTTP client with token-bucket rate limiting and bounded
// retries. The limiter keeps concurrent callers under the exchange's
// documented request budget without an explicit semaphore; 429 and 5xx
// responses are retried with exponential backoff, 4xx responses are
// mapped to the gateway's typed errors and never retried.

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/alejandrodnm/gridbot/internal/ports"
)

const (
	// Order endpoints: 10/s with small bursts keeps well under typical
	// per-account budgets.
	orderRatePerSec  = 10
	marketRatePerSec = 20

	maxRetries    = 3
	baseRetryWait = 500 * time.Millisecond
)

// Client is the authenticated REST client.
type Client struct {
	http          *http.Client
	baseURL       string
	signer        *Signer
	orderLimiter  *rate.Limiter
	marketLimiter *rate.Limiter
}

// NewClient creates a REST client for the given base URL and credentials.
func NewClient(baseURL string, signer *Signer) *Client {
	return &Client{
		http:          &http.Client{Timeout: 10 * time.Second},
		baseURL:       baseURL,
		signer:        signer,
		orderLimiter:  rate.NewLimiter(orderRatePerSec, 5),
		marketLimiter: rate.NewLimiter(marketRatePerSec, 10),
	}
}

func (c *Client) get(ctx context.Context, limiter *rate.Limiter, path string, out any) error {
	return c.doWithRetry(ctx, limiter, http.MethodGet, path, nil, out)
}

func (c *Client) post(ctx context.Context, limiter *rate.Limiter, path string, body, out any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal body: %w", err)
	}
	return c.doWithRetry(ctx, limiter, http.MethodPost, path, b, out)
}

func (c *Client) delete(ctx context.Context, limiter *rate.Limiter, path string) error {
	return c.doWithRetry(ctx, limiter, http.MethodDelete, path, nil, nil)
}

// doWithRetry executes one request with rate limiting, retrying
// transient failures with exponential backoff.
func (c *Client) doWithRetry(ctx context.Context, limiter *rate.Limiter, method, path string, body []byte, out any) error {
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}

		resp, err := c.do(ctx, method, path, body)
		if err != nil {
			if attempt == maxRetries {
				return &ports.TransientError{Err: fmt.Errorf("request failed after %d retries: %w", maxRetries, err)}
			}
			c.sleep(ctx, attempt)
			continue
		}

		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			resp.Body.Close()
			if attempt == maxRetries {
				return ports.ErrRateLimited
			}
			slog.Warn("rate limited by exchange", "attempt", attempt+1, "path", path)
			c.sleep(ctx, attempt)
			continue

		case resp.StatusCode >= 500:
			resp.Body.Close()
			if attempt == maxRetries {
				return &ports.TransientError{Err: fmt.Errorf("server error %d after %d retries", resp.StatusCode, maxRetries)}
			}
			c.sleep(ctx, attempt)
			continue

		case resp.StatusCode >= 400:
			defer resp.Body.Close()
			return mapAPIError(resp)
		}

		defer resp.Body.Close()
		if out == nil {
			io.Copy(io.Discard, resp.Body)
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	}
	return &ports.TransientError{Err: fmt.Errorf("exhausted %d retries", maxRetries)}
}

func (c *Client) do(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rdr)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.signer != nil {
		for k, v := range c.signer.Headers(method, path, string(body)) {
			req.Header.Set(k, v)
		}
	}
	return c.http.Do(req)
}

// mapAPIError translates a 4xx response into the gateway error taxonomy.
func mapAPIError(resp *http.Response) error {
	raw, _ := io.ReadAll(resp.Body)

	var apiErr apiError
	if err := json.Unmarshal(raw, &apiErr); err != nil || apiErr.Code == "" {
		if resp.StatusCode == http.StatusNotFound {
			return ports.ErrOrderNotFound
		}
		return fmt.Errorf("client error %d: %s", resp.StatusCode, string(raw))
	}

	switch apiErr.Code {
	case "INSUFFICIENT_BALANCE":
		return fmt.Errorf("%w: %s", ports.ErrInsufficientBalance, apiErr.Message)
	case "INVALID_PRECISION", "PRICE_FILTER", "LOT_SIZE":
		return fmt.Errorf("%w: %s", ports.ErrPrecisionRejected, apiErr.Message)
	case "MAX_OPEN_ORDERS":
		return fmt.Errorf("%w: %s", ports.ErrOrderLimit, apiErr.Message)
	case "ORDER_NOT_FOUND":
		return ports.ErrOrderNotFound
	case "ACCOUNT_SUSPENDED", "ACCOUNT_LIQUIDATED":
		return &ports.FatalError{Reason: apiErr.Message}
	default:
		return fmt.Errorf("exchange rejected request (%s): %s", apiErr.Code, apiErr.Message)
	}
}

// sleep waits with exponential backoff, respecting the context.
func (c *Client) sleep(ctx context.Context, attempt int) {
	wait := time.Duration(math.Pow(2, float64(attempt))) * baseRetryWait
	select {
	case <-time.After(wait):
	case <-ctx.Done():
	}
}
