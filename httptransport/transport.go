// Package httptransport provides the default Transport: one HTTP POST per
// wire request, with correlation ids carried as headers and a small retry
// budget for transient connection failures.
package httptransport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/lumenfn/lumen-go/wire"
)

// Headers carrying the out-of-band request metadata.
const (
	HeaderTraceID      = "X-Lumen-Trace-Id"
	HeaderSpanID       = "X-Lumen-Span-Id"
	HeaderParentSpanID = "X-Lumen-Parent-Span-Id"
	HeaderBatch        = "X-Lumen-Batch"
)

const retryBaseWait = 100 * time.Millisecond

// Client posts wire payloads to a single endpoint.
type Client struct {
	endpoint string
	hc       *http.Client
	retries  int
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.hc = hc }
}

// WithRetries sets the transient-failure retry budget.
func WithRetries(n int) Option {
	return func(c *Client) {
		if n >= 0 {
			c.retries = n
		}
	}
}

// New creates a transport targeting baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("httptransport: base url is required")
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("httptransport: parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("httptransport: unsupported scheme %q", u.Scheme)
	}

	c := &Client{
		endpoint: u.String(),
		hc:       &http.Client{},
		retries:  3,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Send posts one payload and returns the response body. Transient connection
// errors are retried with exponential backoff; HTTP error statuses are not.
func (c *Client) Send(ctx context.Context, payload []byte, meta wire.Metadata) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			wait := retryBaseWait * time.Duration(1<<(attempt-1))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(wait):
			}
		}

		// Fresh request per attempt: the body reader is consumed on send.
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(HeaderTraceID, meta.TraceID)
		if meta.SpanID != "" {
			req.Header.Set(HeaderSpanID, meta.SpanID)
		}
		if meta.ParentSpanID != "" {
			req.Header.Set(HeaderParentSpanID, meta.ParentSpanID)
		}
		if meta.Batch {
			req.Header.Set(HeaderBatch, "1")
		}

		resp, err := c.hc.Do(req)
		if err != nil {
			lastErr = err
			if isRetryable(err) {
				continue
			}
			return nil, fmt.Errorf("send request: %w", err)
		}

		body, err := io.ReadAll(resp.Body)
		drainAndClose(resp.Body)
		if err != nil {
			lastErr = fmt.Errorf("read response body: %w", err)
			continue
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return nil, fmt.Errorf("received status code: %d", resp.StatusCode)
		}
		return body, nil
	}
	return nil, fmt.Errorf("request failed after %d attempts: %w", c.retries+1, lastErr)
}

// isRetryable checks if an error is transient and worth retrying. Context
// cancellation and deadlines are final.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	errStr := err.Error()
	if errors.Is(err, io.EOF) || strings.Contains(errStr, "EOF") {
		return true
	}
	return strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "broken pipe")
}

// drainAndClose drains remaining data before closing so the connection can
// be reused.
func drainAndClose(body io.ReadCloser) {
	if body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, body)
	_ = body.Close()
}
