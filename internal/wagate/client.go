package wagate

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
)

// HeaderProvider injects per-request headers, e.g. a gateway token.
type HeaderProvider func() map[string]string

// APIError is a non-2xx answer from the gateway.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gateway api error: status=%d body=%s", e.Status, e.Body)
}

// retryable on the usual transient upstream statuses.
func (e *APIError) retryable() bool {
	switch e.Status {
	case fasthttp.StatusInternalServerError,
		fasthttp.StatusBadGateway,
		fasthttp.StatusServiceUnavailable,
		fasthttp.StatusGatewayTimeout:
		return true
	}
	return false
}

type Client struct {
	base        string
	hc          *fasthttp.Client
	headerFn    HeaderProvider
	timeout     time.Duration
	maxAttempts int
}

type Option func(*Client)

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

func WithMaxConnsPerHost(n int) Option {
	return func(c *Client) { c.hc.MaxConnsPerHost = n }
}

func WithHeaderProvider(h HeaderProvider) Option {
	return func(c *Client) { c.headerFn = h }
}

func WithRetry(max int) Option {
	return func(c *Client) { c.maxAttempts = max }
}

func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		base: strings.TrimRight(baseURL, "/"),
		hc: &fasthttp.Client{
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			MaxConnsPerHost: 64,
		},
		timeout:     10 * time.Second,
		maxAttempts: 3,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.maxAttempts < 1 {
		c.maxAttempts = 1
	}
	return c
}

// Status probes the gateway's session health.
func (c *Client) Status(ctx context.Context) (*StatusResponse, error) {
	raw, err := c.do(ctx, fasthttp.MethodGet, "/status", nil, 1)
	if err != nil {
		return nil, err
	}
	var st StatusResponse
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, fmt.Errorf("decode status: %w", err)
	}
	return &st, nil
}

// SendMessage posts a text reply to a chat. quotedID is optional.
func (c *Client) SendMessage(ctx context.Context, chatID, text, quotedID string) error {
	body, err := json.Marshal(ReplyRequest{Type: "text", ChatID: chatID, Text: text, QuoteID: quotedID})
	if err != nil {
		return fmt.Errorf("marshal reply: %w", err)
	}
	_, err = c.do(ctx, fasthttp.MethodPost, "/reply", body, c.maxAttempts)
	return err
}

// do runs one gateway request with up to attempts tries. Transport errors and
// retryable statuses back off exponentially between tries; everything else
// fails immediately.
func (c *Client) do(ctx context.Context, method, path string, body []byte, attempts int) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			if err := waitBackoff(ctx, attempt); err != nil {
				return nil, lastErr
			}
		}
		raw, err := c.roundTrip(method, path, body, c.deadline(ctx))
		if err == nil {
			return raw, nil
		}
		lastErr = err
		var apiErr *APIError
		if isAPIError(err, &apiErr) && !apiErr.retryable() {
			return nil, err
		}
	}
	return nil, lastErr
}

func (c *Client) roundTrip(method, path string, body []byte, deadline time.Time) ([]byte, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.Header.SetMethod(method)
	req.SetRequestURI(c.base + path)
	req.Header.SetContentType("application/json")
	if c.headerFn != nil {
		for k, v := range c.headerFn() {
			if k != "" && v != "" {
				req.Header.Set(k, v)
			}
		}
	}
	if body != nil {
		req.SetBody(body)
	}

	if err := c.hc.DoDeadline(req, resp, deadline); err != nil {
		return nil, fmt.Errorf("gateway request failed: %w", err)
	}
	if code := resp.StatusCode(); code < 200 || code >= 300 {
		return nil, &APIError{Status: code, Body: clip(string(resp.Body()), 512)}
	}

	out := make([]byte, len(resp.Body()))
	copy(out, resp.Body())
	return out, nil
}

// deadline is the sooner of the context deadline and the client timeout.
func (c *Client) deadline(ctx context.Context) time.Time {
	own := time.Now().Add(c.timeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(own) {
		return dl
	}
	return own
}

func isAPIError(err error, target **APIError) bool {
	if apiErr, ok := err.(*APIError); ok {
		*target = apiErr
		return true
	}
	return false
}

// waitBackoff sleeps 100ms, 200ms, 400ms ... capped at 3.2s, or returns early
// when the context ends.
func waitBackoff(ctx context.Context, attempt int) error {
	if attempt > 6 {
		attempt = 6
	}
	t := time.NewTimer(100 * time.Millisecond << uint(attempt-1))
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
