// Package httpx is the JSON-over-HTTP client used to reach remote services.
// Responses are classified into CLI error codes and idempotent calls are
// retried with capped exponential backoff.
package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net"
	"net/http"
	"strconv"
	"time"

	clierr "github.com/intentfi/intentfi/internal/errors"
	"github.com/intentfi/intentfi/internal/version"
	"go.uber.org/zap"
)

const (
	baseBackoff = 120 * time.Millisecond
	maxBackoff  = 2 * time.Second
)

// StatusError carries the status and body of a non-2xx response. It is the
// cause of the errors the client returns for such responses.
type StatusError struct {
	Status int
	Body   []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("status %d", e.Status)
}

type Client struct {
	http    *http.Client
	retries int
	headers http.Header
	logger  *zap.Logger
	wait    func(ctx context.Context, d time.Duration) error
}

type Option func(*Client)

// WithHeader sends key: value on every request.
func WithHeader(key, value string) Option {
	return func(c *Client) { c.headers.Set(key, value) }
}

// WithBearerToken authenticates every request. An empty token is ignored.
func WithBearerToken(token string) Option {
	return func(c *Client) {
		if token != "" {
			c.headers.Set("Authorization", "Bearer "+token)
		}
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New builds a client. retries counts attempts after the first; pass 0 for
// calls that must not be repeated.
func New(timeout time.Duration, retries int, opts ...Option) *Client {
	c := &Client{
		http:    &http.Client{Timeout: timeout},
		retries: max(retries, 0),
		headers: http.Header{},
		logger:  zap.NewNop(),
		wait:    sleep,
	}
	c.headers.Set("Accept", "application/json")
	c.headers.Set("User-Agent", version.UserAgent())
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// PostJSON sends body as JSON and decodes the response into out.
func (c *Client) PostJSON(ctx context.Context, url string, body, out any) error {
	buf, err := json.Marshal(body)
	if err != nil {
		return clierr.Wrap(clierr.CodeInternal, "encode request", err)
	}
	return c.Do(ctx, http.MethodPost, url, buf, out)
}

// Do sends one request, retrying network failures, 429 and 5xx answers. A nil
// out skips decoding.
func (c *Client) Do(ctx context.Context, method, url string, body []byte, out any) error {
	var lastErr error
	var delay time.Duration
	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			if delay <= 0 {
				delay = backoff(attempt)
			}
			c.logger.Debug("retrying request", zap.String("url", url), zap.Int("attempt", attempt), zap.Duration("delay", delay), zap.Error(lastErr))
			if err := c.wait(ctx, delay); err != nil {
				return clierr.Wrap(clierr.CodeUnavailable, "request cancelled", err)
			}
		}
		var retry bool
		retry, delay, lastErr = c.attempt(ctx, method, url, body, out)
		if lastErr == nil || !retry {
			return lastErr
		}
	}
	return lastErr
}

// attempt runs a single round trip. retry reports whether the failure is
// worth repeating and after suggests a delay taken from Retry-After.
func (c *Client) attempt(ctx context.Context, method, url string, body []byte, out any) (retry bool, after time.Duration, err error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return false, 0, clierr.Wrap(clierr.CodeInternal, "build request", err)
	}
	req.Header = c.headers.Clone()
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return ctx.Err() == nil, 0, netError(err)
	}
	buf, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if err != nil {
		return true, 0, clierr.Wrap(clierr.CodeUnavailable, "read upstream response", err)
	}

	status := &StatusError{Status: resp.StatusCode, Body: buf}
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return true, retryAfter(resp.Header), clierr.Wrap(clierr.CodeRateLimited, "upstream rate limited request", status)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return false, 0, clierr.Wrap(clierr.CodeAuth, "upstream authentication failed", status)
	case resp.StatusCode >= http.StatusInternalServerError:
		return true, retryAfter(resp.Header), clierr.Wrap(clierr.CodeUnavailable, fmt.Sprintf("upstream unavailable (status %d)", resp.StatusCode), status)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return false, 0, clierr.Wrap(clierr.CodeUnsupported, fmt.Sprintf("upstream returned unexpected status %d", resp.StatusCode), status)
	}

	if out == nil {
		return false, 0, nil
	}
	if len(bytes.TrimSpace(buf)) == 0 {
		return false, 0, clierr.New(clierr.CodeUnavailable, "upstream returned empty response")
	}
	if err := json.Unmarshal(buf, out); err != nil {
		return false, 0, clierr.Wrap(clierr.CodeUnavailable, "decode upstream JSON", err)
	}
	return false, 0, nil
}

func netError(err error) error {
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return clierr.Wrap(clierr.CodeUnavailable, "upstream timeout", err)
	}
	return clierr.Wrap(clierr.CodeUnavailable, "upstream request failed", err)
}

// retryAfter reads a Retry-After given in seconds, capped at maxBackoff.
func retryAfter(h http.Header) time.Duration {
	secs, err := strconv.Atoi(h.Get("Retry-After"))
	if err != nil || secs <= 0 {
		return 0
	}
	return min(time.Duration(secs)*time.Second, maxBackoff)
}

func backoff(attempt int) time.Duration {
	d := min(baseBackoff<<(attempt-1), maxBackoff)
	return d + time.Duration(rand.IntN(75))*time.Millisecond
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
