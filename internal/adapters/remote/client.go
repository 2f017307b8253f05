// Package remote implements the round controller collaborators as HTTP/JSON
// clients of external services.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/tidwall/gjson"

	"github.com/okian/mixseek/pkg/logger"
)

// Default client configuration constants.
const (
	defaultRetryWaitMin = 100 * time.Millisecond
	defaultRetryWaitMax = 2 * time.Second
	maxResponseBytes    = 8 << 20
)

// Sentinel kinds for remote call failures.
var (
	ErrUnavailable = errors.New("remote service unavailable")
	ErrMalformed   = errors.New("malformed remote response")
)

// Option applies a configuration option to a client.
type Option func(*client)

// WithRetryMax sets how many times a failed call is retried.
func WithRetryMax(n int) Option {
	return func(c *client) {
		if n >= 0 {
			c.http.RetryMax = n
		}
	}
}

// WithRetryWait sets the backoff bounds between retries.
func WithRetryWait(minWait, maxWait time.Duration) Option {
	return func(c *client) {
		if minWait > 0 && maxWait >= minWait {
			c.http.RetryWaitMin = minWait
			c.http.RetryWaitMax = maxWait
		}
	}
}

// WithHTTPClient replaces the underlying transport client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *client) {
		if hc != nil {
			c.http.HTTPClient = hc
		}
	}
}

// WithLogger routes retry diagnostics to l.
func WithLogger(l logger.Logger) Option {
	return func(c *client) {
		if l != nil {
			c.http.Logger = leveledLogger{l: l}
		}
	}
}

type client struct {
	base string
	http *retryablehttp.Client
}

func newClient(baseURL string, retryMax int, opts []Option) *client {
	hc := retryablehttp.NewClient()
	hc.RetryMax = retryMax
	hc.RetryWaitMin = defaultRetryWaitMin
	hc.RetryWaitMax = defaultRetryWaitMax
	hc.Logger = nil

	c := &client{base: strings.TrimRight(baseURL, "/"), http: hc}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// post sends body as JSON to path and returns the validated JSON response.
func (c *client) post(ctx context.Context, path string, body any) ([]byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.base+path, payload)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: POST %s: %w", ErrUnavailable, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", ErrUnavailable, path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := gjson.GetBytes(raw, "error").String()
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return nil, fmt.Errorf("%w: POST %s returned %d: %s", ErrUnavailable, path, resp.StatusCode, msg)
	}
	if !gjson.ValidBytes(raw) {
		return nil, fmt.Errorf("%w: POST %s: body is not JSON", ErrMalformed, path)
	}
	return bytes.TrimSpace(raw), nil
}

// require returns the field at path or ErrMalformed when absent or of the
// wrong type.
func require(raw []byte, path string, want gjson.Type) (gjson.Result, error) {
	r := gjson.GetBytes(raw, path)
	if !r.Exists() {
		return r, fmt.Errorf("%w: missing %q", ErrMalformed, path)
	}
	if r.Type != want {
		if want == gjson.True && r.Type == gjson.False {
			return r, nil
		}
		return r, fmt.Errorf("%w: %q is %s, want %s", ErrMalformed, path, r.Type, want)
	}
	return r, nil
}

// leveledLogger adapts logger.Logger to retryablehttp.LeveledLogger.
type leveledLogger struct {
	l logger.Logger
}

func fields(kv []interface{}) []logger.Field {
	out := make([]logger.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		out = append(out, logger.Any(fmt.Sprint(kv[i]), kv[i+1]))
	}
	return out
}

func (a leveledLogger) Error(msg string, kv ...interface{}) {
	a.l.Error(context.Background(), msg, fields(kv)...)
}

func (a leveledLogger) Info(msg string, kv ...interface{}) {
	a.l.Info(context.Background(), msg, fields(kv)...)
}

func (a leveledLogger) Debug(msg string, kv ...interface{}) {
	a.l.Debug(context.Background(), msg, fields(kv)...)
}

func (a leveledLogger) Warn(msg string, kv ...interface{}) {
	a.l.Warn(context.Background(), msg, fields(kv)...)
}
