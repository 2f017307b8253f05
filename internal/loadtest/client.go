package loadtest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/tidwall/gjson"
)

// HTTPClient calls the service API. Reads are retried; submissions are not.
type HTTPClient struct {
	base   string
	reads  *retryablehttp.Client
	writes *retryablehttp.Client
}

const readRetries = 3

func newHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	mk := func(retries int) *retryablehttp.Client {
		c := retryablehttp.NewClient()
		c.RetryMax = retries
		c.RetryWaitMin = 50 * time.Millisecond
		c.RetryWaitMax = time.Second
		c.HTTPClient.Timeout = timeout
		c.Logger = nil
		return c
	}
	return &HTTPClient{base: baseURL, reads: mk(readRetries), writes: mk(0)}
}

// Get fetches path and returns the status code and body.
func (c *HTTPClient) Get(ctx context.Context, path string) (int, []byte, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return 0, nil, fmt.Errorf("build request: %w", err)
	}
	return do(c.reads, req)
}

// Post sends body as JSON to path and returns the status code and body.
func (c *HTTPClient) Post(ctx context.Context, path string, body any) (int, []byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return 0, nil, fmt.Errorf("marshal request body: %w", err)
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.base+path, bytes.NewReader(payload))
	if err != nil {
		return 0, nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return do(c.writes, req)
}

func do(c *retryablehttp.Client, req *retryablehttp.Request) (int, []byte, error) {
	resp, err := c.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read body: %w", err)
	}
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") && !gjson.ValidBytes(body) {
		return resp.StatusCode, body, fmt.Errorf("invalid JSON from %s", req.URL.Path)
	}
	return resp.StatusCode, body, nil
}

// parseEntries extracts leaderboard rows from a JSON array.
func parseEntries(arr gjson.Result) []round {
	var out []round
	arr.ForEach(func(_, e gjson.Result) bool {
		out = append(out, round{
			Round:      int(e.Get("round_number").Int()),
			Score:      e.Get("score").Float(),
			Final:      e.Get("final_submission").Bool(),
			ExitReason: e.Get("exit_reason").String(),
		})
		return true
	})
	return out
}
