// Package upstream performs authenticated reads against third-party REST APIs.
package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pysugar/daily-nexus/internal/version"
)

const (
	defaultTimeout = 30 * time.Second

	maxBodyBytes  = 4 << 20
	maxErrorBytes = 64 << 10
)

// StatusError is a non-2xx answer. Body is kept for logging only.
type StatusError struct {
	StatusCode int
	RetryAfter time.Duration
	Body       []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream returned status %d", e.StatusCode)
}

// Unauthorized reports whether the provider rejected the access token.
func (e *StatusError) Unauthorized() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}

// Client handles communication with provider APIs.
type Client struct {
	httpClient *http.Client
}

// NewClient creates a new upstream client. A nil httpClient gets a default
// with a bounded timeout.
func NewClient(httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{httpClient: httpClient}
}

// HTTPClient exposes the underlying client for SDKs that take one.
func (c *Client) HTTPClient() *http.Client {
	return c.httpClient
}

// GetJSON issues a bearer-authenticated GET and decodes a 2xx body into out.
func (c *Client) GetJSON(ctx context.Context, url, accessToken string, header http.Header, out any) error {
	resp, err := c.doRequest(ctx, http.MethodGet, url, accessToken, header)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBytes))
		return &StatusError{
			StatusCode: resp.StatusCode,
			RetryAfter: ParseRetryDelay(resp.Header, body),
			Body:       body,
		}
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// doRequest performs an HTTP request with proper headers
func (c *Client) doRequest(ctx context.Context, method, url, accessToken string, header http.Header) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())
	for k, values := range header {
		req.Header.Del(k)
		for _, v := range values {
			req.Header.Add(k, v)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	return resp, nil
}
