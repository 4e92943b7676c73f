// Package remote provides clients for sibling billgate services.
// Requests are authenticated with a shared-secret HMAC signature over
// method and path.
package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

// Client provides signed HTTP communication with a sibling service.
type Client struct {
	httpClient *http.Client
	baseURL    string
	secret     string
}

// ClientConfig configures the remote client.
type ClientConfig struct {
	BaseURL string
	Secret  string
	Timeout time.Duration
}

// NewClient creates a new signed remote HTTP client.
func NewClient(cfg ClientConfig) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    cfg.BaseURL,
		secret:     cfg.Secret,
	}
}

// BaseURL returns the client's target base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Get sends a signed GET request and decodes the JSON response into
// result. A non-200 status is returned as a *RemoteError.
func (c *Client) Get(ctx context.Context, path string, result interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	now := time.Now().UTC()
	req.Header.Set("Accept", "application/json")
	req.Header.Set(HeaderTimestamp, strconv.FormatInt(now.Unix(), 10))
	req.Header.Set(HeaderSignature, Sign(c.secret, http.MethodGet, path, now))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return &RemoteError{
			StatusCode: resp.StatusCode,
			Message:    string(body),
		}
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}

	return nil
}

// RemoteError represents an error from the remote service.
type RemoteError struct {
	StatusCode int
	Message    string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote error %d: %s", e.StatusCode, e.Message)
}

// IsNotFound returns true if the error is a 404.
func IsNotFound(err error) bool {
	if re, ok := err.(*RemoteError); ok {
		return re.StatusCode == http.StatusNotFound
	}
	return false
}
