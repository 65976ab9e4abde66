// Package client is a typed HTTP client for the agent's read-only status
// server, for scripts and remote health checks that prefer not to parse
// the state file directly.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Client communicates with a running ntfy-agent status server.
type Client struct {
	baseURL string
	client  *http.Client
}

// Config holds client configuration.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// DefaultConfig returns default client configuration.
func DefaultConfig() Config {
	return Config{
		BaseURL: "http://localhost:8833",
		Timeout: 10 * time.Second,
	}
}

// New creates a new status client.
func New(config Config) *Client {
	if config.BaseURL == "" {
		config.BaseURL = DefaultConfig().BaseURL
	}
	if config.Timeout == 0 {
		config.Timeout = DefaultConfig().Timeout
	}
	return &Client{
		baseURL: config.BaseURL,
		client:  &http.Client{Timeout: config.Timeout},
	}
}

// Health fetches /healthz. The returned error is nil even when the daemon
// reports unhealthy; check HealthResponse.OK.
func (c *Client) Health(ctx context.Context) (HealthResponse, error) {
	var out HealthResponse
	err := c.getJSON(ctx, "/healthz", nil, &out, http.StatusOK, http.StatusServiceUnavailable)
	return out, err
}

// Status fetches the tracked-set. state filters like the server does:
// "", "active", or a concrete state name.
func (c *Client) Status(ctx context.Context, state string) (StatusResponse, error) {
	q := url.Values{}
	if state != "" {
		q.Set("state", state)
	}
	var out StatusResponse
	err := c.getJSON(ctx, "/status", q, &out, http.StatusOK)
	return out, err
}

func (c *Client) getJSON(ctx context.Context, path string, q url.Values, out any, okCodes ...int) error {
	u := c.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	accepted := false
	for _, code := range okCodes {
		if resp.StatusCode == code {
			accepted = true
			break
		}
	}
	if !accepted {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		var er ErrorResponse
		if json.Unmarshal(body, &er) == nil && er.Error != "" {
			return fmt.Errorf("%s: %s (status %d)", path, er.Error, resp.StatusCode)
		}
		return fmt.Errorf("%s: unexpected status %d", path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
