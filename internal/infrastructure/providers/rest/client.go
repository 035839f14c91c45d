// Package rest adapts providers that expose a conventional JSON REST API to
// the gateway interfaces. One Config describes one provider instance; the
// same wire conventions (bearer auth, JSON bodies, error envelopes) are
// shared by all five gateway families.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopops/automator/internal/domain/gateway"
)

// maxResponseSize caps how much of a provider response is read (10MB)
const maxResponseSize = 10 * 1024 * 1024

const defaultTimeout = 30 * time.Second

// Errors for REST provider configuration
var (
	ErrConfigMissingName    = errors.New("rest: provider name is required")
	ErrConfigMissingBaseURL = errors.New("rest: base URL is required")
	ErrConfigInvalidBaseURL = errors.New("rest: base URL is invalid")
)

// Config holds the connection settings for one REST provider
type Config struct {
	// Name is the provider instance name, used as the pacing key and in
	// error messages
	Name string
	// BaseURL is the root of the provider API, e.g. https://api.shop.example
	BaseURL string
	// Token is sent as a bearer token when set
	Token string
	// Timeout is the per-request HTTP timeout
	Timeout time.Duration
}

// Validate validates the provider configuration
func (c *Config) Validate() error {
	if c.Name == "" {
		return ErrConfigMissingName
	}
	if c.BaseURL == "" {
		return ErrConfigMissingBaseURL
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%w: %s", ErrConfigInvalidBaseURL, c.BaseURL)
	}
	return nil
}

// client is the shared HTTP plumbing behind the per-family adapters
type client struct {
	name    string
	baseURL string
	token   string
	http    *http.Client
}

func newClient(cfg Config) (*client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &client{
		name:    cfg.Name,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.Token,
		http:    &http.Client{Timeout: timeout},
	}, nil
}

// do performs one request and decodes the JSON response into out when out is
// non-nil. It returns the HTTP status code alongside the error so callers can
// tolerate specific statuses, e.g. 404 on an idempotent cancel.
func (c *client) do(ctx context.Context, op, method, path string, query url.Values, payload, out any) (int, error) {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return 0, fmt.Errorf("rest: encode request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return 0, fmt.Errorf("rest: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, gateway.ConnectionFailed(c.name, op, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return resp.StatusCode, gateway.ConnectionFailed(c.name, op, fmt.Errorf("read response: %w", err))
	}

	if resp.StatusCode >= 400 {
		return resp.StatusCode, c.statusError(op, resp.StatusCode, raw)
	}

	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return resp.StatusCode, gateway.NewError(gateway.ErrorClassUnknown, c.name, op, fmt.Errorf("decode response: %w", err))
		}
	}
	return resp.StatusCode, nil
}

func (c *client) statusError(op string, status int, raw []byte) error {
	err := fmt.Errorf("HTTP %d: %s", status, apiMessage(raw))
	switch {
	case status == http.StatusUnauthorized:
		return gateway.AuthFailed(c.name, op, err)
	case status == http.StatusForbidden:
		return gateway.Denied(c.name, op, err)
	case status == http.StatusTooManyRequests:
		return gateway.RateLimited(c.name, op, err)
	case status >= 500:
		return gateway.ConnectionFailed(c.name, op, err)
	default:
		return gateway.NewError(gateway.ErrorClassUnknown, c.name, op, err)
	}
}

// apiMessage extracts the error detail providers usually include in a JSON
// envelope, falling back to the truncated raw body.
func apiMessage(raw []byte) string {
	var envelope struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(raw, &envelope) == nil {
		if envelope.Error != "" {
			return envelope.Error
		}
		if envelope.Message != "" {
			return envelope.Message
		}
	}
	if len(raw) > 200 {
		raw = raw[:200]
	}
	return strings.TrimSpace(string(raw))
}
