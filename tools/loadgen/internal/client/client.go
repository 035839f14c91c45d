// Package client is a thin HTTP client for the automator API. It speaks the
// response envelope and hands callers parsed outcomes instead of raw bodies.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
)

// maxBodyBytes caps how much of a response the client reads.
const maxBodyBytes = 4 << 20

// Config configures the client.
type Config struct {
	BaseURL string
	Timeout time.Duration
	Headers map[string]string
}

// Client calls the automator API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	headers    map[string]string
}

// New creates a client for one automator deployment.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	headers := map[string]string{
		"Content-Type": "application/json",
		"Accept":       "application/json",
		"User-Agent":   "automator-loadgen/1.0",
	}
	for k, v := range cfg.Headers {
		headers[k] = v
	}

	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
	}

	return &Client{
		httpClient: &http.Client{Transport: transport, Timeout: cfg.Timeout},
		baseURL:    cfg.BaseURL,
		headers:    headers,
	}, nil
}

// envelope mirrors the API response wrapper.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *apiError       `json:"error"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// planView is the subset of the plan body the load generator cares about.
type planView struct {
	ID        uuid.UUID `json:"id"`
	AgentType string    `json:"agent_type"`
	Status    string    `json:"status"`
}

// resultView is the subset of an execution result body.
type resultView struct {
	PlanID uuid.UUID `json:"plan_id"`
	Status string    `json:"status"`
}

// parkedView is the 202 body of a plan awaiting approval.
type parkedView struct {
	PlanID uuid.UUID `json:"plan_id"`
	Status string    `json:"status"`
}

// Outcome is the parsed result of one API call. Err is only set for
// transport failures; HTTP-level errors surface through StatusCode and
// ErrorCode.
type Outcome struct {
	StatusCode int
	Bytes      int64
	PlanID     uuid.UUID
	PlanStatus string
	Parked     bool
	ErrorCode  string
}

// OK reports whether the call landed below the error range.
func (o Outcome) OK() bool {
	return o.StatusCode > 0 && o.StatusCode < 400
}

// Execute submits a plan for one agent and runs it (or dry-runs it).
func (c *Client) Execute(ctx context.Context, agentType string, params map[string]any, dryRun bool) (Outcome, error) {
	body := map[string]any{
		"parameters": params,
		"dry_run":    dryRun,
	}
	return c.call(ctx, http.MethodPost, "/api/v1/agents/"+agentType+"/execute", body)
}

// PlanStatus reads one plan.
func (c *Client) PlanStatus(ctx context.Context, planID uuid.UUID) (Outcome, error) {
	return c.call(ctx, http.MethodGet, "/api/v1/plans/"+planID.String(), nil)
}

// Result reads the latest execution result of one plan.
func (c *Client) Result(ctx context.Context, planID uuid.UUID) (Outcome, error) {
	return c.call(ctx, http.MethodGet, "/api/v1/plans/"+planID.String()+"/result", nil)
}

// Approve releases a parked plan with an approver name.
func (c *Client) Approve(ctx context.Context, planID uuid.UUID, approver string) (Outcome, error) {
	body := map[string]any{
		"approved_by": approver,
		"note":        "approved by load generator",
	}
	return c.call(ctx, http.MethodPost, "/api/v1/plans/"+planID.String()+"/approve", body)
}

// Apply runs an approved plan.
func (c *Client) Apply(ctx context.Context, planID uuid.UUID) (Outcome, error) {
	return c.call(ctx, http.MethodPost, "/api/v1/plans/"+planID.String()+"/apply", nil)
}

// Health probes the liveness endpoint.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/healthz", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check: status %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) call(ctx context.Context, method, path string, body any) (Outcome, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return Outcome{}, fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return Outcome{}, fmt.Errorf("building request: %w", err)
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Outcome{}, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return Outcome{StatusCode: resp.StatusCode}, fmt.Errorf("reading response: %w", err)
	}

	out := Outcome{
		StatusCode: resp.StatusCode,
		Bytes:      int64(len(raw)),
	}
	c.parseBody(&out, raw)
	return out, nil
}

// parseBody extracts the plan reference from whichever body shape the call
// answered with. Bodies that do not parse are left as raw byte counts; the
// status code already tells the caller what happened.
func (c *Client) parseBody(out *Outcome, raw []byte) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return
	}
	if env.Error != nil {
		out.ErrorCode = env.Error.Code
	}
	if len(env.Data) == 0 {
		return
	}

	if out.StatusCode == http.StatusAccepted {
		var parked parkedView
		if err := json.Unmarshal(env.Data, &parked); err == nil && parked.PlanID != uuid.Nil {
			out.PlanID = parked.PlanID
			out.PlanStatus = parked.Status
			out.Parked = true
		}
		return
	}

	// Plans carry "id", execution results carry "plan_id". Try both.
	var p planView
	if err := json.Unmarshal(env.Data, &p); err == nil && p.ID != uuid.Nil {
		out.PlanID = p.ID
		out.PlanStatus = p.Status
		return
	}
	var r resultView
	if err := json.Unmarshal(env.Data, &r); err == nil && r.PlanID != uuid.Nil {
		out.PlanID = r.PlanID
		out.PlanStatus = r.Status
	}
}
