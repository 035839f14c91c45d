package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := New(Config{BaseURL: srv.URL, Timeout: 2 * time.Second})
	require.NoError(t, err)
	return c, srv
}

func TestNewValidation(t *testing.T) {
	_, err := New(Config{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "base URL")
}

func TestExecuteParsesResult(t *testing.T) {
	planID := uuid.New()
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/agents/inventory/execute", r.URL.Path)

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, true, body["dry_run"])
		params, ok := body["parameters"].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, float64(10), params["max_skus"])

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"data":    map[string]any{"plan_id": planID, "status": "SUCCEEDED"},
		})
	}))

	out, err := c.Execute(context.Background(), "inventory", map[string]any{"max_skus": 10}, true)
	require.NoError(t, err)
	assert.True(t, out.OK())
	assert.Equal(t, http.StatusOK, out.StatusCode)
	assert.Equal(t, planID, out.PlanID)
	assert.Equal(t, "SUCCEEDED", out.PlanStatus)
	assert.False(t, out.Parked)
	assert.Positive(t, out.Bytes)
}

func TestExecuteParsesParkedPlan(t *testing.T) {
	planID := uuid.New()
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"data": map[string]any{
				"plan_id": planID,
				"status":  "awaiting_approval",
				"risk":    "high",
				"scale":   120,
			},
		})
	}))

	out, err := c.Execute(context.Background(), "orders", map[string]any{"max_orders": 120}, false)
	require.NoError(t, err)
	assert.True(t, out.OK())
	assert.True(t, out.Parked)
	assert.Equal(t, planID, out.PlanID)
	assert.Equal(t, "awaiting_approval", out.PlanStatus)
}

func TestPlanStatusParsesPlan(t *testing.T) {
	planID := uuid.New()
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/plans/"+planID.String(), r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"data": map[string]any{
				"id":         planID,
				"agent_type": "marketing",
				"status":     "READY",
			},
		})
	}))

	out, err := c.PlanStatus(context.Background(), planID)
	require.NoError(t, err)
	assert.Equal(t, planID, out.PlanID)
	assert.Equal(t, "READY", out.PlanStatus)
}

func TestErrorEnvelope(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"success": false,
			"error":   map[string]any{"code": "NOT_FOUND", "message": "plan not found"},
		})
	}))

	out, err := c.PlanStatus(context.Background(), uuid.New())
	require.NoError(t, err, "HTTP errors are outcomes, not transport errors")
	assert.False(t, out.OK())
	assert.Equal(t, http.StatusNotFound, out.StatusCode)
	assert.Equal(t, "NOT_FOUND", out.ErrorCode)
	assert.Equal(t, uuid.Nil, out.PlanID)
}

func TestApproveBody(t *testing.T) {
	planID := uuid.New()
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/plans/"+planID.String()+"/approve", r.URL.Path)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "oncall@example.com", body["approved_by"])

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"data":    map[string]any{"id": planID, "status": "READY"},
		})
	}))

	out, err := c.Approve(context.Background(), planID, "oncall@example.com")
	require.NoError(t, err)
	assert.Equal(t, "READY", out.PlanStatus)
}

func TestHealth(t *testing.T) {
	healthy := true
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/healthz", r.URL.Path)
		if healthy {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
	}))

	require.NoError(t, c.Health(context.Background()))

	healthy = false
	err := c.Health(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 503")
}

func TestTransportErrorSurfaces(t *testing.T) {
	c, srv := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	_, err := c.PlanStatus(context.Background(), uuid.New())
	require.Error(t, err)
}
