package runner

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shopops/automator/tools/loadgen/internal/config"
)

// stubTarget fakes the automator API with just enough shape for the client to
// harvest plan IDs and walk the approval flow.
type stubTarget struct {
	mu        sync.Mutex
	submits   int
	statuses  int
	results   int
	approves  int
	applies   int
	parkEvery int // every Nth submit answers 202; 0 never parks
}

func (s *stubTarget) counts() (submits, statuses, results, approves, applies int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.submits, s.statuses, s.results, s.approves, s.applies
}

func (s *stubTarget) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeStubEnvelope(w, http.StatusOK, map[string]any{"status": "healthy"})
	})
	mux.HandleFunc("/api/v1/", func(w http.ResponseWriter, r *http.Request) {
		path := strings.TrimPrefix(r.URL.Path, "/api/v1/")
		switch {
		case strings.HasPrefix(path, "agents/") && strings.HasSuffix(path, "/execute"):
			s.mu.Lock()
			s.submits++
			parked := s.parkEvery > 0 && s.submits%s.parkEvery == 0
			s.mu.Unlock()

			if parked {
				writeStubEnvelope(w, http.StatusAccepted, map[string]any{
					"plan_id": uuid.New(), "status": "awaiting_approval",
				})
				return
			}
			writeStubEnvelope(w, http.StatusOK, map[string]any{
				"plan_id": uuid.New(), "status": "success",
			})
		case strings.HasSuffix(path, "/result"):
			s.mu.Lock()
			s.results++
			s.mu.Unlock()
			id := strings.TrimSuffix(strings.TrimPrefix(path, "plans/"), "/result")
			writeStubEnvelope(w, http.StatusOK, map[string]any{"plan_id": id, "status": "success"})
		case strings.HasSuffix(path, "/approve"):
			s.mu.Lock()
			s.approves++
			s.mu.Unlock()
			id := strings.TrimSuffix(strings.TrimPrefix(path, "plans/"), "/approve")
			writeStubEnvelope(w, http.StatusOK, map[string]any{"id": id, "status": "approved"})
		case strings.HasSuffix(path, "/apply"):
			s.mu.Lock()
			s.applies++
			s.mu.Unlock()
			id := strings.TrimSuffix(strings.TrimPrefix(path, "plans/"), "/apply")
			writeStubEnvelope(w, http.StatusOK, map[string]any{"plan_id": id, "status": "success"})
		case strings.HasPrefix(path, "plans/"):
			s.mu.Lock()
			s.statuses++
			s.mu.Unlock()
			id := strings.TrimPrefix(path, "plans/")
			writeStubEnvelope(w, http.StatusOK, map[string]any{
				"id": id, "agent_type": "orders", "status": "succeeded",
			})
		default:
			writeStubEnvelope(w, http.StatusNotFound, nil)
		}
	})
	return mux
}

func writeStubEnvelope(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"success": status < 400, "data": data})
}

func testConfig(baseURL string) *config.Config {
	return &config.Config{
		Name:     "runner-test",
		Target:   config.TargetConfig{BaseURL: baseURL, Timeout: 2 * time.Second},
		Duration: 400 * time.Millisecond,
		Rate:     config.RateConfig{QPS: 300, Burst: 50},
		Workers:  4,
		Seed:     42,
		Agents: []config.AgentConfig{
			{Type: "orders", Weight: 2},
			{Type: "inventory", Weight: 1},
		},
		Operations: config.OperationsConfig{Submit: 6, Status: 3, Result: 1},
		Approver:   "tester@example.com",
	}
}

func TestNewWiresComponents(t *testing.T) {
	cfg := testConfig("http://localhost:8080")

	r, err := New(cfg)
	require.NoError(t, err)
	require.NotNil(t, r.client)
	require.NotNil(t, r.generator)
	require.NotNil(t, r.limiter)
	require.NotNil(t, r.workers)
	require.NotNil(t, r.plans)
	require.NotNil(t, r.collector)
	assert.Nil(t, r.exporter, "exporter stays off unless enabled")
}

func TestNewRejectsBadTarget(t *testing.T) {
	cfg := testConfig("")
	_, err := New(cfg)
	require.Error(t, err)
}

func TestRunAgainstStub(t *testing.T) {
	stub := &stubTarget{}
	srv := httptest.NewServer(stub.handler())
	defer srv.Close()

	r, err := New(testConfig(srv.URL))
	require.NoError(t, err)

	var out bytes.Buffer
	r.SetOutput(&out)

	require.NoError(t, r.Run(context.Background()))

	submits, statuses, results, _, _ := stub.counts()
	assert.Greater(t, submits, 0)
	assert.Greater(t, statuses, 0, "harvested plan IDs should feed status reads")
	assert.Greater(t, results, 0)

	snap := r.Snapshot()
	assert.Greater(t, snap.TotalRequests, int64(0))
	assert.Greater(t, snap.SuccessRequests, snap.FailedRequests)
	assert.Contains(t, snap.Operations, "submit")
	assert.Contains(t, snap.Operations, "status")

	assert.Contains(t, out.String(), "Load run: runner-test")
	assert.Contains(t, out.String(), "target is healthy")
	assert.Contains(t, out.String(), "Requests")
}

func TestRunApprovesParkedPlans(t *testing.T) {
	stub := &stubTarget{parkEvery: 3}
	srv := httptest.NewServer(stub.handler())
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.ApproveParked = true

	r, err := New(cfg)
	require.NoError(t, err)
	r.SetOutput(&bytes.Buffer{})

	require.NoError(t, r.Run(context.Background()))

	_, _, _, approves, applies := stub.counts()
	assert.Greater(t, approves, 0)
	assert.Greater(t, applies, 0)

	snap := r.Snapshot()
	assert.Contains(t, snap.Operations, "approve")
	assert.Contains(t, snap.Operations, "apply")
}

func TestRunFailsWhenTargetDown(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	r, err := New(testConfig(srv.URL))
	require.NoError(t, err)
	r.SetOutput(&bytes.Buffer{})

	err = r.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "health check")
}

func TestRunRejectsConcurrentRun(t *testing.T) {
	stub := &stubTarget{}
	srv := httptest.NewServer(stub.handler())
	defer srv.Close()

	r, err := New(testConfig(srv.URL))
	require.NoError(t, err)
	r.SetOutput(&bytes.Buffer{})

	done := make(chan error, 1)
	go func() { done <- r.Run(context.Background()) }()

	// Give the first run a moment to start.
	time.Sleep(50 * time.Millisecond)
	err = r.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already running")

	require.NoError(t, <-done)
}

func TestRunHonorsContextCancel(t *testing.T) {
	stub := &stubTarget{}
	srv := httptest.NewServer(stub.handler())
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.Duration = 0 // run until the context says stop

	r, err := New(cfg)
	require.NoError(t, err)
	r.SetOutput(&bytes.Buffer{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	time.Sleep(150 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("runner did not stop after cancel")
	}
	assert.Greater(t, r.Snapshot().TotalRequests, int64(0))
}
