package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/shopops/automator/internal/application/engine"
	"github.com/shopops/automator/internal/domain/agent"
	"github.com/shopops/automator/internal/domain/plan"
	"github.com/shopops/automator/internal/domain/shared"
	"github.com/shopops/automator/internal/domain/work"
	"github.com/shopops/automator/internal/infrastructure/approval"
	"github.com/shopops/automator/internal/infrastructure/cache"
	"github.com/shopops/automator/internal/infrastructure/escalation"
	"github.com/shopops/automator/internal/infrastructure/event"
	"github.com/shopops/automator/internal/interfaces/http/dto"
)

// stubParams is the parameter struct of the stub agent
type stubParams struct {
	Items     int  `json:"items" validate:"gte=1,lte=100"`
	AutoApply bool `json:"auto_apply"`
}

const stubSchema = `{
	"type": "object",
	"additionalProperties": false,
	"properties": {
		"items":      {"type": "integer"},
		"auto_apply": {"type": "boolean"}
	},
	"required": ["items"]
}`

// stubAgent drives the engine behind the HTTP surface. Refs listed in
// failRefs fail their items.
type stubAgent struct {
	mu          sync.Mutex
	failRefs    map[string]bool
	compensated []string
}

func newStubAgent(failRefs ...string) *stubAgent {
	fails := make(map[string]bool, len(failRefs))
	for _, ref := range failRefs {
		fails[ref] = true
	}
	return &stubAgent{failRefs: fails}
}

func (a *stubAgent) Type() agent.Type { return agent.TypeInventory }

func (a *stubAgent) Spec() agent.Spec {
	return agent.Spec{
		Action:    "stub_sync",
		Schema:    []byte(stubSchema),
		NewParams: func() any { return &stubParams{} },
		Assess: func(params any) (agent.Assessment, error) {
			p := params.(*stubParams)
			return agent.Assessment{
				Risk:          plan.RiskMedium,
				Scale:         p.Items,
				NeedsApproval: p.AutoApply && p.Items > 10,
				Rollback: plan.RollbackPlan{
					Steps: []plan.RollbackStep{
						{Action: "undo_stub_writes", Order: 1},
					},
					Timeout:        time.Minute,
					FallbackAction: "alert_manual_review",
				},
			}, nil
		},
	}
}

func (a *stubAgent) Collect(ctx context.Context, p *plan.Plan) ([]*work.Item, error) {
	params := p.Params.(*stubParams)
	items := make([]*work.Item, 0, params.Items)
	for i := 0; i < params.Items; i++ {
		items = append(items, work.NewItem("record", fmt.Sprintf("rec-%d", i)))
	}
	return items, nil
}

func (a *stubAgent) Preview(p *plan.Plan, items []*work.Item) map[string]any {
	return map[string]any{"records": len(items)}
}

func (a *stubAgent) Execute(ctx context.Context, p *plan.Plan, item *work.Item) (*work.ItemResult, error) {
	if a.failRefs[item.Ref] {
		return work.Failed(item, errors.New("stub write rejected")), nil
	}
	res := work.Succeeded(item)
	res.AddMutation(work.Mutation{Kind: "stub_write", Provider: "stub", EntityID: item.Ref})
	return res, nil
}

func (a *stubAgent) Compensate(ctx context.Context, p *plan.Plan, step plan.RollbackStep, muts []work.Mutation) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.compensated = append(a.compensated, step.Action)
	return nil
}

func (a *stubAgent) compensatedSteps() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.compensated...)
}

// fakeHistory is an in-memory audit trail
type fakeHistory struct {
	mu    sync.Mutex
	execs []work.ExecutionResult
}

func (h *fakeHistory) RecordPlan(ctx context.Context, p *plan.Plan) error { return nil }

func (h *fakeHistory) UpdatePlanStatus(ctx context.Context, id uuid.UUID, status plan.Status) error {
	return nil
}

func (h *fakeHistory) RecordExecution(ctx context.Context, res *work.ExecutionResult) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.execs = append(h.execs, *res)
	return nil
}

func (h *fakeHistory) RecordRollback(ctx context.Context, out *plan.RollbackOutcome) error {
	return nil
}

func (h *fakeHistory) RecentExecutions(ctx context.Context, agentType string, limit int) ([]work.ExecutionResult, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []work.ExecutionResult
	for i := len(h.execs) - 1; i >= 0 && len(out) < limit; i-- {
		if h.execs[i].Agent == agentType {
			out = append(out, h.execs[i])
		}
	}
	return out, nil
}

func (h *fakeHistory) FindPlan(ctx context.Context, id uuid.UUID) (*plan.Plan, error) {
	return nil, shared.ErrNotFound
}

func (h *fakeHistory) LastExecutionForPlan(ctx context.Context, planID uuid.UUID) (*work.ExecutionResult, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i := len(h.execs) - 1; i >= 0; i-- {
		if h.execs[i].PlanID == planID {
			res := h.execs[i]
			return &res, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (h *fakeHistory) RollbacksForPlan(ctx context.Context, planID uuid.UUID) ([]plan.RollbackOutcome, error) {
	return nil, nil
}

type httpEnv struct {
	router *gin.Engine
	agent  *stubAgent
	grants *approval.GrantService
}

func newHTTPEnv(t *testing.T, ag *stubAgent) *httpEnv {
	t.Helper()

	registry := agent.NewRegistry()
	require.NoError(t, registry.Register(ag))

	logger := zaptest.NewLogger(t)
	svc, err := engine.NewService(engine.Config{}, engine.Deps{
		Registry:  registry,
		Approvals: approval.NewInMemoryStore(),
		Ledger:    cache.NewInMemoryLedger(),
		History:   &fakeHistory{},
		Bus:       event.NewInMemoryEventBus(logger),
		Escalator: escalation.NewLogEscalator(logger),
		Logger:    logger,
	})
	require.NoError(t, err)

	grants := approval.NewGrantService(approval.GrantConfig{
		Secret: "handler-test-secret",
		Issuer: "automator-test",
		TTL:    time.Hour,
	})

	router := gin.New()
	NewAutomationHandler(svc, grants).RegisterRoutes(router.Group("/api/v1"))
	return &httpEnv{router: router, agent: ag, grants: grants}
}

func (e *httpEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *httpEnv) doRaw(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, bytes.NewReader([]byte(body)))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) dto.Response {
	t.Helper()

	var resp dto.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), "body: %s", w.Body.String())
	return resp
}

func dataMap(t *testing.T, resp dto.Response) map[string]any {
	t.Helper()

	m, ok := resp.Data.(map[string]any)
	require.True(t, ok, "data is %T", resp.Data)
	return m
}

func TestExecuteEndpoint(t *testing.T) {
	t.Run("apply returns the full result", func(t *testing.T) {
		env := newHTTPEnv(t, newStubAgent())

		w := env.do(t, http.MethodPost, "/api/v1/agents/inventory/execute", gin.H{
			"parameters": gin.H{"items": 3},
		})

		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		resp := decodeEnvelope(t, w)
		assert.True(t, resp.Success)

		data := dataMap(t, resp)
		assert.Equal(t, "success", data["status"])
		assert.Equal(t, "apply", data["mode"])
		assert.Equal(t, "inventory", data["agent"])
		assert.Len(t, data["results"], 3)
	})

	t.Run("dry run leaves the plan ready", func(t *testing.T) {
		env := newHTTPEnv(t, newStubAgent())

		w := env.do(t, http.MethodPost, "/api/v1/agents/inventory/execute", gin.H{
			"parameters": gin.H{"items": 2},
			"dry_run":    true,
		})

		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		data := dataMap(t, decodeEnvelope(t, w))
		assert.Equal(t, "dry_run", data["mode"])

		planID, ok := data["plan_id"].(string)
		require.True(t, ok)
		got := env.do(t, http.MethodGet, "/api/v1/plans/"+planID, nil)
		require.Equal(t, http.StatusOK, got.Code)
		assert.Equal(t, "READY", dataMap(t, decodeEnvelope(t, got))["status"])
	})

	t.Run("gated plan parks with 202", func(t *testing.T) {
		env := newHTTPEnv(t, newStubAgent())

		w := env.do(t, http.MethodPost, "/api/v1/agents/inventory/execute", gin.H{
			"parameters": gin.H{"items": 50, "auto_apply": true},
		})

		require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
		resp := decodeEnvelope(t, w)
		assert.True(t, resp.Success)

		data := dataMap(t, resp)
		assert.Equal(t, "awaiting_approval", data["status"])
		assert.Equal(t, "medium", data["risk"])
		assert.Equal(t, float64(50), data["scale"])
		_, err := uuid.Parse(data["plan_id"].(string))
		assert.NoError(t, err)
	})

	t.Run("unknown agent type answers 404", func(t *testing.T) {
		env := newHTTPEnv(t, newStubAgent())

		w := env.do(t, http.MethodPost, "/api/v1/agents/warehouse/execute", gin.H{
			"parameters": gin.H{"items": 1},
		})

		require.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, dto.ErrCodeNotFound, decodeEnvelope(t, w).Error.Code)
	})

	t.Run("rejected parameters answer 400", func(t *testing.T) {
		env := newHTTPEnv(t, newStubAgent())

		for name, params := range map[string]gin.H{
			"out of bounds": {"items": 0},
			"unknown field": {"items": 1, "surprise": true},
		} {
			w := env.do(t, http.MethodPost, "/api/v1/agents/inventory/execute", gin.H{
				"parameters": params,
			})
			require.Equal(t, http.StatusBadRequest, w.Code, name)
			assert.Equal(t, dto.ErrCodeValidation, decodeEnvelope(t, w).Error.Code, name)
		}
	})

	t.Run("malformed body answers 400", func(t *testing.T) {
		env := newHTTPEnv(t, newStubAgent())

		w := env.doRaw(t, http.MethodPost, "/api/v1/agents/inventory/execute", `{"parameters": {`)

		require.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, dto.ErrCodeBadRequest, decodeEnvelope(t, w).Error.Code)
	})

	t.Run("missing parameters answer 400", func(t *testing.T) {
		env := newHTTPEnv(t, newStubAgent())

		w := env.do(t, http.MethodPost, "/api/v1/agents/inventory/execute", gin.H{})

		require.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, dto.ErrCodeBadRequest, decodeEnvelope(t, w).Error.Code)
	})
}

func TestExecuteEndpointRunFailures(t *testing.T) {
	t.Run("every item failing answers 500 with the result attached", func(t *testing.T) {
		env := newHTTPEnv(t, newStubAgent("rec-0", "rec-1"))

		w := env.do(t, http.MethodPost, "/api/v1/agents/inventory/execute", gin.H{
			"parameters": gin.H{"items": 2},
		})

		require.Equal(t, http.StatusInternalServerError, w.Code, w.Body.String())
		resp := decodeEnvelope(t, w)
		assert.False(t, resp.Success)
		require.NotNil(t, resp.Error)
		assert.Equal(t, dto.ErrCodeExecutionFailed, resp.Error.Code)

		data := dataMap(t, resp)
		assert.Equal(t, "error", data["status"])
		assert.Len(t, data["results"], 2)
	})

	t.Run("mixed outcomes answer 207", func(t *testing.T) {
		env := newHTTPEnv(t, newStubAgent("rec-1"))

		w := env.do(t, http.MethodPost, "/api/v1/agents/inventory/execute", gin.H{
			"parameters": gin.H{"items": 3},
		})

		require.Equal(t, http.StatusMultiStatus, w.Code, w.Body.String())
		resp := decodeEnvelope(t, w)
		assert.True(t, resp.Success)
		assert.Equal(t, "partial", dataMap(t, resp)["status"])
	})
}

func TestPlanLifecycleEndpoints(t *testing.T) {
	env := newHTTPEnv(t, newStubAgent())

	w := env.do(t, http.MethodPost, "/api/v1/plans", gin.H{
		"agent":      "inventory",
		"parameters": gin.H{"items": 2},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := dataMap(t, decodeEnvelope(t, w))
	assert.Equal(t, "READY", created["status"])

	planID, ok := created["id"].(string)
	require.True(t, ok)
	base := "/api/v1/plans/" + planID

	w = env.do(t, http.MethodGet, base, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, http.MethodPost, base+"/dry-run", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "dry_run", dataMap(t, decodeEnvelope(t, w))["mode"])

	w = env.do(t, http.MethodPost, base+"/apply", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "apply", dataMap(t, decodeEnvelope(t, w))["mode"])

	w = env.do(t, http.MethodGet, base+"/result", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "success", dataMap(t, decodeEnvelope(t, w))["status"])

	// the ledger grants one apply per plan
	w = env.do(t, http.MethodPost, base+"/apply", nil)
	require.Equal(t, http.StatusConflict, w.Code, w.Body.String())
	assert.Equal(t, dto.ErrCodeAlreadyApplied, decodeEnvelope(t, w).Error.Code)

	w = env.do(t, http.MethodPost, base+"/rollback", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	outcome := dataMap(t, decodeEnvelope(t, w))
	assert.Equal(t, "ROLLED_BACK", outcome["status"])
	assert.Equal(t, float64(1), outcome["steps_run"])
	assert.Equal(t, []string{"undo_stub_writes"}, env.agent.compensatedSteps())

	w = env.do(t, http.MethodGet, base+"/rollback", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ROLLED_BACK", dataMap(t, decodeEnvelope(t, w))["status"])
}

func TestApprovalEndpoints(t *testing.T) {
	env := newHTTPEnv(t, newStubAgent())

	w := env.do(t, http.MethodPost, "/api/v1/plans", gin.H{
		"agent":      "inventory",
		"parameters": gin.H{"items": 20, "auto_apply": true},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := dataMap(t, decodeEnvelope(t, w))
	assert.Equal(t, "AWAITING_APPROVAL", created["status"])

	planID := created["id"].(string)
	base := "/api/v1/plans/" + planID

	// applying a parked plan reports the pending approval, not an error
	w = env.do(t, http.MethodPost, base+"/apply", nil)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	assert.Equal(t, "awaiting_approval", dataMap(t, decodeEnvelope(t, w))["status"])

	w = env.do(t, http.MethodPost, base+"/approve", gin.H{"note": "missing approver"})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, dto.ErrCodeBadRequest, decodeEnvelope(t, w).Error.Code)

	w = env.do(t, http.MethodPost, base+"/approve", gin.H{
		"approved_by": "ops@example.com",
		"note":        "reviewed the preview",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "READY", dataMap(t, decodeEnvelope(t, w))["status"])

	w = env.do(t, http.MethodPost, base+"/approve", gin.H{"approved_by": "ops@example.com"})
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, dto.ErrCodeInvalidState, decodeEnvelope(t, w).Error.Code)

	w = env.do(t, http.MethodPost, base+"/apply", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "success", dataMap(t, decodeEnvelope(t, w))["status"])
}

func TestApproveWithGrant(t *testing.T) {
	env := newHTTPEnv(t, newStubAgent())

	w := env.do(t, http.MethodPost, "/api/v1/plans", gin.H{
		"agent":      "inventory",
		"parameters": gin.H{"items": 20, "auto_apply": true},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	planID, err := uuid.Parse(dataMap(t, decodeEnvelope(t, w))["id"].(string))
	require.NoError(t, err)
	base := "/api/v1/plans/" + planID.String()

	t.Run("grant for another plan is rejected", func(t *testing.T) {
		token, err := env.grants.Issue(uuid.New(), "oncall@example.com", "")
		require.NoError(t, err)

		w := env.do(t, http.MethodPost, base+"/approve", gin.H{"grant": token})
		require.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
		assert.Equal(t, dto.ErrCodeBadRequest, decodeEnvelope(t, w).Error.Code)
	})

	t.Run("garbage token is rejected", func(t *testing.T) {
		w := env.do(t, http.MethodPost, base+"/approve", gin.H{"grant": "not-a-token"})
		require.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("matching grant releases the plan", func(t *testing.T) {
		token, err := env.grants.Issue(planID, "oncall@example.com", "approved via chat link")
		require.NoError(t, err)

		w := env.do(t, http.MethodPost, base+"/approve", gin.H{"grant": token})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.Equal(t, "READY", dataMap(t, decodeEnvelope(t, w))["status"])
	})
}

func TestPlanReadErrors(t *testing.T) {
	env := newHTTPEnv(t, newStubAgent())

	t.Run("invalid plan id answers 400", func(t *testing.T) {
		w := env.do(t, http.MethodGet, "/api/v1/plans/not-a-uuid", nil)
		require.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, dto.ErrCodeBadRequest, decodeEnvelope(t, w).Error.Code)
	})

	t.Run("unknown plan answers 404 on every read", func(t *testing.T) {
		base := "/api/v1/plans/" + uuid.NewString()
		for _, path := range []string{base, base + "/result", base + "/rollback"} {
			w := env.do(t, http.MethodGet, path, nil)
			require.Equal(t, http.StatusNotFound, w.Code, path)
			assert.Equal(t, dto.ErrCodeNotFound, decodeEnvelope(t, w).Error.Code, path)
		}
	})

	t.Run("cancelling a plan that is not running answers 422", func(t *testing.T) {
		w := env.do(t, http.MethodPost, "/api/v1/plans/"+uuid.NewString()+"/cancel", nil)
		require.Equal(t, http.StatusUnprocessableEntity, w.Code)
		assert.Equal(t, dto.ErrCodeInvalidState, decodeEnvelope(t, w).Error.Code)
	})
}

func TestListAgents(t *testing.T) {
	env := newHTTPEnv(t, newStubAgent())

	w := env.do(t, http.MethodGet, "/api/v1/agents", nil)

	require.Equal(t, http.StatusOK, w.Code)
	data := dataMap(t, decodeEnvelope(t, w))
	assert.Contains(t, data["agents"], "inventory")
}

func TestListExecutions(t *testing.T) {
	env := newHTTPEnv(t, newStubAgent())

	w := env.do(t, http.MethodPost, "/api/v1/agents/inventory/execute", gin.H{
		"parameters": gin.H{"items": 1},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	t.Run("returns the recorded history", func(t *testing.T) {
		w := env.do(t, http.MethodGet, "/api/v1/agents/inventory/executions", nil)

		require.Equal(t, http.StatusOK, w.Code)
		data := dataMap(t, decodeEnvelope(t, w))
		executions, ok := data["executions"].([]any)
		require.True(t, ok)
		require.Len(t, executions, 1)
		first := executions[0].(map[string]any)
		assert.Equal(t, "inventory", first["agent"])
	})

	t.Run("rejects an oversized limit", func(t *testing.T) {
		w := env.do(t, http.MethodGet, "/api/v1/agents/inventory/executions?limit=1000", nil)
		require.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, dto.ErrCodeBadRequest, decodeEnvelope(t, w).Error.Code)
	})
}
