package engine

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/shopops/automator/internal/domain/agent"
	"github.com/shopops/automator/internal/domain/plan"
	"github.com/shopops/automator/internal/domain/shared"
	"github.com/shopops/automator/internal/domain/work"
)

// scriptParams is the parameter struct of the scripted test agent
type scriptParams struct {
	MaxItems  int  `json:"max_items" validate:"gte=1,lte=500"`
	AutoApply bool `json:"auto_apply"`
}

const scriptSchema = `{
	"type": "object",
	"additionalProperties": false,
	"properties": {
		"max_items":  {"type": "integer"},
		"auto_apply": {"type": "boolean"}
	},
	"required": ["max_items"]
}`

// scriptAgent is a configurable agent used to drive the engine in tests
type scriptAgent struct {
	typ        agent.Type
	assess     func(p *scriptParams) (agent.Assessment, error)
	collect    func(ctx context.Context, p *plan.Plan) ([]*work.Item, error)
	execute    func(ctx context.Context, p *plan.Plan, item *work.Item) (*work.ItemResult, error)
	compensate func(ctx context.Context, p *plan.Plan, step plan.RollbackStep, muts []work.Mutation) error

	mu          sync.Mutex
	executed    []string
	compensated []string
}

func newScriptAgent() *scriptAgent {
	return &scriptAgent{typ: agent.TypeOrders}
}

func (a *scriptAgent) Type() agent.Type { return a.typ }

func (a *scriptAgent) Spec() agent.Spec {
	return agent.Spec{
		Action:    "scripted_action",
		Schema:    []byte(scriptSchema),
		NewParams: func() any { return &scriptParams{} },
		Assess: func(params any) (agent.Assessment, error) {
			p := params.(*scriptParams)
			if a.assess != nil {
				return a.assess(p)
			}
			return agent.Assessment{
				Risk:          plan.RiskMedium,
				Scale:         p.MaxItems,
				NeedsApproval: p.AutoApply && p.MaxItems > 100,
				Rollback: plan.RollbackPlan{
					Steps: []plan.RollbackStep{
						{Action: "undo_writes", Order: 1},
					},
					Timeout:        time.Minute,
					FallbackAction: "alert_manual_review",
				},
			}, nil
		},
	}
}

func (a *scriptAgent) Collect(ctx context.Context, p *plan.Plan) ([]*work.Item, error) {
	if a.collect != nil {
		return a.collect(ctx, p)
	}
	params := p.Params.(*scriptParams)
	items := make([]*work.Item, 0, params.MaxItems)
	for i := 0; i < params.MaxItems; i++ {
		items = append(items, work.NewItem("record", fmt.Sprintf("rec-%d", i)))
	}
	return items, nil
}

func (a *scriptAgent) Preview(p *plan.Plan, items []*work.Item) map[string]any {
	return map[string]any{"estimated_writes": len(items)}
}

func (a *scriptAgent) Execute(ctx context.Context, p *plan.Plan, item *work.Item) (*work.ItemResult, error) {
	a.mu.Lock()
	a.executed = append(a.executed, item.Ref)
	a.mu.Unlock()
	if a.execute != nil {
		return a.execute(ctx, p, item)
	}
	res := work.Succeeded(item)
	res.AddMutation(work.Mutation{Kind: "test_write", Provider: "fake", EntityID: item.Ref})
	return res, nil
}

func (a *scriptAgent) Compensate(ctx context.Context, p *plan.Plan, step plan.RollbackStep, muts []work.Mutation) error {
	a.mu.Lock()
	a.compensated = append(a.compensated, step.Action)
	a.mu.Unlock()
	if a.compensate != nil {
		return a.compensate(ctx, p, step, muts)
	}
	return nil
}

func (a *scriptAgent) executedRefs() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.executed...)
}

func (a *scriptAgent) compensatedSteps() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.compensated...)
}

// fakeApprovals is an in-memory approval store
type fakeApprovals struct {
	mu sync.Mutex
	m  map[uuid.UUID]*plan.Approval
}

func newFakeApprovals() *fakeApprovals {
	return &fakeApprovals{m: make(map[uuid.UUID]*plan.Approval)}
}

func (s *fakeApprovals) Record(ctx context.Context, a *plan.Approval) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[a.PlanID] = a
	return nil
}

func (s *fakeApprovals) Get(ctx context.Context, planID uuid.UUID) (*plan.Approval, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.m[planID]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return a, nil
}

// fakeLedger is an in-memory applied-plan ledger
type fakeLedger struct {
	mu sync.Mutex
	m  map[string]bool
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{m: make(map[string]bool)}
}

func (l *fakeLedger) MarkProcessed(ctx context.Context, id string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.m[id] {
		return false, nil
	}
	l.m[id] = true
	return true, nil
}

func (l *fakeLedger) IsProcessed(ctx context.Context, id string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.m[id], nil
}

func (l *fakeLedger) Close() error { return nil }

// fakeHistory records audit writes for assertions
type fakeHistory struct {
	mu        sync.Mutex
	plans     []*plan.Plan
	execs     []*work.ExecutionResult
	rollbacks []*plan.RollbackOutcome
	statuses  map[uuid.UUID][]plan.Status
}

func newFakeHistory() *fakeHistory {
	return &fakeHistory{statuses: make(map[uuid.UUID][]plan.Status)}
}

func (h *fakeHistory) RecordPlan(ctx context.Context, p *plan.Plan) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.plans = append(h.plans, p)
	return nil
}

func (h *fakeHistory) UpdatePlanStatus(ctx context.Context, id uuid.UUID, status plan.Status) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.statuses[id] = append(h.statuses[id], status)
	return nil
}

func (h *fakeHistory) RecordExecution(ctx context.Context, res *work.ExecutionResult) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.execs = append(h.execs, res)
	return nil
}

func (h *fakeHistory) RecordRollback(ctx context.Context, out *plan.RollbackOutcome) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.rollbacks = append(h.rollbacks, out)
	return nil
}

func (h *fakeHistory) RecentExecutions(ctx context.Context, agentType string, limit int) ([]work.ExecutionResult, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []work.ExecutionResult
	for i := len(h.execs) - 1; i >= 0 && len(out) < limit; i-- {
		if h.execs[i].Agent == agentType {
			out = append(out, *h.execs[i])
		}
	}
	return out, nil
}

func (h *fakeHistory) FindPlan(ctx context.Context, id uuid.UUID) (*plan.Plan, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, p := range h.plans {
		if p.ID == id {
			return p, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (h *fakeHistory) LastExecutionForPlan(ctx context.Context, planID uuid.UUID) (*work.ExecutionResult, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i := len(h.execs) - 1; i >= 0; i-- {
		if h.execs[i].PlanID == planID {
			return h.execs[i], nil
		}
	}
	return nil, shared.ErrNotFound
}

func (h *fakeHistory) RollbacksForPlan(ctx context.Context, planID uuid.UUID) ([]plan.RollbackOutcome, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []plan.RollbackOutcome
	for i := len(h.rollbacks) - 1; i >= 0; i-- {
		if h.rollbacks[i].PlanID == planID {
			out = append(out, *h.rollbacks[i])
		}
	}
	return out, nil
}

// fakeBus collects published events
type fakeBus struct {
	mu     sync.Mutex
	events []shared.DomainEvent
}

func (b *fakeBus) Publish(ctx context.Context, events ...shared.DomainEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, events...)
	return nil
}

func (b *fakeBus) eventTypes() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	types := make([]string, 0, len(b.events))
	for _, e := range b.events {
		types = append(types, e.EventType())
	}
	return types
}

// fakeEscalator records fallback invocations
type fakeEscalator struct {
	mu    sync.Mutex
	calls []string
}

func (e *fakeEscalator) Escalate(ctx context.Context, p *plan.Plan, action, reason string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, action)
	return nil
}

func (e *fakeEscalator) invocations() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.calls...)
}

type testEnv struct {
	svc       *Service
	agent     *scriptAgent
	approvals *fakeApprovals
	ledger    *fakeLedger
	history   *fakeHistory
	bus       *fakeBus
	escalator *fakeEscalator
}

func newTestEnv(t *testing.T, ag *scriptAgent, cfg Config) *testEnv {
	t.Helper()

	registry := agent.NewRegistry()
	require.NoError(t, registry.Register(ag))

	env := &testEnv{
		agent:     ag,
		approvals: newFakeApprovals(),
		ledger:    newFakeLedger(),
		history:   newFakeHistory(),
		bus:       &fakeBus{},
		escalator: &fakeEscalator{},
	}

	svc, err := NewService(cfg, Deps{
		Registry:  registry,
		Approvals: env.approvals,
		Ledger:    env.ledger,
		History:   env.history,
		Bus:       env.bus,
		Escalator: env.escalator,
		Logger:    zap.NewNop(),
	})
	require.NoError(t, err)
	env.svc = svc
	return env
}
