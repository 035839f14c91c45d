package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/shopops/automator/internal/domain/agent"
	"github.com/shopops/automator/internal/domain/plan"
	"github.com/shopops/automator/internal/domain/shared"
	"github.com/shopops/automator/internal/domain/work"
)

// ResultArchive stores finished execution results out of band. A nil
// archive disables archiving.
type ResultArchive interface {
	Store(ctx context.Context, res *work.ExecutionResult) (string, error)
}

// Config tunes the engine
type Config struct {
	// Workers bounds in-plan concurrency; 1 means sequential
	Workers int
	// PlanTTL is how long the applied-plan ledger remembers a consumed
	// plan ID
	PlanTTL time.Duration
	// ApprovalTTL is the default validity of an approval that does not
	// carry its own expiry; zero means approvals do not expire
	ApprovalTTL time.Duration
}

func (c *Config) applyDefaults() {
	if c.Workers < 1 {
		c.Workers = 1
	}
	if c.PlanTTL <= 0 {
		c.PlanTTL = 24 * time.Hour
	}
}

// Deps are the collaborators the engine needs. Archive is optional,
// everything else is required.
type Deps struct {
	Registry  *agent.Registry
	Approvals plan.ApprovalStore
	Ledger    shared.IdempotencyStore
	History   plan.HistoryRepository
	Bus       shared.EventPublisher
	Escalator Escalator
	Archive   ResultArchive
	Logger    *zap.Logger
}

func (d *Deps) validate() error {
	switch {
	case d.Registry == nil:
		return errors.New("engine: registry is required")
	case d.Approvals == nil:
		return errors.New("engine: approval store is required")
	case d.Ledger == nil:
		return errors.New("engine: applied-plan ledger is required")
	case d.History == nil:
		return errors.New("engine: history repository is required")
	case d.Bus == nil:
		return errors.New("engine: event publisher is required")
	case d.Escalator == nil:
		return errors.New("engine: escalator is required")
	case d.Logger == nil:
		return errors.New("engine: logger is required")
	}
	return nil
}

// Service is the engine facade: it builds plans, gates them, runs them and
// rolls them back. Every known plan and its latest result live in memory;
// the history repository is an audit trail the engine never reads back for
// correctness.
type Service struct {
	cfg      Config
	registry *agent.Registry
	builder  *PlanBuilder
	executor *Executor
	rollback *RollbackCoordinator

	approvals plan.ApprovalStore
	ledger    shared.IdempotencyStore
	history   plan.HistoryRepository
	bus       shared.EventPublisher
	archive   ResultArchive
	logger    *zap.Logger

	mu       sync.RWMutex
	plans    map[uuid.UUID]*plan.Plan
	results  map[uuid.UUID]*work.ExecutionResult
	outcomes map[uuid.UUID]*plan.RollbackOutcome
	running  map[uuid.UUID]context.CancelFunc
}

// NewService wires the engine together and compiles every agent schema
func NewService(cfg Config, deps Deps) (*Service, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	builder, err := NewPlanBuilder(deps.Registry, deps.Logger)
	if err != nil {
		return nil, err
	}

	return &Service{
		cfg:       cfg,
		registry:  deps.Registry,
		builder:   builder,
		executor:  NewExecutor(cfg.Workers, deps.Logger),
		rollback:  NewRollbackCoordinator(deps.Escalator, deps.Logger),
		approvals: deps.Approvals,
		ledger:    deps.Ledger,
		history:   deps.History,
		bus:       deps.Bus,
		archive:   deps.Archive,
		logger:    deps.Logger.Named("engine"),
		plans:     make(map[uuid.UUID]*plan.Plan),
		results:   make(map[uuid.UUID]*work.ExecutionResult),
		outcomes:  make(map[uuid.UUID]*plan.RollbackOutcome),
		running:   make(map[uuid.UUID]context.CancelFunc),
	}, nil
}

// ExecuteRequest is the single-call surface: build a plan from raw
// parameters and run it in one go
type ExecuteRequest struct {
	AgentType  agent.Type
	Parameters map[string]any
	DependsOn  []uuid.UUID
	DryRun     bool
}

// Execute builds a plan and immediately dry-runs or applies it. A plan
// that needs approval is parked and reported through
// ApprovalRequiredError; it can be approved and applied later by ID.
func (s *Service) Execute(ctx context.Context, req ExecuteRequest) (*work.ExecutionResult, error) {
	p, err := s.Plan(ctx, BuildRequest{
		AgentType:  req.AgentType,
		Parameters: req.Parameters,
		DependsOn:  req.DependsOn,
	})
	if err != nil {
		return nil, err
	}
	if req.DryRun {
		return s.DryRun(ctx, p.ID)
	}
	if p.NeedsApproval {
		return nil, &ApprovalRequiredError{PlanID: p.ID, Risk: p.Risk, Scale: p.Scale}
	}
	return s.Apply(ctx, p.ID)
}

// Plan validates parameters and registers a new plan
func (s *Service) Plan(ctx context.Context, req BuildRequest) (p *plan.Plan, err error) {
	ctx, span := tracer.Start(ctx, "plan.build",
		trace.WithAttributes(attribute.String("agent_type", string(req.AgentType))))
	defer func() { endSpan(span, err) }()

	p, err = s.builder.Build(ctx, req)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(
		attribute.String("plan_id", p.ID.String()),
		attribute.String("risk", string(p.Risk)),
		attribute.Bool("needs_approval", p.NeedsApproval),
	)

	s.mu.Lock()
	s.plans[p.ID] = p
	s.mu.Unlock()

	s.auditPlan(ctx, p)
	s.publish(ctx, plan.NewCreatedEvent(p))
	return p, nil
}

// Get returns a live plan by ID. Lifecycle operations go through Get so
// they only ever act on plans this process owns.
func (s *Service) Get(planID uuid.UUID) (*plan.Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.plans[planID]
	if !ok {
		return nil, fmt.Errorf("%w: plan %s", shared.ErrNotFound, planID)
	}
	return p, nil
}

// LookupPlan returns a plan by ID, falling back to the audit trail for
// plans that predate this process. Plans served from the trail are a
// historical record, not actionable state.
func (s *Service) LookupPlan(ctx context.Context, planID uuid.UUID) (*plan.Plan, error) {
	if p, err := s.Get(planID); err == nil {
		return p, nil
	}
	return s.history.FindPlan(ctx, planID)
}

// Result returns the latest apply result for a plan
func (s *Service) Result(planID uuid.UUID) (*work.ExecutionResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	res, ok := s.results[planID]
	if !ok {
		return nil, fmt.Errorf("%w: no result for plan %s", shared.ErrNotFound, planID)
	}
	return res, nil
}

// LookupResult returns the newest recorded run for a plan. Applies held in
// memory answer first; otherwise the audit trail answers, dry runs
// included.
func (s *Service) LookupResult(ctx context.Context, planID uuid.UUID) (*work.ExecutionResult, error) {
	if res, err := s.Result(planID); err == nil {
		return res, nil
	}
	return s.history.LastExecutionForPlan(ctx, planID)
}

// RollbackOutcome returns the rollback record for a plan, if one exists
func (s *Service) RollbackOutcome(planID uuid.UUID) (*plan.RollbackOutcome, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out, ok := s.outcomes[planID]
	if !ok {
		return nil, fmt.Errorf("%w: no rollback recorded for plan %s", shared.ErrNotFound, planID)
	}
	return out, nil
}

// LookupRollback returns the newest rollback outcome for a plan, falling
// back to the audit trail
func (s *Service) LookupRollback(ctx context.Context, planID uuid.UUID) (*plan.RollbackOutcome, error) {
	if out, err := s.RollbackOutcome(planID); err == nil {
		return out, nil
	}
	outs, err := s.history.RollbacksForPlan(ctx, planID)
	if err != nil {
		return nil, err
	}
	if len(outs) == 0 {
		return nil, fmt.Errorf("%w: no rollback recorded for plan %s", shared.ErrNotFound, planID)
	}
	return &outs[0], nil
}

// Agents lists the registered agent types
func (s *Service) Agents() []agent.Type {
	return s.registry.Types()
}

// RecentExecutions returns the audit trail for one agent type
func (s *Service) RecentExecutions(ctx context.Context, agentType string, limit int) ([]work.ExecutionResult, error) {
	return s.history.RecentExecutions(ctx, agentType, limit)
}

// DryRun simulates a plan. No mutating gateway call is made and the plan's
// lifecycle state does not move.
func (s *Service) DryRun(ctx context.Context, planID uuid.UUID) (*work.ExecutionResult, error) {
	p, err := s.Get(planID)
	if err != nil {
		return nil, err
	}
	ag, err := s.registry.Get(agent.Type(p.AgentType))
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	busy := p.Status == plan.StatusRunning || p.Status == plan.StatusRollingBack
	s.mu.RUnlock()
	if busy {
		return nil, fmt.Errorf("%w: plan %s is %s", shared.ErrInvalidState, p.ID, p.Status)
	}

	res := s.executor.DryRun(ctx, ag, p)
	s.auditExecution(ctx, res)
	s.publish(ctx, plan.NewExecutedEvent(res))
	return res, nil
}

// Approve records a human decision and releases a gated plan
func (s *Service) Approve(ctx context.Context, planID uuid.UUID, a *plan.Approval) error {
	p, err := s.Get(planID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if p.Status != plan.StatusAwaitingApproval {
		status := p.Status
		s.mu.Unlock()
		return fmt.Errorf("%w: plan %s is %s, not awaiting approval", shared.ErrInvalidState, p.ID, status)
	}
	s.mu.Unlock()

	a.PlanID = planID
	if a.GrantedAt.IsZero() {
		a.GrantedAt = time.Now()
	}
	if a.ExpiresAt.IsZero() && s.cfg.ApprovalTTL > 0 {
		a.ExpiresAt = a.GrantedAt.Add(s.cfg.ApprovalTTL)
	}
	if err := s.approvals.Record(ctx, a); err != nil {
		return fmt.Errorf("record approval: %w", err)
	}

	s.mu.Lock()
	err = p.Transition(plan.StatusReady)
	s.mu.Unlock()
	if err != nil {
		return err
	}

	s.auditStatus(ctx, p)
	s.publish(ctx, plan.NewApprovedEvent(p, a.ApprovedBy))
	s.logger.Info("plan approved",
		zap.String("plan_id", p.ID.String()),
		zap.String("approved_by", a.ApprovedBy),
	)
	return nil
}

// Apply runs a plan for real. The approval gate, the dependency gate and
// the applied-plan ledger all stand in front of execution; once the ledger
// marks the plan, this is its only apply. An aborted run with recorded
// mutations triggers rollback automatically.
func (s *Service) Apply(ctx context.Context, planID uuid.UUID) (res *work.ExecutionResult, err error) {
	ctx, span := tracer.Start(ctx, "plan.apply",
		trace.WithAttributes(attribute.String("plan_id", planID.String())))
	defer func() { endSpan(span, err) }()

	p, err := s.Get(planID)
	if err != nil {
		return nil, err
	}
	ag, err := s.registry.Get(agent.Type(p.AgentType))
	if err != nil {
		return nil, err
	}
	span.SetAttributes(
		attribute.String("agent_type", p.AgentType),
		attribute.String("risk", string(p.Risk)),
	)

	if unmet := s.unmetDependencies(p); len(unmet) > 0 {
		return nil, &DependencyError{PlanID: p.ID, Unmet: unmet}
	}

	approval, err := s.approvals.Get(ctx, p.ID)
	if err != nil && !errors.Is(err, shared.ErrNotFound) {
		return nil, fmt.Errorf("load approval: %w", err)
	}
	if !plan.CanApply(p, approval) {
		return nil, &ApprovalRequiredError{PlanID: p.ID, Risk: p.Risk, Scale: p.Scale}
	}

	marked, err := s.ledger.MarkProcessed(ctx, applyKey(p.ID), s.cfg.PlanTTL)
	if err != nil {
		return nil, fmt.Errorf("applied-plan ledger: %w", err)
	}
	if !marked {
		return nil, &AlreadyAppliedError{PlanID: p.ID}
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	if err := p.Transition(plan.StatusRunning); err != nil {
		s.mu.Unlock()
		cancel()
		return nil, err
	}
	s.running[p.ID] = cancel
	s.mu.Unlock()
	s.auditStatus(ctx, p)

	res = s.executor.Apply(runCtx, ag, p)
	span.SetAttributes(attribute.String("run_status", string(res.Status)))

	s.mu.Lock()
	delete(s.running, p.ID)
	s.results[p.ID] = res
	final := finalStatus(res.Status)
	transitionErr := p.Transition(final)
	s.mu.Unlock()
	cancel()
	if transitionErr != nil {
		s.logger.Error("final transition rejected", zap.String("plan_id", p.ID.String()), zap.Error(transitionErr))
	}

	s.auditStatus(ctx, p)
	s.auditExecution(ctx, res)
	s.publish(ctx, plan.NewExecutedEvent(res))
	s.archiveResult(ctx, res)

	if res.Aborted != "" && len(res.Mutations()) > 0 {
		// the run context may already be dead; compensation still has to run
		if _, err := s.runRollback(context.WithoutCancel(ctx), ag, p, res); err != nil {
			s.logger.Error("automatic rollback failed to start",
				zap.String("plan_id", p.ID.String()),
				zap.Error(err),
			)
		}
	}
	return res, nil
}

// Cancel requests cooperative cancellation of a running plan. The executor
// finishes the in-flight item, marks the rest skipped and emits a partial
// result.
func (s *Service) Cancel(planID uuid.UUID) error {
	s.mu.RLock()
	cancel, ok := s.running[planID]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: plan %s is not running", shared.ErrInvalidState, planID)
	}
	cancel()
	s.logger.Info("cancellation requested", zap.String("plan_id", planID.String()))
	return nil
}

// Rollback explicitly compensates a finished plan using its last recorded
// result
func (s *Service) Rollback(ctx context.Context, planID uuid.UUID) (*plan.RollbackOutcome, error) {
	p, err := s.Get(planID)
	if err != nil {
		return nil, err
	}
	ag, err := s.registry.Get(agent.Type(p.AgentType))
	if err != nil {
		return nil, err
	}
	res, err := s.Result(planID)
	if err != nil {
		return nil, err
	}
	return s.runRollback(ctx, ag, p, res)
}

func (s *Service) runRollback(ctx context.Context, ag agent.Agent, p *plan.Plan, res *work.ExecutionResult) (out *plan.RollbackOutcome, err error) {
	ctx, span := tracer.Start(ctx, "plan.rollback",
		trace.WithAttributes(
			attribute.String("plan_id", p.ID.String()),
			attribute.String("agent_type", p.AgentType),
		))
	defer func() { endSpan(span, err) }()

	s.mu.Lock()
	err = p.Transition(plan.StatusRollingBack)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	s.auditStatus(ctx, p)

	out = s.rollback.Run(ctx, ag, p, res)
	span.SetAttributes(
		attribute.Int("steps_run", out.StepsRun),
		attribute.Int("steps_failed", out.StepsFailed),
	)

	s.mu.Lock()
	s.outcomes[p.ID] = out
	transitionErr := p.Transition(out.Status)
	s.mu.Unlock()
	if transitionErr != nil {
		s.logger.Error("rollback transition rejected", zap.String("plan_id", p.ID.String()), zap.Error(transitionErr))
	}

	s.auditStatus(ctx, p)
	if err := s.history.RecordRollback(ctx, out); err != nil {
		s.logger.Warn("rollback audit write failed", zap.String("plan_id", p.ID.String()), zap.Error(err))
	}
	s.publish(ctx, plan.NewRolledBackEvent(p, out))
	return out, nil
}

func (s *Service) unmetDependencies(p *plan.Plan) []uuid.UUID {
	if len(p.Dependencies) == 0 {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var unmet []uuid.UUID
	for _, dep := range p.Dependencies {
		d, ok := s.plans[dep]
		if !ok || d.Status != plan.StatusSucceeded {
			unmet = append(unmet, dep)
		}
	}
	return unmet
}

func finalStatus(st work.Status) plan.Status {
	switch st {
	case work.StatusSuccess:
		return plan.StatusSucceeded
	case work.StatusPartial:
		return plan.StatusPartial
	default:
		return plan.StatusFailed
	}
}

func applyKey(planID uuid.UUID) string {
	return "plan:apply:" + planID.String()
}

func (s *Service) publish(ctx context.Context, events ...shared.DomainEvent) {
	if err := s.bus.Publish(ctx, events...); err != nil {
		s.logger.Warn("event publish failed", zap.Error(err))
	}
}

func (s *Service) auditPlan(ctx context.Context, p *plan.Plan) {
	if err := s.history.RecordPlan(ctx, p); err != nil {
		s.logger.Warn("plan audit write failed", zap.String("plan_id", p.ID.String()), zap.Error(err))
	}
}

func (s *Service) auditStatus(ctx context.Context, p *plan.Plan) {
	if err := s.history.UpdatePlanStatus(ctx, p.ID, p.Status); err != nil {
		s.logger.Warn("status audit write failed", zap.String("plan_id", p.ID.String()), zap.Error(err))
	}
}

func (s *Service) auditExecution(ctx context.Context, res *work.ExecutionResult) {
	if err := s.history.RecordExecution(ctx, res); err != nil {
		s.logger.Warn("execution audit write failed", zap.String("plan_id", res.PlanID.String()), zap.Error(err))
	}
}

func (s *Service) archiveResult(ctx context.Context, res *work.ExecutionResult) {
	if s.archive == nil {
		return
	}
	key, err := s.archive.Store(ctx, res)
	if err != nil {
		s.logger.Warn("result archive failed", zap.String("plan_id", res.PlanID.String()), zap.Error(err))
		return
	}
	s.logger.Debug("result archived", zap.String("plan_id", res.PlanID.String()), zap.String("key", key))
}
