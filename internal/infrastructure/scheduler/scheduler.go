// Package scheduler submits recurring automation plans from static
// configuration. Each job carries a standard five-field cron expression;
// due jobs are built and run through the engine exactly as an operator
// request would be, approval gating included.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	cronlib "github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/shopops/automator/internal/application/engine"
	"github.com/shopops/automator/internal/domain/agent"
	"github.com/shopops/automator/internal/domain/work"
	"github.com/shopops/automator/internal/infrastructure/config"
)

// checkInterval is how often the scheduler looks for due jobs.
const checkInterval = time.Minute

// defaultSubmitTimeout bounds a single scheduled submission.
const defaultSubmitTimeout = 10 * time.Minute

// cronParser parses standard 5-field cron expressions (minute, hour, dom,
// month, dow).
var cronParser = cronlib.NewParser(
	cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow,
)

// PlanSubmitter runs one automation request end to end. *engine.Service
// satisfies it.
type PlanSubmitter interface {
	Execute(ctx context.Context, req engine.ExecuteRequest) (*work.ExecutionResult, error)
}

// job is one recurring submission with its parsed schedule and run state.
type job struct {
	name       string
	agentType  agent.Type
	expr       string
	schedule   cronlib.Schedule
	parameters map[string]any
	dryRun     bool

	nextRunAt  time.Time
	lastRunAt  time.Time
	lastStatus string
}

// JobStatus is the externally visible state of one scheduled job.
type JobStatus struct {
	Name       string     `json:"name"`
	Agent      string     `json:"agent"`
	Schedule   string     `json:"schedule"`
	DryRun     bool       `json:"dry_run"`
	LastRunAt  *time.Time `json:"last_run_at,omitempty"`
	NextRunAt  *time.Time `json:"next_run_at,omitempty"`
	LastStatus string     `json:"last_status,omitempty"`
}

// Scheduler fires configured jobs when their cron schedules come due.
type Scheduler struct {
	submitter     PlanSubmitter
	logger        *zap.Logger
	checkInterval time.Duration
	submitTimeout time.Duration

	cancel    context.CancelFunc
	runCtx    context.Context
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
	jobs      []*job
}

// New validates the configured jobs and builds a scheduler over them.
// Every job needs a known agent type and a parseable cron expression.
func New(cfg *config.SchedulerConfig, submitter PlanSubmitter, logger *zap.Logger) (*Scheduler, error) {
	if submitter == nil {
		return nil, fmt.Errorf("%w: submitter is required", ErrInvalidConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Scheduler{
		submitter:     submitter,
		logger:        logger.Named("scheduler"),
		checkInterval: checkInterval,
		submitTimeout: defaultSubmitTimeout,
	}
	if cfg == nil {
		return s, nil
	}

	now := time.Now()
	seen := make(map[string]bool, len(cfg.Jobs))
	for _, jc := range cfg.Jobs {
		if seen[jc.Name] {
			return nil, fmt.Errorf("%w: duplicate job name %q", ErrInvalidConfig, jc.Name)
		}
		seen[jc.Name] = true

		agentType := agent.Type(jc.Agent)
		if !agentType.Valid() {
			return nil, fmt.Errorf("%w: job %q: unknown agent type %q", ErrInvalidConfig, jc.Name, jc.Agent)
		}
		schedule, err := cronParser.Parse(jc.Schedule)
		if err != nil {
			return nil, fmt.Errorf("%w: job %q: bad schedule %q: %v", ErrInvalidConfig, jc.Name, jc.Schedule, err)
		}

		s.jobs = append(s.jobs, &job{
			name:       jc.Name,
			agentType:  agentType,
			expr:       jc.Schedule,
			schedule:   schedule,
			parameters: jc.Parameters,
			dryRun:     jc.DryRun,
			nextRunAt:  schedule.Next(now),
		})
	}

	return s, nil
}

// Start begins the due-job loop. Starting an already running scheduler is
// a no-op.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = true
	jobCount := len(s.jobs)
	s.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.runCtx = ctx

	s.wg.Add(1)
	go s.loop(ctx)

	s.logger.Info("scheduler started",
		zap.Int("jobs", jobCount),
		zap.Duration("check_interval", s.checkInterval),
	)
	return nil
}

// Stop cancels the loop and waits for in-flight submissions, bounded by
// ctx.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = false
	s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		s.logger.Warn("scheduler stop timed out")
		return ctx.Err()
	}
}

func (s *Scheduler) loop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.tick(ctx, now)
		}
	}
}

// tick claims every due job under the lock, then fires them outside it:
// a slow submission must not stall the schedule bookkeeping.
func (s *Scheduler) tick(ctx context.Context, now time.Time) {
	s.mu.Lock()
	var due []*job
	for _, j := range s.jobs {
		if j.nextRunAt.IsZero() || now.Before(j.nextRunAt) {
			continue
		}
		j.lastRunAt = now
		j.nextRunAt = j.schedule.Next(now)
		due = append(due, j)
	}
	s.mu.Unlock()

	for _, j := range due {
		s.fire(ctx, j)
	}
}

// fire submits one job through the engine and records the outcome on it.
func (s *Scheduler) fire(ctx context.Context, j *job) {
	runCtx, cancel := context.WithTimeout(ctx, s.submitTimeout)
	defer cancel()

	res, err := s.submitter.Execute(runCtx, engine.ExecuteRequest{
		AgentType:  j.agentType,
		Parameters: j.parameters,
		DryRun:     j.dryRun,
	})

	var approval *engine.ApprovalRequiredError
	var status string
	switch {
	case errors.As(err, &approval):
		// The plan is parked, not lost: an operator can still approve
		// and apply it by ID
		status = "awaiting_approval"
		s.logger.Info("scheduled plan awaiting approval",
			zap.String("job", j.name),
			zap.String("agent_type", string(j.agentType)),
			zap.String("plan_id", approval.PlanID.String()),
			zap.String("risk", string(approval.Risk)),
		)
	case err != nil:
		status = "failed"
		s.logger.Error("scheduled submission failed",
			zap.String("job", j.name),
			zap.String("agent_type", string(j.agentType)),
			zap.Error(err),
		)
	default:
		status = string(res.Status)
		s.logger.Info("scheduled plan executed",
			zap.String("job", j.name),
			zap.String("agent_type", string(j.agentType)),
			zap.String("plan_id", res.PlanID.String()),
			zap.String("mode", string(res.Mode)),
			zap.String("status", status),
		)
	}

	s.mu.Lock()
	j.lastStatus = status
	s.mu.Unlock()
}

// TriggerNow fires the named job immediately, off schedule. The submission
// runs in the background under the scheduler's lifetime.
func (s *Scheduler) TriggerNow(name string) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return ErrSchedulerNotRunning
	}
	var target *job
	for _, j := range s.jobs {
		if j.name == name {
			target = j
			break
		}
	}
	if target != nil {
		target.lastRunAt = time.Now()
	}
	runCtx := s.runCtx
	s.mu.Unlock()

	if target == nil {
		return fmt.Errorf("%w: %q", ErrJobNotFound, name)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.fire(runCtx, target)
	}()
	return nil
}

// Jobs reports the state of every configured job in config order.
func (s *Scheduler) Jobs() []JobStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]JobStatus, 0, len(s.jobs))
	for _, j := range s.jobs {
		st := JobStatus{
			Name:       j.name,
			Agent:      string(j.agentType),
			Schedule:   j.expr,
			DryRun:     j.dryRun,
			LastStatus: j.lastStatus,
		}
		if !j.lastRunAt.IsZero() {
			last := j.lastRunAt
			st.LastRunAt = &last
		}
		if !j.nextRunAt.IsZero() {
			next := j.nextRunAt
			st.NextRunAt = &next
		}
		out = append(out, st)
	}
	return out
}

// IsRunning reports whether the loop is active.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isRunning
}

// NextRunTime parses expr and returns the first firing after the given
// time.
func NextRunTime(expr string, after time.Time) (time.Time, error) {
	schedule, err := cronParser.Parse(expr)
	if err != nil {
		return time.Time{}, err
	}
	return schedule.Next(after), nil
}
