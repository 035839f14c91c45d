package engine

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/shopops/automator/internal/domain/agent"
	"github.com/shopops/automator/internal/domain/plan"
	"github.com/shopops/automator/internal/domain/work"
)

// Escalator hands a plan off to a human channel when automated
// compensation gives up
type Escalator interface {
	Escalate(ctx context.Context, p *plan.Plan, action, reason string) error
}

const escalateTimeout = 10 * time.Second

// RollbackCoordinator drives compensation. Steps run in ascending order
// and are best effort: a failed step is logged and the rest still run. The
// whole rollback is bounded by the plan's rollback timeout; crossing it
// aborts the remaining steps and fires the fallback action exactly once.
type RollbackCoordinator struct {
	escalator Escalator
	logger    *zap.Logger
}

// NewRollbackCoordinator creates a coordinator escalating through esc
func NewRollbackCoordinator(esc Escalator, logger *zap.Logger) *RollbackCoordinator {
	return &RollbackCoordinator{escalator: esc, logger: logger.Named("rollback")}
}

// Run compensates the mutations recorded in res according to the plan's
// rollback steps and returns the outcome record
func (c *RollbackCoordinator) Run(ctx context.Context, ag agent.Agent, p *plan.Plan, res *work.ExecutionResult) *plan.RollbackOutcome {
	out := &plan.RollbackOutcome{PlanID: p.ID, StartedAt: time.Now()}
	muts := res.Mutations()
	steps := p.Rollback.SortedSteps()

	c.logger.Info("rollback started",
		zap.String("plan_id", p.ID.String()),
		zap.String("agent", p.AgentType),
		zap.Int("steps", len(steps)),
		zap.Int("mutations", len(muts)),
		zap.Duration("timeout", p.Rollback.Timeout),
	)

	runCtx, cancel := context.WithTimeout(ctx, p.Rollback.Timeout)
	defer cancel()

	var stepErrs error
	timedOut := false
	for _, step := range steps {
		if runCtx.Err() != nil {
			timedOut = true
			break
		}
		err := ag.Compensate(runCtx, p, step, muts)
		if err != nil && runCtx.Err() != nil {
			// the step died because the budget ran out mid-call
			timedOut = true
			break
		}
		out.StepsRun++
		if err != nil {
			out.StepsFailed++
			stepErrs = multierr.Append(stepErrs, fmt.Errorf("step %q: %w", step.Action, err))
			c.logger.Warn("rollback step failed, continuing",
				zap.String("plan_id", p.ID.String()),
				zap.String("step", step.Action),
				zap.Error(err),
			)
		}
	}

	if timedOut {
		out.Status = plan.StatusRollbackFailed
		out.FallbackInvoked = true
		stepErrs = multierr.Append(stepErrs, fmt.Errorf("rollback timed out after %s with %d of %d steps run",
			p.Rollback.Timeout, out.StepsRun, len(steps)))

		// escalation must fire even when the caller's context is gone
		escCtx, escCancel := context.WithTimeout(context.WithoutCancel(ctx), escalateTimeout)
		defer escCancel()
		if err := c.escalator.Escalate(escCtx, p, p.Rollback.FallbackAction, "rollback timed out"); err != nil {
			stepErrs = multierr.Append(stepErrs, fmt.Errorf("fallback %q: %w", p.Rollback.FallbackAction, err))
			c.logger.Error("fallback escalation failed",
				zap.String("plan_id", p.ID.String()),
				zap.String("action", p.Rollback.FallbackAction),
				zap.Error(err),
			)
		}
	} else {
		out.Status = plan.StatusRolledBack
	}

	if stepErrs != nil {
		out.Error = stepErrs.Error()
	}
	out.FinishedAt = time.Now()

	c.logger.Info("rollback finished",
		zap.String("plan_id", p.ID.String()),
		zap.String("status", string(out.Status)),
		zap.Int("steps_run", out.StepsRun),
		zap.Int("steps_failed", out.StepsFailed),
		zap.Bool("fallback_invoked", out.FallbackInvoked),
	)
	return out
}
