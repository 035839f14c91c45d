package plan

import (
	"context"

	"github.com/google/uuid"

	"github.com/shopops/automator/internal/domain/work"
)

// HistoryRepository is the audit trail of plans, runs and rollbacks.
// The engine's correctness never depends on it: in-flight state lives in
// memory, and a write failure here is logged, not propagated.
type HistoryRepository interface {
	// RecordPlan stores a plan after it passes validation
	RecordPlan(ctx context.Context, p *Plan) error
	// UpdatePlanStatus tracks lifecycle transitions
	UpdatePlanStatus(ctx context.Context, id uuid.UUID, status Status) error
	// RecordExecution stores a finished run, dry runs included
	RecordExecution(ctx context.Context, res *work.ExecutionResult) error
	// RecordRollback stores a rollback outcome
	RecordRollback(ctx context.Context, out *RollbackOutcome) error
	// RecentExecutions returns the latest runs for an agent type, newest
	// first
	RecentExecutions(ctx context.Context, agentType string, limit int) ([]work.ExecutionResult, error)
	// FindPlan loads one audited plan by ID
	FindPlan(ctx context.Context, id uuid.UUID) (*Plan, error)
	// LastExecutionForPlan loads the newest recorded run for a plan
	LastExecutionForPlan(ctx context.Context, planID uuid.UUID) (*work.ExecutionResult, error)
	// RollbacksForPlan returns every rollback recorded for a plan, newest
	// first
	RollbacksForPlan(ctx context.Context, planID uuid.UUID) ([]RollbackOutcome, error)
}
