package plan

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

// RollbackStep is one compensating action. Steps run in ascending Order;
// each must be idempotent because a failed rollback may be retried.
type RollbackStep struct {
	Action     string         `json:"action"`
	Order      int            `json:"order"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

// RollbackPlan describes how to undo a plan's external effects. It is
// synthesized together with the plan, before anything runs, so the undo
// path exists even when the apply dies halfway.
type RollbackPlan struct {
	Steps []RollbackStep `json:"steps"`
	// Timeout bounds the whole rollback, not individual steps
	Timeout time.Duration `json:"timeout"`
	// FallbackAction names the escalation used when the rollback itself
	// times out and a human has to take over
	FallbackAction string `json:"fallback_action"`
}

// SortedSteps returns the steps in ascending order without mutating the
// plan
func (rp RollbackPlan) SortedSteps() []RollbackStep {
	steps := make([]RollbackStep, len(rp.Steps))
	copy(steps, rp.Steps)
	sort.SliceStable(steps, func(i, j int) bool { return steps[i].Order < steps[j].Order })
	return steps
}

// Validate checks the rollback plan is executable: a positive timeout, a
// named fallback, and strictly ordered steps. An empty step list is valid
// for plans with nothing to undo.
func (rp RollbackPlan) Validate() error {
	if rp.Timeout <= 0 {
		return fmt.Errorf("rollback timeout must be positive, got %s", rp.Timeout)
	}
	if rp.FallbackAction == "" {
		return fmt.Errorf("rollback fallback action is required")
	}
	seen := make(map[int]string, len(rp.Steps))
	for _, step := range rp.Steps {
		if step.Action == "" {
			return fmt.Errorf("rollback step %d has no action", step.Order)
		}
		if prev, dup := seen[step.Order]; dup {
			return fmt.Errorf("rollback steps %q and %q share order %d", prev, step.Action, step.Order)
		}
		seen[step.Order] = step.Action
	}
	return nil
}

// RollbackOutcome is the record a rollback leaves behind, whether it
// finished or had to escalate
type RollbackOutcome struct {
	PlanID uuid.UUID `json:"plan_id"`
	// Status is StatusRolledBack when every step got its chance, even if
	// some failed individually, and StatusRollbackFailed when the timeout
	// cut the run short and the fallback fired.
	Status          Status    `json:"status"`
	StepsRun        int       `json:"steps_run"`
	StepsFailed     int       `json:"steps_failed"`
	FallbackInvoked bool      `json:"fallback_invoked"`
	Error           string    `json:"error,omitempty"`
	StartedAt       time.Time `json:"started_at"`
	FinishedAt      time.Time `json:"finished_at"`
}
