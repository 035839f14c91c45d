// Package plan holds the Plan aggregate: a typed, validated description of
// work an agent intends to perform, its risk assessment, its approval
// requirement and its compensation plan. A Plan moves through a fixed
// lifecycle; every transition is checked against the table below.
package plan

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/shopops/automator/internal/domain/shared"
)

// Status is the lifecycle state of a plan
type Status string

const (
	StatusCreated          Status = "CREATED"
	StatusAwaitingApproval Status = "AWAITING_APPROVAL"
	StatusReady            Status = "READY"
	StatusRunning          Status = "RUNNING"
	StatusSucceeded        Status = "SUCCEEDED"
	StatusPartial          Status = "PARTIAL"
	StatusFailed           Status = "FAILED"
	StatusRollingBack      Status = "ROLLING_BACK"
	StatusRolledBack       Status = "ROLLED_BACK"
	StatusRollbackFailed   Status = "ROLLBACK_FAILED"
)

// allowedTransitions is the full lifecycle. Completed plans may still enter
// ROLLING_BACK: a finished run can be reverted on request, a partial one
// after a fatal abort.
var allowedTransitions = map[Status]map[Status]struct{}{
	StatusCreated: {
		StatusAwaitingApproval: {},
		StatusReady:            {},
	},
	StatusAwaitingApproval: {
		StatusReady: {},
	},
	StatusReady: {
		StatusRunning: {},
	},
	StatusRunning: {
		StatusSucceeded: {},
		StatusPartial:   {},
		StatusFailed:    {},
	},
	StatusSucceeded: {
		StatusRollingBack: {},
	},
	StatusPartial: {
		StatusRollingBack: {},
	},
	StatusFailed: {
		StatusRollingBack: {},
	},
	StatusRollingBack: {
		StatusRolledBack:     {},
		StatusRollbackFailed: {},
	},
}

// CanTransitionTo reports whether next is a legal successor of s
func (s Status) CanTransitionTo(next Status) bool {
	_, ok := allowedTransitions[s][next]
	return ok
}

// Terminal reports whether the lifecycle ends at s. PARTIAL and
// ROLLING_BACK are the only completion-adjacent states that still expect a
// follow-up.
func (s Status) Terminal() bool {
	switch s {
	case StatusSucceeded, StatusFailed, StatusRolledBack, StatusRollbackFailed:
		return true
	default:
		return false
	}
}

// Plan is a validated intent to act. Params holds the agent's decoded,
// typed parameter struct; Raw keeps the canonical parameter map for audit.
type Plan struct {
	ID            uuid.UUID      `json:"id"`
	AgentType     string         `json:"agent_type"`
	Action        string         `json:"action"`
	Params        any            `json:"-"`
	Raw           map[string]any `json:"parameters"`
	Dependencies  []uuid.UUID    `json:"dependencies,omitempty"`
	Risk          RiskLevel      `json:"risk"`
	Scale         int            `json:"scale"`
	NeedsApproval bool           `json:"needs_approval"`
	Rollback      RollbackPlan   `json:"rollback"`
	Status        Status         `json:"status"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// New creates a plan in the CREATED state
func New(agentType, action string) *Plan {
	now := time.Now()
	return &Plan{
		ID:        uuid.New(),
		AgentType: agentType,
		Action:    action,
		Status:    StatusCreated,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Transition moves the plan to next, rejecting moves the lifecycle does
// not allow
func (p *Plan) Transition(next Status) error {
	if !p.Status.CanTransitionTo(next) {
		return fmt.Errorf("%w: plan %s cannot move from %s to %s",
			shared.ErrInvalidState, p.ID, p.Status, next)
	}
	p.Status = next
	p.UpdatedAt = time.Now()
	return nil
}
