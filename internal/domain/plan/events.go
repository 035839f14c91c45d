package plan

import (
	"github.com/shopops/automator/internal/domain/shared"
	"github.com/shopops/automator/internal/domain/work"
)

// Event types published by the engine
const (
	EventPlanCreated    = "plan.created"
	EventPlanApproved   = "plan.approved"
	EventPlanExecuted   = "plan.executed"
	EventPlanRolledBack = "plan.rolled_back"
)

const aggregateTypePlan = "plan"

// CreatedEvent is published when a plan passes validation
type CreatedEvent struct {
	shared.BaseDomainEvent
	AgentType     string    `json:"agent_type"`
	Action        string    `json:"action"`
	Risk          RiskLevel `json:"risk"`
	NeedsApproval bool      `json:"needs_approval"`
}

// NewCreatedEvent builds the creation event for p
func NewCreatedEvent(p *Plan) *CreatedEvent {
	return &CreatedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventPlanCreated, aggregateTypePlan, p.ID),
		AgentType:       p.AgentType,
		Action:          p.Action,
		Risk:            p.Risk,
		NeedsApproval:   p.NeedsApproval,
	}
}

// ApprovedEvent is published when a gated plan is released
type ApprovedEvent struct {
	shared.BaseDomainEvent
	ApprovedBy string `json:"approved_by"`
}

// NewApprovedEvent builds the approval event for p
func NewApprovedEvent(p *Plan, approvedBy string) *ApprovedEvent {
	return &ApprovedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventPlanApproved, aggregateTypePlan, p.ID),
		ApprovedBy:      approvedBy,
	}
}

// ExecutedEvent is published after every run, dry runs included
type ExecutedEvent struct {
	shared.BaseDomainEvent
	AgentType string       `json:"agent_type"`
	Action    string       `json:"action"`
	Mode      work.Mode    `json:"mode"`
	Status    work.Status  `json:"status"`
	Metrics   work.Metrics `json:"metrics"`
}

// NewExecutedEvent builds the execution event from a result
func NewExecutedEvent(res *work.ExecutionResult) *ExecutedEvent {
	return &ExecutedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventPlanExecuted, aggregateTypePlan, res.PlanID),
		AgentType:       res.Agent,
		Action:          res.Action,
		Mode:            res.Mode,
		Status:          res.Status,
		Metrics:         res.Metrics,
	}
}

// RolledBackEvent is published after a rollback finishes or escalates
type RolledBackEvent struct {
	shared.BaseDomainEvent
	AgentType       string `json:"agent_type"`
	Status          Status `json:"status"`
	StepsRun        int    `json:"steps_run"`
	StepsFailed     int    `json:"steps_failed"`
	FallbackInvoked bool   `json:"fallback_invoked"`
}

// NewRolledBackEvent builds the rollback event from an outcome
func NewRolledBackEvent(p *Plan, out *RollbackOutcome) *RolledBackEvent {
	return &RolledBackEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventPlanRolledBack, aggregateTypePlan, p.ID),
		AgentType:       p.AgentType,
		Status:          out.Status,
		StepsRun:        out.StepsRun,
		StepsFailed:     out.StepsFailed,
		FallbackInvoked: out.FallbackInvoked,
	}
}
