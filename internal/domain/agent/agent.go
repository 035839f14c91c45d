// Package agent defines the contract every automation agent implements and
// the registry the engine dispatches through. Agents are peers behind one
// interface; the engine drives them without knowing which domain they act
// on.
package agent

import (
	"context"

	"github.com/shopops/automator/internal/domain/plan"
	"github.com/shopops/automator/internal/domain/work"
)

// Type identifies an agent
type Type string

const (
	TypeSourcing    Type = "sourcing"
	TypeOrders      Type = "orders"
	TypeInventory   Type = "inventory"
	TypeMarketing   Type = "marketing"
	TypeAdvertising Type = "advertising"
	TypeSupport     Type = "support"
)

// All returns every known agent type
func All() []Type {
	return []Type{TypeSourcing, TypeOrders, TypeInventory, TypeMarketing, TypeAdvertising, TypeSupport}
}

// Valid reports whether t names a known agent type
func (t Type) Valid() bool {
	for _, known := range All() {
		if t == known {
			return true
		}
	}
	return false
}

// Assessment is everything the plan builder needs from the agent once the
// parameters are validated: how dangerous the plan is, how big it claims to
// be, whether a human must sign off, and how to undo it.
type Assessment struct {
	Risk          plan.RiskLevel
	Scale         int
	NeedsApproval bool
	Rollback      plan.RollbackPlan
}

// Spec describes an agent's single action to the plan builder. Schema is a
// closed JSON Schema for the raw parameter map; NewParams returns a fresh
// pointer to the agent's typed parameter struct for decoding; Assess grades
// the decoded parameters.
type Spec struct {
	Action    string
	Schema    []byte
	NewParams func() any
	Assess    func(params any) (Assessment, error)
}

// Agent is one automation capability. Collect gathers and classifies the
// work without mutating anything; Execute performs the external writes for
// one item; Compensate undoes recorded mutations for one rollback step.
type Agent interface {
	Type() Type
	Spec() Spec

	// Collect fetches candidate work items and attaches routing labels.
	// It must issue only read calls: a dry run is exactly Collect plus
	// Preview.
	Collect(ctx context.Context, p *plan.Plan) ([]*work.Item, error)

	// Preview projects what an apply would do, for dry-run output:
	// counts, samples, cost and time estimates. No external calls.
	Preview(p *plan.Plan, items []*work.Item) map[string]any

	// Execute processes one item and records every external write as a
	// mutation on the result. A nil result with a nil error counts as a
	// success with nothing to report.
	Execute(ctx context.Context, p *plan.Plan, item *work.Item) (*work.ItemResult, error)

	// Compensate undoes the mutations relevant to one rollback step.
	// It filters muts by kind itself; unknown steps are an error.
	Compensate(ctx context.Context, p *plan.Plan, step plan.RollbackStep, muts []work.Mutation) error
}
