package work

import (
	"time"

	"github.com/google/uuid"
)

// Mode distinguishes a simulation from a mutating run
type Mode string

const (
	ModeDryRun Mode = "dry_run"
	ModeApply  Mode = "apply"
)

// Status is the overall outcome of a run
type Status string

const (
	// StatusSuccess means no item failed
	StatusSuccess Status = "success"
	// StatusPartial means some items succeeded and some failed
	StatusPartial Status = "partial"
	// StatusError means no item succeeded
	StatusError Status = "error"
)

// ComputeStatus derives the overall status from item counts. Skipped items
// count toward neither side, so a run where everything was skipped is a
// success.
func ComputeStatus(succeeded, failed int) Status {
	switch {
	case failed == 0:
		return StatusSuccess
	case succeeded > 0:
		return StatusPartial
	default:
		return StatusError
	}
}

// AbortReason records why a run stopped before processing every item
type AbortReason string

const (
	AbortFatal     AbortReason = "fatal"
	AbortCancelled AbortReason = "cancelled"
)

// Error stages
const (
	StageCollect  = "collect"
	StageItem     = "item"
	StagePlan     = "plan"
	StageRollback = "rollback"
)

// ExecutionError is one failure that occurred during a run, kept in the
// result rather than thrown away
type ExecutionError struct {
	Stage   string `json:"stage"`
	Ref     string `json:"ref,omitempty"`
	Class   string `json:"class,omitempty"`
	Message string `json:"message"`
}

// ExecutionResult is the envelope every run produces, whatever happened.
// Callers always receive one of these, never a bare error, so partial
// progress and its metrics survive failures.
type ExecutionResult struct {
	PlanID     uuid.UUID        `json:"plan_id"`
	Agent      string           `json:"agent"`
	Action     string           `json:"action"`
	Mode       Mode             `json:"mode"`
	Status     Status           `json:"status"`
	Aborted    AbortReason      `json:"aborted,omitempty"`
	Results    []ItemResult     `json:"results"`
	Summary    map[string]any   `json:"summary,omitempty"`
	Errors     []ExecutionError `json:"errors,omitempty"`
	Metrics    Metrics          `json:"metrics"`
	StartedAt  time.Time        `json:"started_at"`
	FinishedAt time.Time        `json:"finished_at"`
}

// Counts returns how many items succeeded, failed and were skipped
func (r *ExecutionResult) Counts() (succeeded, failed, skipped int) {
	for i := range r.Results {
		switch r.Results[i].Status {
		case ItemSucceeded:
			succeeded++
		case ItemFailed:
			failed++
		case ItemSkipped:
			skipped++
		}
	}
	return
}

// Mutations collects every external write recorded across all items, in
// result order. The rollback coordinator works from this list.
func (r *ExecutionResult) Mutations() []Mutation {
	var muts []Mutation
	for i := range r.Results {
		muts = append(muts, r.Results[i].Mutations...)
	}
	return muts
}

// AddError appends a failure record to the result
func (r *ExecutionResult) AddError(stage, ref, class, message string) {
	r.Errors = append(r.Errors, ExecutionError{Stage: stage, Ref: ref, Class: class, Message: message})
}
