package engine

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/shopops/automator/internal/domain/plan"
)

// ValidationError reports why a parameter map was rejected before a plan
// was built. Issues come from schema validation, decoding or the agent's
// own assessment.
type ValidationError struct {
	Agent  string
	Issues []string
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	return fmt.Sprintf("plan validation failed for agent %q: %s", e.Agent, strings.Join(e.Issues, "; "))
}

// NewValidationError builds a ValidationError for agent with the given
// issues
func NewValidationError(agent string, issues ...string) *ValidationError {
	return &ValidationError{Agent: agent, Issues: issues}
}

// IsValidation reports whether err is a parameter validation failure
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// ApprovalRequiredError means the plan was built and parked: it needs a
// recorded approval before Apply will run it
type ApprovalRequiredError struct {
	PlanID uuid.UUID
	Risk   plan.RiskLevel
	Scale  int
}

// Error implements the error interface
func (e *ApprovalRequiredError) Error() string {
	return fmt.Sprintf("plan %s requires approval before apply (risk=%s scale=%d)", e.PlanID, e.Risk, e.Scale)
}

// IsApprovalRequired reports whether err parked a plan for approval
func IsApprovalRequired(err error) bool {
	var ae *ApprovalRequiredError
	return errors.As(err, &ae)
}

// AlreadyAppliedError means the applied-plan ledger already holds the plan:
// some caller consumed its one apply
type AlreadyAppliedError struct {
	PlanID uuid.UUID
}

// Error implements the error interface
func (e *AlreadyAppliedError) Error() string {
	return fmt.Sprintf("plan %s has already been applied", e.PlanID)
}

// IsAlreadyApplied reports whether err refused a duplicate apply
func IsAlreadyApplied(err error) bool {
	var ae *AlreadyAppliedError
	return errors.As(err, &ae)
}

// DependencyError means prerequisite plans have not finished successfully
type DependencyError struct {
	PlanID uuid.UUID
	Unmet  []uuid.UUID
}

// Error implements the error interface
func (e *DependencyError) Error() string {
	refs := make([]string, len(e.Unmet))
	for i, id := range e.Unmet {
		refs[i] = id.String()
	}
	return fmt.Sprintf("plan %s has unmet dependencies: %s", e.PlanID, strings.Join(refs, ", "))
}

// IsDependency reports whether err refused an apply on unmet dependencies
func IsDependency(err error) bool {
	var de *DependencyError
	return errors.As(err, &de)
}
