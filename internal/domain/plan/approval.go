package plan

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Approval is a recorded human decision to let a plan run
type Approval struct {
	PlanID     uuid.UUID `json:"plan_id"`
	ApprovedBy string    `json:"approved_by"`
	Note       string    `json:"note,omitempty"`
	GrantedAt  time.Time `json:"granted_at"`
	// ExpiresAt bounds how long the approval is honored. Zero means it
	// does not expire.
	ExpiresAt time.Time `json:"expires_at,omitempty"`
}

// Expired reports whether the approval is no longer valid at now
func (a *Approval) Expired(now time.Time) bool {
	return !a.ExpiresAt.IsZero() && now.After(a.ExpiresAt)
}

// CanApplyAt is the approval gate. It is a pure function of the plan, the
// approval record and the clock: no side effects, no hidden state, so the
// same inputs always gate the same way.
func CanApplyAt(p *Plan, a *Approval, now time.Time) bool {
	if p == nil {
		return false
	}
	if !p.NeedsApproval {
		return true
	}
	if a == nil {
		return false
	}
	if a.PlanID != p.ID {
		return false
	}
	return !a.Expired(now)
}

// CanApply gates against the current clock
func CanApply(p *Plan, a *Approval) bool {
	return CanApplyAt(p, a, time.Now())
}

// ApprovalStore persists approval decisions
type ApprovalStore interface {
	// Record saves an approval, replacing any previous one for the plan
	Record(ctx context.Context, a *Approval) error
	// Get returns the approval for a plan, or shared.ErrNotFound when
	// none was recorded
	Get(ctx context.Context, planID uuid.UUID) (*Approval, error)
}
