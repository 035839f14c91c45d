// Package approval provides the approval store and signed approval grants.
// A grant is a token an operator can redeem to approve one specific plan,
// which lets approvals travel over chat links or email without a session.
package approval

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/shopops/automator/internal/domain/plan"
	"github.com/shopops/automator/internal/domain/shared"
)

// InMemoryStore keeps approvals in a map. One automator instance holds all
// pending plans anyway, so this is the default store.
type InMemoryStore struct {
	mu        sync.RWMutex
	approvals map[uuid.UUID]*plan.Approval
}

// NewInMemoryStore creates an empty approval store
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{approvals: make(map[uuid.UUID]*plan.Approval)}
}

// Record saves an approval, replacing any previous one for the plan
func (s *InMemoryStore) Record(ctx context.Context, a *plan.Approval) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *a
	s.approvals[a.PlanID] = &cp
	return nil
}

// Get returns the approval for a plan, or shared.ErrNotFound
func (s *InMemoryStore) Get(ctx context.Context, planID uuid.UUID) (*plan.Approval, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.approvals[planID]
	if !ok {
		return nil, fmt.Errorf("%w: no approval for plan %s", shared.ErrNotFound, planID)
	}
	cp := *a
	return &cp, nil
}

var _ plan.ApprovalStore = (*InMemoryStore)(nil)
