package agent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shopops/automator/internal/domain/plan"
	"github.com/shopops/automator/internal/domain/shared"
	"github.com/shopops/automator/internal/domain/work"
)

type stubAgent struct {
	agentType Type
}

func (a *stubAgent) Type() Type { return a.agentType }
func (a *stubAgent) Spec() Spec { return Spec{Action: "noop"} }
func (a *stubAgent) Collect(ctx context.Context, p *plan.Plan) ([]*work.Item, error) {
	return nil, nil
}
func (a *stubAgent) Preview(p *plan.Plan, items []*work.Item) map[string]any { return nil }
func (a *stubAgent) Execute(ctx context.Context, p *plan.Plan, item *work.Item) (*work.ItemResult, error) {
	return nil, nil
}
func (a *stubAgent) Compensate(ctx context.Context, p *plan.Plan, step plan.RollbackStep, muts []work.Mutation) error {
	return nil
}

func TestRegistry(t *testing.T) {
	t.Run("register and get", func(t *testing.T) {
		r := NewRegistry()
		a := &stubAgent{agentType: TypeOrders}
		require.NoError(t, r.Register(a))

		got, err := r.Get(TypeOrders)
		require.NoError(t, err)
		assert.Same(t, a, got)
	})

	t.Run("duplicate registration", func(t *testing.T) {
		r := NewRegistry()
		require.NoError(t, r.Register(&stubAgent{agentType: TypeOrders}))
		err := r.Register(&stubAgent{agentType: TypeOrders})
		require.Error(t, err)
		assert.ErrorIs(t, err, shared.ErrAlreadyExists)
	})

	t.Run("unknown type", func(t *testing.T) {
		r := NewRegistry()
		_, err := r.Get(TypeMarketing)
		require.Error(t, err)
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})

	t.Run("types are sorted", func(t *testing.T) {
		r := NewRegistry()
		require.NoError(t, r.Register(&stubAgent{agentType: TypeSupport}))
		require.NoError(t, r.Register(&stubAgent{agentType: TypeAdvertising}))
		require.NoError(t, r.Register(&stubAgent{agentType: TypeOrders}))

		assert.Equal(t, []Type{TypeAdvertising, TypeOrders, TypeSupport}, r.Types())
	})
}

func TestTypeValid(t *testing.T) {
	for _, known := range All() {
		assert.True(t, known.Valid(), "%s", known)
	}
	assert.False(t, Type("logistics").Valid())
}
