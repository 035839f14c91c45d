package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/shopops/automator/internal/domain/agent"
	"github.com/shopops/automator/internal/domain/plan"
	"github.com/shopops/automator/internal/domain/shared"
)

func TestPlanBuilderBuild(t *testing.T) {
	ctx := context.Background()

	t.Run("valid parameters produce a ready plan", func(t *testing.T) {
		env := newTestEnv(t, newScriptAgent(), Config{})

		p, err := env.svc.Plan(ctx, BuildRequest{
			AgentType:  agent.TypeOrders,
			Parameters: map[string]any{"max_items": 10},
		})
		require.NoError(t, err)
		assert.Equal(t, plan.StatusReady, p.Status)
		assert.Equal(t, "scripted_action", p.Action)
		assert.Equal(t, 10, p.Scale)
		assert.Equal(t, plan.RiskMedium, p.Risk)
		assert.False(t, p.NeedsApproval)

		params, ok := p.Params.(*scriptParams)
		require.True(t, ok)
		assert.Equal(t, 10, params.MaxItems)
	})

	t.Run("unknown field is rejected by the closed schema", func(t *testing.T) {
		env := newTestEnv(t, newScriptAgent(), Config{})

		_, err := env.svc.Plan(ctx, BuildRequest{
			AgentType:  agent.TypeOrders,
			Parameters: map[string]any{"max_items": 10, "surprise": true},
		})
		require.Error(t, err)
		assert.True(t, IsValidation(err), "got %v", err)
	})

	t.Run("wrong type is rejected by the schema", func(t *testing.T) {
		env := newTestEnv(t, newScriptAgent(), Config{})

		_, err := env.svc.Plan(ctx, BuildRequest{
			AgentType:  agent.TypeOrders,
			Parameters: map[string]any{"max_items": "many"},
		})
		require.Error(t, err)
		assert.True(t, IsValidation(err))
	})

	t.Run("missing required field is rejected", func(t *testing.T) {
		env := newTestEnv(t, newScriptAgent(), Config{})

		_, err := env.svc.Plan(ctx, BuildRequest{
			AgentType:  agent.TypeOrders,
			Parameters: map[string]any{"auto_apply": true},
		})
		require.Error(t, err)
		assert.True(t, IsValidation(err))
	})

	t.Run("struct bounds are enforced after decoding", func(t *testing.T) {
		env := newTestEnv(t, newScriptAgent(), Config{})

		_, err := env.svc.Plan(ctx, BuildRequest{
			AgentType:  agent.TypeOrders,
			Parameters: map[string]any{"max_items": 501},
		})
		require.Error(t, err)
		require.True(t, IsValidation(err))
		assert.Contains(t, err.Error(), "MaxItems")
	})

	t.Run("unknown agent type", func(t *testing.T) {
		env := newTestEnv(t, newScriptAgent(), Config{})

		_, err := env.svc.Plan(ctx, BuildRequest{
			AgentType:  agent.TypeMarketing,
			Parameters: map[string]any{"max_items": 1},
		})
		require.Error(t, err)
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})

	t.Run("large auto-apply plan is parked for approval", func(t *testing.T) {
		env := newTestEnv(t, newScriptAgent(), Config{})

		p, err := env.svc.Plan(ctx, BuildRequest{
			AgentType:  agent.TypeOrders,
			Parameters: map[string]any{"max_items": 150, "auto_apply": true},
		})
		require.NoError(t, err)
		assert.True(t, p.NeedsApproval)
		assert.Equal(t, plan.StatusAwaitingApproval, p.Status)
	})

	t.Run("threshold boundary stays ungated", func(t *testing.T) {
		env := newTestEnv(t, newScriptAgent(), Config{})

		p, err := env.svc.Plan(ctx, BuildRequest{
			AgentType:  agent.TypeOrders,
			Parameters: map[string]any{"max_items": 100, "auto_apply": true},
		})
		require.NoError(t, err)
		assert.False(t, p.NeedsApproval)
		assert.Equal(t, plan.StatusReady, p.Status)
	})

	t.Run("plan creation is published and audited", func(t *testing.T) {
		env := newTestEnv(t, newScriptAgent(), Config{})

		p, err := env.svc.Plan(ctx, BuildRequest{
			AgentType:  agent.TypeOrders,
			Parameters: map[string]any{"max_items": 5},
		})
		require.NoError(t, err)

		assert.Contains(t, env.bus.eventTypes(), plan.EventPlanCreated)
		require.Len(t, env.history.plans, 1)
		assert.Equal(t, p.ID, env.history.plans[0].ID)
	})
}

func TestNewPlanBuilderRejectsBrokenSchema(t *testing.T) {
	ag := newScriptAgent()
	registry := agent.NewRegistry()
	require.NoError(t, registry.Register(&brokenSchemaAgent{scriptAgent: ag}))

	_, err := NewPlanBuilder(registry, zap.NewNop())
	assert.Error(t, err)
}

type brokenSchemaAgent struct {
	*scriptAgent
}

func (a *brokenSchemaAgent) Spec() agent.Spec {
	spec := a.scriptAgent.Spec()
	spec.Schema = []byte(`{"type": "object", "properties": {`)
	return spec
}
