package agents_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/shopops/automator/internal/agents"
	"github.com/shopops/automator/internal/agents/agenttest"
	"github.com/shopops/automator/internal/application/engine"
	"github.com/shopops/automator/internal/domain/agent"
	"github.com/shopops/automator/internal/domain/gateway"
	"github.com/shopops/automator/internal/domain/plan"
)

func newDeps(t *testing.T) agents.Deps {
	t.Helper()
	return agents.Deps{
		Storefront: agenttest.NewStorefront("shop"),
		Suppliers:  []gateway.Supplier{agenttest.NewSupplier("acme", nil)},
		Messaging:  agenttest.NewMessaging("mailer"),
		AdPlatform: agenttest.NewAdPlatform("adnet"),
		Payment:    agenttest.NewPayment("ledger", decimal.NewFromInt(1000)),
		OpsContact: "ops@example.com",
		Logger:     zaptest.NewLogger(t),
	}
}

func TestBuild_CoversEveryAgentType(t *testing.T) {
	fleet := agents.Build(newDeps(t))

	got := make([]agent.Type, 0, len(fleet))
	for _, a := range fleet {
		got = append(got, a.Type())
	}
	assert.ElementsMatch(t, agent.All(), got)
}

func TestBuild_NilLoggerIsTolerated(t *testing.T) {
	deps := newDeps(t)
	deps.Logger = nil
	assert.NotPanics(t, func() { agents.Build(deps) })
}

func TestRegister_RejectsSecondFleet(t *testing.T) {
	reg := agent.NewRegistry()
	deps := newDeps(t)

	require.NoError(t, agents.Register(reg, deps))
	assert.Len(t, reg.Types(), len(agent.All()))

	err := agents.Register(reg, deps)
	require.Error(t, err)
}

// TestFleetThroughPlanBuilder runs representative parameters for every
// agent through the real builder, so schema compilation, closedness,
// struct validation and assessment are all covered for the whole fleet.
func TestFleetThroughPlanBuilder(t *testing.T) {
	reg := agent.NewRegistry()
	require.NoError(t, agents.Register(reg, newDeps(t)))
	builder, err := engine.NewPlanBuilder(reg, zaptest.NewLogger(t))
	require.NoError(t, err)

	cases := []struct {
		agent  agent.Type
		params map[string]any
	}{
		{agent.TypeSourcing, map[string]any{
			"candidates": []any{
				map[string]any{"sku": "SKU-1", "name": "Walnut Tray", "cost": 8, "price": 19.5},
			},
		}},
		{agent.TypeOrders, map[string]any{
			"max_orders": 25, "status": "pending",
		}},
		{agent.TypeInventory, map[string]any{
			"max_skus": 50,
		}},
		{agent.TypeMarketing, map[string]any{
			"campaign": "spring-launch", "segment": "vip", "subject": "New arrivals",
			"body": "Hi {{name}}, have a look at what just landed.", "max_recipients": 40,
		}},
		{agent.TypeAdvertising, map[string]any{
			"campaigns": []any{
				map[string]any{"name": "Spring Glow", "daily_budget": 25, "audience": "all"},
			},
		}},
		{agent.TypeSupport, map[string]any{
			"delayed_after_hours": 48, "escalate_after_hours": 120, "max_tickets": 30,
		}},
	}

	for _, tc := range cases {
		t.Run(string(tc.agent), func(t *testing.T) {
			p, err := builder.Build(context.Background(), engine.BuildRequest{
				AgentType:  tc.agent,
				Parameters: tc.params,
			})
			require.NoError(t, err)
			assert.Equal(t, plan.StatusReady, p.Status)
			assert.True(t, p.Risk.Valid())
			require.NoError(t, p.Rollback.Validate())

			stray := make(map[string]any, len(tc.params)+1)
			for k, v := range tc.params {
				stray[k] = v
			}
			stray["surprise"] = true
			_, err = builder.Build(context.Background(), engine.BuildRequest{
				AgentType:  tc.agent,
				Parameters: stray,
			})
			require.Error(t, err)
			assert.True(t, engine.IsValidation(err))
		})
	}
}

func TestFleetThroughPlanBuilder_CrossFieldRule(t *testing.T) {
	reg := agent.NewRegistry()
	require.NoError(t, agents.Register(reg, newDeps(t)))
	builder, err := engine.NewPlanBuilder(reg, zaptest.NewLogger(t))
	require.NoError(t, err)

	// Passes the schema but trips the escalate-after-delayed struct rule
	_, err = builder.Build(context.Background(), engine.BuildRequest{
		AgentType: agent.TypeSupport,
		Parameters: map[string]any{
			"delayed_after_hours": 100, "escalate_after_hours": 80, "max_tickets": 10,
		},
	})
	require.Error(t, err)
	assert.True(t, engine.IsValidation(err))
}
