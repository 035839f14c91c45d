package plan

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shopops/automator/internal/domain/shared"
)

func TestPlanLifecycle(t *testing.T) {
	t.Run("straight through run", func(t *testing.T) {
		p := New("orders", "route_orders")
		assert.Equal(t, StatusCreated, p.Status)

		require.NoError(t, p.Transition(StatusReady))
		require.NoError(t, p.Transition(StatusRunning))
		require.NoError(t, p.Transition(StatusSucceeded))
		assert.True(t, p.Status.Terminal())
	})

	t.Run("gated run", func(t *testing.T) {
		p := New("orders", "route_orders")
		require.NoError(t, p.Transition(StatusAwaitingApproval))
		require.NoError(t, p.Transition(StatusReady))
		require.NoError(t, p.Transition(StatusRunning))
		require.NoError(t, p.Transition(StatusPartial))
		require.NoError(t, p.Transition(StatusRollingBack))
		require.NoError(t, p.Transition(StatusRolledBack))
		assert.True(t, p.Status.Terminal())
	})

	t.Run("skipping states is rejected", func(t *testing.T) {
		p := New("orders", "route_orders")
		err := p.Transition(StatusRunning)
		require.Error(t, err)
		assert.ErrorIs(t, err, shared.ErrInvalidState)
		assert.Equal(t, StatusCreated, p.Status)
	})

	t.Run("running cannot be re-entered", func(t *testing.T) {
		p := New("orders", "route_orders")
		require.NoError(t, p.Transition(StatusReady))
		require.NoError(t, p.Transition(StatusRunning))
		require.NoError(t, p.Transition(StatusFailed))
		assert.ErrorIs(t, p.Transition(StatusRunning), shared.ErrInvalidState)
	})

	t.Run("completed plans may roll back", func(t *testing.T) {
		for _, from := range []Status{StatusSucceeded, StatusPartial, StatusFailed} {
			assert.True(t, from.CanTransitionTo(StatusRollingBack), "from %s", from)
		}
		assert.False(t, StatusRolledBack.CanTransitionTo(StatusRollingBack))
	})
}

func TestStatusTerminal(t *testing.T) {
	terminal := []Status{StatusSucceeded, StatusFailed, StatusRolledBack, StatusRollbackFailed}
	for _, s := range terminal {
		assert.True(t, s.Terminal(), "%s", s)
	}
	open := []Status{StatusCreated, StatusAwaitingApproval, StatusReady, StatusRunning, StatusPartial, StatusRollingBack}
	for _, s := range open {
		assert.False(t, s.Terminal(), "%s", s)
	}
}

func TestRollbackPlanValidate(t *testing.T) {
	valid := RollbackPlan{
		Steps: []RollbackStep{
			{Action: "cancel_purchase_orders", Order: 1},
			{Action: "restore_order_status", Order: 2},
		},
		Timeout:        5 * time.Minute,
		FallbackAction: "alert_manual_review",
	}

	t.Run("valid plan", func(t *testing.T) {
		assert.NoError(t, valid.Validate())
	})

	t.Run("no steps is valid", func(t *testing.T) {
		rp := valid
		rp.Steps = nil
		assert.NoError(t, rp.Validate())
	})

	t.Run("missing timeout", func(t *testing.T) {
		rp := valid
		rp.Timeout = 0
		assert.Error(t, rp.Validate())
	})

	t.Run("missing fallback", func(t *testing.T) {
		rp := valid
		rp.FallbackAction = ""
		assert.Error(t, rp.Validate())
	})

	t.Run("duplicate order", func(t *testing.T) {
		rp := valid
		rp.Steps = []RollbackStep{
			{Action: "a", Order: 1},
			{Action: "b", Order: 1},
		}
		assert.Error(t, rp.Validate())
	})

	t.Run("unnamed step", func(t *testing.T) {
		rp := valid
		rp.Steps = []RollbackStep{{Order: 1}}
		assert.Error(t, rp.Validate())
	})
}

func TestRollbackPlanSortedSteps(t *testing.T) {
	rp := RollbackPlan{
		Steps: []RollbackStep{
			{Action: "third", Order: 30},
			{Action: "first", Order: 1},
			{Action: "second", Order: 2},
		},
	}

	steps := rp.SortedSteps()
	require.Len(t, steps, 3)
	assert.Equal(t, "first", steps[0].Action)
	assert.Equal(t, "second", steps[1].Action)
	assert.Equal(t, "third", steps[2].Action)

	// original order untouched
	assert.Equal(t, "third", rp.Steps[0].Action)
}

func TestCanApplyAt(t *testing.T) {
	now := time.Now()

	t.Run("ungated plan needs no approval", func(t *testing.T) {
		p := New("support", "notify_delayed_orders")
		p.NeedsApproval = false
		assert.True(t, CanApplyAt(p, nil, now))
	})

	t.Run("gated plan without approval is blocked", func(t *testing.T) {
		p := New("orders", "route_orders")
		p.NeedsApproval = true
		assert.False(t, CanApplyAt(p, nil, now))
	})

	t.Run("matching approval releases the plan", func(t *testing.T) {
		p := New("orders", "route_orders")
		p.NeedsApproval = true
		a := &Approval{PlanID: p.ID, ApprovedBy: "ops@example.com", GrantedAt: now}
		assert.True(t, CanApplyAt(p, a, now))
	})

	t.Run("approval for another plan does not count", func(t *testing.T) {
		p := New("orders", "route_orders")
		p.NeedsApproval = true
		a := &Approval{PlanID: uuid.New(), ApprovedBy: "ops@example.com"}
		assert.False(t, CanApplyAt(p, a, now))
	})

	t.Run("expired approval is blocked", func(t *testing.T) {
		p := New("orders", "route_orders")
		p.NeedsApproval = true
		a := &Approval{PlanID: p.ID, ApprovedBy: "ops@example.com", ExpiresAt: now.Add(-time.Minute)}
		assert.False(t, CanApplyAt(p, a, now))
	})

	t.Run("nil plan", func(t *testing.T) {
		assert.False(t, CanApplyAt(nil, nil, now))
	})
}

func TestRiskLevel(t *testing.T) {
	assert.True(t, RiskHigh.AtLeast(RiskMedium))
	assert.True(t, RiskMedium.AtLeast(RiskMedium))
	assert.False(t, RiskLow.AtLeast(RiskHigh))

	r, err := ParseRiskLevel("medium")
	require.NoError(t, err)
	assert.Equal(t, RiskMedium, r)

	_, err = ParseRiskLevel("catastrophic")
	assert.Error(t, err)
}
