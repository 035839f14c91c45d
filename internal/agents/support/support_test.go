package support_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/shopops/automator/internal/agents/agenttest"
	"github.com/shopops/automator/internal/agents/support"
	"github.com/shopops/automator/internal/domain/agent"
	"github.com/shopops/automator/internal/domain/gateway"
	"github.com/shopops/automator/internal/domain/plan"
	"github.com/shopops/automator/internal/domain/work"
)

const opsContact = "ops@example.com"

func money(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func triagePlan(params *support.Params) *plan.Plan {
	p := plan.New(string(agent.TypeSupport), support.Action)
	p.Params = params
	return p
}

func paidOrder(id, email string, age time.Duration, total string) gateway.Order {
	return gateway.Order{
		ID:       id,
		Email:    email,
		Status:   "paid",
		Total:    money(total),
		PlacedAt: time.Now().Add(-age),
	}
}

// newFixture triages against a 48 hour delay line and a 120 hour
// escalation line.
func newFixture(t *testing.T) (*support.Agent, *agenttest.Storefront, *agenttest.Messaging) {
	t.Helper()
	store := agenttest.NewStorefront("shop")
	store.Orders = []gateway.Order{
		paidOrder("o-fresh", "new@example.com", 24*time.Hour, "10"),
		paidOrder("o-late", "amy@example.com", 72*time.Hour, "40"),
		paidOrder("o-old", "dan@example.com", 150*time.Hour, "90"),
		paidOrder("o-ghost", "", 80*time.Hour, "25"),
		{ID: "o-open", Email: "idle@example.com", Status: "pending", Total: money("5"), PlacedAt: time.Now().Add(-200 * time.Hour)},
	}
	msging := agenttest.NewMessaging("mailer")
	ag := support.New(store, msging, support.Config{OpsContact: opsContact}, zaptest.NewLogger(t))
	return ag, store, msging
}

func baseParams() *support.Params {
	return &support.Params{
		DelayedAfterHours:  48,
		EscalateAfterHours: 120,
		MaxTickets:         100,
	}
}

func TestCollect_ClassifiesByAgeOldestFirst(t *testing.T) {
	ag, _, _ := newFixture(t)

	items, err := ag.Collect(context.Background(), triagePlan(baseParams()))
	require.NoError(t, err)
	require.Len(t, items, 3)

	assert.Equal(t, "o-old", items[0].Ref)
	assert.Equal(t, "escalate", items[0].Label("class"))

	// Unreachable customer, even though the order is only reply-old
	assert.Equal(t, "o-ghost", items[1].Ref)
	assert.Equal(t, "escalate", items[1].Label("class"))

	assert.Equal(t, "o-late", items[2].Ref)
	assert.Equal(t, "auto_reply", items[2].Label("class"))
	assert.Equal(t, int64(72), items[2].Data["age_hours"])
}

func TestCollect_CapDropsFreshestTickets(t *testing.T) {
	ag, _, _ := newFixture(t)
	params := baseParams()
	params.MaxTickets = 2

	items, err := ag.Collect(context.Background(), triagePlan(params))
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "o-old", items[0].Ref)
	assert.Equal(t, "o-ghost", items[1].Ref)
}

func TestCollect_ListFailure(t *testing.T) {
	ag, store, _ := newFixture(t)
	store.FailOp["list_orders"] = gateway.ConnectionFailed("shop", "list_orders", errors.New("api down"))

	_, err := ag.Collect(context.Background(), triagePlan(baseParams()))
	require.Error(t, err)
	assert.Equal(t, gateway.ErrorClassConnection, gateway.Classify(err))
}

func TestPreview_CountsClasses(t *testing.T) {
	ag, _, _ := newFixture(t)
	params := baseParams()
	params.AutoReply = true
	p := triagePlan(params)

	items, err := ag.Collect(context.Background(), p)
	require.NoError(t, err)

	summary := ag.Preview(p, items)
	assert.Equal(t, 1, summary["auto_replies"])
	assert.Equal(t, 2, summary["escalations"])
	assert.Equal(t, int64(150), summary["oldest_age_hours"])
	assert.Equal(t, true, summary["reply_enabled"])
}

func TestExecute_RepliesToCustomer(t *testing.T) {
	ag, _, msging := newFixture(t)
	params := baseParams()
	params.AutoReply = true
	p := triagePlan(params)

	items, err := ag.Collect(context.Background(), p)
	require.NoError(t, err)

	res, err := ag.Execute(context.Background(), p, items[2])
	require.NoError(t, err)
	assert.Equal(t, work.ItemSucceeded, res.Status)
	assert.Equal(t, "amy@example.com", res.Output["notified"])

	sent := msging.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "amy@example.com", sent[0].To)
	assert.Contains(t, sent[0].Subject, "o-late")
	assert.Contains(t, sent[0].Body, "72 hours")

	require.Len(t, res.Mutations, 1)
	assert.Equal(t, "message_sent", res.Mutations[0].Kind)
	assert.Equal(t, "o-late", res.Mutations[0].EntityID)
	assert.Equal(t, "amy@example.com", res.Mutations[0].Undo["email"])
}

func TestExecute_RepliesDisabledSkips(t *testing.T) {
	ag, _, msging := newFixture(t)
	p := triagePlan(baseParams())

	items, err := ag.Collect(context.Background(), p)
	require.NoError(t, err)

	res, err := ag.Execute(context.Background(), p, items[2])
	require.NoError(t, err)
	assert.Equal(t, work.ItemSkipped, res.Status)
	assert.Equal(t, "auto replies disabled", res.Error)
	assert.Empty(t, msging.Sent())
}

func TestExecute_EscalatesToOps(t *testing.T) {
	ag, _, msging := newFixture(t)
	p := triagePlan(baseParams())

	items, err := ag.Collect(context.Background(), p)
	require.NoError(t, err)

	res, err := ag.Execute(context.Background(), p, items[0])
	require.NoError(t, err)
	assert.Equal(t, work.ItemSucceeded, res.Status)
	assert.Equal(t, opsContact, res.Output["escalated_to"])

	notices := msging.SentTo(opsContact)
	require.Len(t, notices, 1)
	assert.Contains(t, notices[0].Subject, "o-old")
	assert.Contains(t, notices[0].Body, "dan@example.com")

	require.Len(t, res.Mutations, 1)
	assert.Equal(t, "escalation_sent", res.Mutations[0].Kind)
	assert.Equal(t, "o-old", res.Mutations[0].EntityID)
}

func TestExecute_SendFailure(t *testing.T) {
	ag, _, msging := newFixture(t)
	msging.FailTo[opsContact] = gateway.RateLimited("mailer", "send", errors.New("throttled"))
	p := triagePlan(baseParams())

	items, err := ag.Collect(context.Background(), p)
	require.NoError(t, err)

	_, err = ag.Execute(context.Background(), p, items[0])
	require.Error(t, err)
	assert.Equal(t, gateway.ErrorClassRateLimit, gateway.Classify(err))
}

func TestCompensate_SendsOneCorrectionNotice(t *testing.T) {
	ag, _, msging := newFixture(t)
	p := triagePlan(baseParams())
	muts := []work.Mutation{
		{Kind: "message_sent", Provider: "mailer", EntityID: "o-1"},
		{Kind: "message_sent", Provider: "mailer", EntityID: "o-2"},
		{Kind: "escalation_sent", Provider: "mailer", EntityID: "o-3"},
		{Kind: "product_created", Provider: "shop", EntityID: "ent-1"},
	}

	err := ag.Compensate(context.Background(), p, plan.RollbackStep{Action: support.StepFollowUpNotice, Order: 1}, muts)
	require.NoError(t, err)

	notices := msging.SentTo(opsContact)
	require.Len(t, notices, 1)
	assert.Contains(t, notices[0].Body, "2 customer replies")
	assert.Contains(t, notices[0].Body, "1 escalations")
}

func TestCompensate_NothingSentStaysQuiet(t *testing.T) {
	ag, _, msging := newFixture(t)
	p := triagePlan(baseParams())

	err := ag.Compensate(context.Background(), p, plan.RollbackStep{Action: support.StepFollowUpNotice, Order: 1}, nil)
	require.NoError(t, err)
	assert.Empty(t, msging.Sent())
}

func TestCompensate_UnknownStep(t *testing.T) {
	ag, _, _ := newFixture(t)
	p := triagePlan(baseParams())

	err := ag.Compensate(context.Background(), p, plan.RollbackStep{Action: "unsend_email", Order: 1}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsend_email")
}

func TestAssess_RiskFollowsReplyMode(t *testing.T) {
	ag, _, _ := newFixture(t)
	spec := ag.Spec()

	a, err := spec.Assess(&support.Params{DelayedAfterHours: 48, EscalateAfterHours: 120, MaxTickets: 200, AutoApply: true})
	require.NoError(t, err)
	assert.Equal(t, plan.RiskLow, a.Risk)
	assert.False(t, a.NeedsApproval)
	assert.Equal(t, 200, a.Scale)

	a, err = spec.Assess(&support.Params{DelayedAfterHours: 48, EscalateAfterHours: 120, MaxTickets: 101, AutoReply: true, AutoApply: true})
	require.NoError(t, err)
	assert.Equal(t, plan.RiskMedium, a.Risk)
	assert.True(t, a.NeedsApproval)

	a, err = spec.Assess(&support.Params{DelayedAfterHours: 48, EscalateAfterHours: 120, MaxTickets: 101, AutoReply: true})
	require.NoError(t, err)
	assert.False(t, a.NeedsApproval)

	require.NoError(t, a.Rollback.Validate())
	require.Len(t, a.Rollback.Steps, 1)
	assert.Equal(t, support.StepFollowUpNotice, a.Rollback.Steps[0].Action)
}
