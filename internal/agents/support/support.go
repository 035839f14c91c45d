// Package support triages delayed orders into customer apologies and
// operator escalations. Orders that sat unfulfilled past one threshold
// get an automatic reply, past a second threshold a human is pulled in.
package support

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/shopops/automator/internal/domain/agent"
	"github.com/shopops/automator/internal/domain/gateway"
	"github.com/shopops/automator/internal/domain/plan"
	"github.com/shopops/automator/internal/domain/work"
)

// Action is the single operation this agent performs
const Action = "triage_tickets"

// StepFollowUpNotice tells operations a triage run was rolled back
const StepFollowUpNotice = "send_correction_notice"

const (
	// approvalThreshold is the ticket count above which an unattended
	// auto-replying run needs a human sign-off
	approvalThreshold = 100
	rollbackTimeout   = 2 * time.Minute

	// triageStatus is the order state that counts as an open ticket: paid
	// but not yet fulfilled
	triageStatus = "paid"
)

const (
	labelClass = "class"

	classAutoReply = "auto_reply"
	classEscalate  = "escalate"
)

const (
	mutationMessageSent    = "message_sent"
	mutationEscalationSent = "escalation_sent"
)

// Params are the validated parameters of a triage run
type Params struct {
	DelayedAfterHours  int  `json:"delayed_after_hours" validate:"required,gte=24,lte=720"`
	EscalateAfterHours int  `json:"escalate_after_hours" validate:"required,gtfield=DelayedAfterHours,lte=1440"`
	MaxTickets         int  `json:"max_tickets" validate:"required,gte=1,lte=200"`
	AutoReply          bool `json:"auto_reply"`
	AutoApply          bool `json:"auto_apply"`
}

const paramsSchema = `{
	"type": "object",
	"additionalProperties": false,
	"properties": {
		"delayed_after_hours":  {"type": "integer", "minimum": 24, "maximum": 720},
		"escalate_after_hours": {"type": "integer", "minimum": 25, "maximum": 1440},
		"max_tickets":          {"type": "integer", "minimum": 1, "maximum": 200},
		"auto_reply":           {"type": "boolean"},
		"auto_apply":           {"type": "boolean"}
	},
	"required": ["delayed_after_hours", "escalate_after_hours", "max_tickets"]
}`

// Config carries the non-gateway settings the agent needs
type Config struct {
	// OpsContact receives escalations and the rollback correction notice
	OpsContact string
}

// Agent turns delayed orders into replies and escalations
type Agent struct {
	storefront gateway.Storefront
	messaging  gateway.Messaging
	cfg        Config
	logger     *zap.Logger
}

// New creates the support agent
func New(storefront gateway.Storefront, messaging gateway.Messaging, cfg Config, logger *zap.Logger) *Agent {
	return &Agent{
		storefront: storefront,
		messaging:  messaging,
		cfg:        cfg,
		logger:     logger.Named("support"),
	}
}

// Type identifies the agent in the registry
func (a *Agent) Type() agent.Type { return agent.TypeSupport }

// Spec declares the action, its parameter schema and the assessment rules
func (a *Agent) Spec() agent.Spec {
	return agent.Spec{
		Action:    Action,
		Schema:    []byte(paramsSchema),
		NewParams: func() any { return &Params{} },
		Assess:    assess,
	}
}

func assess(params any) (agent.Assessment, error) {
	p := params.(*Params)
	risk := plan.RiskLow
	if p.AutoReply {
		risk = plan.RiskMedium
	}
	return agent.Assessment{
		Risk:          risk,
		Scale:         p.MaxTickets,
		NeedsApproval: p.AutoApply && p.AutoReply && p.MaxTickets > approvalThreshold,
		Rollback: plan.RollbackPlan{
			Steps: []plan.RollbackStep{
				{Action: StepFollowUpNotice, Order: 1},
			},
			Timeout:        rollbackTimeout,
			FallbackAction: "alert_manual_review",
		},
	}, nil
}

// Collect classifies delayed paid orders by age, oldest first
func (a *Agent) Collect(ctx context.Context, p *plan.Plan) ([]*work.Item, error) {
	params := p.Params.(*Params)

	orders, err := a.storefront.ListOrders(ctx, gateway.OrderQuery{Status: triageStatus})
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}

	now := time.Now()
	delayed := time.Duration(params.DelayedAfterHours) * time.Hour
	escalate := time.Duration(params.EscalateAfterHours) * time.Hour

	var items []*work.Item
	for _, o := range orders {
		age := now.Sub(o.PlacedAt)
		if age < delayed {
			continue
		}
		class := classAutoReply
		if age >= escalate {
			class = classEscalate
		}
		if o.Email == "" {
			// Nobody to reply to, a human has to find the customer
			class = classEscalate
		}

		item := work.NewItem("ticket", o.ID)
		item.Data = map[string]any{
			"email":     o.Email,
			"age_hours": int64(age.Hours()),
			"total":     o.Total,
			"placed_at": o.PlacedAt,
		}
		item.SetLabel(labelClass, class)
		items = append(items, item)
	}

	// The cap must drop the freshest tickets, not whichever the platform
	// listed last
	sort.Slice(items, func(i, j int) bool {
		pi, _ := items[i].Data["placed_at"].(time.Time)
		pj, _ := items[j].Data["placed_at"].(time.Time)
		return pi.Before(pj)
	})
	if len(items) > params.MaxTickets {
		items = items[:params.MaxTickets]
	}

	a.logger.Debug("tickets triaged",
		zap.String("plan_id", p.ID.String()),
		zap.Int("tickets", len(items)),
	)
	return items, nil
}

// Preview summarizes the triage without sending anything
func (a *Agent) Preview(p *plan.Plan, items []*work.Item) map[string]any {
	params := p.Params.(*Params)
	var replies, escalations int
	var oldest int64
	for _, item := range items {
		switch item.Label(labelClass) {
		case classAutoReply:
			replies++
		case classEscalate:
			escalations++
		}
		if age, ok := item.Data["age_hours"].(int64); ok && age > oldest {
			oldest = age
		}
	}
	return map[string]any{
		"auto_replies":     replies,
		"escalations":      escalations,
		"oldest_age_hours": oldest,
		"reply_enabled":    params.AutoReply,
	}
}

// Execute handles one ticket according to its triage class
func (a *Agent) Execute(ctx context.Context, p *plan.Plan, item *work.Item) (*work.ItemResult, error) {
	params := p.Params.(*Params)
	switch item.Label(labelClass) {
	case classAutoReply:
		if !params.AutoReply {
			return work.Skipped(item, "auto replies disabled"), nil
		}
		return a.reply(ctx, item)
	case classEscalate:
		return a.escalate(ctx, item)
	default:
		return nil, fmt.Errorf("ticket %q carries no triage class", item.Ref)
	}
}

func (a *Agent) reply(ctx context.Context, item *work.Item) (*work.ItemResult, error) {
	email, _ := item.Data["email"].(string)
	if email == "" {
		return nil, fmt.Errorf("ticket %s has no email on record", item.Ref)
	}
	hours, _ := item.Data["age_hours"].(int64)

	msg := gateway.Message{
		To:      email,
		Subject: fmt.Sprintf("Your order %s is delayed", item.Ref),
		Body: fmt.Sprintf(
			"We are sorry. Your order %s was placed %d hours ago and has not shipped yet.\n"+
				"The team is on it and will follow up with tracking details as soon as it leaves the warehouse.\n",
			item.Ref, hours,
		),
	}
	if err := a.messaging.Send(ctx, msg); err != nil {
		return nil, fmt.Errorf("reply to %s: %w", email, err)
	}

	res := work.Succeeded(item)
	res.Output = map[string]any{"notified": email}
	res.AddMutation(work.Mutation{
		Kind:     mutationMessageSent,
		Provider: a.messaging.Provider(),
		EntityID: item.Ref,
		Undo:     map[string]any{"email": email},
	})
	return res, nil
}

func (a *Agent) escalate(ctx context.Context, item *work.Item) (*work.ItemResult, error) {
	email, _ := item.Data["email"].(string)
	if email == "" {
		email = "unknown"
	}
	hours, _ := item.Data["age_hours"].(int64)

	msg := gateway.Message{
		To:      a.cfg.OpsContact,
		Subject: fmt.Sprintf("[automator] delayed order %s needs attention", item.Ref),
		Body: fmt.Sprintf(
			"Order %s has been paid and unfulfilled for %d hours.\n"+
				"Customer: %s\n"+
				"Please check the fulfilment pipeline and contact the customer directly.\n",
			item.Ref, hours, email,
		),
	}
	if err := a.messaging.Send(ctx, msg); err != nil {
		return nil, fmt.Errorf("escalate %s to %s: %w", item.Ref, a.cfg.OpsContact, err)
	}

	res := work.Succeeded(item)
	res.Output = map[string]any{"escalated_to": a.cfg.OpsContact}
	res.AddMutation(work.Mutation{
		Kind:     mutationEscalationSent,
		Provider: a.messaging.Provider(),
		EntityID: item.Ref,
		Undo:     map[string]any{"contact": a.cfg.OpsContact},
	})
	return res, nil
}

// Compensate tells operations which notifications went out before the
// rollback. Sent mail stays sent; what can be corrected is the follow-up
// work the messages promised.
func (a *Agent) Compensate(ctx context.Context, p *plan.Plan, step plan.RollbackStep, muts []work.Mutation) error {
	if step.Action != StepFollowUpNotice {
		return fmt.Errorf("unknown rollback step %q", step.Action)
	}

	replies, escalations := 0, 0
	for _, m := range muts {
		switch m.Kind {
		case mutationMessageSent:
			replies++
		case mutationEscalationSent:
			escalations++
		}
	}
	if replies+escalations == 0 {
		return nil
	}

	notice := gateway.Message{
		To:      a.cfg.OpsContact,
		Subject: fmt.Sprintf("[automator] triage run %s rolled back", p.ID),
		Body: fmt.Sprintf(
			"A ticket triage run (plan %s) was rolled back after %d customer replies and %d escalations went out.\n"+
				"The replies promise follow-ups nobody is tracking now. Review the affected orders.\n",
			p.ID, replies, escalations,
		),
	}
	if err := a.messaging.Send(ctx, notice); err != nil {
		return fmt.Errorf("notify %s about rolled back triage: %w", a.cfg.OpsContact, err)
	}

	a.logger.Info("triage rollback reported",
		zap.String("plan_id", p.ID.String()),
		zap.Int("replies", replies),
		zap.Int("escalations", escalations),
	)
	return nil
}

var _ agent.Agent = (*Agent)(nil)
