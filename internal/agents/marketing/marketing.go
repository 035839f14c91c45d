// Package marketing sends a one-off campaign message to a spend-based
// customer segment. Delivered messages cannot be recalled; the
// compensating step announces the cancellation to the operations contact
// instead of pretending to undo sends.
package marketing

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/shopops/automator/internal/domain/agent"
	"github.com/shopops/automator/internal/domain/gateway"
	"github.com/shopops/automator/internal/domain/plan"
	"github.com/shopops/automator/internal/domain/work"
)

// Action is the single operation this agent performs
const Action = "send_campaign"

// StepMarkCancelled tells operations the campaign was cancelled after the
// fact
const StepMarkCancelled = "mark_campaign_cancelled"

const (
	// approvalThreshold is the recipient count above which an unattended
	// run needs a human sign-off
	approvalThreshold = 100
	rollbackTimeout   = 2 * time.Minute

	// activeWindow separates active customers from dormant ones
	activeWindow = 90 * 24 * time.Hour
)

// vipSpendFloor is the lifetime spend that makes a customer part of the
// vip segment
var vipSpendFloor = decimal.NewFromInt(500)

// Segments
const (
	SegmentVIP     = "vip"
	SegmentActive  = "active"
	SegmentDormant = "dormant"
	SegmentAll     = "all"
)

const mutationMessageSent = "message_sent"

// Params are the validated parameters of a campaign run
type Params struct {
	Campaign      string          `json:"campaign" validate:"required,min=3,max=80"`
	Segment       string          `json:"segment" validate:"required,oneof=vip active dormant all"`
	MinSpend      decimal.Decimal `json:"min_spend"`
	Subject       string          `json:"subject" validate:"required,min=3,max=160"`
	Body          string          `json:"body" validate:"required,min=10"`
	MaxRecipients int             `json:"max_recipients" validate:"gte=1,lte=1000"`
	AutoApply     bool            `json:"auto_apply"`
}

const paramsSchema = `{
	"type": "object",
	"additionalProperties": false,
	"properties": {
		"campaign":       {"type": "string", "minLength": 3, "maxLength": 80},
		"segment":        {"type": "string", "enum": ["vip", "active", "dormant", "all"]},
		"min_spend":      {"type": "number", "minimum": 0},
		"subject":        {"type": "string", "minLength": 3, "maxLength": 160},
		"body":           {"type": "string", "minLength": 10},
		"max_recipients": {"type": "integer", "minimum": 1, "maximum": 1000},
		"auto_apply":     {"type": "boolean"}
	},
	"required": ["campaign", "segment", "subject", "body", "max_recipients"]
}`

// Config carries the non-gateway settings the agent needs
type Config struct {
	// OpsContact receives the cancellation notice when a campaign run is
	// rolled back
	OpsContact string
}

// Agent sends segment campaigns through the messaging provider
type Agent struct {
	storefront gateway.Storefront
	messaging  gateway.Messaging
	cfg        Config
	logger     *zap.Logger
}

// New creates the marketing agent
func New(storefront gateway.Storefront, messaging gateway.Messaging, cfg Config, logger *zap.Logger) *Agent {
	return &Agent{
		storefront: storefront,
		messaging:  messaging,
		cfg:        cfg,
		logger:     logger.Named("marketing"),
	}
}

// Type identifies the agent in the registry
func (a *Agent) Type() agent.Type { return agent.TypeMarketing }

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
	if p.MinSpend.IsNegative() {
		return agent.Assessment{}, fmt.Errorf("min_spend must not be negative, got %s", p.MinSpend)
	}
	return agent.Assessment{
		Risk:          plan.RiskMedium,
		Scale:         p.MaxRecipients,
		NeedsApproval: p.AutoApply && p.MaxRecipients > approvalThreshold,
		Rollback: plan.RollbackPlan{
			Steps: []plan.RollbackStep{
				{Action: StepMarkCancelled, Order: 1},
			},
			Timeout:        rollbackTimeout,
			FallbackAction: "alert_manual_review",
		},
	}, nil
}

// Collect segments the customer base and caps it at the recipient limit
func (a *Agent) Collect(ctx context.Context, p *plan.Plan) ([]*work.Item, error) {
	params := p.Params.(*Params)

	q := gateway.CustomerQuery{}
	if params.Segment == SegmentActive {
		q.Since = time.Now().Add(-activeWindow)
	}
	customers, err := a.storefront.ListCustomers(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list customers: %w", err)
	}

	now := time.Now()
	items := make([]*work.Item, 0, params.MaxRecipients)
	for _, c := range customers {
		if !inSegment(params.Segment, c, now) {
			continue
		}
		if c.TotalSpend.LessThan(params.MinSpend) {
			continue
		}
		if c.Email == "" {
			continue
		}

		item := work.NewItem("customer", c.ID)
		item.Data = map[string]any{
			"email": c.Email,
			"name":  c.Name,
			"spend": c.TotalSpend,
		}
		item.SetLabel("segment", params.Segment)
		items = append(items, item)
		if len(items) == params.MaxRecipients {
			break
		}
	}

	a.logger.Debug("segment collected",
		zap.String("plan_id", p.ID.String()),
		zap.String("segment", params.Segment),
		zap.Int("recipients", len(items)),
	)
	return items, nil
}

func inSegment(segment string, c gateway.Customer, now time.Time) bool {
	switch segment {
	case SegmentVIP:
		return c.TotalSpend.GreaterThanOrEqual(vipSpendFloor)
	case SegmentActive:
		return now.Sub(c.LastOrderAt) <= activeWindow
	case SegmentDormant:
		return c.OrderCount > 0 && now.Sub(c.LastOrderAt) > activeWindow
	case SegmentAll:
		return true
	default:
		return false
	}
}

// Preview summarizes the send without contacting anyone
func (a *Agent) Preview(p *plan.Plan, items []*work.Item) map[string]any {
	params := p.Params.(*Params)
	var sample []string
	for _, item := range items {
		if len(sample) == 3 {
			break
		}
		if email, ok := item.Data["email"].(string); ok {
			sample = append(sample, email)
		}
	}
	return map[string]any{
		"campaign":         params.Campaign,
		"segment":          params.Segment,
		"recipients":       len(items),
		"sample":           sample,
		"subject":          params.Subject,
		"messages_to_send": len(items),
	}
}

// Execute sends the campaign message to one customer
func (a *Agent) Execute(ctx context.Context, p *plan.Plan, item *work.Item) (*work.ItemResult, error) {
	params := p.Params.(*Params)
	email, _ := item.Data["email"].(string)
	if email == "" {
		return nil, fmt.Errorf("customer %s has no email on record", item.Ref)
	}
	name, _ := item.Data["name"].(string)

	msg := gateway.Message{
		To:      email,
		Subject: params.Subject,
		Body:    render(params.Body, params.Campaign, name),
	}
	if err := a.messaging.Send(ctx, msg); err != nil {
		return nil, fmt.Errorf("send to %s: %w", email, err)
	}

	res := work.Succeeded(item)
	res.Output = map[string]any{"email": email}
	res.AddMutation(work.Mutation{
		Kind:     mutationMessageSent,
		Provider: a.messaging.Provider(),
		EntityID: item.Ref,
		Undo:     map[string]any{"email": email},
	})
	return res, nil
}

// render fills the message template. Customer-facing bodies support a
// {{name}} and a {{campaign}} placeholder and nothing else.
func render(body, campaign, name string) string {
	r := strings.NewReplacer(
		"{{name}}", name,
		"{{campaign}}", campaign,
	)
	return r.Replace(body)
}

// Compensate reports the cancelled campaign to operations. Sends are
// terminal, so the honest compensation is an announcement, not an undo.
func (a *Agent) Compensate(ctx context.Context, p *plan.Plan, step plan.RollbackStep, muts []work.Mutation) error {
	if step.Action != StepMarkCancelled {
		return fmt.Errorf("unknown rollback step %q", step.Action)
	}

	params := p.Params.(*Params)
	sent := 0
	for _, m := range muts {
		if m.Kind == mutationMessageSent {
			sent++
		}
	}
	if sent == 0 {
		return nil
	}

	notice := gateway.Message{
		To:      a.cfg.OpsContact,
		Subject: fmt.Sprintf("[automator] campaign %q cancelled", params.Campaign),
		Body: fmt.Sprintf(
			"Campaign %q (plan %s) was rolled back after %d of its messages were already delivered.\n"+
				"Delivered messages cannot be recalled. Do not resend this campaign without review.\n",
			params.Campaign, p.ID, sent,
		),
	}
	if err := a.messaging.Send(ctx, notice); err != nil {
		return fmt.Errorf("notify %s about cancelled campaign: %w", a.cfg.OpsContact, err)
	}

	a.logger.Info("campaign marked cancelled",
		zap.String("plan_id", p.ID.String()),
		zap.String("campaign", params.Campaign),
		zap.Int("delivered", sent),
	)
	return nil
}

var _ agent.Agent = (*Agent)(nil)
