// Package advertising launches ad campaigns against a funded-runway
// budget. The payment balance spread over a fixed runway, minus what
// running campaigns already commit per day, is the spend ceiling for new
// launches.
package advertising

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/shopops/automator/internal/domain/agent"
	"github.com/shopops/automator/internal/domain/gateway"
	"github.com/shopops/automator/internal/domain/plan"
	"github.com/shopops/automator/internal/domain/work"
)

// Action is the single operation this agent performs
const Action = "launch_campaigns"

// StepPauseCreated pauses every campaign the run created
const StepPauseCreated = "pause_created_campaigns"

const (
	// runwayDays is the period the payment balance has to cover at the
	// combined daily spend
	runwayDays      = 14
	rollbackTimeout = 5 * time.Minute
)

// approvalDailySpend is the combined daily budget above which an
// unattended run needs a human sign-off
var approvalDailySpend = decimal.NewFromInt(250)

const (
	labelDecision = "decision"

	decisionCreate        = "create"
	decisionSkipDuplicate = "skip_duplicate"
	decisionSkipNoBudget  = "skip_no_budget"
)

const mutationCampaignCreated = "campaign_created"

// CampaignSpec describes one campaign to launch
type CampaignSpec struct {
	Name        string          `json:"name" validate:"required,min=3,max=120"`
	DailyBudget decimal.Decimal `json:"daily_budget"`
	Audience    string          `json:"audience" validate:"required,oneof=all returning new"`
}

// Params are the validated parameters of a launch run
type Params struct {
	Campaigns []CampaignSpec `json:"campaigns" validate:"required,min=1,max=20,dive"`
	AutoApply bool           `json:"auto_apply"`
}

const paramsSchema = `{
	"type": "object",
	"additionalProperties": false,
	"properties": {
		"campaigns": {
			"type": "array",
			"minItems": 1,
			"maxItems": 20,
			"items": {
				"type": "object",
				"additionalProperties": false,
				"properties": {
					"name":         {"type": "string", "minLength": 3, "maxLength": 120},
					"daily_budget": {"type": "number", "exclusiveMinimum": 0},
					"audience":     {"type": "string", "enum": ["all", "returning", "new"]}
				},
				"required": ["name", "daily_budget", "audience"]
			}
		},
		"auto_apply": {"type": "boolean"}
	},
	"required": ["campaigns"]
}`

// Agent launches campaigns on the ad platform within the funded runway
type Agent struct {
	ads     gateway.AdPlatform
	payment gateway.Payment
	logger  *zap.Logger
}

// New creates the advertising agent
func New(ads gateway.AdPlatform, payment gateway.Payment, logger *zap.Logger) *Agent {
	return &Agent{
		ads:     ads,
		payment: payment,
		logger:  logger.Named("advertising"),
	}
}

// Type identifies the agent in the registry
func (a *Agent) Type() agent.Type { return agent.TypeAdvertising }

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
	total := decimal.Zero
	for _, c := range p.Campaigns {
		if !c.DailyBudget.IsPositive() {
			return agent.Assessment{}, fmt.Errorf("campaign %q has a non-positive daily budget %s", c.Name, c.DailyBudget)
		}
		total = total.Add(c.DailyBudget)
	}
	return agent.Assessment{
		Risk:          plan.RiskHigh,
		Scale:         int(total.Ceil().IntPart()),
		NeedsApproval: p.AutoApply && total.GreaterThan(approvalDailySpend),
		Rollback: plan.RollbackPlan{
			Steps: []plan.RollbackStep{
				{Action: StepPauseCreated, Order: 1},
			},
			Timeout:        rollbackTimeout,
			FallbackAction: "alert_manual_review",
		},
	}, nil
}

// Collect checks each draft against existing campaigns and the runway
// budget
func (a *Agent) Collect(ctx context.Context, p *plan.Plan) ([]*work.Item, error) {
	params := p.Params.(*Params)

	balance, err := a.payment.Balance(ctx)
	if err != nil {
		return nil, fmt.Errorf("payment balance: %w", err)
	}
	existing, err := a.ads.ListCampaigns(ctx)
	if err != nil {
		return nil, fmt.Errorf("list campaigns: %w", err)
	}

	taken := make(map[string]bool, len(existing))
	committed := decimal.Zero
	for _, c := range existing {
		taken[strings.ToLower(c.Name)] = true
		if c.Status == "active" {
			committed = committed.Add(c.DailyBudget)
		}
	}

	available := balance.Div(decimal.NewFromInt(runwayDays)).Sub(committed)
	if available.IsNegative() {
		available = decimal.Zero
	}

	items := make([]*work.Item, 0, len(params.Campaigns))
	for _, draft := range params.Campaigns {
		item := work.NewItem("campaign", draft.Name)
		item.Data = map[string]any{
			"daily_budget": draft.DailyBudget,
			"audience":     draft.Audience,
		}
		switch {
		case taken[strings.ToLower(draft.Name)]:
			item.SetLabel(labelDecision, decisionSkipDuplicate)
		case draft.DailyBudget.GreaterThan(available):
			item.SetLabel(labelDecision, decisionSkipNoBudget)
		default:
			item.SetLabel(labelDecision, decisionCreate)
			available = available.Sub(draft.DailyBudget)
			// Two drafts with the same name in one request collide too
			taken[strings.ToLower(draft.Name)] = true
		}
		items = append(items, item)
	}

	a.logger.Debug("campaign drafts assessed",
		zap.String("plan_id", p.ID.String()),
		zap.Int("drafts", len(items)),
		zap.String("available_daily", available.StringFixed(2)),
	)
	return items, nil
}

// Preview summarizes the launch without touching the ad platform
func (a *Agent) Preview(p *plan.Plan, items []*work.Item) map[string]any {
	var create, dup, noBudget int
	spend := decimal.Zero
	for _, item := range items {
		switch item.Label(labelDecision) {
		case decisionCreate:
			create++
			if budget, ok := item.Data["daily_budget"].(decimal.Decimal); ok {
				spend = spend.Add(budget)
			}
		case decisionSkipDuplicate:
			dup++
		case decisionSkipNoBudget:
			noBudget++
		}
	}
	return map[string]any{
		"would_create": create,
		"duplicates":   dup,
		"over_budget":  noBudget,
		"daily_spend":  spend.StringFixed(2),
		"runway_days":  runwayDays,
	}
}

// Execute creates one campaign
func (a *Agent) Execute(ctx context.Context, p *plan.Plan, item *work.Item) (*work.ItemResult, error) {
	switch item.Label(labelDecision) {
	case decisionCreate:
	case decisionSkipDuplicate:
		return work.Skipped(item, "campaign name already exists"), nil
	case decisionSkipNoBudget:
		return work.Skipped(item, "daily budget exceeds funded runway"), nil
	default:
		return nil, fmt.Errorf("campaign %q carries no launch decision", item.Ref)
	}

	budget, ok := item.Data["daily_budget"].(decimal.Decimal)
	if !ok {
		return nil, fmt.Errorf("campaign %q carries no daily budget", item.Ref)
	}
	audience, _ := item.Data["audience"].(string)

	created, err := a.ads.CreateCampaign(ctx, gateway.CampaignDraft{
		Name:        item.Ref,
		DailyBudget: budget,
		Audience:    audience,
	})
	if err != nil {
		return nil, fmt.Errorf("create campaign %q: %w", item.Ref, err)
	}

	res := work.Succeeded(item)
	res.Output = map[string]any{
		"campaign_id": created.ID,
		"status":      created.Status,
	}
	res.AddMutation(work.Mutation{
		Kind:     mutationCampaignCreated,
		Provider: a.ads.Provider(),
		EntityID: created.ID,
		Undo:     map[string]any{"name": item.Ref},
	})
	return res, nil
}

// Compensate pauses the campaigns this run created. Pausing is the
// platform's reversible stop; deleting would erase spend history.
func (a *Agent) Compensate(ctx context.Context, p *plan.Plan, step plan.RollbackStep, muts []work.Mutation) error {
	if step.Action != StepPauseCreated {
		return fmt.Errorf("unknown rollback step %q", step.Action)
	}

	var errs error
	paused := 0
	for _, m := range muts {
		if m.Kind != mutationCampaignCreated {
			continue
		}
		if err := ctx.Err(); err != nil {
			return multierr.Append(errs, err)
		}
		if err := a.ads.PauseCampaign(ctx, m.EntityID); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("pause campaign %s: %w", m.EntityID, err))
			continue
		}
		paused++
	}
	if paused > 0 {
		a.logger.Info("created campaigns paused",
			zap.String("plan_id", p.ID.String()),
			zap.Int("paused", paused),
		)
	}
	return errs
}

var _ agent.Agent = (*Agent)(nil)
