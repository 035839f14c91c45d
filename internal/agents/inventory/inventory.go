// Package inventory reconciles storefront stock levels with supplier
// availability. Each SKU whose storefront level drifts from the combined
// supplier stock gets a bounded adjustment; the level before every
// adjustment is recorded so a rollback can restore it.
package inventory

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/shopops/automator/internal/domain/agent"
	"github.com/shopops/automator/internal/domain/gateway"
	"github.com/shopops/automator/internal/domain/plan"
	"github.com/shopops/automator/internal/domain/work"
)

// Action is the single operation this agent performs
const Action = "sync_inventory"

// StepRestoreLevels puts every adjusted SKU back to its pre-run level
const StepRestoreLevels = "restore_inventory_levels"

const (
	// approvalThreshold is the SKU count above which an unattended run
	// needs a human sign-off
	approvalThreshold = 100
	rollbackTimeout   = 5 * time.Minute

	// defaultMaxDelta caps a single adjustment when the caller does not
	// set a bound. A supplier feed glitch must not zero out or flood a
	// listing in one run.
	defaultMaxDelta = 1000
)

const (
	labelDecision = "decision"
	labelClamped  = "clamped"

	decisionAdjust     = "adjust"
	decisionSkipInSync = "skip_in_sync"
)

const mutationAdjusted = "inventory_adjusted"

// Params are the validated parameters of a sync run
type Params struct {
	MaxSKUs   int   `json:"max_skus" validate:"gte=1,lte=500"`
	MaxDelta  int64 `json:"max_delta" validate:"omitempty,gte=1,lte=10000"`
	AutoApply bool  `json:"auto_apply"`
}

const paramsSchema = `{
	"type": "object",
	"additionalProperties": false,
	"properties": {
		"max_skus":   {"type": "integer", "minimum": 1, "maximum": 500},
		"max_delta":  {"type": "integer", "minimum": 1, "maximum": 10000},
		"auto_apply": {"type": "boolean"}
	},
	"required": ["max_skus"]
}`

// Agent keeps storefront stock aligned with supplier availability
type Agent struct {
	storefront gateway.Storefront
	suppliers  []gateway.Supplier
	logger     *zap.Logger
}

// New creates the inventory agent. Supplier stock is summed across the
// fleet: the storefront level should reflect everything the merchant can
// actually ship.
func New(storefront gateway.Storefront, suppliers []gateway.Supplier, logger *zap.Logger) *Agent {
	return &Agent{
		storefront: storefront,
		suppliers:  suppliers,
		logger:     logger.Named("inventory"),
	}
}

// Type identifies the agent in the registry
func (a *Agent) Type() agent.Type { return agent.TypeInventory }

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
	return agent.Assessment{
		Risk:          plan.RiskHigh,
		Scale:         p.MaxSKUs,
		NeedsApproval: p.AutoApply && p.MaxSKUs > approvalThreshold,
		Rollback: plan.RollbackPlan{
			Steps: []plan.RollbackStep{
				{Action: StepRestoreLevels, Order: 1},
			},
			Timeout:        rollbackTimeout,
			FallbackAction: "alert_manual_review",
		},
	}, nil
}

// Collect compares active listings against combined supplier stock and
// labels each SKU with the bounded adjustment it needs
func (a *Agent) Collect(ctx context.Context, p *plan.Plan) ([]*work.Item, error) {
	params := p.Params.(*Params)
	maxDelta := params.MaxDelta
	if maxDelta == 0 {
		maxDelta = defaultMaxDelta
	}

	products, err := a.storefront.ListProducts(ctx, gateway.ProductQuery{State: "active", Limit: params.MaxSKUs})
	if err != nil {
		return nil, fmt.Errorf("list active products: %w", err)
	}
	if len(products) == 0 {
		return nil, nil
	}

	skus := make([]string, 0, len(products))
	for _, pr := range products {
		skus = append(skus, pr.SKU)
	}

	targets, err := a.combinedStock(ctx, skus)
	if err != nil {
		return nil, err
	}

	items := make([]*work.Item, 0, len(products))
	for _, pr := range products {
		target := targets[pr.SKU]
		delta := target - pr.Stock

		item := work.NewItem("sku", pr.SKU)
		item.Data = map[string]any{
			"current": pr.Stock,
			"target":  target,
			"delta":   delta,
		}
		if delta == 0 {
			item.SetLabel(labelDecision, decisionSkipInSync)
			items = append(items, item)
			continue
		}

		if delta > maxDelta {
			delta = maxDelta
			item.SetLabel(labelClamped, "true")
		} else if delta < -maxDelta {
			delta = -maxDelta
			item.SetLabel(labelClamped, "true")
		}
		item.Data["delta"] = delta
		item.SetLabel(labelDecision, decisionAdjust)
		items = append(items, item)
	}

	a.logger.Debug("stock drift classified",
		zap.String("plan_id", p.ID.String()),
		zap.Int("skus", len(items)),
	)
	return items, nil
}

// combinedStock sums availability across the supplier fleet. A supplier
// that does not answer is skipped; the run only fails when none answered.
func (a *Agent) combinedStock(ctx context.Context, skus []string) (map[string]int64, error) {
	targets := make(map[string]int64, len(skus))
	answered := 0
	var lastErr error
	for _, s := range a.suppliers {
		stock, err := s.FetchStock(ctx, skus)
		if err != nil {
			lastErr = err
			a.logger.Warn("supplier stock unavailable",
				zap.String("provider", s.Provider()),
				zap.Error(err),
			)
			continue
		}
		answered++
		for sku, level := range stock {
			targets[sku] += level
		}
	}
	if answered == 0 {
		if lastErr != nil {
			return nil, fmt.Errorf("no supplier answered a stock query: %w", lastErr)
		}
		return nil, fmt.Errorf("no suppliers configured")
	}
	return targets, nil
}

// Preview summarizes the pending adjustments without touching any provider
func (a *Agent) Preview(p *plan.Plan, items []*work.Item) map[string]any {
	var toAdjust, inSync, clamped int
	var unitsUp, unitsDown int64
	for _, item := range items {
		if item.Label(labelDecision) != decisionAdjust {
			inSync++
			continue
		}
		toAdjust++
		if item.Label(labelClamped) == "true" {
			clamped++
		}
		delta := asInt64(item.Data["delta"])
		if delta > 0 {
			unitsUp += delta
		} else {
			unitsDown -= delta
		}
	}
	return map[string]any{
		"would_adjust": toAdjust,
		"in_sync":      inSync,
		"clamped":      clamped,
		"units_up":     unitsUp,
		"units_down":   unitsDown,
	}
}

// Execute applies the adjustment for one SKU and records the level it
// replaced
func (a *Agent) Execute(ctx context.Context, p *plan.Plan, item *work.Item) (*work.ItemResult, error) {
	if item.Label(labelDecision) != decisionAdjust {
		return work.Skipped(item, "already in sync"), nil
	}

	delta := asInt64(item.Data["delta"])
	if delta == 0 {
		return work.Skipped(item, "already in sync"), nil
	}

	newLevel, err := a.storefront.AdjustInventory(ctx, item.Ref, delta)
	if err != nil {
		return nil, fmt.Errorf("adjust %s by %d: %w", item.Ref, delta, err)
	}

	res := work.Succeeded(item)
	res.Output = map[string]any{
		"level": newLevel,
		"delta": delta,
	}
	res.AddMutation(work.Mutation{
		Kind:     mutationAdjusted,
		Provider: a.storefront.Provider(),
		EntityID: item.Ref,
		// the platform's own answer is authoritative, not the level
		// collected earlier
		Undo: map[string]any{"previous_level": newLevel - delta},
	})
	return res, nil
}

// Compensate restores every adjusted SKU to its recorded pre-run level.
// Restoration reads the current level first, so retrying a partly
// completed rollback leaves already restored SKUs alone.
func (a *Agent) Compensate(ctx context.Context, p *plan.Plan, step plan.RollbackStep, muts []work.Mutation) error {
	if step.Action != StepRestoreLevels {
		return fmt.Errorf("unknown rollback step %q", step.Action)
	}

	var errs error
	restored := 0
	for _, m := range muts {
		if m.Kind != mutationAdjusted {
			continue
		}
		if err := ctx.Err(); err != nil {
			return multierr.Append(errs, err)
		}

		prev := asInt64(m.Undo["previous_level"])
		products, err := a.storefront.ListProducts(ctx, gateway.ProductQuery{SKUs: []string{m.EntityID}})
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("read level of %s: %w", m.EntityID, err))
			continue
		}
		if len(products) == 0 {
			errs = multierr.Append(errs, fmt.Errorf("restore %s: sku no longer listed", m.EntityID))
			continue
		}

		diff := prev - products[0].Stock
		if diff == 0 {
			continue
		}
		if _, err := a.storefront.AdjustInventory(ctx, m.EntityID, diff); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("restore %s to %d: %w", m.EntityID, prev, err))
			continue
		}
		restored++
	}

	a.logger.Info("stock levels restored",
		zap.String("plan_id", p.ID.String()),
		zap.Int("restored", restored),
	)
	return errs
}

// asInt64 reads a numeric value that may have been through a JSON round
// trip
func asInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	default:
		return 0
	}
}

var _ agent.Agent = (*Agent)(nil)
