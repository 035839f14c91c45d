// Package sourcing imports candidate products from supplier feeds into the
// storefront catalog. Candidates are scored by margin and supplier
// availability; the ones that clear the bar land as draft products an
// operator publishes later.
package sourcing

import (
	"context"
	"fmt"
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
const Action = "import_products"

// StepDeleteDrafts removes the draft products a reverted import created
const StepDeleteDrafts = "delete_draft_products"

const (
	// approvalThreshold is the candidate count above which an unattended
	// run needs a human sign-off
	approvalThreshold = 100
	rollbackTimeout   = 5 * time.Minute
)

const (
	labelDecision = "decision"
	labelSupplier = "supplier"

	decisionImport       = "import"
	decisionSkipExisting = "skip_existing"
	decisionSkipMargin   = "skip_low_margin"
	decisionSkipNoStock  = "skip_no_stock"
)

const mutationProductCreated = "product_created"

// Candidate is one supplier offer under consideration
type Candidate struct {
	SKU   string          `json:"sku"`
	Name  string          `json:"name"`
	Cost  decimal.Decimal `json:"cost"`
	Price decimal.Decimal `json:"price"`
}

// Params are the validated parameters of an import run
type Params struct {
	Candidates   []Candidate `json:"candidates" validate:"required,min=1,max=200"`
	MinMarginPct float64     `json:"min_margin_pct" validate:"gte=0,lte=95"`
	AutoApply    bool        `json:"auto_apply"`
}

const paramsSchema = `{
	"type": "object",
	"additionalProperties": false,
	"properties": {
		"candidates": {
			"type": "array",
			"minItems": 1,
			"maxItems": 200,
			"items": {
				"type": "object",
				"additionalProperties": false,
				"properties": {
					"sku":   {"type": "string", "minLength": 1},
					"name":  {"type": "string", "minLength": 1},
					"cost":  {"type": "number", "exclusiveMinimum": 0},
					"price": {"type": "number", "exclusiveMinimum": 0}
				},
				"required": ["sku", "name", "cost", "price"]
			}
		},
		"min_margin_pct": {"type": "number", "minimum": 0, "maximum": 95},
		"auto_apply":     {"type": "boolean"}
	},
	"required": ["candidates"]
}`

// Agent sources new catalog entries from supplier offers
type Agent struct {
	storefront gateway.Storefront
	suppliers  []gateway.Supplier
	logger     *zap.Logger
}

// New creates the sourcing agent. Suppliers are consulted in the given
// order when several stock the same SKU.
func New(storefront gateway.Storefront, suppliers []gateway.Supplier, logger *zap.Logger) *Agent {
	return &Agent{
		storefront: storefront,
		suppliers:  suppliers,
		logger:     logger.Named("sourcing"),
	}
}

// Type identifies the agent in the registry
func (a *Agent) Type() agent.Type { return agent.TypeSourcing }

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
	for _, c := range p.Candidates {
		if !c.Price.GreaterThan(c.Cost) {
			return agent.Assessment{}, fmt.Errorf("candidate %s: price %s does not clear cost %s",
				c.SKU, c.Price, c.Cost)
		}
	}
	return agent.Assessment{
		Risk:          plan.RiskMedium,
		Scale:         len(p.Candidates),
		NeedsApproval: p.AutoApply && len(p.Candidates) > approvalThreshold,
		Rollback: plan.RollbackPlan{
			Steps: []plan.RollbackStep{
				{Action: StepDeleteDrafts, Order: 1},
			},
			Timeout:        rollbackTimeout,
			FallbackAction: "alert_manual_review",
		},
	}, nil
}

// Collect checks every candidate against the catalog, the margin floor and
// supplier availability, and labels each with an import decision
func (a *Agent) Collect(ctx context.Context, p *plan.Plan) ([]*work.Item, error) {
	params := p.Params.(*Params)

	skus := make([]string, 0, len(params.Candidates))
	for _, c := range params.Candidates {
		skus = append(skus, c.SKU)
	}

	existing, err := a.storefront.ListProducts(ctx, gateway.ProductQuery{SKUs: skus})
	if err != nil {
		return nil, fmt.Errorf("list storefront products: %w", err)
	}
	inCatalog := make(map[string]bool, len(existing))
	for _, pr := range existing {
		inCatalog[pr.SKU] = true
	}

	availability, err := a.fetchAvailability(ctx, skus)
	if err != nil {
		return nil, err
	}

	minMargin := decimal.NewFromFloat(params.MinMarginPct)
	items := make([]*work.Item, 0, len(params.Candidates))
	for _, c := range params.Candidates {
		item := work.NewItem("candidate", c.SKU)
		item.Data = map[string]any{
			"name":  c.Name,
			"cost":  c.Cost,
			"price": c.Price,
		}
		margin := marginPct(c)
		item.SetLabel("margin_pct", margin.StringFixed(1))

		switch {
		case inCatalog[c.SKU]:
			item.SetLabel(labelDecision, decisionSkipExisting)
		case margin.LessThan(minMargin):
			item.SetLabel(labelDecision, decisionSkipMargin)
		default:
			supplier, stock := deepestStock(a.suppliers, availability, c.SKU)
			if supplier == "" {
				item.SetLabel(labelDecision, decisionSkipNoStock)
			} else {
				item.SetLabel(labelDecision, decisionImport)
				item.SetLabel(labelSupplier, supplier)
				item.Data["supplier_stock"] = stock
			}
		}
		items = append(items, item)
	}

	a.logger.Debug("candidates classified",
		zap.String("plan_id", p.ID.String()),
		zap.Int("candidates", len(items)),
	)
	return items, nil
}

// fetchAvailability queries every supplier once. A supplier that does not
// answer is skipped; the run only fails when no supplier answered at all.
func (a *Agent) fetchAvailability(ctx context.Context, skus []string) (map[string]map[string]int64, error) {
	availability := make(map[string]map[string]int64, len(a.suppliers))
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
		availability[s.Provider()] = stock
	}
	if len(availability) == 0 {
		if lastErr != nil {
			return nil, fmt.Errorf("no supplier answered a stock query: %w", lastErr)
		}
		return nil, fmt.Errorf("no suppliers configured")
	}
	return availability, nil
}

// Preview summarizes the import decisions without touching any provider
func (a *Agent) Preview(p *plan.Plan, items []*work.Item) map[string]any {
	counts := make(map[string]int)
	var sample []string
	for _, item := range items {
		decision := item.Label(labelDecision)
		counts[decision]++
		if decision == decisionImport && len(sample) < 5 {
			sample = append(sample, item.Ref)
		}
	}
	return map[string]any{
		"would_import":       counts[decisionImport],
		"skipped_existing":   counts[decisionSkipExisting],
		"skipped_low_margin": counts[decisionSkipMargin],
		"skipped_no_stock":   counts[decisionSkipNoStock],
		"sample_skus":        sample,
	}
}

// Execute creates one draft product for an item that passed classification
func (a *Agent) Execute(ctx context.Context, p *plan.Plan, item *work.Item) (*work.ItemResult, error) {
	switch item.Label(labelDecision) {
	case decisionImport:
	case decisionSkipExisting:
		return work.Skipped(item, "already in catalog"), nil
	case decisionSkipMargin:
		return work.Skipped(item, "margin below floor"), nil
	case decisionSkipNoStock:
		return work.Skipped(item, "no supplier stock"), nil
	default:
		return nil, fmt.Errorf("item %s carries no import decision", item.Ref)
	}

	name, _ := item.Data["name"].(string)
	price, _ := item.Data["price"].(decimal.Decimal)

	created, err := a.storefront.CreateEntity(ctx, gateway.Entity{
		Kind: gateway.EntityProduct,
		Fields: map[string]any{
			"sku":   item.Ref,
			"name":  name,
			"price": price,
			"stock": int64(0),
			"state": "draft",
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create draft product %s: %w", item.Ref, err)
	}

	res := work.Succeeded(item)
	res.Output = map[string]any{
		"product_id": created.ID,
		"state":      "draft",
		"supplier":   item.Label(labelSupplier),
	}
	res.AddMutation(work.Mutation{
		Kind:     mutationProductCreated,
		Provider: a.storefront.Provider(),
		EntityID: created.ID,
		Undo:     map[string]any{"sku": item.Ref},
	})
	return res, nil
}

// Compensate removes the draft products a reverted run created
func (a *Agent) Compensate(ctx context.Context, p *plan.Plan, step plan.RollbackStep, muts []work.Mutation) error {
	if step.Action != StepDeleteDrafts {
		return fmt.Errorf("unknown rollback step %q", step.Action)
	}

	var errs error
	deleted := 0
	for _, m := range muts {
		if m.Kind != mutationProductCreated {
			continue
		}
		if err := ctx.Err(); err != nil {
			return multierr.Append(errs, err)
		}
		if err := a.storefront.DeleteEntity(ctx, gateway.EntityProduct, m.EntityID); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("delete draft %s: %w", m.EntityID, err))
			continue
		}
		deleted++
	}

	a.logger.Info("draft products removed",
		zap.String("plan_id", p.ID.String()),
		zap.Int("deleted", deleted),
	)
	return errs
}

// marginPct is the gross margin of a candidate as a percentage of price
func marginPct(c Candidate) decimal.Decimal {
	return c.Price.Sub(c.Cost).Div(c.Price).Mul(decimal.NewFromInt(100))
}

// deepestStock picks the supplier holding the most stock for sku,
// preferring earlier suppliers on ties
func deepestStock(suppliers []gateway.Supplier, availability map[string]map[string]int64, sku string) (string, int64) {
	var (
		best  string
		depth int64
	)
	for _, s := range suppliers {
		stock, ok := availability[s.Provider()]
		if !ok {
			continue
		}
		if level := stock[sku]; level > depth {
			best = s.Provider()
			depth = level
		}
	}
	return best, depth
}

var _ agent.Agent = (*Agent)(nil)
