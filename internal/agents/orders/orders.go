// Package orders routes open storefront orders to suppliers. Every order
// goes to the first configured supplier that can fill all of its lines;
// routed orders are marked on the storefront so they are not picked up
// twice.
package orders

import (
	"context"
	"fmt"
	"sort"
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
const Action = "route_orders"

// Rollback step names. Supplier orders are cancelled before the storefront
// status is restored, so a re-run never routes an order whose purchase
// still exists.
const (
	StepCancelSupplierOrders = "cancel_supplier_orders"
	StepRestoreOrderStatus   = "restore_order_status"
)

const (
	// approvalThreshold is the order count above which an unattended run
	// needs a human sign-off. Routing moves real money, so the bar sits
	// lower than for catalog work.
	approvalThreshold = 50
	rollbackTimeout   = 10 * time.Minute

	// routedStatus is what a successfully routed order becomes on the
	// storefront
	routedStatus = "processing"
	// defaultStatus is the order state routed when the caller does not
	// narrow it
	defaultStatus = "pending"
)

const (
	labelDecision = "decision"
	labelSupplier = "supplier"

	decisionRoute          = "route"
	decisionSkipNoSupplier = "skip_no_supplier"
)

const (
	mutationOrderPlaced   = "supplier_order_placed"
	mutationStatusUpdated = "order_status_updated"
)

// Params are the validated parameters of a routing run
type Params struct {
	Status    string `json:"status" validate:"omitempty,oneof=pending paid"`
	MaxOrders int    `json:"max_orders" validate:"gte=1,lte=200"`
	AutoApply bool   `json:"auto_apply"`
}

const paramsSchema = `{
	"type": "object",
	"additionalProperties": false,
	"properties": {
		"status":     {"type": "string", "enum": ["pending", "paid"]},
		"max_orders": {"type": "integer", "minimum": 1, "maximum": 200},
		"auto_apply": {"type": "boolean"}
	},
	"required": ["max_orders"]
}`

// Agent routes storefront orders to the supplier fleet
type Agent struct {
	storefront gateway.Storefront
	suppliers  []gateway.Supplier
	byName     map[string]gateway.Supplier
	logger     *zap.Logger
}

// New creates the orders agent. Supplier order expresses routing
// preference: the first supplier that can fill an order completely wins.
func New(storefront gateway.Storefront, suppliers []gateway.Supplier, logger *zap.Logger) *Agent {
	byName := make(map[string]gateway.Supplier, len(suppliers))
	for _, s := range suppliers {
		byName[s.Provider()] = s
	}
	return &Agent{
		storefront: storefront,
		suppliers:  suppliers,
		byName:     byName,
		logger:     logger.Named("orders"),
	}
}

// Type identifies the agent in the registry
func (a *Agent) Type() agent.Type { return agent.TypeOrders }

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
		Scale:         p.MaxOrders,
		NeedsApproval: p.AutoApply && p.MaxOrders > approvalThreshold,
		Rollback: plan.RollbackPlan{
			Steps: []plan.RollbackStep{
				{Action: StepCancelSupplierOrders, Order: 1},
				{Action: StepRestoreOrderStatus, Order: 2},
			},
			Timeout:        rollbackTimeout,
			FallbackAction: "alert_manual_review",
		},
	}, nil
}

// Collect lists open orders and assigns each to a supplier while supplier
// stock lasts. Stock is fetched once per supplier and consumed locally as
// orders claim it, so two orders never count the same unit twice.
func (a *Agent) Collect(ctx context.Context, p *plan.Plan) ([]*work.Item, error) {
	params := p.Params.(*Params)
	status := params.Status
	if status == "" {
		status = defaultStatus
	}

	orders, err := a.storefront.ListOrders(ctx, gateway.OrderQuery{Status: status, Limit: params.MaxOrders})
	if err != nil {
		return nil, fmt.Errorf("list %s orders: %w", status, err)
	}
	if len(orders) == 0 {
		return nil, nil
	}

	skuSet := make(map[string]struct{})
	for _, o := range orders {
		for _, line := range o.Lines {
			skuSet[line.SKU] = struct{}{}
		}
	}
	skus := make([]string, 0, len(skuSet))
	for sku := range skuSet {
		skus = append(skus, sku)
	}
	sort.Strings(skus)

	remaining, err := a.fetchAvailability(ctx, skus)
	if err != nil {
		return nil, err
	}

	items := make([]*work.Item, 0, len(orders))
	for _, o := range orders {
		item := work.NewItem("order", o.ID)
		item.Data = map[string]any{
			"lines":          purchaseLines(o),
			"customer_email": o.Email,
			"prev_status":    o.Status,
			"total":          o.Total,
		}

		supplier := a.claimSupplier(remaining, o)
		if supplier == "" {
			item.SetLabel(labelDecision, decisionSkipNoSupplier)
		} else {
			item.SetLabel(labelDecision, decisionRoute)
			item.SetLabel(labelSupplier, supplier)
		}
		items = append(items, item)
	}

	a.logger.Debug("orders classified",
		zap.String("plan_id", p.ID.String()),
		zap.String("status", status),
		zap.Int("orders", len(items)),
	)
	return items, nil
}

func (a *Agent) fetchAvailability(ctx context.Context, skus []string) (map[string]map[string]int64, error) {
	remaining := make(map[string]map[string]int64, len(a.suppliers))
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
		remaining[s.Provider()] = stock
	}
	if len(remaining) == 0 {
		if lastErr != nil {
			return nil, fmt.Errorf("no supplier answered a stock query: %w", lastErr)
		}
		return nil, fmt.Errorf("no suppliers configured")
	}
	return remaining, nil
}

// claimSupplier finds the first supplier able to fill every line of o and
// consumes its stock
func (a *Agent) claimSupplier(remaining map[string]map[string]int64, o gateway.Order) string {
	for _, s := range a.suppliers {
		stock, ok := remaining[s.Provider()]
		if !ok {
			continue
		}
		if !covers(stock, o) {
			continue
		}
		for _, line := range o.Lines {
			stock[line.SKU] -= line.Quantity
		}
		return s.Provider()
	}
	return ""
}

func covers(stock map[string]int64, o gateway.Order) bool {
	need := make(map[string]int64, len(o.Lines))
	for _, line := range o.Lines {
		need[line.SKU] += line.Quantity
	}
	for sku, qty := range need {
		if stock[sku] < qty {
			return false
		}
	}
	return true
}

func purchaseLines(o gateway.Order) []gateway.PurchaseLine {
	lines := make([]gateway.PurchaseLine, 0, len(o.Lines))
	for _, l := range o.Lines {
		lines = append(lines, gateway.PurchaseLine{SKU: l.SKU, Quantity: l.Quantity})
	}
	return lines
}

// Preview summarizes the routing decisions without touching any provider
func (a *Agent) Preview(p *plan.Plan, items []*work.Item) map[string]any {
	perSupplier := make(map[string]int)
	unroutable := 0
	total := decimal.Zero
	for _, item := range items {
		if item.Label(labelDecision) != decisionRoute {
			unroutable++
			continue
		}
		perSupplier[item.Label(labelSupplier)]++
		if v, ok := item.Data["total"].(decimal.Decimal); ok {
			total = total.Add(v)
		}
	}
	return map[string]any{
		"would_route":  len(items) - unroutable,
		"unroutable":   unroutable,
		"per_supplier": perSupplier,
		"routed_value": total.StringFixed(2),
		"order_status": routedStatus,
	}
}

// Execute places the supplier purchase order for one storefront order and
// marks the order as routed. A placed purchase whose status update fails
// still returns its mutation, so rollback can cancel it.
func (a *Agent) Execute(ctx context.Context, p *plan.Plan, item *work.Item) (*work.ItemResult, error) {
	if item.Label(labelDecision) != decisionRoute {
		return work.Skipped(item, "no supplier can fill the order"), nil
	}

	name := item.Label(labelSupplier)
	sup, ok := a.byName[name]
	if !ok {
		return nil, fmt.Errorf("supplier %q is not configured", name)
	}
	lines, ok := item.Data["lines"].([]gateway.PurchaseLine)
	if !ok || len(lines) == 0 {
		return nil, fmt.Errorf("order %s carries no purchase lines", item.Ref)
	}

	confirmation, err := sup.PlaceOrder(ctx, gateway.PurchaseOrder{Ref: item.Ref, Lines: lines})
	if err != nil {
		return nil, fmt.Errorf("place supplier order for %s: %w", item.Ref, err)
	}

	res := work.Succeeded(item)
	res.AddMutation(work.Mutation{
		Kind:     mutationOrderPlaced,
		Provider: sup.Provider(),
		EntityID: confirmation,
		Undo:     map[string]any{"order_id": item.Ref},
	})

	prev, _ := item.Data["prev_status"].(string)
	err = a.storefront.UpdateEntity(ctx, gateway.Entity{
		Kind:   gateway.EntityOrder,
		ID:     item.Ref,
		Fields: map[string]any{"status": routedStatus},
	})
	if err != nil {
		// the purchase exists; hand the partial mutation set back so the
		// rollback can cancel it
		return res, fmt.Errorf("mark order %s routed: %w", item.Ref, err)
	}
	res.AddMutation(work.Mutation{
		Kind:     mutationStatusUpdated,
		Provider: a.storefront.Provider(),
		EntityID: item.Ref,
		Undo:     map[string]any{"status": prev},
	})

	res.Output = map[string]any{
		"confirmation": confirmation,
		"supplier":     sup.Provider(),
	}
	return res, nil
}

// Compensate cancels placed supplier orders or restores storefront order
// statuses, depending on the step
func (a *Agent) Compensate(ctx context.Context, p *plan.Plan, step plan.RollbackStep, muts []work.Mutation) error {
	switch step.Action {
	case StepCancelSupplierOrders:
		return a.cancelPlaced(ctx, p, muts)
	case StepRestoreOrderStatus:
		return a.restoreStatuses(ctx, p, muts)
	default:
		return fmt.Errorf("unknown rollback step %q", step.Action)
	}
}

func (a *Agent) cancelPlaced(ctx context.Context, p *plan.Plan, muts []work.Mutation) error {
	var errs error
	cancelled := 0
	for _, m := range muts {
		if m.Kind != mutationOrderPlaced {
			continue
		}
		if err := ctx.Err(); err != nil {
			return multierr.Append(errs, err)
		}
		sup, ok := a.byName[m.Provider]
		if !ok {
			errs = multierr.Append(errs, fmt.Errorf("cancel %s: supplier %q is not configured", m.EntityID, m.Provider))
			continue
		}
		if err := sup.CancelOrder(ctx, m.EntityID); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("cancel %s: %w", m.EntityID, err))
			continue
		}
		cancelled++
	}
	a.logger.Info("supplier orders cancelled",
		zap.String("plan_id", p.ID.String()),
		zap.Int("cancelled", cancelled),
	)
	return errs
}

func (a *Agent) restoreStatuses(ctx context.Context, p *plan.Plan, muts []work.Mutation) error {
	var errs error
	restored := 0
	for _, m := range muts {
		if m.Kind != mutationStatusUpdated {
			continue
		}
		if err := ctx.Err(); err != nil {
			return multierr.Append(errs, err)
		}
		prev, _ := m.Undo["status"].(string)
		if prev == "" {
			errs = multierr.Append(errs, fmt.Errorf("restore order %s: no previous status recorded", m.EntityID))
			continue
		}
		err := a.storefront.UpdateEntity(ctx, gateway.Entity{
			Kind:   gateway.EntityOrder,
			ID:     m.EntityID,
			Fields: map[string]any{"status": prev},
		})
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("restore order %s: %w", m.EntityID, err))
			continue
		}
		restored++
	}
	a.logger.Info("order statuses restored",
		zap.String("plan_id", p.ID.String()),
		zap.Int("restored", restored),
	)
	return errs
}

var _ agent.Agent = (*Agent)(nil)
