package gateways

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/shopops/automator/internal/domain/gateway"
)

// The wrappers below decorate each gateway family with the guard. Agents
// receive the wrapped form, so pacing and retry apply uniformly no matter
// which agent calls which provider.

type pacedStorefront struct {
	inner gateway.Storefront
	guard *Guard
}

// WrapStorefront guards every call on a storefront gateway
func WrapStorefront(inner gateway.Storefront, guard *Guard) gateway.Storefront {
	return &pacedStorefront{inner: inner, guard: guard}
}

func (s *pacedStorefront) Provider() string { return s.inner.Provider() }

func (s *pacedStorefront) ListOrders(ctx context.Context, q gateway.OrderQuery) ([]gateway.Order, error) {
	return call(ctx, s.guard, s.Provider(), "list_orders", func(ctx context.Context) ([]gateway.Order, error) {
		return s.inner.ListOrders(ctx, q)
	})
}

func (s *pacedStorefront) ListProducts(ctx context.Context, q gateway.ProductQuery) ([]gateway.Product, error) {
	return call(ctx, s.guard, s.Provider(), "list_products", func(ctx context.Context) ([]gateway.Product, error) {
		return s.inner.ListProducts(ctx, q)
	})
}

func (s *pacedStorefront) ListCustomers(ctx context.Context, q gateway.CustomerQuery) ([]gateway.Customer, error) {
	return call(ctx, s.guard, s.Provider(), "list_customers", func(ctx context.Context) ([]gateway.Customer, error) {
		return s.inner.ListCustomers(ctx, q)
	})
}

func (s *pacedStorefront) CreateEntity(ctx context.Context, e gateway.Entity) (gateway.Entity, error) {
	return call(ctx, s.guard, s.Provider(), "create_entity", func(ctx context.Context) (gateway.Entity, error) {
		return s.inner.CreateEntity(ctx, e)
	})
}

func (s *pacedStorefront) UpdateEntity(ctx context.Context, e gateway.Entity) error {
	return s.guard.Do(ctx, s.Provider(), "update_entity", func(ctx context.Context) error {
		return s.inner.UpdateEntity(ctx, e)
	})
}

func (s *pacedStorefront) DeleteEntity(ctx context.Context, kind gateway.EntityKind, id string) error {
	return s.guard.Do(ctx, s.Provider(), "delete_entity", func(ctx context.Context) error {
		return s.inner.DeleteEntity(ctx, kind, id)
	})
}

func (s *pacedStorefront) AdjustInventory(ctx context.Context, sku string, delta int64) (int64, error) {
	return call(ctx, s.guard, s.Provider(), "adjust_inventory", func(ctx context.Context) (int64, error) {
		return s.inner.AdjustInventory(ctx, sku, delta)
	})
}

type pacedSupplier struct {
	inner gateway.Supplier
	guard *Guard
}

// WrapSupplier guards every call on a supplier gateway
func WrapSupplier(inner gateway.Supplier, guard *Guard) gateway.Supplier {
	return &pacedSupplier{inner: inner, guard: guard}
}

func (s *pacedSupplier) Provider() string { return s.inner.Provider() }

func (s *pacedSupplier) PlaceOrder(ctx context.Context, po gateway.PurchaseOrder) (string, error) {
	return call(ctx, s.guard, s.Provider(), "place_order", func(ctx context.Context) (string, error) {
		return s.inner.PlaceOrder(ctx, po)
	})
}

func (s *pacedSupplier) CancelOrder(ctx context.Context, confirmation string) error {
	return s.guard.Do(ctx, s.Provider(), "cancel_order", func(ctx context.Context) error {
		return s.inner.CancelOrder(ctx, confirmation)
	})
}

func (s *pacedSupplier) FetchStock(ctx context.Context, skus []string) (map[string]int64, error) {
	return call(ctx, s.guard, s.Provider(), "fetch_stock", func(ctx context.Context) (map[string]int64, error) {
		return s.inner.FetchStock(ctx, skus)
	})
}

type pacedMessaging struct {
	inner gateway.Messaging
	guard *Guard
}

// WrapMessaging guards every call on a messaging gateway
func WrapMessaging(inner gateway.Messaging, guard *Guard) gateway.Messaging {
	return &pacedMessaging{inner: inner, guard: guard}
}

func (m *pacedMessaging) Provider() string { return m.inner.Provider() }

func (m *pacedMessaging) Send(ctx context.Context, msg gateway.Message) error {
	return m.guard.Do(ctx, m.Provider(), "send", func(ctx context.Context) error {
		return m.inner.Send(ctx, msg)
	})
}

type pacedAdPlatform struct {
	inner gateway.AdPlatform
	guard *Guard
}

// WrapAdPlatform guards every call on an ad platform gateway
func WrapAdPlatform(inner gateway.AdPlatform, guard *Guard) gateway.AdPlatform {
	return &pacedAdPlatform{inner: inner, guard: guard}
}

func (a *pacedAdPlatform) Provider() string { return a.inner.Provider() }

func (a *pacedAdPlatform) ListCampaigns(ctx context.Context) ([]gateway.Campaign, error) {
	return call(ctx, a.guard, a.Provider(), "list_campaigns", func(ctx context.Context) ([]gateway.Campaign, error) {
		return a.inner.ListCampaigns(ctx)
	})
}

func (a *pacedAdPlatform) CreateCampaign(ctx context.Context, draft gateway.CampaignDraft) (gateway.Campaign, error) {
	return call(ctx, a.guard, a.Provider(), "create_campaign", func(ctx context.Context) (gateway.Campaign, error) {
		return a.inner.CreateCampaign(ctx, draft)
	})
}

func (a *pacedAdPlatform) PauseCampaign(ctx context.Context, id string) error {
	return a.guard.Do(ctx, a.Provider(), "pause_campaign", func(ctx context.Context) error {
		return a.inner.PauseCampaign(ctx, id)
	})
}

type pacedPayment struct {
	inner gateway.Payment
	guard *Guard
}

// WrapPayment guards every call on a payment gateway
func WrapPayment(inner gateway.Payment, guard *Guard) gateway.Payment {
	return &pacedPayment{inner: inner, guard: guard}
}

func (p *pacedPayment) Provider() string { return p.inner.Provider() }

func (p *pacedPayment) Balance(ctx context.Context) (decimal.Decimal, error) {
	return call(ctx, p.guard, p.Provider(), "balance", func(ctx context.Context) (decimal.Decimal, error) {
		return p.inner.Balance(ctx)
	})
}

func (p *pacedPayment) ListTransactions(ctx context.Context, since time.Time) ([]gateway.Transaction, error) {
	return call(ctx, p.guard, p.Provider(), "list_transactions", func(ctx context.Context) ([]gateway.Transaction, error) {
		return p.inner.ListTransactions(ctx, since)
	})
}

var (
	_ gateway.Storefront = (*pacedStorefront)(nil)
	_ gateway.Supplier   = (*pacedSupplier)(nil)
	_ gateway.Messaging  = (*pacedMessaging)(nil)
	_ gateway.AdPlatform = (*pacedAdPlatform)(nil)
	_ gateway.Payment    = (*pacedPayment)(nil)
)
