package gateway

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// The Unavailable variants stand in for gateway families the deployment has
// no provider for. Every call fails with an UnavailableError, so a plan that
// reaches an unconfigured family aborts loudly instead of operating on
// fabricated data.

// UnavailableStorefront is a Storefront with no provider behind it
type UnavailableStorefront struct {
	provider string
}

// NewUnavailableStorefront returns a Storefront that refuses every call
func NewUnavailableStorefront(provider string) *UnavailableStorefront {
	return &UnavailableStorefront{provider: provider}
}

func (g *UnavailableStorefront) Provider() string { return g.provider }

func (g *UnavailableStorefront) ListOrders(ctx context.Context, q OrderQuery) ([]Order, error) {
	return nil, g.refuse("list_orders")
}

func (g *UnavailableStorefront) ListProducts(ctx context.Context, q ProductQuery) ([]Product, error) {
	return nil, g.refuse("list_products")
}

func (g *UnavailableStorefront) ListCustomers(ctx context.Context, q CustomerQuery) ([]Customer, error) {
	return nil, g.refuse("list_customers")
}

func (g *UnavailableStorefront) CreateEntity(ctx context.Context, e Entity) (Entity, error) {
	return Entity{}, g.refuse("create_entity")
}

func (g *UnavailableStorefront) UpdateEntity(ctx context.Context, e Entity) error {
	return g.refuse("update_entity")
}

func (g *UnavailableStorefront) DeleteEntity(ctx context.Context, kind EntityKind, id string) error {
	return g.refuse("delete_entity")
}

func (g *UnavailableStorefront) AdjustInventory(ctx context.Context, sku string, delta int64) (int64, error) {
	return 0, g.refuse("adjust_inventory")
}

func (g *UnavailableStorefront) refuse(op string) error {
	return &UnavailableError{Family: FamilyStorefront, Provider: g.provider, Op: op}
}

// UnavailableSupplier is a Supplier with no provider behind it
type UnavailableSupplier struct {
	provider string
}

// NewUnavailableSupplier returns a Supplier that refuses every call
func NewUnavailableSupplier(provider string) *UnavailableSupplier {
	return &UnavailableSupplier{provider: provider}
}

func (g *UnavailableSupplier) Provider() string { return g.provider }

func (g *UnavailableSupplier) PlaceOrder(ctx context.Context, po PurchaseOrder) (string, error) {
	return "", g.refuse("place_order")
}

func (g *UnavailableSupplier) CancelOrder(ctx context.Context, confirmation string) error {
	return g.refuse("cancel_order")
}

func (g *UnavailableSupplier) FetchStock(ctx context.Context, skus []string) (map[string]int64, error) {
	return nil, g.refuse("fetch_stock")
}

func (g *UnavailableSupplier) refuse(op string) error {
	return &UnavailableError{Family: FamilySupplier, Provider: g.provider, Op: op}
}

// UnavailableMessaging is a Messaging gateway with no provider behind it
type UnavailableMessaging struct {
	provider string
}

// NewUnavailableMessaging returns a Messaging gateway that refuses every call
func NewUnavailableMessaging(provider string) *UnavailableMessaging {
	return &UnavailableMessaging{provider: provider}
}

func (g *UnavailableMessaging) Provider() string { return g.provider }

func (g *UnavailableMessaging) Send(ctx context.Context, msg Message) error {
	return &UnavailableError{Family: FamilyMessaging, Provider: g.provider, Op: "send"}
}

// UnavailableAdPlatform is an AdPlatform with no provider behind it
type UnavailableAdPlatform struct {
	provider string
}

// NewUnavailableAdPlatform returns an AdPlatform that refuses every call
func NewUnavailableAdPlatform(provider string) *UnavailableAdPlatform {
	return &UnavailableAdPlatform{provider: provider}
}

func (g *UnavailableAdPlatform) Provider() string { return g.provider }

func (g *UnavailableAdPlatform) ListCampaigns(ctx context.Context) ([]Campaign, error) {
	return nil, g.refuse("list_campaigns")
}

func (g *UnavailableAdPlatform) CreateCampaign(ctx context.Context, draft CampaignDraft) (Campaign, error) {
	return Campaign{}, g.refuse("create_campaign")
}

func (g *UnavailableAdPlatform) PauseCampaign(ctx context.Context, id string) error {
	return g.refuse("pause_campaign")
}

func (g *UnavailableAdPlatform) refuse(op string) error {
	return &UnavailableError{Family: FamilyAdPlatform, Provider: g.provider, Op: op}
}

// UnavailablePayment is a Payment gateway with no provider behind it
type UnavailablePayment struct {
	provider string
}

// NewUnavailablePayment returns a Payment gateway that refuses every call
func NewUnavailablePayment(provider string) *UnavailablePayment {
	return &UnavailablePayment{provider: provider}
}

func (g *UnavailablePayment) Provider() string { return g.provider }

func (g *UnavailablePayment) Balance(ctx context.Context) (decimal.Decimal, error) {
	return decimal.Zero, g.refuse("balance")
}

func (g *UnavailablePayment) ListTransactions(ctx context.Context, since time.Time) ([]Transaction, error) {
	return nil, g.refuse("list_transactions")
}

func (g *UnavailablePayment) refuse(op string) error {
	return &UnavailableError{Family: FamilyPayment, Provider: g.provider, Op: op}
}

var (
	_ Storefront = (*UnavailableStorefront)(nil)
	_ Supplier   = (*UnavailableSupplier)(nil)
	_ Messaging  = (*UnavailableMessaging)(nil)
	_ AdPlatform = (*UnavailableAdPlatform)(nil)
	_ Payment    = (*UnavailablePayment)(nil)
)
