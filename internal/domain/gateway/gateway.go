// Package gateway defines the outbound boundary of the automation engine.
// Every side effect an agent performs on the outside world goes through one
// of the five gateway families declared here. Implementations adapt concrete
// providers (storefront platforms, supplier APIs, mail senders, ad networks,
// payment processors) to these interfaces; the engine and the agents never
// talk to a provider SDK directly.
package gateway

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Family identifies one of the gateway families an agent can depend on
type Family string

const (
	FamilyStorefront Family = "storefront"
	FamilySupplier   Family = "supplier"
	FamilyMessaging  Family = "messaging"
	FamilyAdPlatform Family = "ad_platform"
	FamilyPayment    Family = "payment"
)

// EntityKind names a storefront entity type for the generic entity operations
type EntityKind string

const (
	EntityProduct  EntityKind = "product"
	EntityOrder    EntityKind = "order"
	EntityCustomer EntityKind = "customer"
)

// Entity is a storefront record addressed by kind and platform ID.
// Fields carries the provider-side attributes for create and update calls.
type Entity struct {
	Kind   EntityKind     `json:"kind"`
	ID     string         `json:"id"`
	Fields map[string]any `json:"fields"`
}

// OrderLine is one SKU position on an order
type OrderLine struct {
	SKU      string          `json:"sku"`
	Quantity int64           `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
}

// Order is a storefront order as reported by the platform
type Order struct {
	ID         string          `json:"id"`
	CustomerID string          `json:"customer_id"`
	Email      string          `json:"email"`
	Status     string          `json:"status"`
	Total      decimal.Decimal `json:"total"`
	Lines      []OrderLine     `json:"lines"`
	PlacedAt   time.Time       `json:"placed_at"`
}

// Product is a storefront product as reported by the platform
type Product struct {
	ID    string          `json:"id"`
	SKU   string          `json:"sku"`
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
	Stock int64           `json:"stock"`
	State string          `json:"state"`
}

// Customer is a storefront customer as reported by the platform
type Customer struct {
	ID          string          `json:"id"`
	Email       string          `json:"email"`
	Name        string          `json:"name"`
	OrderCount  int64           `json:"order_count"`
	TotalSpend  decimal.Decimal `json:"total_spend"`
	LastOrderAt time.Time       `json:"last_order_at"`
}

// OrderQuery filters ListOrders
type OrderQuery struct {
	Status string
	Since  time.Time
	Limit  int
}

// ProductQuery filters ListProducts
type ProductQuery struct {
	State string
	SKUs  []string
	Limit int
}

// CustomerQuery filters ListCustomers
type CustomerQuery struct {
	Since time.Time
	Limit int
}

// Storefront is the gateway to the merchant's own shop platform
type Storefront interface {
	// Provider returns the provider instance name, used as the pacing key
	Provider() string

	ListOrders(ctx context.Context, q OrderQuery) ([]Order, error)
	ListProducts(ctx context.Context, q ProductQuery) ([]Product, error)
	ListCustomers(ctx context.Context, q CustomerQuery) ([]Customer, error)

	// CreateEntity creates a new record and returns it with the platform ID set
	CreateEntity(ctx context.Context, e Entity) (Entity, error)
	// UpdateEntity overwrites the given fields on an existing record
	UpdateEntity(ctx context.Context, e Entity) error
	// DeleteEntity removes a record by kind and platform ID
	DeleteEntity(ctx context.Context, kind EntityKind, id string) error

	// AdjustInventory applies a relative stock delta to a SKU and returns
	// the resulting level
	AdjustInventory(ctx context.Context, sku string, delta int64) (int64, error)
}

// PurchaseLine is one SKU position on a supplier purchase order
type PurchaseLine struct {
	SKU      string `json:"sku"`
	Quantity int64  `json:"quantity"`
}

// PurchaseOrder is an order the merchant places with a supplier
type PurchaseOrder struct {
	// Ref ties the purchase back to the storefront order or plan that
	// caused it
	Ref   string         `json:"ref"`
	Lines []PurchaseLine `json:"lines"`
}

// Supplier is the gateway to one upstream supplier or dropship provider
type Supplier interface {
	// Provider returns the provider instance name, used as the pacing key
	Provider() string

	// PlaceOrder submits a purchase order and returns the supplier's
	// confirmation number
	PlaceOrder(ctx context.Context, po PurchaseOrder) (string, error)
	// CancelOrder cancels a previously placed purchase order by its
	// confirmation number. Cancelling an unknown or already cancelled
	// order is not an error.
	CancelOrder(ctx context.Context, confirmation string) error
	// FetchStock returns the supplier's available stock per SKU
	FetchStock(ctx context.Context, skus []string) (map[string]int64, error)
}

// Message is an outbound customer or operator message
type Message struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// Messaging is the gateway to the transactional mail or chat provider
type Messaging interface {
	// Provider returns the provider instance name, used as the pacing key
	Provider() string

	// Send delivers one message. A nil error means the provider accepted it.
	Send(ctx context.Context, msg Message) error
}

// Campaign is an ad campaign as reported by the ad network
type Campaign struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Status      string          `json:"status"`
	DailyBudget decimal.Decimal `json:"daily_budget"`
	Audience    string          `json:"audience"`
}

// CampaignDraft is the shape of a campaign before the network assigns an ID
type CampaignDraft struct {
	Name        string          `json:"name"`
	DailyBudget decimal.Decimal `json:"daily_budget"`
	Audience    string          `json:"audience"`
}

// AdPlatform is the gateway to one advertising network
type AdPlatform interface {
	// Provider returns the provider instance name, used as the pacing key
	Provider() string

	ListCampaigns(ctx context.Context) ([]Campaign, error)
	CreateCampaign(ctx context.Context, draft CampaignDraft) (Campaign, error)
	// PauseCampaign stops delivery for a campaign. Pausing an already
	// paused campaign is not an error.
	PauseCampaign(ctx context.Context, id string) error
}

// Transaction is a settled payment movement
type Transaction struct {
	ID     string          `json:"id"`
	Kind   string          `json:"kind"`
	Amount decimal.Decimal `json:"amount"`
	At     time.Time       `json:"at"`
}

// Payment is the read-only gateway to the payment processor
type Payment interface {
	// Provider returns the provider instance name, used as the pacing key
	Provider() string

	Balance(ctx context.Context) (decimal.Decimal, error)
	ListTransactions(ctx context.Context, since time.Time) ([]Transaction, error)
}
