// Package agenttest provides in-memory gateway doubles for agent tests.
// Each double is loaded with literal fixture data, records every write it
// receives, and can be told to fail specific operations with a canned
// error.
package agenttest

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/shopops/automator/internal/domain/gateway"
)

// Deletion records one DeleteEntity call
type Deletion struct {
	Kind gateway.EntityKind
	ID   string
}

// Adjustment records one AdjustInventory call
type Adjustment struct {
	SKU   string
	Delta int64
}

// Storefront is a scripted storefront gateway. Fill Products, Customers
// and Orders before use; set FailOp to make an operation return an error.
type Storefront struct {
	Name      string
	Products  []gateway.Product
	Customers []gateway.Customer
	Orders    []gateway.Order
	FailOp    map[string]error

	mu          sync.Mutex
	created     []gateway.Entity
	updated     []gateway.Entity
	deleted     []Deletion
	adjustments []Adjustment
	seq         int
}

// NewStorefront creates an empty storefront double named name
func NewStorefront(name string) *Storefront {
	return &Storefront{Name: name, FailOp: make(map[string]error)}
}

// Provider returns the provider instance name
func (s *Storefront) Provider() string { return s.Name }

func (s *Storefront) fail(op string) error {
	if err, ok := s.FailOp[op]; ok {
		return err
	}
	return nil
}

// ListOrders returns fixture orders matching the query
func (s *Storefront) ListOrders(ctx context.Context, q gateway.OrderQuery) ([]gateway.Order, error) {
	if err := s.fail("list_orders"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []gateway.Order
	for _, o := range s.Orders {
		if q.Status != "" && o.Status != q.Status {
			continue
		}
		if !q.Since.IsZero() && o.PlacedAt.Before(q.Since) {
			continue
		}
		out = append(out, o)
		if q.Limit > 0 && len(out) == q.Limit {
			break
		}
	}
	return out, nil
}

// ListProducts returns fixture products matching the query
func (s *Storefront) ListProducts(ctx context.Context, q gateway.ProductQuery) ([]gateway.Product, error) {
	if err := s.fail("list_products"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	wanted := make(map[string]bool, len(q.SKUs))
	for _, sku := range q.SKUs {
		wanted[sku] = true
	}

	var out []gateway.Product
	for _, p := range s.Products {
		if q.State != "" && p.State != q.State {
			continue
		}
		if len(wanted) > 0 && !wanted[p.SKU] {
			continue
		}
		out = append(out, p)
		if q.Limit > 0 && len(out) == q.Limit {
			break
		}
	}
	return out, nil
}

// ListCustomers returns fixture customers matching the query
func (s *Storefront) ListCustomers(ctx context.Context, q gateway.CustomerQuery) ([]gateway.Customer, error) {
	if err := s.fail("list_customers"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []gateway.Customer
	for _, c := range s.Customers {
		if !q.Since.IsZero() && c.LastOrderAt.Before(q.Since) {
			continue
		}
		out = append(out, c)
		if q.Limit > 0 && len(out) == q.Limit {
			break
		}
	}
	return out, nil
}

// CreateEntity records the entity and assigns it an ID
func (s *Storefront) CreateEntity(ctx context.Context, e gateway.Entity) (gateway.Entity, error) {
	if err := s.fail("create_entity"); err != nil {
		return gateway.Entity{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	e.ID = fmt.Sprintf("ent-%d", s.seq)
	s.created = append(s.created, e)
	return e, nil
}

// UpdateEntity records the update. Orders present in the fixture data get
// their status field applied so later reads observe the change.
func (s *Storefront) UpdateEntity(ctx context.Context, e gateway.Entity) error {
	if err := s.fail("update_entity"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.updated = append(s.updated, e)
	if e.Kind == gateway.EntityOrder {
		for i := range s.Orders {
			if s.Orders[i].ID == e.ID {
				if v, ok := e.Fields["status"].(string); ok {
					s.Orders[i].Status = v
				}
			}
		}
	}
	return nil
}

// DeleteEntity records the deletion
func (s *Storefront) DeleteEntity(ctx context.Context, kind gateway.EntityKind, id string) error {
	if err := s.fail("delete_entity"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.deleted = append(s.deleted, Deletion{Kind: kind, ID: id})
	return nil
}

// AdjustInventory applies the delta to the fixture product and records the
// call. Unknown SKUs fail like a real platform would.
func (s *Storefront) AdjustInventory(ctx context.Context, sku string, delta int64) (int64, error) {
	if err := s.fail("adjust_inventory"); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.Products {
		if s.Products[i].SKU == sku {
			s.Products[i].Stock += delta
			s.adjustments = append(s.adjustments, Adjustment{SKU: sku, Delta: delta})
			return s.Products[i].Stock, nil
		}
	}
	return 0, gateway.NewError(gateway.ErrorClassUnknown, s.Name, "adjust_inventory",
		fmt.Errorf("unknown sku %s", sku))
}

// Created returns every entity created so far
func (s *Storefront) Created() []gateway.Entity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]gateway.Entity(nil), s.created...)
}

// Updated returns every entity update so far
func (s *Storefront) Updated() []gateway.Entity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]gateway.Entity(nil), s.updated...)
}

// Deleted returns every deletion so far
func (s *Storefront) Deleted() []Deletion {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Deletion(nil), s.deleted...)
}

// Adjustments returns every inventory adjustment so far
func (s *Storefront) Adjustments() []Adjustment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Adjustment(nil), s.adjustments...)
}

// Supplier is a scripted supplier gateway with a fixed stock table
type Supplier struct {
	Name   string
	Stock  map[string]int64
	FailOp map[string]error

	mu        sync.Mutex
	placed    map[string]gateway.PurchaseOrder
	cancelled []string
	seq       int
}

// NewSupplier creates a supplier double named name with the given stock
func NewSupplier(name string, stock map[string]int64) *Supplier {
	if stock == nil {
		stock = make(map[string]int64)
	}
	return &Supplier{
		Name:   name,
		Stock:  stock,
		FailOp: make(map[string]error),
		placed: make(map[string]gateway.PurchaseOrder),
	}
}

// Provider returns the provider instance name
func (s *Supplier) Provider() string { return s.Name }

func (s *Supplier) fail(op string) error {
	if err, ok := s.FailOp[op]; ok {
		return err
	}
	return nil
}

// PlaceOrder records the purchase order and returns a confirmation number
func (s *Supplier) PlaceOrder(ctx context.Context, po gateway.PurchaseOrder) (string, error) {
	if err := s.fail("place_order"); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	confirmation := fmt.Sprintf("PO-%s-%d", s.Name, s.seq)
	s.placed[confirmation] = po
	return confirmation, nil
}

// CancelOrder records the cancellation. Unknown confirmations are ignored,
// matching the gateway contract.
func (s *Supplier) CancelOrder(ctx context.Context, confirmation string) error {
	if err := s.fail("cancel_order"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cancelled = append(s.cancelled, confirmation)
	delete(s.placed, confirmation)
	return nil
}

// FetchStock returns the scripted stock level for each requested SKU
func (s *Supplier) FetchStock(ctx context.Context, skus []string) (map[string]int64, error) {
	if err := s.fail("fetch_stock"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]int64, len(skus))
	for _, sku := range skus {
		out[sku] = s.Stock[sku]
	}
	return out, nil
}

// Placed returns the currently open purchase orders
func (s *Supplier) Placed() map[string]gateway.PurchaseOrder {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]gateway.PurchaseOrder, len(s.placed))
	for k, v := range s.placed {
		out[k] = v
	}
	return out
}

// Cancelled returns every cancelled confirmation number
func (s *Supplier) Cancelled() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.cancelled...)
}

// Messaging is a scripted messaging gateway recording every send. FailTo
// makes sends to one recipient fail with the given error.
type Messaging struct {
	Name   string
	FailTo map[string]error

	mu   sync.Mutex
	sent []gateway.Message
}

// NewMessaging creates a messaging double named name
func NewMessaging(name string) *Messaging {
	return &Messaging{Name: name, FailTo: make(map[string]error)}
}

// Provider returns the provider instance name
func (m *Messaging) Provider() string { return m.Name }

// Send records the message unless its recipient is scripted to fail
func (m *Messaging) Send(ctx context.Context, msg gateway.Message) error {
	if err, ok := m.FailTo[msg.To]; ok {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return nil
}

// Sent returns every recorded message
func (m *Messaging) Sent() []gateway.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]gateway.Message(nil), m.sent...)
}

// SentTo returns the messages addressed to one recipient
func (m *Messaging) SentTo(to string) []gateway.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []gateway.Message
	for _, msg := range m.sent {
		if strings.EqualFold(msg.To, to) {
			out = append(out, msg)
		}
	}
	return out
}

// AdPlatform is a scripted ad network gateway seeded with Campaigns
type AdPlatform struct {
	Name      string
	Campaigns []gateway.Campaign
	FailOp    map[string]error

	mu      sync.Mutex
	created []gateway.Campaign
	paused  []string
	seq     int
}

// NewAdPlatform creates an ad platform double named name
func NewAdPlatform(name string) *AdPlatform {
	return &AdPlatform{Name: name, FailOp: make(map[string]error)}
}

// Provider returns the provider instance name
func (a *AdPlatform) Provider() string { return a.Name }

func (a *AdPlatform) fail(op string) error {
	if err, ok := a.FailOp[op]; ok {
		return err
	}
	return nil
}

// ListCampaigns returns the fixture campaigns plus everything created
func (a *AdPlatform) ListCampaigns(ctx context.Context) ([]gateway.Campaign, error) {
	if err := a.fail("list_campaigns"); err != nil {
		return nil, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]gateway.Campaign(nil), a.Campaigns...), nil
}

// CreateCampaign records the draft and returns it as an active campaign
func (a *AdPlatform) CreateCampaign(ctx context.Context, draft gateway.CampaignDraft) (gateway.Campaign, error) {
	if err := a.fail("create_campaign"); err != nil {
		return gateway.Campaign{}, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	a.seq++
	c := gateway.Campaign{
		ID:          fmt.Sprintf("cmp-%d", a.seq),
		Name:        draft.Name,
		Status:      "active",
		DailyBudget: draft.DailyBudget,
		Audience:    draft.Audience,
	}
	a.Campaigns = append(a.Campaigns, c)
	a.created = append(a.created, c)
	return c, nil
}

// PauseCampaign records the pause
func (a *AdPlatform) PauseCampaign(ctx context.Context, id string) error {
	if err := a.fail("pause_campaign"); err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	a.paused = append(a.paused, id)
	for i := range a.Campaigns {
		if a.Campaigns[i].ID == id {
			a.Campaigns[i].Status = "paused"
		}
	}
	return nil
}

// CreatedCampaigns returns every campaign created so far
func (a *AdPlatform) CreatedCampaigns() []gateway.Campaign {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]gateway.Campaign(nil), a.created...)
}

// Paused returns every paused campaign ID
func (a *AdPlatform) Paused() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.paused...)
}

// Payment is a scripted payment gateway with a fixed balance
type Payment struct {
	Name         string
	Funds        decimal.Decimal
	Transactions []gateway.Transaction
	FailOp       map[string]error
}

// NewPayment creates a payment double named name holding funds
func NewPayment(name string, funds decimal.Decimal) *Payment {
	return &Payment{Name: name, Funds: funds, FailOp: make(map[string]error)}
}

// Provider returns the provider instance name
func (p *Payment) Provider() string { return p.Name }

// Balance returns the scripted balance
func (p *Payment) Balance(ctx context.Context) (decimal.Decimal, error) {
	if err, ok := p.FailOp["balance"]; ok {
		return decimal.Zero, err
	}
	return p.Funds, nil
}

// ListTransactions returns the fixture transactions since the given time
func (p *Payment) ListTransactions(ctx context.Context, since time.Time) ([]gateway.Transaction, error) {
	if err, ok := p.FailOp["list_transactions"]; ok {
		return nil, err
	}
	var out []gateway.Transaction
	for _, tx := range p.Transactions {
		if !since.IsZero() && tx.At.Before(since) {
			continue
		}
		out = append(out, tx)
	}
	return out, nil
}

var (
	_ gateway.Storefront = (*Storefront)(nil)
	_ gateway.Supplier   = (*Supplier)(nil)
	_ gateway.Messaging  = (*Messaging)(nil)
	_ gateway.AdPlatform = (*AdPlatform)(nil)
	_ gateway.Payment    = (*Payment)(nil)
)
