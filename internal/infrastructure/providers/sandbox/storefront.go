package sandbox

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/shopspring/decimal"

	"github.com/shopops/automator/internal/domain/gateway"
)

const (
	seedProducts  = 24
	seedCustomers = 16
	seedOrders    = 32
)

// Storefront is an in-memory shop platform seeded with a fake catalog
type Storefront struct {
	name string

	mu        sync.Mutex
	products  []gateway.Product
	customers []gateway.Customer
	orders    []gateway.Order
	seq       sequence
}

// NewStorefront creates a sandbox storefront with a deterministic catalog
func NewStorefront(name string, seed int64) *Storefront {
	f := gofakeit.New(uint64(seed))
	s := &Storefront{name: name, seq: sequence{prefix: "ent"}}
	now := time.Now()

	for i := 0; i < seedProducts; i++ {
		s.products = append(s.products, gateway.Product{
			ID:    fmt.Sprintf("p-%d", i+1),
			SKU:   fmt.Sprintf("%s-%s", strings.ToUpper(f.LetterN(3)), f.DigitN(4)),
			Name:  f.ProductName(),
			Price: decimal.NewFromFloat(f.Price(5, 200)).Round(2),
			Stock: int64(f.Number(0, 250)),
			State: f.RandomString([]string{"active", "active", "active", "draft"}),
		})
	}

	for i := 0; i < seedCustomers; i++ {
		s.customers = append(s.customers, gateway.Customer{
			ID:          fmt.Sprintf("c-%d", i+1),
			Email:       f.Email(),
			Name:        f.Name(),
			OrderCount:  int64(f.Number(0, 20)),
			TotalSpend:  decimal.NewFromFloat(f.Price(0, 2500)).Round(2),
			LastOrderAt: f.DateRange(now.AddDate(0, -6, 0), now),
		})
	}

	for i := 0; i < seedOrders; i++ {
		customer := s.customers[f.Number(0, len(s.customers)-1)]
		lineCount := f.Number(1, 3)
		var lines []gateway.OrderLine
		total := decimal.Zero
		for j := 0; j < lineCount; j++ {
			product := s.products[f.Number(0, len(s.products)-1)]
			qty := int64(f.Number(1, 4))
			lines = append(lines, gateway.OrderLine{
				SKU:      product.SKU,
				Quantity: qty,
				Price:    product.Price,
			})
			total = total.Add(product.Price.Mul(decimal.NewFromInt(qty)))
		}
		s.orders = append(s.orders, gateway.Order{
			ID:         fmt.Sprintf("o-%d", i+1),
			CustomerID: customer.ID,
			Email:      customer.Email,
			Status:     f.RandomString([]string{"pending", "pending", "paid", "shipped", "delivered"}),
			Total:      total,
			Lines:      lines,
			PlacedAt:   f.DateRange(now.AddDate(0, 0, -30), now),
		})
	}

	return s
}

// Provider returns the provider instance name
func (s *Storefront) Provider() string {
	return s.name
}

// ListOrders returns seeded and created orders matching the query
func (s *Storefront) ListOrders(ctx context.Context, q gateway.OrderQuery) ([]gateway.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []gateway.Order
	for _, o := range s.orders {
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

// ListProducts returns products matching the query
func (s *Storefront) ListProducts(ctx context.Context, q gateway.ProductQuery) ([]gateway.Product, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	wanted := make(map[string]bool, len(q.SKUs))
	for _, sku := range q.SKUs {
		wanted[sku] = true
	}

	var out []gateway.Product
	for _, p := range s.products {
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

// ListCustomers returns customers matching the query
func (s *Storefront) ListCustomers(ctx context.Context, q gateway.CustomerQuery) ([]gateway.Customer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []gateway.Customer
	for _, c := range s.customers {
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

// CreateEntity inserts a record built from the given fields
func (s *Storefront) CreateEntity(ctx context.Context, e gateway.Entity) (gateway.Entity, error) {
	if err := ctx.Err(); err != nil {
		return gateway.Entity{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	e.ID = s.seq.next()
	switch e.Kind {
	case gateway.EntityProduct:
		s.products = append(s.products, gateway.Product{
			ID:    e.ID,
			SKU:   asString(e.Fields["sku"]),
			Name:  asString(e.Fields["name"]),
			Price: asDecimal(e.Fields["price"]),
			Stock: asInt64(e.Fields["stock"]),
			State: asString(e.Fields["state"]),
		})
	case gateway.EntityCustomer:
		s.customers = append(s.customers, gateway.Customer{
			ID:    e.ID,
			Email: asString(e.Fields["email"]),
			Name:  asString(e.Fields["name"]),
		})
	case gateway.EntityOrder:
		s.orders = append(s.orders, gateway.Order{
			ID:       e.ID,
			Status:   asString(e.Fields["status"]),
			PlacedAt: time.Now(),
		})
	default:
		return gateway.Entity{}, s.unknownKind("create_entity", e.Kind)
	}
	return e, nil
}

// UpdateEntity overwrites the given fields on an existing record
func (s *Storefront) UpdateEntity(ctx context.Context, e gateway.Entity) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	switch e.Kind {
	case gateway.EntityProduct:
		for i := range s.products {
			if s.products[i].ID != e.ID {
				continue
			}
			if v, ok := e.Fields["state"]; ok {
				s.products[i].State = asString(v)
			}
			if v, ok := e.Fields["price"]; ok {
				s.products[i].Price = asDecimal(v)
			}
			if v, ok := e.Fields["stock"]; ok {
				s.products[i].Stock = asInt64(v)
			}
			if v, ok := e.Fields["name"]; ok {
				s.products[i].Name = asString(v)
			}
			return nil
		}
	case gateway.EntityOrder:
		for i := range s.orders {
			if s.orders[i].ID != e.ID {
				continue
			}
			if v, ok := e.Fields["status"]; ok {
				s.orders[i].Status = asString(v)
			}
			return nil
		}
	case gateway.EntityCustomer:
		for i := range s.customers {
			if s.customers[i].ID != e.ID {
				continue
			}
			if v, ok := e.Fields["email"]; ok {
				s.customers[i].Email = asString(v)
			}
			if v, ok := e.Fields["name"]; ok {
				s.customers[i].Name = asString(v)
			}
			return nil
		}
	default:
		return s.unknownKind("update_entity", e.Kind)
	}
	return s.notFound("update_entity", e.Kind, e.ID)
}

// DeleteEntity removes a record by kind and platform ID
func (s *Storefront) DeleteEntity(ctx context.Context, kind gateway.EntityKind, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	switch kind {
	case gateway.EntityProduct:
		for i := range s.products {
			if s.products[i].ID == id {
				s.products = append(s.products[:i], s.products[i+1:]...)
				return nil
			}
		}
	case gateway.EntityOrder:
		for i := range s.orders {
			if s.orders[i].ID == id {
				s.orders = append(s.orders[:i], s.orders[i+1:]...)
				return nil
			}
		}
	case gateway.EntityCustomer:
		for i := range s.customers {
			if s.customers[i].ID == id {
				s.customers = append(s.customers[:i], s.customers[i+1:]...)
				return nil
			}
		}
	default:
		return s.unknownKind("delete_entity", kind)
	}
	return s.notFound("delete_entity", kind, id)
}

// AdjustInventory applies a stock delta to a SKU and returns the new level
func (s *Storefront) AdjustInventory(ctx context.Context, sku string, delta int64) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.products {
		if s.products[i].SKU == sku {
			s.products[i].Stock += delta
			return s.products[i].Stock, nil
		}
	}
	return 0, gateway.NewError(gateway.ErrorClassUnknown, s.name, "adjust_inventory",
		fmt.Errorf("unknown sku %s", sku))
}

func (s *Storefront) unknownKind(op string, kind gateway.EntityKind) error {
	return gateway.NewError(gateway.ErrorClassUnknown, s.name, op, fmt.Errorf("unknown entity kind %q", kind))
}

func (s *Storefront) notFound(op string, kind gateway.EntityKind, id string) error {
	return gateway.NewError(gateway.ErrorClassUnknown, s.name, op, fmt.Errorf("%s %s not found", kind, id))
}

var _ gateway.Storefront = (*Storefront)(nil)
