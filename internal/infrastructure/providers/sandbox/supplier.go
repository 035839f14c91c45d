package sandbox

import (
	"context"
	"hash/fnv"
	"sync"

	"github.com/shopops/automator/internal/domain/gateway"
)

// Supplier is an in-memory upstream supplier. Stock levels derive from the
// SKU and seed, so the same SKU always reports the same availability until
// orders consume it.
type Supplier struct {
	name string
	seed int64

	mu       sync.Mutex
	consumed map[string]int64
	placed   map[string]gateway.PurchaseOrder
	seq      sequence
}

// NewSupplier creates a sandbox supplier
func NewSupplier(name string, seed int64) *Supplier {
	return &Supplier{
		name:     name,
		seed:     seed,
		consumed: make(map[string]int64),
		placed:   make(map[string]gateway.PurchaseOrder),
		seq:      sequence{prefix: "PO"},
	}
}

// Provider returns the provider instance name
func (s *Supplier) Provider() string {
	return s.name
}

// PlaceOrder records a purchase order and consumes supplier stock
func (s *Supplier) PlaceOrder(ctx context.Context, po gateway.PurchaseOrder) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	confirmation := s.seq.next()
	s.placed[confirmation] = po
	for _, line := range po.Lines {
		s.consumed[line.SKU] += line.Quantity
	}
	return confirmation, nil
}

// CancelOrder releases a purchase order. Unknown confirmations are ignored.
func (s *Supplier) CancelOrder(ctx context.Context, confirmation string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	po, ok := s.placed[confirmation]
	if !ok {
		return nil
	}
	delete(s.placed, confirmation)
	for _, line := range po.Lines {
		s.consumed[line.SKU] -= line.Quantity
	}
	return nil
}

// FetchStock returns the available stock per SKU
func (s *Supplier) FetchStock(ctx context.Context, skus []string) (map[string]int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]int64, len(skus))
	for _, sku := range skus {
		level := s.baseStock(sku) - s.consumed[sku]
		if level < 0 {
			level = 0
		}
		out[sku] = level
	}
	return out, nil
}

// PlacedOrders returns a copy of the currently open purchase orders, useful
// for asserting what an automation run actually ordered.
func (s *Supplier) PlacedOrders() map[string]gateway.PurchaseOrder {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]gateway.PurchaseOrder, len(s.placed))
	for k, v := range s.placed {
		out[k] = v
	}
	return out
}

// baseStock derives a stable stock level from the SKU and the seed
func (s *Supplier) baseStock(sku string) int64 {
	h := fnv.New64a()
	h.Write([]byte(sku))
	return int64((h.Sum64() ^ uint64(s.seed)) % 400)
}

var _ gateway.Supplier = (*Supplier)(nil)
