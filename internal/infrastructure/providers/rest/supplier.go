package rest

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/shopops/automator/internal/domain/gateway"
)

// Supplier talks to an upstream supplier exposing /purchase-orders and /stock
type Supplier struct {
	c *client
}

// NewSupplier creates a supplier adapter for the given provider
func NewSupplier(cfg Config) (*Supplier, error) {
	c, err := newClient(cfg)
	if err != nil {
		return nil, err
	}
	return &Supplier{c: c}, nil
}

// Provider returns the provider instance name
func (s *Supplier) Provider() string {
	return s.c.name
}

// PlaceOrder submits a purchase order and returns the confirmation number
func (s *Supplier) PlaceOrder(ctx context.Context, po gateway.PurchaseOrder) (string, error) {
	var out struct {
		Confirmation string `json:"confirmation"`
	}
	if _, err := s.c.do(ctx, "place_order", http.MethodPost, "/purchase-orders", nil, po, &out); err != nil {
		return "", err
	}
	if out.Confirmation == "" {
		return "", gateway.NewError(gateway.ErrorClassUnknown, s.c.name, "place_order",
			errors.New("response missing confirmation"))
	}
	return out.Confirmation, nil
}

// CancelOrder cancels a purchase order. A 404 from the supplier means the
// order is already gone, which counts as cancelled.
func (s *Supplier) CancelOrder(ctx context.Context, confirmation string) error {
	path := "/purchase-orders/" + url.PathEscape(confirmation)
	status, err := s.c.do(ctx, "cancel_order", http.MethodDelete, path, nil, nil, nil)
	if err != nil && status == http.StatusNotFound {
		return nil
	}
	return err
}

// FetchStock returns the supplier's available stock per SKU
func (s *Supplier) FetchStock(ctx context.Context, skus []string) (map[string]int64, error) {
	query := url.Values{}
	if len(skus) > 0 {
		query.Set("sku", strings.Join(skus, ","))
	}

	var out struct {
		Stock map[string]int64 `json:"stock"`
	}
	if _, err := s.c.do(ctx, "fetch_stock", http.MethodGet, "/stock", query, nil, &out); err != nil {
		return nil, err
	}
	return out.Stock, nil
}

var _ gateway.Supplier = (*Supplier)(nil)
