package rest

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopops/automator/internal/domain/gateway"
)

// Storefront talks to a shop platform exposing the conventional REST layout:
// /orders, /products, /customers and /inventory/{sku}/adjust.
type Storefront struct {
	c *client
}

// NewStorefront creates a storefront adapter for the given provider
func NewStorefront(cfg Config) (*Storefront, error) {
	c, err := newClient(cfg)
	if err != nil {
		return nil, err
	}
	return &Storefront{c: c}, nil
}

// Provider returns the provider instance name
func (s *Storefront) Provider() string {
	return s.c.name
}

// ListOrders fetches orders matching the query
func (s *Storefront) ListOrders(ctx context.Context, q gateway.OrderQuery) ([]gateway.Order, error) {
	query := url.Values{}
	if q.Status != "" {
		query.Set("status", q.Status)
	}
	if !q.Since.IsZero() {
		query.Set("since", q.Since.UTC().Format(time.RFC3339))
	}
	if q.Limit > 0 {
		query.Set("limit", strconv.Itoa(q.Limit))
	}

	var out struct {
		Orders []gateway.Order `json:"orders"`
	}
	if _, err := s.c.do(ctx, "list_orders", http.MethodGet, "/orders", query, nil, &out); err != nil {
		return nil, err
	}
	return out.Orders, nil
}

// ListProducts fetches products matching the query
func (s *Storefront) ListProducts(ctx context.Context, q gateway.ProductQuery) ([]gateway.Product, error) {
	query := url.Values{}
	if q.State != "" {
		query.Set("state", q.State)
	}
	if len(q.SKUs) > 0 {
		query.Set("sku", strings.Join(q.SKUs, ","))
	}
	if q.Limit > 0 {
		query.Set("limit", strconv.Itoa(q.Limit))
	}

	var out struct {
		Products []gateway.Product `json:"products"`
	}
	if _, err := s.c.do(ctx, "list_products", http.MethodGet, "/products", query, nil, &out); err != nil {
		return nil, err
	}
	return out.Products, nil
}

// ListCustomers fetches customers matching the query
func (s *Storefront) ListCustomers(ctx context.Context, q gateway.CustomerQuery) ([]gateway.Customer, error) {
	query := url.Values{}
	if !q.Since.IsZero() {
		query.Set("since", q.Since.UTC().Format(time.RFC3339))
	}
	if q.Limit > 0 {
		query.Set("limit", strconv.Itoa(q.Limit))
	}

	var out struct {
		Customers []gateway.Customer `json:"customers"`
	}
	if _, err := s.c.do(ctx, "list_customers", http.MethodGet, "/customers", query, nil, &out); err != nil {
		return nil, err
	}
	return out.Customers, nil
}

// CreateEntity creates a record and returns it with the platform ID filled in
func (s *Storefront) CreateEntity(ctx context.Context, e gateway.Entity) (gateway.Entity, error) {
	var out struct {
		ID string `json:"id"`
	}
	if _, err := s.c.do(ctx, "create_entity", http.MethodPost, kindPath(e.Kind), nil, e.Fields, &out); err != nil {
		return gateway.Entity{}, err
	}
	if out.ID == "" {
		return gateway.Entity{}, gateway.NewError(gateway.ErrorClassUnknown, s.c.name, "create_entity",
			errors.New("response missing id"))
	}
	e.ID = out.ID
	return e, nil
}

// UpdateEntity overwrites the given fields on an existing record
func (s *Storefront) UpdateEntity(ctx context.Context, e gateway.Entity) error {
	path := kindPath(e.Kind) + "/" + url.PathEscape(e.ID)
	_, err := s.c.do(ctx, "update_entity", http.MethodPatch, path, nil, e.Fields, nil)
	return err
}

// DeleteEntity removes a record by kind and platform ID
func (s *Storefront) DeleteEntity(ctx context.Context, kind gateway.EntityKind, id string) error {
	path := kindPath(kind) + "/" + url.PathEscape(id)
	_, err := s.c.do(ctx, "delete_entity", http.MethodDelete, path, nil, nil, nil)
	return err
}

// AdjustInventory applies a stock delta and returns the resulting level
func (s *Storefront) AdjustInventory(ctx context.Context, sku string, delta int64) (int64, error) {
	path := "/inventory/" + url.PathEscape(sku) + "/adjust"
	payload := map[string]int64{"delta": delta}

	var out struct {
		Level int64 `json:"level"`
	}
	if _, err := s.c.do(ctx, "adjust_inventory", http.MethodPost, path, nil, payload, &out); err != nil {
		return 0, err
	}
	return out.Level, nil
}

func kindPath(kind gateway.EntityKind) string {
	return "/" + string(kind) + "s"
}

var _ gateway.Storefront = (*Storefront)(nil)
