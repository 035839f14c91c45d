package rest

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"

	"github.com/shopops/automator/internal/domain/gateway"
)

// Payment reads account state from a payment processor via /balance and
// /transactions
type Payment struct {
	c *client
}

// NewPayment creates a payment adapter for the given provider
func NewPayment(cfg Config) (*Payment, error) {
	c, err := newClient(cfg)
	if err != nil {
		return nil, err
	}
	return &Payment{c: c}, nil
}

// Provider returns the provider instance name
func (p *Payment) Provider() string {
	return p.c.name
}

// Balance returns the available account balance
func (p *Payment) Balance(ctx context.Context) (decimal.Decimal, error) {
	var out struct {
		Available decimal.Decimal `json:"available"`
	}
	if _, err := p.c.do(ctx, "balance", http.MethodGet, "/balance", nil, nil, &out); err != nil {
		return decimal.Zero, err
	}
	return out.Available, nil
}

// ListTransactions returns settled movements since the given time
func (p *Payment) ListTransactions(ctx context.Context, since time.Time) ([]gateway.Transaction, error) {
	query := url.Values{}
	if !since.IsZero() {
		query.Set("since", since.UTC().Format(time.RFC3339))
	}

	var out struct {
		Transactions []gateway.Transaction `json:"transactions"`
	}
	if _, err := p.c.do(ctx, "list_transactions", http.MethodGet, "/transactions", query, nil, &out); err != nil {
		return nil, err
	}
	return out.Transactions, nil
}

var _ gateway.Payment = (*Payment)(nil)
