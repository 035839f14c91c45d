package sandbox

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/shopspring/decimal"

	"github.com/shopops/automator/internal/domain/gateway"
)

const seedTransactions = 12

// Payment is an in-memory payment processor with a seeded transaction history
type Payment struct {
	name string

	mu           sync.Mutex
	balance      decimal.Decimal
	transactions []gateway.Transaction
}

// NewPayment creates a sandbox payment processor
func NewPayment(name string, seed int64) *Payment {
	f := gofakeit.New(uint64(seed))
	p := &Payment{
		name:    name,
		balance: decimal.NewFromFloat(f.Price(2000, 15000)).Round(2),
	}

	now := time.Now()
	for i := 0; i < seedTransactions; i++ {
		kind := f.RandomString([]string{"charge", "charge", "refund", "payout", "fee"})
		amount := decimal.NewFromFloat(f.Price(5, 400)).Round(2)
		if kind != "charge" {
			amount = amount.Neg()
		}
		p.transactions = append(p.transactions, gateway.Transaction{
			ID:     fmt.Sprintf("tx-%d", i+1),
			Kind:   kind,
			Amount: amount,
			At:     f.DateRange(now.AddDate(0, -1, 0), now),
		})
	}
	return p
}

// Provider returns the provider instance name
func (p *Payment) Provider() string {
	return p.name
}

// Balance returns the available account balance
func (p *Payment) Balance(ctx context.Context) (decimal.Decimal, error) {
	if err := ctx.Err(); err != nil {
		return decimal.Zero, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.balance, nil
}

// SetBalance overrides the balance, useful for driving budget decisions in
// tests
func (p *Payment) SetBalance(b decimal.Decimal) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.balance = b
}

// ListTransactions returns settled movements since the given time
func (p *Payment) ListTransactions(ctx context.Context, since time.Time) ([]gateway.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	var out []gateway.Transaction
	for _, tx := range p.transactions {
		if !since.IsZero() && tx.At.Before(since) {
			continue
		}
		out = append(out, tx)
	}
	return out, nil
}

var _ gateway.Payment = (*Payment)(nil)
