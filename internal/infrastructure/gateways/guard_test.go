package gateways

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/shopops/automator/internal/domain/gateway"
	"github.com/shopops/automator/internal/domain/work"
)

type countingPacer struct {
	waits atomic.Int64
}

func (p *countingPacer) Wait(ctx context.Context, provider string) error {
	p.waits.Add(1)
	return ctx.Err()
}

func fastPolicy(attempts int) RetryPolicy {
	return RetryPolicy{MaxAttempts: attempts, InitialBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond}
}

func TestGuardRetriesTransientErrors(t *testing.T) {
	pacer := &countingPacer{}
	g := NewGuard(pacer, fastPolicy(3), zap.NewNop())

	collector := work.NewCollector()
	ctx := work.WithCollector(context.Background(), collector)

	var calls int
	err := g.Do(ctx, "shopify", "list_orders", func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return gateway.RateLimited("shopify", "list_orders", errors.New("429"))
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, int64(3), pacer.waits.Load(), "every attempt is paced")
	assert.Equal(t, int64(3), collector.Snapshot().APICalls, "every attempt is counted")
}

func TestGuardDoesNotRetryAuthFailures(t *testing.T) {
	g := NewGuard(&countingPacer{}, fastPolicy(5), zap.NewNop())

	collector := work.NewCollector()
	ctx := work.WithCollector(context.Background(), collector)

	var calls int
	err := g.Do(ctx, "shopify", "list_orders", func(ctx context.Context) error {
		calls++
		return gateway.AuthFailed("shopify", "list_orders", errors.New("401"))
	})

	require.Error(t, err)
	assert.Equal(t, gateway.ErrorClassAuth, gateway.Classify(err))
	assert.Equal(t, 1, calls)
	assert.Equal(t, int64(1), collector.Snapshot().APICalls)
}

func TestGuardGivesUpAfterMaxAttempts(t *testing.T) {
	g := NewGuard(&countingPacer{}, fastPolicy(3), zap.NewNop())

	var calls int
	err := g.Do(context.Background(), "supplierhub", "fetch_stock", func(ctx context.Context) error {
		calls++
		return gateway.ConnectionFailed("supplierhub", "fetch_stock", errors.New("dial tcp: refused"))
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.True(t, gateway.IsRetryable(err), "the final error keeps its class")
}

func TestGuardStopsWhenContextDies(t *testing.T) {
	g := NewGuard(&countingPacer{}, fastPolicy(10), zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())

	var calls int
	err := g.Do(ctx, "shopify", "list_orders", func(ctx context.Context) error {
		calls++
		cancel()
		return gateway.ConnectionFailed("shopify", "list_orders", errors.New("reset"))
	})

	require.Error(t, err)
	assert.LessOrEqual(t, calls, 2)
}

func TestGuardWorksWithoutCollector(t *testing.T) {
	g := NewGuard(nil, fastPolicy(1), zap.NewNop())
	err := g.Do(context.Background(), "shopify", "noop", func(ctx context.Context) error {
		return nil
	})
	assert.NoError(t, err)
}

// flakyStorefront fails each call a fixed number of times before succeeding
type flakyStorefront struct {
	gateway.Storefront
	failures int
	calls    int
	products []gateway.Product
}

func (f *flakyStorefront) Provider() string { return "shopify" }

func (f *flakyStorefront) ListProducts(ctx context.Context, q gateway.ProductQuery) ([]gateway.Product, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, gateway.RateLimited("shopify", "list_products", errors.New("429"))
	}
	return f.products, nil
}

func TestWrapStorefrontRetriesAndReturnsValue(t *testing.T) {
	inner := &flakyStorefront{
		failures: 2,
		products: []gateway.Product{{ID: "p1", SKU: "SKU-1", Price: decimal.NewFromInt(19)}},
	}
	g := NewGuard(&countingPacer{}, fastPolicy(3), zap.NewNop())
	sf := WrapStorefront(inner, g)

	collector := work.NewCollector()
	ctx := work.WithCollector(context.Background(), collector)

	products, err := sf.ListProducts(ctx, gateway.ProductQuery{})
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, "SKU-1", products[0].SKU)
	assert.Equal(t, 3, inner.calls)
	assert.Equal(t, int64(3), collector.Snapshot().APICalls)
}

type fixedMessaging struct {
	sent []gateway.Message
	err  error
}

func (m *fixedMessaging) Provider() string { return "mailgun" }

func (m *fixedMessaging) Send(ctx context.Context, msg gateway.Message) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

func TestWrapMessagingPassesThroughPermanentErrors(t *testing.T) {
	inner := &fixedMessaging{err: gateway.Denied("mailgun", "send", errors.New("sandbox domain"))}
	g := NewGuard(&countingPacer{}, fastPolicy(4), zap.NewNop())
	msgr := WrapMessaging(inner, g)

	err := msgr.Send(context.Background(), gateway.Message{To: "a@b.c"})
	require.Error(t, err)
	assert.Equal(t, gateway.ErrorClassPermission, gateway.Classify(err))
}

func TestWrapPaymentReadsThroughGuard(t *testing.T) {
	inner := &fixedPayment{balance: decimal.NewFromInt(1250)}
	g := NewGuard(&countingPacer{}, fastPolicy(2), zap.NewNop())
	pay := WrapPayment(inner, g)

	bal, err := pay.Balance(context.Background())
	require.NoError(t, err)
	assert.True(t, bal.Equal(decimal.NewFromInt(1250)))
}

type fixedPayment struct {
	balance decimal.Decimal
}

func (p *fixedPayment) Provider() string { return "stripe" }

func (p *fixedPayment) Balance(ctx context.Context) (decimal.Decimal, error) {
	return p.balance, nil
}

func (p *fixedPayment) ListTransactions(ctx context.Context, since time.Time) ([]gateway.Transaction, error) {
	return nil, nil
}
