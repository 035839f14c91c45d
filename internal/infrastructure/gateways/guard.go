// Package gateways hardens provider gateways: every outbound call is paced
// per provider, retried on transient failures and counted against the
// running plan's metrics.
package gateways

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/shopops/automator/internal/domain/gateway"
	"github.com/shopops/automator/internal/domain/work"
)

// Pacer spaces calls to one provider. Implemented by ratelimit.Pacer.
type Pacer interface {
	Wait(ctx context.Context, provider string) error
}

// RetryPolicy bounds the retry loop around one provider call
type RetryPolicy struct {
	// MaxAttempts is the total number of tries including the first;
	// values below 1 are treated as 1
	MaxAttempts int
	// InitialBackoff is the delay before the first retry
	InitialBackoff time.Duration
	// MaxBackoff caps the exponential growth
	MaxBackoff time.Duration
}

// DefaultRetryPolicy matches typical provider guidance: three tries with
// short exponential backoff.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    3,
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     2 * time.Second,
	}
}

func (p RetryPolicy) normalize() RetryPolicy {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	if p.InitialBackoff <= 0 {
		p.InitialBackoff = 100 * time.Millisecond
	}
	if p.MaxBackoff < p.InitialBackoff {
		p.MaxBackoff = p.InitialBackoff
	}
	return p
}

// Guard runs provider calls under the pacing and retry rules. Only errors
// classified as transient (rate limit, connection) are retried; auth and
// permission failures surface immediately.
type Guard struct {
	pacer  Pacer
	retry  RetryPolicy
	logger *zap.Logger
}

// NewGuard builds a guard. A nil pacer disables pacing.
func NewGuard(pacer Pacer, retry RetryPolicy, logger *zap.Logger) *Guard {
	return &Guard{
		pacer:  pacer,
		retry:  retry.normalize(),
		logger: logger.Named("gateway-guard"),
	}
}

// Do executes fn under pacing, retry and metrics accounting. Every attempt,
// including retries, counts one API call on the plan collector carried in
// ctx.
func (g *Guard) Do(ctx context.Context, provider, op string, fn func(context.Context) error) error {
	attempt := func() error {
		if g.pacer != nil {
			if err := g.pacer.Wait(ctx, provider); err != nil {
				return backoff.Permanent(err)
			}
		}
		work.CollectorFrom(ctx).APICall()

		err := fn(ctx)
		if err == nil {
			return nil
		}
		if !gateway.IsRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = g.retry.InitialBackoff
	bo.MaxInterval = g.retry.MaxBackoff
	bo.MaxElapsedTime = 0

	policy := backoff.WithContext(backoff.WithMaxRetries(bo, uint64(g.retry.MaxAttempts-1)), ctx)
	notify := func(err error, next time.Duration) {
		g.logger.Debug("retrying provider call",
			zap.String("provider", provider),
			zap.String("op", op),
			zap.Duration("next_in", next),
			zap.Error(err),
		)
	}
	return backoff.RetryNotify(attempt, policy, notify)
}

// call is Do for operations that return a value
func call[T any](ctx context.Context, g *Guard, provider, op string, fn func(context.Context) (T, error)) (T, error) {
	var out T
	err := g.Do(ctx, provider, op, func(ctx context.Context) error {
		var err error
		out, err = fn(ctx)
		return err
	})
	return out, err
}
