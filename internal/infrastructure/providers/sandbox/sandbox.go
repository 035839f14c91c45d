// Package sandbox hosts in-memory providers for local development and tests.
// The sandbox fleet answers every gateway family with seeded fake data and
// applies mutations to its own state, so a full plan lifecycle including
// rollback can run without network credentials. The same seed always produces
// the same catalog, customers and campaigns.
package sandbox

import (
	"fmt"
	"sync/atomic"

	"github.com/shopspring/decimal"
)

// Fleet bundles one sandbox provider per gateway family
type Fleet struct {
	Storefront *Storefront
	Supplier   *Supplier
	Messaging  *Messaging
	AdPlatform *AdPlatform
	Payment    *Payment
}

// NewFleet creates a full sandbox provider set from one seed
func NewFleet(seed int64) *Fleet {
	return &Fleet{
		Storefront: NewStorefront("sandbox-shop", seed),
		Supplier:   NewSupplier("sandbox-supply", seed+1),
		Messaging:  NewMessaging("sandbox-mail"),
		AdPlatform: NewAdPlatform("sandbox-ads", seed+2),
		Payment:    NewPayment("sandbox-pay", seed+3),
	}
}

// sequence hands out monotonically increasing IDs with a prefix
type sequence struct {
	prefix string
	n      atomic.Int64
}

func (s *sequence) next() string {
	return fmt.Sprintf("%s-%d", s.prefix, s.n.Add(1))
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	default:
		return 0
	}
}

func asDecimal(v any) decimal.Decimal {
	switch n := v.(type) {
	case decimal.Decimal:
		return n
	case string:
		d, err := decimal.NewFromString(n)
		if err != nil {
			return decimal.Zero
		}
		return d
	case float64:
		return decimal.NewFromFloat(n)
	case int64:
		return decimal.NewFromInt(n)
	case int:
		return decimal.NewFromInt(int64(n))
	default:
		return decimal.Zero
	}
}
