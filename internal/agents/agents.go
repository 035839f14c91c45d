// Package agents assembles the individual automation agents against a
// shared set of gateways.
package agents

import (
	"go.uber.org/zap"

	"github.com/shopops/automator/internal/agents/advertising"
	"github.com/shopops/automator/internal/agents/inventory"
	"github.com/shopops/automator/internal/agents/marketing"
	"github.com/shopops/automator/internal/agents/orders"
	"github.com/shopops/automator/internal/agents/sourcing"
	"github.com/shopops/automator/internal/agents/support"
	"github.com/shopops/automator/internal/domain/agent"
	"github.com/shopops/automator/internal/domain/gateway"
)

// Deps are the gateways and settings the agent fleet shares
type Deps struct {
	Storefront gateway.Storefront
	Suppliers  []gateway.Supplier
	Messaging  gateway.Messaging
	AdPlatform gateway.AdPlatform
	Payment    gateway.Payment

	// OpsContact receives escalations and rollback notices
	OpsContact string

	Logger *zap.Logger
}

// Build constructs one agent of every type
func Build(deps Deps) []agent.Agent {
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return []agent.Agent{
		sourcing.New(deps.Storefront, deps.Suppliers, log),
		orders.New(deps.Storefront, deps.Suppliers, log),
		inventory.New(deps.Storefront, deps.Suppliers, log),
		marketing.New(deps.Storefront, deps.Messaging, marketing.Config{OpsContact: deps.OpsContact}, log),
		advertising.New(deps.AdPlatform, deps.Payment, log),
		support.New(deps.Storefront, deps.Messaging, support.Config{OpsContact: deps.OpsContact}, log),
	}
}

// Register builds the fleet and adds every agent to the registry
func Register(reg *agent.Registry, deps Deps) error {
	for _, a := range Build(deps) {
		if err := reg.Register(a); err != nil {
			return err
		}
	}
	return nil
}
