// Package generator builds agent request parameters using the gofakeit library.
package generator

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/brianvoe/gofakeit/v7"
)

// Generator produces request parameters for each automation agent. A single
// faker backs every recipe, so a fixed seed yields a reproducible request
// stream across runs.
type Generator struct {
	mu    sync.Mutex
	faker *gofakeit.Faker
}

// New creates a generator. The same seed reproduces the same parameter stream.
func New(seed int64) *Generator {
	return &Generator{faker: gofakeit.New(uint64(seed))}
}

// ForAgent builds a parameter payload for the given agent type. The faker is
// not safe for concurrent use, so recipes run under the generator's lock.
func (g *Generator) ForAgent(agentType string, autoApply bool) (map[string]any, error) {
	recipe, ok := agentRecipes[agentType]
	if !ok {
		return nil, fmt.Errorf("no parameter recipe for agent type %q", agentType)
	}

	g.mu.Lock()
	params := recipe(g.faker)
	g.mu.Unlock()

	params["auto_apply"] = autoApply
	return params, nil
}

// SupportedAgents returns the agent types the generator has recipes for.
func SupportedAgents() []string {
	types := make([]string, 0, len(agentRecipes))
	for t := range agentRecipes {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// agentRecipes maps agent types to parameter builders. Every recipe stays
// inside the bounds the server validates, so generated traffic measures the
// engine rather than the input validator.
var agentRecipes = map[string]func(f *gofakeit.Faker) map[string]any{
	"sourcing": func(f *gofakeit.Faker) map[string]any {
		count := f.Number(3, 8)
		candidates := make([]map[string]any, 0, count)
		for i := 0; i < count; i++ {
			cost := f.Price(2, 60)
			markup := f.Float64Range(1.1, 2.6)
			candidates = append(candidates, map[string]any{
				"sku":   fmt.Sprintf("%s-%s", strings.ToUpper(f.LetterN(3)), f.DigitN(4)),
				"name":  f.ProductName(),
				"cost":  cost,
				"price": cents(cost * markup),
			})
		}
		return map[string]any{
			"candidates":     candidates,
			"min_margin_pct": float64(f.Number(10, 45)),
		}
	},
	"orders": func(f *gofakeit.Faker) map[string]any {
		params := map[string]any{
			"max_orders": f.Number(5, 40),
		}
		// Roughly a third of runs filter by status.
		if f.Number(0, 2) == 0 {
			params["status"] = f.RandomString([]string{"pending", "paid"})
		}
		return params
	},
	"inventory": func(f *gofakeit.Faker) map[string]any {
		params := map[string]any{
			"max_skus": f.Number(10, 60),
		}
		if f.Bool() {
			params["max_delta"] = f.Number(50, 500)
		}
		return params
	},
	"marketing": func(f *gofakeit.Faker) map[string]any {
		return map[string]any{
			"campaign":       fmt.Sprintf("%s %s", f.MonthString(), f.BuzzWord()),
			"segment":        f.RandomString([]string{"vip", "active", "dormant", "all"}),
			"min_spend":      f.Price(0, 250),
			"subject":        fmt.Sprintf("%s just dropped", f.ProductName()),
			"body":           f.Paragraph(1, 3, 12, " "),
			"max_recipients": f.Number(25, 200),
		}
	},
	"advertising": func(f *gofakeit.Faker) map[string]any {
		count := f.Number(1, 4)
		campaigns := make([]map[string]any, 0, count)
		for i := 0; i < count; i++ {
			campaigns = append(campaigns, map[string]any{
				"name":         fmt.Sprintf("%s %s push", f.ProductCategory(), f.MonthString()),
				"daily_budget": f.Price(10, 400),
				"audience":     f.RandomString([]string{"all", "returning", "new"}),
			})
		}
		return map[string]any{"campaigns": campaigns}
	},
	"support": func(f *gofakeit.Faker) map[string]any {
		delayed := f.Number(24, 96)
		return map[string]any{
			"delayed_after_hours":  delayed,
			"escalate_after_hours": delayed + f.Number(24, 336),
			"max_tickets":          f.Number(5, 40),
			"auto_reply":           f.Bool(),
		}
	},
}

func cents(v float64) float64 {
	return math.Round(v*100) / 100
}
