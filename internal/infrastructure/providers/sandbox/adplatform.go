package sandbox

import (
	"context"
	"fmt"
	"sync"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/shopspring/decimal"

	"github.com/shopops/automator/internal/domain/gateway"
)

const seedCampaigns = 3

// AdPlatform is an in-memory ad network seeded with a few campaigns
type AdPlatform struct {
	name string

	mu        sync.Mutex
	campaigns []gateway.Campaign
	seq       sequence
}

// NewAdPlatform creates a sandbox ad network
func NewAdPlatform(name string, seed int64) *AdPlatform {
	f := gofakeit.New(uint64(seed))
	a := &AdPlatform{name: name, seq: sequence{prefix: "cmp"}}

	for i := 0; i < seedCampaigns; i++ {
		a.campaigns = append(a.campaigns, gateway.Campaign{
			ID:          fmt.Sprintf("cmp-seed-%d", i+1),
			Name:        f.Company() + " " + f.BuzzWord(),
			Status:      f.RandomString([]string{"active", "active", "paused"}),
			DailyBudget: decimal.NewFromFloat(f.Price(10, 80)).Round(2),
			Audience:    f.RandomString([]string{"all", "returning", "new"}),
		})
	}
	return a
}

// Provider returns the provider instance name
func (a *AdPlatform) Provider() string {
	return a.name
}

// ListCampaigns returns all campaigns on the account
func (a *AdPlatform) ListCampaigns(ctx context.Context) ([]gateway.Campaign, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]gateway.Campaign, len(a.campaigns))
	copy(out, a.campaigns)
	return out, nil
}

// CreateCampaign activates a draft and returns it with an ID
func (a *AdPlatform) CreateCampaign(ctx context.Context, draft gateway.CampaignDraft) (gateway.Campaign, error) {
	if err := ctx.Err(); err != nil {
		return gateway.Campaign{}, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	c := gateway.Campaign{
		ID:          a.seq.next(),
		Name:        draft.Name,
		Status:      "active",
		DailyBudget: draft.DailyBudget,
		Audience:    draft.Audience,
	}
	a.campaigns = append(a.campaigns, c)
	return c, nil
}

// PauseCampaign stops delivery. Pausing a paused campaign is a no-op.
func (a *AdPlatform) PauseCampaign(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	for i := range a.campaigns {
		if a.campaigns[i].ID == id {
			a.campaigns[i].Status = "paused"
			return nil
		}
	}
	return gateway.NewError(gateway.ErrorClassUnknown, a.name, "pause_campaign",
		fmt.Errorf("unknown campaign %s", id))
}

var _ gateway.AdPlatform = (*AdPlatform)(nil)
