package rest

import (
	"context"
	"net/http"
	"net/url"

	"github.com/shopops/automator/internal/domain/gateway"
)

// AdPlatform talks to an ad network exposing /campaigns
type AdPlatform struct {
	c *client
}

// NewAdPlatform creates an ad network adapter for the given provider
func NewAdPlatform(cfg Config) (*AdPlatform, error) {
	c, err := newClient(cfg)
	if err != nil {
		return nil, err
	}
	return &AdPlatform{c: c}, nil
}

// Provider returns the provider instance name
func (a *AdPlatform) Provider() string {
	return a.c.name
}

// ListCampaigns fetches all campaigns on the account
func (a *AdPlatform) ListCampaigns(ctx context.Context) ([]gateway.Campaign, error) {
	var out struct {
		Campaigns []gateway.Campaign `json:"campaigns"`
	}
	if _, err := a.c.do(ctx, "list_campaigns", http.MethodGet, "/campaigns", nil, nil, &out); err != nil {
		return nil, err
	}
	return out.Campaigns, nil
}

// CreateCampaign submits a draft and returns the created campaign
func (a *AdPlatform) CreateCampaign(ctx context.Context, draft gateway.CampaignDraft) (gateway.Campaign, error) {
	var out gateway.Campaign
	if _, err := a.c.do(ctx, "create_campaign", http.MethodPost, "/campaigns", nil, draft, &out); err != nil {
		return gateway.Campaign{}, err
	}
	return out, nil
}

// PauseCampaign stops delivery for a campaign. A 409 from the network means
// the campaign is already paused, which counts as success.
func (a *AdPlatform) PauseCampaign(ctx context.Context, id string) error {
	path := "/campaigns/" + url.PathEscape(id) + "/pause"
	status, err := a.c.do(ctx, "pause_campaign", http.MethodPost, path, nil, nil, nil)
	if err != nil && status == http.StatusConflict {
		return nil
	}
	return err
}

var _ gateway.AdPlatform = (*AdPlatform)(nil)
