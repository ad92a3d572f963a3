package oauth

import (
	"context"

	"google.golang.org/api/option"

	"github.com/canopy-network/ytwarehouse/pkg/youtube"
)

// Provider builds an Analytics client per channel from stored tokens.
type Provider struct {
	store *Store
	opts  []option.ClientOption
}

func NewProvider(store *Store, opts ...option.ClientOption) *Provider {
	return &Provider{store: store, opts: opts}
}

func (p *Provider) ForChannel(ctx context.Context, channelID string) (youtube.AnalyticsAPI, error) {
	ts, err := p.store.TokenSource(ctx, channelID)
	if err != nil {
		return nil, err
	}
	api, err := youtube.NewAnalytics(ctx, ts, p.opts...)
	if err != nil {
		return nil, err
	}
	return api, nil
}
