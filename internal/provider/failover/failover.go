// Package failover composes providers into an ordered fallback chain.
package failover

import (
	"context"

	"github.com/rs/zerolog"

	"pricetracker/internal/broadcast"
	"pricetracker/internal/market"
	"pricetracker/internal/provider"
	"pricetracker/internal/store"
)

// Provider tries each configured provider strictly in order and returns the
// first success. A batch call is satisfied entirely by one provider's
// response; results are never merged across providers.
type Provider struct {
	providers []provider.Provider
	log       zerolog.Logger
}

// New creates a failover chain. Providers are tried in the order given.
func New(log zerolog.Logger, providers ...provider.Provider) *Provider {
	return &Provider{
		providers: providers,
		log:       log.With().Str("provider", "failover").Logger(),
	}
}

func (p *Provider) Name() string { return "failover" }

func (p *Provider) IsStreaming() bool { return false }

func (p *Provider) StartStreaming(*store.Store, *broadcast.Hub) {}

func (p *Provider) FetchPrice(ctx context.Context, asset market.Asset) (market.PriceData, error) {
	var lastErr error
	for _, prov := range p.providers {
		pd, err := prov.FetchPrice(ctx, asset)
		if err == nil {
			return pd, nil
		}
		p.log.Warn().
			Err(err).
			Str("failed_provider", prov.Name()).
			Str("asset", asset.Symbol()).
			Msg("provider failed, trying next")
		lastErr = err
	}
	if lastErr == nil {
		lastErr = provider.ErrNoProviders
	}
	return market.PriceData{}, lastErr
}

func (p *Provider) FetchPrices(ctx context.Context, assets []market.Asset) (map[market.Asset]market.PriceData, error) {
	var lastErr error
	for _, prov := range p.providers {
		prices, err := prov.FetchPrices(ctx, assets)
		if err == nil {
			return prices, nil
		}
		p.log.Warn().
			Err(err).
			Str("failed_provider", prov.Name()).
			Msg("provider failed, trying next")
		lastErr = err
	}
	if lastErr == nil {
		lastErr = provider.ErrNoProviders
	}
	return nil, lastErr
}
