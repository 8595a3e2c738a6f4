// Package provider defines the capability shared by all price sources.
package provider

import (
	"context"

	"pricetracker/internal/broadcast"
	"pricetracker/internal/market"
	"pricetracker/internal/store"
)

// Provider fetches asset prices from a single source.
//
// FetchPrices is not required to return every requested asset: callers treat
// missing entries as unavailable rather than erroring, unless the whole call
// fails.
//
//go:generate mockgen -package=mocks -destination=mocks/mock_provider.go -source=provider.go Provider
type Provider interface {
	// FetchPrice fetches the current price for a single asset.
	FetchPrice(ctx context.Context, asset market.Asset) (market.PriceData, error)

	// FetchPrices fetches prices for multiple assets in one request.
	FetchPrices(ctx context.Context, assets []market.Asset) (map[market.Asset]market.PriceData, error)

	// Name returns the provider label used in logs and metrics.
	Name() string

	// IsStreaming reports whether this provider pushes its own updates.
	IsStreaming() bool

	// StartStreaming begins the background ingestion loop for streaming
	// providers, writing into the given store and fanning out via the hub.
	// Pull-based providers treat this as a no-op.
	StartStreaming(st *store.Store, hub *broadcast.Hub)
}

// PullBase supplies the no-op streaming surface for pull-based providers.
type PullBase struct{}

func (PullBase) IsStreaming() bool { return false }

func (PullBase) StartStreaming(*store.Store, *broadcast.Hub) {}
