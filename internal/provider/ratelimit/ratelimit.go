// Package ratelimit gates pull providers to respect remote API quotas.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"pricetracker/internal/broadcast"
	"pricetracker/internal/market"
	"pricetracker/internal/provider"
	"pricetracker/internal/store"
)

// MinInterval wraps a provider and enforces a minimum time between calls.
// Concurrent calls wait until the interval has elapsed since the last call,
// or return early if the context is canceled.
type MinInterval struct {
	P        provider.Provider
	Interval time.Duration

	mu   sync.Mutex
	last time.Time
}

func (m *MinInterval) Name() string { return m.P.Name() }

func (m *MinInterval) IsStreaming() bool { return m.P.IsStreaming() }

func (m *MinInterval) StartStreaming(st *store.Store, hub *broadcast.Hub) {
	m.P.StartStreaming(st, hub)
}

func (m *MinInterval) FetchPrice(ctx context.Context, asset market.Asset) (market.PriceData, error) {
	if err := m.gate(ctx); err != nil {
		return market.PriceData{}, err
	}
	pd, err := m.P.FetchPrice(ctx, asset)
	m.touch()
	return pd, err
}

func (m *MinInterval) FetchPrices(ctx context.Context, assets []market.Asset) (map[market.Asset]market.PriceData, error) {
	if err := m.gate(ctx); err != nil {
		return nil, err
	}
	prices, err := m.P.FetchPrices(ctx, assets)
	m.touch()
	return prices, err
}

func (m *MinInterval) gate(ctx context.Context) error {
	if m.Interval <= 0 {
		return nil
	}
	m.mu.Lock()
	wait := time.Until(m.last.Add(m.Interval))
	m.mu.Unlock()
	if wait <= 0 {
		return nil
	}
	t := time.NewTimer(wait)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (m *MinInterval) touch() {
	if m.Interval <= 0 {
		return
	}
	m.mu.Lock()
	m.last = time.Now()
	m.mu.Unlock()
}
