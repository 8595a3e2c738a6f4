// Package tracker orchestrates price refresh, retry and the query surface.
package tracker

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"pricetracker/internal/broadcast"
	"pricetracker/internal/config"
	"pricetracker/internal/httpx"
	"pricetracker/internal/market"
	"pricetracker/internal/metrics"
	"pricetracker/internal/provider"
	"pricetracker/internal/provider/coingecko"
	"pricetracker/internal/provider/failover"
	"pricetracker/internal/provider/hermes"
	"pricetracker/internal/provider/hyperliquid"
	"pricetracker/internal/provider/ratelimit"
	"pricetracker/internal/store"
)

// Tracker owns the price store, the active provider, the metrics collector
// and the broadcast hub, and runs the refresh loop for pull providers.
//
// Lifetime is owned by the caller: construct with New, call Start once, and
// Shutdown to stop the poll loop. The composition root decides whether to
// share one instance process-wide.
type Tracker struct {
	cfg      config.Config
	assets   []market.Asset
	store    *store.Store
	provider provider.Provider
	metrics  *metrics.Collector
	hub      *broadcast.Hub
	log      zerolog.Logger

	fallback singleflight.Group

	done      chan struct{}
	wg        sync.WaitGroup
	startOnce sync.Once
	stopOnce  sync.Once
}

// New builds a tracker with the provider selected by cfg.Provider.
func New(cfg config.Config, log zerolog.Logger) (*Tracker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return NewWithProvider(cfg, log, buildProvider(cfg, log))
}

// NewWithProvider builds a tracker around an explicit provider. Used by the
// composition root for custom wiring and by tests with mock providers.
func NewWithProvider(cfg config.Config, log zerolog.Logger, p provider.Provider) (*Tracker, error) {
	assets, err := cfg.AssetList()
	if err != nil {
		return nil, err
	}
	return &Tracker{
		cfg:      cfg,
		assets:   assets,
		store:    store.New(cfg.StaleThreshold),
		provider: p,
		metrics:  metrics.NewCollector(p.Name()),
		hub:      broadcast.NewHub(cfg.BroadcastBuffer),
		log:      log.With().Str("component", "tracker").Logger(),
		done:     make(chan struct{}),
	}, nil
}

// buildProvider wires the provider stack for the configured source.
func buildProvider(cfg config.Config, log zerolog.Logger) provider.Provider {
	client := httpx.New(cfg.RequestTimeout)

	newCoinGecko := func() provider.Provider {
		var p provider.Provider = coingecko.New(client, log)
		if cfg.CoinGeckoMaxRPM > 0 {
			rate := float64(cfg.CoinGeckoMaxRPM) / 60.0
			p = &ratelimit.TokenBucketProvider{P: p, TB: ratelimit.NewTokenBucket(rate, cfg.CoinGeckoBurst)}
		} else if cfg.CoinGeckoMinInterval > 0 {
			p = &ratelimit.MinInterval{P: p, Interval: cfg.CoinGeckoMinInterval}
		}
		return p
	}

	switch cfg.Provider {
	case config.ProviderCoinGecko:
		return newCoinGecko()
	case config.ProviderHyperliquid:
		return hyperliquid.New(client, log)
	case config.ProviderFailover:
		return failover.New(log, hyperliquid.New(client, log), newCoinGecko())
	default:
		// The stream must outlive any single request deadline.
		return hermes.New(httpx.New(0), log)
	}
}

// Start begins background ingestion: streaming providers run their own loop,
// pull providers get the poll loop. Safe to call once; later calls no-op.
func (t *Tracker) Start() {
	t.startOnce.Do(func() {
		if t.provider.IsStreaming() {
			t.log.Info().Str("provider", t.provider.Name()).Msg("starting in streaming mode")
			t.provider.StartStreaming(t.store, t.hub)
			return
		}
		t.log.Info().
			Str("provider", t.provider.Name()).
			Dur("refresh_interval", t.cfg.RefreshInterval).
			Msg("starting poll loop")
		t.wg.Add(1)
		go t.pollLoop()
	})
}

// pollLoop fetches immediately, then on every interval tick. Shutdown cancels
// the cycle context, so a retry backoff is interrupted; an in-flight provider
// request still runs to completion before the loop exits.
func (t *Tracker) pollLoop() {
	defer t.wg.Done()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-t.done
		cancel()
	}()

	for {
		if err := t.fetchAndUpdate(ctx); err != nil {
			t.log.Warn().Err(err).Msg("failed to fetch prices")
		}
		select {
		case <-t.done:
			t.log.Info().Msg("poll loop stopped")
			return
		case <-time.After(t.cfg.RefreshInterval):
		}
	}
}

// fetchAndUpdate runs one refresh cycle: fetch with bounded retry and
// exponential backoff, write the batch to the store, publish each price, and
// record exactly one metrics sample covering the whole cycle.
func (t *Tracker) fetchAndUpdate(ctx context.Context) error {
	backoff := t.cfg.InitialBackoff
	start := time.Now()

	var lastErr error
	for attempt := 1; attempt <= t.cfg.MaxRetryAttempts; attempt++ {
		prices, err := t.provider.FetchPrices(ctx, t.assets)
		if err == nil {
			t.publish(prices)
			t.metrics.Record(time.Since(start), true)
			t.log.Debug().
				Int("count", len(prices)).
				Str("provider", t.provider.Name()).
				Dur("elapsed", time.Since(start)).
				Msg("fetched prices")
			return nil
		}

		lastErr = err
		t.log.Warn().
			Err(err).
			Int("attempt", attempt).
			Int("max_attempts", t.cfg.MaxRetryAttempts).
			Msg("fetch failed")

		if attempt < t.cfg.MaxRetryAttempts {
			select {
			case <-ctx.Done():
				t.metrics.Record(time.Since(start), false)
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > t.cfg.MaxBackoff {
				backoff = t.cfg.MaxBackoff
			}
		}
	}

	t.metrics.Record(time.Since(start), false)
	return lastErr
}

// publish writes the batch to the store, then fans out one update per price.
// Old prices are captured before the write so subscribers see the delta.
func (t *Tracker) publish(prices map[market.Asset]market.PriceData) {
	old := make(map[market.Asset]float64, len(prices))
	for asset := range prices {
		if prev, ok := t.store.Current(asset); ok {
			old[asset] = prev.PriceUSD
		}
	}

	t.store.UpdateAll(prices)

	for asset, pd := range prices {
		var oldPrice *float64
		if v, ok := old[asset]; ok {
			oldPrice = &v
		}
		t.hub.Publish(market.NewPriceUpdate(pd, oldPrice))
	}
}

// GetPrice reads the store; on a miss or stale entry it falls back to the
// provider directly. The fallback result is not written back to the store.
// Concurrent fallbacks for the same asset are collapsed into one call.
func (t *Tracker) GetPrice(ctx context.Context, asset market.Asset) (market.PriceData, error) {
	pd, err := t.store.Get(asset)
	if err == nil {
		return pd, nil
	}

	v, ferr, _ := t.fallback.Do(asset.Symbol(), func() (any, error) {
		return t.provider.FetchPrice(ctx, asset)
	})
	if ferr != nil {
		t.log.Warn().Err(ferr).Str("asset", asset.Symbol()).Msg("provider fallback failed")
		return market.PriceData{}, &store.ProviderFailureError{Err: ferr}
	}
	return v.(market.PriceData), nil
}

// GetAllPrices returns the non-stale snapshot of every tracked asset.
func (t *Tracker) GetAllPrices() map[market.Asset]market.PriceData {
	return t.store.GetAll()
}

// HasPrice reports whether any price was ever written for the asset.
func (t *Tracker) HasPrice(asset market.Asset) bool {
	return t.store.Has(asset)
}

// IsStale reports whether the asset's price is stale or absent.
func (t *Tracker) IsStale(asset market.Asset) bool {
	return t.store.IsStale(asset)
}

// Subscribe returns a new receiver for live price updates. Delivery is
// best-effort; a slow subscriber may miss updates.
func (t *Tracker) Subscribe() <-chan market.PriceUpdate {
	return t.hub.Subscribe()
}

// Unsubscribe releases a receiver obtained from Subscribe.
func (t *Tracker) Unsubscribe(sub <-chan market.PriceUpdate) {
	t.hub.Unsubscribe(sub)
}

// RefreshNow forces a synchronous fetch-and-update cycle.
func (t *Tracker) RefreshNow(ctx context.Context) error {
	return t.fetchAndUpdate(ctx)
}

// ProviderName returns the active provider's label.
func (t *Tracker) ProviderName() string {
	return t.provider.Name()
}

// Metrics returns the current latency/success snapshot.
func (t *Tracker) Metrics() metrics.ProviderMetrics {
	return t.metrics.Snapshot()
}

// HealthCheck reports aggregate status: unhealthy with no prices at all,
// degraded when any tracked asset is stale, healthy otherwise.
func (t *Tracker) HealthCheck() market.ComponentHealth {
	available := t.store.GetAll()

	var staleAssets []string
	for _, asset := range t.assets {
		if t.store.IsStale(asset) {
			staleAssets = append(staleAssets, asset.Symbol())
		}
	}

	status := market.Healthy
	message := "price tracker is operational with fresh data"
	switch {
	case len(available) == 0:
		status = market.Unhealthy
		message = "price tracker has no available price data"
	case len(staleAssets) > 0:
		status = market.Degraded
		message = "price tracker has stale prices"
	}

	return market.ComponentHealth{
		Name:    "price_tracker",
		Status:  status,
		Message: message,
		Details: map[string]any{
			"available_prices": len(available),
			"provider_name":    t.provider.Name(),
			"stale_prices":     staleAssets,
		},
		LastChecked: time.Now().UTC(),
	}
}

// Shutdown stops the poll loop and waits for it to exit, interrupting any
// retry backoff in progress. Streaming providers are unaffected. Safe to call
// more than once; every call blocks until the loop is gone.
func (t *Tracker) Shutdown() {
	t.stopOnce.Do(func() { close(t.done) })
	t.wg.Wait()
}
