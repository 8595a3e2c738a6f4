package tracker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"pricetracker/internal/config"
	"pricetracker/internal/market"
	"pricetracker/internal/provider"
	"pricetracker/internal/provider/mocks"
	"pricetracker/internal/store"
)

func testConfig() config.Config {
	return config.Config{
		Provider:         config.ProviderHermes,
		Assets:           []string{"SOL", "BTC"},
		RefreshInterval:  time.Hour,
		StaleThreshold:   time.Minute,
		RequestTimeout:   time.Second,
		MaxRetryAttempts: 3,
		InitialBackoff:   time.Millisecond,
		MaxBackoff:       4 * time.Millisecond,
		BroadcastBuffer:  8,
	}
}

func newMockProvider(t *testing.T) *mocks.MockProvider {
	ctrl := gomock.NewController(t)
	m := mocks.NewMockProvider(ctrl)
	m.EXPECT().Name().Return("mock").AnyTimes()
	return m
}

func newTracker(t *testing.T, cfg config.Config, p provider.Provider) *Tracker {
	t.Helper()
	tr, err := NewWithProvider(cfg, zerolog.Nop(), p)
	require.NoError(t, err)
	return tr
}

func solPrices(price float64) map[market.Asset]market.PriceData {
	return map[market.Asset]market.PriceData{
		market.SOL: market.NewPriceData(market.SOL, price, "mock"),
	}
}

func TestRefreshNow_RetriesThenSucceeds(t *testing.T) {
	p := newMockProvider(t)
	gomock.InOrder(
		p.EXPECT().FetchPrices(gomock.Any(), gomock.Any()).Return(nil, provider.ErrTimeout),
		p.EXPECT().FetchPrices(gomock.Any(), gomock.Any()).Return(nil, provider.ErrRateLimited),
		p.EXPECT().FetchPrices(gomock.Any(), gomock.Any()).Return(solPrices(150.0), nil),
	)
	tr := newTracker(t, testConfig(), p)

	err := tr.RefreshNow(context.Background())

	require.NoError(t, err)
	require.True(t, tr.HasPrice(market.SOL))

	// The whole cycle counts as a single successful request.
	m := tr.Metrics()
	require.Equal(t, uint64(1), m.TotalRequests)
	require.Zero(t, m.FailedRequests)
}

func TestRefreshNow_ExhaustsRetries(t *testing.T) {
	p := newMockProvider(t)
	lastErr := errors.New("still down")
	gomock.InOrder(
		p.EXPECT().FetchPrices(gomock.Any(), gomock.Any()).Return(nil, provider.ErrTimeout),
		p.EXPECT().FetchPrices(gomock.Any(), gomock.Any()).Return(nil, provider.ErrTimeout),
		p.EXPECT().FetchPrices(gomock.Any(), gomock.Any()).Return(nil, lastErr),
	)
	tr := newTracker(t, testConfig(), p)

	err := tr.RefreshNow(context.Background())

	require.ErrorIs(t, err, lastErr)
	require.False(t, tr.HasPrice(market.SOL))

	m := tr.Metrics()
	require.Equal(t, uint64(1), m.TotalRequests)
	require.Equal(t, uint64(1), m.FailedRequests)
	require.Equal(t, 0.0, m.SuccessRate)
}

func TestRefreshNow_CanceledDuringBackoff(t *testing.T) {
	p := newMockProvider(t)
	p.EXPECT().FetchPrices(gomock.Any(), gomock.Any()).Return(nil, provider.ErrTimeout)

	cfg := testConfig()
	cfg.InitialBackoff = time.Minute
	cfg.MaxBackoff = time.Minute
	tr := newTracker(t, cfg, p)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := tr.RefreshNow(ctx)

	require.ErrorIs(t, err, context.Canceled)
}

func TestGetPrice_ServedFromCacheWithoutProviderCall(t *testing.T) {
	p := newMockProvider(t)
	p.EXPECT().FetchPrices(gomock.Any(), gomock.Any()).Return(solPrices(150.0), nil)
	tr := newTracker(t, testConfig(), p)
	require.NoError(t, tr.RefreshNow(context.Background()))

	// No FetchPrice expectation: a provider call here fails the test.
	got, err := tr.GetPrice(context.Background(), market.SOL)

	require.NoError(t, err)
	require.Equal(t, 150.0, got.PriceUSD)
}

func TestGetPrice_FallbackIsNotWrittenBack(t *testing.T) {
	p := newMockProvider(t)
	pd := market.NewPriceData(market.BTC, 65000.0, "mock")
	p.EXPECT().FetchPrice(gomock.Any(), market.BTC).Return(pd, nil)
	tr := newTracker(t, testConfig(), p)

	got, err := tr.GetPrice(context.Background(), market.BTC)

	require.NoError(t, err)
	require.Equal(t, pd, got)
	require.False(t, tr.HasPrice(market.BTC))
}

func TestGetPrice_FallbackFailureIsWrapped(t *testing.T) {
	p := newMockProvider(t)
	cause := errors.New("api down")
	p.EXPECT().FetchPrice(gomock.Any(), market.BTC).Return(market.PriceData{}, cause)
	tr := newTracker(t, testConfig(), p)

	_, err := tr.GetPrice(context.Background(), market.BTC)

	var pf *store.ProviderFailureError
	require.ErrorAs(t, err, &pf)
	require.ErrorIs(t, err, cause)
}

func TestSubscribe_UpdatesCarryPreviousPrice(t *testing.T) {
	p := newMockProvider(t)
	gomock.InOrder(
		p.EXPECT().FetchPrices(gomock.Any(), gomock.Any()).Return(solPrices(150.0), nil),
		p.EXPECT().FetchPrices(gomock.Any(), gomock.Any()).Return(solPrices(151.0), nil),
	)
	cfg := testConfig()
	cfg.Assets = []string{"SOL"}
	tr := newTracker(t, cfg, p)
	sub := tr.Subscribe()
	defer tr.Unsubscribe(sub)

	require.NoError(t, tr.RefreshNow(context.Background()))
	require.NoError(t, tr.RefreshNow(context.Background()))

	first := <-sub
	require.Equal(t, market.SOL, first.Price.Asset)
	require.Nil(t, first.OldPriceUSD)

	second := <-sub
	require.Equal(t, 151.0, second.Price.PriceUSD)
	require.NotNil(t, second.OldPriceUSD)
	require.Equal(t, 150.0, *second.OldPriceUSD)
}

func TestHealthCheck_Transitions(t *testing.T) {
	p := newMockProvider(t)
	tr := newTracker(t, testConfig(), p)

	// No data yet.
	h := tr.HealthCheck()
	require.Equal(t, market.Unhealthy, h.Status)

	// SOL arrives but BTC is still missing, so the tracker is degraded.
	p.EXPECT().FetchPrices(gomock.Any(), gomock.Any()).Return(solPrices(150.0), nil)
	require.NoError(t, tr.RefreshNow(context.Background()))
	h = tr.HealthCheck()
	require.Equal(t, market.Degraded, h.Status)
	require.Equal(t, []string{"BTC"}, h.Details["stale_prices"])

	// Both tracked assets fresh.
	p.EXPECT().FetchPrices(gomock.Any(), gomock.Any()).Return(map[market.Asset]market.PriceData{
		market.SOL: market.NewPriceData(market.SOL, 150.0, "mock"),
		market.BTC: market.NewPriceData(market.BTC, 65000.0, "mock"),
	}, nil)
	require.NoError(t, tr.RefreshNow(context.Background()))
	h = tr.HealthCheck()
	require.Equal(t, market.Healthy, h.Status)
	require.Equal(t, 2, h.Details["available_prices"])
	require.Equal(t, "mock", h.Details["provider_name"])
}

func TestStart_StreamingProviderDelegatesOnce(t *testing.T) {
	p := newMockProvider(t)
	p.EXPECT().IsStreaming().Return(true).AnyTimes()
	p.EXPECT().StartStreaming(gomock.Any(), gomock.Any()).Times(1)
	tr := newTracker(t, testConfig(), p)

	tr.Start()
	tr.Start()
	tr.Shutdown()
}

func TestShutdown_WaitsForInFlightCycle(t *testing.T) {
	p := newMockProvider(t)
	p.EXPECT().IsStreaming().Return(false).AnyTimes()
	entered := make(chan struct{})
	release := make(chan struct{})
	p.EXPECT().FetchPrices(gomock.Any(), gomock.Any()).DoAndReturn(
		func(context.Context, []market.Asset) (map[market.Asset]market.PriceData, error) {
			close(entered)
			<-release
			return solPrices(150.0), nil
		})
	tr := newTracker(t, testConfig(), p)

	tr.Start()
	<-entered

	done := make(chan struct{})
	go func() {
		tr.Shutdown()
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("Shutdown returned while a fetch was in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	<-done
	require.True(t, tr.HasPrice(market.SOL))
}

func TestShutdown_InterruptsRetryBackoff(t *testing.T) {
	p := newMockProvider(t)
	p.EXPECT().IsStreaming().Return(false).AnyTimes()
	entered := make(chan struct{})
	p.EXPECT().FetchPrices(gomock.Any(), gomock.Any()).DoAndReturn(
		func(context.Context, []market.Asset) (map[market.Asset]market.PriceData, error) {
			close(entered)
			return nil, provider.ErrTimeout
		})
	cfg := testConfig()
	cfg.InitialBackoff = time.Minute
	cfg.MaxBackoff = time.Minute
	tr := newTracker(t, cfg, p)

	tr.Start()
	<-entered

	start := time.Now()
	tr.Shutdown()

	// Without cancellation this would sit in the minute-long backoff.
	require.Less(t, time.Since(start), 10*time.Second)
}

func TestShutdown_Idempotent(t *testing.T) {
	p := newMockProvider(t)
	tr := newTracker(t, testConfig(), p)

	tr.Shutdown()
	tr.Shutdown()
}

func TestNewWithProvider_RejectsUnknownAssets(t *testing.T) {
	cfg := testConfig()
	cfg.Assets = []string{"SOL", "DOGE"}

	_, err := NewWithProvider(cfg, zerolog.Nop(), newMockProvider(t))

	require.Error(t, err)
	require.Contains(t, err.Error(), "DOGE")
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Provider = "binance"

	_, err := New(cfg, zerolog.Nop())

	require.Error(t, err)
}
