package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"pricetracker/internal/market"
	"pricetracker/internal/provider/mocks"
)

func TestMinInterval_SpacesConsecutiveCalls(t *testing.T) {
	ctrl := gomock.NewController(t)
	inner := mocks.NewMockProvider(ctrl)
	inner.EXPECT().FetchPrice(gomock.Any(), market.SOL).
		Return(market.NewPriceData(market.SOL, 150.0, "mock"), nil).Times(2)

	m := &MinInterval{P: inner, Interval: 30 * time.Millisecond}
	ctx := context.Background()

	start := time.Now()
	_, err := m.FetchPrice(ctx, market.SOL)
	require.NoError(t, err)
	_, err = m.FetchPrice(ctx, market.SOL)
	require.NoError(t, err)

	require.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestMinInterval_ZeroIntervalPassesThrough(t *testing.T) {
	ctrl := gomock.NewController(t)
	inner := mocks.NewMockProvider(ctrl)
	inner.EXPECT().FetchPrice(gomock.Any(), market.SOL).
		Return(market.NewPriceData(market.SOL, 150.0, "mock"), nil).Times(2)

	m := &MinInterval{P: inner}
	ctx := context.Background()

	start := time.Now()
	_, _ = m.FetchPrice(ctx, market.SOL)
	_, _ = m.FetchPrice(ctx, market.SOL)

	require.Less(t, time.Since(start), 20*time.Millisecond)
}

func TestMinInterval_CanceledWhileWaiting(t *testing.T) {
	ctrl := gomock.NewController(t)
	inner := mocks.NewMockProvider(ctrl)
	inner.EXPECT().FetchPrice(gomock.Any(), market.SOL).
		Return(market.NewPriceData(market.SOL, 150.0, "mock"), nil)

	m := &MinInterval{P: inner, Interval: time.Minute}
	_, err := m.FetchPrice(context.Background(), market.SOL)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = m.FetchPrice(ctx, market.SOL)

	require.ErrorIs(t, err, context.Canceled)
}

func TestTokenBucket_BurstThenWait(t *testing.T) {
	tb := NewTokenBucket(50, 2) // 2 immediate, then one every 20ms
	ctx := context.Background()

	start := time.Now()
	require.NoError(t, tb.wait(ctx))
	require.NoError(t, tb.wait(ctx))
	require.Less(t, time.Since(start), 15*time.Millisecond)

	require.NoError(t, tb.wait(ctx))
	require.GreaterOrEqual(t, time.Since(start), 15*time.Millisecond)
}

func TestTokenBucket_CanceledWhileWaiting(t *testing.T) {
	tb := NewTokenBucket(0.001, 1)
	require.NoError(t, tb.wait(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.ErrorIs(t, tb.wait(ctx), context.Canceled)
}

func TestTokenBucketProvider_GatesFetches(t *testing.T) {
	ctrl := gomock.NewController(t)
	inner := mocks.NewMockProvider(ctrl)
	inner.EXPECT().FetchPrices(gomock.Any(), gomock.Any()).
		Return(map[market.Asset]market.PriceData{
			market.SOL: market.NewPriceData(market.SOL, 150.0, "mock"),
		}, nil)

	p := &TokenBucketProvider{P: inner, TB: NewTokenBucket(100, 1)}
	got, err := p.FetchPrices(context.Background(), []market.Asset{market.SOL})

	require.NoError(t, err)
	require.Len(t, got, 1)
}
