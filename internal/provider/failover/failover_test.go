package failover

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"pricetracker/internal/market"
	"pricetracker/internal/provider"
	"pricetracker/internal/provider/mocks"
)

func newMock(ctrl *gomock.Controller, name string) *mocks.MockProvider {
	m := mocks.NewMockProvider(ctrl)
	m.EXPECT().Name().Return(name).AnyTimes()
	return m
}

func TestFetchPrices_FirstProviderWins(t *testing.T) {
	ctrl := gomock.NewController(t)
	primary := newMock(ctrl, "primary")
	secondary := newMock(ctrl, "secondary")

	assets := []market.Asset{market.SOL}
	want := map[market.Asset]market.PriceData{
		market.SOL: market.NewPriceData(market.SOL, 150.0, "primary"),
	}
	primary.EXPECT().FetchPrices(gomock.Any(), assets).Return(want, nil)

	chain := New(zerolog.Nop(), primary, secondary)
	got, err := chain.FetchPrices(context.Background(), assets)

	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestFetchPrices_FallsThroughToNextProvider(t *testing.T) {
	ctrl := gomock.NewController(t)
	primary := newMock(ctrl, "primary")
	secondary := newMock(ctrl, "secondary")

	assets := []market.Asset{market.SOL}
	want := map[market.Asset]market.PriceData{
		market.SOL: market.NewPriceData(market.SOL, 150.0, "secondary"),
	}
	primary.EXPECT().FetchPrices(gomock.Any(), assets).Return(nil, provider.ErrRateLimited)
	secondary.EXPECT().FetchPrices(gomock.Any(), assets).Return(want, nil)

	chain := New(zerolog.Nop(), primary, secondary)
	got, err := chain.FetchPrices(context.Background(), assets)

	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestFetchPrices_AllFail_ReturnsLastError(t *testing.T) {
	ctrl := gomock.NewController(t)
	primary := newMock(ctrl, "primary")
	secondary := newMock(ctrl, "secondary")

	lastErr := errors.New("secondary unreachable")
	primary.EXPECT().FetchPrices(gomock.Any(), gomock.Any()).Return(nil, provider.ErrTimeout)
	secondary.EXPECT().FetchPrices(gomock.Any(), gomock.Any()).Return(nil, lastErr)

	chain := New(zerolog.Nop(), primary, secondary)
	_, err := chain.FetchPrices(context.Background(), []market.Asset{market.SOL})

	require.ErrorIs(t, err, lastErr)
}

func TestFetchPrices_EmptyChain(t *testing.T) {
	chain := New(zerolog.Nop())

	_, err := chain.FetchPrices(context.Background(), []market.Asset{market.SOL})

	require.ErrorIs(t, err, provider.ErrNoProviders)
}

func TestFetchPrice_FallsThroughToNextProvider(t *testing.T) {
	ctrl := gomock.NewController(t)
	primary := newMock(ctrl, "primary")
	secondary := newMock(ctrl, "secondary")

	want := market.NewPriceData(market.BTC, 65000.0, "secondary")
	primary.EXPECT().FetchPrice(gomock.Any(), market.BTC).Return(market.PriceData{}, provider.ErrTimeout)
	secondary.EXPECT().FetchPrice(gomock.Any(), market.BTC).Return(want, nil)

	chain := New(zerolog.Nop(), primary, secondary)
	got, err := chain.FetchPrice(context.Background(), market.BTC)

	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestChain_NeverStreams(t *testing.T) {
	chain := New(zerolog.Nop())
	require.False(t, chain.IsStreaming())
	require.Equal(t, "failover", chain.Name())
	chain.StartStreaming(nil, nil)
}
