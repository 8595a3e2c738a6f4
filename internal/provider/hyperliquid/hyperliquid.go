// Package hyperliquid implements the Hyperliquid allMids pull provider.
package hyperliquid

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"pricetracker/internal/httpx"
	"pricetracker/internal/market"
	"pricetracker/internal/provider"
)

const defaultInfoURL = "https://api.hyperliquid.xyz/info"

// Provider fetches mid prices from the Hyperliquid info API.
type Provider struct {
	provider.PullBase

	infoURL string
	client  *httpx.Client
	log     zerolog.Logger
}

// Option configures the provider.
type Option func(*Provider)

// WithInfoURL overrides the info endpoint, mainly for tests.
func WithInfoURL(infoURL string) Option {
	return func(p *Provider) { p.infoURL = strings.TrimRight(infoURL, "/") }
}

// New creates a Hyperliquid provider using the shared HTTP client.
func New(client *httpx.Client, log zerolog.Logger, opts ...Option) *Provider {
	p := &Provider{
		infoURL: defaultInfoURL,
		client:  client,
		log:     log.With().Str("provider", "hyperliquid").Logger(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Provider) Name() string { return "hyperliquid" }

func (p *Provider) FetchPrice(ctx context.Context, asset market.Asset) (market.PriceData, error) {
	prices, err := p.FetchPrices(ctx, []market.Asset{asset})
	if err != nil {
		return market.PriceData{}, err
	}
	pd, ok := prices[asset]
	if !ok {
		return market.PriceData{}, &provider.UnsupportedAssetError{Asset: asset.Symbol()}
	}
	return pd, nil
}

func (p *Provider) FetchPrices(ctx context.Context, assets []market.Asset) (map[market.Asset]market.PriceData, error) {
	if len(assets) == 0 {
		return map[market.Asset]market.PriceData{}, nil
	}

	p.log.Debug().Str("url", p.infoURL).Msg("fetching mids")

	body, _ := json.Marshal(map[string]string{"type": "allMids"})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.infoURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
			return nil, provider.ErrTimeout
		}
		return nil, fmt.Errorf("hyperliquid request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, provider.ErrRateLimited
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 2<<10))
		return nil, &provider.APIError{Provider: p.Name(), Status: resp.StatusCode, Body: string(b)}
	}

	// allMids returns a flat map of symbol -> mid price string.
	var mids map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&mids); err != nil {
		return nil, &provider.InvalidResponseError{Provider: p.Name(), Reason: fmt.Sprintf("decode: %v", err)}
	}

	result := make(map[market.Asset]market.PriceData, len(assets))
	for _, asset := range assets {
		raw, ok := mids[asset.HyperliquidSymbol()]
		if !ok {
			continue
		}
		price, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			p.log.Warn().Str("asset", asset.Symbol()).Str("mid", raw).Msg("skipping unparsable mid")
			continue
		}
		result[asset] = market.NewPriceData(asset, price, p.Name())
	}

	if len(result) == 0 {
		return nil, &provider.InvalidResponseError{Provider: p.Name(), Reason: "no prices returned"}
	}

	p.log.Debug().Int("count", len(result)).Msg("fetched mids")
	return result, nil
}
