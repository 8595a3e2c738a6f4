// Package coingecko implements the CoinGecko simple-price pull provider.
package coingecko

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/rs/zerolog"

	"pricetracker/internal/httpx"
	"pricetracker/internal/market"
	"pricetracker/internal/provider"
)

const defaultBaseURL = "https://api.coingecko.com/api/v3"

// assetPrice is one entry of the /simple/price response.
type assetPrice struct {
	USD       float64  `json:"usd"`
	Change24h *float64 `json:"usd_24h_change"`
}

// Provider fetches spot prices from the CoinGecko REST API.
type Provider struct {
	provider.PullBase

	baseURL string
	client  *httpx.Client
	log     zerolog.Logger
}

// Option configures the provider.
type Option func(*Provider)

// WithBaseURL overrides the API base URL, mainly for tests.
func WithBaseURL(baseURL string) Option {
	return func(p *Provider) { p.baseURL = strings.TrimRight(baseURL, "/") }
}

// New creates a CoinGecko provider using the shared HTTP client.
func New(client *httpx.Client, log zerolog.Logger, opts ...Option) *Provider {
	p := &Provider{
		baseURL: defaultBaseURL,
		client:  client,
		log:     log.With().Str("provider", "coingecko").Logger(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Provider) Name() string { return "coingecko" }

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

	reqURL := p.buildURL(assets)
	p.log.Debug().Str("url", reqURL).Msg("fetching prices")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
			return nil, provider.ErrTimeout
		}
		return nil, fmt.Errorf("coingecko request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, provider.ErrRateLimited
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2<<10))
		return nil, &provider.APIError{Provider: p.Name(), Status: resp.StatusCode, Body: string(body)}
	}

	var raw map[string]assetPrice
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, &provider.InvalidResponseError{Provider: p.Name(), Reason: fmt.Sprintf("decode: %v", err)}
	}

	result := make(map[market.Asset]market.PriceData, len(assets))
	for _, asset := range assets {
		entry, ok := raw[asset.CoinGeckoID()]
		if !ok {
			continue
		}
		result[asset] = market.WithChange(asset, entry.USD, entry.Change24h, p.Name())
	}

	if len(result) == 0 {
		return nil, &provider.InvalidResponseError{Provider: p.Name(), Reason: "no prices returned"}
	}

	p.log.Debug().Int("count", len(result)).Msg("fetched prices")
	return result, nil
}

func (p *Provider) buildURL(assets []market.Asset) string {
	ids := make([]string, 0, len(assets))
	for _, asset := range assets {
		ids = append(ids, asset.CoinGeckoID())
	}

	params := url.Values{}
	params.Set("ids", strings.Join(ids, ","))
	params.Set("vs_currencies", "usd")
	params.Set("include_24hr_change", "true")
	return fmt.Sprintf("%s/simple/price?%s", p.baseURL, params.Encode())
}
