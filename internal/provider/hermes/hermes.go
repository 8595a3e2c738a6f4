// Package hermes implements the Pyth Hermes streaming provider.
//
// Hermes pushes price updates over a persistent SSE connection. The provider
// keeps its own asset->price cache fed by the stream, so it stays queryable
// through FetchPrice/FetchPrices even when it is not wired into a tracker.
package hermes

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"pricetracker/internal/broadcast"
	"pricetracker/internal/httpx"
	"pricetracker/internal/market"
	"pricetracker/internal/provider"
	"pricetracker/internal/store"
)

const (
	defaultStreamURL     = "https://hermes.pyth.network/v2/updates/price/stream"
	defaultReconnectWait = 5 * time.Second

	sourceName = "hermes-sse"
)

// streamMessage is the JSON body of one SSE event.
type streamMessage struct {
	Parsed []feedUpdate `json:"parsed"`
}

type feedUpdate struct {
	ID    string    `json:"id"`
	Price feedPrice `json:"price"`
}

// feedPrice carries the price as an integer string plus a decimal exponent;
// the actual price is value * 10^expo.
type feedPrice struct {
	Price       string `json:"price"`
	Expo        int    `json:"expo"`
	PublishTime int64  `json:"publish_time"`
}

// Provider consumes the Hermes price stream.
type Provider struct {
	streamURL     string
	reconnectWait time.Duration
	client        *httpx.Client
	log           zerolog.Logger
	feeds         map[string]market.Asset

	mu     sync.RWMutex
	prices map[market.Asset]market.PriceData

	startOnce sync.Once
}

// Option configures the provider.
type Option func(*Provider)

// WithStreamURL overrides the stream endpoint, mainly for tests.
func WithStreamURL(streamURL string) Option {
	return func(p *Provider) { p.streamURL = streamURL }
}

// WithReconnectWait overrides the fixed delay between reconnect attempts.
func WithReconnectWait(d time.Duration) Option {
	return func(p *Provider) { p.reconnectWait = d }
}

// New creates a Hermes provider. The HTTP client must have no overall
// timeout, otherwise the long-lived stream would be cut off.
func New(client *httpx.Client, log zerolog.Logger, opts ...Option) *Provider {
	// Hermes delivers ids with and without the 0x prefix depending on the
	// endpoint version; accept both.
	feeds := make(map[string]market.Asset)
	for _, asset := range market.All() {
		if id, ok := asset.PythFeedID(); ok {
			feeds[id] = asset
			feeds["0x"+id] = asset
		}
	}

	p := &Provider{
		streamURL:     defaultStreamURL,
		reconnectWait: defaultReconnectWait,
		client:        client,
		log:           log.With().Str("provider", sourceName).Logger(),
		feeds:         feeds,
		prices:        make(map[market.Asset]market.PriceData),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Provider) Name() string { return sourceName }

func (p *Provider) IsStreaming() bool { return true }

// FetchPrice serves the latest streamed price from the local cache.
func (p *Provider) FetchPrice(_ context.Context, asset market.Asset) (market.PriceData, error) {
	p.mu.RLock()
	pd, ok := p.prices[asset]
	p.mu.RUnlock()
	if !ok {
		return market.PriceData{}, &provider.UnsupportedAssetError{Asset: asset.Symbol()}
	}
	return pd, nil
}

// FetchPrices serves the latest streamed prices from the local cache. Assets
// not yet seen on the stream are omitted.
func (p *Provider) FetchPrices(_ context.Context, assets []market.Asset) (map[market.Asset]market.PriceData, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	result := make(map[market.Asset]market.PriceData, len(assets))
	for _, asset := range assets {
		if pd, ok := p.prices[asset]; ok {
			result[asset] = pd
		}
	}
	if len(result) == 0 {
		return nil, &provider.InvalidResponseError{Provider: sourceName, Reason: "no prices in stream cache yet"}
	}
	return result, nil
}

// StartStreaming launches the ingestion loop. Connection loss is treated as
// transient: the loop waits a fixed delay and reconnects, indefinitely.
func (p *Provider) StartStreaming(st *store.Store, hub *broadcast.Hub) {
	p.startOnce.Do(func() {
		go func() {
			for {
				p.log.Info().Str("url", p.streamURL).Msg("connecting to price stream")
				if err := p.stream(st, hub); err != nil {
					p.log.Error().
						Err(err).
						Dur("reconnect_in", p.reconnectWait).
						Msg("price stream disconnected")
				}
				time.Sleep(p.reconnectWait)
			}
		}()
	})
}

// stream consumes one SSE connection until it fails or ends.
func (p *Provider) stream(st *store.Store, hub *broadcast.Hub) error {
	req, err := http.NewRequest(http.MethodGet, p.buildURL(), nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2<<10))
		return &provider.APIError{Provider: sourceName, Status: resp.StatusCode, Body: string(body)}
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	eventName := ""
	var data bytes.Buffer
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if data.Len() > 0 && (eventName == "" || eventName == "message" || eventName == "price_update") {
				p.handleEvent(data.Bytes(), st, hub)
			}
			eventName = ""
			data.Reset()
		case strings.HasPrefix(line, "event:"):
			eventName = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read stream: %w", err)
	}
	return fmt.Errorf("stream ended")
}

// handleEvent applies one stream event: local cache first, then the external
// store, then the broadcast hub. Malformed events are logged and skipped.
func (p *Provider) handleEvent(data []byte, st *store.Store, hub *broadcast.Hub) {
	var msg streamMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		p.log.Warn().Err(err).Msg("skipping malformed stream event")
		return
	}

	for _, update := range msg.Parsed {
		asset, ok := p.feeds[update.ID]
		if !ok {
			continue
		}
		value, err := strconv.ParseFloat(update.Price.Price, 64)
		if err != nil {
			p.log.Warn().Str("asset", asset.Symbol()).Str("price", update.Price.Price).Msg("skipping unparsable price")
			continue
		}
		price := value * math.Pow10(update.Price.Expo)
		pd := market.NewPriceData(asset, price, sourceName)

		p.mu.Lock()
		prev, hadPrev := p.prices[asset]
		p.prices[asset] = pd
		p.mu.Unlock()

		if st != nil {
			st.Update(asset, pd)
		}
		if hub != nil {
			var old *float64
			if hadPrev {
				v := prev.PriceUSD
				old = &v
			}
			hub.Publish(market.NewPriceUpdate(pd, old))
		}

		p.log.Debug().Str("asset", asset.Symbol()).Float64("price_usd", price).Msg("stream update")
	}
}

func (p *Provider) buildURL() string {
	params := url.Values{}
	for _, asset := range market.All() {
		if id, ok := asset.PythFeedID(); ok {
			params.Add("ids[]", id)
		}
	}
	return p.streamURL + "?" + params.Encode()
}
