// Package config provides runtime configuration for the price tracker.
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"

	"pricetracker/internal/market"
)

// Provider names accepted by Config.Provider.
const (
	ProviderHermes      = "hermes"
	ProviderCoinGecko   = "coingecko"
	ProviderHyperliquid = "hyperliquid"
	ProviderFailover    = "failover"
)

// Config holds every tunable of the tracker. All fields come from the
// environment (prefix TRACKER_) with defaults matching the original service
// constants.
type Config struct {
	// Provider selects the price source: a streaming provider by default,
	// a named pull provider, or the failover chain.
	Provider string `envconfig:"PROVIDER" default:"hermes"`

	// Assets is the tracked asset set, as comma-separated symbols.
	Assets []string `envconfig:"ASSETS" default:"SOL,BTC"`

	// RefreshInterval is the poll-loop period for pull providers.
	RefreshInterval time.Duration `envconfig:"REFRESH_INTERVAL" default:"60s"`

	// StaleThreshold is the global read-time freshness budget.
	StaleThreshold time.Duration `envconfig:"STALE_THRESHOLD" default:"300s"`

	// RequestTimeout bounds a single pull-provider HTTP request.
	RequestTimeout time.Duration `envconfig:"REQUEST_TIMEOUT" default:"10s"`

	// MaxRetryAttempts caps fetch attempts per refresh cycle.
	MaxRetryAttempts int `envconfig:"MAX_RETRY_ATTEMPTS" default:"3"`

	// InitialBackoff is the first retry delay; it doubles per attempt.
	InitialBackoff time.Duration `envconfig:"INITIAL_BACKOFF" default:"1s"`

	// MaxBackoff caps the doubled retry delay.
	MaxBackoff time.Duration `envconfig:"MAX_BACKOFF" default:"30s"`

	// BroadcastBuffer sizes each subscriber's update channel.
	BroadcastBuffer int `envconfig:"BROADCAST_BUFFER" default:"64"`

	// CoinGeckoMaxRPM gates CoinGecko with a token bucket when > 0.
	CoinGeckoMaxRPM int `envconfig:"COINGECKO_MAX_RPM" default:"0"`

	// CoinGeckoBurst is the token bucket burst used with CoinGeckoMaxRPM.
	CoinGeckoBurst int `envconfig:"COINGECKO_BURST" default:"1"`

	// CoinGeckoMinInterval enforces a minimum spacing between CoinGecko
	// calls when > 0 and no RPM limit is set.
	CoinGeckoMinInterval time.Duration `envconfig:"COINGECKO_MIN_INTERVAL" default:"0"`
}

// New reads the configuration from the environment and validates it.
func New() (Config, error) {
	var cfg Config
	if err := envconfig.Process("tracker", &cfg); err != nil {
		return Config{}, fmt.Errorf("process config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints and the asset list.
func (c Config) Validate() error {
	switch c.Provider {
	case ProviderHermes, ProviderCoinGecko, ProviderHyperliquid, ProviderFailover:
	default:
		return fmt.Errorf("unknown provider %q", c.Provider)
	}
	if c.RefreshInterval <= 0 {
		return fmt.Errorf("refresh interval must be positive")
	}
	if c.MaxRetryAttempts < 1 {
		return fmt.Errorf("max retry attempts must be at least 1")
	}
	if c.InitialBackoff <= 0 || c.MaxBackoff < c.InitialBackoff {
		return fmt.Errorf("backoff bounds invalid: initial=%s max=%s", c.InitialBackoff, c.MaxBackoff)
	}
	if _, err := c.AssetList(); err != nil {
		return err
	}
	return nil
}

// AssetList resolves the configured symbols onto the supported asset set.
func (c Config) AssetList() ([]market.Asset, error) {
	if len(c.Assets) == 0 {
		return nil, fmt.Errorf("no assets configured")
	}
	assets := make([]market.Asset, 0, len(c.Assets))
	for _, s := range c.Assets {
		asset, err := market.ParseAsset(s)
		if err != nil {
			return nil, err
		}
		assets = append(assets, asset)
	}
	return assets, nil
}
