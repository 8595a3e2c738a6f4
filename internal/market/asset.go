// Package market defines the asset universe and the price data types shared
// by the store, providers and tracker.
package market

import (
	"fmt"
	"strings"
	"time"
)

// Asset is one of the tracked cryptocurrency instruments. The set is closed;
// use ParseAsset to map free-form input onto it.
type Asset string

const (
	SOL  Asset = "SOL"
	BTC  Asset = "BTC"
	ETH  Asset = "ETH"
	USDC Asset = "USDC"
	USDT Asset = "USDT"
	WBTC Asset = "WBTC"
	WETH Asset = "WETH"
)

// All returns every supported asset.
func All() []Asset {
	return []Asset{SOL, BTC, ETH, USDC, USDT, WBTC, WETH}
}

// ParseAsset maps a symbol (case-insensitive) onto a supported asset.
func ParseAsset(s string) (Asset, error) {
	switch Asset(strings.ToUpper(strings.TrimSpace(s))) {
	case SOL:
		return SOL, nil
	case BTC:
		return BTC, nil
	case ETH:
		return ETH, nil
	case USDC:
		return USDC, nil
	case USDT:
		return USDT, nil
	case WBTC:
		return WBTC, nil
	case WETH:
		return WETH, nil
	}
	return "", fmt.Errorf("unknown asset %q", s)
}

// Symbol returns the canonical ticker symbol.
func (a Asset) Symbol() string { return string(a) }

func (a Asset) String() string { return string(a) }

// CoinGeckoID returns the CoinGecko identifier for the asset.
func (a Asset) CoinGeckoID() string {
	switch a {
	case SOL:
		return "solana"
	case BTC:
		return "bitcoin"
	case ETH:
		return "ethereum"
	case USDC:
		return "usd-coin"
	case USDT:
		return "tether"
	case WBTC:
		return "wrapped-bitcoin"
	case WETH:
		return "weth"
	}
	return ""
}

// HyperliquidSymbol returns the symbol used by the Hyperliquid allMids API.
func (a Asset) HyperliquidSymbol() string { return string(a) }

// PythFeedID returns the Pyth price feed id used by the Hermes stream.
// Wrapped assets have no dedicated feed and report ok=false.
func (a Asset) PythFeedID() (string, bool) {
	switch a {
	case SOL:
		return "ef0d8b6fda2ceba41da15d4095d1da392a0d2f8ed0c6c7bc0f4cfac8c280b56d", true
	case BTC:
		return "e62df6c8b4a85fe1a67db44dc12de5db330f7ac66b72dc658afedf0f4a415b43", true
	case ETH:
		return "ff61491a931112ddf1bd8147cd1b641375f79f5825126d665480874634fd0ace", true
	case USDC:
		return "eaa020c61cc479712813461ce153894a96a6c00b21ed0cfc2798d1f9a9e9c94a", true
	case USDT:
		return "2b89b9dc8fdf9f34709a5b106b472f0f39bb6ca9ce04b0fd7f2e971688e2e53b", true
	}
	return "", false
}

// StaleThreshold is the per-asset freshness budget. High-frequency assets need
// fresher data than stablecoins. The store's read path applies one global
// threshold; this accessor publishes the per-asset recommendation for callers
// that want tighter checks.
func (a Asset) StaleThreshold() time.Duration {
	switch a {
	case SOL, ETH:
		return 120 * time.Second
	case BTC, WBTC, WETH:
		return 180 * time.Second
	default:
		return 300 * time.Second
	}
}
