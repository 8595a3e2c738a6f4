package store

import (
	"fmt"
	"time"

	"pricetracker/internal/market"
)

// NotAvailableError is returned when no price was ever written for an asset.
type NotAvailableError struct {
	Asset market.Asset
}

func (e *NotAvailableError) Error() string {
	return fmt.Sprintf("price data not available for %s", e.Asset)
}

// StaleError is returned when a price exists but is older than the configured
// threshold. Age is the elapsed time since the price was captured.
type StaleError struct {
	Asset market.Asset
	Age   time.Duration
}

func (e *StaleError) Error() string {
	return fmt.Sprintf("price data for %s is stale (age: %s)", e.Asset, e.Age)
}

// ProviderFailureError wraps an upstream provider failure surfaced through the
// read path. Callers own any retry at this boundary.
type ProviderFailureError struct {
	Err error
}

func (e *ProviderFailureError) Error() string {
	return fmt.Sprintf("all providers failed: %v", e.Err)
}

func (e *ProviderFailureError) Unwrap() error { return e.Err }
