package market

import (
	"time"

	"github.com/google/uuid"
)

// PriceData is a single observed price for an asset. Values are immutable:
// a newer price is a new PriceData, never an in-place mutation.
type PriceData struct {
	Asset       Asset     `json:"asset"`
	PriceUSD    float64   `json:"price_usd"`
	Change24h   *float64  `json:"price_change_24h,omitempty"`
	LastUpdated time.Time `json:"last_updated"`
	Source      string    `json:"source"`
}

// NewPriceData builds price data stamped with the current time.
func NewPriceData(asset Asset, priceUSD float64, source string) PriceData {
	return PriceData{
		Asset:       asset,
		PriceUSD:    priceUSD,
		LastUpdated: time.Now().UTC(),
		Source:      source,
	}
}

// WithChange builds price data carrying a 24h change percentage.
func WithChange(asset Asset, priceUSD float64, change24h *float64, source string) PriceData {
	pd := NewPriceData(asset, priceUSD, source)
	pd.Change24h = change24h
	return pd
}

// Age reports how long ago the price was captured.
func (p PriceData) Age() time.Duration {
	age := time.Since(p.LastUpdated)
	if age < 0 {
		return 0
	}
	return age
}

// IsStale reports whether the price is older than threshold.
func (p PriceData) IsStale(threshold time.Duration) bool {
	return p.Age() > threshold
}

// PriceUpdate is the event fanned out to broadcast subscribers whenever an
// asset's price is replaced.
type PriceUpdate struct {
	ID          uuid.UUID `json:"id"`
	Price       PriceData `json:"price"`
	OldPriceUSD *float64  `json:"old_price_usd,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// NewPriceUpdate builds an update event for a freshly written price.
// oldPrice is nil when the asset had no previous value.
func NewPriceUpdate(price PriceData, oldPrice *float64) PriceUpdate {
	return PriceUpdate{
		ID:          uuid.New(),
		Price:       price,
		OldPriceUSD: oldPrice,
		Timestamp:   time.Now().UTC(),
	}
}
