// Package store holds the concurrent in-memory price cache.
//
// Locking is two-level: the directory lock guards only the asset->slot map and
// is taken exclusively just on the first write for an asset. Each slot carries
// its own lock, so readers and writers of different assets never contend.
package store

import (
	"sync"
	"time"

	"pricetracker/internal/market"
)

// slot is the per-asset lockable cell holding the latest known price.
// Once created it lives for the process lifetime.
type slot struct {
	mu    sync.RWMutex
	price *market.PriceData
}

// Store maps assets to their latest price. Staleness is evaluated at read
// time against the configured threshold; there is no background expiry.
type Store struct {
	staleThreshold time.Duration

	mu    sync.RWMutex
	slots map[market.Asset]*slot
}

// New creates a store that treats prices older than staleThreshold as stale.
func New(staleThreshold time.Duration) *Store {
	return &Store{
		staleThreshold: staleThreshold,
		slots:          make(map[market.Asset]*slot),
	}
}

// ensureSlot returns the slot for asset, creating it under the directory
// write lock on first use.
func (s *Store) ensureSlot(asset market.Asset) *slot {
	s.mu.RLock()
	sl, ok := s.slots[asset]
	s.mu.RUnlock()
	if ok {
		return sl
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if sl, ok = s.slots[asset]; ok {
		return sl
	}
	sl = &slot{}
	s.slots[asset] = sl
	return sl
}

func (s *Store) lookup(asset market.Asset) (*slot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sl, ok := s.slots[asset]
	return sl, ok
}

// Update replaces the price for an asset unconditionally.
func (s *Store) Update(asset market.Asset, price market.PriceData) {
	sl := s.ensureSlot(asset)
	sl.mu.Lock()
	sl.price = &price
	sl.mu.Unlock()
}

// UpdateAll applies Update for each entry. The batch is not atomic: readers
// may observe a mix of old and new values while it is in flight.
func (s *Store) UpdateAll(prices map[market.Asset]market.PriceData) {
	for asset, price := range prices {
		s.Update(asset, price)
	}
}

// Get returns the current price for an asset, failing with NotAvailableError
// when nothing was ever written and StaleError when the value is too old.
func (s *Store) Get(asset market.Asset) (market.PriceData, error) {
	sl, ok := s.lookup(asset)
	if !ok {
		return market.PriceData{}, &NotAvailableError{Asset: asset}
	}

	sl.mu.RLock()
	price := sl.price
	sl.mu.RUnlock()
	if price == nil {
		return market.PriceData{}, &NotAvailableError{Asset: asset}
	}
	if price.IsStale(s.staleThreshold) {
		return market.PriceData{}, &StaleError{Asset: asset, Age: price.Age()}
	}
	return *price, nil
}

// Current returns the latest written price regardless of staleness.
func (s *Store) Current(asset market.Asset) (market.PriceData, bool) {
	sl, ok := s.lookup(asset)
	if !ok {
		return market.PriceData{}, false
	}
	sl.mu.RLock()
	price := sl.price
	sl.mu.RUnlock()
	if price == nil {
		return market.PriceData{}, false
	}
	return *price, true
}

// GetAll returns every asset with a fresh price. Stale or absent assets are
// silently excluded.
func (s *Store) GetAll() map[market.Asset]market.PriceData {
	s.mu.RLock()
	slots := make(map[market.Asset]*slot, len(s.slots))
	for asset, sl := range s.slots {
		slots[asset] = sl
	}
	s.mu.RUnlock()

	result := make(map[market.Asset]market.PriceData, len(slots))
	for asset, sl := range slots {
		sl.mu.RLock()
		price := sl.price
		sl.mu.RUnlock()
		if price != nil && !price.IsStale(s.staleThreshold) {
			result[asset] = *price
		}
	}
	return result
}

// Has reports whether any price was written for the asset, stale or not.
func (s *Store) Has(asset market.Asset) bool {
	_, ok := s.Current(asset)
	return ok
}

// IsStale reports whether the asset's price is stale. Assets that were never
// written are treated as stale.
func (s *Store) IsStale(asset market.Asset) bool {
	price, ok := s.Current(asset)
	if !ok {
		return true
	}
	return price.IsStale(s.staleThreshold)
}
