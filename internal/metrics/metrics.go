// Package metrics tracks provider latency and success rates.
package metrics

import (
	"sort"
	"sync"
	"time"
)

// maxSamples bounds the rolling latency window per collector.
const maxSamples = 100

// ProviderMetrics is a derived snapshot for one provider. Percentiles cover
// successful samples in the current window; the success rate covers the
// lifetime counters, so window eviction never changes it.
type ProviderMetrics struct {
	ProviderName   string  `json:"provider_name"`
	LatencyP50MS   float64 `json:"latency_p50_ms"`
	LatencyP99MS   float64 `json:"latency_p99_ms"`
	SuccessRate    float64 `json:"success_rate"`
	TotalRequests  uint64  `json:"total_requests"`
	FailedRequests uint64  `json:"failed_requests"`
}

type sample struct {
	durationMS float64
	success    bool
}

// Collector keeps a fixed-capacity FIFO window of latency samples plus
// unbounded lifetime counters for one provider.
type Collector struct {
	providerName string

	mu      sync.Mutex
	samples []sample
	total   uint64
	failed  uint64
}

// NewCollector creates a collector for the named provider.
func NewCollector(providerName string) *Collector {
	return &Collector{
		providerName: providerName,
		samples:      make([]sample, 0, maxSamples),
	}
}

// Record appends a latency sample, evicting the oldest when the window is
// full, and bumps the lifetime counters.
func (c *Collector) Record(duration time.Duration, success bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.total++
	if !success {
		c.failed++
	}

	if len(c.samples) >= maxSamples {
		c.samples = append(c.samples[:0], c.samples[1:]...)
	}
	c.samples = append(c.samples, sample{
		durationMS: float64(duration) / float64(time.Millisecond),
		success:    success,
	})
}

// Snapshot computes the current metrics. An empty window yields zero
// percentiles; zero lifetime requests yield a success rate of 1.0.
func (c *Collector) Snapshot() ProviderMetrics {
	c.mu.Lock()
	defer c.mu.Unlock()

	m := ProviderMetrics{
		ProviderName:   c.providerName,
		SuccessRate:    1.0,
		TotalRequests:  c.total,
		FailedRequests: c.failed,
	}
	if c.total > 0 {
		m.SuccessRate = float64(c.total-c.failed) / float64(c.total)
	}

	latencies := make([]float64, 0, len(c.samples))
	for _, s := range c.samples {
		if s.success {
			latencies = append(latencies, s.durationMS)
		}
	}
	sort.Float64s(latencies)

	m.LatencyP50MS = percentile(latencies, 50)
	m.LatencyP99MS = percentile(latencies, 99)
	return m
}

// percentile indexes the sorted samples at round(p/100 * (n-1)).
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(p/100*float64(len(sorted)-1) + 0.5)
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
