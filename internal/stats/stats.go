// Package stats keeps process-lifetime dedup counters. All counters are
// atomic so concurrent checkers never lose increments.
package stats

import "sync/atomic"

type Collector struct {
	total       atomic.Int64
	hits        atomic.Int64
	misses      atomic.Int64
	partialHits atomic.Int64
}

// Snapshot is a point-in-time view of the counters. CachedRegions is
// filled in by the engine from the store, not tracked here.
type Snapshot struct {
	TotalRequests int64   `json:"total_requests"`
	CacheHits     int64   `json:"cache_hits"`
	CacheMisses   int64   `json:"cache_misses"`
	PartialHits   int64   `json:"partial_hits"`
	HitRate       float64 `json:"hit_rate"`
	CachedRegions int     `json:"cached_regions"`
}

func New() *Collector { return &Collector{} }

func (c *Collector) IncTotal()   { c.total.Add(1) }
func (c *Collector) IncHit()     { c.hits.Add(1) }
func (c *Collector) IncMiss()    { c.misses.Add(1) }
func (c *Collector) IncPartial() { c.partialHits.Add(1) }

// Snapshot reads the counters and derives the hit rate: both full hits and
// partial hits count as served-from-cache. Zero total means zero rate.
func (c *Collector) Snapshot() Snapshot {
	s := Snapshot{
		TotalRequests: c.total.Load(),
		CacheHits:     c.hits.Load(),
		CacheMisses:   c.misses.Load(),
		PartialHits:   c.partialHits.Load(),
	}
	if s.TotalRequests > 0 {
		s.HitRate = float64(s.CacheHits+s.PartialHits) / float64(s.TotalRequests) * 100
	}
	return s
}

// Reset zeroes all counters without touching stored regions.
func (c *Collector) Reset() {
	c.total.Store(0)
	c.hits.Store(0)
	c.misses.Store(0)
	c.partialHits.Store(0)
}
