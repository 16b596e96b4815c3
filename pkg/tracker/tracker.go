// Package tracker counts cache and API outcomes per upstream provider.
package tracker

import (
	"sync"
	"sync/atomic"
)

// ProviderStats is a point-in-time copy of one provider's counters.
type ProviderStats struct {
	CacheHits     int64 `json:"cache_hits"`
	CacheMisses   int64 `json:"cache_misses"`
	APISuccess    int64 `json:"api_success"`
	APIFailures   int64 `json:"api_failures"`
	APIZeroResult int64 `json:"api_zero"`
}

// HitRate returns cache hits as a whole percentage of lookups, 0 without lookups.
func (s ProviderStats) HitRate() int64 {
	total := s.CacheHits + s.CacheMisses
	if total == 0 {
		return 0
	}
	return s.CacheHits * 100 / total
}

type counters struct {
	hits, misses, success, failures, zero atomic.Int64
}

// Tracker is safe for concurrent use.
type Tracker struct {
	providers sync.Map // string -> *counters
}

func New() *Tracker {
	return &Tracker{}
}

func (t *Tracker) of(provider string) *counters {
	if c, ok := t.providers.Load(provider); ok {
		return c.(*counters)
	}
	c, _ := t.providers.LoadOrStore(provider, &counters{})
	return c.(*counters)
}

func (t *Tracker) TrackCacheHit(provider string)   { t.of(provider).hits.Add(1) }
func (t *Tracker) TrackCacheMiss(provider string)  { t.of(provider).misses.Add(1) }
func (t *Tracker) TrackAPISuccess(provider string) { t.of(provider).success.Add(1) }
func (t *Tracker) TrackAPIFailure(provider string) { t.of(provider).failures.Add(1) }

// TrackAPIZero counts successful calls that returned nothing.
func (t *Tracker) TrackAPIZero(provider string) { t.of(provider).zero.Add(1) }

// Snapshot copies the counters of every provider seen so far.
func (t *Tracker) Snapshot() map[string]ProviderStats {
	out := make(map[string]ProviderStats)
	t.providers.Range(func(k, v any) bool {
		c := v.(*counters)
		out[k.(string)] = ProviderStats{
			CacheHits:     c.hits.Load(),
			CacheMisses:   c.misses.Load(),
			APISuccess:    c.success.Load(),
			APIFailures:   c.failures.Load(),
			APIZeroResult: c.zero.Load(),
		}
		return true
	})
	return out
}
