package tracker

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTracker(t *testing.T) {
	tr := New()
	assert.Empty(t, tr.Snapshot())

	tr.TrackCacheHit("wikipedia")
	tr.TrackCacheMiss("wikipedia")
	tr.TrackAPISuccess("wikipedia")
	tr.TrackAPIZero("wikipedia")
	tr.TrackAPIFailure("tile.example.org")

	stats := tr.Snapshot()
	require.Len(t, stats, 2)
	assert.Equal(t, ProviderStats{CacheHits: 1, CacheMisses: 1, APISuccess: 1, APIZeroResult: 1}, stats["wikipedia"])
	assert.Equal(t, ProviderStats{APIFailures: 1}, stats["tile.example.org"])

	// Snapshots are copies
	tr.TrackCacheHit("wikipedia")
	assert.Equal(t, int64(1), stats["wikipedia"].CacheHits)
}

func TestProviderStats_HitRate(t *testing.T) {
	tests := []struct {
		name  string
		stats ProviderStats
		want  int64
	}{
		{"no lookups", ProviderStats{}, 0},
		{"all hits", ProviderStats{CacheHits: 4}, 100},
		{"three of four", ProviderStats{CacheHits: 3, CacheMisses: 1}, 75},
		{"rounds down", ProviderStats{CacheHits: 1, CacheMisses: 2}, 33},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.stats.HitRate(); got != tt.want {
				t.Errorf("HitRate() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestTracker_Concurrent(t *testing.T) {
	tr := New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tr.TrackAPISuccess("wikipedia")
			tr.TrackCacheHit("wikipedia")
		}()
	}
	wg.Wait()

	s := tr.Snapshot()["wikipedia"]
	assert.Equal(t, int64(50), s.APISuccess)
	assert.Equal(t, int64(50), s.CacheHits)
}
