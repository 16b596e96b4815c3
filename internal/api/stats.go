package api

import (
	"encoding/json"
	"maps"
	"net/http"
	"runtime"
	"slices"

	"wikimap/pkg/logging"
	"wikimap/pkg/tracker"
)

// SessionCounter reports connected map sessions.
type SessionCounter interface {
	SessionCount() int
}

// StatsHandler serves GET /api/stats.
type StatsHandler struct {
	tracker  *tracker.Tracker
	sessions SessionCounter
}

func NewStatsHandler(t *tracker.Tracker, sessions SessionCounter) *StatsHandler {
	return &StatsHandler{tracker: t, sessions: sessions}
}

type ProviderStatsDTO struct {
	CacheHits     int64 `json:"cache_hits"`
	CacheMisses   int64 `json:"cache_misses"`
	APISuccess    int64 `json:"api_success"`
	APIZeroResult int64 `json:"api_zero"`
	APIFailures   int64 `json:"api_errors"`
	HitRate       int64 `json:"hit_rate"`
}

type RuntimeStats struct {
	MemoryMB   uint64 `json:"memory_mb"`
	Goroutines int    `json:"goroutines"`
}

type StatsResponse struct {
	Runtime   RuntimeStats                `json:"runtime"`
	Sessions  int                         `json:"sessions"`
	Providers map[string]ProviderStatsDTO `json:"providers"`
	Order     []string                    `json:"order"`
	LastLog   string                      `json:"last_log,omitempty"`
}

func (h *StatsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	snapshot := h.tracker.Snapshot()

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	resp := StatsResponse{
		Runtime: RuntimeStats{
			MemoryMB:   mem.Sys >> 20,
			Goroutines: runtime.NumGoroutine(),
		},
		Providers: make(map[string]ProviderStatsDTO, len(snapshot)),
		Order:     slices.Sorted(maps.Keys(snapshot)),
		LastLog:   parseLogLine(logging.GlobalLogCapture.LastLine()).Text,
	}
	if h.sessions != nil {
		resp.Sessions = h.sessions.SessionCount()
	}

	for provider, stats := range snapshot {
		resp.Providers[provider] = ProviderStatsDTO{
			CacheHits:     stats.CacheHits,
			CacheMisses:   stats.CacheMisses,
			APISuccess:    stats.APISuccess,
			APIZeroResult: stats.APIZeroResult,
			APIFailures:   stats.APIFailures,
			HitRate:       stats.HitRate(),
		}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}
