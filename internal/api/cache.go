package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"wikimap/pkg/store"
)

// cacheRespTTL is how long an area listing is served from memory.
const cacheRespTTL = 15 * time.Second

// CacheHandler lists the geosearch areas held in the geodata cache, for the
// client's cache debug layer.
type CacheHandler struct {
	store store.GeodataStore

	mu         sync.Mutex
	cachedKey  string
	cachedResp []byte
	lastUpdate time.Time
}

// NewCacheHandler creates a new CacheHandler. Returns nil without a store.
func NewCacheHandler(s store.GeodataStore) *CacheHandler {
	if s == nil {
		return nil
	}
	return &CacheHandler{store: s}
}

// CachedArea is one cached geosearch circle. CachedAt is zero when the row
// has no readable timestamp.
type CachedArea struct {
	Key      string    `json:"key"`
	Lat      float64   `json:"lat"`
	Lon      float64   `json:"lon"`
	Radius   int       `json:"radius_m"`
	CachedAt time.Time `json:"cached_at"`
}

// CacheResponse is the body of GET /api/cache.
type CacheResponse struct {
	Areas []CachedArea `json:"areas"`
	Total int          `json:"total"` // Entries in the whole cache
}

func (h *CacheHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var bounds [4]float64
	for i, name := range []string{"min_lat", "max_lat", "min_lon", "max_lon"} {
		v, err := strconv.ParseFloat(q.Get(name), 64)
		if err != nil {
			http.Error(w, "min_lat, max_lat, min_lon, max_lon are required", http.StatusBadRequest)
			return
		}
		bounds[i] = v
	}

	key := r.URL.RawQuery
	h.mu.Lock()
	if key == h.cachedKey && h.cachedResp != nil && time.Since(h.lastUpdate) < cacheRespTTL {
		resp := h.cachedResp
		h.mu.Unlock()
		writeJSONBytes(w, resp)
		return
	}
	h.mu.Unlock()

	records, err := h.store.GetGeodataInBounds(r.Context(), bounds[0], bounds[1], bounds[2], bounds[3])
	if err != nil {
		slog.Warn("Cache area query failed", "error", err)
		http.Error(w, "failed to query cache", http.StatusInternalServerError)
		return
	}
	keys, err := h.store.ListGeodataCacheKeys(r.Context(), "")
	if err != nil {
		slog.Warn("Cache key listing failed", "error", err)
		http.Error(w, "failed to query cache", http.StatusInternalServerError)
		return
	}

	out := CacheResponse{Areas: make([]CachedArea, 0, len(records)), Total: len(keys)}
	for _, rec := range records {
		out.Areas = append(out.Areas, CachedArea{Key: rec.Key, Lat: rec.Lat, Lon: rec.Lon, Radius: rec.Radius, CachedAt: rec.CreatedAt})
	}

	resp, err := json.Marshal(out)
	if err != nil {
		http.Error(w, "encoding error", http.StatusInternalServerError)
		return
	}

	h.mu.Lock()
	h.cachedKey = key
	h.cachedResp = resp
	h.lastUpdate = time.Now()
	h.mu.Unlock()

	writeJSONBytes(w, resp)
}

func writeJSONBytes(w http.ResponseWriter, b []byte) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(b)
}
