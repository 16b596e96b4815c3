package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"math"
	"net/http"
	"strconv"

	"github.com/paulmach/orb"

	"wikimap/pkg/config"
	"wikimap/pkg/geo"
	"wikimap/pkg/model"
)

// Searcher finds features around a point. features.Fetcher satisfies it.
type Searcher interface {
	Search(ctx context.Context, center orb.Point, radius float64) ([]model.Feature, error)
}

// FeaturesHandler serves one-off geosearches for clients that do not hold a
// map session (initial page load, list views).
type FeaturesHandler struct {
	searcher Searcher
	cfg      config.FetchConfig
}

// NewFeaturesHandler creates a new handler. Returns nil if the searcher is missing.
func NewFeaturesHandler(s Searcher, cfg config.FetchConfig) *FeaturesHandler {
	if s == nil {
		return nil
	}
	return &FeaturesHandler{searcher: s, cfg: cfg}
}

// FeaturesResponse is the body of GET /api/features.
type FeaturesResponse struct {
	Lat      float64         `json:"lat"`
	Lon      float64         `json:"lon"`
	Radius   float64         `json:"radius"`
	Features []model.Feature `json:"features"`
}

// HandleGet handles GET /api/features?lat=..&lon=..[&radius=..].
func (h *FeaturesHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	lat, err1 := strconv.ParseFloat(q.Get("lat"), 64)
	lon, err2 := strconv.ParseFloat(q.Get("lon"), 64)
	if err1 != nil || err2 != nil || math.Abs(lat) > 90 || math.Abs(lon) > 180 {
		http.Error(w, "lat and lon are required", http.StatusBadRequest)
		return
	}

	radius := 1000.0
	if v := q.Get("radius"); v != "" {
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil {
			http.Error(w, "invalid radius", http.StatusBadRequest)
			return
		}
		radius = parsed
	}
	radius = geo.Clamp(radius, h.cfg.MinRadius.Meters(), h.cfg.MaxRadius.Meters())

	features, err := h.searcher.Search(r.Context(), orb.Point{lon, lat}, radius)
	if err != nil {
		slog.Warn("Feature search failed", "lat", lat, "lon", lon, "radius", radius, "error", err)
		http.Error(w, "feature search failed", http.StatusBadGateway)
		return
	}

	// Only what lies inside the requested circle; the cache area is larger
	center := orb.Point{lon, lat}
	inside := make([]model.Feature, 0, len(features))
	for i := range features {
		if geo.Distance(center, features[i].Point()) <= radius {
			inside = append(inside, features[i])
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(FeaturesResponse{Lat: lat, Lon: lon, Radius: radius, Features: inside}); err != nil {
		slog.Error("Failed to write features response", "error", err)
	}
}
