// Package features keeps the map's feature source in step with the camera:
// it tracks the dynamic search radius, decides when to refetch and caches
// geosearch results per map tile.
package features

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/paulmach/orb"

	"wikimap/pkg/config"
	"wikimap/pkg/geo"
	"wikimap/pkg/model"
	"wikimap/pkg/store"
)

// Source searches geotagged articles around a point.
type Source interface {
	GeoSearch(ctx context.Context, lat, lon, radius float64, limit int) ([]model.Feature, error)
}

// fetchState records the camera situation of the last successful fetch.
type fetchState struct {
	center orb.Point
	radius float64
}

// Fetcher loads features around a moving camera.
// Update is safe for concurrent use; one map session owns one Fetcher.
type Fetcher struct {
	src   Source
	cache store.GeodataStore
	cfg   config.FetchConfig
	lang  string
	limit int

	mu       sync.Mutex
	last     *fetchState
	features []model.Feature
}

// NewFetcher creates a fetcher. cache may be nil to disable caching.
func NewFetcher(src Source, cache store.GeodataStore, cfg config.FetchConfig, lang string, limit int) *Fetcher {
	return &Fetcher{src: src, cache: cache, cfg: cfg, lang: lang, limit: limit}
}

// RadiusOptions returns the dynamic radius bounds from the fetch config.
func (f *Fetcher) RadiusOptions() geo.RadiusOptions {
	return geo.RadiusOptions{
		Padding: f.cfg.RadiusPadding.Meters(),
		Min:     f.cfg.MinRadius.Meters(),
		Max:     f.cfg.MaxRadius.Meters(),
	}
}

// NeedsRefetch reports whether a camera at center needing radius has left
// what the last fetch covers: no data yet, the center moved more than
// RefetchFraction of the last radius, or the radius changed by more than RadiusChange.
func NeedsRefetch(last *fetchState, center orb.Point, radius float64, cfg *config.FetchConfig) bool {
	if last == nil || last.radius <= 0 {
		return true
	}
	if geo.Distance(last.center, center) > cfg.RefetchFraction*last.radius {
		return true
	}
	return math.Abs(radius-last.radius)/last.radius > cfg.RadiusChange
}

// Update fetches features for the camera when needed. It returns the current
// feature set and whether it changed. On error the previous set is kept and
// the next Update tries again.
func (f *Fetcher) Update(ctx context.Context, cam geo.Unprojector) ([]model.Feature, bool, error) {
	radius, err := geo.DynamicRadius(cam, f.RadiusOptions())
	if err != nil {
		return nil, false, fmt.Errorf("dynamic radius: %w", err)
	}
	center := cam.Center()

	f.mu.Lock()
	defer f.mu.Unlock()

	if !NeedsRefetch(f.last, center, radius, &f.cfg) {
		return f.features, false, nil
	}

	if f.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(f.cfg.Timeout))
		defer cancel()
	}

	features, err := f.Search(ctx, center, radius)
	if err != nil {
		return f.features, false, err
	}

	f.last = &fetchState{center: center, radius: radius}
	f.features = features
	slog.Debug("Features refetched", "lat", center.Lat(), "lon", center.Lon(), "radius", math.Round(radius), "count", len(features))
	return features, true, nil
}

// Features returns the last fetched feature set.
func (f *Fetcher) Features() []model.Feature {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.features
}

// Search returns the features within the cache area covering center and radius,
// from the geodata cache when possible.
func (f *Fetcher) Search(ctx context.Context, center orb.Point, radius float64) ([]model.Feature, error) {
	area := AreaFor(f.lang, center, radius, f.cfg.CacheZoom, f.cfg.MaxRadius.Meters())

	// 1. Cache
	if f.cache != nil {
		if data, _, ok := f.cache.GetGeodataCache(ctx, area.Key); ok {
			var cached []model.Feature
			if err := json.Unmarshal(data, &cached); err == nil {
				slog.Debug("Geodata cache hit", "key", area.Key, "count", len(cached))
				return cached, nil
			}
			slog.Warn("Discarding unreadable geodata cache entry", "key", area.Key)
		}
	}

	// 2. Source
	features, err := f.src.GeoSearch(ctx, area.Center.Lat(), area.Center.Lon(), area.SearchRadius, f.limit)
	if err != nil {
		return nil, fmt.Errorf("geosearch %s: %w", area.Key, err)
	}

	// 3. Store
	if f.cache != nil {
		data, err := json.Marshal(features)
		if err == nil {
			err = f.cache.SetGeodataCache(ctx, area.Key, data, int(math.Round(area.SearchRadius)), area.Center.Lat(), area.Center.Lon())
		}
		if err != nil {
			slog.Warn("Failed to cache geodata", "key", area.Key, "error", err)
		}
	}
	return features, nil
}
