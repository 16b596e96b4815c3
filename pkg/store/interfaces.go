package store

import (
	"context"
	"time"
)

// CacheStore is the HTTP response cache of the request client.
type CacheStore interface {
	GetCache(ctx context.Context, key string) ([]byte, bool)
	HasCache(ctx context.Context, key string) (bool, error)
	SetCache(ctx context.Context, key string, val []byte) error
	ListCacheKeys(ctx context.Context, prefix string) ([]string, error)
}

// GeodataRecord describes one cached geosearch circle.
type GeodataRecord struct {
	Key       string
	Lat       float64
	Lon       float64
	Radius    int // meters
	CreatedAt time.Time
}

// GeodataStore caches geosearch results per search circle.
type GeodataStore interface {
	GetGeodataCache(ctx context.Context, key string) (data []byte, radius int, found bool)
	SetGeodataCache(ctx context.Context, key string, val []byte, radius int, lat, lon float64) error
	GetGeodataInBounds(ctx context.Context, minLat, maxLat, minLon, maxLon float64) ([]GeodataRecord, error)
	ListGeodataCacheKeys(ctx context.Context, prefix string) ([]string, error)
}

// Store is everything the service persists.
type Store interface {
	CacheStore
	GeodataStore
	Close() error
}
