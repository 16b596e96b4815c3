package store

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"wikimap/pkg/db"
)

// SQLiteStore implements Store on the service database.
type SQLiteStore struct {
	db *db.DB
}

func NewSQLiteStore(d *db.DB) *SQLiteStore {
	return &SQLiteStore{db: d}
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Get and Set make the store a cache.Cacher for the request client.
func (s *SQLiteStore) Get(key string) ([]byte, bool) {
	return s.GetCache(context.Background(), key)
}

func (s *SQLiteStore) Set(key string, val []byte) error {
	return s.SetCache(context.Background(), key, val)
}

// --- Response cache ---

func (s *SQLiteStore) GetCache(ctx context.Context, key string) ([]byte, bool) {
	var val []byte
	if !s.queryRow(ctx, "cache", key, `SELECT value FROM cache WHERE key = ?`, []any{key}, &val) {
		return nil, false
	}
	return unpack(val), true
}

func (s *SQLiteStore) HasCache(ctx context.Context, key string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM cache WHERE key = ?`, key).Scan(&n)
	return n > 0, err
}

func (s *SQLiteStore) SetCache(ctx context.Context, key string, val []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO cache (key, value, created_at) VALUES (?, ?, ?)`,
		key, pack(val), db.Timestamp(time.Now()))
	return err
}

func (s *SQLiteStore) ListCacheKeys(ctx context.Context, prefix string) ([]string, error) {
	return s.keys(ctx, `SELECT key FROM cache WHERE substr(key, 1, ?) = ? ORDER BY key`, prefix)
}

// --- Geodata cache ---

func (s *SQLiteStore) GetGeodataCache(ctx context.Context, key string) ([]byte, int, bool) {
	var (
		data   []byte
		radius int
	)
	if !s.queryRow(ctx, "cache_geodata", key, `SELECT data, radius_m FROM cache_geodata WHERE key = ?`, []any{key}, &data, &radius) {
		return nil, 0, false
	}
	return unpack(data), radius, true
}

func (s *SQLiteStore) SetGeodataCache(ctx context.Context, key string, val []byte, radius int, lat, lon float64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO cache_geodata (key, data, radius_m, lat, lon, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		key, pack(val), radius, lat, lon, db.Timestamp(time.Now()))
	return err
}

// GetGeodataInBounds returns the circles whose centre lies in the box, ordered by key.
func (s *SQLiteStore) GetGeodataInBounds(ctx context.Context, minLat, maxLat, minLon, maxLon float64) ([]GeodataRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key, lat, lon, radius_m, created_at FROM cache_geodata
		 WHERE lat BETWEEN ? AND ? AND lon BETWEEN ? AND ?
		 ORDER BY key`,
		minLat, maxLat, minLon, maxLon)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []GeodataRecord
	for rows.Next() {
		var (
			r       GeodataRecord
			created any
		)
		if err := rows.Scan(&r.Key, &r.Lat, &r.Lon, &r.Radius, &created); err != nil {
			return nil, err
		}
		r.CreatedAt = createdAt(created)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) ListGeodataCacheKeys(ctx context.Context, prefix string) ([]string, error) {
	return s.keys(ctx, `SELECT key FROM cache_geodata WHERE substr(key, 1, ?) = ? ORDER BY key`, prefix)
}

// createdAt reads a created_at value, which the driver may return as text or
// as a time for DATETIME columns. Unknown values give the zero time.
func createdAt(v any) time.Time {
	switch t := v.(type) {
	case time.Time:
		return t.UTC()
	case string:
		if parsed, err := time.Parse(db.TimeLayout, t); err == nil {
			return parsed
		}
		if parsed, err := time.Parse(time.RFC3339Nano, t); err == nil {
			return parsed.UTC()
		}
	case []byte:
		return createdAt(string(t))
	}
	return time.Time{}
}

// queryRow scans a single row. Read errors count as a miss.
func (s *SQLiteStore) queryRow(ctx context.Context, table, key, query string, args []any, dest ...any) bool {
	err := s.db.QueryRowContext(ctx, query, args...).Scan(dest...)
	switch {
	case err == nil:
		return true
	case errors.Is(err, sql.ErrNoRows):
		return false
	default:
		slog.Debug("Cache read failed", "table", table, "key", key, "error", err)
		return false
	}
}

// keys lists keys starting with prefix. Matching by substr keeps the
// underscores in keys from acting as LIKE wildcards.
func (s *SQLiteStore) keys(ctx context.Context, query, prefix string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query, len(prefix), prefix)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	return out, rows.Err()
}
