package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wikimap/pkg/db"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	d, err := db.Init(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	s := NewSQLiteStore(d)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestResponseCache(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	ok, err := s.HasCache(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)
	_, hit := s.GetCache(ctx, "missing")
	assert.False(t, hit)

	require.NoError(t, s.SetCache(ctx, "https://en.wikipedia.org/w/api.php?ggscoord=31.24|121.49", []byte(`{"query":{}}`)))
	ok, err = s.HasCache(ctx, "https://en.wikipedia.org/w/api.php?ggscoord=31.24|121.49")
	require.NoError(t, err)
	assert.True(t, ok)

	// cache.Cacher view of the same table
	require.NoError(t, s.Set("gs_page", []byte("v1")))
	require.NoError(t, s.Set("gs_page", []byte("v2")))
	got, hit := s.Get("gs_page")
	assert.True(t, hit)
	assert.Equal(t, "v2", string(got))
}

func TestListKeys_PrefixIsLiteral(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	for _, k := range []string{"gs_en_1", "gs_en_2", "gsXen_3", "other"} {
		require.NoError(t, s.SetCache(ctx, k, []byte("x")))
		require.NoError(t, s.SetGeodataCache(ctx, k, []byte("[]"), 800, 31.24, 121.49))
	}

	keys, err := s.ListCacheKeys(ctx, "gs_")
	require.NoError(t, err)
	assert.Equal(t, []string{"gs_en_1", "gs_en_2"}, keys)

	keys, err = s.ListGeodataCacheKeys(ctx, "gs_en_")
	require.NoError(t, err)
	assert.Equal(t, []string{"gs_en_1", "gs_en_2"}, keys)

	keys, err = s.ListGeodataCacheKeys(ctx, "")
	require.NoError(t, err)
	assert.Len(t, keys, 4)
}

func TestGeodataCache(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, _, found := s.GetGeodataCache(ctx, "gs_en_16_1_1_r800")
	assert.False(t, found)

	payload := make([]byte, 10000)
	require.NoError(t, s.SetGeodataCache(ctx, "gs_en_16_1_1_r800", payload, 1300, 31.24, 121.49))
	data, radius, found := s.GetGeodataCache(ctx, "gs_en_16_1_1_r800")
	require.True(t, found)
	assert.Equal(t, 1300, radius)
	assert.Equal(t, payload, data)

	// Overwrite replaces data and radius
	require.NoError(t, s.SetGeodataCache(ctx, "gs_en_16_1_1_r800", []byte("[]"), 900, 31.24, 121.49))
	data, radius, _ = s.GetGeodataCache(ctx, "gs_en_16_1_1_r800")
	assert.Equal(t, "[]", string(data))
	assert.Equal(t, 900, radius)
}

func TestGetGeodataInBounds(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	// Bund, Yuyuan, Pudong airport
	entries := []GeodataRecord{
		{Key: "gs_en_a", Lat: 31.2400, Lon: 121.4903, Radius: 800},
		{Key: "gs_en_b", Lat: 31.2272, Lon: 121.4921, Radius: 1600},
		{Key: "gs_zh_c", Lat: 31.1443, Lon: 121.8083, Radius: 3200},
	}
	before := time.Now().UTC().Add(-time.Second).Truncate(time.Second)
	for _, e := range entries {
		require.NoError(t, s.SetGeodataCache(ctx, e.Key, []byte("[]"), e.Radius, e.Lat, e.Lon))
	}

	got, err := s.GetGeodataInBounds(ctx, 31.2, 31.3, 121.4, 121.6)
	require.NoError(t, err)
	require.Len(t, got, 2)
	for i, r := range got {
		assert.Equal(t, entries[i].Key, r.Key)
		assert.Equal(t, entries[i].Radius, r.Radius)
		assert.InDelta(t, entries[i].Lat, r.Lat, 1e-9)
		assert.False(t, r.CreatedAt.Before(before), "created_at %v", r.CreatedAt)
	}
}

func TestCreatedAt(t *testing.T) {
	want := time.Date(2026, 10, 15, 9, 30, 0, 0, time.UTC)
	assert.Equal(t, want, createdAt("2026-10-15 09:30:00"))
	assert.Equal(t, want, createdAt([]byte("2026-10-15 09:30:00")))
	assert.Equal(t, want, createdAt("2026-10-15T09:30:00Z"))
	assert.Equal(t, want, createdAt(want.In(time.FixedZone("CST", 8*3600))))
	assert.True(t, createdAt(nil).IsZero())
	assert.True(t, createdAt("yesterday").IsZero())
}
