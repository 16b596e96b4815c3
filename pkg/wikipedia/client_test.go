package wikipedia

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wikimap/pkg/cache"
	"wikimap/pkg/request"
	"wikimap/pkg/tracker"
)

const bundResponse = `{
  "batchcomplete": true,
  "query": {
    "pages": [
      {
        "pageid": 2002,
        "title": "Peace Hotel",
        "index": 2,
        "fullurl": "https://en.wikipedia.org/wiki/Peace_Hotel",
        "coordinates": [{"lat": 31.2405, "lon": 121.4905, "primary": true, "globe": "earth"}]
      },
      {
        "pageid": 1001,
        "title": "The Bund",
        "index": 1,
        "fullurl": "https://en.wikipedia.org/wiki/The_Bund",
        "coordinates": [{"lat": 31.2400, "lon": 121.4903, "primary": true, "globe": "earth"}],
        "thumbnail": {"source": "https://upload.wikimedia.org/bund.jpg", "width": 320, "height": 213}
      },
      {
        "pageid": 3003,
        "title": "Unplaced article",
        "index": 3
      }
    ]
  }
}`

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *tracker.Tracker) {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)

	tr := tracker.New()
	rc := request.New(cache.NewMemory(), tr, request.Options{
		Timeout:   5 * time.Second,
		BaseDelay: time.Millisecond,
	})
	c := NewClient(rc, "en", 320)
	c.APIEndpoint = ts.URL
	return c, tr
}

func TestGeoSearch(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "geosearch", q.Get("generator"))
		assert.Equal(t, "31.240000|121.490300", q.Get("ggscoord"))
		assert.Equal(t, "1500", q.Get("ggsradius"))
		assert.Equal(t, "100", q.Get("ggslimit"))
		assert.Equal(t, "320", q.Get("pithumbsize"))
		assert.Equal(t, "2", q.Get("formatversion"))
		_, _ = w.Write([]byte(bundResponse))
	})

	got, err := c.GeoSearch(context.Background(), 31.24, 121.4903, 1500, 100)
	require.NoError(t, err)
	require.Len(t, got, 2)

	// Generator index order, unplaced page dropped
	assert.Equal(t, int64(1001), got[0].PageID)
	assert.Equal(t, "The Bund", got[0].Title)
	assert.Equal(t, "https://en.wikipedia.org/wiki/The_Bund", got[0].URL)
	assert.Equal(t, 320, got[0].ThumbWidth)
	assert.Equal(t, 213, got[0].ThumbHeight)
	assert.InDelta(t, 121.4903, got[0].Lon, 1e-9)

	assert.Equal(t, int64(2002), got[1].PageID)
	assert.Empty(t, got[1].ThumbURL)
	assert.Zero(t, got[1].ThumbWidth)
}

func TestGeoSearch_ClampsRadiusAndLimit(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "10000", r.URL.Query().Get("ggsradius"))
		assert.Equal(t, "500", r.URL.Query().Get("ggslimit"))
		_, _ = w.Write([]byte(`{"batchcomplete":true}`))
	})

	got, err := c.GeoSearch(context.Background(), 31.24, 121.49, 25000, 0)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestGeoSearch_ZeroResultsTracked(t *testing.T) {
	c, tr := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"batchcomplete":true}`))
	})

	_, err := c.GeoSearch(context.Background(), 0, 0, 500, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), tr.Snapshot()["wikipedia"].APIZeroResult)
}

func TestGeoSearch_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
		code int
	}{
		{"API error", `{"error":{"code":"invalid-coord","info":"Invalid coordinate provided"}}`, http.StatusOK},
		{"Malformed JSON", `{"query":`, http.StatusOK},
		{"Bad request", ``, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.code)
				_, _ = w.Write([]byte(tt.body))
			})
			_, err := c.GeoSearch(context.Background(), 31.24, 121.49, 500, 10)
			assert.Error(t, err)
		})
	}
}

func TestNewClient_Endpoint(t *testing.T) {
	c := NewClient(nil, "", 0)
	assert.Equal(t, "https://en.wikipedia.org/w/api.php", c.endpoint())

	c = NewClient(nil, "zh", 0)
	assert.Equal(t, "https://zh.wikipedia.org/w/api.php", c.endpoint())
}
