package camera

import (
	"math"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wikimap/pkg/geo"
)

// The Bund, Shanghai.
var bund = orb.Point{121.4903, 31.2400}

func TestViewport_CenterProjectsToCanvasMiddle(t *testing.T) {
	v := NewViewport(bund, 18, 800, 600)

	sp, err := v.Project(bund)
	require.NoError(t, err)
	assert.InDelta(t, 400, sp.X, 1e-6)
	assert.InDelta(t, 300, sp.Y, 1e-6)
}

func TestViewport_RoundTrip(t *testing.T) {
	v := NewViewport(bund, 20.5, 1024, 768)

	points := []geo.ScreenPoint{{X: 0, Y: 0}, {X: 1024, Y: 768}, {X: 13.5, Y: 700.25}}
	for _, sp := range points {
		ll, err := v.Unproject(sp)
		require.NoError(t, err)

		back, err := v.Project(ll)
		require.NoError(t, err)
		assert.InDelta(t, sp.X, back.X, 1e-3)
		assert.InDelta(t, sp.Y, back.Y, 1e-3)
	}
}

func TestViewport_Orientation(t *testing.T) {
	v := NewViewport(bund, 16, 800, 600)

	north, err := v.Project(orb.Point{bund.Lon(), bund.Lat() + 0.001})
	require.NoError(t, err)
	east, err := v.Project(orb.Point{bund.Lon() + 0.001, bund.Lat()})
	require.NoError(t, err)

	assert.Less(t, north.Y, 300.0, "north must be up")
	assert.Greater(t, east.X, 400.0, "east must be right")
}

func TestViewport_ZoomDoublesScale(t *testing.T) {
	p := orb.Point{bund.Lon() + 0.0005, bund.Lat()}

	a, err := NewViewport(bund, 18, 800, 600).Project(p)
	require.NoError(t, err)
	b, err := NewViewport(bund, 19, 800, 600).Project(p)
	require.NoError(t, err)

	assert.InDelta(t, 2*(a.X-400), b.X-400, 1e-6)
}

func TestViewport_NotReady(t *testing.T) {
	tests := []struct {
		name string
		v    Viewport
	}{
		{"zero canvas", NewViewport(bund, 18, 0, 0)},
		{"nan zoom", NewViewport(bund, math.NaN(), 800, 600)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.v.Project(bund)
			assert.ErrorIs(t, err, ErrNotReady)
			_, err = tt.v.Unproject(geo.ScreenPoint{})
			assert.ErrorIs(t, err, ErrNotReady)
		})
	}
}
