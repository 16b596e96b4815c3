package camera

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/project"

	"wikimap/pkg/geo"
)

const (
	// TileSize is the pixel size of one world tile at zoom 0 (vector tile maps use 512).
	TileSize = 512.0

	// mercatorHalfWorld is half the Web-Mercator world width in meters.
	mercatorHalfWorld = 20037508.342789244

	// MaxLat is the latitude limit of the Web-Mercator projection.
	MaxLat = 85.0511287798
)

// Viewport is an immutable snapshot of a north-up Web-Mercator map view.
type Viewport struct {
	center orb.Point
	zoom   float64
	width  float64
	height float64
}

// NewViewport creates a viewport centered on center (lon/lat) with the given canvas size.
func NewViewport(center orb.Point, zoom, width, height float64) Viewport {
	return Viewport{center: center, zoom: zoom, width: width, height: height}
}

// Center returns the geographic center of the view.
func (v Viewport) Center() orb.Point { return v.center }

// Zoom returns the fractional zoom level.
func (v Viewport) Zoom() float64 { return v.zoom }

// Canvas returns the canvas rectangle anchored at the origin.
func (v Viewport) Canvas() geo.Rect {
	return geo.Rect{Left: 0, Top: 0, Right: v.width, Bottom: v.height}
}

// Ready reports whether the viewport can project coordinates.
func (v Viewport) Ready() bool {
	return v.width > 0 && v.height > 0 && !math.IsNaN(v.zoom) && !math.IsInf(v.zoom, 0)
}

// Project converts lon/lat into canvas pixels.
func (v Viewport) Project(p orb.Point) (geo.ScreenPoint, error) {
	if !v.Ready() {
		return geo.ScreenPoint{}, ErrNotReady
	}
	if math.IsNaN(p.Lon()) || math.IsNaN(p.Lat()) {
		return geo.ScreenPoint{}, fmt.Errorf("project %v: invalid coordinate", p)
	}

	wx, wy := v.worldPixel(p)
	cx, cy := v.worldPixel(v.center)

	return geo.ScreenPoint{
		X: wx - cx + v.width/2,
		Y: wy - cy + v.height/2,
	}, nil
}

// Unproject converts canvas pixels into lon/lat.
func (v Viewport) Unproject(sp geo.ScreenPoint) (orb.Point, error) {
	if !v.Ready() {
		return orb.Point{}, ErrNotReady
	}

	cx, cy := v.worldPixel(v.center)
	wx := cx + sp.X - v.width/2
	wy := cy + sp.Y - v.height/2

	scale := v.worldSize() / (2 * mercatorHalfWorld)
	merc := orb.Point{
		wx/scale - mercatorHalfWorld,
		mercatorHalfWorld - wy/scale,
	}
	return project.Mercator.ToWGS84(merc), nil
}

// WithCenter returns a copy of the viewport moved to center.
func (v Viewport) WithCenter(center orb.Point) Viewport {
	v.center = center
	return v
}

// WithZoom returns a copy of the viewport at zoom.
func (v Viewport) WithZoom(zoom float64) Viewport {
	v.zoom = zoom
	return v
}

// WithSize returns a copy of the viewport with a new canvas size.
func (v Viewport) WithSize(width, height float64) Viewport {
	v.width = width
	v.height = height
	return v
}

func (v Viewport) worldSize() float64 {
	return TileSize * math.Pow(2, v.zoom)
}

// worldPixel returns the pixel position of p on the whole-world bitmap at the current zoom.
func (v Viewport) worldPixel(p orb.Point) (x, y float64) {
	lat := geo.Clamp(p.Lat(), -MaxLat, MaxLat)
	merc := project.WGS84.ToMercator(orb.Point{p.Lon(), lat})

	scale := v.worldSize() / (2 * mercatorHalfWorld)
	return (merc.X() + mercatorHalfWorld) * scale, (mercatorHalfWorld - merc.Y()) * scale
}
