// Package camera describes the live map camera the declutter engine reads
// from, and provides a Web-Mercator viewport that mirrors the browser map.
package camera

import (
	"errors"

	"github.com/paulmach/orb"

	"wikimap/pkg/geo"
)

// ErrNotReady is returned when the camera has no usable canvas or zoom yet.
var ErrNotReady = errors.New("camera not ready")

// Camera is the read side of a live map view.
type Camera interface {
	// Project converts a lon/lat coordinate to canvas pixels.
	Project(p orb.Point) (geo.ScreenPoint, error)
	// Unproject converts canvas pixels back to lon/lat.
	Unproject(p geo.ScreenPoint) (orb.Point, error)
	Center() orb.Point
	Zoom() float64
	// Canvas returns the visible canvas rectangle in pixels.
	Canvas() geo.Rect
}
