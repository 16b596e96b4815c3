package geo

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
)

// Unprojector converts canvas pixels back into geographic coordinates.
// camera.Camera satisfies it.
type Unprojector interface {
	Unproject(p ScreenPoint) (orb.Point, error)
	Center() orb.Point
	Canvas() Rect
}

// RadiusOptions bounds the dynamic fetch radius.
type RadiusOptions struct {
	Padding float64 // meters added on top of the farthest corner
	Min     float64
	Max     float64
}

// DefaultRadiusOptions matches the Wikipedia geosearch limits.
func DefaultRadiusOptions() RadiusOptions {
	return RadiusOptions{Padding: 50, Min: 100, Max: 10000}
}

// DynamicRadius returns the search radius in meters that covers the whole viewport.
// It unprojects the four canvas corners, takes the largest haversine distance
// to the camera center, adds padding and clamps to [Min, Max].
func DynamicRadius(cam Unprojector, opts RadiusOptions) (float64, error) {
	canvas := cam.Canvas()
	center := cam.Center()

	corners := []ScreenPoint{
		{X: canvas.Left, Y: canvas.Top},
		{X: canvas.Right, Y: canvas.Top},
		{X: canvas.Right, Y: canvas.Bottom},
		{X: canvas.Left, Y: canvas.Bottom},
	}

	maxDist := 0.0
	for _, c := range corners {
		ll, err := cam.Unproject(c)
		if err != nil {
			return 0, fmt.Errorf("unproject corner: %w", err)
		}
		if d := Distance(center, ll); d > maxDist {
			maxDist = d
		}
	}

	return Clamp(maxDist+opts.Padding, opts.Min, opts.Max), nil
}

// Clamp limits v to [lo, hi]. NaN clamps to lo.
func Clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) || v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
