package geo

import (
	"math"

	"github.com/paulmach/orb"
)

// EarthRadius is the mean earth radius in meters used by the haversine formula.
const EarthRadius = 6371000

// Haversine calculates the great-circle distance between two coordinates in meters.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := (lat2 - lat1) * (math.Pi / 180.0)
	dLon := (lon2 - lon1) * (math.Pi / 180.0)
	rLat1 := lat1 * (math.Pi / 180.0)
	rLat2 := lat2 * (math.Pi / 180.0)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Sin(dLon/2)*math.Sin(dLon/2)*math.Cos(rLat1)*math.Cos(rLat2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return EarthRadius * c
}

// Distance calculates the Haversine distance between two lon/lat points in meters.
func Distance(p1, p2 orb.Point) float64 {
	return Haversine(p1.Lat(), p1.Lon(), p2.Lat(), p2.Lon())
}

// ScreenPoint is a position in canvas pixels, origin top-left, y growing downwards.
type ScreenPoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// DistanceTo returns the Euclidean pixel distance between two screen points.
func (p ScreenPoint) DistanceTo(o ScreenPoint) float64 {
	return math.Hypot(p.X-o.X, p.Y-o.Y)
}
