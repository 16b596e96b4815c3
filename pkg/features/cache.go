package features

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"

	"wikimap/pkg/geo"
)

// bucketBase is the smallest cached radius; larger buckets double it.
const bucketBase = 100.0

// Area is a cacheable geosearch request: a map tile plus a radius bucket.
// Every camera center inside the tile with a radius up to Radius is served
// by searching around Center with SearchRadius.
type Area struct {
	Key          string
	Tile         maptile.Tile
	Center       orb.Point
	Radius       float64 // Bucket radius
	SearchRadius float64 // Bucket radius widened by the tile's half diagonal
}

// AreaFor maps a search around center onto its cache area.
// The search radius never exceeds maxRadius.
func AreaFor(lang string, center orb.Point, radius float64, zoom int, maxRadius float64) Area {
	tile := maptile.At(center, maptile.Zoom(zoom))
	bound := tile.Bound()
	tc := bound.Center()
	halfDiag := geo.Distance(tc, bound.Max)

	bucket := radiusBucket(radius)
	r := bucketBase * math.Pow(2, float64(bucket))

	return Area{
		Key:          fmt.Sprintf("gs_%s_%d_%d_%d_r%d", lang, tile.Z, tile.X, tile.Y, bucket),
		Tile:         tile,
		Center:       tc,
		Radius:       r,
		SearchRadius: geo.Clamp(r+halfDiag, 0, maxRadius),
	}
}

// radiusBucket returns the smallest b with bucketBase*2^b >= radius.
func radiusBucket(radius float64) int {
	if radius <= bucketBase || math.IsNaN(radius) {
		return 0
	}
	return int(math.Ceil(math.Log2(radius / bucketBase)))
}
