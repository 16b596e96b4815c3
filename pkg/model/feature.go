package model

import "github.com/paulmach/orb"

// Feature is a point on the heritage map, typically a geotagged Wikipedia article.
type Feature struct {
	PageID      int64   `json:"pageid"` // Stable identity, 0 means none
	Lon         float64 `json:"lon"`
	Lat         float64 `json:"lat"`
	Title       string  `json:"title"`
	URL         string  `json:"url"`
	ThumbURL    string  `json:"thumb_url,omitempty"`
	ThumbWidth  int     `json:"thumb_width,omitempty"`
	ThumbHeight int     `json:"thumb_height,omitempty"`
}

// HasIdentity reports whether the feature can be tracked across recomputes.
func (f *Feature) HasIdentity() bool {
	return f.PageID != 0
}

// Point returns the feature location as an orb point (lon, lat).
func (f *Feature) Point() orb.Point {
	return orb.Point{f.Lon, f.Lat}
}
