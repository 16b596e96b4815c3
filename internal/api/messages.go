package api

import (
	"wikimap/pkg/geo"
	"wikimap/pkg/model"
)

// Client -> server message types.
const (
	msgCamera    = "camera"
	msgZoomEnd   = "zoomend"
	msgMoveEnd   = "moveend"
	msgIdle      = "idle"
	msgClick     = "click"
	msgClose     = "close"
	msgFootprint = "footprint"
)

// Server -> client message types.
const (
	msgFeatures = "features"
	msgOpen     = "open"
	msgRemove   = "remove"
	msgMode     = "mode"
)

// inbound is a message from the browser map. Fields are used per type:
// camera uses Center/Zoom/Width/Height/Moving, click and close use ID,
// footprint uses ID and Rect.
type inbound struct {
	Type   string     `json:"type"`
	Center [2]float64 `json:"center"` // lon, lat
	Zoom   float64    `json:"zoom"`
	Width  float64    `json:"width"`
	Height float64    `json:"height"`
	Moving bool       `json:"moving"`
	ID     int64      `json:"id"`
	Rect   *geo.Rect  `json:"rect,omitempty"`
}

// outbound is a command for the browser map.
type outbound struct {
	Type     string          `json:"type"`
	ID       int64           `json:"id,omitempty"`
	Lon      float64         `json:"lon,omitempty"`
	Lat      float64         `json:"lat,omitempty"`
	HTML     string          `json:"html,omitempty"`
	Mode     string          `json:"mode,omitempty"`
	Features []model.Feature `json:"features,omitempty"`
}
