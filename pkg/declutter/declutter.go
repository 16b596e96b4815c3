// Package declutter decides which map features get an auto-opened popup at
// high zoom, and keeps those popups from covering each other.
//
// One recompute cycle flows in one direction: camera state, candidate
// projection, greedy selection, popup lifecycle reconciliation.
package declutter

import (
	"wikimap/pkg/camera"
	"wikimap/pkg/geo"
	"wikimap/pkg/model"
)

// Map events the engine listens to.
const (
	EventZoomEnd    = "zoomend"
	EventMoveEnd    = "moveend"
	EventClick      = "click"
	EventIdle       = "idle"
	EventSourceData = "sourcedata"
)

// Event is a map event delivered to a listener.
type Event struct {
	Type    string
	Layer   string         // Layer the event is scoped to (click)
	Feature *model.Feature // Clicked feature, if any
}

// Map is the live map the engine attaches to.
type Map interface {
	camera.Camera

	// RenderedFeatures returns the features of layer currently drawn in the viewport.
	RenderedFeatures(layer string) ([]model.Feature, error)

	// On registers a listener and returns the function that removes it.
	On(event string, fn func(Event)) (off func())
	// Once registers a listener that fires at most once.
	Once(event string, fn func(Event)) (off func())

	// Idle reports whether the camera has settled (no animation in flight).
	Idle() bool
}

// Popup is a live overlay anchored to a feature.
type Popup interface {
	Remove() error
	// OnClose registers fn to run when the user closes the popup.
	OnClose(fn func())
}

// Renderer creates popup overlays.
type Renderer interface {
	Create(f model.Feature, content string) (Popup, error)
}

// FootprintProvider reports the real on-screen rectangle of an open popup
// when the renderer knows it.
type FootprintProvider interface {
	Footprint(pageID int64) (geo.Rect, bool)
}

// Mode is the engine state.
type Mode int

const (
	ModeInactive Mode = iota
	ModeAuto
)

func (m Mode) String() string {
	switch m {
	case ModeAuto:
		return "auto"
	default:
		return "inactive"
	}
}
