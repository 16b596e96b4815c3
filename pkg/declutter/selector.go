package declutter

import (
	"wikimap/pkg/config"
	"wikimap/pkg/geo"
)

// PopupState is what the selector needs to know about currently open popups.
type PopupState interface {
	IsOpen(pageID int64) bool
	IsSuppressed(pageID int64) bool
	Len() int
}

// Select greedily picks the candidates to open this cycle.
//
// Candidates are visited in order (nearest to the center first). A candidate
// is accepted when it is neither suppressed nor already open, at least
// MinVisiblePx of it lies inside the viewport in each direction, and its
// overlap ratio with every obstacle stays below MaxOverlapRatio.
// Accepted rectangles become obstacles for the rest of the pass.
func Select(candidates []Candidate, obstacles []geo.Rect, viewport geo.Rect, state PopupState, cfg *config.DeclutterConfig) []Candidate {
	placed := make([]geo.Rect, len(obstacles), len(obstacles)+len(candidates))
	copy(placed, obstacles)

	budget := -1
	if cfg.MaxOpen > 0 {
		budget = cfg.MaxOpen - state.Len()
		if budget <= 0 {
			return nil
		}
	}

	var selected []Candidate
	for _, c := range candidates {
		id := c.Feature.PageID
		if state.IsSuppressed(id) || state.IsOpen(id) {
			continue
		}
		if !visibleEnough(c.Rect, viewport, cfg.MinVisiblePx) {
			continue
		}
		if overlapsAny(c.Rect, placed, cfg.MaxOverlapRatio) {
			continue
		}

		placed = append(placed, c.Rect)
		selected = append(selected, c)

		if budget > 0 && len(selected) >= budget {
			break
		}
	}
	return selected
}

// visibleEnough allows partial overflow off-screen as long as some part shows.
func visibleEnough(r, viewport geo.Rect, minPx float64) bool {
	vis := r.Intersect(viewport)
	if vis.Empty() {
		return false
	}
	return vis.Width() >= minPx && vis.Height() >= minPx && vis.Area() >= minPx*minPx
}

func overlapsAny(r geo.Rect, placed []geo.Rect, maxRatio float64) bool {
	for _, p := range placed {
		ratio := geo.OverlapRatio(r, p)
		if ratio > 0 && ratio >= maxRatio {
			return true
		}
	}
	return false
}
