package declutter

import (
	"fmt"
	"log/slog"
	"sort"

	"wikimap/pkg/camera"
	"wikimap/pkg/config"
	"wikimap/pkg/geo"
	"wikimap/pkg/model"
	"wikimap/pkg/popup"
)

type openPopup struct {
	feature model.Feature
	popup   Popup
}

// Popups owns the live popup overlays, keyed by feature identity, and the
// set of identities the user closed during the current auto-mode session.
// It is not safe for concurrent use; the engine calls it from its loop only.
type Popups struct {
	renderer   Renderer
	logger     *slog.Logger
	open       map[int64]*openPopup
	suppressed map[int64]struct{}

	// dispatch runs popup close callbacks in the owner's context.
	dispatch func(func())
}

// NewPopups creates a lifecycle manager drawing through r.
func NewPopups(r Renderer, logger *slog.Logger) *Popups {
	if logger == nil {
		logger = slog.Default()
	}
	return &Popups{
		renderer:   r,
		logger:     logger,
		open:       make(map[int64]*openPopup),
		suppressed: make(map[int64]struct{}),
		dispatch:   func(fn func()) { fn() },
	}
}

// Open creates a popup for f. It is a no-op (returning false) when f has no
// identity, is already open, or was closed by the user this session.
func (p *Popups) Open(f model.Feature) bool {
	if !f.HasIdentity() || p.IsOpen(f.PageID) || p.IsSuppressed(f.PageID) {
		return false
	}

	content, err := popup.Render(&f)
	if err != nil {
		p.logger.Warn("Popup content failed", "pageid", f.PageID, "error", err)
		return false
	}

	handle, err := p.create(f, content)
	if err != nil {
		p.logger.Warn("Popup create failed", "pageid", f.PageID, "title", f.Title, "error", err)
		return false
	}

	entry := &openPopup{feature: f, popup: handle}
	p.open[f.PageID] = entry

	id := f.PageID
	handle.OnClose(func() {
		p.dispatch(func() { p.userClosed(id, entry) })
	})

	p.logger.Debug("Popup opened", "pageid", id, "title", f.Title)
	return true
}

// OpenExplicit opens f on direct user request, lifting any suppression first.
func (p *Popups) OpenExplicit(f model.Feature) bool {
	delete(p.suppressed, f.PageID)
	return p.Open(f)
}

// Close removes the popup for pageID without suppressing it.
func (p *Popups) Close(pageID int64) {
	entry, ok := p.open[pageID]
	if !ok {
		return
	}
	delete(p.open, pageID)
	p.remove(pageID, entry.popup)
}

// ClearAll removes every popup and empties the suppressed set.
func (p *Popups) ClearAll() {
	for _, id := range p.OpenIDs() {
		p.Close(id)
	}
	clear(p.suppressed)
}

// userClosed handles a close coming from the user. Stale callbacks from a
// popup that was already replaced or removed are ignored.
func (p *Popups) userClosed(pageID int64, entry *openPopup) {
	if current, ok := p.open[pageID]; !ok || current != entry {
		return
	}
	delete(p.open, pageID)
	p.suppressed[pageID] = struct{}{}
	p.logger.Debug("Popup closed by user", "pageid", pageID)
}

// IsOpen reports whether pageID has a live popup.
func (p *Popups) IsOpen(pageID int64) bool {
	_, ok := p.open[pageID]
	return ok
}

// IsSuppressed reports whether pageID was closed by the user this session.
func (p *Popups) IsSuppressed(pageID int64) bool {
	_, ok := p.suppressed[pageID]
	return ok
}

// Len returns the number of open popups.
func (p *Popups) Len() int {
	return len(p.open)
}

// OpenIDs returns the open identities in ascending order.
func (p *Popups) OpenIDs() []int64 {
	return sortedKeys(p.open)
}

// Suppressed returns the suppressed identities in ascending order.
func (p *Popups) Suppressed() []int64 {
	return sortedKeys(p.suppressed)
}

// Obstacles returns the on-screen rectangles of the open popups. The live
// footprint is used when fp knows it, the size heuristic otherwise.
// Popups that cannot be projected are left out.
func (p *Popups) Obstacles(cam camera.Camera, fp FootprintProvider, cfg *config.DeclutterConfig) []geo.Rect {
	rects := make([]geo.Rect, 0, len(p.open))
	for _, id := range p.OpenIDs() {
		entry := p.open[id]
		if fp != nil {
			if r, ok := fp.Footprint(id); ok && !r.Empty() {
				rects = append(rects, r)
				continue
			}
		}
		sp, err := cam.Project(entry.feature.Point())
		if err != nil {
			p.logger.Debug("Obstacle projection failed", "pageid", id, "error", err)
			continue
		}
		rects = append(rects, AnchoredRect(sp, EstimateSize(&entry.feature, cfg)))
	}
	return rects
}

// create calls the renderer, turning a panic into an error so that one bad
// popup cannot take down the cycle.
func (p *Popups) create(f model.Feature, content string) (handle Popup, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("renderer panic: %v", r)
		}
	}()
	handle, err = p.renderer.Create(f, content)
	if err == nil && handle == nil {
		err = fmt.Errorf("renderer returned no popup")
	}
	return handle, err
}

func (p *Popups) remove(pageID int64, handle Popup) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Warn("Popup remove panicked", "pageid", pageID, "panic", r)
		}
	}()
	if err := handle.Remove(); err != nil {
		p.logger.Warn("Popup remove failed", "pageid", pageID, "error", err)
	}
}

func sortedKeys[V any](m map[int64]V) []int64 {
	keys := make([]int64, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
