package declutter

import (
	"errors"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/paulmach/orb"

	"wikimap/pkg/camera"
	"wikimap/pkg/config"
	"wikimap/pkg/geo"
	"wikimap/pkg/model"
)

// bund is the camera center used throughout the tests.
var bund = orb.Point{121.4903, 31.2400}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func testConfig() config.DeclutterConfig {
	cfg := config.DefaultDeclutterConfig()
	cfg.ZoomDelay = 0
	cfg.MoveDelay = config.Duration(time.Millisecond)
	cfg.DataDelay = config.Duration(time.Millisecond)
	cfg.WaitForIdle = false
	return cfg
}

// featureAt places a feature so that it projects to (x, y) on v.
func featureAt(v camera.Viewport, id int64, x, y float64, size int) model.Feature {
	ll, err := v.Unproject(geo.ScreenPoint{X: x, Y: y})
	if err != nil {
		panic(err)
	}
	return model.Feature{
		PageID:      id,
		Lon:         ll.Lon(),
		Lat:         ll.Lat(),
		Title:       "feature",
		ThumbWidth:  size,
		ThumbHeight: size,
	}
}

// fakeMap is an in-memory Map whose camera and features tests control.
type fakeMap struct {
	mu        sync.Mutex
	vp        camera.Viewport
	features  []model.Feature
	queryErr  error
	idle      bool
	nextID    int
	listeners map[string]map[int]func(Event)
}

func newFakeMap(zoom float64) *fakeMap {
	return &fakeMap{
		vp:        camera.NewViewport(bund, zoom, 800, 600),
		idle:      true,
		listeners: make(map[string]map[int]func(Event)),
	}
}

func (m *fakeMap) viewport() camera.Viewport {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.vp
}

func (m *fakeMap) Project(p orb.Point) (geo.ScreenPoint, error) { return m.viewport().Project(p) }
func (m *fakeMap) Unproject(p geo.ScreenPoint) (orb.Point, error) {
	return m.viewport().Unproject(p)
}
func (m *fakeMap) Center() orb.Point { return m.viewport().Center() }
func (m *fakeMap) Zoom() float64     { return m.viewport().Zoom() }
func (m *fakeMap) Canvas() geo.Rect  { return m.viewport().Canvas() }

func (m *fakeMap) Idle() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.idle
}

func (m *fakeMap) RenderedFeatures(layer string) ([]model.Feature, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.queryErr != nil {
		return nil, m.queryErr
	}
	return append([]model.Feature(nil), m.features...), nil
}

func (m *fakeMap) On(event string, fn func(Event)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	id := m.nextID
	if m.listeners[event] == nil {
		m.listeners[event] = make(map[int]func(Event))
	}
	m.listeners[event][id] = fn
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.listeners[event], id)
	}
}

func (m *fakeMap) Once(event string, fn func(Event)) func() {
	var off func()
	var once sync.Once
	off = m.On(event, func(ev Event) {
		once.Do(func() {
			off()
			fn(ev)
		})
	})
	return off
}

func (m *fakeMap) emit(ev Event) {
	m.mu.Lock()
	var fns []func(Event)
	for _, fn := range m.listeners[ev.Type] {
		fns = append(fns, fn)
	}
	m.mu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}

func (m *fakeMap) listenerCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, l := range m.listeners {
		n += len(l)
	}
	return n
}

func (m *fakeMap) setZoom(z float64) {
	m.mu.Lock()
	m.vp = m.vp.WithZoom(z)
	m.mu.Unlock()
	m.emit(Event{Type: EventZoomEnd})
}

func (m *fakeMap) setFeatures(fs ...model.Feature) {
	m.mu.Lock()
	m.features = fs
	m.mu.Unlock()
}

// fakePopup records removal and lets tests simulate a user close.
type fakePopup struct {
	mu      sync.Mutex
	id      int64
	removed bool
	onClose func()
}

func (p *fakePopup) Remove() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.removed = true
	return nil
}

func (p *fakePopup) OnClose(fn func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onClose = fn
}

func (p *fakePopup) isRemoved() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.removed
}

// userClose simulates the close control being clicked.
func (p *fakePopup) userClose() {
	p.mu.Lock()
	fn := p.onClose
	p.removed = true
	p.mu.Unlock()
	if fn != nil {
		fn()
	}
}

type fakeRenderer struct {
	mu      sync.Mutex
	created []*fakePopup
	failIDs map[int64]bool
	panicID int64
}

func newFakeRenderer() *fakeRenderer {
	return &fakeRenderer{failIDs: make(map[int64]bool)}
}

func (r *fakeRenderer) Create(f model.Feature, content string) (Popup, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.panicID != 0 && f.PageID == r.panicID {
		panic("dom exploded")
	}
	if r.failIDs[f.PageID] {
		return nil, errors.New("dom unavailable")
	}
	p := &fakePopup{id: f.PageID}
	r.created = append(r.created, p)
	return p, nil
}

// live returns the most recent popup created for id.
func (r *fakeRenderer) live(id int64) *fakePopup {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.created) - 1; i >= 0; i-- {
		if r.created[i].id == id {
			return r.created[i]
		}
	}
	return nil
}

func (r *fakeRenderer) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.created)
}

// staticFootprints is a FootprintProvider backed by a map.
type staticFootprints map[int64]geo.Rect

func (s staticFootprints) Footprint(id int64) (geo.Rect, bool) {
	r, ok := s[id]
	return r, ok
}

// stateStub is a PopupState for selector tests.
type stateStub struct {
	open       map[int64]bool
	suppressed map[int64]bool
}

func (s stateStub) IsOpen(id int64) bool       { return s.open[id] }
func (s stateStub) IsSuppressed(id int64) bool { return s.suppressed[id] }
func (s stateStub) Len() int                   { return len(s.open) }
