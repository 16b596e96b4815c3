package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/paulmach/orb"

	"wikimap/pkg/camera"
	"wikimap/pkg/config"
	"wikimap/pkg/declutter"
	"wikimap/pkg/features"
	"wikimap/pkg/geo"
	"wikimap/pkg/logging"
	"wikimap/pkg/model"
)

const writeWait = 10 * time.Second

// transport is the message connection to the browser. *websocket.Conn satisfies it.
type transport interface {
	ReadJSON(v any) error
	WriteJSON(v any) error
	SetWriteDeadline(t time.Time) error
}

// Session is one connected browser map. It mirrors the client's camera and
// rendered features, and drives a declutter engine whose popups are drawn by
// the client: the session is the engine's Map, Renderer and FootprintProvider.
type Session struct {
	id      string
	conn    transport
	cfg     config.DeclutterConfig
	fetcher *features.Fetcher
	engine  *declutter.Engine
	logger  *slog.Logger

	writeMu sync.Mutex
	closed  bool

	camMu  sync.RWMutex
	vp     camera.Viewport
	moving bool

	lmu       sync.Mutex
	nextID    int
	listeners map[string]map[int]func(declutter.Event)

	dataMu     sync.RWMutex
	features   []model.Feature
	byID       map[int64]model.Feature
	popups     map[int64]*sessionPopup
	footprints map[int64]geo.Rect

	refreshWG sync.WaitGroup
}

// NewSession creates a session speaking over conn.
func NewSession(id string, conn transport, cfg *config.DeclutterConfig, fetcher *features.Fetcher, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Session{
		id:         id,
		conn:       conn,
		cfg:        *cfg,
		fetcher:    fetcher,
		logger:     logger.With("session", id),
		listeners:  make(map[string]map[int]func(declutter.Event)),
		byID:       make(map[int64]model.Feature),
		popups:     make(map[int64]*sessionPopup),
		footprints: make(map[int64]geo.Rect),
	}
	s.engine = declutter.NewEngine(s.cfg, s, s, s.logger)
	s.engine.SetModeListener(func(m declutter.Mode) {
		s.send(outbound{Type: msgMode, Mode: m.String()})
	})
	return s
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Engine returns the session's declutter engine.
func (s *Session) Engine() *declutter.Engine { return s.engine }

// Run serves the session until the connection fails or ctx ends.
func (s *Session) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := s.engine.Attach(s); err != nil {
		return fmt.Errorf("attach engine: %w", err)
	}
	s.logger.Info("Map session started")

	err := s.readLoop(ctx)

	// Tear down: no more writes to a dead connection
	s.writeMu.Lock()
	s.closed = true
	s.writeMu.Unlock()
	cancel()
	s.refreshWG.Wait()
	s.engine.Detach()

	s.logger.Info("Map session ended", "reason", err)
	return err
}

func (s *Session) readLoop(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		var msg inbound
		if err := s.conn.ReadJSON(&msg); err != nil {
			return err
		}
		s.handle(ctx, &msg)
	}
}

func (s *Session) handle(ctx context.Context, msg *inbound) {
	logging.Trace(s.logger, "Map message", "type", msg.Type, "id", msg.ID)

	switch msg.Type {
	case msgCamera:
		s.setCamera(msg)
	case msgZoomEnd:
		s.emit(declutter.Event{Type: declutter.EventZoomEnd})
		s.refresh(ctx)
	case msgMoveEnd:
		s.emit(declutter.Event{Type: declutter.EventMoveEnd})
		s.refresh(ctx)
	case msgIdle:
		s.camMu.Lock()
		s.moving = false
		s.camMu.Unlock()
		s.emit(declutter.Event{Type: declutter.EventIdle})
	case msgClick:
		s.dataMu.RLock()
		f, ok := s.byID[msg.ID]
		s.dataMu.RUnlock()
		if ok {
			s.emit(declutter.Event{Type: declutter.EventClick, Layer: s.cfg.Layer, Feature: &f})
		}
	case msgClose:
		s.dataMu.RLock()
		p := s.popups[msg.ID]
		s.dataMu.RUnlock()
		if p != nil {
			p.closedByUser()
		}
	case msgFootprint:
		if msg.Rect == nil {
			return
		}
		s.dataMu.Lock()
		if _, open := s.popups[msg.ID]; open {
			s.footprints[msg.ID] = *msg.Rect
		}
		s.dataMu.Unlock()
	default:
		s.logger.Debug("Unknown map message", "type", msg.Type)
	}
}

func (s *Session) setCamera(msg *inbound) {
	vp := camera.NewViewport(orb.Point{msg.Center[0], msg.Center[1]}, msg.Zoom, msg.Width, msg.Height)
	s.camMu.Lock()
	s.vp = vp
	s.moving = msg.Moving
	s.camMu.Unlock()
}

// refresh updates the feature source in the background. New data is pushed
// to the client and announced to the engine as a sourcedata event.
func (s *Session) refresh(ctx context.Context) {
	if s.fetcher == nil {
		return
	}
	vp := s.viewport()
	if !vp.Ready() {
		return
	}

	s.refreshWG.Add(1)
	go func() {
		defer s.refreshWG.Done()

		fs, changed, err := s.fetcher.Update(ctx, vp)
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				s.logger.Warn("Feature refresh failed", "error", err)
			}
			return
		}
		if !changed {
			return
		}
		s.SetFeatures(fs)
		s.send(outbound{Type: msgFeatures, Features: fs})
		s.emit(declutter.Event{Type: declutter.EventSourceData})
	}()
}

// SetFeatures replaces the feature source data.
func (s *Session) SetFeatures(fs []model.Feature) {
	byID := make(map[int64]model.Feature, len(fs))
	for _, f := range fs {
		if f.HasIdentity() {
			byID[f.PageID] = f
		}
	}
	s.dataMu.Lock()
	s.features = fs
	s.byID = byID
	s.dataMu.Unlock()
}

// send writes a message unless the connection is gone.
func (s *Session) send(msg outbound) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.closed {
		return
	}
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := s.conn.WriteJSON(msg); err != nil {
		s.logger.Debug("Map write failed", "type", msg.Type, "error", err)
	}
}

func (s *Session) emit(ev declutter.Event) {
	s.lmu.Lock()
	fns := make([]func(declutter.Event), 0, len(s.listeners[ev.Type]))
	for _, fn := range s.listeners[ev.Type] {
		fns = append(fns, fn)
	}
	s.lmu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}

func (s *Session) viewport() camera.Viewport {
	s.camMu.RLock()
	defer s.camMu.RUnlock()
	return s.vp
}

// --- declutter.Map ---

func (s *Session) Project(p orb.Point) (geo.ScreenPoint, error) { return s.viewport().Project(p) }

func (s *Session) Unproject(p geo.ScreenPoint) (orb.Point, error) {
	return s.viewport().Unproject(p)
}

func (s *Session) Center() orb.Point { return s.viewport().Center() }
func (s *Session) Zoom() float64     { return s.viewport().Zoom() }
func (s *Session) Canvas() geo.Rect  { return s.viewport().Canvas() }

// Idle reports whether the client's camera has stopped animating.
func (s *Session) Idle() bool {
	s.camMu.RLock()
	defer s.camMu.RUnlock()
	return !s.moving
}

// RenderedFeatures returns the features of layer whose marker lies on the canvas.
func (s *Session) RenderedFeatures(layer string) ([]model.Feature, error) {
	if layer != s.cfg.Layer {
		return nil, nil
	}
	vp := s.viewport()
	if !vp.Ready() {
		return nil, camera.ErrNotReady
	}
	canvas := vp.Canvas()

	s.dataMu.RLock()
	defer s.dataMu.RUnlock()

	out := make([]model.Feature, 0, len(s.features))
	for i := range s.features {
		sp, err := vp.Project(s.features[i].Point())
		if err != nil {
			continue
		}
		if sp.X >= canvas.Left && sp.X <= canvas.Right && sp.Y >= canvas.Top && sp.Y <= canvas.Bottom {
			out = append(out, s.features[i])
		}
	}
	return out, nil
}

func (s *Session) On(event string, fn func(declutter.Event)) func() {
	s.lmu.Lock()
	defer s.lmu.Unlock()
	s.nextID++
	id := s.nextID
	if s.listeners[event] == nil {
		s.listeners[event] = make(map[int]func(declutter.Event))
	}
	s.listeners[event][id] = fn
	return func() {
		s.lmu.Lock()
		defer s.lmu.Unlock()
		delete(s.listeners[event], id)
	}
}

func (s *Session) Once(event string, fn func(declutter.Event)) func() {
	var once sync.Once
	var off func()
	off = s.On(event, func(ev declutter.Event) {
		once.Do(func() {
			off()
			fn(ev)
		})
	})
	return off
}

// --- declutter.Renderer ---

// Create asks the client to open a popup for f.
func (s *Session) Create(f model.Feature, content string) (declutter.Popup, error) {
	p := &sessionPopup{s: s, id: f.PageID}

	s.dataMu.Lock()
	if _, exists := s.popups[f.PageID]; exists {
		s.dataMu.Unlock()
		return nil, fmt.Errorf("popup %d already open", f.PageID)
	}
	s.popups[f.PageID] = p
	s.dataMu.Unlock()

	s.send(outbound{Type: msgOpen, ID: f.PageID, Lon: f.Lon, Lat: f.Lat, HTML: content})
	return p, nil
}

// Footprint returns the popup rectangle last measured by the client.
func (s *Session) Footprint(pageID int64) (geo.Rect, bool) {
	s.dataMu.RLock()
	defer s.dataMu.RUnlock()
	r, ok := s.footprints[pageID]
	return r, ok
}

// OpenPopups returns how many popups the client currently shows.
func (s *Session) OpenPopups() int {
	s.dataMu.RLock()
	defer s.dataMu.RUnlock()
	return len(s.popups)
}

// sessionPopup is the handle for a popup drawn by the client.
type sessionPopup struct {
	s  *Session
	id int64

	mu      sync.Mutex
	onClose func()
}

func (p *sessionPopup) detach() bool {
	p.s.dataMu.Lock()
	defer p.s.dataMu.Unlock()
	if p.s.popups[p.id] != p {
		return false
	}
	delete(p.s.popups, p.id)
	delete(p.s.footprints, p.id)
	return true
}

// Remove asks the client to take the popup down.
func (p *sessionPopup) Remove() error {
	if p.detach() {
		p.s.send(outbound{Type: msgRemove, ID: p.id})
	}
	return nil
}

func (p *sessionPopup) OnClose(fn func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onClose = fn
}

// closedByUser handles the close control being clicked on the client,
// which already removed the popup from its DOM.
func (p *sessionPopup) closedByUser() {
	if !p.detach() {
		return
	}
	p.mu.Lock()
	fn := p.onClose
	p.mu.Unlock()
	if fn != nil {
		fn()
	}
}
