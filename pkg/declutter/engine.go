package declutter

import (
	"errors"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"wikimap/pkg/config"
	"wikimap/pkg/debounce"
)

// ErrAttached is returned by Attach when the engine already drives a map.
var ErrAttached = errors.New("engine already attached")

// Engine is the mode/trigger controller. It switches between inactive and
// auto mode on zoom, and while in auto mode it re-runs the placement cycle
// (debounced) on camera movement and data arrival.
//
// All engine state is confined to a single loop goroutine: map callbacks,
// debounce expiries and public calls are queued and run there one at a time.
type Engine struct {
	cfg        config.DeclutterConfig
	logger     *slog.Logger
	popups     *Popups
	footprints FootprintProvider
	debounce   *debounce.Debouncer
	onMode     func(Mode)

	// Mirror of mode for Mode(), written only by the loop.
	current atomic.Int32

	// Loop-confined state.
	m       Map
	mode    Mode
	offs    []func()
	idleOff func()

	// Queue feeding the loop.
	qmu     sync.Mutex
	queue   []func()
	running bool
	wake    chan struct{}
	done    chan struct{}
	stopped chan struct{}
}

// NewEngine creates an engine drawing popups through r.
// fp may be nil, in which case obstacle footprints are always estimated.
func NewEngine(cfg config.DeclutterConfig, r Renderer, fp FootprintProvider, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "declutter")

	e := &Engine{
		cfg:        cfg,
		logger:     logger,
		popups:     NewPopups(r, logger),
		footprints: fp,
		debounce:   debounce.New(),
	}
	// Close callbacks arrive from the renderer's goroutine; run them in the loop.
	e.popups.dispatch = func(fn func()) { e.post(fn) }
	return e
}

// SetModeListener registers fn to be called on every mode change.
// Must be called before Attach.
//
// fn runs on the loop goroutine. It may call Mode, but it must not call
// anything that goes through Do (OpenIDs, Suppressed, Recompute, Detach):
// Do waits for the loop, which is busy running fn.
func (e *Engine) SetModeListener(fn func(Mode)) {
	e.onMode = fn
}

// Attach registers the engine's listeners on m and starts the event loop.
// If the camera is already above the zoom threshold, auto mode is entered at once.
func (e *Engine) Attach(m Map) error {
	e.qmu.Lock()
	if e.running {
		e.qmu.Unlock()
		return ErrAttached
	}
	e.running = true
	e.wake = make(chan struct{}, 1)
	e.done = make(chan struct{})
	e.stopped = make(chan struct{})
	wake, done, stopped := e.wake, e.done, e.stopped
	e.qmu.Unlock()

	go e.loop(wake, done, stopped)

	e.Do(func() {
		e.m = m
		e.offs = []func(){
			m.On(EventZoomEnd, func(Event) { e.post(e.handleZoomEnd) }),
			m.On(EventMoveEnd, func(Event) { e.post(e.handleMoveEnd) }),
			m.On(EventSourceData, func(Event) { e.post(e.handleSourceData) }),
			m.On(EventClick, func(ev Event) { e.post(func() { e.handleClick(ev) }) }),
		}
		e.handleZoomEnd()
	})
	return nil
}

// Detach tears the engine down: listeners are removed, the pending recompute
// is cancelled and every popup is closed. When Detach returns no callback
// can reach the engine any more. Detaching a detached engine is a no-op.
func (e *Engine) Detach() {
	e.qmu.Lock()
	if !e.running {
		e.qmu.Unlock()
		return
	}
	e.qmu.Unlock()

	e.Do(func() {
		for _, off := range e.offs {
			off()
		}
		e.offs = nil
		e.cancelIdle()
		e.debounce.Cancel()
		e.popups.ClearAll()
		e.setMode(ModeInactive)
		e.m = nil
	})

	e.qmu.Lock()
	e.running = false
	close(e.done)
	stopped := e.stopped
	e.qmu.Unlock()

	<-stopped
}

// Do runs fn on the loop and waits for it. Without a running loop fn runs
// inline once the previous loop has drained. Calling Do from the loop
// goroutine deadlocks.
func (e *Engine) Do(fn func()) {
	finished := make(chan struct{})
	if e.post(func() {
		defer close(finished)
		fn()
	}) {
		<-finished
		return
	}

	e.qmu.Lock()
	stopped := e.stopped
	e.qmu.Unlock()
	if stopped != nil {
		<-stopped
	}
	fn()
}

// Recompute runs one placement cycle now, bypassing the debounce.
func (e *Engine) Recompute() {
	e.Do(e.recompute)
}

// Mode returns the current mode. It does not go through the loop, so it is
// safe from a mode listener.
func (e *Engine) Mode() Mode {
	return Mode(e.current.Load())
}

// OpenIDs returns the identities with an open popup, ascending.
func (e *Engine) OpenIDs() []int64 {
	var ids []int64
	e.Do(func() { ids = e.popups.OpenIDs() })
	return ids
}

// Suppressed returns the identities closed by the user this session, ascending.
func (e *Engine) Suppressed() []int64 {
	var ids []int64
	e.Do(func() { ids = e.popups.Suppressed() })
	return ids
}

// post queues fn for the loop. It reports false when the loop is not running.
func (e *Engine) post(fn func()) bool {
	e.qmu.Lock()
	if !e.running {
		e.qmu.Unlock()
		return false
	}
	e.queue = append(e.queue, fn)
	wake := e.wake
	e.qmu.Unlock()

	select {
	case wake <- struct{}{}:
	default:
	}
	return true
}

func (e *Engine) loop(wake, done <-chan struct{}, stopped chan struct{}) {
	defer close(stopped)
	for {
		select {
		case <-done:
			// Callers blocked in Do must not hang; run what is left.
			e.drain()
			return
		case <-wake:
			e.drain()
		}
	}
}

func (e *Engine) drain() {
	e.qmu.Lock()
	batch := e.queue
	e.queue = nil
	e.qmu.Unlock()

	for _, fn := range batch {
		e.run(fn)
	}
}

// run executes one queued callback; a panic is logged and the loop keeps going.
func (e *Engine) run(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("Declutter callback panicked", "panic", r, "stack", string(debug.Stack()))
		}
	}()
	fn()
}

func (e *Engine) handleZoomEnd() {
	if e.m == nil {
		return
	}
	zoom := e.m.Zoom()

	if zoom > e.cfg.ZoomThreshold {
		if e.mode != ModeAuto {
			e.setMode(ModeAuto)
			e.schedule(0)
			return
		}
		e.schedule(time.Duration(e.cfg.ZoomDelay))
		return
	}

	if e.mode == ModeAuto {
		e.debounce.Cancel()
		e.cancelIdle()
		e.popups.ClearAll()
		e.setMode(ModeInactive)
	}
}

func (e *Engine) handleMoveEnd() {
	if e.mode == ModeAuto {
		e.schedule(time.Duration(e.cfg.MoveDelay))
	}
}

func (e *Engine) handleSourceData() {
	if e.mode == ModeAuto {
		e.schedule(time.Duration(e.cfg.DataDelay))
	}
}

// handleClick opens the clicked feature directly; explicit intent skips the selector.
func (e *Engine) handleClick(ev Event) {
	if e.mode != ModeAuto || ev.Feature == nil {
		return
	}
	if ev.Layer != "" && ev.Layer != e.cfg.Layer {
		return
	}
	e.popups.OpenExplicit(*ev.Feature)
}

func (e *Engine) setMode(m Mode) {
	if e.mode == m {
		return
	}
	e.logger.Info("Declutter mode changed", "from", e.mode, "to", m)
	e.mode = m
	e.current.Store(int32(m))
	if e.onMode != nil {
		e.onMode(m)
	}
}

// schedule replaces the pending recompute with one firing after delay.
func (e *Engine) schedule(delay time.Duration) {
	e.debounce.Schedule(delay, func() { e.post(e.fire) })
}

// fire runs the debounced recompute, deferring it to the next idle event when
// the camera is still animating so that rectangles match the settled view.
func (e *Engine) fire() {
	if e.mode != ModeAuto || e.m == nil {
		return
	}
	if e.cfg.WaitForIdle && !e.m.Idle() {
		if e.idleOff == nil {
			e.idleOff = e.m.Once(EventIdle, func(Event) {
				e.post(func() {
					e.idleOff = nil
					e.recompute()
				})
			})
		}
		return
	}
	e.recompute()
}

func (e *Engine) cancelIdle() {
	if e.idleOff != nil {
		e.idleOff()
		e.idleOff = nil
	}
}

// recompute is one placement cycle. Any camera failure abandons the cycle
// without touching popup state.
func (e *Engine) recompute() {
	if e.mode != ModeAuto || e.m == nil {
		return
	}

	features, err := e.m.RenderedFeatures(e.cfg.Layer)
	if err != nil {
		e.logger.Warn("Query rendered features failed", "error", err)
		return
	}

	candidates, err := Project(e.m, features, &e.cfg)
	if err != nil {
		e.logger.Warn("Candidate projection failed", "error", err)
		return
	}

	obstacles := e.popups.Obstacles(e.m, e.footprints, &e.cfg)
	selected := Select(candidates, obstacles, e.m.Canvas(), e.popups, &e.cfg)

	opened := 0
	for i := range selected {
		if e.popups.Open(selected[i].Feature) {
			opened++
		}
	}

	e.logger.Debug("Declutter cycle",
		"features", len(features),
		"candidates", len(candidates),
		"obstacles", len(obstacles),
		"opened", opened,
		"open", e.popups.Len(),
	)
}
