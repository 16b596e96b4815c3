package api

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"wikimap/pkg/config"
	"wikimap/pkg/features"
	"wikimap/pkg/store"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// MapHandler upgrades map clients to WebSocket sessions.
type MapHandler struct {
	cfg    atomic.Pointer[config.Config]
	source features.Source
	cache  store.GeodataStore
	ctx    context.Context

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewMapHandler creates the handler. Sessions end when ctx is cancelled.
// cache may be nil.
func NewMapHandler(ctx context.Context, cfg *config.Config, source features.Source, cache store.GeodataStore) *MapHandler {
	h := &MapHandler{
		source:   source,
		cache:    cache,
		ctx:      ctx,
		sessions: make(map[string]*Session),
	}
	h.cfg.Store(cfg)
	return h
}

// SetConfig swaps the configuration used for new sessions.
func (h *MapHandler) SetConfig(cfg *config.Config) {
	h.cfg.Store(cfg)
	slog.Info("Map configuration reloaded", "zoom_threshold", cfg.Declutter.ZoomThreshold, "max_overlap_ratio", cfg.Declutter.MaxOverlapRatio)
}

// Config returns the configuration used for new sessions.
func (h *MapHandler) Config() *config.Config {
	return h.cfg.Load()
}

// SessionCount returns the number of connected maps.
func (h *MapHandler) SessionCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

func (h *MapHandler) upgrader(cfg *config.Config) *websocket.Upgrader {
	u := &websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 16384,
	}
	origins := cfg.Server.AllowedOrigins
	if len(origins) == 0 {
		return u // Same-host check
	}
	u.CheckOrigin = func(r *http.Request) bool {
		if slices.Contains(origins, "*") {
			return true
		}
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		o, err := url.Parse(origin)
		if err != nil {
			return false
		}
		return slices.Contains(origins, o.Scheme+"://"+o.Host)
	}
	return u
}

// ServeHTTP handles GET /api/map/ws.
func (h *MapHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	cfg := h.cfg.Load()

	conn, err := h.upgrader(cfg).Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied with an HTTP error
		slog.Warn("WebSocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	defer conn.Close()

	conn.SetReadLimit(64 * 1024)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	fetcher := features.NewFetcher(h.source, h.cache, cfg.Fetch, cfg.Wikipedia.Lang, cfg.Wikipedia.Limit)
	s := NewSession(uuid.NewString(), conn, &cfg.Declutter, fetcher, slog.Default())

	h.mu.Lock()
	h.sessions[s.ID()] = s
	h.mu.Unlock()
	defer func() {
		h.mu.Lock()
		delete(h.sessions, s.ID())
		h.mu.Unlock()
	}()

	ctx, cancel := context.WithCancel(h.ctx)
	defer cancel()
	go h.keepAlive(ctx, conn)

	_ = s.Run(ctx)
}

// keepAlive pings the client so that dead connections time out.
// Each pong extends the read deadline.
func (h *MapHandler) keepAlive(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			// Unblock the read loop
			_ = conn.SetReadDeadline(time.Now())
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
