package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"wikimap/pkg/logging"
	"wikimap/pkg/version"
)

// NewServer creates and configures the HTTP server.
// features and cache may be nil; shutdown is called by POST /api/shutdown.
func NewServer(addr string, features *FeaturesHandler, cache *CacheHandler, stats *StatsHandler, maps *MapHandler, shutdown func()) *http.Server {
	cfgH := NewConfigHandler(maps)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", handleHealth)
	mux.HandleFunc("GET /api/version", handleVersion)
	mux.Handle("GET /api/stats", stats)
	mux.HandleFunc("GET /api/config", cfgH.HandleGet)
	mux.HandleFunc("GET /api/log/latest", handleLatestLog)
	mux.HandleFunc("GET /api/log", handleRecentLogs)
	mux.HandleFunc("POST /api/shutdown", shutdownHandler(shutdown))

	// Optional data endpoints
	if features != nil {
		mux.HandleFunc("GET /api/features", features.HandleGet)
	}
	if cache != nil {
		mux.Handle("GET /api/cache", cache)
	}

	// Map session (WebSocket) and the web client that opens it
	mux.Handle("GET /api/map/ws", maps)
	if web := webHandler(maps.Config().Server.WebDir); web != nil {
		mux.Handle("GET /", web)
	}

	return &http.Server{
		Addr:        addr,
		Handler:     requestLog(mux),
		ReadTimeout: 15 * time.Second,
		// No WriteTimeout: map sessions are long-lived and set their own deadlines
		IdleTimeout: 60 * time.Second,
	}
}

// requestLog records every request in the request log.
func requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		if logging.RequestLogger != nil {
			logging.RequestLogger.Info("Request", "method", r.Method, "path", r.URL.Path, "remote", r.RemoteAddr, "duration", time.Since(start))
		}
	})
}

// shutdownHandler answers first and calls shutdown once the reply had time to flush.
func shutdownHandler(shutdown func()) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		slog.Info("Graceful shutdown initiated via API")
		if _, err := w.Write([]byte("Shutting down...")); err != nil {
			slog.Error("Failed to write shutdown response", "error", err)
		}
		time.AfterFunc(100*time.Millisecond, shutdown)
	}
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("OK")); err != nil {
		slog.Error("Failed to write health response", "error", err)
	}
}

func handleVersion(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if _, err := fmt.Fprintf(w, `{"version": "%s"}`, version.Version); err != nil {
		slog.Error("Failed to write version response", "error", err)
	}
}
