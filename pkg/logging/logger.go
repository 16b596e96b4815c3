package logging

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"wikimap/pkg/config"
)

// RequestLogger writes the HTTP access log. Nil until Init runs.
var RequestLogger *slog.Logger

// Init installs the default server logger (file, stdout and the capture ring)
// and the file-only request logger. The returned func closes both files.
func Init(cfg *config.LogConfig) (func(), error) {
	var files []io.Closer
	closeAll := func() {
		for _, f := range files {
			_ = f.Close()
		}
	}

	server, f, err := serverHandler(cfg.Server)
	if err != nil {
		return nil, fmt.Errorf("server log: %w", err)
	}
	files = append(files, f)

	requests, f, err := fileHandler(cfg.Requests)
	if err != nil {
		closeAll()
		return nil, fmt.Errorf("request log: %w", err)
	}
	files = append(files, f)

	slog.SetDefault(slog.New(server))
	SetTrace(strings.EqualFold(cfg.Server.Level, "TRACE"))
	RequestLogger = slog.New(requests)
	return closeAll, nil
}

// ParseLevel maps a config level name onto a slog level, INFO when unknown.
// TRACE logs at DEBUG; Init additionally enables Trace.
func ParseLevel(name string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "TRACE", "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// fileHandler keeps the previous run's file as <path>.old and starts a fresh one.
func fileHandler(s config.LogSettings) (slog.Handler, *os.File, error) {
	f, err := openFresh(s.Path)
	if err != nil {
		return nil, nil, err
	}
	level := ParseLevel(s.Level)
	return slog.NewTextHandler(f, &slog.HandlerOptions{
		Level:     level,
		AddSource: level <= slog.LevelDebug,
	}), f, nil
}

// serverHandler adds stdout and the capture ring to the file sink. Both only
// see INFO and above.
func serverHandler(s config.LogSettings) (slog.Handler, *os.File, error) {
	file, f, err := fileHandler(s)
	if err != nil {
		return nil, nil, err
	}
	quiet := &slog.HandlerOptions{Level: max(ParseLevel(s.Level), slog.LevelInfo)}
	return fanout{
		file,
		slog.NewTextHandler(os.Stdout, quiet),
		slog.NewTextHandler(GlobalLogCapture, &slog.HandlerOptions{Level: slog.LevelInfo}),
	}, f, nil
}

func openFresh(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	rotate(path)
	return os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
}

func rotate(path string) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return
	}
	old := path + ".old"
	_ = os.Remove(old)
	_ = os.Rename(path, old)
}
