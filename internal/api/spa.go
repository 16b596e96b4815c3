package api

import (
	"errors"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path"
	"strings"
)

// spaFileSystem serves the built map client. Unknown paths outside /api/
// fall back to index.html so that client-side routes survive a reload.
type spaFileSystem struct {
	root http.FileSystem
}

func (s *spaFileSystem) Open(name string) (http.File, error) {
	f, err := s.root.Open(name)
	if errors.Is(err, fs.ErrNotExist) && !strings.HasPrefix(path.Clean(name), "/api/") && path.Ext(name) == "" {
		return s.root.Open("/index.html")
	}
	return f, err
}

// webHandler returns the static client handler, or nil when dir is not a directory.
func webHandler(dir string) http.Handler {
	if dir == "" {
		return nil
	}
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		slog.Info("No web client to serve", "dir", dir)
		return nil
	}
	return http.FileServer(&spaFileSystem{root: http.Dir(dir)})
}
