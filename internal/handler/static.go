package handler

import (
	"errors"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/sakif/wedchart/internal/apperror"
)

// HandleStatic serves the built page bundle from dir. Paths that are not a
// file in the bundle get index.html, so client-side routes such as
// /guest-list/{id}/{slug} load the app. Unknown /api/ paths are a JSON 404.
//
// HTTP: GET /*
func HandleStatic(dir string, logger *slog.Logger) http.HandlerFunc {
	index := filepath.Join(dir, "index.html")

	return func(w http.ResponseWriter, r *http.Request) {
		clean := path.Clean("/" + r.URL.Path)
		if clean == "/api" || strings.HasPrefix(clean, "/api/") {
			writeError(w, apperror.NotFoundMessage("Not found"))
			return
		}

		file := filepath.Join(dir, filepath.FromSlash(clean))
		if info, err := os.Stat(file); err == nil && !info.IsDir() {
			http.ServeFile(w, r, file)
			return
		}

		if _, err := os.Stat(index); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				logger.Error("page bundle unreadable", slog.String("dir", dir), slog.String("error", err.Error()))
			}
			writeError(w, apperror.NotFoundMessage("Page not found"))
			return
		}
		w.Header().Set("Cache-Control", "no-cache")
		http.ServeFile(w, r, index)
	}
}
