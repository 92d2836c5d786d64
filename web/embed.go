// Package web embeds the exam page (dist/) and serves it at the site root.
// Unknown paths fall back to index.html.
package web

import (
	"embed"
	"io/fs"
	"log/slog"
	"net/http"
	"path"
	"strings"
)

//go:embed all:dist
var distFS embed.FS

const indexFile = "index.html"

// SPAHandler serves files from dist/ and index.html for anything else.
// The page itself is never cached so a redeploy reaches open tabs.
func SPAHandler() http.Handler {
	subFS, err := fs.Sub(distFS, "dist")
	if err != nil {
		panic("web: failed to create sub filesystem: " + err.Error())
	}
	files := http.FileServer(http.FS(subFS))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := strings.TrimPrefix(path.Clean(r.URL.Path), "/")
		if name == "" || !exists(subFS, name) {
			name = indexFile
		}
		if name == indexFile {
			w.Header().Set("Cache-Control", "no-cache")
			r.URL.Path = "/"
		}
		files.ServeHTTP(w, r)
	})
}

func exists(fsys fs.FS, name string) bool {
	f, err := fsys.Open(name)
	if err != nil {
		return false
	}
	if err := f.Close(); err != nil {
		slog.Debug("web: failed to close embedded file", "path", name, "error", err)
	}
	return true
}
