// Package assets serves the built client bundle.
//
// The bundler names emitted files assets/[name]-[hash][ext], with stylesheets
// under assets/css/. Those names change whenever their content changes, so
// they can be cached forever; everything else must be revalidated.
package assets

import (
	"errors"
	"io"
	"io/fs"
	"net/http"
	"path"
	"regexp"
	"strings"
)

// Cache-Control values.
const (
	CacheImmutable  = "public, max-age=31536000, immutable"
	CacheRevalidate = "no-cache"
)

var hashedName = regexp.MustCompile(`^assets/(css/)?[^/]+-[A-Za-z0-9_-]{8,}\.[A-Za-z0-9]+$`)

// IsHashed reports whether p (relative, without a leading slash) is a
// content-hashed bundle file.
func IsHashed(p string) bool {
	return hashedName.MatchString(p)
}

// Handler serves files from fsys. Unknown paths fall back to index.html so
// that client-side routes work on reload, except under assets/ where a
// missing file is a real 404.
func Handler(fsys fs.FS) http.Handler {
	fileServer := http.FileServer(http.FS(fsys))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := strings.TrimPrefix(path.Clean("/"+r.URL.Path), "/")
		if p == "" {
			p = "index.html"
		}

		info, err := fs.Stat(fsys, p)
		if err != nil || info.IsDir() {
			if strings.HasPrefix(p, "assets/") {
				http.NotFound(w, r)
				return
			}
			serveIndex(w, r, fsys)
			return
		}

		if IsHashed(p) {
			w.Header().Set("Cache-Control", CacheImmutable)
		} else {
			w.Header().Set("Cache-Control", CacheRevalidate)
		}
		fileServer.ServeHTTP(w, r)
	})
}

// serveIndex writes index.html for a client-side route.
func serveIndex(w http.ResponseWriter, r *http.Request, fsys fs.FS) {
	f, err := fsys.Open("index.html")
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			http.Error(w, "client bundle has no index.html", http.StatusNotFound)
			return
		}
		http.Error(w, "opening index.html", http.StatusInternalServerError)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		http.Error(w, "reading index.html", http.StatusInternalServerError)
		return
	}
	rs, ok := f.(io.ReadSeeker)
	if !ok {
		http.Error(w, "index.html is not seekable", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Cache-Control", CacheRevalidate)
	http.ServeContent(w, r, "index.html", info.ModTime(), rs)
}
