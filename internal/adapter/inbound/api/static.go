package api

import (
	"embed"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"sync"

	"github.com/cespare/xxhash/v2"
)

// staticFS embeds the dashboard's placeholder page: the dashboard's
// HTML/JS content is out of scope here; only the serving contract —
// embedded assets, ETag, conditional GET — is.
//
//go:embed static
var staticFS embed.FS

// newStaticHandler serves the embedded dashboard bundle under "/" with an
// ETag derived from an xxhash digest of each file, computed once lazily
// and cached; a matching If-None-Match short-circuits to 304.
func newStaticHandler() http.Handler {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(fmt.Sprintf("api: embedded static assets missing: %v", err))
	}
	return &etagHandler{fsys: sub, inner: http.FileServer(http.FS(sub))}
}

type etagHandler struct {
	fsys  fs.FS
	inner http.Handler

	mu    sync.Mutex
	etags map[string]string
}

func (h *etagHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path
	if path == "/" {
		path = "/index.html"
	}
	if etag, ok := h.etag(path); ok {
		w.Header().Set("ETag", etag)
		if inm := r.Header.Get("If-None-Match"); inm == etag {
			w.WriteHeader(http.StatusNotModified)
			return
		}
	}
	h.inner.ServeHTTP(w, r)
}

// etag returns the cached xxhash-derived ETag for path, computing and
// caching it on first request. The second return value is false if path
// does not name a regular file in the embedded bundle (e.g. a directory),
// in which case the caller skips conditional-GET handling entirely.
func (h *etagHandler) etag(path string) (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.etags == nil {
		h.etags = make(map[string]string)
	}
	if etag, ok := h.etags[path]; ok {
		return etag, true
	}

	f, err := h.fsys.Open(trimLeadingSlash(path))
	if err != nil {
		return "", false
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil || info.IsDir() {
		return "", false
	}
	data, err := io.ReadAll(f)
	if err != nil {
		return "", false
	}

	sum := xxhash.Sum64(data)
	etag := fmt.Sprintf("%q", fmt.Sprintf("%x", sum))
	h.etags[path] = etag
	return etag, true
}

func trimLeadingSlash(p string) string {
	if len(p) > 0 && p[0] == '/' {
		return p[1:]
	}
	return p
}
