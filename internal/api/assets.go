package api

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
)

// AssetHandler serves materialized document assets (images referenced by
// rendered documents) straight from the cache directory.
type AssetHandler struct {
	root string
}

// NewAssetHandler creates a handler rooted at the asset cache directory,
// i.e. the directory containing assets/<repo>/<commit>/<doc>_files/.
func NewAssetHandler(root string) *AssetHandler {
	return &AssetHandler{root: filepath.Join(root, "assets")}
}

// safePath validates the requested relative path and returns the absolute
// path under the asset root. Traversal outside the root is rejected.
func (h *AssetHandler) safePath(rel string) (string, bool) {
	if rel == "" || strings.Contains(rel, "..") {
		return "", false
	}
	abs := filepath.Join(h.root, filepath.FromSlash(rel))
	if !strings.HasPrefix(abs, h.root+string(os.PathSeparator)) {
		return "", false
	}
	return abs, true
}

// ServeFile handles GET /{route}/*.
func (h *AssetHandler) ServeFile(w http.ResponseWriter, r *http.Request) {
	rel := chi.URLParam(r, "*")
	abs, ok := h.safePath(rel)
	if !ok {
		http.Error(w, "invalid asset path", http.StatusBadRequest)
		return
	}
	info, err := os.Stat(abs)
	if err != nil || info.IsDir() {
		http.NotFound(w, r)
		return
	}
	http.ServeFile(w, r, abs)
}
