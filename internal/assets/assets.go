// Package assets copies the local files a rendered document references
// (images, plots) into the commit-scoped asset cache directory and
// rewrites the references to served URLs.
package assets

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/starford/perth/internal/cachefs"
	"github.com/starford/perth/internal/cachekey"
	"github.com/starford/perth/internal/gitrepo"
	"github.com/starford/perth/internal/qmd"
)

// Materializer owns all writes to asset cache directories.
type Materializer struct {
	fs    *cachefs.FS // rooted at the assets cache root
	route string      // URL route prefix assets are served under
}

// NewMaterializer creates a materializer writing under fs and rewriting
// references to /<route>/... URLs.
func NewMaterializer(fs *cachefs.FS, route string) *Materializer {
	return &Materializer{fs: fs, route: route}
}

// Materialize copies every local image the tree references from the git
// snapshot at commitRef into the document's asset directory and rewrites
// each reference in place to its served URL.
//
// Re-running against the same commit is safe: a file already present at
// its destination is left untouched. A reference whose source is absent
// from the commit gets a warning on its node and the render continues.
func (m *Materializer) Materialize(ctx context.Context, repoPath string, repoID int64, commitRef, docPath string, doc *qmd.Document) error {
	dir := cachekey.AssetDir(repoID, commitRef, docPath)

	var tree map[string]struct{} // lazily listed, most documents have no assets

	for i := range doc.Nodes {
		node := &doc.Nodes[i]
		if node.Type != qmd.NodeParagraph {
			continue
		}
		for j := range node.Inlines {
			img := node.Inlines[j].Image
			if img == nil || !isLocalRef(img.Src) {
				continue
			}

			if tree == nil {
				paths, err := gitrepo.ListFilesAt(ctx, repoPath, commitRef)
				if err != nil {
					return err
				}
				tree = make(map[string]struct{}, len(paths))
				for _, p := range paths {
					tree[p] = struct{}{}
				}
			}

			src, ok := resolveSource(docPath, img.Src)
			if ok {
				_, ok = tree[src]
			}
			if !ok {
				img.Warning = fmt.Sprintf("asset %s not found at commit %s", img.Src, commitRef)
				continue
			}

			name := path.Base(src)
			dest := path.Join(dir, name)
			if !m.fs.Exists(dest) {
				data, err := gitrepo.ReadFileAt(ctx, repoPath, commitRef, src)
				if err != nil {
					img.Warning = fmt.Sprintf("asset %s unreadable at commit %s", img.Src, commitRef)
					continue
				}
				if err := m.fs.WriteAtomic(dest, data); err != nil {
					return fmt.Errorf("assets: materialize %s: %w", dest, err)
				}
			}
			img.Src = cachekey.AssetURL(m.route, repoID, commitRef, docPath, name)
		}
	}
	return nil
}

// isLocalRef reports whether src points into the repository rather than
// at an external or inline resource.
func isLocalRef(src string) bool {
	if src == "" || strings.HasPrefix(src, "/") || strings.HasPrefix(src, "data:") {
		return false
	}
	return !strings.Contains(src, "://")
}

// resolveSource resolves an image reference relative to the document's
// directory into a repository-root path. References escaping the
// repository root are rejected.
func resolveSource(docPath, src string) (string, bool) {
	resolved := path.Clean(path.Join(path.Dir(docPath), src))
	if resolved == ".." || strings.HasPrefix(resolved, "../") {
		return "", false
	}
	return resolved, true
}
