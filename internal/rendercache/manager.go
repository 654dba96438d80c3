// Package rendercache orchestrates document rendering behind a
// commit-addressed cache: one successful render per (repository, path,
// commit), byte-identical loads ever after.
package rendercache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path"
	"strconv"
	"strings"

	"golang.org/x/sync/singleflight"

	"github.com/starford/perth/internal/apperr"
	"github.com/starford/perth/internal/assets"
	"github.com/starford/perth/internal/cachefs"
	"github.com/starford/perth/internal/cachekey"
	"github.com/starford/perth/internal/comments"
	"github.com/starford/perth/internal/gitrepo"
	"github.com/starford/perth/internal/qmd"
)

// Config carries the cache root paths and the asset URL route. Passing it
// explicitly keeps all path state out of process-wide globals.
type Config struct {
	DocsRoot   string
	AssetsRoot string
	AssetRoute string
}

// RepoRef identifies one connected repository for rendering.
type RepoRef struct {
	ID   int64
	Path string // local clone path
}

// Entry is the persisted render artifact: the tree, the extracted comment
// set, and the commit it was rendered at. Entries are immutable once
// written; a new commit gets a new entry.
type Entry struct {
	Commit   string             `json:"commit"`
	Doc      qmd.Document       `json:"doc"`
	Comments []comments.Comment `json:"comments,omitempty"`
}

// Manager owns all reads and writes of cache entries. The parser and
// materializer never touch the entry files themselves.
type Manager struct {
	docs     *cachefs.FS
	assetFS  *cachefs.FS
	assets   *assets.Materializer
	renderer qmd.ChunkRenderer
	logger   *slog.Logger
	group    singleflight.Group
}

// New creates a Manager, creating both cache roots if needed.
func New(cfg Config, renderer qmd.ChunkRenderer, logger *slog.Logger) (*Manager, error) {
	docs, err := cachefs.NewFS(cfg.DocsRoot)
	if err != nil {
		return nil, err
	}
	assetFS, err := cachefs.NewFS(cfg.AssetsRoot)
	if err != nil {
		return nil, err
	}
	route := cfg.AssetRoute
	if route == "" {
		route = "assets"
	}
	return &Manager{
		docs:     docs,
		assetFS:  assetFS,
		assets:   assets.NewMaterializer(assetFS, route),
		renderer: renderer,
		logger:   logger,
	}, nil
}

// Render resolves ref (default HEAD) to a commit and returns the rendered
// document at that commit, from cache when possible.
func (m *Manager) Render(ctx context.Context, repo RepoRef, filePath, ref string) (*Entry, error) {
	if ref == "" {
		ref = "HEAD"
	}
	commit, err := gitrepo.ResolveRef(ctx, repo.Path, ref)
	if err != nil {
		return nil, err
	}
	return m.RenderAt(ctx, repo, filePath, commit)
}

// RenderAt returns the rendered document at an exact commit. A cache hit
// is a pure read: no file modification, no parser or chunk-renderer
// invocation. Concurrent misses on the same key are collapsed into one
// execution; other callers wait for its result.
func (m *Manager) RenderAt(ctx context.Context, repo RepoRef, filePath, commit string) (*Entry, error) {
	name := cachekey.DocCacheName(repo.ID, filePath, commit)

	if e, ok := m.load(name); ok {
		return e, nil
	}

	v, err, _ := m.group.Do(name, func() (any, error) {
		// A caller that queued behind a completed miss finds the entry.
		if e, ok := m.load(name); ok {
			return e, nil
		}
		// A disconnected caller must not abandon the work: the render
		// runs to completion and populates the cache for the next one.
		return m.renderMiss(context.WithoutCancel(ctx), repo, filePath, commit, name)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Entry), nil
}

// Evict removes every cache entry and asset directory of a repository.
// This is the only deletion path; rendering never deletes.
func (m *Manager) Evict(repoID int64) error {
	names, err := m.docs.ReadDir("")
	if err != nil {
		return err
	}
	prefix := cachekey.DocCachePrefix(repoID)
	for _, name := range names {
		if strings.HasPrefix(name, prefix) {
			if err := m.docs.Remove(name); err != nil {
				return err
			}
		}
	}
	return m.assetFS.RemoveAll(path.Join("assets", strconv.FormatInt(repoID, 10)))
}

func (m *Manager) load(name string) (*Entry, bool) {
	data, err := m.docs.Read(name)
	if err != nil {
		return nil, false
	}
	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		// Out-of-band damage; treat as a miss and let the rewrite heal it.
		m.logger.Warn("rendercache: corrupt entry", slog.String("entry", name), slog.String("error", err.Error()))
		return nil, false
	}
	return &e, true
}

func (m *Manager) renderMiss(ctx context.Context, repo RepoRef, filePath, commit, name string) (*Entry, error) {
	src, err := gitrepo.ReadFileAt(ctx, repo.Path, commit, filePath)
	if err != nil {
		return nil, err
	}

	cs, body := comments.Extract(string(src))
	doc := qmd.Parse(ctx, body, m.renderer, comments.IDSet(cs))

	if err := m.assets.Materialize(ctx, repo.Path, repo.ID, commit, filePath, doc); err != nil {
		return nil, err
	}

	e := &Entry{Commit: commit, Doc: *doc, Comments: cs}
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("rendercache: encode entry: %w", err)
	}
	if err := m.docs.WriteAtomic(name, data); err != nil {
		return nil, fmt.Errorf("rendercache: persist %s: %v: %w", name, err, apperr.ErrCacheWrite)
	}

	m.logger.Info("rendercache: rendered",
		slog.Int64("repo_id", repo.ID),
		slog.String("path", filePath),
		slog.String("commit", commit))
	return e, nil
}
