// Package renderservice coordinates repository connections, git reads,
// and the render cache for the API and MCP layers.
package renderservice

import (
	"context"
	"fmt"
	"strings"

	"github.com/starford/perth/internal/apperr"
	"github.com/starford/perth/internal/gitrepo"
	"github.com/starford/perth/internal/rendercache"
	"github.com/starford/perth/internal/repostore"
)

// Service is the domain facade over the store and the cache manager.
type Service struct {
	store repostore.Store
	cache *rendercache.Manager
}

// NewService creates a new render service.
func NewService(store repostore.Store, cache *rendercache.Manager) *Service {
	return &Service{store: store, cache: cache}
}

// ConnectRepo registers a local repository. The path must be a git work
// tree; an empty defaultBranch falls back to "main".
func (s *Service) ConnectRepo(ctx context.Context, name, path, defaultBranch string) (*repostore.Repo, error) {
	if !gitrepo.IsRepository(ctx, path) {
		return nil, fmt.Errorf("renderservice: %s is not a git repository: %w", path, apperr.ErrRepoState)
	}
	return s.store.Create(name, path, defaultBranch)
}

// GetRepo returns one repository connection.
func (s *Service) GetRepo(_ context.Context, id int64) (*repostore.Repo, error) {
	return s.store.Get(id)
}

// ListRepos returns all repository connections.
func (s *Service) ListRepos(_ context.Context) ([]repostore.Repo, error) {
	return s.store.List()
}

// DisconnectRepo removes a repository connection and evicts its cache.
func (s *Service) DisconnectRepo(_ context.Context, id int64) error {
	if err := s.store.Delete(id); err != nil {
		return err
	}
	return s.cache.Evict(id)
}

// RenderDoc renders a document at ref (the repo's default branch when
// empty), served from cache when the commit was rendered before.
func (s *Service) RenderDoc(ctx context.Context, repoID int64, path, ref string) (*rendercache.Entry, error) {
	repo, err := s.store.Get(repoID)
	if err != nil {
		return nil, err
	}
	if ref == "" {
		ref = repo.DefaultBranch
	}
	return s.cache.Render(ctx, rendercache.RepoRef{ID: repo.ID, Path: repo.Path}, path, ref)
}

// ListBranches returns the repository's local branches and tip commits.
func (s *Service) ListBranches(ctx context.Context, repoID int64) ([]gitrepo.Branch, error) {
	repo, err := s.store.Get(repoID)
	if err != nil {
		return nil, err
	}
	return gitrepo.ListBranches(ctx, repo.Path)
}

// ListDocs returns the .qmd documents present at ref (default branch
// when empty).
func (s *Service) ListDocs(ctx context.Context, repoID int64, ref string) ([]string, error) {
	repo, err := s.store.Get(repoID)
	if err != nil {
		return nil, err
	}
	if ref == "" {
		ref = repo.DefaultBranch
	}
	paths, err := gitrepo.ListFilesAt(ctx, repo.Path, ref)
	if err != nil {
		return nil, err
	}
	var docs []string
	for _, p := range paths {
		if strings.HasSuffix(p, ".qmd") {
			docs = append(docs, p)
		}
	}
	return docs, nil
}

// EvictCache drops every cache entry and asset directory of a repository.
func (s *Service) EvictCache(_ context.Context, repoID int64) error {
	if _, err := s.store.Get(repoID); err != nil {
		return err
	}
	return s.cache.Evict(repoID)
}

// WatchTargets returns the repositories the head watcher should observe.
func (s *Service) WatchTargets(_ context.Context) ([]gitrepo.WatchTarget, error) {
	repos, err := s.store.List()
	if err != nil {
		return nil, err
	}
	targets := make([]gitrepo.WatchTarget, len(repos))
	for i, r := range repos {
		targets[i] = gitrepo.WatchTarget{ID: r.ID, Path: r.Path}
	}
	return targets, nil
}
