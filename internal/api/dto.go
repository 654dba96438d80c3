package api

import (
	"github.com/starford/perth/internal/gitrepo"
	"github.com/starford/perth/internal/rendercache"
	"github.com/starford/perth/internal/repostore"
)

// ConnectRepoRequest is the request body for registering a repository.
type ConnectRepoRequest struct {
	Name          string `json:"name" example:"handbook" validate:"required"`
	Path          string `json:"path" example:"/srv/repos/handbook" validate:"required"`
	DefaultBranch string `json:"default_branch" example:"main"`
}

// RepoDetail is the repository connection response type (aliased from the
// domain layer).
type RepoDetail = repostore.Repo

// RepoListResponse wraps repository listings.
type RepoListResponse struct {
	Repos []RepoDetail `json:"repos" validate:"required"`
	Total int          `json:"total" example:"3" validate:"required"`
}

// BranchListResponse wraps branch listings.
type BranchListResponse struct {
	Branches []gitrepo.Branch `json:"branches" validate:"required"`
}

// DocListResponse wraps document listings at a ref.
type DocListResponse struct {
	Docs []string `json:"docs" validate:"required"`
}

// RenderedDoc is the rendered document response (aliased from the cache
// layer): commit, node tree, and extracted comment set.
type RenderedDoc = rendercache.Entry
