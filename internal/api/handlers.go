package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/starford/perth/internal/apperr"
	"github.com/starford/perth/internal/gitrepo"
	"github.com/starford/perth/internal/renderservice"
)

// Handler holds API route handlers.
type Handler struct {
	svc *renderservice.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *renderservice.Service) *Handler {
	return &Handler{svc: svc}
}

// repoID extracts and parses the {id} route parameter.
func repoID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id, err == nil && id > 0
}

// writeError maps domain errors onto distinct HTTP statuses: a missing
// document or repo is 404, a broken repository is 422, and a render
// failure is 500 — callers can tell "not found" from "render failed".
func writeError(w http.ResponseWriter, err error, op string) {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
	case errors.Is(err, apperr.ErrAlreadyExists):
		writeJSON(w, http.StatusConflict, errorBody("already exists"))
	case errors.Is(err, apperr.ErrRepoState):
		writeJSON(w, http.StatusUnprocessableEntity, errorBody("repository unusable: "+err.Error()))
	default:
		slog.Error(op+" failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody(op+" failed"))
	}
}

// ListRepos handles GET /api/repos.
//
//	@Summary		List connected repositories
//	@Tags			repos
//	@Produce		json
//	@Success		200	{object}	RepoListResponse
//	@Security		BearerAuth
//	@Router			/repos [get]
func (h *Handler) ListRepos(w http.ResponseWriter, r *http.Request) {
	repos, err := h.svc.ListRepos(r.Context())
	if err != nil {
		writeError(w, err, "list repos")
		return
	}
	if repos == nil {
		repos = []RepoDetail{}
	}
	writeJSON(w, http.StatusOK, RepoListResponse{Repos: repos, Total: len(repos)})
}

// ConnectRepo handles POST /api/repos.
//
//	@Summary		Connect a local git repository
//	@Tags			repos
//	@Accept			json
//	@Produce		json
//	@Param			body	body		ConnectRepoRequest	true	"Repository to connect"
//	@Success		201		{object}	RepoDetail
//	@Failure		400		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Failure		422		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/repos [post]
func (h *Handler) ConnectRepo(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req ConnectRepoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.Name == "" || req.Path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("name and path are required"))
		return
	}
	repo, err := h.svc.ConnectRepo(r.Context(), req.Name, req.Path, req.DefaultBranch)
	if err != nil {
		writeError(w, err, "connect repo")
		return
	}
	writeJSON(w, http.StatusCreated, repo)
}

// GetRepo handles GET /api/repos/{id}.
//
//	@Summary		Get one repository connection
//	@Tags			repos
//	@Produce		json
//	@Param			id	path		int	true	"Repository id"
//	@Success		200	{object}	RepoDetail
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/repos/{id} [get]
func (h *Handler) GetRepo(w http.ResponseWriter, r *http.Request) {
	id, ok := repoID(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid repository id"))
		return
	}
	repo, err := h.svc.GetRepo(r.Context(), id)
	if err != nil {
		writeError(w, err, "get repo")
		return
	}
	writeJSON(w, http.StatusOK, repo)
}

// DisconnectRepo handles DELETE /api/repos/{id}.
//
//	@Summary		Disconnect a repository and evict its cache
//	@Tags			repos
//	@Param			id	path	int	true	"Repository id"
//	@Success		204	"Repository disconnected"
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/repos/{id} [delete]
func (h *Handler) DisconnectRepo(w http.ResponseWriter, r *http.Request) {
	id, ok := repoID(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid repository id"))
		return
	}
	if err := h.svc.DisconnectRepo(r.Context(), id); err != nil {
		writeError(w, err, "disconnect repo")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListBranches handles GET /api/repos/{id}/branches.
//
//	@Summary		List local branches and their tip commits
//	@Tags			repos
//	@Produce		json
//	@Param			id	path		int	true	"Repository id"
//	@Success		200	{object}	BranchListResponse
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/repos/{id}/branches [get]
func (h *Handler) ListBranches(w http.ResponseWriter, r *http.Request) {
	id, ok := repoID(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid repository id"))
		return
	}
	branches, err := h.svc.ListBranches(r.Context(), id)
	if err != nil {
		writeError(w, err, "list branches")
		return
	}
	if branches == nil {
		branches = []gitrepo.Branch{}
	}
	writeJSON(w, http.StatusOK, BranchListResponse{Branches: branches})
}

// ListDocs handles GET /api/repos/{id}/files.
//
//	@Summary		List .qmd documents at a ref
//	@Tags			repos
//	@Produce		json
//	@Param			id	path		int		true	"Repository id"
//	@Param			ref	query		string	false	"Ref (defaults to the default branch)"
//	@Success		200	{object}	DocListResponse
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/repos/{id}/files [get]
func (h *Handler) ListDocs(w http.ResponseWriter, r *http.Request) {
	id, ok := repoID(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid repository id"))
		return
	}
	docs, err := h.svc.ListDocs(r.Context(), id, r.URL.Query().Get("ref"))
	if err != nil {
		writeError(w, err, "list docs")
		return
	}
	if docs == nil {
		docs = []string{}
	}
	writeJSON(w, http.StatusOK, DocListResponse{Docs: docs})
}

// RenderDoc handles GET /api/repos/{id}/doc.
//
//	@Summary		Render a document at a commit (cached per commit)
//	@Tags			render
//	@Produce		json
//	@Param			id		path		int		true	"Repository id"
//	@Param			path	query		string	true	"Document path, e.g. docs/report.qmd"
//	@Param			ref		query		string	false	"Ref (defaults to the default branch)"
//	@Success		200		{object}	RenderedDoc
//	@Failure		404		{object}	errResponse
//	@Failure		422		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/repos/{id}/doc [get]
func (h *Handler) RenderDoc(w http.ResponseWriter, r *http.Request) {
	id, ok := repoID(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid repository id"))
		return
	}
	path := r.URL.Query().Get("path")
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'path' is required"))
		return
	}
	entry, err := h.svc.RenderDoc(r.Context(), id, path, r.URL.Query().Get("ref"))
	if err != nil {
		writeError(w, err, "render")
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// EvictCache handles DELETE /api/repos/{id}/cache.
//
//	@Summary		Evict all cached renders and assets of a repository
//	@Tags			render
//	@Param			id	path	int	true	"Repository id"
//	@Success		204	"Cache evicted"
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/repos/{id}/cache [delete]
func (h *Handler) EvictCache(w http.ResponseWriter, r *http.Request) {
	id, ok := repoID(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid repository id"))
		return
	}
	if err := h.svc.EvictCache(r.Context(), id); err != nil {
		writeError(w, err, "evict cache")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
