package api

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/starford/perth/internal/qmd"
	"github.com/starford/perth/internal/rendercache"
	"github.com/starford/perth/internal/renderservice"
	"github.com/starford/perth/internal/testutil"
)

// testEnv sets up a temp cache, SQLite store, git repo, service, and router.
// authToken="" means disabled auth mode.
func testEnv(t *testing.T, authToken string) (http.Handler, string) {
	t.Helper()

	db := testutil.TestDB(t)
	repoDir := testutil.TestGitRepo(t)

	cacheDir := t.TempDir()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cache, err := rendercache.New(rendercache.Config{
		DocsRoot:   filepath.Join(cacheDir, "docs"),
		AssetsRoot: cacheDir,
	}, &testutil.StubRenderer{}, logger)
	if err != nil {
		t.Fatalf("rendercache.New: %v", err)
	}

	svc := renderservice.NewService(db, cache)
	router := NewRouter(svc, authToken != "", authToken, nil)
	return router, repoDir
}

// connectRepo registers the repo over the API and returns its id.
func connectRepo(t *testing.T, router http.Handler, repoDir string) int64 {
	t.Helper()
	body, _ := json.Marshal(map[string]string{"name": "handbook", "path": repoDir})
	req := httptest.NewRequest(http.MethodPost, "/repos", bytes.NewReader(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusCreated {
		t.Fatalf("connect status = %d, body = %s", w.Code, w.Body.String())
	}
	var repo RepoDetail
	_ = json.Unmarshal(w.Body.Bytes(), &repo)
	if repo.ID == 0 {
		t.Fatalf("connect returned zero id: %s", w.Body.String())
	}
	return repo.ID
}

func TestConnectListGetDisconnect(t *testing.T) {
	router, repoDir := testEnv(t, "")
	testutil.Commit(t, repoDir, map[string]string{"readme.qmd": "# Hi\n"})
	id := connectRepo(t, router, repoDir)

	// List.
	req := httptest.NewRequest(http.MethodGet, "/repos", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("list status = %d", w.Code)
	}
	var list RepoListResponse
	_ = json.Unmarshal(w.Body.Bytes(), &list)
	if list.Total != 1 || len(list.Repos) != 1 {
		t.Fatalf("list = %+v, want 1 repo", list)
	}
	if list.Repos[0].DefaultBranch != "main" {
		t.Errorf("default branch = %q, want main", list.Repos[0].DefaultBranch)
	}

	// Get.
	req = httptest.NewRequest(http.MethodGet, "/repos/"+strconv.FormatInt(id, 10), nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d", w.Code)
	}

	// Disconnect.
	req = httptest.NewRequest(http.MethodDelete, "/repos/"+strconv.FormatInt(id, 10), nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusNoContent {
		t.Fatalf("disconnect status = %d", w.Code)
	}

	// Gone.
	req = httptest.NewRequest(http.MethodGet, "/repos/"+strconv.FormatInt(id, 10), nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Errorf("get after disconnect = %d, want 404", w.Code)
	}
}

func TestConnectNonRepoPath(t *testing.T) {
	router, _ := testEnv(t, "")

	body, _ := json.Marshal(map[string]string{"name": "bogus", "path": t.TempDir()})
	req := httptest.NewRequest(http.MethodPost, "/repos", bytes.NewReader(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("connect non-repo = %d, want 422", w.Code)
	}
}

func TestConnectDuplicateName(t *testing.T) {
	router, repoDir := testEnv(t, "")
	testutil.Commit(t, repoDir, map[string]string{"a.qmd": "x\n"})
	connectRepo(t, router, repoDir)

	body, _ := json.Marshal(map[string]string{"name": "handbook", "path": repoDir})
	req := httptest.NewRequest(http.MethodPost, "/repos", bytes.NewReader(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusConflict {
		t.Errorf("duplicate connect = %d, want 409", w.Code)
	}
}

func TestBranchesAndFiles(t *testing.T) {
	router, repoDir := testEnv(t, "")
	testutil.Commit(t, repoDir, map[string]string{
		"docs/report.qmd": "# Report\n",
		"notes.txt":       "not a doc\n",
	})
	id := connectRepo(t, router, repoDir)
	base := "/repos/" + strconv.FormatInt(id, 10)

	req := httptest.NewRequest(http.MethodGet, base+"/branches", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("branches status = %d, body = %s", w.Code, w.Body.String())
	}
	var branches BranchListResponse
	_ = json.Unmarshal(w.Body.Bytes(), &branches)
	if len(branches.Branches) != 1 || branches.Branches[0].Name != "main" {
		t.Errorf("branches = %+v, want [main]", branches.Branches)
	}

	req = httptest.NewRequest(http.MethodGet, base+"/files", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("files status = %d", w.Code)
	}
	var docs DocListResponse
	_ = json.Unmarshal(w.Body.Bytes(), &docs)
	if len(docs.Docs) != 1 || docs.Docs[0] != "docs/report.qmd" {
		t.Errorf("docs = %v, want [docs/report.qmd]", docs.Docs)
	}
}

func TestRenderDoc(t *testing.T) {
	router, repoDir := testEnv(t, "")
	src := "# Title\n\nHello [world]{.comment ref=\"c1\"}.\n\n```comments\n- id: c1\n  author: maria\n  body: check this\n```\n"
	commit := testutil.Commit(t, repoDir, map[string]string{"doc.qmd": src})
	id := connectRepo(t, router, repoDir)

	req := httptest.NewRequest(http.MethodGet, "/repos/"+strconv.FormatInt(id, 10)+"/doc?path=doc.qmd", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("render status = %d, body = %s", w.Code, w.Body.String())
	}
	var entry RenderedDoc
	if err := json.Unmarshal(w.Body.Bytes(), &entry); err != nil {
		t.Fatalf("unmarshal entry: %v", err)
	}
	if entry.Commit != commit {
		t.Errorf("commit = %q, want %q", entry.Commit, commit)
	}
	if len(entry.Doc.Nodes) != 2 || entry.Doc.Nodes[0].Type != qmd.NodeHeading {
		t.Fatalf("nodes = %+v", entry.Doc.Nodes)
	}
	if len(entry.Comments) != 1 || entry.Comments[0].ID != "c1" {
		t.Errorf("comments = %+v, want c1", entry.Comments)
	}
}

func TestRenderDocRequiresPath(t *testing.T) {
	router, repoDir := testEnv(t, "")
	testutil.Commit(t, repoDir, map[string]string{"a.qmd": "x\n"})
	id := connectRepo(t, router, repoDir)

	req := httptest.NewRequest(http.MethodGet, "/repos/"+strconv.FormatInt(id, 10)+"/doc", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("render without path = %d, want 400", w.Code)
	}
}

func TestRenderDocMissingFile(t *testing.T) {
	router, repoDir := testEnv(t, "")
	testutil.Commit(t, repoDir, map[string]string{"a.qmd": "x\n"})
	id := connectRepo(t, router, repoDir)

	req := httptest.NewRequest(http.MethodGet, "/repos/"+strconv.FormatInt(id, 10)+"/doc?path=absent.qmd", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Errorf("render missing file = %d, want 404", w.Code)
	}
}

func TestEvictCache(t *testing.T) {
	router, repoDir := testEnv(t, "")
	testutil.Commit(t, repoDir, map[string]string{"a.qmd": "# A\n"})
	id := connectRepo(t, router, repoDir)
	base := "/repos/" + strconv.FormatInt(id, 10)

	req := httptest.NewRequest(http.MethodGet, base+"/doc?path=a.qmd", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("render status = %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodDelete, base+"/cache", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusNoContent {
		t.Errorf("evict status = %d, want 204", w.Code)
	}
}

func TestAuthTokenMode(t *testing.T) {
	router, repoDir := testEnv(t, "sekrit")
	testutil.Commit(t, repoDir, map[string]string{"a.qmd": "x\n"})

	req := httptest.NewRequest(http.MethodGet, "/repos", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("no token = %d, want 401", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/repos", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("wrong token = %d, want 401", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/repos", nil)
	req.Header.Set("Authorization", "Bearer sekrit")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("valid token = %d, want 200", w.Code)
	}
}

func TestAssetHandlerServesAndGuards(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "assets", "1", "abc", "doc_files")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "fig.png"), []byte("png-bytes"), 0o644); err != nil {
		t.Fatal(err)
	}

	r := chi.NewRouter()
	r.Get("/assets/*", NewAssetHandler(root).ServeFile)

	req := httptest.NewRequest(http.MethodGet, "/assets/1/abc/doc_files/fig.png", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK || w.Body.String() != "png-bytes" {
		t.Fatalf("serve = %d %q", w.Code, w.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/assets/1/abc/doc_files/missing.png", nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Errorf("missing asset = %d, want 404", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/assets/..%2f..%2fsecret", nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code == http.StatusOK {
		t.Errorf("traversal served = %d", w.Code)
	}
}
