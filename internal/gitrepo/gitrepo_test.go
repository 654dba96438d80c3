package gitrepo

import (
	"context"
	"errors"
	"testing"

	"github.com/starford/perth/internal/apperr"
	"github.com/starford/perth/internal/testutil"
)

func TestResolveHeadAndRef(t *testing.T) {
	dir := testutil.TestGitRepo(t)
	ctx := context.Background()

	c1 := testutil.Commit(t, dir, map[string]string{"doc.qmd": "# One\n"})

	head, err := ResolveHead(ctx, dir)
	if err != nil {
		t.Fatalf("ResolveHead: %v", err)
	}
	if head != c1 {
		t.Errorf("head = %s, want %s", head, c1)
	}

	byBranch, err := ResolveRef(ctx, dir, "main")
	if err != nil {
		t.Fatalf("ResolveRef(main): %v", err)
	}
	if byBranch != c1 {
		t.Errorf("main = %s, want %s", byBranch, c1)
	}
}

func TestResolveHead_EmptyRepo(t *testing.T) {
	dir := testutil.TestGitRepo(t)
	_, err := ResolveHead(context.Background(), dir)
	if !errors.Is(err, apperr.ErrRepoState) {
		t.Errorf("err = %v, want ErrRepoState", err)
	}
}

func TestReadFileAt(t *testing.T) {
	dir := testutil.TestGitRepo(t)
	ctx := context.Background()

	c1 := testutil.Commit(t, dir, map[string]string{"doc.qmd": "version one\n"})
	c2 := testutil.Commit(t, dir, map[string]string{"doc.qmd": "version two\n"})

	got1, err := ReadFileAt(ctx, dir, c1, "doc.qmd")
	if err != nil {
		t.Fatalf("ReadFileAt(c1): %v", err)
	}
	if string(got1) != "version one\n" {
		t.Errorf("c1 content = %q", got1)
	}

	got2, err := ReadFileAt(ctx, dir, c2, "doc.qmd")
	if err != nil {
		t.Fatalf("ReadFileAt(c2): %v", err)
	}
	if string(got2) != "version two\n" {
		t.Errorf("c2 content = %q", got2)
	}
}

func TestReadFileAt_Missing(t *testing.T) {
	dir := testutil.TestGitRepo(t)
	c1 := testutil.Commit(t, dir, map[string]string{"doc.qmd": "x"})

	_, err := ReadFileAt(context.Background(), dir, c1, "absent.qmd")
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestListFilesAt(t *testing.T) {
	dir := testutil.TestGitRepo(t)
	c1 := testutil.Commit(t, dir, map[string]string{
		"doc.qmd":        "x",
		"img/plot.png":   "bytes",
		"nested/b/c.txt": "y",
	})

	paths, err := ListFilesAt(context.Background(), dir, c1)
	if err != nil {
		t.Fatalf("ListFilesAt: %v", err)
	}
	want := map[string]bool{"doc.qmd": true, "img/plot.png": true, "nested/b/c.txt": true}
	if len(paths) != len(want) {
		t.Fatalf("paths = %v", paths)
	}
	for _, p := range paths {
		if !want[p] {
			t.Errorf("unexpected path %q", p)
		}
	}
}

func TestListBranches(t *testing.T) {
	dir := testutil.TestGitRepo(t)
	ctx := context.Background()

	c1 := testutil.Commit(t, dir, map[string]string{"doc.qmd": "a"})
	testutil.Git(t, dir, "branch", "feature")
	c2 := testutil.Commit(t, dir, map[string]string{"doc.qmd": "b"})

	branches, err := ListBranches(ctx, dir)
	if err != nil {
		t.Fatalf("ListBranches: %v", err)
	}
	tips := map[string]string{}
	for _, b := range branches {
		tips[b.Name] = b.Commit
	}
	if tips["main"] != c2 {
		t.Errorf("main = %s, want %s", tips["main"], c2)
	}
	if tips["feature"] != c1 {
		t.Errorf("feature = %s, want %s", tips["feature"], c1)
	}
}

func TestIsRepository(t *testing.T) {
	dir := testutil.TestGitRepo(t)
	if !IsRepository(context.Background(), dir) {
		t.Error("initialized repo not recognized")
	}
	if IsRepository(context.Background(), t.TempDir()) {
		t.Error("plain directory recognized as repo")
	}
}
