// Package testutil provides shared test helpers: throwaway git
// repositories, metadata databases, and a stub chunk renderer.
package testutil

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/starford/perth/internal/repostore"
)

// TestDB creates a temporary SQLite metadata database that is
// automatically cleaned up.
func TestDB(t *testing.T) *repostore.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "perth-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := repostore.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestGitRepo initializes an empty git repository in a temp directory
// with a "main" default branch and identity configured for committing.
// Tests that need git are skipped when the binary is absent.
func TestGitRepo(t *testing.T) string {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}
	dir := t.TempDir()
	Git(t, dir, "init", "-q", "-b", "main")
	Git(t, dir, "config", "user.email", "test@example.com")
	Git(t, dir, "config", "user.name", "test")
	return dir
}

// Commit writes files into the repository work tree, commits them, and
// returns the new commit hash.
func Commit(t *testing.T, dir string, files map[string]string) string {
	t.Helper()
	for name, content := range files {
		abs := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", name, err)
		}
		if err := os.WriteFile(abs, []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	Git(t, dir, "add", "-A")
	Git(t, dir, "commit", "-q", "-m", "test commit", "--allow-empty")
	return strings.TrimSpace(Git(t, dir, "rev-parse", "HEAD"))
}

// Git runs a git command in dir and returns its stdout.
func Git(t *testing.T, dir string, args ...string) string {
	t.Helper()
	cmd := exec.CommandContext(context.Background(), "git", append([]string{"-C", dir}, args...)...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("git %s: %v\n%s", strings.Join(args, " "), err, out)
	}
	return string(out)
}

// StubRenderer is a counting chunk renderer for cache tests.
type StubRenderer struct {
	mu    sync.Mutex
	calls int
}

func (s *StubRenderer) Render(_ context.Context, code, _ string) (string, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	return "<pre>" + code + "</pre>", nil
}

// Calls returns how many chunks have been rendered.
func (s *StubRenderer) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}
