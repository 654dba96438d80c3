// Package gitrepo reads repository state at a commit: ref resolution,
// file content, and tree listings. It only reads what is already present
// locally; remote synchronization happens elsewhere.
package gitrepo

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/starford/perth/internal/apperr"
)

// Branch is one local branch and its tip commit.
type Branch struct {
	Name   string `json:"name"`
	Commit string `json:"commit"`
}

// ResolveHead resolves the repository's HEAD to a commit hash.
// An unresolvable HEAD (uninitialized or empty repository) is a
// repository-state error.
func ResolveHead(ctx context.Context, repoPath string) (string, error) {
	return ResolveRef(ctx, repoPath, "HEAD")
}

// ResolveRef resolves a symbolic ref (branch name, tag, HEAD, or an
// abbreviated hash) to a full commit hash.
func ResolveRef(ctx context.Context, repoPath, ref string) (string, error) {
	out, err := run(ctx, repoPath, "rev-parse", "--verify", "--quiet", ref+"^{commit}")
	if err != nil {
		return "", fmt.Errorf("gitrepo: resolve %q in %s: %s: %w", ref, repoPath, gitStderr(err), apperr.ErrRepoState)
	}
	return strings.TrimSpace(string(out)), nil
}

// ReadFileAt returns the bytes of filePath as committed at ref.
func ReadFileAt(ctx context.Context, repoPath, ref, filePath string) ([]byte, error) {
	out, err := run(ctx, repoPath, "show", ref+":"+filePath)
	if err != nil {
		return nil, fmt.Errorf("gitrepo: %s at %s: %w", filePath, ref, apperr.ErrNotFound)
	}
	return out, nil
}

// ListFilesAt returns every path in the repository tree at ref.
func ListFilesAt(ctx context.Context, repoPath, ref string) ([]string, error) {
	out, err := run(ctx, repoPath, "ls-tree", "-r", "--name-only", "-z", ref)
	if err != nil {
		return nil, fmt.Errorf("gitrepo: list tree at %s: %s: %w", ref, gitStderr(err), apperr.ErrRepoState)
	}
	var paths []string
	for _, p := range strings.Split(string(out), "\x00") {
		if p != "" {
			paths = append(paths, p)
		}
	}
	return paths, nil
}

// ListBranches returns all local branches with their tip commits.
func ListBranches(ctx context.Context, repoPath string) ([]Branch, error) {
	out, err := run(ctx, repoPath, "for-each-ref", "--format=%(refname:short) %(objectname)", "refs/heads")
	if err != nil {
		return nil, fmt.Errorf("gitrepo: list branches: %s: %w", gitStderr(err), apperr.ErrRepoState)
	}
	var branches []Branch
	for _, line := range strings.Split(strings.TrimSpace(string(out)), "\n") {
		name, commit, ok := strings.Cut(line, " ")
		if !ok {
			continue
		}
		branches = append(branches, Branch{Name: name, Commit: commit})
	}
	return branches, nil
}

// IsRepository reports whether path is inside a git work tree.
func IsRepository(ctx context.Context, path string) bool {
	_, err := run(ctx, path, "rev-parse", "--git-dir")
	return err == nil
}

// GitDir returns the absolute .git directory for the repository, used by
// the head watcher to observe ref movement.
func GitDir(ctx context.Context, repoPath string) (string, error) {
	out, err := run(ctx, repoPath, "rev-parse", "--absolute-git-dir")
	if err != nil {
		return "", fmt.Errorf("gitrepo: git dir of %s: %s: %w", repoPath, gitStderr(err), apperr.ErrRepoState)
	}
	return strings.TrimSpace(string(out)), nil
}

func run(ctx context.Context, repoPath string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "git", append([]string{"-C", repoPath}, args...)...)
	return cmd.Output()
}

// gitStderr extracts git's stderr from a failed invocation for error text.
func gitStderr(err error) string {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if msg := strings.TrimSpace(string(exitErr.Stderr)); msg != "" {
			return msg
		}
	}
	return err.Error()
}
