// Package cachefs provides the rooted file-system layer under which all
// rendered-document cache entries and materialized assets live.
package cachefs

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FS is a file store rooted at a cache directory. All paths passed to its
// methods are relative to that root; anything that resolves outside the
// root is rejected.
type FS struct {
	root string // absolute path to the cache root
}

// NewFS creates an FS rooted at root, creating the directory if needed.
func NewFS(root string) (*FS, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("cachefs: resolve root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("cachefs: create root: %w", err)
	}
	return &FS{root: abs}, nil
}

// Root returns the absolute cache root path.
func (f *FS) Root() string {
	return f.root
}

// safePath resolves a relative path against the cache root and rejects
// any result that escapes it (directory traversal).
func (f *FS) safePath(rel string) (string, error) {
	if rel == "" {
		return f.root, nil
	}
	cleaned := filepath.Clean(filepath.FromSlash(rel))
	if filepath.IsAbs(cleaned) {
		return "", fmt.Errorf("cachefs: absolute paths not allowed: %s", rel)
	}
	joined := filepath.Join(f.root, cleaned)
	abs, err := filepath.Abs(joined)
	if err != nil {
		return "", fmt.Errorf("cachefs: resolve path: %w", err)
	}
	if !strings.HasPrefix(abs, f.root+string(os.PathSeparator)) && abs != f.root {
		return "", fmt.Errorf("cachefs: path escapes cache root: %s", rel)
	}
	return abs, nil
}

// Exists reports whether a regular file exists at path.
func (f *FS) Exists(path string) bool {
	abs, err := f.safePath(path)
	if err != nil {
		return false
	}
	info, err := os.Stat(abs)
	return err == nil && info.Mode().IsRegular()
}

// Read returns the raw bytes of a cache file.
func (f *FS) Read(path string) ([]byte, error) {
	abs, err := f.safePath(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("cachefs: read %s: %w", path, err)
	}
	return data, nil
}

// WriteAtomic writes content via tmp file → fsync → rename, so a concurrent
// reader never observes a half-written cache entry.
func (f *FS) WriteAtomic(path string, content []byte) error {
	abs, err := f.safePath(path)
	if err != nil {
		return err
	}
	dir := filepath.Dir(abs)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cachefs: mkdir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".perth-tmp-*")
	if err != nil {
		return fmt.Errorf("cachefs: create temp: %w", err)
	}
	tmpName := tmp.Name()

	// Clean up on any failure path.
	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(content); err != nil {
		return fmt.Errorf("cachefs: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("cachefs: fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("cachefs: close temp: %w", err)
	}
	if err := os.Rename(tmpName, abs); err != nil {
		return fmt.Errorf("cachefs: rename: %w", err)
	}
	success = true
	return nil
}

// ReadDir returns the entry names directly under dir (relative to root).
// A missing directory yields an empty listing, not an error.
func (f *FS) ReadDir(dir string) ([]string, error) {
	abs, err := f.safePath(dir)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("cachefs: read dir %s: %w", dir, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names, nil
}

// Remove deletes a single cache file. Missing files are not an error.
func (f *FS) Remove(path string) error {
	abs, err := f.safePath(path)
	if err != nil {
		return err
	}
	if err := os.Remove(abs); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("cachefs: remove %s: %w", path, err)
	}
	return nil
}

// RemoveAll deletes a directory subtree under the root. Used only by
// out-of-band cache eviction; the render path never deletes.
func (f *FS) RemoveAll(dir string) error {
	abs, err := f.safePath(dir)
	if err != nil {
		return err
	}
	if abs == f.root {
		return fmt.Errorf("cachefs: refusing to remove cache root")
	}
	if err := os.RemoveAll(abs); err != nil {
		return fmt.Errorf("cachefs: remove all %s: %w", dir, err)
	}
	return nil
}
