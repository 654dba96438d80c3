package gitrepo

import (
	"context"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// WatchTarget is one repository observed by the head watcher.
type WatchTarget struct {
	ID   int64
	Path string
}

// HeadEvent reports that a branch tip moved.
type HeadEvent struct {
	RepoID int64  `json:"repo_id"`
	Branch string `json:"branch"`
	Commit string `json:"commit"`
}

// HeadCallback is called for each branch whose tip changed.
type HeadCallback func(HeadEvent)

// WatchHeads observes the .git ref storage of each target repository and
// reports branch-tip movement until ctx is cancelled. Ref updates arrive
// as several filesystem events (lock file, rename, packed-refs rewrite),
// so changes are debounced per repository and re-read through
// ListBranches rather than interpreted from the event stream.
//
// The render cache is commit-addressed, so these events never invalidate
// anything; they tell connected editors that a new commit exists.
//
// TODO: repositories registered after startup are not picked up until
// restart; the watcher needs an add/remove API wired to the repos API.
func WatchHeads(ctx context.Context, targets []WatchTarget, logger *slog.Logger, cb HeadCallback) error {
	if len(targets) == 0 {
		<-ctx.Done()
		return nil
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	// gitDir → target, for mapping events back to a repository.
	byDir := make(map[string]WatchTarget, len(targets))
	tips := make(map[int64]map[string]string, len(targets))

	for _, t := range targets {
		gitDir, dirErr := GitDir(ctx, t.Path)
		if dirErr != nil {
			logger.Warn("watcher: skip repo", slog.Int64("repo_id", t.ID), slog.String("error", dirErr.Error()))
			continue
		}
		if addErr := addRefDirs(w, gitDir); addErr != nil {
			logger.Warn("watcher: watch failed", slog.Int64("repo_id", t.ID), slog.String("error", addErr.Error()))
			continue
		}
		byDir[gitDir] = t
		tips[t.ID] = snapshotTips(ctx, t.Path)
	}

	logger.Info("watcher: started", slog.Int("repos", len(byDir)))

	// Debounce: collect dirty repos, flush 200ms after the last event.
	dirty := make(map[int64]WatchTarget)
	var flushTimer *time.Timer
	var flushCh <-chan time.Time

	scheduleFlush := func() {
		if flushTimer == nil {
			flushTimer = time.NewTimer(200 * time.Millisecond)
			flushCh = flushTimer.C
		} else {
			flushTimer.Reset(200 * time.Millisecond)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if flushTimer != nil {
				flushTimer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-flushCh:
			for id, t := range dirty {
				delete(dirty, id)
				now := snapshotTips(ctx, t.Path)
				for branch, commit := range now {
					if tips[id][branch] != commit {
						logger.Debug("watcher: head moved",
							slog.Int64("repo_id", id),
							slog.String("branch", branch),
							slog.String("commit", commit))
						if cb != nil {
							cb(HeadEvent{RepoID: id, Branch: branch, Commit: commit})
						}
					}
				}
				tips[id] = now
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			// Ignore git's transient lock files.
			if strings.HasSuffix(ev.Name, ".lock") {
				continue
			}
			for gitDir, t := range byDir {
				if ev.Name == gitDir || strings.HasPrefix(ev.Name, gitDir+string(filepath.Separator)) {
					dirty[t.ID] = t
					scheduleFlush()
					break
				}
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// snapshotTips returns branch → tip commit, empty on error (an empty
// repository simply has no tips yet).
func snapshotTips(ctx context.Context, repoPath string) map[string]string {
	branches, err := ListBranches(ctx, repoPath)
	if err != nil {
		return map[string]string{}
	}
	out := make(map[string]string, len(branches))
	for _, b := range branches {
		out[b.Name] = b.Commit
	}
	return out
}

// addRefDirs watches the places git stores ref tips: the .git directory
// itself (HEAD, packed-refs) and every directory under refs/heads.
func addRefDirs(w *fsnotify.Watcher, gitDir string) error {
	if err := w.Add(gitDir); err != nil {
		return err
	}
	headsDir := filepath.Join(gitDir, "refs", "heads")
	return filepath.WalkDir(headsDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // refs/heads may not exist yet in an empty repo
		}
		if d.IsDir() {
			return w.Add(path)
		}
		return nil
	})
}
