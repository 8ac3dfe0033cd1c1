package git

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// Watch reports ref updates under gitDir until ctx is done. notify receives
// the short branch name when the event path identifies one, "" otherwise
// (packed-refs rewrites, HEAD moves).
func Watch(ctx context.Context, gitDir string, notify func(branch string)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("fsnotify: %w", err)
	}
	for _, p := range watchPaths(gitDir) {
		slog.Debug("adding path to FS watcher", slog.String("path", p))
		if err := watcher.Add(p); err != nil {
			err := errors.Join(err, watcher.Close())
			return fmt.Errorf("watch %s: %w", p, err)
		}
	}
	go watchLoop(ctx, watcher, gitDir, notify)
	return nil
}

func watchLoop(ctx context.Context, w *fsnotify.Watcher, gitDir string, notify func(string)) {
	defer func() {
		if err := w.Close(); err != nil {
			slog.Error("watcher close", slog.Any("error", err))
		}
	}()
	headsDir := filepath.Join(gitDir, "refs", "heads")
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if shouldIgnoreWatchPath(ev.Name) {
				continue
			}
			slog.Debug("fsnotify event",
				slog.String("op", ev.Op.String()),
				slog.String("path", ev.Name),
			)
			notify(branchFromPath(headsDir, ev.Name))
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			slog.Error("fsnotify error", slog.Any("error", err))
		}
	}
}

// GitDir locates the object database directory of a work tree or bare
// repository path.
func GitDir(repoPath string) string {
	dotGit := filepath.Join(repoPath, ".git")
	if info, err := os.Stat(dotGit); err == nil && info.IsDir() {
		return dotGit
	}
	return repoPath
}

func watchPaths(gitDir string) []string {
	paths := []string{gitDir}
	headsDir := filepath.Join(gitDir, "refs", "heads")
	if info, err := os.Stat(headsDir); err == nil && info.IsDir() {
		paths = append(paths, headsDir)
	}
	return paths
}

func branchFromPath(headsDir, name string) string {
	rel, err := filepath.Rel(headsDir, name)
	if err != nil || strings.HasPrefix(rel, "..") {
		return ""
	}
	return filepath.ToSlash(strings.TrimSuffix(rel, ".lock"))
}

func shouldIgnoreWatchPath(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	if ext == ".lock" || ext == ".ipc" {
		return true
	}
	base := filepath.Base(name)
	return base == "index" || base == "FETCH_HEAD" || base == "ORIG_HEAD"
}
