package appstate

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// reloadDelay coalesces the burst of events one save produces.
const reloadDelay = 100 * time.Millisecond

// Watch reloads the registries when their files change on disk, for example
// when another codecheck instance saves. It blocks until ctx is done.
func (s *State) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = watcher.Close() }()

	linesPath, productsPath := s.Paths()
	targets := map[string]struct{}{}
	dirs := map[string]struct{}{}
	for _, p := range []string{linesPath, productsPath} {
		abs, err := filepath.Abs(p)
		if err != nil {
			return err
		}
		targets[abs] = struct{}{}
		dirs[filepath.Dir(abs)] = struct{}{}
	}
	// Files are replaced by rename, so watch the directories.
	for dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			s.logger.Warn("failed to watch registry directory", slog.String("dir", dir), slog.String("error", err.Error()))
		}
	}

	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			abs, err := filepath.Abs(event.Name)
			if err != nil {
				continue
			}
			if _, ok := targets[abs]; !ok {
				continue
			}

			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(reloadDelay, func() {
				if ctx.Err() != nil {
					return
				}
				s.logger.Debug("registry changed on disk, reloading", slog.String("file", event.Name))
				if err := s.Reload(); err != nil {
					s.logger.Error("reload failed", slog.String("error", err.Error()))
				}
			})

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Error("watcher error", slog.String("error", err.Error()))
		}
	}
}
