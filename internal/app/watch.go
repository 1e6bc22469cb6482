package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// watchDebounce groups bursts of editor writes into one re-run.
const watchDebounce = 200 * time.Millisecond

var watchedExtensions = map[string]bool{".yaml": true, ".yml": true, ".toml": true}

// watch runs once and then again after every change under the config
// directories, until ctx is cancelled. Failed runs are logged, not returned.
func (a *App) watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	for _, dir := range a.repo.Dirs() {
		if err := addRecursive(watcher, dir); err != nil {
			return err
		}
	}

	a.rerun(ctx)
	a.logger.Info("Watching config directories for changes.", "dirs", a.repo.Dirs())

	var (
		timer *time.Timer
		fire  <-chan time.Time
	)
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&fsnotify.Create == fsnotify.Create {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := addRecursive(watcher, event.Name); err != nil {
						a.logger.Warn("Failed to watch new directory.", "path", event.Name, "error", err)
					}
					continue
				}
			}
			if !watchedExtensions[filepath.Ext(event.Name)] {
				continue
			}
			a.logger.Debug("Config change detected.", "path", event.Name, "op", event.Op.String())
			if timer == nil {
				timer = time.NewTimer(watchDebounce)
			} else {
				timer.Reset(watchDebounce)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			a.rerun(ctx)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			a.logger.Warn("Watcher error.", "error", err)
		}
	}
}

func (a *App) rerun(ctx context.Context) {
	if err := a.runOnce(ctx); err != nil {
		a.logger.Error("Run failed.", "error", err)
	}
}

func addRecursive(w *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if err := w.Add(path); err != nil {
			return fmt.Errorf("failed to watch '%s': %w", path, err)
		}
		return nil
	})
}
