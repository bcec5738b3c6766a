package collection

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DebounceInterval coalesces bursts of file events into one reload.
const DebounceInterval = 200 * time.Millisecond

// Watch watches the collection file and its media directory until ctx is
// cancelled, calling onChange once per burst of changes. Editors that save
// through a rename are handled by watching the parent directory.
func Watch(ctx context.Context, file, mediaDir string, logger *slog.Logger, onChange func()) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	file, err = filepath.Abs(file)
	if err != nil {
		return err
	}
	if err := w.Add(filepath.Dir(file)); err != nil {
		return err
	}
	if mediaDir == "" {
		mediaDir = filepath.Join(filepath.Dir(file), "media")
	}
	if mediaDir, err = filepath.Abs(mediaDir); err != nil {
		return err
	}
	if info, statErr := os.Stat(mediaDir); statErr == nil && info.IsDir() {
		if err := w.Add(mediaDir); err != nil {
			logger.Warn("watcher: add media dir failed", slog.String("path", mediaDir), slog.String("error", err.Error()))
		}
	}

	logger.Info("watcher: started", slog.String("file", file), slog.String("media_dir", mediaDir))

	var debounce *time.Timer
	var fire <-chan time.Time
	schedule := func() {
		if debounce == nil {
			debounce = time.NewTimer(DebounceInterval)
			fire = debounce.C
		} else {
			debounce.Reset(DebounceInterval)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if debounce != nil {
				debounce.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-fire:
			debounce, fire = nil, nil
			logger.Debug("watcher: collection changed", slog.String("file", file))
			onChange()

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			name := filepath.Clean(ev.Name)
			switch {
			case name == file:
			case filepath.Dir(name) == mediaDir:
			case name == mediaDir && ev.Op&fsnotify.Create != 0:
				if err := w.Add(mediaDir); err != nil {
					logger.Warn("watcher: add media dir failed", slog.String("path", mediaDir), slog.String("error", err.Error()))
				}
			default:
				continue
			}
			schedule()

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}
