package host

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/dentdelion-dev/dentdelion/domain/entities"
	domainerrors "github.com/dentdelion-dev/dentdelion/domain/errors"
)

// WatchHandler receives the re-discovered plugin list after changes settle.
type WatchHandler func(ctx context.Context, plugins []entities.DiscoveredPlugin)

// Watch re-runs Discover on the loader root whenever a binary or manifest
// below it changes, and passes the result to handler. Bursts of events are
// debounced. Watch blocks until ctx is done and returns nil then. The root
// must exist when Watch starts; Watch needs the OS filesystem.
func (l *Loader) Watch(ctx context.Context, handler WatchHandler) error {
	root := l.config.root
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(root); err != nil {
		return &domainerrors.IoError{Op: "watch", Path: root, Err: err}
	}
	entries, err := l.config.fs.ReadDir(root)
	if err != nil {
		return &domainerrors.IoError{Op: "readdir", Path: root, Err: err}
	}
	for _, e := range entries {
		if e.IsDir() {
			l.watchDir(watcher, filepath.Join(root, e.Name()))
		}
	}

	log := l.config.logger.With(zap.String("root", root))
	log.Info("watching plugin directory", zap.Duration("debounce", l.config.debounce))

	timer := time.NewTimer(l.config.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Create) && filepath.Dir(event.Name) == filepath.Clean(root) {
				if info, err := l.config.fs.Stat(event.Name); err == nil && info.IsDir() {
					l.watchDir(watcher, event.Name)
				}
			}
			if !relevant(event) {
				continue
			}
			log.Debug("plugin directory changed", zap.String("path", event.Name), zap.Stringer("op", event.Op))
			timer.Reset(l.config.debounce)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warn("watcher error", zap.Error(err))

		case <-timer.C:
			plugins, err := l.Discover(ctx, root)
			if err != nil {
				log.Warn("rediscovery failed", zap.Error(err))
				continue
			}
			handler(ctx, plugins)
		}
	}
}

func (l *Loader) watchDir(watcher *fsnotify.Watcher, dir string) {
	if err := watcher.Add(dir); err != nil {
		l.config.logger.Warn("cannot watch plugin directory", zap.String("path", dir), zap.Error(err))
	}
}

// relevant filters out chmod-only events and files that are neither
// binaries nor manifests. Directory events always count.
func relevant(event fsnotify.Event) bool {
	if event.Op == fsnotify.Chmod {
		return false
	}
	ext := filepath.Ext(event.Name)
	if ext == "" {
		return true
	}
	return strings.EqualFold(ext, wasmExt) || strings.EqualFold(ext, manifestExt)
}
