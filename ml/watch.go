package ml

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// WatchArtifact reloads path into h whenever the file is replaced. The parent
// directory is watched because FileStore writes by rename. An artifact that
// encodes the model already being served is not reloaded. onSwap, if set, is
// called after each successful reload. It blocks until ctx is done.
func WatchArtifact(ctx context.Context, path string, h *ModelHandle, logger *zap.Logger, onSwap func(*LoadedModel)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return err
	}
	target := filepath.Clean(path)

	// Writers may emit several events per replacement; coalesce them.
	const settle = 200 * time.Millisecond
	var timer *time.Timer
	var fire <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target || ev.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(settle)
			} else {
				timer.Reset(settle)
			}
			fire = timer.C
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("artifact watcher error", zap.Error(err))
		case <-fire:
			fire = nil
			model, err := LoadModel(path)
			if err != nil {
				logger.Warn("artifact reload failed; keeping current model",
					zap.String("path", path), zap.Error(err))
				continue
			}
			loaded, changed := h.SwapIfChanged(model, path)
			if !changed {
				logger.Debug("artifact matches the serving model", zap.String("version", loaded.Version))
				continue
			}
			logger.Info("model reloaded",
				zap.String("path", path), zap.String("version", loaded.Version))
			if onSwap != nil {
				onSwap(loaded)
			}
		}
	}
}
