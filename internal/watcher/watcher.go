package watcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher triggers a pipeline run when raw input files are written or
// created. Bursts of events within the debounce window give one trigger.
type Watcher struct {
	dirs     []string
	patterns []string
	debounce time.Duration
	trigger  func()
	watcher  *fsnotify.Watcher
	logger   *zap.Logger
}

// New watches dirs for files whose base name matches one of patterns.
func New(dirs, patterns []string, debounce time.Duration, trigger func(), logger *zap.Logger) (*Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			watcher.Close()
			return nil, fmt.Errorf("creating %s: %w", dir, err)
		}
		if err := watcher.Add(dir); err != nil {
			watcher.Close()
			return nil, fmt.Errorf("watching %s: %w", dir, err)
		}
	}

	return &Watcher{
		dirs:     dirs,
		patterns: patterns,
		debounce: debounce,
		trigger:  trigger,
		watcher:  watcher,
		logger:   logger,
	}, nil
}

// Watch blocks until ctx is done or the watcher is closed.
func (w *Watcher) Watch(ctx context.Context) error {
	defer w.watcher.Close()

	w.logger.Info("Watching input directories",
		zap.Strings("dirs", w.dirs),
		zap.Strings("patterns", w.patterns),
		zap.Duration("debounce", w.debounce))

	var timer *time.Timer
	var fire <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if !w.matches(event.Name) {
				continue
			}

			w.logger.Debug("Input file changed", zap.String("file", event.Name), zap.String("op", event.Op.String()))
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Stop()
				timer.Reset(w.debounce)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			w.logger.Info("Input files changed, triggering pipeline run")
			go w.trigger()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("File watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) Close() error {
	return w.watcher.Close()
}

func (w *Watcher) matches(name string) bool {
	base := filepath.Base(name)
	for _, pattern := range w.patterns {
		if ok, _ := filepath.Match(pattern, base); ok {
			return true
		}
	}
	return false
}
