package config

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// ErrWatcherFailed indicates the filesystem watcher failed to initialize.
var ErrWatcherFailed = errors.New("failed to initialize config watcher")

// Watcher reloads router tunables from a YAML file whenever it changes and
// publishes them to a Live cell. Only the router section is hot-reloaded;
// server, cache and transport settings require a restart.
type Watcher struct {
	path    string
	live    *Live
	logger  *zap.Logger
	watcher *fsnotify.Watcher
	load    func(path string) (*Config, error)
	stop    chan struct{}
	done    chan struct{}
	started atomic.Bool
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithWatcherLogger sets the logger.
func WithWatcherLogger(logger *zap.Logger) WatcherOption {
	return func(w *Watcher) {
		w.logger = logger
	}
}

// WithLoader overrides how the file is parsed. The default is LoadWithFile.
func WithLoader(load func(path string) (*Config, error)) WatcherOption {
	return func(w *Watcher) {
		w.load = load
	}
}

// NewWatcher creates a watcher for path. Call Start to begin watching.
func NewWatcher(path string, live *Live, opts ...WatcherOption) (*Watcher, error) {
	if path == "" {
		return nil, fmt.Errorf("config path is required")
	}
	if live == nil {
		return nil, fmt.Errorf("live config is required")
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWatcherFailed, err)
	}

	w := &Watcher{
		path:    filepath.Clean(path),
		live:    live,
		logger:  zap.NewNop(),
		watcher: fw,
		load:    LoadWithFile,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Start begins watching in a background goroutine.
//
// The parent directory is watched rather than the file itself because
// editors and config management tools usually replace files by rename.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.watcher.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("watching %s: %w", filepath.Dir(w.path), err)
	}
	w.started.Store(true)
	go w.processEvents(ctx)
	return nil
}

// Stop stops the watcher and waits for the event loop to exit.
func (w *Watcher) Stop() {
	select {
	case <-w.stop:
		return
	default:
		close(w.stop)
		_ = w.watcher.Close()
	}
	if w.started.Load() {
		<-w.done
	}
}

func (w *Watcher) processEvents(ctx context.Context) {
	defer close(w.done)

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stop:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.Reload()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("config watcher error", zap.Error(err))
		}
	}
}

// Reload reads the file once and publishes the router section. Invalid
// files are logged and leave the active tunables untouched.
func (w *Watcher) Reload() bool {
	cfg, err := w.load(w.path)
	if err != nil {
		w.logger.Warn("config reload rejected", zap.String("path", w.path), zap.Error(err))
		return false
	}
	if err := cfg.Router.Validate(); err != nil {
		w.logger.Warn("config reload rejected", zap.String("path", w.path), zap.Error(err))
		return false
	}

	w.live.Store(cfg.Router)
	w.logger.Info("router config reloaded",
		zap.String("path", w.path),
		zap.Bool("thompson_enabled", cfg.Router.ThompsonEnabled),
		zap.Bool("contextual_enabled", cfg.Router.ContextualEnabled),
		zap.Float64("epsilon", cfg.Router.Epsilon),
	)
	return true
}
