// Package watcher reports file changes under the library directory so new
// and edited books are picked up without a manual rescan.
package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
)

// Watcher monitors a directory tree for book file changes.
type Watcher struct {
	backend Backend
	logger  *slog.Logger
}

// New creates a watcher with the best backend for the platform:
// inotify with IN_CLOSE_WRITE on Linux (a finished write is reported the
// moment the writer closes the file), fsnotify with settle-delay debouncing
// everywhere else.
func New(logger *slog.Logger, opts Options) (*Watcher, error) {
	opts.setDefaults()

	var (
		backend Backend
		err     error
	)
	if runtime.GOOS == "linux" {
		backend, err = newLinuxBackend(logger, opts)
	} else {
		backend, err = newFallbackBackend(logger, opts)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create backend: %w", err)
	}

	logger.Debug("watcher backend ready", "platform", runtime.GOOS)

	return &Watcher{
		backend: backend,
		logger:  logger,
	}, nil
}

// Watch adds a path to be monitored.
// The path can be a file or directory. Directories are watched recursively.
func (w *Watcher) Watch(path string) error {
	return w.backend.Watch(path)
}

// Start begins watching for events.
// This method blocks until the context is cancelled.
func (w *Watcher) Start(ctx context.Context) error {
	return w.backend.Start(ctx)
}

// Stop stops the watcher and releases resources.
func (w *Watcher) Stop() error {
	return w.backend.Stop()
}

// Events returns the channel for receiving file system events.
func (w *Watcher) Events() <-chan Event {
	return w.backend.Events()
}

// Errors returns the channel for receiving errors.
func (w *Watcher) Errors() <-chan error {
	return w.backend.Errors()
}
