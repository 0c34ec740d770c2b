package watcher

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
)

// Channel capacities shared by both backends. Events buffer a burst of
// library changes while the scanner catches up; errors are rare and drop
// rather than block.
const (
	eventChanCap = 100
	errorChanCap = 10
)

// Backend is the platform-specific watching implementation.
type Backend interface {
	// Watch adds a path to be monitored. The path can be a file or
	// directory. Directories are watched recursively.
	Watch(path string) error

	// Start begins watching for events and blocks until ctx is cancelled.
	Start(ctx context.Context) error

	// Stop releases all resources and closes the event channels.
	Stop() error

	// Events returns the channel for receiving file system events.
	Events() <-chan Event

	// Errors returns the channel for receiving watch errors.
	Errors() <-chan error
}

// sink is the outbound half shared by both backends: the event and error
// channels plus the done signal that keeps emit from blocking once the
// backend starts shutting down.
type sink struct {
	events chan Event
	errors chan error
	done   chan struct{}
	log    *slog.Logger
}

func newSink(log *slog.Logger) sink {
	return sink{
		events: make(chan Event, eventChanCap),
		errors: make(chan error, errorChanCap),
		done:   make(chan struct{}),
		log:    log,
	}
}

// emit delivers an event unless the backend is shutting down.
func (s *sink) emit(ev Event) {
	select {
	case s.events <- ev:
	case <-s.done:
	}
}

// fail reports a watch error without ever blocking the event loop.
func (s *sink) fail(err error) {
	select {
	case s.errors <- err:
	default:
		s.log.Warn("dropping watcher error", "error", err)
	}
}

// Events returns the channel for receiving file system events.
func (s *sink) Events() <-chan Event {
	return s.events
}

// Errors returns the channel for receiving watch errors.
func (s *sink) Errors() <-chan error {
	return s.errors
}

func (s *sink) closeChannels() {
	close(s.events)
	close(s.errors)
}

// watchTree walks root and registers every directory that survives the
// ignore rules. Unreadable entries are logged and skipped so one bad
// permission does not abort the whole walk.
func watchTree(root string, opts Options, log *slog.Logger, addDir func(string) error) error {
	return filepath.WalkDir(root, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			log.Warn("skipping unreadable path", "path", p, "error", err)
			return nil
		}
		if opts.shouldIgnore(p) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if err := addDir(p); err != nil {
			log.Error("failed to add watch", "path", p, "error", err)
		}
		return nil
	})
}
