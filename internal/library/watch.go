package library

import (
	"context"
	"maps"
	"slices"
	"time"

	"github.com/aloudapp/aloud-server/internal/watcher"
)

// Watch consumes filesystem events and feeds them to the scanner until ctx
// ends. Ready files and removals are batched for the debounce window, so a
// whole series copied in lands as one incremental scan. Ready paths run
// before removals: a rename then shows up as a relocation instead of a
// delete and re-add that would lose reading progress.
func (s *Scanner) Watch(ctx context.Context) error {
	w, err := watcher.New(s.log.Logger, watcher.Options{
		Extensions: s.registry.Extensions(),
	})
	if err != nil {
		return err
	}
	if err := w.Watch(s.opts.Root); err != nil {
		w.Stop()
		return err
	}
	defer w.Stop()

	// Start blocks until ctx ends; the backends deliver through Events.
	go func() { _ = w.Start(ctx) }()

	s.log.Info("library watch started", "path", s.opts.Root)

	ready := map[string]bool{}
	removed := map[string]bool{}

	var timer *time.Timer
	var flush <-chan time.Time
	arm := func() {
		if timer == nil {
			timer = time.NewTimer(s.opts.Debounce)
			flush = timer.C
			return
		}
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(s.opts.Debounce)
	}

	events := w.Events()
	errs := w.Errors()
	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-events:
			if !ok {
				return nil
			}
			switch ev.Type {
			case watcher.EventReady:
				ready[ev.Path] = true
				delete(removed, ev.Path)
				arm()
			case watcher.EventRemoved:
				removed[ev.Path] = true
				delete(ready, ev.Path)
				arm()
			}

		case werr, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			s.log.WithError(werr).Warn("watcher error")

		case <-flush:
			timer = nil
			flush = nil
			readyPaths := slices.Sorted(maps.Keys(ready))
			removedPaths := slices.Sorted(maps.Keys(removed))
			clear(ready)
			clear(removed)

			if len(readyPaths) > 0 {
				if _, err := s.ScanPaths(ctx, readyPaths); err != nil {
					if ctx.Err() != nil {
						return nil
					}
					s.log.WithError(err).Warn("incremental scan failed")
				}
			}
			for _, path := range removedPaths {
				s.RemovePath(ctx, path)
			}
		}
	}
}
