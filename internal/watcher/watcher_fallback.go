//go:build !linux

package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// fallbackBackend implements Backend on top of fsnotify. fsnotify has no
// close-after-write signal, so a file counts as ready once its size and
// mtime stop moving for the settle delay.
type fallbackBackend struct {
	sink
	opts Options
	fs   *fsnotify.Watcher

	mu       sync.Mutex
	settling map[string]*settleState

	wg       sync.WaitGroup
	stopOnce sync.Once
}

// settleState is the last observed shape of a file still being written.
type settleState struct {
	size  int64
	mtime time.Time
	timer *time.Timer
}

func newFallbackBackend(log *slog.Logger, opts Options) (*fallbackBackend, error) {
	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("fsnotify: %w", err)
	}

	return &fallbackBackend{
		sink:     newSink(log),
		opts:     opts,
		fs:       fs,
		settling: make(map[string]*settleState),
	}, nil
}

// Watch adds a path to be monitored. Directories are watched recursively.
func (b *fallbackBackend) Watch(path string) error {
	path = filepath.Clean(path)

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}
	if !info.IsDir() {
		// Single files report through a watch on their parent.
		return b.fs.Add(filepath.Dir(path))
	}
	return watchTree(path, b.opts, b.log, b.addDir)
}

func (b *fallbackBackend) addDir(path string) error {
	if err := b.fs.Add(path); err != nil {
		return err
	}
	b.log.Debug("watching directory", "path", path)
	return nil
}

// Start begins the event loop and blocks until ctx is cancelled.
func (b *fallbackBackend) Start(ctx context.Context) error {
	b.wg.Add(1)
	go b.run(ctx)

	<-ctx.Done()
	return nil
}

func (b *fallbackBackend) run(ctx context.Context) {
	defer b.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-b.done:
			return
		case ev, ok := <-b.fs.Events:
			if !ok {
				return
			}
			b.dispatch(ev)
		case err, ok := <-b.fs.Errors:
			if !ok {
				return
			}
			b.fail(err)
		}
	}
}

// dispatch translates one fsnotify event into watcher events.
func (b *fallbackBackend) dispatch(ev fsnotify.Event) {
	path := ev.Name
	if b.opts.shouldIgnore(path) {
		return
	}

	// New directories need their own watch before anything inside them can
	// report.
	if ev.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			if err := watchTree(path, b.opts, b.log, b.addDir); err != nil {
				b.log.Warn("failed to watch new directory", "path", path, "error", err)
			}
			return
		}
	}

	// fsnotify reports a rename at the old path; the new path arrives as a
	// separate create. Either way the old path is gone.
	if ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
		b.untrack(path)
		b.emit(Event{Type: EventRemoved, Path: path})
		return
	}

	if ev.Op&(fsnotify.Write|fsnotify.Create) != 0 {
		b.track(path)
	}
}

// track starts or restarts the settle timer for a file.
func (b *fallbackBackend) track(path string) {
	if !b.opts.wantsFile(path) {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if st, ok := b.settling[path]; ok {
		st.timer.Stop()
	}

	info, err := os.Stat(path)
	if err != nil {
		// Gone already; a remove event will follow.
		delete(b.settling, path)
		return
	}
	if info.IsDir() {
		return
	}

	st := &settleState{size: info.Size(), mtime: info.ModTime()}
	st.timer = time.AfterFunc(b.opts.SettleDelay, func() { b.settle(path) })
	b.settling[path] = st
}

// settle fires when a file's timer expires. If the file stopped changing it
// becomes ready, otherwise the timer restarts with the fresh size and mtime.
func (b *fallbackBackend) settle(path string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	st, ok := b.settling[path]
	if !ok {
		return
	}

	info, err := os.Stat(path)
	if err != nil {
		// Deleted mid-settle.
		delete(b.settling, path)
		b.emit(Event{Type: EventRemoved, Path: path})
		return
	}

	if info.Size() != st.size || !info.ModTime().Equal(st.mtime) {
		st.size = info.Size()
		st.mtime = info.ModTime()
		st.timer = time.AfterFunc(b.opts.SettleDelay, func() { b.settle(path) })
		return
	}

	delete(b.settling, path)
	b.emit(Event{
		Type:    EventReady,
		Path:    path,
		Size:    info.Size(),
		ModTime: info.ModTime(),
	})
}

// untrack drops a file from the settle map.
func (b *fallbackBackend) untrack(path string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if st, ok := b.settling[path]; ok {
		st.timer.Stop()
		delete(b.settling, path)
	}
}

// Stop shuts down the backend and closes the event channels.
func (b *fallbackBackend) Stop() error {
	b.stopOnce.Do(func() {
		close(b.done)

		b.mu.Lock()
		for _, st := range b.settling {
			st.timer.Stop()
		}
		clear(b.settling)
		b.mu.Unlock()

		b.fs.Close()
		b.wg.Wait()
		b.closeChannels()
	})
	return nil
}

// newLinuxBackend exists so watcher.go compiles off Linux. New never calls
// it here.
func newLinuxBackend(*slog.Logger, Options) (Backend, error) {
	return nil, fmt.Errorf("inotify backend requires linux")
}
