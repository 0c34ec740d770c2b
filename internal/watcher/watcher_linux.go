//go:build linux

package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"
)

// pollTimeoutMs bounds how long the read loop sits in poll before it
// rechecks for shutdown. The inotify descriptor is non-blocking.
const pollTimeoutMs = 250

// inotifyBufSize holds a batch of records with full-length names.
const inotifyBufSize = 64 * (unix.SizeofInotifyEvent + unix.NAME_MAX + 1)

// watchMask selects the events a directory watch subscribes to. Close-write
// and moved-to mark finished files, create catches new subdirectories, and
// the delete and moved-from bits cover every way an entry can leave.
const watchMask = unix.IN_CLOSE_WRITE | unix.IN_MOVED_TO | unix.IN_CREATE |
	unix.IN_DELETE | unix.IN_DELETE_SELF | unix.IN_MOVED_FROM

// linuxBackend implements Backend with inotify. IN_CLOSE_WRITE reports a
// file only after its writer closed it, so no settle delay is needed.
type linuxBackend struct {
	sink
	opts Options

	mu       sync.RWMutex
	wdByPath map[string]int
	pathByWd map[int]string

	fd       int
	wg       sync.WaitGroup
	stopOnce sync.Once
}

func newLinuxBackend(log *slog.Logger, opts Options) (*linuxBackend, error) {
	fd, err := unix.InotifyInit1(unix.IN_CLOEXEC | unix.IN_NONBLOCK)
	if err != nil {
		return nil, fmt.Errorf("inotify_init1: %w", err)
	}

	return &linuxBackend{
		sink:     newSink(log),
		opts:     opts,
		fd:       fd,
		wdByPath: make(map[string]int),
		pathByWd: make(map[int]string),
	}, nil
}

// Watch adds a path to be monitored. Directories are watched recursively.
func (b *linuxBackend) Watch(path string) error {
	path = filepath.Clean(path)

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}
	if !info.IsDir() {
		// Single files report through a watch on their parent.
		return b.addWatch(filepath.Dir(path))
	}
	return watchTree(path, b.opts, b.log, b.addWatch)
}

// addWatch registers an inotify watch on one directory.
func (b *linuxBackend) addWatch(path string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.wdByPath[path]; ok {
		return nil
	}

	wd, err := unix.InotifyAddWatch(b.fd, path, watchMask)
	if err != nil {
		return fmt.Errorf("inotify_add_watch %s: %w", path, err)
	}

	b.wdByPath[path] = wd
	b.pathByWd[wd] = path
	b.log.Debug("watching directory", "path", path, "wd", wd)
	return nil
}

// forgetWatch drops the bookkeeping for a watched directory that was
// deleted. Removing the kernel watch may fail if the inode is already gone,
// which is fine.
func (b *linuxBackend) forgetWatch(path string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	wd, ok := b.wdByPath[path]
	if !ok {
		return
	}

	_, _ = unix.InotifyRmWatch(b.fd, uint32(wd))
	delete(b.wdByPath, path)
	delete(b.pathByWd, wd)
}

// Start begins the read loop and blocks until ctx is cancelled.
func (b *linuxBackend) Start(ctx context.Context) error {
	b.wg.Add(1)
	go b.readLoop(ctx)

	<-ctx.Done()
	return nil
}

// readLoop drains the inotify descriptor until shutdown. Poll paces the
// loop so Stop never hangs waiting on a read.
func (b *linuxBackend) readLoop(ctx context.Context) {
	defer b.wg.Done()

	buf := make([]byte, inotifyBufSize)
	fds := []unix.PollFd{{Fd: int32(b.fd), Events: unix.POLLIN}}

	for {
		select {
		case <-ctx.Done():
			return
		case <-b.done:
			return
		default:
		}

		n, err := unix.Poll(fds, pollTimeoutMs)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			b.fail(fmt.Errorf("poll inotify: %w", err))
			return
		}
		if n == 0 {
			continue
		}

		rd, err := unix.Read(b.fd, buf)
		if err != nil {
			if err == unix.EINTR || err == unix.EAGAIN {
				continue
			}
			b.fail(fmt.Errorf("read inotify: %w", err))
			return
		}
		if rd < unix.SizeofInotifyEvent {
			continue
		}

		b.decode(buf[:rd])
	}
}

// decode walks a raw buffer of inotify records and dispatches each one.
func (b *linuxBackend) decode(buf []byte) {
	for off := 0; off < len(buf); {
		raw := (*unix.InotifyEvent)(unsafe.Pointer(&buf[off]))
		end := off + unix.SizeofInotifyEvent + int(raw.Len)

		name := ""
		if raw.Len > 0 {
			tail := buf[off+unix.SizeofInotifyEvent : end]
			name = string(tail[:clen(tail)])
		}
		off = end

		b.mu.RLock()
		dir, known := b.pathByWd[int(raw.Wd)]
		b.mu.RUnlock()
		if !known {
			continue
		}

		b.dispatch(filepath.Join(dir, name), raw.Mask)
	}
}

// dispatch translates one inotify record into watcher events.
func (b *linuxBackend) dispatch(path string, mask uint32) {
	if b.opts.shouldIgnore(path) {
		return
	}

	// A directory showing up whole needs its own watch. Files inside a
	// moved-in directory were closed elsewhere and will never report a
	// close here, so they get swept explicitly.
	if mask&(unix.IN_CREATE|unix.IN_MOVED_TO) != 0 {
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			if err := watchTree(path, b.opts, b.log, b.addWatch); err != nil {
				b.log.Warn("failed to watch new directory", "path", path, "error", err)
			}
			if mask&unix.IN_MOVED_TO != 0 {
				b.sweep(path)
			}
			return
		}
	}

	switch {
	case mask&unix.IN_DELETE != 0:
		b.emit(Event{Type: EventRemoved, Path: path})
	case mask&unix.IN_DELETE_SELF != 0:
		b.emit(Event{Type: EventRemoved, Path: path})
		b.forgetWatch(path)
	case mask&unix.IN_MOVED_FROM != 0:
		// Moved out of the tree reads as a removal from here.
		b.emit(Event{Type: EventRemoved, Path: path})
	case mask&(unix.IN_CLOSE_WRITE|unix.IN_MOVED_TO) != 0:
		b.ready(path)
	}
}

// sweep reports files already present under dir, used when a directory is
// moved into the tree with its contents intact.
func (b *linuxBackend) sweep(dir string) {
	_ = filepath.WalkDir(dir, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if b.opts.shouldIgnore(p) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.IsDir() {
			b.ready(p)
		}
		return nil
	})
}

// ready emits a ready event for a finished file that passes the filters.
func (b *linuxBackend) ready(path string) {
	if !b.opts.wantsFile(path) {
		return
	}

	info, err := os.Stat(path)
	if err != nil {
		// Gone between close and stat; a removal record will follow.
		b.log.Debug("stat after close failed", "path", path, "error", err)
		return
	}
	if info.IsDir() {
		return
	}

	b.emit(Event{
		Type:    EventReady,
		Path:    path,
		Size:    info.Size(),
		ModTime: info.ModTime(),
	})
}

// Stop shuts down the backend and closes the event channels.
func (b *linuxBackend) Stop() error {
	var err error
	b.stopOnce.Do(func() {
		close(b.done)
		b.wg.Wait()

		if b.fd >= 0 {
			err = unix.Close(b.fd)
		}
		b.closeChannels()
	})
	return err
}

// clen finds the NUL terminator in an inotify name field.
func clen(b []byte) int {
	for i, c := range b {
		if c == 0 {
			return i
		}
	}
	return len(b)
}

// newFallbackBackend exists so watcher.go compiles on Linux. New never
// calls it here.
func newFallbackBackend(*slog.Logger, Options) (Backend, error) {
	return nil, fmt.Errorf("fsnotify fallback is not used on linux")
}
