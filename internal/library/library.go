// Package library keeps the book catalog in step with the files on disk.
//
// A full scan walks the library directory, extracts every new or changed
// book, stores its record, saves its cover, and indexes its text for search.
// The watcher feeds the same pipeline incrementally, so a book dropped into
// the directory is narratable moments later without a manual rescan.
package library

import (
	"sync"
	"time"

	"github.com/aloudapp/aloud-server/internal/extract"
	"github.com/aloudapp/aloud-server/internal/logger"
	"github.com/aloudapp/aloud-server/internal/media/images"
	"github.com/aloudapp/aloud-server/internal/search"
	"github.com/aloudapp/aloud-server/internal/sse"
	"github.com/aloudapp/aloud-server/internal/store"
)

// Emitter publishes library events to connected clients. *sse.Manager
// satisfies it.
type Emitter interface {
	Emit(event sse.Event)
}

// Options configures a Scanner.
type Options struct {
	// Root is the library directory to scan.
	Root string
	// Workers bounds concurrent file extraction. Defaults to 4.
	Workers int
	// CalibreImport reads metadata.db at the library root when present and
	// overrides file-derived titles, authors, and series.
	CalibreImport bool
	// Debounce is how long the watcher batches changes before scanning.
	// Defaults to 2s.
	Debounce time.Duration
}

// ScanOptions tune one scan run.
type ScanOptions struct {
	// Force re-extracts every file even when it looks unchanged.
	Force bool
}

// Result is the outcome of one scan run.
type Result struct {
	ScanID      string
	StartedAt   time.Time
	CompletedAt time.Time
	Added       int
	Updated     int
	Removed     int
	Unchanged   int
	Errors      []ScanError
}

// ScanError records one file that failed during a scan.
type ScanError struct {
	Path string
	Err  error
}

// Scanner reconciles the store, search index, and cover storage with the
// files under the library root. One scan runs at a time; watcher batches
// queue behind a full scan.
type Scanner struct {
	store    *store.Store
	registry *extract.Registry
	covers   *images.Processor
	index    *search.SearchIndex
	emitter  Emitter
	log      *logger.Logger
	opts     Options

	mu sync.Mutex
}

// NewScanner creates a scanner. The search index and emitter may be nil in
// tests; covers must be present.
func NewScanner(st *store.Store, registry *extract.Registry, covers *images.Processor, index *search.SearchIndex, emitter Emitter, log *logger.Logger, opts Options) *Scanner {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.Debounce <= 0 {
		opts.Debounce = 2 * time.Second
	}
	return &Scanner{
		store:    st,
		registry: registry,
		covers:   covers,
		index:    index,
		emitter:  emitter,
		log:      log,
		opts:     opts,
	}
}

// Root returns the configured library directory.
func (s *Scanner) Root() string {
	return s.opts.Root
}

func (s *Scanner) emit(event sse.Event) {
	if s.emitter != nil {
		s.emitter.Emit(event)
	}
}
