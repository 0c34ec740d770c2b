package library

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aloudapp/aloud-server/internal/calibre"
	"github.com/aloudapp/aloud-server/internal/chunker"
	"github.com/aloudapp/aloud-server/internal/domain"
	apperrors "github.com/aloudapp/aloud-server/internal/errors"
	"github.com/aloudapp/aloud-server/internal/extract"
	"github.com/aloudapp/aloud-server/internal/id"
	"github.com/aloudapp/aloud-server/internal/sse"
	"github.com/aloudapp/aloud-server/internal/store"
)

type action int

const (
	actionNone action = iota
	actionAdded
	actionUpdated
	actionUnchanged
)

// Scan walks the library root and reconciles the catalog with what is on
// disk: new files become books, changed files are re-extracted, vanished
// files take their records with them.
func (s *Scanner) Scan(ctx context.Context, opts ScanOptions) (*Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	root := s.opts.Root
	if root == "" {
		return nil, apperrors.Validation("library path not configured")
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, apperrors.NotFoundf("library path %q: %v", root, err)
	}
	if !info.IsDir() {
		return nil, apperrors.Validationf("library path %q is not a directory", root)
	}

	res := &Result{ScanID: uuid.NewString(), StartedAt: time.Now()}
	s.emit(sse.NewScanStartedEvent(res.ScanID, root))
	s.log.Info("library scan started", "scan_id", res.ScanID, "path", root)

	cal := s.openCalibre(root)

	files, err := s.walk(ctx, root)
	if err != nil {
		return nil, err
	}

	books, err := s.store.ListBooks(ctx)
	if err != nil {
		return nil, fmt.Errorf("list books: %w", err)
	}
	byPath := make(map[string]*domain.Book, len(books))
	for _, b := range books {
		byPath[b.Path] = b
	}

	var resMu sync.Mutex
	record := func(act action, path string, err error) {
		resMu.Lock()
		defer resMu.Unlock()
		res.tally(act, path, err)
	}

	jobs := make(chan string)
	var wg sync.WaitGroup
	for range s.opts.Workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for path := range jobs {
				act, err := s.processFile(ctx, path, byPath[path], opts.Force, cal)
				if err != nil {
					s.log.WithError(err).Warn("scan: file failed", "path", path)
				}
				record(act, path, err)
			}
		}()
	}

	seen := make(map[string]bool, len(files))
feed:
	for _, path := range files {
		seen[path] = true
		select {
		case jobs <- path:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Anything stored that the walk did not see is gone from disk. The
	// record is re-read first: a book relocated by a worker above now sits
	// at a path the walk did see.
	for _, book := range books {
		if seen[book.Path] {
			continue
		}
		current, err := s.store.GetBook(ctx, book.ID)
		if err != nil || seen[current.Path] {
			continue
		}
		if err := s.removeBook(ctx, current); err != nil {
			res.tally(actionNone, current.Path, err)
			continue
		}
		res.Removed++
	}

	s.finish(res, "library scan complete")
	return res, nil
}

// ScanPaths reconciles specific files after the watcher saw them settle.
// The batch runs as its own scan with its own ID.
func (s *Scanner) ScanPaths(ctx context.Context, paths []string) (*Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res := &Result{ScanID: uuid.NewString(), StartedAt: time.Now()}
	s.emit(sse.NewScanStartedEvent(res.ScanID, s.opts.Root))

	cal := s.openCalibre(s.opts.Root)

	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !s.registry.Supports(path) {
			continue
		}
		if _, err := os.Stat(path); err != nil {
			// Gone again before the batch ran; removal events handle it.
			continue
		}
		existing, err := s.store.GetBookByPath(ctx, path)
		if err != nil && !errors.Is(err, store.ErrBookNotFound) {
			res.tally(actionNone, path, err)
			continue
		}
		act, err := s.processFile(ctx, path, existing, false, cal)
		if err != nil {
			s.log.WithError(err).Warn("scan: file failed", "path", path)
		}
		res.tally(act, path, err)
	}

	s.finish(res, "incremental scan complete")
	return res, nil
}

// RemovePath drops the book at path, or every book under it when a whole
// directory vanished. Removal events carry no file type, so both are tried.
func (s *Scanner) RemovePath(ctx context.Context, path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if book, err := s.store.GetBookByPath(ctx, path); err == nil {
		if err := s.removeBook(ctx, book); err != nil {
			s.log.WithError(err).Warn("scan: removal failed", "path", path)
			return 0
		}
		return 1
	}

	books, err := s.store.ListBooks(ctx)
	if err != nil {
		s.log.WithError(err).Warn("scan: removal failed", "path", path)
		return 0
	}

	removed := 0
	prefix := path + string(os.PathSeparator)
	for _, book := range books {
		if !strings.HasPrefix(book.Path, prefix) {
			continue
		}
		if err := s.removeBook(ctx, book); err != nil {
			s.log.WithError(err).Warn("scan: removal failed", "path", book.Path)
			continue
		}
		removed++
	}
	return removed
}

// walk collects every supported book file under root, hidden entries
// skipped, sorted for a deterministic processing order.
func (s *Scanner) walk(ctx context.Context, root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		if err != nil {
			// An unreadable root would make every book look removed.
			if path == root {
				return err
			}
			s.log.WithError(err).Warn("scan: walk error", "path", path)
			return nil
		}
		if path != root && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !s.registry.Supports(path) {
			return nil
		}
		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk library: %w", err)
	}
	slices.Sort(files)
	return files, nil
}

// processFile reconciles one file with the catalog. existing is the stored
// record at the same path, nil for a file not seen before.
func (s *Scanner) processFile(ctx context.Context, path string, existing *domain.Book, force bool, cal *calibre.Library) (action, error) {
	info, err := os.Stat(path)
	if err != nil {
		return actionNone, err
	}

	identity, err := extract.Identity(path)
	if err != nil {
		return actionNone, fmt.Errorf("hash %s: %w", filepath.Base(path), err)
	}

	if existing != nil {
		unchanged := existing.Identity == identity &&
			existing.SizeBytes == info.Size() &&
			!info.ModTime().After(existing.ScannedAt)
		if unchanged && !force {
			return actionUnchanged, nil
		}
		return s.updateBook(ctx, existing, path, cal)
	}

	// A known identity at a new path is a moved or renamed file, provided
	// the old path is really gone. Otherwise it is a duplicate copy.
	moved, err := s.store.GetBookByIdentity(ctx, identity)
	switch {
	case err == nil:
		if _, statErr := os.Stat(moved.Path); statErr != nil {
			return s.relocateBook(ctx, moved, path)
		}
		s.log.Debug("scan: duplicate content skipped", "path", path, "existing", moved.Path)
		return actionUnchanged, nil
	case !errors.Is(err, store.ErrBookNotFound):
		return actionNone, err
	}

	return s.addBook(ctx, path, cal)
}

func (s *Scanner) addBook(ctx context.Context, path string, cal *calibre.Library) (action, error) {
	bookID, err := id.Generate("book")
	if err != nil {
		return actionNone, err
	}

	now := time.Now()
	book := &domain.Book{ID: bookID, CreatedAt: now, UpdatedAt: now}
	content, chunked, err := s.extractInto(book, path, cal)
	if err != nil {
		return actionNone, err
	}
	if err := s.store.CreateBook(ctx, book); err != nil {
		return actionNone, err
	}
	s.indexBook(ctx, book, content, chunked, false)
	s.emit(sse.NewBookAddedEvent(book))
	return actionAdded, nil
}

func (s *Scanner) updateBook(ctx context.Context, book *domain.Book, path string, cal *calibre.Library) (action, error) {
	content, chunked, err := s.extractInto(book, path, cal)
	if err != nil {
		return actionNone, err
	}
	if err := s.store.UpdateBook(ctx, book); err != nil {
		return actionNone, err
	}
	s.indexBook(ctx, book, content, chunked, true)
	s.emit(sse.NewBookUpdatedEvent(book))
	s.log.Info("book updated", "id", book.ID, "title", book.Title, "path", path)
	return actionUpdated, nil
}

// relocateBook repoints a record whose file moved. Metadata, progress, and
// the cover survive; only the path changes.
func (s *Scanner) relocateBook(ctx context.Context, book *domain.Book, path string) (action, error) {
	old := book.Path
	book.Path = path
	book.ScannedAt = time.Now()
	if info, err := os.Stat(path); err == nil {
		book.SizeBytes = info.Size()
	}
	if err := s.store.UpdateBook(ctx, book); err != nil {
		return actionNone, err
	}
	s.emit(sse.NewBookUpdatedEvent(book))
	s.log.Info("book moved", "id", book.ID, "from", old, "to", path)
	return actionUpdated, nil
}

// removeBook drops a book's record, search documents, and cover.
func (s *Scanner) removeBook(ctx context.Context, book *domain.Book) error {
	if err := s.store.DeleteBook(ctx, book.ID); err != nil {
		return err
	}
	if s.index != nil {
		if err := s.index.DeleteBook(ctx, book.ID); err != nil {
			s.log.WithError(err).Warn("scan: deindex failed", "book_id", book.ID)
		}
	}
	if err := s.covers.Remove(book.ID); err != nil {
		s.log.WithError(err).Warn("scan: cover removal failed", "book_id", book.ID)
	}
	s.emit(sse.NewBookRemovedEvent(book.ID, time.Now()))
	return nil
}

// extractInto fills book from the file at path: metadata, cover, chapter and
// chunk counts. Returns the content and chunk split for indexing.
func (s *Scanner) extractInto(book *domain.Book, path string, cal *calibre.Library) (*domain.BookContent, [][]string, error) {
	content, err := s.registry.Extract(path)
	if err != nil {
		return nil, nil, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, nil, err
	}

	book.Path = path
	book.Title = content.Title
	book.Author = content.Author
	book.Series = content.Series
	book.Description = content.Description
	book.Identity = content.Identity
	book.SizeBytes = info.Size()
	book.ScannedAt = time.Now()
	book.ChapterCount = len(content.Chapters)

	if ex, err := s.registry.ForFile(path); err == nil {
		book.Format = ex.Name()
	}

	chunked := chunker.SplitChapters(content.ChapterTexts(), 0)
	book.TotalChunks = chunker.Count(chunked)

	if cal != nil {
		if meta, ok := cal.Lookup(path); ok {
			applyCalibre(book, meta)
		}
	}

	cover, err := s.covers.Process(book.ID, content.CoverData, content.CoverMime)
	switch {
	case err != nil:
		s.log.WithError(err).Warn("scan: cover failed", "book_id", book.ID)
	case cover != nil:
		book.CoverPath = cover.Path
		book.CoverMime = cover.Mime
		book.BlurHash = cover.BlurHash
	}
	return content, chunked, nil
}

// indexBook refreshes the search documents for a book. Stale search results
// are not worth failing a scan over, so index errors only warn.
func (s *Scanner) indexBook(ctx context.Context, book *domain.Book, content *domain.BookContent, chunked [][]string, refresh bool) {
	if s.index == nil {
		return
	}
	if refresh {
		if err := s.index.DeleteBook(ctx, book.ID); err != nil {
			s.log.WithError(err).Warn("scan: deindex failed", "book_id", book.ID)
		}
	}
	if err := s.index.IndexBook(ctx, book, content.Chapters, chunked); err != nil {
		s.log.WithError(err).Warn("scan: index failed", "book_id", book.ID)
	}
}

// openCalibre loads Calibre metadata when the root is a Calibre tree and the
// import is enabled. An unreadable database downgrades to file metadata.
func (s *Scanner) openCalibre(root string) *calibre.Library {
	if !s.opts.CalibreImport || root == "" || !calibre.Detect(root) {
		return nil
	}
	cal, err := calibre.Open(root)
	if err != nil {
		s.log.WithError(err).Warn("scan: calibre database unreadable, using file metadata")
		return nil
	}
	s.log.Info("calibre library detected", "books", cal.Len())
	return cal
}

// applyCalibre overrides file-derived metadata with Calibre's record. Empty
// Calibre fields leave the file's values alone.
func applyCalibre(book *domain.Book, meta *calibre.Metadata) {
	if meta.Title != "" {
		book.Title = meta.Title
	}
	if meta.Author != "" {
		book.Author = meta.Author
	}
	if label := meta.SeriesLabel(); label != "" {
		book.Series = label
	}
	if meta.Description != "" {
		book.Description = meta.Description
	}
}

func (r *Result) tally(act action, path string, err error) {
	switch {
	case err != nil:
		r.Errors = append(r.Errors, ScanError{Path: path, Err: err})
	case act == actionAdded:
		r.Added++
	case act == actionUpdated:
		r.Updated++
	case act == actionUnchanged:
		r.Unchanged++
	}
}

func (s *Scanner) finish(res *Result, msg string) {
	res.CompletedAt = time.Now()
	s.emit(sse.NewScanCompletedEvent(res.ScanID, res.Added, res.Updated, res.Removed, len(res.Errors)))
	s.log.Info(msg,
		"scan_id", res.ScanID,
		"added", res.Added,
		"updated", res.Updated,
		"removed", res.Removed,
		"unchanged", res.Unchanged,
		"errors", len(res.Errors),
		"duration", res.CompletedAt.Sub(res.StartedAt),
	)
}
