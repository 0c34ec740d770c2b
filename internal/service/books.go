package service

import (
	"context"
	"errors"
	"io/fs"

	"github.com/aloudapp/aloud-server/internal/domain"
	apperrors "github.com/aloudapp/aloud-server/internal/errors"
	"github.com/aloudapp/aloud-server/internal/extract"
	"github.com/aloudapp/aloud-server/internal/logger"
	"github.com/aloudapp/aloud-server/internal/store"
)

// BookService reads the catalog and loads chapter text for narration. Chapter
// text is never persisted: it is re-extracted from the book file on demand so
// the database stays small and edits to the file are always picked up.
type BookService struct {
	store    *store.Store
	registry *extract.Registry
	log      *logger.Logger
}

// NewBookService creates the book service.
func NewBookService(st *store.Store, registry *extract.Registry, log *logger.Logger) *BookService {
	return &BookService{
		store:    st,
		registry: registry,
		log:      log,
	}
}

// List returns every book in the catalog, sorted by title.
func (s *BookService) List(ctx context.Context) ([]*domain.Book, error) {
	return s.store.ListBooks(ctx)
}

// Count returns the number of books in the catalog.
func (s *BookService) Count(ctx context.Context) (int, error) {
	return s.store.CountBooks(ctx)
}

// Get returns one book by ID.
func (s *BookService) Get(ctx context.Context, id string) (*domain.Book, error) {
	return s.store.GetBook(ctx, id)
}

// Chapters loads a book and extracts its chapter texts from disk. A catalog
// entry whose file has gone missing reports not found rather than an internal
// error, since from the client's view the book is simply no longer there.
func (s *BookService) Chapters(ctx context.Context, id string) (*domain.Book, []domain.ChapterText, error) {
	book, err := s.store.GetBook(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	content, err := s.registry.Extract(book.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			s.log.Warn("book file missing", "book_id", book.ID, "path", book.Path)
			return nil, nil, apperrors.NotFoundf("book file %q is missing", book.Filename())
		}
		var appErr *apperrors.Error
		if errors.As(err, &appErr) {
			return nil, nil, err
		}
		return nil, nil, apperrors.Wrapf(err, apperrors.CodeInternal, "extracting %s", book.Filename())
	}

	return book, content.Chapters, nil
}

// Formats lists the file extensions the extractor registry accepts.
func (s *BookService) Formats() []string {
	return s.registry.Extensions()
}

// Progress returns the saved resume point for a book, or nil when the book
// has never been narrated.
func (s *BookService) Progress(bookID string) (*domain.Progress, error) {
	p, err := s.store.GetProgress(bookID)
	if err != nil {
		if errors.Is(err, store.ErrProgressNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return p, nil
}
