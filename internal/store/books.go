package store

import (
	"cmp"
	"context"
	"encoding/json/v2"
	"errors"
	"fmt"
	"slices"

	"github.com/dgraph-io/badger/v4"

	"github.com/aloudapp/aloud-server/internal/domain"
	apperrors "github.com/aloudapp/aloud-server/internal/errors"
)

const (
	bookPrefix           = "book:"
	bookByPathPrefix     = "idx:books:path:"
	bookByIdentityPrefix = "idx:books:identity:"
)

// Sentinel errors for book operations.
var (
	ErrBookNotFound = apperrors.NotFound("book not found")
	ErrBookExists   = apperrors.AlreadyExists("book already exists")
)

// CreateBook stores a new book and its path and identity indexes atomically.
func (s *Store) CreateBook(ctx context.Context, book *domain.Book) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	key := []byte(bookPrefix + book.ID)
	exists, err := s.exists(key)
	if err != nil {
		return fmt.Errorf("check book exists: %w", err)
	}
	if exists {
		return ErrBookExists
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		data, err := json.Marshal(book)
		if err != nil {
			return fmt.Errorf("marshal book: %w", err)
		}
		if err := txn.Set(key, data); err != nil {
			return err
		}
		if err := txn.Set([]byte(bookByPathPrefix+book.Path), []byte(book.ID)); err != nil {
			return err
		}
		if book.Identity != "" {
			if err := txn.Set([]byte(bookByIdentityPrefix+book.Identity), []byte(book.ID)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("create book: %w", err)
	}

	if s.log != nil {
		s.log.Info("book created",
			"id", book.ID,
			"title", book.Title,
			"path", book.Path,
			"chapters", book.ChapterCount,
		)
	}
	return nil
}

// GetBook retrieves a book by ID.
func (s *Store) GetBook(ctx context.Context, id string) (*domain.Book, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var book domain.Book
	err := s.get([]byte(bookPrefix+id), &book)
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, ErrBookNotFound
		}
		return nil, fmt.Errorf("get book: %w", err)
	}
	return &book, nil
}

// GetBookByPath retrieves a book by its library file path.
func (s *Store) GetBookByPath(ctx context.Context, path string) (*domain.Book, error) {
	return s.getBookByIndex(ctx, bookByPathPrefix+path)
}

// GetBookByIdentity retrieves a book by its content hash. Used during scans to
// recognize a book that moved or was renamed.
func (s *Store) GetBookByIdentity(ctx context.Context, identity string) (*domain.Book, error) {
	if identity == "" {
		return nil, ErrBookNotFound
	}
	return s.getBookByIndex(ctx, bookByIdentityPrefix+identity)
}

func (s *Store) getBookByIndex(ctx context.Context, indexKey string) (*domain.Book, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var bookID string
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(indexKey))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			bookID = string(val)
			return nil
		})
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, ErrBookNotFound
		}
		return nil, fmt.Errorf("get book by index: %w", err)
	}
	return s.GetBook(ctx, bookID)
}

// UpdateBook rewrites a book and keeps its indexes in sync when the path or
// identity changed.
func (s *Store) UpdateBook(ctx context.Context, book *domain.Book) error {
	old, err := s.GetBook(ctx, book.ID)
	if err != nil {
		return err
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		book.Touch()
		data, err := json.Marshal(book)
		if err != nil {
			return fmt.Errorf("marshal book: %w", err)
		}
		if err := txn.Set([]byte(bookPrefix+book.ID), data); err != nil {
			return err
		}

		if old.Path != book.Path {
			if err := txn.Delete([]byte(bookByPathPrefix + old.Path)); err != nil {
				return err
			}
			if err := txn.Set([]byte(bookByPathPrefix+book.Path), []byte(book.ID)); err != nil {
				return err
			}
		}
		if old.Identity != book.Identity {
			if old.Identity != "" {
				if err := txn.Delete([]byte(bookByIdentityPrefix + old.Identity)); err != nil {
					return err
				}
			}
			if book.Identity != "" {
				if err := txn.Set([]byte(bookByIdentityPrefix+book.Identity), []byte(book.ID)); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("update book: %w", err)
	}
	return nil
}

// DeleteBook removes a book, its indexes, and its playback progress.
func (s *Store) DeleteBook(ctx context.Context, id string) error {
	book, err := s.GetBook(ctx, id)
	if err != nil {
		return err
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Delete([]byte(bookPrefix + id)); err != nil {
			return err
		}
		if err := txn.Delete([]byte(bookByPathPrefix + book.Path)); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		if book.Identity != "" {
			if err := txn.Delete([]byte(bookByIdentityPrefix + book.Identity)); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
				return err
			}
		}
		if err := txn.Delete([]byte(progressPrefix + id)); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete book: %w", err)
	}

	if s.log != nil {
		s.log.Info("book deleted", "id", id, "title", book.Title)
	}
	return nil
}

// ListBooks retrieves every book, sorted by title then ID.
func (s *Store) ListBooks(ctx context.Context) ([]*domain.Book, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var books []*domain.Book
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(bookPrefix)
		opts.PrefetchValues = true

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var book domain.Book
				if err := json.Unmarshal(val, &book); err != nil {
					// One corrupt record must not hide the rest of the library.
					if s.log != nil {
						s.log.Warn("skipping corrupt book record", "key", string(it.Item().Key()))
					}
					return nil
				}
				books = append(books, &book)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list books: %w", err)
	}

	slices.SortFunc(books, func(a, b *domain.Book) int {
		if c := cmp.Compare(a.Title, b.Title); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return books, nil
}

// CountBooks returns the number of stored books.
func (s *Store) CountBooks(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	count := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(bookPrefix)
		opts.PrefetchValues = false

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			count++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("count books: %w", err)
	}
	return count, nil
}
