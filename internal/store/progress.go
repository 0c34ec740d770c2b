package store

import (
	"encoding/json/v2"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/aloudapp/aloud-server/internal/domain"
	apperrors "github.com/aloudapp/aloud-server/internal/errors"
)

const progressPrefix = "progress:"

// ErrProgressNotFound is returned when a book has no saved resume point.
var ErrProgressNotFound = apperrors.NotFound("playback progress not found")

// SaveProgress stores the resume point for a book. The playback engine calls
// this from its own timers, so no context is threaded through.
func (s *Store) SaveProgress(p *domain.Progress) error {
	if err := s.set([]byte(progressPrefix+p.BookID), p); err != nil {
		return fmt.Errorf("save progress: %w", err)
	}
	return nil
}

// GetProgress retrieves the resume point for a book. A missing record and an
// unreadable one are the same thing to callers: there is nothing to resume
// from, so both report not found. Corruption is logged and the record dropped
// so the next save starts clean.
func (s *Store) GetProgress(bookID string) (*domain.Progress, error) {
	var p domain.Progress
	err := s.get([]byte(progressPrefix+bookID), &p)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrProgressNotFound
	}
	if err != nil {
		if s.log != nil {
			s.log.WithError(err).Warn("discarding unreadable progress record", "book", bookID)
		}
		_ = s.delete([]byte(progressPrefix + bookID))
		return nil, ErrProgressNotFound
	}
	if p.BookID == "" {
		p.BookID = bookID
	}
	return &p, nil
}

// DeleteProgress removes the resume point for a book.
func (s *Store) DeleteProgress(bookID string) error {
	if err := s.delete([]byte(progressPrefix + bookID)); err != nil {
		return fmt.Errorf("delete progress: %w", err)
	}
	return nil
}

// AllProgress returns every stored resume point, keyed by book ID.
func (s *Store) AllProgress() (map[string]*domain.Progress, error) {
	out := map[string]*domain.Progress{}
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(progressPrefix)
		opts.PrefetchValues = true

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var p domain.Progress
				if err := json.Unmarshal(val, &p); err != nil {
					return nil // unreadable records are invisible
				}
				out[p.BookID] = &p
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list progress: %w", err)
	}
	return out, nil
}
