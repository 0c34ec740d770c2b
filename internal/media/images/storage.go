// Package images stores book cover images and derives their placeholders.
package images

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// ErrNoCover marks a lookup for a book whose cover was never stored.
var ErrNoCover = errors.New("no stored cover")

var errEmptyBookID = errors.New("empty book id")

// Storage keeps cover files under <data>/covers, one per book. Writes go
// through a temp file and rename, so a scan replacing a cover never leaves
// a half-written image for the HTTP handler to serve.
type Storage struct {
	dir string
	mu  sync.Mutex // serializes writers; readers rely on the atomic rename
}

// NewStorage creates cover storage under basePath (the server data dir).
func NewStorage(basePath string) (*Storage, error) {
	if basePath == "" {
		return nil, errors.New("base path cannot be empty")
	}

	dir := filepath.Join(basePath, "covers")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create covers directory: %w", err)
	}
	return &Storage{dir: dir}, nil
}

// Save stores a book's cover, replacing any previous one.
func (s *Storage) Save(bookID string, data []byte) error {
	if bookID == "" {
		return errEmptyBookID
	}
	if len(data) == 0 {
		return errors.New("empty image data")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.Path(bookID)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("stage cover: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("publish cover: %w", err)
	}
	return nil
}

// Get returns the stored cover bytes for a book.
func (s *Storage) Get(bookID string) ([]byte, error) {
	if bookID == "" {
		return nil, errEmptyBookID
	}

	data, err := os.ReadFile(s.Path(bookID))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w for %s", ErrNoCover, bookID)
	}
	if err != nil {
		return nil, fmt.Errorf("read cover: %w", err)
	}
	return data, nil
}

// Exists reports whether a cover is stored for the book.
func (s *Storage) Exists(bookID string) bool {
	if bookID == "" {
		return false
	}
	_, err := os.Stat(s.Path(bookID))
	return err == nil
}

// Delete removes a book's cover. Missing covers are not an error.
func (s *Storage) Delete(bookID string) error {
	if bookID == "" {
		return errEmptyBookID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.Path(bookID)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete cover: %w", err)
	}
	return nil
}

// Hash returns the hex SHA256 of the stored cover, for ETag validation.
func (s *Storage) Hash(bookID string) (string, error) {
	data, err := s.Get(bookID)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// Path returns the filesystem path of a book's cover. Covers keep a .jpg
// name whatever the source format; the real media type lives on the book
// record.
func (s *Storage) Path(bookID string) string {
	return filepath.Join(s.dir, bookID+".jpg")
}
