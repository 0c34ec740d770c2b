package store

import (
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/require"

	"github.com/aloudapp/aloud-server/internal/domain"
	"github.com/aloudapp/aloud-server/internal/logger"
)

func setupTestStore(t *testing.T) (*Store, func()) {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	log := logger.New(logger.Config{Writer: io.Discard, Format: "json", Level: slog.LevelError})
	s, err := New(dbPath, log)
	require.NoError(t, err)

	cleanup := func() {
		_ = s.Close()
	}
	return s, cleanup
}

// corruptKey writes raw non-JSON bytes at key, bypassing the typed setters.
func corruptKey(t *testing.T, s *Store, key string) {
	t.Helper()
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), []byte("{definitely not json"))
	})
	require.NoError(t, err)
}

func createTestBook(id string) *domain.Book {
	now := time.Now()
	return &domain.Book{
		ID:           id,
		Title:        "Test Book " + id,
		Author:       "Test Author",
		Path:         "/library/" + id + ".epub",
		Format:       "epub",
		Identity:     "sha-" + id,
		SizeBytes:    4096,
		ChapterCount: 3,
		TotalChunks:  12,
		ScannedAt:    now,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}
