package store

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aloudapp/aloud-server/internal/domain"
	"github.com/aloudapp/aloud-server/internal/logger"
)

func TestBackupRestore(t *testing.T) {
	src, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	book := createTestBook("bk-001")
	require.NoError(t, src.CreateBook(ctx, book))
	require.NoError(t, src.SaveProgress(domain.NewProgress(book.ID, domain.Position{Chapter: 1, Chunk: 4})))

	var buf bytes.Buffer
	_, err := src.Backup(&buf)
	require.NoError(t, err)
	require.NotZero(t, buf.Len())

	log := logger.New(logger.Config{Writer: io.Discard, Format: "json", Level: slog.LevelError})
	dst, err := New(filepath.Join(t.TempDir(), "restored.db"), log)
	require.NoError(t, err)
	defer dst.Close()

	require.NoError(t, dst.Restore(&buf))

	got, err := dst.GetBook(ctx, book.ID)
	require.NoError(t, err)
	assert.Equal(t, book.Title, got.Title)

	progress, err := dst.GetProgress(book.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, progress.Chapter)
	assert.Equal(t, 4, progress.Chunk)
}
