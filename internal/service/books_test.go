package service

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aloudapp/aloud-server/internal/domain"
	apperrors "github.com/aloudapp/aloud-server/internal/errors"
	"github.com/aloudapp/aloud-server/internal/extract"
	"github.com/aloudapp/aloud-server/internal/id"
	"github.com/aloudapp/aloud-server/internal/logger"
	"github.com/aloudapp/aloud-server/internal/store"
)

func setupBookService(t *testing.T) (*BookService, *store.Store, string) {
	t.Helper()

	log := logger.New(logger.Config{Writer: io.Discard, Format: "json"})
	st, err := store.New(filepath.Join(t.TempDir(), "store"), log)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	libDir := t.TempDir()
	return NewBookService(st, extract.NewRegistry(), log), st, libDir
}

func seedBook(t *testing.T, st *store.Store, dir, title, text string) *domain.Book {
	t.Helper()

	path := filepath.Join(dir, title+".txt")
	require.NoError(t, os.WriteFile(path, []byte(text), 0o644))

	now := time.Now()
	book := &domain.Book{
		ID:        id.MustGenerate("book"),
		Title:     title,
		Path:      path,
		Format:    "txt",
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, st.CreateBook(context.Background(), book))
	return book
}

func TestBookService_ListAndGet(t *testing.T) {
	svc, st, dir := setupBookService(t)
	ctx := context.Background()

	seedBook(t, st, dir, "Walden", "I went to the woods.")
	seedBook(t, st, dir, "Meditations", "Begin the morning by saying.")

	books, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, books, 2)

	count, err := svc.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	got, err := svc.Get(ctx, books[0].ID)
	require.NoError(t, err)
	assert.Equal(t, books[0].Title, got.Title)

	_, err = svc.Get(ctx, "book_missing")
	assert.ErrorIs(t, err, store.ErrBookNotFound)
}

func TestBookService_Chapters(t *testing.T) {
	svc, st, dir := setupBookService(t)
	ctx := context.Background()

	text := "CHAPTER 1\n\nIt was a bright cold day in April.\n\nCHAPTER 2\n\nThe clocks were striking thirteen."
	book := seedBook(t, st, dir, "Nineteen Eighty-Four", text)

	got, chapters, err := svc.Chapters(ctx, book.ID)
	require.NoError(t, err)
	assert.Equal(t, book.ID, got.ID)
	require.Len(t, chapters, 2)
	assert.Equal(t, "CHAPTER 1", chapters[0].Title)
	assert.Contains(t, chapters[0].Text, "bright cold day")
	assert.Contains(t, chapters[1].Text, "striking thirteen")
}

func TestBookService_Chapters_FileMissing(t *testing.T) {
	svc, st, dir := setupBookService(t)
	ctx := context.Background()

	book := seedBook(t, st, dir, "Gone", "This text will vanish.")
	require.NoError(t, os.Remove(book.Path))

	_, _, err := svc.Chapters(ctx, book.ID)
	require.Error(t, err)

	var appErr *apperrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperrors.CodeNotFound, appErr.Code)
}

func TestBookService_Chapters_UnknownBook(t *testing.T) {
	svc, _, _ := setupBookService(t)

	_, _, err := svc.Chapters(context.Background(), "book_nope")
	assert.ErrorIs(t, err, store.ErrBookNotFound)
}

func TestBookService_Progress(t *testing.T) {
	svc, st, dir := setupBookService(t)

	book := seedBook(t, st, dir, "Progressing", "Some narratable text here.")

	p, err := svc.Progress(book.ID)
	require.NoError(t, err)
	assert.Nil(t, p, "no resume point before narration starts")

	require.NoError(t, st.SaveProgress(domain.NewProgress(book.ID, domain.Position{Chapter: 1, Chunk: 3})))

	p, err = svc.Progress(book.ID)
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, 1, p.Chapter)
	assert.Equal(t, 3, p.Chunk)
}
