package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/aloudapp/aloud-server/internal/errors"
)

func TestCreateBook(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	book := createTestBook("bk-001")
	require.NoError(t, s.CreateBook(ctx, book))

	got, err := s.GetBook(ctx, book.ID)
	require.NoError(t, err)
	assert.Equal(t, book.ID, got.ID)
	assert.Equal(t, book.Title, got.Title)
	assert.Equal(t, book.Path, got.Path)
	assert.Equal(t, book.ChapterCount, got.ChapterCount)
}

func TestCreateBook_Duplicate(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	book := createTestBook("bk-001")
	require.NoError(t, s.CreateBook(ctx, book))

	err := s.CreateBook(ctx, book)
	assert.ErrorIs(t, err, ErrBookExists)
	assert.ErrorIs(t, err, apperrors.ErrAlreadyExists)
}

func TestGetBook_NotFound(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()

	_, err := s.GetBook(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrBookNotFound)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestGetBookByPath(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	book := createTestBook("bk-001")
	require.NoError(t, s.CreateBook(ctx, book))

	got, err := s.GetBookByPath(ctx, book.Path)
	require.NoError(t, err)
	assert.Equal(t, book.ID, got.ID)

	_, err = s.GetBookByPath(ctx, "/library/nope.epub")
	assert.ErrorIs(t, err, ErrBookNotFound)
}

func TestGetBookByIdentity(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	book := createTestBook("bk-001")
	require.NoError(t, s.CreateBook(ctx, book))

	got, err := s.GetBookByIdentity(ctx, book.Identity)
	require.NoError(t, err)
	assert.Equal(t, book.ID, got.ID)

	_, err = s.GetBookByIdentity(ctx, "")
	assert.ErrorIs(t, err, ErrBookNotFound)
}

func TestUpdateBook_ReindexesPath(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	book := createTestBook("bk-001")
	require.NoError(t, s.CreateBook(ctx, book))

	oldPath := book.Path
	book.Path = "/library/renamed.epub"
	require.NoError(t, s.UpdateBook(ctx, book))

	got, err := s.GetBookByPath(ctx, book.Path)
	require.NoError(t, err)
	assert.Equal(t, book.ID, got.ID)

	_, err = s.GetBookByPath(ctx, oldPath)
	assert.ErrorIs(t, err, ErrBookNotFound)
}

func TestUpdateBook_TouchesTimestamp(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	book := createTestBook("bk-001")
	require.NoError(t, s.CreateBook(ctx, book))
	created := book.UpdatedAt

	book.Title = "Renamed"
	require.NoError(t, s.UpdateBook(ctx, book))

	got, err := s.GetBook(ctx, book.ID)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", got.Title)
	assert.True(t, got.UpdatedAt.After(created))
}

func TestDeleteBook(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	book := createTestBook("bk-001")
	require.NoError(t, s.CreateBook(ctx, book))
	require.NoError(t, s.SaveProgress(createTestProgress(book.ID)))

	require.NoError(t, s.DeleteBook(ctx, book.ID))

	_, err := s.GetBook(ctx, book.ID)
	assert.ErrorIs(t, err, ErrBookNotFound)
	_, err = s.GetBookByPath(ctx, book.Path)
	assert.ErrorIs(t, err, ErrBookNotFound)
	_, err = s.GetProgress(book.ID)
	assert.ErrorIs(t, err, ErrProgressNotFound)
}

func TestDeleteBook_NotFound(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()

	err := s.DeleteBook(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrBookNotFound)
}

func TestListBooks_SortedByTitle(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	zebra := createTestBook("bk-z")
	zebra.Title = "Zebra Stories"
	aardvark := createTestBook("bk-a")
	aardvark.Title = "Aardvark Tales"
	require.NoError(t, s.CreateBook(ctx, zebra))
	require.NoError(t, s.CreateBook(ctx, aardvark))

	books, err := s.ListBooks(ctx)
	require.NoError(t, err)
	require.Len(t, books, 2)
	assert.Equal(t, "Aardvark Tales", books[0].Title)
	assert.Equal(t, "Zebra Stories", books[1].Title)
}

func TestListBooks_Empty(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()

	books, err := s.ListBooks(context.Background())
	require.NoError(t, err)
	assert.Empty(t, books)
}

func TestCountBooks(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	count, err := s.CountBooks(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)

	require.NoError(t, s.CreateBook(ctx, createTestBook("bk-1")))
	require.NoError(t, s.CreateBook(ctx, createTestBook("bk-2")))

	count, err = s.CountBooks(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}
