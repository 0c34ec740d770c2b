package images

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"io"
	"testing"

	"github.com/aloudapp/aloud-server/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcessor_Process(t *testing.T) {
	t.Run("stores cover and computes hash and blurhash", func(t *testing.T) {
		processor := setupTestProcessor(t)
		bookID := "book-test-001"

		cover, err := processor.Process(bookID, testCoverPNG(t), "image/png")
		require.NoError(t, err)
		require.NotNil(t, cover)

		assert.Equal(t, "image/png", cover.Mime)
		assert.Len(t, cover.Hash, 64, "hash should be 64 characters (SHA256)")
		assert.NotEmpty(t, cover.BlurHash)
		assert.Equal(t, processor.storage.Path(bookID), cover.Path)

		// Original bytes are stored untouched.
		require.True(t, processor.storage.Exists(bookID))
		data, err := processor.storage.Get(bookID)
		require.NoError(t, err)
		assert.Equal(t, testCoverPNG(t), data)

		_, format, err := image.Decode(bytes.NewReader(data))
		require.NoError(t, err)
		assert.Equal(t, "png", format)
	})

	t.Run("returns nil for book without cover", func(t *testing.T) {
		processor := setupTestProcessor(t)

		cover, err := processor.Process("book-no-cover", nil, "")
		require.NoError(t, err)
		assert.Nil(t, cover)

		// Nothing was written.
		assert.False(t, processor.storage.Exists("book-no-cover"))
	})

	t.Run("stores undecodable cover without blurhash", func(t *testing.T) {
		processor := setupTestProcessor(t)
		bookID := "book-opaque"

		cover, err := processor.Process(bookID, []byte("not really an image"), "image/jpeg")
		require.NoError(t, err)
		require.NotNil(t, cover)

		assert.Empty(t, cover.BlurHash)
		assert.Len(t, cover.Hash, 64)
		assert.True(t, processor.storage.Exists(bookID))
	})

	t.Run("same input produces same hash", func(t *testing.T) {
		processor := setupTestProcessor(t)
		bookID := "book-hash-test"

		cover1, err := processor.Process(bookID, testCoverPNG(t), "image/png")
		require.NoError(t, err)

		cover2, err := processor.Process(bookID, testCoverPNG(t), "image/png")
		require.NoError(t, err)

		assert.Equal(t, cover1.Hash, cover2.Hash)
		assert.Equal(t, cover1.BlurHash, cover2.BlurHash)
	})
}

func TestProcessor_Remove(t *testing.T) {
	t.Run("removes stored cover", func(t *testing.T) {
		processor := setupTestProcessor(t)
		bookID := "book-remove"

		_, err := processor.Process(bookID, testCoverPNG(t), "image/png")
		require.NoError(t, err)
		require.True(t, processor.storage.Exists(bookID))

		require.NoError(t, processor.Remove(bookID))
		assert.False(t, processor.storage.Exists(bookID))
	})

	t.Run("tolerates missing cover", func(t *testing.T) {
		processor := setupTestProcessor(t)

		assert.NoError(t, processor.Remove("never-stored"))
	})
}

func TestComputeBlurHash(t *testing.T) {
	t.Run("same bytes produce the same hash", func(t *testing.T) {
		hash1, err := ComputeBlurHash(testCoverPNG(t))
		require.NoError(t, err)
		assert.NotEmpty(t, hash1)

		hash2, err := ComputeBlurHash(testCoverPNG(t))
		require.NoError(t, err)
		assert.Equal(t, hash1, hash2)
	})

	t.Run("downscales large images", func(t *testing.T) {
		img := image.NewRGBA(image.Rect(0, 0, 600, 900))
		for y := 0; y < 900; y++ {
			for x := 0; x < 600; x++ {
				img.Set(x, y, color.RGBA{R: uint8(x % 256), G: 80, B: uint8(y % 256), A: 255})
			}
		}
		var buf bytes.Buffer
		require.NoError(t, png.Encode(&buf, img))

		hash, err := ComputeBlurHash(buf.Bytes())
		require.NoError(t, err)
		assert.NotEmpty(t, hash)
	})

	t.Run("returns error for non-image data", func(t *testing.T) {
		_, err := ComputeBlurHash([]byte("junk"))
		assert.Error(t, err)
	})

	t.Run("returns error for empty data", func(t *testing.T) {
		_, err := ComputeBlurHash(nil)
		assert.Error(t, err)
	})
}

// Helper functions.

// setupTestProcessor creates a Processor with a temporary storage.
func setupTestProcessor(t *testing.T) *Processor {
	t.Helper()
	storage, err := NewStorage(t.TempDir())
	require.NoError(t, err)
	return NewProcessor(storage, testLogger())
}

func testLogger() *logger.Logger {
	return logger.New(logger.Config{Writer: io.Discard, Format: "json"})
}

// testCoverPNG encodes a small gradient PNG for cover tests.
func testCoverPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 12))
	for y := 0; y < 12; y++ {
		for x := 0; x < 8; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 30), G: uint8(y * 20), B: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}
