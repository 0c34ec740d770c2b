package watcher

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestOptionsDefaults(t *testing.T) {
	opts := Options{}
	opts.setDefaults()

	assert.True(t, opts.IgnoreHidden)
	assert.Equal(t, 100*time.Millisecond, opts.SettleDelay)
	for _, pattern := range []string{".DS_Store", "*.tmp", "*.part", "*.crdownload"} {
		assert.Contains(t, opts.IgnorePatterns, pattern)
	}
	assert.Empty(t, opts.Extensions, "no extension filter unless asked")
}

func TestOptionsCustomValuesPreserved(t *testing.T) {
	opts := Options{
		IgnoreHidden:   false,
		SettleDelay:    200 * time.Millisecond,
		IgnorePatterns: []string{"*.bak"},
		Extensions:     []string{".epub"},
	}
	opts.setDefaults()

	assert.False(t, opts.IgnoreHidden)
	assert.Equal(t, 200*time.Millisecond, opts.SettleDelay)
	assert.Equal(t, []string{"*.bak"}, opts.IgnorePatterns)
	assert.Equal(t, []string{".epub"}, opts.Extensions)
}

func TestOptionsEmptyPatternsDisableDefaults(t *testing.T) {
	// An explicit empty list is a choice, not an omission.
	opts := Options{IgnorePatterns: []string{}}
	opts.setDefaults()

	assert.Empty(t, opts.IgnorePatterns)
	assert.False(t, opts.IgnoreHidden)
}

func TestOptionsShouldIgnore(t *testing.T) {
	opts := Options{
		IgnoreHidden:   true,
		IgnorePatterns: []string{"*.tmp", ".DS_Store", "*.bak"},
	}
	opts.setDefaults()

	tests := []struct {
		path string
		want bool
	}{
		{"/library/book.epub", false},
		{"/library/.hidden/book.epub", true},
		{"/library/.DS_Store", true},
		{"/library/upload.tmp", true},
		{"/library/old.bak", true},
		{"/library/series/volume-1.txt", false},
		{"/library/.syncing", true},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, opts.shouldIgnore(tt.path))
		})
	}
}

func TestOptionsWantsFile(t *testing.T) {
	t.Run("no filter accepts everything", func(t *testing.T) {
		opts := Options{}
		opts.setDefaults()

		assert.True(t, opts.wantsFile("/library/book.epub"))
		assert.True(t, opts.wantsFile("/library/anything.xyz"))
	})

	t.Run("filter matches case-insensitively on extension", func(t *testing.T) {
		opts := Options{Extensions: []string{".epub", ".txt", ".md"}}
		opts.setDefaults()

		assert.True(t, opts.wantsFile("/library/book.epub"))
		assert.True(t, opts.wantsFile("/library/BOOK.EPUB"))
		assert.True(t, opts.wantsFile("/library/notes.md"))
		assert.False(t, opts.wantsFile("/library/audio.m4b"))
		assert.False(t, opts.wantsFile("/library/noext"))
	})
}
