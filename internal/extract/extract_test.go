package extract

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestRegistry_Supports(t *testing.T) {
	r := NewRegistry()

	tests := []struct {
		path string
		want bool
	}{
		{"book.epub", true},
		{"book.pdf", true},
		{"book.docx", true},
		{"notes.md", true},
		{"notes.markdown", true},
		{"story.txt", true},
		{"BOOK.EPUB", true},
		{"audio.m4b", false},
		{"archive.zip", false},
		{"noextension", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, r.Supports(tt.path), tt.path)
	}
}

func TestRegistry_Formats(t *testing.T) {
	r := NewRegistry()
	formats := r.Formats()

	assert.Contains(t, formats, "EPUB")
	assert.Contains(t, formats, "PDF")
	assert.Contains(t, formats, "DOCX")
	assert.Contains(t, formats, "Markdown")
	assert.Contains(t, formats, "Plain Text")
}

func TestRegistry_Extensions(t *testing.T) {
	r := NewRegistry()
	assert.Equal(t, []string{".docx", ".epub", ".markdown", ".md", ".pdf", ".txt"}, r.Extensions())
}

func TestRegistry_ForFile_Unsupported(t *testing.T) {
	r := NewRegistry()
	_, err := r.ForFile("song.mp3")
	assert.Error(t, err)
}

func TestRegistry_Extract_FillsFallbacks(t *testing.T) {
	r := NewRegistry()

	// Text before the first heading becomes an untitled chapter; the
	// registry names it.
	path := writeFile(t, "the_silent_sea.md", "A preamble paragraph.\n\n# Landfall\n\nThe crew went ashore.\n")

	content, err := r.Extract(path)
	require.NoError(t, err)

	assert.Equal(t, "the silent sea", content.Title)
	assert.Len(t, content.Identity, 32)
	require.Len(t, content.Chapters, 2)
	assert.Equal(t, "Section 1", content.Chapters[0].Title)
	assert.Equal(t, "Landfall", content.Chapters[1].Title)
}

func TestIdentity(t *testing.T) {
	a := writeFile(t, "a.txt", "identical content")
	b := writeFile(t, "b.txt", "identical content")
	c := writeFile(t, "c.txt", "different content")

	idA, err := Identity(a)
	require.NoError(t, err)
	idB, err := Identity(b)
	require.NoError(t, err)
	idC, err := Identity(c)
	require.NoError(t, err)

	assert.Len(t, idA, 32)
	assert.Equal(t, idA, idB)
	assert.NotEqual(t, idA, idC)

	_, err = Identity(filepath.Join(t.TempDir(), "missing.txt"))
	assert.Error(t, err)
}

func TestTitleFromPath(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"my_book.epub", "my book"},
		{"/library/war-and-peace.txt", "war and peace"},
		{"Already Nice.pdf", "Already Nice"},
		{"too__many___separators.md", "too many separators"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, TitleFromPath(tt.path), tt.path)
	}
}
