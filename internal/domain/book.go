// Package domain contains the core business entities and domain logic for the Aloud book library.
package domain

import (
	"path/filepath"
	"time"
)

// Book represents a text book in the library.
type Book struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Author       string    `json:"author,omitempty"`
	Series       string    `json:"series,omitempty"`
	Description  string    `json:"description,omitempty"`
	Path         string    `json:"path"`
	Format       string    `json:"format"`
	Identity     string    `json:"identity"`
	SizeBytes    int64     `json:"size_bytes"`
	CoverPath    string    `json:"cover_path,omitempty"`
	CoverMime    string    `json:"cover_mime,omitempty"`
	BlurHash     string    `json:"blur_hash,omitempty"`
	ChapterCount int       `json:"chapter_count"`
	TotalChunks  int       `json:"total_chunks"`
	ScannedAt    time.Time `json:"scanned_at"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Filename returns the book's file name without its directory.
func (b *Book) Filename() string {
	return filepath.Base(b.Path)
}

// Touch updates the modification timestamp.
func (b *Book) Touch() {
	b.UpdatedAt = time.Now()
}

// ChapterText is one extracted chapter: a title and its plain text.
type ChapterText struct {
	Title string `json:"title"`
	Text  string `json:"text"`
}

// BookContent is the extraction result for a book file. Chapters hold plain
// text only; the playback layer chunks them for narration.
type BookContent struct {
	Title       string
	Author      string
	Series      string
	Description string
	Identity    string
	CoverData   []byte
	CoverMime   string
	Chapters    []ChapterText
}

// ChapterTexts returns just the chapter bodies in order.
func (c *BookContent) ChapterTexts() []string {
	texts := make([]string, len(c.Chapters))
	for i, ch := range c.Chapters {
		texts[i] = ch.Text
	}
	return texts
}

// Progress is the persisted resume point for one book. Only chapter and chunk
// are stored; narration always resumes from the start of a chunk.
type Progress struct {
	BookID    string    `json:"book_id"`
	Chapter   int       `json:"chapter"`
	Chunk     int       `json:"chunk"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewProgress creates a progress record for a book at a position.
func NewProgress(bookID string, pos Position) *Progress {
	return &Progress{
		BookID:    bookID,
		Chapter:   pos.Chapter,
		Chunk:     pos.Chunk,
		UpdatedAt: time.Now(),
	}
}

// Position converts the record back to a position with Char pinned to zero.
func (p *Progress) Position() Position {
	return Position{Chapter: p.Chapter, Chunk: p.Chunk}
}
