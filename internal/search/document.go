// Package search provides full-text search over the library using Bleve.
// Books are indexed by their metadata, and every narration chunk is indexed
// by its text, so a hit inside a book maps directly to a playback position
// the client can jump to.
package search

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/aloudapp/aloud-server/internal/domain"
)

// DocType represents the type of document in the unified index.
type DocType string

// Document types for the search index.
const (
	DocTypeBook  DocType = "book"
	DocTypeChunk DocType = "chunk"
)

// Document is the unified document structure for the Bleve index.
// Book documents carry metadata; chunk documents carry one chunk of narratable
// text plus the coordinates needed to start playback there. The book title is
// denormalized onto chunk documents so a text hit renders without a second
// lookup.
type Document struct {
	// Identity
	ID     string  `json:"id"`   // Book ID, or ChunkID() for chunks
	Type   DocType `json:"type"` // Discriminator for result grouping
	BookID string  `json:"book_id"`

	// Book metadata (books; title also denormalized on chunks)
	Title  string `json:"title,omitempty"`
	Author string `json:"author,omitempty"`
	Series string `json:"series,omitempty"`

	// Chunk coordinates and text (chunks only)
	Chapter      int    `json:"chapter"`
	Chunk        int    `json:"chunk"`
	ChapterTitle string `json:"chapter_title,omitempty"`
	Text         string `json:"text,omitempty"`

	// Timestamps for sorting
	CreatedAt int64 `json:"created_at"` // Unix millis
	UpdatedAt int64 `json:"updated_at"` // Unix millis
}

// ToMap converts the document to a map with lowercase field names.
// This ensures field names match the Bleve index mapping.
// Bleve by default uses Go struct field names (capitalized), but our
// mapping uses lowercase names, so we convert explicitly.
func (d *Document) ToMap() map[string]interface{} {
	m := map[string]interface{}{
		"id":         d.ID,
		"type":       string(d.Type),
		"book_id":    d.BookID,
		"created_at": d.CreatedAt,
		"updated_at": d.UpdatedAt,
	}

	// Optional fields - only add if non-empty
	if d.Title != "" {
		m["title"] = d.Title
	}
	if d.Author != "" {
		m["author"] = d.Author
	}
	if d.Series != "" {
		m["series"] = d.Series
	}
	if d.ChapterTitle != "" {
		m["chapter_title"] = d.ChapterTitle
	}
	if d.Text != "" {
		m["text"] = d.Text
	}
	if d.Type == DocTypeChunk {
		m["chapter"] = d.Chapter
		m["chunk"] = d.Chunk
	}

	return m
}

// ChunkID builds the index ID for one chunk of a book.
func ChunkID(bookID string, chapter, chunk int) string {
	return fmt.Sprintf("%s/%d/%d", bookID, chapter, chunk)
}

// ParseChunkID splits a chunk document ID back into its coordinates.
func ParseChunkID(id string) (bookID string, chapter, chunk int, ok bool) {
	parts := strings.Split(id, "/")
	if len(parts) != 3 {
		return "", 0, 0, false
	}
	chapter, err := strconv.Atoi(parts[1])
	if err != nil {
		return "", 0, 0, false
	}
	chunk, err = strconv.Atoi(parts[2])
	if err != nil {
		return "", 0, 0, false
	}
	return parts[0], chapter, chunk, true
}

// BookDocument converts a domain Book to its metadata search document.
func BookDocument(book *domain.Book) *Document {
	return &Document{
		ID:        book.ID,
		Type:      DocTypeBook,
		BookID:    book.ID,
		Title:     book.Title,
		Author:    book.Author,
		Series:    book.Series,
		CreatedAt: book.CreatedAt.UnixMilli(),
		UpdatedAt: book.UpdatedAt.UnixMilli(),
	}
}

// ChunkDocument builds the search document for one narration chunk.
func ChunkDocument(book *domain.Book, chapterTitle string, chapter, chunk int, text string) *Document {
	return &Document{
		ID:           ChunkID(book.ID, chapter, chunk),
		Type:         DocTypeChunk,
		BookID:       book.ID,
		Title:        book.Title,
		Chapter:      chapter,
		Chunk:        chunk,
		ChapterTitle: chapterTitle,
		Text:         text,
		CreatedAt:    book.CreatedAt.UnixMilli(),
		UpdatedAt:    book.UpdatedAt.UnixMilli(),
	}
}
