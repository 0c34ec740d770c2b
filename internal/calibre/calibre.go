// Package calibre reads book metadata out of a Calibre library database.
//
// A Calibre-managed directory keeps a metadata.db SQLite file at its root
// with far cleaner titles, authors, and series than most book files carry
// inside them. The scanner loads it once per scan and overrides file-derived
// metadata for every book whose location matches a Calibre record.
package calibre

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"

	_ "modernc.org/sqlite"
)

// DatabaseFile is the well-known name of Calibre's library database.
const DatabaseFile = "metadata.db"

// Metadata is the Calibre-side record for one book.
type Metadata struct {
	Title       string
	Author      string
	Series      string
	SeriesIndex float64
	Description string
}

// SeriesLabel renders the series for display: the bare name when the book is
// first in it, "Name #2" or "Name #1.5" otherwise.
func (m *Metadata) SeriesLabel() string {
	if m.Series == "" {
		return ""
	}
	if m.SeriesIndex == 0 || m.SeriesIndex == 1 {
		return m.Series
	}
	idx := strconv.FormatFloat(m.SeriesIndex, 'f', -1, 64)
	return fmt.Sprintf("%s #%s", m.Series, idx)
}

// Library holds the catalog of one Calibre-managed directory, keyed by the
// book's directory relative to the library root. That is exactly what
// Calibre stores in books.path ("Author Name/Title (42)").
type Library struct {
	root   string
	byPath map[string]*Metadata
}

// Detect reports whether dir has a Calibre database at its root.
func Detect(dir string) bool {
	info, err := os.Stat(filepath.Join(dir, DatabaseFile))
	return err == nil && !info.IsDir()
}

// Open loads the whole catalog under root into memory. Everything is read up
// front and the database closed again, so a scan never holds metadata.db open
// while Calibre itself might want it.
func Open(root string) (*Library, error) {
	dbPath := filepath.Join(root, DatabaseFile)
	if _, err := os.Stat(dbPath); err != nil {
		return nil, fmt.Errorf("no calibre database: %w", err)
	}

	// modernc.org/sqlite is pure Go, no CGO.
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open calibre database: %w", err)
	}
	defer db.Close()

	lib := &Library{root: root, byPath: map[string]*Metadata{}}

	byID, err := loadBooks(db, lib)
	if err != nil {
		return nil, fmt.Errorf("load calibre books: %w", err)
	}
	if err := loadAuthors(db, byID); err != nil {
		return nil, fmt.Errorf("load calibre authors: %w", err)
	}
	return lib, nil
}

// Len returns the number of catalogued books.
func (l *Library) Len() int {
	return len(l.byPath)
}

// Lookup finds the Calibre record for a book file. The file's directory
// relative to the library root is matched against Calibre's books.path.
func (l *Library) Lookup(path string) (*Metadata, bool) {
	rel, err := filepath.Rel(l.root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return nil, false
	}
	dir := filepath.ToSlash(filepath.Dir(rel))
	meta, ok := l.byPath[dir]
	return meta, ok
}

func loadBooks(db *sql.DB, lib *Library) (map[int64]*Metadata, error) {
	// Calibre normalizes series and descriptions into side tables; one row
	// per book comes back because a book links to at most one series.
	rows, err := db.Query(`
		SELECT
			b.id,
			COALESCE(b.title, ''),
			COALESCE(b.path, ''),
			COALESCE(b.series_index, 1.0),
			COALESCE(s.name, ''),
			COALESCE(c.text, '')
		FROM books b
		LEFT JOIN books_series_link bsl ON bsl.book = b.id
		LEFT JOIN series s ON s.id = bsl.series
		LEFT JOIN comments c ON c.book = b.id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byID := map[int64]*Metadata{}
	for rows.Next() {
		var (
			id          int64
			path, descr string
			meta        Metadata
		)
		if err := rows.Scan(&id, &meta.Title, &path, &meta.SeriesIndex, &meta.Series, &descr); err != nil {
			return nil, err
		}
		if path == "" {
			continue
		}
		meta.Description = descriptionToMarkdown(descr)
		byID[id] = &meta
		lib.byPath[path] = &meta
	}
	return byID, rows.Err()
}

func loadAuthors(db *sql.DB, byID map[int64]*Metadata) error {
	rows, err := db.Query(`
		SELECT bal.book, a.name
		FROM books_authors_link bal
		JOIN authors a ON a.id = bal.author
		ORDER BY bal.id
	`)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			bookID int64
			name   string
		)
		if err := rows.Scan(&bookID, &name); err != nil {
			return err
		}
		meta, ok := byID[bookID]
		if !ok || name == "" {
			continue
		}
		// Calibre joins co-authors with an ampersand.
		if meta.Author == "" {
			meta.Author = name
		} else {
			meta.Author += " & " + name
		}
	}
	return rows.Err()
}

// descriptionToMarkdown converts Calibre's HTML comments to Markdown, the
// same shape descriptions take when they come out of an EPUB.
func descriptionToMarkdown(s string) string {
	s = strings.TrimSpace(s)
	if s == "" || !strings.Contains(s, "<") {
		return s
	}
	markdown, err := htmltomarkdown.ConvertString(s)
	if err != nil {
		return s
	}
	return strings.TrimSpace(markdown)
}
