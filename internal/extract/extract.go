// Package extract turns book files into plain-text chapters ready for
// narration. Each supported format has an extractor; the registry dispatches
// on file extension and fills in whatever a format could not provide.
package extract

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/aloudapp/aloud-server/internal/domain"
	apperrors "github.com/aloudapp/aloud-server/internal/errors"
)

// identityBytes is how much of a file feeds the content hash. Enough to tell
// books apart, cheap enough to run on every scan.
const identityBytes = 8192

// Extractor converts one file format into book content.
type Extractor interface {
	// Name identifies the format for logs and the formats listing.
	Name() string
	// Extensions lists the lowercase file extensions this extractor handles.
	Extensions() []string
	// Extract reads the file and returns its content. Title, identity, and
	// chapter fallbacks are the registry's job.
	Extract(path string) (*domain.BookContent, error)
}

// Registry dispatches files to format extractors.
type Registry struct {
	byExt map[string]Extractor
	names []string
}

// NewRegistry returns a registry with every built-in format registered.
func NewRegistry() *Registry {
	r := &Registry{byExt: map[string]Extractor{}}
	r.Register(&EPUB{})
	r.Register(&PDF{})
	r.Register(&DOCX{})
	r.Register(&Markdown{})
	r.Register(&PlainText{})
	return r
}

// Register adds an extractor for its extensions.
func (r *Registry) Register(ex Extractor) {
	for _, ext := range ex.Extensions() {
		r.byExt[ext] = ex
	}
	r.names = append(r.names, ex.Name())
}

// Supports reports whether the file's extension has an extractor.
func (r *Registry) Supports(path string) bool {
	_, ok := r.byExt[normalizeExt(path)]
	return ok
}

// ForFile returns the extractor responsible for the file.
func (r *Registry) ForFile(path string) (Extractor, error) {
	ext := normalizeExt(path)
	ex, ok := r.byExt[ext]
	if !ok {
		return nil, apperrors.UnsupportedFormat(fmt.Sprintf("no extractor for %q files", ext))
	}
	return ex, nil
}

// Formats lists the registered format names.
func (r *Registry) Formats() []string {
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

// Extensions lists every registered file extension, sorted.
func (r *Registry) Extensions() []string {
	return slices.Sorted(maps.Keys(r.byExt))
}

// Extract runs the file through its format extractor and normalizes the
// result: a missing title falls back to the file name, the identity hash is
// computed when the extractor did not, and chapters with no narratable text
// keep their place so positions stay stable.
func (r *Registry) Extract(path string) (*domain.BookContent, error) {
	ex, err := r.ForFile(path)
	if err != nil {
		return nil, err
	}

	content, err := ex.Extract(path)
	if err != nil {
		return nil, err
	}

	if strings.TrimSpace(content.Title) == "" {
		content.Title = TitleFromPath(path)
	}
	if content.Identity == "" {
		if id, err := Identity(path); err == nil {
			content.Identity = id
		}
	}
	for i := range content.Chapters {
		if strings.TrimSpace(content.Chapters[i].Title) == "" {
			content.Chapters[i].Title = fmt.Sprintf("Section %d", i+1)
		}
	}
	return content, nil
}

// Identity hashes the first 8KB of a file so a book keeps its record when it
// is moved or renamed.
func Identity(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	buf := make([]byte, identityBytes)
	n, err := io.ReadFull(f, buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return "", err
	}

	sum := sha256.Sum256(buf[:n])
	return hex.EncodeToString(sum[:16]), nil
}

// TitleFromPath derives a display title from a file name: extension dropped,
// separators spaced.
func TitleFromPath(path string) string {
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	base = strings.NewReplacer("_", " ", "-", " ").Replace(base)
	return strings.Join(strings.Fields(base), " ")
}

func normalizeExt(path string) string {
	return strings.ToLower(filepath.Ext(path))
}
