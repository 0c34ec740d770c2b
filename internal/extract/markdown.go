package extract

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	gmtext "github.com/yuin/goldmark/text"

	"github.com/aloudapp/aloud-server/internal/domain"
)

// Markdown extracts chapters from Markdown files. Top-level headings split
// chapters; deeper headings stay inline as text so subsections are narrated
// in place.
type Markdown struct{}

func (m *Markdown) Name() string         { return "Markdown" }
func (m *Markdown) Extensions() []string { return []string{".md", ".markdown"} }

func (m *Markdown) Extract(path string) (*domain.BookContent, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read markdown: %w", err)
	}

	md := goldmark.New()
	doc := md.Parser().Parse(gmtext.NewReader(src))

	// The split level is the shallowest heading the document uses, so a
	// file organized entirely with ## still gets per-section chapters.
	splitLevel := shallowestHeading(doc)

	content := &domain.BookContent{}
	var title string
	var body bytes.Buffer

	flush := func() {
		text := strings.TrimSpace(body.String())
		if text != "" || title != "" {
			content.Chapters = append(content.Chapters, domain.ChapterText{
				Title: title,
				Text:  collapseSpace(text),
			})
		}
		body.Reset()
	}

	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		if h, ok := n.(*ast.Heading); ok && h.Level == splitLevel {
			if body.Len() > 0 || title != "" {
				flush()
			}
			title = string(nodeText(h, src))
			continue
		}
		if t := nodeText(n, src); t != "" {
			if body.Len() > 0 {
				body.WriteString(" ")
			}
			body.WriteString(t)
		}
	}
	flush()

	if len(content.Chapters) == 0 {
		return nil, fmt.Errorf("markdown has no extractable text")
	}
	return content, nil
}

func shallowestHeading(doc ast.Node) int {
	level := 0
	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		if h, ok := n.(*ast.Heading); ok {
			if level == 0 || h.Level < level {
				level = h.Level
			}
		}
	}
	if level == 0 {
		return 1
	}
	return level
}

// nodeText flattens a goldmark AST node to plain text.
func nodeText(n ast.Node, src []byte) string {
	var buf bytes.Buffer
	if n.Type() == ast.TypeBlock {
		lines := n.Lines()
		for i := 0; i < lines.Len(); i++ {
			line := lines.At(i)
			buf.Write(line.Value(src))
		}
	}
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		if t, ok := c.(*ast.Text); ok {
			if n.Type() != ast.TypeBlock || buf.Len() == 0 {
				buf.Write(t.Value(src))
				if t.SoftLineBreak() || t.HardLineBreak() {
					buf.WriteByte(' ')
				}
			}
		} else {
			buf.WriteString(nodeText(c, src))
		}
	}
	return strings.TrimSpace(buf.String())
}
