package extract

import (
	"fmt"
	"os"
	"strings"

	"github.com/fumiama/go-docx"

	"github.com/aloudapp/aloud-server/internal/domain"
)

// DOCX extracts text from Word documents. Heading-styled paragraphs open a
// new chapter; everything else accumulates into the current one.
type DOCX struct{}

func (d *DOCX) Name() string         { return "DOCX" }
func (d *DOCX) Extensions() []string { return []string{".docx"} }

func (d *DOCX) Extract(path string) (*domain.BookContent, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open docx: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat docx: %w", err)
	}

	doc, err := docx.Parse(f, info.Size())
	if err != nil {
		return nil, fmt.Errorf("parse docx: %w", err)
	}

	content := &domain.BookContent{}
	var title string
	var body strings.Builder

	flush := func() {
		text := strings.TrimSpace(body.String())
		if text != "" || title != "" {
			content.Chapters = append(content.Chapters, domain.ChapterText{
				Title: title,
				Text:  text,
			})
		}
		body.Reset()
	}

	for _, item := range doc.Document.Body.Items {
		para, ok := item.(*docx.Paragraph)
		if !ok {
			continue
		}
		text := paragraphText(para)
		if text == "" {
			continue
		}
		if isHeading(para) {
			if body.Len() > 0 || title != "" {
				flush()
			}
			title = text
			continue
		}
		if body.Len() > 0 {
			body.WriteString(" ")
		}
		body.WriteString(text)
	}
	flush()

	if len(content.Chapters) == 0 {
		return nil, fmt.Errorf("docx has no extractable text")
	}
	return content, nil
}

// isHeading reports whether the paragraph carries a Word heading style.
func isHeading(para *docx.Paragraph) bool {
	if para.Properties == nil || para.Properties.Style == nil {
		return false
	}
	style := strings.ToLower(strings.ReplaceAll(para.Properties.Style.Val, " ", ""))
	return strings.HasPrefix(style, "heading")
}

func paragraphText(para *docx.Paragraph) string {
	var buf strings.Builder
	for _, child := range para.Children {
		run, ok := child.(*docx.Run)
		if !ok {
			continue
		}
		for _, rc := range run.Children {
			if t, ok := rc.(*docx.Text); ok {
				buf.WriteString(t.Text)
			}
		}
	}
	return strings.TrimSpace(buf.String())
}
