package extract

import (
	"fmt"
	"strings"

	pdflib "github.com/ledongthuc/pdf"

	"github.com/aloudapp/aloud-server/internal/domain"
)

// PDF extracts text from PDF files. PDFs carry no chapter structure the
// library can trust, so each page becomes one chapter.
type PDF struct{}

func (p *PDF) Name() string         { return "PDF" }
func (p *PDF) Extensions() []string { return []string{".pdf"} }

func (p *PDF) Extract(path string) (*domain.BookContent, error) {
	f, reader, err := pdflib.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	content := &domain.BookContent{}

	numPages := reader.NumPage()
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		content.Chapters = append(content.Chapters, domain.ChapterText{
			Title: fmt.Sprintf("Page %d", i),
			Text:  collapseSpace(text),
		})
	}

	if len(content.Chapters) == 0 {
		return nil, fmt.Errorf("pdf has no extractable text")
	}
	return content, nil
}
