package extract

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/aloudapp/aloud-server/internal/domain"
)

// chapterHeading matches lines that announce a chapter in bare text files,
// the way Project Gutenberg transcriptions do.
var chapterHeading = regexp.MustCompile(`(?i)^(chapter|part|book|prologue|epilogue|section)\b[^\n]{0,60}$`)

// PlainText extracts chapters from .txt files. A short standalone line that
// announces a chapter splits the book; a file without any reads as a single
// chapter.
type PlainText struct{}

func (p *PlainText) Name() string         { return "Plain Text" }
func (p *PlainText) Extensions() []string { return []string{".txt"} }

func (p *PlainText) Extract(path string) (*domain.BookContent, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read text: %w", err)
	}

	lines := strings.Split(strings.ReplaceAll(string(src), "\r\n", "\n"), "\n")

	content := &domain.BookContent{}
	var title string
	var body strings.Builder

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

	prevBlank := true
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			prevBlank = true
			continue
		}

		// A heading stands alone: blank line above and below.
		nextBlank := i+1 >= len(lines) || strings.TrimSpace(lines[i+1]) == ""
		if prevBlank && nextBlank && chapterHeading.MatchString(trimmed) {
			flush()
			title = trimmed
			prevBlank = false
			continue
		}

		if body.Len() > 0 {
			body.WriteString(" ")
		}
		body.WriteString(trimmed)
		prevBlank = false
	}
	flush()

	if len(content.Chapters) == 0 {
		return nil, fmt.Errorf("text file is empty")
	}
	return content, nil
}
