package extract

import (
	"archive/zip"
	"encoding/xml"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/taylorskalyo/goreader/epub"

	"github.com/aloudapp/aloud-server/internal/domain"
)

// EPUB extracts chapters from EPUB containers. Chapters follow the spine
// order; their titles come from the NCX table of contents when one maps to
// the spine item.
type EPUB struct{}

func (e *EPUB) Name() string         { return "EPUB" }
func (e *EPUB) Extensions() []string { return []string{".epub"} }

func (e *EPUB) Extract(p string) (*domain.BookContent, error) {
	rc, err := epub.OpenReader(p)
	if err != nil {
		return nil, fmt.Errorf("open epub: %w", err)
	}
	defer rc.Close()

	if len(rc.Rootfiles) == 0 {
		return nil, fmt.Errorf("epub has no rootfiles")
	}
	book := rc.Rootfiles[0]

	content := &domain.BookContent{
		Title:       strings.TrimSpace(book.Metadata.Title),
		Author:      strings.TrimSpace(book.Metadata.Creator),
		Description: htmlToMarkdown(strings.TrimSpace(book.Metadata.Description)),
	}

	titles := tocTitlesByHref(p, book)

	for i, ref := range book.Spine.Itemrefs {
		if ref.Item == nil {
			continue
		}
		r, err := ref.Item.Open()
		if err != nil {
			continue
		}
		data, err := io.ReadAll(r)
		r.Close()
		if err != nil {
			continue
		}

		title := ""
		if ref.Item.HREF != "" {
			if t, ok := titles[ref.Item.HREF]; ok {
				title = t
			} else if t, ok := titles[path.Base(ref.Item.HREF)]; ok {
				title = t
			}
		}
		if title == "" {
			title = fmt.Sprintf("Section %d", i+1)
		}

		content.Chapters = append(content.Chapters, domain.ChapterText{
			Title: title,
			Text:  htmlToText(string(data)),
		})
	}

	content.CoverData, content.CoverMime = findCover(book)
	return content, nil
}

// findCover returns the bytes and media type of the manifest's cover image,
// if one is declared.
func findCover(book *epub.Rootfile) ([]byte, string) {
	for i := range book.Manifest.Items {
		item := &book.Manifest.Items[i]
		if !strings.HasPrefix(item.MediaType, "image/") {
			continue
		}
		id := strings.ToLower(item.ID)
		href := strings.ToLower(item.HREF)
		if !strings.Contains(id, "cover") && !strings.Contains(href, "cover") {
			continue
		}
		r, err := item.Open()
		if err != nil {
			continue
		}
		data, err := io.ReadAll(r)
		r.Close()
		if err != nil {
			continue
		}
		return data, item.MediaType
	}
	return nil, ""
}

// NCX structures, the EPUB 2 table of contents format. EPUB 3 books usually
// ship one for compatibility.
type ncx struct {
	NavMap navMap `xml:"navMap"`
}

type navMap struct {
	NavPoints []navPoint `xml:"navPoint"`
}

type navPoint struct {
	Label    navLabel   `xml:"navLabel"`
	Content  navContent `xml:"content"`
	Children []navPoint `xml:"navPoint"`
}

type navLabel struct {
	Text string `xml:"text"`
}

type navContent struct {
	Src string `xml:"src,attr"`
}

// tocTitlesByHref parses the NCX and maps spine hrefs to chapter titles.
// Fragment anchors and directory prefixes are stripped so lookups succeed
// from either side.
func tocTitlesByHref(filename string, book *epub.Rootfile) map[string]string {
	result := map[string]string{}

	data, err := readNCX(filename, book)
	if err != nil {
		return result
	}

	var toc ncx
	if err := xml.Unmarshal(data, &toc); err != nil {
		return result
	}

	var collect func(points []navPoint)
	collect = func(points []navPoint) {
		for _, np := range points {
			href := np.Content.Src
			title := strings.TrimSpace(np.Label.Text)
			if title == "" {
				continue
			}

			if _, seen := result[href]; !seen {
				result[href] = title
			}
			if idx := strings.Index(href, "#"); idx != -1 {
				base := href[:idx]
				if _, seen := result[base]; !seen {
					result[base] = title
				}
			}
			base := path.Base(href)
			if idx := strings.Index(base, "#"); idx != -1 {
				base = base[:idx]
			}
			if _, seen := result[base]; !seen {
				result[base] = title
			}

			collect(np.Children)
		}
	}
	collect(toc.NavMap.NavPoints)
	return result
}

// readNCX locates the NCX inside the container: by manifest media type
// first, then by extension.
func readNCX(filename string, book *epub.Rootfile) ([]byte, error) {
	zr, err := zip.OpenReader(filename)
	if err != nil {
		return nil, err
	}
	defer zr.Close()

	var ncxPath string
	for _, item := range book.Manifest.Items {
		if item.MediaType == "application/x-dtbncx+xml" {
			ncxPath = item.HREF
			break
		}
	}
	if ncxPath == "" {
		for _, f := range zr.File {
			if strings.HasSuffix(strings.ToLower(f.Name), ".ncx") {
				ncxPath = f.Name
				break
			}
		}
	}
	if ncxPath == "" {
		return nil, fmt.Errorf("no ncx in epub")
	}

	for _, f := range zr.File {
		if f.Name == ncxPath || strings.HasSuffix(f.Name, "/"+ncxPath) || path.Base(f.Name) == path.Base(ncxPath) {
			rc, err := f.Open()
			if err != nil {
				return nil, err
			}
			defer rc.Close()
			return io.ReadAll(rc)
		}
	}
	return nil, fmt.Errorf("ncx %s not in archive", ncxPath)
}
