package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/go-chi/chi/v5"

	"github.com/aloudapp/aloud-server/internal/chunker"
	"github.com/aloudapp/aloud-server/internal/domain"
	"github.com/aloudapp/aloud-server/internal/http/response"
)

// BookSummary is a catalog listing entry. File paths stay server-side;
// clients address books by ID only.
type BookSummary struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Author       string    `json:"author,omitempty"`
	Series       string    `json:"series,omitempty"`
	Format       string    `json:"format"`
	SizeBytes    int64     `json:"size_bytes"`
	HasCover     bool      `json:"has_cover"`
	BlurHash     string    `json:"blur_hash,omitempty" doc:"Cover placeholder hash"`
	ChapterCount int       `json:"chapter_count"`
	TotalChunks  int       `json:"total_chunks"`
	AddedAt      time.Time `json:"added_at"`
}

// BookDetail adds the description and the resume point to a summary.
type BookDetail struct {
	BookSummary
	Description string           `json:"description,omitempty"`
	Progress    *domain.Progress `json:"progress,omitempty" doc:"Saved resume point, absent before first narration"`
}

// BookListResponse is the catalog listing.
type BookListResponse struct {
	Books []BookSummary `json:"books"`
	Count int           `json:"count"`
}

// ChapterInfo describes one chapter without its text.
type ChapterInfo struct {
	Index  int    `json:"index"`
	Title  string `json:"title"`
	Chunks int    `json:"chunks" doc:"Number of narration chunks"`
}

// BookChaptersResponse lists a book's chapters.
type BookChaptersResponse struct {
	BookID   string        `json:"book_id"`
	Title    string        `json:"title"`
	Chapters []ChapterInfo `json:"chapters"`
}

// BookIDInput addresses one book.
type BookIDInput struct {
	ID string `path:"id" doc:"Book ID"`
}

// BookListOutput wraps the catalog listing.
type BookListOutput struct {
	Body BookListResponse
}

// BookDetailOutput wraps one book.
type BookDetailOutput struct {
	Body BookDetail
}

// BookChaptersOutput wraps a chapter listing.
type BookChaptersOutput struct {
	Body BookChaptersResponse
}

func (s *Server) registerBookRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "books-list",
		Method:      http.MethodGet,
		Path:        "/api/v1/books",
		Summary:     "List books",
		Tags:        []string{"Books"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleListBooks)

	huma.Register(s.api, huma.Operation{
		OperationID: "books-get",
		Method:      http.MethodGet,
		Path:        "/api/v1/books/{id}",
		Summary:     "Get a book",
		Tags:        []string{"Books"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleGetBook)

	huma.Register(s.api, huma.Operation{
		OperationID: "books-chapters",
		Method:      http.MethodGet,
		Path:        "/api/v1/books/{id}/chapters",
		Summary:     "List a book's chapters",
		Description: "Extracts the book and reports each chapter with its narration chunk count.",
		Tags:        []string{"Books"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleBookChapters)

	// Cover bytes skip huma: the route streams an image, not JSON.
	s.router.Get("/api/v1/books/{id}/cover", s.handleServeCover)
}

func summarizeBook(b *domain.Book) BookSummary {
	return BookSummary{
		ID:           b.ID,
		Title:        b.Title,
		Author:       b.Author,
		Series:       b.Series,
		Format:       b.Format,
		SizeBytes:    b.SizeBytes,
		HasCover:     b.CoverPath != "",
		BlurHash:     b.BlurHash,
		ChapterCount: b.ChapterCount,
		TotalChunks:  b.TotalChunks,
		AddedAt:      b.CreatedAt,
	}
}

func (s *Server) handleListBooks(ctx context.Context, _ *struct{}) (*BookListOutput, error) {
	if err := s.requireOwner(ctx); err != nil {
		return nil, err
	}

	books, err := s.services.Books.List(ctx)
	if err != nil {
		return nil, err
	}

	summaries := make([]BookSummary, 0, len(books))
	for _, b := range books {
		summaries = append(summaries, summarizeBook(b))
	}

	return &BookListOutput{Body: BookListResponse{Books: summaries, Count: len(summaries)}}, nil
}

func (s *Server) handleGetBook(ctx context.Context, input *BookIDInput) (*BookDetailOutput, error) {
	if err := s.requireOwner(ctx); err != nil {
		return nil, err
	}

	book, err := s.services.Books.Get(ctx, input.ID)
	if err != nil {
		return nil, err
	}

	progress, err := s.services.Books.Progress(book.ID)
	if err != nil {
		return nil, err
	}

	return &BookDetailOutput{Body: BookDetail{
		BookSummary: summarizeBook(book),
		Description: book.Description,
		Progress:    progress,
	}}, nil
}

func (s *Server) handleBookChapters(ctx context.Context, input *BookIDInput) (*BookChaptersOutput, error) {
	if err := s.requireOwner(ctx); err != nil {
		return nil, err
	}

	book, chapters, err := s.services.Books.Chapters(ctx, input.ID)
	if err != nil {
		return nil, err
	}

	infos := make([]ChapterInfo, 0, len(chapters))
	for i, ch := range chapters {
		infos = append(infos, ChapterInfo{
			Index:  i,
			Title:  ch.Title,
			Chunks: len(chunker.Split(ch.Text, chunker.DefaultBudget)),
		})
	}

	return &BookChaptersOutput{Body: BookChaptersResponse{
		BookID:   book.ID,
		Title:    book.Title,
		Chapters: infos,
	}}, nil
}

// handleServeCover streams cover bytes with cache headers. Browsers load
// covers through <img> tags that cannot set Authorization, so the route also
// accepts a token in the query string.
func (s *Server) handleServeCover(w http.ResponseWriter, r *http.Request) {
	r = s.withQueryToken(r)
	if !s.rawRequireOwner(w, r) {
		return
	}

	bookID := chi.URLParam(r, "id")
	book, err := s.store.GetBook(r.Context(), bookID)
	if err != nil {
		response.HandleError(w, err, s.log.Logger)
		return
	}

	if !s.covers.Exists(book.ID) {
		response.NotFound(w, "book has no cover", s.log.Logger)
		return
	}

	hash, err := s.covers.Hash(book.ID)
	if err == nil {
		etag := strconv.Quote(hash)
		w.Header().Set("ETag", etag)
		if match := r.Header.Get("If-None-Match"); match == etag {
			w.WriteHeader(http.StatusNotModified)
			return
		}
	}

	data, err := s.covers.Get(book.ID)
	if err != nil {
		response.HandleError(w, err, s.log.Logger)
		return
	}

	mime := book.CoverMime
	if mime == "" {
		mime = http.DetectContentType(data)
	}

	w.Header().Set("Content-Type", mime)
	w.Header().Set("Cache-Control", "public, max-age=604800")
	w.Header().Set("Last-Modified", book.UpdatedAt.UTC().Format(http.TimeFormat))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	if _, err := w.Write(data); err != nil {
		s.log.Debug("cover write aborted", "book_id", book.ID, "error", err)
	}
}
