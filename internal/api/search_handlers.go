package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	apperrors "github.com/aloudapp/aloud-server/internal/errors"
	"github.com/aloudapp/aloud-server/internal/search"
)

// SearchInput is a full-text query over titles, authors, and book text.
type SearchInput struct {
	Query  string   `query:"q" doc:"Search query"`
	Types  []string `query:"type" doc:"Restrict to document types: book, chunk"`
	BookID string   `query:"book_id" doc:"Restrict to one book"`
	Limit  int      `query:"limit" doc:"Page size, default 20, capped at 100"`
	Offset int      `query:"offset"`
	Sort   string   `query:"sort" doc:"relevance, title, or recent; default relevance"`
}

// SearchOutput wraps search results. Chunk hits carry a playback position so
// a client can start narration at the match.
type SearchOutput struct {
	Body search.SearchResult
}

func (s *Server) registerSearchRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "search",
		Method:      http.MethodGet,
		Path:        "/api/v1/search",
		Summary:     "Search the library",
		Tags:        []string{"Search"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleSearch)
}

func (s *Server) handleSearch(ctx context.Context, input *SearchInput) (*SearchOutput, error) {
	if err := s.requireOwner(ctx); err != nil {
		return nil, err
	}

	if input.Query == "" {
		return nil, apperrors.Validation("search query cannot be empty")
	}

	params := search.DefaultSearchParams()
	params.Query = input.Query
	params.Types = input.Types
	params.BookID = input.BookID
	if input.Limit > 0 {
		params.Limit = min(input.Limit, 100)
	}
	if input.Offset > 0 {
		params.Offset = input.Offset
	}
	switch input.Sort {
	case "", "relevance", "title", "recent":
		if input.Sort != "" {
			params.SortBy = input.Sort
		}
	default:
		return nil, apperrors.Validationf("unknown sort order %q", input.Sort)
	}

	result, err := s.index.Search(ctx, params)
	if err != nil {
		return nil, err
	}
	return &SearchOutput{Body: *result}, nil
}
