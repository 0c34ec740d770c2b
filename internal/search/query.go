package search

import (
	"context"
	"fmt"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search/query"

	"github.com/aloudapp/aloud-server/internal/domain"
)

// SearchParams configures a search query.
type SearchParams struct {
	Query string // User's search query

	// Filters
	Types  []string // Document types to include (empty = all)
	BookID string   // Restrict the search to one book

	// Pagination
	Limit  int
	Offset int

	// Sorting
	SortBy    string // "relevance", "title", "recent"
	SortOrder string // "asc", "desc"

	// Options
	Highlight bool // Include match snippets
}

// DefaultSearchParams returns sensible defaults.
func DefaultSearchParams() SearchParams {
	return SearchParams{
		Limit:     20,
		Offset:    0,
		SortBy:    "relevance",
		SortOrder: "desc",
		Highlight: true,
	}
}

// SearchResult represents the search results.
type SearchResult struct {
	Query  string      `json:"query"`
	Total  uint64      `json:"total"`
	TookMs int64       `json:"took_ms"`
	Hits   []SearchHit `json:"hits"`
}

// SearchHit represents a single search result. Chunk hits carry the playback
// position of the matching text, so a client can start narration right there.
type SearchHit struct {
	ID           string           `json:"id"`
	Type         DocType          `json:"type"`
	Score        float64          `json:"score"`
	BookID       string           `json:"book_id"`
	Title        string           `json:"title,omitempty"`
	Author       string           `json:"author,omitempty"`
	Series       string           `json:"series,omitempty"`
	ChapterTitle string           `json:"chapter_title,omitempty"`
	Position     *domain.Position `json:"position,omitempty"`
	Snippet      string           `json:"snippet,omitempty"`
}

// Search executes a search query.
func (s *SearchIndex) Search(ctx context.Context, params SearchParams) (*SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	// Build the query
	searchQuery := buildSearchQuery(params)

	// Create search request
	searchRequest := bleve.NewSearchRequestOptions(searchQuery, params.Limit, params.Offset, false)

	// Add sorting
	addSorting(searchRequest, params)

	// Add highlighting
	if params.Highlight {
		searchRequest.Highlight = bleve.NewHighlight()
		searchRequest.Highlight.AddField("text")
		searchRequest.Highlight.AddField("title")
		searchRequest.Highlight.AddField("author")
	}

	// Request stored fields
	searchRequest.Fields = []string{
		"id", "type", "book_id", "title", "author", "series",
		"chapter_title", "chapter", "chunk",
	}

	// Execute search
	searchResult, err := s.index.SearchInContext(ctx, searchRequest)
	if err != nil {
		return nil, fmt.Errorf("execute search: %w", err)
	}

	// Convert results
	result := &SearchResult{
		Query:  params.Query,
		Total:  searchResult.Total,
		TookMs: searchResult.Took.Milliseconds(),
		Hits:   make([]SearchHit, 0, len(searchResult.Hits)),
	}

	for _, hit := range searchResult.Hits {
		searchHit := SearchHit{
			ID:    hit.ID,
			Score: hit.Score,
		}

		// Extract stored fields
		if t, ok := hit.Fields["type"].(string); ok {
			searchHit.Type = DocType(t)
		}
		if b, ok := hit.Fields["book_id"].(string); ok {
			searchHit.BookID = b
		}
		if n, ok := hit.Fields["title"].(string); ok {
			searchHit.Title = n
		}
		if a, ok := hit.Fields["author"].(string); ok {
			searchHit.Author = a
		}
		if sn, ok := hit.Fields["series"].(string); ok {
			searchHit.Series = sn
		}
		if ct, ok := hit.Fields["chapter_title"].(string); ok {
			searchHit.ChapterTitle = ct
		}

		// Chunk hits resolve to a playback position. Char stays zero:
		// narration always starts at a chunk boundary.
		if searchHit.Type == DocTypeChunk {
			pos := &domain.Position{}
			if c, ok := hit.Fields["chapter"].(float64); ok {
				pos.Chapter = int(c)
			}
			if c, ok := hit.Fields["chunk"].(float64); ok {
				pos.Chunk = int(c)
			}
			searchHit.Position = pos
		}

		// Extract the best highlight fragment as the snippet.
		for _, field := range []string{"text", "title", "author"} {
			if fragments, ok := hit.Fragments[field]; ok && len(fragments) > 0 {
				searchHit.Snippet = fragments[0]
				break
			}
		}

		result.Hits = append(result.Hits, searchHit)
	}

	return result, nil
}

// buildSearchQuery constructs the Bleve query from params.
func buildSearchQuery(params SearchParams) query.Query {
	var queries []query.Query

	// Main text query
	// Search strategy: title matches rank above in-text matches, so looking
	// for a book by name surfaces the book before every paragraph that
	// mentions it. Fuzzy and prefix variants add typo and autocomplete
	// tolerance on the title.
	if params.Query != "" {
		textQueries := []query.Query{}

		// Title match with highest boost
		titleMatch := bleve.NewMatchQuery(params.Query)
		titleMatch.SetField("title")
		titleMatch.SetBoost(3.0)
		textQueries = append(textQueries, titleMatch)

		// Author match
		authorMatch := bleve.NewMatchQuery(params.Query)
		authorMatch.SetField("author")
		authorMatch.SetBoost(2.0)
		textQueries = append(textQueries, authorMatch)

		// Series match
		seriesMatch := bleve.NewMatchQuery(params.Query)
		seriesMatch.SetField("series")
		seriesMatch.SetBoost(1.5)
		textQueries = append(textQueries, seriesMatch)

		// In-text match for chunk documents
		textMatch := bleve.NewMatchQuery(params.Query)
		textMatch.SetField("text")
		textQueries = append(textQueries, textMatch)

		// Add fuzzy matching for typo tolerance on title
		fuzzyQuery := bleve.NewFuzzyQuery(params.Query)
		fuzzyQuery.SetFuzziness(1)
		fuzzyQuery.SetField("title")
		fuzzyQuery.SetBoost(0.8)
		textQueries = append(textQueries, fuzzyQuery)

		// Prefix query for autocomplete (minimum 2 chars)
		if len(params.Query) >= 2 {
			prefixQuery := bleve.NewPrefixQuery(strings.ToLower(params.Query))
			prefixQuery.SetField("title")
			prefixQuery.SetBoost(0.5)
			textQueries = append(textQueries, prefixQuery)
		}

		// Combine with OR (match any field)
		queries = append(queries, bleve.NewDisjunctionQuery(textQueries...))
	}

	// Type filter
	if len(params.Types) > 0 {
		typeQueries := make([]query.Query, len(params.Types))
		for i, t := range params.Types {
			tq := bleve.NewTermQuery(t)
			tq.SetField("type")
			typeQueries[i] = tq
		}
		queries = append(queries, bleve.NewDisjunctionQuery(typeQueries...))
	}

	// Book filter (exact match)
	if params.BookID != "" {
		bq := bleve.NewTermQuery(params.BookID)
		bq.SetField("book_id")
		queries = append(queries, bq)
	}

	// Combine all queries with AND
	if len(queries) == 0 {
		return bleve.NewMatchAllQuery()
	}
	if len(queries) == 1 {
		return queries[0]
	}
	return bleve.NewConjunctionQuery(queries...)
}

// addSorting configures sort order.
func addSorting(req *bleve.SearchRequest, params SearchParams) {
	switch params.SortBy {
	case "title":
		if params.SortOrder == "desc" {
			req.SortBy([]string{"-title"})
		} else {
			req.SortBy([]string{"title"})
		}
	case "recent":
		if params.SortOrder == "asc" {
			req.SortBy([]string{"created_at"})
		} else {
			req.SortBy([]string{"-created_at"})
		}
	default:
		// Relevance (score) is default - Bleve handles this
		req.SortBy([]string{"-_score"})
	}
}
