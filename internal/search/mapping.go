package search

import (
	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/lang/en"
	"github.com/blevesearch/bleve/v2/mapping"
)

// buildIndexMapping creates the Bleve index mapping for search documents.
//
// The mapping is designed with these priorities:
//  1. Fast full-text search on titles and chunk text with English stemming
//  2. Boosted relevance for title matches over in-text matches
//  3. Exact keyword matching for type and book filters
//  4. Term vectors on highlighted fields so hits come back with snippets
func buildIndexMapping() mapping.IndexMapping {
	// Create the index mapping
	indexMapping := bleve.NewIndexMapping()

	// Use English analyzer as default for text fields
	indexMapping.DefaultAnalyzer = en.AnalyzerName

	// Create document mapping
	docMapping := bleve.NewDocumentMapping()

	// --- Text fields (full-text searchable) ---

	// Title - primary search target, boosted
	titleFieldMapping := bleve.NewTextFieldMapping()
	titleFieldMapping.Analyzer = en.AnalyzerName
	titleFieldMapping.Store = true
	titleFieldMapping.IncludeTermVectors = true // For highlighting
	docMapping.AddFieldMappingsAt("title", titleFieldMapping)

	// Author - searchable
	authorFieldMapping := bleve.NewTextFieldMapping()
	authorFieldMapping.Analyzer = en.AnalyzerName
	authorFieldMapping.Store = true
	authorFieldMapping.IncludeTermVectors = true // For highlighting
	docMapping.AddFieldMappingsAt("author", authorFieldMapping)

	// Series - searchable
	seriesFieldMapping := bleve.NewTextFieldMapping()
	seriesFieldMapping.Analyzer = en.AnalyzerName
	seriesFieldMapping.Store = true
	docMapping.AddFieldMappingsAt("series", seriesFieldMapping)

	// Chapter title - stored so chunk hits can show where they are
	chapterTitleFieldMapping := bleve.NewTextFieldMapping()
	chapterTitleFieldMapping.Analyzer = en.AnalyzerName
	chapterTitleFieldMapping.Store = true
	docMapping.AddFieldMappingsAt("chapter_title", chapterTitleFieldMapping)

	// Chunk text - stored for snippet extraction. Chunks are bounded by the
	// narration budget, so storing them keeps the index reasonable.
	textFieldMapping := bleve.NewTextFieldMapping()
	textFieldMapping.Analyzer = en.AnalyzerName
	textFieldMapping.Store = true
	textFieldMapping.IncludeTermVectors = true // For highlighting
	docMapping.AddFieldMappingsAt("text", textFieldMapping)

	// --- Keyword fields (exact match) ---

	// Type - for filtering by document type
	typeFieldMapping := bleve.NewTextFieldMapping()
	typeFieldMapping.Analyzer = keyword.Name
	docMapping.AddFieldMappingsAt("type", typeFieldMapping)

	// ID - stored but not analyzed
	idFieldMapping := bleve.NewTextFieldMapping()
	idFieldMapping.Analyzer = keyword.Name
	docMapping.AddFieldMappingsAt("id", idFieldMapping)

	// Book ID - for restricting a search to one book and for removals
	bookIDFieldMapping := bleve.NewTextFieldMapping()
	bookIDFieldMapping.Analyzer = keyword.Name
	bookIDFieldMapping.Store = true
	docMapping.AddFieldMappingsAt("book_id", bookIDFieldMapping)

	// --- Numeric fields ---

	// Chunk coordinates - stored so a text hit maps to a playback position
	chapterFieldMapping := bleve.NewNumericFieldMapping()
	chapterFieldMapping.Store = true
	docMapping.AddFieldMappingsAt("chapter", chapterFieldMapping)

	chunkFieldMapping := bleve.NewNumericFieldMapping()
	chunkFieldMapping.Store = true
	docMapping.AddFieldMappingsAt("chunk", chunkFieldMapping)

	// Timestamps - for sorting by recency
	createdAtFieldMapping := bleve.NewNumericFieldMapping()
	createdAtFieldMapping.Store = true
	docMapping.AddFieldMappingsAt("created_at", createdAtFieldMapping)

	updatedAtFieldMapping := bleve.NewNumericFieldMapping()
	updatedAtFieldMapping.Store = true
	docMapping.AddFieldMappingsAt("updated_at", updatedAtFieldMapping)

	// Register the document mapping
	indexMapping.AddDocumentMapping("_default", docMapping)

	return indexMapping
}
