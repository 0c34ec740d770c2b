// Package chunker splits chapter text into bounded, sentence-aligned segments.
//
// Narration engines behave badly on long inputs, so chapters are fed to them
// one chunk at a time. Chunks prefer to end on a sentence terminator and never
// exceed the character budget before trimming.
package chunker

import (
	"strings"
	"unicode/utf8"
)

// DefaultBudget is the chunk size limit in bytes before trimming.
const DefaultBudget = 250

// Sentence terminators, in cut priority order.
var terminators = []byte{'.', '?', '!'}

// Split divides text into trimmed, non-empty chunks of at most budget bytes.
// Within each budget window the cut lands just after the last '.', falling
// back to the last '?' and then the last '!'; a window with no terminator is
// cut at the hard budget boundary. Empty input yields a nil slice.
func Split(text string, budget int) []string {
	if budget <= 0 {
		budget = DefaultBudget
	}

	var chunks []string
	cursor := 0
	for cursor < len(text) {
		cut := cutPoint(text, cursor, budget)
		piece := strings.TrimSpace(text[cursor:cut])
		if piece != "" {
			chunks = append(chunks, piece)
		}
		// The cursor advances to the cut even when trimming emptied the
		// piece, so the loop always terminates.
		cursor = cut
	}
	return chunks
}

// cutPoint returns the absolute index to cut at for the window starting at
// cursor.
func cutPoint(text string, cursor, budget int) int {
	end := cursor + budget
	if end >= len(text) {
		return len(text)
	}

	window := text[cursor:end]
	for _, term := range terminators {
		if idx := strings.LastIndexByte(window, term); idx >= 0 {
			return cursor + idx + 1
		}
	}

	// No terminator in the window: hard cut, backed up so a multi-byte rune
	// is never split.
	for end > cursor && !utf8.RuneStart(text[end]) {
		end--
	}
	if end == cursor {
		return cursor + budget
	}
	return end
}

// SplitChapters chunks every chapter of a book. A non-positive budget uses
// the default.
func SplitChapters(chapters []string, budget int) [][]string {
	out := make([][]string, len(chapters))
	for i, chapter := range chapters {
		out[i] = Split(chapter, budget)
	}
	return out
}

// Count returns the total number of chunks across chapters.
func Count(chapters [][]string) int {
	n := 0
	for _, chunks := range chapters {
		n += len(chunks)
	}
	return n
}
