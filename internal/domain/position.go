package domain

import "math"

// CharsPerSecond is the fixed narration speed heuristic at rate 1.0.
// Seeking and stall deadlines both derive from it; actual engine speed is
// never measured.
const CharsPerSecond = 15

// Position identifies a listening location as (chapter, chunk, character).
// Char is an offset into the chunk's text, in [0, len(chunk)].
type Position struct {
	Chapter int `json:"chapter"`
	Chunk   int `json:"chunk"`
	Char    int `json:"char"`
}

// Origin is the start of a book.
var Origin = Position{}

// ClampPosition forces pos into the valid range for chapters.
// A chapter without chunks pins Chunk and Char to zero.
func ClampPosition(pos Position, chapters [][]string) Position {
	if len(chapters) == 0 {
		return Origin
	}
	if pos.Chapter < 0 {
		return Origin
	}
	if pos.Chapter >= len(chapters) {
		pos.Chapter = len(chapters) - 1
		pos.Chunk = lastChunkIndex(chapters, pos.Chapter)
		pos.Char = chunkLen(chapters, pos.Chapter, pos.Chunk)
		return pos
	}
	if pos.Chunk < 0 {
		pos.Chunk, pos.Char = 0, 0
		return pos
	}
	if max := lastChunkIndex(chapters, pos.Chapter); pos.Chunk > max {
		pos.Chunk = max
		pos.Char = chunkLen(chapters, pos.Chapter, pos.Chunk)
		return pos
	}
	if pos.Char < 0 {
		pos.Char = 0
	} else if l := chunkLen(chapters, pos.Chapter, pos.Chunk); pos.Char > l {
		pos.Char = l
	}
	return pos
}

// LastPosition returns the maximum valid position for chapters.
func LastPosition(chapters [][]string) Position {
	if len(chapters) == 0 {
		return Origin
	}
	ch := len(chapters) - 1
	ck := lastChunkIndex(chapters, ch)
	return Position{Chapter: ch, Chunk: ck, Char: chunkLen(chapters, ch, ck)}
}

// Advance moves pos by offset characters through the chunked chapters.
// Positive offsets walk forward across chunk and chapter boundaries and clamp
// at the end of the book; negative offsets walk backward and clamp at the
// origin. The walk never wraps.
func Advance(pos Position, chapters [][]string, offset int) Position {
	if len(chapters) == 0 {
		return Origin
	}
	pos = ClampPosition(pos, chapters)
	switch {
	case offset > 0:
		return advanceForward(pos, chapters, offset)
	case offset < 0:
		return advanceBackward(pos, chapters, -offset)
	default:
		return pos
	}
}

func advanceForward(pos Position, chapters [][]string, remaining int) Position {
	for remaining > 0 {
		room := chunkLen(chapters, pos.Chapter, pos.Chunk) - pos.Char
		if remaining <= room {
			pos.Char += remaining
			return pos
		}
		next, ok := nextChunk(pos, chapters)
		if !ok {
			pos.Char = chunkLen(chapters, pos.Chapter, pos.Chunk)
			return pos
		}
		remaining -= room
		pos = next
	}
	return pos
}

func advanceBackward(pos Position, chapters [][]string, remaining int) Position {
	for remaining > 0 {
		if remaining <= pos.Char {
			pos.Char -= remaining
			return pos
		}
		prev, ok := prevChunk(pos, chapters)
		if !ok {
			pos.Char = 0
			return pos
		}
		remaining -= pos.Char
		pos = prev
	}
	return pos
}

// nextChunk steps to the start of the following chunk, crossing into the next
// chapter when the current one is exhausted.
func nextChunk(pos Position, chapters [][]string) (Position, bool) {
	if pos.Chunk+1 < len(chapters[pos.Chapter]) {
		return Position{Chapter: pos.Chapter, Chunk: pos.Chunk + 1}, true
	}
	if pos.Chapter+1 < len(chapters) {
		return Position{Chapter: pos.Chapter + 1}, true
	}
	return pos, false
}

// prevChunk steps to the end of the preceding chunk, crossing into the prior
// chapter when at a chapter start.
func prevChunk(pos Position, chapters [][]string) (Position, bool) {
	if pos.Chunk > 0 {
		p := Position{Chapter: pos.Chapter, Chunk: pos.Chunk - 1}
		p.Char = chunkLen(chapters, p.Chapter, p.Chunk)
		return p, true
	}
	if pos.Chapter > 0 {
		p := Position{Chapter: pos.Chapter - 1}
		p.Chunk = lastChunkIndex(chapters, p.Chapter)
		p.Char = chunkLen(chapters, p.Chapter, p.Chunk)
		return p, true
	}
	return pos, false
}

func lastChunkIndex(chapters [][]string, chapter int) int {
	if len(chapters[chapter]) == 0 {
		return 0
	}
	return len(chapters[chapter]) - 1
}

func chunkLen(chapters [][]string, chapter, chunk int) int {
	if chunk >= len(chapters[chapter]) {
		return 0
	}
	return len(chapters[chapter][chunk])
}

// CharsForSeconds converts a time-based skip into a character offset using the
// fixed chars-per-second heuristic scaled by the playback rate.
func CharsForSeconds(seconds, rate float64) int {
	return int(math.Round(seconds * CharsPerSecond * rate))
}

// EstimateSpeechMs estimates how long narrating chars characters takes at the
// given rate, in milliseconds.
func EstimateSpeechMs(chars int, rate float64) int64 {
	if rate <= 0 {
		rate = 1
	}
	return int64(math.Round(float64(chars) / (CharsPerSecond * rate) * 1000))
}

// ChapterPercent reports progress through the chapter at pos, in [0, 100].
func ChapterPercent(pos Position, chapters [][]string) float64 {
	if pos.Chapter < 0 || pos.Chapter >= len(chapters) {
		return 0
	}
	total := 0
	consumed := 0
	for i, chunk := range chapters[pos.Chapter] {
		total += len(chunk)
		if i < pos.Chunk {
			consumed += len(chunk)
		} else if i == pos.Chunk {
			consumed += min(pos.Char, len(chunk))
		}
	}
	if total == 0 {
		return 0
	}
	return float64(consumed) / float64(total) * 100
}

// BookPercent reports progress through the whole book at pos, in [0, 100].
func BookPercent(pos Position, chapters [][]string) float64 {
	total := 0
	consumed := 0
	for ci, chunks := range chapters {
		for ki, chunk := range chunks {
			total += len(chunk)
			switch {
			case ci < pos.Chapter:
				consumed += len(chunk)
			case ci == pos.Chapter && ki < pos.Chunk:
				consumed += len(chunk)
			case ci == pos.Chapter && ki == pos.Chunk:
				consumed += min(pos.Char, len(chunk))
			}
		}
	}
	if total == 0 {
		return 0
	}
	return float64(consumed) / float64(total) * 100
}
