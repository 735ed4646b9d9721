// Package chunker splits extracted document text into overlapping segments
// suitable for embedding and vector indexing.
package chunker

import (
	"strings"
	"unicode/utf8"
)

// DefaultMaxChars is the default chunk size in characters.
const DefaultMaxChars = 1000

// DefaultOverlapChars is the default overlap between consecutive chunks.
const DefaultOverlapChars = 200

// Span marks a chunk's byte offsets into the source text.
type Span struct {
	Start int
	End   int
}

// Chunk is a contiguous segment of source text with its position.
type Chunk struct {
	Span
	Text string
}

// Split divides text into chunks of at most maxChars bytes, preferring
// paragraph and sentence boundaries over hard character cuts. The trailing
// overlapChars of each chunk are duplicated into the start of the next, so
// context at chunk boundaries is not lost.
//
// Spans are monotonically increasing and cover the whole input without gaps:
// dropping each chunk's leading overlap and concatenating the rest
// reconstructs the original text exactly. Output is deterministic for
// identical input and parameters. Empty input yields nil.
func Split(text string, maxChars, overlapChars int) []Chunk {
	if text == "" {
		return nil
	}
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}
	if overlapChars < 0 {
		overlapChars = 0
	}
	if overlapChars >= maxChars {
		overlapChars = maxChars / 4
	}

	var chunks []Chunk
	start := 0
	for start < len(text) {
		end := start + maxChars
		if end >= len(text) {
			end = len(text)
		} else {
			end = cutPoint(text, start, end)
		}

		chunks = append(chunks, Chunk{
			Span: Span{Start: start, End: end},
			Text: text[start:end],
		})

		if end == len(text) {
			break
		}

		next := end - overlapChars
		if next <= start {
			next = start + 1
		}
		// Never start a chunk mid-rune.
		for next < len(text) && !utf8.RuneStart(text[next]) {
			next++
		}
		start = next
	}
	return chunks
}

// cutPoint picks the end offset for a chunk starting at start with a hard
// limit at limit. Paragraph breaks win over sentence ends; a boundary is only
// taken when it lands past the midpoint of the window, so chunks stay
// reasonably full. With no usable boundary the cut is a hard one, backed up
// to a rune start.
func cutPoint(text string, start, limit int) int {
	window := text[start:limit]
	min := len(window) / 2

	if i := strings.LastIndex(window, "\n\n"); i > min {
		return start + i + 2
	}

	if i := lastSentenceEnd(window); i > min {
		return start + i
	}

	if i := strings.LastIndexByte(window, '\n'); i > min {
		return start + i + 1
	}
	if i := strings.LastIndexByte(window, ' '); i > min {
		return start + i + 1
	}

	// Hard cut; keep the split on a rune boundary.
	end := limit
	for end > start && !utf8.RuneStart(text[end]) {
		end--
	}
	if end == start {
		end = limit
	}
	return end
}

// lastSentenceEnd returns the offset just past the last sentence terminator
// followed by whitespace, or -1 if there is none.
func lastSentenceEnd(s string) int {
	for i := len(s) - 2; i >= 0; i-- {
		switch s[i] {
		case '.', '!', '?':
			if s[i+1] == ' ' || s[i+1] == '\n' || s[i+1] == '\t' {
				return i + 2
			}
		}
	}
	return -1
}
