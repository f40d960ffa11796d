// Package chunker splits extracted document text into overlapping segments
// sized for the embedding model.
package chunker

import "strings"

// Default splitting parameters, matched to the embedding model's useful
// input window.
const (
	DefaultMaxChunkSize = 1000
	DefaultOverlap      = 200
)

// separators in priority order: paragraph break, line break, word break,
// hard character cut.
var separators = []string{"\n\n", "\n", " "}

// TextChunker splits raw text into overlapping chunks along natural
// boundaries. It is a pure function of its input: no side effects, fully
// deterministic.
type TextChunker struct {
	maxSize int // chunk size budget, in runes
	overlap int // runes shared between consecutive chunks
}

// New creates a chunker. Non-positive maxSize or overlap fall back to the
// defaults; overlap is clamped below maxSize so splitting always progresses.
func New(maxSize, overlap int) *TextChunker {
	if maxSize <= 0 {
		maxSize = DefaultMaxChunkSize
	}
	if overlap < 0 {
		overlap = DefaultOverlap
	}
	if overlap >= maxSize {
		overlap = maxSize / 2
	}
	return &TextChunker{maxSize: maxSize, overlap: overlap}
}

// Split breaks text into chunks of at most maxSize runes. Each chunk after
// the first starts exactly overlap runes before the end of its predecessor,
// so local context survives chunk boundaries and concatenating chunks minus
// overlaps reproduces the input. Cut points prefer the highest-priority
// separator present in the window; a hard character cut is the last resort.
// Empty or whitespace-only input yields no chunks.
func (c *TextChunker) Split(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	runes := []rune(text)
	if len(runes) <= c.maxSize {
		return []string{text}
	}

	var chunks []string
	start := 0
	for start < len(runes) {
		end := start + c.maxSize
		if end >= len(runes) {
			chunks = append(chunks, string(runes[start:]))
			break
		}

		cut := c.findCut(runes[start:end])
		chunks = append(chunks, string(runes[start:start+cut]))
		start += cut - c.overlap
	}
	return chunks
}

// findCut returns the cut position inside the window, trying each separator
// in priority order. The separator stays with the left chunk. A cut is only
// usable when it lies past the overlap, otherwise the next chunk would not
// advance. Falls back to cutting at the window end.
func (c *TextChunker) findCut(window []rune) int {
	text := string(window)
	for _, sep := range separators {
		idx := strings.LastIndex(text, sep)
		if idx < 0 {
			continue
		}
		cut := len([]rune(text[:idx])) + len([]rune(sep))
		if cut > c.overlap {
			return cut
		}
	}
	return len(window)
}
