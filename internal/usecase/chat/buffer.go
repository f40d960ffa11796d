package chat

import "strings"

// maxBufferedRunes bounds flush latency for text without frequent boundaries.
const maxBufferedRunes = 50

// boundaryBuffer accumulates incremental completion fragments and releases
// them on linguistic boundaries, so downstream renderers never see markdown
// or multi-byte sequences cut mid-token.
type boundaryBuffer struct {
	buf strings.Builder
}

// add appends a fragment and reports whether the buffer reached a flush
// point; if so the buffered text is returned and the buffer resets. Empty
// fragments never change buffering state.
func (b *boundaryBuffer) add(fragment string) (string, bool) {
	if fragment == "" {
		return "", false
	}
	b.buf.WriteString(fragment)

	s := b.buf.String()
	if !endsOnBoundary(s) && len([]rune(s)) <= maxBufferedRunes {
		return "", false
	}
	b.buf.Reset()
	return s, true
}

// flush drains whatever remains, boundary or not.
func (b *boundaryBuffer) flush() (string, bool) {
	if b.buf.Len() == 0 {
		return "", false
	}
	s := b.buf.String()
	b.buf.Reset()
	return s, true
}

func endsOnBoundary(s string) bool {
	if strings.HasSuffix(s, "```") {
		return true
	}
	runes := []rune(s)
	switch runes[len(runes)-1] {
	case ' ', '\n', '.', '!', '?', '。', '！', '？':
		return true
	}
	return false
}
