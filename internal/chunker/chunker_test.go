package chunker

import (
	"strings"
	"testing"
)

func TestSplit_EmptyInput(t *testing.T) {
	c := New(1000, 200)

	for _, text := range []string{"", "   ", "\n\n\t  \n"} {
		if got := c.Split(text); len(got) != 0 {
			t.Errorf("Split(%q) = %d chunks, want 0", text, len(got))
		}
	}
}

func TestSplit_ShortInputSingleChunk(t *testing.T) {
	c := New(1000, 200)

	chunks := c.Split("hello world")
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if chunks[0] != "hello world" {
		t.Errorf("chunk = %q, want input unchanged", chunks[0])
	}
}

func TestSplit_SizeAndOverlap(t *testing.T) {
	c := New(10, 2)

	chunks := c.Split("Alpha. Beta. Gamma.")
	if len(chunks) < 2 {
		t.Fatalf("expected >=2 chunks, got %d: %q", len(chunks), chunks)
	}

	for i, ch := range chunks {
		if n := len([]rune(ch)); n > 10 {
			t.Errorf("chunk %d has %d runes, budget is 10: %q", i, n, ch)
		}
	}

	// Each chunk starts inside the last two runes of its predecessor.
	for i := 1; i < len(chunks); i++ {
		prev := []rune(chunks[i-1])
		tail := string(prev[len(prev)-2:])
		if !strings.HasPrefix(chunks[i], tail) {
			t.Errorf("chunk %d %q does not start with tail %q of chunk %d",
				i, chunks[i], tail, i-1)
		}
	}
}

func TestSplit_Reassembly(t *testing.T) {
	c := New(50, 10)

	text := strings.Repeat("The quick brown fox jumps over the lazy dog. ", 20)
	chunks := c.Split(text)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}

	// Dropping the first overlap runes of every chunk after the first must
	// reproduce the input exactly.
	var sb strings.Builder
	sb.WriteString(chunks[0])
	for _, ch := range chunks[1:] {
		runes := []rune(ch)
		sb.WriteString(string(runes[10:]))
	}
	if sb.String() != text {
		t.Error("reassembled text differs from input")
	}
}

func TestSplit_PrefersParagraphBoundaries(t *testing.T) {
	c := New(30, 5)

	text := "First paragraph here.\n\nSecond paragraph follows after."
	chunks := c.Split(text)

	if !strings.HasSuffix(chunks[0], "\n\n") {
		t.Errorf("first chunk %q should end on the paragraph break", chunks[0])
	}
}

func TestSplit_HardCutWithoutSeparators(t *testing.T) {
	c := New(10, 2)

	chunks := c.Split(strings.Repeat("x", 35))
	for i, ch := range chunks {
		if len(ch) > 10 {
			t.Errorf("chunk %d has len %d, budget is 10", i, len(ch))
		}
	}
	if len(chunks) < 4 {
		t.Errorf("expected at least 4 chunks for 35 runes at size 10/overlap 2, got %d", len(chunks))
	}
}

func TestSplit_CJKRuneBudget(t *testing.T) {
	c := New(10, 2)

	chunks := c.Split(strings.Repeat("数据存储与检索。", 5))
	for i, ch := range chunks {
		if n := len([]rune(ch)); n > 10 {
			t.Errorf("chunk %d has %d runes, budget is 10", i, n)
		}
	}
}

func TestNew_ClampsDegenerateConfig(t *testing.T) {
	c := New(10, 50) // overlap larger than size must not wedge the splitter

	chunks := c.Split(strings.Repeat("word ", 30))
	if len(chunks) == 0 {
		t.Fatal("expected chunks")
	}
	for i, ch := range chunks {
		if n := len([]rune(ch)); n > 10 {
			t.Errorf("chunk %d has %d runes, budget is 10", i, n)
		}
	}
}
