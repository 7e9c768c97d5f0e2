package chunk

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/DocentAI/docent-mvp/engine/domain"
)

func wordsText(n int) string {
	words := make([]string, n)
	for i := range words {
		words[i] = fmt.Sprintf("w%d", i)
	}
	return strings.Join(words, " ")
}

func TestSplit_WindowAndOverlap(t *testing.T) {
	chunks, err := Split(wordsText(12), 5, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Step is 3: windows start at 0, 3, 6, 9.
	if len(chunks) != 4 {
		t.Fatalf("expected 4 chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		n := len(strings.Fields(c))
		if n > 5 {
			t.Errorf("chunk %d has %d words, want <= 5", i, n)
		}
	}

	// Consecutive windows share exactly overlap words.
	first := strings.Fields(chunks[0])
	second := strings.Fields(chunks[1])
	if first[3] != second[0] || first[4] != second[1] {
		t.Errorf("expected 2-word overlap, got %v then %v", first, second)
	}
}

func TestSplit_TailKept(t *testing.T) {
	chunks, err := Split(wordsText(7), 5, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	last := chunks[len(chunks)-1]
	if got := len(strings.Fields(last)); got == 0 || got > 5 {
		t.Errorf("tail chunk has %d words", got)
	}
}

func TestSplit_Empty(t *testing.T) {
	for _, text := range []string{"", "   ", "\n\t "} {
		chunks, err := Split(text, 5, 2)
		if err != nil {
			t.Fatalf("unexpected error for %q: %v", text, err)
		}
		if len(chunks) != 0 {
			t.Errorf("expected no chunks for %q, got %d", text, len(chunks))
		}
	}
}

func TestSplit_InvalidParams(t *testing.T) {
	cases := []struct{ size, overlap int }{
		{5, 5},   // step would be zero
		{5, 6},   // step negative
		{0, 0},   // zero size
		{-1, 0},  // negative size
		{5, -1},  // negative overlap
	}
	for _, c := range cases {
		if _, err := Split("some text here", c.size, c.overlap); !errors.Is(err, domain.ErrInvalidChunkParams) {
			t.Errorf("size=%d overlap=%d: expected ErrInvalidChunkParams, got %v", c.size, c.overlap, err)
		}
	}
}

func TestSplit_ExactMultiple(t *testing.T) {
	// 10 words, size 5, overlap 0: exactly two full windows, no empty tail.
	chunks, err := Split(wordsText(10), 5, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}
}
