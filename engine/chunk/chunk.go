// Package chunk splits extracted document text into overlapping word windows,
// the unit of embedding and retrieval.
package chunk

import (
	"strings"

	"github.com/DocentAI/docent-mvp/engine/domain"
)

const (
	// DefaultSize is the window width in words.
	DefaultSize = 500
	// DefaultOverlap is how many words consecutive windows share.
	DefaultOverlap = 100
)

// Split cuts text into windows of size words, each advancing by size-overlap
// words. A shorter tail window is kept if non-empty. Empty or whitespace-only
// text yields no chunks; that is not an error. overlap must be smaller than
// size (and neither may be negative) or the step would not advance.
func Split(text string, size, overlap int) ([]string, error) {
	if size <= 0 || overlap < 0 || overlap >= size {
		return nil, domain.ErrInvalidChunkParams
	}

	words := strings.Fields(text)
	if len(words) == 0 {
		return nil, nil
	}

	step := size - overlap
	var chunks []string
	for start := 0; start < len(words); start += step {
		end := start + size
		if end > len(words) {
			end = len(words)
		}
		chunks = append(chunks, strings.Join(words[start:end], " "))
		if end == len(words) {
			break
		}
	}
	return chunks, nil
}
