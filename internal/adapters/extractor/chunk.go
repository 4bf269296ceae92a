// Package extractor turns documents into ordered, overlapping passages.
// Clean Architecture: Adapter implementing ports.Extractor.
package extractor

import (
	"fmt"
	"strings"

	"github.com/0xcro3dile/hybridrag-go/internal/domain/entities"
)

// Span is a [Start, End) rune range of a page.
type Span struct {
	Start int
	End   int
}

// SplitText cuts a text of n runes into windows of size runes that overlap by overlap runes.
// The last window always ends at n.
func SplitText(n, size, overlap int) []Span {
	if n <= 0 || size <= 0 {
		return nil
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}
	var out []Span
	for i := 0; i < n; {
		j := min(n, i+size)
		out = append(out, Span{Start: i, End: j})
		if j == n {
			break
		}
		i = max(0, j-overlap)
	}
	return out
}

// Chunker splits page text into passages.
type Chunker struct {
	Size     int // window length in runes
	Overlap  int // runes shared by consecutive windows
	MaxChars int // cap on stored passage text, 0 keeps the whole window
}

// NewChunker validates and returns a Chunker.
func NewChunker(size, overlap, maxChars int) (Chunker, error) {
	if size <= 0 {
		return Chunker{}, fmt.Errorf("chunk size must be positive, got %d", size)
	}
	if overlap < 0 || overlap >= size {
		return Chunker{}, fmt.Errorf("chunk overlap %d must be in [0, %d)", overlap, size)
	}
	return Chunker{Size: size, Overlap: overlap, MaxChars: maxChars}, nil
}

// Passages chunks the pages in order. Pages are numbered from 1.
// Blank windows are dropped; offsets of kept windows are unaffected.
// When MaxChars cuts a window, CharEnd marks the end of the stored text.
func (c Chunker) Passages(pages []string) []entities.Passage {
	var out []entities.Passage
	for idx, page := range pages {
		runes := []rune(page)
		for _, sp := range SplitText(len(runes), c.Size, c.Overlap) {
			end := sp.End
			if c.MaxChars > 0 {
				end = min(end, sp.Start+c.MaxChars)
			}
			text := string(runes[sp.Start:end])
			if strings.TrimSpace(text) == "" {
				continue
			}
			out = append(out, entities.Passage{
				Page:      idx + 1,
				CharStart: sp.Start,
				CharEnd:   end,
				Text:      text,
			})
		}
	}
	return out
}

// cleanText drops control characters that PDF text layers leak, keeping newlines and tabs.
func cleanText(content string) string {
	var cleaned strings.Builder
	cleaned.Grow(len(content))
	for _, r := range content {
		if r >= 32 && r != 127 || r == '\n' || r == '\t' {
			cleaned.WriteRune(r)
		}
	}
	return cleaned.String()
}
