package extractor

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/0xcro3dile/hybridrag-go/internal/domain/entities"
)

// pageBreak separates pages in plain text files.
const pageBreak = "\f"

// TextExtractor reads plain text documents (.txt, .md).
type TextExtractor struct {
	chunker Chunker
}

// NewTextExtractor creates a new text extractor.
func NewTextExtractor(chunker Chunker) *TextExtractor {
	return &TextExtractor{chunker: chunker}
}

// Extract reads path and chunks it page by page.
func (e *TextExtractor) Extract(ctx context.Context, path string) ([]entities.Passage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return e.chunker.Passages(strings.Split(string(content), pageBreak)), nil
}

// SupportedExtensions returns file extensions this extractor handles.
func (e *TextExtractor) SupportedExtensions() []string {
	return []string{".txt", ".md", ".markdown"}
}
