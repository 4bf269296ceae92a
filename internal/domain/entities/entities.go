// Package entities contains core business entities.
// These are the enterprise business rules - pure domain objects with no external dependencies.
package entities

import (
	"path/filepath"
	"time"
)

// Passage is one span of extracted document text, as produced by an extractor.
// Page is 1-based; CharStart/CharEnd are rune offsets within the page text.
type Passage struct {
	Page      int
	CharStart int
	CharEnd   int
	Text      string
}

// Chunk is an immutable piece of a document with page/offset provenance.
type Chunk struct {
	ID         string `json:"id"`
	SourcePath string `json:"source_path"`
	SourceName string `json:"source_name"`
	Page       int    `json:"page"`
	CharStart  int    `json:"char_start"`
	CharEnd    int    `json:"char_end"`
	Text       string `json:"text"`
}

// Record pairs a unit-normalized vector with the chunk it was computed from.
// Keeping both in one value makes "vectors and metadata have the same length" structural.
type Record struct {
	Vector []float32
	Chunk  Chunk
}

// FileRegistryEntry tracks the last successful indexing pass of one document.
type FileRegistryEntry struct {
	MTime      int64 `json:"mtime"` // UnixNano, compared bit-for-bit
	ChunkCount int   `json:"chunk_count"`
}

// Hit is one ranked retrieval result.
type Hit struct {
	Rank       int     `json:"rank"`
	Score      float64 `json:"score"`
	SourcePath string  `json:"source_path"`
	SourceName string  `json:"source_name"`
	Page       int     `json:"page"`
	CharStart  int     `json:"char_start"`
	CharEnd    int     `json:"char_end"`
	Text       string  `json:"text"`
	ChunkID    string  `json:"chunk_id"`
}

// Snippet is one curated passage stored in a sidecar.
type Snippet struct {
	Rank      int    `json:"rank"`
	Page      int    `json:"page"`
	CharStart int    `json:"char_start"`
	CharEnd   int    `json:"char_end"`
	ChunkID   string `json:"chunk_id"`
	Text      string `json:"text"`
}

// SnippetSidecar is the per-document curated snippet set.
type SnippetSidecar struct {
	SourcePath string    `json:"source_path"`
	SourceName string    `json:"source_name"`
	K          int       `json:"k"`
	Snippets   []Snippet `json:"snippets"`
	CreatedAt  time.Time `json:"created_at"`
}

// ScoredSnippet is a sidecar snippet re-scored against a query.
type ScoredSnippet struct {
	Snippet
	SourcePath string  `json:"source_path"`
	SourceName string  `json:"source_name"`
	Score      float64 `json:"score"`
}

// AnswerMode tells which path of the hybrid policy produced an answer.
type AnswerMode string

const (
	// ModeDirect answers from the top-k retrieved chunks.
	ModeDirect AnswerMode = "rag"
	// ModeSnippets answers from curated sidecar snippets.
	ModeSnippets AnswerMode = "snippets"
)

// Fallback reasons reported on an Answer.
const (
	FallbackNone       = ""
	FallbackNoSidecars = "no-sidecars"
	FallbackNoSnippets = "no-snippets"
	FallbackTemplate   = "template"
)

// Answer is the response of the hybrid answer policy.
type Answer struct {
	Mode           AnswerMode      `json:"mode"`
	Answer         string          `json:"answer"`
	Contexts       []Hit           `json:"contexts"`
	Snippets       []ScoredSnippet `json:"snippets,omitempty"`
	Threshold      float64         `json:"threshold"`
	TopScore       float64         `json:"top_score"`
	Fallback       string          `json:"fallback,omitempty"`
	Model          string          `json:"model,omitempty"`
	EmbeddingModel string          `json:"embedding_model,omitempty"`
}

// IndexStatus summarizes the vector store and indexing activity.
type IndexStatus struct {
	Chunks         int       `json:"chunks"`
	Metas          int       `json:"metas"`
	Mismatch       bool      `json:"mismatch"`
	Dim            int       `json:"dim"`
	Documents      int       `json:"documents"`
	IsIndexing     bool      `json:"is_indexing"`
	LastUpdated    time.Time `json:"last_updated,omitempty"`
	EmbeddingModel string    `json:"embedding_model,omitempty"`
	GenModel       string    `json:"gen_model,omitempty"`
}

// IndexReport describes what one IndexDocuments call did.
type IndexReport struct {
	Indexed  []string `json:"indexed"`
	Skipped  []string `json:"skipped"`
	Missing  []string `json:"missing"`
	Chunks   int      `json:"chunks"`
	Failures []string `json:"failures,omitempty"`
}

// SourceName returns the display name of a document path.
func SourceName(path string) string {
	return filepath.Base(path)
}

// NewHit builds a Hit for c, truncating its text to maxChars runes.
func NewHit(rank int, score float64, c Chunk, maxChars int) Hit {
	return Hit{
		Rank:       rank,
		Score:      score,
		SourcePath: c.SourcePath,
		SourceName: c.SourceName,
		Page:       c.Page,
		CharStart:  c.CharStart,
		CharEnd:    c.CharEnd,
		Text:       Truncate(c.Text, maxChars),
		ChunkID:    c.ID,
	}
}

// Truncate cuts s to at most n runes. n <= 0 leaves s unchanged.
func Truncate(s string, n int) string {
	if n <= 0 {
		return s
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
