// Package ports defines interfaces for external dependencies.
// Clean Architecture: These are the boundaries - usecases depend on these abstractions,
// not concrete implementations. Adapters implement these interfaces.
package ports

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/0xcro3dile/hybridrag-go/internal/domain/entities"
)

var (
	// ErrNotConfigured reports missing model or credential configuration. Never retried.
	ErrNotConfigured = errors.New("external model not configured")
	// ErrSidecarNotFound is returned when a document has no snippet sidecar.
	ErrSidecarNotFound = errors.New("snippet sidecar not found")
	// ErrDimensionMismatch is returned when a vector does not match the store dimension.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)

// RetryableError marks a transient failure of an external call (rate limit, quota, 5xx).
type RetryableError struct {
	StatusCode int
	RetryAfter time.Duration
	Err        error
}

func (e *RetryableError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("retryable (status %d): %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("retryable: %v", e.Err)
}

func (e *RetryableError) Unwrap() error { return e.Err }

// TaskHint tells the embedding model how the text will be used.
type TaskHint string

const (
	TaskDocument TaskHint = "document"
	TaskQuery    TaskHint = "query"
)

// Embedder generates vector embeddings for text.
type Embedder interface {
	// EmbedBatch returns one vector per text, in order.
	EmbedBatch(ctx context.Context, texts []string, hint TaskHint) ([][]float32, error)

	// Model returns the embedding model identifier.
	Model() string
}

// GenerateRequest is a single text generation call.
type GenerateRequest struct {
	Prompt      string
	Temperature float64
	MaxTokens   int
}

// Generator produces text from a prompt. It may return empty text.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (string, error)

	// Model returns the generation model identifier.
	Model() string
}

// Extractor turns a document into ordered, overlapping passages.
// Output is deterministic given the same file content.
type Extractor interface {
	Extract(ctx context.Context, path string) ([]entities.Passage, error)

	// SupportedExtensions returns file extensions this extractor handles.
	SupportedExtensions() []string
}

// VectorCache is the persisted side of the embedding cache, keyed by text hash.
type VectorCache interface {
	Get(ctx context.Context, hash string) ([]float32, bool, error)

	// PutMany stores confirmed vectors. Existing keys are left untouched.
	PutMany(ctx context.Context, entries map[string][]float32) error

	Close() error
}

// StoreSnapshot is an immutable committed view of the vector store.
// Records pairs each vector with its chunk, so both always have the same length.
type StoreSnapshot struct {
	Records   []entities.Record
	Dim       int
	Registry  map[string]entities.FileRegistryEntry
	UpdatedAt time.Time
}

// Len returns the number of rows.
func (s *StoreSnapshot) Len() int { return len(s.Records) }

// VectorStore holds committed chunk vectors. Reads never block on writers.
type VectorStore interface {
	// Snapshot returns the current committed view. Callers must not modify it.
	Snapshot() *StoreSnapshot

	// Commit replaces every row of path with records, all or nothing,
	// and records entry in the file registry.
	Commit(ctx context.Context, path string, entry entities.FileRegistryEntry, records []entities.Record) error

	// Remove drops every row and registry entry of paths and returns the rows removed.
	Remove(ctx context.Context, paths []string) (int, error)
}

// SidecarStore persists one snippet sidecar per document.
type SidecarStore interface {
	Save(ctx context.Context, sidecar entities.SnippetSidecar) error

	// Load returns ErrSidecarNotFound when the document has no sidecar.
	Load(ctx context.Context, sourcePath string) (entities.SnippetSidecar, error)

	Delete(ctx context.Context, sourcePath string) error
}

// FileWatcher monitors a directory for changes.
type FileWatcher interface {
	// Watch starts monitoring the directory and emits events.
	Watch(ctx context.Context, dir string) (<-chan FileEvent, error)

	// Stop stops the watcher.
	Stop() error
}

// FileEvent represents a file system change.
type FileEvent struct {
	Path      string
	Operation FileOperation
}

// FileOperation is the type of file change.
type FileOperation int

const (
	FileCreated FileOperation = iota
	FileModified
	FileDeleted
)

func (op FileOperation) String() string {
	switch op {
	case FileCreated:
		return "created"
	case FileModified:
		return "modified"
	case FileDeleted:
		return "deleted"
	default:
		return "unknown"
	}
}
