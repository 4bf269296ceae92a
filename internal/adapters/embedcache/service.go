// Package embedcache wraps an embedder with a content-addressed, persisted vector cache.
package embedcache

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"sync/atomic"

	"github.com/0xcro3dile/hybridrag-go/internal/domain/ports"
	"github.com/0xcro3dile/hybridrag-go/internal/logging"
)

// HashText returns the cache key of a text.
func HashText(text string) string {
	sum := sha1.Sum([]byte(text))
	return hex.EncodeToString(sum[:])
}

// Stats counts cache lookups.
type Stats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
}

// Service embeds texts, reusing cached vectors for document texts.
// Query texts always go to the embedder.
type Service struct {
	embedder  ports.Embedder
	cache     ports.VectorCache
	batchSize int
	dim       int // 0 disables the cached-vector length check

	hits   atomic.Int64
	misses atomic.Int64
}

// NewService creates a caching embedding service.
func NewService(embedder ports.Embedder, cache ports.VectorCache, batchSize, dim int) *Service {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Service{embedder: embedder, cache: cache, batchSize: batchSize, dim: dim}
}

// Model returns the underlying embedding model.
func (s *Service) Model() string { return s.embedder.Model() }

// Stats returns hit and miss counts since start.
func (s *Service) Stats() Stats {
	return Stats{Hits: s.hits.Load(), Misses: s.misses.Load()}
}

// EmbedBatch implements ports.Embedder so the service can stand in for the raw embedder.
func (s *Service) EmbedBatch(ctx context.Context, texts []string, hint ports.TaskHint) ([][]float32, error) {
	return s.EmbedMany(ctx, texts, hint)
}

// EmbedMany returns one vector per text, in order.
// Missing document vectors are fetched in batches and persisted after each batch,
// so a failure keeps every batch that already returned.
func (s *Service) EmbedMany(ctx context.Context, texts []string, hint ports.TaskHint) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if hint == ports.TaskQuery || s.cache == nil {
		return s.embedAll(ctx, texts, hint)
	}

	out := make([][]float32, len(texts))
	keys := make([]string, len(texts))
	pending := make(map[string][]int) // hash -> positions waiting for it
	var order []string

	for i, t := range texts {
		keys[i] = HashText(t)
		if _, queued := pending[keys[i]]; queued {
			pending[keys[i]] = append(pending[keys[i]], i)
			continue
		}
		vec, ok, err := s.cache.Get(ctx, keys[i])
		if err != nil {
			logging.Warnf("Embedding cache lookup failed, treating as miss: %v", err)
		}
		if ok && (s.dim == 0 || len(vec) == s.dim) {
			out[i] = vec
			s.hits.Add(1)
			continue
		}
		s.misses.Add(1)
		pending[keys[i]] = []int{i}
		order = append(order, keys[i])
	}

	for start := 0; start < len(order); start += s.batchSize {
		batchKeys := order[start:min(len(order), start+s.batchSize)]
		batch := make([]string, len(batchKeys))
		for j, k := range batchKeys {
			batch[j] = texts[pending[k][0]]
		}

		vecs, err := s.embedder.EmbedBatch(ctx, batch, hint)
		if err != nil {
			return nil, fmt.Errorf("embedding batch %d-%d: %w", start, start+len(batch), err)
		}
		if len(vecs) != len(batch) {
			return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(vecs), len(batch))
		}

		confirmed := make(map[string][]float32, len(batchKeys))
		for j, k := range batchKeys {
			for _, pos := range pending[k] {
				out[pos] = vecs[j]
			}
			confirmed[k] = vecs[j]
		}
		if err := s.cache.PutMany(ctx, confirmed); err != nil {
			logging.Warnf("Persisting %d cached embeddings failed: %v", len(confirmed), err)
		}
	}

	logging.Debugf("Embedded %d texts: %d cached, %d fetched", len(texts), len(texts)-len(order), len(order))
	return out, nil
}

func (s *Service) embedAll(ctx context.Context, texts []string, hint ports.TaskHint) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += s.batchSize {
		batch := texts[start:min(len(texts), start+s.batchSize)]
		vecs, err := s.embedder.EmbedBatch(ctx, batch, hint)
		if err != nil {
			return nil, err
		}
		if len(vecs) != len(batch) {
			return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(vecs), len(batch))
		}
		out = append(out, vecs...)
	}
	return out, nil
}

// Close releases the persisted cache.
func (s *Service) Close() error {
	if s.cache == nil {
		return nil
	}
	return s.cache.Close()
}
