package usecases

import (
	"container/heap"
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/0xcro3dile/hybridrag-go/internal/domain/entities"
	"github.com/0xcro3dile/hybridrag-go/internal/domain/ports"
	"github.com/0xcro3dile/hybridrag-go/internal/domain/vecmath"
)

// Retriever ranks committed chunks against a query.
type Retriever struct {
	embedder     ports.Embedder
	store        ports.VectorStore
	snippetChars int
}

// NewRetriever creates a Retriever. Hit text is cut to snippetChars runes (0 keeps it whole).
func NewRetriever(embedder ports.Embedder, store ports.VectorStore, snippetChars int) *Retriever {
	return &Retriever{embedder: embedder, store: store, snippetChars: snippetChars}
}

// Search returns the k best hits for query. An empty store or query yields no hits.
func (r *Retriever) Search(ctx context.Context, query string, k int) ([]entities.Hit, error) {
	hits, _, err := r.search(ctx, query, k)
	return hits, err
}

// search also returns the normalized query vector for later re-scoring.
func (r *Retriever) search(ctx context.Context, query string, k int) ([]entities.Hit, []float32, error) {
	query = strings.TrimSpace(query)
	snap := r.store.Snapshot()
	if query == "" || k <= 0 || snap.Len() == 0 {
		return nil, nil, nil
	}

	vecs, err := r.embedder.EmbedBatch(ctx, []string{query}, ports.TaskQuery)
	if err != nil {
		return nil, nil, fmt.Errorf("embedding query: %w", err)
	}
	if len(vecs) != 1 {
		return nil, nil, fmt.Errorf("embedding returned %d vectors for the query", len(vecs))
	}
	q := vecmath.Normalize(vecs[0])
	if snap.Dim > 0 && len(q) != snap.Dim {
		return nil, nil, fmt.Errorf("query has %d dimensions, store %d: %w", len(q), snap.Dim, ports.ErrDimensionMismatch)
	}

	top := TopK(snap.Records, q, k)
	hits := make([]entities.Hit, len(top))
	for i, s := range top {
		hits[i] = entities.NewHit(i+1, s.Score, snap.Records[s.Index].Chunk, r.snippetChars)
	}
	return hits, q, nil
}

// Scored is a row index with its similarity to a query.
type Scored struct {
	Index int
	Score float64
}

// better orders by descending score, then by ascending insertion index.
func better(a, b Scored) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	return a.Index < b.Index
}

// worstFirst is a heap whose root is the weakest of the kept candidates.
type worstFirst []Scored

func (h worstFirst) Len() int           { return len(h) }
func (h worstFirst) Less(i, j int) bool { return better(h[j], h[i]) }
func (h worstFirst) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *worstFirst) Push(x any)        { *h = append(*h, x.(Scored)) }
func (h *worstFirst) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// TopK selects the k records most similar to q and orders only those.
// q and the record vectors are expected to be unit length.
func TopK(records []entities.Record, q []float32, k int) []Scored {
	if k <= 0 || len(records) == 0 {
		return nil
	}
	k = min(k, len(records))

	h := make(worstFirst, 0, k)
	for i, rec := range records {
		s := Scored{Index: i, Score: vecmath.Dot(rec.Vector, q)}
		if len(h) < k {
			heap.Push(&h, s)
			continue
		}
		if better(s, h[0]) {
			h[0] = s
			heap.Fix(&h, 0)
		}
	}

	out := []Scored(h)
	sort.Slice(out, func(i, j int) bool { return better(out[i], out[j]) })
	return out
}
