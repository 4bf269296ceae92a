package usecases

import (
	"context"
	"math/rand"
	"sort"
	"testing"

	"github.com/0xcro3dile/hybridrag-go/internal/domain/entities"
	"github.com/0xcro3dile/hybridrag-go/internal/domain/vecmath"
)

func rec(path string, i int, v ...float32) entities.Record {
	return entities.Record{
		Vector: v,
		Chunk: entities.Chunk{
			ID:         path + "#" + string(rune('a'+i)),
			SourcePath: path,
			SourceName: entities.SourceName(path),
			Page:       1,
			CharStart:  i * 100,
			CharEnd:    i*100 + 100,
			Text:       "text of chunk " + string(rune('a'+i)),
		},
	}
}

func TestRetriever_EmptyStoreAndEmptyQuery(t *testing.T) {
	emb := &mockEmbedder{}
	r := NewRetriever(emb, newMemStore(), 0)

	hits, err := r.Search(context.Background(), "x", 5)
	if err != nil || len(hits) != 0 {
		t.Errorf("expected no hits, got %v, %v", hits, err)
	}

	r = NewRetriever(emb, newMemStore(rec("/a", 0, 1, 0)), 0)
	hits, err = r.Search(context.Background(), "   ", 5)
	if err != nil || len(hits) != 0 {
		t.Errorf("expected no hits for blank query, got %v, %v", hits, err)
	}
	if emb.calls != 0 {
		t.Errorf("no embedding call expected, got %d", emb.calls)
	}
}

func TestRetriever_RanksByDescendingSimilarity(t *testing.T) {
	store := newMemStore(
		rec("/a", 0, 0.2, 0.9798),
		rec("/a", 1, 0.9, 0.4359),
		rec("/b", 2, 0.6, 0.8),
		rec("/b", 3, 1, 0),
	)
	emb := &mockEmbedder{vectors: map[string][]float32{"query": {2, 0}}}
	r := NewRetriever(emb, store, 8)

	hits, err := r.Search(context.Background(), "query", 3)
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(hits) != 3 {
		t.Fatalf("expected 3 hits, got %d", len(hits))
	}
	wantIDs := []string{"/b#d", "/a#b", "/b#c"}
	for i, h := range hits {
		if h.ChunkID != wantIDs[i] || h.Rank != i+1 {
			t.Errorf("hit %d: got %s rank %d, want %s", i, h.ChunkID, h.Rank, wantIDs[i])
		}
	}
	if hits[0].Score < 0.999 || hits[0].SourceName != "b" || hits[0].CharStart != 300 {
		t.Errorf("unexpected top hit: %+v", hits[0])
	}
	if len([]rune(hits[0].Text)) != 8 {
		t.Errorf("hit text should be truncated to 8 runes: %q", hits[0].Text)
	}
}

func TestRetriever_TiesKeepInsertionOrder(t *testing.T) {
	store := newMemStore(
		rec("/a", 0, 0, 1),
		rec("/a", 1, 1, 0),
		rec("/a", 2, 1, 0),
		rec("/a", 3, 1, 0),
	)
	emb := &mockEmbedder{vectors: map[string][]float32{"q": {1, 0}}}

	hits, _ := NewRetriever(emb, store, 0).Search(context.Background(), "q", 2)
	if len(hits) != 2 || hits[0].ChunkID != "/a#b" || hits[1].ChunkID != "/a#c" {
		t.Errorf("ties must preserve insertion order, got %+v", hits)
	}
}

func TestRetriever_KLargerThanStore(t *testing.T) {
	store := newMemStore(rec("/a", 0, 1, 0), rec("/a", 1, 0, 1))
	hits, err := NewRetriever(&mockEmbedder{}, store, 0).Search(context.Background(), "q", 10)
	if err != nil || len(hits) != 2 {
		t.Errorf("expected all rows, got %d, %v", len(hits), err)
	}
}

func TestTopK_MatchesFullSort(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	records := make([]entities.Record, 200)
	for i := range records {
		// Few distinct values so ties are common.
		records[i] = entities.Record{Vector: []float32{float32(rng.Intn(5)), float32(rng.Intn(3))}}
	}
	q := []float32{0.6, 0.8}

	all := make([]Scored, len(records))
	for i, r := range records {
		all[i] = Scored{Index: i, Score: vecmath.Dot(r.Vector, q)}
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].Score > all[j].Score })

	for _, k := range []int{1, 5, 17, 200} {
		got := TopK(records, q, k)
		if len(got) != k {
			t.Fatalf("k=%d: got %d results", k, len(got))
		}
		for i := range got {
			if got[i].Index != all[i].Index {
				t.Errorf("k=%d position %d: got row %d, want %d", k, i, got[i].Index, all[i].Index)
				break
			}
		}
	}
}
