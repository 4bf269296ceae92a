package usecases

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/0xcro3dile/hybridrag-go/internal/domain/entities"
	"github.com/0xcro3dile/hybridrag-go/internal/domain/ports"
)

// mockEmbedder implements ports.Embedder for testing.
// Known texts map to fixed vectors; anything else embeds as {0, 1}.
type mockEmbedder struct {
	mu      sync.Mutex
	vectors map[string][]float32
	err     error
	calls   int
	texts   int
}

func (m *mockEmbedder) EmbedBatch(ctx context.Context, texts []string, hint ports.TaskHint) ([][]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.texts += len(texts)
	if m.err != nil {
		return nil, m.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if v, ok := m.vectors[t]; ok {
			out[i] = v
			continue
		}
		out[i] = []float32{0, 1}
	}
	return out, nil
}

func (m *mockEmbedder) Model() string { return "mock-embed" }

// mockGenerator implements ports.Generator, replaying responses in order.
type mockGenerator struct {
	mu        sync.Mutex
	responses []string
	err       error
	prompts   []string
	temps     []float64
}

func (m *mockGenerator) Generate(ctx context.Context, req ports.GenerateRequest) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prompts = append(m.prompts, req.Prompt)
	m.temps = append(m.temps, req.Temperature)
	if m.err != nil {
		return "", m.err
	}
	if len(m.responses) == 0 {
		return "", nil
	}
	r := m.responses[0]
	m.responses = m.responses[1:]
	return r, nil
}

func (m *mockGenerator) Model() string { return "mock-gen" }

// mockExtractor implements ports.Extractor from a fixed table.
type mockExtractor struct {
	mu       sync.Mutex
	passages map[string][]entities.Passage
	failFor  map[string]error
	calls    int
}

func (m *mockExtractor) Extract(ctx context.Context, path string) ([]entities.Passage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if err := m.failFor[path]; err != nil {
		return nil, err
	}
	return m.passages[path], nil
}

func (m *mockExtractor) SupportedExtensions() []string { return []string{".txt", ".pdf"} }

// memStore implements ports.VectorStore in memory.
type memStore struct {
	mu   sync.Mutex
	snap *ports.StoreSnapshot
}

func newMemStore(records ...entities.Record) *memStore {
	dim := 0
	if len(records) > 0 {
		dim = len(records[0].Vector)
	}
	return &memStore{snap: &ports.StoreSnapshot{
		Records:  records,
		Dim:      dim,
		Registry: map[string]entities.FileRegistryEntry{},
	}}
}

func (s *memStore) Snapshot() *ports.StoreSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}

func (s *memStore) Commit(ctx context.Context, path string, entry entities.FileRegistryEntry, records []entities.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var next []entities.Record
	for _, r := range s.snap.Records {
		if r.Chunk.SourcePath != path {
			next = append(next, r)
		}
	}
	next = append(next, records...)
	reg := map[string]entities.FileRegistryEntry{}
	for k, v := range s.snap.Registry {
		reg[k] = v
	}
	reg[path] = entry
	dim := s.snap.Dim
	if dim == 0 && len(records) > 0 {
		dim = len(records[0].Vector)
	}
	s.snap = &ports.StoreSnapshot{Records: next, Dim: dim, Registry: reg, UpdatedAt: time.Now()}
	return nil
}

func (s *memStore) Remove(ctx context.Context, paths []string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	drop := map[string]bool{}
	for _, p := range paths {
		drop[p] = true
	}
	var next []entities.Record
	for _, r := range s.snap.Records {
		if !drop[r.Chunk.SourcePath] {
			next = append(next, r)
		}
	}
	reg := map[string]entities.FileRegistryEntry{}
	for k, v := range s.snap.Registry {
		if !drop[k] {
			reg[k] = v
		}
	}
	removed := len(s.snap.Records) - len(next)
	s.snap = &ports.StoreSnapshot{Records: next, Dim: s.snap.Dim, Registry: reg, UpdatedAt: time.Now()}
	return removed, nil
}

// memSidecars implements ports.SidecarStore in memory.
type memSidecars struct {
	mu      sync.Mutex
	byPath  map[string]entities.SnippetSidecar
	deleted []string
}

func newMemSidecars() *memSidecars {
	return &memSidecars{byPath: map[string]entities.SnippetSidecar{}}
}

func (m *memSidecars) Save(ctx context.Context, sc entities.SnippetSidecar) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byPath[sc.SourcePath] = sc
	return nil
}

func (m *memSidecars) Load(ctx context.Context, path string) (entities.SnippetSidecar, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sc, ok := m.byPath[path]
	if !ok {
		return sc, ports.ErrSidecarNotFound
	}
	return sc, nil
}

func (m *memSidecars) Delete(ctx context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.byPath, path)
	m.deleted = append(m.deleted, path)
	return nil
}

var errBoom = errors.New("boom")
