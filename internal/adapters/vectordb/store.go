// Package vectordb provides the persisted vector store.
// Clean Architecture: Adapter implementing ports.VectorStore.
//
// Rows live in one owned slice of entities.Record published through an atomic
// pointer. Readers take a snapshot without locking; mutations are serialized
// and publish a fresh slice after the on-disk artifacts are written.
package vectordb

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/0xcro3dile/hybridrag-go/internal/domain/entities"
	"github.com/0xcro3dile/hybridrag-go/internal/domain/ports"
	"github.com/0xcro3dile/hybridrag-go/internal/logging"
)

// Artifact file names inside the store directory.
const (
	VectorsFile  = "vectors.bin"
	MetaFile     = "meta.log"
	RegistryFile = "files_registry.json"
)

var _ ports.VectorStore = (*Store)(nil)

// Store is a file-backed vector store.
type Store struct {
	dir  string
	dim  int // expected dimension, 0 accepts the first committed size
	mu   sync.Mutex
	snap atomic.Pointer[ports.StoreSnapshot]
}

// Open loads the store from dir, creating it if needed.
// Rows present in only one of vectors.bin and meta.log are dropped.
func Open(dir string, dim int) (*Store, error) {
	if dir == "" {
		dir = "./data"
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	s := &Store{dir: dir, dim: dim}

	vectors, fileDim, err := readMatrix(s.path(VectorsFile))
	if err != nil {
		return nil, err
	}
	metas, err := readMetaLog(s.path(MetaFile))
	if err != nil {
		return nil, err
	}
	reg, err := readRegistry(s.path(RegistryFile))
	if err != nil {
		return nil, err
	}

	if len(vectors) > 0 && dim > 0 && fileDim != dim {
		return nil, fmt.Errorf("%s holds %d-dimensional vectors, configured %d (reindex required): %w",
			s.path(VectorsFile), fileDim, dim, ports.ErrDimensionMismatch)
	}
	if dim == 0 && len(vectors) > 0 {
		s.dim = fileDim
	}

	n := min(len(vectors), len(metas))
	if len(vectors) != len(metas) {
		logging.Warnf("Vector store drift: %d vectors vs %d metadata rows, truncating to %d", len(vectors), len(metas), n)
	}
	records := make([]entities.Record, n)
	for i := 0; i < n; i++ {
		records[i] = entities.Record{Vector: vectors[i], Chunk: metas[i]}
	}
	if len(vectors) != len(metas) {
		if err := s.rewrite(records); err != nil {
			logging.Warnf("Rewriting repaired vector store failed: %v", err)
		}
	}

	var updated time.Time
	if info, err := os.Stat(s.path(VectorsFile)); err == nil {
		updated = info.ModTime()
	}
	s.snap.Store(&ports.StoreSnapshot{Records: records, Dim: s.dim, Registry: reg, UpdatedAt: updated})
	logging.Infof("Vector store loaded from %s: %d rows, %d documents", dir, n, len(reg))
	return s, nil
}

// Dir returns the directory holding the store artifacts.
func (s *Store) Dir() string { return s.dir }

// Snapshot returns the current committed view without blocking.
func (s *Store) Snapshot() *ports.StoreSnapshot { return s.snap.Load() }

// Entry returns the registry entry of a document.
func (s *Store) Entry(path string) (entities.FileRegistryEntry, bool) {
	e, ok := s.snap.Load().Registry[path]
	return e, ok
}

// Commit replaces every row of path with records and records entry in the registry.
// Either all of records become visible or none do.
func (s *Store) Commit(ctx context.Context, path string, entry entities.FileRegistryEntry, records []entities.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.snap.Load()
	dim := cur.Dim
	for i, r := range records {
		if dim == 0 {
			dim = len(r.Vector)
		}
		if len(r.Vector) != dim || dim == 0 {
			return fmt.Errorf("record %d of %s has %d dimensions, want %d: %w", i, path, len(r.Vector), dim, ports.ErrDimensionMismatch)
		}
	}

	kept := make([]entities.Record, 0, len(cur.Records)+len(records))
	for _, r := range cur.Records {
		if r.Chunk.SourcePath != path {
			kept = append(kept, r)
		}
	}
	replaced := len(kept) != len(cur.Records)
	next := append(kept, records...)

	if err := s.persist(cur.Records, next, records, replaced, dim); err != nil {
		return err
	}

	reg := Registry(cur.Registry).clone()
	reg[path] = entry
	if err := writeRegistry(s.path(RegistryFile), reg); err != nil {
		// The rows are committed; a stale registry only costs a re-extraction.
		logging.Warnf("Saving file registry failed: %v", err)
	}

	s.dim = dim
	s.snap.Store(&ports.StoreSnapshot{Records: next, Dim: dim, Registry: reg, UpdatedAt: time.Now()})
	return nil
}

// Remove deletes every row and registry entry of the given documents.
// It returns the number of rows removed.
func (s *Store) Remove(ctx context.Context, paths []string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	drop := make(map[string]bool, len(paths))
	for _, p := range paths {
		drop[p] = true
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.snap.Load()
	next := make([]entities.Record, 0, len(cur.Records))
	for _, r := range cur.Records {
		if !drop[r.Chunk.SourcePath] {
			next = append(next, r)
		}
	}
	removed := len(cur.Records) - len(next)

	reg := Registry(cur.Registry).clone()
	regChanged := false
	for p := range drop {
		if _, ok := reg[p]; ok {
			delete(reg, p)
			regChanged = true
		}
	}
	if removed == 0 && !regChanged {
		return 0, nil
	}

	if removed > 0 {
		if err := s.persist(cur.Records, next, nil, true, cur.Dim); err != nil {
			return 0, err
		}
	}
	if err := writeRegistry(s.path(RegistryFile), reg); err != nil {
		logging.Warnf("Saving file registry failed: %v", err)
	}

	s.snap.Store(&ports.StoreSnapshot{Records: next, Dim: cur.Dim, Registry: reg, UpdatedAt: time.Now()})
	return removed, nil
}

// persist writes next to disk. Appends go to the metadata log when nothing was
// replaced; otherwise the log is rewritten. On failure the files are restored
// from prev on a best-effort basis.
func (s *Store) persist(prev, next, added []entities.Record, replaced bool, dim int) error {
	var err error
	if replaced {
		err = rewriteMetaLog(s.path(MetaFile), chunksOf(next))
	} else {
		err = appendMetaLog(s.path(MetaFile), chunksOf(added))
	}
	if err == nil {
		err = writeMatrix(s.path(VectorsFile), vectorsOf(next), dim)
	}
	if err != nil {
		logging.Errorf("Persisting vector store failed, restoring previous snapshot: %v", err)
		if rerr := s.rewrite(prev); rerr != nil {
			logging.Errorf("Restoring vector store failed: %v", rerr)
		}
		return fmt.Errorf("persisting vector store: %w", err)
	}
	return nil
}

// rewrite replaces both artifacts with records.
func (s *Store) rewrite(records []entities.Record) error {
	if err := rewriteMetaLog(s.path(MetaFile), chunksOf(records)); err != nil {
		return err
	}
	return writeMatrix(s.path(VectorsFile), vectorsOf(records), s.dim)
}

func (s *Store) path(name string) string {
	return filepath.Join(s.dir, name)
}

func chunksOf(records []entities.Record) []entities.Chunk {
	out := make([]entities.Chunk, len(records))
	for i, r := range records {
		out[i] = r.Chunk
	}
	return out
}

func vectorsOf(records []entities.Record) [][]float32 {
	out := make([][]float32, len(records))
	for i, r := range records {
		out[i] = r.Vector
	}
	return out
}
