package embedcache

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/0xcro3dile/hybridrag-go/internal/logging"
)

// jsonlEntry is one line of the cache log.
type jsonlEntry struct {
	Hash   string    `json:"hash"`
	Vector []float32 `json:"vector"`
}

// JSONLStore is an append-only cache log held in memory.
type JSONLStore struct {
	mu      sync.RWMutex
	path    string
	entries map[string][]float32
}

// OpenJSONL loads the cache log at path. Malformed lines are skipped.
func OpenJSONL(path string) (*JSONLStore, error) {
	s := &JSONLStore{path: path, entries: make(map[string][]float32)}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}

	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 16<<20)
	skipped := 0
	for sc.Scan() {
		raw := bytes.TrimSpace(sc.Bytes())
		if len(raw) == 0 {
			continue
		}
		var e jsonlEntry
		if err := json.Unmarshal(raw, &e); err != nil || e.Hash == "" || len(e.Vector) == 0 {
			skipped++
			continue
		}
		if _, ok := s.entries[e.Hash]; !ok {
			s.entries[e.Hash] = e.Vector
		}
	}
	if err := sc.Err(); err != nil {
		logging.Warnf("%s: read stopped early: %v", path, err)
	}
	if skipped > 0 {
		logging.Warnf("%s: skipped %d malformed lines", path, skipped)
	}
	logging.Infof("Embedding cache loaded: %d vectors", len(s.entries))
	return s, nil
}

// Get returns the cached vector for hash.
func (s *JSONLStore) Get(ctx context.Context, hash string) ([]float32, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.entries[hash]
	return v, ok, nil
}

// PutMany appends new entries and syncs the log.
func (s *JSONLStore) PutMany(ctx context.Context, entries map[string][]float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	added := make(map[string][]float32)
	for h, v := range entries {
		if _, ok := s.entries[h]; ok {
			continue
		}
		if err := enc.Encode(jsonlEntry{Hash: h, Vector: v}); err != nil {
			return fmt.Errorf("encoding cache entry: %w", err)
		}
		added[h] = v
	}
	if len(added) == 0 {
		return nil
	}

	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("opening %s: %w", s.path, err)
	}
	if _, err := f.Write(buf.Bytes()); err != nil {
		f.Close()
		return fmt.Errorf("appending to %s: %w", s.path, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("syncing %s: %w", s.path, err)
	}
	if err := f.Close(); err != nil {
		return err
	}

	for h, v := range added {
		s.entries[h] = v
	}
	return nil
}

// Len returns the number of cached vectors.
func (s *JSONLStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Close is a no-op; every write is already synced.
func (s *JSONLStore) Close() error { return nil }
