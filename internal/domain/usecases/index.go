// Package usecases contains application business rules.
// Clean Architecture: Usecases orchestrate entities and depend on port interfaces.
// They contain NO framework code - just business logic over the ports.
package usecases

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/0xcro3dile/hybridrag-go/internal/domain/entities"
	"github.com/0xcro3dile/hybridrag-go/internal/domain/ports"
	"github.com/0xcro3dile/hybridrag-go/internal/domain/vecmath"
	"github.com/0xcro3dile/hybridrag-go/internal/logging"
)

// IndexManager keeps the vector store in sync with documents on disk.
// Extraction and embedding run without any store lock; only the commit is serialized.
type IndexManager struct {
	extractor ports.Extractor
	embedder  ports.Embedder
	store     ports.VectorStore
	sidecars  ports.SidecarStore
	genModel  string

	inflight atomic.Int32
}

// NewIndexManager creates an IndexManager with injected dependencies.
// sidecars may be nil when snippet curation is disabled.
func NewIndexManager(
	extractor ports.Extractor,
	embedder ports.Embedder,
	store ports.VectorStore,
	sidecars ports.SidecarStore,
	genModel string,
) *IndexManager {
	return &IndexManager{
		extractor: extractor,
		embedder:  embedder,
		store:     store,
		sidecars:  sidecars,
		genModel:  genModel,
	}
}

// IndexDocuments brings each path up to date.
// Unchanged documents are skipped, missing ones are reported, and each changed
// document is committed on its own: a failure on one leaves earlier ones committed.
func (m *IndexManager) IndexDocuments(ctx context.Context, paths []string) (entities.IndexReport, error) {
	m.inflight.Add(1)
	defer m.inflight.Add(-1)

	var report entities.IndexReport
	var errs []error
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		abs, err := filepath.Abs(p)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", p, err))
			continue
		}
		info, err := os.Stat(abs)
		if err != nil || info.IsDir() {
			logging.Warnf("Skipping %s: not a readable file", abs)
			report.Missing = append(report.Missing, abs)
			continue
		}

		mtime := info.ModTime().UnixNano()
		if e, ok := m.store.Snapshot().Registry[abs]; ok && e.MTime == mtime {
			report.Skipped = append(report.Skipped, abs)
			continue
		}

		n, err := m.indexOne(ctx, abs, mtime)
		if err != nil {
			if errors.Is(err, ports.ErrNotConfigured) {
				return report, err
			}
			logging.Errorf("Indexing %s failed: %v", abs, err)
			report.Failures = append(report.Failures, abs)
			errs = append(errs, fmt.Errorf("%s: %w", abs, err))
			continue
		}
		report.Indexed = append(report.Indexed, abs)
		report.Chunks += n
	}

	if len(report.Indexed) > 0 {
		logging.Infof("Indexed %d documents (%d chunks), skipped %d unchanged", len(report.Indexed), report.Chunks, len(report.Skipped))
	}
	return report, errors.Join(errs...)
}

func (m *IndexManager) indexOne(ctx context.Context, path string, mtime int64) (int, error) {
	passages, err := m.extractor.Extract(ctx, path)
	if err != nil {
		return 0, fmt.Errorf("extracting: %w", err)
	}
	chunks := newChunks(path, passages)

	var records []entities.Record
	if len(chunks) > 0 {
		texts := make([]string, len(chunks))
		for i, c := range chunks {
			texts[i] = c.Text
		}
		vecs, err := m.embedder.EmbedBatch(ctx, texts, ports.TaskDocument)
		if err != nil {
			return 0, fmt.Errorf("embedding: %w", err)
		}
		if len(vecs) != len(chunks) {
			return 0, fmt.Errorf("embedding returned %d vectors for %d chunks", len(vecs), len(chunks))
		}
		records = make([]entities.Record, len(chunks))
		for i, c := range chunks {
			records[i] = entities.Record{Vector: vecmath.Normalize(vecs[i]), Chunk: c}
		}
	}

	entry := entities.FileRegistryEntry{MTime: mtime, ChunkCount: len(records)}
	if err := m.store.Commit(ctx, path, entry, records); err != nil {
		return 0, fmt.Errorf("committing: %w", err)
	}
	logging.Debugf("Committed %d chunks for %s", len(records), path)
	return len(records), nil
}

// RemoveDocuments drops the documents' rows, registry entries and sidecars.
func (m *IndexManager) RemoveDocuments(ctx context.Context, paths []string) (int, error) {
	abs := make([]string, 0, len(paths))
	for _, p := range paths {
		a, err := filepath.Abs(p)
		if err != nil {
			return 0, fmt.Errorf("%s: %w", p, err)
		}
		abs = append(abs, a)
	}

	removed, err := m.store.Remove(ctx, abs)
	if err != nil {
		return 0, err
	}
	if m.sidecars != nil {
		for _, p := range abs {
			if err := m.sidecars.Delete(ctx, p); err != nil {
				logging.Warnf("Deleting sidecar of %s failed: %v", p, err)
			}
		}
	}
	if removed > 0 {
		logging.Infof("Removed %d chunks of %d documents", removed, len(abs))
	}
	return removed, nil
}

// IndexDirectory indexes every supported file under dir in path order
// and removes registered documents under dir that no longer exist.
func (m *IndexManager) IndexDirectory(ctx context.Context, dir string) (entities.IndexReport, error) {
	root, err := filepath.Abs(dir)
	if err != nil {
		return entities.IndexReport{}, err
	}
	exts := make(map[string]bool)
	for _, e := range m.extractor.SupportedExtensions() {
		exts[strings.ToLower(e)] = true
	}

	var paths []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if exts[strings.ToLower(filepath.Ext(path))] {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return entities.IndexReport{}, fmt.Errorf("scanning %s: %w", root, err)
	}
	slices.Sort(paths)

	var gone []string
	for p := range m.store.Snapshot().Registry {
		if !strings.HasPrefix(p, root+string(filepath.Separator)) {
			continue
		}
		if _, err := os.Stat(p); errors.Is(err, fs.ErrNotExist) {
			gone = append(gone, p)
		}
	}
	if len(gone) > 0 {
		if _, err := m.RemoveDocuments(ctx, gone); err != nil {
			return entities.IndexReport{}, err
		}
	}

	return m.IndexDocuments(ctx, paths)
}

// Status summarizes the store and indexing activity.
func (m *IndexManager) Status() entities.IndexStatus {
	snap := m.store.Snapshot()
	return entities.IndexStatus{
		Chunks:         snap.Len(),
		Metas:          snap.Len(),
		Dim:            snap.Dim,
		Documents:      len(snap.Registry),
		IsIndexing:     m.inflight.Load() > 0,
		LastUpdated:    snap.UpdatedAt,
		EmbeddingModel: m.embedder.Model(),
		GenModel:       m.genModel,
	}
}

// newChunks gives passages their document provenance and deterministic IDs.
func newChunks(path string, passages []entities.Passage) []entities.Chunk {
	name := entities.SourceName(path)
	chunks := make([]entities.Chunk, len(passages))
	for i, p := range passages {
		key := fmt.Sprintf("%s#%d:%d-%d", path, p.Page, p.CharStart, p.CharEnd)
		chunks[i] = entities.Chunk{
			ID:         uuid.NewSHA1(uuid.NameSpaceURL, []byte(key)).String(),
			SourcePath: path,
			SourceName: name,
			Page:       p.Page,
			CharStart:  p.CharStart,
			CharEnd:    p.CharEnd,
			Text:       p.Text,
		}
	}
	return chunks
}
