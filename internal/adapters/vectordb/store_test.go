package vectordb

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/0xcro3dile/hybridrag-go/internal/domain/entities"
	"github.com/0xcro3dile/hybridrag-go/internal/domain/ports"
)

func records(path string, n int) []entities.Record {
	out := make([]entities.Record, n)
	for i := range out {
		out[i] = entities.Record{
			Vector: []float32{float32(i + 1), 0, 0},
			Chunk: entities.Chunk{
				ID:         fmt.Sprintf("%s-%d", filepath.Base(path), i),
				SourcePath: path,
				SourceName: filepath.Base(path),
				Page:       1,
				CharStart:  i * 10,
				CharEnd:    i*10 + 10,
				Text:       fmt.Sprintf("chunk %d of %s", i, path),
			},
		}
	}
	return out
}

func TestStore_CommitKeepsRowsAligned(t *testing.T) {
	store, err := Open(t.TempDir(), 3)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	ctx := context.Background()

	if err := store.Commit(ctx, "/docs/a.txt", entities.FileRegistryEntry{MTime: 1, ChunkCount: 2}, records("/docs/a.txt", 2)); err != nil {
		t.Fatalf("commit a failed: %v", err)
	}
	if err := store.Commit(ctx, "/docs/b.txt", entities.FileRegistryEntry{MTime: 2, ChunkCount: 3}, records("/docs/b.txt", 3)); err != nil {
		t.Fatalf("commit b failed: %v", err)
	}

	snap := store.Snapshot()
	if snap.Len() != 5 || snap.Dim != 3 {
		t.Fatalf("expected 5 rows of dim 3, got %d of %d", snap.Len(), snap.Dim)
	}
	if snap.Records[2].Chunk.SourcePath != "/docs/b.txt" || snap.Records[2].Chunk.CharStart != 0 {
		t.Errorf("rows not in insertion order: %+v", snap.Records[2].Chunk)
	}
	if e, ok := store.Entry("/docs/b.txt"); !ok || e.ChunkCount != 3 || e.MTime != 2 {
		t.Errorf("unexpected registry entry: %+v", e)
	}
}

func TestStore_CommitReplacesDocument(t *testing.T) {
	store, _ := Open(t.TempDir(), 0)
	ctx := context.Background()

	store.Commit(ctx, "/a", entities.FileRegistryEntry{MTime: 1, ChunkCount: 3}, records("/a", 3))
	store.Commit(ctx, "/b", entities.FileRegistryEntry{MTime: 1, ChunkCount: 1}, records("/b", 1))
	store.Commit(ctx, "/a", entities.FileRegistryEntry{MTime: 9, ChunkCount: 2}, records("/a", 2))

	snap := store.Snapshot()
	if snap.Len() != 3 {
		t.Fatalf("expected 3 rows after replace, got %d", snap.Len())
	}
	if snap.Records[0].Chunk.SourcePath != "/b" {
		t.Errorf("untouched document should keep its position: %+v", snap.Records[0].Chunk)
	}
	if e, _ := store.Entry("/a"); e.MTime != 9 {
		t.Errorf("registry not updated: %+v", e)
	}
}

func TestStore_RemoveIsExact(t *testing.T) {
	dir := t.TempDir()
	store, _ := Open(dir, 3)
	ctx := context.Background()

	store.Commit(ctx, "/a", entities.FileRegistryEntry{ChunkCount: 2}, records("/a", 2))
	store.Commit(ctx, "/b", entities.FileRegistryEntry{ChunkCount: 3}, records("/b", 3))
	store.Commit(ctx, "/c", entities.FileRegistryEntry{ChunkCount: 1}, records("/c", 1))
	before := store.Snapshot()

	removed, err := store.Remove(ctx, []string{"/b"})
	if err != nil {
		t.Fatalf("remove failed: %v", err)
	}
	if removed != 3 {
		t.Errorf("expected 3 rows removed, got %d", removed)
	}

	after := store.Snapshot()
	want := []entities.Record{before.Records[0], before.Records[1], before.Records[5]}
	if after.Len() != len(want) {
		t.Fatalf("expected %d rows, got %d", len(want), after.Len())
	}
	for i := range want {
		if after.Records[i].Chunk != want[i].Chunk || after.Records[i].Vector[0] != want[i].Vector[0] {
			t.Errorf("row %d changed: %+v", i, after.Records[i].Chunk)
		}
	}
	if _, ok := store.Entry("/b"); ok {
		t.Error("registry entry should be gone")
	}
	if before.Len() != 6 {
		t.Error("earlier snapshot must not change")
	}

	reopened, err := Open(dir, 3)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	if reopened.Snapshot().Len() != 3 {
		t.Errorf("removal not persisted: %d rows", reopened.Snapshot().Len())
	}
}

func TestStore_RemoveUnknownIsNoop(t *testing.T) {
	store, _ := Open(t.TempDir(), 3)
	removed, err := store.Remove(context.Background(), []string{"/missing"})
	if err != nil || removed != 0 {
		t.Errorf("expected no-op, got %d, %v", removed, err)
	}
}

func TestStore_PersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	store, _ := Open(dir, 3)
	store.Commit(context.Background(), "/a", entities.FileRegistryEntry{MTime: 42, ChunkCount: 2}, records("/a", 2))

	reopened, err := Open(dir, 3)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	snap := reopened.Snapshot()
	if snap.Len() != 2 || snap.Records[1].Vector[0] != 2 || snap.Records[1].Chunk.ID != "a-1" {
		t.Errorf("unexpected reloaded rows: %+v", snap.Records)
	}
	if e, ok := reopened.Entry("/a"); !ok || e.MTime != 42 {
		t.Errorf("registry not reloaded: %+v", e)
	}
}

func TestStore_LoadTruncatesDrift(t *testing.T) {
	dir := t.TempDir()
	store, _ := Open(dir, 3)
	store.Commit(context.Background(), "/a", entities.FileRegistryEntry{ChunkCount: 3}, records("/a", 3))

	// Simulate a crash between the log append and the matrix rewrite.
	extra, _ := encodeMeta([]entities.Chunk{{ID: "orphan", SourcePath: "/z"}})
	f, _ := os.OpenFile(filepath.Join(dir, MetaFile), os.O_APPEND|os.O_WRONLY, 0644)
	f.Write(extra)
	f.Close()

	reopened, err := Open(dir, 3)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	if n := reopened.Snapshot().Len(); n != 3 {
		t.Errorf("expected 3 rows after truncation, got %d", n)
	}
	metas, _ := readMetaLog(filepath.Join(dir, MetaFile))
	if len(metas) != 3 {
		t.Errorf("repaired log should hold 3 rows, got %d", len(metas))
	}
}

func TestStore_LoadIgnoresTornMetaLine(t *testing.T) {
	dir := t.TempDir()
	store, _ := Open(dir, 3)
	store.Commit(context.Background(), "/a", entities.FileRegistryEntry{ChunkCount: 2}, records("/a", 2))

	f, _ := os.OpenFile(filepath.Join(dir, MetaFile), os.O_APPEND|os.O_WRONLY, 0644)
	f.WriteString(`{"id":"torn","sour`)
	f.Close()

	reopened, err := Open(dir, 3)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	if n := reopened.Snapshot().Len(); n != 2 {
		t.Errorf("expected 2 rows, got %d", n)
	}
}

func TestStore_DimensionMismatch(t *testing.T) {
	dir := t.TempDir()
	store, _ := Open(dir, 3)
	ctx := context.Background()

	bad := []entities.Record{{Vector: []float32{1, 2}, Chunk: entities.Chunk{ID: "x", SourcePath: "/x"}}}
	if err := store.Commit(ctx, "/x", entities.FileRegistryEntry{}, bad); !errors.Is(err, ports.ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch, got %v", err)
	}
	if store.Snapshot().Len() != 0 {
		t.Error("failed commit must not publish rows")
	}

	store.Commit(ctx, "/a", entities.FileRegistryEntry{}, records("/a", 1))
	if _, err := Open(dir, 768); !errors.Is(err, ports.ErrDimensionMismatch) {
		t.Errorf("reopening with another dimension should fail, got %v", err)
	}
}

func TestStore_FailedPersistPublishesNothing(t *testing.T) {
	dir := t.TempDir()
	store, _ := Open(dir, 3)
	ctx := context.Background()
	store.Commit(ctx, "/a", entities.FileRegistryEntry{ChunkCount: 1}, records("/a", 1))

	// A directory in place of the log makes the append fail.
	os.Remove(filepath.Join(dir, MetaFile))
	os.Mkdir(filepath.Join(dir, MetaFile), 0755)

	if err := store.Commit(ctx, "/b", entities.FileRegistryEntry{ChunkCount: 2}, records("/b", 2)); err == nil {
		t.Fatal("expected commit to fail")
	}
	if store.Snapshot().Len() != 1 {
		t.Errorf("expected previous snapshot, got %d rows", store.Snapshot().Len())
	}
	if _, ok := store.Entry("/b"); ok {
		t.Error("registry must not record a failed commit")
	}
}

func TestStore_ReadersNeverSeePartialDocuments(t *testing.T) {
	dir := t.TempDir()
	store, err := Open(dir, 3)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	ctx := context.Background()
	const rowsPerDoc = 3
	docs := make([]string, 6)
	for i := range docs {
		docs[i] = fmt.Sprintf("/docs/%d.txt", i)
	}

	stop := make(chan struct{})
	var partial atomic.Int64
	var readers sync.WaitGroup
	for r := 0; r < 4; r++ {
		readers.Add(1)
		go func() {
			defer readers.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				snap := store.Snapshot()
				counts := map[string]int{}
				for _, rec := range snap.Records {
					counts[rec.Chunk.SourcePath]++
				}
				for path, n := range counts {
					if n != rowsPerDoc || snap.Registry[path].ChunkCount != rowsPerDoc {
						partial.Add(1)
					}
				}
				if len(counts) != len(snap.Registry) {
					partial.Add(1)
				}
			}
		}()
	}

	for i := 0; i < 50; i++ {
		path := docs[i%len(docs)]
		if err := store.Commit(ctx, path, entities.FileRegistryEntry{MTime: int64(i), ChunkCount: rowsPerDoc}, records(path, rowsPerDoc)); err != nil {
			t.Fatalf("commit %d failed: %v", i, err)
		}
		if i%2 == 1 {
			if _, err := store.Remove(ctx, []string{docs[(i+3)%len(docs)]}); err != nil {
				t.Fatalf("remove %d failed: %v", i, err)
			}
		}
	}
	close(stop)
	readers.Wait()

	if n := partial.Load(); n != 0 {
		t.Errorf("readers saw %d partial snapshots", n)
	}
	live := store.Snapshot().Len()
	reopened, err := Open(dir, 3)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	if got := reopened.Snapshot().Len(); got != live || live%rowsPerDoc != 0 {
		t.Errorf("live store has %d rows, reopened has %d", live, got)
	}
}

func TestEncodeVector_RoundTrip(t *testing.T) {
	in := []float32{1.5, -2.25, 0}
	out, err := DecodeVector(EncodeVector(in))
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	for i := range in {
		if in[i] != out[i] {
			t.Errorf("component %d: %v != %v", i, in[i], out[i])
		}
	}
	if _, err := DecodeVector([]byte{1, 2, 3}); err == nil {
		t.Error("odd blob length should fail")
	}
}
