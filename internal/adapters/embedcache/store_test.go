package embedcache

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestJSONLStore_SkipsMalformedLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "embed_cache.log")
	content := `{"hash":"h1","vector":[1,2]}
not json
{"hash":"","vector":[1]}
{"hash":"h2","vector":[3,4]}
{"hash":"h3","vec`
	os.WriteFile(path, []byte(content), 0644)

	store, err := OpenJSONL(path)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	if store.Len() != 2 {
		t.Errorf("expected 2 valid entries, got %d", store.Len())
	}
	v, ok, _ := store.Get(context.Background(), "h2")
	if !ok || v[1] != 4 {
		t.Errorf("unexpected h2: %v %v", v, ok)
	}
}

func TestJSONLStore_PutManyKeepsFirstValue(t *testing.T) {
	path := filepath.Join(t.TempDir(), "embed_cache.log")
	store, _ := OpenJSONL(path)
	ctx := context.Background()

	store.PutMany(ctx, map[string][]float32{"h": {1}})
	store.PutMany(ctx, map[string][]float32{"h": {2}})

	v, _, _ := store.Get(ctx, "h")
	if v[0] != 1 {
		t.Errorf("existing entry overwritten: %v", v)
	}
	data, _ := os.ReadFile(path)
	if n := strings.Count(string(data), "\n"); n != 1 {
		t.Errorf("expected a single log line, got %d", n)
	}
}

func TestSQLiteStore_PutAndGet(t *testing.T) {
	store, err := OpenSQLite(filepath.Join(t.TempDir(), "embed_cache.db"))
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	defer store.Close()
	ctx := context.Background()

	if _, ok, err := store.Get(ctx, "missing"); ok || err != nil {
		t.Errorf("expected clean miss, got %v %v", ok, err)
	}
	if err := store.PutMany(ctx, map[string][]float32{"a": {0.5, -1}, "b": {2}}); err != nil {
		t.Fatalf("put failed: %v", err)
	}
	store.PutMany(ctx, map[string][]float32{"a": {9, 9}})

	v, ok, err := store.Get(ctx, "a")
	if err != nil || !ok || v[0] != 0.5 || v[1] != -1 {
		t.Errorf("unexpected vector %v %v %v", v, ok, err)
	}
	if n, _ := store.Count(ctx); n != 2 {
		t.Errorf("expected 2 rows, got %d", n)
	}
}

func TestOpen_Backends(t *testing.T) {
	dir := t.TempDir()
	for _, backend := range []string{"", BackendJSONL, BackendSQLite} {
		c, err := Open(backend, dir)
		if err != nil {
			t.Errorf("backend %q: %v", backend, err)
			continue
		}
		c.Close()
	}
	if _, err := Open("redis", dir); err == nil {
		t.Error("unknown backend should fail")
	}
}
