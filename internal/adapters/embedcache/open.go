package embedcache

import (
	"fmt"
	"path/filepath"

	"github.com/0xcro3dile/hybridrag-go/internal/domain/ports"
)

// Backend names accepted by Open.
const (
	BackendJSONL  = "jsonl"
	BackendSQLite = "sqlite"
)

// Open returns the persisted cache for backend inside dir.
func Open(backend, dir string) (ports.VectorCache, error) {
	switch backend {
	case "", BackendJSONL:
		return OpenJSONL(filepath.Join(dir, "embed_cache.log"))
	case BackendSQLite:
		return OpenSQLite(filepath.Join(dir, "embed_cache.db"))
	default:
		return nil, fmt.Errorf("unknown embedding cache backend %q", backend)
	}
}
