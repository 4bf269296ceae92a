// Package sidecar persists curated snippet sets, one JSON file per document.
// Clean Architecture: Adapter implementing ports.SidecarStore.
package sidecar

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/0xcro3dile/hybridrag-go/internal/domain/entities"
	"github.com/0xcro3dile/hybridrag-go/internal/domain/ports"
	"github.com/0xcro3dile/hybridrag-go/internal/fsutil"
)

const suffix = ".snippets.json"

// FileStore keeps sidecars in a directory.
type FileStore struct {
	dir string
}

// NewFileStore creates the sidecar directory if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating sidecar directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// Path returns the sidecar file of a document.
// The hash prefix keeps same-named documents from different folders apart.
func (s *FileStore) Path(sourcePath string) string {
	sum := sha1.Sum([]byte(sourcePath))
	base := strings.TrimSuffix(filepath.Base(sourcePath), filepath.Ext(sourcePath))
	return filepath.Join(s.dir, hex.EncodeToString(sum[:])[:16]+"_"+base+suffix)
}

// Save overwrites the document's sidecar atomically.
func (s *FileStore) Save(ctx context.Context, sc entities.SnippetSidecar) error {
	data, err := json.MarshalIndent(sc, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding sidecar: %w", err)
	}
	return fsutil.WriteFileAtomic(s.Path(sc.SourcePath), data, 0644)
}

// Load reads the document's sidecar.
func (s *FileStore) Load(ctx context.Context, sourcePath string) (entities.SnippetSidecar, error) {
	var sc entities.SnippetSidecar
	data, err := os.ReadFile(s.Path(sourcePath))
	if errors.Is(err, os.ErrNotExist) {
		return sc, fmt.Errorf("%s: %w", sourcePath, ports.ErrSidecarNotFound)
	}
	if err != nil {
		return sc, fmt.Errorf("reading sidecar: %w", err)
	}
	if err := json.Unmarshal(data, &sc); err != nil {
		return sc, fmt.Errorf("decoding sidecar for %s: %w", sourcePath, err)
	}
	return sc, nil
}

// Delete removes the document's sidecar. A missing sidecar is not an error.
func (s *FileStore) Delete(ctx context.Context, sourcePath string) error {
	err := os.Remove(s.Path(sourcePath))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("deleting sidecar: %w", err)
	}
	return nil
}
