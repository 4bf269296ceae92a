package extractor

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/0xcro3dile/hybridrag-go/internal/domain/entities"
	"github.com/0xcro3dile/hybridrag-go/internal/domain/ports"
)

// ErrUnsupportedFormat is returned for file extensions no extractor handles.
var ErrUnsupportedFormat = errors.New("unsupported document format")

// Multi dispatches to an extractor by file extension.
type Multi struct {
	byExt map[string]ports.Extractor
}

// NewMulti combines extractors. Later extractors win on shared extensions.
func NewMulti(extractors ...ports.Extractor) *Multi {
	m := &Multi{byExt: make(map[string]ports.Extractor)}
	for _, e := range extractors {
		for _, ext := range e.SupportedExtensions() {
			m.byExt[strings.ToLower(ext)] = e
		}
	}
	return m
}

// Extract dispatches to the extractor registered for the path's extension.
func (m *Multi) Extract(ctx context.Context, path string) ([]entities.Passage, error) {
	ext := strings.ToLower(filepath.Ext(path))
	e, ok := m.byExt[ext]
	if !ok {
		return nil, fmt.Errorf("%s: %w", path, ErrUnsupportedFormat)
	}
	return e.Extract(ctx, path)
}

// Supports reports whether path has a handled extension.
func (m *Multi) Supports(path string) bool {
	_, ok := m.byExt[strings.ToLower(filepath.Ext(path))]
	return ok
}

// SupportedExtensions returns all supported extensions, sorted.
func (m *Multi) SupportedExtensions() []string {
	exts := make([]string, 0, len(m.byExt))
	for ext := range m.byExt {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}
