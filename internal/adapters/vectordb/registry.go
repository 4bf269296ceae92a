package vectordb

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/0xcro3dile/hybridrag-go/internal/domain/entities"
	"github.com/0xcro3dile/hybridrag-go/internal/fsutil"
)

// Registry maps absolute document paths to their last indexing pass.
type Registry map[string]entities.FileRegistryEntry

func readRegistry(path string) (Registry, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return Registry{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	reg := Registry{}
	if len(data) == 0 {
		return reg, nil
	}
	if err := json.Unmarshal(data, &reg); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	return reg, nil
}

func writeRegistry(path string, reg Registry) error {
	data, err := json.MarshalIndent(reg, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding registry: %w", err)
	}
	return fsutil.WriteFileAtomic(path, data, 0644)
}

func (r Registry) clone() Registry {
	out := make(Registry, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}
