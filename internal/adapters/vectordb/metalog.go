package vectordb

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/0xcro3dile/hybridrag-go/internal/domain/entities"
	"github.com/0xcro3dile/hybridrag-go/internal/fsutil"
	"github.com/0xcro3dile/hybridrag-go/internal/logging"
)

// maxMetaLine bounds one JSONL record; chunk text is capped well below this.
const maxMetaLine = 4 << 20

// readMetaLog reads chunk metadata in row order.
// It stops at the first malformed line, which is treated as a torn tail.
func readMetaLog(path string) ([]entities.Chunk, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	var out []entities.Chunk
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), maxMetaLine)
	line := 0
	for sc.Scan() {
		line++
		raw := bytes.TrimSpace(sc.Bytes())
		if len(raw) == 0 {
			continue
		}
		var c entities.Chunk
		if err := json.Unmarshal(raw, &c); err != nil {
			logging.Warnf("%s line %d is malformed, ignoring it and the rest: %v", path, line, err)
			break
		}
		out = append(out, c)
	}
	if err := sc.Err(); err != nil {
		logging.Warnf("%s: read stopped after %d records: %v", path, len(out), err)
	}
	return out, nil
}

func encodeMeta(chunks []entities.Chunk) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	for _, c := range chunks {
		if err := enc.Encode(c); err != nil {
			return nil, fmt.Errorf("encoding chunk %s: %w", c.ID, err)
		}
	}
	return buf.Bytes(), nil
}

// appendMetaLog appends chunks to the log and syncs it.
func appendMetaLog(path string, chunks []entities.Chunk) error {
	data, err := encodeMeta(chunks)
	if err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("appending to %s: %w", path, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("syncing %s: %w", path, err)
	}
	return f.Close()
}

// rewriteMetaLog replaces the log with exactly chunks.
func rewriteMetaLog(path string, chunks []entities.Chunk) error {
	data, err := encodeMeta(chunks)
	if err != nil {
		return err
	}
	return fsutil.WriteFileAtomic(path, data, 0644)
}
