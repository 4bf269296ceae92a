package vectordb

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"os"

	"github.com/0xcro3dile/hybridrag-go/internal/fsutil"
	"github.com/0xcro3dile/hybridrag-go/internal/logging"
)

// matrixMagic identifies a vectors.bin snapshot.
var matrixMagic = [4]byte{'H', 'R', 'V', '1'}

const matrixHeaderSize = 12 // magic + rows + dim

// writeMatrix rewrites the whole vector snapshot atomically.
func writeMatrix(path string, rows [][]float32, dim int) error {
	var buf bytes.Buffer
	buf.Grow(matrixHeaderSize + len(rows)*dim*4)
	buf.Write(matrixMagic[:])
	binary.Write(&buf, binary.LittleEndian, uint32(len(rows)))
	binary.Write(&buf, binary.LittleEndian, uint32(dim))
	for i, row := range rows {
		if len(row) != dim {
			return fmt.Errorf("row %d has %d dimensions, want %d", i, len(row), dim)
		}
		buf.Write(EncodeVector(row))
	}
	return fsutil.WriteFileAtomic(path, buf.Bytes(), 0644)
}

// readMatrix loads the vector snapshot. A missing file is an empty matrix.
// A short file keeps only its complete rows.
func readMatrix(path string) ([][]float32, int, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, fmt.Errorf("reading %s: %w", path, err)
	}
	if len(data) < matrixHeaderSize || !bytes.Equal(data[:4], matrixMagic[:]) {
		return nil, 0, fmt.Errorf("%s: not a vector snapshot", path)
	}

	rows := int(binary.LittleEndian.Uint32(data[4:8]))
	dim := int(binary.LittleEndian.Uint32(data[8:12]))
	body := data[matrixHeaderSize:]
	if dim == 0 {
		return nil, 0, nil
	}

	rowBytes := dim * 4
	if have := len(body) / rowBytes; have < rows {
		logging.Warnf("%s declares %d rows but holds %d; keeping complete rows", path, rows, have)
		rows = have
	}

	out := make([][]float32, rows)
	for i := range out {
		vec, err := DecodeVector(body[i*rowBytes : (i+1)*rowBytes])
		if err != nil {
			return nil, 0, err
		}
		out[i] = vec
	}
	return out, dim, nil
}
