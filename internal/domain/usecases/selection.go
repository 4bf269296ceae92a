package usecases

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// selectionSchema accepts {"indices": [...]} or a bare array of indices.
var selectionSchema = gojsonschema.NewStringLoader(`{
	"oneOf": [
		{
			"type": "object",
			"required": ["indices"],
			"properties": {
				"indices": {"type": "array", "items": {"type": "integer", "minimum": 0}}
			}
		},
		{"type": "array", "items": {"type": "integer", "minimum": 0}}
	]
}`)

var errNoSelection = errors.New("no selection payload found")

// ParseSelection extracts candidate indices from untrusted model output.
// It prefers the first {"indices": [...]} object that matches the selection schema and
// only falls back to a bare array outside any JSON object when none is found, so
// bracketed citations in prose never shadow the real payload. Surrounding prose and
// code fences are tolerated. Indices outside [0, n) and duplicates are dropped; at
// most k are returned.
func ParseSelection(output string, n, k int) ([]int, error) {
	var objects [][2]int
	for i := 0; i < len(output); i++ {
		if output[i] != '{' {
			continue
		}
		raw, ok := firstValue(output[i:])
		if !ok {
			continue
		}
		objects = append(objects, [2]int{i, i + len(raw)})
		if indices, err := decodeSelection(raw); err == nil {
			return filterIndices(indices, n, k), nil
		}
	}
	for i := 0; i < len(output); i++ {
		if output[i] != '[' || insideAny(objects, i) {
			continue
		}
		raw, ok := firstValue(output[i:])
		if !ok {
			continue
		}
		if indices, err := decodeSelection(raw); err == nil {
			return filterIndices(indices, n, k), nil
		}
	}
	return nil, errNoSelection
}

// firstValue decodes one JSON value from the start of s. The returned bytes
// span exactly the consumed input.
func firstValue(s string) ([]byte, bool) {
	dec := json.NewDecoder(strings.NewReader(s))
	var raw json.RawMessage
	if err := dec.Decode(&raw); err != nil {
		return nil, false
	}
	return []byte(s[:dec.InputOffset()]), true
}

func insideAny(spans [][2]int, i int) bool {
	for _, sp := range spans {
		if i > sp[0] && i < sp[1] {
			return true
		}
	}
	return false
}

func decodeSelection(raw []byte) ([]int, error) {
	result, err := gojsonschema.Validate(selectionSchema, gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return nil, fmt.Errorf("schema validation error: %w", err)
	}
	if !result.Valid() {
		var details []string
		for _, desc := range result.Errors() {
			details = append(details, desc.String())
		}
		return nil, fmt.Errorf("selection failed validation: %s", strings.Join(details, "; "))
	}

	// Numbers decode as float64 so integral values written as 1.0 survive.
	var values []float64
	raw = bytes.TrimSpace(raw)
	if raw[0] == '[' {
		err = json.Unmarshal(raw, &values)
	} else {
		var payload struct {
			Indices []float64 `json:"indices"`
		}
		err = json.Unmarshal(raw, &payload)
		values = payload.Indices
	}
	if err != nil {
		return nil, err
	}
	indices := make([]int, 0, len(values))
	for _, v := range values {
		if v == math.Trunc(v) {
			indices = append(indices, int(v))
		}
	}
	return indices, nil
}

func filterIndices(indices []int, n, k int) []int {
	seen := make(map[int]bool, len(indices))
	out := make([]int, 0, min(len(indices), k))
	for _, idx := range indices {
		if len(out) == k {
			break
		}
		if idx < 0 || idx >= n || seen[idx] {
			continue
		}
		seen[idx] = true
		out = append(out, idx)
	}
	return out
}
