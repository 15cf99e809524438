// Package record builds and persists the per-run result record. Records keep
// metrics nested; the flat JSON layout exists only at the file boundary.
package record

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/mwiater/mergeval/internal/util"
)

// FileName is the record written inside each merged weights directory.
const FileName = "record.json"

// Fixed field names of the flat record layout.
const (
	FieldMethod    = "method"
	FieldDataset   = "dataset"
	FieldSplit     = "split"
	FieldDirectory = "directory"
	FieldTime      = "time"
)

var fixedFields = []string{FieldMethod, FieldDataset, FieldSplit, FieldDirectory, FieldTime}

// Record describes one merge-and-evaluate run.
type Record struct {
	Method    string
	Dataset   string
	Split     string
	Directory string
	// Time is the merge wall-clock time in seconds.
	Time    float64
	Metrics map[string]float64
}

// Flatten returns the flat layout: fixed fields first, then every metric
// applied on top. A metric named like a fixed field replaces that field.
func (r Record) Flatten() map[string]any {
	flat := map[string]any{
		FieldMethod:    r.Method,
		FieldDataset:   r.Dataset,
		FieldSplit:     r.Split,
		FieldDirectory: r.Directory,
		FieldTime:      r.Time,
	}
	for name, value := range r.Metrics {
		flat[name] = value
	}
	return flat
}

// Collisions lists metric names that shadow a fixed field, sorted.
func (r Record) Collisions() []string {
	var out []string
	for _, name := range fixedFields {
		if _, ok := r.Metrics[name]; ok {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// Write stores the flat record as dir/record.json, replacing any existing file.
func Write(dir string, r Record) (string, error) {
	path := filepath.Join(dir, FileName)
	if err := util.WriteJSON(path, r.Flatten()); err != nil {
		return "", fmt.Errorf("write record %s: %w", path, err)
	}
	return path, nil
}

// Read loads a flat record document.
func Read(path string) (map[string]any, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read record %s: %w", path, err)
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse record %s: %w", path, err)
	}
	return doc, nil
}

// FromFlat rebuilds a Record from a flat document. Numeric keys other than
// the fixed fields become metrics; other extra keys are ignored.
func FromFlat(doc map[string]any) (Record, error) {
	var r Record
	var ok bool
	for _, field := range []struct {
		name string
		dst  *string
	}{
		{FieldMethod, &r.Method},
		{FieldDataset, &r.Dataset},
		{FieldSplit, &r.Split},
		{FieldDirectory, &r.Directory},
	} {
		if *field.dst, ok = doc[field.name].(string); !ok {
			return Record{}, fmt.Errorf("record field %q is not a string", field.name)
		}
	}
	if r.Time, ok = doc[FieldTime].(float64); !ok {
		return Record{}, fmt.Errorf("record field %q is not a number", FieldTime)
	}

	r.Metrics = make(map[string]float64)
	for name, value := range doc {
		if isFixed(name) {
			continue
		}
		if number, ok := value.(float64); ok {
			r.Metrics[name] = number
		}
	}
	return r, nil
}

func isFixed(name string) bool {
	for _, f := range fixedFields {
		if f == name {
			return true
		}
	}
	return false
}
