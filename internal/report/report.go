// Package report aggregates the record.json files of previous runs.
package report

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/mwiater/mergeval/internal/logging"
	"github.com/mwiater/mergeval/internal/record"
)

// Entry is one valid record found under the report root.
type Entry struct {
	Path   string
	Record record.Record
}

// Skipped is a record file that could not be used.
type Skipped struct {
	Path   string
	Reason string
}

// Report is the aggregate of every record under a root directory.
type Report struct {
	Root    string
	Entries []Entry
	Skipped []Skipped
}

// MetricNames returns the sorted union of metric names across entries.
func (r Report) MetricNames() []string {
	seen := make(map[string]struct{})
	for _, e := range r.Entries {
		for name := range e.Record.Metrics {
			seen[name] = struct{}{}
		}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Best returns the entry with the highest value for metric.
func (r Report) Best(metric string) (Entry, bool) {
	var best Entry
	found := false
	for _, e := range r.Entries {
		v, ok := e.Record.Metrics[metric]
		if !ok {
			continue
		}
		if !found || v > best.Record.Metrics[metric] {
			best = e
			found = true
		}
	}
	return best, found
}

// Collect walks root for record.json files one level below it and validates each.
// Invalid records are reported in Skipped rather than failing the whole report.
func Collect(root string) (Report, error) {
	if strings.TrimSpace(root) == "" {
		root = "."
	}
	root = filepath.Clean(root)
	info, err := os.Stat(root)
	if err != nil {
		return Report{}, fmt.Errorf("report root: %w", err)
	}
	if !info.IsDir() {
		return Report{}, fmt.Errorf("report root %s is not a directory", root)
	}

	rep := Report{Root: root}
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			if path != root && filepath.Dir(path) != root {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Name() != record.FileName {
			return nil
		}
		entry, err := load(path)
		if err != nil {
			logging.LogEvent("Skipping record %s: %v", path, err)
			rep.Skipped = append(rep.Skipped, Skipped{Path: path, Reason: err.Error()})
			return nil
		}
		rep.Entries = append(rep.Entries, entry)
		return nil
	})
	if err != nil {
		return Report{}, fmt.Errorf("walk %s: %w", root, err)
	}

	sort.Slice(rep.Entries, func(i, j int) bool {
		a, b := rep.Entries[i].Record, rep.Entries[j].Record
		if a.Dataset != b.Dataset {
			return a.Dataset < b.Dataset
		}
		if a.Method != b.Method {
			return a.Method < b.Method
		}
		if a.Split != b.Split {
			return a.Split < b.Split
		}
		return rep.Entries[i].Path < rep.Entries[j].Path
	})
	return rep, nil
}

func load(path string) (Entry, error) {
	doc, err := record.Read(path)
	if err != nil {
		return Entry{}, err
	}
	violations, err := record.Validate(doc)
	if err != nil {
		return Entry{}, err
	}
	if len(violations) > 0 {
		return Entry{}, errors.New(strings.Join(violations, "; "))
	}
	rec, err := record.FromFlat(doc)
	if err != nil {
		return Entry{}, err
	}
	return Entry{Path: path, Record: rec}, nil
}
