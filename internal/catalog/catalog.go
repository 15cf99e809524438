// Package catalog maps benchmark dataset names to the ordered list of models
// merged for that dataset. Index 0 of every list is the base model.
package catalog

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"go.yaml.in/yaml/v3"
)

// ErrUnknownDataset is returned when a dataset name has no model list.
var ErrUnknownDataset = errors.New("unknown dataset")

// ModelList is an ordered list of pretrained model identifiers. The first
// entry is the base model.
type ModelList []string

// Base returns the base model identifier, or "" for an empty list.
func (m ModelList) Base() string {
	if len(m) == 0 {
		return ""
	}
	return m[0]
}

// Table is a dataset name to model list lookup table.
type Table map[string]ModelList

// catalogFile is the on-disk YAML layout accepted by LoadTable.
type catalogFile struct {
	Datasets map[string][]string `yaml:"datasets"`
}

// DefaultTable returns the built-in GLUE model lists.
func DefaultTable() Table {
	return Table{
		"rte": {
			"google-bert/bert-base-uncased",
			"textattack/bert-base-uncased-RTE",
			"yoshitomo-matsubara/bert-base-uncased-rte",
			"Ruizhou/bert-base-uncased-finetuned-rte",
			"howey/bert-base-uncased-rte",
			"anirudh21/bert-base-uncased-finetuned-rte",
		},
		"sst2": {
			"google-bert/bert-base-uncased",
			"aviator-neural/bert-base-uncased-sst2",
			"howey/bert-base-uncased-sst2",
			"yoshitomo-matsubara/bert-base-uncased-sst2",
			"ikevin98/bert-base-uncased-finetuned-sst2",
			"TehranNLP-org/bert-base-uncased-cls-sst2",
		},
	}
}

// Select returns a copy of the model list registered for dataset.
func (t Table) Select(dataset string) (ModelList, error) {
	models, ok := t[strings.TrimSpace(dataset)]
	if !ok {
		return nil, fmt.Errorf("%w %q (known: %s)", ErrUnknownDataset, dataset, strings.Join(t.Names(), ", "))
	}
	return append(ModelList(nil), models...), nil
}

// SelectWithFallback behaves like Select but resolves unknown datasets to the
// fallback list when fallback is non-empty. The boolean reports whether the
// fallback was used so callers can warn that the record will carry a dataset
// name that does not match the merged models.
func (t Table) SelectWithFallback(dataset, fallback string) (ModelList, bool, error) {
	models, err := t.Select(dataset)
	if err == nil {
		return models, false, nil
	}
	if strings.TrimSpace(fallback) == "" {
		return nil, false, err
	}
	models, fbErr := t.Select(fallback)
	if fbErr != nil {
		return nil, false, fmt.Errorf("fallback dataset: %w", fbErr)
	}
	return models, true, nil
}

// Names returns the registered dataset names in sorted order.
func (t Table) Names() []string {
	names := make([]string, 0, len(t))
	for name := range t {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// LoadTable reads a YAML catalog file and overlays its datasets on the
// built-in table. An empty path returns the defaults.
func LoadTable(path string) (Table, error) {
	table := DefaultTable()
	if strings.TrimSpace(path) == "" {
		return table, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}
	var file catalogFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse catalog %s: %w", path, err)
	}

	for name, models := range file.Datasets {
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, fmt.Errorf("catalog %s: dataset name must not be empty", path)
		}
		if len(models) == 0 {
			return nil, fmt.Errorf("catalog %s: dataset %q has no models", path, name)
		}
		list := make(ModelList, 0, len(models))
		for i, m := range models {
			m = strings.TrimSpace(m)
			if m == "" {
				return nil, fmt.Errorf("catalog %s: dataset %q model %d is blank", path, name, i)
			}
			list = append(list, m)
		}
		table[name] = list
	}
	return table, nil
}
