package record

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// Schema returns the JSON schema of the flat record layout.
func Schema() map[string]any {
	return map[string]any{
		"$schema": "http://json-schema.org/draft-07/schema#",
		"title":   "mergeval record",
		"type":    "object",
		"required": []string{
			FieldMethod, FieldDataset, FieldSplit, FieldDirectory, FieldTime,
		},
		"properties": map[string]any{
			FieldMethod:    map[string]any{"type": "string", "minLength": 1},
			FieldDataset:   map[string]any{"type": "string", "minLength": 1},
			FieldSplit:     map[string]any{"type": "string", "minLength": 1},
			FieldDirectory: map[string]any{"type": "string", "minLength": 1},
			FieldTime:      map[string]any{"type": "number", "minimum": 0},
		},
		"additionalProperties": map[string]any{"type": "number"},
	}
}

// Validate checks a flat record document against Schema. It returns the list
// of violations; the error is reserved for failures of the validation itself.
func Validate(doc any) ([]string, error) {
	result, err := gojsonschema.Validate(gojsonschema.NewGoLoader(Schema()), gojsonschema.NewGoLoader(doc))
	if err != nil {
		return nil, fmt.Errorf("schema validation error: %w", err)
	}
	if result.Valid() {
		return nil, nil
	}
	errs := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		errs = append(errs, desc.String())
	}
	return errs, nil
}

// ValidateFile reads and validates a record file, returning an error that
// lists every violation.
func ValidateFile(path string) error {
	doc, err := Read(path)
	if err != nil {
		return err
	}
	violations, err := Validate(doc)
	if err != nil {
		return err
	}
	if len(violations) > 0 {
		return fmt.Errorf("record %s is invalid: %s", path, strings.Join(violations, ", "))
	}
	return nil
}
