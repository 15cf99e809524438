// Package artifact places merged weights on disk and describes what was written.
package artifact

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/mwiater/mergeval/internal/backends"
)

// Saver persists a pipeline's weights. backends.Backend satisfies it.
type Saver interface {
	Save(ctx context.Context, p backends.Pipeline, dir string) error
}

// Dir returns <root>/merged_weights_<method>_<dataset>_<split>. The root is
// joined verbatim so "./artifacts" keeps its "./" prefix in records.
func Dir(root, method, dataset, split string) string {
	root = strings.TrimRight(root, "/")
	if root == "" {
		root = "."
	}
	return fmt.Sprintf("%s/merged_weights_%s_%s_%s", root, method, dataset, split)
}

// Save creates dir and asks the backend to write the pipeline's weights into it.
// Existing files are overwritten by the backend.
func Save(ctx context.Context, s Saver, p backends.Pipeline, dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: create %s: %v", backends.ErrIO, dir, err)
	}
	if err := s.Save(ctx, p, dir); err != nil {
		return fmt.Errorf("save weights to %s: %w", dir, err)
	}
	return nil
}
