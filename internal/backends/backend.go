// internal/backends/backend.go

// Package backends defines the interface mergeval uses to reach the external
// runtime that loads pretrained models, merges their weights, saves them and
// evaluates them. The runtime itself is out of process; implementations live
// in the worker (stdio) and remote (HTTP) subpackages.
package backends

import (
	"context"
	"fmt"
)

// PipelineSpec describes an unmerged inference pipeline to construct.
type PipelineSpec struct {
	Task      string `json:"task"`
	Model     string `json:"model"`
	Device    string `json:"device"`
	Framework string `json:"framework"`
}

// MergeRequest describes a weight merge. Models[BaseIndex] is the reference
// model; Signs is nil when the strategy should resolve signs itself.
type MergeRequest struct {
	Models    []string  `json:"models"`
	BaseIndex int       `json:"base_index"`
	Signs     []float64 `json:"signs"`
	Task      string    `json:"task"`
	Method    string    `json:"method"`
}

// EvalRequest selects the benchmark partition an evaluation runs on.
type EvalRequest struct {
	Dataset string `json:"dataset"`
	Split   string `json:"split"`
	Subset  string `json:"subset,omitempty"`
}

// Pipeline is an opaque handle to a pipeline held by the backend runtime.
type Pipeline struct {
	ID     string   `json:"id"`
	Task   string   `json:"task"`
	Models []string `json:"models,omitempty"`
	Merged bool     `json:"merged"`
}

// Validate checks the request invariants before any backend I/O happens.
func (r MergeRequest) Validate() error {
	if len(r.Models) == 0 {
		return ErrNoModels
	}
	for i, m := range r.Models {
		if m == "" {
			return fmt.Errorf("%w: model %d is blank", ErrModelNotFound, i)
		}
	}
	if r.BaseIndex < 0 || r.BaseIndex >= len(r.Models) {
		return fmt.Errorf("%w: base index %d, %d models", ErrBaseIndexOutOfRange, r.BaseIndex, len(r.Models))
	}
	if r.Signs != nil && len(r.Signs) != len(r.Models) {
		return fmt.Errorf("%w: %d signs for %d models", ErrSignsLength, len(r.Signs), len(r.Models))
	}
	return nil
}

// Backend is the interface every merge runtime transport must implement.
type Backend interface {
	// Name identifies the transport in logs.
	Name() string
	// Load constructs an unmerged pipeline for a single model.
	Load(ctx context.Context, spec PipelineSpec) (Pipeline, error)
	// Merge combines the weights of every requested model into one pipeline.
	Merge(ctx context.Context, req MergeRequest) (Pipeline, error)
	// Save persists the pipeline's model weights into dir.
	Save(ctx context.Context, p Pipeline, dir string) error
	// Evaluate runs the pipeline over a benchmark split and returns the raw result.
	Evaluate(ctx context.Context, p Pipeline, req EvalRequest) (map[string]any, error)
	// Release frees a pipeline held by the runtime.
	Release(ctx context.Context, p Pipeline) error
	// Close shuts the transport down.
	Close() error
}
