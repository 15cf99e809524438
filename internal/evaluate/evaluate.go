// Package evaluate adapts the backend's raw evaluation output into the
// accuracy mapping recorded for a run.
package evaluate

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"

	"github.com/mwiater/mergeval/internal/backends"
	"github.com/mwiater/mergeval/internal/logging"
)

// AccuracyKey is the result key holding the accuracy sub-mapping.
const AccuracyKey = "accuracy"

// Evaluator runs a pipeline over a benchmark split. backends.Backend satisfies it.
type Evaluator interface {
	Evaluate(ctx context.Context, p backends.Pipeline, req backends.EvalRequest) (map[string]any, error)
}

// Result is an evaluation outcome.
type Result struct {
	// Accuracy holds the numeric accuracy metrics, keyed by metric name.
	Accuracy map[string]float64
	// Raw is the unmodified evaluator output.
	Raw map[string]any
}

// MetricNames returns the accuracy metric names in sorted order.
func (r Result) MetricNames() []string {
	names := make([]string, 0, len(r.Accuracy))
	for name := range r.Accuracy {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Run evaluates p and extracts its accuracy mapping.
func Run(ctx context.Context, ev Evaluator, p backends.Pipeline, req backends.EvalRequest) (Result, error) {
	raw, err := ev.Evaluate(ctx, p, req)
	if err != nil {
		return Result{}, fmt.Errorf("evaluate %s/%s: %w", req.Dataset, req.Split, err)
	}
	accuracy, err := extractAccuracy(raw)
	if err != nil {
		return Result{}, fmt.Errorf("evaluate %s/%s: %w", req.Dataset, req.Split, err)
	}
	return Result{Accuracy: accuracy, Raw: raw}, nil
}

func extractAccuracy(raw map[string]any) (map[string]float64, error) {
	value, ok := raw[AccuracyKey]
	if !ok {
		return nil, fmt.Errorf("%w: result has no %q mapping", backends.ErrMetric, AccuracyKey)
	}

	if number, ok := toFloat(value); ok {
		if !finite(number) {
			return nil, fmt.Errorf("%w: %s is not finite", backends.ErrMetric, AccuracyKey)
		}
		return map[string]float64{AccuracyKey: number}, nil
	}

	mapping, ok := value.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: %q has unsupported type %T", backends.ErrMetric, AccuracyKey, value)
	}

	out := make(map[string]float64, len(mapping))
	for name, v := range mapping {
		number, ok := toFloat(v)
		if !ok {
			logging.LogEvent("Skipping non-numeric accuracy metric %q (%T)", name, v)
			continue
		}
		if !finite(number) {
			return nil, fmt.Errorf("%w: metric %q is not finite", backends.ErrMetric, name)
		}
		out[name] = number
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: %q mapping has no numeric metrics", backends.ErrMetric, AccuracyKey)
	}
	return out, nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
