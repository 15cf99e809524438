// Package runner sequences a single merge experiment: select the model list,
// merge, save, evaluate and record. Every step depends on the previous one
// and any failure ends the run.
package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/mwiater/mergeval/internal/appconfig"
	"github.com/mwiater/mergeval/internal/artifact"
	"github.com/mwiater/mergeval/internal/backends"
	"github.com/mwiater/mergeval/internal/catalog"
	"github.com/mwiater/mergeval/internal/evaluate"
	"github.com/mwiater/mergeval/internal/logging"
	"github.com/mwiater/mergeval/internal/record"
)

var now = time.Now

// Outcome is everything a completed run produced.
type Outcome struct {
	Models       catalog.ModelList
	UsedFallback bool
	Directory    string
	Record       record.Record
	RecordPath   string
	Manifest     artifact.Manifest
	Evaluation   evaluate.Result
	Collisions   []string
}

// Run executes the experiment described by cfg against be.
func Run(ctx context.Context, cfg appconfig.Config, be backends.Backend) (Outcome, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return Outcome{}, err
	}

	table, err := catalog.LoadTable(cfg.CatalogFile)
	if err != nil {
		return Outcome{}, err
	}
	models, usedFallback, err := table.SelectWithFallback(cfg.Dataset, cfg.FallbackDataset)
	if err != nil {
		return Outcome{}, fmt.Errorf("select models: %w", err)
	}
	if usedFallback {
		logging.LogEvent("WARNING: dataset %q has no model list; merging %q models instead", cfg.Dataset, cfg.FallbackDataset)
	}

	req := backends.MergeRequest{
		Models:    models,
		BaseIndex: cfg.BaseIndex,
		Signs:     cfg.MergeSigns(),
		Task:      cfg.Task,
		Method:    cfg.Method,
	}
	if err := req.Validate(); err != nil {
		return Outcome{}, err
	}
	logging.LogStep("select", map[string]any{"dataset": cfg.Dataset, "models": len(models), "base": models[req.BaseIndex]})

	if err := preflight(ctx, cfg, be, models[req.BaseIndex]); err != nil {
		return Outcome{}, err
	}

	logging.LogStep("merge", map[string]any{"method": cfg.Method, "backend": be.Name(), "signs": req.Signs})
	start := now()
	merged, err := be.Merge(ctx, req)
	if err != nil {
		return Outcome{}, err
	}
	elapsed := now().Sub(start).Seconds()
	defer func() {
		if err := be.Release(context.WithoutCancel(ctx), merged); err != nil {
			logging.LogEvent("Releasing merged pipeline %s failed: %v", merged.ID, err)
		}
	}()
	logging.LogEvent("Merging completed. Time elapsed: %.3fs", elapsed)

	dir := artifact.Dir(cfg.ArtifactsRoot(), cfg.Method, cfg.Dataset, cfg.Split)
	if err := artifact.Save(ctx, be, merged, dir); err != nil {
		return Outcome{}, err
	}
	logging.LogStep("save", map[string]any{"dir": dir, "pipeline": merged.ID})

	manifest := artifact.NewManifest(now())
	manifest.Method = cfg.Method
	manifest.Dataset = cfg.Dataset
	manifest.Split = cfg.Split
	manifest.Task = cfg.Task
	manifest.Models = append([]string(nil), models...)
	manifest.BaseIndex = req.BaseIndex
	manifest.Signs = req.Signs
	manifest.Backend = be.Name()
	manifest, err = artifact.WriteManifest(dir, manifest)
	if err != nil {
		return Outcome{}, fmt.Errorf("%w: %v", backends.ErrIO, err)
	}

	logging.LogEvent("Evaluating the merged model on %s/%s", cfg.Dataset, cfg.Split)
	result, err := evaluate.Run(ctx, be, merged, backends.EvalRequest{Dataset: cfg.Dataset, Split: cfg.Split, Subset: cfg.Subset})
	if err != nil {
		return Outcome{}, err
	}
	logging.LogStep("evaluate", map[string]any{"accuracy": result.Accuracy})

	rec := record.Record{
		Method:    cfg.Method,
		Dataset:   cfg.Dataset,
		Split:     cfg.Split,
		Directory: dir,
		Time:      elapsed,
		Metrics:   result.Accuracy,
	}
	collisions := rec.Collisions()
	for _, name := range collisions {
		logging.LogEvent("WARNING: metric %q overwrites the record field of the same name", name)
	}
	path, err := record.Write(dir, rec)
	if err != nil {
		return Outcome{}, fmt.Errorf("%w: %v", backends.ErrIO, err)
	}
	logging.LogStep("record", map[string]any{"path": path})

	return Outcome{
		Models:       models,
		UsedFallback: usedFallback,
		Directory:    dir,
		Record:       rec,
		RecordPath:   path,
		Manifest:     manifest,
		Evaluation:   result,
		Collisions:   collisions,
	}, nil
}

// preflight builds the unmerged base pipeline so an unresolvable base model
// fails before the expensive merge starts.
func preflight(ctx context.Context, cfg appconfig.Config, be backends.Backend, base string) error {
	spec := backends.PipelineSpec{Task: cfg.Task, Model: base, Device: cfg.Device, Framework: cfg.Framework}
	logging.LogStep("load", map[string]any{"model": base, "device": cfg.Device, "framework": cfg.Framework})
	p, err := be.Load(ctx, spec)
	if err != nil {
		return fmt.Errorf("load base pipeline: %w", err)
	}
	if err := be.Release(ctx, p); err != nil {
		logging.LogEvent("Releasing base pipeline %s failed: %v", p.ID, err)
	}
	return nil
}
