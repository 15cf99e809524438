// scripts/backend_integration_check.go
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mwiater/mergeval/internal/appconfig"
	"github.com/mwiater/mergeval/internal/backendfactory"
	"github.com/mwiater/mergeval/internal/backends"
	"github.com/mwiater/mergeval/internal/catalog"
	"github.com/mwiater/mergeval/internal/util"
)

// Probes a configured backend without merging: it connects, loads every
// checkpoint of the dataset's model list one at a time and releases it again.
func main() {
	configPath := flag.String("config", appconfig.DefaultConfigPath, "Path to config JSON")
	backendURL := flag.String("url", "", "Override backend with a remote merge host URL")
	dataset := flag.String("dataset", "", "Override dataset whose model list is probed")
	timeout := flag.Duration("timeout", 10*time.Minute, "Overall probe timeout")
	flag.Parse()

	cfg, err := resolveConfig(*configPath, *backendURL, *dataset)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	fmt.Printf("Backend type: %s\n", cfg.Backend.Type)
	be, err := backendfactory.NewBackend(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "backend unavailable: %v\n", err)
		os.Exit(1)
	}
	defer be.Close()
	fmt.Printf("Connected: %s\n\n", be.Name())

	table, err := catalog.LoadTable(cfg.CatalogFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "catalog error: %v\n", err)
		os.Exit(1)
	}
	models, err := table.Select(cfg.Dataset)
	if err != nil {
		fmt.Fprintf(os.Stderr, "catalog error: %v\n", err)
		os.Exit(1)
	}

	failed := probeModels(ctx, be, cfg, models)
	fmt.Printf("\n%d/%d checkpoints loadable\n", len(models)-failed, len(models))
	if failed > 0 {
		os.Exit(1)
	}
}

func resolveConfig(configPath, overrideURL, overrideDataset string) (appconfig.Config, error) {
	var cfg appconfig.Config
	if overrideURL == "" {
		loaded, err := appconfig.Load(configPath)
		if err != nil {
			return appconfig.Config{}, err
		}
		cfg = loaded
	} else {
		cfg = appconfig.Config{Backend: appconfig.BackendConfig{Type: "remote", URL: overrideURL}}.WithDefaults()
	}
	if overrideDataset != "" {
		cfg.Dataset = overrideDataset
	}
	return cfg, cfg.Validate()
}

func probeModels(ctx context.Context, be backends.Backend, cfg appconfig.Config, models catalog.ModelList) int {
	fmt.Printf("== %s model list ==\n", cfg.Dataset)
	failed := 0
	for i, model := range models {
		spec := backends.PipelineSpec{Task: cfg.Task, Model: model, Device: cfg.Device, Framework: cfg.Framework}
		start := time.Now()
		p, err := be.Load(ctx, spec)
		elapsed := time.Since(start).Round(time.Millisecond)
		label := fmt.Sprintf("[%d] %-40s", i, util.ShortModelName(model))
		if err != nil {
			failed++
			msg := util.TruncateRunes(strings.TrimSpace(err.Error()), 200)
			fmt.Printf("%s FAIL (%s) code=%s %s\n", label, elapsed, backends.ErrorCode(err), msg)
			continue
		}
		fmt.Printf("%s ok   (%s) id=%s\n", label, elapsed, p.ID)
		if err := be.Release(ctx, p); err != nil {
			fmt.Printf("    release failed: %v\n", err)
		}
	}
	return failed
}
