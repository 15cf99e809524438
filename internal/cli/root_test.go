// internal/cli/root_test.go
package mergeval

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/mwiater/mergeval/internal/appconfig"
	"github.com/mwiater/mergeval/internal/backends"
	"github.com/mwiater/mergeval/internal/logging"
	"github.com/mwiater/mergeval/internal/record"
	"github.com/mwiater/mergeval/internal/runner"
	"github.com/spf13/viper"
)

func resetFlag(cmdFlag string) {
	flag := rootCmd.PersistentFlags().Lookup(cmdFlag)
	if flag == nil {
		return
	}
	_ = flag.Value.Set(flag.DefValue)
	flag.Changed = false
}

func resetAllFlags() {
	resetFlag("baseIndex")
	for _, name := range boolFlags {
		resetFlag(name)
	}
	for _, name := range stringFlags {
		resetFlag(name)
	}
}

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func useConfig(t *testing.T, content string) string {
	t.Helper()
	configPath := writeTempConfig(t, content)
	prevCfgFile := cfgFile
	cfgFile = configPath
	viper.Reset()
	viper.SetConfigFile(configPath)
	for _, name := range append(append([]string{"baseIndex"}, boolFlags...), stringFlags...) {
		_ = viper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name))
	}
	resetAllFlags()
	_ = rootCmd.PersistentFlags().Set("logFile", filepath.Join(t.TempDir(), "mergeval.log"))
	t.Cleanup(func() {
		cfgFile = prevCfgFile
		viper.SetConfigFile(prevCfgFile)
		resetAllFlags()
		rootCmd.SetArgs([]string{})
		_ = logging.Close()
	})
	return configPath
}

// TestRootCmd verifies running the root command with an invalid subcommand reports an error.
func TestRootCmd(t *testing.T) {
	b := new(bytes.Buffer)
	rootCmd.SetOut(b)
	rootCmd.SetErr(b)

	rootCmd.SetArgs([]string{"nonexistent"})
	t.Cleanup(func() { rootCmd.SetArgs([]string{}) })
	_, err := rootCmd.ExecuteC()

	if err == nil {
		t.Error("Expected an error for a nonexistent command, but got none")
	}

	expected := "unknown command \"nonexistent\" for \"mergeval\""
	if !strings.Contains(b.String(), expected) {
		t.Errorf("Expected output to contain '%s', but got '%s'", expected, b.String())
	}
}

func TestPersistentPreRunEMergesConfigAndFlags(t *testing.T) {
	configPath := useConfig(t, `{"dataset":"sst2","split":"test","signs":[1,-1,1,1,1,1],"backend":{"type":"remote","url":"http://merge:8080"},"timeout":60}`)

	_ = rootCmd.PersistentFlags().Set("method", "ties")
	_ = rootCmd.PersistentFlags().Set("debug", "true")

	if err := rootCmd.PersistentPreRunE(rootCmd, []string{}); err != nil {
		t.Fatalf("PersistentPreRunE error: %v", err)
	}

	cfg := GetConfig()
	if cfg == nil || cfg.ConfigPath != configPath {
		t.Fatalf("expected config loaded with path %s, got %+v", configPath, cfg)
	}
	if cfg.Method != "ties" || !cfg.Debug {
		t.Fatalf("expected flag values to flow into config: %+v", cfg)
	}
	if cfg.Dataset != "sst2" || cfg.Split != "test" {
		t.Fatalf("expected file values to be kept: %+v", cfg)
	}
	if cfg.Backend.Type != "remote" || cfg.Backend.URL != "http://merge:8080" {
		t.Fatalf("expected nested backend config, got %+v", cfg.Backend)
	}
	if len(cfg.Signs) != 6 || cfg.Signs[1] != -1 {
		t.Fatalf("expected signs from config, got %v", cfg.Signs)
	}
	if cfg.RequestTimeout().Seconds() != 60 {
		t.Fatalf("expected 60s timeout, got %s", cfg.RequestTimeout())
	}
	if cfg.Task != "text-classification" || cfg.ArtifactsRoot() != appconfig.DefaultArtifactsDir {
		t.Fatalf("expected defaults to be applied: %+v", cfg)
	}
}

func TestPersistentPreRunERejectsInvalidConfig(t *testing.T) {
	useConfig(t, `{}`)
	_ = rootCmd.PersistentFlags().Set("dataset", "../etc")

	if err := rootCmd.PersistentPreRunE(rootCmd, []string{}); err == nil {
		t.Fatalf("expected error for dataset containing a path separator")
	}
}

func TestShowConfigCommandOutput(t *testing.T) {
	configPath := useConfig(t, `{}`)

	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetErr(&buf)
	rootCmd.SetArgs([]string{"--dataset", "sst2", "show", "config"})
	if _, err := rootCmd.ExecuteC(); err != nil {
		t.Fatalf("ExecuteC error: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "Config file: "+configPath) {
		t.Fatalf("expected config file path in output, got %s", out)
	}
	if !strings.Contains(out, "Dataset:         sst2") {
		t.Fatalf("expected dataset in output, got %s", out)
	}
	if !strings.Contains(out, "Artifacts Root:  ./artifacts") {
		t.Fatalf("expected artifacts root in output, got %s", out)
	}
}

func TestModelsCommandMarksBase(t *testing.T) {
	useConfig(t, `{}`)

	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetErr(&buf)
	rootCmd.SetArgs([]string{"models", "rte"})
	if _, err := rootCmd.ExecuteC(); err != nil {
		t.Fatalf("ExecuteC error: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "google-bert/bert-base-uncased") || !strings.Contains(out, "(base)") {
		t.Fatalf("expected base model marker, got %s", out)
	}
	if strings.Contains(out, "sst2:") {
		t.Fatalf("expected only rte to be listed, got %s", out)
	}
}

func TestModelsUnknownDataset(t *testing.T) {
	var buf bytes.Buffer
	if err := listModels(&buf, appconfig.Config{}, "mnli"); err == nil {
		t.Fatalf("expected error for unknown dataset")
	}
}

type stubBackend struct {
	closed bool
}

func (s *stubBackend) Name() string { return "stub" }
func (s *stubBackend) Load(context.Context, backends.PipelineSpec) (backends.Pipeline, error) {
	return backends.Pipeline{ID: "base"}, nil
}
func (s *stubBackend) Merge(context.Context, backends.MergeRequest) (backends.Pipeline, error) {
	return backends.Pipeline{ID: "merged", Merged: true}, nil
}
func (s *stubBackend) Save(context.Context, backends.Pipeline, string) error { return nil }
func (s *stubBackend) Evaluate(context.Context, backends.Pipeline, backends.EvalRequest) (map[string]any, error) {
	return map[string]any{"accuracy": 0.5}, nil
}
func (s *stubBackend) Release(context.Context, backends.Pipeline) error { return nil }
func (s *stubBackend) Close() error {
	s.closed = true
	return nil
}

func stubRun(t *testing.T, run func(context.Context, appconfig.Config, backends.Backend) (runner.Outcome, error)) *stubBackend {
	t.Helper()
	be := &stubBackend{}
	origNew, origRun := newBackend, runPipeline
	newBackend = func(context.Context, appconfig.Config) (backends.Backend, error) { return be, nil }
	runPipeline = run
	t.Cleanup(func() {
		newBackend = origNew
		runPipeline = origRun
	})
	return be
}

func sampleOutcome() runner.Outcome {
	return runner.Outcome{
		Models:     []string{"base-model", "ft-1"},
		Directory:  "./artifacts/merged_weights_task_rte_validation",
		RecordPath: "./artifacts/merged_weights_task_rte_validation/record.json",
		Record: record.Record{
			Method: "task", Dataset: "rte", Split: "validation",
			Directory: "./artifacts/merged_weights_task_rte_validation",
			Time:      1.5, Metrics: map[string]float64{"accuracy": 0.81},
		},
	}
}

func TestRunExperimentPrintsSummary(t *testing.T) {
	be := stubRun(t, func(context.Context, appconfig.Config, backends.Backend) (runner.Outcome, error) {
		return sampleOutcome(), nil
	})

	var buf bytes.Buffer
	if err := runExperiment(context.Background(), &buf, appconfig.Config{}.WithDefaults()); err != nil {
		t.Fatalf("runExperiment error: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"Merge complete", "rte/validation", "0.8100", "record.json"} {
		if !strings.Contains(out, want) {
			t.Fatalf("summary missing %q:\n%s", want, out)
		}
	}
	if !be.closed {
		t.Fatalf("expected backend to be closed")
	}
}

func TestRunExperimentJSONMode(t *testing.T) {
	stubRun(t, func(context.Context, appconfig.Config, backends.Backend) (runner.Outcome, error) {
		return sampleOutcome(), nil
	})

	var buf bytes.Buffer
	cfg := appconfig.Config{JSONMode: true}.WithDefaults()
	if err := runExperiment(context.Background(), &buf, cfg); err != nil {
		t.Fatalf("runExperiment error: %v", err)
	}
	var doc map[string]any
	if err := json.Unmarshal(buf.Bytes(), &doc); err != nil {
		t.Fatalf("expected JSON output, got %q: %v", buf.String(), err)
	}
	if doc["accuracy"] != 0.81 || doc["method"] != "task" || len(doc) != 6 {
		t.Fatalf("unexpected flat record %v", doc)
	}
}

func TestRunExperimentPropagatesErrors(t *testing.T) {
	be := stubRun(t, func(context.Context, appconfig.Config, backends.Backend) (runner.Outcome, error) {
		return runner.Outcome{}, backends.ErrIncompatibleArchitectures
	})

	err := runExperiment(context.Background(), new(bytes.Buffer), appconfig.Config{}.WithDefaults())
	if !errors.Is(err, backends.ErrIncompatibleArchitectures) {
		t.Fatalf("expected ErrIncompatibleArchitectures, got %v", err)
	}
	if !be.closed {
		t.Fatalf("backend should be closed after a failed run")
	}
}

func TestValidateRecords(t *testing.T) {
	color.NoColor = true
	dir := t.TempDir()
	good, err := record.Write(dir, sampleOutcome().Record)
	if err != nil {
		t.Fatalf("write record: %v", err)
	}
	bad := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(bad, []byte(`{"method":"task","time":"slow"}`), 0o644); err != nil {
		t.Fatalf("write bad record: %v", err)
	}

	var buf bytes.Buffer
	if err := validateRecords(&buf, []string{good}); err != nil {
		t.Fatalf("expected valid record, got %v: %s", err, buf.String())
	}
	if !strings.Contains(buf.String(), "VALID "+good) {
		t.Fatalf("unexpected output %q", buf.String())
	}

	buf.Reset()
	if err := validateRecords(&buf, []string{good, bad}); err == nil {
		t.Fatalf("expected error for invalid record")
	}
	if !strings.Contains(buf.String(), "INVALID "+bad) {
		t.Fatalf("unexpected output %q", buf.String())
	}
}

func TestWriteReport(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "merged_weights_task_rte_validation")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if _, err := record.Write(dir, sampleOutcome().Record); err != nil {
		t.Fatalf("write record: %v", err)
	}

	md := filepath.Join(t.TempDir(), "report.md")
	var buf bytes.Buffer
	if err := writeReport(&buf, root, md, ""); err != nil {
		t.Fatalf("writeReport error: %v", err)
	}
	if !strings.Contains(buf.String(), "Markdown report written to "+md) {
		t.Fatalf("unexpected output %q", buf.String())
	}
	raw, err := os.ReadFile(md)
	if err != nil {
		t.Fatalf("read markdown: %v", err)
	}
	if !strings.Contains(string(raw), "| rte | task | validation | 1.50 | 0.8100 |") {
		t.Fatalf("unexpected markdown:\n%s", raw)
	}
}
