package report

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fatih/color"

	"github.com/mwiater/mergeval/internal/record"
)

func writeRecord(t *testing.T, root, name string, r record.Record) string {
	t.Helper()
	dir := filepath.Join(root, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	path, err := record.Write(dir, r)
	if err != nil {
		t.Fatalf("write record: %v", err)
	}
	return path
}

func sampleRoot(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	writeRecord(t, root, "merged_weights_task_sst2_validation", record.Record{
		Method: "task", Dataset: "sst2", Split: "validation", Directory: "./artifacts/merged_weights_task_sst2_validation",
		Time: 3.5, Metrics: map[string]float64{"accuracy": 0.9},
	})
	writeRecord(t, root, "merged_weights_task_rte_validation", record.Record{
		Method: "task", Dataset: "rte", Split: "validation", Directory: "./artifacts/merged_weights_task_rte_validation",
		Time: 1.23, Metrics: map[string]float64{"accuracy": 0.81},
	})
	writeRecord(t, root, "merged_weights_ties_rte_validation", record.Record{
		Method: "ties", Dataset: "rte", Split: "validation", Directory: "./artifacts/merged_weights_ties_rte_validation",
		Time: 2, Metrics: map[string]float64{"accuracy": 0.7, "f1": 0.6},
	})

	bad := filepath.Join(root, "broken")
	if err := os.MkdirAll(bad, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(bad, record.FileName), []byte(`{"method":"task"}`), 0o644); err != nil {
		t.Fatalf("write broken record: %v", err)
	}
	return root
}

func TestCollectSortsAndSkipsInvalid(t *testing.T) {
	root := sampleRoot(t)

	rep, err := Collect(root)
	if err != nil {
		t.Fatalf("Collect returned error: %v", err)
	}
	if len(rep.Entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(rep.Entries))
	}
	got := []string{}
	for _, e := range rep.Entries {
		got = append(got, e.Record.Dataset+"/"+e.Record.Method)
	}
	want := []string{"rte/task", "rte/ties", "sst2/task"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("unexpected order %v, want %v", got, want)
	}
	if len(rep.Skipped) != 1 || !strings.Contains(rep.Skipped[0].Path, "broken") {
		t.Fatalf("expected broken record to be skipped, got %+v", rep.Skipped)
	}
	if names := rep.MetricNames(); strings.Join(names, ",") != "accuracy,f1" {
		t.Fatalf("unexpected metric names %v", names)
	}
	best, ok := rep.Best("accuracy")
	if !ok || best.Record.Dataset != "sst2" {
		t.Fatalf("expected sst2 to have the best accuracy, got %+v", best)
	}
}

func TestCollectIgnoresNestedRecords(t *testing.T) {
	root := t.TempDir()
	writeRecord(t, root, filepath.Join("a", "b"), record.Record{
		Method: "task", Dataset: "rte", Split: "validation", Directory: "x", Metrics: map[string]float64{"accuracy": 1},
	})
	rep, err := Collect(root)
	if err != nil {
		t.Fatalf("Collect returned error: %v", err)
	}
	if len(rep.Entries) != 0 {
		t.Fatalf("expected nested record to be ignored, got %d entries", len(rep.Entries))
	}
}

func TestCollectMissingRoot(t *testing.T) {
	if _, err := Collect(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Fatalf("expected error for missing root")
	}
}

func TestBuildMarkdown(t *testing.T) {
	rep, err := Collect(sampleRoot(t))
	if err != nil {
		t.Fatalf("Collect returned error: %v", err)
	}
	md := BuildMarkdown(rep)
	for _, want := range []string{
		"# Merge Evaluation Report",
		"- Records: `3`",
		"| Dataset | Method | Split | Time (s) | accuracy | f1 |",
		"| rte | task | validation | 1.23 | 0.8100 | - |",
		"- accuracy: **0.9000** (task, sst2/validation)",
		"## Skipped",
	} {
		if !strings.Contains(md, want) {
			t.Fatalf("markdown missing %q:\n%s", want, md)
		}
	}
}

func TestWriteConsole(t *testing.T) {
	color.NoColor = true
	rep, err := Collect(sampleRoot(t))
	if err != nil {
		t.Fatalf("Collect returned error: %v", err)
	}
	var buf bytes.Buffer
	WriteConsole(&buf, rep)
	out := buf.String()
	for _, want := range []string{"DATASET", "ACCURACY", "0.8100", "skipped"} {
		if !strings.Contains(out, want) {
			t.Fatalf("console output missing %q:\n%s", want, out)
		}
	}

	buf.Reset()
	WriteConsole(&buf, Report{Root: "empty"})
	if !strings.Contains(buf.String(), "No records found under empty") {
		t.Fatalf("unexpected empty output: %q", buf.String())
	}
}

func TestWriteHTML(t *testing.T) {
	rep, err := Collect(sampleRoot(t))
	if err != nil {
		t.Fatalf("Collect returned error: %v", err)
	}
	path := filepath.Join(t.TempDir(), "report.html")
	if err := WriteHTML(path, rep); err != nil {
		t.Fatalf("WriteHTML returned error: %v", err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read html: %v", err)
	}
	page := string(raw)
	for _, want := range []string{"<th>accuracy</th>", "<td>0.81</td>", "Skipped records", `"dataset":"rte"`} {
		if !strings.Contains(page, want) {
			t.Fatalf("html missing %q", want)
		}
	}
}
