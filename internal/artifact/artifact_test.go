package artifact

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mwiater/mergeval/internal/backends"
)

type fakeSaver struct {
	calls []string
	err   error
}

func (f *fakeSaver) Save(_ context.Context, p backends.Pipeline, dir string) error {
	f.calls = append(f.calls, p.ID+"@"+dir)
	if f.err != nil {
		return f.err
	}
	return os.WriteFile(filepath.Join(dir, "model.safetensors"), []byte("weights:"+p.ID), 0o644)
}

func TestDir(t *testing.T) {
	cases := []struct {
		root, method, dataset, split string
		want                         string
	}{
		{"./artifacts", "task", "rte", "validation", "./artifacts/merged_weights_task_rte_validation"},
		{"./artifacts/", "ties", "sst2", "test", "./artifacts/merged_weights_ties_sst2_test"},
		{"", "task", "rte", "validation", "./merged_weights_task_rte_validation"},
		{"/data/runs", "task", "rte", "train", "/data/runs/merged_weights_task_rte_train"},
	}
	for _, tc := range cases {
		if got := Dir(tc.root, tc.method, tc.dataset, tc.split); got != tc.want {
			t.Fatalf("Dir(%q,%q,%q,%q) = %q, want %q", tc.root, tc.method, tc.dataset, tc.split, got, tc.want)
		}
	}
}

func TestSaveCreatesDirectoryAndCallsBackendOnce(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "merged_weights_task_rte_validation")
	saver := &fakeSaver{}

	if err := Save(context.Background(), saver, backends.Pipeline{ID: "merged-1"}, dir); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if len(saver.calls) != 1 || saver.calls[0] != "merged-1@"+dir {
		t.Fatalf("unexpected save calls: %v", saver.calls)
	}
	if _, err := os.Stat(filepath.Join(dir, "model.safetensors")); err != nil {
		t.Fatalf("expected weights file: %v", err)
	}
}

func TestSaveWrapsBackendError(t *testing.T) {
	saver := &fakeSaver{err: &backends.RemoteError{Code: "io", Message: "disk full"}}
	err := Save(context.Background(), saver, backends.Pipeline{ID: "p"}, t.TempDir())
	if !errors.Is(err, backends.ErrIO) {
		t.Fatalf("expected ErrIO, got %v", err)
	}
}

func TestSaveFailsWhenDirectoryCannotBeCreated(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	saver := &fakeSaver{}
	err := Save(context.Background(), saver, backends.Pipeline{ID: "p"}, filepath.Join(blocker, "sub"))
	if !errors.Is(err, backends.ErrIO) {
		t.Fatalf("expected ErrIO, got %v", err)
	}
	if len(saver.calls) != 0 {
		t.Fatalf("backend must not be called when mkdir fails: %v", saver.calls)
	}
}

func TestDigestTreeIgnoresOwnOutputs(t *testing.T) {
	dir := t.TempDir()
	write := func(name, body string) {
		t.Helper()
		path := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	write("model.safetensors", "weights")
	write("config.json", "{}")
	write("tokenizer/vocab.txt", "[CLS]")

	before, files, err := DigestTree(dir)
	if err != nil {
		t.Fatalf("DigestTree: %v", err)
	}
	if len(files) != 3 || files[0].Path != "config.json" || files[2].Path != "tokenizer/vocab.txt" {
		t.Fatalf("unexpected entries: %+v", files)
	}
	if !strings.HasPrefix(before, "sha256:") {
		t.Fatalf("unexpected digest format %q", before)
	}

	write("record.json", `{"method":"task"}`)
	write(ManifestFile, `{}`)
	after, _, err := DigestTree(dir)
	if err != nil {
		t.Fatalf("DigestTree: %v", err)
	}
	if before != after {
		t.Fatalf("record/manifest must not change the digest: %s != %s", before, after)
	}

	write("model.safetensors", "other weights")
	changed, _, _ := DigestTree(dir)
	if changed == before {
		t.Fatal("expected digest to change with weight contents")
	}
}

func TestWriteManifest(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "model.safetensors"), []byte("weights"), 0o644); err != nil {
		t.Fatal(err)
	}

	m := NewManifest(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))
	m.Method, m.Dataset, m.Split = "task", "rte", "validation"
	m.Models = []string{"base", "ft"}
	written, err := WriteManifest(dir, m)
	if err != nil {
		t.Fatalf("WriteManifest: %v", err)
	}
	if written.RunID == "" || written.CreatedAt != "2026-01-02T03:04:05Z" {
		t.Fatalf("unexpected stamp: %+v", written)
	}

	data, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	if err != nil {
		t.Fatalf("read manifest: %v", err)
	}
	var decoded Manifest
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("invalid manifest json: %v", err)
	}
	if decoded.Digest != written.Digest || len(decoded.Files) != 1 || decoded.Files[0].Size != int64(len("weights")) {
		t.Fatalf("unexpected manifest contents: %+v", decoded)
	}
	if decoded.Signs != nil {
		t.Fatalf("expected null signs, got %v", decoded.Signs)
	}
}
