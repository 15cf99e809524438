// Package worker drives an external merge worker process over stdio. Frames
// are JSON-RPC 2.0 messages prefixed with a Content-Length header.
package worker

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/mwiater/mergeval/internal/appconfig"
	"github.com/mwiater/mergeval/internal/backends"
	"github.com/mwiater/mergeval/internal/logging"
)

var _ backends.Backend = (*Backend)(nil)

// Backend is a backends.Backend backed by a child process.
type Backend struct {
	cmd     *exec.Cmd
	stdin   io.Closer
	reader  *bufio.Reader
	writer  *bufio.Writer
	timeout time.Duration
	label   string

	rpcMu sync.Mutex
	seq   int64

	stateMu sync.Mutex
	broken  error
}

type initializeResult struct {
	Name    string   `json:"name"`
	Version string   `json:"version"`
	Methods []string `json:"methods"`
}

type pipelineRef struct {
	ID string `json:"id"`
}

type saveParams struct {
	ID        string `json:"id"`
	Directory string `json:"directory"`
}

type evaluateParams struct {
	ID string `json:"id"`
	backends.EvalRequest
}

// New starts the configured worker command and performs the initialize handshake.
func New(ctx context.Context, cfg appconfig.Config) (*Backend, error) {
	command := strings.TrimSpace(cfg.Backend.Command)
	if command == "" {
		return nil, errors.New("worker backend requires backend.command")
	}
	binary, err := exec.LookPath(command)
	if err != nil {
		logging.LogEvent("Worker start aborted: command %q not found", command)
		return nil, fmt.Errorf("worker command %q not found: %w", command, err)
	}

	cmd := exec.Command(binary, cfg.Backend.Args...)
	cmd.Env = os.Environ()
	cmd.Stderr = os.Stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("worker stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("worker stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		logging.LogEvent("Worker failed to start: %v", err)
		return nil, fmt.Errorf("start worker: %w", err)
	}

	b := newBackend(stdout, stdin, stdin, cfg.RequestTimeout())
	b.cmd = cmd
	b.label = "worker:" + command

	initCtx, cancel := context.WithTimeout(ctx, cfg.InitTimeoutDuration())
	defer cancel()

	if err := b.initialize(initCtx); err != nil {
		logging.LogEvent("Worker initialization failed: %v", err)
		_ = b.Close()
		return nil, err
	}
	logging.LogEvent("Worker started: command=%s pid=%d", binary, cmd.Process.Pid)
	return b, nil
}

// newBackend wires a Backend over an existing byte stream.
func newBackend(r io.Reader, w io.Writer, closer io.Closer, timeout time.Duration) *Backend {
	return &Backend{
		stdin:   closer,
		reader:  bufio.NewReader(r),
		writer:  bufio.NewWriter(w),
		timeout: timeout,
		label:   "worker",
	}
}

func (b *Backend) initialize(ctx context.Context) error {
	params := map[string]any{
		"clientInfo": map[string]any{
			"name":    "mergeval",
			"version": "dev",
		},
	}
	var info initializeResult
	if err := b.rpcCall(ctx, "initialize", params, &info); err != nil {
		return fmt.Errorf("worker initialize: %w", err)
	}
	if info.Name != "" {
		logging.LogEvent("Worker ready: %s %s (%d methods)", info.Name, info.Version, len(info.Methods))
	}
	return nil
}

// Name identifies the worker in logs.
func (b *Backend) Name() string { return b.label }

// Load constructs an unmerged pipeline in the worker.
func (b *Backend) Load(ctx context.Context, spec backends.PipelineSpec) (backends.Pipeline, error) {
	var p backends.Pipeline
	if err := b.rpcCall(ctx, "pipeline/load", spec, &p); err != nil {
		return backends.Pipeline{}, fmt.Errorf("load %s: %w", spec.Model, err)
	}
	if p.ID == "" {
		return backends.Pipeline{}, fmt.Errorf("load %s: worker returned no pipeline id", spec.Model)
	}
	return p, nil
}

// Merge asks the worker to merge the requested models.
func (b *Backend) Merge(ctx context.Context, req backends.MergeRequest) (backends.Pipeline, error) {
	if err := req.Validate(); err != nil {
		return backends.Pipeline{}, err
	}
	var p backends.Pipeline
	if err := b.rpcCall(ctx, "pipeline/merge", req, &p); err != nil {
		return backends.Pipeline{}, fmt.Errorf("merge: %w", err)
	}
	if p.ID == "" {
		return backends.Pipeline{}, errors.New("merge: worker returned no pipeline id")
	}
	p.Merged = true
	return p, nil
}

// Save writes the pipeline's weights into dir.
func (b *Backend) Save(ctx context.Context, p backends.Pipeline, dir string) error {
	if err := b.rpcCall(ctx, "pipeline/save", saveParams{ID: p.ID, Directory: dir}, nil); err != nil {
		return fmt.Errorf("save %s: %w", p.ID, err)
	}
	return nil
}

// Evaluate runs the pipeline against a benchmark split.
func (b *Backend) Evaluate(ctx context.Context, p backends.Pipeline, req backends.EvalRequest) (map[string]any, error) {
	var result map[string]any
	if err := b.rpcCall(ctx, "pipeline/evaluate", evaluateParams{ID: p.ID, EvalRequest: req}, &result); err != nil {
		return nil, fmt.Errorf("evaluate %s: %w", p.ID, err)
	}
	return result, nil
}

// Release frees the pipeline in the worker.
func (b *Backend) Release(ctx context.Context, p backends.Pipeline) error {
	if err := b.rpcCall(ctx, "pipeline/release", pipelineRef{ID: p.ID}, nil); err != nil {
		return fmt.Errorf("release %s: %w", p.ID, err)
	}
	return nil
}

// Close asks the worker to shut down and terminates the process.
func (b *Backend) Close() error {
	var firstErr error

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	if err := b.rpcCall(shutdownCtx, "shutdown", nil, nil); err != nil {
		logging.LogEvent("Worker shutdown request failed: %v", err)
	}
	cancel()

	if b.stdin != nil {
		_ = b.stdin.Close()
	}

	if b.cmd != nil && b.cmd.Process != nil {
		done := make(chan error, 1)
		go func() {
			done <- b.cmd.Wait()
		}()
		select {
		case err := <-done:
			if err != nil && firstErr == nil {
				firstErr = err
			}
		case <-time.After(2 * time.Second):
			_ = b.cmd.Process.Kill()
			if err := <-done; err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}

	return firstErr
}
