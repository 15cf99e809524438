// Package remote talks to a merge service over HTTP. The service must share
// the artifacts filesystem with mergeval because save requests carry local
// directory paths.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mwiater/mergeval/internal/appconfig"
	"github.com/mwiater/mergeval/internal/backends"
	"github.com/mwiater/mergeval/internal/logging"
)

var _ backends.Backend = (*Backend)(nil)

// Backend is a backends.Backend backed by an HTTP merge service.
type Backend struct {
	URL     string
	client  *http.Client
	timeout time.Duration
}

type errorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// New validates the service URL and checks /healthz before returning.
func New(ctx context.Context, cfg appconfig.Config) (*Backend, error) {
	raw := strings.TrimRight(strings.TrimSpace(cfg.Backend.URL), "/")
	if raw == "" {
		return nil, errors.New("remote backend requires backend.url")
	}
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("remote backend url %q is not absolute", raw)
	}

	b := &Backend{URL: raw, client: &http.Client{}, timeout: cfg.RequestTimeout()}

	healthCtx, cancel := context.WithTimeout(ctx, cfg.InitTimeoutDuration())
	defer cancel()
	if err := b.health(healthCtx); err != nil {
		logging.LogEvent("Remote backend %s unavailable: %v", raw, err)
		return nil, err
	}
	logging.LogEvent("Remote backend ready: %s", raw)
	return b, nil
}

// Name identifies the service in logs.
func (b *Backend) Name() string { return "remote:" + b.URL }

func (b *Backend) httpClient() *http.Client {
	if b.client != nil {
		return b.client
	}
	return http.DefaultClient
}

func (b *Backend) health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.URL+"/healthz", nil)
	if err != nil {
		return err
	}
	resp, err := b.httpClient().Do(req)
	if err != nil {
		return fmt.Errorf("health check: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check: unexpected status %s", resp.Status)
	}
	return nil
}

// doJSON sends in as a JSON body (when non-nil) and decodes the response into out.
func (b *Backend) doJSON(ctx context.Context, method, path string, in, out any) error {
	if b.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}

	var body io.Reader
	var payload []byte
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		payload = data
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, b.URL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	logging.LogRequest("MERGEVAL->REMOTE", b.Name(), method+" "+path, payload)

	resp, err := b.httpClient().Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	logging.LogRequest("REMOTE->MERGEVAL", b.Name(), method+" "+path, respBody)

	if resp.StatusCode >= http.StatusBadRequest {
		var envelope errorEnvelope
		if json.Unmarshal(respBody, &envelope) == nil && envelope.Error.Message != "" {
			return &backends.RemoteError{Code: envelope.Error.Code, Message: envelope.Error.Message}
		}
		return &backends.RemoteError{Message: fmt.Sprintf("unexpected status %s: %s", resp.Status, strings.TrimSpace(string(respBody)))}
	}

	if out == nil || len(bytes.TrimSpace(respBody)) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func pipelinePath(id, suffix string) string {
	return "/v1/pipelines/" + url.PathEscape(id) + suffix
}

// Load constructs an unmerged pipeline on the service.
func (b *Backend) Load(ctx context.Context, spec backends.PipelineSpec) (backends.Pipeline, error) {
	var p backends.Pipeline
	if err := b.doJSON(ctx, http.MethodPost, "/v1/pipelines", spec, &p); err != nil {
		return backends.Pipeline{}, fmt.Errorf("load %s: %w", spec.Model, err)
	}
	if p.ID == "" {
		return backends.Pipeline{}, fmt.Errorf("load %s: service returned no pipeline id", spec.Model)
	}
	return p, nil
}

// Merge asks the service to merge the requested models.
func (b *Backend) Merge(ctx context.Context, req backends.MergeRequest) (backends.Pipeline, error) {
	if err := req.Validate(); err != nil {
		return backends.Pipeline{}, err
	}
	var p backends.Pipeline
	if err := b.doJSON(ctx, http.MethodPost, "/v1/merges", req, &p); err != nil {
		return backends.Pipeline{}, fmt.Errorf("merge: %w", err)
	}
	if p.ID == "" {
		return backends.Pipeline{}, errors.New("merge: service returned no pipeline id")
	}
	p.Merged = true
	return p, nil
}

// Save writes the pipeline's weights into dir.
func (b *Backend) Save(ctx context.Context, p backends.Pipeline, dir string) error {
	if err := b.doJSON(ctx, http.MethodPost, pipelinePath(p.ID, "/save"), map[string]string{"directory": dir}, nil); err != nil {
		return fmt.Errorf("save %s: %w", p.ID, err)
	}
	return nil
}

// Evaluate runs the pipeline against a benchmark split.
func (b *Backend) Evaluate(ctx context.Context, p backends.Pipeline, req backends.EvalRequest) (map[string]any, error) {
	var result map[string]any
	if err := b.doJSON(ctx, http.MethodPost, pipelinePath(p.ID, "/evaluate"), req, &result); err != nil {
		return nil, fmt.Errorf("evaluate %s: %w", p.ID, err)
	}
	return result, nil
}

// Release deletes the pipeline on the service.
func (b *Backend) Release(ctx context.Context, p backends.Pipeline) error {
	if err := b.doJSON(ctx, http.MethodDelete, pipelinePath(p.ID, ""), nil, nil); err != nil {
		return fmt.Errorf("release %s: %w", p.ID, err)
	}
	return nil
}

// Close drops idle connections.
func (b *Backend) Close() error {
	b.httpClient().CloseIdleConnections()
	return nil
}
