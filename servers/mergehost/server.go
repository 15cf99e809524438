package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/mwiater/mergeval/internal/backends"
)

type errorBody struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

type errorResp struct {
	Error errorBody `json:"error"`
}

// Server serializes HTTP requests onto a single backend.
type Server struct {
	mu      sync.Mutex
	cfg     *Config
	backend backends.Backend
}

// brokenReporter is implemented by backends whose stream can become unusable.
type brokenReporter interface {
	Broken() error
}

// NewServer wraps be.
func NewServer(cfg *Config, be backends.Backend) *Server {
	return &Server{cfg: cfg, backend: be}
}

// Routes returns the HTTP API consumed by mergeval's remote backend.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("POST /v1/pipelines", s.handleLoad)
	mux.HandleFunc("POST /v1/merges", s.handleMerge)
	mux.HandleFunc("POST /v1/pipelines/{id}/save", s.handleSave)
	mux.HandleFunc("POST /v1/pipelines/{id}/evaluate", s.handleEvaluate)
	mux.HandleFunc("DELETE /v1/pipelines/{id}", s.handleRelease)
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	if br, ok := s.backend.(brokenReporter); ok {
		if err := br.Broken(); err != nil {
			http.Error(w, "worker unusable: "+err.Error(), http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// callContext detaches backend calls from the client connection. A worker
// call cancelled halfway leaves its stream unusable for every later request.
func (s *Server) callContext(r *http.Request) (context.Context, context.CancelFunc) {
	ctx := context.WithoutCancel(r.Context())
	if s.cfg != nil && s.cfg.TimeoutSeconds > 0 {
		return context.WithTimeout(ctx, time.Duration(s.cfg.TimeoutSeconds)*time.Second)
	}
	return context.WithCancel(ctx)
}

func (s *Server) handleLoad(w http.ResponseWriter, r *http.Request) {
	var spec backends.PipelineSpec
	if err := decodeJSON(w, r, &spec, 1<<20); err != nil {
		writeError(w, http.StatusBadRequest, "", "invalid JSON: "+err.Error())
		return
	}
	if strings.TrimSpace(spec.Model) == "" {
		writeError(w, http.StatusBadRequest, "", "model is required")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	ctx, cancel := s.callContext(r)
	defer cancel()
	log.Printf("load request from %s: model=%s", r.RemoteAddr, spec.Model)
	p, err := s.backend.Load(ctx, spec)
	if err != nil {
		writeBackendError(w, "load", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleMerge(w http.ResponseWriter, r *http.Request) {
	var req backends.MergeRequest
	if err := decodeJSON(w, r, &req, 1<<20); err != nil {
		writeError(w, http.StatusBadRequest, "", "invalid JSON: "+err.Error())
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, backends.ErrorCode(err), err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	ctx, cancel := s.callContext(r)
	defer cancel()
	log.Printf("merge request from %s: method=%s models=%d", r.RemoteAddr, req.Method, len(req.Models))
	p, err := s.backend.Merge(ctx, req)
	if err != nil {
		writeBackendError(w, "merge", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Directory string `json:"directory"`
	}
	if err := decodeJSON(w, r, &body, 1<<16); err != nil {
		writeError(w, http.StatusBadRequest, "", "invalid JSON: "+err.Error())
		return
	}
	// Writes are confined to the artifacts root.
	if !s.withinArtifacts(body.Directory) {
		writeError(w, http.StatusBadRequest, backends.CodeIO, "directory outside artifacts root: "+body.Directory)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	ctx, cancel := s.callContext(r)
	defer cancel()
	p := backends.Pipeline{ID: r.PathValue("id")}
	log.Printf("save request from %s: id=%s dir=%s", r.RemoteAddr, p.ID, body.Directory)
	if err := s.backend.Save(ctx, p, body.Directory); err != nil {
		writeBackendError(w, "save", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	var req backends.EvalRequest
	if err := decodeJSON(w, r, &req, 1<<16); err != nil {
		writeError(w, http.StatusBadRequest, "", "invalid JSON: "+err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	ctx, cancel := s.callContext(r)
	defer cancel()
	p := backends.Pipeline{ID: r.PathValue("id")}
	log.Printf("evaluate request from %s: id=%s dataset=%s split=%s", r.RemoteAddr, p.ID, req.Dataset, req.Split)
	result, err := s.backend.Evaluate(ctx, p, req)
	if err != nil {
		writeBackendError(w, "evaluate", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleRelease(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ctx, cancel := s.callContext(r)
	defer cancel()
	p := backends.Pipeline{ID: r.PathValue("id")}
	if err := s.backend.Release(ctx, p); err != nil {
		writeBackendError(w, "release", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) withinArtifacts(dir string) bool {
	if strings.TrimSpace(dir) == "" {
		return false
	}
	root, err := filepath.Abs(s.cfg.ArtifactsRoot)
	if err != nil {
		return false
	}
	target, err := filepath.Abs(dir)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(root, target)
	if err != nil {
		return false
	}
	return rel != "." && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func writeBackendError(w http.ResponseWriter, op string, err error) {
	code := backends.ErrorCode(err)
	log.Printf("%s failed: %v", op, err)
	writeError(w, statusFor(code), code, err.Error())
}

func statusFor(code string) int {
	switch code {
	case backends.CodeModelNotFound:
		return http.StatusNotFound
	case backends.CodeIncompatibleArchitectures:
		return http.StatusUnprocessableEntity
	case backends.CodeMetric:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any, maxBytes int64) error {
	if r.Body == nil {
		return errors.New("empty body")
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	defer r.Body.Close()

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResp{Error: errorBody{Code: code, Message: message}})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
