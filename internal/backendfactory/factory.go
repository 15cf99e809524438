// internal/backendfactory/factory.go
package backendfactory

import (
	"context"
	"fmt"
	"strings"

	"github.com/mwiater/mergeval/internal/appconfig"
	"github.com/mwiater/mergeval/internal/backends"
	"github.com/mwiater/mergeval/internal/backends/remote"
	"github.com/mwiater/mergeval/internal/backends/worker"
	"github.com/mwiater/mergeval/internal/logging"
)

var (
	newWorker = func(ctx context.Context, cfg appconfig.Config) (backends.Backend, error) { return worker.New(ctx, cfg) }
	newRemote = func(ctx context.Context, cfg appconfig.Config) (backends.Backend, error) { return remote.New(ctx, cfg) }
)

// NewBackend selects and starts the merge backend named by backend.type.
func NewBackend(ctx context.Context, cfg appconfig.Config) (backends.Backend, error) {
	kind, err := backendType(cfg)
	if err != nil {
		return nil, err
	}

	var backend backends.Backend
	switch kind {
	case "remote":
		backend, err = newRemote(ctx, cfg)
	default:
		backend, err = newWorker(ctx, cfg)
	}
	if err != nil {
		logging.LogEvent("%s backend unavailable: %v", kind, err)
		return nil, err
	}
	logging.LogEvent("Backend ready: %s", backend.Name())
	return backend, nil
}

// backendType normalizes backend.type, defaulting to the worker transport.
func backendType(cfg appconfig.Config) (string, error) {
	switch kind := strings.ToLower(strings.TrimSpace(cfg.Backend.Type)); kind {
	case "", "worker", "process":
		return "worker", nil
	case "remote", "http":
		return "remote", nil
	default:
		return "", fmt.Errorf("unsupported backend type %q (expected worker or remote)", cfg.Backend.Type)
	}
}
