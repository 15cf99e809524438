// servers/mergehost/main.go

// Command mergehost exposes a merge worker over HTTP so mergeval can run with
// backend.type=remote. It must share the artifacts filesystem with its clients.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/mwiater/mergeval/internal/appconfig"
	"github.com/mwiater/mergeval/internal/backends/worker"
	"go.yaml.in/yaml/v3"
)

// Config is the mergehost.yml layout.
type Config struct {
	Host           string   `yaml:"host"`
	Port           int      `yaml:"port"`
	Command        string   `yaml:"command"`
	Args           []string `yaml:"args"`
	ArtifactsRoot  string   `yaml:"artifacts_root"`
	TimeoutSeconds int      `yaml:"timeout"`
}

var configPath = filepath.Join("servers", "mergehost", "mergehost.yml")

func main() {
	cfg, err := loadConfig(configPath)
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	be, err := worker.New(ctx, cfg.workerConfig())
	if err != nil {
		log.Fatalf("worker error: %v", err)
	}
	defer be.Close()

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:           NewServer(cfg, be).Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Printf("mergehost config: host=%s port=%d command=%s artifacts_root=%s", cfg.Host, cfg.Port, cfg.Command, cfg.ArtifactsRoot)
	log.Printf("mergehost timeout: %ds", cfg.TimeoutSeconds)
	log.Printf("listening on %s (GOOS=%s)", srv.Addr, runtime.GOOS)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal(err)
	}
}

func loadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	if strings.TrimSpace(cfg.Command) == "" {
		return nil, fmt.Errorf("command is required")
	}
	if strings.TrimSpace(cfg.ArtifactsRoot) == "" {
		cfg.ArtifactsRoot = appconfig.DefaultArtifactsDir
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = 8090
	}
	if cfg.TimeoutSeconds <= 0 {
		cfg.TimeoutSeconds = 3600
	}
	return &cfg, nil
}

func (c *Config) workerConfig() appconfig.Config {
	return appconfig.Config{
		Backend: appconfig.BackendConfig{Type: "worker", Command: c.Command, Args: c.Args},
		Timeout: c.TimeoutSeconds,
	}
}
