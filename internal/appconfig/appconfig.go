// internal/appconfig/appconfig.go
// Package appconfig manages loading and interpreting application configuration.
package appconfig

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

const (
	// DefaultConfigPath is the default path to the application's configuration file.
	DefaultConfigPath = "config/config.json"
	// DefaultArtifactsDir is the root under which merged weights directories are created.
	DefaultArtifactsDir = "./artifacts"
	// defaultMethod is the merge strategy requested from the backend when none is configured.
	defaultMethod = "task"
	// defaultDataset is the benchmark dataset evaluated when none is configured.
	defaultDataset = "rte"
	// defaultSplit is the benchmark partition evaluated when none is configured.
	defaultSplit = "validation"
	// defaultTask is the pipeline task type used for loading and merging.
	defaultTask = "text-classification"
	// defaultDevice and defaultFramework mirror the pipeline constructor defaults.
	defaultDevice    = "cpu"
	defaultFramework = "pt"
	// defaultBackendType selects the stdio worker transport.
	defaultBackendType = "worker"
	// defaultRequestTimeout bounds a single backend call; merges of six checkpoints are slow.
	defaultRequestTimeout = 3600 * time.Second
	// defaultInitTimeout bounds the worker handshake or remote health check.
	defaultInitTimeout = 30 * time.Second
)

// Config represents the top-level application configuration. It is built once
// at process start and passed by value into the pipeline.
type Config struct {
	Method          string        `json:"method"`
	Dataset         string        `json:"dataset"`
	Split           string        `json:"split"`
	Subset          string        `json:"subset,omitempty"`
	Task            string        `json:"task"`
	BaseIndex       int           `json:"baseIndex"`
	Signs           []float64     `json:"signs,omitempty"`
	Device          string        `json:"device"`
	Framework       string        `json:"framework"`
	ArtifactsDir    string        `json:"artifactsDir,omitempty"`
	CatalogFile     string        `json:"catalogFile,omitempty"`
	FallbackDataset string        `json:"fallbackDataset,omitempty"`
	Backend         BackendConfig `json:"backend"`
	Timeout         int           `json:"timeout,omitempty"`
	InitTimeout     int           `json:"initTimeout,omitempty"`
	LogFile         string        `json:"logFile,omitempty"`
	Debug           bool          `json:"debug"`
	JSONMode        bool          `json:"jsonMode"`
	ConfigPath      string        `json:"-"`
}

// BackendConfig describes how mergeval reaches the external merge and evaluation runtime.
type BackendConfig struct {
	// Type is either "worker" (spawned process over stdio) or "remote" (HTTP service).
	Type    string   `json:"type"`
	Command string   `json:"command,omitempty"`
	Args    []string `json:"args,omitempty"`
	URL     string   `json:"url,omitempty"`
}

// WithDefaults returns a copy of the configuration with every unset field filled in.
func (c Config) WithDefaults() Config {
	out := c
	out.Method = orDefault(c.Method, defaultMethod)
	out.Dataset = orDefault(c.Dataset, defaultDataset)
	out.Split = orDefault(c.Split, defaultSplit)
	out.Task = orDefault(c.Task, defaultTask)
	out.Device = orDefault(c.Device, defaultDevice)
	out.Framework = orDefault(c.Framework, defaultFramework)
	out.ArtifactsDir = orDefault(c.ArtifactsDir, DefaultArtifactsDir)
	out.Backend.Type = strings.ToLower(orDefault(c.Backend.Type, defaultBackendType))
	if c.Signs != nil {
		out.Signs = append([]float64(nil), c.Signs...)
	}
	if c.Backend.Args != nil {
		out.Backend.Args = append([]string(nil), c.Backend.Args...)
	}
	return out
}

// Validate reports configuration values the pipeline cannot run with.
func (c Config) Validate() error {
	for _, field := range []struct {
		name  string
		value string
	}{
		{"method", c.Method},
		{"dataset", c.Dataset},
		{"split", c.Split},
	} {
		v := strings.TrimSpace(field.value)
		if v == "" {
			return fmt.Errorf("invalid configuration: %s must not be empty", field.name)
		}
		if strings.ContainsAny(v, `/\`) || strings.Contains(v, "..") {
			return fmt.Errorf("invalid configuration: %s %q must not contain path separators", field.name, v)
		}
	}
	if strings.TrimSpace(c.Task) == "" {
		return errors.New("invalid configuration: task must not be empty")
	}
	if c.BaseIndex < 0 {
		return fmt.Errorf("invalid configuration: baseIndex must be >= 0, got %d", c.BaseIndex)
	}
	return nil
}

// MergeSigns returns a copy of the configured sign vector, or nil when default
// sign resolution should be used.
func (c Config) MergeSigns() []float64 {
	if c.Signs == nil {
		return nil
	}
	return append([]float64(nil), c.Signs...)
}

// RequestTimeout returns the timeout for a single backend call, falling back to the default if not specified.
func (c Config) RequestTimeout() time.Duration {
	if c.Timeout <= 0 {
		return defaultRequestTimeout
	}
	return time.Duration(c.Timeout) * time.Second
}

// InitTimeoutDuration returns the timeout for backend startup.
func (c Config) InitTimeoutDuration() time.Duration {
	if c.InitTimeout <= 0 {
		return defaultInitTimeout
	}
	return time.Duration(c.InitTimeout) * time.Second
}

// LogFilePath returns the path to the application log file, applying a default if not set.
func (c Config) LogFilePath() string {
	if path := c.LogFile; strings.TrimSpace(path) != "" {
		return path
	}
	return "mergeval.log"
}

// ArtifactsRoot returns the directory under which merged weights are written.
func (c Config) ArtifactsRoot() string {
	return orDefault(c.ArtifactsDir, DefaultArtifactsDir)
}

// Load reads the application configuration from the specified path and applies defaults.
func Load(path string) (Config, error) {
	if path == "" {
		path = DefaultConfigPath
	}

	config, err := loadFromPath(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("no configuration file found at %q", path)
		}
		return Config{}, fmt.Errorf("could not read config file %q: %w", path, err)
	}

	config = config.WithDefaults()
	config.ConfigPath = path
	if err := config.Validate(); err != nil {
		return Config{}, err
	}
	return config, nil
}

// loadFromPath is a helper function that loads the configuration from a specific file path.
func loadFromPath(path string) (Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return Config{}, err
	}
	defer file.Close()

	var config Config
	if err := json.NewDecoder(file).Decode(&config); err != nil {
		return Config{}, err
	}
	return config, nil
}

func orDefault(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return strings.TrimSpace(value)
}
