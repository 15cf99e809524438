package appconfig

import (
	"fmt"
	"io"
)

// ShowConfig prints the current configuration summary.
func ShowConfig(out io.Writer, cfg *Config) {
	if cfg == nil {
		fmt.Fprintln(out, "configuration is not initialized")
		return
	}
	if cfg.ConfigPath == "" {
		fmt.Fprintln(out, "No config file loaded (using defaults).")
	} else {
		fmt.Fprintf(out, "Config file: %s\n\n", cfg.ConfigPath)
	}

	fmt.Fprintln(out, "Current configuration:")
	fmt.Fprintf(out, "  Method:          %s\n", cfg.Method)
	fmt.Fprintf(out, "  Dataset:         %s\n", cfg.Dataset)
	fmt.Fprintf(out, "  Split:           %s\n", cfg.Split)
	if cfg.Subset != "" {
		fmt.Fprintf(out, "  Subset:          %s\n", cfg.Subset)
	}
	fmt.Fprintf(out, "  Task:            %s\n", cfg.Task)
	fmt.Fprintf(out, "  Base Index:      %d\n", cfg.BaseIndex)
	if signs := cfg.MergeSigns(); signs != nil {
		fmt.Fprintf(out, "  Signs:           %v\n", signs)
	} else {
		fmt.Fprintln(out, "  Signs:           (backend default)")
	}
	fmt.Fprintf(out, "  Device:          %s\n", cfg.Device)
	fmt.Fprintf(out, "  Framework:       %s\n", cfg.Framework)
	fmt.Fprintf(out, "  Artifacts Root:  %s\n", cfg.ArtifactsRoot())
	if cfg.CatalogFile != "" {
		fmt.Fprintf(out, "  Catalog File:    %s\n", cfg.CatalogFile)
	}
	if cfg.FallbackDataset != "" {
		fmt.Fprintf(out, "  Fallback:        %s\n", cfg.FallbackDataset)
	}
	fmt.Fprintf(out, "  Backend:         %s\n", cfg.Backend.Type)
	switch cfg.Backend.Type {
	case "remote", "http":
		fmt.Fprintf(out, "  Backend URL:     %s\n", cfg.Backend.URL)
	default:
		fmt.Fprintf(out, "  Backend Command: %s %v\n", cfg.Backend.Command, cfg.Backend.Args)
	}
	fmt.Fprintf(out, "  Request Timeout: %s\n", cfg.RequestTimeout())
	fmt.Fprintf(out, "  Init Timeout:    %s\n", cfg.InitTimeoutDuration())
	fmt.Fprintf(out, "  Log File:        %s\n", cfg.LogFilePath())
	fmt.Fprintf(out, "  Debug:           %v\n", cfg.Debug)
	fmt.Fprintf(out, "  JSON Mode:       %v\n", cfg.JSONMode)
}
