// internal/cli/run.go
package mergeval

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/charmbracelet/lipgloss"
	"github.com/mwiater/mergeval/internal/appconfig"
	"github.com/mwiater/mergeval/internal/backendfactory"
	"github.com/mwiater/mergeval/internal/backends"
	"github.com/mwiater/mergeval/internal/logging"
	"github.com/mwiater/mergeval/internal/runner"
	"github.com/spf13/cobra"
)

var (
	newBackend  = backendfactory.NewBackend
	runPipeline = runner.Run

	summaryStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("63")).Padding(0, 1)
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))
	labelStyle   = lipgloss.NewStyle().Faint(true)
	metricStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("46"))
)

// runCmd implements 'run', which merges the dataset's model list, saves the
// weights, evaluates the merged model and writes record.json.
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Merge, save, evaluate and record one experiment",
	Long:  `The 'run' command merges the configured dataset's fine-tuned checkpoints through the configured backend, saves the merged weights under the artifacts directory and writes record.json next to them.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := GetConfig()
		if cfg == nil {
			return errors.New("configuration is not initialized")
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runExperiment(ctx, cmd.OutOrStdout(), *cfg)
	},
}

func runExperiment(ctx context.Context, w io.Writer, cfg appconfig.Config) error {
	logging.LogEvent("Starting %s merge for %s/%s", cfg.Method, cfg.Dataset, cfg.Split)

	be, err := newBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := be.Close(); err != nil {
			logging.LogEvent("Backend close: %v", err)
		}
	}()

	out, err := runPipeline(ctx, cfg, be)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			logging.LogEvent("Run interrupted")
		}
		return err
	}

	if cfg.JSONMode {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(out.Record.Flatten())
	}
	fmt.Fprintln(w, renderSummary(out, be))
	return nil
}

func renderSummary(out runner.Outcome, be backends.Backend) string {
	rec := out.Record
	lines := []string{
		titleStyle.Render("Merge complete"),
		row("Method", rec.Method),
		row("Dataset", fmt.Sprintf("%s/%s", rec.Dataset, rec.Split)),
		row("Backend", be.Name()),
		row("Models", fmt.Sprintf("%d (base %s)", len(out.Models), out.Models.Base())),
		row("Directory", rec.Directory),
		row("Time", fmt.Sprintf("%.2fs", rec.Time)),
	}
	names := make([]string, 0, len(rec.Metrics))
	for name := range rec.Metrics {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		lines = append(lines, labelStyle.Render(fmt.Sprintf("%-10s", name))+" "+metricStyle.Render(fmt.Sprintf("%.4f", rec.Metrics[name])))
	}
	lines = append(lines, row("Record", out.RecordPath), row("Digest", out.Manifest.Digest))
	if out.UsedFallback {
		lines = append(lines, row("Note", "merged the fallback dataset's model list"))
	}
	if len(out.Collisions) > 0 {
		lines = append(lines, row("Overwrote", strings.Join(out.Collisions, ", ")))
	}
	return summaryStyle.Render(strings.Join(lines, "\n"))
}

func row(label, value string) string {
	return labelStyle.Render(fmt.Sprintf("%-10s", label)) + " " + value
}

func init() {
	rootCmd.AddCommand(runCmd)
}
