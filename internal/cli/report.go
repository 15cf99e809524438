// internal/cli/report.go
package mergeval

import (
	"fmt"
	"io"

	"github.com/mwiater/mergeval/internal/appconfig"
	"github.com/mwiater/mergeval/internal/report"
	"github.com/spf13/cobra"
)

var (
	reportMarkdownPath string
	reportHTMLPath     string
)

// reportCmd implements 'report [root]', which tabulates every record.json
// found one level below root (default: the artifacts directory).
var reportCmd = &cobra.Command{
	Use:   "report [root]",
	Short: "Summarize the records of previous runs",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := GetConfig()
		if cfg == nil {
			cfg = &appconfig.Config{}
		}
		root := cfg.ArtifactsRoot()
		if len(args) == 1 {
			root = args[0]
		}
		return writeReport(cmd.OutOrStdout(), root, reportMarkdownPath, reportHTMLPath)
	},
}

func writeReport(w io.Writer, root, markdownPath, htmlPath string) error {
	rep, err := report.Collect(root)
	if err != nil {
		return err
	}
	report.WriteConsole(w, rep)

	if markdownPath != "" {
		if err := report.WriteMarkdown(markdownPath, rep); err != nil {
			return fmt.Errorf("write markdown report: %w", err)
		}
		fmt.Fprintf(w, "Markdown report written to %s\n", markdownPath)
	}
	if htmlPath != "" {
		if err := report.WriteHTML(htmlPath, rep); err != nil {
			return fmt.Errorf("write html report: %w", err)
		}
		fmt.Fprintf(w, "HTML report written to %s\n", htmlPath)
	}
	return nil
}

func init() {
	reportCmd.Flags().StringVar(&reportMarkdownPath, "markdown", "", "also write the report as Markdown to this path")
	reportCmd.Flags().StringVar(&reportHTMLPath, "html", "", "also write the report as HTML to this path")
	rootCmd.AddCommand(reportCmd)
}
