// internal/cli/models.go
package mergeval

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/k0kubun/pp"
	"github.com/mwiater/mergeval/internal/appconfig"
	"github.com/mwiater/mergeval/internal/catalog"
	"github.com/spf13/cobra"
)

// modelsCmd implements 'models [dataset]', which prints the model lists the
// runner would merge.
var modelsCmd = &cobra.Command{
	Use:   "models [dataset]",
	Short: "List the checkpoints merged for each dataset",
	Long:  `The 'models' command prints the model list registered for each dataset (or only the named one), built in or loaded from catalogFile. The first entry is the base model.`,
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := GetConfig()
		if cfg == nil {
			cfg = &appconfig.Config{}
		}
		dataset := ""
		if len(args) == 1 {
			dataset = args[0]
		}
		return listModels(cmd.OutOrStdout(), *cfg, dataset)
	},
}

func listModels(w io.Writer, cfg appconfig.Config, dataset string) error {
	table, err := catalog.LoadTable(cfg.CatalogFile)
	if err != nil {
		return err
	}

	names := table.Names()
	if dataset != "" {
		if _, err := table.Select(dataset); err != nil {
			return err
		}
		names = []string{dataset}
	}

	if cfg.JSONMode {
		selected := make(map[string]catalog.ModelList, len(names))
		for _, name := range names {
			selected[name] = table[name]
		}
		_, err := pp.Fprintln(w, selected)
		return err
	}

	nodeStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("255"))
	baseStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("86"))
	for _, name := range names {
		fmt.Fprintln(w, nodeStyle.Render(fmt.Sprintf("%s:", name)))
		for i, model := range table[name] {
			if i == 0 {
				fmt.Fprintln(w, "  >>> "+baseStyle.Render(model)+" (base)")
				continue
			}
			fmt.Fprintln(w, "  >>> "+model)
		}
		fmt.Fprintln(w)
	}
	return nil
}

func init() {
	rootCmd.AddCommand(modelsCmd)
}
