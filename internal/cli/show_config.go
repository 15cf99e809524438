// internal/cli/show_config.go
package mergeval

import (
	"fmt"
	"io"

	"github.com/k0kubun/pp"
	"github.com/mwiater/mergeval/internal/appconfig"
	"github.com/spf13/cobra"
)

// showCmd represents the 'show' command group for displaying resources.
var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Group commands for displaying resources",
	Long:  `The 'show' command groups subcommands that display resources or information related to mergeval.`,
}

// showConfigCmd implements the 'show config' command, which displays the current configuration settings.
var showConfigCmd = &cobra.Command{
	Use:   "config",
	Short: "Show config settings",
	Long:  `Show config settings ensuring that the JSON configs are loaded properly and overriden by flags accordingly.`,
	Run: func(cmd *cobra.Command, args []string) {
		showConfig(cmd.OutOrStdout(), GetConfig())
	},
}

func showConfig(w io.Writer, cfg *appconfig.Config) {
	appconfig.ShowConfig(w, cfg)
	if cfg != nil && cfg.Debug {
		fmt.Fprintln(w)
		_, _ = pp.Fprintln(w, cfg)
	}
}

func init() {
	rootCmd.AddCommand(showCmd)
	showCmd.AddCommand(showConfigCmd)
}
