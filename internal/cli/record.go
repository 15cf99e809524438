// internal/cli/record.go
package mergeval

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/mwiater/mergeval/internal/record"
	"github.com/spf13/cobra"
)

var (
	validLabel   = color.New(color.FgGreen).SprintFunc()
	invalidLabel = color.New(color.FgRed).SprintFunc()
)

// recordCmd groups commands that inspect record.json files.
var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Inspect record.json files",
}

// recordValidateCmd implements 'record validate', which checks record files
// against the flat record schema.
var recordValidateCmd = &cobra.Command{
	Use:   "validate <path>...",
	Short: "Validate record.json files against the record schema",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return validateRecords(cmd.OutOrStdout(), args)
	},
}

func validateRecords(w io.Writer, paths []string) error {
	failed := 0
	for _, path := range paths {
		if err := record.ValidateFile(path); err != nil {
			failed++
			fmt.Fprintf(w, "%s %s: %v\n", invalidLabel("INVALID"), path, err)
			continue
		}
		fmt.Fprintf(w, "%s %s\n", validLabel("VALID"), path)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d records invalid", failed, len(paths))
	}
	return nil
}

func init() {
	rootCmd.AddCommand(recordCmd)
	recordCmd.AddCommand(recordValidateCmd)
}
