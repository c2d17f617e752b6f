package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"spread-alerts/internal/app"
)

var (
	importCSV    string
	importFrom   string
	importTo     string
	importDryRun bool
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import a history CSV into the configured history backend",
	RunE: func(cmd *cobra.Command, args []string) error {
		if importCSV == "" {
			return fmt.Errorf("--csv must be provided")
		}

		opts := app.ImportOptions{
			Source: importCSV,
			DryRun: importDryRun,
		}

		var err error
		if importFrom != "" {
			if opts.From, err = parseTimeFlag("from", importFrom); err != nil {
				return err
			}
		}
		if importTo != "" {
			if opts.To, err = parseTimeFlag("to", importTo); err != nil {
				return err
			}
		}

		result, err := getApp().Import(cmd.Context(), opts)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "read %d, appended %d, skipped %d\n", result.Read, result.Appended, result.Skipped)
		return nil
	},
}

func init() {
	importCmd.Flags().StringVar(&importCSV, "csv", "", "History CSV to import (timestamp,sell,buy)")
	importCmd.Flags().StringVar(&importFrom, "from", "", "Start time, inclusive (RFC3339 or YYYY-MM-DD)")
	importCmd.Flags().StringVar(&importTo, "to", "", "End time, exclusive (RFC3339 or YYYY-MM-DD)")
	importCmd.Flags().BoolVar(&importDryRun, "dry-run", false, "Report what would be imported without writing")
}
