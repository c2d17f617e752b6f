package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"spread-alerts/internal/app"
)

var (
	showLimit int
	showAll   bool
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Display the trend window and the last alerted spread",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := app.ShowOptions{Limit: showLimit}
		if showAll {
			opts.Limit = 0
		} else if showLimit <= 0 {
			return fmt.Errorf("--limit must be greater than zero")
		}

		return getApp().Show(cmd.Context(), opts)
	},
}

func init() {
	showCmd.Flags().IntVar(&showLimit, "limit", 20, "Number of recent observations and alerts to display")
	showCmd.Flags().BoolVar(&showAll, "all", false, "Display every observation in the window")
}
