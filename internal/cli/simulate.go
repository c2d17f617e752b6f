package cli

import (
	"errors"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

var (
	simulateSell string
	simulateBuy  string
)

var simulateCmd = &cobra.Command{
	Use:   "simulate-alert",
	Short: "Send an alert for the given rates without touching stored state",
	RunE: func(cmd *cobra.Command, args []string) error {
		sell, err := decimal.NewFromString(simulateSell)
		if err != nil {
			return errors.New("--sell must be a decimal number")
		}
		buy, err := decimal.NewFromString(simulateBuy)
		if err != nil {
			return errors.New("--buy must be a decimal number")
		}
		if !sell.IsPositive() || !buy.IsPositive() {
			return errors.New("--sell and --buy must be greater than 0")
		}
		return getApp().SimulateAlert(cmd.Context(), sell, buy)
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simulateSell, "sell", "", "Sell rate")
	simulateCmd.Flags().StringVar(&simulateBuy, "buy", "", "Buy rate")
}
