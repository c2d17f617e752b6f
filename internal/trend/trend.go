// Package trend summarises spreads over a window of observations.
package trend

import (
	"github.com/shopspring/decimal"

	"spread-alerts/internal/storage"
)

// Summary holds spread statistics over a window.
type Summary struct {
	Average decimal.Decimal
	Max     decimal.Decimal
	Min     decimal.Decimal
	Count   int
}

// Summarize computes average, max and min spread. It returns false for an
// empty input, in which case the summary carries no values.
func Summarize(observations []storage.Observation) (Summary, bool) {
	if len(observations) == 0 {
		return Summary{}, false
	}

	first := observations[0].Spread()
	sum := decimal.Zero
	summary := Summary{Max: first, Min: first, Count: len(observations)}
	for _, obs := range observations {
		spread := obs.Spread()
		sum = sum.Add(spread)
		if spread.GreaterThan(summary.Max) {
			summary.Max = spread
		}
		if spread.LessThan(summary.Min) {
			summary.Min = spread
		}
	}
	summary.Average = sum.Div(decimal.NewFromInt(int64(len(observations))))
	return summary, true
}
