package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"spread-alerts/internal/trend"
)

const defaultAlertLimit = 20

// Show prints the most recent observations of the trend window, its
// summary and the last alerted spread.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	return a.show(ctx, opts, os.Stdout)
}

func (a *App) show(ctx context.Context, opts ShowOptions, out io.Writer) error {
	st, err := a.openStores(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	precision := a.Config.Tracker.Precision
	window, err := st.history.LoadWindow(ctx, time.Now(), a.Config.Tracker.Window)
	if err != nil {
		return err
	}

	if len(window) == 0 {
		fmt.Fprintln(out, "no observations in window")
	} else {
		recent := window
		if opts.Limit > 0 && len(recent) > opts.Limit {
			recent = recent[len(recent)-opts.Limit:]
		}

		writer := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(writer, "Time (UTC)\tSell\tBuy\tSpread")
		for _, obs := range recent {
			fmt.Fprintf(
				writer,
				"%s\t%s\t%s\t%s\n",
				obs.Timestamp.UTC().Format(time.RFC3339),
				obs.SellRate.StringFixed(precision),
				obs.BuyRate.StringFixed(precision),
				obs.Spread().StringFixed(precision),
			)
		}
		writer.Flush()
	}

	if summary, ok := trend.Summarize(window); ok {
		fmt.Fprintf(out, "\nwindow %s: %d observations, avg %s, max %s, min %s\n",
			a.Config.Tracker.Window,
			summary.Count,
			summary.Average.StringFixed(precision),
			summary.Max.StringFixed(precision),
			summary.Min.StringFixed(precision),
		)
	}

	last, ok, err := st.signals.Load(ctx)
	switch {
	case err != nil:
		fmt.Fprintf(out, "last alerted spread: unavailable (%v)\n", err)
	case ok:
		fmt.Fprintf(out, "last alerted spread: %s\n", last)
	default:
		fmt.Fprintln(out, "last alerted spread: none")
	}

	if st.alerts == nil {
		return nil
	}
	alertLimit := opts.Limit
	if alertLimit <= 0 {
		alertLimit = defaultAlertLimit
	}
	alerts, err := st.alerts.ListRecentAlerts(ctx, alertLimit)
	if err != nil {
		return err
	}
	if len(alerts) == 0 {
		return nil
	}

	fmt.Fprintln(out)
	writer := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Alerted at (UTC)\tSpread")
	for _, alert := range alerts {
		fmt.Fprintf(writer, "%s\t%s\n", alert.CreatedAt.UTC().Format(time.RFC3339), alert.Spread)
	}
	return writer.Flush()
}
