package service

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"spread-alerts/internal/trend"
)

const (
	markerFavorable   = "🟢"
	markerUnfavorable = "🔴"
)

var currencyLabels = map[int]string{
	840: "USD",
	978: "EUR",
	826: "GBP",
	985: "PLN",
}

type messageView struct {
	Currency  string
	Spread    string
	SellRate  string
	BuyRate   string
	SpreadPct string
	Threshold string
	Favorable bool
	Window    string
	Trend     trend.Summary
	TrendOK   bool
	Precision int32
}

// renderMessage builds the Telegram Markdown alert text.
func renderMessage(v messageView) string {
	builder := strings.Builder{}

	marker := markerUnfavorable
	if v.Favorable {
		marker = markerFavorable
	}
	builder.WriteString(fmt.Sprintf("%s *Current %s spread:* `%s` (`%s - %s`)\n", marker, v.Currency, v.Spread, v.SellRate, v.BuyRate))
	builder.WriteString(fmt.Sprintf("*Spread percentage:* `%s%%`\n", v.SpreadPct))
	if v.Favorable {
		builder.WriteString(fmt.Sprintf("Good time to exchange. The spread is below %s.\n", v.Threshold))
	} else {
		builder.WriteString(fmt.Sprintf("Better to hold for now. The spread is %s, at or above %s.\n", v.Spread, v.Threshold))
	}
	builder.WriteString("\n")

	if !v.TrendOK {
		builder.WriteString(fmt.Sprintf("*History (last %s):* unavailable", v.Window))
		return builder.String()
	}

	builder.WriteString(fmt.Sprintf("*History (last %s):*\n", v.Window))
	builder.WriteString(fmt.Sprintf("- *Average spread:* `%s`\n", v.Trend.Average.StringFixed(v.Precision)))
	builder.WriteString(fmt.Sprintf("- *Max spread:* `%s`\n", v.Trend.Max.StringFixed(v.Precision)))
	builder.WriteString(fmt.Sprintf("- *Min spread:* `%s`", v.Trend.Min.StringFixed(v.Precision)))
	return builder.String()
}

func currencyLabel(code int) string {
	if label, ok := currencyLabels[code]; ok {
		return label
	}
	return strconv.Itoa(code)
}

func windowLabel(window time.Duration) string {
	day := 24 * time.Hour
	if window > 0 && window%day == 0 {
		days := int(window / day)
		if days == 1 {
			return "1 day"
		}
		return fmt.Sprintf("%d days", days)
	}
	return window.String()
}
