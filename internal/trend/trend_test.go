package trend

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spread-alerts/internal/storage"
)

func obs(sell, buy string) storage.Observation {
	return storage.Observation{
		Timestamp: time.Now(),
		SellRate:  decimal.RequireFromString(sell),
		BuyRate:   decimal.RequireFromString(buy),
	}
}

func TestSummarizeEmpty(t *testing.T) {
	summary, ok := Summarize(nil)
	assert.False(t, ok)
	assert.Equal(t, 0, summary.Count)

	_, ok = Summarize([]storage.Observation{})
	assert.False(t, ok)
}

func TestSummarizeTwoEntries(t *testing.T) {
	summary, ok := Summarize([]storage.Observation{
		obs("27.00", "26.80"),
		obs("27.10", "26.70"),
	})
	require.True(t, ok)

	assert.Equal(t, "0.30", summary.Average.StringFixed(2))
	assert.Equal(t, "0.40", summary.Max.StringFixed(2))
	assert.Equal(t, "0.20", summary.Min.StringFixed(2))
	assert.Equal(t, 2, summary.Count)
}

func TestSummarizeSingle(t *testing.T) {
	summary, ok := Summarize([]storage.Observation{obs("41.45", "41.05")})
	require.True(t, ok)

	assert.True(t, summary.Average.Equal(decimal.RequireFromString("0.4")))
	assert.True(t, summary.Max.Equal(summary.Min))
}

func TestSummarizeNegativeSpreadPassesThrough(t *testing.T) {
	summary, ok := Summarize([]storage.Observation{
		obs("26.50", "26.80"),
		obs("27.00", "26.80"),
	})
	require.True(t, ok)

	assert.Equal(t, "-0.30", summary.Min.StringFixed(2))
	assert.Equal(t, "0.20", summary.Max.StringFixed(2))
	assert.Equal(t, "-0.05", summary.Average.StringFixed(2))
}
