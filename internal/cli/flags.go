package cli

import (
	"fmt"
	"time"
)

var timeFlagLayouts = []string{time.RFC3339, "2006-01-02T15:04", "2006-01-02"}

// parseTimeFlag accepts RFC3339 or a local date with optional minutes.
func parseTimeFlag(name, value string) (time.Time, error) {
	for _, layout := range timeFlagLayouts {
		if ts, err := time.ParseInLocation(layout, value, time.Local); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid --%s value %q: want RFC3339 or YYYY-MM-DD", name, value)
}
