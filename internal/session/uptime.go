package session

import (
	"fmt"
	"time"
)

// FormatUptime renders elapsed time at the coarsest non-zero unit pair:
// days+hours, hours+minutes, or minutes alone. No seconds granularity;
// anything under a minute is "0 minutes".
func FormatUptime(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	days := int(d / (24 * time.Hour))
	hours := int(d/time.Hour) % 24
	minutes := int(d/time.Minute) % 60

	switch {
	case days > 0:
		return fmt.Sprintf("%d days, %d hours", days, hours)
	case hours > 0:
		return fmt.Sprintf("%d hours, %d minutes", hours, minutes)
	default:
		return fmt.Sprintf("%d minutes", minutes)
	}
}
