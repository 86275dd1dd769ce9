package monitop

import (
	"time"
)

const (
	// TICK_INTERVAL is the countdown resolution in seconds
	TICK_INTERVAL = 1

	// GOROUTINE_HISTORY_RANGE is how far back the goroutine chart reaches
	GOROUTINE_HISTORY_RANGE = "1h"

	// STATUS_TIME_FORMAT formats the last refresh time in the status bar
	STATUS_TIME_FORMAT = "15:04:05"
)

// TickDuration returns the countdown tick as a time.Duration
func TickDuration() time.Duration {
	return time.Duration(TICK_INTERVAL) * time.Second
}
