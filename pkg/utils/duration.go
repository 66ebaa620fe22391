package utils

import (
	"strconv"
	"strings"
	"time"
)

// FormatDuration renders seconds as hours and minutes ("1h 5m", "42m").
// Seconds are shown only for spans under a minute ("45s"); zero is "0m".
func FormatDuration(totalSeconds int64) string {
	if totalSeconds < 0 {
		totalSeconds = 0
	}
	h := totalSeconds / 3600
	m := (totalSeconds % 3600) / 60
	s := totalSeconds % 60

	var parts []string
	if h > 0 {
		parts = append(parts, strconv.FormatInt(h, 10)+"h")
	}
	if m > 0 {
		parts = append(parts, strconv.FormatInt(m, 10)+"m")
	}
	if s > 0 && len(parts) == 0 {
		parts = append(parts, strconv.FormatInt(s, 10)+"s")
	}
	if len(parts) == 0 {
		return "0m"
	}
	return strings.Join(parts, " ")
}

// FormatElapsed is FormatDuration for a time.Duration, truncated to whole
// seconds.
func FormatElapsed(d time.Duration) string {
	return FormatDuration(int64(d / time.Second))
}
