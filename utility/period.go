package utility

import (
	"fmt"
	"math"
	"time"
)

func TimeAgo(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	duration := time.Since(t).Round(time.Second)
	seconds := int(math.Abs(duration.Seconds()))
	minutes := seconds / 60
	if seconds < 5 {
		return "just now"
	} else if seconds < 60 {
		return fmt.Sprintf("%d seconds ago", seconds)
	} else if minutes == 1 {
		return "1 minute ago"
	} else if minutes < 60 {
		return fmt.Sprintf("%d minutes ago", minutes)
	} else if minutes < 120 {
		return "1 hour ago"
	} else {
		return fmt.Sprintf("%d hours ago", minutes/60)
	}
}
