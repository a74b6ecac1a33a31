package matches

import (
	"fmt"
	"time"
)

// TimeRemaining is the display form of a match deadline.
type TimeRemaining struct {
	Expired bool
	Text    string
	Hours   int
	Minutes int
}

// CalculateTimeRemaining formats the time left until expireAt.
// A zero expireAt, or one at or before now, is expired. The deadline
// instant itself is expired, the same boundary the sweeps select on
// (expire_at <= now).
func CalculateTimeRemaining(expireAt, now time.Time) TimeRemaining {
	if expireAt.IsZero() || !now.Before(expireAt) {
		return TimeRemaining{Expired: true, Text: "expired"}
	}

	left := expireAt.Sub(now)
	hours := int(left / time.Hour)
	minutes := int((left % time.Hour) / time.Minute)

	text := fmt.Sprintf("%dm", minutes)
	if hours > 0 {
		text = fmt.Sprintf("%dh %dm", hours, minutes)
	}
	return TimeRemaining{Text: text, Hours: hours, Minutes: minutes}
}
