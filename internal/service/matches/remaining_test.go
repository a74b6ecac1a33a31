package matches_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/oggyb/survey-exchange/internal/service/matches"
)

func TestCalculateTimeRemaining(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

	cases := []struct {
		name     string
		expireAt time.Time
		want     matches.TimeRemaining
	}{
		{"hours and minutes", now.Add(5*time.Hour + 7*time.Minute + 30*time.Second),
			matches.TimeRemaining{Text: "5h 7m", Hours: 5, Minutes: 7}},
		{"minutes only", now.Add(42 * time.Minute),
			matches.TimeRemaining{Text: "42m", Minutes: 42}},
		{"under a minute", now.Add(20 * time.Second),
			matches.TimeRemaining{Text: "0m"}},
		{"a nanosecond left", now.Add(time.Nanosecond), matches.TimeRemaining{Text: "0m"}},
		{"exactly now", now, matches.TimeRemaining{Expired: true, Text: "expired"}},
		{"past", now.Add(-time.Hour), matches.TimeRemaining{Expired: true, Text: "expired"}},
		{"zero", time.Time{}, matches.TimeRemaining{Expired: true, Text: "expired"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, matches.CalculateTimeRemaining(tc.expireAt, now))
		})
	}
}
