package text

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var strict = bluemonday.StrictPolicy()

// Plain strips every tag from user-supplied text (survey titles end up in
// ledger descriptions) and trims the result to max runes.
func Plain(input string, max int) string {
	out := strings.TrimSpace(strict.Sanitize(input))
	if max > 0 {
		if r := []rune(out); len(r) > max {
			out = string(r[:max])
		}
	}
	return out
}
