package pagination

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"
)

// Cursor is the opaque pagination state we encode/decode.
// ID + CreatedUnixNano establish a stable cursor over rows ordered by
// created_at DESC, id DESC. Nanoseconds keep rows that share a millisecond
// on drivers storing finer timestamps.
type Cursor struct {
	ID              string `json:"id"`
	CreatedUnixNano int64  `json:"created_unix_nano,omitempty"`
}

// IsZero reports whether the cursor points at the first page.
func (c Cursor) IsZero() bool {
	return c.ID == "" || c.CreatedUnixNano == 0
}

// CreatedAt returns the cursor position as a UTC time.
func (c Cursor) CreatedAt() time.Time {
	return time.Unix(0, c.CreatedUnixNano).UTC()
}

// Encode converts a Cursor into a Base64 string.
func Encode(c Cursor) (string, error) {
	b, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("failed to marshal cursor: %w", err)
	}
	return base64.URLEncoding.EncodeToString(b), nil
}

// Decode parses a Base64 string into a Cursor.
// Empty token → empty cursor (first page).
func Decode(token string) (Cursor, error) {
	if token == "" {
		return Cursor{}, nil
	}

	b, err := base64.URLEncoding.DecodeString(token)
	if err != nil {
		return Cursor{}, fmt.Errorf("invalid pagination token")
	}

	var c Cursor
	if err := json.Unmarshal(b, &c); err != nil {
		return Cursor{}, fmt.Errorf("invalid pagination token")
	}
	return c, nil
}
