package pagination

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCursorEncodeDecode(t *testing.T) {
	at := time.Date(2025, 3, 1, 10, 30, 0, 123456789, time.UTC)
	token, err := Encode(Cursor{ID: "rec-1", CreatedUnixNano: at.UnixNano()})
	require.NoError(t, err)

	c, err := Decode(token)
	require.NoError(t, err)
	assert.Equal(t, "rec-1", c.ID)
	assert.True(t, c.CreatedAt().Equal(at))
	assert.Equal(t, time.UTC, c.CreatedAt().Location())
	assert.False(t, c.IsZero())
}

func TestDecodeEmptyAndInvalid(t *testing.T) {
	c, err := Decode("")
	require.NoError(t, err)
	assert.True(t, c.IsZero())

	_, err = Decode("%%%")
	assert.Error(t, err)
}
