package text

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPlain(t *testing.T) {
	assert.Equal(t, "Coffee habits", Plain("<b>Coffee</b> habits", 0))
	assert.Equal(t, "", Plain(`<script>alert(1)</script>`, 0))
	assert.Equal(t, "abc", Plain("  abcdef ", 3))
	assert.Equal(t, "问卷调", Plain("问卷调查", 3))
}
