package telegram

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestFormatMessage(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "<b>a &lt;b&gt;</b>\nx &amp; y", formatMessage(" a <b> ", "x & y"))
	assert.Equal(t, "<b>only</b>", formatMessage("only", ""))
	assert.Equal(t, "body", formatMessage("", "body"))
	assert.Equal(t, "(empty notification)", formatMessage("", "  "))

	long := formatMessage("t", strings.Repeat("&", 10000))
	assert.LessOrEqual(t, utf8.RuneCountInString(long), maxMessageRunes)
	assert.True(t, strings.HasSuffix(long, "…"))
}

func TestTruncRunes(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "", truncRunes("abc", 0))
	assert.Equal(t, "abc", truncRunes("abc", 3))
	assert.Equal(t, "ab…", truncRunes("abc", 2))
	assert.Equal(t, "hé…", truncRunes("héllo", 2))
}
