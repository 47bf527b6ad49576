package repository

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestTruncateUsernameKeepsShortNames(t *testing.T) {
	assert.Equal(t, "alice", truncateUsername("alice"))

	exact := strings.Repeat("x", maxUsernameLen)
	assert.Equal(t, exact, truncateUsername(exact))
}

func TestTruncateUsernameCutsByRunes(t *testing.T) {
	// Кириллица занимает два байта на символ: срез по байтам разорвал бы руну
	long := strings.Repeat("ю", maxUsernameLen+10)

	got := truncateUsername(long)

	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, maxUsernameLen, utf8.RuneCountInString(got))
	assert.Equal(t, strings.Repeat("ю", maxUsernameLen), got)
}

func TestTruncateUsernameMixedWidth(t *testing.T) {
	long := strings.Repeat("a語", 40)

	got := truncateUsername(long)

	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, maxUsernameLen, utf8.RuneCountInString(got))
	assert.True(t, strings.HasPrefix(long, got))
}
