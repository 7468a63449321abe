package random

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStringLengthAndUniqueness(t *testing.T) {
	gen := New()

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		s := gen.String(32)
		assert.NotEmpty(t, s)
		assert.False(t, seen[s])
		seen[s] = true
	}
}

func TestTokenPrefixes(t *testing.T) {
	gen := New()

	assert.True(t, strings.HasPrefix(gen.Token(PrefixAuthCode, 32), "ac_"))
	assert.True(t, strings.HasPrefix(gen.Token(PrefixAccessToken, 32), "at_"))
	assert.True(t, strings.HasPrefix(gen.Token(PrefixRefreshToken, 32), "rt_"))
	assert.True(t, strings.HasPrefix(gen.Token(PrefixClientSecret, 32), "secret_"))
}

func TestStringIsURLSafe(t *testing.T) {
	gen := New()

	for i := 0; i < 20; i++ {
		s := gen.String(48)
		assert.NotContains(t, s, "+")
		assert.NotContains(t, s, "/")
		assert.NotContains(t, s, "=")
	}
}
