package randstr

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateRandomString(t *testing.T) {
	g := New([]byte("abc123"))

	s := g.GenerateRandomString(32)
	require.Len(t, s, 32)
	for _, c := range s {
		assert.True(t, strings.ContainsRune("abc123", c), "unexpected character %q", c)
	}

	assert.Empty(t, g.GenerateRandomString(0))
}

func TestGeneratedStringsDiffer(t *testing.T) {
	g := New([]byte("abcdefghijklmnopqrstuvwxyz"))

	seen := make(map[string]struct{})
	for i := 0; i < 50; i++ {
		s := g.GenerateRandomString(16)
		_, dup := seen[s]
		require.False(t, dup, "duplicate string %s", s)
		seen[s] = struct{}{}
	}
}
