package id

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate(t *testing.T) {
	got, err := Generate("book")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(got, "book-"))
	assert.Len(t, got, len("book-")+idLength)
}

func TestGenerateUnique(t *testing.T) {
	seen := make(map[string]bool)
	for range 100 {
		id, err := Generate("scan")
		require.NoError(t, err)
		assert.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
}

func TestMustGenerate(t *testing.T) {
	assert.NotPanics(t, func() {
		id := MustGenerate("voice")
		assert.True(t, strings.HasPrefix(id, "voice-"))
	})
}
