package utils

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestTruncateUTF8(t *testing.T) {
	t.Run("short string unchanged", func(t *testing.T) {
		got, cut := TruncateUTF8("song.mp3", 255)
		assert.Equal(t, "song.mp3", got)
		assert.False(t, cut)
	})

	t.Run("exact length unchanged", func(t *testing.T) {
		got, cut := TruncateUTF8("hello", 5)
		assert.Equal(t, "hello", got)
		assert.False(t, cut)
	})

	t.Run("ascii truncated to max", func(t *testing.T) {
		got, cut := TruncateUTF8(strings.Repeat("a", 300), 255)
		assert.Len(t, got, 255)
		assert.True(t, cut)
	})

	t.Run("multi-byte rune is not split", func(t *testing.T) {
		// "é" is two bytes, so a cut at 5 would split the third rune.
		got, cut := TruncateUTF8("ééé", 5)
		assert.Equal(t, "éé", got)
		assert.True(t, cut)
		assert.True(t, utf8.ValidString(got))
	})

	t.Run("negative max yields empty", func(t *testing.T) {
		got, cut := TruncateUTF8("abc", -1)
		assert.Equal(t, "", got)
		assert.True(t, cut)
	})
}
