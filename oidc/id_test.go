package oidc

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewID(t *testing.T) {
	t.Run("basics", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		got, err := NewID()
		require.NoError(err)
		assert.NotEmpty(got)
		// 20 bytes of randomness in raw base64url is 27 chars
		assert.Len(got, 27)
	})
	t.Run("with-prefix", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		got, err := NewID(WithPrefix("st"))
		require.NoError(err)
		assert.True(strings.HasPrefix(got, "st_"))
	})
	t.Run("unique", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		seen := map[string]bool{}
		for i := 0; i < 100; i++ {
			got, err := NewID()
			require.NoError(err)
			assert.False(seen[got])
			seen[got] = true
		}
	})
}
