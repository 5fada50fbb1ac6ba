package common

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMakeRandHexString(t *testing.T) {
	for _, n := range []int{0, 1, 16} {
		s, err := MakeRandHexString(n)
		require.NoError(t, err)
		assert.Len(t, s, n*2)

		_, err = hex.DecodeString(s)
		assert.NoError(t, err)
	}
}

func TestMakeRandHexString_Unique(t *testing.T) {
	seen := make(map[string]struct{})
	for range 100 {
		s, err := MakeRandHexString(16)
		require.NoError(t, err)
		_, dup := seen[s]
		require.False(t, dup, "duplicate value %q", s)
		seen[s] = struct{}{}
	}
}

func TestWipeByteArray(t *testing.T) {
	b := []byte("digest")
	WipeByteArray(b)
	assert.Equal(t, make([]byte, 6), b)

	assert.NotPanics(t, func() { WipeByteArray(nil) })
}
