package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHashString(t *testing.T) {
	assert.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", HashString(""))
	assert.NotEqual(t, HashString("a"), HashString("b"))
}

func TestDigestFieldBoundaries(t *testing.T) {
	a := NewDigest().Field("ab").Field("c").Hex()
	b := NewDigest().Field("a").Field("bc").Hex()
	assert.NotEqual(t, a, b)

	assert.Equal(t, NewDigest().Strings([]string{"x", "y"}).Hex(), NewDigest().Strings([]string{"x", "y"}).Hex())
	assert.NotEqual(t, NewDigest().Strings([]string{"x"}).Strings(nil).Hex(), NewDigest().Strings(nil).Strings([]string{"x"}).Hex())
	assert.NotEqual(t, NewDigest().Bool(true).Hex(), NewDigest().Bool(false).Hex())
	assert.Len(t, NewDigest().Hex(), 64)
}
