package oid_test

import (
	"testing"

	"github.com/puregit/git/oid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromContent_EmptyBlob(t *testing.T) {
	content := []byte("blob 0\x00")
	got := oid.FromContent(content)
	assert.Equal(t, "e69de29bb2d1d6434b8b29ae775ad8c2e48c5391", got.String())
}

func TestFromHex_RoundTrip(t *testing.T) {
	const hexStr = "e69de29bb2d1d6434b8b29ae775ad8c2e48c5391"
	o, err := oid.FromHex(hexStr)
	require.NoError(t, err)
	assert.Equal(t, hexStr, o.String())
	assert.False(t, o.IsZero())
}

func TestFromHex_Invalid(t *testing.T) {
	_, err := oid.FromHex("not-a-hash")
	assert.Error(t, err)

	_, err = oid.FromHex("abcd")
	assert.ErrorIs(t, err, oid.ErrInvalidOid)
}

func TestNull_IsZero(t *testing.T) {
	assert.True(t, oid.Null.IsZero())
}

func TestCompare(t *testing.T) {
	a, err := oid.FromHex("000000000000000000000000000000000000000a")
	require.NoError(t, err)
	b, err := oid.FromHex("000000000000000000000000000000000000000b")
	require.NoError(t, err)

	assert.Equal(t, -1, a.Compare(b))
	assert.Equal(t, 1, b.Compare(a))
	assert.Equal(t, 0, a.Compare(a))
}
