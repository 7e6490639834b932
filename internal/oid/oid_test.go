package oid_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/go-bup/bup/internal/oid"
)

func TestSumIsDeterministic(t *testing.T) {
	a := oid.Sum("blob", []byte("hello"))
	b := oid.Sum("blob", []byte("hello"))
	require.Equal(t, a, b)
}

func TestSumDistinguishesKind(t *testing.T) {
	a := oid.Sum("blob", []byte("hello"))
	b := oid.Sum("tree", []byte("hello"))
	require.NotEqual(t, a, b)
}

func TestHexRoundTrip(t *testing.T) {
	id := oid.Sum("blob", []byte("round trip me"))
	parsed, err := oid.FromHex(id.String())
	require.NoError(t, err)
	require.Equal(t, id, parsed)
}

func TestFromBytesWrongLength(t *testing.T) {
	_, err := oid.FromBytes([]byte{1, 2, 3})
	require.Error(t, err)
}

func TestZeroIsZero(t *testing.T) {
	require.True(t, oid.Zero.IsZero())
	require.False(t, oid.Sum("blob", nil).IsZero())
}
