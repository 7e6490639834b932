package mangle_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/go-bup/bup/internal/mangle"
)

func TestNamePlainPassesThrough(t *testing.T) {
	require.Equal(t, "foo.txt", mangle.Name("foo.txt", false))
}

func TestNameChunkedAddsSuffix(t *testing.T) {
	require.Equal(t, "bigfile.bup", mangle.Name("bigfile", true))
}

func TestNameEscapesNameThatLooksMangled(t *testing.T) {
	require.Equal(t, "weird.bup.bupl", mangle.Name("weird.bup", false))
	require.Equal(t, "weird.bupl.bupl", mangle.Name("weird.bupl", false))
}

func TestDemangleRoundTrip(t *testing.T) {
	cases := []struct {
		name    string
		chunked bool
	}{
		{"foo.txt", false},
		{"bigfile", true},
		{"weird.bup", false},
		{"weird.bupl", false},
	}
	for _, c := range cases {
		mangled := mangle.Name(c.name, c.chunked)
		orig, chunked := mangle.Demangle(mangled)
		require.Equal(t, c.name, orig)
		require.Equal(t, c.chunked, chunked)
	}
}
