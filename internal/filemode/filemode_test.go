package filemode_test

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/go-bup/bup/internal/filemode"
)

func TestNewParsesOctal(t *testing.T) {
	m, err := filemode.New("100644")
	require.NoError(t, err)
	require.Equal(t, filemode.Regular, m)
}

func TestNewRejectsGarbage(t *testing.T) {
	_, err := filemode.New("not-octal")
	require.Error(t, err)
}

func TestStringRoundTrip(t *testing.T) {
	for _, m := range []filemode.FileMode{filemode.Dir, filemode.Regular, filemode.Executable, filemode.Symlink} {
		parsed, err := filemode.New(m.String())
		require.NoError(t, err)
		require.Equal(t, m, parsed)
	}
}

func TestIsRegular(t *testing.T) {
	require.True(t, filemode.Regular.IsRegular())
	require.True(t, filemode.Executable.IsRegular())
	require.True(t, filemode.Deprecated.IsRegular())
	require.False(t, filemode.Dir.IsRegular())
	require.False(t, filemode.Symlink.IsRegular())
}

func TestIsMalformed(t *testing.T) {
	require.False(t, filemode.Dir.IsMalformed())
	require.True(t, filemode.FileMode(0123).IsMalformed())
}

func TestFromOSMode(t *testing.T) {
	require.Equal(t, filemode.Dir, filemode.FromOSMode(os.ModeDir))
	require.Equal(t, filemode.Symlink, filemode.FromOSMode(os.ModeSymlink))
	require.Equal(t, filemode.Executable, filemode.FromOSMode(0755))
	require.Equal(t, filemode.Regular, filemode.FromOSMode(0644))
}
