package metastore_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/go-bup/bup/internal/metadata"
	"github.com/go-bup/bup/internal/metastore"
)

func TestAppendThenMetadataAtRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bupindex.meta")
	w, err := metastore.Create(path)
	require.NoError(t, err)

	m1 := metadata.Metadata{UID: 1000, GID: 100, Mode: os.FileMode(0644), Size: 123, Mtime: time.Unix(1700000000, 0)}
	m2 := metadata.Metadata{UID: 0, GID: 0, Mode: os.FileMode(0755), SymlinkTarget: "/elsewhere"}

	off1, err := w.Append(m1)
	require.NoError(t, err)
	off2, err := w.Append(m2)
	require.NoError(t, err)
	require.Greater(t, off2, off1)
	require.NoError(t, w.Close())

	r, err := metastore.Open(path)
	require.NoError(t, err)
	defer r.Close()

	got1, err := r.MetadataAt(off1)
	require.NoError(t, err)
	require.Equal(t, m1.UID, got1.UID)
	require.Equal(t, m1.GID, got1.GID)
	require.Equal(t, m1.Mode, got1.Mode)
	require.Equal(t, m1.Size, got1.Size)
	require.Equal(t, m1.Mtime.Unix(), got1.Mtime.Unix())

	got2, err := r.MetadataAt(off2)
	require.NoError(t, err)
	require.Equal(t, m2.SymlinkTarget, got2.SymlinkTarget)
}

func TestMetadataAtUnknownOffsetErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bupindex.meta")
	w, err := metastore.Create(path)
	require.NoError(t, err)
	_, err = w.Append(metadata.Metadata{})
	require.NoError(t, err)
	require.NoError(t, w.Close())

	r, err := metastore.Open(path)
	require.NoError(t, err)
	defer r.Close()

	_, err = r.MetadataAt(10_000)
	require.Error(t, err)
}
