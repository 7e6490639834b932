package object_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/go-bup/bup/internal/filemode"
	"github.com/go-bup/bup/internal/oid"
	"github.com/go-bup/bup/internal/object"
)

func TestShalistKeyDirsSortAsSlash(t *testing.T) {
	require.Equal(t, "foo/", object.ShalistKey(filemode.Dir, "foo"))
	require.Equal(t, "foo", object.ShalistKey(filemode.Regular, "foo"))
}

func TestSortOrdersDirAfterSameNameFile(t *testing.T) {
	tr := &object.Tree{Entries: []object.TreeEntry{
		{Name: "foo.txt", Mode: filemode.Regular},
		{Name: "foo", Mode: filemode.Dir},
		{Name: "foo", Mode: filemode.Regular},
	}}
	tr.Sort()
	require.Equal(t, []string{"foo", "foo.txt", "foo"}, []string{
		tr.Entries[0].Name, tr.Entries[1].Name, tr.Entries[2].Name,
	})
	require.Equal(t, filemode.Regular, tr.Entries[0].Mode)
	require.Equal(t, filemode.Dir, tr.Entries[2].Mode)
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	id1 := oid.Sum("blob", []byte("a"))
	id2 := oid.Sum("blob", []byte("b"))
	tr := &object.Tree{Entries: []object.TreeEntry{
		{Name: "a", Mode: filemode.Regular, OID: id1},
		{Name: "b", Mode: filemode.Symlink, OID: id2},
	}}
	tr.Sort()

	decoded, err := object.Decode(tr.Encode())
	require.NoError(t, err)
	require.Equal(t, tr.Entries, decoded.Entries)
}

func TestDecodeRejectsTruncated(t *testing.T) {
	_, err := object.Decode([]byte("100644 a\x00short"))
	require.Error(t, err)
}
