package dirstack_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/go-bup/bup/internal/dirstack"
	"github.com/go-bup/bup/internal/filemode"
	"github.com/go-bup/bup/internal/metadata"
	"github.com/go-bup/bup/internal/object"
	"github.com/go-bup/bup/internal/oid"
)

// fakeWriter is a minimal in-memory stand-in for the object store,
// satisfying dirstack.ObjectWriter.
type fakeWriter struct {
	blobs map[oid.ID][]byte
	trees map[oid.ID][]object.TreeEntry
}

func newFakeWriter() *fakeWriter {
	return &fakeWriter{blobs: map[oid.ID][]byte{}, trees: map[oid.ID][]object.TreeEntry{}}
}

func (w *fakeWriter) Exists(id oid.ID) (bool, error) {
	if _, ok := w.blobs[id]; ok {
		return true, nil
	}
	_, ok := w.trees[id]
	return ok, nil
}

func (w *fakeWriter) NewBlob(data []byte) (oid.ID, error) {
	cp := append([]byte(nil), data...)
	id := oid.Sum("blob", cp)
	w.blobs[id] = cp
	return id, nil
}

func (w *fakeWriter) NewTree(entries []object.TreeEntry) (oid.ID, error) {
	t := &object.Tree{Entries: append([]object.TreeEntry(nil), entries...)}
	id := oid.Sum("tree", t.Encode())
	w.trees[id] = t.Entries
	return id, nil
}

func TestPushAppendPopProducesTreeWithSidecar(t *testing.T) {
	w := newFakeWriter()
	s := dirstack.New(w, nil)

	s.Push("", metadata.Empty())
	fileMeta := metadata.Empty()
	blobID, err := w.NewBlob([]byte("hello"))
	require.NoError(t, err)
	s.AppendToTop("a.txt", filemode.Regular, filemode.Regular, blobID, &fileMeta)

	tree, err := s.Pop(nil, nil)
	require.NoError(t, err)

	entries, ok := w.trees[tree]
	require.True(t, ok)
	require.Len(t, entries, 2)

	var sawSidecar, sawFile bool
	for _, e := range entries {
		switch e.Name {
		case ".bupm":
			sawSidecar = true
		case "a.txt":
			sawFile = true
			require.Equal(t, blobID, e.OID)
		}
	}
	require.True(t, sawSidecar)
	require.True(t, sawFile)
}

func TestPopNestedDirectoryAppendsTreeEntryToParent(t *testing.T) {
	w := newFakeWriter()
	s := dirstack.New(w, nil)

	s.Push("", metadata.Empty())
	s.Push("sub", metadata.Empty())
	blobID, err := w.NewBlob([]byte("nested"))
	require.NoError(t, err)
	meta := metadata.Empty()
	s.AppendToTop("b.txt", filemode.Regular, filemode.Regular, blobID, &meta)

	require.Equal(t, 2, s.Depth())
	subTree, err := s.Pop(nil, nil)
	require.NoError(t, err)
	require.Equal(t, 1, s.Depth())

	rootTree, err := s.Pop(nil, nil)
	require.NoError(t, err)

	entries := w.trees[rootTree]
	var found bool
	for _, e := range entries {
		if e.Name == "sub" {
			found = true
			require.Equal(t, filemode.Dir, e.Mode)
			require.Equal(t, subTree, e.OID)
		}
	}
	require.True(t, found)
}

func TestPopReusesForcedTreeWithoutRebuilding(t *testing.T) {
	w := newFakeWriter()
	s := dirstack.New(w, nil)

	s.Push("", metadata.Empty())
	s.Push("unchanged", metadata.Empty())

	reused := oid.Sum("tree", []byte("reused-verbatim"))
	got, err := s.Pop(&reused, nil)
	require.NoError(t, err)
	require.Equal(t, reused, got)
	// The forced oid was never built through the writer.
	_, ok := w.trees[reused]
	require.False(t, ok)

	rootTree, err := s.Pop(nil, nil)
	require.NoError(t, err)
	entries := w.trees[rootTree]
	require.Len(t, entries, 2) // .bupm + the reused subdir
	var found bool
	for _, e := range entries {
		if e.Name == "unchanged" {
			found = true
			require.Equal(t, reused, e.OID)
		}
	}
	require.True(t, found)
}

func TestDuplicateNameInvokesHandlerAndKeepsFirst(t *testing.T) {
	w := newFakeWriter()
	var dups []string
	s := dirstack.New(w, func(dirPath, name string) {
		dups = append(dups, dirPath+name)
	})

	s.Push("d", metadata.Empty())
	blob1, err := w.NewBlob([]byte("first"))
	require.NoError(t, err)
	blob2, err := w.NewBlob([]byte("second"))
	require.NoError(t, err)
	meta := metadata.Empty()
	s.AppendToTop("x.txt", filemode.Regular, filemode.Regular, blob1, &meta)
	s.AppendToTop("x.txt", filemode.Regular, filemode.Regular, blob2, &meta)

	tree, err := s.Pop(nil, nil)
	require.NoError(t, err)

	entries := w.trees[tree]
	var matches int
	for _, e := range entries {
		if e.Name == "x.txt" {
			matches++
			require.Equal(t, blob1, e.OID)
		}
	}
	require.Equal(t, 1, matches)
	require.Len(t, dups, 1)
}

func TestDuplicateDetectionUsesRawNameAcrossStorageShapes(t *testing.T) {
	w := newFakeWriter()
	var dups int
	s := dirstack.New(w, func(string, string) { dups++ })

	s.Push("d", metadata.Empty())
	// A real subdirectory named "foo"...
	s.AppendToTop("foo", filemode.Dir, filemode.Dir, oid.Sum("tree", []byte("subdir")), nil)
	// ...then a chunked regular file that collided on the same raw name
	// after a graft merge. It would mangle to "foo.bup", but the drop key
	// is the raw name, so first wins.
	meta := metadata.Empty()
	s.AppendToTop("foo", filemode.Regular, filemode.Dir, oid.Sum("tree", []byte("chunks")), &meta)

	tree, err := s.Pop(nil, nil)
	require.NoError(t, err)
	require.Equal(t, 1, dups)

	var names []string
	for _, e := range w.trees[tree] {
		if e.Name != ".bupm" {
			names = append(names, e.Name)
		}
	}
	require.Equal(t, []string{"foo"}, names)
}

func TestDirMetadataOverrideReplacesPushedMetadata(t *testing.T) {
	w := newFakeWriter()
	s := dirstack.New(w, nil)

	real := metadata.Metadata{UID: 42}
	s.Push("", real)
	override := metadata.Empty()
	tree1, err := s.Pop(nil, &override)
	require.NoError(t, err)

	s2 := dirstack.New(w, nil)
	s2.Push("", real)
	tree2, err := s2.Pop(nil, nil)
	require.NoError(t, err)

	// Same shape (just the dir record differs), so the trees -- which only
	// reference the sidecar blob oid, not its content -- end up distinct.
	require.NotEqual(t, tree1, tree2)
}

func TestNamesAndPathTrackOpenFrames(t *testing.T) {
	w := newFakeWriter()
	s := dirstack.New(w, nil)

	s.Push("", metadata.Empty())
	s.Push("a", metadata.Empty())
	s.Push("b", metadata.Empty())

	require.Equal(t, []string{"", "a", "b"}, s.Names())
	require.Equal(t, "/a/b", s.Path())
}
