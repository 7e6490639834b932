// Package object defines the on-the-wire shapes of the three object kinds
// a save produces (blobs, trees, commits) and the shalist collation that
// orders a tree's entries.
package object

import (
	"bytes"
	"sort"

	"github.com/go-bup/bup/internal/filemode"
	"github.com/go-bup/bup/internal/oid"
)

// TreeEntry is one child of a Tree: a name, its storage-level mode and the
// oid of the object it points at.
type TreeEntry struct {
	Name string
	Mode filemode.FileMode
	OID  oid.ID
}

// Tree is a sorted list of TreeEntry, the object-store representation of a
// directory.
type Tree struct {
	Entries []TreeEntry
}

// ShalistKey returns the sort key used to order tree entries and metadata
// sidecar records:
// directories sort as if their name had a trailing slash, so that a file
// "foo" sorts before "foo.txt" while a directory "foo" (key "foo/") sorts
// after it. This mirrors how a directory's contents are interleaved with
// its siblings in the underlying object format.
func ShalistKey(mode filemode.FileMode, name string) string {
	if mode == filemode.Dir {
		return name + "/"
	}
	return name
}

// Sort orders t's entries by ShalistKey, in place.
func (t *Tree) Sort() {
	sort.SliceStable(t.Entries, func(i, j int) bool {
		return ShalistKey(t.Entries[i].Mode, t.Entries[i].Name) <
			ShalistKey(t.Entries[j].Mode, t.Entries[j].Name)
	})
}

// Encode renders t in the canonical tree wire format: a concatenation of
// "<mode as octal ascii> <name>\0<20-byte oid>" records, already assumed
// to be in sorted order.
func (t *Tree) Encode() []byte {
	var buf bytes.Buffer
	for _, e := range t.Entries {
		buf.WriteString(e.Mode.String())
		buf.WriteByte(' ')
		buf.WriteString(e.Name)
		buf.WriteByte(0)
		buf.Write(e.OID.Bytes())
	}
	return buf.Bytes()
}

// Decode parses the canonical tree wire format produced by Encode.
func Decode(data []byte) (*Tree, error) {
	t := &Tree{}
	for len(data) > 0 {
		sp := bytes.IndexByte(data, ' ')
		if sp < 0 {
			return nil, errMalformedTree
		}
		mode, err := filemode.New(string(data[:sp]))
		if err != nil {
			return nil, err
		}
		data = data[sp+1:]
		nul := bytes.IndexByte(data, 0)
		if nul < 0 {
			return nil, errMalformedTree
		}
		name := string(data[:nul])
		data = data[nul+1:]
		if len(data) < oid.Size {
			return nil, errMalformedTree
		}
		id, err := oid.FromBytes(data[:oid.Size])
		if err != nil {
			return nil, err
		}
		data = data[oid.Size:]
		t.Entries = append(t.Entries, TreeEntry{Name: name, Mode: mode, OID: id})
	}
	return t, nil
}

var errMalformedTree = treeError("object: malformed tree entry")

type treeError string

func (e treeError) Error() string { return string(e) }
