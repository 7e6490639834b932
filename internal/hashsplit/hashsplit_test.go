package hashsplit_test

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/go-bup/bup/internal/filemode"
	"github.com/go-bup/bup/internal/hashsplit"
	"github.com/go-bup/bup/internal/oid"
)

// memStore is a trivial content-addressed blob/tree store for exercising
// Split without depending on internal/store.
type memStore struct {
	blobs map[oid.ID][]byte
	trees map[oid.ID][]hashsplit.Entry
}

func newMemStore() *memStore {
	return &memStore{blobs: map[oid.ID][]byte{}, trees: map[oid.ID][]hashsplit.Entry{}}
}

func (m *memStore) makeBlob(data []byte) (oid.ID, error) {
	cp := append([]byte(nil), data...)
	id := oid.Sum("blob", cp)
	m.blobs[id] = cp
	return id, nil
}

func (m *memStore) makeTree(entries []hashsplit.Entry) (oid.ID, error) {
	var buf bytes.Buffer
	for _, e := range entries {
		buf.WriteByte(byte(e.Mode))
		buf.Write(e.OID.Bytes())
	}
	id := oid.Sum("tree", buf.Bytes())
	m.trees[id] = entries
	return id, nil
}

func TestSplitSmallInputIsOneBlob(t *testing.T) {
	m := newMemStore()
	data := []byte("hello, world")
	mode, id, err := hashsplit.Split(bytes.NewReader(data), m.makeBlob, m.makeTree)
	require.NoError(t, err)
	require.Equal(t, filemode.Regular, mode)
	require.Equal(t, oid.Sum("blob", data), id)
}

func TestSplitEmptyInputIsOneEmptyBlob(t *testing.T) {
	m := newMemStore()
	mode, id, err := hashsplit.Split(bytes.NewReader(nil), m.makeBlob, m.makeTree)
	require.NoError(t, err)
	require.Equal(t, filemode.Regular, mode)
	require.Equal(t, oid.Sum("blob", nil), id)
}

func TestSplitIsDeterministic(t *testing.T) {
	data := make([]byte, 5*1024*1024)
	rand.New(rand.NewSource(42)).Read(data)

	m1 := newMemStore()
	mode1, id1, err := hashsplit.Split(bytes.NewReader(data), m1.makeBlob, m1.makeTree)
	require.NoError(t, err)

	m2 := newMemStore()
	mode2, id2, err := hashsplit.Split(bytes.NewReader(data), m2.makeBlob, m2.makeTree)
	require.NoError(t, err)

	require.Equal(t, mode1, mode2)
	require.Equal(t, id1, id2)
}

func TestSplitLargeInputBecomesTree(t *testing.T) {
	m := newMemStore()
	data := make([]byte, 5*1024*1024)
	rand.New(rand.NewSource(1)).Read(data)

	mode, id, err := hashsplit.Split(bytes.NewReader(data), m.makeBlob, m.makeTree)
	require.NoError(t, err)
	require.Equal(t, filemode.Dir, mode)
	require.Contains(t, m.trees, id)
	require.Greater(t, len(m.blobs), 1)
}

// Two inputs sharing a long common run must fold that run into matching
// intermediate trees, not just matching leaves: the tree shape above the
// leaves derives from the rolling sum's bit levels, so it realigns after
// the first shared cut even though the inputs start differently.
func TestSharedContentFoldsIntoMatchingSubtrees(t *testing.T) {
	common := make([]byte, 6*1024*1024)
	rand.New(rand.NewSource(11)).Read(common)
	prefixA := make([]byte, 300*1024)
	rand.New(rand.NewSource(12)).Read(prefixA)
	prefixB := make([]byte, 100*1024)
	rand.New(rand.NewSource(13)).Read(prefixB)

	m1 := newMemStore()
	_, _, err := hashsplit.Split(bytes.NewReader(append(append([]byte(nil), prefixA...), common...)), m1.makeBlob, m1.makeTree)
	require.NoError(t, err)

	m2 := newMemStore()
	_, _, err = hashsplit.Split(bytes.NewReader(append(append([]byte(nil), prefixB...), common...)), m2.makeBlob, m2.makeTree)
	require.NoError(t, err)

	shared := 0
	for id := range m1.trees {
		if _, ok := m2.trees[id]; ok {
			shared++
		}
	}
	require.Greater(t, shared, 0, "a long common run must produce at least one identical intermediate tree in both stores")
}

func TestSplitReassemblesToOriginalBytes(t *testing.T) {
	m := newMemStore()
	data := make([]byte, 2*1024*1024)
	rand.New(rand.NewSource(7)).Read(data)

	mode, id, err := hashsplit.Split(bytes.NewReader(data), m.makeBlob, m.makeTree)
	require.NoError(t, err)

	var reassemble func(mode filemode.FileMode, id oid.ID) []byte
	reassemble = func(mode filemode.FileMode, id oid.ID) []byte {
		if mode != filemode.Dir {
			return m.blobs[id]
		}
		var out []byte
		for _, e := range m.trees[id] {
			out = append(out, reassemble(e.Mode, e.OID)...)
		}
		return out
	}
	require.Equal(t, data, reassemble(mode, id))
}
