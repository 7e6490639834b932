// Package hashsplit implements ContentSplitter: it turns an
// arbitrary byte stream into a content-addressed tree whose shape is
// derived purely from rolling-hash cut points, so that identical runs of
// bytes across different files (or different runs of the same file)
// dedup against each other regardless of where they start.
package hashsplit

import (
	"bufio"
	"io"

	"github.com/go-bup/bup/internal/filemode"
	"github.com/go-bup/bup/internal/oid"
)

const (
	// blobBits controls the leaf blob size: no hash-derived cut happens
	// before a leaf reaches 2**blobBits bytes, and after that a cut falls
	// where the low blobBits bits of the rolling sum are all ones.
	blobBits = 13
	blobMask = 1<<blobBits - 1

	// fanoutBits is the size of each extra run of one bits in the rolling
	// sum, above the blob mask, that promotes a cut one tree level higher.
	// It bounds the fan-out of any one intermediate tree to roughly
	// 2**fanoutBits children.
	fanoutBits = 4
	fanoutMask = 1<<fanoutBits - 1

	// maxBlob hard-caps a single leaf regardless of what the rolling sum
	// says, so pathological input (e.g. all zero bytes) can't produce an
	// unbounded blob.
	maxBlob = 1 << 20

	// maxFanout forces a level flush even without a hash-derived
	// higher-level cut, for the same reason.
	maxFanout = 1 << (fanoutBits + 2)
)

// Entry is one child reference inside an intermediate tree built by Split:
// either a leaf blob or a nested intermediate tree, both addressed by oid.
type Entry struct {
	Mode filemode.FileMode
	OID  oid.ID
}

// MakeBlob stores a leaf's bytes and returns its oid.
type MakeBlob func(data []byte) (oid.ID, error)

// MakeTree stores an intermediate level's entries and returns its oid.
type MakeTree func(entries []Entry) (oid.ID, error)

// Split reads all of r, cutting it into hash-delimited leaf blobs via
// makeBlob and folding runs of leaves into balanced intermediate trees via
// makeTree. It returns filemode.Regular and the blob's own oid if the
// entire input fit into a single leaf, or filemode.Dir and the root tree's
// oid otherwise. Cuts are allowed to straddle whatever chunks the caller
// happened to read; the rolling state never restarts at a read boundary.
func Split(r io.Reader, makeBlob MakeBlob, makeTree MakeTree) (filemode.FileMode, oid.ID, error) {
	br := bufio.NewReaderSize(r, 64*1024)
	rs := newRollsum()

	var levels [][]Entry // levels[i]: pending entries waiting to be folded into a level-i+1 tree
	var leaf []byte
	var sawAny bool
	var leafCount int

	flushLeaf := func() error {
		id, err := makeBlob(leaf)
		if err != nil {
			return err
		}
		leaf = leaf[:0]
		return appendAt(&levels, 0, Entry{Mode: filemode.Regular, OID: id}, makeTree)
	}

	for {
		b, err := br.ReadByte()
		if err == io.EOF {
			break
		}
		if err != nil {
			return filemode.Empty, oid.Zero, err
		}
		sawAny = true
		leaf = append(leaf, b)
		sum := rs.Roll(b)

		cut := false
		level := 0
		if len(leaf) >= (1 << blobBits) {
			if sum&blobMask == blobMask {
				cut = true
				level = cutLevel(sum)
			} else if len(leaf) >= maxBlob {
				cut = true // forced cut: no bit-level signal, stays at level 0
			}
		}
		if cut {
			leafCount++
			if err := flushLeaf(); err != nil {
				return filemode.Empty, oid.Zero, err
			}
			// A high-level cut closes every tree level below it, so the
			// shape above the leaves is a function of the rolling sum
			// alone, not of how many leaves happened to accumulate.
			for l := 0; l < level; l++ {
				if err := promote(&levels, l, makeTree); err != nil {
					return filemode.Empty, oid.Zero, err
				}
			}
		}
	}
	if len(leaf) > 0 || !sawAny {
		if err := flushLeaf(); err != nil {
			return filemode.Empty, oid.Zero, err
		}
		leafCount++
	}

	if leafCount <= 1 && len(levels) == 1 && len(levels[0]) == 1 {
		return filemode.Regular, levels[0][0].OID, nil
	}

	root, err := collapse(levels, makeTree)
	if err != nil {
		return filemode.Empty, oid.Zero, err
	}
	return filemode.Dir, root, nil
}

// cutLevel reports how many tree levels a cut at sum closes: each extra
// fanoutBits-wide run of one bits above the blob mask promotes the cut
// one level higher, so the tree's shape is re-derivable from the content
// alone.
func cutLevel(sum uint32) int {
	level := 0
	for s := sum >> blobBits; s&fanoutMask == fanoutMask; s >>= fanoutBits {
		level++
	}
	return level
}

// appendAt appends e to levels[level]. The maxFanout check is a backstop
// for degenerate input where the rolling sum never proposes a
// higher-level cut; ordinarily levels close via cutLevel long before
// reaching it.
func appendAt(levels *[][]Entry, level int, e Entry, makeTree MakeTree) error {
	for len(*levels) <= level {
		*levels = append(*levels, nil)
	}
	(*levels)[level] = append((*levels)[level], e)
	if len((*levels)[level]) >= maxFanout {
		return promote(levels, level, makeTree)
	}
	return nil
}

// promote folds levels[level] into one tree object and appends it to
// levels[level+1], then clears levels[level]. Promoting a missing or
// empty level is a no-op.
func promote(levels *[][]Entry, level int, makeTree MakeTree) error {
	if level >= len(*levels) {
		return nil
	}
	entries := (*levels)[level]
	if len(entries) == 0 {
		return nil
	}
	id, err := makeTree(entries)
	if err != nil {
		return err
	}
	(*levels)[level] = nil
	return appendAt(levels, level+1, Entry{Mode: filemode.Dir, OID: id}, makeTree)
}

// collapse folds every remaining level bottom-up into a single root oid.
func collapse(levels [][]Entry, makeTree MakeTree) (oid.ID, error) {
	for level := 0; level < len(levels)-1; level++ {
		if err := promote(&levels, level, makeTree); err != nil {
			return oid.Zero, err
		}
	}
	top := len(levels) - 1
	if top < 0 {
		return makeTree(nil)
	}
	if len(levels[top]) == 1 && levels[top][0].Mode == filemode.Dir {
		return levels[top][0].OID, nil
	}
	return makeTree(levels[top])
}
