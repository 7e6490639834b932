// Package index defines the IndexEntry contract save consumes: a
// previously-built, lexicographically path-ordered stream of filesystem
// state, read post-order (directories after their contents). Building
// that index is another pass's job; this package only defines the
// read/mutate contract plus a concrete on-disk reader/writer pair so the
// engine is runnable end to end.
package index

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/go-bup/bup/internal/filemode"
	"github.com/go-bup/bup/internal/oid"
)

// FileMode is the raw filesystem mode bits recorded for an entry at
// indexing time -- type bits (regular/dir/symlink/device/fifo/socket) plus
// permissions, exactly what os.Lstat would report, distinct from GitMode
// (the storage-level mode).
type FileMode = os.FileMode

// Flag bits for Entry.Flags.
const (
	FlagExists uint32 = 1 << iota
	FlagHashValid
)

// Entry is one record of the index.
type Entry struct {
	Path    string
	Mode    FileMode // raw filesystem mode bits (os.Lstat's), not the coarse git enum
	GitMode filemode.FileMode
	Size    int64
	Dev     uint64
	Ino     uint64
	Nlink   uint64
	Atime   int64
	Mtime   int64
	Ctime   int64
	Flags   uint32
	SHA     oid.ID
	MetaOfs int64

	shaMissing bool // transient, set by the classifier during a save
}

// Exists reports whether the entry represents a filesystem path that was
// present at indexing time (as opposed to a tombstone for a deletion).
func (e *Entry) Exists() bool { return e.Flags&FlagExists != 0 }

// IsValid reports whether e's stored SHA still matches the last-recorded
// file state (mtime/size/etc. as captured by the indexing pass).
func (e *Entry) IsValid() bool { return e.Flags&FlagHashValid != 0 }

// SetShaMissing records, for the duration of one save, whether e's oid is
// absent from the object store.
func (e *Entry) SetShaMissing(missing bool) { e.shaMissing = missing }

// ShaMissing reports the value last set by SetShaMissing.
func (e *Entry) ShaMissing() bool { return e.shaMissing }

// Validate marks e as backed by oid id with storage mode mode.
func (e *Entry) Validate(mode filemode.FileMode, id oid.ID) {
	e.GitMode = mode
	e.SHA = id
	e.Flags |= FlagHashValid
}

// Invalidate marks e as needing re-examination on the next save.
func (e *Entry) Invalidate() {
	e.Flags &^= FlagHashValid
}

// IsDir reports whether e is a directory marker (path ends in "/").
func (e *Entry) IsDir() bool { return strings.HasSuffix(e.Path, "/") }

// Store is the object-existence check the classifier needs without
// depending on the whole store package: an entry only counts as already
// saved if the writer still has its oid.
type Store interface {
	Exists(id oid.ID) (bool, error)
}

// Reader is the external collaborator contract save drives.
// Filter streams entries restricted to the given source path prefixes, in
// the index's native lexicographic, post-order sort; wantrecurse lets the
// caller prune subtrees it has already decided not to examine (an
// optimization, not a correctness requirement -- the reference
// implementation below ignores it and returns everything). Repack persists
// whatever mutations Validate/Invalidate made back to stable storage.
type Reader interface {
	Filter(sources []string, wantrecurse func(*Entry) bool) iter
	Repack(e *Entry) error
	Close() error
}

// iter is a minimal pull iterator, avoiding a dependency on Go's
// not-yet-ubiquitous range-over-func for the iterator shape itself.
type iter interface {
	Next() (*Entry, bool)
}

// FileReader is a concrete Reader backed by a flat binary file: a small,
// self-contained format that satisfies the Reader contract and
// round-trips Validate/Invalidate/Repack.
type FileReader struct {
	path    string
	entries []*Entry
}

// OpenFile reads every entry from path into memory. The format is a
// repeated sequence of length-prefixed records; see WriteFile.
func OpenFile(path string) (*FileReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := &FileReader{path: path}
	br := bufio.NewReader(f)
	for {
		e, err := readEntry(br)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("index: %s: %w", path, err)
		}
		r.entries = append(r.entries, e)
	}
	sort.Slice(r.entries, func(i, j int) bool { return pathLess(r.entries[i].Path, r.entries[j].Path) })
	return r, nil
}

// pathLess orders entries the way save consumes them: lexicographic by
// path component, with a directory marker sorting after everything inside
// it (post-order). A plain byte compare would put "/a/" before "/a/f",
// closing the directory before its contents arrive.
func pathLess(a, b string) bool {
	ac := strings.Split(strings.Trim(a, "/"), "/")
	bc := strings.Split(strings.Trim(b, "/"), "/")
	for i := 0; i < len(ac) && i < len(bc); i++ {
		if ac[i] != bc[i] {
			return ac[i] < bc[i]
		}
	}
	return len(ac) > len(bc)
}

// WriteFile serializes entries to path in FileReader's format.
func WriteFile(path string, entries []*Entry) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	w := bufio.NewWriter(f)
	for _, e := range entries {
		if err := writeEntry(w, e); err != nil {
			return err
		}
	}
	return w.Flush()
}

// Filter returns every entry whose path lies under one of sources (or
// every entry, if sources is empty), in the reader's native order.
// wantrecurse is accepted for interface conformance but unused: this
// in-memory reader has no cheaper way to skip a subtree than to look at
// it.
func (r *FileReader) Filter(sources []string, wantrecurse func(*Entry) bool) iter {
	var out []*Entry
	for _, e := range r.entries {
		if len(sources) == 0 || underAny(e.Path, sources) {
			out = append(out, e)
		}
	}
	return &sliceIter{entries: out}
}

func underAny(path string, sources []string) bool {
	for _, s := range sources {
		s = strings.TrimRight(s, "/")
		if path == s || strings.HasPrefix(path, s+"/") {
			return true
		}
	}
	return false
}

// Repack persists e's current flags/gitmode/sha back to disk. It is
// idempotent when the entry is unchanged: it always rewrites the whole
// file, so calling it twice in a row with no intervening mutation
// produces byte-identical output both times.
func (r *FileReader) Repack(e *Entry) error {
	return WriteFile(r.path, r.entries)
}

func (r *FileReader) Close() error { return nil }

type sliceIter struct {
	entries []*Entry
	pos     int
}

func (it *sliceIter) Next() (*Entry, bool) {
	if it.pos >= len(it.entries) {
		return nil, false
	}
	e := it.entries[it.pos]
	it.pos++
	return e, true
}

func readEntry(r *bufio.Reader) (*Entry, error) {
	var pathLen uint32
	if err := binary.Read(r, binary.LittleEndian, &pathLen); err != nil {
		return nil, err
	}
	pathBuf := make([]byte, pathLen)
	if _, err := io.ReadFull(r, pathBuf); err != nil {
		return nil, err
	}
	e := &Entry{Path: string(pathBuf)}
	fields := []interface{}{
		&e.Mode, &e.GitMode, &e.Size, &e.Dev, &e.Ino, &e.Nlink,
		&e.Atime, &e.Mtime, &e.Ctime, &e.Flags, &e.MetaOfs,
	}
	for _, f := range fields {
		if err := binary.Read(r, binary.LittleEndian, f); err != nil {
			return nil, err
		}
	}
	sha := make([]byte, oid.Size)
	if _, err := io.ReadFull(r, sha); err != nil {
		return nil, err
	}
	copy(e.SHA[:], sha)
	return e, nil
}

func writeEntry(w *bufio.Writer, e *Entry) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(e.Path))); err != nil {
		return err
	}
	if _, err := w.WriteString(e.Path); err != nil {
		return err
	}
	fields := []interface{}{
		e.Mode, e.GitMode, e.Size, e.Dev, e.Ino, e.Nlink,
		e.Atime, e.Mtime, e.Ctime, e.Flags, e.MetaOfs,
	}
	for _, f := range fields {
		if err := binary.Write(w, binary.LittleEndian, f); err != nil {
			return err
		}
	}
	_, err := w.Write(e.SHA[:])
	return err
}
