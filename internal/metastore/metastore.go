// Package metastore defines the MetaStoreReader contract: a side file
// holding the Metadata already recorded for each
// hashvalid index entry, addressed by the entry's meta_ofs, so a reused
// entry doesn't need to re-stat the filesystem. Building the metastore is
// out of scope (it's produced by the indexing pass); this package defines
// the read contract plus a concrete file-backed implementation that pairs
// with index.WriteFile/index.OpenFile.
package metastore

import (
	"encoding/binary"
	"fmt"
	"os"

	"github.com/go-bup/bup/internal/metadata"
)

// Reader looks up the Metadata recorded at a given offset.
type Reader interface {
	MetadataAt(offset int64) (metadata.Metadata, error)
	Close() error
}

// FileReader is a concrete Reader backed by a flat file of
// length-prefixed, Metadata.Encode-framed records. Offsets are byte
// offsets into that file, exactly like the ones index.Entry.MetaOfs
// stores.
type FileReader struct {
	f *os.File
}

// Open opens the metastore file at path.
func Open(path string) (*FileReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return &FileReader{f: f}, nil
}

func (r *FileReader) MetadataAt(offset int64) (metadata.Metadata, error) {
	var lenBuf [4]byte
	if _, err := r.f.ReadAt(lenBuf[:], offset); err != nil {
		return metadata.Metadata{}, fmt.Errorf("metastore: read length at %d: %w", offset, err)
	}
	n := binary.LittleEndian.Uint32(lenBuf[:])
	buf := make([]byte, n)
	if _, err := r.f.ReadAt(buf, offset+4); err != nil {
		return metadata.Metadata{}, fmt.Errorf("metastore: read record at %d: %w", offset, err)
	}
	m, _, err := metadata.Decode(buf)
	return m, err
}

func (r *FileReader) Close() error { return r.f.Close() }

// Writer appends Metadata records and reports the offset each was written
// at, for use as an index.Entry.MetaOfs.
type Writer struct {
	f   *os.File
	pos int64
}

// Create creates (truncating) the metastore file at path.
func Create(path string) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	return &Writer{f: f}, nil
}

// Append writes m and returns the offset it can later be read back from.
func (w *Writer) Append(m metadata.Metadata) (int64, error) {
	enc := m.Encode()
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(enc)))
	if _, err := w.f.Write(lenBuf[:]); err != nil {
		return 0, err
	}
	if _, err := w.f.Write(enc); err != nil {
		return 0, err
	}
	offset := w.pos
	w.pos += int64(len(lenBuf)) + int64(len(enc))
	return offset, nil
}

func (w *Writer) Close() error { return w.f.Close() }
