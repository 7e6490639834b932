// Package metadata implements the per-entry Metadata record: an opaque,
// byte-encodable record of ownership, permissions,
// timestamps and symlink/hardlink state, with one record per non-directory
// tree entry (plus one for the directory itself) concatenated into the
// ".bupm" sidecar.
package metadata

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"syscall"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/pkg/errors"
	"golang.org/x/text/unicode/norm"
)

// Metadata is the decoded form of a single sidecar record.
type Metadata struct {
	UID, GID       int
	Mode           os.FileMode
	Atime          time.Time
	Mtime          time.Time
	Ctime          time.Time
	SymlinkTarget  string
	HardlinkTarget string
	Size           int64
}

// FromPath builds a Metadata by statting path on fs. The path is
// NFC-normalized first (golang.org/x/text/unicode/norm), so a path that
// arrives in NFD form is looked up under its NFC spelling. The record
// itself stores no file name.
func FromPath(fs billy.Filesystem, path string, hardlinkTarget string) (Metadata, error) {
	path = norm.NFC.String(path)
	fi, err := fs.Lstat(path)
	if err != nil {
		return Metadata{}, errors.Wrapf(err, "metadata: stat %s", path)
	}
	m := Metadata{
		Mode:           fi.Mode(),
		Mtime:          fi.ModTime(),
		Size:           fi.Size(),
		HardlinkTarget: hardlinkTarget,
	}
	if st, ok := fi.Sys().(*syscall.Stat_t); ok {
		m.UID = int(st.Uid)
		m.GID = int(st.Gid)
		m.Atime = time.Unix(st.Atim.Sec, st.Atim.Nsec)
		m.Ctime = time.Unix(st.Ctim.Sec, st.Ctim.Nsec)
	}
	if fi.Mode()&os.ModeSymlink != 0 {
		if lr, ok := fs.(billy.Symlink); ok {
			target, err := lr.Readlink(path)
			if err != nil {
				return Metadata{}, errors.Wrapf(err, "metadata: readlink %s", path)
			}
			m.SymlinkTarget = target
		}
	}
	return m, nil
}

// Empty returns the Metadata with no owner, size or timestamps and a plain
// 0755 directory mode, used for synthetic directories
// that have no filesystem counterpart (PathMapper graft components) and
// for the root of a save when a root collision was detected.
func Empty() Metadata {
	return Metadata{Mode: os.ModeDir | 0755}
}

// Copy returns an independent copy of m.
func (m Metadata) Copy() Metadata {
	return m
}

// record layout: a small self-describing binary record. It only has to
// round-trip through our own sidecar writer and the vfs reader.
func (m Metadata) Encode() []byte {
	var buf bytes.Buffer
	binary.Write(&buf, binary.LittleEndian, uint32(m.UID))
	binary.Write(&buf, binary.LittleEndian, uint32(m.GID))
	binary.Write(&buf, binary.LittleEndian, uint32(m.Mode))
	binary.Write(&buf, binary.LittleEndian, m.Atime.Unix())
	binary.Write(&buf, binary.LittleEndian, m.Mtime.Unix())
	binary.Write(&buf, binary.LittleEndian, m.Ctime.Unix())
	binary.Write(&buf, binary.LittleEndian, m.Size)
	writeString(&buf, m.SymlinkTarget)
	writeString(&buf, m.HardlinkTarget)
	return buf.Bytes()
}

func writeString(buf *bytes.Buffer, s string) {
	binary.Write(buf, binary.LittleEndian, uint32(len(s)))
	buf.WriteString(s)
}

// Decode parses a record produced by Encode, returning the number of bytes
// consumed so callers can walk a concatenated sidecar stream.
func Decode(data []byte) (Metadata, int, error) {
	r := bytes.NewReader(data)
	var m Metadata
	var uid, gid, mode uint32
	var atime, mtime, ctime int64
	if err := readFields(r, &uid, &gid, &mode, &atime, &mtime, &ctime, &m.Size); err != nil {
		return m, 0, err
	}
	m.UID, m.GID, m.Mode = int(uid), int(gid), os.FileMode(mode)
	m.Atime = time.Unix(atime, 0)
	m.Mtime = time.Unix(mtime, 0)
	m.Ctime = time.Unix(ctime, 0)
	var err error
	if m.SymlinkTarget, err = readString(r); err != nil {
		return m, 0, err
	}
	if m.HardlinkTarget, err = readString(r); err != nil {
		return m, 0, err
	}
	return m, len(data) - r.Len(), nil
}

func readFields(r io.Reader, fields ...interface{}) error {
	for _, f := range fields {
		if err := binary.Read(r, binary.LittleEndian, f); err != nil {
			return err
		}
	}
	return nil
}

func readString(r io.Reader) (string, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", fmt.Errorf("metadata: truncated string field: %w", err)
	}
	return string(buf), nil
}
