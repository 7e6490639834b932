// Package store implements the ObjectWriter contract: content
// addressed storage with exists/new_blob/new_tree/new_commit. It writes
// loose objects (one compressed file per object, fanned out by the first
// byte of the oid, exactly like a conventional git object database) rather
// than a packed multi-object format: defining the on-disk pack format is
// an explicit non-goal.
package store

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path"

	"github.com/go-git/go-billy/v5"
	"github.com/golang/groupcache/lru"
	"github.com/klauspost/compress/zlib"
	"github.com/pkg/errors"

	"github.com/go-bup/bup/internal/object"
	"github.com/go-bup/bup/internal/oid"
)

// Writer is the object-store contract DirStack, hashsplit and CommitEmitter
// write through.
type Writer interface {
	Exists(id oid.ID) (bool, error)
	NewBlob(data []byte) (oid.ID, error)
	NewTree(entries []object.TreeEntry) (oid.ID, error)
	NewCommit(c *object.Commit) (oid.ID, error)
}

// Local is a Writer backed by a loose-object directory on fs, rooted at
// dir (conventionally "<repo>/objects").
type Local struct {
	fs            billy.Filesystem
	dir           string
	compressLevel int
	cache         *lru.Cache // oid.ID -> struct{}, existence only
}

// cacheSize bounds how many recently-seen oids Local remembers without
// touching the filesystem again.
const cacheSize = 4096

// NewLocal creates a Local writer. compressLevel is the zlib level
// (0-9) the --compress flag controls.
func NewLocal(fs billy.Filesystem, dir string, compressLevel int) *Local {
	return &Local{fs: fs, dir: dir, compressLevel: compressLevel, cache: lru.New(cacheSize)}
}

func (l *Local) objectPath(id oid.ID) string {
	hex := id.String()
	return path.Join(l.dir, hex[:2], hex[2:])
}

// Exists reports whether id is already stored, consulting the LRU cache
// before touching the filesystem.
func (l *Local) Exists(id oid.ID) (bool, error) {
	if _, ok := l.cache.Get(id); ok {
		return true, nil
	}
	_, err := l.fs.Stat(l.objectPath(id))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	l.cache.Add(id, struct{}{})
	return true, nil
}

func (l *Local) write(kind string, data []byte) (oid.ID, error) {
	id := oid.Sum(kind, data)
	if ok, err := l.Exists(id); err != nil {
		return oid.Zero, err
	} else if ok {
		return id, nil
	}

	p := l.objectPath(id)
	if err := l.fs.MkdirAll(path.Dir(p), 0755); err != nil {
		return oid.Zero, err
	}

	tmp := p + ".tmp"
	f, err := l.fs.Create(tmp)
	if err != nil {
		return oid.Zero, err
	}

	zw, err := zlib.NewWriterLevel(f, l.compressLevel)
	if err != nil {
		f.Close()
		return oid.Zero, err
	}
	fmt.Fprintf(zw, "%s %d\x00", kind, len(data))
	if _, err := zw.Write(data); err != nil {
		zw.Close()
		f.Close()
		return oid.Zero, err
	}
	if err := zw.Close(); err != nil {
		f.Close()
		return oid.Zero, err
	}
	if err := f.Close(); err != nil {
		return oid.Zero, err
	}
	if err := l.fs.Rename(tmp, p); err != nil {
		return oid.Zero, err
	}

	l.cache.Add(id, struct{}{})
	return id, nil
}

func (l *Local) NewBlob(data []byte) (oid.ID, error) {
	return l.write("blob", data)
}

func (l *Local) NewTree(entries []object.TreeEntry) (oid.ID, error) {
	t := &object.Tree{Entries: entries}
	return l.write("tree", t.Encode())
}

func (l *Local) NewCommit(c *object.Commit) (oid.ID, error) {
	return l.write("commit", c.Encode())
}

// ReadRaw loads and inflates a stored object's payload, stripping the
// "<kind> <size>\0" header. It's the read-side counterpart used by the
// vfs/ls subsystem.
func (l *Local) ReadRaw(id oid.ID) (kind string, data []byte, err error) {
	f, err := l.fs.Open(l.objectPath(id))
	if err != nil {
		return "", nil, errors.Wrapf(err, "store: open %s", id)
	}
	defer f.Close()

	zr, err := zlib.NewReader(f)
	if err != nil {
		return "", nil, errors.Wrapf(err, "store: inflate %s", id)
	}
	defer zr.Close()

	raw, err := io.ReadAll(zr)
	if err != nil {
		return "", nil, err
	}
	nul := bytes.IndexByte(raw, 0)
	if nul < 0 {
		return "", nil, fmt.Errorf("store: malformed object header for %s", id)
	}
	header := string(raw[:nul])
	var kindField string
	var size int
	if _, err := fmt.Sscanf(header, "%s %d", &kindField, &size); err != nil {
		return "", nil, fmt.Errorf("store: malformed object header %q: %w", header, err)
	}
	return kindField, raw[nul+1:], nil
}
