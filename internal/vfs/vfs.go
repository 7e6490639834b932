// Package vfs implements the read side of a saved tree: walking stored
// tree objects, demangling chunked-file names back to
// their original spelling, and pairing each entry back up with the
// Metadata record a save wrote for it into the ".bupm" sidecar.
package vfs

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/go-bup/bup/internal/filemode"
	"github.com/go-bup/bup/internal/mangle"
	"github.com/go-bup/bup/internal/metadata"
	"github.com/go-bup/bup/internal/object"
	"github.com/go-bup/bup/internal/oid"
)

// ObjectReader is the read-side half of the object store contract: enough
// to walk a tree without depending on the whole store package.
type ObjectReader interface {
	ReadRaw(id oid.ID) (kind string, data []byte, err error)
}

// Entry is one logical (demangled) child of a listed directory.
type Entry struct {
	Name    string
	Mode    filemode.FileMode // logical mode: a chunked regular file reports Regular, never Dir
	OID     oid.ID            // the oid actually stored: a chunk tree's root for chunked files
	Chunked bool
	Meta    *metadata.Metadata // nil when no sidecar record applies (e.g. synthetic root)
}

// IsDir reports whether e is a real (non-chunked) directory.
func (e Entry) IsDir() bool { return e.Mode == filemode.Dir }

// List decodes the tree at id, returning the directory's own metadata (the
// sidecar's first record) and its logical children in storage order.
func List(r ObjectReader, id oid.ID) (metadata.Metadata, []Entry, error) {
	kind, data, err := r.ReadRaw(id)
	if err != nil {
		return metadata.Metadata{}, nil, err
	}
	if kind != "tree" {
		return metadata.Metadata{}, nil, fmt.Errorf("vfs: %s is a %s, not a tree", id, kind)
	}
	t, err := object.Decode(data)
	if err != nil {
		return metadata.Metadata{}, nil, err
	}

	var sidecar *object.TreeEntry
	children := make([]object.TreeEntry, 0, len(t.Entries))
	for i := range t.Entries {
		if t.Entries[i].Name == ".bupm" {
			sidecar = &t.Entries[i]
			continue
		}
		children = append(children, t.Entries[i])
	}

	var records []metadata.Metadata
	if sidecar != nil {
		blob, err := readFileContent(r, sidecar.Mode, sidecar.OID)
		if err != nil {
			return metadata.Metadata{}, nil, fmt.Errorf("vfs: reading .bupm at %s: %w", id, err)
		}
		records, err = decodeSidecar(blob)
		if err != nil {
			return metadata.Metadata{}, nil, err
		}
	}

	var dirMeta metadata.Metadata
	recordIdx := 0
	if len(records) > 0 {
		dirMeta = records[0]
		recordIdx = 1
	}

	entries := make([]Entry, 0, len(children))
	for _, c := range children {
		name, chunked := mangle.Demangle(c.Name)
		logicalMode := c.Mode
		if chunked {
			logicalMode = filemode.Regular
		}
		e := Entry{Name: name, Mode: logicalMode, OID: c.OID, Chunked: chunked}
		// Chunked regular files are stored as trees but carry a sidecar
		// record like any other non-directory; only real subdirectories
		// contribute none.
		if (c.Mode != filemode.Dir || chunked) && recordIdx < len(records) {
			m := records[recordIdx]
			e.Meta = &m
			recordIdx++
		}
		entries = append(entries, e)
	}
	return dirMeta, entries, nil
}

func decodeSidecar(blob []byte) ([]metadata.Metadata, error) {
	var records []metadata.Metadata
	for len(blob) > 0 {
		m, n, err := metadata.Decode(blob)
		if err != nil {
			return nil, fmt.Errorf("vfs: malformed .bupm record: %w", err)
		}
		records = append(records, m)
		blob = blob[n:]
	}
	return records, nil
}

// readFileContent returns the full logical byte content addressed by
// (mode, id): a blob's own bytes, or the concatenation of a hashsplit
// chunk tree's leaves read depth-first, left to right.
func readFileContent(r ObjectReader, mode filemode.FileMode, id oid.ID) ([]byte, error) {
	kind, data, err := r.ReadRaw(id)
	if err != nil {
		return nil, err
	}
	if mode != filemode.Dir {
		if kind != "blob" {
			return nil, fmt.Errorf("vfs: %s is a %s, not a blob", id, kind)
		}
		return data, nil
	}
	if kind != "tree" {
		return nil, fmt.Errorf("vfs: %s is a %s, not a tree", id, kind)
	}
	t, err := object.Decode(data)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	for _, e := range t.Entries {
		chunk, err := readFileContent(r, e.Mode, e.OID)
		if err != nil {
			return nil, err
		}
		buf.Write(chunk)
	}
	return buf.Bytes(), nil
}

// Resolve walks path (slash-separated, relative to root) through nested
// List calls and returns the Entry for its final component. An empty path
// resolves to a synthetic Entry naming root itself.
func Resolve(r ObjectReader, root oid.ID, path string) (Entry, error) {
	path = strings.Trim(path, "/")
	if path == "" {
		return Entry{Name: "", Mode: filemode.Dir, OID: root}, nil
	}

	cur := root
	parts := strings.Split(path, "/")
	var found Entry
	for i, part := range parts {
		_, entries, err := List(r, cur)
		if err != nil {
			return Entry{}, err
		}
		var ok bool
		for _, e := range entries {
			if e.Name == part {
				found, ok = e, true
				break
			}
		}
		if !ok {
			return Entry{}, fmt.Errorf("vfs: no such path %q", path)
		}
		if i < len(parts)-1 {
			if !found.IsDir() {
				return Entry{}, fmt.Errorf("vfs: %q is not a directory", strings.Join(parts[:i+1], "/"))
			}
			cur = found.OID
		}
	}
	return found, nil
}

// ReadFile returns e's full logical content, whether it is a plain blob or
// a chunked regular file stored as a tree of leaves.
func ReadFile(r ObjectReader, e Entry) ([]byte, error) {
	storageMode := e.Mode
	if e.Chunked {
		storageMode = filemode.Dir
	}
	return readFileContent(r, storageMode, e.OID)
}
