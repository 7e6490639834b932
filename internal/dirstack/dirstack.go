// Package dirstack implements DirStack: the stack of open
// archive directories being assembled from the flat, post-order index
// stream, and the pop algorithm that closes a frame into a tree plus its
// ".bupm" metadata sidecar.
package dirstack

import (
	"bytes"
	"fmt"

	"github.com/emirpasic/gods/sets/linkedhashset"

	"github.com/go-bup/bup/internal/filemode"
	"github.com/go-bup/bup/internal/hashsplit"
	"github.com/go-bup/bup/internal/mangle"
	"github.com/go-bup/bup/internal/metadata"
	"github.com/go-bup/bup/internal/object"
	"github.com/go-bup/bup/internal/oid"
)

// DirEntry is one child added to a StackFrame.
type DirEntry struct {
	Name    string
	FSMode  filemode.FileMode // filesystem-level mode
	GitMode filemode.FileMode // storage-level mode
	OID     oid.ID
	Meta    *metadata.Metadata // nil for subdirectory entries
}

// StackFrame is one open archive directory.
type StackFrame struct {
	Name  string
	Meta  metadata.Metadata
	Items []DirEntry
}

// ObjectWriter is the subset of the object store DirStack needs.
type ObjectWriter interface {
	Exists(id oid.ID) (bool, error)
	NewBlob(data []byte) (oid.ID, error)
	NewTree(entries []object.TreeEntry) (oid.ID, error)
}

// DuplicateHandler is called for every child dropped because its name
// collided with an earlier one in the same frame.
// dirPath is the archive path of the frame being closed.
type DuplicateHandler func(dirPath, name string)

// Stack maintains the frames along the current archive path. The frame at
// index 0 is always the archive root.
type Stack struct {
	frames []*StackFrame
	writer ObjectWriter
	onDup  DuplicateHandler
}

// New creates a Stack writing objects through w. onDup may be nil.
func New(w ObjectWriter, onDup DuplicateHandler) *Stack {
	if onDup == nil {
		onDup = func(string, string) {}
	}
	return &Stack{writer: w, onDup: onDup}
}

// Depth returns the number of open frames.
func (s *Stack) Depth() int { return len(s.frames) }

// Names returns the archive names of every open frame, root first.
func (s *Stack) Names() []string {
	names := make([]string, len(s.frames))
	for i, f := range s.frames {
		names[i] = f.Name
	}
	return names
}

// Path joins Names with "/", the archive path currently open.
func (s *Stack) Path() string {
	path := ""
	for i, f := range s.frames {
		if i > 0 {
			path += "/"
		}
		path += f.Name
	}
	return path
}

// Push opens a new frame as a child of the current top.
func (s *Stack) Push(name string, meta metadata.Metadata) {
	s.frames = append(s.frames, &StackFrame{Name: name, Meta: meta})
}

// AppendToTop records a new child of the current top frame. No
// deduplication happens here -- it happens at Pop time.
func (s *Stack) AppendToTop(name string, fsMode, gitMode filemode.FileMode, id oid.ID, meta *metadata.Metadata) {
	top := s.frames[len(s.frames)-1]
	top.Items = append(top.Items, DirEntry{Name: name, FSMode: fsMode, GitMode: gitMode, OID: id, Meta: meta})
}

// Pop closes the top frame, emitting its tree (unless forceTree is
// non-nil, in which case that oid is reused verbatim -- an unchanged
// subdirectory whose stored tree is still valid) and appends a TREE entry
// for it to the new top frame, if any. dirMetadataOverride, if non-nil,
// replaces the frame's own pushed metadata in the sidecar (used for the
// root, whose metadata is forced empty on a root collision).
func (s *Stack) Pop(forceTree *oid.ID, dirMetadataOverride *metadata.Metadata) (oid.ID, error) {
	n := len(s.frames)
	item := s.frames[n-1]
	s.frames = s.frames[:n-1]

	var tree oid.ID
	if forceTree != nil {
		tree = *forceTree
	} else {
		var err error
		tree, err = s.buildTree(item, dirMetadataOverride)
		if err != nil {
			return oid.Zero, err
		}
	}

	if len(s.frames) > 0 {
		s.AppendToTop(item.Name, filemode.Dir, filemode.Dir, tree, nil)
	}
	return tree, nil
}

// sidecarRecord pairs a metadata record with the shalist sort key it is
// ordered by: the directory's own record always sorts first (empty key),
// and every other record sorts by its mangled name's ShalistKey, matching
// tree entry order.
type sidecarRecord struct {
	key  string
	meta metadata.Metadata
}

func (s *Stack) buildTree(item *StackFrame, dirMetadataOverride *metadata.Metadata) (oid.ID, error) {
	seen := linkedhashset.New()
	clean := make([]DirEntry, 0, len(item.Items))
	dirPath := item.Name + "/"
	if len(s.frames) > 0 {
		dirPath = s.Path() + "/" + dirPath
	}
	// Duplicates are detected on the raw name: two entries that collide
	// after a strip/graft merge must resolve first-wins even when their
	// storage shapes differ and they would mangle to distinct strings.
	for _, e := range item.Items {
		if seen.Contains(e.Name) {
			s.onDup(dirPath, e.Name)
			continue
		}
		seen.Add(e.Name)
		clean = append(clean, e)
	}

	dirMeta := item.Meta
	if dirMetadataOverride != nil {
		dirMeta = *dirMetadataOverride
	}

	records := []sidecarRecord{{key: "", meta: dirMeta}}
	for _, e := range clean {
		if e.Meta == nil {
			continue // real subdirectories: their metadata travels with the subtree itself
		}
		// A chunked regular file is stored as a tree but is not a
		// directory, so its record stays in this frame's sidecar, keyed by
		// the same mangled name its tree entry sorts under.
		mangled := mangle.Name(e.Name, e.GitMode == filemode.Dir && e.FSMode != filemode.Dir)
		records = append(records, sidecarRecord{key: object.ShalistKey(e.GitMode, mangled), meta: *e.Meta})
	}
	stableSortRecords(records)

	var sidecar []byte
	for _, r := range records {
		sidecar = append(sidecar, r.meta.Encode()...)
	}

	sidecarMode, sidecarOID, err := hashsplit.Split(bytes.NewReader(sidecar),
		func(d []byte) (oid.ID, error) { return s.writer.NewBlob(d) },
		func(entries []hashsplit.Entry) (oid.ID, error) { return s.writer.NewTree(toTreeEntries(entries)) })
	if err != nil {
		return oid.Zero, fmt.Errorf("dirstack: building .bupm sidecar: %w", err)
	}

	shalist := []object.TreeEntry{{Name: ".bupm", Mode: sidecarMode, OID: sidecarOID}}
	for _, e := range clean {
		mangled := mangle.Name(e.Name, e.GitMode == filemode.Dir && e.FSMode != filemode.Dir)
		shalist = append(shalist, object.TreeEntry{Name: mangled, Mode: e.GitMode, OID: e.OID})
	}
	t := &object.Tree{Entries: shalist}
	t.Sort()

	return s.writer.NewTree(t.Entries)
}

func stableSortRecords(records []sidecarRecord) {
	// insertion sort: records is small (one directory's worth of children)
	// and must be a *stable* sort so that equal keys (empty directories
	// contribute none) keep their original relative order.
	for i := 1; i < len(records); i++ {
		for j := i; j > 0 && records[j].key < records[j-1].key; j-- {
			records[j], records[j-1] = records[j-1], records[j]
		}
	}
}

func toTreeEntries(entries []hashsplit.Entry) []object.TreeEntry {
	out := make([]object.TreeEntry, len(entries))
	for i, e := range entries {
		out[i] = object.TreeEntry{Name: fmt.Sprintf("%d", i), Mode: e.Mode, OID: e.OID}
	}
	return out
}

