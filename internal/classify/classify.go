// Package classify implements EntryClassifier: for every
// index entry, decide whether to skip it, reuse its already-stored
// object, or hand it to the stat-and-store path.
package classify

import (
	"time"

	"github.com/pkg/errors"

	"github.com/go-bup/bup/internal/hlinkdb"
	"github.com/go-bup/bup/internal/index"
	"github.com/go-bup/bup/internal/metadata"
	"github.com/go-bup/bup/internal/metastore"
)

func unixTime(sec int64) time.Time { return time.Unix(sec, 0) }

// Decision is the outcome of classifying one entry.
type Decision int

const (
	// Deleted: the entry doesn't exist on disk any more; emit nothing.
	Deleted Decision = iota
	// SkippedLarge: --smaller filtered it out and it wasn't already valid.
	SkippedLarge
	// Reuse: the stored oid is still valid and present; no read needed.
	Reuse
	// StatAndStore: must be freshly read from the filesystem.
	StatAndStore
)

// Classifier holds the (optional) collaborators and parameters the
// decision depends on.
type Classifier struct {
	Store     index.Store
	MetaStore metastore.Reader
	HLinkDB   hlinkdb.DB
	SizeLimit int64 // 0 means unlimited (--smaller)
}

// Result is what Classify produces for a Reuse decision: the metadata to
// attach to the DirStack entry without touching the filesystem.
type Result struct {
	Decision Decision
	Meta     metadata.Metadata
}

// Classify decides how one entry is handled. The stat-and-store work
// itself is internal/save's job, since it needs to actually touch the
// filesystem.
func (c *Classifier) Classify(e *index.Entry) (Result, error) {
	exists := e.Exists()
	hashValid := c.alreadySaved(e)
	e.SetShaMissing(!hashValid)

	if !exists {
		return Result{Decision: Deleted}, nil
	}

	if c.SizeLimit > 0 && e.Size >= c.SizeLimit && !hashValid {
		return Result{Decision: SkippedLarge}, nil
	}

	if !hashValid {
		return Result{Decision: StatAndStore}, nil
	}

	meta, err := c.MetaStore.MetadataAt(e.MetaOfs)
	if err != nil {
		return Result{}, errors.Wrapf(err, "classify: %s", e.Path)
	}
	meta.HardlinkTarget = c.FindHardlinkTarget(e)
	// The metastore zeroes these; restore them from the index.
	meta.Atime = unixTime(e.Atime)
	meta.Mtime = unixTime(e.Mtime)
	meta.Ctime = unixTime(e.Ctime)
	return Result{Decision: Reuse, Meta: meta}, nil
}

// alreadySaved reports whether the entry's recorded sha is valid *and*
// the object store still has it.
func (c *Classifier) alreadySaved(e *index.Entry) bool {
	if !e.IsValid() {
		return false
	}
	ok, err := c.Store.Exists(e.SHA)
	return err == nil && ok
}

// FindHardlinkTarget returns the canonical (first-indexed) path sharing
// e's (dev, ino), or "" when e isn't hardlinked. The stat-and-store path
// needs it too: freshly read metadata carries the hardlink target the
// same way reused metadata does.
func (c *Classifier) FindHardlinkTarget(e *index.Entry) string {
	if c.HLinkDB == nil || e.IsDir() || e.Nlink <= 1 {
		return ""
	}
	paths := c.HLinkDB.NodePaths(e.Dev, e.Ino)
	if len(paths) == 0 {
		return ""
	}
	return paths[0]
}
