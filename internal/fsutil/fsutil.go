// Package fsutil centralizes the handful of filesystem operations the
// save engine needs, all routed through go-billy so that every
// filesystem-facing component (PathMapper, metadata, the stat-and-store
// path, ref updates) shares one substitutable Filesystem.
package fsutil

import (
	"os"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"golang.org/x/sys/unix"
)

// New returns a billy.Filesystem rooted at root ("/" for absolute-path
// traversal of the whole machine, as bup save does). Absolute paths are
// resolved under root, so index entries recorded with absolute paths work
// against any root.
func New(root string) billy.Filesystem {
	return osfs.New(root)
}

// OpenNoAtime opens name for reading, asking the kernel not to update its
// access time if that's supported: archiving a file shouldn't itself count as
// "access" for the purposes of its own metadata.
func OpenNoAtime(fs billy.Filesystem, name string) (billy.File, error) {
	if f, err := fs.OpenFile(name, unix.O_NOATIME|os.O_RDONLY, 0); err == nil {
		return f, nil
	}
	// EPERM is common when the kernel refuses O_NOATIME to a non-owner;
	// fall back to a plain open rather than failing the whole save.
	return fs.Open(name)
}
