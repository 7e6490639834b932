// Package filemode defines the small set of storage-level modes a tree
// entry can carry, matching the conventional git tree encoding: the mode
// stored alongside a tree entry is always one of a handful of constants,
// never an arbitrary POSIX mode.
package filemode

import (
	"fmt"
	"os"
	"strconv"
)

// FileMode represents the git-style mode of a tree entry.
type FileMode uint32

const (
	Empty      FileMode = 0
	Dir        FileMode = 0040000
	Regular    FileMode = 0100644
	Deprecated FileMode = 0100664
	Executable FileMode = 0100755
	Symlink    FileMode = 0120000
	Submodule  FileMode = 0160000
)

// New parses the octal string representation used by tree entries (e.g.
// "40000", "100644"). Leading zeroes and a missing leading zero on Dir are
// both accepted, matching what shows up in real trees and tools built atop
// them.
func New(s string) (FileMode, error) {
	n, err := strconv.ParseUint(s, 8, 32)
	if err != nil {
		return Empty, fmt.Errorf("filemode: invalid mode %q: %w", s, err)
	}
	return FileMode(n), nil
}

// String renders the mode the way it appears inside a tree object.
func (m FileMode) String() string {
	return fmt.Sprintf("%o", uint32(m))
}

// IsRegular reports whether m is Regular, Deprecated or Executable.
func (m FileMode) IsRegular() bool {
	return m == Regular || m == Deprecated || m == Executable
}

// IsMalformed reports whether m is not one of the known constants.
func (m FileMode) IsMalformed() bool {
	switch m {
	case Empty, Dir, Regular, Deprecated, Executable, Symlink, Submodule:
		return false
	default:
		return true
	}
}

// FromOSMode maps a POSIX os.FileMode, as returned by os.Lstat, onto the
// closest storage-level FileMode. It never returns Deprecated or
// Submodule: those only arise from stored state, not live stat data.
func FromOSMode(m os.FileMode) FileMode {
	switch {
	case m&os.ModeSymlink != 0:
		return Symlink
	case m.IsDir():
		return Dir
	case m&0111 != 0:
		return Executable
	default:
		return Regular
	}
}
