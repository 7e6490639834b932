// Package refs implements the branch reference update CommitEmitter
// performs once the commit object has been written: an atomic
// compare-and-swap of refs/heads/<name> against the previously read
// parent oid (lock, verify the old value, write).
package refs

import (
	"fmt"
	"os"
	"strings"

	"github.com/go-git/go-billy/v5"
	"github.com/pkg/errors"

	"github.com/go-bup/bup/internal/oid"
)

// ErrChanged is returned when the reference's current value doesn't match
// the expected parent, meaning something else updated the branch
// concurrently.
var ErrChanged = errors.New("refs: reference has changed since it was read")

// Updater updates refs/heads/<name> files on fs, rooted such that
// Read/Update operate on paths relative to the repository root.
type Updater struct {
	fs billy.Filesystem
}

// NewUpdater returns an Updater rooted at fs.
func NewUpdater(fs billy.Filesystem) *Updater {
	return &Updater{fs: fs}
}

func refPath(name string) string {
	return "refs/heads/" + strings.TrimPrefix(name, "refs/heads/")
}

// Read returns the current oid refs/heads/<name> points at, or the zero
// oid if the branch doesn't exist yet.
func (u *Updater) Read(name string) (oid.ID, error) {
	p := refPath(name)
	f, err := u.fs.Open(p)
	if os.IsNotExist(err) {
		return oid.Zero, nil
	}
	if err != nil {
		return oid.Zero, err
	}
	defer f.Close()

	var buf [64]byte
	n, _ := f.Read(buf[:])
	return oid.FromHex(strings.TrimSpace(string(buf[:n])))
}

// CompareAndSwap sets refs/heads/<name> to newID iff its current value is
// exactly oldID (the zero oid if the branch is expected not to exist yet).
// CommitEmitter calls it only after the commit object has been written,
// with oldID set to the value it read just before building that commit.
func (u *Updater) CompareAndSwap(name string, oldID, newID oid.ID) error {
	p := refPath(name)

	f, err := u.fs.OpenFile(p, os.O_RDWR|os.O_CREATE, 0666)
	if err != nil {
		return errors.Wrapf(err, "refs: open %s", p)
	}
	defer f.Close()

	_ = f.Lock()
	defer f.Unlock()

	var buf [64]byte
	n, _ := f.Read(buf[:])
	current := strings.TrimSpace(string(buf[:n]))

	var currentID oid.ID
	if current != "" {
		currentID, err = oid.FromHex(current)
		if err != nil {
			return fmt.Errorf("refs: %s: malformed contents %q", p, current)
		}
	}
	if currentID != oldID {
		return ErrChanged
	}

	if err := f.Truncate(0); err != nil {
		return err
	}
	if _, err := f.Seek(0, 0); err != nil {
		return err
	}
	_, err = fmt.Fprintf(f, "%s\n", newID)
	return err
}
