package store

import (
	"errors"

	"github.com/go-bup/bup/internal/object"
	"github.com/go-bup/bup/internal/oid"
)

// ErrRemoteNotImplemented is returned by Remote for every operation. The
// remote-repository client transport is an external collaborator
// referenced only by its interface contract; this type
// exists so --remote can be parsed and rejected with a clear diagnostic
// rather than silently behaving like local mode.
var ErrRemoteNotImplemented = errors.New("store: remote object store transport is not implemented")

// Remote is a Writer stub documenting the external remote-transport
// boundary. It satisfies Writer so
// callers can construct one uniformly, but every method fails until a real
// transport is wired in.
type Remote struct {
	HostPath string
	BWLimit  int64 // outbound byte-rate ceiling (--bwlimit), 0 = unlimited
}

func (r *Remote) Exists(id oid.ID) (bool, error) { return false, ErrRemoteNotImplemented }

func (r *Remote) NewBlob(data []byte) (oid.ID, error) { return oid.Zero, ErrRemoteNotImplemented }

func (r *Remote) NewTree(entries []object.TreeEntry) (oid.ID, error) {
	return oid.Zero, ErrRemoteNotImplemented
}

func (r *Remote) NewCommit(c *object.Commit) (oid.ID, error) {
	return oid.Zero, ErrRemoteNotImplemented
}
