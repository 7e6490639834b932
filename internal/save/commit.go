package save

import (
	"github.com/pkg/errors"

	"github.com/go-bup/bup/internal/object"
	"github.com/go-bup/bup/internal/oid"
	"github.com/go-bup/bup/internal/refs"
	"github.com/go-bup/bup/internal/store"
)

// CommitEmitter wraps a finished root tree in a commit object and advances
// a branch ref to point at it: read the branch's current
// value, build a commit whose parent is that value, write the commit, then
// compare-and-swap the ref. A concurrent writer that raced us is surfaced
// as refs.ErrChanged rather than silently overwritten.
type CommitEmitter struct {
	Writer  store.Writer
	Refs    *refs.Updater
	Branch  string
	Author  object.Signature
	Message string
}

// Commit writes a commit object pointing at tree and advances Branch to it.
// It returns the new commit's oid and the branch's previous value (the
// zero oid for a brand new branch).
func (c *CommitEmitter) Commit(tree oid.ID) (commitID, parent oid.ID, err error) {
	parent, err = c.Refs.Read(c.Branch)
	if err != nil {
		return oid.Zero, oid.Zero, errors.Wrapf(err, "commit: read branch %s", c.Branch)
	}

	commit := &object.Commit{
		Tree:      tree,
		Parent:    parent,
		Author:    c.Author,
		Committer: c.Author,
		Message:   c.Message,
	}

	commitID, err = c.Writer.NewCommit(commit)
	if err != nil {
		return oid.Zero, parent, errors.Wrap(err, "commit: write commit object")
	}

	if err := c.Refs.CompareAndSwap(c.Branch, parent, commitID); err != nil {
		return commitID, parent, errors.Wrapf(err, "commit: update branch %s", c.Branch)
	}
	return commitID, parent, nil
}
