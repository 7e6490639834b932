package object

import (
	"bytes"
	"fmt"

	"github.com/go-bup/bup/internal/oid"
)

// Commit is the top-level object a save optionally wraps its root tree in
//. Parent is the zero ID when there is no previous commit on the
// branch being updated.
type Commit struct {
	Tree      oid.ID
	Parent    oid.ID
	Author    Signature
	Committer Signature
	Message   string
}

// Encode renders c in the canonical commit wire format.
func (c *Commit) Encode() []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "tree %s\n", c.Tree)
	if !c.Parent.IsZero() {
		fmt.Fprintf(&buf, "parent %s\n", c.Parent)
	}
	fmt.Fprintf(&buf, "author %s\n", c.Author)
	fmt.Fprintf(&buf, "committer %s\n", c.Committer)
	buf.WriteByte('\n')
	buf.WriteString(c.Message)
	return buf.Bytes()
}
