package object_test

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/go-bup/bup/internal/oid"
	"github.com/go-bup/bup/internal/object"
)

func TestSignatureStringParseRoundTrip(t *testing.T) {
	sig := object.Signature{
		Name:  "bup",
		Email: "bup@localhost",
		When:  time.Unix(1700000000, 0).In(time.FixedZone("", -3600)),
	}
	parsed, err := object.ParseSignature(sig.String())
	require.NoError(t, err)
	require.Equal(t, sig.Name, parsed.Name)
	require.Equal(t, sig.Email, parsed.Email)
	require.Equal(t, sig.When.Unix(), parsed.When.Unix())
}

func TestCommitEncodeOmitsParentWhenZero(t *testing.T) {
	sig := object.Signature{Name: "bup", Email: "bup@localhost", When: time.Unix(1700000000, 0).UTC()}
	c := &object.Commit{
		Tree:      oid.Sum("tree", nil),
		Author:    sig,
		Committer: sig,
		Message:   "bup save\n",
	}
	out := string(c.Encode())
	require.True(t, strings.HasPrefix(out, "tree "))
	require.NotContains(t, out, "parent ")
	require.True(t, strings.HasSuffix(out, "bup save\n"))
}

func TestCommitEncodeIncludesParentWhenSet(t *testing.T) {
	sig := object.Signature{Name: "bup", Email: "bup@localhost", When: time.Unix(1700000000, 0).UTC()}
	c := &object.Commit{
		Tree:      oid.Sum("tree", nil),
		Parent:    oid.Sum("commit", []byte("prev")),
		Author:    sig,
		Committer: sig,
		Message:   "again\n",
	}
	require.Contains(t, string(c.Encode()), "parent "+c.Parent.String())
}
