// Package oid provides the 20-byte content-hash identifiers used to
// address every blob, tree and commit object written by a save.
package oid

import (
	"encoding/hex"
	"fmt"

	"github.com/pjbgf/sha1cd"
)

// Size is the length in bytes of an object id.
const Size = 20

// ID is a content hash used as an object identifier.
type ID [Size]byte

// Zero is the all-zeroes id, used as a sentinel for "no object".
var Zero ID

// IsZero reports whether id is the zero value.
func (id ID) IsZero() bool {
	return id == Zero
}

// String returns the lowercase hex representation of id.
func (id ID) String() string {
	return hex.EncodeToString(id[:])
}

// Bytes returns the raw 20 bytes backing id.
func (id ID) Bytes() []byte {
	return id[:]
}

// FromBytes builds an ID from a 20-byte slice, copying it.
func FromBytes(b []byte) (ID, error) {
	var id ID
	if len(b) != Size {
		return id, fmt.Errorf("oid: expected %d bytes, got %d", Size, len(b))
	}
	copy(id[:], b)
	return id, nil
}

// FromHex parses a 40-character hex string into an ID.
func FromHex(s string) (ID, error) {
	var id ID
	b, err := hex.DecodeString(s)
	if err != nil {
		return id, err
	}
	return FromBytes(b)
}

// Sum computes the object id of data the same way the underlying object
// store addresses loose objects: SHA-1 of "<type> <size>\0<data>".
func Sum(kind string, data []byte) ID {
	h := sha1cd.New()
	fmt.Fprintf(h, "%s %d\x00", kind, len(data))
	h.Write(data)
	var id ID
	copy(id[:], h.Sum(nil))
	return id
}
