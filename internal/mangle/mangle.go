// Package mangle implements the reversible name-suffixing scheme used
// whenever a tree entry's storage shape (blob vs. tree) doesn't match
// what the filesystem-level mode would predict -- most commonly a large
// regular file that hashsplit folded into a tree of chunks instead of a
// single blob. The scheme has to round-trip through the listing
// subsystem, so it is a wire-compatibility constant, not a free design
// choice.
package mangle

import "strings"

const (
	chunkedSuffix = ".bup"
	escapeSuffix  = ".bupl"
)

// Name mangles name for storage as a tree entry. isChunked is true when a
// regular file's content was split into a tree (gitmode TREE) rather than
// stored as one blob. Sidecar records carry no name, so the original name
// is recovered from the stored one by Demangle alone.
func Name(name string, isChunked bool) string {
	if isChunked {
		return name + chunkedSuffix
	}
	if strings.HasSuffix(name, chunkedSuffix) || strings.HasSuffix(name, escapeSuffix) {
		return name + escapeSuffix
	}
	return name
}

// Demangle reverses Name, returning the original name and whether the
// entry was a chunked regular file.
func Demangle(name string) (orig string, chunked bool) {
	if strings.HasSuffix(name, escapeSuffix) {
		return name[:len(name)-len(escapeSuffix)], false
	}
	if strings.HasSuffix(name, chunkedSuffix) {
		return name[:len(name)-len(chunkedSuffix)], true
	}
	return name, false
}
