// Package hlinkdb defines the HLinkDB contract: a
// read-only lookup from (dev, ino) to every indexed path sharing that
// identity, used to recover which of several hardlinked paths is the
// canonical "hardlink target" for all the others. Building the hardlink
// database is out of scope (produced by the indexing pass); this package
// defines the read contract plus a concrete file-backed implementation.
package hlinkdb

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// key identifies one inode across hardlinked paths.
type key struct {
	Dev, Ino uint64
}

// DB is the read-only lookup save uses to find a hardlink target for a
// path.
type DB interface {
	// NodePaths returns every indexed path recorded for (dev, ino), in the
	// order they were first observed during indexing. The first path in
	// that list is the canonical hardlink target for every other path
	// sharing the same inode.
	NodePaths(dev, ino uint64) []string
	Close() error
}

// FileDB is a concrete DB backed by a flat text file: one line per
// (dev, ino, path) triple, produced by the (out of scope) indexing pass.
// Lines sharing a (dev, ino) key are hardlinks of each other.
type FileDB struct {
	paths map[key][]string
}

// Open reads path into memory. A missing file is treated as an empty
// database: no path has ever been observed to be hardlinked, and a save
// with no hlink database at all is fine.
func Open(path string) (*FileDB, error) {
	db := &FileDB{paths: make(map[key][]string)}
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return db, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			continue
		}
		fields := strings.SplitN(line, "\t", 3)
		if len(fields) != 3 {
			return nil, fmt.Errorf("hlinkdb: malformed line %q", line)
		}
		var k key
		if _, err := fmt.Sscanf(fields[0]+" "+fields[1], "%d %d", &k.Dev, &k.Ino); err != nil {
			return nil, fmt.Errorf("hlinkdb: malformed line %q: %w", line, err)
		}
		db.paths[k] = append(db.paths[k], fields[2])
	}
	return db, sc.Err()
}

func (db *FileDB) NodePaths(dev, ino uint64) []string {
	return db.paths[key{Dev: dev, Ino: ino}]
}

func (db *FileDB) Close() error { return nil }
