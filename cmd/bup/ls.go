package main

import (
	"fmt"
	"os"
	"os/user"
	"sort"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/jessevdk/go-flags"

	"github.com/go-bup/bup/internal/filemode"
	"github.com/go-bup/bup/internal/fsutil"
	"github.com/go-bup/bup/internal/metadata"
	"github.com/go-bup/bup/internal/oid"
	"github.com/go-bup/bup/internal/refs"
	"github.com/go-bup/bup/internal/store"
	"github.com/go-bup/bup/internal/vfs"
)

type lsOptions struct {
	Hash        bool `short:"s" long:"hash" description:"show hash for each file"`
	CommitHash  bool `long:"commit-hash" description:"show commit hash instead of tree for commits"`
	All         bool `short:"a" long:"all" description:"show hidden files"`
	AlmostAll   bool `short:"A" long:"almost-all" description:"show hidden files except . and .."`
	Long        bool `short:"l" long:"long" description:"detailed listing format"`
	Directory   bool `short:"d" long:"directory" description:"show directories, not contents"`
	Recursive   bool `short:"R" long:"recursive" description:"recurse into subdirectories"`
	Classify    bool `short:"F" long:"classify" description:"append a type indicator to each name"`
	FileType    bool `long:"file-type" description:"append a type indicator, excluding executables"`
	HumanReable bool `long:"human-readable" description:"print human readable file sizes"`
	NumericIDs  bool `short:"n" long:"numeric-ids" description:"list numeric IDs (user, group) rather than names"`

	Args struct {
		Refs []string `positional-arg-name:"ref[/path]"`
	} `positional-args:"yes"`
}

func lsRun(args []string) error {
	var opts lsOptions
	parser := flags.NewParser(&opts, flags.Default)
	parser.Usage = "ls [OPTIONS] [ref[/path]...]"
	if _, err := parser.ParseArgs(args); err != nil {
		return err
	}
	if opts.CommitHash {
		opts.Hash = true
	}

	dir := repoDir()
	reader := store.NewLocal(fsutil.New(dir), "objects", 0)
	refUpdater := refs.NewUpdater(fsutil.New(dir))

	paths := opts.Args.Refs
	if len(paths) == 0 {
		paths = []string{"."}
	}

	exit := 0
	for n, p := range paths {
		if len(paths) > 1 {
			fmt.Printf("%s:\n", p)
		}
		if err := lsOne(reader, refUpdater, opts, p); err != nil {
			fmt.Fprintln(os.Stderr, "bup: ls:", err)
			exit = 1
		}
		if n < len(paths)-1 {
			fmt.Println()
		}
	}
	if exit != 0 {
		os.Exit(exit)
	}
	return nil
}

// lsOne resolves one "branch[/path...]" argument and lists it.
func lsOne(reader *store.Local, refUpdater *refs.Updater, opts lsOptions, arg string) error {
	branch, sub, _ := strings.Cut(strings.TrimPrefix(arg, "./"), "/")
	root, err := refUpdater.Read(branch)
	if err != nil {
		return err
	}
	if root.IsZero() {
		return fmt.Errorf("no such branch %q", branch)
	}

	// root points at a commit object; resolve it down to its tree.
	kind, data, err := reader.ReadRaw(root)
	if err != nil {
		return err
	}
	tree := root
	commitHash := root
	if kind == "commit" {
		tree, err = parseCommitTree(data)
		if err != nil {
			return err
		}
	}

	entry, err := vfs.Resolve(reader, tree, sub)
	if err != nil {
		return err
	}

	if opts.Directory || !entry.IsDir() {
		printEntry(opts, commitHash, entry)
		return nil
	}
	return listDir(reader, opts, commitHash, entry.OID, "")
}

// listDir prints one directory's visible children, recursing into
// subdirectories first when --recursive is set, depth-first.
func listDir(reader *store.Local, opts lsOptions, commitHash oid.ID, treeID oid.ID, prefix string) error {
	_, entries, err := vfs.List(reader, treeID)
	if err != nil {
		return err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })

	for _, e := range entries {
		if strings.HasPrefix(e.Name, ".") && !opts.All && !opts.AlmostAll {
			continue
		}
		named := e
		named.Name = prefix + e.Name
		printEntry(opts, commitHash, named)
		if opts.Recursive && e.IsDir() {
			if err := listDir(reader, opts, commitHash, e.OID, prefix+e.Name+"/"); err != nil {
				return err
			}
		}
	}
	return nil
}

func printEntry(opts lsOptions, commitHash oid.ID, e vfs.Entry) {
	name := e.Name
	if opts.Classify || opts.FileType {
		name += classifySuffix(e, opts.Classify)
	}
	var hashField string
	if opts.Hash {
		id := e.OID
		if opts.CommitHash {
			id = commitHash
		}
		hashField = id.String() + " "
	}
	if opts.Long {
		fmt.Printf("%s%s %s\n", hashField, longMode(opts, e), name)
		return
	}
	fmt.Printf("%s%s\n", hashField, name)
}

func classifySuffix(e vfs.Entry, all bool) string {
	switch e.Mode {
	case filemode.Dir:
		return "/"
	case filemode.Symlink:
		return "@"
	}
	if all && e.Meta != nil && e.Meta.Mode&0111 != 0 {
		return "*"
	}
	return ""
}

func longMode(opts lsOptions, e vfs.Entry) string {
	if e.Meta == nil {
		return fmt.Sprintf("%-10s %s", e.Mode, "?")
	}
	size := fmt.Sprintf("%d", e.Meta.Size)
	if opts.HumanReable {
		size = humanize.Bytes(uint64(e.Meta.Size))
	}
	return fmt.Sprintf("%-10s %s %s %s",
		e.Meta.Mode, ownerGroup(opts, e.Meta), e.Meta.Mtime.Format("2006-01-02 15:04"), size)
}

// ownerGroup renders the user/group column of a long listing: symbolic
// names where the local account databases can resolve the stored ids,
// raw numeric ids under --numeric-ids or when resolution fails.
func ownerGroup(opts lsOptions, m *metadata.Metadata) string {
	uid := strconv.Itoa(m.UID)
	gid := strconv.Itoa(m.GID)
	if opts.NumericIDs {
		return uid + "/" + gid
	}
	if u, err := user.LookupId(uid); err == nil && u.Username != "" {
		uid = u.Username
	}
	if g, err := user.LookupGroupId(gid); err == nil && g.Name != "" {
		gid = g.Name
	}
	return uid + "/" + gid
}

func parseCommitTree(data []byte) (oid.ID, error) {
	line, _, _ := strings.Cut(string(data), "\n")
	var kw, hex string
	if _, err := fmt.Sscanf(line, "%s %s", &kw, &hex); err != nil || kw != "tree" {
		return oid.Zero, fmt.Errorf("malformed commit object")
	}
	return oid.FromHex(hex)
}
