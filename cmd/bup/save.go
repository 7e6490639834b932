package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"os/user"
	"strconv"
	"strings"
	"time"

	"github.com/jessevdk/go-flags"

	"github.com/go-bup/bup/internal/fsutil"
	"github.com/go-bup/bup/internal/hlinkdb"
	"github.com/go-bup/bup/internal/index"
	"github.com/go-bup/bup/internal/metastore"
	"github.com/go-bup/bup/internal/object"
	"github.com/go-bup/bup/internal/oid"
	"github.com/go-bup/bup/internal/pathmap"
	"github.com/go-bup/bup/internal/progress"
	"github.com/go-bup/bup/internal/refs"
	"github.com/go-bup/bup/internal/save"
	"github.com/go-bup/bup/internal/store"
)

type saveOptions struct {
	Remote     string   `long:"remote" description:"remote host:/path object store"`
	Tree       bool     `short:"t" long:"tree" description:"print the root tree oid"`
	Commit     bool     `short:"c" long:"commit" description:"print the commit oid"`
	Name       string   `short:"n" long:"name" description:"update refs/heads/NAME"`
	Date       int64    `short:"d" long:"date" description:"commit timestamp, seconds since epoch"`
	Verbose    []bool   `short:"v" long:"verbose" description:"increase verbosity"`
	Quiet      bool     `short:"q" long:"quiet" description:"suppress progress output"`
	Smaller    int64    `long:"smaller" description:"skip not-already-saved files of size >= N"`
	BWLimit    int64    `long:"bwlimit" description:"outbound byte-rate ceiling for remote mode"`
	IndexFile  string   `short:"f" long:"indexfile" description:"override default index location"`
	Strip      bool     `long:"strip" description:"treat each source argument as a strip prefix"`
	StripPath  string   `long:"strip-path" description:"single explicit strip prefix"`
	Graft      []string `long:"graft" description:"OLD=NEW path rewrite rule, repeatable"`
	Compress   int      `long:"compress" default:"6" description:"pack compression level, 0-9"`

	Args struct {
		Sources []string `positional-arg-name:"path" required:"1"`
	} `positional-args:"yes"`
}

func saveRun(args []string) error {
	var opts saveOptions
	parser := flags.NewParser(&opts, flags.Default)
	parser.Usage = "save [OPTIONS] path..."
	if _, err := parser.ParseArgs(args); err != nil {
		return err
	}

	if !opts.Tree && !opts.Commit && opts.Name == "" {
		return fmt.Errorf("save: at least one of -t, -c, -n is required")
	}
	exclusive := 0
	for _, b := range []bool{opts.Strip, opts.StripPath != "", len(opts.Graft) > 0} {
		if b {
			exclusive++
		}
	}
	if exclusive > 1 {
		return fmt.Errorf("save: --strip, --strip-path and --graft are pairwise incompatible")
	}
	reverse := os.Getenv("BUP_SERVER_REVERSE")
	if reverse != "" && opts.Remote != "" {
		return fmt.Errorf("save: --remote is forbidden under BUP_SERVER_REVERSE auto-reverse mode")
	}
	if opts.Name != "" && !validRefName(opts.Name) {
		return fmt.Errorf("save: invalid branch name %q", opts.Name)
	}

	var grafts []pathmap.Graft
	for _, g := range opts.Graft {
		parts := strings.SplitN(g, "=", 2)
		if len(parts) != 2 {
			return fmt.Errorf("save: malformed --graft rule %q, want OLD=NEW", g)
		}
		grafts = append(grafts, pathmap.Graft{Old: parts[0], New: parts[1]})
	}
	mapper := &pathmap.Mapper{Strip: opts.Strip, StripPrefix: opts.StripPath, Grafts: grafts}

	dir := repoDir()
	indexPath := opts.IndexFile
	if indexPath == "" {
		indexPath = dir + "/bupindex"
	}

	idx, err := index.OpenFile(indexPath)
	if err != nil {
		return fmt.Errorf("save: opening index: %w", err)
	}
	defer idx.Close()

	metaReader, err := metastore.Open(indexPath + ".meta")
	if err != nil {
		return fmt.Errorf("save: opening metastore: %w", err)
	}
	defer metaReader.Close()

	hdb, err := hlinkdb.Open(indexPath + ".hlink")
	if err != nil {
		return fmt.Errorf("save: opening hardlink db: %w", err)
	}
	defer hdb.Close()

	var writer store.Writer
	switch {
	case reverse != "":
		// Auto-reverse mode: the endpoint is inherited from the parent
		// process rather than given on the command line.
		writer = &store.Remote{HostPath: reverse, BWLimit: opts.BWLimit}
	case opts.Remote != "":
		writer = &store.Remote{HostPath: opts.Remote, BWLimit: opts.BWLimit}
	default:
		if err := os.MkdirAll(dir+"/objects", 0755); err != nil {
			return fmt.Errorf("save: initializing repository: %w", err)
		}
		writer = store.NewLocal(fsutil.New(dir), "objects", opts.Compress)
	}

	fs := fsutil.New("/")
	verbose := len(opts.Verbose)

	var meter *progress.Meter
	if !opts.Quiet && progress.IsTTY(os.Stderr) {
		var ftotal int
		var btotal int64
		it := idx.Filter(opts.Args.Sources, nil)
		for {
			e, ok := it.Next()
			if !ok {
				break
			}
			if !e.Exists() {
				continue
			}
			ftotal++
			btotal += e.Size
		}
		meter = progress.NewMeter(os.Stderr, true, btotal, ftotal)
	}

	var status save.StatusFunc
	if verbose > 0 {
		status = func(c byte, path string, level int) {
			fmt.Fprintf(os.Stderr, "%c %s\n", c, path)
		}
	}

	// A user interrupt cancels the in-flight file read and unwinds the
	// save before any reference is advanced; objects already flushed stay
	// durable.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cfg := save.Config{
		Sources:   opts.Args.Sources,
		Mapper:    mapper,
		FS:        fs,
		Writer:    writer,
		MetaStore: metaReader,
		HLinkDB:   hdb,
		SizeLimit: opts.Smaller,
		Verbose:   verbose,
		Status:    status,
		Meter:     meter,
		Ctx:       ctx,
	}

	driver := save.NewDriver(cfg, writer)
	tree, err := driver.Save(idx)
	if err != nil {
		return fmt.Errorf("save: %w", err)
	}

	var commitID oid.ID
	if opts.Commit || opts.Name != "" {
		when := time.Now()
		if opts.Date != 0 {
			when = time.Unix(opts.Date, 0)
		}
		sig := signature(when)
		branch := opts.Name
		if branch == "" {
			branch = "save-" + strconv.FormatInt(when.Unix(), 10)
		}
		emitter := &save.CommitEmitter{
			Writer:  writer,
			Refs:    refs.NewUpdater(fsutil.New(dir)),
			Branch:  branch,
			Author:  sig,
			Message: commitMessage(args),
		}
		id, _, err := emitter.Commit(tree)
		if err != nil {
			return fmt.Errorf("save: %w", err)
		}
		commitID = id
	}

	if opts.Tree {
		fmt.Println(tree)
	}
	if opts.Commit {
		fmt.Println(commitID)
	}

	if errs := driver.Errors(); errs != nil {
		fmt.Fprintln(os.Stderr, errs)
		os.Exit(1)
	}
	return nil
}

// validRefName applies the subset of git's check-ref-format rules a bare
// branch name can violate: no empty, "." or ".." components, no leading or
// trailing slash, and none of the reserved metacharacters.
func validRefName(name string) bool {
	if name == "" || strings.HasPrefix(name, "/") || strings.HasSuffix(name, "/") {
		return false
	}
	for _, comp := range strings.Split(name, "/") {
		if comp == "" || comp == "." || comp == ".." {
			return false
		}
	}
	return !strings.ContainsAny(name, " \t\n~^:?*[\\")
}

// signature builds the "<userfullname> <username@hostname>" identity used
// for both author and committer on every commit.
func signature(when time.Time) object.Signature {
	name, username := "bup", "bup"
	if u, err := user.Current(); err == nil {
		username = u.Username
		name = u.Name
		if name == "" {
			name = u.Username
		}
	}
	host, err := os.Hostname()
	if err != nil {
		host = "localhost"
	}
	return object.Signature{Name: name, Email: username + "@" + host, When: when}
}

func commitMessage(argv []string) string {
	quoted := make([]string, len(argv)+1)
	quoted[0] = fmt.Sprintf("%q", "bup")
	for i, a := range argv {
		quoted[i+1] = fmt.Sprintf("%q", a)
	}
	return fmt.Sprintf("bup save\n\nGenerated by command:\n[%s]\n", strings.Join(quoted, ", "))
}
