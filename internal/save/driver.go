// Package save implements the save driver and the commit emitter: the
// top-level orchestration that walks the index stream,
// drives PathMapper and DirStack through directory descent/ascent, and
// dispatches each non-directory entry to either the reuse path
// (EntryClassifier already decided) or the stat-and-store path.
package save

import (
	"context"
	"fmt"
	"os"
	"strings"

	ctxio "github.com/jbenet/go-context/io"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/go-git/go-billy/v5"

	"github.com/go-bup/bup/internal/classify"
	"github.com/go-bup/bup/internal/dirstack"
	"github.com/go-bup/bup/internal/filemode"
	"github.com/go-bup/bup/internal/fsutil"
	"github.com/go-bup/bup/internal/hashsplit"
	"github.com/go-bup/bup/internal/hlinkdb"
	"github.com/go-bup/bup/internal/index"
	"github.com/go-bup/bup/internal/metadata"
	"github.com/go-bup/bup/internal/metastore"
	"github.com/go-bup/bup/internal/object"
	"github.com/go-bup/bup/internal/oid"
	"github.com/go-bup/bup/internal/pathmap"
	"github.com/go-bup/bup/internal/progress"
)

// StatusFunc is called when verbose output is requested: for directory
// entries only at Verbose 1 (-v), for every entry at Verbose 2 or more
// (-vv). status is one of 'D' (deleted), 'A' (added), 'M' (modified) or ' '
// (unchanged); level is Config.Verbose.
type StatusFunc func(status byte, path string, level int)

// Config bundles everything a save run needs beyond the object store
// itself (held in Writer, since DirStack needs it directly too).
type Config struct {
	Sources   []string
	Mapper    *pathmap.Mapper
	FS        billy.Filesystem
	Writer    dirstack.ObjectWriter
	MetaStore metastore.Reader
	HLinkDB   hlinkdb.DB
	SizeLimit int64
	Verbose   int
	Status    StatusFunc
	Meter     *progress.Meter
	Ctx       context.Context
}

// Driver runs one save.
type Driver struct {
	cfg        Config
	classifier *classify.Classifier
	stack      *dirstack.Stack
	lastSkip   string
	fcount     int
	bytesDone  int64
	errs       error
}

// NewDriver builds a Driver ready to run Save once.
func NewDriver(cfg Config, store index.Store) *Driver {
	if cfg.Ctx == nil {
		cfg.Ctx = context.Background()
	}
	d := &Driver{cfg: cfg}
	d.classifier = &classify.Classifier{
		Store:     store,
		MetaStore: cfg.MetaStore,
		HLinkDB:   cfg.HLinkDB,
		SizeLimit: cfg.SizeLimit,
	}
	d.stack = dirstack.New(cfg.Writer, d.onDuplicate)
	return d
}

func (d *Driver) onDuplicate(dirPath, name string) {
	d.addError(fmt.Errorf("ignoring duplicate path %s in %s", name, dirPath))
}

func (d *Driver) addError(err error) {
	d.errs = multierr.Append(d.errs, err)
}

// Errors returns every non-fatal error recorded during the run. A
// non-nil return means the process should exit 1.
func (d *Driver) Errors() error { return d.errs }

// Save drives r's entries to completion and returns the root tree oid.
func (d *Driver) Save(r index.Reader) (oid.ID, error) {
	it := r.Filter(d.cfg.Sources, nil)
	for {
		e, ok := it.Next()
		if !ok {
			break
		}
		// A cancelled context (user interrupt) ends the save here, before
		// any tree is returned for a commit to reference.
		if err := d.cfg.Ctx.Err(); err != nil {
			return oid.Zero, err
		}
		if err := d.step(r, e); err != nil {
			return oid.Zero, err
		}
	}

	for d.stack.Depth() > 1 {
		if _, err := d.stack.Pop(nil, nil); err != nil {
			return oid.Zero, err
		}
	}

	if d.cfg.Meter != nil {
		d.cfg.Meter.Done(d.bytesDone, d.fcount)
	}

	var override *metadata.Metadata
	if d.cfg.Mapper.RootCollision() {
		m := metadata.Empty()
		override = &m
	}
	return d.stack.Pop(nil, override)
}

// step handles exactly one index entry: the descent/ascent protocol
// followed by either the directory-close protocol or dispatch to
// the classifier/stat-and-store path.
func (d *Driver) step(r index.Reader, e *index.Entry) error {
	dir, file := splitPath(e.Path)

	result, err := d.classifier.Classify(e)
	if err != nil {
		return err
	}

	d.reportStatus(e, file, result.Decision)
	d.fcount++

	if result.Decision == classify.Deleted {
		return nil
	}
	if result.Decision == classify.SkippedLarge {
		d.lastSkip = e.Path
		return nil
	}

	target := d.cfg.Mapper.Map(dir, d.cfg.Sources)
	if err := d.descend(target); err != nil {
		return err
	}

	if file == "" {
		return d.closeDirectory(r, e, result)
	}

	switch result.Decision {
	case classify.Reuse:
		d.appendReused(e, file, result.Meta)
	case classify.StatAndStore:
		if err := d.statAndStore(r, e, file); err != nil {
			return err
		}
	}

	d.bytesDone += e.Size
	if d.cfg.Meter != nil {
		d.cfg.Meter.Report(d.bytesDone, d.fcount)
	}
	return nil
}

func (d *Driver) reportStatus(e *index.Entry, file string, decision classify.Decision) {
	if d.cfg.Status == nil {
		return
	}
	// Plain -v reports only directory boundaries; -vv reports every entry.
	if d.cfg.Verbose < 2 && file != "" {
		return
	}
	status := byte(' ')
	switch {
	case decision == classify.Deleted:
		status = 'D'
	case decision != classify.Reuse:
		if e.SHA.IsZero() {
			status = 'A'
		} else {
			status = 'M'
		}
	}
	d.cfg.Status(status, e.Path, d.cfg.Verbose)
}

// descend pops frames that are no longer a prefix of target, then pushes
// frames for every new component.
func (d *Driver) descend(target []pathmap.Component) error {
	for d.stack.Depth() > len(target) || !framesMatchPrefix(d.stack.Names(), target) {
		if d.stack.Depth() == 0 {
			break
		}
		if _, err := d.stack.Pop(nil, nil); err != nil {
			return err
		}
	}
	for i := d.stack.Depth(); i < len(target); i++ {
		comp := target[i]
		var meta metadata.Metadata
		if comp.FSPath != "" {
			var err error
			meta, err = metadata.FromPath(d.cfg.FS, comp.FSPath, "")
			if err != nil {
				d.addError(errors.Wrapf(err, "save: stat %s", comp.FSPath))
				d.lastSkip = comp.Name
				meta = metadata.Empty()
			}
		} else {
			meta = metadata.Empty()
		}
		d.stack.Push(comp.Name, meta)
	}
	return nil
}

// framesMatchPrefix reports whether names (the currently open frames) is a
// prefix of target's names -- i.e. whether we can keep descending instead
// of having to pop back up first. It intentionally compares by index
// rather than lexicographic ordering of the whole path, since components
// can be synthetic (grafted) and have no natural total order against real
// ones beyond "equal or not".
func framesMatchPrefix(names []string, target []pathmap.Component) bool {
	if len(names) > len(target) {
		return false
	}
	for i, n := range names {
		if n != target[i].Name {
			return false
		}
	}
	return true
}

// closeDirectory closes the frame for a directory-marker entry.
func (d *Driver) closeDirectory(r index.Reader, e *index.Entry, result classify.Result) error {
	if d.stack.Depth() == 1 {
		return nil // archive root: closes at end of stream only
	}

	// The classifier's Reuse
	// decision already folds in the object-store existence check, so a
	// valid-looking entry whose tree has been pruned from the store still
	// gets rebuilt rather than referenced dangling.
	var existing *oid.ID
	if result.Decision == classify.Reuse && !e.SHA.IsZero() {
		id := e.SHA
		existing = &id
	}

	newTree, err := d.stack.Pop(existing, nil)
	if err != nil {
		return err
	}

	if existing == nil {
		if d.lastSkip != "" && strings.HasPrefix(d.lastSkip, e.Path) {
			e.Invalidate()
		} else {
			e.Validate(filemode.Dir, newTree)
		}
		if err := r.Repack(e); err != nil {
			return err
		}
	}
	return nil
}

func (d *Driver) appendReused(e *index.Entry, file string, meta metadata.Metadata) {
	d.stack.AppendToTop(file, filemode.FromOSMode(e.Mode), e.GitMode, e.SHA, &meta)
}

// statAndStore freshly reads the entry from the filesystem, dispatching
// on its indexed file type, and revalidates the index entry on success.
func (d *Driver) statAndStore(r index.Reader, e *index.Entry, file string) error {
	meta, err := metadata.FromPath(d.cfg.FS, e.Path, d.classifier.FindHardlinkTarget(e))
	if err != nil {
		d.addError(errors.Wrapf(err, "save: %s", e.Path))
		d.lastSkip = e.Path
		return nil
	}

	// The file changed type between indexing and saving
	// (e.g. a regular file replaced by a fifo). Reading it now would risk
	// misclassifying it, and recording it as-indexed would persist an
	// inconsistency, so it's skipped and the containing directory is
	// invalidated via lastSkip.
	if meta.Mode.Type() != e.Mode.Type() {
		d.addError(fmt.Errorf("save: %s: mode changed since indexing", e.Path))
		d.lastSkip = e.Path
		return nil
	}

	var gitMode filemode.FileMode
	var id oid.ID

	switch {
	case meta.Mode&os.ModeSymlink != 0:
		gitMode = filemode.Symlink
		id, err = d.cfg.Writer.NewBlob([]byte(meta.SymlinkTarget))
		if err != nil {
			return err
		}
	case meta.Mode.IsRegular():
		gitMode, id, err = d.storeRegular(e, &meta)
		if err != nil {
			d.addError(errors.Wrapf(err, "save: %s", e.Path))
			d.lastSkip = e.Path
			return nil
		}
	default:
		// device, fifo, socket: fully described by metadata; store an
		// empty blob so tree and sidecar line up.
		gitMode = filemode.Regular
		id, err = d.cfg.Writer.NewBlob(nil)
		if err != nil {
			return err
		}
	}

	e.Validate(gitMode, id)
	if err := r.Repack(e); err != nil {
		return err
	}
	d.stack.AppendToTop(file, filemode.FromOSMode(e.Mode), gitMode, id, &meta)
	return nil
}

// storeRegular stores one regular file's contents through the splitter
// and reports the mode and oid to record for it.
func (d *Driver) storeRegular(e *index.Entry, meta *metadata.Metadata) (filemode.FileMode, oid.ID, error) {
	f, err := fsutil.OpenNoAtime(d.cfg.FS, e.Path)
	if err != nil {
		return filemode.Empty, oid.Zero, err
	}
	defer f.Close()

	meta.Size = 0
	r := ctxio.NewReader(d.cfg.Ctx, f)

	var trueSize int64
	mode, id, err := hashsplit.Split(r,
		func(data []byte) (oid.ID, error) {
			trueSize += int64(len(data))
			return d.cfg.Writer.NewBlob(data)
		},
		func(entries []hashsplit.Entry) (oid.ID, error) {
			out := make([]object.TreeEntry, len(entries))
			for i, en := range entries {
				out[i] = object.TreeEntry{Name: fmt.Sprintf("%d", i), Mode: en.Mode, OID: en.OID}
			}
			return d.cfg.Writer.NewTree(out)
		})
	if err != nil {
		return filemode.Empty, oid.Zero, err
	}
	// Races where stat() and the actual read disagreed on size are fixed
	// up here: the metadata records what we truly read.
	meta.Size = trueSize
	return mode, id, nil
}

// splitPath splits p at its last '/'. For a directory-marker entry (path
// ending in "/") this yields the directory's own path as dir and "" as
// file, which is exactly what the descent/ascent protocol needs.
func splitPath(p string) (dir, file string) {
	idx := strings.LastIndexByte(p, '/')
	if idx < 0 {
		return "", p
	}
	return p[:idx], p[idx+1:]
}
