package filetx

import (
	"os"
	"path"
	"sync"

	"github.com/spf13/afero"
)

// FS combines a storage backend, the identity Registry, and the (at most
// one) open transaction into the service from which handles are resolved.
type FS struct {
	backend  afero.Fs
	registry *Registry
	namer    NameGenerator

	mu  sync.Mutex // Guards |txn|.
	txn *txnLog
}

// FSOption customizes an FS returned by NewFS.
type FSOption func(*FS)

// WithNameGenerator sets the NameGenerator consulted on rename and
// duplicate collisions.
func WithNameGenerator(g NameGenerator) FSOption {
	return func(fs *FS) { fs.namer = g }
}

// WithRegistry sets the identity Registry. Use it to share one Registry
// across multiple FS instances over the same backend.
func WithRegistry(r *Registry) FSOption {
	return func(fs *FS) { fs.registry = r }
}

// NewFS returns an FS over |backend| with a fresh Registry and the default
// SuffixNameGenerator.
func NewFS(backend afero.Fs, options ...FSOption) *FS {
	var fs = &FS{
		backend:  backend,
		registry: NewRegistry(),
		namer:    SuffixNameGenerator{},
	}
	for _, o := range options {
		o(fs)
	}
	return fs
}

// Registry returns the identity Registry of this FS.
func (fs *FS) Registry() *Registry { return fs.registry }

// Begin opens a transaction scope. Mutating operations performed until
// Commit or Rollback log undo information as they apply. Transactions are
// flat: Begin while one is already open is a programmer Error.
func (fs *FS) Begin() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if fs.txn != nil {
		return NewProgrammerError("a transaction is already open")
	}
	fs.txn = &txnLog{}
	return nil
}

// InTransaction returns whether a transaction is currently open.
func (fs *FS) InTransaction() bool {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.txn != nil
}

// Commit closes the open transaction: deferred deletions are applied in log
// order (poisoning each deleted Record), and the undo log is discarded.
func (fs *FS) Commit() error {
	var txn = fs.takeTxn()
	if txn == nil {
		return NewProgrammerError("no transaction is open")
	}
	txnsTotal.WithLabelValues("commit").Inc()
	return txn.commit(fs.backend)
}

// Rollback closes the open transaction, applying the inverse of each logged
// operation in strict reverse order.
func (fs *FS) Rollback() error {
	var txn = fs.takeTxn()
	if txn == nil {
		return NewProgrammerError("no transaction is open")
	}
	txnsTotal.WithLabelValues("rollback").Inc()
	return txn.rollback(fs.backend, fs.registry)
}

// takeTxn detaches and returns the open transaction log, or nil.
func (fs *FS) takeTxn() *txnLog {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	var txn = fs.txn
	fs.txn = nil
	return txn
}

// openTxn returns the open transaction log, or nil.
func (fs *FS) openTxn() *txnLog {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.txn
}

// Create writes a new file at |fpath| holding |content| and returns its
// handle. It is a validation Error if |fpath| is empty or already exists,
// and an environment Error if the containing directory is not writable.
func (fs *FS) Create(fpath string, content []byte) (*File, error) {
	var cpath, err = CanonicalPath(fpath)
	if err != nil {
		return nil, err
	}

	if exists, err := afero.Exists(fs.backend, cpath); err != nil {
		return nil, wrapEnvironmentError(err, "checking %s", cpath)
	} else if exists {
		return nil, NewValidationError("file already exists (%s)", cpath)
	}
	if dir := fs.dirOf(cpath); !dir.IsWritable() {
		return nil, NewEnvironmentError("directory is not writable (%s)", dir.Path())
	}

	var rec = fs.registry.Recreate(cpath)
	if txn := fs.openTxn(); txn != nil {
		if err = txn.append(txnOp{Create: &createdOp{Path: cpath, Record: rec}}); err != nil {
			return nil, err
		}
	}
	if err = afero.WriteFile(fs.backend, cpath, content, 0644); err != nil {
		return nil, wrapEnvironmentError(err, "writing %s", cpath)
	}
	opsTotal.WithLabelValues("create").Inc()
	return &File{fs: fs, record: rec}, nil
}

// Open resolves a handle for the existing file at |fpath|. It is a
// validation Error if the file does not exist, and an environment Error if
// it is not readable.
func (fs *FS) Open(fpath string) (*File, error) {
	var cpath, err = CanonicalPath(fpath)
	if err != nil {
		return nil, err
	}

	var fi os.FileInfo
	if fi, err = fs.backend.Stat(cpath); os.IsNotExist(err) {
		return nil, NewValidationError("file does not exist (%s)", cpath)
	} else if err != nil {
		return nil, wrapEnvironmentError(err, "stat of %s", cpath)
	} else if fi.IsDir() {
		return nil, NewValidationError("path is a directory (%s)", cpath)
	} else if fi.Mode().Perm()&0400 == 0 {
		return nil, NewEnvironmentError("file is not readable (%s)", cpath)
	}
	return &File{fs: fs, record: fs.registry.Resolve(cpath)}, nil
}

// resolveTarget applies the shared existence / writability / overwrite
// policy of Rename and Duplicate, returning the target path to use. If the
// target exists, is writable, and |overwrite| is false, a non-colliding
// sibling is derived from the NameGenerator instead.
func (fs *FS) resolveTarget(to string, overwrite bool) (string, error) {
	var exists, err = afero.Exists(fs.backend, to)
	if err != nil {
		return "", wrapEnvironmentError(err, "checking %s", to)
	} else if !exists {
		return to, nil
	}

	if fi, err := fs.backend.Stat(to); err == nil && fi.Mode().Perm()&0200 == 0 {
		return "", NewEnvironmentError("target is not writable (%s)", to)
	}
	if !overwrite {
		return fs.namer.UniqueName(fs.backend, to)
	}
	return to, nil
}

// poisonDisplaced poisons a Record displaced from |to| by an overwriting
// rename or duplicate, so its holders fail on next use. |except| is spared.
func (fs *FS) poisonDisplaced(to string, except *Record) {
	if rec := fs.registry.lookup(to); rec != nil && rec != except {
		rec.setPoison(errOverwritten(to))
	}
}

// File is a handle on one file. Every handle resolved for the same
// canonical path shares a single Record: a delete, rename, or invalidation
// observed through one handle is observed by all of them.
type File struct {
	fs     *FS
	record *Record
}

// Record returns the shared identity Record of this handle.
func (f *File) Record() *Record { return f.record }

// Read returns the file's full current content.
func (f *File) Read() ([]byte, error) {
	if err := f.record.Poisoned(); err != nil {
		return nil, err
	}
	var cpath = f.record.Path()

	var b, err = afero.ReadFile(f.fs.backend, cpath)
	if err != nil {
		return nil, wrapEnvironmentError(err, "reading %s", cpath)
	}
	opsTotal.WithLabelValues("read").Inc()
	return b, nil
}

// Write replaces the file's content with |data|. Inside an open transaction
// the previous content is logged first, so that rollback restores it
// exactly (or removes the file, if it was absent).
func (f *File) Write(data []byte) error {
	if err := f.record.Poisoned(); err != nil {
		return err
	}
	var cpath = f.record.Path()

	var fi, statErr = f.fs.backend.Stat(cpath)
	if statErr == nil && fi.Mode().Perm()&0200 == 0 {
		return NewEnvironmentError("file is not writable (%s)", cpath)
	}

	if txn := f.fs.openTxn(); txn != nil {
		var op = &wroteOp{Path: cpath, Mode: 0644}
		if prev, err := afero.ReadFile(f.fs.backend, cpath); os.IsNotExist(err) {
			op.WasAbsent = true
		} else if err != nil {
			return wrapEnvironmentError(err, "reading prior content of %s", cpath)
		} else {
			op.Prev = prev
			if statErr == nil {
				op.Mode = fi.Mode().Perm()
			}
		}
		if err := txn.append(txnOp{Write: op}); err != nil {
			return err
		}
	}

	if err := afero.WriteFile(f.fs.backend, cpath, data, 0644); err != nil {
		return wrapEnvironmentError(err, "writing %s", cpath)
	}
	opsTotal.WithLabelValues("write").Inc()
	return nil
}

// Delete removes the file. Inside an open transaction the removal is
// deferred until Commit, and the Record is not poisoned until then. Once
// the file is actually removed, the Record is poisoned with a terminal
// "deleted" error so that any other handle sharing it fails on next use.
func (f *File) Delete() error {
	if err := f.record.Poisoned(); err != nil {
		return err
	}
	var cpath = f.record.Path()

	if dir := f.fs.dirOf(cpath); !dir.IsWritable() {
		return NewProgrammerError("directory is not writable (%s)", dir.Path())
	}

	if txn := f.fs.openTxn(); txn != nil {
		if err := txn.appendDelete(f.record); err != nil {
			return err
		}
		opsTotal.WithLabelValues("delete").Inc()
		return nil
	}

	if err := f.fs.backend.Remove(cpath); err != nil {
		return wrapEnvironmentError(err, "removing %s", cpath)
	}
	f.record.setPoison(errFileDeleted(cpath))
	opsTotal.WithLabelValues("delete").Inc()
	return nil
}

// Rename moves the file to |newPath|. The registry entry moves with the
// file, so every handle sharing this Record observes the new path; the old
// path, resolved anew, yields a fresh Record.
func (f *File) Rename(newPath string, overwrite bool) error {
	if err := f.record.Poisoned(); err != nil {
		return err
	}
	var from = f.record.Path()

	if dir := f.fs.dirOf(from); !dir.IsWritable() {
		return NewProgrammerError("directory is not writable (%s)", dir.Path())
	}
	var to, err = CanonicalPath(newPath)
	if err != nil {
		return err
	}
	if to, err = f.fs.resolveTarget(to, overwrite); err != nil {
		return err
	} else if to == from {
		return nil
	}
	if txn := f.fs.openTxn(); txn != nil {
		if err = txn.append(txnOp{Rename: &renamedOp{From: from, To: to, Record: f.record}}); err != nil {
			return err
		}
	}
	if err = f.fs.backend.Rename(from, to); err != nil {
		return wrapEnvironmentError(err, "renaming %s to %s", from, to)
	}
	// Poison a displaced Record only once its file is actually gone.
	f.fs.poisonDisplaced(to, f.record)
	f.fs.registry.Move(from, to)
	opsTotal.WithLabelValues("rename").Inc()
	return nil
}

// Duplicate copies the file into |dir| and returns a handle for the copy,
// leaving the source handle intact. Duplicating into the file's current
// directory is a programmer Error.
func (f *File) Duplicate(dir *Dir, overwrite bool) (*File, error) {
	if err := f.record.Poisoned(); err != nil {
		return nil, err
	}
	var src = f.record.Path()

	if dir.Path() == path.Dir(src) {
		return nil, NewProgrammerError("duplicate into the file's own directory (%s)", dir.Path())
	}
	if !dir.IsWritable() {
		return nil, NewEnvironmentError("directory is not writable (%s)", dir.Path())
	}

	var content, err = afero.ReadFile(f.fs.backend, src)
	if err != nil {
		return nil, wrapEnvironmentError(err, "reading %s", src)
	}
	var mode = os.FileMode(0644)
	if fi, err := f.fs.backend.Stat(src); err == nil {
		mode = fi.Mode().Perm()
	}

	var to string
	if to, err = f.fs.resolveTarget(path.Join(dir.Path(), path.Base(src)), overwrite); err != nil {
		return nil, err
	}
	var rec = &Record{path: to}
	if txn := f.fs.openTxn(); txn != nil {
		if err = txn.append(txnOp{Duplicate: &duplicatedOp{Path: to, Record: rec}}); err != nil {
			return nil, err
		}
	}
	if err = afero.WriteFile(f.fs.backend, to, content, mode); err != nil {
		return nil, wrapEnvironmentError(err, "writing %s", to)
	}
	// Poison a displaced Record only once its file is actually gone, then
	// bind the copy's fresh Record in its place.
	f.fs.poisonDisplaced(to, f.record)
	f.fs.registry.bind(to, rec)
	opsTotal.WithLabelValues("duplicate").Inc()
	return &File{fs: f.fs, record: rec}, nil
}

// Path returns the file's current canonical path.
func (f *File) Path() (string, error) {
	if err := f.record.Poisoned(); err != nil {
		return "", err
	}
	return f.record.Path(), nil
}

// Name returns the file's base name.
func (f *File) Name() (string, error) {
	if err := f.record.Poisoned(); err != nil {
		return "", err
	}
	return path.Base(f.record.Path()), nil
}

// Dir returns the handle of the file's containing directory.
func (f *File) Dir() (*Dir, error) {
	if err := f.record.Poisoned(); err != nil {
		return nil, err
	}
	return f.fs.dirOf(f.record.Path()), nil
}

// IsWritable returns whether the file may be written.
func (f *File) IsWritable() (bool, error) {
	if err := f.record.Poisoned(); err != nil {
		return false, err
	}
	var fi, err = f.fs.backend.Stat(f.record.Path())
	if err != nil {
		return false, wrapEnvironmentError(err, "stat of %s", f.record.Path())
	}
	return fi.Mode().Perm()&0200 != 0, nil
}

// Size returns the file's size in bytes.
func (f *File) Size() (int64, error) {
	if err := f.record.Poisoned(); err != nil {
		return 0, err
	}
	var fi, err = f.fs.backend.Stat(f.record.Path())
	if err != nil {
		return 0, wrapEnvironmentError(err, "stat of %s", f.record.Path())
	}
	return fi.Size(), nil
}
