package filetx

import (
	"path"
	"path/filepath"
	"sync"
)

// CanonicalPath normalizes |fpath| into the canonical form used as an
// identity key: slash-separated, cleaned, and absolute.
func CanonicalPath(fpath string) (string, error) {
	if fpath == "" {
		return "", NewValidationError("path is empty")
	}
	fpath = path.Clean(filepath.ToSlash(fpath))
	if !path.IsAbs(fpath) {
		return "", NewValidationError("path is not absolute (%s)", fpath)
	}
	return fpath, nil
}

// Record is the mutable state shared by every handle of one canonical path:
// the current path (which changes on rename) and an optional terminal
// poison. Handles hold Records by reference, so a rename updates the path
// observed by all of them, and poisoning one poisons all.
type Record struct {
	mu     sync.Mutex
	path   string
	poison *Error
}

// Path returns the Record's current canonical path.
func (r *Record) Path() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.path
}

// Poisoned returns the terminal error stored on the Record, or nil if the
// Record is live.
func (r *Record) Poisoned() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.poison == nil {
		return nil
	}
	return r.poison
}

func (r *Record) setPath(cpath string) {
	r.mu.Lock()
	r.path = cpath
	r.mu.Unlock()
}

// setPoison stores |err| as the Record's terminal state. The first poison
// wins: a poisoned Record never transitions back to live.
func (r *Record) setPoison(err *Error) {
	r.mu.Lock()
	if r.poison == nil {
		r.poison = err
	}
	r.mu.Unlock()
}

// Registry maps canonical paths to their shared Records, guaranteeing one
// Record per path. It is an explicitly constructed service: every FS owns
// (or is injected with) one, and all handles resolved through it share its
// Records. Records are never pruned; they live for the process lifetime.
type Registry struct {
	mu      sync.Mutex
	records map[string]*Record
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{records: make(map[string]*Record)}
}

// Resolve returns the Record for canonical path |cpath|, creating a fresh
// live one if none exists. Repeated calls return the identical Record,
// poisoned or not.
func (r *Registry) Resolve(cpath string) *Record {
	r.mu.Lock()
	defer r.mu.Unlock()

	if rec, ok := r.records[cpath]; ok {
		return rec
	}
	var rec = &Record{path: cpath}
	r.records[cpath] = rec
	return rec
}

// Recreate returns a live Record at |cpath|, displacing a poisoned
// predecessor with a fresh one. Handles still holding the displaced Record
// keep observing its poison, as they reference it directly rather than
// re-looking it up by path.
func (r *Registry) Recreate(cpath string) *Record {
	r.mu.Lock()
	defer r.mu.Unlock()

	if rec, ok := r.records[cpath]; ok && rec.Poisoned() == nil {
		return rec
	}
	var rec = &Record{path: cpath}
	r.records[cpath] = rec
	return rec
}

// Poison marks the Record at |cpath|, if one is registered, with |err|.
// Subsequent operations through any handle sharing that Record fail with
// the stored error.
func (r *Registry) Poison(cpath string, err error) {
	r.mu.Lock()
	var rec = r.records[cpath]
	r.mu.Unlock()

	if rec == nil {
		return
	}
	if e, ok := err.(*Error); ok {
		rec.setPoison(e)
	} else {
		rec.setPoison(&Error{Kind: KindProgrammer, Err: err})
	}
}

// Move transfers the Record at |from| to |to|. The old path, if resolved
// again, yields a fresh Record rather than inheriting the moved one.
func (r *Registry) Move(from, to string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var rec, ok = r.records[from]
	if !ok {
		return
	}
	delete(r.records, from)
	r.records[to] = rec
	rec.setPath(to)
}

// bind installs |rec| as the Record of |cpath|, dropping any prior entry.
// Callers poison a displaced prior Record first, where one exists.
func (r *Registry) bind(cpath string, rec *Record) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[cpath] = rec
}

// lookup returns the Record at |cpath| without creating one.
func (r *Registry) lookup(cpath string) *Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.records[cpath]
}
