package filetx

import (
	"os"
	"sync"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

// txnOp is one logged undo entry. Exactly one variant field is set. Each
// variant carries exactly the data needed to invert its operation.
type txnOp struct {
	Create    *createdOp
	Write     *wroteOp
	Rename    *renamedOp
	Duplicate *duplicatedOp
	Delete    *deletedOp
}

// createdOp records that |Record|'s file was created at |Path|.
type createdOp struct {
	Path   string
	Record *Record
}

// wroteOp records the exact bytes and mode |Path| held before a write, or
// that the file |WasAbsent|.
type wroteOp struct {
	Path      string
	Prev      []byte
	Mode      os.FileMode
	WasAbsent bool
}

// renamedOp records a rename of |From| to |To|.
type renamedOp struct {
	From, To string
	Record   *Record
}

// duplicatedOp records that a copy was made at |Path| for |Record|.
type duplicatedOp struct {
	Path   string
	Record *Record
}

// deletedOp records a deferred delete. It has no storage effect until
// commit, and |Record| is not poisoned until then.
type deletedOp struct {
	Record *Record
}

// txnLog is the ordered, append-only undo log of one open transaction. Its
// mutex serializes mutations logging from concurrent goroutines, and fences
// a late append against a log already committed or rolled back.
type txnLog struct {
	mu   sync.Mutex
	done bool
	ops  []txnOp
}

// append logs |op|. It is a programmer Error to log against a transaction
// which has already committed or rolled back.
func (l *txnLog) append(op txnOp) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.done {
		return NewProgrammerError("transaction is no longer open")
	}
	l.ops = append(l.ops, op)
	return nil
}

// appendDelete logs a deferred deletion of |rec| at most once: a repeated
// Delete of the same Record within one transaction is a no-op, as the file
// is removed just once at commit.
func (l *txnLog) appendDelete(rec *Record) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.done {
		return NewProgrammerError("transaction is no longer open")
	}
	for _, op := range l.ops {
		if op.Delete != nil && op.Delete.Record == rec {
			return nil
		}
	}
	l.ops = append(l.ops, txnOp{Delete: &deletedOp{Record: rec}})
	return nil
}

// commit applies deferred deletions in log order, poisoning the Record of
// each file actually removed. It continues past individual storage
// failures, logging each, and returns the first error encountered.
func (l *txnLog) commit(fs afero.Fs) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.done = true

	var firstErr error

	for _, op := range l.ops {
		if op.Delete == nil {
			continue
		}
		var cpath = op.Delete.Record.Path()

		if err := fs.Remove(cpath); err != nil {
			log.WithFields(log.Fields{"path": cpath, "err": err}).
				Warn("failed to apply deferred deletion")
			if firstErr == nil {
				firstErr = wrapEnvironmentError(err, "removing %s", cpath)
			}
			continue
		}
		op.Delete.Record.setPoison(errFileDeleted(cpath))
	}
	return firstErr
}

// rollback walks the log in strict reverse (LIFO) order, applying the
// inverse of each entry: created files and copies are removed (and their
// Records poisoned), prior content of writes is restored exactly, renames
// are renamed back, and deferred deletions are simply dropped, as they
// never touched storage. Rollback is best-effort: a failed undo step is
// logged and skipped, and the first error is returned.
func (l *txnLog) rollback(fs afero.Fs, reg *Registry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.done = true

	var firstErr error

	var fail = func(step, cpath string, err error) {
		undoFailuresTotal.Inc()
		log.WithFields(log.Fields{"step": step, "path": cpath, "err": err}).
			Warn("undo step failed")
		if firstErr == nil {
			firstErr = wrapEnvironmentError(err, "%s (%s)", step, cpath)
		}
	}

	for i := len(l.ops) - 1; i >= 0; i-- {
		var op = l.ops[i]

		switch {
		case op.Create != nil:
			if err := fs.Remove(op.Create.Path); err != nil {
				fail("removing created file", op.Create.Path, err)
				continue
			}
			op.Create.Record.setPoison(errRolledBack(op.Create.Path))

		case op.Write != nil:
			if op.Write.WasAbsent {
				if err := fs.Remove(op.Write.Path); err != nil {
					fail("removing written file", op.Write.Path, err)
				}
			} else if err := afero.WriteFile(fs, op.Write.Path, op.Write.Prev, op.Write.Mode); err != nil {
				fail("restoring written file", op.Write.Path, err)
			}

		case op.Rename != nil:
			if err := fs.Rename(op.Rename.To, op.Rename.From); err != nil {
				fail("renaming back", op.Rename.To, err)
				continue
			}
			reg.Move(op.Rename.To, op.Rename.From)

		case op.Duplicate != nil:
			if err := fs.Remove(op.Duplicate.Path); err != nil {
				fail("removing duplicated file", op.Duplicate.Path, err)
				continue
			}
			op.Duplicate.Record.setPoison(errRolledBack(op.Duplicate.Path))

		case op.Delete != nil:
			// Deferred deletion never touched storage. Drop the entry.
		}
	}
	return firstErr
}
