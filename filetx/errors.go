package filetx

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// Kind classifies a recoverable failure raised by this package.
type Kind uint8

const (
	// KindNone is the Kind of errors not raised by this package.
	KindNone Kind = iota
	// KindValidation indicates bad caller input, such as an empty path or a
	// create target which already exists.
	KindValidation
	// KindEnvironment indicates the environment disagrees with the request:
	// an unreadable file, a non-writable target, or a storage failure.
	KindEnvironment
	// KindProgrammer indicates misuse against current state, such as
	// operating on a poisoned handle or opening a second transaction.
	KindProgrammer
)

// String returns the Kind's label.
func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindEnvironment:
		return "environment"
	case KindProgrammer:
		return "programmer"
	default:
		return "none"
	}
}

// Error is a Kind-tagged failure, optionally extended with context.
type Error struct {
	Kind    Kind
	Context []string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if len(e.Context) != 0 {
		return strings.Join(e.Context, ".") + ": " + e.Err.Error()
	}
	return e.Err.Error()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error { return e.Err }

// NewValidationError parallels fmt.Errorf to return a new validation Error.
func NewValidationError(format string, args ...interface{}) error {
	return &Error{Kind: KindValidation, Err: fmt.Errorf(format, args...)}
}

// NewEnvironmentError parallels fmt.Errorf to return a new environment Error.
func NewEnvironmentError(format string, args ...interface{}) error {
	return &Error{Kind: KindEnvironment, Err: fmt.Errorf(format, args...)}
}

// NewProgrammerError parallels fmt.Errorf to return a new programmer Error.
func NewProgrammerError(format string, args ...interface{}) error {
	return &Error{Kind: KindProgrammer, Err: fmt.Errorf(format, args...)}
}

// ExtendContext type-checks |err| to a *Error, and if matched extends it
// with |context|. In all cases the value of |err| is returned.
func ExtendContext(err error, format string, args ...interface{}) error {
	if e, ok := err.(*Error); ok {
		e.Context = append([]string{fmt.Sprintf(format, args...)}, e.Context...)
	}
	return err
}

// KindOf returns the Kind of |err|, unwrapping as needed, or KindNone if no
// Error of this package is found in its chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindNone
}

// wrapEnvironmentError adapts a storage failure |cause| into an environment
// Error. Storage failures are propagated, never silently swallowed, as
// ignoring them risks the registry drifting out of sync with real storage
// state.
func wrapEnvironmentError(cause error, format string, args ...interface{}) error {
	return &Error{Kind: KindEnvironment, Err: errors.WithMessagef(cause, format, args...)}
}

// errFileDeleted is the terminal poison stored when a file is removed.
func errFileDeleted(cpath string) *Error {
	return &Error{Kind: KindProgrammer, Err: fmt.Errorf("file was deleted (%s)", cpath)}
}

// errRolledBack is the terminal poison stored when rollback removes a file
// created or duplicated within the transaction.
func errRolledBack(cpath string) *Error {
	return &Error{Kind: KindProgrammer, Err: fmt.Errorf("file was removed by rollback (%s)", cpath)}
}

// errOverwritten is the terminal poison stored on a Record displaced by an
// overwriting rename or duplicate.
func errOverwritten(cpath string) *Error {
	return &Error{Kind: KindProgrammer, Err: fmt.Errorf("file was overwritten (%s)", cpath)}
}
