// Package errs defines the error taxonomy shared by the workspace components.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies an Error.
type Kind int

const (
	// NotFound indicates a missing file, directory, project or job.
	NotFound Kind = iota + 1
	// AlreadyExists indicates a create target already exists.
	AlreadyExists
	// NameCollision indicates a rename destination already exists.
	NameCollision
	// InvalidName indicates an empty, duplicate or malformed name.
	InvalidName
	// IOError wraps an underlying read, write or delete failure.
	IOError
	// SpawnError indicates an external process could not be started.
	SpawnError
	// BuildFailure indicates the packager ran but exited nonzero.
	BuildFailure
	// NotImplemented indicates an unsupported project type.
	NotImplemented
	// ToolNotFound indicates the configured packager is missing.
	ToolNotFound
	// EntryMissing indicates the project has no entry file.
	EntryMissing
	// Busy indicates a job of the same kind is already running for the project.
	Busy
	// Canceled indicates a job was cancelled before it finished.
	Canceled
)

var kindNames = map[Kind]string{
	NotFound:       "not found",
	AlreadyExists:  "already exists",
	NameCollision:  "name collision",
	InvalidName:    "invalid name",
	IOError:        "i/o error",
	SpawnError:     "spawn error",
	BuildFailure:   "build failure",
	NotImplemented: "not implemented",
	ToolNotFound:   "tool not found",
	EntryMissing:   "entry file missing",
	Busy:           "busy",
	Canceled:       "canceled",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// family maps refinements onto their base kind.
func (k Kind) family() Kind {
	switch k {
	case ToolNotFound, EntryMissing:
		return NotFound
	case NameCollision:
		return AlreadyExists
	}
	return k
}

// Sentinels for use with errors.Is.
var (
	ErrNotFound       = &Error{Kind: NotFound}
	ErrAlreadyExists  = &Error{Kind: AlreadyExists}
	ErrNameCollision  = &Error{Kind: NameCollision}
	ErrInvalidName    = &Error{Kind: InvalidName}
	ErrIO             = &Error{Kind: IOError}
	ErrSpawn          = &Error{Kind: SpawnError}
	ErrBuildFailure   = &Error{Kind: BuildFailure}
	ErrNotImplemented = &Error{Kind: NotImplemented}
	ErrToolNotFound   = &Error{Kind: ToolNotFound}
	ErrEntryMissing   = &Error{Kind: EntryMissing}
	ErrBusy           = &Error{Kind: Busy}
	ErrCanceled       = &Error{Kind: Canceled}
)

// Error is a classified error.
type Error struct {
	// Kind is the error class.
	Kind Kind
	// Op is the operation that failed, e.g. "tree.rename".
	Op string
	// Path is the file or project the operation targeted.
	Path string
	// Msg is a human-readable description.
	Msg string
	// Output carries captured tool output for BuildFailure.
	Output []byte
	// Err is the underlying cause.
	Err error
}

// Error returns the error message.
func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = e.Kind.String()
	}
	if e.Path != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Path)
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error of the same kind. A sentinel of a base
// kind also matches its refinements, so ErrNotFound matches ToolNotFound.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind == e.Kind {
		return true
	}
	return t.Kind == e.Kind.family() && t.Op == "" && t.Msg == ""
}

// New creates an Error without a cause.
func New(kind Kind, op, path, msg string) *Error {
	return &Error{Kind: kind, Op: op, Path: path, Msg: msg}
}

// Wrap creates an Error around cause.
func Wrap(kind Kind, op, path string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Path: path, Err: cause}
}

// KindOf returns the Kind of the first *Error in err's chain, or 0.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// OutputOf returns captured tool output attached to err, if any.
func OutputOf(err error) []byte {
	var e *Error
	if errors.As(err, &e) {
		return e.Output
	}
	return nil
}

// Notice renders err as the single line shown to the user.
func Notice(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if !errors.As(err, &e) {
		return err.Error()
	}
	msg := e.Msg
	if msg == "" {
		msg = e.Kind.String()
	}
	if e.Path != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Path)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s (%v)", msg, e.Err)
	}
	return msg
}
