package workflow

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies workflow failures.
type Kind string

const (
	KindUnauthorized  Kind = "Unauthorized"
	KindValidation    Kind = "ValidationError"
	KindNotFound      Kind = "NotFound"
	KindInvalidPath   Kind = "InvalidPath"
	KindConflict      Kind = "Conflict"
	KindInconsistency Kind = "Inconsistency"
	KindInternal      Kind = "InternalError"
)

var (
	ErrUnauthorized           = errors.New("admin role required")
	ErrProjectNotInQueue      = errors.New("project not in queue")
	ErrProjectNotFound        = errors.New("project not found")
	ErrAssigneeNotFound       = errors.New("assignee not found")
	ErrInvalidPath            = errors.New("invalid queue path")
	ErrInvalidSourcePath      = errors.New("invalid source path")
	ErrInvalidDestinationPath = errors.New("invalid destination path")
	ErrAlreadyQueued          = errors.New("project already in workflow")
	ErrConcurrentUpdate       = errors.New("workflow state changed concurrently")
	ErrMultipleQueues         = errors.New("project found in more than one queue")
	ErrMissingRecord          = errors.New("queued project has no project record")
)

// Error is a classified workflow failure. Everything except Inconsistency
// is raised before any state is mutated.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return e.Err.Error()
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// ErrorKind reports the kind as a string for API envelopes.
func (e *Error) ErrorKind() string { return string(e.Kind) }

// HTTPStatus maps the kind to a response status.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindUnauthorized:
		return http.StatusForbidden
	case KindValidation, KindInvalidPath:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// KindOf returns the kind of err, KindInternal for unclassified errors and
// the empty kind for nil.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var we *Error
	if errors.As(err, &we) {
		return we.Kind
	}
	return KindInternal
}

// IsKind reports whether err is a workflow error of kind k.
func IsKind(err error, k Kind) bool {
	return KindOf(err) == k
}

func newError(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

func errorf(kind Kind, sentinel error, format string, args ...any) *Error {
	return &Error{Kind: kind, Err: fmt.Errorf("%w: "+format, append([]any{sentinel}, args...)...)}
}

func validationError(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Err: fmt.Errorf(format, args...)}
}

// withOp stamps op onto a workflow error and classifies anything else as internal.
func withOp(op string, err error) error {
	if err == nil {
		return nil
	}
	var we *Error
	if errors.As(err, &we) {
		if we.Op == "" {
			c := *we
			c.Op = op
			return &c
		}
		return err
	}
	return &Error{Kind: KindInternal, Op: op, Err: err}
}
