// Package errs defines the sentinel error kinds shared across the runtime
// (created with github.com/pkg/errors), a Wrap for attaching context
// without losing the kind for errors.Is checks, and WithStack, which
// delegates to github.com/pkg/errors. Wrap itself records no stack.
package errs

import (
	"fmt"

	"github.com/pkg/errors"
)

// Sentinel error kinds. Handlers and callers compare against these with
// errors.Is; Wrap preserves them through formatting.
var (
	ErrNoSuchReactor  = errors.New("no such reactor")
	ErrMailboxClosed  = errors.New("mailbox closed")
	ErrTagMismatch    = errors.New("message tag mismatch")
	ErrEmpty          = errors.New("message already taken")
	ErrDuplicate      = errors.New("duplicate registration")
	ErrHandlerAbsent  = errors.New("no handler for message")
	ErrTimeoutExpired = errors.New("timeout expired")
	ErrBadIdentity    = errors.New("bad identity")
	ErrInternal       = errors.New("internal error")
)

// Wrap attaches a formatted message to kind while keeping it matchable with
// errors.Is(result, kind).
func Wrap(kind error, format string, args ...any) error {
	return &kindError{kind: kind, msg: fmt.Sprintf(format, args...)}
}

type kindError struct {
	kind error
	msg  string
}

func (e *kindError) Error() string { return e.msg + ": " + e.kind.Error() }

func (e *kindError) Unwrap() error { return e.kind }

// WithStack attaches a stack trace at the first place an error crosses
// a package boundary.
func WithStack(err error) error {
	if err == nil {
		return nil
	}
	return errors.WithStack(err)
}
