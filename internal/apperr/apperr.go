package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error by how the caller is expected to recover from it.
type Kind string

const (
	// Validation errors are recovered locally and shown inline.
	Validation Kind = "validation"
	// Remote errors come from catalog, settings, order or wishlist I/O and may be retried.
	Remote Kind = "remote"
	// Authorization errors send the customer to sign in.
	Authorization Kind = "authorization"
	// BusinessRule errors are rejected before any write.
	BusinessRule Kind = "business_rule"
)

// Error is a user-facing failure. Message is safe to show to the customer.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable reports whether repeating the same operation may succeed.
func (e *Error) Retryable() bool {
	return e.Kind == Remote
}

// Is matches another *Error with the same kind and message, so package level
// sentinels work with errors.Is even after wrapping.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && e.Message == t.Message
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap attaches a cause to a user-facing message.
func Wrap(kind Kind, err error, message string) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or "" if there is none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsRetryable reports whether err carries a retryable *Error.
func IsRetryable(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Retryable()
}
