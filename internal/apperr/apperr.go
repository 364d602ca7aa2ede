// Package apperr defines the failure taxonomy shared by the domain engines.
//
// Every failure is either an input error (the request content is malformed or
// semantically invalid) or an access error (identity or ownership). The reason
// sentinel says what went wrong and is matched with errors.Is.
package apperr

import (
	"errors"
	"fmt"
)

// Kind is the top-level failure category.
type Kind int

const (
	// KindInput covers malformed or semantically invalid requests.
	KindInput Kind = iota + 1
	// KindAccess covers identity resolution and ownership failures.
	KindAccess
)

func (k Kind) String() string {
	switch k {
	case KindInput:
		return "input"
	case KindAccess:
		return "access"
	default:
		return "unknown"
	}
}

// Failure reasons.
var (
	ErrInvalidInput     = errors.New("invalid input")
	ErrInvalidReference = errors.New("invalid reference")
	ErrAlreadyObtained  = errors.New("already obtained")
	ErrInvalidOrExpired = errors.New("invalid or expired")
	ErrOutOfWindow      = errors.New("out of window")
	ErrInvalidCode      = errors.New("invalid code")
	ErrTooDeep          = errors.New("too deep")
	ErrForbidden        = errors.New("forbidden")
	ErrAccessDenied     = errors.New("access denied")
)

// Error is a classified failure with a human-readable message.
type Error struct {
	Kind    Kind
	Reason  error
	Message string
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Message == "" {
		return e.Reason.Error()
	}
	return e.Message
}

// Unwrap exposes the reason so errors.Is matches the sentinels above.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Reason
}

// Input returns an input error for reason.
func Input(reason error, format string, args ...any) error {
	return &Error{Kind: KindInput, Reason: reason, Message: fmt.Sprintf(format, args...)}
}

// Access returns an access error for reason.
func Access(reason error, format string, args ...any) error {
	return &Error{Kind: KindAccess, Reason: reason, Message: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind of err, or 0 when err is not classified.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return 0
}

// IsInput reports whether err is an input error.
func IsInput(err error) bool { return KindOf(err) == KindInput }

// IsAccess reports whether err is an access error.
func IsAccess(err error) bool { return KindOf(err) == KindAccess }
