// Package apperrors defines the domain error taxonomy. Every error carries a
// message that can be shown to the user as-is; the HTTP layer maps the Kind
// to a status code.
package apperrors

import "errors"

// Kind classifies a domain error.
type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindNotFound
	KindConflict
	KindStorage
	KindInvalidCredentials
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindStorage:
		return "storage"
	case KindInvalidCredentials:
		return "invalid_credentials"
	default:
		return "unknown"
	}
}

// Sentinels usable with errors.Is.
var (
	ErrValidation         = &Error{Kind: KindValidation}
	ErrNotFound           = &Error{Kind: KindNotFound}
	ErrConflict           = &Error{Kind: KindConflict}
	ErrStorage            = &Error{Kind: KindStorage}
	ErrInvalidCredentials = &Error{Kind: KindInvalidCredentials}
)

// Error is a classified error with a display message and an optional cause.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Kind.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so errors.Is(err, ErrNotFound)
// works regardless of message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

func Validation(msg string) error { return &Error{Kind: KindValidation, Message: msg} }

func NotFound(msg string) error { return &Error{Kind: KindNotFound, Message: msg} }

func Conflict(msg string) error { return &Error{Kind: KindConflict, Message: msg} }

func InvalidCredentials(msg string) error {
	return &Error{Kind: KindInvalidCredentials, Message: msg}
}

// Storage wraps a filesystem failure.
func Storage(msg string, cause error) error {
	return &Error{Kind: KindStorage, Message: msg, Err: cause}
}

// KindOf returns the Kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
