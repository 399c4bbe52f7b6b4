// Package apperror defines the error taxonomy shared by every core service.
// Services return *AppError for conditions the HTTP boundary must translate
// into a specific status code; everything else is wrapped as Internal.
package apperror

import "fmt"

// Kind classifies an error for the HTTP boundary. It is not an error type
// hierarchy — every AppError has exactly one Kind.
type Kind string

const (
	KindValidation   Kind = "validation"
	KindAuthz        Kind = "authorization"
	KindNotFound     Kind = "not_found"
	KindProvider     Kind = "provider"
	KindGovernance   Kind = "governance"
	KindInternal     Kind = "internal"
)

// AppError is the core error type. Message is safe to surface to callers;
// the wrapped cause is logged but not necessarily returned verbatim.
type AppError struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error { return e.Cause }

func New(kind Kind, message string) *AppError {
	return &AppError{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, cause error) *AppError {
	return &AppError{Kind: kind, Message: message, Cause: cause}
}

func Validation(format string, args ...any) *AppError {
	return New(KindValidation, fmt.Sprintf(format, args...))
}

func NotFound(format string, args ...any) *AppError {
	return New(KindNotFound, fmt.Sprintf(format, args...))
}

func Provider(message string, cause error) *AppError {
	return Wrap(KindProvider, message, cause)
}

func Governance(format string, args ...any) *AppError {
	return New(KindGovernance, fmt.Sprintf(format, args...))
}

func Internal(message string, cause error) *AppError {
	return Wrap(KindInternal, message, cause)
}

// As reports whether err (or something it wraps) is an *AppError, and
// returns it.
func As(err error) (*AppError, bool) {
	ae, ok := err.(*AppError)
	if ok {
		return ae, true
	}
	type unwrapper interface{ Unwrap() error }
	if u, ok := err.(unwrapper); ok {
		return As(u.Unwrap())
	}
	return nil, false
}
