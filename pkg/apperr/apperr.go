package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an application error so that the transport boundary can
// map it to a response code without inspecting message text.
type Kind int

const (
	// KindValidation is a rejected input: missing field, bad amount, etc.
	KindValidation Kind = iota + 1
	// KindNotFound is a missing plan/device/number/order/payment.
	KindNotFound
	// KindConflict is a state conflict: number taken, illegal transition,
	// duplicate payment.
	KindConflict
	// KindExternal is a retryable upstream failure (gateway unreachable,
	// timeout).
	KindExternal
	// KindIntegrity is a broken invariant. Never surfaced to callers as-is;
	// the enclosing transaction is aborted and the error logged.
	KindIntegrity
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindExternal:
		return "external"
	case KindIntegrity:
		return "integrity"
	default:
		return "unknown"
	}
}

// Error is the single error type services return across package boundaries.
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

func (e *Error) Unwrap() error { return e.Err }

// New wraps cause with a kind and message.
func New(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Err: cause}
}

func Validation(message string) *Error {
	return &Error{Kind: KindValidation, Message: message}
}

func Validationf(format string, args ...interface{}) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func NotFound(message string) *Error {
	return &Error{Kind: KindNotFound, Message: message}
}

func NotFoundf(format string, args ...interface{}) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

func Conflict(message string) *Error {
	return &Error{Kind: KindConflict, Message: message}
}

func Conflictf(format string, args ...interface{}) *Error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

func External(message string, cause error) *Error {
	return &Error{Kind: KindExternal, Message: message, Err: cause}
}

func Integrity(message string, cause error) *Error {
	return &Error{Kind: KindIntegrity, Message: message, Err: cause}
}

// KindOf returns the kind of err, or 0 when err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
