package domain

import (
	"errors"
	"fmt"
)

// Kind classifies a caller-visible failure.
type Kind string

const (
	KindNotFound               Kind = "NOT_FOUND"
	KindForbidden              Kind = "FORBIDDEN"
	KindInvalidState           Kind = "INVALID_STATE"
	KindMalformedSubmission    Kind = "MALFORMED_SUBMISSION"
	KindAllocationInputInvalid Kind = "ALLOCATION_INPUT_INVALID"
)

// Error is a typed failure carrying an actionable message.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// Is matches another *Error of the same kind, so the sentinels below work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Message == "" || t.Message == e.Message)
}

var (
	// ErrNotFound matches any missing session, test, result or record.
	ErrNotFound = &Error{Kind: KindNotFound}
	// ErrForbidden matches any role or ownership rejection.
	ErrForbidden = &Error{Kind: KindForbidden}
	// ErrInvalidState matches stage-not-released, stage-completed and certificate-ineligible failures.
	ErrInvalidState = &Error{Kind: KindInvalidState}
	// ErrMalformedSubmission matches answer sheets that cannot be scored safely.
	ErrMalformedSubmission = &Error{Kind: KindMalformedSubmission}
	// ErrAllocationInputInvalid matches allocation requests with participants but no trainers.
	ErrAllocationInputInvalid = &Error{Kind: KindAllocationInputInvalid}
)

func NotFound(format string, args ...any) error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

func Forbidden(format string, args ...any) error {
	return &Error{Kind: KindForbidden, Message: fmt.Sprintf(format, args...)}
}

func InvalidState(format string, args ...any) error {
	return &Error{Kind: KindInvalidState, Message: fmt.Sprintf(format, args...)}
}

func Malformed(format string, args ...any) error {
	return &Error{Kind: KindMalformedSubmission, Message: fmt.Sprintf(format, args...)}
}

func AllocationInvalid(format string, args ...any) error {
	return &Error{Kind: KindAllocationInputInvalid, Message: fmt.Sprintf(format, args...)}
}

// KindOf extracts the kind of a typed error, or "" for anything else.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
