// Package apperr classifies collection failures so callers can decide whether
// to retry, skip, surface or abort.
package apperr

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindValidation         Kind = "validation"
	KindComplianceBlocked  Kind = "compliance_blocked"
	KindExternalService    Kind = "external_service"
	KindIntegrityViolation Kind = "integrity_violation"
	KindNotFound           Kind = "not_found"
	KindConflict           Kind = "conflict"
	KindInternal           Kind = "internal"
)

// Error is the classified error returned by collection services.
type Error struct {
	Kind      Kind
	Op        string
	Message   string
	Err       error
	Transient bool
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	} else if e.Err != nil {
		msg = msg + ": " + e.Err.Error()
	}
	if e.Op == "" {
		return fmt.Sprintf("%s: %s", e.Kind, msg)
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func Validation(op, format string, args ...any) error {
	return &Error{Kind: KindValidation, Op: op, Message: fmt.Sprintf(format, args...)}
}

func Blocked(op, format string, args ...any) error {
	return &Error{Kind: KindComplianceBlocked, Op: op, Message: fmt.Sprintf(format, args...)}
}

// External wraps a collaborator failure. transient marks failures worth retrying
// (timeouts, 5xx, rate limits); business rejections must pass false.
func External(op string, err error, transient bool) error {
	return &Error{Kind: KindExternalService, Op: op, Err: err, Transient: transient}
}

func Integrity(op, format string, args ...any) error {
	return &Error{Kind: KindIntegrityViolation, Op: op, Message: fmt.Sprintf(format, args...)}
}

func NotFound(op, format string, args ...any) error {
	return &Error{Kind: KindNotFound, Op: op, Message: fmt.Sprintf(format, args...)}
}

func Conflict(op, format string, args ...any) error {
	return &Error{Kind: KindConflict, Op: op, Message: fmt.Sprintf(format, args...)}
}

func Internal(op string, err error) error {
	return &Error{Kind: KindInternal, Op: op, Err: err}
}

// KindOf returns the kind of the first classified error in the chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if err == nil {
		return ""
	}
	return KindInternal
}

func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// IsTransient reports whether err is an external failure marked retryable.
func IsTransient(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == KindExternalService && e.Transient
	}
	return false
}
