package orders

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a conditional write lost against a concurrent change.
	// It is the only error worth retrying, and only after a fresh read.
	ErrConflict = errors.New("record changed since it was read")
)

// ValidationError reports a missing or malformed input field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Invalid returns a *ValidationError for field.
func Invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// GuardCode classifies guard violations.
type GuardCode string

const (
	GuardWindowClosed      GuardCode = "window_closed"
	GuardRole              GuardCode = "role"
	GuardInvalidState      GuardCode = "invalid_state"
	GuardInvalidTransition GuardCode = "invalid_transition"
	GuardAlterationCap     GuardCode = "alteration_cap"
	GuardReasonNotOffered  GuardCode = "reason_not_offered"
)

// GuardViolation is a rejected transition. It only clears once the real-world
// condition changes, so callers must not retry it.
type GuardViolation struct {
	Code   GuardCode
	Reason string
}

func (e *GuardViolation) Error() string {
	return e.Reason
}

// Guard returns a *GuardViolation.
func Guard(code GuardCode, format string, args ...interface{}) error {
	return &GuardViolation{Code: code, Reason: fmt.Sprintf(format, args...)}
}

// IsGuard reports whether err is a guard violation, optionally of a given code.
func IsGuard(err error, codes ...GuardCode) bool {
	var gv *GuardViolation
	if !errors.As(err, &gv) {
		return false
	}
	if len(codes) == 0 {
		return true
	}
	for _, c := range codes {
		if gv.Code == c {
			return true
		}
	}
	return false
}

// StoreError wraps a failure of the underlying record store. No write is
// assumed to have applied.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }
