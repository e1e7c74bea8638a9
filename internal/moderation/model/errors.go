package model

import (
	"errors"
	"fmt"
)

// ErrorCode classifies why a transition did not happen.
type ErrorCode string

const (
	CodeInvalidTransition   ErrorCode = "invalid_transition"
	CodeTerminalState       ErrorCode = "terminal_state"
	CodeMissingReason       ErrorCode = "missing_reason"
	CodeGuardFailed         ErrorCode = "guard_failed"
	CodePersistenceFailure  ErrorCode = "persistence_failure"
	CodeNotificationFailure ErrorCode = "notification_failure"
)

// Sentinels matched by errors.Is against a *TransitionError of the same code.
var (
	ErrInvalidTransition   = errors.New("invalid transition")
	ErrTerminalState       = errors.New("entity is in a terminal state")
	ErrMissingReason       = errors.New("a reason is required")
	ErrGuardFailed         = errors.New("transition guard failed")
	ErrPersistenceFailure  = errors.New("persistence failed")
	ErrNotificationFailure = errors.New("notification failed")
)

var codeSentinels = map[ErrorCode]error{
	CodeInvalidTransition:   ErrInvalidTransition,
	CodeTerminalState:       ErrTerminalState,
	CodeMissingReason:       ErrMissingReason,
	CodeGuardFailed:         ErrGuardFailed,
	CodePersistenceFailure:  ErrPersistenceFailure,
	CodeNotificationFailure: ErrNotificationFailure,
}

// TransitionError describes a rejected or failed transition.
type TransitionError struct {
	Code       ErrorCode
	Kind       Kind
	ID         string
	Transition TransitionName
	Status     string
	Msg        string
	// Err is the underlying cause, set for persistence and notification failures.
	Err error
}

func (e *TransitionError) Error() string {
	msg := fmt.Sprintf("%s %s: %s from %q: %s", e.Kind, e.ID, e.Transition, e.Status, e.Msg)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Is matches the sentinel for the error's code.
func (e *TransitionError) Is(target error) bool {
	return codeSentinels[e.Code] == target
}

func (e *TransitionError) Unwrap() error { return e.Err }

// Blocking reports whether the error was detected before any I/O, leaving
// the entity untouched.
func (e *TransitionError) Blocking() bool {
	switch e.Code {
	case CodeInvalidTransition, CodeTerminalState, CodeMissingReason, CodeGuardFailed:
		return true
	}
	return false
}

// CodeOf returns the code of a *TransitionError in err's chain, or "".
func CodeOf(err error) ErrorCode {
	var te *TransitionError
	if errors.As(err, &te) {
		return te.Code
	}
	return ""
}

// ErrValidation is returned when a caller supplies malformed input that is
// not a lifecycle decision (unknown kind, bad id).
type ErrValidation struct{ Msg string }

func (e *ErrValidation) Error() string { return e.Msg }
