// Package eggboterr defines the tagged error kinds shared by every core
// component, replacing exception-style control flow with explicit values.
package eggboterr

import "github.com/pkg/errors"

// Kind is a short machine-readable error classification.
type Kind string

// The error kinds surfaced by the control engine and its components.
const (
	// HardwareUnavailable means a chosen backend failed to initialize permanently.
	HardwareUnavailable Kind = "hardware_unavailable"

	// TransientI2cFault means a single bus read failed; the caller may retry.
	TransientI2cFault Kind = "transient_i2c_fault"

	// ServoCommandFault means a single pulse-write to the servo daemon failed.
	ServoCommandFault Kind = "servo_command_fault"

	// OutOfRange means a caller-supplied value fell outside its validated envelope.
	OutOfRange Kind = "out_of_range"

	// ModeConflict means a requested mode transition is not allowed in the current state.
	ModeConflict Kind = "mode_conflict"

	// StateConflict means an operation was requested in an incompatible lifecycle state.
	StateConflict Kind = "state_conflict"

	// MathDomain means thermistor math received a value outside its valid domain.
	MathDomain Kind = "math_domain"

	// SafetyTripped means a critical envelope was exceeded and the engine shut down.
	SafetyTripped Kind = "safety_tripped"
)

// Error is a tagged error carrying a Kind alongside the usual message/cause chain.
type Error struct {
	Kind    Kind
	Message string
	cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.cause != nil {
		return e.Kind.String() + ": " + e.Message + ": " + e.cause.Error()
	}
	return e.Kind.String() + ": " + e.Message
}

// Unwrap exposes the wrapped cause to errors.Is/errors.As.
func (e *Error) Unwrap() error {
	return e.cause
}

// String renders the Kind as plain text.
func (k Kind) String() string {
	return string(k)
}

// New creates a Kind-tagged error with no underlying cause.
func New(kind Kind, message string) error {
	return &Error{Kind: kind, Message: message}
}

// Wrap tags an existing error with a Kind, preserving it as the cause via
// github.com/pkg/errors so callers can still retrieve stack context.
func Wrap(kind Kind, message string, cause error) error {
	if cause == nil {
		return New(kind, message)
	}
	return &Error{Kind: kind, Message: message, cause: errors.Wrap(cause, message)}
}

// Is reports whether err is an *Error of the given Kind.
func Is(err error, kind Kind) bool {
	e, ok := err.(*Error)
	if !ok {
		return false
	}
	return e.Kind == kind
}
