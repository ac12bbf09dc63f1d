// Package errors provides structured error types for the blockflow engine.
//
// This package defines error codes and types that enable:
//   - Consistent error handling across the engine, CLI and HTTP API
//   - Machine-readable error codes for programmatic handling
//   - User-friendly error messages at the point of gesture
//   - Error wrapping with context preservation
//
// # Error Codes
//
// Error codes follow a hierarchical naming convention:
//   - INVALID_*: Rejected input (connections, payloads, state transitions)
//   - NOT_FOUND / DUPLICATE_ID / UNKNOWN_KIND: Identity and registry misses
//   - CORRUPT_GRAPH: A document failed the live-mutation invariants on load
//   - INTERNAL_*: Unexpected internal errors
//
// Connection rejections carry a [Reason] in addition to the code, so the
// interaction layer can tell a self-loop from an occupied input handle.
//
// # Usage
//
//	err := errors.New(errors.ErrCodeNotFound, "node %s not found", id)
//	if errors.Is(err, errors.ErrCodeNotFound) {
//	    // Handle lookup miss
//	}
//
//	err := errors.InvalidConnection(errors.ReasonSelfLoop, "node %s cannot connect to itself", id)
//	if errors.ReasonOf(err) == errors.ReasonSelfLoop {
//	    // Snap the connection line back
//	}
package errors

import (
	"errors"
	"fmt"
)

// Code represents a machine-readable error code.
type Code string

// Error codes for different error categories.
const (
	// Rejected input
	ErrCodeInvalidInput      Code = "INVALID_INPUT"
	ErrCodeInvalidConnection Code = "INVALID_CONNECTION"
	ErrCodeInvalidPayload    Code = "INVALID_PAYLOAD"
	ErrCodeInvalidState      Code = "INVALID_STATE"

	// Identity and registry errors
	ErrCodeNotFound    Code = "NOT_FOUND"
	ErrCodeDuplicateID Code = "DUPLICATE_ID"
	ErrCodeUnknownKind Code = "UNKNOWN_KIND"

	// Document errors
	ErrCodeCorruptGraph Code = "CORRUPT_GRAPH"

	// Internal errors
	ErrCodeInternal    Code = "INTERNAL_ERROR"
	ErrCodeUnsupported Code = "UNSUPPORTED"
)

// Reason refines ErrCodeInvalidConnection with the rule that rejected the edge.
type Reason string

// Connection rejection reasons, listed in the order the rules are applied.
const (
	ReasonDanglingEndpoint  Reason = "DanglingEndpoint"
	ReasonSelfLoop          Reason = "SelfLoop"
	ReasonArityExceeded     Reason = "ArityExceeded"
	ReasonIncompatibleKinds Reason = "IncompatibleKinds"
	ReasonCycleDetected     Reason = "CycleDetected"
)

// Error is a structured error with a code and optional cause.
type Error struct {
	Code    Code   // Machine-readable error code
	Reason  Reason // Sub-reason, set for ErrCodeInvalidConnection
	Message string // Human-readable message
	Cause   error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *Error) Error() string {
	prefix := string(e.Code)
	if e.Reason != "" {
		prefix += "(" + string(e.Reason) + ")"
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates a new Error with the given code and formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap creates a new Error wrapping an existing error.
func Wrap(code Code, cause error, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
	}
}

// InvalidConnection creates an ErrCodeInvalidConnection error with the given reason.
func InvalidConnection(reason Reason, format string, args ...any) *Error {
	return &Error{
		Code:    ErrCodeInvalidConnection,
		Reason:  reason,
		Message: fmt.Sprintf(format, args...),
	}
}

// Is reports whether err has the given error code.
// It unwraps the error chain looking for an *Error with a matching code,
// so a CORRUPT_GRAPH error wrapping an INVALID_CONNECTION matches both.
func Is(err error, code Code) bool {
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return false
		}
		if e.Code == code {
			return true
		}
		err = e.Cause
	}
	return false
}

// GetCode extracts the outermost error code from an error, if available.
// Returns empty string if the error is not an *Error.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// ReasonOf returns the first connection rejection reason found in the error chain.
// Returns empty string if the chain holds no connection error.
func ReasonOf(err error) Reason {
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return ""
		}
		if e.Reason != "" {
			return e.Reason
		}
		err = e.Cause
	}
	return ""
}

// UserMessage returns a user-friendly message for the error.
// For *Error types, returns the message without the code prefix.
// For other errors, returns the error string as-is.
func UserMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}
