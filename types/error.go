// Package types provides core types shared across the appflow backend.
// This package has ZERO dependencies on other appflow packages to avoid
// circular imports.
package types

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unified error code across the backend.
type ErrorCode string

// Workflow error codes
const (
	ErrValidate      ErrorCode = "VALIDATE_ERROR"
	ErrNotFound      ErrorCode = "NOT_FOUND"
	ErrFail          ErrorCode = "FAIL"
	ErrNodeExecution ErrorCode = "NODE_EXECUTION"
	ErrGraphCycle    ErrorCode = "GRAPH_CYCLE"
	ErrGraphConnect  ErrorCode = "GRAPH_NOT_CONNECTED"
	ErrUnknownNode   ErrorCode = "UNKNOWN_NODE_TYPE"
	ErrDuplicateNode ErrorCode = "DUPLICATE_NODE"
	ErrDuplicateEdge ErrorCode = "DUPLICATE_EDGE"
	ErrDanglingEdge  ErrorCode = "DANGLING_EDGE"
	ErrMissingInput  ErrorCode = "MISSING_INPUT"
	ErrTypeCoercion  ErrorCode = "TYPE_COERCION"
)

// Agent error codes
const (
	ErrAgentTimeout  ErrorCode = "AGENT_TIMEOUT"
	ErrAgentStopped  ErrorCode = "AGENT_STOPPED"
	ErrToolInvoke    ErrorCode = "TOOL_INVOKE"
	ErrModelInvoke   ErrorCode = "MODEL_INVOKE"
	ErrInternalError ErrorCode = "INTERNAL_ERROR"
)

// Error represents a structured error with code and message.
type Error struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Cause   error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error { return e.Cause }

// NewError creates a structured error.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WrapError creates a structured error wrapping a cause.
func WrapError(code ErrorCode, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// NewValidateError creates a validation error. Validation errors are
// surfaced synchronously to the caller of validate/compile.
func NewValidateError(format string, args ...any) *Error {
	return &Error{Code: ErrValidate, Message: fmt.Sprintf(format, args...)}
}

// IsValidateError reports whether err carries the VALIDATE_ERROR code.
func IsValidateError(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == ErrValidate
	}
	return false
}

// CodeOf extracts the error code from err, or INTERNAL_ERROR for plain errors.
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ErrInternalError
}
