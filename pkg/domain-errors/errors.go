// Package domainerrors defines the error taxonomy returned by services.
//
// Services translate store sentinels (see pkg/platform/sentinel) into a
// *Error carrying a Code. Transport layers map the Code to a status and
// render the field list, so callers always get an actionable reason.
package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code is a stable, caller-visible error identifier.
type Code string

const (
	CodeValidation               Code = "VALIDATION_FAILED"
	CodeUnsupportedCombination   Code = "UNSUPPORTED_METHOD_DATASET_COMBINATION"
	CodeDatasetScopeIncompatible Code = "DATASET_SCOPE_INCOMPATIBLE"
	CodeScopeImmutable           Code = "SCOPE_IMMUTABLE_AFTER_DECLARATION"
	CodeMissingPayload           Code = "MISSING_PAYLOAD"
	CodeInvalidPayload           Code = "INVALID_PAYLOAD"
	CodeNotFound                 Code = "NOT_FOUND"
	CodeImmutabilityConflict     Code = "IMMUTABILITY_CONFLICT"
	CodeIdempotencyConflict      Code = "IDEMPOTENCY_CONFLICT"
	CodeRetryInProgress          Code = "RETRY_IN_PROGRESS"
	CodeInvalidTransition        Code = "INVALID_TRANSITION"
	CodeUnauthorized             Code = "UNAUTHORIZED"
	CodeForbidden                Code = "FORBIDDEN"
	CodeTimeout                  Code = "TIMEOUT"
	CodeInternal                 Code = "SYSTEM_ERROR"
)

// FieldError describes one rejected input field. Code narrows the reason
// when the field failed a matrix rule rather than a format rule.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    Code   `json:"code,omitempty"`
}

// Error is the domain error carried across service boundaries.
type Error struct {
	Code    Code
	Message string
	Fields  []FieldError
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a domain error with the given code.
func New(code Code, msg string) *Error {
	return &Error{Code: code, Message: msg}
}

// Wrap attaches a code to an underlying cause.
func Wrap(err error, code Code, msg string) *Error {
	return &Error{Code: code, Message: msg, Err: err}
}

// WithFields returns a validation-style error listing every rejected field.
func WithFields(code Code, msg string, fields []FieldError) *Error {
	out := make([]FieldError, len(fields))
	copy(out, fields)
	return &Error{Code: code, Message: msg, Fields: out}
}

// As extracts the first *Error in the chain.
func As(err error) (*Error, bool) {
	var de *Error
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}

// HasCode reports whether any *Error in the chain carries code.
func HasCode(err error, code Code) bool {
	de, ok := As(err)
	return ok && de.Code == code
}

// Is is an alias of HasCode kept for handler readability.
func Is(err error, code Code) bool {
	return HasCode(err, code)
}

// CodeOf returns the code of err, or CodeInternal for foreign errors.
func CodeOf(err error) Code {
	if de, ok := As(err); ok {
		return de.Code
	}
	return CodeInternal
}

// ToHTTPStatus maps a domain code to an HTTP status.
func ToHTTPStatus(code Code) int {
	switch code {
	case CodeValidation, CodeInvalidPayload:
		return http.StatusBadRequest
	case CodeUnsupportedCombination, CodeDatasetScopeIncompatible:
		return http.StatusUnprocessableEntity
	case CodeScopeImmutable, CodeMissingPayload, CodeImmutabilityConflict,
		CodeIdempotencyConflict, CodeRetryInProgress, CodeInvalidTransition:
		return http.StatusConflict
	case CodeNotFound:
		return http.StatusNotFound
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
