// SPDX-License-Identifier: Apache-2.0

// Package errors provides typed error handling with rich context for Consilium.
package errors

import (
	"fmt"
	"net/http"
)

// ErrorCode classifies Consilium errors for monitoring and recovery.
type ErrorCode string

const (
	// CodeInternal indicates an internal system error.
	CodeInternal ErrorCode = "INTERNAL_ERROR"

	// CodeInvalidInput indicates the input was invalid (empty report, bad role).
	CodeInvalidInput ErrorCode = "INVALID_INPUT"

	// CodeUnauthorized indicates a missing or rejected credential.
	CodeUnauthorized ErrorCode = "UNAUTHORIZED"

	// CodeLLMError indicates a model provider call failed or returned nothing usable.
	CodeLLMError ErrorCode = "LLM_ERROR"

	// CodeTimeout indicates an operation exceeded its time limit.
	CodeTimeout ErrorCode = "TIMEOUT"

	// CodeRateLimit indicates provider rate limiting or quota exhaustion.
	CodeRateLimit ErrorCode = "RATE_LIMITED"

	// CodeExtraction indicates text extraction from an uploaded document failed.
	CodeExtraction ErrorCode = "EXTRACTION_FAILED"

	// CodeNotFound indicates a resource was not found.
	CodeNotFound ErrorCode = "NOT_FOUND"
)

// ConsiliumError is a typed error carrying a code and structured context.
// It implements the error interface and unwraps to its cause.
type ConsiliumError struct {
	Code        ErrorCode
	Message     string
	Err         error
	Context     map[string]any
	Recoverable bool
}

// Error implements the error interface.
func (e *ConsiliumError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap implements errors.Unwrap for error chain traversal.
func (e *ConsiliumError) Unwrap() error {
	return e.Err
}

// New creates a new ConsiliumError with the given code, message, and cause.
func New(code ErrorCode, msg string, cause error) *ConsiliumError {
	return &ConsiliumError{
		Code:    code,
		Message: msg,
		Err:     cause,
		Context: make(map[string]any),
	}
}

// WithContext adds a key-value pair to the error context.
// Returns the error for method chaining.
func (e *ConsiliumError) WithContext(key string, value any) *ConsiliumError {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// WithRecoverable sets whether the error can be retried.
// Returns the error for method chaining.
func (e *ConsiliumError) WithRecoverable(recoverable bool) *ConsiliumError {
	e.Recoverable = recoverable
	return e
}

// HTTPStatus maps the error code to an HTTP status for the web layer.
func (e *ConsiliumError) HTTPStatus() int {
	switch e.Code {
	case CodeInvalidInput, CodeExtraction:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeNotFound:
		return http.StatusNotFound
	case CodeTimeout:
		return http.StatusGatewayTimeout
	case CodeRateLimit:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// AsConsiliumError converts err to a *ConsiliumError, wrapping unknown
// errors under CodeInternal. Returns nil for a nil error.
func AsConsiliumError(err error) *ConsiliumError {
	if err == nil {
		return nil
	}
	if ce, ok := err.(*ConsiliumError); ok {
		return ce
	}
	return New(CodeInternal, "wrapped error", err)
}

// CodeOf returns the error code of err, or CodeInternal for untyped errors.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	if ce, ok := err.(*ConsiliumError); ok {
		return ce.Code
	}
	return CodeInternal
}
