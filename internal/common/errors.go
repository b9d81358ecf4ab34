package common

import (
	"errors"
	"net/http"
)

// Error codes shared by handlers.
const (
	CodeValidation    = "VALIDATION_ERROR"
	CodeInvalidNonce  = "INVALID_NONCE"
	CodeInvalidForm   = "INVALID_FORM"
	CodeRateLimited   = "RATE_LIMITED"
	CodeProcessor     = "PROCESSOR_ERROR"
	CodeInvalidStatus = "INVALID_STATUS"
	CodeInternal      = "INTERNAL"
	CodeReplay        = "IDEMPOTENT_REPLAY"
)

// AppError represents an error with an attached code and HTTP status.
type AppError struct {
	Code       string
	Message    string
	HTTPStatus int
	Err        error
	Details    any
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Message
}

// Unwrap allows errors.Is/As to inspect the underlying error.
func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewAppError constructs an AppError.
func NewAppError(code, message string, status int, err error) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: status, Err: err}
}

// ValidationError reports a malformed request. It never reaches the processor.
func ValidationError(message string, details any) *AppError {
	return &AppError{Code: CodeValidation, Message: message, HTTPStatus: http.StatusBadRequest, Details: details}
}

// NonceError reports a missing, expired or mis-scoped nonce.
func NonceError(err error) *AppError {
	return NewAppError(CodeInvalidNonce, "Invalid nonce.", http.StatusForbidden, err)
}

// InvalidFormError reports a form id that resolves to no payment form.
func InvalidFormError(err error) *AppError {
	return NewAppError(CodeInvalidForm, "Invalid payment form.", http.StatusBadRequest, err)
}

// ProcessorError reports a failed processor call with an already sanitized
// message. Declines, rejected requests and unreachable processors all answer 400.
func ProcessorError(message string, err error) *AppError {
	return NewAppError(CodeProcessor, message, http.StatusBadRequest, err)
}

// InternalError wraps an unexpected failure behind a generic message.
func InternalError(err error) *AppError {
	return NewAppError(CodeInternal, "Unable to process the request.", http.StatusInternalServerError, err)
}

// IsAppError checks whether the error is an AppError.
func IsAppError(err error) bool {
	var target *AppError
	return errors.As(err, &target)
}

// AsAppError extracts an AppError, converting anything else into an internal error.
func AsAppError(err error) *AppError {
	if err == nil {
		return nil
	}
	var target *AppError
	if errors.As(err, &target) {
		return target
	}
	return InternalError(err)
}
