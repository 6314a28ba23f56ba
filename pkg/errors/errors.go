package errors

import (
	"fmt"
	"net/http"
)

// ErrorCode represents application-specific error codes
type ErrorCode string

const (
	// Validation errors
	ErrCodeValidation   ErrorCode = "VALIDATION_ERROR"
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"
	ErrCodeMissingField ErrorCode = "MISSING_FIELD"

	// Call lifecycle errors
	ErrCodeInvalidState   ErrorCode = "INVALID_STATE"
	ErrCodeCallNotFound   ErrorCode = "CALL_NOT_FOUND"
	ErrCodeCallInProgress ErrorCode = "CALL_IN_PROGRESS"
	ErrCodeCallEnded      ErrorCode = "CALL_ENDED"

	// Signaling errors
	ErrCodeSignalingDisconnected ErrorCode = "SIGNALING_DISCONNECTED"
	ErrCodeIdentityUnknown       ErrorCode = "IDENTITY_UNKNOWN"

	// Media engine errors
	ErrCodeEngineUnavailable ErrorCode = "ENGINE_UNAVAILABLE"
	ErrCodeEngineTimeout     ErrorCode = "ENGINE_TIMEOUT"
	ErrCodeEngineFailed      ErrorCode = "ENGINE_FAILED"

	// Internal errors
	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
	ErrCodeStorage  ErrorCode = "STORAGE_ERROR"
)

// AppError represents a structured application error with code, message, and HTTP status
type AppError struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	StatusCode int       `json:"-"`
	Details    any       `json:"details,omitempty"`
	Err        error     `json:"-"`
}

// Error implements the error interface, returning a formatted error message
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError with the given code and message
// The status code defaults to 500 Internal Server Error
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: http.StatusInternalServerError,
	}
}

// NewWithStatus creates a new AppError with a specific HTTP status code
func NewWithStatus(code ErrorCode, message string, statusCode int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
	}
}

// Wrap wraps an existing error with an AppError, preserving the original error
// The status code defaults to 500 Internal Server Error
func Wrap(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Err:        err,
	}
}

// WithDetails adds additional details to an AppError for debugging
func (e *AppError) WithDetails(details any) *AppError {
	e.Details = details
	return e
}

// Validation errors
func ValidationError(message string) *AppError {
	return NewWithStatus(ErrCodeValidation, message, http.StatusBadRequest)
}

func InvalidInputError(message string) *AppError {
	return NewWithStatus(ErrCodeInvalidInput, message, http.StatusBadRequest)
}

func MissingFieldError(field string) *AppError {
	return NewWithStatus(ErrCodeMissingField, fmt.Sprintf("Missing required field: %s", field), http.StatusBadRequest)
}

// Call lifecycle errors

// InvalidStateError signals that a call action was attempted in a phase
// that does not permit it (for example starting a call while one is live).
func InvalidStateError(message string) *AppError {
	return NewWithStatus(ErrCodeInvalidState, message, http.StatusConflict)
}

func CallNotFoundError() *AppError {
	return NewWithStatus(ErrCodeCallNotFound, "No active call session", http.StatusNotFound)
}

func CallInProgressError() *AppError {
	return NewWithStatus(ErrCodeCallInProgress, "A call session is already in progress", http.StatusConflict)
}

// Signaling errors

func SignalingDisconnectedError() *AppError {
	return NewWithStatus(ErrCodeSignalingDisconnected, "Signaling channel is not connected", http.StatusServiceUnavailable)
}

func IdentityUnknownError() *AppError {
	return NewWithStatus(ErrCodeIdentityUnknown, "Local user identity is not available yet", http.StatusUnauthorized)
}

// Media engine errors

func EngineUnavailableError(err error) *AppError {
	e := Wrap(ErrCodeEngineUnavailable, "Media engine is unavailable", err)
	e.StatusCode = http.StatusServiceUnavailable
	return e
}

func EngineTimeoutError() *AppError {
	return NewWithStatus(ErrCodeEngineTimeout, "Media engine initialization timed out", http.StatusGatewayTimeout)
}

// Internal errors
func InternalError(message string) *AppError {
	return New(ErrCodeInternal, message)
}

func StorageError(err error) *AppError {
	return Wrap(ErrCodeStorage, "Local storage operation failed", err)
}

// IsCode reports whether err is an AppError carrying the given code.
func IsCode(err error, code ErrorCode) bool {
	if appErr, ok := err.(*AppError); ok {
		return appErr.Code == code
	}
	return false
}
