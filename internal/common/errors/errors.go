// Package errors provides custom error types for the NapCat-QCE SDK.
package errors

import (
	"errors"
	"fmt"
)

// Error codes as constants
const (
	ErrCodeNoCredential       = "NO_CREDENTIAL_FOUND"
	ErrCodeStartupTimeout     = "STARTUP_TIMEOUT"
	ErrCodeProcessExitedEarly = "PROCESS_EXITED_EARLY"
	ErrCodeTaskFetchFailed    = "TASK_FETCH_FAILED"
	ErrCodeTaskFailed         = "TASK_FAILED"
	ErrCodeTimeout            = "TIMEOUT"
	ErrCodeConnection         = "CONNECTION_ERROR"
	ErrCodeValidation         = "VALIDATION_ERROR"
	ErrCodeNetwork            = "NETWORK_ERROR"
	ErrCodeAPI                = "API_ERROR"
	ErrCodeAuth               = "AUTH_ERROR"
	ErrCodeTaskNotFound       = "TASK_NOT_FOUND"
)

// AppError represents an application-specific error with additional context.
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the wrapped error for use with errors.Is and errors.As.
func (e *AppError) Unwrap() error {
	return e.Err
}

// NoCredential creates an error for failed credential discovery.
func NoCredential(message string) *AppError {
	return &AppError{Code: ErrCodeNoCredential, Message: message}
}

// StartupTimeout creates an error for a service that did not become ready in time.
func StartupTimeout(message string) *AppError {
	return &AppError{Code: ErrCodeStartupTimeout, Message: message}
}

// ProcessExitedEarly creates an error for a supervised process that exited
// before signaling readiness.
func ProcessExitedEarly(exitCode int) *AppError {
	return &AppError{
		Code:    ErrCodeProcessExitedEarly,
		Message: fmt.Sprintf("process exited with code %d before becoming ready", exitCode),
	}
}

// TaskFetchFailed creates an error for a status poll that could not be completed.
func TaskFetchFailed(taskID string, err error) *AppError {
	return &AppError{
		Code:    ErrCodeTaskFetchFailed,
		Message: fmt.Sprintf("failed to fetch status of task '%s'", taskID),
		Err:     err,
	}
}

// TaskFailed creates an error for a task that reached a remote failure state.
func TaskFailed(taskID, status, detail string) *AppError {
	msg := fmt.Sprintf("task '%s' ended with status %s", taskID, status)
	if detail != "" {
		msg = fmt.Sprintf("%s: %s", msg, detail)
	}
	return &AppError{Code: ErrCodeTaskFailed, Message: msg}
}

// Timeout creates an error for a local deadline that elapsed.
func Timeout(message string) *AppError {
	return &AppError{Code: ErrCodeTimeout, Message: message}
}

// Connection creates an error for the push-event channel.
func Connection(message string, err error) *AppError {
	return &AppError{Code: ErrCodeConnection, Message: message, Err: err}
}

// Validation creates a new validation error for a specific field.
func Validation(field string, message string) *AppError {
	return &AppError{
		Code:    ErrCodeValidation,
		Message: fmt.Sprintf("validation failed for field '%s': %s", field, message),
	}
}

// Network creates a transport-level error.
func Network(message string, err error) *AppError {
	return &AppError{Code: ErrCodeNetwork, Message: message, Err: err}
}

// API creates an error for a request the remote service rejected.
func API(code, message string) *AppError {
	if code == "" {
		code = ErrCodeAPI
	}
	return &AppError{Code: code, Message: message}
}

// Auth creates an authentication error.
func Auth(message string) *AppError {
	return &AppError{Code: ErrCodeAuth, Message: message}
}

// TaskNotFound creates an error for an unknown task id.
func TaskNotFound(taskID string) *AppError {
	return &AppError{
		Code:    ErrCodeTaskNotFound,
		Message: fmt.Sprintf("task '%s' not found", taskID),
	}
}

// Wrap wraps an existing error with additional context, returning an AppError.
func Wrap(err error, message string) *AppError {
	if err == nil {
		return nil
	}

	// If the error is already an AppError, preserve its code
	var appErr *AppError
	if errors.As(err, &appErr) {
		return &AppError{
			Code:    appErr.Code,
			Message: fmt.Sprintf("%s: %s", message, appErr.Message),
			Err:     err,
		}
	}

	return &AppError{
		Code:    ErrCodeAPI,
		Message: message,
		Err:     err,
	}
}

// Code returns the error code for an error, or empty string if it is not an AppError.
func Code(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// Is reports whether the error carries the given code.
func Is(err error, code string) bool {
	return Code(err) == code
}

// IsTimeout checks if the error is a local deadline error.
func IsTimeout(err error) bool {
	return Is(err, ErrCodeTimeout)
}

// IsTaskFailed checks if the error is a remote task failure.
func IsTaskFailed(err error) bool {
	return Is(err, ErrCodeTaskFailed)
}

// IsRetryable reports whether a request error may succeed on a later attempt.
// Transport failures are retryable; rejections by the remote service are not.
func IsRetryable(err error) bool {
	switch Code(err) {
	case ErrCodeNetwork, ErrCodeConnection:
		return true
	}
	return false
}
