package utils

import (
	"errors"
	"fmt"
	"runtime"
	"runtime/debug"
)

// AppError represents an application error with context
type AppError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Details    string `json:"details,omitempty"`
	File       string `json:"file,omitempty"`
	Line       int    `json:"line,omitempty"`
	StackTrace string `json:"stack_trace,omitempty"`

	Cause error `json:"-"`
}

func (e *AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the underlying cause to errors.Is / errors.As
func (e *AppError) Unwrap() error {
	return e.Cause
}

// NewAppError creates a new application error
func NewAppError(code, message string, details ...string) *AppError {
	_, file, line, _ := runtime.Caller(1)

	err := &AppError{
		Code:    code,
		Message: message,
		File:    file,
		Line:    line,
	}

	if len(details) > 0 {
		err.Details = details[0]
	}

	return err
}

// WrapError creates an application error around cause, using the cause text as details
func WrapError(code, message string, cause error) *AppError {
	_, file, line, _ := runtime.Caller(1)

	err := &AppError{
		Code:    code,
		Message: message,
		File:    file,
		Line:    line,
		Cause:   cause,
	}
	if cause != nil {
		err.Details = cause.Error()
	}
	return err
}

// WithStackTrace adds the current goroutine's stack trace to the error
func (e *AppError) WithStackTrace() *AppError {
	e.StackTrace = string(debug.Stack())
	return e
}

// CodeOf returns the code of the outermost AppError in err's chain, or "" if there is none
func CodeOf(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// Common error codes
const (
	ErrCodeConnection    = "CONNECTION_ERROR"
	ErrCodeDatabase      = "DATABASE_ERROR"
	ErrCodeValidation    = "VALIDATION_ERROR"
	ErrCodeNotFound      = "NOT_FOUND"
	ErrCodeInternal      = "INTERNAL_ERROR"
	ErrCodeBlockchain    = "BLOCKCHAIN_ERROR"
	ErrCodeConfiguration = "CONFIGURATION_ERROR"
)

// Deployment error codes
const (
	ErrCodeAccountUnavailable      = "ACCOUNT_UNAVAILABLE"
	ErrCodeSubmissionRejected      = "SUBMISSION_REJECTED"
	ErrCodeSubmissionUncertain     = "SUBMISSION_UNCERTAIN"
	ErrCodeTransactionDropped      = "TRANSACTION_DROPPED"
	ErrCodeTransactionReverted     = "TRANSACTION_REVERTED"
	ErrCodeConfirmationTimeout     = "CONFIRMATION_TIMEOUT"
	ErrCodeInterrupted             = "INTERRUPTED"
	ErrCodeArtifactMissing         = "ARTIFACT_MISSING"
	ErrCodeDescriptorWriteFailed   = "DESCRIPTOR_WRITE_FAILED"
	ErrCodeConfigurationStepFailed = "CONFIGURATION_STEP_FAILED"
	ErrCodePersistence             = "PERSISTENCE_ERROR"
	ErrCodeHistoryWriteFailed      = "HISTORY_WRITE_FAILED"
	ErrCodeVerificationFailed      = "VERIFICATION_FAILED"
	ErrCodeNotification            = "NOTIFICATION_FAILED"
)
