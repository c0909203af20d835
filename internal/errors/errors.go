// Package errors provides error code definitions for the tradewatch agent.
package errors

import "fmt"

// ErrorCode identifies a failure category that callers can branch on.
type ErrorCode string

const (
	// General errors
	ErrInternal ErrorCode = "INTERNAL_ERROR"
	ErrInvalid  ErrorCode = "INVALID_INPUT"

	// Local persistence errors
	ErrStorage   ErrorCode = "STORAGE_ERROR"
	ErrMigration ErrorCode = "MIGRATION_FAILED"

	// Authentication errors
	ErrAuth         ErrorCode = "AUTH_ERROR"
	ErrUnauthorized ErrorCode = "UNAUTHORIZED"

	// Collector delivery errors
	ErrTransport   ErrorCode = "TRANSPORT_ERROR"
	ErrServer      ErrorCode = "SERVER_ERROR"
	ErrRateLimited ErrorCode = "RATE_LIMITED"
	ErrSyncBusy    ErrorCode = "SYNC_BUSY"
)

// AppError represents an application error with code and message.
// HTTPStatus carries the collector's response code when the failure came
// from an HTTP response; it is zero otherwise.
type AppError struct {
	Code       ErrorCode
	Message    string
	HTTPStatus int
	Err        error
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError.
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with an error code.
func Wrap(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Server creates a SERVER_ERROR carrying the collector status code.
func Server(status int, message string) *AppError {
	return &AppError{
		Code:       ErrServer,
		Message:    message,
		HTTPStatus: status,
	}
}

// Is checks if any error in err's chain carries the given code.
func Is(err error, code ErrorCode) bool {
	for err != nil {
		if appErr, ok := err.(*AppError); ok {
			if appErr.Code == code {
				return true
			}
			err = appErr.Err
			continue
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// Status returns the HTTP status attached to err's chain, or zero.
func Status(err error) int {
	for err != nil {
		if appErr, ok := err.(*AppError); ok {
			if appErr.HTTPStatus != 0 {
				return appErr.HTTPStatus
			}
			err = appErr.Err
			continue
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return 0
		}
		err = u.Unwrap()
	}
	return 0
}
