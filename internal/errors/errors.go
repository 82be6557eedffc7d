package errors

import (
	stderrors "errors"
	"fmt"
)

// AppError represents a structured application error
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Message == "" && e.Cause != nil {
		return e.Cause.Error()
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// New creates a new AppError
func New(code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an error with additional context, keeping the code of the
// nearest AppError in the chain.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return &AppError{
			Code:    appErr.Code,
			Message: message,
			Cause:   err,
		}
	}
	return &AppError{
		Code:    CodeInternalError,
		Message: message,
		Cause:   err,
	}
}

// Wrapf wraps an error with formatted additional context
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return Wrap(err, fmt.Sprintf(format, args...))
}

// WithCode adds an error code to an existing error
func WithCode(code string, err error) error {
	if err == nil {
		return nil
	}
	if appErr, ok := err.(*AppError); ok {
		return &AppError{
			Code:    code,
			Message: appErr.Message,
			Cause:   appErr.Cause,
		}
	}
	return &AppError{
		Code:  code,
		Cause: err,
	}
}

// IsAppError checks if an error chain contains an AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return stderrors.As(err, &appErr)
}

// GetCode returns the code of the outermost AppError in the chain, otherwise "UNKNOWN"
func GetCode(err error) string {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return "UNKNOWN"
}

// HasCode reports whether any AppError in the chain carries code.
func HasCode(err error, code string) bool {
	for err != nil {
		if appErr, ok := err.(*AppError); ok && appErr.Code == code {
			return true
		}
		err = stderrors.Unwrap(err)
	}
	return false
}

// IsNotFound reports whether err marks an absent remote or local object.
func IsNotFound(err error) bool {
	return HasCode(err, CodeNotFound)
}

// IsTransient reports whether err belongs to the lock/conflict/throttle class
// that is expected to clear on retry.
func IsTransient(err error) bool {
	return HasCode(err, CodeConflictOrLocked) || HasCode(err, CodeThrottled)
}

// Predefined error codes
const (
	CodeConfigInvalid    = "CONFIG_INVALID"
	CodeDatabaseError    = "DATABASE_ERROR"
	CodeValidationError  = "VALIDATION_ERROR"
	CodeNotFound         = "NOT_FOUND"
	CodeUnauthorized     = "UNAUTHORIZED"
	CodeInternalError    = "INTERNAL_ERROR"
	CodeExternalService  = "EXTERNAL_SERVICE_ERROR"
	CodeInvalidInput     = "INVALID_INPUT"
	CodeAuth             = "AUTH_ERROR"
	CodeConflictOrLocked = "CONFLICT_OR_LOCKED"
	CodeThrottled        = "THROTTLED"
	CodeUploadExhausted  = "UPLOAD_EXHAUSTED"
	CodeProvisioning     = "PROVISIONING_ERROR"
	CodeDownload         = "DOWNLOAD_ERROR"
	CodeLocalPersistence = "LOCAL_PERSISTENCE_ERROR"
)

// Common error constructors
func ConfigInvalid(message string) *AppError {
	return New(CodeConfigInvalid, message)
}

func DatabaseError(message string) *AppError {
	return New(CodeDatabaseError, message)
}

func ValidationError(message string) *AppError {
	return New(CodeValidationError, message)
}

func NotFound(resource string) *AppError {
	return New(CodeNotFound, fmt.Sprintf("%s not found", resource))
}

func InternalError(message string) *AppError {
	return New(CodeInternalError, message)
}

func ExternalServiceError(service string, cause error) *AppError {
	return &AppError{
		Code:    CodeExternalService,
		Message: fmt.Sprintf("%s service error", service),
		Cause:   cause,
	}
}

func InvalidInput(message string) *AppError {
	return New(CodeInvalidInput, message)
}

// AuthError reports a failed credential exchange.
func AuthError(message string, cause error) *AppError {
	return &AppError{Code: CodeAuth, Message: message, Cause: cause}
}

// UploadExhausted reports that every upload attempt failed.
func UploadExhausted(attempts int, cause error) *AppError {
	return &AppError{
		Code:    CodeUploadExhausted,
		Message: fmt.Sprintf("upload failed after %d attempt(s)", attempts),
		Cause:   cause,
	}
}

// ProvisioningError reports a failed folder/workbook/sheet/table ensure step.
func ProvisioningError(step string, cause error) *AppError {
	return &AppError{
		Code:    CodeProvisioning,
		Message: fmt.Sprintf("provisioning step %q failed", step),
		Cause:   cause,
	}
}

// DownloadError reports an unexpected response while fetching remote content.
func DownloadError(path string, cause error) *AppError {
	return &AppError{
		Code:    CodeDownload,
		Message: fmt.Sprintf("download of %s failed", path),
		Cause:   cause,
	}
}

// LocalPersistenceError reports a failure writing the local workbook cache.
func LocalPersistenceError(path string, cause error) *AppError {
	return &AppError{
		Code:    CodeLocalPersistence,
		Message: fmt.Sprintf("failed to persist %s", path),
		Cause:   cause,
	}
}
