package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a specific error type for context-engine operations.
type ErrorCode string

const (
	// ErrCodeFetchFailed indicates a backend fetch for an entity failed.
	ErrCodeFetchFailed ErrorCode = "FETCH_FAILED"
	// ErrCodeNotFound indicates the requested entity does not exist.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"
	// ErrCodeInvalidArgument indicates invalid input parameters.
	ErrCodeInvalidArgument ErrorCode = "INVALID_ARGUMENT"
	// ErrCodeGenerationFailed indicates thin-frame generation failure.
	ErrCodeGenerationFailed ErrorCode = "GENERATION_FAILED"
	// ErrCodeGenerationTimeout indicates thin-frame generation exceeded its deadline.
	ErrCodeGenerationTimeout ErrorCode = "GENERATION_TIMEOUT"
	// ErrCodeTemplateFailed indicates prompt template rendering failure.
	ErrCodeTemplateFailed ErrorCode = "TEMPLATE_FAILED"
	// ErrCodeStoreFailed indicates a local store read or write failure.
	ErrCodeStoreFailed ErrorCode = "STORE_FAILED"
	// ErrCodeContextCanceled indicates the operation was canceled.
	ErrCodeContextCanceled ErrorCode = "CONTEXT_CANCELED"
)

// ContextError represents a structured error for context-engine operations.
type ContextError struct {
	Code    ErrorCode
	Message string
	Cause   error
	Details map[string]interface{}
}

// Error implements the error interface.
func (e *ContextError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *ContextError) Unwrap() error {
	return e.Cause
}

// WithDetail adds a detail value to the error.
func (e *ContextError) WithDetail(key string, value interface{}) *ContextError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// GetCode returns the error code.
func (e *ContextError) GetCode() ErrorCode {
	return e.Code
}

// Convenience constructors for common error types.

// FetchFailed creates a fetch failed error.
func FetchFailed(entity string, cause error) *ContextError {
	return &ContextError{
		Code:    ErrCodeFetchFailed,
		Message: fmt.Sprintf("failed to fetch %s", entity),
		Cause:   cause,
	}
}

// NotFound creates a not found error.
func NotFound(entity, id string) *ContextError {
	return &ContextError{
		Code:    ErrCodeNotFound,
		Message: fmt.Sprintf("%s not found: %s", entity, id),
	}
}

// InvalidArgument creates an invalid argument error.
func InvalidArgument(msg string) *ContextError {
	return &ContextError{Code: ErrCodeInvalidArgument, Message: msg}
}

// GenerationFailed creates a generation failed error.
func GenerationFailed(msg string, cause error) *ContextError {
	return &ContextError{Code: ErrCodeGenerationFailed, Message: msg, Cause: cause}
}

// GenerationTimeout creates a generation timeout error.
func GenerationTimeout(cause error) *ContextError {
	return &ContextError{Code: ErrCodeGenerationTimeout, Message: "thin frame generation timed out", Cause: cause}
}

// TemplateFailed creates a template rendering error.
func TemplateFailed(msg string, cause error) *ContextError {
	return &ContextError{Code: ErrCodeTemplateFailed, Message: msg, Cause: cause}
}

// StoreFailed creates a local store error.
func StoreFailed(msg string, cause error) *ContextError {
	return &ContextError{Code: ErrCodeStoreFailed, Message: msg, Cause: cause}
}

// ContextCanceled creates a context canceled error.
func ContextCanceled(cause error) *ContextError {
	return &ContextError{Code: ErrCodeContextCanceled, Message: "operation canceled", Cause: cause}
}

// HasCode reports whether err (or anything it wraps) carries the code.
func HasCode(err error, code ErrorCode) bool {
	var ce *ContextError
	if stderrors.As(err, &ce) {
		return ce.Code == code
	}
	return false
}

// IsNotFound reports whether err is a not-found error.
func IsNotFound(err error) bool {
	return HasCode(err, ErrCodeNotFound)
}
