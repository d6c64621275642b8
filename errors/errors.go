// Package errors provides unified error handling for streamkit components.
// It implements structured error types with error codes, HTTP status mapping,
// and retryable detection following RFC 7807 and Google AIP-193.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"time"
)

// AppError is the unified application error type.
type AppError struct {
	// Code is a machine-readable error code.
	Code ErrorCode `json:"code"`
	// Message is a human-readable error message.
	Message string `json:"message"`
	// Retryable indicates if the operation can be retried.
	Retryable bool `json:"retryable"`
	// HTTPStatus is the recommended HTTP status code for this error.
	HTTPStatus int `json:"-"`
	// Details contains additional context for the error.
	Details map[string]any `json:"details,omitempty"`
	// Cause is the underlying error that caused this error.
	Cause error `json:"-"`
}

// Error returns the string representation of the error.
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (cause: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause of the error.
func (e *AppError) Unwrap() error { return e.Cause }

// Is reports whether target is an AppError carrying the same code.
// This lets package-level sentinels work with errors.Is.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// WithCause sets the underlying cause of the error and returns the receiver.
func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

// WithDetail sets a single detail key-value pair and returns the receiver.
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// New creates a new AppError with automatic retryable detection.
func New(code ErrorCode, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Retryable:  IsRetryableCode(code),
	}
}

// --- Common Error Constructors ---

// ServiceUnavailable creates a new AppError for a service that is temporarily unavailable.
func ServiceUnavailable(service string) *AppError {
	return &AppError{
		Code: ErrCodeServiceUnavailable, Message: fmt.Sprintf("The %s is temporarily unavailable. Please try again.", service),
		HTTPStatus: http.StatusServiceUnavailable, Retryable: true,
		Details: map[string]any{"service": service},
	}
}

// ServiceUnavailableRetryAfter is ServiceUnavailable carrying a retry hint.
func ServiceUnavailableRetryAfter(service string, retryAfter time.Duration) *AppError {
	return ServiceUnavailable(service).WithDetail("retry_after_ms", retryAfter.Milliseconds())
}

// ConnectionFailed creates a new AppError for a failed connection to a stream endpoint.
func ConnectionFailed(endpoint string, cause error) *AppError {
	return &AppError{
		Code: ErrCodeConnectionFailed, Message: fmt.Sprintf("Unable to connect to %s.", endpoint),
		HTTPStatus: http.StatusServiceUnavailable, Retryable: true,
		Details: map[string]any{"endpoint": endpoint}, Cause: cause,
	}
}

// Timeout creates a new AppError for an operation that timed out.
func Timeout(operation string) *AppError {
	return &AppError{
		Code: ErrCodeTimeout, Message: "The request took too long. Please try again.",
		HTTPStatus: http.StatusGatewayTimeout, Retryable: true,
		Details: map[string]any{"operation": operation},
	}
}

// NotFound creates a new AppError for a resource that was not found.
func NotFound(resource, id string) *AppError {
	details := map[string]any{"resource": resource}
	if id != "" {
		details["id"] = id
	}
	return &AppError{
		Code: ErrCodeNotFound, Message: fmt.Sprintf("The requested %s was not found.", resource),
		HTTPStatus: http.StatusNotFound, Retryable: false, Details: details,
	}
}

// Conflict creates a new AppError for a conflict with the current state of the resource.
func Conflict(reason string) *AppError {
	return &AppError{
		Code: ErrCodeConflict, Message: reason,
		HTTPStatus: http.StatusConflict, Retryable: false,
	}
}

// InvalidInput creates a new AppError for invalid input.
func InvalidInput(field, reason string) *AppError {
	details := make(map[string]any)
	if field != "" {
		details["field"] = field
	}
	return &AppError{
		Code: ErrCodeInvalidInput, Message: fmt.Sprintf("Invalid input: %s", reason),
		HTTPStatus: http.StatusBadRequest, Retryable: false, Details: details,
	}
}

// NotAcceptable creates a new AppError for a request whose Accept header
// rules out every offered media type.
func NotAcceptable(offered ...string) *AppError {
	return &AppError{
		Code: ErrCodeNotAcceptable, Message: "None of the offered media types is acceptable.",
		HTTPStatus: http.StatusNotAcceptable, Retryable: false,
		Details: map[string]any{"offered": offered},
	}
}

// Validation creates a new AppError for validation errors.
func Validation(message string) *AppError {
	return &AppError{
		Code: ErrCodeInvalidInput, Message: message,
		HTTPStatus: http.StatusBadRequest, Retryable: false,
	}
}

// Internal creates a new AppError for an internal server error.
func Internal(cause error) *AppError {
	return &AppError{
		Code: ErrCodeInternal, Message: "An unexpected error occurred.",
		HTTPStatus: http.StatusInternalServerError, Retryable: false, Cause: cause,
	}
}

// --- Stream protocol constructors ---

// InvalidDemand creates a new AppError for a non-positive demand request.
func InvalidDemand(n int64) *AppError {
	return &AppError{
		Code: ErrCodeInvalidDemand, Message: fmt.Sprintf("Demand must be positive (got %d).", n),
		HTTPStatus: http.StatusBadRequest, Retryable: false,
		Details: map[string]any{"requested": n},
	}
}

// AlreadySubscribed creates a new AppError for a second subscriber on a single-subscriber source.
func AlreadySubscribed() *AppError {
	return &AppError{
		Code: ErrCodeAlreadySubscribed, Message: "The source only supports a single subscriber.",
		HTTPStatus: http.StatusConflict, Retryable: false,
	}
}

// InvalidState creates a new AppError for an operation attempted from the wrong state.
func InvalidState(operation, state string) *AppError {
	details := map[string]any{}
	if operation != "" {
		details["operation"] = operation
	}
	if state != "" {
		details["state"] = state
	}
	return &AppError{
		Code: ErrCodeInvalidState, Message: fmt.Sprintf("Cannot %s in state %s.", operation, state),
		HTTPStatus: http.StatusConflict, Retryable: false, Details: details,
	}
}

// AlreadyOpen creates a new AppError for opening a stream twice.
func AlreadyOpen() *AppError {
	return &AppError{
		Code: ErrCodeAlreadyOpen, Message: "The event source has already been opened.",
		HTTPStatus: http.StatusConflict, Retryable: false,
	}
}

// Cancelled creates a new AppError for a cancelled operation.
func Cancelled(operation string) *AppError {
	return &AppError{
		Code: ErrCodeCancelled, Message: fmt.Sprintf("The %s was cancelled.", operation),
		HTTPStatus: http.StatusServiceUnavailable, Retryable: false,
		Details: map[string]any{"operation": operation},
	}
}

// Closed creates a new AppError for use of a closed resource.
func Closed(resource string) *AppError {
	return &AppError{
		Code: ErrCodeClosed, Message: fmt.Sprintf("The %s is closed.", resource),
		HTTPStatus: http.StatusGone, Retryable: false,
		Details: map[string]any{"resource": resource},
	}
}

// NoSubscribers creates a new AppError for an emission with no attached subscriber.
func NoSubscribers() *AppError {
	return &AppError{
		Code: ErrCodeNoSubscribers, Message: "No subscriber is attached; the item was discarded.",
		HTTPStatus: http.StatusConflict, Retryable: false,
	}
}

// BufferOverflow creates a new AppError for a full bounded buffer.
func BufferOverflow(capacity int) *AppError {
	return &AppError{
		Code: ErrCodeBufferOverflow, Message: fmt.Sprintf("Buffer capacity of %d exceeded.", capacity),
		HTTPStatus: http.StatusInsufficientStorage, Retryable: false,
		Details: map[string]any{"capacity": capacity},
	}
}

// RetriesExhausted creates a new AppError when reconnect attempts run out.
func RetriesExhausted(attempts int, cause error) *AppError {
	return &AppError{
		Code: ErrCodeRetriesExhausted, Message: fmt.Sprintf("Gave up after %d reconnect attempts.", attempts),
		HTTPStatus: http.StatusServiceUnavailable, Retryable: false,
		Details: map[string]any{"attempts": attempts}, Cause: cause,
	}
}

// --- Inspection helpers ---

// AsAppError converts an error to an AppError if possible.
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// HasCode reports whether any AppError in err's chain carries code.
func HasCode(err error, code ErrorCode) bool {
	for err != nil {
		if appErr, ok := err.(*AppError); ok && appErr.Code == code {
			return true
		}
		err = stderrors.Unwrap(err)
	}
	return false
}

// Wrap converts any error into an AppError. Existing AppErrors anywhere in the
// chain are returned as-is; everything else becomes an internal error.
func Wrap(err error) *AppError {
	if err == nil {
		return nil
	}
	if appErr, ok := AsAppError(err); ok {
		return appErr
	}
	return Internal(err)
}
