package errors

// ErrorCode represents a machine-readable error code.
type ErrorCode string

// Connection/Availability errors (retryable)
const (
	// ErrCodeServiceUnavailable indicates the service is temporarily unavailable.
	ErrCodeServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
	// ErrCodeConnectionFailed indicates a failed connection to a remote stream.
	ErrCodeConnectionFailed ErrorCode = "CONNECTION_FAILED"
	// ErrCodeTimeout indicates the operation timed out.
	ErrCodeTimeout ErrorCode = "TIMEOUT"
)

// Resource errors
const (
	// ErrCodeNotFound indicates the requested resource was not found.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"
	// ErrCodeConflict indicates a conflict with the current state of the resource.
	ErrCodeConflict ErrorCode = "CONFLICT"
)

// Validation errors
const (
	// ErrCodeInvalidInput indicates the input is invalid.
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"
	// ErrCodeNotAcceptable indicates no offered media type matches the Accept header.
	ErrCodeNotAcceptable ErrorCode = "NOT_ACCEPTABLE"
	// ErrCodeInvalidDemand indicates a non-positive demand request on a subscription.
	ErrCodeInvalidDemand ErrorCode = "INVALID_DEMAND"
)

// Protocol/state errors
const (
	// ErrCodeAlreadySubscribed indicates a single-subscriber source already has a subscriber.
	ErrCodeAlreadySubscribed ErrorCode = "ALREADY_SUBSCRIBED"
	// ErrCodeInvalidState indicates an operation was attempted from the wrong state.
	ErrCodeInvalidState ErrorCode = "INVALID_STATE"
	// ErrCodeAlreadyOpen indicates an event source was opened twice.
	ErrCodeAlreadyOpen ErrorCode = "ALREADY_OPEN"
	// ErrCodeCancelled indicates the operation was cancelled.
	ErrCodeCancelled ErrorCode = "CANCELLED"
	// ErrCodeClosed indicates the resource has been closed.
	ErrCodeClosed ErrorCode = "CLOSED"
	// ErrCodeNoSubscribers indicates an item was emitted before anyone subscribed.
	ErrCodeNoSubscribers ErrorCode = "NO_SUBSCRIBERS"
	// ErrCodeBufferOverflow indicates a bounded buffer overflowed.
	ErrCodeBufferOverflow ErrorCode = "BUFFER_OVERFLOW"
	// ErrCodeRetriesExhausted indicates reconnect attempts ran out.
	ErrCodeRetriesExhausted ErrorCode = "RETRIES_EXHAUSTED"
)

// Internal errors
const (
	// ErrCodeInternal indicates an internal server error.
	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
)

var retryableCodes = map[ErrorCode]bool{
	ErrCodeServiceUnavailable: true,
	ErrCodeConnectionFailed:   true,
	ErrCodeTimeout:            true,
	ErrCodeInternal:           false,
}

// IsRetryableCode returns true if the error code indicates a retryable error.
func IsRetryableCode(code ErrorCode) bool {
	return retryableCodes[code]
}
