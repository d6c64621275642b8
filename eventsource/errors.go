package eventsource

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"time"

	"github.com/kbukum/streamkit/errors"
)

// Sentinels for errors.Is.
var (
	ErrAlreadyOpen      = errors.AlreadyOpen()
	ErrRetriesExhausted = errors.RetriesExhausted(0, nil)
	ErrUnavailable      = errors.ServiceUnavailable("event stream")

	// ErrNoContent means the server answered 204 and wants the client to
	// stop reconnecting.
	ErrNoContent = stderrors.New("eventsource: server responded 204 No Content")
)

// UnavailableError is a 503 response. RetryAfter is the server's hint,
// zero when the response carried none.
type UnavailableError struct {
	RetryAfter time.Duration
}

func (e *UnavailableError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("eventsource: service unavailable, retry after %s", e.RetryAfter)
	}
	return "eventsource: service unavailable"
}

func (e *UnavailableError) Unwrap() error { return ErrUnavailable }

// StatusError is a response the client cannot stream from.
type StatusError struct {
	StatusCode  int
	ContentType string
}

func (e *StatusError) Error() string {
	if e.StatusCode == http.StatusOK {
		return fmt.Sprintf("eventsource: unexpected content type %q", e.ContentType)
	}
	return fmt.Sprintf("eventsource: unexpected status %d %s", e.StatusCode, http.StatusText(e.StatusCode))
}

// Temporary reports whether reconnecting may succeed. Client errors and
// wrong content types are final; 429 and 5xx are not.
func (e *StatusError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// retryable reports whether a connect failure should lead to another
// attempt.
func retryable(err error) bool {
	if stderrors.Is(err, ErrNoContent) || errors.HasCode(err, errors.ErrCodeInvalidInput) {
		return false
	}
	var se *StatusError
	if stderrors.As(err, &se) {
		return se.Temporary()
	}
	return true
}
