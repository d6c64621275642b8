package middleware

import (
	"net/http"
	"time"

	"github.com/kbukum/streamkit/logger"
)

// slowRequest marks non-streaming requests worth a second look.
const slowRequest = 500 * time.Millisecond

// RequestLogger logs every request with method, path, status and duration.
// Health probes are skipped. Event streams are logged when they end, with
// the bytes sent.
func RequestLogger(log *logger.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isHealthEndpoint(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			sw := newStatusWriter(w)
			next.ServeHTTP(sw, r)
			duration := time.Since(start)

			fields := logger.Fields(
				"method", r.Method,
				"path", r.URL.Path,
				"status", sw.status,
				logger.FieldDuration, duration.Milliseconds(),
				"bytes", sw.written,
			)
			if id := r.Header.Get(HeaderRequestID); id != "" {
				fields[logger.FieldRequestID] = id
			}
			if duration > slowRequest && !isStream(sw) {
				fields["slow"] = true
			}
			logByStatus(log, fields, sw.status)
		})
	}
}

func isHealthEndpoint(path string) bool {
	switch path {
	case "/health", "/ready":
		return true
	}
	return false
}

func isStream(sw *statusWriter) bool {
	return sw.Header().Get("Content-Type") == "text/event-stream"
}

// logByStatus logs at a level chosen by the HTTP status code.
func logByStatus(log *logger.Logger, fields map[string]interface{}, status int) {
	switch {
	case status >= 500:
		log.Error("request completed", fields)
	case status >= 400:
		log.Warn("request completed", fields)
	default:
		log.Debug("request completed", fields)
	}
}
