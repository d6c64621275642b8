package middleware

import (
	"fmt"
	"net/http"
	"strings"
)

// DefaultMaxBodySize bounds request bodies when no size is configured.
const DefaultMaxBodySize = 1 << 20

// BodySizeLimit restricts request bodies to maxSize, a human-readable size
// such as "64KB" or "1MB". Unparseable sizes fall back to DefaultMaxBodySize.
func BodySizeLimit(maxSize string) Middleware {
	size := ParseSize(maxSize, DefaultMaxBodySize)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body != nil && r.Body != http.NoBody {
				r.Body = http.MaxBytesReader(w, r.Body, size)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ParseSize parses sizes like "10MB", "512KB", "2GB" or a plain byte count.
// It returns def when s is empty or malformed.
func ParseSize(s string, def int64) int64 {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return def
	}

	var multiplier int64 = 1
	for _, unit := range []struct {
		suffix string
		n      int64
	}{{"GB", 1 << 30}, {"MB", 1 << 20}, {"KB", 1 << 10}, {"B", 1}} {
		if strings.HasSuffix(s, unit.suffix) {
			multiplier = unit.n
			s = strings.TrimSpace(strings.TrimSuffix(s, unit.suffix))
			break
		}
	}

	var val int64
	if _, err := fmt.Sscanf(s, "%d", &val); err != nil || val <= 0 {
		return def
	}
	return val * multiplier
}
