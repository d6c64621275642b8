package middleware

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"

	"github.com/kbukum/streamkit/errors"
	"github.com/kbukum/streamkit/observability"
)

// Metrics traces each request as an http.request span and records its
// count and duration under the matched route pattern. Unmatched requests
// are labelled "unmatched" to keep the route label bounded.
func Metrics(m *observability.StreamMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		ctx, op := observability.StartOperation(c.Request.Context(), observability.SpanHTTPRequest,
			attribute.String("http.method", c.Request.Method),
			attribute.String("http.route", route),
			attribute.String(observability.AttrRequestID, RequestIDFrom(c.Request.Context())),
		)
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		status := c.Writer.Status()
		op.SetAttributes(attribute.Int(observability.AttrStatus, status))
		var err error
		if status >= 500 {
			err = errors.New(errors.ErrCodeInternal, c.Errors.String(), status)
		}
		d := op.End(err)
		m.RecordRequest(ctx, c.Request.Method, route, status, d)
	}
}
