package broadcast

import (
	"time"

	"github.com/kbukum/streamkit/flow"
	"github.com/kbukum/streamkit/logger"
	"github.com/kbukum/streamkit/observability"
)

// Defaults used when no option overrides them.
const (
	DefaultBufferSize  = 256
	DefaultSendTimeout = 10 * time.Second
)

// Option configures a Broadcaster.
type Option func(*options)

type options struct {
	bufferSize  int
	overflow    flow.OverflowPolicy
	sendTimeout time.Duration
	log         *logger.Logger
	metrics     *observability.StreamMetrics
}

func defaultOptions() options {
	return options{
		bufferSize:  DefaultBufferSize,
		overflow:    flow.OverflowDropOldest,
		sendTimeout: DefaultSendTimeout,
	}
}

// WithBufferSize bounds the number of undelivered events held per sink.
func WithBufferSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.bufferSize = n
		}
	}
}

// WithOverflow sets what happens when a sink's buffer is full. The
// default drops the oldest queued event; flow.OverflowError removes the
// sink instead.
func WithOverflow(p flow.OverflowPolicy) Option {
	return func(o *options) { o.overflow = p }
}

// WithSendTimeout bounds a single Sink.Send call.
func WithSendTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.sendTimeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *logger.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithMetrics records sink and delivery counts on m.
func WithMetrics(m *observability.StreamMetrics) Option {
	return func(o *options) { o.metrics = m }
}
