package eventsource

import (
	"time"

	"github.com/juju/clock"

	"github.com/kbukum/streamkit/logger"
	"github.com/kbukum/streamkit/observability"
)

// DefaultCloseTimeout bounds Close.
const DefaultCloseTimeout = 5 * time.Second

// Option configures an EventSource.
type Option func(*options)

type options struct {
	reconnectDelay time.Duration
	maxRetries     int
	lastEventID    string
	bufferSize     int
	maxLineSize    int
	clock          clock.Clock
	log            *logger.Logger
	metrics        *observability.StreamMetrics
}

// WithReconnectDelay sets the delay used until the server sends a retry hint.
func WithReconnectDelay(d time.Duration) Option {
	return func(o *options) { o.reconnectDelay = d }
}

// WithMaxRetries gives up after n consecutive failed connection attempts.
// Zero retries forever.
func WithMaxRetries(n int) Option {
	return func(o *options) { o.maxRetries = n }
}

// WithLastEventID resumes from id on the first connection.
func WithLastEventID(id string) Option {
	return func(o *options) { o.lastEventID = id }
}

// WithBufferSize bounds the events queued for each Subscribe consumer.
// When full the oldest queued event is dropped. Zero queues without bound.
func WithBufferSize(n int) Option {
	return func(o *options) { o.bufferSize = n }
}

// WithMaxLineSize limits the length of a single stream line.
func WithMaxLineSize(n int) Option {
	return func(o *options) { o.maxLineSize = n }
}

// WithClock sets the clock reconnect delays are measured on.
func WithClock(c clock.Clock) Option {
	return func(o *options) {
		if c != nil {
			o.clock = c
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *logger.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithMetrics records events, parse errors and reconnects on m.
func WithMetrics(m *observability.StreamMetrics) Option {
	return func(o *options) { o.metrics = m }
}
