package server

import (
	"github.com/juju/clock"

	"github.com/kbukum/streamkit/broadcast"
	"github.com/kbukum/streamkit/exchange"
	"github.com/kbukum/streamkit/logger"
	"github.com/kbukum/streamkit/observability"
	"github.com/kbukum/streamkit/server/endpoint"
)

// Option configures a Server.
type Option func(*options)

type options struct {
	service     string
	broadcaster *broadcast.Broadcaster
	exchanges   *exchange.Registry[string]
	fallback    *string
	health      endpoint.HealthChecker
	log         *logger.Logger
	metrics     *observability.StreamMetrics
	clock       clock.Clock
}

// WithServiceName names the service in health responses.
func WithServiceName(name string) Option {
	return func(o *options) { o.service = name }
}

// WithBroadcaster serves /events from b. Without it the event routes
// answer 503.
func WithBroadcaster(b *broadcast.Broadcaster) Option {
	return func(o *options) { o.broadcaster = b }
}

// WithExchanges serves /exchanges from r. Without it the exchange routes
// answer 503.
func WithExchanges(r *exchange.Registry[string]) Option {
	return func(o *options) { o.exchanges = r }
}

// WithFallback makes a timed-out exchange answer 200 with v instead of 503.
func WithFallback(v string) Option {
	return func(o *options) { o.fallback = &v }
}

// WithHealthChecker supplies the component statuses for /health and /ready.
func WithHealthChecker(fn endpoint.HealthChecker) Option {
	return func(o *options) { o.health = fn }
}

// WithLogger sets the logger.
func WithLogger(l *logger.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithMetrics sets the request and stream instruments.
func WithMetrics(m *observability.StreamMetrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithClock sets the clock driving keep-alive comments.
func WithClock(c clock.Clock) Option {
	return func(o *options) { o.clock = c }
}
