package exchange

import (
	"time"

	"github.com/juju/clock"

	"github.com/kbukum/streamkit/logger"
	"github.com/kbukum/streamkit/observability"
)

// Option configures an Exchange or a Registry.
type Option func(*settings)

type settings struct {
	id       string
	clock    clock.Clock
	deadline time.Duration
	log      *logger.Logger
	metrics  *observability.StreamMetrics
}

func newSettings(opts []Option) settings {
	s := settings{clock: clock.WallClock}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// WithClock sets the clock deadlines are measured on.
func WithClock(c clock.Clock) Option {
	return func(s *settings) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithDeadline arms a timeout when the exchange is created.
func WithDeadline(d time.Duration) Option {
	return func(s *settings) { s.deadline = d }
}

// WithID names the exchange. Without it a random UUID is used.
func WithID(id string) Option {
	return func(s *settings) { s.id = id }
}

// WithLogger sets the registry logger.
func WithLogger(l *logger.Logger) Option {
	return func(s *settings) { s.log = l }
}

// WithMetrics records suspensions and resolutions on m.
func WithMetrics(m *observability.StreamMetrics) Option {
	return func(s *settings) { s.metrics = m }
}
