package eventsource

import (
	"time"

	"github.com/kbukum/streamkit/validation"
)

// Config configures an HTTP event source.
type Config struct {
	// URL is the event stream endpoint.
	URL string `yaml:"url" mapstructure:"url" validate:"required,url"`
	// ReconnectDelay applies until the server sends a retry hint.
	ReconnectDelay time.Duration `yaml:"reconnect_delay" mapstructure:"reconnect_delay" validate:"gte=0"`
	// MaxRetries gives up after this many consecutive failed attempts; 0 retries forever.
	MaxRetries int `yaml:"max_retries" mapstructure:"max_retries" validate:"gte=0"`
	// CloseTimeout bounds shutdown.
	CloseTimeout time.Duration `yaml:"close_timeout" mapstructure:"close_timeout" validate:"gte=0"`
	// LastEventID resumes a previous session on the first connection.
	LastEventID string `yaml:"last_event_id" mapstructure:"last_event_id"`
}

// ApplyDefaults fills zero values.
func (c *Config) ApplyDefaults() {
	if c.ReconnectDelay == 0 {
		c.ReconnectDelay = DefaultReconnectDelay
	}
	if c.CloseTimeout == 0 {
		c.CloseTimeout = DefaultCloseTimeout
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	return validation.Validate(c)
}

// Options converts the configuration into EventSource options.
func (c *Config) Options() []Option {
	opts := []Option{
		WithReconnectDelay(c.ReconnectDelay),
		WithMaxRetries(c.MaxRetries),
	}
	if c.LastEventID != "" {
		opts = append(opts, WithLastEventID(c.LastEventID))
	}
	return opts
}
