package server

import (
	"fmt"
	"time"

	"github.com/kbukum/streamkit/server/middleware"
	"github.com/kbukum/streamkit/sse"
	"github.com/kbukum/streamkit/validation"
)

// Config holds HTTP server configuration.
type Config struct {
	Host            string        `yaml:"host" mapstructure:"host"`
	Port            int           `yaml:"port" mapstructure:"port" validate:"gte=0,lte=65535"`
	ReadTimeout     time.Duration `yaml:"read_timeout" mapstructure:"read_timeout" validate:"gte=0"`
	WriteTimeout    time.Duration `yaml:"write_timeout" mapstructure:"write_timeout" validate:"gte=0"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" mapstructure:"idle_timeout" validate:"gte=0"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" mapstructure:"shutdown_timeout" validate:"gte=0"`

	// KeepAlive is the interval between comments on an idle event stream.
	KeepAlive time.Duration `yaml:"keep_alive" mapstructure:"keep_alive" validate:"gte=0"`
	// RetryAfter is sent to stream clients as retry: and with every 503.
	RetryAfter time.Duration `yaml:"retry_after" mapstructure:"retry_after" validate:"gte=0"`
	// ReplaySize is how many events are kept for Last-Event-ID resumption.
	ReplaySize int `yaml:"replay_size" mapstructure:"replay_size" validate:"gte=0"`

	MaxBodySize string                `yaml:"max_body_size" mapstructure:"max_body_size"` // e.g. "1MB"
	CORS        middleware.CORSConfig `yaml:"cors" mapstructure:"cors"`
}

// ApplyDefaults sets sensible default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.Port == 0 {
		c.Port = 8080
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 15 * time.Second
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 15 * time.Second
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = 60 * time.Second
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = 5 * time.Second
	}
	if c.KeepAlive == 0 {
		c.KeepAlive = 15 * time.Second
	}
	if c.RetryAfter == 0 {
		c.RetryAfter = 3 * time.Second
	}
	if c.ReplaySize == 0 {
		c.ReplaySize = sse.DefaultReplaySize
	}
	if c.MaxBodySize == "" {
		c.MaxBodySize = "1MB"
	}
	c.CORS.ApplyDefaults()
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if err := validation.Validate(c); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	return nil
}

// Addr returns the host:port listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
