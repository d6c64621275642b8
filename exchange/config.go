package exchange

import (
	"time"

	"github.com/kbukum/streamkit/errors"
	"github.com/kbukum/streamkit/validation"
)

// Config bounds how long suspended exchanges may wait.
type Config struct {
	// DefaultTimeout applies when a caller asks for no specific timeout.
	DefaultTimeout time.Duration `yaml:"default_timeout" mapstructure:"default_timeout" validate:"gt=0"`
	// MaxTimeout caps any requested timeout.
	MaxTimeout time.Duration `yaml:"max_timeout" mapstructure:"max_timeout" validate:"gt=0"`
	// Fallback, when set, is returned instead of a 503 on timeout.
	Fallback string `yaml:"fallback" mapstructure:"fallback"`
}

// ApplyDefaults fills zero values.
func (c *Config) ApplyDefaults() {
	if c.DefaultTimeout == 0 {
		c.DefaultTimeout = 30 * time.Second
	}
	if c.MaxTimeout == 0 {
		c.MaxTimeout = 5 * time.Minute
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if err := validation.Validate(c); err != nil {
		return err
	}
	if c.DefaultTimeout > c.MaxTimeout {
		return errors.InvalidInput("default_timeout", "default_timeout must not exceed max_timeout")
	}
	return nil
}

// Clamp maps a requested timeout onto the configured range.
func (c *Config) Clamp(d time.Duration) time.Duration {
	if d <= 0 {
		return c.DefaultTimeout
	}
	if d > c.MaxTimeout {
		return c.MaxTimeout
	}
	return d
}
