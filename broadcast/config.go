package broadcast

import (
	"time"

	"github.com/kbukum/streamkit/errors"
	"github.com/kbukum/streamkit/flow"
	"github.com/kbukum/streamkit/validation"
)

// Config configures a Broadcaster and the streams built on it.
type Config struct {
	// BufferSize bounds undelivered events per sink.
	BufferSize int `yaml:"buffer_size" mapstructure:"buffer_size" validate:"gte=0"`
	// Overflow is one of buffer, drop_newest, drop_oldest or error.
	Overflow string `yaml:"overflow" mapstructure:"overflow" validate:"omitempty,oneof=buffer drop_newest drop_oldest error"`
	// SendTimeout bounds one write to a sink.
	SendTimeout time.Duration `yaml:"send_timeout" mapstructure:"send_timeout" validate:"gte=0"`
}

// ApplyDefaults fills zero values.
func (c *Config) ApplyDefaults() {
	if c.BufferSize == 0 {
		c.BufferSize = DefaultBufferSize
	}
	if c.Overflow == "" {
		c.Overflow = flow.OverflowDropOldest.String()
	}
	if c.SendTimeout == 0 {
		c.SendTimeout = DefaultSendTimeout
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if err := validation.Validate(c); err != nil {
		return err
	}
	if _, ok := flow.ParseOverflowPolicy(c.Overflow); !ok {
		return errors.InvalidInput("overflow", "unknown overflow policy "+c.Overflow)
	}
	return nil
}

// Options converts the configuration into Broadcaster options.
func (c *Config) Options() []Option {
	policy, _ := flow.ParseOverflowPolicy(c.Overflow)
	return []Option{
		WithBufferSize(c.BufferSize),
		WithOverflow(policy),
		WithSendTimeout(c.SendTimeout),
	}
}
