package broadcast

import (
	"context"
	"fmt"

	"github.com/kbukum/streamkit/component"
)

// Component wraps a Broadcaster as a lifecycle-managed component. Stop
// drains and closes every sink within the stop context's deadline.
type Component struct {
	cfg Config
	b   *Broadcaster
}

var (
	_ component.Component   = (*Component)(nil)
	_ component.Describable = (*Component)(nil)
)

// NewComponent creates a Broadcaster from cfg. opts are applied after the
// configuration.
func NewComponent(cfg Config, opts ...Option) *Component {
	cfg.ApplyDefaults()
	all := append(cfg.Options(), opts...)
	return &Component{cfg: cfg, b: New(all...)}
}

// Broadcaster returns the underlying Broadcaster.
func (c *Component) Broadcaster() *Broadcaster { return c.b }

// Config returns the effective configuration.
func (c *Component) Config() Config { return c.cfg }

// Name returns the component name.
func (c *Component) Name() string { return "broadcaster" }

// Start implements component.Component. The broadcaster is ready on
// construction, so Start only refuses a closed one.
func (c *Component) Start(_ context.Context) error {
	if c.b.Closed() {
		return ErrClosed
	}
	return nil
}

// Stop closes the broadcaster.
func (c *Component) Stop(ctx context.Context) error {
	return c.b.Shutdown(ctx)
}

// Health reports the number of connected sinks.
func (c *Component) Health(_ context.Context) component.Health {
	status := component.StatusHealthy
	if c.b.Closed() {
		status = component.StatusUnhealthy
	}
	n := c.b.Len()
	return component.Health{
		Name:    c.Name(),
		Status:  status,
		Message: fmt.Sprintf("%d sinks connected", n),
		Details: map[string]any{"sinks": n},
	}
}

// Describe returns infrastructure summary info for the startup display.
func (c *Component) Describe() component.Description {
	return component.Description{
		Name:    "Event Broadcaster",
		Type:    "broadcast",
		Details: fmt.Sprintf("buffer=%d overflow=%s", c.cfg.BufferSize, c.cfg.Overflow),
	}
}
