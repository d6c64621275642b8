package eventsource

import (
	"context"
	"fmt"

	"github.com/kbukum/streamkit/component"
	"github.com/kbukum/streamkit/errors"
)

// Component runs an EventSource under the component registry.
type Component struct {
	cfg Config
	src *EventSource
}

var (
	_ component.Component   = (*Component)(nil)
	_ component.Describable = (*Component)(nil)
)

// NewComponent creates an EventSource for cfg.URL over HTTP. opts are
// applied after the configuration.
func NewComponent(cfg Config, opts ...Option) *Component {
	cfg.ApplyDefaults()
	all := append(cfg.Options(), opts...)
	return &Component{cfg: cfg, src: New(NewHTTPTransport(cfg.URL), all...)}
}

// Source returns the underlying EventSource so callers can attach
// consumers before Start.
func (c *Component) Source() *EventSource { return c.src }

// Name returns the component name.
func (c *Component) Name() string { return "eventsource" }

// Start opens the source. The connection outlives ctx.
func (c *Component) Start(ctx context.Context) error {
	return c.src.Open(context.WithoutCancel(ctx))
}

// Stop closes the source within the configured close timeout.
func (c *Component) Stop(_ context.Context) error {
	if !c.src.CloseTimeout(c.cfg.CloseTimeout) {
		return errors.Timeout("eventsource close").WithDetail("timeout", c.cfg.CloseTimeout.String())
	}
	return nil
}

// Health maps the connection state onto a health status.
func (c *Component) Health(_ context.Context) component.Health {
	state := c.src.State()
	status := component.StatusHealthy
	switch state {
	case StateConnecting, StateReconnecting:
		status = component.StatusDegraded
	case StateClosed:
		status = component.StatusUnhealthy
	}
	return component.Health{
		Name:    c.Name(),
		Status:  status,
		Message: state.String(),
		Details: map[string]any{
			"last_event_id":   c.src.LastEventID(),
			"reconnect_delay": c.src.ReconnectDelay().String(),
		},
	}
}

// Describe returns infrastructure summary info for the startup display.
func (c *Component) Describe() component.Description {
	return component.Description{
		Name:    "Event Source",
		Type:    "eventsource",
		Details: fmt.Sprintf("URL: %s", c.cfg.URL),
	}
}
