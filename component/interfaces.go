package component

import "context"

// HealthStatus represents the health state of a component.
type HealthStatus string

const (
	StatusHealthy   HealthStatus = "healthy"
	StatusUnhealthy HealthStatus = "unhealthy"
	StatusDegraded  HealthStatus = "degraded"
)

// Health holds health information for a component.
type Health struct {
	Name    string         `json:"name"`
	Status  HealthStatus   `json:"status"`
	Message string         `json:"message,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

// Component is a lifecycle-managed part of a streamkit binary: the
// broadcaster, the HTTP server, an event source.
type Component interface {
	// Name returns the unique name used for registration and logging.
	Name() string

	// Start brings the component up. It must not block for the component's lifetime.
	Start(ctx context.Context) error

	// Stop shuts the component down, honoring ctx as the deadline.
	Stop(ctx context.Context) error

	// Health reports the current status.
	Health(ctx context.Context) Health
}

// Description summarises a component for the startup log.
type Description struct {
	// Name is the display name. Empty means Component.Name().
	Name string
	// Type categorizes the component: "broadcaster", "server", "eventsource".
	Type string
	// Details is a one-line summary such as "buffer=256 overflow=drop_oldest".
	Details string
	// Port is the listening port, 0 if not applicable.
	Port int
}

// Describable is optionally implemented by components that can summarise
// their configuration.
type Describable interface {
	Describe() Description
}

// Route is a single HTTP route for the startup summary.
type Route struct {
	Method  string
	Path    string
	Handler string
}

// RouteProvider is optionally implemented by server components.
type RouteProvider interface {
	Routes() []Route
}
