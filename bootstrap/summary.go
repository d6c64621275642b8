package bootstrap

import (
	"context"
	"time"

	"github.com/kbukum/streamkit/component"
	"github.com/kbukum/streamkit/logger"
)

// Summary describes a started application: its components with their live
// health and the HTTP routes any of them serve.
type Summary struct {
	Service         string
	Version         string
	StartupDuration time.Duration
	Components      []ComponentSummary
	Routes          []component.Route
}

// ComponentSummary is one line of the startup summary.
type ComponentSummary struct {
	Name    string
	Type    string
	Details string
	Port    int
	Status  component.HealthStatus
}

// Collect builds a Summary from the registry.
func Collect(ctx context.Context, service, version string, registry *component.Registry) Summary {
	s := Summary{Service: service, Version: version}
	for _, c := range registry.All() {
		cs := ComponentSummary{Name: c.Name(), Status: c.Health(ctx).Status}
		if d, ok := c.(component.Describable); ok {
			desc := d.Describe()
			if desc.Name != "" {
				cs.Name = desc.Name
			}
			cs.Type, cs.Details, cs.Port = desc.Type, desc.Details, desc.Port
		}
		s.Components = append(s.Components, cs)
		if rp, ok := c.(component.RouteProvider); ok {
			s.Routes = append(s.Routes, rp.Routes()...)
		}
	}
	return s
}

// Healthy counts components reporting healthy.
func (s Summary) Healthy() int {
	n := 0
	for _, c := range s.Components {
		if c.Status == component.StatusHealthy {
			n++
		}
	}
	return n
}

// Log writes the summary as structured lines: one per component, one per
// route, then a totals line.
func (s Summary) Log(log *logger.Logger) {
	for _, c := range s.Components {
		fields := logger.Fields("name", c.Name, "type", c.Type, logger.FieldState, string(c.Status))
		if c.Details != "" {
			fields["details"] = c.Details
		}
		if c.Port > 0 {
			fields["port"] = c.Port
		}
		log.Info("component", fields)
	}
	for _, r := range s.Routes {
		log.Debug("route", logger.Fields("method", r.Method, "path", r.Path, "handler", r.Handler))
	}
	log.Info("started", logger.Fields(
		"service", s.Service,
		"version", s.Version,
		logger.FieldDuration, s.StartupDuration.Milliseconds(),
		"healthy", s.Healthy(),
		"components", len(s.Components),
	))
}
