package observability

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/kbukum/streamkit/logger"
)

// MeterConfig configures the OpenTelemetry meter provider. Endpoint is the
// OTLP HTTP host:port (e.g., "localhost:4318").
type MeterConfig struct {
	ServiceName    string        `yaml:"service_name" mapstructure:"service_name"`
	ServiceVersion string        `yaml:"service_version" mapstructure:"service_version"`
	Environment    string        `yaml:"environment" mapstructure:"environment"`
	Endpoint       string        `yaml:"endpoint" mapstructure:"endpoint"`
	Insecure       bool          `yaml:"insecure" mapstructure:"insecure"`
	Interval       time.Duration `yaml:"interval" mapstructure:"interval"`
}

// DefaultMeterConfig returns development defaults.
func DefaultMeterConfig(serviceName string) MeterConfig {
	return MeterConfig{
		ServiceName:    serviceName,
		ServiceVersion: "dev",
		Environment:    "development",
		Endpoint:       "localhost:4318",
		Insecure:       true,
		Interval:       15 * time.Second,
	}
}

// InitMeter installs a global meter provider exporting over OTLP HTTP.
// The caller shuts the returned provider down on exit.
func InitMeter(ctx context.Context, config *MeterConfig) (*sdkmetric.MeterProvider, error) {
	opts := []otlpmetrichttp.Option{
		otlpmetrichttp.WithEndpoint(config.Endpoint),
	}
	if config.Insecure {
		opts = append(opts, otlpmetrichttp.WithInsecure())
	}

	exporter, err := otlpmetrichttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating metric exporter: %w", err)
	}

	res, err := newResource(config.ServiceName, config.ServiceVersion, config.Environment)
	if err != nil {
		return nil, fmt.Errorf("creating resource: %w", err)
	}

	readerOpts := []sdkmetric.PeriodicReaderOption{}
	if config.Interval > 0 {
		readerOpts = append(readerOpts, sdkmetric.WithInterval(config.Interval))
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, readerOpts...)),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(mp)

	logger.WithComponent("observability").Info("meter initialized", logger.Fields(
		"service", config.ServiceName,
		"endpoint", config.Endpoint,
		"interval", config.Interval.String(),
	))
	return mp, nil
}

// Meter returns a named meter from the global provider.
func Meter(name string) metric.Meter {
	return otel.Meter(name)
}

// StreamMetrics holds the instruments recorded by the broadcaster, the
// exchange registry, event sources and the HTTP server. All methods are
// safe on a nil receiver.
type StreamMetrics struct {
	activeSinks         metric.Int64UpDownCounter
	broadcastEvents     metric.Int64Counter
	deliveries          metric.Int64Counter
	sinkFailures        metric.Int64Counter
	droppedItems        metric.Int64Counter
	activeExchanges     metric.Int64UpDownCounter
	exchangeResolutions metric.Int64Counter
	reconnects          metric.Int64Counter
	receivedEvents      metric.Int64Counter
	parseErrors         metric.Int64Counter
	requestTotal        metric.Int64Counter
	requestDuration     metric.Float64Histogram
}

// NewStreamMetrics creates the instruments on meter.
func NewStreamMetrics(meter metric.Meter) (*StreamMetrics, error) {
	m := &StreamMetrics{}
	var err error

	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&m.broadcastEvents, "stream.broadcast.events", "Events passed to Broadcast"},
		{&m.deliveries, "stream.broadcast.deliveries", "Per-sink enqueues performed by Broadcast"},
		{&m.sinkFailures, "stream.sink.failures", "Sinks removed after a write failure"},
		{&m.droppedItems, "stream.items.dropped", "Items discarded by an overflow policy"},
		{&m.exchangeResolutions, "stream.exchange.resolutions", "Suspended exchanges resolved, by outcome"},
		{&m.reconnects, "stream.source.reconnects", "Event source reconnect attempts"},
		{&m.receivedEvents, "stream.source.events", "Events received by event sources"},
		{&m.parseErrors, "stream.source.parse_errors", "Malformed frames seen by event sources"},
		{&m.requestTotal, "http.server.requests", "HTTP requests served"},
	}
	for _, c := range counters {
		if *c.dst, err = meter.Int64Counter(c.name, metric.WithDescription(c.desc)); err != nil {
			return nil, fmt.Errorf("creating %s counter: %w", c.name, err)
		}
	}

	if m.activeSinks, err = meter.Int64UpDownCounter("stream.sinks.active",
		metric.WithDescription("Sinks currently registered with a broadcaster"),
	); err != nil {
		return nil, fmt.Errorf("creating stream.sinks.active gauge: %w", err)
	}
	if m.activeExchanges, err = meter.Int64UpDownCounter("stream.exchanges.active",
		metric.WithDescription("Exchanges currently suspended"),
	); err != nil {
		return nil, fmt.Errorf("creating stream.exchanges.active gauge: %w", err)
	}
	if m.requestDuration, err = meter.Float64Histogram("http.server.duration",
		metric.WithDescription("Duration of HTTP requests in seconds"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, fmt.Errorf("creating http.server.duration histogram: %w", err)
	}
	return m, nil
}

// NopStreamMetrics returns instruments backed by a no-op meter.
func NopStreamMetrics() *StreamMetrics {
	m, _ := NewStreamMetrics(noop.NewMeterProvider().Meter("noop"))
	return m
}

// SinkRegistered records a new broadcaster sink.
func (m *StreamMetrics) SinkRegistered(ctx context.Context) {
	if m == nil {
		return
	}
	m.activeSinks.Add(ctx, 1)
}

// SinkRemoved records a sink leaving; reason is "closed", "unregistered" or "failed".
func (m *StreamMetrics) SinkRemoved(ctx context.Context, reason string) {
	if m == nil {
		return
	}
	m.activeSinks.Add(ctx, -1)
	if reason == "failed" {
		m.sinkFailures.Add(ctx, 1)
	}
}

// EventBroadcast records one Broadcast call that reached delivered sinks.
func (m *StreamMetrics) EventBroadcast(ctx context.Context, delivered int) {
	if m == nil {
		return
	}
	m.broadcastEvents.Add(ctx, 1)
	m.deliveries.Add(ctx, int64(delivered))
}

// ItemDropped records an item discarded by an overflow policy.
func (m *StreamMetrics) ItemDropped(ctx context.Context, component string) {
	if m == nil {
		return
	}
	m.droppedItems.Add(ctx, 1, metric.WithAttributes(attribute.String(AttrComponent, component)))
}

// ExchangeSuspended records a newly suspended exchange.
func (m *StreamMetrics) ExchangeSuspended(ctx context.Context) {
	if m == nil {
		return
	}
	m.activeExchanges.Add(ctx, 1)
}

// ExchangeResolved records an exchange leaving the suspended state.
func (m *StreamMetrics) ExchangeResolved(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.activeExchanges.Add(ctx, -1)
	m.exchangeResolutions.Add(ctx, 1, metric.WithAttributes(attribute.String(AttrOutcome, outcome)))
}

// Reconnect records an event source scheduling another connection attempt.
func (m *StreamMetrics) Reconnect(ctx context.Context, reason string) {
	if m == nil {
		return
	}
	m.reconnects.Add(ctx, 1, metric.WithAttributes(attribute.String(AttrReason, reason)))
}

// EventReceived records an event dispatched by an event source.
func (m *StreamMetrics) EventReceived(ctx context.Context) {
	if m == nil {
		return
	}
	m.receivedEvents.Add(ctx, 1)
}

// ParseError records a malformed frame.
func (m *StreamMetrics) ParseError(ctx context.Context) {
	if m == nil {
		return
	}
	m.parseErrors.Add(ctx, 1)
}

// RecordRequest records a completed HTTP request.
func (m *StreamMetrics) RecordRequest(ctx context.Context, method, route string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.requestTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("route", route),
		attribute.String(AttrStatus, strconv.Itoa(status)),
	))
	m.requestDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("route", route),
	))
}
