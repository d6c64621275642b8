// Command streamd serves a server-sent event stream and long-poll
// exchanges over HTTP.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/kbukum/streamkit/bootstrap"
	"github.com/kbukum/streamkit/broadcast"
	"github.com/kbukum/streamkit/component"
	"github.com/kbukum/streamkit/config"
	"github.com/kbukum/streamkit/exchange"
	"github.com/kbukum/streamkit/logger"
	"github.com/kbukum/streamkit/observability"
	"github.com/kbukum/streamkit/server"
	"github.com/kbukum/streamkit/version"
)

// Config is the streamd configuration, read from config.yml, .env and the
// environment.
type Config struct {
	config.ServiceConfig `yaml:",inline" mapstructure:",squash"`

	Server    server.Config    `yaml:"server" mapstructure:"server"`
	Broadcast broadcast.Config `yaml:"broadcast" mapstructure:"broadcast"`
	Exchange  exchange.Config  `yaml:"exchange" mapstructure:"exchange"`
	Telemetry TelemetryConfig  `yaml:"telemetry" mapstructure:"telemetry"`
}

// TelemetryConfig enables OTLP export of traces and metrics.
type TelemetryConfig struct {
	Enabled  bool   `yaml:"enabled" mapstructure:"enabled"`
	Endpoint string `yaml:"endpoint" mapstructure:"endpoint"`
	Insecure bool   `yaml:"insecure" mapstructure:"insecure"`
}

func (c *Config) ApplyDefaults() {
	c.ServiceConfig.ApplyDefaults()
	if c.Version == "" {
		c.Version = version.Short()
	}
	c.Server.ApplyDefaults()
	c.Broadcast.ApplyDefaults()
	c.Exchange.ApplyDefaults()
}

func (c *Config) Validate() error {
	if err := c.ServiceConfig.Validate(); err != nil {
		return err
	}
	if err := c.Server.Validate(); err != nil {
		return err
	}
	if err := c.Broadcast.Validate(); err != nil {
		return err
	}
	return c.Exchange.Validate()
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "streamd:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := &Config{ServiceConfig: config.ServiceConfig{Name: "streamd"}}
	if err := config.LoadConfig("streamd", cfg); err != nil {
		return err
	}

	app, err := bootstrap.NewApp(cfg)
	if err != nil {
		return err
	}

	metrics, err := initTelemetry(app)
	if err != nil {
		return err
	}

	bc := broadcast.NewComponent(cfg.Broadcast, broadcast.WithMetrics(metrics))
	exchanges := exchange.NewRegistry[string](cfg.Exchange, exchange.WithMetrics(metrics))

	opts := []server.Option{
		server.WithServiceName(app.Name),
		server.WithBroadcaster(bc.Broadcaster()),
		server.WithExchanges(exchanges),
		server.WithHealthChecker(app.Components.HealthAll),
		server.WithMetrics(metrics),
	}
	if cfg.Exchange.Fallback != "" {
		opts = append(opts, server.WithFallback(cfg.Exchange.Fallback))
	}
	srv := server.NewComponent(server.New(cfg.Server, opts...))

	for _, c := range []component.Component{bc, exchanges, srv} {
		if err := app.RegisterComponent(c); err != nil {
			return err
		}
	}
	return app.Run(context.Background())
}

// initTelemetry installs the OTLP tracer and meter providers when enabled
// and returns the stream metrics every component reports to.
func initTelemetry(app *bootstrap.App[*Config]) (*observability.StreamMetrics, error) {
	tc := app.Cfg.Telemetry
	if !tc.Enabled {
		return observability.NopStreamMetrics(), nil
	}

	ctx := context.Background()
	tracerCfg := observability.DefaultTracerConfig(app.Name)
	meterCfg := observability.DefaultMeterConfig(app.Name)
	tracerCfg.ServiceVersion, meterCfg.ServiceVersion = app.Version, app.Version
	tracerCfg.Environment, meterCfg.Environment = app.Cfg.Environment, app.Cfg.Environment
	if tc.Endpoint != "" {
		tracerCfg.Endpoint, meterCfg.Endpoint = tc.Endpoint, tc.Endpoint
	}
	tracerCfg.Insecure, meterCfg.Insecure = tc.Insecure, tc.Insecure

	tp, err := observability.InitTracer(ctx, &tracerCfg)
	if err != nil {
		return nil, fmt.Errorf("tracer: %w", err)
	}
	mp, err := observability.InitMeter(ctx, &meterCfg)
	if err != nil {
		_ = tp.Shutdown(ctx)
		return nil, fmt.Errorf("meter: %w", err)
	}
	app.OnStop(func(ctx context.Context) error {
		if err := mp.Shutdown(ctx); err != nil {
			app.Logger.Warn("meter shutdown", logger.ErrorFields("meter_shutdown", err))
		}
		return tp.Shutdown(ctx)
	})

	metrics, err := observability.NewStreamMetrics(observability.Meter("streamd"))
	if err != nil {
		return nil, fmt.Errorf("metrics: %w", err)
	}
	return metrics, nil
}
