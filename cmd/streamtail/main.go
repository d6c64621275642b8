// Command streamtail connects to a server-sent event stream and prints
// every event it receives until interrupted.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/kbukum/streamkit/bootstrap"
	"github.com/kbukum/streamkit/config"
	"github.com/kbukum/streamkit/eventsource"
	"github.com/kbukum/streamkit/sse"
	"github.com/kbukum/streamkit/version"
)

// Config wires the event source into the bootstrap lifecycle.
type Config struct {
	config.ServiceConfig `yaml:",inline" mapstructure:",squash"`

	Source eventsource.Config `yaml:"source" mapstructure:"source"`
}

func (c *Config) ApplyDefaults() {
	c.ServiceConfig.ApplyDefaults()
	c.Source.ApplyDefaults()
}

func (c *Config) Validate() error {
	if err := c.ServiceConfig.Validate(); err != nil {
		return err
	}
	return c.Source.Validate()
}

func main() {
	cfg := &Config{ServiceConfig: config.ServiceConfig{Name: "streamtail", Version: version.Short()}}
	asJSON := flag.Bool("json", false, "print events as JSON lines")
	showVersion := flag.Bool("version", false, "print the version and exit")
	flag.StringVar(&cfg.Source.URL, "url", "http://localhost:8080/events", "event stream URL")
	flag.StringVar(&cfg.Source.LastEventID, "last-event-id", "", "resume after this event id")
	flag.IntVar(&cfg.Source.MaxRetries, "max-retries", 0, "give up after this many failed reconnects (0 retries forever)")
	flag.DurationVar(&cfg.Source.ReconnectDelay, "reconnect-delay", eventsource.DefaultReconnectDelay, "initial reconnect delay")
	flag.StringVar(&cfg.Logging.Level, "log-level", "warn", "log level")
	flag.Parse()
	if *showVersion {
		fmt.Println("streamtail", cfg.Version)
		return
	}
	cfg.Logging.Output = "stderr"

	if err := run(cfg, *asJSON); err != nil {
		fmt.Fprintln(os.Stderr, "streamtail:", err)
		os.Exit(1)
	}
}

func run(cfg *Config, asJSON bool) error {
	app, err := bootstrap.NewApp(cfg)
	if err != nil {
		return err
	}

	src := eventsource.NewComponent(cfg.Source)
	printer := newPrinter(os.Stdout, asJSON)
	// Parse errors are reported too; the closing error is always the last.
	var lastErr error
	completed := false
	src.Source().Register(printer.print,
		func(err error) { lastErr = err },
		func() { completed = true })

	if err := app.RegisterComponent(src); err != nil {
		return err
	}
	return app.RunTask(context.Background(), func(ctx context.Context) error {
		select {
		case <-ctx.Done():
			return nil
		case <-src.Source().Done():
			if completed {
				return nil
			}
			return lastErr
		}
	})
}

type printer struct {
	w    io.Writer
	json bool
}

func newPrinter(w io.Writer, asJSON bool) *printer {
	return &printer{w: w, json: asJSON}
}

type jsonEvent struct {
	ID    string `json:"id,omitempty"`
	Event string `json:"event"`
	Data  string `json:"data"`
	Retry string `json:"retry,omitempty"`
}

func (p *printer) print(ev sse.Event) {
	name := ev.Name
	if name == "" {
		name = sse.EventTypeMessage
	}
	if p.json {
		out := jsonEvent{ID: ev.ID, Event: name, Data: ev.Data}
		if ev.Retry > 0 {
			out.Retry = ev.Retry.String()
		}
		b, _ := json.Marshal(out)
		fmt.Fprintln(p.w, string(b))
		return
	}
	prefix := time.Now().Format(time.TimeOnly) + " " + name
	if ev.HasID {
		prefix += "#" + ev.ID
	}
	for _, line := range strings.Split(ev.Data, "\n") {
		fmt.Fprintf(p.w, "%s %s\n", prefix, line)
	}
}
