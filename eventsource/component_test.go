package eventsource

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kbukum/streamkit/component"
	"github.com/kbukum/streamkit/sse"
)

func TestConfig_DefaultsAndValidate(t *testing.T) {
	cfg := Config{URL: "http://localhost:8080/events"}
	cfg.ApplyDefaults()
	if cfg.ReconnectDelay != DefaultReconnectDelay || cfg.CloseTimeout != DefaultCloseTimeout {
		t.Errorf("defaults = %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() = %v", err)
	}

	bad := Config{URL: "not a url"}
	if err := bad.Validate(); err == nil {
		t.Error("expected invalid URL to fail validation")
	}
	if err := (&Config{}).Validate(); err == nil {
		t.Error("expected missing URL to fail validation")
	}
}

func TestComponent_Lifecycle(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", sse.ContentType)
		sw := sse.NewWriter(w)
		_ = sw.WriteEvent(sse.Event{Data: "hello"}.WithID("1"))
		<-r.Context().Done()
	}))
	defer srv.Close()

	c := NewComponent(Config{URL: srv.URL, CloseTimeout: time.Second})
	got := make(chan sse.Event, 1)
	c.Source().OnEvent(func(ev sse.Event) { got <- ev })

	ctx := context.Background()
	if err := c.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	select {
	case ev := <-got:
		if ev.Data != "hello" {
			t.Errorf("event = %+v", ev)
		}
	case <-time.After(waitTimeout):
		t.Fatal("no event")
	}

	awaitState(t, c.Source(), StateOpen)
	h := c.Health(ctx)
	if h.Status != component.StatusHealthy || h.Details["last_event_id"] != "1" {
		t.Errorf("health = %+v", h)
	}
	if d := c.Describe(); d.Type != "eventsource" {
		t.Errorf("Describe = %+v", d)
	}

	if err := c.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if h := c.Health(ctx); h.Status != component.StatusUnhealthy {
		t.Errorf("health after stop = %s", h.Status)
	}
}
