package component

import (
	"context"
	"fmt"
	"testing"
)

type mockComponent struct {
	name       string
	startErr   error
	stopErr    error
	health     Health
	startOrder *[]string
	stopOrder  *[]string
}

func (m *mockComponent) Name() string { return m.name }
func (m *mockComponent) Start(ctx context.Context) error {
	if m.startOrder != nil {
		*m.startOrder = append(*m.startOrder, m.name)
	}
	return m.startErr
}
func (m *mockComponent) Stop(ctx context.Context) error {
	if m.stopOrder != nil {
		*m.stopOrder = append(*m.stopOrder, m.name)
	}
	return m.stopErr
}
func (m *mockComponent) Health(ctx context.Context) Health {
	return m.health
}

type describedComponent struct {
	mockComponent
}

func (d *describedComponent) Describe() Description {
	return Description{Type: "server", Details: "h2c", Port: 8080}
}

func TestRegisterDuplicate(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(&mockComponent{name: "broadcaster"}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if err := r.Register(&mockComponent{name: "broadcaster"}); err == nil {
		t.Error("expected error for duplicate registration")
	}
}

func TestGet(t *testing.T) {
	r := NewRegistry()
	r.Register(&mockComponent{name: "broadcaster"})

	got := r.Get("broadcaster")
	if got == nil || got.Name() != "broadcaster" {
		t.Fatalf("expected registered component, got %v", got)
	}
	if r.Get("missing") != nil {
		t.Error("expected nil for unregistered component")
	}
	if len(r.All()) != 1 {
		t.Errorf("expected 1 component, got %d", len(r.All()))
	}
}

func TestStartAll(t *testing.T) {
	r := NewRegistry()
	order := []string{}

	r.Register(&mockComponent{name: "broadcaster", startOrder: &order})
	r.Register(&describedComponent{mockComponent{name: "server", startOrder: &order}})

	if err := r.StartAll(context.Background()); err != nil {
		t.Fatalf("StartAll failed: %v", err)
	}
	if len(order) != 2 || order[0] != "broadcaster" || order[1] != "server" {
		t.Errorf("expected start order [broadcaster, server], got %v", order)
	}
}

func TestStartAllErrorStopsStarted(t *testing.T) {
	r := NewRegistry()
	stopped := []string{}
	r.Register(&mockComponent{name: "broadcaster", stopOrder: &stopped})
	r.Register(&mockComponent{name: "server", startErr: fmt.Errorf("address in use"), stopOrder: &stopped})

	if err := r.StartAll(context.Background()); err == nil {
		t.Fatal("expected error from StartAll")
	}
	if len(stopped) != 1 || stopped[0] != "broadcaster" {
		t.Errorf("expected broadcaster to be rolled back, got %v", stopped)
	}
}

func TestStopAllReverseOrder(t *testing.T) {
	r := NewRegistry()
	order := []string{}

	r.Register(&mockComponent{name: "broadcaster", stopOrder: &order})
	r.Register(&mockComponent{name: "exchanges", stopOrder: &order})
	r.Register(&mockComponent{name: "server", stopOrder: &order})

	r.StartAll(context.Background())
	if err := r.StopAll(context.Background()); err != nil {
		t.Fatalf("StopAll failed: %v", err)
	}
	if len(order) != 3 || order[0] != "server" || order[1] != "exchanges" || order[2] != "broadcaster" {
		t.Errorf("expected reverse stop order, got %v", order)
	}
}

func TestStopAllSkipsUnstarted(t *testing.T) {
	r := NewRegistry()
	order := []string{}
	r.Register(&mockComponent{name: "broadcaster", stopOrder: &order})

	if err := r.StopAll(context.Background()); err != nil {
		t.Fatalf("StopAll failed: %v", err)
	}
	if len(order) != 0 {
		t.Errorf("expected 0 stops for unstarted components, got %d", len(order))
	}
}

func TestStopAllWithErrors(t *testing.T) {
	r := NewRegistry()
	r.Register(&mockComponent{name: "server", stopErr: fmt.Errorf("stop failed")})
	r.StartAll(context.Background())

	if err := r.StopAll(context.Background()); err == nil {
		t.Error("expected error from StopAll")
	}
}

func TestHealthAll(t *testing.T) {
	r := NewRegistry()
	r.Register(&mockComponent{
		name:   "broadcaster",
		health: Health{Name: "broadcaster", Status: StatusHealthy, Message: "3 sinks"},
	})
	r.Register(&mockComponent{
		name:   "eventsource",
		health: Health{Name: "eventsource", Status: StatusDegraded, Message: "reconnecting"},
	})

	results := r.HealthAll(context.Background())
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[1].Status != StatusDegraded {
		t.Errorf("expected eventsource degraded, got %s", results[1].Status)
	}
	if got := Overall(results); got != StatusDegraded {
		t.Errorf("Overall = %s, want degraded", got)
	}
}

func TestOverall(t *testing.T) {
	tests := []struct {
		name string
		in   []Health
		want HealthStatus
	}{
		{"empty", nil, StatusHealthy},
		{"all healthy", []Health{{Status: StatusHealthy}, {Status: StatusHealthy}}, StatusHealthy},
		{"unhealthy wins", []Health{{Status: StatusDegraded}, {Status: StatusUnhealthy}}, StatusUnhealthy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Overall(tt.in); got != tt.want {
				t.Errorf("Overall() = %s, want %s", got, tt.want)
			}
		})
	}
}
