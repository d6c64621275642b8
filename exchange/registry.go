package exchange

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kbukum/streamkit/component"
	"github.com/kbukum/streamkit/errors"
	"github.com/kbukum/streamkit/logger"
)

// Registry holds the suspended exchanges of one process, keyed by id.
// Entries leave the registry as soon as they resolve.
type Registry[T any] struct {
	cfg      Config
	defaults []Option
	settings settings

	mu      sync.Mutex
	entries map[string]*Exchange[T]
	closed  bool
}

// NewRegistry creates a Registry. opts apply to every suspended exchange
// and may also set the registry's logger and metrics.
func NewRegistry[T any](cfg Config, opts ...Option) *Registry[T] {
	cfg.ApplyDefaults()
	s := newSettings(opts)
	if s.log == nil {
		s.log = logger.WithComponent("exchange")
	}
	return &Registry[T]{
		cfg:      cfg,
		defaults: opts,
		settings: s,
		entries:  make(map[string]*Exchange[T]),
	}
}

// Suspend creates and registers an exchange with the given id and timeout.
// An empty id gets a UUID; a timeout of 0 uses DefaultTimeout and larger
// timeouts are capped at MaxTimeout. A live exchange with the same id
// yields a CONFLICT error.
func (r *Registry[T]) Suspend(id string, timeout time.Duration) (*Exchange[T], error) {
	if id == "" {
		id = uuid.NewString()
	}
	timeout = r.cfg.Clamp(timeout)

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, errors.Closed("exchange registry")
	}
	if _, exists := r.entries[id]; exists {
		r.mu.Unlock()
		return nil, errors.Conflict(fmt.Sprintf("exchange %s is already suspended", id)).
			WithDetail("id", id)
	}
	opts := append(append([]Option(nil), r.defaults...), WithID(id), WithDeadline(timeout))
	ex := New[T](opts...)
	r.entries[id] = ex
	r.mu.Unlock()

	ctx := context.Background()
	r.settings.metrics.ExchangeSuspended(ctx)
	r.settings.log.Debug("exchange suspended", logger.Fields(logger.FieldExchangeID, id, "timeout_ms", timeout.Milliseconds()))

	ex.OnResolve(func(_ T, err error) {
		r.mu.Lock()
		if r.entries[id] == ex {
			delete(r.entries, id)
		}
		r.mu.Unlock()

		state := ex.State()
		r.settings.metrics.ExchangeResolved(ctx, state.String())
		fields := logger.Fields(logger.FieldExchangeID, id, logger.FieldState, state.String())
		r.settings.log.Debug("exchange resolved", logger.MergeWithError(fields, err))
	})
	return ex, nil
}

// Get returns the live exchange registered under id.
func (r *Registry[T]) Get(id string) (*Exchange[T], bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ex, ok := r.entries[id]
	return ex, ok
}

// Resume resumes the exchange id with v. Unknown ids yield NOT_FOUND.
func (r *Registry[T]) Resume(id string, v T) error {
	ex, ok := r.Get(id)
	if !ok {
		return errors.NotFound("exchange", id)
	}
	return ex.Resume(v)
}

// ResumeError resumes the exchange id with err.
func (r *Registry[T]) ResumeError(id string, err error) error {
	ex, ok := r.Get(id)
	if !ok {
		return errors.NotFound("exchange", id)
	}
	return ex.ResumeError(err)
}

// Cancel cancels the exchange id, reporting whether one was found.
func (r *Registry[T]) Cancel(id string) bool {
	ex, ok := r.Get(id)
	if !ok {
		return false
	}
	return ex.Cancel()
}

// Len returns the number of suspended exchanges.
func (r *Registry[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// IDs returns the ids of suspended exchanges in sorted order.
func (r *Registry[T]) IDs() []string {
	r.mu.Lock()
	ids := make([]string, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	r.mu.Unlock()
	sort.Strings(ids)
	return ids
}

// CancelAll cancels every suspended exchange and returns how many there were.
func (r *Registry[T]) CancelAll() int {
	r.mu.Lock()
	pending := make([]*Exchange[T], 0, len(r.entries))
	for _, ex := range r.entries {
		pending = append(pending, ex)
	}
	r.mu.Unlock()

	n := 0
	for _, ex := range pending {
		if ex.Cancel() {
			n++
		}
	}
	return n
}

// --- component.Component ---

// Name implements component.Component.
func (r *Registry[T]) Name() string { return "exchanges" }

// Start implements component.Component.
func (r *Registry[T]) Start(context.Context) error {
	r.mu.Lock()
	r.closed = false
	r.mu.Unlock()
	return nil
}

// Stop refuses new suspensions and cancels the pending ones.
func (r *Registry[T]) Stop(context.Context) error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	if n := r.CancelAll(); n > 0 {
		r.settings.log.Info("cancelled pending exchanges", logger.Fields("count", n))
	}
	return nil
}

// Health implements component.Component.
func (r *Registry[T]) Health(context.Context) component.Health {
	return component.Health{
		Name:    r.Name(),
		Status:  component.StatusHealthy,
		Message: fmt.Sprintf("%d suspended", r.Len()),
		Details: map[string]any{"suspended": r.Len()},
	}
}

// Describe implements component.Describable.
func (r *Registry[T]) Describe() component.Description {
	return component.Description{
		Name:    "Exchange Registry",
		Type:    "exchange",
		Details: fmt.Sprintf("default=%s max=%s", r.cfg.DefaultTimeout, r.cfg.MaxTimeout),
	}
}
