package exchange

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/juju/clock"

	"github.com/kbukum/streamkit/errors"
)

// State is the resolution state of an Exchange.
type State int

const (
	StateSuspended State = iota
	StateResumed
	StateCancelled
	StateTimedOut
)

func (s State) String() string {
	switch s {
	case StateSuspended:
		return "suspended"
	case StateResumed:
		return "resumed"
	case StateCancelled:
		return "cancelled"
	case StateTimedOut:
		return "timed_out"
	}
	return "unknown"
}

// Sentinels for errors.Is.
var (
	ErrInvalidState = errors.InvalidState("", "")
	ErrCancelled    = errors.Cancelled("exchange")
	ErrUnavailable  = errors.ServiceUnavailable("exchange")
)

// Exchange is a single-resolution pending result.
type Exchange[T any] struct {
	id    string
	clock clock.Clock

	mu          sync.Mutex
	state       State
	value       T
	err         error
	fallback    T
	hasFallback bool
	onTimeout   func(*Exchange[T])
	timer       clock.Timer
	generation  uint64
	callbacks   []func(T, error)
	done        chan struct{}
}

// New creates a suspended Exchange.
func New[T any](opts ...Option) *Exchange[T] {
	s := newSettings(opts)
	e := &Exchange[T]{
		id:    s.id,
		clock: s.clock,
		done:  make(chan struct{}),
	}
	if e.id == "" {
		e.id = uuid.NewString()
	}
	if s.deadline > 0 {
		e.arm(s.deadline)
	}
	return e
}

// ID returns the exchange id.
func (e *Exchange[T]) ID() string { return e.id }

// Resume resolves the exchange with v.
func (e *Exchange[T]) Resume(v T) error {
	if !e.resolve(StateResumed, v, nil) {
		return e.invalid("resume")
	}
	return nil
}

// ResumeError resolves the exchange with err.
func (e *Exchange[T]) ResumeError(err error) error {
	if err == nil {
		err = errors.Internal(nil)
	}
	var zero T
	if !e.resolve(StateResumed, zero, err) {
		return e.invalid("resume")
	}
	return nil
}

// Cancel resolves the exchange with ErrCancelled. It is idempotent and
// reports whether the exchange ended up cancelled, by this call or an
// earlier one.
func (e *Exchange[T]) Cancel() bool {
	var zero T
	if e.resolve(StateCancelled, zero, ErrCancelled) {
		return true
	}
	return e.State() == StateCancelled
}

// SetDeadline (re)arms the timeout d from now, replacing any earlier
// deadline. d <= 0 removes the deadline.
func (e *Exchange[T]) SetDeadline(d time.Duration) error {
	e.mu.Lock()
	if e.state != StateSuspended {
		state := e.state
		e.mu.Unlock()
		return errors.InvalidState("set deadline", state.String())
	}
	e.mu.Unlock()

	if d <= 0 {
		e.mu.Lock()
		e.generation++
		if e.timer != nil {
			e.timer.Stop()
			e.timer = nil
		}
		e.mu.Unlock()
		return nil
	}
	e.arm(d)
	return nil
}

// OnTimeout sets the handler run when the deadline elapses. The exchange is
// still suspended while fn runs; fn may resume it, cancel it or set a new
// deadline. If fn does none of these the exchange times out with the
// fallback value or ErrUnavailable.
func (e *Exchange[T]) OnTimeout(fn func(*Exchange[T])) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateSuspended {
		return errors.InvalidState("set timeout handler", e.state.String())
	}
	e.onTimeout = fn
	return nil
}

// SetFallback sets the value a timeout resolves with instead of ErrUnavailable.
func (e *Exchange[T]) SetFallback(v T) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateSuspended {
		return errors.InvalidState("set fallback", e.state.String())
	}
	e.fallback = v
	e.hasFallback = true
	return nil
}

// OnResolve registers cb to run once with the result. If the exchange is
// already resolved cb runs immediately on the calling goroutine.
func (e *Exchange[T]) OnResolve(cb func(T, error)) {
	e.mu.Lock()
	if e.state == StateSuspended {
		e.callbacks = append(e.callbacks, cb)
		e.mu.Unlock()
		return
	}
	v, err := e.value, e.err
	e.mu.Unlock()
	cb(v, err)
}

// Await blocks until the exchange resolves or ctx ends. A ctx ending does
// not resolve the exchange.
func (e *Exchange[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-e.done:
		return e.Result()
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Done is closed once the exchange resolves.
func (e *Exchange[T]) Done() <-chan struct{} { return e.done }

// State returns the current state.
func (e *Exchange[T]) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Result returns the resolved value and error. While suspended it returns
// the zero value and ErrInvalidState.
func (e *Exchange[T]) Result() (T, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == StateSuspended {
		var zero T
		return zero, errors.InvalidState("read result", e.state.String())
	}
	return e.value, e.err
}

func (e *Exchange[T]) invalid(op string) error {
	return errors.InvalidState(op, e.State().String())
}

// arm starts a timer for d. Older timers are invalidated by the generation
// bump even if their callback is already running.
func (e *Exchange[T]) arm(d time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateSuspended {
		return
	}
	if e.timer != nil {
		e.timer.Stop()
	}
	e.generation++
	gen := e.generation
	e.timer = e.clock.AfterFunc(d, func() { e.expire(gen) })
}

func (e *Exchange[T]) expire(gen uint64) {
	e.mu.Lock()
	if e.state != StateSuspended || e.generation != gen {
		e.mu.Unlock()
		return
	}
	handler := e.onTimeout
	e.mu.Unlock()

	if handler != nil {
		handler(e)
	}

	e.mu.Lock()
	if e.state != StateSuspended || e.generation != gen {
		e.mu.Unlock()
		return
	}
	v, err := e.fallback, error(nil)
	if !e.hasFallback {
		err = ErrUnavailable
	}
	e.mu.Unlock()

	e.resolveIf(StateTimedOut, v, err, gen)
}

func (e *Exchange[T]) resolve(state State, v T, err error) bool {
	return e.resolveIf(state, v, err, 0)
}

// resolveIf performs the single transition out of StateSuspended. A
// non-zero gen additionally requires the deadline not to have been re-armed.
func (e *Exchange[T]) resolveIf(state State, v T, err error, gen uint64) bool {
	e.mu.Lock()
	if e.state != StateSuspended || (gen != 0 && e.generation != gen) {
		e.mu.Unlock()
		return false
	}
	e.state = state
	e.value = v
	e.err = err
	e.generation++
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	callbacks := e.callbacks
	e.callbacks = nil
	e.onTimeout = nil
	close(e.done)
	e.mu.Unlock()

	for _, cb := range callbacks {
		cb(v, err)
	}
	return true
}
