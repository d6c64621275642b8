package flow

import (
	"sync"

	"github.com/kbukum/streamkit/errors"
)

// OverflowPolicy decides what a bounded subscription queue does with an
// item that arrives while it is full.
type OverflowPolicy int

const (
	// OverflowBuffer queues without bound. A buffer size only sets the
	// initial queue capacity.
	OverflowBuffer OverflowPolicy = iota
	// OverflowDropNewest discards the arriving item.
	OverflowDropNewest
	// OverflowDropOldest discards the oldest queued item to make room.
	OverflowDropOldest
	// OverflowError terminates the subscription with ErrOverflow.
	OverflowError
)

func (p OverflowPolicy) String() string {
	switch p {
	case OverflowDropNewest:
		return "drop_newest"
	case OverflowDropOldest:
		return "drop_oldest"
	case OverflowError:
		return "error"
	default:
		return "buffer"
	}
}

// ParseOverflowPolicy maps a config string onto a policy. Unknown values
// return OverflowBuffer and false.
func ParseOverflowPolicy(s string) (OverflowPolicy, bool) {
	switch s {
	case "", "buffer":
		return OverflowBuffer, true
	case "drop_newest":
		return OverflowDropNewest, true
	case "drop_oldest":
		return OverflowDropOldest, true
	case "error":
		return OverflowError, true
	}
	return OverflowBuffer, false
}

// Option configures a Publisher.
type Option func(*options)

type options struct {
	single     bool
	bufferSize int
	overflow   OverflowPolicy
	onDrop     func(any)
}

// WithSingleSubscriber rejects a second live subscriber with ErrAlreadySubscribed.
func WithSingleSubscriber() Option {
	return func(o *options) { o.single = true }
}

// WithBufferSize bounds every subscription's queue to n undelivered items.
func WithBufferSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.bufferSize = n
		}
	}
}

// WithOverflow selects the policy applied when a bounded queue is full.
func WithOverflow(p OverflowPolicy) Option {
	return func(o *options) { o.overflow = p }
}

// WithOnDrop registers fn to observe items discarded by a drop policy.
// fn runs on the emitting goroutine.
func WithOnDrop(fn func(item any)) Option {
	return func(o *options) { o.onDrop = fn }
}

// Publisher is a hot source: items emitted while subscribers are attached
// are queued per subscriber and delivered as each one requests them.
type Publisher[T any] struct {
	opts options

	mu         sync.Mutex
	subs       []*subscription[T]
	terminated bool
	termErr    error

	// set by Processor to forward demand and cancellation upstream
	onRequest func(n int64)
	onCancel  func()
}

// NewPublisher creates a Publisher.
func NewPublisher[T any](opts ...Option) *Publisher[T] {
	p := &Publisher[T]{}
	for _, opt := range opts {
		opt(&p.opts)
	}
	return p
}

// Subscribe attaches c. c.OnSubscribe runs on the calling goroutine before
// Subscribe returns and before any item can be delivered. A publisher that
// has already terminated hands c the terminal signal right after
// OnSubscribe.
func (p *Publisher[T]) Subscribe(c Consumes[T]) (Subscription, error) {
	if c == nil {
		return nil, errors.InvalidInput("consumer", "consumer must not be nil")
	}

	s := newSubscription[T](c, p, p.initialCapacity())

	p.mu.Lock()
	switch {
	case p.terminated && p.termErr != nil:
		s.err = p.termErr
	case p.terminated:
		s.completed = true
	default:
		if p.opts.single && len(p.subs) > 0 {
			p.mu.Unlock()
			return nil, ErrAlreadySubscribed
		}
		p.subs = append(p.subs, s)
	}
	p.mu.Unlock()

	c.OnSubscribe(s)
	go s.run()
	return s, nil
}

func (p *Publisher[T]) initialCapacity() int {
	if p.opts.bufferSize > 0 {
		return p.opts.bufferSize
	}
	return 16
}

// Emit queues item for every attached subscriber. It returns
// ErrNoSubscribers when nobody is attached (the item is discarded),
// ErrClosed after Complete or Fail, and ErrOverflow when the item pushed
// at least one subscription past its bound under OverflowError.
func (p *Publisher[T]) Emit(item T) error {
	var dropped []T

	p.mu.Lock()
	if p.terminated {
		p.mu.Unlock()
		return ErrClosed
	}
	if len(p.subs) == 0 {
		p.mu.Unlock()
		return ErrNoSubscribers
	}
	overflowed := false
	for _, s := range p.subs {
		d, didDrop, over := s.offer(item, p.opts.bufferSize, p.opts.overflow)
		if didDrop {
			dropped = append(dropped, d)
		}
		overflowed = overflowed || over
	}
	p.mu.Unlock()

	if p.opts.onDrop != nil {
		for _, d := range dropped {
			p.opts.onDrop(d)
		}
	}
	if overflowed {
		return ErrOverflow
	}
	return nil
}

// Complete ends the stream. Queued items are still delivered as demand
// allows, followed by OnComplete. Calls after the first terminal call are
// ignored.
func (p *Publisher[T]) Complete() {
	p.mu.Lock()
	if p.terminated {
		p.mu.Unlock()
		return
	}
	p.terminated = true
	subs := append([]*subscription[T](nil), p.subs...)
	p.mu.Unlock()

	for _, s := range subs {
		s.complete()
	}
}

// Fail ends the stream with err. OnError is delivered without waiting for
// demand and queued items are discarded.
func (p *Publisher[T]) Fail(err error) {
	if err == nil {
		err = errors.Internal(nil)
	}
	p.mu.Lock()
	if p.terminated {
		p.mu.Unlock()
		return
	}
	p.terminated = true
	p.termErr = err
	subs := append([]*subscription[T](nil), p.subs...)
	p.mu.Unlock()

	for _, s := range subs {
		s.fail(err)
	}
}

// Subscribers returns the number of attached, non-terminated subscriptions.
func (p *Publisher[T]) Subscribers() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.subs)
}

// Terminated reports whether Complete or Fail has been called.
func (p *Publisher[T]) Terminated() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.terminated
}

func (p *Publisher[T]) remove(s *subscription[T]) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, existing := range p.subs {
		if existing == s {
			p.subs = append(p.subs[:i], p.subs[i+1:]...)
			return
		}
	}
}
