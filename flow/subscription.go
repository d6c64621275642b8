package flow

import (
	"fmt"
	"sync"

	"github.com/kbukum/streamkit/errors"
	"github.com/kbukum/streamkit/logger"
)

// subscription owns the queue, demand and terminal state of one consumer
// and runs its delivery goroutine.
type subscription[T any] struct {
	consumer Consumes[T]
	owner    *Publisher[T]

	mu        sync.Mutex
	queue     []T
	demand    int64
	cancelled bool
	completed bool
	err       error
	finished  bool

	signal chan struct{}
}

func newSubscription[T any](c Consumes[T], owner *Publisher[T], capacity int) *subscription[T] {
	return &subscription[T]{
		consumer: c,
		owner:    owner,
		queue:    make([]T, 0, capacity),
		signal:   make(chan struct{}, 1),
	}
}

func (s *subscription[T]) wake() {
	select {
	case s.signal <- struct{}{}:
	default:
	}
}

// live reports whether the subscription still accepts items. Caller holds s.mu.
func (s *subscription[T]) live() bool {
	return !s.cancelled && !s.completed && s.err == nil && !s.finished
}

func (s *subscription[T]) Request(n int64) {
	s.mu.Lock()
	if s.cancelled || s.finished || s.err != nil {
		s.mu.Unlock()
		return
	}
	if n <= 0 {
		s.err = errors.InvalidDemand(n)
		s.queue = nil
		s.mu.Unlock()
		s.detach()
		s.wake()
		return
	}
	s.demand = addDemand(s.demand, n)
	s.mu.Unlock()

	if s.owner != nil && s.owner.onRequest != nil {
		s.owner.onRequest(n)
	}
	s.wake()
}

func (s *subscription[T]) Cancel() {
	s.mu.Lock()
	if s.cancelled || s.finished {
		s.mu.Unlock()
		return
	}
	s.cancelled = true
	s.queue = nil
	s.mu.Unlock()

	s.detach()
	if s.owner != nil && s.owner.onCancel != nil {
		s.owner.onCancel()
	}
	s.wake()
}

func (s *subscription[T]) detach() {
	if s.owner != nil {
		s.owner.remove(s)
	}
}

// offer enqueues item under the overflow policy. It returns the item that
// was discarded, if any, and whether the subscription overflowed into an
// error.
func (s *subscription[T]) offer(item T, limit int, policy OverflowPolicy) (dropped T, didDrop bool, overflowed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.live() {
		return dropped, false, false
	}

	if limit > 0 && len(s.queue) >= limit {
		switch policy {
		case OverflowDropNewest:
			s.wake()
			return item, true, false
		case OverflowDropOldest:
			dropped = s.queue[0]
			var zero T
			s.queue[0] = zero
			s.queue = append(s.queue[1:], item)
			s.wake()
			return dropped, true, false
		case OverflowError:
			s.err = errors.BufferOverflow(limit)
			s.queue = nil
			s.wake()
			return dropped, false, true
		}
	}
	s.queue = append(s.queue, item)
	s.wake()
	return dropped, false, false
}

func (s *subscription[T]) complete() {
	s.mu.Lock()
	if s.live() {
		s.completed = true
	}
	s.mu.Unlock()
	s.wake()
}

func (s *subscription[T]) fail(err error) {
	s.mu.Lock()
	if s.live() {
		s.err = err
		s.queue = nil
	}
	s.mu.Unlock()
	s.wake()
}

// abort ends the subscription after a consumer callback panicked. A panic
// from OnNext is reported to the consumer through OnError; one from a
// terminal callback is only logged.
func (s *subscription[T]) abort(r any) {
	s.mu.Lock()
	signalled := s.finished || s.cancelled
	s.finished = true
	s.queue = nil
	s.mu.Unlock()
	s.detach()

	err := errors.Internal(fmt.Errorf("flow: consumer panicked: %v", r))
	logger.WithComponent("flow").Error("consumer panicked", logger.ErrorFields("deliver", err.Cause))
	if signalled {
		return
	}
	defer func() { _ = recover() }()
	s.consumer.OnError(err)
}

// run delivers signals until the subscription is cancelled or a terminal
// signal has been sent.
func (s *subscription[T]) run() {
	defer func() {
		if r := recover(); r != nil {
			s.abort(r)
		}
	}()

	for {
		s.mu.Lock()
		switch {
		case s.cancelled:
			s.finished = true
			s.mu.Unlock()
			return

		case s.err != nil:
			err := s.err
			s.finished = true
			s.mu.Unlock()
			s.detach()
			s.consumer.OnError(err)
			return

		case len(s.queue) > 0 && s.demand > 0:
			item := s.queue[0]
			var zero T
			s.queue[0] = zero
			s.queue = s.queue[1:]
			if s.demand != Unbounded {
				s.demand--
			}
			s.mu.Unlock()
			s.consumer.OnNext(item)

		case s.completed && len(s.queue) == 0:
			s.finished = true
			s.mu.Unlock()
			s.detach()
			s.consumer.OnComplete()
			return

		default:
			s.mu.Unlock()
			<-s.signal
		}
	}
}
