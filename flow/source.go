package flow

import "github.com/kbukum/streamkit/errors"

type sliceSource[T any] struct {
	items []T
}

// FromSlice returns a cold source: every subscriber gets its own pass over
// items, honoring its demand, followed by OnComplete.
func FromSlice[T any](items []T) Emits[T] {
	return &sliceSource[T]{items: append([]T(nil), items...)}
}

func (src *sliceSource[T]) Subscribe(c Consumes[T]) (Subscription, error) {
	if c == nil {
		return nil, errors.InvalidInput("consumer", "consumer must not be nil")
	}
	s := newSubscription[T](c, nil, 0)
	s.queue = append([]T(nil), src.items...)
	s.completed = true

	c.OnSubscribe(s)
	go s.run()
	return s, nil
}
