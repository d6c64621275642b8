package flow

import (
	"context"
	"sync"
)

// Iterator turns a flow into a pull API. It requests batch items up front
// and tops demand back up once half of them have been consumed, so at most
// batch items are ever outstanding.
type Iterator[T any] struct {
	batch     int64
	threshold int64

	mu       sync.Mutex
	sub      Subscription
	items    []T
	consumed int64
	done     bool
	err      error
	signal   chan struct{}
}

// NewIterator creates an Iterator. Subscribe it to a source before calling Next.
func NewIterator[T any](batch int) *Iterator[T] {
	if batch < 1 {
		batch = 1
	}
	threshold := int64(batch / 2)
	if threshold < 1 {
		threshold = 1
	}
	return &Iterator[T]{
		batch:     int64(batch),
		threshold: threshold,
		signal:    make(chan struct{}, 1),
	}
}

func (it *Iterator[T]) wake() {
	select {
	case it.signal <- struct{}{}:
	default:
	}
}

func (it *Iterator[T]) OnSubscribe(s Subscription) {
	it.mu.Lock()
	it.sub = s
	it.mu.Unlock()
	s.Request(it.batch)
}

func (it *Iterator[T]) OnNext(item T) {
	it.mu.Lock()
	it.items = append(it.items, item)
	it.mu.Unlock()
	it.wake()
}

func (it *Iterator[T]) OnError(err error) {
	it.mu.Lock()
	it.done = true
	it.err = err
	it.mu.Unlock()
	it.wake()
}

func (it *Iterator[T]) OnComplete() {
	it.mu.Lock()
	it.done = true
	it.mu.Unlock()
	it.wake()
}

// Next returns the next item. It returns (zero, false, nil) once the source
// completes, (zero, false, err) if it failed, and ctx.Err() if ctx ends
// first.
func (it *Iterator[T]) Next(ctx context.Context) (T, bool, error) {
	var zero T
	for {
		it.mu.Lock()
		if len(it.items) > 0 {
			item := it.items[0]
			it.items[0] = zero
			it.items = it.items[1:]
			it.consumed++
			var refill int64
			if it.consumed >= it.threshold && !it.done {
				refill = it.consumed
				it.consumed = 0
			}
			sub := it.sub
			it.mu.Unlock()

			if refill > 0 && sub != nil {
				sub.Request(refill)
			}
			return item, true, nil
		}
		if it.done {
			err := it.err
			it.mu.Unlock()
			return zero, false, err
		}
		it.mu.Unlock()

		select {
		case <-it.signal:
		case <-ctx.Done():
			return zero, false, ctx.Err()
		}
	}
}

// Close cancels the subscription. Buffered items are discarded.
func (it *Iterator[T]) Close() error {
	it.mu.Lock()
	sub := it.sub
	it.done = true
	it.items = nil
	it.mu.Unlock()

	if sub != nil {
		sub.Cancel()
	}
	it.wake()
	return nil
}
