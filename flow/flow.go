package flow

import "math"

// Unbounded is the demand that disables back-pressure. Accumulated demand
// saturates at this value.
const Unbounded int64 = math.MaxInt64

// Subscription is the demand handle linking one consumer to one source.
// Both methods are safe from any goroutine, including from inside the
// consumer's own callbacks.
type Subscription interface {
	// Request authorizes n more items. n <= 0 terminates the subscription
	// with ErrInvalidDemand.
	Request(n int64)
	// Cancel stops delivery. Items already in flight may still arrive and
	// no terminal signal is guaranteed.
	Cancel()
}

// Consumes is the receiving side of a flow.
type Consumes[T any] interface {
	OnSubscribe(s Subscription)
	OnNext(item T)
	OnError(err error)
	OnComplete()
}

// Emits is the producing side of a flow.
type Emits[T any] interface {
	Subscribe(c Consumes[T]) (Subscription, error)
}

// ConsumerFuncs adapts plain functions to Consumes. Initial is the demand
// requested on subscribe: 0 means Unbounded, a negative value requests
// nothing and leaves demand to Subscribed.
type ConsumerFuncs[T any] struct {
	Initial    int64
	Subscribed func(Subscription)
	Next       func(T)
	Error      func(error)
	Complete   func()
}

func (f ConsumerFuncs[T]) OnSubscribe(s Subscription) {
	if f.Subscribed != nil {
		f.Subscribed(s)
	}
	switch {
	case f.Initial == 0:
		s.Request(Unbounded)
	case f.Initial > 0:
		s.Request(f.Initial)
	}
}

func (f ConsumerFuncs[T]) OnNext(item T) {
	if f.Next != nil {
		f.Next(item)
	}
}

func (f ConsumerFuncs[T]) OnError(err error) {
	if f.Error != nil {
		f.Error(err)
	}
}

func (f ConsumerFuncs[T]) OnComplete() {
	if f.Complete != nil {
		f.Complete()
	}
}

// addDemand adds n to d, saturating at Unbounded.
func addDemand(d, n int64) int64 {
	if d >= Unbounded-n {
		return Unbounded
	}
	return d + n
}
