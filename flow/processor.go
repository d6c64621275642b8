package flow

import "sync"

// Processor is both a consumer of I and a source of O. Each upstream item
// is mapped through fn and re-emitted; downstream demand and cancellation
// are forwarded upstream one-for-one. A Processor accepts one downstream
// subscriber.
type Processor[I, O any] struct {
	*Publisher[O]
	fn func(I) (O, error)

	mu       sync.Mutex
	upstream Subscription
	pending  int64
	stopped  bool
}

// NewProcessor creates a Processor mapping items with fn. A non-nil error
// from fn fails downstream and cancels upstream.
func NewProcessor[I, O any](fn func(I) (O, error), opts ...Option) *Processor[I, O] {
	p := &Processor[I, O]{
		Publisher: NewPublisher[O](append(opts, WithSingleSubscriber())...),
		fn:        fn,
	}
	p.Publisher.onRequest = p.forwardRequest
	p.Publisher.onCancel = p.cancelUpstream
	return p
}

// OnSubscribe stores the upstream subscription and requests any demand
// downstream registered before it arrived.
func (p *Processor[I, O]) OnSubscribe(s Subscription) {
	p.mu.Lock()
	if p.upstream != nil || p.stopped {
		p.mu.Unlock()
		s.Cancel()
		return
	}
	p.upstream = s
	n := p.pending
	p.pending = 0
	p.mu.Unlock()

	if n > 0 {
		s.Request(n)
	}
}

func (p *Processor[I, O]) OnNext(item I) {
	out, err := p.fn(item)
	if err != nil {
		p.cancelUpstream()
		p.Fail(err)
		return
	}
	if err := p.Emit(out); err != nil && err != ErrOverflow {
		p.cancelUpstream()
	}
}

func (p *Processor[I, O]) OnError(err error) {
	p.Fail(err)
}

func (p *Processor[I, O]) OnComplete() {
	p.Complete()
}

func (p *Processor[I, O]) forwardRequest(n int64) {
	p.mu.Lock()
	up := p.upstream
	if up == nil {
		p.pending = addDemand(p.pending, n)
	}
	p.mu.Unlock()

	if up != nil {
		up.Request(n)
	}
}

func (p *Processor[I, O]) cancelUpstream() {
	p.mu.Lock()
	up := p.upstream
	p.stopped = true
	p.mu.Unlock()

	if up != nil {
		up.Cancel()
	}
}
