package broadcast

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/kbukum/streamkit/errors"
	"github.com/kbukum/streamkit/flow"
	"github.com/kbukum/streamkit/logger"
	"github.com/kbukum/streamkit/observability"
	"github.com/kbukum/streamkit/sse"
)

// ErrClosed is returned by Register after Close.
var ErrClosed = errors.Closed("broadcaster")

// Sink receives broadcast events. Send is never called concurrently for
// the same sink.
type Sink interface {
	Send(ctx context.Context, ev sse.Event) error
	Close() error
}

// ExceptionListener observes a sink that was removed after a failed write.
type ExceptionListener func(id string, sink Sink, err error)

// CloseListener observes a sink leaving the broadcaster for any reason.
type CloseListener func(id string, sink Sink)

// Broadcaster delivers every broadcast event to all registered sinks.
type Broadcaster struct {
	opts options
	log  *logger.Logger

	mu      sync.RWMutex
	entries map[string]*entry
	seq     uint64
	closed  bool

	listenerMu  sync.Mutex
	onException []ExceptionListener
	onClose     []CloseListener
}

type entry struct {
	id    string
	seq   uint64
	sink  Sink
	pub   *flow.Publisher[sse.Event]
	sub   flow.Subscription // set by sinkWriter.OnSubscribe
	drops atomic.Int64
	once  sync.Once
	done  chan struct{}
}

// New creates a Broadcaster.
func New(opts ...Option) *Broadcaster {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.log == nil {
		o.log = logger.WithComponent("broadcast")
	}
	if o.metrics == nil {
		o.metrics = observability.NopStreamMetrics()
	}
	return &Broadcaster{
		opts:    o,
		log:     o.log,
		entries: make(map[string]*entry),
	}
}

// Register adds sink and returns its id. backlog is queued for the sink
// ahead of any event broadcast after Register returns, which lets a caller
// replay missed events without a gap.
func (b *Broadcaster) Register(sink Sink, backlog ...sse.Event) (string, error) {
	if sink == nil {
		return "", errors.InvalidInput("sink", "sink must not be nil")
	}

	e := &entry{
		id:   uuid.NewString(),
		sink: sink,
		done: make(chan struct{}),
	}
	e.pub = flow.NewPublisher[sse.Event](
		flow.WithSingleSubscriber(),
		flow.WithBufferSize(b.opts.bufferSize),
		flow.WithOverflow(b.opts.overflow),
		flow.WithOnDrop(func(any) {
			e.drops.Add(1)
			b.opts.metrics.ItemDropped(context.Background(), "broadcast")
		}),
	)
	sub, err := e.pub.Subscribe(&sinkWriter{b: b, e: e})
	if err != nil {
		return "", err
	}
	for _, ev := range backlog {
		_ = e.pub.Emit(ev)
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		sub.Cancel()
		return "", ErrClosed
	}
	b.seq++
	e.seq = b.seq
	b.entries[e.id] = e
	count := len(b.entries)
	b.mu.Unlock()

	b.opts.metrics.SinkRegistered(context.Background())
	b.log.Debug("sink registered", logger.Fields(logger.FieldSinkID, e.id, "sinks", count))
	return e.id, nil
}

// Broadcast queues ev for every registered sink and returns how many sinks
// it was queued for. After Close it does nothing and returns 0.
func (b *Broadcaster) Broadcast(ev sse.Event) int {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return 0
	}
	snapshot := make([]*entry, 0, len(b.entries))
	for _, e := range b.entries {
		snapshot = append(snapshot, e)
	}
	b.mu.RUnlock()

	queued := 0
	for _, e := range snapshot {
		before := e.drops.Load()
		if err := e.pub.Emit(ev); err != nil {
			continue
		}
		if b.opts.overflow == flow.OverflowDropNewest && e.drops.Load() != before {
			continue
		}
		queued++
	}

	b.opts.metrics.EventBroadcast(context.Background(), queued)
	return queued
}

// Unregister removes the sink with id after its queued events have been
// written. It reports whether the sink was registered.
func (b *Broadcaster) Unregister(id string) bool {
	b.mu.Lock()
	e, ok := b.entries[id]
	if ok {
		delete(b.entries, id)
	}
	b.mu.Unlock()
	if !ok {
		return false
	}
	e.pub.Complete()
	return true
}

// OnException adds a listener for sinks removed after a write failure.
func (b *Broadcaster) OnException(fn ExceptionListener) {
	if fn == nil {
		return
	}
	b.listenerMu.Lock()
	b.onException = append(b.onException, fn)
	b.listenerMu.Unlock()
}

// OnClose adds a listener for sinks leaving the broadcaster.
func (b *Broadcaster) OnClose(fn CloseListener) {
	if fn == nil {
		return
	}
	b.listenerMu.Lock()
	b.onClose = append(b.onClose, fn)
	b.listenerMu.Unlock()
}

// Close completes every sink's stream and waits for the queued events to
// be written and the sinks closed. It is safe to call more than once.
func (b *Broadcaster) Close() {
	_ = b.Shutdown(context.Background())
}

// Shutdown is Close bounded by ctx. Sinks still draining when ctx ends
// are cancelled and closed without their remaining events.
func (b *Broadcaster) Shutdown(ctx context.Context) error {
	b.mu.Lock()
	b.closed = true
	pending := make([]*entry, 0, len(b.entries))
	for _, e := range b.entries {
		pending = append(pending, e)
	}
	b.entries = make(map[string]*entry)
	b.mu.Unlock()

	for _, e := range pending {
		e.pub.Complete()
	}

	for i, e := range pending {
		select {
		case <-e.done:
		case <-ctx.Done():
			for _, rest := range pending[i:] {
				rest.sub.Cancel()
				go b.finish(rest, nil)
			}
			b.log.Warn("shutdown interrupted, dropping queued events",
				logger.Fields("remaining", len(pending)-i))
			return ctx.Err()
		}
	}
	if len(pending) > 0 {
		b.log.Info("broadcaster closed", logger.Fields("sinks", len(pending)))
	}
	return nil
}

// Len returns the number of registered sinks.
func (b *Broadcaster) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.entries)
}

// IDs returns the registered sink ids in registration order.
func (b *Broadcaster) IDs() []string {
	b.mu.RLock()
	entries := make([]*entry, 0, len(b.entries))
	for _, e := range b.entries {
		entries = append(entries, e)
	}
	b.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })
	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.id
	}
	return ids
}

// Closed reports whether Close has been called.
func (b *Broadcaster) Closed() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.closed
}

// fail removes e after a write error.
func (b *Broadcaster) fail(e *entry, err error) {
	b.mu.Lock()
	if b.entries[e.id] == e {
		delete(b.entries, e.id)
	}
	b.mu.Unlock()
	e.sub.Cancel()
	b.finish(e, err)
}

// finish closes e's sink and notifies listeners. Only the first call per
// entry has any effect.
func (b *Broadcaster) finish(e *entry, cause error) {
	e.once.Do(func() {
		defer close(e.done)

		if err := e.sink.Close(); err != nil {
			b.log.Debug("sink close failed", logger.Fields(logger.FieldSinkID, e.id, logger.FieldError, err.Error()))
		}

		b.listenerMu.Lock()
		exceptions := append([]ExceptionListener(nil), b.onException...)
		closes := append([]CloseListener(nil), b.onClose...)
		b.listenerMu.Unlock()

		reason := "closed"
		if cause != nil {
			reason = "failed"
			b.log.Warn("sink removed after write failure", logger.Fields(
				logger.FieldSinkID, e.id, logger.FieldError, cause.Error()))
			for _, fn := range exceptions {
				b.notify(func() { fn(e.id, e.sink, cause) })
			}
		} else {
			b.log.Debug("sink closed", logger.Fields(logger.FieldSinkID, e.id))
		}
		for _, fn := range closes {
			b.notify(func() { fn(e.id, e.sink) })
		}
		b.opts.metrics.SinkRemoved(context.Background(), reason)
	})
}

// notify runs a listener, containing any panic it raises.
func (b *Broadcaster) notify(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("listener panicked", logger.Fields("panic", fmt.Sprint(r)))
		}
	}()
	fn()
}
