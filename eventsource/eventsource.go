package eventsource

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"slices"
	"sync"
	"time"

	"github.com/juju/clock"
	"go.opentelemetry.io/otel/attribute"

	"github.com/kbukum/streamkit/errors"
	"github.com/kbukum/streamkit/flow"
	"github.com/kbukum/streamkit/logger"
	"github.com/kbukum/streamkit/observability"
	"github.com/kbukum/streamkit/sse"
)

// EventSource reads an event stream and reconnects when it drops.
type EventSource struct {
	transport Transport
	opts      options
	log       *logger.Logger
	metrics   *observability.StreamMetrics
	clock     clock.Clock
	retry     *retryPolicy
	pub       *flow.Publisher[sse.Event]

	mu          sync.Mutex
	state       State
	lastEventID string
	cancel      context.CancelFunc
	body        io.ReadCloser
	done        chan struct{}

	cbMu       sync.RWMutex
	onEvent    []func(sse.Event)
	onError    []func(error)
	onComplete []func()
}

// New creates an idle EventSource reading from transport.
func New(transport Transport, opts ...Option) *EventSource {
	o := options{clock: clock.WallClock}
	for _, opt := range opts {
		opt(&o)
	}
	if o.log == nil {
		o.log = logger.WithComponent("eventsource")
	}
	if o.metrics == nil {
		o.metrics = observability.NopStreamMetrics()
	}

	pubOpts := []flow.Option{}
	if o.bufferSize > 0 {
		pubOpts = append(pubOpts,
			flow.WithBufferSize(o.bufferSize),
			flow.WithOverflow(flow.OverflowDropOldest),
			flow.WithOnDrop(func(any) { o.metrics.ItemDropped(context.Background(), "eventsource") }),
		)
	}

	return &EventSource{
		transport:   transport,
		opts:        o,
		log:         o.log,
		metrics:     o.metrics,
		clock:       o.clock,
		retry:       newRetryPolicy(o.reconnectDelay, o.maxRetries),
		pub:         flow.NewPublisher[sse.Event](pubOpts...),
		lastEventID: o.lastEventID,
		done:        make(chan struct{}),
	}
}

// Register adds event, error and completion callbacks in one call. Nil
// callbacks are skipped.
func (es *EventSource) Register(onEvent func(sse.Event), onError func(error), onComplete func()) {
	es.OnEvent(onEvent)
	es.OnError(onError)
	es.OnComplete(onComplete)
}

// OnEvent adds a callback for every dispatched event. Callbacks run on the
// reading goroutine in arrival order.
func (es *EventSource) OnEvent(fn func(sse.Event)) {
	if fn == nil {
		return
	}
	es.cbMu.Lock()
	es.onEvent = append(es.onEvent, fn)
	es.cbMu.Unlock()
}

// OnError adds a callback for parse errors and the error that closed the
// source, if any.
func (es *EventSource) OnError(fn func(error)) {
	if fn == nil {
		return
	}
	es.cbMu.Lock()
	es.onError = append(es.onError, fn)
	es.cbMu.Unlock()
}

// OnComplete adds a callback run when the source closes without error.
func (es *EventSource) OnComplete(fn func()) {
	if fn == nil {
		return
	}
	es.cbMu.Lock()
	es.onComplete = append(es.onComplete, fn)
	es.cbMu.Unlock()
}

// Subscribe attaches a back-pressured consumer to the dispatched events.
// Events dispatched while no consumer is attached are not replayed.
func (es *EventSource) Subscribe(c flow.Consumes[sse.Event]) (flow.Subscription, error) {
	return es.pub.Subscribe(c)
}

// Open starts connecting in the background. It fails with ErrAlreadyOpen
// unless the source is idle. The source runs until Close or until ctx
// ends.
func (es *EventSource) Open(ctx context.Context) error {
	es.mu.Lock()
	if es.state != StateIdle {
		es.mu.Unlock()
		return ErrAlreadyOpen
	}
	runCtx, cancel := context.WithCancel(ctx)
	es.state = StateConnecting
	es.cancel = cancel
	es.mu.Unlock()

	go es.run(runCtx)
	return nil
}

// Close closes the source, waiting up to DefaultCloseTimeout for the
// reading goroutine to exit.
func (es *EventSource) Close() bool {
	return es.CloseTimeout(DefaultCloseTimeout)
}

// CloseTimeout closes the source and reports whether the reading goroutine
// exited within d.
func (es *EventSource) CloseTimeout(d time.Duration) bool {
	es.mu.Lock()
	switch es.state {
	case StateIdle:
		es.state = StateClosed
		es.mu.Unlock()
		close(es.done)
		es.pub.Complete()
		es.notifyComplete()
		return true
	case StateClosed:
		es.mu.Unlock()
	default:
		es.cancel()
		body := es.body
		es.mu.Unlock()
		if body != nil {
			_ = body.Close()
		}
	}

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-es.done:
		return true
	case <-timer.C:
		es.log.Warn("close timed out", logger.DurationFields("close", d))
		return false
	}
}

// Done is closed once the source has reached StateClosed.
func (es *EventSource) Done() <-chan struct{} { return es.done }

// State returns the connection state.
func (es *EventSource) State() State {
	es.mu.Lock()
	defer es.mu.Unlock()
	return es.state
}

// LastEventID returns the id of the last complete event that carried one.
func (es *EventSource) LastEventID() string {
	es.mu.Lock()
	defer es.mu.Unlock()
	return es.lastEventID
}

// ReconnectDelay returns the delay the next reconnect will normally wait.
func (es *EventSource) ReconnectDelay() time.Duration {
	return es.retry.current()
}

func (es *EventSource) setState(s State) {
	es.mu.Lock()
	es.state = s
	es.mu.Unlock()
}

func (es *EventSource) run(ctx context.Context) {
	var (
		finalErr error
		attempt  int
	)

	for {
		attempt++
		body, err := es.connect(ctx, attempt)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			if stderrors.Is(err, ErrNoContent) {
				es.log.Info("server ended the stream")
				break
			}
			if !retryable(err) {
				finalErr = err
				break
			}
			failures, exhausted := es.retry.failed()
			if exhausted {
				finalErr = errors.RetriesExhausted(failures, err)
				break
			}
			var ue *UnavailableError
			if stderrors.As(err, &ue) {
				es.retry.overrideOnce(ue.RetryAfter)
			}
			es.setState(StateReconnecting)
			es.metrics.Reconnect(ctx, "connect_failed")
			if !es.sleep(ctx, es.retry.next(), failures, err) {
				break
			}
			continue
		}

		es.retry.connected()
		if !es.opened(ctx, body) {
			_ = body.Close()
			break
		}
		err = es.consume(ctx, body)
		es.detach()
		_ = body.Close()
		if ctx.Err() != nil {
			break
		}

		es.setState(StateReconnecting)
		es.metrics.Reconnect(ctx, "stream_ended")
		if !es.sleep(ctx, es.retry.next(), 0, err) {
			break
		}
	}

	es.finish(finalErr)
}

// connect performs one traced connection attempt.
func (es *EventSource) connect(ctx context.Context, attempt int) (io.ReadCloser, error) {
	lastID := es.LastEventID()
	opCtx, op := observability.StartOperation(ctx, observability.SpanConnect,
		attribute.Int(observability.AttrAttempt, attempt),
		attribute.String(observability.AttrLastEventID, lastID),
	)
	body, err := es.transport.Connect(opCtx, lastID)
	op.End(err)
	if err != nil {
		es.log.Warn("connect failed", logger.MergeWithError(
			logger.Fields(logger.FieldAttempt, attempt, logger.FieldLastEventID, lastID), err))
		return nil, err
	}
	es.log.Debug("connected", logger.Fields(logger.FieldAttempt, attempt, logger.FieldLastEventID, lastID))
	return body, nil
}

// opened publishes body so Close can interrupt a blocked read. It reports
// false when the source was closed meanwhile. Close cancels ctx under
// es.mu, so either this sees the cancellation or Close sees the body.
func (es *EventSource) opened(ctx context.Context, body io.ReadCloser) bool {
	es.mu.Lock()
	defer es.mu.Unlock()
	if ctx.Err() != nil {
		return false
	}
	es.state = StateOpen
	es.body = body
	return true
}

func (es *EventSource) detach() {
	es.mu.Lock()
	es.body = nil
	es.mu.Unlock()
}

// consume reads frames until the stream ends. Malformed frames are
// reported and skipped.
func (es *EventSource) consume(ctx context.Context, body io.Reader) error {
	var readerOpts []sse.ReaderOption
	if es.opts.maxLineSize > 0 {
		readerOpts = append(readerOpts, sse.WithMaxLineSize(es.opts.maxLineSize))
	}
	r := sse.NewReader(body, readerOpts...)
	for {
		ev, err := r.Next()
		if err != nil {
			var perr *sse.ParseError
			if stderrors.As(err, &perr) {
				es.metrics.ParseError(ctx)
				es.log.Debug("skipping malformed frame", logger.ErrorFields("parse", perr))
				es.notifyError(perr)
				continue
			}
			if ctx.Err() == nil {
				es.log.Info("stream ended", logger.Fields("reason", endReason(err)))
			}
			return err
		}

		if ev.Retry > 0 {
			es.retry.setDelay(ev.Retry)
		}
		if ev.HasID {
			es.mu.Lock()
			es.lastEventID = ev.ID
			es.mu.Unlock()
		}
		if !ev.Dispatchable() {
			continue
		}
		es.metrics.EventReceived(ctx)
		es.dispatch(ev)
	}
}

// sleep waits d on the source clock. It returns false if ctx ended first.
func (es *EventSource) sleep(ctx context.Context, d time.Duration, failures int, cause error) bool {
	fields := logger.Fields(logger.FieldDelay, d.String(), "failures", failures)
	es.log.Info("reconnecting", logger.MergeWithError(fields, cause))

	timer := es.clock.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.Chan():
		es.setState(StateConnecting)
		return true
	case <-ctx.Done():
		return false
	}
}

// finish moves to StateClosed and delivers the terminal signal.
func (es *EventSource) finish(err error) {
	es.mu.Lock()
	es.state = StateClosed
	es.body = nil
	cancel := es.cancel
	es.mu.Unlock()
	cancel()

	if err != nil {
		es.log.Error("event source closed", logger.ErrorFields("run", err))
		es.pub.Fail(err)
		es.notifyError(err)
	} else {
		es.log.Debug("event source closed")
		es.pub.Complete()
		es.notifyComplete()
	}
	close(es.done)
}

func (es *EventSource) dispatch(ev sse.Event) {
	es.cbMu.RLock()
	callbacks := slices.Clone(es.onEvent)
	es.cbMu.RUnlock()
	for _, fn := range callbacks {
		es.safely(func() { fn(ev) })
	}
	_ = es.pub.Emit(ev)
}

func (es *EventSource) notifyError(err error) {
	es.cbMu.RLock()
	callbacks := slices.Clone(es.onError)
	es.cbMu.RUnlock()
	for _, fn := range callbacks {
		es.safely(func() { fn(err) })
	}
}

func (es *EventSource) notifyComplete() {
	es.cbMu.RLock()
	callbacks := slices.Clone(es.onComplete)
	es.cbMu.RUnlock()
	for _, fn := range callbacks {
		es.safely(fn)
	}
}

func (es *EventSource) safely(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			es.log.Error("callback panicked", logger.Fields("panic", fmt.Sprint(r)))
		}
	}()
	fn()
}

func endReason(err error) string {
	switch {
	case err == io.EOF:
		return "eof"
	case stderrors.Is(err, io.ErrUnexpectedEOF):
		return "eof_mid_frame"
	default:
		return err.Error()
	}
}
