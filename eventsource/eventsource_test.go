package eventsource

import (
	"context"
	stderrors "errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/juju/clock/testclock"
	"go.uber.org/goleak"

	"github.com/kbukum/streamkit/errors"
	"github.com/kbukum/streamkit/flow"
	"github.com/kbukum/streamkit/sse"
)

const waitTimeout = 2 * time.Second

// step scripts one Connect call. A step with hold set keeps the
// connection open after its body until the source closes it.
type step struct {
	body string
	hold bool
	err  error
}

type scriptTransport struct {
	mu    sync.Mutex
	steps []step
	calls chan string
}

func newScript(steps ...step) *scriptTransport {
	return &scriptTransport{steps: steps, calls: make(chan string, 32)}
}

func (s *scriptTransport) Connect(ctx context.Context, lastEventID string) (io.ReadCloser, error) {
	s.mu.Lock()
	st := step{hold: true}
	if len(s.steps) > 0 {
		st = s.steps[0]
		s.steps = s.steps[1:]
	}
	s.mu.Unlock()
	s.calls <- lastEventID

	if st.err != nil {
		return nil, st.err
	}
	return &heldBody{r: strings.NewReader(st.body), hold: st.hold, ctx: ctx, closed: make(chan struct{})}, nil
}

func (s *scriptTransport) awaitCall(t *testing.T) string {
	t.Helper()
	select {
	case id := <-s.calls:
		return id
	case <-time.After(waitTimeout):
		t.Fatal("transport was not called")
		return ""
	}
}

func (s *scriptTransport) expectNoCall(t *testing.T) {
	t.Helper()
	select {
	case id := <-s.calls:
		t.Fatalf("unexpected connect (last id %q)", id)
	case <-time.After(50 * time.Millisecond):
	}
}

type heldBody struct {
	r      io.Reader
	hold   bool
	ctx    context.Context
	once   sync.Once
	closed chan struct{}
}

func (b *heldBody) Read(p []byte) (int, error) {
	n, err := b.r.Read(p)
	if err != io.EOF || !b.hold {
		return n, err
	}
	if n > 0 {
		return n, nil
	}
	select {
	case <-b.ctx.Done():
		return 0, b.ctx.Err()
	case <-b.closed:
		return 0, io.ErrClosedPipe
	}
}

func (b *heldBody) Close() error {
	b.once.Do(func() { close(b.closed) })
	return nil
}

// collector records callback invocations.
type collector struct {
	events   chan sse.Event
	errs     chan error
	complete chan struct{}
}

func collect(es *EventSource) *collector {
	c := &collector{
		events:   make(chan sse.Event, 64),
		errs:     make(chan error, 64),
		complete: make(chan struct{}, 4),
	}
	es.Register(
		func(ev sse.Event) { c.events <- ev },
		func(err error) { c.errs <- err },
		func() { c.complete <- struct{}{} },
	)
	return c
}

func (c *collector) event(t *testing.T) sse.Event {
	t.Helper()
	select {
	case ev := <-c.events:
		return ev
	case <-time.After(waitTimeout):
		t.Fatal("no event")
		return sse.Event{}
	}
}

func (c *collector) err(t *testing.T) error {
	t.Helper()
	select {
	case err := <-c.errs:
		return err
	case <-time.After(waitTimeout):
		t.Fatal("no error")
		return nil
	}
}

func awaitState(t *testing.T, es *EventSource, want State) {
	t.Helper()
	deadline := time.Now().Add(waitTimeout)
	for es.State() != want {
		if time.Now().After(deadline) {
			t.Fatalf("state = %s, want %s", es.State(), want)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestEventSource_DeliversEventsInOrder(t *testing.T) {
	defer goleak.VerifyNone(t)

	tr := newScript(step{body: "id: 1\ndata: a\n\n: ping\n\nevent: named\nid: 2\ndata: b\n\n", hold: true})
	es := New(tr)
	c := collect(es)

	if err := es.Open(context.Background()); err != nil {
		t.Fatal(err)
	}
	if id := tr.awaitCall(t); id != "" {
		t.Errorf("first connect carried last id %q", id)
	}

	first, second := c.event(t), c.event(t)
	if first.Data != "a" || second.Data != "b" || second.Type() != "named" {
		t.Errorf("unexpected events %+v %+v", first, second)
	}
	awaitState(t, es, StateOpen)
	if es.LastEventID() != "2" {
		t.Errorf("LastEventID = %q, want 2", es.LastEventID())
	}

	if !es.Close() {
		t.Fatal("Close timed out")
	}
	if es.State() != StateClosed {
		t.Errorf("state after Close = %s", es.State())
	}
	select {
	case <-c.complete:
	case <-time.After(waitTimeout):
		t.Error("complete callback not called on Close")
	}
}

func TestEventSource_OpenTwice(t *testing.T) {
	defer goleak.VerifyNone(t)

	es := New(newScript())
	if err := es.Open(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := es.Open(context.Background()); !stderrors.Is(err, ErrAlreadyOpen) {
		t.Errorf("second Open = %v, want ErrAlreadyOpen", err)
	}
	es.Close()
	if err := es.Open(context.Background()); !stderrors.Is(err, ErrAlreadyOpen) {
		t.Errorf("Open after Close = %v, want ErrAlreadyOpen", err)
	}
}

func TestEventSource_CloseIdle(t *testing.T) {
	es := New(newScript())
	c := collect(es)
	if !es.Close() {
		t.Fatal("Close of idle source returned false")
	}
	if es.State() != StateClosed {
		t.Errorf("state = %s", es.State())
	}
	select {
	case <-c.complete:
	default:
		t.Error("complete callback not called")
	}
	if !es.Close() {
		t.Error("second Close returned false")
	}
}

func TestEventSource_ReconnectSendsLastEventID(t *testing.T) {
	defer goleak.VerifyNone(t)

	clk := testclock.NewClock(time.Now())
	tr := newScript(step{body: "id: 7\ndata: x\n\n"})
	es := New(tr, WithClock(clk), WithReconnectDelay(time.Second))
	c := collect(es)

	if err := es.Open(context.Background()); err != nil {
		t.Fatal(err)
	}
	tr.awaitCall(t)
	c.event(t)

	if err := clk.WaitAdvance(time.Second, waitTimeout, 1); err != nil {
		t.Fatal(err)
	}
	if id := tr.awaitCall(t); id != "7" {
		t.Errorf("reconnect carried last id %q, want 7", id)
	}
	es.Close()
}

func TestEventSource_InitialLastEventID(t *testing.T) {
	defer goleak.VerifyNone(t)

	tr := newScript()
	es := New(tr, WithLastEventID("41"))
	if err := es.Open(context.Background()); err != nil {
		t.Fatal(err)
	}
	if id := tr.awaitCall(t); id != "41" {
		t.Errorf("first connect carried %q, want 41", id)
	}
	es.Close()
}

func TestEventSource_RetryHintDelaysReconnect(t *testing.T) {
	defer goleak.VerifyNone(t)

	clk := testclock.NewClock(time.Now())
	tr := newScript(step{body: "retry: 5000\ndata: x\n\n"})
	es := New(tr, WithClock(clk), WithReconnectDelay(100*time.Millisecond))
	collect(es)

	if err := es.Open(context.Background()); err != nil {
		t.Fatal(err)
	}
	tr.awaitCall(t)

	if err := clk.WaitAdvance(4999*time.Millisecond, waitTimeout, 1); err != nil {
		t.Fatal(err)
	}
	tr.expectNoCall(t)
	if es.ReconnectDelay() != 5*time.Second {
		t.Errorf("ReconnectDelay = %v, want 5s", es.ReconnectDelay())
	}
	awaitState(t, es, StateReconnecting)

	clk.Advance(time.Millisecond)
	tr.awaitCall(t)
	es.Close()
}

func TestEventSource_UnavailableOverridesOneAttempt(t *testing.T) {
	defer goleak.VerifyNone(t)

	clk := testclock.NewClock(time.Now())
	tr := newScript(
		step{err: &UnavailableError{RetryAfter: 10 * time.Second}},
		step{err: &UnavailableError{}},
	)
	es := New(tr, WithClock(clk), WithReconnectDelay(time.Second))
	collect(es)

	if err := es.Open(context.Background()); err != nil {
		t.Fatal(err)
	}
	tr.awaitCall(t)

	if err := clk.WaitAdvance(9*time.Second, waitTimeout, 1); err != nil {
		t.Fatal(err)
	}
	tr.expectNoCall(t)
	clk.Advance(time.Second)
	tr.awaitCall(t)

	// The override is spent; the second 503 had no hint.
	if err := clk.WaitAdvance(time.Second, waitTimeout, 1); err != nil {
		t.Fatal(err)
	}
	tr.awaitCall(t)
	if es.ReconnectDelay() != time.Second {
		t.Errorf("ReconnectDelay = %v, want 1s", es.ReconnectDelay())
	}
	es.Close()
}

func TestEventSource_MaxRetries(t *testing.T) {
	defer goleak.VerifyNone(t)

	clk := testclock.NewClock(time.Now())
	boom := errors.ConnectionFailed("test", stderrors.New("refused"))
	tr := newScript(step{err: boom}, step{err: boom}, step{err: boom})
	es := New(tr, WithClock(clk), WithReconnectDelay(time.Second), WithMaxRetries(2))
	c := collect(es)

	if err := es.Open(context.Background()); err != nil {
		t.Fatal(err)
	}
	tr.awaitCall(t)
	if err := clk.WaitAdvance(time.Second, waitTimeout, 1); err != nil {
		t.Fatal(err)
	}
	tr.awaitCall(t)

	err := c.err(t)
	if !stderrors.Is(err, ErrRetriesExhausted) {
		t.Fatalf("error = %v, want ErrRetriesExhausted", err)
	}
	select {
	case <-es.Done():
	case <-time.After(waitTimeout):
		t.Fatal("source did not close")
	}
	if es.State() != StateClosed {
		t.Errorf("state = %s", es.State())
	}
}

func TestEventSource_SuccessResetsFailures(t *testing.T) {
	defer goleak.VerifyNone(t)

	clk := testclock.NewClock(time.Now())
	boom := errors.ConnectionFailed("test", stderrors.New("refused"))
	tr := newScript(step{err: boom}, step{body: "data: ok\n\n"}, step{err: boom}, step{hold: true})
	es := New(tr, WithClock(clk), WithReconnectDelay(time.Second), WithMaxRetries(2))
	c := collect(es)

	if err := es.Open(context.Background()); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		tr.awaitCall(t)
		if err := clk.WaitAdvance(time.Second, waitTimeout, 1); err != nil {
			t.Fatal(err)
		}
	}
	tr.awaitCall(t)
	c.event(t)
	awaitState(t, es, StateOpen)
	es.Close()
}

func TestEventSource_ClientErrorIsFinal(t *testing.T) {
	defer goleak.VerifyNone(t)

	tr := newScript(step{err: &StatusError{StatusCode: 404}})
	es := New(tr)
	c := collect(es)

	if err := es.Open(context.Background()); err != nil {
		t.Fatal(err)
	}
	tr.awaitCall(t)
	var se *StatusError
	if err := c.err(t); !stderrors.As(err, &se) || se.StatusCode != 404 {
		t.Errorf("error = %v, want 404 StatusError", err)
	}
	<-es.Done()
	tr.expectNoCall(t)
}

func TestEventSource_NoContentCompletes(t *testing.T) {
	defer goleak.VerifyNone(t)

	tr := newScript(step{err: ErrNoContent})
	es := New(tr)
	c := collect(es)

	if err := es.Open(context.Background()); err != nil {
		t.Fatal(err)
	}
	select {
	case <-c.complete:
	case <-time.After(waitTimeout):
		t.Fatal("complete not called after 204")
	}
	if es.State() != StateClosed {
		t.Errorf("state = %s", es.State())
	}
}

func TestEventSource_ParseErrorContinues(t *testing.T) {
	defer goleak.VerifyNone(t)

	tr := newScript(step{body: "retry: later\ndata: bad\n\nid: 3\ndata: good\n\n", hold: true})
	es := New(tr)
	c := collect(es)

	if err := es.Open(context.Background()); err != nil {
		t.Fatal(err)
	}
	var perr *sse.ParseError
	if err := c.err(t); !stderrors.As(err, &perr) {
		t.Errorf("error = %v, want *sse.ParseError", err)
	}
	if ev := c.event(t); ev.Data != "good" {
		t.Errorf("event = %+v, want good", ev)
	}
	if es.LastEventID() != "3" {
		t.Errorf("LastEventID = %q", es.LastEventID())
	}
	es.Close()
}

func TestEventSource_PartialFrameDoesNotUpdateLastID(t *testing.T) {
	defer goleak.VerifyNone(t)

	clk := testclock.NewClock(time.Now())
	tr := newScript(step{body: "id: 1\ndata: a\n\nid: 2\ndata: cut"})
	es := New(tr, WithClock(clk), WithReconnectDelay(time.Second))
	c := collect(es)

	if err := es.Open(context.Background()); err != nil {
		t.Fatal(err)
	}
	tr.awaitCall(t)
	c.event(t)
	if err := clk.WaitAdvance(time.Second, waitTimeout, 1); err != nil {
		t.Fatal(err)
	}
	if id := tr.awaitCall(t); id != "1" {
		t.Errorf("reconnect carried %q, want 1", id)
	}
	es.Close()
}

func TestEventSource_Subscribe(t *testing.T) {
	defer goleak.VerifyNone(t)

	tr := newScript(step{body: "data: 1\n\ndata: 2\n\ndata: 3\n\n", hold: true})
	es := New(tr)

	it := flow.NewIterator[sse.Event](2)
	if _, err := es.Subscribe(it); err != nil {
		t.Fatal(err)
	}
	if err := es.Open(context.Background()); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	for _, want := range []string{"1", "2", "3"} {
		ev, ok, err := it.Next(ctx)
		if err != nil || !ok {
			t.Fatalf("Next = %v, %v", ok, err)
		}
		if ev.Data != want {
			t.Errorf("got %q, want %q", ev.Data, want)
		}
	}

	es.Close()
	if _, ok, err := it.Next(ctx); ok || err != nil {
		t.Errorf("after Close Next = %v, %v; want completion", ok, err)
	}
}

func TestEventSource_CallbackPanicContained(t *testing.T) {
	defer goleak.VerifyNone(t)

	tr := newScript(step{body: "data: x\n\n", hold: true})
	es := New(tr)
	es.OnEvent(func(sse.Event) { panic("boom") })
	c := collect(es)

	if err := es.Open(context.Background()); err != nil {
		t.Fatal(err)
	}
	if ev := c.event(t); ev.Data != "x" {
		t.Errorf("event = %+v", ev)
	}
	es.Close()
}

func TestEventSource_ContextEndsSource(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx, cancel := context.WithCancel(context.Background())
	es := New(newScript())
	if err := es.Open(ctx); err != nil {
		t.Fatal(err)
	}
	cancel()
	select {
	case <-es.Done():
	case <-time.After(waitTimeout):
		t.Fatal("source did not stop with its context")
	}
}

func TestRetryPolicy(t *testing.T) {
	p := newRetryPolicy(0, 0)
	if p.next() != DefaultReconnectDelay {
		t.Errorf("default delay = %v", p.current())
	}

	p.setDelay(2 * time.Second)
	p.overrideOnce(9 * time.Second)
	if d := p.next(); d != 9*time.Second {
		t.Errorf("override = %v, want 9s", d)
	}
	if d := p.next(); d != 2*time.Second {
		t.Errorf("after override = %v, want 2s", d)
	}

	p.setDelay(0)
	if p.current() != 2*time.Second {
		t.Error("zero delay should be ignored")
	}

	for i := 0; i < 100; i++ {
		if _, exhausted := p.failed(); exhausted {
			t.Fatal("unlimited policy reported exhaustion")
		}
	}

	q := newRetryPolicy(time.Second, 2)
	if _, exhausted := q.failed(); exhausted {
		t.Error("exhausted after one failure")
	}
	q.connected()
	if _, exhausted := q.failed(); exhausted {
		t.Error("connected did not reset failures")
	}
	if n, exhausted := q.failed(); !exhausted || n != 2 {
		t.Errorf("failed = %d, %v; want 2, true", n, exhausted)
	}
}
