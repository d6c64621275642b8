package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/juju/clock/testclock"

	"github.com/kbukum/streamkit/broadcast"
	"github.com/kbukum/streamkit/component"
	"github.com/kbukum/streamkit/errors"
	"github.com/kbukum/streamkit/exchange"
	"github.com/kbukum/streamkit/logger"
	"github.com/kbukum/streamkit/sse"
)

const waitTimeout = 2 * time.Second

func init() { gin.SetMode(gin.TestMode) }

type fixture struct {
	srv  *Server
	http *httptest.Server
	b    *broadcast.Broadcaster
	reg  *exchange.Registry[string]
	clk  *testclock.Clock
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	b := broadcast.New(broadcast.WithLogger(logger.Nop()))
	reg := exchange.NewRegistry[string](
		exchange.Config{DefaultTimeout: time.Minute, MaxTimeout: time.Minute},
		exchange.WithLogger(logger.Nop()),
	)
	clk := testclock.NewClock(time.Now())
	all := append([]Option{
		WithBroadcaster(b),
		WithExchanges(reg),
		WithLogger(logger.Nop()),
		WithClock(clk),
	}, opts...)
	s := New(Config{}, all...)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		s.beginShutdown()
		ts.Close()
		b.Close()
		reg.CancelAll()
	})
	return &fixture{srv: s, http: ts, b: b, reg: reg, clk: clk}
}

type envelope struct {
	Data  json.RawMessage   `json:"data"`
	Error *errors.ErrorBody `json:"error"`
}

func do(t *testing.T, method, url string, body any, header ...string) (*http.Response, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatal(err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var env envelope
	if resp.StatusCode != http.StatusNoContent {
		_ = json.NewDecoder(resp.Body).Decode(&env)
	}
	return resp, env
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(waitTimeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// stream is a client reading frames off GET /events.
type stream struct {
	resp   *http.Response
	frames chan sse.Event
}

func openStream(t *testing.T, base, lastID string) *stream {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, base+"/events", http.NoBody)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Accept", sse.ContentType)
	if lastID != "" {
		req.Header.Set(sse.HeaderLastEventID, lastID)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET /events = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != sse.ContentType {
		t.Fatalf("Content-Type = %q", ct)
	}

	st := &stream{resp: resp, frames: make(chan sse.Event, 64)}
	go func() {
		defer close(st.frames)
		r := sse.NewReader(resp.Body)
		for {
			ev, err := r.Next()
			if err != nil {
				return
			}
			st.frames <- ev
		}
	}()
	return st
}

func (st *stream) next(t *testing.T) sse.Event {
	t.Helper()
	select {
	case ev, ok := <-st.frames:
		if !ok {
			t.Fatal("stream ended")
		}
		return ev
	case <-time.After(waitTimeout):
		t.Fatal("no frame received")
	}
	return sse.Event{}
}

func publish(t *testing.T, base string, req PublishRequest) PublishResponse {
	t.Helper()
	resp, env := do(t, http.MethodPost, base+"/events", req)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("POST /events = %d (%+v)", resp.StatusCode, env.Error)
	}
	var out PublishResponse
	if err := json.Unmarshal(env.Data, &out); err != nil {
		t.Fatal(err)
	}
	return out
}

func TestEvents_NotAcceptable(t *testing.T) {
	f := newFixture(t)
	resp, env := do(t, http.MethodGet, f.http.URL+"/events", nil, "Accept", "application/json")
	if resp.StatusCode != http.StatusNotAcceptable {
		t.Fatalf("status = %d, want 406", resp.StatusCode)
	}
	if env.Error == nil || env.Error.Code != errors.ErrCodeNotAcceptable {
		t.Fatalf("error = %+v", env.Error)
	}
}

func TestEvents_PublishAndStream(t *testing.T) {
	f := newFixture(t)
	st := openStream(t, f.http.URL, "")

	if first := st.next(t); first.Retry != 3*time.Second {
		t.Fatalf("first frame retry = %v, want 3s", first.Retry)
	}
	waitFor(t, "stream registration", func() bool { return f.b.Len() == 1 })

	out := publish(t, f.http.URL, PublishRequest{Event: "greeting", Data: "hello\nworld"})
	if out.ID != "1" || out.Delivered != 1 {
		t.Fatalf("publish = %+v, want id 1 delivered 1", out)
	}

	ev := st.next(t)
	if ev.ID != "1" || ev.Name != "greeting" || ev.Data != "hello\nworld" {
		t.Fatalf("event = %+v", ev)
	}
}

func TestEvents_ResumeFromLastEventID(t *testing.T) {
	f := newFixture(t)
	for i := 1; i <= 3; i++ {
		if out := publish(t, f.http.URL, PublishRequest{Data: strconv.Itoa(i)}); out.Delivered != 0 {
			t.Fatalf("delivered = %d with no streams", out.Delivered)
		}
	}

	st := openStream(t, f.http.URL, "1")
	st.next(t) // retry hint
	for _, want := range []string{"2", "3"} {
		if ev := st.next(t); ev.ID != want {
			t.Fatalf("replayed id = %q, want %q", ev.ID, want)
		}
	}

	waitFor(t, "stream registration", func() bool { return f.b.Len() == 1 })
	publish(t, f.http.URL, PublishRequest{Data: "4"})
	if ev := st.next(t); ev.ID != "4" {
		t.Fatalf("live id = %q, want 4", ev.ID)
	}
}

func TestEvents_PublishValidation(t *testing.T) {
	f := newFixture(t)
	tests := []struct {
		name string
		body any
	}{
		{"malformed json", "{"},
		{"empty event", PublishRequest{}},
		{"multi-line name", PublishRequest{Event: "a\nb", Data: "x"}},
		{"negative retry", PublishRequest{Data: "x", RetryMs: -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, env := do(t, http.MethodPost, f.http.URL+"/events", tt.body)
			if resp.StatusCode != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", resp.StatusCode)
			}
			if env.Error == nil || env.Error.Code != errors.ErrCodeInvalidInput {
				t.Fatalf("error = %+v", env.Error)
			}
		})
	}
}

func TestEvents_KeepAlive(t *testing.T) {
	f := newFixture(t)
	st := openStream(t, f.http.URL, "")
	st.next(t)

	if err := f.clk.WaitAdvance(15*time.Second, waitTimeout, 1); err != nil {
		t.Fatal(err)
	}
	if ev := st.next(t); ev.Comment != sse.EventTypeKeepAlive {
		t.Fatalf("frame = %+v, want keep-alive comment", ev)
	}
}

func TestEvents_ClientDisconnectUnregisters(t *testing.T) {
	f := newFixture(t)
	st := openStream(t, f.http.URL, "")
	st.next(t)
	waitFor(t, "stream registration", func() bool { return f.b.Len() == 1 })

	st.resp.Body.Close()
	waitFor(t, "stream removal", func() bool { return f.b.Len() == 0 })
}

func TestEvents_BroadcasterClosed(t *testing.T) {
	f := newFixture(t)
	f.b.Close()

	resp, env := do(t, http.MethodGet, f.http.URL+"/events", nil, "Accept", sse.ContentType)
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", resp.StatusCode)
	}
	if got := resp.Header.Get("Retry-After"); got != "3" {
		t.Errorf("Retry-After = %q, want 3", got)
	}
	if env.Error == nil || env.Error.Code != errors.ErrCodeServiceUnavailable {
		t.Fatalf("error = %+v", env.Error)
	}
	// JSON numbers decode as float64.
	if got := env.Error.Details["retry_after_ms"]; got != float64(3000) {
		t.Errorf("retry_after_ms = %v, want 3000", got)
	}
}

type awaitResult struct {
	resp *http.Response
	env  envelope
}

func awaitAsync(t *testing.T, url string) <-chan awaitResult {
	ch := make(chan awaitResult, 1)
	go func() {
		resp, err := http.Get(url)
		if err != nil {
			ch <- awaitResult{}
			return
		}
		defer resp.Body.Close()
		var env envelope
		_ = json.NewDecoder(resp.Body).Decode(&env)
		ch <- awaitResult{resp: resp, env: env}
	}()
	return ch
}

func receive(t *testing.T, ch <-chan awaitResult) awaitResult {
	t.Helper()
	select {
	case r := <-ch:
		if r.resp == nil {
			t.Fatal("await request failed")
		}
		return r
	case <-time.After(waitTimeout):
		t.Fatal("await did not return")
	}
	return awaitResult{}
}

func TestExchanges_ResumeDeliversValue(t *testing.T) {
	f := newFixture(t)
	pending := awaitAsync(t, f.http.URL+"/exchanges/job-1?timeout=5s")
	waitFor(t, "suspension", func() bool { return f.reg.Len() == 1 })

	resp, _ := do(t, http.MethodPost, f.http.URL+"/exchanges/job-1", ResumeRequest{Value: "done"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("resume status = %d", resp.StatusCode)
	}

	r := receive(t, pending)
	if r.resp.StatusCode != http.StatusOK {
		t.Fatalf("await status = %d", r.resp.StatusCode)
	}
	var out ExchangeResponse
	if err := json.Unmarshal(r.env.Data, &out); err != nil {
		t.Fatal(err)
	}
	if out.ID != "job-1" || out.Value != "done" || out.State != "resumed" {
		t.Fatalf("exchange = %+v", out)
	}
}

func TestExchanges_TimeoutIs503(t *testing.T) {
	f := newFixture(t)
	resp, env := do(t, http.MethodGet, f.http.URL+"/exchanges/slow?timeout=20ms", nil)
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", resp.StatusCode)
	}
	if got := resp.Header.Get("Retry-After"); got != "3" {
		t.Errorf("Retry-After = %q, want 3", got)
	}
	if env.Error == nil || env.Error.Code != errors.ErrCodeServiceUnavailable {
		t.Fatalf("error = %+v", env.Error)
	}
	if env.Error.Details["retry_after_ms"] != float64(3000) {
		t.Errorf("details = %v", env.Error.Details)
	}
	if f.reg.Len() != 0 {
		t.Errorf("registry still holds %d exchanges", f.reg.Len())
	}
}

func TestExchanges_TimeoutFallback(t *testing.T) {
	f := newFixture(t, WithFallback("later"))
	resp, env := do(t, http.MethodGet, f.http.URL+"/exchanges/slow?timeout=20ms", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var out ExchangeResponse
	if err := json.Unmarshal(env.Data, &out); err != nil {
		t.Fatal(err)
	}
	if out.Value != "later" || out.State != "timed_out" {
		t.Fatalf("exchange = %+v", out)
	}
}

func TestExchanges_DuplicateAndCancel(t *testing.T) {
	f := newFixture(t)
	pending := awaitAsync(t, f.http.URL+"/exchanges/dup?timeout=5s")
	waitFor(t, "suspension", func() bool { return f.reg.Len() == 1 })

	resp, env := do(t, http.MethodGet, f.http.URL+"/exchanges/dup", nil)
	if resp.StatusCode != http.StatusConflict || env.Error == nil || env.Error.Code != errors.ErrCodeConflict {
		t.Fatalf("duplicate = %d %+v, want 409 CONFLICT", resp.StatusCode, env.Error)
	}

	resp, _ = do(t, http.MethodGet, f.http.URL+"/exchanges", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list status = %d", resp.StatusCode)
	}

	resp, _ = do(t, http.MethodDelete, f.http.URL+"/exchanges/dup", nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("cancel status = %d, want 204", resp.StatusCode)
	}

	r := receive(t, pending)
	if r.resp.StatusCode != http.StatusServiceUnavailable || r.env.Error == nil || r.env.Error.Code != errors.ErrCodeCancelled {
		t.Fatalf("cancelled await = %d %+v", r.resp.StatusCode, r.env.Error)
	}
}

func TestExchanges_UnknownID(t *testing.T) {
	f := newFixture(t)
	for _, method := range []string{http.MethodPost, http.MethodDelete} {
		var body any
		if method == http.MethodPost {
			body = ResumeRequest{Value: "x"}
		}
		resp, env := do(t, method, f.http.URL+"/exchanges/ghost", body)
		if resp.StatusCode != http.StatusNotFound || env.Error == nil || env.Error.Code != errors.ErrCodeNotFound {
			t.Errorf("%s unknown = %d %+v, want 404", method, resp.StatusCode, env.Error)
		}
	}
}

func TestExchanges_BadTimeout(t *testing.T) {
	f := newFixture(t)
	resp, _ := do(t, http.MethodGet, f.http.URL+"/exchanges/x?timeout=soon", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestExchanges_NotConfigured(t *testing.T) {
	s := New(Config{}, WithLogger(logger.Nop()))
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/exchanges/x", http.NoBody))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rr.Code)
	}
}

func TestHealthAndReadiness(t *testing.T) {
	var status atomic.Value
	status.Store(component.StatusDegraded)
	f := newFixture(t, WithHealthChecker(func(context.Context) []component.Health {
		return []component.Health{{Name: "source", Status: status.Load().(component.HealthStatus)}}
	}))

	tests := []struct {
		status    component.HealthStatus
		health    int
		readiness int
	}{
		{component.StatusDegraded, http.StatusOK, http.StatusOK},
		{component.StatusUnhealthy, http.StatusServiceUnavailable, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		status.Store(tt.status)
		if resp, err := http.Get(f.http.URL + "/health"); err != nil || resp.StatusCode != tt.health {
			t.Errorf("%s: /health = %v %v, want %d", tt.status, resp, err, tt.health)
		} else {
			resp.Body.Close()
		}
		if resp, err := http.Get(f.http.URL + "/ready"); err != nil || resp.StatusCode != tt.readiness {
			t.Errorf("%s: /ready = %v %v, want %d", tt.status, resp, err, tt.readiness)
		} else {
			resp.Body.Close()
		}
	}
}

func TestRequestIDEchoed(t *testing.T) {
	f := newFixture(t)
	resp, _ := do(t, http.MethodGet, f.http.URL+"/health", nil, "X-Request-Id", "abc-123")
	if got := resp.Header.Get("X-Request-Id"); got != "abc-123" {
		t.Fatalf("X-Request-Id = %q", got)
	}
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

func TestServerComponent_Lifecycle(t *testing.T) {
	b := broadcast.New(broadcast.WithLogger(logger.Nop()))
	defer b.Close()
	s := New(Config{Host: "127.0.0.1", Port: freePort(t)}, WithBroadcaster(b), WithLogger(logger.Nop()))
	sc := NewComponent(s)

	ctx := context.Background()
	if h := sc.Health(ctx); h.Status != component.StatusUnhealthy {
		t.Fatalf("health before start = %s", h.Status)
	}
	if err := sc.Start(ctx); err != nil {
		t.Fatal(err)
	}
	if h := sc.Health(ctx); h.Status != component.StatusHealthy {
		t.Fatalf("health after start = %s", h.Status)
	}

	st := openStream(t, "http://"+s.Addr(), "")
	st.next(t)
	waitFor(t, "stream registration", func() bool { return b.Len() == 1 })

	stopCtx, cancel := context.WithTimeout(ctx, waitTimeout)
	defer cancel()
	if err := sc.Stop(stopCtx); err != nil {
		t.Fatalf("Stop with an open stream = %v", err)
	}
	deadline := time.After(waitTimeout)
	for {
		select {
		case _, ok := <-st.frames:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("stream still open after Stop")
		}
	}
}

func TestServerComponent_Routes(t *testing.T) {
	sc := NewComponent(New(Config{}, WithLogger(logger.Nop())))
	routes := sc.Routes()
	if len(routes) == 0 {
		t.Fatal("no routes")
	}
	if routes[0].Path != "/events" || routes[0].Method != http.MethodGet {
		t.Errorf("first route = %+v, want GET /events", routes[0])
	}
	if last := routes[len(routes)-1]; !systemPaths[last.Path] {
		t.Errorf("last route = %+v, want a system route", last)
	}
	if d := sc.Describe(); d.Port != 8080 || d.Type != "server" {
		t.Errorf("Describe() = %+v", d)
	}
}

func TestConfig_Validate(t *testing.T) {
	cfg := Config{Port: 70000}
	if err := cfg.Validate(); err == nil {
		t.Error("expected port out of range to fail")
	}
	cfg = Config{}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults invalid: %v", err)
	}
	if cfg.Addr() != ":8080" {
		t.Errorf("Addr() = %q", cfg.Addr())
	}
}

func TestRetryAfterSeconds(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, "1"},
		{500 * time.Millisecond, "1"},
		{3 * time.Second, "3"},
		{3100 * time.Millisecond, "4"},
	}
	for _, tt := range tests {
		if got := retryAfterSeconds(tt.in); got != tt.want {
			t.Errorf("retryAfterSeconds(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
