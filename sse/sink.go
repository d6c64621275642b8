package sse

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/kbukum/streamkit/errors"
	"github.com/kbukum/streamkit/exchange"
	"github.com/kbukum/streamkit/logger"
)

// HTTPSink streams events to one client over an http.ResponseWriter.
//
// Writes are serialized and refused once the request context ends or the
// sink is closed. The sink's lifetime is an exchange: Close resumes it and
// a client disconnect cancels it, so a handler can park on Wait until
// either happens.
type HTTPSink struct {
	ctx     context.Context
	w       *Writer
	life    *exchange.Exchange[struct{}]
	stop    func() bool
	remote  string
	created time.Time

	mu     sync.Mutex
	closed bool
}

// NewHTTPSink prepares w for streaming and returns a sink bound to r's
// context. It writes the response headers immediately.
func NewHTTPSink(w http.ResponseWriter, r *http.Request) (*HTTPSink, error) {
	if _, ok := w.(http.Flusher); !ok {
		return nil, errors.Internal(nil).WithDetail("reason", "streaming not supported")
	}

	// Streams outlive the server's WriteTimeout.
	rc := http.NewResponseController(w)
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		logger.WithComponent("sse").Debug("could not disable write deadline", logger.ErrorFields("set_write_deadline", err))
	}

	h := w.Header()
	h.Set("Content-Type", ContentType)
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	w.(http.Flusher).Flush()

	ctx := r.Context()
	s := &HTTPSink{
		ctx:     ctx,
		w:       NewWriter(w),
		life:    exchange.New[struct{}](),
		remote:  r.RemoteAddr,
		created: time.Now(),
	}
	s.stop = context.AfterFunc(ctx, func() { s.life.Cancel() })
	return s, nil
}

// Send writes ev to the client.
func (s *HTTPSink) Send(ctx context.Context, ev Event) error {
	return s.write(ctx, func() error { return s.w.WriteEvent(ev) })
}

// SendComment writes a comment frame.
func (s *HTTPSink) SendComment(ctx context.Context, text string) error {
	return s.write(ctx, func() error { return s.w.WriteComment(text) })
}

// SendRetry writes a retry hint.
func (s *HTTPSink) SendRetry(ctx context.Context, d time.Duration) error {
	return s.write(ctx, func() error { return s.w.WriteRetry(d) })
}

func (s *HTTPSink) write(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.Closed("sse sink")
	}
	if err := s.ctx.Err(); err != nil {
		return errors.Closed("sse sink").WithCause(err)
	}
	return fn()
}

// Close stops further writes and releases Wait. It waits for an in-flight
// write to finish, after which the ResponseWriter is no longer touched.
func (s *HTTPSink) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.stop()
	_ = s.life.Resume(struct{}{})
	return nil
}

// Done is closed when the sink is closed or the client goes away.
func (s *HTTPSink) Done() <-chan struct{} { return s.life.Done() }

// Wait blocks until the sink is closed or the client disconnects. It
// returns nil after Close and exchange.ErrCancelled after a disconnect.
func (s *HTTPSink) Wait(ctx context.Context) error {
	_, err := s.life.Await(ctx)
	return err
}

// RemoteAddr returns the client address.
func (s *HTTPSink) RemoteAddr() string { return s.remote }

// Age returns how long the sink has been open.
func (s *HTTPSink) Age() time.Duration { return time.Since(s.created) }
