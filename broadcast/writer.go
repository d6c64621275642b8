package broadcast

import (
	"context"
	"fmt"

	"github.com/kbukum/streamkit/errors"
	"github.com/kbukum/streamkit/flow"
	"github.com/kbukum/streamkit/sse"
)

// sinkWriter is the flow consumer feeding one sink. It requests a single
// event at a time so the sink's buffer, not the writer, absorbs bursts.
type sinkWriter struct {
	b *Broadcaster
	e *entry
}

func (w *sinkWriter) OnSubscribe(s flow.Subscription) {
	w.e.sub = s
	s.Request(1)
}

func (w *sinkWriter) OnNext(ev sse.Event) {
	if err := w.send(ev); err != nil {
		w.b.fail(w.e, err)
		return
	}
	w.e.sub.Request(1)
}

func (w *sinkWriter) send(ev sse.Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Internal(fmt.Errorf("sink panicked: %v", r))
		}
	}()
	ctx, cancel := context.WithTimeout(context.Background(), w.b.opts.sendTimeout)
	defer cancel()
	return w.e.sink.Send(ctx, ev)
}

func (w *sinkWriter) OnError(err error) {
	w.b.fail(w.e, err)
}

func (w *sinkWriter) OnComplete() {
	w.b.finish(w.e, nil)
}
