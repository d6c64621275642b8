package sse

import (
	"bytes"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/kbukum/streamkit/errors"
)

// Writer frames events onto an io.Writer. Each call writes one complete
// frame and flushes it when the writer supports flushing.
type Writer struct {
	w   io.Writer
	buf bytes.Buffer
}

// NewWriter creates a Writer over w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// WriteEvent writes ev as a single frame. Names and ids may not contain
// line breaks.
func (w *Writer) WriteEvent(ev Event) error {
	if strings.ContainsAny(ev.Name, "\r\n") {
		return errors.InvalidInput("event", "event name contains a line break")
	}
	if strings.ContainsAny(ev.ID, "\r\n\x00") {
		return errors.InvalidInput("id", "event id contains a line break or NUL")
	}

	w.buf.Reset()
	if ev.Comment != "" {
		writeLines(&w.buf, ":", ev.Comment)
	}
	if ev.HasID || ev.ID != "" {
		w.buf.WriteString("id: ")
		w.buf.WriteString(ev.ID)
		w.buf.WriteByte('\n')
	}
	if ev.Name != "" {
		w.buf.WriteString("event: ")
		w.buf.WriteString(ev.Name)
		w.buf.WriteByte('\n')
	}
	if ev.Retry > 0 {
		writeRetry(&w.buf, ev.Retry)
	}
	// Named events always carry a data line so readers dispatch them.
	if ev.Data != "" || ev.HasData || ev.Name != "" {
		writeLines(&w.buf, "data:", ev.Data)
	}
	w.buf.WriteByte('\n')
	return w.flush()
}

// WriteComment writes a comment-only frame, typically a keep-alive.
func (w *Writer) WriteComment(text string) error {
	w.buf.Reset()
	writeLines(&w.buf, ":", text)
	w.buf.WriteByte('\n')
	return w.flush()
}

// WriteRetry tells the client how long to wait before reconnecting.
func (w *Writer) WriteRetry(d time.Duration) error {
	if d <= 0 {
		return errors.InvalidInput("retry", "retry delay must be positive")
	}
	w.buf.Reset()
	writeRetry(&w.buf, d)
	w.buf.WriteByte('\n')
	return w.flush()
}

func (w *Writer) flush() error {
	if _, err := w.w.Write(w.buf.Bytes()); err != nil {
		return err
	}
	switch f := w.w.(type) {
	case http.Flusher:
		f.Flush()
	case interface{ Flush() error }:
		return f.Flush()
	}
	return nil
}

func writeRetry(buf *bytes.Buffer, d time.Duration) {
	buf.WriteString("retry: ")
	buf.WriteString(strconv.FormatInt(d.Milliseconds(), 10))
	buf.WriteByte('\n')
}

// writeLines writes one prefixed line per line of text, normalising CRLF
// and CR to LF.
func writeLines(buf *bytes.Buffer, prefix, text string) {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	for _, line := range strings.Split(text, "\n") {
		buf.WriteString(prefix)
		if line != "" {
			buf.WriteByte(' ')
			buf.WriteString(line)
		}
		buf.WriteByte('\n')
	}
}
