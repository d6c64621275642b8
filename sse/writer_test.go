package sse

import (
	"bytes"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestWriter_WriteEvent(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	ev := Event{Name: "update", Data: "a\nb", Retry: 2 * time.Second}.WithID("7")
	if err := w.WriteEvent(ev); err != nil {
		t.Fatalf("WriteEvent: %v", err)
	}

	want := "id: 7\nevent: update\nretry: 2000\ndata: a\ndata: b\n\n"
	if buf.String() != want {
		t.Errorf("got %q, want %q", buf.String(), want)
	}
}

func TestWriter_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	in := []Event{
		{Data: "plain"},
		Event{Name: "multi", Data: "x\r\ny\rz", Comment: "note"}.WithID("2"),
		Event{Data: "reset"}.WithID(""),
	}
	for _, ev := range in {
		if err := w.WriteEvent(ev); err != nil {
			t.Fatalf("WriteEvent: %v", err)
		}
	}

	out, err := readAll(t, buf.String())
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if len(out) != 3 {
		t.Fatalf("expected 3 events, got %d", len(out))
	}
	if out[1].Data != "x\ny\nz" || out[1].Comment != "note" || out[1].ID != "2" {
		t.Errorf("unexpected event %+v", out[1])
	}
	if !out[2].HasID || out[2].ID != "" {
		t.Errorf("expected empty id to survive, got %+v", out[2])
	}
}

func TestWriter_NamedEventWithoutData(t *testing.T) {
	var buf bytes.Buffer
	if err := NewWriter(&buf).WriteEvent(Event{Name: "ping"}); err != nil {
		t.Fatal(err)
	}
	if got := buf.String(); got != "event: ping\ndata:\n\n" {
		t.Errorf("got %q", got)
	}
	out, err := readAll(t, buf.String())
	if err != nil || len(out) != 1 || !out[0].Dispatchable() {
		t.Errorf("read back %+v, %v", out, err)
	}
}

func TestWriter_RejectsLineBreaks(t *testing.T) {
	w := NewWriter(&bytes.Buffer{})
	if err := w.WriteEvent(Event{Name: "a\nb"}); err == nil {
		t.Error("expected error for name with newline")
	}
	if err := w.WriteEvent(Event{ID: "1\r", HasID: true}); err == nil {
		t.Error("expected error for id with carriage return")
	}
}

func TestWriter_CommentAndRetry(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	if err := w.WriteComment(EventTypeKeepAlive); err != nil {
		t.Fatal(err)
	}
	if err := w.WriteRetry(1500 * time.Millisecond); err != nil {
		t.Fatal(err)
	}
	if err := w.WriteRetry(0); err == nil {
		t.Error("expected error for zero retry")
	}
	if got := buf.String(); got != ": keepalive\n\nretry: 1500\n\n" {
		t.Errorf("got %q", got)
	}
}

func TestWriter_FlushesResponseWriter(t *testing.T) {
	rec := httptest.NewRecorder()
	w := NewWriter(rec)
	if err := w.WriteEvent(Event{Data: "x"}); err != nil {
		t.Fatal(err)
	}
	if !rec.Flushed {
		t.Error("expected recorder to be flushed")
	}
	if !strings.Contains(rec.Body.String(), "data: x\n\n") {
		t.Errorf("unexpected body %q", rec.Body.String())
	}
}
