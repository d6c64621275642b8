package sse

import (
	"bufio"
	"errors"
	"io"
	"strings"
	"testing"
	"time"
)

func readAll(t *testing.T, input string) ([]Event, error) {
	t.Helper()
	r := NewReader(strings.NewReader(input))
	var events []Event
	for {
		ev, err := r.Next()
		if err != nil {
			var perr *ParseError
			if errors.As(err, &perr) {
				continue
			}
			if err == io.EOF {
				return events, nil
			}
			return events, err
		}
		events = append(events, ev)
	}
}

func TestReader_SingleEvent(t *testing.T) {
	r := NewReader(strings.NewReader("data: hello world\n\n"))

	ev, err := r.Next()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev.Data != "hello world" {
		t.Errorf("got data %q, want %q", ev.Data, "hello world")
	}
	if ev.Type() != EventTypeMessage {
		t.Errorf("type = %q, want %q", ev.Type(), EventTypeMessage)
	}

	if _, err := r.Next(); err != io.EOF {
		t.Errorf("expected io.EOF, got %v", err)
	}
}

func TestReader_AllFields(t *testing.T) {
	input := ": hello\nid: 42\nevent: update\nretry: 5000\ndata: line1\ndata: line2\n\n"
	r := NewReader(strings.NewReader(input))

	ev, err := r.Next()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ev.HasID || ev.ID != "42" {
		t.Errorf("id = %q (has=%v), want 42", ev.ID, ev.HasID)
	}
	if ev.Name != "update" {
		t.Errorf("name = %q, want update", ev.Name)
	}
	if ev.Retry != 5*time.Second {
		t.Errorf("retry = %v, want 5s", ev.Retry)
	}
	if ev.Data != "line1\nline2" {
		t.Errorf("data = %q", ev.Data)
	}
	if ev.Comment != "hello" {
		t.Errorf("comment = %q", ev.Comment)
	}
}

func TestReader_MultipleEvents(t *testing.T) {
	events, err := readAll(t, "data: first\n\n\n\ndata: second\n\n")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events) != 2 || events[0].Data != "first" || events[1].Data != "second" {
		t.Errorf("unexpected events %+v", events)
	}
}

func TestReader_LineEndings(t *testing.T) {
	for name, input := range map[string]string{
		"lf":   "data: a\ndata: b\n\n",
		"crlf": "data: a\r\ndata: b\r\n\r\n",
		"cr":   "data: a\rdata: b\r\r",
	} {
		t.Run(name, func(t *testing.T) {
			events, err := readAll(t, input)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(events) != 1 || events[0].Data != "a\nb" {
				t.Errorf("unexpected events %+v", events)
			}
		})
	}
}

func TestReader_StripsByteOrderMark(t *testing.T) {
	events, err := readAll(t, "\ufeffdata: x\n\n")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events) != 1 || events[0].Data != "x" {
		t.Errorf("unexpected events %+v", events)
	}
}

func TestReader_EmptyIDResets(t *testing.T) {
	r := NewReader(strings.NewReader("id\ndata: x\n\n"))
	ev, err := r.Next()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ev.HasID || ev.ID != "" {
		t.Errorf("expected empty id present, got %q (has=%v)", ev.ID, ev.HasID)
	}
}

func TestReader_CommentOnlyFrame(t *testing.T) {
	r := NewReader(strings.NewReader(": keepalive\n\n"))
	ev, err := r.Next()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev.Comment != "keepalive" || ev.Dispatchable() {
		t.Errorf("unexpected frame %+v", ev)
	}
}

func TestReader_DataFieldDecidesDispatch(t *testing.T) {
	out, err := readAll(t, "event: ping\n\nevent: ping\ndata:\n\n")
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 frames, got %d", len(out))
	}
	if out[0].Dispatchable() {
		t.Errorf("frame without data dispatched: %+v", out[0])
	}
	if !out[1].Dispatchable() || !out[1].HasData || out[1].Data != "" {
		t.Errorf("empty data field not dispatched: %+v", out[1])
	}
}

func TestReader_UnknownFieldIgnored(t *testing.T) {
	events, err := readAll(t, "foo: bar\ndata: x\n\n")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events) != 1 || events[0].Data != "x" {
		t.Errorf("unexpected events %+v", events)
	}
}

func TestReader_MalformedRetry(t *testing.T) {
	r := NewReader(strings.NewReader("retry: soon\ndata: dropped\n\ndata: kept\n\n"))

	_, err := r.Next()
	var perr *ParseError
	if !errors.As(err, &perr) {
		t.Fatalf("expected *ParseError, got %v", err)
	}
	if perr.Field != "retry" || perr.Line != 1 {
		t.Errorf("unexpected parse error %+v", perr)
	}

	ev, err := r.Next()
	if err != nil {
		t.Fatalf("unexpected error after parse error: %v", err)
	}
	if ev.Data != "kept" {
		t.Errorf("data = %q, want kept", ev.Data)
	}
}

func TestReader_IDWithNUL(t *testing.T) {
	r := NewReader(strings.NewReader("id: a\x00b\ndata: x\n\n"))
	_, err := r.Next()
	var perr *ParseError
	if !errors.As(err, &perr) || perr.Field != "id" {
		t.Fatalf("expected id parse error, got %v", err)
	}
}

func TestReader_UnexpectedEOF(t *testing.T) {
	r := NewReader(strings.NewReader("data: complete\n\nid: 7\ndata: partial"))

	ev, err := r.Next()
	if err != nil || ev.Data != "complete" {
		t.Fatalf("unexpected first frame %+v, %v", ev, err)
	}
	if _, err := r.Next(); err != io.ErrUnexpectedEOF {
		t.Errorf("expected io.ErrUnexpectedEOF, got %v", err)
	}
}

func TestReader_EmptyStream(t *testing.T) {
	if _, err := NewReader(strings.NewReader("")).Next(); err != io.EOF {
		t.Errorf("expected io.EOF, got %v", err)
	}
}

func TestReader_MaxLineSize(t *testing.T) {
	input := "data: " + strings.Repeat("x", 100) + "\n\n"
	_, err := NewReader(strings.NewReader(input), WithMaxLineSize(32)).Next()
	if !errors.Is(err, bufio.ErrTooLong) {
		t.Errorf("expected bufio.ErrTooLong, got %v", err)
	}
}

func TestParseLine(t *testing.T) {
	tests := []struct {
		line  string
		field string
		value string
	}{
		{"data: hello", "data", "hello"},
		{"data:hello", "data", "hello"},
		{"data:  two", "data", " two"},
		{"event: msg", "event", "msg"},
		{"id: 1", "id", "1"},
		{"retry: 3000", "retry", "3000"},
		{"fieldonly", "fieldonly", ""},
		{"data:", "data", ""},
	}
	for _, tt := range tests {
		f, v := parseLine(tt.line)
		if f != tt.field || v != tt.value {
			t.Errorf("parseLine(%q) = (%q, %q), want (%q, %q)", tt.line, f, v, tt.field, tt.value)
		}
	}
}

func TestParseRetry(t *testing.T) {
	tests := []struct {
		value   string
		want    time.Duration
		wantErr bool
	}{
		{"0", 0, false},
		{"1500", 1500 * time.Millisecond, false},
		{"", 0, true},
		{"-1", 0, true},
		{"1.5", 0, true},
		{"99999999999999999999", 0, true},
	}
	for _, tt := range tests {
		got, err := parseRetry(tt.value)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseRetry(%q) error = %v, wantErr %v", tt.value, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("parseRetry(%q) = %v, want %v", tt.value, got, tt.want)
		}
	}
}
