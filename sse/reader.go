package sse

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// DefaultMaxLineSize bounds a single line of an event stream.
const DefaultMaxLineSize = 1 << 20

// ParseError reports a frame that contained a malformed field. The frame is
// discarded and the Reader continues with the next one.
type ParseError struct {
	Line  int
	Field string
	Value string
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("sse: line %d: invalid %s field %q: %v", e.Line, e.Field, e.Value, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

var (
	errNotDigits = errors.New("not a non-negative integer")
	errNullInID  = errors.New("contains NUL")
)

// ReaderOption configures a Reader.
type ReaderOption func(*readerOptions)

type readerOptions struct {
	maxLineSize int
}

// WithMaxLineSize limits the length of one line. Longer lines make Next
// fail with bufio.ErrTooLong.
func WithMaxLineSize(n int) ReaderOption {
	return func(o *readerOptions) {
		if n > 0 {
			o.maxLineSize = n
		}
	}
}

// Reader splits an event stream into frames.
type Reader struct {
	scanner *bufio.Scanner
	line    int
}

// NewReader creates a Reader over r.
func NewReader(r io.Reader, opts ...ReaderOption) *Reader {
	o := readerOptions{maxLineSize: DefaultMaxLineSize}
	for _, opt := range opts {
		opt(&o)
	}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, min(4096, o.maxLineSize)), o.maxLineSize)
	scanner.Split(scanLines)
	return &Reader{scanner: scanner}
}

// Next returns the next complete frame. It returns io.EOF when the stream
// ends on a frame boundary and io.ErrUnexpectedEOF when it ends inside a
// frame, in which case the partial frame is dropped. A frame with a
// malformed field is returned as a *ParseError.
func (r *Reader) Next() (Event, error) {
	var (
		ev       Event
		data     []string
		comments []string
		started  bool
		bad      *ParseError
	)

	for r.scanner.Scan() {
		line := r.scanner.Text()
		r.line++
		if r.line == 1 {
			line = strings.TrimPrefix(line, "\ufeff")
		}

		if line == "" {
			if !started {
				continue
			}
			if bad != nil {
				return Event{}, bad
			}
			ev.Data = strings.Join(data, "\n")
			ev.Comment = strings.Join(comments, "\n")
			return ev, nil
		}
		started = true

		if line[0] == ':' {
			comments = append(comments, strings.TrimPrefix(line[1:], " "))
			continue
		}

		field, value := parseLine(line)
		switch field {
		case "data":
			data = append(data, value)
			ev.HasData = true
		case "event":
			ev.Name = value
		case "id":
			if strings.IndexByte(value, 0) >= 0 {
				if bad == nil {
					bad = &ParseError{Line: r.line, Field: field, Value: value, Err: errNullInID}
				}
				continue
			}
			ev.ID = value
			ev.HasID = true
		case "retry":
			ms, err := parseRetry(value)
			if err != nil {
				if bad == nil {
					bad = &ParseError{Line: r.line, Field: field, Value: value, Err: err}
				}
				continue
			}
			ev.Retry = ms
		}
	}

	if err := r.scanner.Err(); err != nil {
		return Event{}, err
	}
	if started {
		return Event{}, io.ErrUnexpectedEOF
	}
	return Event{}, io.EOF
}

// parseLine splits a line into field and value, stripping one leading
// space from the value.
func parseLine(line string) (field, value string) {
	idx := strings.IndexByte(line, ':')
	if idx < 0 {
		return line, ""
	}
	field = line[:idx]
	value = line[idx+1:]
	if value != "" && value[0] == ' ' {
		value = value[1:]
	}
	return field, value
}

func parseRetry(value string) (time.Duration, error) {
	if value == "" {
		return 0, errNotDigits
	}
	for i := 0; i < len(value); i++ {
		if value[i] < '0' || value[i] > '9' {
			return 0, errNotDigits
		}
	}
	ms, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, err
	}
	if ms > int64(time.Duration(1<<63-1)/time.Millisecond) {
		return 0, strconv.ErrRange
	}
	return time.Duration(ms) * time.Millisecond, nil
}

// scanLines is a bufio.SplitFunc accepting LF, CRLF and lone CR endings.
func scanLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		if data[i] == '\n' {
			return i + 1, data[:i], nil
		}
		if i+1 < len(data) {
			if data[i+1] == '\n' {
				return i + 2, data[:i], nil
			}
			return i + 1, data[:i], nil
		}
		if atEOF {
			return i + 1, data[:i], nil
		}
		return 0, nil, nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}
