package eventsource

import (
	"context"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/elnormous/contenttype"

	"github.com/kbukum/streamkit/errors"
	"github.com/kbukum/streamkit/sse"
)

// Transport opens one streaming connection. lastEventID is empty on the
// first connection. The returned body is closed by the caller.
type Transport interface {
	Connect(ctx context.Context, lastEventID string) (io.ReadCloser, error)
}

// TransportFunc adapts a function to Transport.
type TransportFunc func(ctx context.Context, lastEventID string) (io.ReadCloser, error)

// Connect calls f.
func (f TransportFunc) Connect(ctx context.Context, lastEventID string) (io.ReadCloser, error) {
	return f(ctx, lastEventID)
}

var eventStreamMediaType = contenttype.NewMediaType(sse.ContentType)

// HTTPTransport connects with a streaming GET request.
type HTTPTransport struct {
	url    string
	client *http.Client
	header http.Header
	now    func() time.Time
}

// TransportOption configures an HTTPTransport.
type TransportOption func(*HTTPTransport)

// WithHTTPClient sets the client used for requests. It should not set a
// Timeout, which would cut long-lived streams.
func WithHTTPClient(c *http.Client) TransportOption {
	return func(t *HTTPTransport) {
		if c != nil {
			t.client = c
		}
	}
}

// WithHeader adds a request header to every connection.
func WithHeader(key, value string) TransportOption {
	return func(t *HTTPTransport) { t.header.Add(key, value) }
}

// NewHTTPTransport creates a transport for url.
func NewHTTPTransport(url string, opts ...TransportOption) *HTTPTransport {
	t := &HTTPTransport{
		url:    url,
		client: &http.Client{},
		header: make(http.Header),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// URL returns the stream URL.
func (t *HTTPTransport) URL() string { return t.url }

// Connect issues the request and validates the response.
func (t *HTTPTransport) Connect(ctx context.Context, lastEventID string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.url, http.NoBody)
	if err != nil {
		return nil, errors.InvalidInput("url", err.Error())
	}
	for k, vs := range t.header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Accept", sse.ContentType)
	req.Header.Set("Cache-Control", "no-cache")
	if lastEventID != "" {
		req.Header.Set(sse.HeaderLastEventID, lastEventID)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, errors.ConnectionFailed(t.url, err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
		ct := resp.Header.Get("Content-Type")
		mt := contenttype.NewMediaType(ct)
		if !strings.EqualFold(mt.Type, eventStreamMediaType.Type) || !strings.EqualFold(mt.Subtype, eventStreamMediaType.Subtype) {
			drain(resp.Body)
			return nil, &StatusError{StatusCode: resp.StatusCode, ContentType: ct}
		}
		return resp.Body, nil
	case http.StatusNoContent:
		drain(resp.Body)
		return nil, ErrNoContent
	case http.StatusServiceUnavailable:
		retryAfter := parseRetryAfter(resp.Header.Get("Retry-After"), t.now())
		drain(resp.Body)
		return nil, &UnavailableError{RetryAfter: retryAfter}
	default:
		drain(resp.Body)
		return nil, &StatusError{StatusCode: resp.StatusCode, ContentType: resp.Header.Get("Content-Type")}
	}
}

// parseRetryAfter reads a Retry-After value given either in seconds or as
// an HTTP date. Invalid or past values yield zero.
// maxRetryAfterSecs keeps the delay within time.Duration.
const maxRetryAfterSecs = math.MaxInt64 / int64(time.Second)

func parseRetryAfter(value string, now time.Time) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if secs, err := strconv.ParseInt(value, 10, 64); err == nil {
		if secs <= 0 {
			return 0
		}
		if secs > maxRetryAfterSecs {
			secs = maxRetryAfterSecs
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}

func drain(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, io.LimitReader(body, 4096))
	_ = body.Close()
}
