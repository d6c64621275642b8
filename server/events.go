package server

import (
	"strconv"
	"strings"
	"time"

	"github.com/elnormous/contenttype"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"

	"github.com/kbukum/streamkit/errors"
	"github.com/kbukum/streamkit/logger"
	"github.com/kbukum/streamkit/observability"
	"github.com/kbukum/streamkit/server/middleware"
	"github.com/kbukum/streamkit/sse"
	"github.com/kbukum/streamkit/validation"
)

// eventStreamTypes are the media types GET /events can produce.
var eventStreamTypes = []contenttype.MediaType{contenttype.NewMediaType(sse.ContentType)}

// PublishRequest is the body of POST /events.
type PublishRequest struct {
	Event   string `json:"event" validate:"max=256"`
	Data    string `json:"data"`
	RetryMs int64  `json:"retry_ms" validate:"gte=0"`
}

// PublishResponse is returned by POST /events.
type PublishResponse struct {
	ID        string `json:"id"`
	Delivered int    `json:"delivered"`
}

// streamEvents serves GET /events: it negotiates text/event-stream, replays
// what the client missed since Last-Event-ID, then streams live events with
// keep-alive comments until the client leaves or the server stops.
func (s *Server) streamEvents(c *gin.Context) {
	if _, _, err := contenttype.GetAcceptableMediaType(c.Request, eventStreamTypes); err != nil {
		RespondWithError(c, errors.NotAcceptable(sse.ContentType))
		return
	}
	b := s.opts.broadcaster
	if b == nil || b.Closed() {
		RespondUnavailable(c, errors.ServiceUnavailableRetryAfter("event stream", s.config.RetryAfter), s.config.RetryAfter)
		return
	}

	sink, err := sse.NewHTTPSink(c.Writer, c.Request)
	if err != nil {
		RespondWithError(c, err)
		return
	}
	defer sink.Close()

	ctx := c.Request.Context()
	if err := sink.SendRetry(ctx, s.config.RetryAfter); err != nil {
		return
	}

	lastID := c.GetHeader(sse.HeaderLastEventID)
	log := s.log.WithFields(logger.Fields(
		logger.FieldRequestID, middleware.RequestIDFrom(ctx),
		"remote", sink.RemoteAddr(),
	))

	s.pubMu.Lock()
	var backlog []sse.Event
	if lastID != "" {
		var found bool
		backlog, found = s.replay.Since(lastID)
		if !found {
			log.Warn("last event id no longer retained, replaying all", logger.Fields(logger.FieldLastEventID, lastID, "replayed", len(backlog)))
		}
	}
	id, err := b.Register(sink, backlog...)
	s.pubMu.Unlock()
	if err != nil {
		log.Warn("stream refused", logger.ErrorFields("register", err))
		return
	}
	defer b.Unregister(id)
	log.Debug("stream opened", logger.Fields(logger.FieldSinkID, id, logger.FieldLastEventID, lastID, "replayed", len(backlog)))

	keepAlive := s.opts.clock.NewTimer(s.config.KeepAlive)
	defer keepAlive.Stop()
	for {
		select {
		case <-sink.Done():
			log.Debug("stream closed", logger.Fields(logger.FieldSinkID, id, logger.FieldDuration, sink.Age().Milliseconds()))
			return
		case <-s.shutdown:
			return
		case <-keepAlive.Chan():
			if err := sink.SendComment(ctx, sse.EventTypeKeepAlive); err != nil {
				return
			}
			keepAlive.Reset(s.config.KeepAlive)
		}
	}
}

// publishEvent serves POST /events: it assigns the next id, keeps the event
// for replay and broadcasts it.
func (s *Server) publishEvent(c *gin.Context) {
	var req PublishRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondWithError(c, errors.InvalidInput("body", err.Error()))
		return
	}
	if err := validation.Validate(req); err != nil {
		RespondWithError(c, err)
		return
	}
	if strings.ContainsAny(req.Event, "\r\n") {
		RespondWithError(c, errors.InvalidInput("event", "event name must be a single line"))
		return
	}
	if req.Event == "" && req.Data == "" {
		RespondWithError(c, errors.InvalidInput("data", "event or data is required"))
		return
	}
	b := s.opts.broadcaster
	if b == nil || b.Closed() {
		RespondUnavailable(c, errors.ServiceUnavailableRetryAfter("event stream", s.config.RetryAfter), s.config.RetryAfter)
		return
	}

	_, op := observability.StartOperation(c.Request.Context(), observability.SpanBroadcast,
		attribute.String(observability.AttrRequestID, middleware.RequestIDFrom(c.Request.Context())),
	)

	s.pubMu.Lock()
	ev := sse.Event{
		ID:    strconv.FormatUint(s.nextID.Add(1), 10),
		HasID: true,
		Name:  req.Event,
		Data:  req.Data,
		Retry: time.Duration(req.RetryMs) * time.Millisecond,
	}
	s.replay.Append(ev)
	delivered := b.Broadcast(ev)
	s.pubMu.Unlock()

	op.SetAttributes(attribute.String("event.id", ev.ID), attribute.Int("delivered", delivered))
	op.End(nil)
	s.log.Debug("event published", logger.Fields(logger.FieldEventID, ev.ID, "delivered", delivered))

	RespondAccepted(c, PublishResponse{ID: ev.ID, Delivered: delivered})
}
