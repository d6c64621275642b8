package server

import (
	stderrors "errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"

	"github.com/kbukum/streamkit/errors"
	"github.com/kbukum/streamkit/exchange"
	"github.com/kbukum/streamkit/logger"
	"github.com/kbukum/streamkit/observability"
)

// ResumeRequest is the body of POST /exchanges/:id.
type ResumeRequest struct {
	Value string `json:"value"`
}

// ExchangeResponse describes one exchange.
type ExchangeResponse struct {
	ID    string `json:"id"`
	State string `json:"state"`
	Value string `json:"value,omitempty"`
}

func (s *Server) registry(c *gin.Context) (*exchange.Registry[string], bool) {
	if s.opts.exchanges == nil {
		RespondUnavailable(c, errors.ServiceUnavailableRetryAfter("exchange registry", s.config.RetryAfter), s.config.RetryAfter)
		return nil, false
	}
	return s.opts.exchanges, true
}

// listExchanges serves GET /exchanges with the ids of suspended exchanges.
func (s *Server) listExchanges(c *gin.Context) {
	reg, ok := s.registry(c)
	if !ok {
		return
	}
	RespondOK(c, gin.H{"ids": reg.IDs()})
}

// awaitExchange serves GET /exchanges/:id. The request parks on a new
// exchange until another request resumes or cancels it, or its timeout
// passes. ?timeout= takes a Go duration and is capped by the registry.
func (s *Server) awaitExchange(c *gin.Context) {
	reg, ok := s.registry(c)
	if !ok {
		return
	}
	id := c.Param("id")

	var timeout time.Duration
	if raw := c.Query("timeout"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d < 0 {
			RespondWithError(c, errors.InvalidInput("timeout", "timeout must be a non-negative duration such as 30s"))
			return
		}
		timeout = d
	}

	ex, err := reg.Suspend(id, timeout)
	if err != nil {
		RespondWithError(c, err)
		return
	}
	if s.opts.fallback != nil {
		_ = ex.SetFallback(*s.opts.fallback)
	}

	// The exchange deadline bounds this response, not the server's.
	if err := http.NewResponseController(c.Writer).SetWriteDeadline(time.Time{}); err != nil {
		s.log.Debug("could not disable write deadline", logger.ErrorFields("set_write_deadline", err))
	}

	ctx, op := observability.StartOperation(c.Request.Context(), observability.SpanExchange,
		attribute.String("exchange.id", ex.ID()),
	)
	select {
	case <-ex.Done():
	case <-ctx.Done():
		ex.Cancel()
		op.End(ctx.Err())
		return
	case <-s.shutdown:
		ex.Cancel()
	}

	v, err := ex.Result()
	state := ex.State().String()
	op.SetAttributes(attribute.String(observability.AttrOutcome, state))
	op.End(err)

	switch {
	case err == nil:
		RespondOK(c, ExchangeResponse{ID: ex.ID(), State: state, Value: v})
	case stderrors.Is(err, exchange.ErrUnavailable):
		RespondUnavailable(c, errors.ServiceUnavailableRetryAfter("exchange", s.config.RetryAfter).WithCause(err), s.config.RetryAfter)
	case stderrors.Is(err, exchange.ErrCancelled):
		RespondUnavailable(c, err, s.config.RetryAfter)
	default:
		RespondWithError(c, err)
	}
}

// resumeExchange serves POST /exchanges/:id, resolving a parked request
// with the body's value.
func (s *Server) resumeExchange(c *gin.Context) {
	reg, ok := s.registry(c)
	if !ok {
		return
	}
	var req ResumeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondWithError(c, errors.InvalidInput("body", err.Error()))
		return
	}
	id := c.Param("id")
	if err := reg.Resume(id, req.Value); err != nil {
		RespondWithError(c, err)
		return
	}
	RespondOK(c, ExchangeResponse{ID: id, State: exchange.StateResumed.String()})
}

// cancelExchange serves DELETE /exchanges/:id.
func (s *Server) cancelExchange(c *gin.Context) {
	reg, ok := s.registry(c)
	if !ok {
		return
	}
	id := c.Param("id")
	if !reg.Cancel(id) {
		RespondWithError(c, errors.NotFound("exchange", id))
		return
	}
	RespondNoContent(c)
}
