package server

import (
	"context"
	"net"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/gin-gonic/gin"
	"github.com/juju/clock"
	"github.com/rs/zerolog"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/kbukum/streamkit/errors"
	"github.com/kbukum/streamkit/logger"
	"github.com/kbukum/streamkit/observability"
	"github.com/kbukum/streamkit/server/endpoint"
	"github.com/kbukum/streamkit/server/middleware"
	"github.com/kbukum/streamkit/sse"
)

// Server is the streamkit HTTP surface: a Gin engine mounted on a ServeMux,
// wrapped in the request middleware and served over HTTP/1.1 or h2c.
type Server struct {
	httpServer *http.Server
	engine     *gin.Engine
	mux        *http.ServeMux
	config     Config
	opts       options
	log        *logger.Logger

	replay *sse.ReplayBuffer
	// pubMu orders publishing against stream registration so a resuming
	// client sees every event exactly once.
	pubMu  sync.Mutex
	nextID atomic.Uint64

	shutdown     chan struct{}
	shutdownOnce sync.Once

	mu       sync.Mutex
	listener net.Listener
}

// New creates a Server and registers its routes. cfg defaults are applied.
func New(cfg Config, opts ...Option) *Server {
	cfg.ApplyDefaults()
	o := options{service: "streamkit"}
	for _, opt := range opts {
		opt(&o)
	}
	if o.log == nil {
		o.log = logger.WithComponent("server")
	}
	if o.metrics == nil {
		o.metrics = observability.NopStreamMetrics()
	}
	if o.clock == nil {
		o.clock = clock.WallClock
	}

	if gin.Mode() != gin.TestMode {
		if zerolog.GlobalLevel() <= zerolog.DebugLevel {
			gin.SetMode(gin.DebugMode)
		} else {
			gin.SetMode(gin.ReleaseMode)
		}
	}

	engine := gin.New()
	engine.HandleMethodNotAllowed = true
	engine.Use(middleware.Metrics(o.metrics))

	mux := http.NewServeMux()
	mux.Handle("/", engine)

	s := &Server{
		engine:   engine,
		mux:      mux,
		config:   cfg,
		opts:     o,
		log:      o.log,
		replay:   sse.NewReplayBuffer(cfg.ReplaySize),
		shutdown: make(chan struct{}),
	}
	s.registerRoutes()

	handler := middleware.Chain(
		middleware.RequestID(),
		middleware.RequestLogger(s.log),
		middleware.Recovery(s.log),
		middleware.CORS(&s.config.CORS),
		middleware.BodySizeLimit(cfg.MaxBodySize),
	)(mux)

	h2s := &http2.Server{
		MaxConcurrentStreams: 250,
		IdleTimeout:          cfg.IdleTimeout,
	}
	s.httpServer = &http.Server{
		Addr:         cfg.Addr(),
		Handler:      h2c.NewHandler(handler, h2s),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	s.httpServer.RegisterOnShutdown(s.beginShutdown)
	return s
}

// Handler returns the fully wrapped handler, for tests and custom listeners.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// GinEngine returns the underlying Gin engine for extra routes.
func (s *Server) GinEngine() *gin.Engine {
	return s.engine
}

// Handle mounts an http.Handler at pattern on the root ServeMux, next to
// the Gin routes.
func (s *Server) Handle(pattern string, handler http.Handler) {
	s.mux.Handle(pattern, handler)
	s.log.Debug("handler mounted", logger.Fields("pattern", pattern))
}

// Start binds the port and begins serving. It returns once the listener is
// bound; serving continues in a goroutine.
func (s *Server) Start(ctx context.Context) error {
	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", s.httpServer.Addr)
	if err != nil {
		return errors.ConnectionFailed(s.httpServer.Addr, err).WithDetail("operation", "listen")
	}
	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.log.Error("server error", logger.ErrorFields("serve", err))
		}
	}()

	s.log.Info("HTTP server started", logger.Fields("addr", listener.Addr().String()))
	return nil
}

// Stop ends open event streams and long polls, then shuts the server down
// within the configured shutdown timeout.
func (s *Server) Stop(ctx context.Context) error {
	s.log.Info("shutting down HTTP server")
	s.beginShutdown()

	shutdownCtx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.log.Error("server shutdown error", logger.ErrorFields("shutdown", err))
		return errors.Timeout("server shutdown").WithCause(err)
	}
	s.log.Info("HTTP server shut down")
	return nil
}

// Addr returns the bound address once started, otherwise the configured one.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.httpServer.Addr
}

// Listening reports whether Start has bound the port.
func (s *Server) Listening() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listener != nil
}

func (s *Server) beginShutdown() {
	s.shutdownOnce.Do(func() { close(s.shutdown) })
}

func (s *Server) registerRoutes() {
	s.engine.GET("/health", endpoint.Health(s.opts.service, s.opts.health))
	s.engine.GET("/ready", endpoint.Readiness(s.opts.service, s.opts.health))

	s.engine.GET("/events", s.streamEvents)
	s.engine.POST("/events", s.publishEvent)

	s.engine.GET("/exchanges", s.listExchanges)
	s.engine.GET("/exchanges/:id", s.awaitExchange)
	s.engine.POST("/exchanges/:id", s.resumeExchange)
	s.engine.DELETE("/exchanges/:id", s.cancelExchange)
}
