package receiver

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/segmentio/ksuid"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	// RequestIDHeader carries the per-request correlation id.
	RequestIDHeader = "X-Request-ID"

	ctxRequestIDKey = "request_id"
)

type serverMetrics struct {
	registry   *prometheus.Registry
	received   prometheus.Counter
	duplicates prometheus.Counter
	skips      prometheus.Counter
}

func newServerMetrics() *serverMetrics {
	m := &serverMetrics{
		registry: prometheus.NewRegistry(),
		received: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rampfire_receiver",
			Name:      "counters_received_total",
			Help:      "Counters accepted on /api/data.",
		}),
		duplicates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rampfire_receiver",
			Name:      "duplicates_total",
			Help:      "Counters that had already been received.",
		}),
		skips: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rampfire_receiver",
			Name:      "skips_total",
			Help:      "Counters that left a gap above the highest one received.",
		}),
	}
	m.registry.MustRegister(m.received, m.duplicates, m.skips)
	return m
}

// Server is the validation receiver HTTP API.
type Server struct {
	validator *Validator
	errors    *ErrorLog
	hub       *Hub
	metrics   *serverMetrics
	logger    *zap.Logger
	now       func() time.Time
	engine    *gin.Engine
}

// ServerOption customizes a Server.
type ServerOption func(*serverOptions)

type serverOptions struct {
	tracingService string
	tracerProvider trace.TracerProvider
}

// WithTracing opens a server span per request and continues incoming trace
// context. A nil provider means the global one.
func WithTracing(service string, tp trace.TracerProvider) ServerOption {
	return func(o *serverOptions) {
		o.tracingService = service
		o.tracerProvider = tp
	}
}

// NewServer wires the routes over store. A nil logger disables logging.
func NewServer(store Store, logger *zap.Logger, opts ...ServerOption) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	var o serverOptions
	for _, opt := range opts {
		opt(&o)
	}

	s := &Server{
		validator: NewValidator(store),
		errors:    &ErrorLog{},
		hub:       NewHub(logger),
		metrics:   newServerMetrics(),
		logger:    logger,
		now:       time.Now,
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	if o.tracingService != "" {
		var mwOpts []otelgin.Option
		if o.tracerProvider != nil {
			mwOpts = append(mwOpts, otelgin.WithTracerProvider(o.tracerProvider))
		}
		engine.Use(otelgin.Middleware(o.tracingService, mwOpts...))
	}
	engine.Use(s.requestLogger())

	api := engine.Group("/api")
	api.POST("/data", s.handleData)
	api.GET("/errors", s.handleErrors)

	engine.GET("/errorHub", gin.WrapH(s.hub))
	engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.metrics.registry, promhttp.HandlerOpts{})))

	s.engine = engine
	return s
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Errors returns the accumulated error log.
func (s *Server) Errors() []ErrorRecord {
	return s.errors.List()
}

// Hub exposes the websocket broadcaster.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("receiver listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.hub.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}

func (s *Server) handleData(c *gin.Context) {
	var d Data
	if err := c.ShouldBindJSON(&d); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s.metrics.received.Inc()
	s.logger.Debug("received",
		zap.Int("counter", d.Counter),
		zap.String("run_id", d.RunID),
		zap.String("request_id", c.GetString(ctxRequestIDKey)),
	)

	err := s.validator.Check(c.Request.Context(), d)
	if err == nil {
		c.Status(http.StatusOK)
		return
	}

	var seqErr *SequenceError
	if !errors.As(err, &seqErr) {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	switch {
	case errors.Is(err, ErrDuplicate):
		s.metrics.duplicates.Inc()
	case errors.Is(err, ErrSkipped):
		s.metrics.skips.Inc()
	}

	rec := seqErr.Record(s.now())
	s.errors.Append(rec)
	s.hub.Broadcast(rec)
	s.logger.Warn(rec.ErrorMessage, zap.String("request_id", c.GetString(ctxRequestIDKey)))

	c.Status(http.StatusOK)
}

func (s *Server) handleErrors(c *gin.Context) {
	c.JSON(http.StatusOK, s.errors.List())
}

// requestLogger tags each request with a ksuid and logs it once completed.
func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = ksuid.New().String()
		}
		c.Set(ctxRequestIDKey, id)
		c.Header(RequestIDHeader, id)

		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("request_id", id),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		}
		if err := c.Errors.Last(); err != nil {
			s.logger.Error("request failed", append(fields, zap.Error(err.Err))...)
			return
		}
		s.logger.Debug("request", fields...)
	}
}
