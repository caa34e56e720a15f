// Package health serves the liveness probe and Prometheus metrics over HTTP.
package health

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/m3rciful/menubot/core/logger"
)

// LivenessMessage is the body of GET /.
const LivenessMessage = "Bot is running! 🚀"

const shutdownTimeout = 5 * time.Second

// Options configures the server.
type Options struct {
	Listen string
	Port   int
	// Gatherer backs GET /metrics. Defaults to prometheus.DefaultGatherer.
	Gatherer prometheus.Gatherer
}

// Server is the liveness and metrics endpoint.
type Server struct {
	engine *gin.Engine
	http   *http.Server
}

// New builds the server without starting it.
func New(opts Options) *Server {
	gin.SetMode(gin.ReleaseMode)
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}

	engine := gin.New()
	engine.Use(gin.Recovery(), accessLog())
	engine.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, LivenessMessage)
	})
	engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})))

	return &Server{
		engine: engine,
		http: &http.Server{
			Addr:              net.JoinHostPort(opts.Listen, strconv.Itoa(opts.Port)),
			Handler:           engine,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Addr is the listen address.
func (s *Server) Addr() string {
	return s.http.Addr
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.http.Addr)
	if err != nil {
		return fmt.Errorf("health: listen %s: %w", s.http.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.http.Serve(ln)
	}()
	logger.Info(ctx, "http", "server.start",
		slog.String("status", "ok"),
		slog.String("listen", ln.Addr().String()),
	)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("health: serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		logger.Warn(ctx, "http", "server.stop",
			slog.String("status", "fail"),
			slog.String("err", err.Error()),
		)
		return fmt.Errorf("health: shutdown: %w", err)
	}
	logger.Info(ctx, "http", "server.stop", slog.String("status", "ok"))
	return nil
}

func accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug(c.Request.Context(), "http", "request",
			slog.String("endpoint", c.FullPath()),
			slog.Int("code", c.Writer.Status()),
			slog.Duration("duration", time.Since(start)),
		)
	}
}
