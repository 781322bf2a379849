package httpserver

import (
	"log/slog"
	"time"
)

// Option configures the HTTP server.
type Option func(*Server)

// WithAddr sets the address the server listens on.
func WithAddr(addr string) Option {
	return func(s *Server) {
		if addr != "" {
			s.cfg.Addr = addr
		}
	}
}

// WithReadTimeout sets the maximum duration for reading the entire request.
func WithReadTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.cfg.ReadTimeout = d
		}
	}
}

// WithWriteTimeout sets the maximum duration before timing out response writes.
func WithWriteTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.cfg.WriteTimeout = d
		}
	}
}

// WithIdleTimeout sets the keep-alive idle timeout.
func WithIdleTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.cfg.IdleTimeout = d
		}
	}
}

// WithShutdownTimeout sets the time allowed for graceful shutdown.
func WithShutdownTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.cfg.ShutdownTimeout = d
		}
	}
}

// WithLogger supplies an external slog.Logger. Nil keeps the discard logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.log = l
		}
	}
}
