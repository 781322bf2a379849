package httpserver

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/dmitrymomot/postflow/pkg/logger"
)

// Config carries the server settings read from the environment.
type Config struct {
	Addr            string        `env:"HTTP_ADDR" envDefault:":8080"`
	ReadTimeout     time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"30s"`
	WriteTimeout    time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"30s"`
	IdleTimeout     time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"120s"`
	ShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" envDefault:"5s"`
}

// Server wraps http.Server with graceful shutdown and logging.
type Server struct {
	cfg Config
	log *slog.Logger

	mu      sync.Mutex
	srv     *http.Server
	stopped sync.Once
}

// New returns a configured Server.
func New(opts ...Option) *Server {
	s := &Server{
		cfg: Config{
			Addr:            ":8080",
			ShutdownTimeout: 5 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = slog.New(discardHandler{})
	}
	return s
}

// NewFromConfig creates a Server from cfg; extra options apply on top.
func NewFromConfig(cfg Config, opts ...Option) *Server {
	s := New(opts...)
	if cfg.Addr != "" {
		s.cfg.Addr = cfg.Addr
	}
	if cfg.ReadTimeout > 0 {
		s.cfg.ReadTimeout = cfg.ReadTimeout
	}
	if cfg.WriteTimeout > 0 {
		s.cfg.WriteTimeout = cfg.WriteTimeout
	}
	if cfg.IdleTimeout > 0 {
		s.cfg.IdleTimeout = cfg.IdleTimeout
	}
	if cfg.ShutdownTimeout > 0 {
		s.cfg.ShutdownTimeout = cfg.ShutdownTimeout
	}
	return s
}

// Run starts the server and blocks until ctx is cancelled or the listener
// fails. Cancellation triggers a graceful shutdown bounded by the configured
// shutdown timeout.
func (s *Server) Run(ctx context.Context, handler http.Handler) error {
	if handler == nil {
		handler = http.NotFoundHandler()
	}

	s.mu.Lock()
	if s.srv != nil {
		s.mu.Unlock()
		return errors.Join(ErrStart, ErrAlreadyRunning)
	}
	srv := &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      handler,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		IdleTimeout:  s.cfg.IdleTimeout,
	}
	s.srv = srv
	s.mu.Unlock()

	s.log.Info("http server listening", slog.String("addr", srv.Addr))

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	var runErr error
	select {
	case <-ctx.Done():
		if err := s.Shutdown(context.Background()); err != nil {
			runErr = err
		}
		<-errCh
	case runErr = <-errCh:
	}

	if runErr != nil && !errors.Is(runErr, http.ErrServerClosed) {
		return errors.Join(ErrStart, runErr)
	}
	return nil
}

// Shutdown stops the server gracefully. Safe for repeated calls.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.stopped.Do(func() {
		s.mu.Lock()
		srv := s.srv
		s.mu.Unlock()
		if srv == nil {
			return
		}

		ctx, cancel := context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
		defer cancel()

		if shutErr := srv.Shutdown(ctx); shutErr != nil && !errors.Is(shutErr, http.ErrServerClosed) {
			err = errors.Join(ErrShutdown, shutErr)
		}
		s.log.Info("http server stopped", logger.Error(err))
	})
	return err
}

// discardHandler drops every record; used when no logger is configured.
type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }
