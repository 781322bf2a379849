package httpserver

import "errors"

var (
	// ErrStart indicates that the server failed to start.
	ErrStart = errors.New("failed to start HTTP server")
	// ErrShutdown indicates that graceful shutdown failed.
	ErrShutdown = errors.New("failed to shutdown HTTP server gracefully")
	// ErrAlreadyRunning is returned when Run is called twice on one Server.
	ErrAlreadyRunning = errors.New("HTTP server already running")
)
