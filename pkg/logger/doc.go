// Package logger builds configured slog loggers for the application.
//
// New applies functional options on top of production-safe defaults (JSON
// output, info level) and returns a *slog.Logger. Handlers can be decorated
// with context extractors so request-scoped values such as request IDs are
// attached to every record automatically.
//
// Usage:
//
//	log := logger.New(
//		logger.WithDevelopment("postflowd"),
//		logger.WithContextValue("request_id", requestid.CtxKey),
//	)
//	log.Info("dispatcher started", slog.Duration("tick", time.Minute))
package logger
