// Package httpserver wraps http.Server with graceful shutdown, option-based
// configuration and structured logging.
//
// Run blocks until the context is cancelled or the listener fails, then
// drains in-flight requests within the shutdown timeout. The caller owns
// signal handling; pair Run with signal.NotifyContext and errgroup:
//
//	srv := httpserver.NewFromConfig(cfg, httpserver.WithLogger(log))
//	g.Go(func() error { return srv.Run(ctx, router) })
package httpserver
