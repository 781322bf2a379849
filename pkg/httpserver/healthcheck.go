package httpserver

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/dmitrymomot/postflow/pkg/logger"
)

// HealthCheckHandler serves liveness and readiness probes. With no dependency
// checks it answers 200 "ALIVE". With checks it runs each one and answers
// 200 "READY" when all pass or 500 "NOT_READY" on the first failure.
func HealthCheckHandler(log *slog.Logger, checks ...func(context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if len(checks) == 0 {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("ALIVE")) //nolint:errcheck
			return
		}

		for _, check := range checks {
			if err := check(r.Context()); err != nil {
				if log != nil {
					log.ErrorContext(r.Context(), "readiness check failed", logger.Error(err))
				}
				w.WriteHeader(http.StatusInternalServerError)
				w.Write([]byte("NOT_READY")) //nolint:errcheck
				return
			}
		}

		w.WriteHeader(http.StatusOK)
		w.Write([]byte("READY")) //nolint:errcheck
	}
}
