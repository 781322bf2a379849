// Package requestid attaches correlation identifiers to HTTP requests so log
// records from one request can be tied together.
//
// Middleware reuses a valid client-supplied X-Request-ID header or generates
// a UUID, stores the ID in the request context and echoes it back in the
// response. LoggerExtractor plugs the ID into the logger package so every
// record carries it.
package requestid

import (
	"context"
	"log/slog"
	"net/http"
	"regexp"

	"github.com/google/uuid"
)

// Header is the request and response header carrying the ID.
const Header = "X-Request-ID"

const maxIDLength = 128

var validID = regexp.MustCompile("^[a-zA-Z0-9_-]+$")

type contextKey struct{}

// WithContext stores the request ID in ctx.
func WithContext(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, contextKey{}, requestID)
}

// FromContext returns the request ID stored in ctx, or "".
func FromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(contextKey{}).(string)
	return id
}

// Middleware ensures every request carries a request ID. Invalid or missing
// client IDs are replaced with a fresh UUID.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(Header)
		if !isValid(id) {
			id = uuid.New().String()
		}
		w.Header().Set(Header, id)
		next.ServeHTTP(w, r.WithContext(WithContext(r.Context(), id)))
	})
}

// LoggerExtractor adapts FromContext for logger.WithContextExtractors.
func LoggerExtractor() func(ctx context.Context) (slog.Attr, bool) {
	return func(ctx context.Context) (slog.Attr, bool) {
		if id := FromContext(ctx); id != "" {
			return slog.String("request_id", id), true
		}
		return slog.Attr{}, false
	}
}

func isValid(id string) bool {
	return len(id) > 0 && len(id) <= maxIDLength && validID.MatchString(id)
}
