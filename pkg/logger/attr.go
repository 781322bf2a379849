package logger

import (
	"log/slog"

	"github.com/google/uuid"
)

// Error creates an attribute for a single error under the key "error".
// A nil err yields an empty Attr.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any("error", err)
}

// PostID records a post identifier under the key "post_id".
func PostID(id uuid.UUID) slog.Attr {
	return slog.String("post_id", id.String())
}

// Platform records the target platform under the key "platform".
func Platform(name string) slog.Attr {
	return slog.String("platform", name)
}

// Component tags records with the emitting subsystem under the key "component".
func Component(name string) slog.Attr {
	return slog.String("component", name)
}
