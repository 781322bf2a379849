package logger_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/postflow/pkg/logger"
)

func decodeRecord(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	return rec
}

func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("json output with static attrs", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		log := logger.New(
			logger.WithOutput(&buf),
			logger.WithAttr(slog.String("service", "postflowd")),
		)
		log.Info("started")

		rec := decodeRecord(t, &buf)
		assert.Equal(t, "started", rec["msg"])
		assert.Equal(t, "postflowd", rec["service"])
	})

	t.Run("level filtering", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		log := logger.New(logger.WithOutput(&buf), logger.WithLevel(slog.LevelWarn))
		log.Info("quiet")
		assert.Zero(t, buf.Len())

		log.Warn("loud")
		assert.NotZero(t, buf.Len())
	})

	t.Run("text format", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		log := logger.New(logger.WithOutput(&buf), logger.WithFormat(logger.FormatText))
		log.Info("hello")
		assert.Contains(t, buf.String(), "msg=hello")
	})

	t.Run("context value extraction", func(t *testing.T) {
		t.Parallel()

		type ctxKey struct{}

		var buf bytes.Buffer
		log := logger.New(
			logger.WithOutput(&buf),
			logger.WithContextValue("request_id", ctxKey{}),
		)

		ctx := context.WithValue(context.Background(), ctxKey{}, "req-42")
		log.InfoContext(ctx, "handled")

		rec := decodeRecord(t, &buf)
		assert.Equal(t, "req-42", rec["request_id"])
	})

	t.Run("extractor survives WithAttrs", func(t *testing.T) {
		t.Parallel()

		type ctxKey struct{}

		var buf bytes.Buffer
		log := logger.New(
			logger.WithOutput(&buf),
			logger.WithContextValue("request_id", ctxKey{}),
		).With(slog.String("component", "api"))

		ctx := context.WithValue(context.Background(), ctxKey{}, "req-7")
		log.InfoContext(ctx, "handled")

		rec := decodeRecord(t, &buf)
		assert.Equal(t, "req-7", rec["request_id"])
		assert.Equal(t, "api", rec["component"])
	})
}

func TestAttrs(t *testing.T) {
	t.Parallel()

	t.Run("error nil", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, slog.Attr{}, logger.Error(nil))
	})

	t.Run("post id", func(t *testing.T) {
		t.Parallel()
		id := uuid.New()
		attr := logger.PostID(id)
		assert.Equal(t, "post_id", attr.Key)
		assert.Equal(t, id.String(), attr.Value.String())
	})
}
