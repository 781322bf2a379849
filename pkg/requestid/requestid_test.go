package requestid_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/postflow/pkg/requestid"
)

func TestMiddleware(t *testing.T) {
	t.Parallel()

	capture := func() (http.Handler, *string) {
		var captured string
		h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			captured = requestid.FromContext(r.Context())
		})
		return h, &captured
	}

	t.Run("generates id when missing", func(t *testing.T) {
		t.Parallel()

		h, captured := capture()
		rec := httptest.NewRecorder()
		requestid.Middleware(h).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

		require.NotEmpty(t, *captured)
		_, err := uuid.Parse(*captured)
		assert.NoError(t, err)
		assert.Equal(t, *captured, rec.Header().Get(requestid.Header))
	})

	t.Run("reuses valid client id", func(t *testing.T) {
		t.Parallel()

		h, captured := capture()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(requestid.Header, "client-id-123")
		rec := httptest.NewRecorder()
		requestid.Middleware(h).ServeHTTP(rec, req)

		assert.Equal(t, "client-id-123", *captured)
		assert.Equal(t, "client-id-123", rec.Header().Get(requestid.Header))
	})

	t.Run("replaces invalid client id", func(t *testing.T) {
		t.Parallel()

		h, captured := capture()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(requestid.Header, strings.Repeat("x", 200))
		rec := httptest.NewRecorder()
		requestid.Middleware(h).ServeHTTP(rec, req)

		assert.NotEqual(t, strings.Repeat("x", 200), *captured)
		assert.NotEmpty(t, *captured)
	})
}

func TestContext(t *testing.T) {
	t.Parallel()

	assert.Empty(t, requestid.FromContext(context.Background()))

	ctx := requestid.WithContext(context.Background(), "abc")
	assert.Equal(t, "abc", requestid.FromContext(ctx))
}

func TestLoggerExtractor(t *testing.T) {
	t.Parallel()

	ex := requestid.LoggerExtractor()

	attr, ok := ex(context.Background())
	assert.False(t, ok)
	assert.Empty(t, attr.Key)

	attr, ok = ex(requestid.WithContext(context.Background(), "req-1"))
	require.True(t, ok)
	assert.Equal(t, "request_id", attr.Key)
	assert.Equal(t, "req-1", attr.Value.String())
}
