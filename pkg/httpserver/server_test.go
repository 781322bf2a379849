package httpserver_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/postflow/pkg/httpserver"
)

func freeAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())
	return addr
}

func waitForServer(t *testing.T, url string) *http.Response {
	t.Helper()
	var resp *http.Response
	var err error
	for range 50 {
		resp, err = http.Get(url)
		if err == nil {
			return resp
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("server did not come up: %v", err)
	return nil
}

func TestServerRun(t *testing.T) {
	t.Parallel()

	t.Run("serves and shuts down on context cancel", func(t *testing.T) {
		t.Parallel()

		addr := freeAddr(t)
		srv := httpserver.New(httpserver.WithAddr(addr))

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() {
			done <- srv.Run(ctx, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, "ok")
			}))
		}()

		resp := waitForServer(t, "http://"+addr+"/")
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		require.NoError(t, resp.Body.Close())
		assert.Equal(t, "ok", string(body))

		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Fatal("server did not stop after cancel")
		}
	})

	t.Run("second run fails", func(t *testing.T) {
		t.Parallel()

		addr := freeAddr(t)
		srv := httpserver.New(httpserver.WithAddr(addr))

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go srv.Run(ctx, nil) //nolint:errcheck
		waitForServer(t, "http://"+addr+"/")

		err := srv.Run(ctx, nil)
		require.Error(t, err)
		assert.ErrorIs(t, err, httpserver.ErrAlreadyRunning)
	})

	t.Run("listen failure returns ErrStart", func(t *testing.T) {
		t.Parallel()

		l, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		defer l.Close()

		srv := httpserver.New(httpserver.WithAddr(l.Addr().String()))
		err = srv.Run(context.Background(), nil)
		require.Error(t, err)
		assert.ErrorIs(t, err, httpserver.ErrStart)
	})
}

func TestNewFromConfig(t *testing.T) {
	t.Parallel()

	addr := freeAddr(t)
	srv := httpserver.NewFromConfig(httpserver.Config{
		Addr:            addr,
		ShutdownTimeout: time.Second,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx, nil) }()

	resp := waitForServer(t, "http://"+addr+"/")
	require.NoError(t, resp.Body.Close())
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	cancel()
	require.NoError(t, <-done)
}

func TestHealthCheckHandler(t *testing.T) {
	t.Parallel()

	t.Run("liveness", func(t *testing.T) {
		t.Parallel()

		rec := httptest.NewRecorder()
		httpserver.HealthCheckHandler(nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "ALIVE", rec.Body.String())
	})

	t.Run("readiness all pass", func(t *testing.T) {
		t.Parallel()

		ok := func(context.Context) error { return nil }
		rec := httptest.NewRecorder()
		httpserver.HealthCheckHandler(nil, ok, ok).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "READY", rec.Body.String())
	})

	t.Run("readiness failure", func(t *testing.T) {
		t.Parallel()

		fail := func(context.Context) error { return errors.New("db down") }
		rec := httptest.NewRecorder()
		httpserver.HealthCheckHandler(nil, fail).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Equal(t, "NOT_READY", rec.Body.String())
	})
}
