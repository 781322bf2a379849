package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/postflow/modules/api"
	"github.com/dmitrymomot/postflow/pkg/queue"
	"github.com/dmitrymomot/postflow/pkg/slots"
)

type stubPromoter struct {
	published []uuid.UUID
	err       error
}

func (s *stubPromoter) PublishNow(_ context.Context, id uuid.UUID) error {
	if s.err != nil {
		return s.err
	}
	s.published = append(s.published, id)
	return nil
}

func newTestServer(t *testing.T, promoter api.Promoter) (*httptest.Server, *queue.Queue) {
	t.Helper()

	cal := slots.NewCalendar()
	require.NoError(t, cal.Upsert(slots.TimeSlot{
		Platform:   "facebook",
		At:         slots.MustParseTimeOfDay("09:00"),
		Weekdays:   slots.EveryDay(),
		DailyLimit: 2,
		Enabled:    true,
	}))

	q, err := queue.New(queue.NewMemoryStorage(), cal)
	require.NoError(t, err)

	svc, err := api.New(q, promoter)
	require.NoError(t, err)

	srv := httptest.NewServer(svc.Router())
	t.Cleanup(srv.Close)
	return srv, q
}

func doJSON(t *testing.T, method, url string, body any) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func decodeData[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()

	var envelope struct {
		Data T `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	return envelope.Data
}

func TestCreatePost(t *testing.T) {
	t.Parallel()

	t.Run("auto scheduled into next slot", func(t *testing.T) {
		t.Parallel()
		srv, _ := newTestServer(t, nil)

		resp := doJSON(t, http.MethodPost, srv.URL+"/posts", map[string]any{
			"platform": "facebook",
			"account":  "page-1",
			"content":  "hello world",
		})
		require.Equal(t, http.StatusCreated, resp.StatusCode)

		post := decodeData[queue.Post](t, resp)
		assert.Equal(t, queue.StatusScheduled, post.Status)
		require.NotNil(t, post.ScheduledAt)
		assert.Equal(t, 9, post.ScheduledAt.Hour())
	})

	t.Run("missing content", func(t *testing.T) {
		t.Parallel()
		srv, _ := newTestServer(t, nil)

		resp := doJSON(t, http.MethodPost, srv.URL+"/posts", map[string]any{
			"platform": "facebook",
		})
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("explicit time outside any slot", func(t *testing.T) {
		t.Parallel()
		srv, _ := newTestServer(t, nil)

		at := time.Now().Add(48 * time.Hour).Truncate(time.Hour).Add(30 * time.Minute)
		resp := doJSON(t, http.MethodPost, srv.URL+"/posts", map[string]any{
			"platform":     "facebook",
			"content":      "off slot",
			"scheduled_at": at.Format(time.RFC3339),
		})
		defer resp.Body.Close()
		assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	})

	t.Run("capacity exhausted", func(t *testing.T) {
		t.Parallel()
		srv, _ := newTestServer(t, nil)

		// Single slot, limit 2: the third post for the same day must land on
		// the next day, and with a 2/day cap every post still finds a home.
		// Exhausting capacity entirely needs explicit times instead.
		for i := range 2 {
			resp := doJSON(t, http.MethodPost, srv.URL+"/posts", map[string]any{
				"platform": "facebook",
				"content":  fmt.Sprintf("post %d", i),
			})
			require.Equal(t, http.StatusCreated, resp.StatusCode)
			resp.Body.Close()
		}

		// Both seats at the next 09:00 are taken; an explicit request for
		// that instant is rejected.
		first := nextNineAM(time.Now())
		resp := doJSON(t, http.MethodPost, srv.URL+"/posts", map[string]any{
			"platform":     "facebook",
			"content":      "one too many",
			"scheduled_at": first.Format(time.RFC3339),
		})
		defer resp.Body.Close()
		assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	})
}

func nextNineAM(now time.Time) time.Time {
	at := time.Date(now.Year(), now.Month(), now.Day(), 9, 0, 0, 0, now.Location())
	if !at.After(now) {
		at = at.AddDate(0, 0, 1)
	}
	return at
}

func TestPostLifecycleEndpoints(t *testing.T) {
	t.Parallel()

	createPost := func(t *testing.T, srv *httptest.Server) queue.Post {
		resp := doJSON(t, http.MethodPost, srv.URL+"/posts", map[string]any{
			"platform": "facebook",
			"account":  "page-1",
			"content":  "lifecycle",
		})
		require.Equal(t, http.StatusCreated, resp.StatusCode)
		return decodeData[queue.Post](t, resp)
	}

	t.Run("get", func(t *testing.T) {
		t.Parallel()
		srv, _ := newTestServer(t, nil)
		created := createPost(t, srv)

		resp := doJSON(t, http.MethodGet, srv.URL+"/posts/"+created.ID.String(), nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		got := decodeData[queue.Post](t, resp)
		assert.Equal(t, created.ID, got.ID)
	})

	t.Run("get unknown id", func(t *testing.T) {
		t.Parallel()
		srv, _ := newTestServer(t, nil)

		resp := doJSON(t, http.MethodGet, srv.URL+"/posts/"+uuid.NewString(), nil)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("cancel then delete", func(t *testing.T) {
		t.Parallel()
		srv, _ := newTestServer(t, nil)
		created := createPost(t, srv)

		resp := doJSON(t, http.MethodPost, srv.URL+"/posts/"+created.ID.String()+"/cancel", nil)
		resp.Body.Close()
		assert.Equal(t, http.StatusNoContent, resp.StatusCode)

		// Cancelled is terminal; delete only removes pre-terminal posts.
		resp = doJSON(t, http.MethodDelete, srv.URL+"/posts/"+created.ID.String(), nil)
		resp.Body.Close()
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
	})

	t.Run("edit time to occupied slot keeps post", func(t *testing.T) {
		t.Parallel()
		srv, _ := newTestServer(t, nil)
		created := createPost(t, srv)

		resp := doJSON(t, http.MethodPut, srv.URL+"/posts/"+created.ID.String()+"/time", map[string]any{
			"scheduled_at": created.ScheduledAt.Format(time.RFC3339),
		})
		resp.Body.Close()
		// Moving to its own instant is allowed; own occupancy is excluded.
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("publish now", func(t *testing.T) {
		t.Parallel()
		promoter := &stubPromoter{}
		srv, _ := newTestServer(t, promoter)
		created := createPost(t, srv)

		resp := doJSON(t, http.MethodPost, srv.URL+"/posts/"+created.ID.String()+"/publish", nil)
		resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.Len(t, promoter.published, 1)
		assert.Equal(t, created.ID, promoter.published[0])
	})

	t.Run("publish now without promoter", func(t *testing.T) {
		t.Parallel()
		srv, _ := newTestServer(t, nil)
		created := createPost(t, srv)

		resp := doJSON(t, http.MethodPost, srv.URL+"/posts/"+created.ID.String()+"/publish", nil)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	})

	t.Run("reorder", func(t *testing.T) {
		t.Parallel()
		srv, q := newTestServer(t, nil)

		// Queued posts only; use a platform with no slots so they stay queued.
		ctx := context.Background()
		a := &queue.Post{Platform: "linkedin", Content: "a"}
		b := &queue.Post{Platform: "linkedin", Content: "b"}
		require.ErrorIs(t, q.Enqueue(ctx, a), queue.ErrNoCapacity)
		require.ErrorIs(t, q.Enqueue(ctx, b), queue.ErrNoCapacity)

		resp := doJSON(t, http.MethodPut, srv.URL+"/posts/order", map[string]any{
			"ids": []string{b.ID.String(), a.ID.String()},
		})
		resp.Body.Close()
		require.Equal(t, http.StatusNoContent, resp.StatusCode)

		got, err := q.Get(ctx, b.ID)
		require.NoError(t, err)
		assert.Equal(t, 0, got.QueueRank)
	})
}

func TestSlotsEndpoints(t *testing.T) {
	t.Parallel()

	t.Run("list", func(t *testing.T) {
		t.Parallel()
		srv, _ := newTestServer(t, nil)

		resp := doJSON(t, http.MethodGet, srv.URL+"/slots", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		views := decodeData[[]map[string]any](t, resp)
		require.Len(t, views, 1)
		assert.Equal(t, "09:00", views[0]["at"])
	})

	t.Run("replace", func(t *testing.T) {
		t.Parallel()
		srv, q := newTestServer(t, nil)

		resp := doJSON(t, http.MethodPut, srv.URL+"/slots", map[string]any{
			"platform": "facebook",
			"slots": []map[string]any{
				{"at": "10:30", "weekdays": "Mon,Wed,Fri", "daily_limit": 1},
				{"at": "18:00", "weekdays": "Sun,Mon,Tue,Wed,Thu,Fri,Sat", "daily_limit": 3},
			},
		})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		views := decodeData[[]map[string]any](t, resp)
		require.Len(t, views, 2)

		got := q.Calendar().SlotsFor("facebook")
		require.Len(t, got, 2)
		assert.Equal(t, "10:30", got[0].At.String())
	})

	t.Run("replace with bad time", func(t *testing.T) {
		t.Parallel()
		srv, _ := newTestServer(t, nil)

		resp := doJSON(t, http.MethodPut, srv.URL+"/slots", map[string]any{
			"platform": "facebook",
			"slots":    []map[string]any{{"at": "25:99", "weekdays": "Mon", "daily_limit": 1}},
		})
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestScheduleEndpoint(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t, nil)

	resp := doJSON(t, http.MethodPost, srv.URL+"/posts", map[string]any{
		"platform": "facebook",
		"content":  "on the calendar",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	resp = doJSON(t, http.MethodGet, srv.URL+"/schedule?platform=facebook", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	entries := decodeData[[]queue.ScheduleEntry](t, resp)
	require.Len(t, entries, 1)
	assert.Len(t, entries[0].Posts, 1)

	resp = doJSON(t, http.MethodGet, srv.URL+"/schedule", nil)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
