package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/postflow/pkg/queue"
)

type createPostRequest struct {
	Platform    string     `json:"platform"`
	Account     string     `json:"account"`
	Content     string     `json:"content"`
	MediaRefs   []string   `json:"media_refs"`
	ScheduledAt *time.Time `json:"scheduled_at"`
}

func (s *Service) createPost(w http.ResponseWriter, r *http.Request) {
	var req createPostRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.badRequest(w, "invalid request body")
		return
	}

	post := &queue.Post{
		Platform:  req.Platform,
		Account:   req.Account,
		Content:   req.Content,
		MediaRefs: req.MediaRefs,
	}

	var opts []queue.EnqueueOption
	if req.ScheduledAt != nil {
		opts = append(opts, queue.WithExplicitTime(*req.ScheduledAt))
	}

	if err := s.queue.Enqueue(r.Context(), post, opts...); err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respond(w, http.StatusCreated, post)
}

func (s *Service) getPost(w http.ResponseWriter, r *http.Request) {
	id, ok := s.postID(w, r)
	if !ok {
		return
	}
	post, err := s.queue.Get(r.Context(), id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, post)
}

func (s *Service) listPosts(w http.ResponseWriter, r *http.Request) {
	filter := queue.Filter{
		Status:   queue.Status(r.URL.Query().Get("status")),
		Platform: r.URL.Query().Get("platform"),
	}
	posts, err := s.queue.List(r.Context(), filter)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if posts == nil {
		posts = []queue.Post{}
	}
	s.respond(w, http.StatusOK, posts)
}

type reorderRequest struct {
	IDs []uuid.UUID `json:"ids"`
}

func (s *Service) reorderPosts(w http.ResponseWriter, r *http.Request) {
	var req reorderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.badRequest(w, "invalid request body")
		return
	}
	if len(req.IDs) == 0 {
		s.badRequest(w, "ids cannot be empty")
		return
	}
	if err := s.queue.Reorder(r.Context(), req.IDs); err != nil {
		s.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type editTimeRequest struct {
	ScheduledAt time.Time `json:"scheduled_at"`
}

func (s *Service) editPostTime(w http.ResponseWriter, r *http.Request) {
	id, ok := s.postID(w, r)
	if !ok {
		return
	}
	var req editTimeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.badRequest(w, "invalid request body")
		return
	}
	if req.ScheduledAt.IsZero() {
		s.badRequest(w, "scheduled_at is required")
		return
	}
	if err := s.queue.EditTime(r.Context(), id, req.ScheduledAt); err != nil {
		s.respondError(w, r, err)
		return
	}
	post, err := s.queue.Get(r.Context(), id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, post)
}

func (s *Service) publishPost(w http.ResponseWriter, r *http.Request) {
	id, ok := s.postID(w, r)
	if !ok {
		return
	}
	if s.promoter == nil {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(errorResponse{Error: errorBody{
			Code:    "unavailable",
			Message: "publishing is not available",
		}})
		return
	}
	if err := s.promoter.PublishNow(r.Context(), id); err != nil {
		s.respondError(w, r, err)
		return
	}
	post, err := s.queue.Get(r.Context(), id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, post)
}

func (s *Service) cancelPost(w http.ResponseWriter, r *http.Request) {
	id, ok := s.postID(w, r)
	if !ok {
		return
	}
	if err := s.queue.Cancel(r.Context(), id); err != nil {
		s.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Service) deletePost(w http.ResponseWriter, r *http.Request) {
	id, ok := s.postID(w, r)
	if !ok {
		return
	}
	if err := s.queue.Delete(r.Context(), id); err != nil {
		s.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Service) listAttempts(w http.ResponseWriter, r *http.Request) {
	id, ok := s.postID(w, r)
	if !ok {
		return
	}
	if _, err := s.queue.Get(r.Context(), id); err != nil {
		s.respondError(w, r, err)
		return
	}
	attempts, err := s.queue.Attempts(r.Context(), id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if attempts == nil {
		attempts = []queue.PublishAttempt{}
	}
	s.respond(w, http.StatusOK, attempts)
}
