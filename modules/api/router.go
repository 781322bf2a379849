package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/dmitrymomot/postflow/pkg/queue"
	"github.com/dmitrymomot/postflow/pkg/requestid"
	"github.com/dmitrymomot/postflow/pkg/slots"
)

// Promoter publishes a scheduled post immediately, out of band of the
// dispatcher tick.
type Promoter interface {
	PublishNow(ctx context.Context, id uuid.UUID) error
}

// CalendarStore persists slot calendar changes made through the API.
type CalendarStore interface {
	SaveCalendar(ctx context.Context, cal *slots.Calendar) error
}

// Service holds the HTTP handlers for the queue.
type Service struct {
	queue    *queue.Queue
	promoter Promoter
	store    CalendarStore
	log      *slog.Logger
}

// Option configures the Service.
type Option func(*Service)

// WithLogger supplies a logger for request failures.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

// WithCalendarStore persists slot changes made via PUT /slots.
func WithCalendarStore(store CalendarStore) Option {
	return func(s *Service) { s.store = store }
}

// New creates the API service. promoter may be nil; POST /posts/{id}/publish
// then answers 503.
func New(q *queue.Queue, promoter Promoter, opts ...Option) (*Service, error) {
	if q == nil {
		return nil, queue.ErrRepositoryNil
	}
	s := &Service{
		queue:    q,
		promoter: promoter,
		log:      slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Router builds the chi router for the service.
func (s *Service) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(requestid.Middleware)
	r.Use(middleware.Recoverer)

	r.Route("/posts", func(r chi.Router) {
		r.Post("/", s.createPost)
		r.Get("/", s.listPosts)
		r.Put("/order", s.reorderPosts)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.getPost)
			r.Delete("/", s.deletePost)
			r.Put("/time", s.editPostTime)
			r.Post("/publish", s.publishPost)
			r.Post("/cancel", s.cancelPost)
			r.Get("/attempts", s.listAttempts)
		})
	})

	r.Get("/schedule", s.getSchedule)

	r.Route("/slots", func(r chi.Router) {
		r.Get("/", s.listSlots)
		r.Put("/", s.replaceSlots)
	})

	return r
}

func (s *Service) postID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.badRequest(w, "invalid post id")
		return uuid.Nil, false
	}
	return id, true
}
