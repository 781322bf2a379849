package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/dmitrymomot/postflow/pkg/slots"
)

const defaultScheduleWindow = 7 * 24 * time.Hour

func (s *Service) getSchedule(w http.ResponseWriter, r *http.Request) {
	platform := r.URL.Query().Get("platform")
	if platform == "" {
		s.badRequest(w, "platform is required")
		return
	}

	now := time.Now()
	from, to := now, now.Add(defaultScheduleWindow)
	if raw := r.URL.Query().Get("from"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			s.badRequest(w, "from must be RFC3339")
			return
		}
		from = parsed
	}
	if raw := r.URL.Query().Get("to"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			s.badRequest(w, "to must be RFC3339")
			return
		}
		to = parsed
	}

	entries, err := s.queue.Schedule(r.Context(), platform, from, to)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, entries)
}

type slotView struct {
	Platform   string `json:"platform"`
	At         string `json:"at"`
	Weekdays   string `json:"weekdays"`
	DailyLimit int    `json:"daily_limit"`
	Enabled    bool   `json:"enabled"`
}

func viewOf(slot slots.TimeSlot) slotView {
	return slotView{
		Platform:   slot.Platform,
		At:         slot.At.String(),
		Weekdays:   slot.Weekdays.String(),
		DailyLimit: slot.DailyLimit,
		Enabled:    slot.Enabled,
	}
}

func (s *Service) listSlots(w http.ResponseWriter, r *http.Request) {
	cal := s.queue.Calendar()

	platforms := cal.Platforms()
	if p := r.URL.Query().Get("platform"); p != "" {
		platforms = []string{p}
	}

	views := []slotView{}
	for _, platform := range platforms {
		for _, slot := range cal.SlotsFor(platform) {
			views = append(views, viewOf(slot))
		}
	}
	s.respond(w, http.StatusOK, views)
}

type slotPayload struct {
	At         string `json:"at"`
	Weekdays   string `json:"weekdays"`
	DailyLimit int    `json:"daily_limit"`
	Enabled    *bool  `json:"enabled"`
}

type replaceSlotsRequest struct {
	Platform string        `json:"platform"`
	Slots    []slotPayload `json:"slots"`
}

func (s *Service) replaceSlots(w http.ResponseWriter, r *http.Request) {
	var req replaceSlotsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.badRequest(w, "invalid request body")
		return
	}
	if req.Platform == "" {
		s.badRequest(w, "platform is required")
		return
	}

	list := make([]slots.TimeSlot, 0, len(req.Slots))
	for _, p := range req.Slots {
		at, err := slots.ParseTimeOfDay(p.At)
		if err != nil {
			s.respondError(w, r, err)
			return
		}
		days, err := slots.ParseWeekdays(p.Weekdays)
		if err != nil {
			s.respondError(w, r, err)
			return
		}
		enabled := true
		if p.Enabled != nil {
			enabled = *p.Enabled
		}
		list = append(list, slots.TimeSlot{
			Platform:   req.Platform,
			At:         at,
			Weekdays:   days,
			DailyLimit: p.DailyLimit,
			Enabled:    enabled,
		})
	}

	cal := s.queue.Calendar()
	if err := cal.Replace(req.Platform, list); err != nil {
		s.respondError(w, r, err)
		return
	}
	if s.store != nil {
		if err := s.store.SaveCalendar(r.Context(), cal); err != nil {
			s.respondError(w, r, err)
			return
		}
	}

	views := make([]slotView, 0, len(list))
	for _, slot := range cal.SlotsFor(req.Platform) {
		views = append(views, viewOf(slot))
	}
	s.respond(w, http.StatusOK, views)
}
