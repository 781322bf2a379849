package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dmitrymomot/postflow/pkg/dispatcher"
	"github.com/dmitrymomot/postflow/pkg/logger"
	"github.com/dmitrymomot/postflow/pkg/queue"
	"github.com/dmitrymomot/postflow/pkg/slots"
)

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

type dataResponse struct {
	Data any `json:"data"`
}

func (s *Service) respond(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if data == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(dataResponse{Data: data}); err != nil {
		s.log.Error("encode response", logger.Error(err))
	}
}

func (s *Service) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classifyError(err)
	if status >= http.StatusInternalServerError {
		s.log.ErrorContext(r.Context(), "request failed", logger.Error(err))
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	body := errorResponse{Error: errorBody{Code: code, Message: err.Error()}}
	if encErr := json.NewEncoder(w).Encode(body); encErr != nil {
		s.log.Error("encode error response", logger.Error(encErr))
	}
}

func (s *Service) badRequest(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusBadRequest)
	body := errorResponse{Error: errorBody{Code: "bad_request", Message: message}}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.log.Error("encode error response", logger.Error(err))
	}
}

func classifyError(err error) (int, string) {
	switch {
	case errors.Is(err, queue.ErrPostNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, queue.ErrConflict),
		errors.Is(err, queue.ErrInvalidTransition),
		errors.Is(err, dispatcher.ErrAccountBusy),
		errors.Is(err, dispatcher.ErrNotPromotable):
		return http.StatusConflict, "conflict"
	case errors.Is(err, queue.ErrNoCapacity),
		errors.Is(err, queue.ErrCapacityExceeded),
		errors.Is(err, queue.ErrInvalidTime),
		errors.Is(err, slots.ErrNoCapacity):
		return http.StatusUnprocessableEntity, "unprocessable"
	case errors.Is(err, queue.ErrEmptyContent),
		errors.Is(err, queue.ErrPlatformRequired),
		errors.Is(err, queue.ErrPostNil),
		errors.Is(err, slots.ErrInvalidSlot),
		errors.Is(err, slots.ErrInvalidTimeOfDay),
		errors.Is(err, slots.ErrSlotNotFound):
		return http.StatusBadRequest, "bad_request"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}
