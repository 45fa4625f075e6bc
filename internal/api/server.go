// Package api exposes the scheduling engine over HTTP. Every front-end,
// the conversational bot included, consumes the same booking primitives,
// so conflict semantics never diverge between surfaces.
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"slotline/internal/booking"
	"slotline/internal/database"
	"slotline/internal/export"
	"slotline/internal/schedule"
)

// Server handles the HTTP API.
type Server struct {
	db       *database.DB
	bookings *booking.Service
	editor   *schedule.Editor
	exporter *export.DayBook
	logger   *zerolog.Logger
}

// NewServer creates an API server.
func NewServer(db *database.DB, bookings *booking.Service, editor *schedule.Editor, exporter *export.DayBook, logger *zerolog.Logger) *Server {
	return &Server{
		db:       db,
		bookings: bookings,
		editor:   editor,
		exporter: exporter,
		logger:   logger,
	}
}

// Handler returns the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/staff/{id}/slots", s.handleQuerySlots)
	mux.HandleFunc("POST /api/v1/appointments", s.handleCreateAppointment)
	mux.HandleFunc("PATCH /api/v1/appointments/{id}", s.handleUpdateAppointment)
	mux.HandleFunc("POST /api/v1/appointments/{id}/cancel", s.handleCancelAppointment)
	mux.HandleFunc("GET /api/v1/staff/{id}/schedule", s.handleGetSchedule)
	mux.HandleFunc("PUT /api/v1/staff/{id}/schedule", s.handleReplaceSchedule)
	mux.HandleFunc("POST /api/v1/staff/{id}/schedule/template", s.handleApplyTemplate)
	mux.HandleFunc("GET /api/v1/organizations/{id}/appointments/export", s.handleExport)

	return mux
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
	Field string `json:"field,omitempty"`
}

func decodeBody(w http.ResponseWriter, r *http.Request, out any) bool {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(out); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: message, Code: code})
}

// writeEngineError maps the booking error taxonomy onto HTTP statuses.
// Conflicts get their own code so clients re-fetch slots instead of
// retrying the identical request.
func (s *Server) writeEngineError(w http.ResponseWriter, err error) {
	var vErr *booking.ValidationError
	var schedErr *schedule.ValidationError
	switch {
	case errors.As(err, &vErr):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{
			Error: vErr.Message, Code: "validation_failed", Field: vErr.Field,
		})
	case errors.As(err, &schedErr):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{
			Error: schedErr.Message, Code: "validation_failed", Field: schedErr.Field,
		})
	case errors.Is(err, booking.ErrConflict):
		writeError(w, http.StatusConflict, "slot_conflict", "the slot was just taken; pick another time")
	case errors.Is(err, booking.ErrPastAppointment):
		writeError(w, http.StatusConflict, "appointment_past", "past appointments cannot be changed")
	case errors.Is(err, booking.ErrNotFound), errors.Is(err, database.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", "record not found")
	default:
		if s.logger != nil {
			s.logger.Error().Err(err).Msg("request failed")
		}
		writeError(w, http.StatusBadGateway, "retrieval_failed", "could not read current availability")
	}
}
