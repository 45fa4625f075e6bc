package api

import (
	"net/http"
	"strconv"
	"time"

	"slotline/internal/booking"
	"slotline/internal/metrics"
	"slotline/internal/models"
	"slotline/internal/timeutil"
)

func pathID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	return id, err == nil && id > 0
}

// handleQuerySlots returns the slot sequence for a staff member and date.
// GET /api/v1/staff/{id}/slots?date=2026-03-10&duration=30&exclude=12
func (s *Server) handleQuerySlots(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("query_slots")

	staffID, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid staff id")
		return
	}

	dateStr := r.URL.Query().Get("date")
	date, err := time.Parse("2006-01-02", dateStr)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "date must be YYYY-MM-DD")
		return
	}

	duration := 30
	if d := r.URL.Query().Get("duration"); d != "" {
		duration, err = strconv.Atoi(d)
		if err != nil || duration <= 0 {
			writeError(w, http.StatusBadRequest, "bad_request", "duration must be a positive number of minutes")
			return
		}
	}

	var excludeID int64
	if e := r.URL.Query().Get("exclude"); e != "" {
		excludeID, err = strconv.ParseInt(e, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", "invalid exclude id")
			return
		}
	}

	slotList, err := s.bookings.QueryAvailableSlots(r.Context(), staffID, date, duration, excludeID)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	if slotList == nil {
		slotList = []models.Slot{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"staff_id": staffID,
		"date":     dateStr,
		"slots":    slotList,
	})
}

type createAppointmentRequest struct {
	OrganizationID int64     `json:"organization_id"`
	StaffID        int64     `json:"staff_id"`
	StartTime      time.Time `json:"start_time"`
	EndTime        time.Time `json:"end_time"`
	ClientName     string    `json:"client_name"`
	ClientPhone    string    `json:"client_phone,omitempty"`
	Notes          string    `json:"notes,omitempty"`
}

// handleCreateAppointment books a new appointment.
// POST /api/v1/appointments
func (s *Server) handleCreateAppointment(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("create_appointment")

	var req createAppointmentRequest
	if !decodeBody(w, r, &req) {
		return
	}

	appt, err := s.bookings.Book(r.Context(), booking.BookRequest{
		OrganizationID: req.OrganizationID,
		StaffID:        req.StaffID,
		StartUTC:       req.StartTime,
		EndUTC:         req.EndTime,
		ClientName:     req.ClientName,
		ClientPhone:    req.ClientPhone,
		Notes:          req.Notes,
	})
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, appt)
}

type updateAppointmentRequest struct {
	ClientName  *string    `json:"client_name,omitempty"`
	ClientPhone *string    `json:"client_phone,omitempty"`
	StaffID     *int64     `json:"staff_id,omitempty"`
	StartTime   *time.Time `json:"start_time,omitempty"`
	EndTime     *time.Time `json:"end_time,omitempty"`
	Notes       *string    `json:"notes,omitempty"`
}

// handleUpdateAppointment reschedules or edits an appointment.
// PATCH /api/v1/appointments/{id}
func (s *Server) handleUpdateAppointment(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("update_appointment")

	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid appointment id")
		return
	}

	var req updateAppointmentRequest
	if !decodeBody(w, r, &req) {
		return
	}

	appt, err := s.bookings.Update(r.Context(), id, booking.Patch{
		ClientName:  req.ClientName,
		ClientPhone: req.ClientPhone,
		StaffID:     req.StaffID,
		StartUTC:    req.StartTime,
		EndUTC:      req.EndTime,
		Notes:       req.Notes,
	})
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, appt)
}

// handleCancelAppointment transitions an appointment to canceled.
// POST /api/v1/appointments/{id}/cancel
func (s *Server) handleCancelAppointment(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("cancel_appointment")

	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid appointment id")
		return
	}

	status, err := s.bookings.Cancel(r.Context(), id)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": status})
}

// handleGetSchedule returns a staff member's recurring week.
// GET /api/v1/staff/{id}/schedule
func (s *Server) handleGetSchedule(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("get_schedule")

	staffID, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid staff id")
		return
	}
	if _, err := s.db.GetStaff(r.Context(), staffID); err != nil {
		s.writeEngineError(w, err)
		return
	}

	blocks, err := s.db.GetWeekBlocks(r.Context(), staffID)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	if blocks == nil {
		blocks = []models.WorkingHourBlock{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"staff_id": staffID, "blocks": blocks})
}

type replaceScheduleRequest struct {
	Blocks []models.WorkingHourBlock `json:"blocks"`
}

// handleReplaceSchedule replaces a staff member's whole recurring week.
// PUT /api/v1/staff/{id}/schedule
func (s *Server) handleReplaceSchedule(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("replace_schedule")

	staffID, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid staff id")
		return
	}
	if _, err := s.db.GetStaff(r.Context(), staffID); err != nil {
		s.writeEngineError(w, err)
		return
	}

	var req replaceScheduleRequest
	if !decodeBody(w, r, &req) {
		return
	}

	saved, err := s.editor.ReplaceWeek(r.Context(), staffID, req.Blocks)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	if saved == nil {
		saved = []models.WorkingHourBlock{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"staff_id": staffID, "blocks": saved})
}

type applyTemplateRequest struct {
	TemplateID int64 `json:"template_id"`
	Confirm    bool  `json:"confirm"`
}

// handleApplyTemplate overwrites a staff member's week from a template.
// Destroys the prior manual configuration, so the request must carry an
// explicit confirm flag.
// POST /api/v1/staff/{id}/schedule/template
func (s *Server) handleApplyTemplate(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("apply_template")

	staffID, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid staff id")
		return
	}
	if _, err := s.db.GetStaff(r.Context(), staffID); err != nil {
		s.writeEngineError(w, err)
		return
	}

	var req applyTemplateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if !req.Confirm {
		writeError(w, http.StatusUnprocessableEntity, "confirm_required",
			"applying a template overwrites the current schedule; set confirm to true")
		return
	}

	saved, err := s.editor.ApplyTemplate(r.Context(), staffID, req.TemplateID)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"staff_id": staffID, "blocks": saved})
}

// handleExport streams the period's appointments as an Excel workbook.
// GET /api/v1/organizations/{id}/appointments/export?from=YYYY-MM-DD&to=YYYY-MM-DD
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("export_appointments")

	orgID, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid organization id")
		return
	}

	org, err := s.db.GetOrganization(r.Context(), orgID)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	loc, err := time.LoadLocation(org.Timezone)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}

	from, err := time.Parse("2006-01-02", r.URL.Query().Get("from"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "from must be YYYY-MM-DD")
		return
	}
	to, err := time.Parse("2006-01-02", r.URL.Query().Get("to"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "to must be YYYY-MM-DD")
		return
	}

	fromUTC, _ := timeutil.LocalDayRange(timeutil.AnchorDay(from, loc), loc)
	_, toUTC := timeutil.LocalDayRange(timeutil.AnchorDay(to, loc), loc)

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="appointments.xlsx"`)
	if err := s.exporter.Write(r.Context(), w, orgID, fromUTC, toUTC, loc); err != nil && s.logger != nil {
		s.logger.Error().Err(err).Msg("export failed")
	}
}
