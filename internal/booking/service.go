// Package booking mediates conflict-free creation, rescheduling and
// cancellation of appointments. Its own availability checks are advisory;
// the store's exclusion guarantee is the final arbiter, and a store-level
// overlap rejection is an expected outcome, not a failure.
package booking

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"slotline/internal/database"
	"slotline/internal/events"
	"slotline/internal/metrics"
	"slotline/internal/models"
	"slotline/internal/schedule"
	"slotline/internal/slots"
	"slotline/internal/timeutil"
)

// phonePattern is deliberately permissive: digits, spaces, punctuation
// used in international numbers.
var phonePattern = regexp.MustCompile(`^\+?[0-9()\-\s.]{5,20}$`)

// Store is the persistence surface the service needs.
type Store interface {
	GetOrganization(ctx context.Context, id int64) (*models.Organization, error)
	GetStaff(ctx context.Context, id int64) (*models.Staff, error)
	GetAppointment(ctx context.Context, id int64) (*models.Appointment, error)
	CreateAppointment(ctx context.Context, a *models.Appointment) error
	UpdateAppointment(ctx context.Context, a *models.Appointment) error
	UpdateAppointmentStatus(ctx context.Context, id int64, status string) error
	ListAppointmentsInRange(ctx context.Context, staffID int64, from, to time.Time) ([]models.Appointment, error)
}

// Publisher delivers appointment lifecycle events.
type Publisher interface {
	Publish(event events.Event)
}

// Service is the scheduling engine's write side plus slot queries.
type Service struct {
	store      Store
	resolver   *schedule.Resolver
	bus        Publisher
	logger     *zerolog.Logger
	now        func() time.Time
	maxAdvance time.Duration // 0 means no horizon
}

// NewService creates a booking service. The bus may be nil.
func NewService(store Store, resolver *schedule.Resolver, bus Publisher, logger *zerolog.Logger) *Service {
	return &Service{
		store:    store,
		resolver: resolver,
		bus:      bus,
		logger:   logger,
		now:      time.Now,
	}
}

// SetMaxAdvance limits how far ahead new appointments may start.
func (s *Service) SetMaxAdvance(d time.Duration) {
	s.maxAdvance = d
}

// BookRequest carries everything needed to create an appointment.
type BookRequest struct {
	OrganizationID int64
	StaffID        int64
	StartUTC       time.Time
	EndUTC         time.Time
	ClientName     string
	ClientPhone    string
	Notes          string
}

// Patch describes a partial appointment update. Nil fields stay unchanged.
type Patch struct {
	ClientName  *string
	ClientPhone *string
	StaffID     *int64
	StartUTC    *time.Time
	EndUTC      *time.Time
	Notes       *string
}

func (p *Patch) touchesTiming() bool {
	return p.StaffID != nil || p.StartUTC != nil || p.EndUTC != nil
}

// QueryAvailableSlots computes the slot sequence for a staff member on the
// civil date carried by date (its year, month and day), interpreted in the
// organization's zone. excludeID > 0 removes that appointment from the
// occupied set.
func (s *Service) QueryAvailableSlots(ctx context.Context, staffID int64, date time.Time, durationMin int, excludeID int64) ([]models.Slot, error) {
	if durationMin <= 0 {
		return nil, validationErr("duration", "must be positive, got %d", durationMin)
	}

	staff, err := s.store.GetStaff(ctx, staffID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, fmt.Errorf("staff %d: %w", staffID, ErrNotFound)
		}
		return nil, fmt.Errorf("load staff %d: %w", staffID, err)
	}

	loc, err := s.orgLocation(ctx, staff.OrganizationID)
	if err != nil {
		return nil, err
	}

	// Callers pass a civil date; its location may be UTC or anything else.
	// Re-anchor it in the organization's zone so the day never shifts.
	date = timeutil.AnchorDay(date, loc)

	windows, err := s.resolver.Resolve(ctx, staffID, date, loc)
	if err != nil {
		return nil, fmt.Errorf("resolve working hours: %w", err)
	}

	dayStart, dayEnd := timeutil.LocalDayRange(date, loc)
	appts, err := s.store.ListAppointmentsInRange(ctx, staffID, dayStart, dayEnd)
	if err != nil {
		return nil, fmt.Errorf("load appointments: %w", err)
	}

	metrics.IncSlotQuery()
	return slots.Generate(windows, appts, date, durationMin, loc, s.now(), excludeID), nil
}

// Book validates and persists a new appointment. The pre-write slot check
// is advisory only; if another booker wins the race the store rejects the
// insert and Book returns ErrConflict.
func (s *Service) Book(ctx context.Context, req BookRequest) (*models.Appointment, error) {
	name := strings.TrimSpace(req.ClientName)
	if name == "" {
		return nil, validationErr("client_name", "is required")
	}
	phone := strings.TrimSpace(req.ClientPhone)
	if phone != "" && !phonePattern.MatchString(phone) {
		return nil, validationErr("client_phone", "has invalid characters")
	}
	if !req.EndUTC.After(req.StartUTC) {
		return nil, validationErr("end_time", "must be after start time")
	}
	now := s.now()
	if !req.StartUTC.After(now) {
		return nil, validationErr("start_time", "must be in the future")
	}
	if s.maxAdvance > 0 && req.StartUTC.After(now.Add(s.maxAdvance)) {
		return nil, validationErr("start_time", "is beyond the booking horizon")
	}

	staff, err := s.store.GetStaff(ctx, req.StaffID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, fmt.Errorf("staff %d: %w", req.StaffID, ErrNotFound)
		}
		return nil, fmt.Errorf("load staff %d: %w", req.StaffID, err)
	}
	if staff.OrganizationID != req.OrganizationID {
		return nil, validationErr("staff_id", "does not belong to organization %d", req.OrganizationID)
	}

	// Advisory availability check for fast feedback. Stale by write time.
	durationMin := int(req.EndUTC.Sub(req.StartUTC) / time.Minute)
	if err := s.checkRequestedSlot(ctx, req.StaffID, req.StartUTC, durationMin, 0); err != nil {
		return nil, err
	}

	appt := &models.Appointment{
		OrganizationID: req.OrganizationID,
		StaffID:        req.StaffID,
		ClientName:     name,
		ClientPhone:    phone,
		StartTime:      req.StartUTC.UTC(),
		EndTime:        req.EndUTC.UTC(),
		Status:         models.StatusPending,
		Notes:          req.Notes,
	}

	if err := s.store.CreateAppointment(ctx, appt); err != nil {
		if errors.Is(err, database.ErrOverlap) {
			metrics.IncConflict()
			if s.logger != nil {
				s.logger.Info().Int64("staff_id", req.StaffID).Time("start", req.StartUTC).
					Msg("booking lost interval race")
			}
			return nil, ErrConflict
		}
		return nil, fmt.Errorf("create appointment: %w", err)
	}

	metrics.IncAppointmentCreated(appt.Status)
	s.publish(events.AppointmentCreated, appt)
	return appt, nil
}

// Update re-validates and persists changes to an existing appointment.
// Past appointments are frozen. Contact-only patches skip availability
// recomputation; staff/timing changes re-run the slot query with the
// appointment itself excluded, so it cannot be blocked by its own interval.
func (s *Service) Update(ctx context.Context, appointmentID int64, patch Patch) (*models.Appointment, error) {
	appt, err := s.store.GetAppointment(ctx, appointmentID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, fmt.Errorf("appointment %d: %w", appointmentID, ErrNotFound)
		}
		return nil, fmt.Errorf("load appointment %d: %w", appointmentID, err)
	}

	now := s.now()
	if !appt.EndTime.After(now) {
		return nil, ErrPastAppointment
	}

	if patch.ClientName != nil {
		name := strings.TrimSpace(*patch.ClientName)
		if name == "" {
			return nil, validationErr("client_name", "is required")
		}
		appt.ClientName = name
	}
	if patch.ClientPhone != nil {
		phone := strings.TrimSpace(*patch.ClientPhone)
		if phone != "" && !phonePattern.MatchString(phone) {
			return nil, validationErr("client_phone", "has invalid characters")
		}
		appt.ClientPhone = phone
	}
	if patch.Notes != nil {
		appt.Notes = *patch.Notes
	}

	if patch.touchesTiming() {
		if patch.StaffID != nil {
			newStaff, err := s.store.GetStaff(ctx, *patch.StaffID)
			if err != nil {
				if errors.Is(err, database.ErrNotFound) {
					return nil, fmt.Errorf("staff %d: %w", *patch.StaffID, ErrNotFound)
				}
				return nil, fmt.Errorf("load staff %d: %w", *patch.StaffID, err)
			}
			if newStaff.OrganizationID != appt.OrganizationID {
				return nil, validationErr("staff_id", "does not belong to organization %d", appt.OrganizationID)
			}
			appt.StaffID = newStaff.ID
		}
		if patch.StartUTC != nil {
			appt.StartTime = patch.StartUTC.UTC()
		}
		if patch.EndUTC != nil {
			appt.EndTime = patch.EndUTC.UTC()
		}
		if !appt.EndTime.After(appt.StartTime) {
			return nil, validationErr("end_time", "must be after start time")
		}
		if !appt.StartTime.After(now) {
			return nil, validationErr("start_time", "must be in the future")
		}

		// Advisory re-check against the new staff/day, excluding the
		// appointment being moved from the occupied set.
		durationMin := int(appt.EndTime.Sub(appt.StartTime) / time.Minute)
		if err := s.checkRequestedSlot(ctx, appt.StaffID, appt.StartTime, durationMin, appt.ID); err != nil {
			return nil, err
		}
	}

	if err := s.store.UpdateAppointment(ctx, appt); err != nil {
		switch {
		case errors.Is(err, database.ErrOverlap):
			metrics.IncConflict()
			return nil, ErrConflict
		case errors.Is(err, database.ErrNotFound):
			return nil, fmt.Errorf("appointment %d: %w", appointmentID, ErrNotFound)
		default:
			return nil, fmt.Errorf("update appointment: %w", err)
		}
	}

	s.publish(events.AppointmentRescheduled, appt)
	return appt, nil
}

// Cancel transitions an appointment to canceled. Past appointments are
// frozen; canceling an already-canceled appointment is a no-op returning
// the current status.
func (s *Service) Cancel(ctx context.Context, appointmentID int64) (string, error) {
	appt, err := s.store.GetAppointment(ctx, appointmentID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return "", fmt.Errorf("appointment %d: %w", appointmentID, ErrNotFound)
		}
		return "", fmt.Errorf("load appointment %d: %w", appointmentID, err)
	}

	if !appt.EndTime.After(s.now()) {
		return "", ErrPastAppointment
	}
	if appt.Status == models.StatusCanceled {
		return appt.Status, nil
	}

	if err := s.store.UpdateAppointmentStatus(ctx, appointmentID, models.StatusCanceled); err != nil {
		return "", fmt.Errorf("cancel appointment %d: %w", appointmentID, err)
	}

	appt.Status = models.StatusCanceled
	metrics.IncAppointmentCanceled()
	s.publish(events.AppointmentCanceled, appt)
	return appt.Status, nil
}

// checkRequestedSlot verifies the requested start is among the free slots
// for that staff member and day. This is the advisory check: it produces a
// precise error for the user, but the store re-arbitrates at write time.
func (s *Service) checkRequestedSlot(ctx context.Context, staffID int64, startUTC time.Time, durationMin int, excludeID int64) error {
	available, err := s.QueryAvailableSlots(ctx, staffID, startUTC, durationMin, excludeID)
	if err != nil {
		return err
	}
	for _, slot := range available {
		if slot.Available && slot.StartUTC.Equal(startUTC) {
			return nil
		}
	}
	return validationErr("start_time", "requested time is not an available slot")
}

func (s *Service) orgLocation(ctx context.Context, organizationID int64) (*time.Location, error) {
	org, err := s.store.GetOrganization(ctx, organizationID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, fmt.Errorf("organization %d: %w", organizationID, ErrNotFound)
		}
		return nil, fmt.Errorf("load organization %d: %w", organizationID, err)
	}
	loc, err := time.LoadLocation(org.Timezone)
	if err != nil {
		return nil, fmt.Errorf("organization %d zone %q: %w", organizationID, org.Timezone, err)
	}
	return loc, nil
}

func (s *Service) publish(eventType string, appt *models.Appointment) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(events.Event{Type: eventType, Appointment: *appt})
}

// SetClock overrides the time source. Tests only.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}
