// Package bot is the conversational front-end. It identifies clients by
// phone number instead of an authenticated session and drives bookings
// through the same engine primitives as the HTTP API, so the two surfaces
// can never disagree about conflicts.
package bot

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"slotline/internal/booking"
	"slotline/internal/models"
	"slotline/internal/session"
	"slotline/internal/slots"
	"slotline/internal/timeutil"
)

// Dialog states.
const (
	StateIdle       = "idle"
	StateAskName    = "ask_name"
	StateAskPhone   = "ask_phone"
	StateAskStaff   = "ask_staff"
	StateAskDate    = "ask_date"
	StateAskSlot    = "ask_slot"
	StateConfirm    = "confirm"
	StateCancelPick = "cancel_pick"
)

// Engine is the subset of booking primitives the dialog consumes.
type Engine interface {
	QueryAvailableSlots(ctx context.Context, staffID int64, date time.Time, durationMin int, excludeID int64) ([]models.Slot, error)
	Book(ctx context.Context, req booking.BookRequest) (*models.Appointment, error)
	Cancel(ctx context.Context, appointmentID int64) (string, error)
}

// Directory lists bookable staff and looks up a client's appointments.
type Directory interface {
	ListStaff(ctx context.Context, organizationID int64) ([]models.Staff, error)
	ListAppointmentsByPhone(ctx context.Context, organizationID int64, phone string, after time.Time) ([]models.Appointment, error)
}

// Flow is the booking dialog state machine. It is transport-agnostic:
// the Telegram loop feeds it text and relays replies.
type Flow struct {
	engine      Engine
	directory   Directory
	org         *models.Organization
	loc         *time.Location
	durationMin int
	now         func() time.Time
}

// NewFlow creates a dialog flow for one organization.
func NewFlow(engine Engine, directory Directory, org *models.Organization, loc *time.Location, durationMin int) *Flow {
	if durationMin <= 0 {
		durationMin = 30
	}
	return &Flow{
		engine:      engine,
		directory:   directory,
		org:         org,
		loc:         loc,
		durationMin: durationMin,
		now:         time.Now,
	}
}

var phoneInput = regexp.MustCompile(`^\+?[0-9()\-\s.]{5,20}$`)

// HandleInput advances the dialog with one user message and returns the
// reply. done is true when the session should be cleared.
func (f *Flow) HandleInput(ctx context.Context, sess *session.Session, input string) (reply string, done bool, err error) {
	input = strings.TrimSpace(input)

	switch strings.ToLower(input) {
	case "/cancel", "cancel":
		return "Booking canceled. Send /book to start over.", true, nil
	case "/book":
		sess.State = StateAskName
		return "Let's book an appointment. What is your full name?", false, nil
	case "/mybookings":
		return f.startCancelFlow(ctx, sess)
	}

	switch sess.State {
	case StateAskName:
		return f.handleName(sess, input)
	case StateAskPhone:
		return f.handlePhone(ctx, sess, input)
	case StateAskStaff:
		return f.handleStaff(ctx, sess, input)
	case StateAskDate:
		return f.handleDate(ctx, sess, input)
	case StateAskSlot:
		return f.handleSlot(ctx, sess, input)
	case StateConfirm:
		return f.handleConfirm(ctx, sess, input)
	case StateCancelPick:
		return f.handleCancelPick(ctx, sess, input)
	default:
		return "Send /book to make an appointment or /mybookings to manage existing ones.", false, nil
	}
}

func (f *Flow) handleName(sess *session.Session, input string) (string, bool, error) {
	if input == "" {
		return "Please enter your name.", false, nil
	}
	sess.ClientName = input
	sess.State = StateAskPhone
	return "What phone number can we reach you on?", false, nil
}

func (f *Flow) handlePhone(ctx context.Context, sess *session.Session, input string) (string, bool, error) {
	if !phoneInput.MatchString(input) {
		return "That doesn't look like a phone number. Please try again.", false, nil
	}
	sess.ClientPhone = input
	sess.State = StateAskStaff

	staff, err := f.directory.ListStaff(ctx, f.org.ID)
	if err != nil {
		return "", false, fmt.Errorf("list staff: %w", err)
	}
	if len(staff) == 0 {
		return "No one is currently taking bookings. Please try again later.", true, nil
	}
	return "Who would you like to book with?\n" + numberedStaff(staff), false, nil
}

func (f *Flow) handleStaff(ctx context.Context, sess *session.Session, input string) (string, bool, error) {
	staff, err := f.directory.ListStaff(ctx, f.org.ID)
	if err != nil {
		return "", false, fmt.Errorf("list staff: %w", err)
	}

	chosen, ok := pickStaff(staff, input)
	if !ok {
		return "Please pick a number from the list.\n" + numberedStaff(staff), false, nil
	}
	sess.StaffID = chosen.ID
	sess.StaffName = chosen.Name
	sess.State = StateAskDate
	return "Which date? (YYYY-MM-DD)", false, nil
}

func (f *Flow) handleDate(ctx context.Context, sess *session.Session, input string) (string, bool, error) {
	date, err := time.Parse("2006-01-02", input)
	if err != nil {
		return "Please use the YYYY-MM-DD format, e.g. 2026-03-10.", false, nil
	}
	date = timeutil.AnchorDay(date, f.loc)

	free, err := f.freeSlots(ctx, sess.StaffID, date)
	if err != nil {
		return "", false, err
	}
	if len(free) == 0 {
		return "No free slots on that day. Try another date (YYYY-MM-DD).", false, nil
	}

	sess.Date = date
	sess.State = StateAskSlot
	return "Available times:\n" + slotLabels(free) + "\nPick a time (HH:MM).", false, nil
}

func (f *Flow) handleSlot(ctx context.Context, sess *session.Session, input string) (string, bool, error) {
	free, err := f.freeSlots(ctx, sess.StaffID, sess.Date)
	if err != nil {
		return "", false, err
	}

	var chosen *models.Slot
	for i := range free {
		if free[i].Label == input {
			chosen = &free[i]
			break
		}
	}
	if chosen == nil {
		if len(free) == 0 {
			sess.State = StateAskDate
			return "That day just filled up. Try another date (YYYY-MM-DD).", false, nil
		}
		return "Pick one of the listed times:\n" + slotLabels(free), false, nil
	}

	sess.StartUTC = chosen.StartUTC
	sess.EndUTC = chosen.EndUTC
	sess.State = StateConfirm
	return fmt.Sprintf("Book %s with %s on %s at %s? (yes/no)",
		f.org.Name, sess.StaffName,
		chosen.StartUTC.In(f.loc).Format("2006-01-02"), chosen.Label,
	), false, nil
}

func (f *Flow) handleConfirm(ctx context.Context, sess *session.Session, input string) (string, bool, error) {
	switch strings.ToLower(input) {
	case "yes", "y":
	case "no", "n":
		return "Booking canceled. Send /book to start over.", true, nil
	default:
		return "Please reply yes or no.", false, nil
	}

	appt, err := f.engine.Book(ctx, booking.BookRequest{
		OrganizationID: f.org.ID,
		StaffID:        sess.StaffID,
		StartUTC:       sess.StartUTC,
		EndUTC:         sess.EndUTC,
		ClientName:     sess.ClientName,
		ClientPhone:    sess.ClientPhone,
	})
	switch {
	case err == nil:
		return fmt.Sprintf("Booked! %s with %s at %s. Your reference is %s.",
			appt.StartTime.In(f.loc).Format("2006-01-02"), sess.StaffName,
			appt.StartTime.In(f.loc).Format("15:04"), appt.Reference,
		), true, nil
	case errors.Is(err, booking.ErrConflict):
		// Someone else took the slot between listing and confirming.
		sess.State = StateAskSlot
		free, ferr := f.freeSlots(ctx, sess.StaffID, sess.Date)
		if ferr != nil || len(free) == 0 {
			sess.State = StateAskDate
			return "That time was just taken and the day is now full. Try another date (YYYY-MM-DD).", false, nil
		}
		return "That time was just taken. Still available:\n" + slotLabels(free) + "\nPick a time (HH:MM).", false, nil
	default:
		var vErr *booking.ValidationError
		if errors.As(err, &vErr) {
			sess.State = StateAskSlot
			return "That time is no longer available. Pick another time (HH:MM).", false, nil
		}
		return "", false, fmt.Errorf("book: %w", err)
	}
}

func (f *Flow) startCancelFlow(ctx context.Context, sess *session.Session) (string, bool, error) {
	if sess.ClientPhone == "" {
		sess.State = StateCancelPick
		sess.Extra = map[string]any{"need_phone": true}
		return "What phone number did you book with?", false, nil
	}
	return f.listBookingsForCancel(ctx, sess)
}

func (f *Flow) handleCancelPick(ctx context.Context, sess *session.Session, input string) (string, bool, error) {
	if sess.Extra != nil && sess.Extra["need_phone"] == true {
		if !phoneInput.MatchString(input) {
			return "That doesn't look like a phone number. Please try again.", false, nil
		}
		sess.ClientPhone = input
		delete(sess.Extra, "need_phone")
		return f.listBookingsForCancel(ctx, sess)
	}

	appts, err := f.directory.ListAppointmentsByPhone(ctx, f.org.ID, sess.ClientPhone, f.now())
	if err != nil {
		return "", false, fmt.Errorf("list appointments: %w", err)
	}
	idx, err := strconv.Atoi(strings.TrimSpace(input))
	if err != nil || idx < 1 || idx > len(appts) {
		return "Pick a number from the list, or send /cancel to stop.", false, nil
	}

	status, err := f.engine.Cancel(ctx, appts[idx-1].ID)
	if err != nil {
		if errors.Is(err, booking.ErrPastAppointment) {
			return "That appointment already ended and cannot be canceled.", true, nil
		}
		return "", false, fmt.Errorf("cancel: %w", err)
	}
	return fmt.Sprintf("Appointment on %s is now %s.",
		appts[idx-1].StartTime.In(f.loc).Format("2006-01-02 15:04"), status), true, nil
}

func (f *Flow) listBookingsForCancel(ctx context.Context, sess *session.Session) (string, bool, error) {
	appts, err := f.directory.ListAppointmentsByPhone(ctx, f.org.ID, sess.ClientPhone, f.now())
	if err != nil {
		return "", false, fmt.Errorf("list appointments: %w", err)
	}
	if len(appts) == 0 {
		return "No upcoming appointments found for that number.", true, nil
	}

	var b strings.Builder
	b.WriteString("Your upcoming appointments:\n")
	for i, a := range appts {
		fmt.Fprintf(&b, "%d. %s %s (%s)\n", i+1,
			a.StartTime.In(f.loc).Format("2006-01-02"),
			a.StartTime.In(f.loc).Format("15:04"),
			a.Status,
		)
	}
	b.WriteString("Send the number to cancel, or /cancel to keep them all.")
	sess.State = StateCancelPick
	return b.String(), false, nil
}

func (f *Flow) freeSlots(ctx context.Context, staffID int64, date time.Time) ([]models.Slot, error) {
	all, err := f.engine.QueryAvailableSlots(ctx, staffID, date, f.durationMin, 0)
	if err != nil {
		return nil, fmt.Errorf("query slots: %w", err)
	}
	return slots.FreeOnly(all), nil
}

func numberedStaff(staff []models.Staff) string {
	var b strings.Builder
	for i, s := range staff {
		fmt.Fprintf(&b, "%d. %s\n", i+1, s.Name)
	}
	return b.String()
}

func pickStaff(staff []models.Staff, input string) (models.Staff, bool) {
	if num, err := strconv.Atoi(strings.TrimSpace(input)); err == nil {
		if num >= 1 && num <= len(staff) {
			return staff[num-1], true
		}
		return models.Staff{}, false
	}
	lower := strings.ToLower(strings.TrimSpace(input))
	for _, s := range staff {
		if strings.ToLower(s.Name) == lower || strings.Contains(strings.ToLower(s.Name), lower) {
			return s, true
		}
	}
	return models.Staff{}, false
}

func slotLabels(free []models.Slot) string {
	labels := make([]string, len(free))
	for i, s := range free {
		labels[i] = s.Label
	}
	return strings.Join(labels, "  ")
}
