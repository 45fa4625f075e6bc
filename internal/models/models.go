package models

import "time"

// Appointment statuses.
const (
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
	StatusCompleted = "completed"
	StatusCanceled  = "canceled"
)

// Slot statuses.
const (
	SlotFree     = "free"
	SlotOccupied = "occupied"
)

// Organization is a tenant owning staff, schedules and appointments.
type Organization struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	Industry  string    `json:"industry,omitempty"`
	Timezone  string    `json:"timezone"` // IANA name, e.g. "America/Sao_Paulo"
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Staff is a bookable person within an organization.
type Staff struct {
	ID             int64      `json:"id"`
	OrganizationID int64      `json:"organization_id"`
	Name           string     `json:"name"`
	UserID         int64      `json:"user_id,omitempty"` // linked account, optional
	IsActive       bool       `json:"is_active"`
	DeletedAt      *time.Time `json:"deleted_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// WorkingHourBlock is one recurring weekly interval for a staff member.
// Times are local wall-clock "HH:MM" strings at minute precision.
type WorkingHourBlock struct {
	ID        int64  `json:"id"`
	StaffID   int64  `json:"staff_id"`
	DayOfWeek int    `json:"day_of_week"` // 0-6 (Sunday-Saturday)
	StartTime string `json:"start_time"`  // "09:00"
	EndTime   string `json:"end_time"`    // "12:30"
	IsBreak   bool   `json:"is_break"`
}

// ScheduleTemplate is a named, staff-independent weekly block set.
type ScheduleTemplate struct {
	ID             int64              `json:"id"`
	OrganizationID int64              `json:"organization_id"`
	Name           string             `json:"name"`
	Blocks         []WorkingHourBlock `json:"blocks"`
	CreatedAt      time.Time          `json:"created_at"`
}

// Appointment is a concrete booking. Start and end are universal instants.
type Appointment struct {
	ID             int64      `json:"id"`
	Reference      string     `json:"reference"` // public confirmation code
	OrganizationID int64      `json:"organization_id"`
	StaffID        int64      `json:"staff_id"`
	ClientName     string     `json:"client_name"`
	ClientPhone    string     `json:"client_phone,omitempty"`
	StartTime      time.Time  `json:"start_time"`
	EndTime        time.Time  `json:"end_time"`
	Status         string     `json:"status"`
	Notes          string     `json:"notes,omitempty"`
	DeletedAt      *time.Time `json:"deleted_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// IsFinal reports whether the appointment can no longer change status.
func (a *Appointment) IsFinal() bool {
	return a.Status == StatusCanceled || a.Status == StatusCompleted
}

// Blocks reports whether the appointment occupies its interval for
// availability purposes.
func (a *Appointment) Blocks() bool {
	return a.Status != StatusCanceled && a.DeletedAt == nil
}

// Slot is a derived, never-persisted bookable interval.
type Slot struct {
	StartUTC      time.Time `json:"start_utc"`
	EndUTC        time.Time `json:"end_utc"`
	Label         string    `json:"label"` // local "HH:MM"
	Available     bool      `json:"available"`
	Status        string    `json:"status"` // free | occupied
	AppointmentID int64     `json:"appointment_id,omitempty"`
	ClientName    string    `json:"client_name,omitempty"`
}
