package booking

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"slotline/internal/database"
	"slotline/internal/events"
	"slotline/internal/models"
	"slotline/internal/schedule"
)

type mockStore struct {
	mock.Mock
}

func (m *mockStore) GetOrganization(ctx context.Context, id int64) (*models.Organization, error) {
	args := m.Called(ctx, id)
	if org := args.Get(0); org != nil {
		return org.(*models.Organization), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockStore) GetStaff(ctx context.Context, id int64) (*models.Staff, error) {
	args := m.Called(ctx, id)
	if s := args.Get(0); s != nil {
		return s.(*models.Staff), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockStore) GetAppointment(ctx context.Context, id int64) (*models.Appointment, error) {
	args := m.Called(ctx, id)
	if a := args.Get(0); a != nil {
		return a.(*models.Appointment), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockStore) CreateAppointment(ctx context.Context, a *models.Appointment) error {
	args := m.Called(ctx, a)
	return args.Error(0)
}

func (m *mockStore) UpdateAppointment(ctx context.Context, a *models.Appointment) error {
	args := m.Called(ctx, a)
	return args.Error(0)
}

func (m *mockStore) UpdateAppointmentStatus(ctx context.Context, id int64, status string) error {
	args := m.Called(ctx, id, status)
	return args.Error(0)
}

func (m *mockStore) ListAppointmentsInRange(ctx context.Context, staffID int64, from, to time.Time) ([]models.Appointment, error) {
	args := m.Called(ctx, staffID, from, to)
	if a := args.Get(0); a != nil {
		return a.([]models.Appointment), args.Error(1)
	}
	return nil, args.Error(1)
}

// everyDayBlocks answers every weekday with the same window set.
type everyDayBlocks struct {
	blocks []models.WorkingHourBlock
}

func (e everyDayBlocks) GetBlocksForDay(_ context.Context, _ int64, dayOfWeek int) ([]models.WorkingHourBlock, error) {
	out := make([]models.WorkingHourBlock, len(e.blocks))
	copy(out, e.blocks)
	for i := range out {
		out[i].DayOfWeek = dayOfWeek
	}
	return out, nil
}

type busRecorder struct {
	published []events.Event
}

func (b *busRecorder) Publish(ev events.Event) {
	b.published = append(b.published, ev)
}

var (
	testOrg   = &models.Organization{ID: 1, Name: "Clinic", Slug: "clinic", Timezone: "UTC"}
	testStaff = &models.Staff{ID: 2, OrganizationID: 1, Name: "Dr. Silva"}
	// The clock is frozen the day before every appointment under test.
	frozenNow = time.Date(2026, time.March, 31, 12, 0, 0, 0, time.UTC)
)

func newTestService(store *mockStore, bus *busRecorder) *Service {
	resolver := schedule.NewResolver(everyDayBlocks{blocks: []models.WorkingHourBlock{
		{StartTime: "09:00", EndTime: "17:00"},
	}})
	var pub Publisher
	if bus != nil {
		pub = bus
	}
	svc := NewService(store, resolver, pub, nil)
	svc.SetClock(func() time.Time { return frozenNow })
	return svc
}

func at(hour, min int) time.Time {
	return time.Date(2026, time.April, 1, hour, min, 0, 0, time.UTC)
}

func TestQueryAvailableSlots(t *testing.T) {
	store := &mockStore{}
	store.On("GetStaff", mock.Anything, int64(2)).Return(testStaff, nil)
	store.On("GetOrganization", mock.Anything, int64(1)).Return(testOrg, nil)
	store.On("ListAppointmentsInRange", mock.Anything, int64(2), mock.Anything, mock.Anything).
		Return([]models.Appointment(nil), nil)

	svc := newTestService(store, nil)
	got, err := svc.QueryAvailableSlots(context.Background(), 2, at(12, 0), 30, 0)

	require.NoError(t, err)
	require.Len(t, got, 16)
	assert.Equal(t, "09:00", got[0].Label)
	assert.Equal(t, "16:30", got[15].Label)
}

// singleDayBlocks answers one weekday only; every other day is empty.
type singleDayBlocks struct {
	day    int
	blocks []models.WorkingHourBlock
}

func (s singleDayBlocks) GetBlocksForDay(_ context.Context, _ int64, dayOfWeek int) ([]models.WorkingHourBlock, error) {
	if dayOfWeek != s.day {
		return nil, nil
	}
	out := make([]models.WorkingHourBlock, len(s.blocks))
	copy(out, s.blocks)
	for i := range out {
		out[i].DayOfWeek = dayOfWeek
	}
	return out, nil
}

func TestQueryAvailableSlotsFarEastZone(t *testing.T) {
	if _, err := time.LoadLocation("Pacific/Auckland"); err != nil {
		t.Skipf("zone data unavailable: %v", err)
	}

	store := &mockStore{}
	org := &models.Organization{ID: 1, Name: "Clinic", Slug: "clinic", Timezone: "Pacific/Auckland"}
	store.On("GetStaff", mock.Anything, int64(2)).Return(testStaff, nil)
	store.On("GetOrganization", mock.Anything, int64(1)).Return(org, nil)
	store.On("ListAppointmentsInRange", mock.Anything, int64(2), mock.Anything, mock.Anything).
		Return([]models.Appointment(nil), nil)

	// Monday-only hours. Monday 2026-01-05 falls in Auckland summer time
	// (UTC+13), so midnight UTC of that date is already local Tuesday.
	resolver := schedule.NewResolver(singleDayBlocks{day: 1, blocks: []models.WorkingHourBlock{
		{StartTime: "09:00", EndTime: "12:00"},
	}})
	svc := NewService(store, resolver, nil, nil)
	svc.SetClock(func() time.Time {
		return time.Date(2026, time.January, 4, 0, 0, 0, 0, time.UTC)
	})

	// The HTTP handler hands the date over exactly as parsed: midnight UTC.
	date, err := time.Parse("2006-01-02", "2026-01-05")
	require.NoError(t, err)

	got, err := svc.QueryAvailableSlots(context.Background(), 2, date, 30, 0)
	require.NoError(t, err)
	require.Len(t, got, 6)
	assert.Equal(t, "09:00", got[0].Label)
	// Monday 09:00 NZDT is Sunday 20:00 UTC.
	assert.Equal(t, time.Date(2026, time.January, 4, 20, 0, 0, 0, time.UTC), got[0].StartUTC)
}

func TestQueryAvailableSlotsBadDuration(t *testing.T) {
	svc := newTestService(&mockStore{}, nil)

	_, err := svc.QueryAvailableSlots(context.Background(), 2, at(12, 0), 0, 0)

	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "duration", vErr.Field)
}

func TestQueryAvailableSlotsStaffNotFound(t *testing.T) {
	store := &mockStore{}
	store.On("GetStaff", mock.Anything, int64(99)).Return(nil, database.ErrNotFound)

	svc := newTestService(store, nil)
	_, err := svc.QueryAvailableSlots(context.Background(), 99, at(12, 0), 30, 0)

	assert.ErrorIs(t, err, ErrNotFound)
}

func TestBook(t *testing.T) {
	store := &mockStore{}
	store.On("GetStaff", mock.Anything, int64(2)).Return(testStaff, nil)
	store.On("GetOrganization", mock.Anything, int64(1)).Return(testOrg, nil)
	store.On("ListAppointmentsInRange", mock.Anything, int64(2), mock.Anything, mock.Anything).
		Return([]models.Appointment(nil), nil)
	store.On("CreateAppointment", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			args.Get(1).(*models.Appointment).ID = 10
		}).
		Return(nil)

	bus := &busRecorder{}
	svc := newTestService(store, bus)

	appt, err := svc.Book(context.Background(), BookRequest{
		OrganizationID: 1,
		StaffID:        2,
		StartUTC:       at(10, 0),
		EndUTC:         at(10, 30),
		ClientName:     "  Maria  ",
		ClientPhone:    "+55 11 99999-0000",
	})

	require.NoError(t, err)
	assert.Equal(t, int64(10), appt.ID)
	assert.Equal(t, "Maria", appt.ClientName, "name is trimmed")
	assert.Equal(t, models.StatusPending, appt.Status)

	require.Len(t, bus.published, 1)
	assert.Equal(t, events.AppointmentCreated, bus.published[0].Type)
}

func TestBookValidation(t *testing.T) {
	base := BookRequest{
		OrganizationID: 1,
		StaffID:        2,
		StartUTC:       at(10, 0),
		EndUTC:         at(10, 30),
		ClientName:     "Maria",
	}

	tests := []struct {
		name      string
		mutate    func(*BookRequest)
		wantField string
	}{
		{"empty name", func(r *BookRequest) { r.ClientName = "   " }, "client_name"},
		{"bad phone", func(r *BookRequest) { r.ClientPhone = "not-a-phone!" }, "client_phone"},
		{"end before start", func(r *BookRequest) { r.EndUTC = at(9, 30) }, "end_time"},
		{"zero length", func(r *BookRequest) { r.EndUTC = r.StartUTC }, "end_time"},
		{
			"start in the past",
			func(r *BookRequest) {
				r.StartUTC = frozenNow.Add(-time.Hour)
				r.EndUTC = frozenNow.Add(-30 * time.Minute)
			},
			"start_time",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &mockStore{}
			svc := newTestService(store, nil)

			req := base
			tt.mutate(&req)
			_, err := svc.Book(context.Background(), req)

			var vErr *ValidationError
			require.ErrorAs(t, err, &vErr)
			assert.Equal(t, tt.wantField, vErr.Field)
			store.AssertNotCalled(t, "CreateAppointment", mock.Anything, mock.Anything)
		})
	}
}

func TestBookBeyondHorizon(t *testing.T) {
	store := &mockStore{}
	svc := newTestService(store, nil)
	svc.SetMaxAdvance(24 * time.Hour)

	_, err := svc.Book(context.Background(), BookRequest{
		OrganizationID: 1,
		StaffID:        2,
		StartUTC:       frozenNow.Add(48 * time.Hour),
		EndUTC:         frozenNow.Add(48*time.Hour + 30*time.Minute),
		ClientName:     "Maria",
	})

	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "start_time", vErr.Field)
}

func TestBookStaffFromOtherOrganization(t *testing.T) {
	store := &mockStore{}
	store.On("GetStaff", mock.Anything, int64(2)).
		Return(&models.Staff{ID: 2, OrganizationID: 42, Name: "Elsewhere"}, nil)

	svc := newTestService(store, nil)
	_, err := svc.Book(context.Background(), BookRequest{
		OrganizationID: 1,
		StaffID:        2,
		StartUTC:       at(10, 0),
		EndUTC:         at(10, 30),
		ClientName:     "Maria",
	})

	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "staff_id", vErr.Field)
}

func TestBookOffSlotStart(t *testing.T) {
	store := &mockStore{}
	store.On("GetStaff", mock.Anything, int64(2)).Return(testStaff, nil)
	store.On("GetOrganization", mock.Anything, int64(1)).Return(testOrg, nil)
	store.On("ListAppointmentsInRange", mock.Anything, int64(2), mock.Anything, mock.Anything).
		Return([]models.Appointment(nil), nil)

	svc := newTestService(store, nil)
	_, err := svc.Book(context.Background(), BookRequest{
		OrganizationID: 1,
		StaffID:        2,
		StartUTC:       at(10, 15),
		EndUTC:         at(10, 45),
		ClientName:     "Maria",
	})

	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "start_time", vErr.Field)
	store.AssertNotCalled(t, "CreateAppointment", mock.Anything, mock.Anything)
}

func TestBookLostRaceReturnsConflict(t *testing.T) {
	store := &mockStore{}
	store.On("GetStaff", mock.Anything, int64(2)).Return(testStaff, nil)
	store.On("GetOrganization", mock.Anything, int64(1)).Return(testOrg, nil)
	store.On("ListAppointmentsInRange", mock.Anything, int64(2), mock.Anything, mock.Anything).
		Return([]models.Appointment(nil), nil)
	store.On("CreateAppointment", mock.Anything, mock.Anything).Return(database.ErrOverlap)

	bus := &busRecorder{}
	svc := newTestService(store, bus)

	_, err := svc.Book(context.Background(), BookRequest{
		OrganizationID: 1,
		StaffID:        2,
		StartUTC:       at(10, 0),
		EndUTC:         at(10, 30),
		ClientName:     "Maria",
	})

	assert.ErrorIs(t, err, ErrConflict)
	assert.Empty(t, bus.published, "lost race must not publish an event")
}

func TestRescheduleNotBlockedByOwnInterval(t *testing.T) {
	newAppt := func() *models.Appointment {
		return &models.Appointment{
			ID:             7,
			OrganizationID: 1,
			StaffID:        2,
			ClientName:     "Maria",
			Status:         models.StatusConfirmed,
			StartTime:      at(10, 0),
			EndTime:        at(10, 30),
		}
	}

	newStore := func(existing *models.Appointment) *mockStore {
		store := &mockStore{}
		store.On("GetAppointment", mock.Anything, int64(7)).Return(existing, nil)
		store.On("GetStaff", mock.Anything, int64(2)).Return(testStaff, nil)
		store.On("GetOrganization", mock.Anything, int64(1)).Return(testOrg, nil)
		// The day's occupied set still contains the appointment being moved.
		store.On("ListAppointmentsInRange", mock.Anything, int64(2), mock.Anything, mock.Anything).
			Return([]models.Appointment{*existing}, nil)
		store.On("UpdateAppointment", mock.Anything, mock.Anything).Return(nil)
		return store
	}

	t.Run("rebook the exact slot it holds", func(t *testing.T) {
		existing := newAppt()
		svc := newTestService(newStore(existing), nil)

		// StaffID alone forces the timing re-validation path; the slot
		// requested is the one the appointment already occupies.
		staffID := int64(2)
		got, err := svc.Update(context.Background(), 7, Patch{StaffID: &staffID})

		require.NoError(t, err, "an appointment must not be blocked by its own interval")
		assert.True(t, got.StartTime.Equal(at(10, 0)))
	})

	t.Run("move to the adjacent slot", func(t *testing.T) {
		existing := newAppt()
		svc := newTestService(newStore(existing), nil)

		newStart := at(10, 30)
		newEnd := at(11, 0)
		got, err := svc.Update(context.Background(), 7, Patch{StartUTC: &newStart, EndUTC: &newEnd})

		require.NoError(t, err)
		assert.True(t, got.StartTime.Equal(newStart))
		assert.True(t, got.EndTime.Equal(newEnd))
	})
}

func TestUpdatePastAppointmentFrozen(t *testing.T) {
	past := &models.Appointment{
		ID:             8,
		OrganizationID: 1,
		StaffID:        2,
		StartTime:      frozenNow.Add(-2 * time.Hour),
		EndTime:        frozenNow.Add(-time.Hour),
		Status:         models.StatusCompleted,
	}

	store := &mockStore{}
	store.On("GetAppointment", mock.Anything, int64(8)).Return(past, nil)

	svc := newTestService(store, nil)

	name := "New Name"
	_, err := svc.Update(context.Background(), 8, Patch{ClientName: &name})

	assert.ErrorIs(t, err, ErrPastAppointment)
	store.AssertNotCalled(t, "UpdateAppointment", mock.Anything, mock.Anything)
}

func TestUpdateContactOnlySkipsAvailability(t *testing.T) {
	existing := &models.Appointment{
		ID:             7,
		OrganizationID: 1,
		StaffID:        2,
		ClientName:     "Maria",
		StartTime:      at(10, 0),
		EndTime:        at(10, 30),
	}

	store := &mockStore{}
	store.On("GetAppointment", mock.Anything, int64(7)).Return(existing, nil)
	store.On("UpdateAppointment", mock.Anything, mock.Anything).Return(nil)

	svc := newTestService(store, nil)

	phone := "+5511988887777"
	got, err := svc.Update(context.Background(), 7, Patch{ClientPhone: &phone})

	require.NoError(t, err)
	assert.Equal(t, phone, got.ClientPhone)
	store.AssertNotCalled(t, "ListAppointmentsInRange", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestUpdateLostRaceReturnsConflict(t *testing.T) {
	existing := &models.Appointment{
		ID:             7,
		OrganizationID: 1,
		StaffID:        2,
		ClientName:     "Maria",
		StartTime:      at(10, 0),
		EndTime:        at(10, 30),
	}

	store := &mockStore{}
	store.On("GetAppointment", mock.Anything, int64(7)).Return(existing, nil)
	store.On("UpdateAppointment", mock.Anything, mock.Anything).Return(database.ErrOverlap)

	svc := newTestService(store, nil)

	notes := "bring documents"
	_, err := svc.Update(context.Background(), 7, Patch{Notes: &notes})

	assert.ErrorIs(t, err, ErrConflict)
}

func TestCancel(t *testing.T) {
	existing := &models.Appointment{
		ID:             7,
		OrganizationID: 1,
		StaffID:        2,
		Status:         models.StatusConfirmed,
		StartTime:      at(10, 0),
		EndTime:        at(10, 30),
	}

	store := &mockStore{}
	store.On("GetAppointment", mock.Anything, int64(7)).Return(existing, nil)
	store.On("UpdateAppointmentStatus", mock.Anything, int64(7), models.StatusCanceled).Return(nil)

	bus := &busRecorder{}
	svc := newTestService(store, bus)

	status, err := svc.Cancel(context.Background(), 7)

	require.NoError(t, err)
	assert.Equal(t, models.StatusCanceled, status)
	require.Len(t, bus.published, 1)
	assert.Equal(t, events.AppointmentCanceled, bus.published[0].Type)
}

func TestCancelAlreadyCanceledIsNoop(t *testing.T) {
	existing := &models.Appointment{
		ID:        7,
		Status:    models.StatusCanceled,
		StartTime: at(10, 0),
		EndTime:   at(10, 30),
	}

	store := &mockStore{}
	store.On("GetAppointment", mock.Anything, int64(7)).Return(existing, nil)

	svc := newTestService(store, nil)
	status, err := svc.Cancel(context.Background(), 7)

	require.NoError(t, err)
	assert.Equal(t, models.StatusCanceled, status)
	store.AssertNotCalled(t, "UpdateAppointmentStatus", mock.Anything, mock.Anything, mock.Anything)
}

func TestCancelPastAppointmentFrozen(t *testing.T) {
	past := &models.Appointment{
		ID:        8,
		Status:    models.StatusCompleted,
		StartTime: frozenNow.Add(-2 * time.Hour),
		EndTime:   frozenNow.Add(-time.Hour),
	}

	store := &mockStore{}
	store.On("GetAppointment", mock.Anything, int64(8)).Return(past, nil)

	svc := newTestService(store, nil)
	_, err := svc.Cancel(context.Background(), 8)

	assert.ErrorIs(t, err, ErrPastAppointment)
	store.AssertNotCalled(t, "UpdateAppointmentStatus", mock.Anything, mock.Anything, mock.Anything)
}
