package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"slotline/internal/models"
)

// overlapExists is the shared predicate for the exclusion guarantee:
// non-canceled, non-deleted appointments for one staff member must have
// pairwise non-overlapping [start, end) intervals.
const overlapExists = `
	SELECT 1 FROM appointments
	WHERE staff_id = ?
	AND status != 'canceled'
	AND deleted_at IS NULL
	AND start_time < ? AND end_time > ?
	AND id != ?`

// CreateAppointment inserts a new appointment, enforcing the non-overlap
// invariant atomically: the insert and the overlap check are one statement,
// so no interleaving of two writers can commit both. A rejected write
// returns ErrOverlap.
func (db *DB) CreateAppointment(ctx context.Context, a *models.Appointment) error {
	if a.Reference == "" {
		a.Reference = uuid.NewString()
	}
	if a.Status == "" {
		a.Status = models.StatusPending
	}
	now := time.Now().UTC()

	res, err := db.ExecContext(ctx, `
		INSERT INTO appointments (reference, organization_id, staff_id, client_name, client_phone,
			start_time, end_time, status, notes, created_at, updated_at)
		SELECT ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?
		WHERE NOT EXISTS (`+overlapExists+`)`,
		a.Reference, a.OrganizationID, a.StaffID, a.ClientName, a.ClientPhone,
		a.StartTime.UTC(), a.EndTime.UTC(), a.Status, a.Notes, now, now,
		a.StaffID, a.EndTime.UTC(), a.StartTime.UTC(), int64(0),
	)
	if err != nil {
		return fmt.Errorf("insert appointment: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrOverlap
	}
	a.ID, _ = res.LastInsertId()
	a.CreatedAt = now
	a.UpdatedAt = now
	return nil
}

// GetAppointment returns an appointment by ID. Soft-deleted rows are not found.
func (db *DB) GetAppointment(ctx context.Context, id int64) (*models.Appointment, error) {
	return db.scanAppointment(db.QueryRowContext(ctx, `
		SELECT id, reference, organization_id, staff_id, client_name, client_phone,
		       start_time, end_time, status, notes, deleted_at, created_at, updated_at
		FROM appointments WHERE id = ? AND deleted_at IS NULL`, id))
}

// GetAppointmentByReference returns an appointment by its public reference.
func (db *DB) GetAppointmentByReference(ctx context.Context, reference string) (*models.Appointment, error) {
	return db.scanAppointment(db.QueryRowContext(ctx, `
		SELECT id, reference, organization_id, staff_id, client_name, client_phone,
		       start_time, end_time, status, notes, deleted_at, created_at, updated_at
		FROM appointments WHERE reference = ? AND deleted_at IS NULL`, reference))
}

func (db *DB) scanAppointment(row *sql.Row) (*models.Appointment, error) {
	var a models.Appointment
	var phone, notes sql.NullString
	var deletedAt sql.NullTime
	err := row.Scan(
		&a.ID, &a.Reference, &a.OrganizationID, &a.StaffID, &a.ClientName, &phone,
		&a.StartTime, &a.EndTime, &a.Status, &notes, &deletedAt, &a.CreatedAt, &a.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	a.ClientPhone = phone.String
	a.Notes = notes.String
	if deletedAt.Valid {
		a.DeletedAt = &deletedAt.Time
	}
	return &a, nil
}

// ListAppointmentsInRange returns non-canceled, non-deleted appointments
// for a staff member whose interval intersects [from, to).
func (db *DB) ListAppointmentsInRange(ctx context.Context, staffID int64, from, to time.Time) ([]models.Appointment, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, reference, organization_id, staff_id, client_name, client_phone,
		       start_time, end_time, status, notes, deleted_at, created_at, updated_at
		FROM appointments
		WHERE staff_id = ?
		AND status != 'canceled'
		AND deleted_at IS NULL
		AND start_time < ? AND end_time > ?
		ORDER BY start_time`,
		staffID, to.UTC(), from.UTC(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAppointments(rows)
}

// ListAppointmentsByPhone returns upcoming non-canceled appointments for a
// client phone number, soonest first. Used by the conversational
// front-end, which identifies clients by phone instead of a session.
func (db *DB) ListAppointmentsByPhone(ctx context.Context, organizationID int64, phone string, after time.Time) ([]models.Appointment, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, reference, organization_id, staff_id, client_name, client_phone,
		       start_time, end_time, status, notes, deleted_at, created_at, updated_at
		FROM appointments
		WHERE organization_id = ?
		AND client_phone = ?
		AND status != 'canceled'
		AND deleted_at IS NULL
		AND end_time > ?
		ORDER BY start_time`,
		organizationID, phone, after.UTC(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAppointments(rows)
}

// ListAppointmentsForOrganization returns all non-deleted appointments for
// an organization within [from, to), canceled included, ordered by staff
// then start time. Used by reporting.
func (db *DB) ListAppointmentsForOrganization(ctx context.Context, organizationID int64, from, to time.Time) ([]models.Appointment, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, reference, organization_id, staff_id, client_name, client_phone,
		       start_time, end_time, status, notes, deleted_at, created_at, updated_at
		FROM appointments
		WHERE organization_id = ?
		AND deleted_at IS NULL
		AND start_time < ? AND end_time > ?
		ORDER BY staff_id, start_time`,
		organizationID, to.UTC(), from.UTC(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAppointments(rows)
}

func scanAppointments(rows *sql.Rows) ([]models.Appointment, error) {
	var appts []models.Appointment
	for rows.Next() {
		var a models.Appointment
		var phone, notes sql.NullString
		var deletedAt sql.NullTime
		if err := rows.Scan(
			&a.ID, &a.Reference, &a.OrganizationID, &a.StaffID, &a.ClientName, &phone,
			&a.StartTime, &a.EndTime, &a.Status, &notes, &deletedAt, &a.CreatedAt, &a.UpdatedAt,
		); err != nil {
			return nil, err
		}
		a.ClientPhone = phone.String
		a.Notes = notes.String
		if deletedAt.Valid {
			a.DeletedAt = &deletedAt.Time
		}
		appts = append(appts, a)
	}
	return appts, rows.Err()
}

// UpdateAppointment rewrites an appointment's mutable fields, re-checking
// the non-overlap invariant with the appointment itself excluded. The check
// and the write run in one immediate transaction, so a concurrent writer
// cannot slip an overlapping interval in between. Returns ErrOverlap on a
// lost race and ErrNotFound if the row is gone.
func (db *DB) UpdateAppointment(ctx context.Context, a *models.Appointment) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	var clash int
	err = tx.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM ("+overlapExists+")",
		a.StaffID, a.EndTime.UTC(), a.StartTime.UTC(), a.ID,
	).Scan(&clash)
	if err != nil {
		return fmt.Errorf("check overlap: %w", err)
	}
	if clash > 0 {
		return ErrOverlap
	}

	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx, `
		UPDATE appointments
		SET staff_id = ?, client_name = ?, client_phone = ?,
		    start_time = ?, end_time = ?, status = ?, notes = ?, updated_at = ?
		WHERE id = ? AND deleted_at IS NULL`,
		a.StaffID, a.ClientName, a.ClientPhone,
		a.StartTime.UTC(), a.EndTime.UTC(), a.Status, a.Notes, now,
		a.ID,
	)
	if err != nil {
		return fmt.Errorf("update appointment: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	a.UpdatedAt = now
	return nil
}

// UpdateAppointmentStatus transitions an appointment's status.
func (db *DB) UpdateAppointmentStatus(ctx context.Context, id int64, status string) error {
	res, err := db.ExecContext(ctx, `
		UPDATE appointments SET status = ?, updated_at = ?
		WHERE id = ? AND deleted_at IS NULL`,
		status, time.Now().UTC(), id,
	)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
