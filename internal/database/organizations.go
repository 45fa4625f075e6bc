package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"slotline/internal/models"
)

// CreateOrganization inserts a new tenant.
func (db *DB) CreateOrganization(ctx context.Context, org *models.Organization) error {
	if org.Timezone == "" {
		org.Timezone = "UTC"
	}
	now := time.Now().UTC()
	res, err := db.ExecContext(ctx, `
		INSERT INTO organizations (name, slug, industry, timezone, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		org.Name, org.Slug, org.Industry, org.Timezone, now, now,
	)
	if err != nil {
		return fmt.Errorf("insert organization: %w", err)
	}
	org.ID, err = res.LastInsertId()
	org.CreatedAt = now
	org.UpdatedAt = now
	return err
}

// GetOrganization returns an organization by ID.
func (db *DB) GetOrganization(ctx context.Context, id int64) (*models.Organization, error) {
	return db.scanOrganization(db.QueryRowContext(ctx, `
		SELECT id, name, slug, industry, timezone, created_at, updated_at
		FROM organizations WHERE id = ?`, id))
}

// GetOrganizationBySlug returns an organization by slug.
func (db *DB) GetOrganizationBySlug(ctx context.Context, slug string) (*models.Organization, error) {
	return db.scanOrganization(db.QueryRowContext(ctx, `
		SELECT id, name, slug, industry, timezone, created_at, updated_at
		FROM organizations WHERE slug = ?`, slug))
}

func (db *DB) scanOrganization(row *sql.Row) (*models.Organization, error) {
	var o models.Organization
	var industry sql.NullString
	err := row.Scan(&o.ID, &o.Name, &o.Slug, &industry, &o.Timezone, &o.CreatedAt, &o.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	o.Industry = industry.String
	return &o, nil
}

// CreateStaff inserts a new staff member.
func (db *DB) CreateStaff(ctx context.Context, s *models.Staff) error {
	now := time.Now().UTC()
	var userID any
	if s.UserID > 0 {
		userID = s.UserID
	}
	res, err := db.ExecContext(ctx, `
		INSERT INTO staff (organization_id, name, user_id, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		s.OrganizationID, s.Name, userID, s.IsActive, now, now,
	)
	if err != nil {
		return fmt.Errorf("insert staff: %w", err)
	}
	s.ID, err = res.LastInsertId()
	s.CreatedAt = now
	s.UpdatedAt = now
	return err
}

// GetStaff returns a staff member by ID. Soft-deleted staff are not found.
func (db *DB) GetStaff(ctx context.Context, id int64) (*models.Staff, error) {
	var s models.Staff
	var userID sql.NullInt64
	var deletedAt sql.NullTime
	err := db.QueryRowContext(ctx, `
		SELECT id, organization_id, name, user_id, is_active, deleted_at, created_at, updated_at
		FROM staff WHERE id = ? AND deleted_at IS NULL`, id,
	).Scan(&s.ID, &s.OrganizationID, &s.Name, &userID, &s.IsActive, &deletedAt, &s.CreatedAt, &s.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	s.UserID = userID.Int64
	if deletedAt.Valid {
		s.DeletedAt = &deletedAt.Time
	}
	return &s, nil
}

// ListStaff returns active staff for an organization.
func (db *DB) ListStaff(ctx context.Context, organizationID int64) ([]models.Staff, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, organization_id, name, user_id, is_active, created_at, updated_at
		FROM staff
		WHERE organization_id = ? AND is_active = 1 AND deleted_at IS NULL
		ORDER BY name`, organizationID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var staff []models.Staff
	for rows.Next() {
		var s models.Staff
		var userID sql.NullInt64
		if err := rows.Scan(&s.ID, &s.OrganizationID, &s.Name, &userID, &s.IsActive, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, err
		}
		s.UserID = userID.Int64
		staff = append(staff, s)
	}
	return staff, rows.Err()
}

// SoftDeleteStaff marks a staff member deleted. Historical appointments
// are left untouched.
func (db *DB) SoftDeleteStaff(ctx context.Context, id int64) error {
	now := time.Now().UTC()
	res, err := db.ExecContext(ctx, `
		UPDATE staff SET deleted_at = ?, is_active = 0, updated_at = ?
		WHERE id = ? AND deleted_at IS NULL`,
		now, now, id,
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
