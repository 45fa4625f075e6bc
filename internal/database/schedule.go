package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"slotline/internal/models"
)

// GetBlocksForDay returns a staff member's recurring blocks for one weekday.
func (db *DB) GetBlocksForDay(ctx context.Context, staffID int64, dayOfWeek int) ([]models.WorkingHourBlock, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, staff_id, day_of_week, start_time, end_time, is_break
		FROM working_hour_blocks
		WHERE staff_id = ? AND day_of_week = ?
		ORDER BY start_time`,
		staffID, dayOfWeek,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanBlocks(rows)
}

// GetWeekBlocks returns all recurring blocks for a staff member.
func (db *DB) GetWeekBlocks(ctx context.Context, staffID int64) ([]models.WorkingHourBlock, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, staff_id, day_of_week, start_time, end_time, is_break
		FROM working_hour_blocks
		WHERE staff_id = ?
		ORDER BY day_of_week, start_time`,
		staffID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanBlocks(rows)
}

func scanBlocks(rows *sql.Rows) ([]models.WorkingHourBlock, error) {
	var blocks []models.WorkingHourBlock
	for rows.Next() {
		var b models.WorkingHourBlock
		if err := rows.Scan(&b.ID, &b.StaffID, &b.DayOfWeek, &b.StartTime, &b.EndTime, &b.IsBreak); err != nil {
			return nil, err
		}
		blocks = append(blocks, b)
	}
	return blocks, rows.Err()
}

// ReplaceWeekBlocks replaces a staff member's whole recurring week in one
// transaction: every existing block is deleted and the new set inserted.
// No reader ever observes the schedule half-replaced.
func (db *DB) ReplaceWeekBlocks(ctx context.Context, staffID int64, blocks []models.WorkingHourBlock) ([]models.WorkingHourBlock, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM working_hour_blocks WHERE staff_id = ?", staffID,
	); err != nil {
		return nil, fmt.Errorf("delete blocks: %w", err)
	}

	inserted := make([]models.WorkingHourBlock, 0, len(blocks))
	for _, b := range blocks {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO working_hour_blocks (staff_id, day_of_week, start_time, end_time, is_break, created_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			staffID, b.DayOfWeek, b.StartTime, b.EndTime, b.IsBreak, time.Now().UTC(),
		)
		if err != nil {
			return nil, fmt.Errorf("insert block: %w", err)
		}
		b.ID, _ = res.LastInsertId()
		b.StaffID = staffID
		inserted = append(inserted, b)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return inserted, nil
}

// CreateTemplate stores a reusable weekly block set.
func (db *DB) CreateTemplate(ctx context.Context, tpl *models.ScheduleTemplate) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx, `
		INSERT INTO schedule_templates (organization_id, name, created_at)
		VALUES (?, ?, ?)`,
		tpl.OrganizationID, tpl.Name, now,
	)
	if err != nil {
		return fmt.Errorf("insert template: %w", err)
	}
	tpl.ID, _ = res.LastInsertId()
	tpl.CreatedAt = now

	for i := range tpl.Blocks {
		b := &tpl.Blocks[i]
		res, err := tx.ExecContext(ctx, `
			INSERT INTO template_blocks (template_id, day_of_week, start_time, end_time, is_break)
			VALUES (?, ?, ?, ?, ?)`,
			tpl.ID, b.DayOfWeek, b.StartTime, b.EndTime, b.IsBreak,
		)
		if err != nil {
			return fmt.Errorf("insert template block: %w", err)
		}
		b.ID, _ = res.LastInsertId()
	}

	return tx.Commit()
}

// GetTemplate returns a template with its block set.
func (db *DB) GetTemplate(ctx context.Context, id int64) (*models.ScheduleTemplate, error) {
	var tpl models.ScheduleTemplate
	err := db.QueryRowContext(ctx, `
		SELECT id, organization_id, name, created_at
		FROM schedule_templates WHERE id = ?`, id,
	).Scan(&tpl.ID, &tpl.OrganizationID, &tpl.Name, &tpl.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `
		SELECT id, day_of_week, start_time, end_time, is_break
		FROM template_blocks
		WHERE template_id = ?
		ORDER BY day_of_week, start_time`, id,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var b models.WorkingHourBlock
		if err := rows.Scan(&b.ID, &b.DayOfWeek, &b.StartTime, &b.EndTime, &b.IsBreak); err != nil {
			return nil, err
		}
		tpl.Blocks = append(tpl.Blocks, b)
	}
	return &tpl, rows.Err()
}

// ListTemplates returns all templates for an organization, blocks included.
func (db *DB) ListTemplates(ctx context.Context, organizationID int64) ([]models.ScheduleTemplate, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, organization_id, name, created_at
		FROM schedule_templates
		WHERE organization_id = ?
		ORDER BY name`, organizationID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var templates []models.ScheduleTemplate
	for rows.Next() {
		var tpl models.ScheduleTemplate
		if err := rows.Scan(&tpl.ID, &tpl.OrganizationID, &tpl.Name, &tpl.CreatedAt); err != nil {
			return nil, err
		}
		templates = append(templates, tpl)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range templates {
		full, err := db.GetTemplate(ctx, templates[i].ID)
		if err != nil {
			return nil, err
		}
		templates[i].Blocks = full.Blocks
	}
	return templates, nil
}
