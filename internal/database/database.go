// Package database is the transactional store. It owns the non-overlap
// guarantee for appointments: conflicting writes are rejected atomically
// and surfaced as ErrOverlap.
package database

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3" // sqlite3 driver
	"github.com/rs/zerolog"
)

var (
	// ErrOverlap is the store's exclusion-violation signal: a write lost
	// the race for an appointment interval.
	ErrOverlap = errors.New("appointment interval overlaps an existing one")

	// ErrNotFound is returned when a referenced record is missing or
	// soft-deleted.
	ErrNotFound = errors.New("record not found")
)

// DB wraps sql.DB for the scheduling engine.
type DB struct {
	*sql.DB
	logger *zerolog.Logger
}

// New opens the database at path and runs migrations.
//
// Transactions are opened in immediate mode so a check-then-write sequence
// inside one transaction serializes against other writers.
func New(path string, logger *zerolog.Logger) (*DB, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	dsn := path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_txlock=immediate"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	instance := &DB{DB: db, logger: logger}
	if err := instance.createTables(); err != nil {
		return nil, fmt.Errorf("create tables: %w", err)
	}

	if logger != nil {
		logger.Info().Str("path", path).Msg("database initialized")
	}
	return instance, nil
}

func (db *DB) createTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS organizations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			slug TEXT UNIQUE NOT NULL,
			industry TEXT,
			timezone TEXT NOT NULL DEFAULT 'UTC',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS staff (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			organization_id INTEGER NOT NULL,
			name TEXT NOT NULL,
			user_id INTEGER,
			is_active BOOLEAN NOT NULL DEFAULT 1,
			deleted_at DATETIME,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (organization_id) REFERENCES organizations(id)
		)`,

		`CREATE TABLE IF NOT EXISTS working_hour_blocks (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			staff_id INTEGER NOT NULL,
			day_of_week INTEGER NOT NULL,
			start_time TEXT NOT NULL,
			end_time TEXT NOT NULL,
			is_break BOOLEAN NOT NULL DEFAULT 0,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (staff_id) REFERENCES staff(id)
		)`,

		`CREATE TABLE IF NOT EXISTS schedule_templates (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			organization_id INTEGER NOT NULL,
			name TEXT NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (organization_id) REFERENCES organizations(id)
		)`,

		`CREATE TABLE IF NOT EXISTS template_blocks (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			template_id INTEGER NOT NULL,
			day_of_week INTEGER NOT NULL,
			start_time TEXT NOT NULL,
			end_time TEXT NOT NULL,
			is_break BOOLEAN NOT NULL DEFAULT 0,
			FOREIGN KEY (template_id) REFERENCES schedule_templates(id)
		)`,

		`CREATE TABLE IF NOT EXISTS appointments (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			reference TEXT UNIQUE NOT NULL,
			organization_id INTEGER NOT NULL,
			staff_id INTEGER NOT NULL,
			client_name TEXT NOT NULL,
			client_phone TEXT,
			start_time DATETIME NOT NULL,
			end_time DATETIME NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			notes TEXT,
			deleted_at DATETIME,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (organization_id) REFERENCES organizations(id),
			FOREIGN KEY (staff_id) REFERENCES staff(id)
		)`,

		`CREATE INDEX IF NOT EXISTS idx_staff_org ON staff(organization_id, is_active)`,
		`CREATE INDEX IF NOT EXISTS idx_blocks_staff_day ON working_hour_blocks(staff_id, day_of_week)`,
		`CREATE INDEX IF NOT EXISTS idx_template_blocks ON template_blocks(template_id)`,
		`CREATE INDEX IF NOT EXISTS idx_appointments_staff_times ON appointments(staff_id, start_time, end_time)`,
		`CREATE INDEX IF NOT EXISTS idx_appointments_status ON appointments(status)`,
		`CREATE INDEX IF NOT EXISTS idx_appointments_phone ON appointments(client_phone)`,
	}

	for _, q := range queries {
		if _, err := db.Exec(q); err != nil {
			return fmt.Errorf("exec migration %s: %w", trimSQL(q), err)
		}
	}
	return nil
}

func trimSQL(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > 60 {
		return s[:60] + "..."
	}
	return s
}
