package store

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"
)

// schema mirrors the hosted database's tables. Statements are idempotent so
// Migrate can run on every start.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS students (
		id TEXT PRIMARY KEY,
		s_number TEXT NOT NULL UNIQUE,
		name TEXT,
		email TEXT,
		role TEXT DEFAULT 'student',
		volunteering_hours DOUBLE PRECISION NOT NULL DEFAULT 0,
		social_hours DOUBLE PRECISION NOT NULL DEFAULT 0,
		total_hours DOUBLE PRECISION NOT NULL DEFAULT 0,
		tshirt_size TEXT,
		account_status TEXT,
		account_created TIMESTAMPTZ,
		last_login TIMESTAMPTZ,
		last_hour_update TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS auth_users (
		id TEXT PRIMARY KEY,
		s_number TEXT NOT NULL UNIQUE REFERENCES students(s_number),
		password_hash TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS hour_requests (
		id TEXT PRIMARY KEY,
		student_s_number TEXT NOT NULL REFERENCES students(s_number),
		student_name TEXT,
		event_name TEXT NOT NULL,
		event_date DATE NOT NULL,
		hours_requested DOUBLE PRECISION NOT NULL,
		description TEXT,
		type TEXT,
		status TEXT NOT NULL DEFAULT 'pending',
		submitted_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		reviewed_at TIMESTAMPTZ,
		reviewed_by TEXT,
		admin_notes TEXT,
		image_name TEXT,
		hours_credited DOUBLE PRECISION
	)`,
	`ALTER TABLE hour_requests ADD COLUMN IF NOT EXISTS hours_credited DOUBLE PRECISION`,
	`CREATE INDEX IF NOT EXISTS hour_requests_status_submitted_idx ON hour_requests (status, submitted_at)`,
	`CREATE TABLE IF NOT EXISTS meetings (
		id TEXT PRIMARY KEY,
		meeting_date DATE NOT NULL,
		meeting_type TEXT,
		description TEXT,
		attendance_code TEXT NOT NULL,
		is_open BOOLEAN NOT NULL DEFAULT FALSE,
		created_by TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ
	)`,
	`CREATE TABLE IF NOT EXISTS meeting_attendance (
		id TEXT PRIMARY KEY,
		student_s_number TEXT NOT NULL,
		meeting_id TEXT NOT NULL REFERENCES meetings(id),
		attendance_code TEXT,
		session_type TEXT NOT NULL DEFAULT 'both',
		submitted_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS meeting_attendance_once_idx ON meeting_attendance (meeting_id, student_s_number)`,
	`CREATE TABLE IF NOT EXISTS events (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		description TEXT,
		location TEXT,
		event_date DATE NOT NULL,
		start_time TEXT,
		end_time TEXT,
		capacity INTEGER NOT NULL DEFAULT 0,
		color TEXT DEFAULT '#4287f5',
		created_by TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS event_attendees (
		id TEXT PRIMARY KEY,
		event_id TEXT NOT NULL REFERENCES events(id),
		student_id TEXT,
		name TEXT,
		email TEXT,
		registered_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS announcements (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		message TEXT NOT NULL,
		created_by TEXT,
		date TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		image_url TEXT,
		image_filename TEXT
	)`,
}

// Migrate creates missing tables and indexes.
func Migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return errors.Wrap(err, "apply schema")
		}
	}
	return nil
}
