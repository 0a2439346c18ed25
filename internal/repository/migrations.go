package repository

import (
	"database/sql"
	"fmt"

	"github.com/higorocha/dibau-app-leiturista-sub000/internal/models"
)

// SchemaVersion is the schema this build of the engine requires.
const SchemaVersion = 7

// Migration is one forward-only schema step. A step only ever adds tables,
// columns, or indexes; correcting a mistaken addition is done by a later
// additive step, never by editing history.
type Migration struct {
	Version     int
	Description string
	Statements  []string
}

// Migrations is the full additive history from an empty database to
// SchemaVersion.
var Migrations = []Migration{
	{
		Version:     1,
		Description: "readings",
		Statements: []string{
			`CREATE TABLE readings (
				local_id TEXT PRIMARY KEY,
				server_id INTEGER NOT NULL,
				month INTEGER NOT NULL,
				year INTEGER NOT NULL,
				lot_id INTEGER NOT NULL DEFAULT 0,
				lot_name TEXT NOT NULL DEFAULT '',
				lot_status TEXT NOT NULL DEFAULT '',
				meter_code TEXT NOT NULL DEFAULT '',
				current_value REAL NOT NULL DEFAULT 0,
				current_value_date DATETIME,
				previous_value REAL NOT NULL DEFAULT 0,
				previous_value_date DATETIME,
				consumption REAL NOT NULL DEFAULT 0,
				closed INTEGER NOT NULL DEFAULT 0,
				workflow_status TEXT NOT NULL DEFAULT '',
				image_url TEXT NOT NULL DEFAULT '',
				sync_status TEXT NOT NULL DEFAULT 'synced',
				last_sync_at DATETIME,
				error_message TEXT NOT NULL DEFAULT '',
				deleted INTEGER NOT NULL DEFAULT 0,
				created_at DATETIME NOT NULL,
				updated_at DATETIME NOT NULL
			)`,
			`CREATE INDEX idx_readings_server_id ON readings(server_id)`,
			`CREATE INDEX idx_readings_period ON readings(year, month)`,
			`CREATE INDEX idx_readings_sync_status ON readings(sync_status)`,
			`CREATE INDEX idx_readings_lot_id ON readings(lot_id)`,
		},
	},
	{
		Version:     2,
		Description: "reading images",
		Statements: []string{
			`CREATE TABLE reading_images (
				local_id TEXT PRIMARY KEY,
				reading_local_id TEXT NOT NULL REFERENCES readings(local_id),
				reading_server_id INTEGER NOT NULL DEFAULT 0,
				backend_reading_id INTEGER,
				stored_path TEXT NOT NULL,
				file_size INTEGER NOT NULL,
				mime_type TEXT NOT NULL,
				remote_url TEXT NOT NULL DEFAULT '',
				sync_status TEXT NOT NULL DEFAULT 'uploading',
				error_message TEXT NOT NULL DEFAULT '',
				captured_at DATETIME NOT NULL,
				deleted INTEGER NOT NULL DEFAULT 0
			)`,
			`CREATE INDEX idx_reading_images_reading ON reading_images(reading_local_id)`,
			`CREATE INDEX idx_reading_images_sync_status ON reading_images(sync_status)`,
		},
	},
	{
		Version:     3,
		Description: "observations",
		Statements: []string{
			`CREATE TABLE observations (
				local_id TEXT PRIMARY KEY,
				server_id INTEGER,
				lot_id INTEGER NOT NULL,
				kind TEXT NOT NULL DEFAULT '',
				status TEXT NOT NULL DEFAULT 'open',
				title TEXT NOT NULL DEFAULT '',
				body TEXT NOT NULL DEFAULT '',
				created_by TEXT NOT NULL DEFAULT '',
				sync_status TEXT NOT NULL DEFAULT 'locally_edited',
				synced_at DATETIME,
				error_message TEXT NOT NULL DEFAULT '',
				deleted INTEGER NOT NULL DEFAULT 0,
				created_at DATETIME NOT NULL,
				updated_at DATETIME NOT NULL
			)`,
			`CREATE INDEX idx_observations_server_id ON observations(server_id)`,
			`CREATE INDEX idx_observations_lot_id ON observations(lot_id)`,
			`CREATE INDEX idx_observations_sync_status ON observations(sync_status)`,
		},
	},
	{
		Version:     4,
		Description: "observation comments",
		Statements: []string{
			`CREATE TABLE observation_comments (
				local_id TEXT PRIMARY KEY,
				server_id INTEGER,
				observation_local_id TEXT NOT NULL REFERENCES observations(local_id),
				observation_server_id INTEGER,
				body TEXT NOT NULL,
				author TEXT NOT NULL DEFAULT '',
				sync_status TEXT NOT NULL DEFAULT 'locally_edited',
				synced_at DATETIME,
				error_message TEXT NOT NULL DEFAULT '',
				created_at DATETIME NOT NULL
			)`,
			`CREATE INDEX idx_observation_comments_observation ON observation_comments(observation_local_id)`,
			`CREATE INDEX idx_observation_comments_sync_status ON observation_comments(sync_status)`,
		},
	},
	{
		Version:     5,
		Description: "diagnostic logs",
		Statements: []string{
			`CREATE TABLE sync_logs (
				local_id TEXT PRIMARY KEY,
				level TEXT NOT NULL DEFAULT 'info',
				message TEXT NOT NULL,
				context TEXT NOT NULL DEFAULT '',
				device_id TEXT NOT NULL DEFAULT '',
				status TEXT NOT NULL DEFAULT 'pending',
				error_message TEXT NOT NULL DEFAULT '',
				created_at DATETIME NOT NULL
			)`,
			`CREATE INDEX idx_sync_logs_status ON sync_logs(status)`,
		},
	},
	{
		Version:     6,
		Description: "period summaries and pull state",
		Statements: []string{
			`CREATE TABLE period_summaries (
				period_key TEXT PRIMARY KEY,
				month INTEGER NOT NULL,
				year INTEGER NOT NULL,
				closed INTEGER NOT NULL DEFAULT 0,
				reading_count INTEGER NOT NULL DEFAULT 0,
				completed_count INTEGER NOT NULL DEFAULT 0,
				total_consumption REAL NOT NULL DEFAULT 0,
				updated_at DATETIME NOT NULL
			)`,
			`CREATE TABLE period_sync_state (
				period_key TEXT PRIMARY KEY,
				month INTEGER NOT NULL,
				year INTEGER NOT NULL,
				last_pull_at DATETIME
			)`,
		},
	},
	{
		Version:     7,
		Description: "reading multiplier flag and backend reading id",
		Statements: []string{
			`ALTER TABLE readings ADD COLUMN times_ten INTEGER NOT NULL DEFAULT 0`,
			`ALTER TABLE readings ADD COLUMN backend_reading_id INTEGER`,
			`ALTER TABLE observations ADD COLUMN closed_by TEXT NOT NULL DEFAULT ''`,
			`ALTER TABLE observations ADD COLUMN closed_at DATETIME`,
		},
	},
}

// Migrate brings db forward to SchemaVersion, applying each missing step in
// its own transaction and stamping the version as it goes.
func Migrate(db *sql.DB) error {
	current, err := schemaVersion(db)
	if err != nil {
		return err
	}

	if current > SchemaVersion {
		return &models.SchemaError{
			Have:   current,
			Want:   SchemaVersion,
			Reason: "database was written by a newer version",
		}
	}

	for _, m := range Migrations {
		if m.Version <= current {
			continue
		}
		if m.Version != current+1 {
			return &models.SchemaError{
				Have:   current,
				Want:   SchemaVersion,
				Reason: fmt.Sprintf("no migration path: expected step %d, found %d", current+1, m.Version),
			}
		}

		tx, err := db.Begin()
		if err != nil {
			return err
		}
		for _, stmt := range m.Statements {
			if _, err := tx.Exec(stmt); err != nil {
				tx.Rollback()
				return &models.SchemaError{
					Have:   current,
					Want:   SchemaVersion,
					Reason: fmt.Sprintf("migration %d (%s) failed: %v", m.Version, m.Description, err),
				}
			}
		}
		if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", m.Version)); err != nil {
			tx.Rollback()
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}
		current = m.Version
	}

	if current != SchemaVersion {
		return &models.SchemaError{
			Have:   current,
			Want:   SchemaVersion,
			Reason: "migration history is incomplete",
		}
	}

	return nil
}

func schemaVersion(db *sql.DB) (int, error) {
	var v int
	err := db.QueryRow("PRAGMA user_version").Scan(&v)
	return v, err
}
