package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

type DB struct {
	*sql.DB
	log zerolog.Logger
}

func NewDB(path string, logger *zerolog.Logger) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	sqlDB, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := createTables(sqlDB); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	var log zerolog.Logger
	if logger != nil {
		log = logger.With().Str("component", "database").Logger()
	}
	log.Info().Str("path", path).Msg("database initialised")

	return &DB{DB: sqlDB, log: log}, nil
}

func createTables(db *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS jobs (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            tenant_id TEXT NOT NULL DEFAULT '',
            customer_id INTEGER NOT NULL,
            customer_name TEXT NOT NULL,
            delivery_type_id INTEGER NOT NULL DEFAULT 0,
            delivery_type_name TEXT NOT NULL DEFAULT '',
            pickup_location_id INTEGER NOT NULL DEFAULT 0,
            delivery_address TEXT NOT NULL,
            delivery_lat REAL,
            delivery_lng REAL,
            requested_date DATETIME NOT NULL,
            site_contact_name TEXT NOT NULL DEFAULT '',
            site_contact_phone TEXT NOT NULL DEFAULT '',
            sqm REAL NOT NULL DEFAULT 0,
            weight_kg REAL NOT NULL DEFAULT 0,
            status TEXT NOT NULL DEFAULT 'PENDING_APPROVAL',
            driver_status TEXT NOT NULL DEFAULT 'NOT_STARTED',
            pod_files TEXT NOT NULL DEFAULT '[]',
            pod_notes TEXT NOT NULL DEFAULT '',
            problem_details TEXT NOT NULL DEFAULT '',
            estimated_arrival DATETIME,
            is_difficult_delivery BOOLEAN NOT NULL DEFAULT 0,
            delivery_difficulty TEXT NOT NULL DEFAULT '',
            is_returned BOOLEAN NOT NULL DEFAULT 0,
            return_reason TEXT NOT NULL DEFAULT '',
            actual_completion_time DATETIME,
            created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
            updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
        )`,

		`CREATE TABLE IF NOT EXISTS assignments (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            job_id INTEGER NOT NULL,
            truck_id INTEGER NOT NULL,
            time_slot_id INTEGER NOT NULL,
            slot_position INTEGER NOT NULL,
            date DATETIME NOT NULL,
            created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
            updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
        )`,

		`CREATE TABLE IF NOT EXISTS placeholders (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            truck_id INTEGER NOT NULL,
            time_slot_id INTEGER NOT NULL,
            slot_position INTEGER NOT NULL DEFAULT 0,
            date DATETIME NOT NULL,
            label TEXT NOT NULL,
            color TEXT NOT NULL DEFAULT '',
            created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
            updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
        )`,

		`CREATE TABLE IF NOT EXISTS pending_mutations (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            kind TEXT NOT NULL,
            job_id INTEGER NOT NULL,
            payload TEXT NOT NULL,
            enqueued_at DATETIME NOT NULL
        )`,

		`CREATE TABLE IF NOT EXISTS sync_tasks (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            task_type TEXT NOT NULL,
            board_date TEXT NOT NULL DEFAULT '',
            payload TEXT NOT NULL DEFAULT '',
            status TEXT NOT NULL DEFAULT 'pending',
            retry_count INTEGER NOT NULL DEFAULT 0,
            last_error TEXT,
            created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
            processed_at DATETIME,
            next_retry_at DATETIME
        )`,

		`CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status)`,
		`CREATE INDEX IF NOT EXISTS idx_jobs_requested_date ON jobs(requested_date)`,
		`CREATE INDEX IF NOT EXISTS idx_assignments_date ON assignments(date)`,
		`CREATE INDEX IF NOT EXISTS idx_assignments_job_id ON assignments(job_id)`,
		`CREATE INDEX IF NOT EXISTS idx_placeholders_date ON placeholders(date)`,
		`CREATE INDEX IF NOT EXISTS idx_pending_mutations_kind ON pending_mutations(kind)`,
		`CREATE INDEX IF NOT EXISTS idx_sync_tasks_status ON sync_tasks(status)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("error executing query %s: %w", query, err)
		}
	}
	return nil
}

func (db *DB) Close() error {
	return db.DB.Close()
}
