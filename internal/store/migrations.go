package store

import (
	"database/sql"
	"fmt"
	"log"
	"time"
)

type migration struct {
	Version     int
	Description string
	SQL         string
}

var migrations = []migration{
	{
		Version:     1,
		Description: "Stations and observations",
		SQL: `
CREATE TABLE IF NOT EXISTS stations (
    station_id TEXT PRIMARY KEY,
    name TEXT,
    latitude REAL,
    longitude REAL,
    altitude REAL,
    country TEXT,
    network TEXT,
    type TEXT,
    active BOOLEAN DEFAULT TRUE
);

CREATE TABLE IF NOT EXISTS observations (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    station_id TEXT NOT NULL,
    observed_at DATETIME NOT NULL,
    value REAL NOT NULL,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    UNIQUE(station_id, observed_at)
);

CREATE INDEX IF NOT EXISTS idx_obs_station_time ON observations(station_id, observed_at);
`,
	},
	{
		Version:     2,
		Description: "Add ensemble members and simulations",
		SQL: `
CREATE TABLE IF NOT EXISTS members (
    name TEXT PRIMARY KEY,
    description TEXT,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS simulations (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    member TEXT NOT NULL REFERENCES members(name),
    station_id TEXT NOT NULL,
    valid_at DATETIME NOT NULL,
    value REAL NOT NULL,
    UNIQUE(member, station_id, valid_at)
);

CREATE INDEX IF NOT EXISTS idx_sim_member_station_time ON simulations(member, station_id, valid_at);
`,
	},
	{
		Version:     3,
		Description: "Add runs table for combination results",
		SQL: `
CREATE TABLE IF NOT EXISTS runs (
    id TEXT PRIMARY KEY,
    method TEXT NOT NULL,
    label TEXT NOT NULL,
    params TEXT,
    concentrations TEXT NOT NULL,
    period_start DATETIME,
    period_end DATETIME,
    status TEXT NOT NULL,
    error TEXT,
    steps INTEGER DEFAULT 0,
    weights BLOB,
    stats TEXT,
    created_at DATETIME NOT NULL,
    finished_at DATETIME
);

CREATE INDEX IF NOT EXISTS idx_runs_created ON runs(created_at);
CREATE INDEX IF NOT EXISTS idx_runs_label ON runs(label);
`,
	},
	{
		Version:     4,
		Description: "Add observation quality flags",
		SQL: `
ALTER TABLE observations ADD COLUMN qc_flags TEXT;
`,
	},
}

// Migrate brings the schema up to the latest version. Each migration runs in
// its own transaction, retried while another process holds the database.
func (s *Store) Migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		description TEXT,
		applied_at DATETIME
	)`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}
	current, err := s.MigrationVersion()
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	for _, m := range migrations {
		if m.Version <= current {
			continue
		}
		log.Printf("store: migrating to version %d (%s)", m.Version, m.Description)
		if err := s.retry(func() error { return s.apply(m) }); err != nil {
			return fmt.Errorf("migration %d: %w", m.Version, err)
		}
	}
	return nil
}

func (s *Store) apply(m migration) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.Exec(m.SQL); err != nil {
		return err
	}
	if _, err := tx.Exec(`INSERT INTO schema_migrations (version, description, applied_at) VALUES (?, ?, ?)`,
		m.Version, m.Description, time.Now().UTC()); err != nil {
		return err
	}
	return tx.Commit()
}

// MigrationVersion is the highest applied schema version, 0 when none.
func (s *Store) MigrationVersion() (int, error) {
	var tables int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'schema_migrations'`).Scan(&tables); err != nil {
		return 0, err
	}
	if tables == 0 {
		return 0, nil
	}
	var version sql.NullInt64
	if err := s.db.QueryRow(`SELECT MAX(version) FROM schema_migrations`).Scan(&version); err != nil {
		return 0, err
	}
	return int(version.Int64), nil
}

// PendingMigrations counts the migrations not applied yet.
func (s *Store) PendingMigrations() (int, error) {
	current, err := s.MigrationVersion()
	if err != nil {
		return 0, err
	}
	n := 0
	for _, m := range migrations {
		if m.Version > current {
			n++
		}
	}
	return n, nil
}
