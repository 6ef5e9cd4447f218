package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/lox/aqensemble/internal/models"
)

type Store struct {
	db *sql.DB
	// busyTimeout bounds how long writes are retried while the database is
	// locked by another writer.
	busyTimeout time.Duration
}

func New(db *sql.DB) *Store {
	return &Store{db: db, busyTimeout: 30 * time.Second}
}

func isBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

// retry runs op again while sqlite reports the database as busy.
func (s *Store) retry(op func() error) error {
	operation := func() error {
		err := op()
		if err != nil && !isBusy(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 50 * time.Millisecond
	bo.MaxElapsedTime = s.busyTimeout
	return backoff.Retry(operation, bo)
}

func (s *Store) UpsertStation(st models.Station) error {
	return s.retry(func() error {
		_, err := s.db.Exec(`
		INSERT INTO stations (station_id, name, latitude, longitude, altitude, country, network, type, active)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(station_id) DO UPDATE SET
			name = excluded.name,
			latitude = excluded.latitude,
			longitude = excluded.longitude,
			altitude = excluded.altitude,
			country = excluded.country,
			network = excluded.network,
			type = excluded.type,
			active = excluded.active
	`, st.StationID, st.Name, st.Latitude, st.Longitude, st.Altitude, st.Country, st.Network, st.Type, st.Active)
		return err
	})
}

const stationColumns = `station_id, name, latitude, longitude, altitude, country, network, type, active`

func scanStation(row interface{ Scan(...any) error }) (models.Station, error) {
	var st models.Station
	var name, country, network, typ sql.NullString
	err := row.Scan(&st.StationID, &name, &st.Latitude, &st.Longitude, &st.Altitude, &country, &network, &typ, &st.Active)
	st.Name, st.Country, st.Network, st.Type = name.String, country.String, network.String, typ.String
	return st, err
}

// GetActiveStations returns active stations ordered by identifier.
func (s *Store) GetActiveStations() ([]models.Station, error) {
	rows, err := s.db.Query(`SELECT ` + stationColumns + ` FROM stations WHERE active = TRUE ORDER BY station_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stations []models.Station
	for rows.Next() {
		st, err := scanStation(rows)
		if err != nil {
			return nil, err
		}
		stations = append(stations, st)
	}
	return stations, rows.Err()
}

func (s *Store) GetStation(stationID string) (*models.Station, error) {
	st, err := scanStation(s.db.QueryRow(`SELECT `+stationColumns+` FROM stations WHERE station_id = ?`, stationID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &st, nil
}

// InsertObservations stores a series for one station, replacing values
// already stored at the same dates. flags, when not nil, holds the quality
// flags of each value.
func (s *Store) InsertObservations(stationID string, series models.Series, flags []string) error {
	if err := series.Validate(); err != nil {
		return fmt.Errorf("observations for %s: %w", stationID, err)
	}
	return s.retry(func() error {
		tx, err := s.db.Begin()
		if err != nil {
			return err
		}
		stmt, err := tx.Prepare(`
		INSERT INTO observations (station_id, observed_at, value, qc_flags)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(station_id, observed_at) DO UPDATE SET
			value = excluded.value,
			qc_flags = excluded.qc_flags
	`)
		if err != nil {
			tx.Rollback()
			return err
		}
		defer stmt.Close()
		for i, d := range series.Dates {
			var flag sql.NullString
			if flags != nil && flags[i] != "" {
				flag = sql.NullString{String: flags[i], Valid: true}
			}
			if _, err := stmt.Exec(stationID, d.UTC(), series.Values[i], flag); err != nil {
				tx.Rollback()
				return err
			}
		}
		return tx.Commit()
	})
}

// GetObservations returns the observations of a station within [start, end].
func (s *Store) GetObservations(stationID string, start, end time.Time) (models.Series, error) {
	return s.querySeries(`
		SELECT observed_at, value FROM observations
		WHERE station_id = ? AND observed_at >= ? AND observed_at <= ?
		ORDER BY observed_at
	`, stationID, start.UTC(), end.UTC())
}

func (s *Store) UpsertMember(name, description string) error {
	return s.retry(func() error {
		_, err := s.db.Exec(`
		INSERT INTO members (name, description) VALUES (?, ?)
		ON CONFLICT(name) DO UPDATE SET description = excluded.description
	`, name, description)
		return err
	})
}

// GetMembers returns every member name, sorted.
func (s *Store) GetMembers() ([]string, error) {
	rows, err := s.db.Query(`SELECT name FROM members ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		names = append(names, n)
	}
	return names, rows.Err()
}

// InsertSimulations stores one member's series at one station.
func (s *Store) InsertSimulations(member, stationID string, series models.Series) error {
	if err := series.Validate(); err != nil {
		return fmt.Errorf("simulation %s for %s: %w", member, stationID, err)
	}
	return s.retry(func() error {
		tx, err := s.db.Begin()
		if err != nil {
			return err
		}
		stmt, err := tx.Prepare(`
		INSERT INTO simulations (member, station_id, valid_at, value)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(member, station_id, valid_at) DO UPDATE SET value = excluded.value
	`)
		if err != nil {
			tx.Rollback()
			return err
		}
		defer stmt.Close()
		for i, d := range series.Dates {
			if _, err := stmt.Exec(member, stationID, d.UTC(), series.Values[i]); err != nil {
				tx.Rollback()
				return err
			}
		}
		return tx.Commit()
	})
}

// GetSimulations returns a member's values at a station within [start, end].
func (s *Store) GetSimulations(member, stationID string, start, end time.Time) (models.Series, error) {
	return s.querySeries(`
		SELECT valid_at, value FROM simulations
		WHERE member = ? AND station_id = ? AND valid_at >= ? AND valid_at <= ?
		ORDER BY valid_at
	`, member, stationID, start.UTC(), end.UTC())
}

func (s *Store) querySeries(query string, args ...any) (models.Series, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return models.Series{}, err
	}
	defer rows.Close()

	series := models.Series{Dates: []time.Time{}, Values: []float64{}}
	for rows.Next() {
		var t time.Time
		var v float64
		if err := rows.Scan(&t, &v); err != nil {
			return models.Series{}, err
		}
		series.Dates = append(series.Dates, t.UTC())
		series.Values = append(series.Values, v)
	}
	return series, rows.Err()
}

// DataSpan returns the first and last observation dates, or zero times
// when nothing is stored.
func (s *Store) DataSpan() (first, last time.Time, err error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM observations`).Scan(&n); err != nil {
		return first, last, err
	}
	if n == 0 {
		return first, last, nil
	}
	if err := s.db.QueryRow(`SELECT observed_at FROM observations ORDER BY observed_at LIMIT 1`).Scan(&first); err != nil {
		return first, last, err
	}
	if err := s.db.QueryRow(`SELECT observed_at FROM observations ORDER BY observed_at DESC LIMIT 1`).Scan(&last); err != nil {
		return first, last, err
	}
	return first.UTC(), last.UTC(), nil
}
