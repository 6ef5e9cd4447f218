package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/lox/aqensemble/internal/models"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	// A single connection keeps every query on the same in-memory database.
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	store := New(db)
	if err := store.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return store
}

func hour(h int) time.Time {
	return time.Date(2001, 5, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(h) * time.Hour)
}

func TestUpsertAndGetStation(t *testing.T) {
	store := setupTestStore(t)

	station := models.Station{
		StationID: "FR04004",
		Name:      "Paris 7e",
		Latitude:  48.857,
		Longitude: 2.301,
		Altitude:  33,
		Country:   "FR",
		Network:   "AIRPARIF",
		Type:      "URB",
		Active:    true,
	}
	if err := store.UpsertStation(station); err != nil {
		t.Fatalf("UpsertStation: %v", err)
	}

	stations, err := store.GetActiveStations()
	if err != nil {
		t.Fatalf("GetActiveStations: %v", err)
	}
	if len(stations) != 1 {
		t.Fatalf("len(stations) = %d, want 1", len(stations))
	}
	if stations[0] != station {
		t.Errorf("station = %+v, want %+v", stations[0], station)
	}

	station.Name = "Paris Champ de Mars"
	if err := store.UpsertStation(station); err != nil {
		t.Fatalf("UpsertStation update: %v", err)
	}
	got, err := store.GetStation("FR04004")
	if err != nil {
		t.Fatalf("GetStation: %v", err)
	}
	if got == nil || got.Name != "Paris Champ de Mars" {
		t.Errorf("GetStation = %+v, want updated name", got)
	}

	missing, err := store.GetStation("NOPE")
	if err != nil {
		t.Fatalf("GetStation missing: %v", err)
	}
	if missing != nil {
		t.Errorf("GetStation missing = %+v, want nil", missing)
	}
}

func TestGetActiveStations_FilterInactive(t *testing.T) {
	store := setupTestStore(t)

	store.UpsertStation(models.Station{StationID: "B", Active: true})
	store.UpsertStation(models.Station{StationID: "C", Active: false})
	store.UpsertStation(models.Station{StationID: "A", Active: true})

	stations, err := store.GetActiveStations()
	if err != nil {
		t.Fatalf("GetActiveStations: %v", err)
	}
	if len(stations) != 2 || stations[0].StationID != "A" || stations[1].StationID != "B" {
		t.Errorf("stations = %+v, want A then B", stations)
	}
}

func TestObservationsRoundTrip(t *testing.T) {
	store := setupTestStore(t)

	series := models.Series{
		Dates:  []time.Time{hour(0), hour(1), hour(2), hour(3)},
		Values: []float64{41, 55.5, 62, 58},
	}
	if err := store.InsertObservations("FR04004", series, []string{"", "", "negative", ""}); err != nil {
		t.Fatalf("InsertObservations: %v", err)
	}
	// Same dates again replace rather than duplicate.
	series.Values[0] = 43
	if err := store.InsertObservations("FR04004", series, nil); err != nil {
		t.Fatalf("InsertObservations again: %v", err)
	}

	got, err := store.GetObservations("FR04004", hour(0), hour(2))
	if err != nil {
		t.Fatalf("GetObservations: %v", err)
	}
	if got.Len() != 3 {
		t.Fatalf("len = %d, want 3 (bounds included)", got.Len())
	}
	if got.Values[0] != 43 || !got.Dates[2].Equal(hour(2)) {
		t.Errorf("series = %+v", got)
	}

	first, last, err := store.DataSpan()
	if err != nil {
		t.Fatalf("DataSpan: %v", err)
	}
	if !first.Equal(hour(0)) || !last.Equal(hour(3)) {
		t.Errorf("DataSpan = %s, %s", first, last)
	}
}

func TestInsertObservations_Unsorted(t *testing.T) {
	store := setupTestStore(t)
	series := models.Series{Dates: []time.Time{hour(1), hour(0)}, Values: []float64{1, 2}}
	if err := store.InsertObservations("X", series, nil); err == nil {
		t.Error("InsertObservations accepted unsorted dates")
	}
}

func TestSimulationsRoundTrip(t *testing.T) {
	store := setupTestStore(t)

	for _, m := range []string{"mocage", "chimere"} {
		if err := store.UpsertMember(m, ""); err != nil {
			t.Fatalf("UpsertMember: %v", err)
		}
	}
	members, err := store.GetMembers()
	if err != nil {
		t.Fatalf("GetMembers: %v", err)
	}
	if len(members) != 2 || members[0] != "chimere" {
		t.Errorf("members = %v, want [chimere mocage]", members)
	}

	series := models.Series{Dates: []time.Time{hour(0), hour(1)}, Values: []float64{50, 60}}
	if err := store.InsertSimulations("mocage", "FR04004", series); err != nil {
		t.Fatalf("InsertSimulations: %v", err)
	}
	got, err := store.GetSimulations("mocage", "FR04004", hour(0), hour(5))
	if err != nil {
		t.Fatalf("GetSimulations: %v", err)
	}
	if got.Len() != 2 || got.Values[1] != 60 {
		t.Errorf("series = %+v", got)
	}
	empty, err := store.GetSimulations("chimere", "FR04004", hour(0), hour(5))
	if err != nil {
		t.Fatalf("GetSimulations: %v", err)
	}
	if empty.Len() != 0 {
		t.Errorf("unexpected simulations %+v", empty)
	}
}

func TestRunLifecycle(t *testing.T) {
	store := setupTestStore(t)

	run := &Run{
		Method:         "ewa",
		Label:          "ewa",
		Params:         json.RawMessage(`{"learning_rate":3e-6}`),
		Concentrations: "peak",
		PeriodStart:    hour(0),
		PeriodEnd:      hour(48),
	}
	if err := store.CreateRun(run); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	if run.ID == "" {
		t.Fatal("CreateRun did not assign an ID")
	}

	run.Status = RunSucceeded
	run.Steps = 2
	run.Weights = &WeightHistory{
		Members: []string{"a", "b"},
		Dates:   []time.Time{hour(24), hour(48)},
		Weights: [][]float64{{0.5, 0.5}, {0.4, 0.6}},
	}
	run.Stats = Scores{"rmse": {12.5}, "correlation": {math.NaN()}}
	if err := store.CompleteRun(run); err != nil {
		t.Fatalf("CompleteRun: %v", err)
	}

	got, err := store.GetRun(run.ID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got == nil {
		t.Fatal("GetRun returned nil")
	}
	if got.Status != RunSucceeded || got.Steps != 2 || !got.FinishedAt.Valid {
		t.Errorf("run = %+v", got)
	}
	if got.Weights == nil || len(got.Weights.Weights) != 2 || got.Weights.Weights[1][1] != 0.6 {
		t.Fatalf("weights = %+v", got.Weights)
	}
	if !got.Weights.Dates[1].Equal(hour(48)) {
		t.Errorf("weight date = %s, want %s", got.Weights.Dates[1], hour(48))
	}
	if got.Stats["rmse"][0] != 12.5 || !math.IsNaN(got.Stats["correlation"][0]) {
		t.Errorf("stats = %v", got.Stats)
	}
	if string(got.Params) != `{"learning_rate":3e-6}` {
		t.Errorf("params = %s", got.Params)
	}

	failed := &Run{Method: "prod", Label: "prod", Concentrations: "peak"}
	if err := store.CreateRun(failed); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	failed.Status, failed.Error = RunFailed, "too large learning rate"
	if err := store.CompleteRun(failed); err != nil {
		t.Fatalf("CompleteRun: %v", err)
	}

	runs, err := store.ListRuns(10)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("len(runs) = %d, want 2", len(runs))
	}
	for _, r := range runs {
		if r.Weights != nil {
			t.Errorf("ListRuns loaded weights for %s", r.ID)
		}
	}
	counts, err := store.RunCounts()
	if err != nil {
		t.Fatalf("RunCounts: %v", err)
	}
	if counts[RunSucceeded] != 1 || counts[RunFailed] != 1 {
		t.Errorf("counts = %v", counts)
	}

	none, err := store.GetRun("missing")
	if err != nil || none != nil {
		t.Errorf("GetRun(missing) = %+v, %v; want nil, nil", none, err)
	}
}

func TestRetryOnBusy(t *testing.T) {
	store := setupTestStore(t)
	store.busyTimeout = time.Second

	calls := 0
	err := store.retry(func() error {
		calls++
		if calls < 3 {
			return errors.New("database is locked (5) (SQLITE_BUSY)")
		}
		return nil
	})
	if err != nil || calls != 3 {
		t.Errorf("retry = %v after %d calls, want success after 3", err, calls)
	}

	calls = 0
	err = store.retry(func() error {
		calls++
		return errors.New("no such table: runs")
	})
	if err == nil || calls != 1 {
		t.Errorf("retry = %v after %d calls, want immediate failure", err, calls)
	}
}

func TestMigrationVersion(t *testing.T) {
	store := setupTestStore(t)

	version, err := store.MigrationVersion()
	if err != nil {
		t.Fatalf("MigrationVersion: %v", err)
	}
	if version != len(migrations) {
		t.Errorf("MigrationVersion = %d, want %d", version, len(migrations))
	}
	if err := store.Migrate(); err != nil {
		t.Errorf("second Migrate: %v", err)
	}
	pending, err := store.PendingMigrations()
	if err != nil || pending != 0 {
		t.Errorf("PendingMigrations = %d, %v; want 0", pending, err)
	}
}

func TestPendingMigrationsBeforeMigrate(t *testing.T) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	store := New(db)

	version, err := store.MigrationVersion()
	if err != nil || version != 0 {
		t.Errorf("MigrationVersion = %d, %v; want 0 on an empty database", version, err)
	}
	pending, err := store.PendingMigrations()
	if err != nil || pending != len(migrations) {
		t.Errorf("PendingMigrations = %d, %v; want %d", pending, err, len(migrations))
	}
}
