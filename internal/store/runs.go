package store

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
	"github.com/vmihailenco/msgpack/v5"
)

const (
	RunRunning   = "running"
	RunSucceeded = "succeeded"
	RunFailed    = "failed"
)

// WeightHistory is the weight vector computed at each step of a run, plus
// the single weight of global methods.
type WeightHistory struct {
	Members      []string    `msgpack:"members" json:"members"`
	Dates        []time.Time `msgpack:"dates" json:"dates"`
	Weights      [][]float64 `msgpack:"weights" json:"weights"`
	Bias         []float64   `msgpack:"bias,omitempty" json:"bias,omitempty"`
	GlobalWeight []float64   `msgpack:"global_weight,omitempty" json:"global_weight,omitempty"`
}

// encodeWeights packs a history as msgpack compressed with zstd.
func encodeWeights(h *WeightHistory) ([]byte, error) {
	var buf bytes.Buffer
	zw, err := zstd.NewWriter(&buf)
	if err != nil {
		return nil, err
	}
	if err := msgpack.NewEncoder(zw).Encode(h); err != nil {
		zw.Close()
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeWeights(b []byte) (*WeightHistory, error) {
	zr, err := zstd.NewReader(bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	var h WeightHistory
	if err := msgpack.NewDecoder(zr).Decode(&h); err != nil {
		return nil, err
	}
	return &h, nil
}

// Scores maps a measure name to its values. NaN encodes as JSON null.
type Scores map[string][]float64

func (s Scores) MarshalJSON() ([]byte, error) {
	out := make(map[string][]*float64, len(s))
	for name, values := range s {
		col := make([]*float64, len(values))
		for i := range values {
			if !math.IsNaN(values[i]) && !math.IsInf(values[i], 0) {
				col[i] = &values[i]
			}
		}
		out[name] = col
	}
	return json.Marshal(out)
}

func (s *Scores) UnmarshalJSON(data []byte) error {
	var in map[string][]*float64
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	out := make(Scores, len(in))
	for name, col := range in {
		values := make([]float64, len(col))
		for i, v := range col {
			if v == nil {
				values[i] = math.NaN()
			} else {
				values[i] = *v
			}
		}
		out[name] = values
	}
	*s = out
	return nil
}

// Run records one combination method applied over a period.
type Run struct {
	ID             string
	Method         string
	Label          string
	Params         json.RawMessage
	Concentrations string
	PeriodStart    time.Time
	PeriodEnd      time.Time
	Status         string
	Error          string
	Steps          int
	Weights        *WeightHistory
	Stats          Scores
	CreatedAt      time.Time
	FinishedAt     sql.NullTime
}

// CreateRun inserts a running run, assigning its ID when empty.
func (s *Store) CreateRun(run *Run) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	if run.Status == "" {
		run.Status = RunRunning
	}
	return s.retry(func() error {
		_, err := s.db.Exec(`
		INSERT INTO runs (id, method, label, params, concentrations, period_start, period_end, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, run.ID, run.Method, run.Label, string(run.Params), run.Concentrations, run.PeriodStart.UTC(), run.PeriodEnd.UTC(), run.Status, run.CreatedAt)
		return err
	})
}

// CompleteRun stores the outcome of a run.
func (s *Store) CompleteRun(run *Run) error {
	if run == nil {
		return nil
	}
	var weights []byte
	if run.Weights != nil {
		var err error
		if weights, err = encodeWeights(run.Weights); err != nil {
			return fmt.Errorf("encode weights: %w", err)
		}
	}
	var stats sql.NullString
	if run.Stats != nil {
		b, err := json.Marshal(run.Stats)
		if err != nil {
			return fmt.Errorf("encode stats: %w", err)
		}
		stats = sql.NullString{String: string(b), Valid: true}
	}
	run.FinishedAt = sql.NullTime{Time: time.Now().UTC(), Valid: true}
	var errMsg sql.NullString
	if run.Error != "" {
		errMsg = sql.NullString{String: run.Error, Valid: true}
	}
	return s.retry(func() error {
		_, err := s.db.Exec(`
		UPDATE runs SET status = ?, error = ?, steps = ?, weights = ?, stats = ?, finished_at = ?
		WHERE id = ?
	`, run.Status, errMsg, run.Steps, weights, stats, run.FinishedAt, run.ID)
		return err
	})
}

const runSummaryColumns = `id, method, label, params, concentrations, period_start, period_end, status, error, steps, stats, created_at, finished_at`

func scanRun(row interface{ Scan(...any) error }, extra ...any) (*Run, error) {
	var run Run
	var params, errMsg, stats sql.NullString
	dest := []any{&run.ID, &run.Method, &run.Label, &params, &run.Concentrations, &run.PeriodStart, &run.PeriodEnd,
		&run.Status, &errMsg, &run.Steps, &stats, &run.CreatedAt, &run.FinishedAt}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	if params.Valid && params.String != "" {
		run.Params = json.RawMessage(params.String)
	}
	run.Error = errMsg.String
	if stats.Valid {
		if err := json.Unmarshal([]byte(stats.String), &run.Stats); err != nil {
			return nil, fmt.Errorf("decode stats of run %s: %w", run.ID, err)
		}
	}
	return &run, nil
}

// GetRun returns a run with its weight history, or nil when not found.
func (s *Store) GetRun(id string) (*Run, error) {
	var weights []byte
	run, err := scanRun(s.db.QueryRow(`SELECT `+runSummaryColumns+`, weights FROM runs WHERE id = ?`, id), &weights)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if len(weights) > 0 {
		if run.Weights, err = decodeWeights(weights); err != nil {
			return nil, fmt.Errorf("decode weights of run %s: %w", id, err)
		}
	}
	return run, nil
}

// ListRuns returns the most recent runs first, without weight histories.
func (s *Store) ListRuns(limit int) ([]Run, error) {
	rows, err := s.db.Query(`SELECT `+runSummaryColumns+` FROM runs ORDER BY created_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// RunCounts returns the number of runs per status.
func (s *Store) RunCounts() (map[string]int, error) {
	rows, err := s.db.Query(`SELECT status, COUNT(*) FROM runs GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}
