package api

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/lox/aqensemble/internal/models"
	"github.com/lox/aqensemble/internal/store"
)

const (
	defaultRunLimit = 50
	maxRunLimit     = 500
)

type HealthStatus struct {
	Status     string         `json:"status"`
	Schema     int            `json:"schema_version"`
	Stations   int            `json:"stations"`
	Runs       map[string]int `json:"runs"`
	Error      string         `json:"error,omitempty"`
	ServerTime time.Time      `json:"server_time"`
}

type StationView struct {
	StationID string  `json:"station_id"`
	Name      string  `json:"name"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Altitude  float64 `json:"altitude"`
	Country   string  `json:"country,omitempty"`
	Network   string  `json:"network,omitempty"`
	Type      string  `json:"type,omitempty"`
}

type RunView struct {
	ID             string               `json:"id"`
	Method         string               `json:"method"`
	Label          string               `json:"label"`
	Params         json.RawMessage      `json:"params,omitempty"`
	Concentrations string               `json:"concentrations"`
	PeriodStart    time.Time            `json:"period_start"`
	PeriodEnd      time.Time            `json:"period_end"`
	Status         string               `json:"status"`
	Error          string               `json:"error,omitempty"`
	Steps          int                  `json:"steps"`
	Stats          store.Scores         `json:"stats,omitempty"`
	Weights        *store.WeightHistory `json:"weights,omitempty"`
	CreatedAt      time.Time            `json:"created_at"`
	FinishedAt     *time.Time           `json:"finished_at,omitempty"`
}

func newStationView(st models.Station) StationView {
	return StationView{
		StationID: st.StationID,
		Name:      st.Name,
		Latitude:  st.Latitude,
		Longitude: st.Longitude,
		Altitude:  st.Altitude,
		Country:   st.Country,
		Network:   st.Network,
		Type:      st.Type,
	}
}

func newRunView(r *store.Run) RunView {
	v := RunView{
		ID:             r.ID,
		Method:         r.Method,
		Label:          r.Label,
		Params:         r.Params,
		Concentrations: r.Concentrations,
		PeriodStart:    r.PeriodStart,
		PeriodEnd:      r.PeriodEnd,
		Status:         r.Status,
		Error:          r.Error,
		Steps:          r.Steps,
		Stats:          r.Stats,
		Weights:        r.Weights,
		CreatedAt:      r.CreatedAt,
	}
	if r.FinishedAt.Valid {
		t := r.FinishedAt.Time
		v.FinishedAt = &t
	}
	return v
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("api: write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := HealthStatus{Status: "ok", ServerTime: time.Now().UTC()}

	version, err := s.store.MigrationVersion()
	if err != nil {
		health.Status, health.Error = "error", err.Error()
		writeJSON(w, http.StatusServiceUnavailable, health)
		return
	}
	health.Schema = version

	stations, err := s.store.GetActiveStations()
	if err != nil {
		health.Status, health.Error = "error", err.Error()
		writeJSON(w, http.StatusServiceUnavailable, health)
		return
	}
	health.Stations = len(stations)

	if health.Runs, err = s.store.RunCounts(); err != nil {
		health.Status, health.Error = "error", err.Error()
		writeJSON(w, http.StatusServiceUnavailable, health)
		return
	}
	if health.Stations == 0 {
		health.Status = "degraded"
	}
	writeJSON(w, http.StatusOK, health)
}

func (s *Server) handleAPIStations(w http.ResponseWriter, r *http.Request) {
	stations, err := s.store.GetActiveStations()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	out := make([]StationView, len(stations))
	for i, st := range stations {
		out[i] = newStationView(st)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleAPIRuns(w http.ResponseWriter, r *http.Request) {
	limit := defaultRunLimit
	if q := r.URL.Query().Get("limit"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxRunLimit)
	}
	method := r.URL.Query().Get("method")

	runs, err := s.store.ListRuns(limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	out := make([]RunView, 0, len(runs))
	for i := range runs {
		if method != "" && runs[i].Method != method {
			continue
		}
		out = append(out, newRunView(&runs[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleAPIRun(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	run, err := s.run(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if run == nil {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	writeJSON(w, http.StatusOK, newRunView(run))
}
