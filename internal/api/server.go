// Package api serves stored stations and combination runs as JSON.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lox/aqensemble/internal/models"
	"github.com/lox/aqensemble/internal/store"
)

// Store is the read side of the store the server needs.
type Store interface {
	GetActiveStations() ([]models.Station, error)
	ListRuns(limit int) ([]store.Run, error)
	GetRun(id string) (*store.Run, error)
	RunCounts() (map[string]int, error)
	MigrationVersion() (int, error)
}

type Server struct {
	store Store
	port  string
	// runs caches decoded finished runs, which never change.
	runs *expirable.LRU[string, *store.Run]
}

func NewServer(st Store, port string) *Server {
	return &Server{
		store: st,
		port:  port,
		runs:  expirable.NewLRU[string, *store.Run](128, nil, 30*time.Minute),
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /api/stations", s.handleAPIStations)
	mux.HandleFunc("GET /api/runs", s.handleAPIRuns)
	mux.HandleFunc("GET /api/runs/{id}", s.handleAPIRun)
	return mux
}

func (s *Server) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:              ":" + s.port,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

// run returns a run, from the cache when it has finished.
func (s *Server) run(id string) (*store.Run, error) {
	if r, ok := s.runs.Get(id); ok {
		return r, nil
	}
	r, err := s.store.GetRun(id)
	if err != nil || r == nil {
		return r, err
	}
	if r.Status != store.RunRunning {
		s.runs.Add(id, r)
	}
	return r, nil
}
