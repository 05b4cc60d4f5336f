package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/hochfrequenz/asset-scheduler/internal/domain"
	"github.com/hochfrequenz/asset-scheduler/internal/logging"
	"github.com/hochfrequenz/asset-scheduler/internal/observer"
	"github.com/hochfrequenz/asset-scheduler/internal/runstore"
)

// Store interface for run history
type Store interface {
	ListRuns(ctx context.Context, opts runstore.ListOptions) ([]*domain.Run, error)
	GetRun(ctx context.Context, id string) (*domain.Run, error)
	Results(ctx context.Context, runID string) ([]domain.StoredResult, error)
}

// Jobs is the batch scheduler as seen by the API
type Jobs interface {
	ListJobs() []string
	NextRun(name string, now time.Time) time.Time
	LastRun(name string) (time.Time, error)
	Running() (string, bool)
	Trigger(ctx context.Context, name string) (bool, error)
}

// Server is the HTTP status server
type Server struct {
	store Store
	obs   *observer.Observer
	jobs  Jobs
	addr  string
	mux   *http.ServeMux
	hub   *Hub
	log   *logrus.Entry

	// runCtx parents runs triggered over HTTP
	runCtx context.Context
}

// NewServer creates a new status server. obs and jobs may be nil.
func NewServer(store Store, obs *observer.Observer, jobs Jobs, addr string, log *logrus.Entry) *Server {
	s := &Server{
		store:  store,
		obs:    obs,
		jobs:   jobs,
		addr:   addr,
		mux:    http.NewServeMux(),
		hub:    NewHub(),
		log:    logging.OrNop(log).WithField("component", "api"),
		runCtx: context.Background(),
	}
	if obs != nil {
		obs.Subscribe(s.forward)
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/api/status", s.statusHandler())
	s.mux.HandleFunc("/api/runs", s.listRunsHandler())
	s.mux.HandleFunc("/api/runs/", s.getRunHandler())
	s.mux.HandleFunc("/api/jobs", s.listJobsHandler())
	s.mux.HandleFunc("/api/jobs/", s.triggerJobHandler())
	s.mux.HandleFunc("/api/events", s.eventsHandler())
	s.mux.Handle("/metrics", promhttp.Handler())
	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]string{"status": "ok"})
	})
}

// Handler returns the router
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Start(ctx context.Context) error {
	s.runCtx = ctx
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.WithField("addr", s.addr).Info("Status server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		s.hub.CloseAll()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// Broadcast sends an event to all websocket clients
func (s *Server) Broadcast(event Event) {
	s.hub.Broadcast(event)
}

// forward turns observer events into client events
func (s *Server) forward(e observer.Event) {
	ev := Event{Type: string(e.Type), Time: e.Time}
	switch {
	case e.Run != nil:
		ev.Data = runToResponse(e.Run)
	case e.Outcome != nil:
		ev.Data = outcomeToResponse(e.RunID, e.Outcome)
	}
	s.Broadcast(ev)
}

func writeJSON(w http.ResponseWriter, data interface{}) {
	writeJSONStatus(w, http.StatusOK, data)
}

func writeJSONStatus(w http.ResponseWriter, code int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, code int, message string) {
	writeJSONStatus(w, code, map[string]string{"error": message})
}
