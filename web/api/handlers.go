package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/hochfrequenz/asset-scheduler/internal/domain"
	"github.com/hochfrequenz/asset-scheduler/internal/runstore"
)

// RunResponse is the API response for a run
type RunResponse struct {
	ID          string           `json:"id"`
	Mode        string           `json:"mode"`
	Status      string           `json:"status"`
	StartedAt   string           `json:"started_at"`
	FinishedAt  *string          `json:"finished_at,omitempty"`
	Duration    string           `json:"duration"`
	Fingerprint string           `json:"fingerprint,omitempty"`
	Counts      domain.RunCounts `json:"counts"`
	Message     string           `json:"message,omitempty"`
}

// RunDetailResponse adds the stored report rows
type RunDetailResponse struct {
	RunResponse
	Preview []ResultResponse `json:"preview"`
	Results []ResultResponse `json:"results"`
}

// ResultResponse is one report row
type ResultResponse struct {
	Timestamp  string `json:"timestamp"`
	Campaign   string `json:"campaign"`
	AssetGroup string `json:"asset_group"`
	MemberType string `json:"member_type"`
	Member     string `json:"member"`
	Scheduled  string `json:"scheduled"`
	Action     string `json:"action"`
	Status     string `json:"status"`
	Message    string `json:"message"`
}

// OutcomeResponse is pushed for every executed operation
type OutcomeResponse struct {
	RunID      string `json:"run_id"`
	Campaign   string `json:"campaign"`
	AssetGroup string `json:"asset_group"`
	MemberType string `json:"member_type"`
	Member     string `json:"member"`
	Action     string `json:"action"`
	Status     string `json:"status"`
	Message    string `json:"message"`
	Attempts   int    `json:"attempts"`
}

// StatusResponse is the API response for overall status
type StatusResponse struct {
	Running     bool         `json:"running"`
	Current     *RunResponse `json:"current,omitempty"`
	Stuck       bool         `json:"stuck"`
	RunningJob  string       `json:"running_job,omitempty"`
	LastRun     *RunResponse `json:"last_run,omitempty"`
	TotalRuns   int          `json:"total_runs"`
	Executed    int          `json:"executed"`
	Skipped     int          `json:"skipped"`
	Failed      int          `json:"failed"`
	Succeeded   int          `json:"operations_succeeded"`
	FailedOps   int          `json:"operations_failed"`
	AvgDuration string       `json:"avg_duration"`
}

// JobResponse is the API response for a batch job
type JobResponse struct {
	Name      string  `json:"name"`
	NextRun   *string `json:"next_run,omitempty"`
	LastRun   *string `json:"last_run,omitempty"`
	LastError string  `json:"last_error,omitempty"`
	Running   bool    `json:"running"`
}

func runToResponse(r *domain.Run) RunResponse {
	resp := RunResponse{
		ID:          r.ID,
		Mode:        string(r.Mode),
		Status:      string(r.Status),
		StartedAt:   r.StartedAt.Format(time.RFC3339),
		Duration:    r.Duration().Round(time.Millisecond).String(),
		Fingerprint: r.Fingerprint,
		Counts:      r.Counts,
		Message:     r.Message,
	}
	if r.FinishedAt != nil {
		t := r.FinishedAt.Format(time.RFC3339)
		resp.FinishedAt = &t
	}
	return resp
}

func resultToResponse(r domain.ReportRow) ResultResponse {
	return ResultResponse{
		Timestamp:  r.Timestamp,
		Campaign:   r.Campaign,
		AssetGroup: r.AssetGroup,
		MemberType: r.MemberType,
		Member:     r.Member,
		Scheduled:  r.Scheduled,
		Action:     r.Action,
		Status:     string(r.Status),
		Message:    r.Message,
	}
}

func outcomeToResponse(runID string, o *domain.Outcome) OutcomeResponse {
	return OutcomeResponse{
		RunID:      runID,
		Campaign:   o.Campaign,
		AssetGroup: o.AssetGroup,
		MemberType: o.MemberType,
		Member:     o.Member,
		Action:     string(o.Action),
		Status:     string(o.Status),
		Message:    o.Message,
		Attempts:   o.Attempts,
	}
}

func (s *Server) statusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		var status StatusResponse
		if s.obs != nil {
			if cur, ok := s.obs.Current(); ok {
				resp := runToResponse(&cur)
				status.Running = true
				status.Current = &resp
				status.Stuck = s.obs.IsStuck(&cur)
			}
			m := s.obs.GetMetrics()
			status.TotalRuns = m.TotalRuns
			status.Executed = m.Executed
			status.Skipped = m.Skipped
			status.Failed = m.Failed
			status.Succeeded = m.Succeeded
			status.FailedOps = m.FailedOps
			status.AvgDuration = m.AvgDuration.Round(time.Millisecond).String()
		}
		if s.jobs != nil {
			status.RunningJob, _ = s.jobs.Running()
		}

		runs, err := s.store.ListRuns(r.Context(), runstore.ListOptions{Limit: 1})
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if len(runs) > 0 {
			resp := runToResponse(runs[0])
			status.LastRun = &resp
		}

		writeJSON(w, status)
	}
}

func (s *Server) listRunsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		opts := runstore.ListOptions{
			Status: domain.RunStatus(r.URL.Query().Get("status")),
			Limit:  50,
		}
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 {
				writeError(w, http.StatusBadRequest, "invalid limit")
				return
			}
			opts.Limit = n
		}
		if raw := r.URL.Query().Get("since"); raw != "" {
			d, err := time.ParseDuration(raw)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid since: "+err.Error())
				return
			}
			opts.Since = time.Now().Add(-d)
		}

		runs, err := s.store.ListRuns(r.Context(), opts)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}

		responses := make([]RunResponse, len(runs))
		for i, run := range runs {
			responses[i] = runToResponse(run)
		}
		writeJSON(w, responses)
	}
}

func (s *Server) getRunHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		// Extract run ID from path: /api/runs/{id}
		id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/runs/"), "/")
		if id == "" {
			writeError(w, http.StatusBadRequest, "run ID required")
			return
		}

		run, err := s.store.GetRun(r.Context(), id)
		if errors.Is(err, runstore.ErrNotFound) {
			writeError(w, http.StatusNotFound, "run not found")
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}

		results, err := s.store.Results(r.Context(), id)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}

		resp := RunDetailResponse{
			RunResponse: runToResponse(run),
			Preview:     []ResultResponse{},
			Results:     []ResultResponse{},
		}
		for _, res := range results {
			if res.Kind == domain.ResultPreview {
				resp.Preview = append(resp.Preview, resultToResponse(res.ReportRow))
			} else {
				resp.Results = append(resp.Results, resultToResponse(res.ReportRow))
			}
		}
		writeJSON(w, resp)
	}
}

func (s *Server) listJobsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		if s.jobs == nil {
			writeJSON(w, []JobResponse{})
			return
		}

		running, _ := s.jobs.Running()
		now := time.Now()
		names := s.jobs.ListJobs()
		resp := make([]JobResponse, 0, len(names))
		for _, name := range names {
			job := JobResponse{Name: name, Running: name == running}
			if next := s.jobs.NextRun(name, now); !next.IsZero() {
				t := next.Format(time.RFC3339)
				job.NextRun = &t
			}
			last, lastErr := s.jobs.LastRun(name)
			if !last.IsZero() {
				t := last.Format(time.RFC3339)
				job.LastRun = &t
			}
			if lastErr != nil {
				job.LastError = lastErr.Error()
			}
			resp = append(resp, job)
		}
		writeJSON(w, resp)
	}
}

func (s *Server) triggerJobHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		if s.jobs == nil {
			writeError(w, http.StatusServiceUnavailable, "scheduler not available")
			return
		}

		// Extract job name: /api/jobs/{name}/trigger
		path := strings.TrimPrefix(r.URL.Path, "/api/jobs/")
		name := strings.TrimSuffix(path, "/trigger")
		if name == "" || name == path {
			writeError(w, http.StatusNotFound, "not found")
			return
		}

		found := false
		for _, n := range s.jobs.ListJobs() {
			if n == name {
				found = true
				break
			}
		}
		if !found {
			writeError(w, http.StatusNotFound, "job not found")
			return
		}

		if running, busy := s.jobs.Running(); busy {
			writeError(w, http.StatusConflict, "run in progress: "+running)
			return
		}

		go func() {
			if _, err := s.jobs.Trigger(s.runCtx, name); err != nil {
				s.log.WithError(err).WithField("job", name).Error("Triggered run failed")
			}
		}()

		writeJSONStatus(w, http.StatusAccepted, map[string]string{"status": "triggered", "job": name})
	}
}
