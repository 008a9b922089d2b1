package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/jonathan/prospector/internal/db"
	"github.com/jonathan/prospector/internal/types"
)

// handleGetSchedulerConfig returns the persisted scheduler configuration.
func (s *Server) handleGetSchedulerConfig(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		s.unavailable(w)
		return
	}

	cfg, err := s.store.GetSchedulerConfig(r.Context())
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.jsonResponse(w, http.StatusOK, cfg)
}

// handleUpdateSchedulerConfig applies a partial config update. Omitted
// fields keep their current values.
func (s *Server) handleUpdateSchedulerConfig(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		s.unavailable(w)
		return
	}

	var req types.UpdateSchedulerConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := req.Validate(); err != nil {
		s.errorResponse(w, HTTPStatus(err), err.Error())
		return
	}

	cfg, err := s.store.UpdateSchedulerConfig(r.Context(), &req)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.jsonResponse(w, http.StatusOK, cfg)
}

// handleTriggerScheduler starts a scheduler run outside the cadence.
// Returns 409 when a run is already in flight or the minimum interval
// between runs has not elapsed.
func (s *Server) handleTriggerScheduler(w http.ResponseWriter, r *http.Request) {
	if s.scheduler == nil {
		s.unavailable(w)
		return
	}

	runID, err := s.scheduler.TriggerNow(r.Context(), db.TriggerAPI)
	if err != nil {
		s.errorResponse(w, HTTPStatus(err), err.Error())
		return
	}

	s.jsonResponse(w, http.StatusAccepted, map[string]string{
		"run_id": runID.String(),
		"status": db.RunStatusRunning,
	})
}

// handleSchedulerStatus returns the live scheduler state.
func (s *Server) handleSchedulerStatus(w http.ResponseWriter, r *http.Request) {
	if s.scheduler == nil {
		s.unavailable(w)
		return
	}

	status, err := s.scheduler.Status(r.Context())
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.jsonResponse(w, http.StatusOK, status)
}

// handleListSchedulerRuns returns recent scheduler runs, newest first.
func (s *Server) handleListSchedulerRuns(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		s.unavailable(w)
		return
	}

	limit := queryInt(r, "limit", 50)
	runs, err := s.store.ListSchedulerRuns(r.Context(), limit)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.jsonResponse(w, http.StatusOK, map[string]any{
		"runs":  runs,
		"count": len(runs),
	})
}

// handleListRunDecisions returns the per-company decision audit for a run.
func (s *Server) handleListRunDecisions(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		s.unavailable(w)
		return
	}

	runID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid run ID")
		return
	}

	run, err := s.store.GetSchedulerRun(r.Context(), runID)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}
	if run == nil {
		notFound := &ErrRunNotFound{RunID: runID}
		s.errorResponse(w, HTTPStatus(notFound), notFound.Error())
		return
	}

	decisions, err := s.store.ListDecisions(r.Context(), runID)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.jsonResponse(w, http.StatusOK, map[string]any{
		"run":       run,
		"decisions": decisions,
		"count":     len(decisions),
	})
}

// handleListPriorities returns the company priority table the scheduler
// selects from, smallest companies first.
func (s *Server) handleListPriorities(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		s.unavailable(w)
		return
	}

	filters := db.PriorityFilters{
		Limit:      queryInt(r, "limit", 200),
		MinScore:   queryFloat(r, "min_score"),
		MaxSizeUSD: queryFloat(r, "max_size_usd"),
		EligibleBy: r.URL.Query().Get("eligible_only") == "true",
	}
	if industry := r.URL.Query().Get("industry"); industry != "" {
		filters.Industries = []string{industry}
	}

	priorities, err := s.store.ListCompanyPriorities(r.Context(), filters)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.jsonResponse(w, http.StatusOK, map[string]any{
		"priorities": priorities,
		"count":      len(priorities),
	})
}

// unavailable reports that the scheduler subsystem is not wired in.
func (s *Server) unavailable(w http.ResponseWriter) {
	err := &ErrSchedulerUnavailable{}
	s.errorResponse(w, HTTPStatus(err), err.Error())
}

// queryInt parses an integer query parameter with a fallback.
func queryInt(r *http.Request, key string, fallback int) int {
	value := r.URL.Query().Get(key)
	if value == "" {
		return fallback
	}
	n, err := strconv.Atoi(value)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}

// queryFloat parses a float query parameter, returning 0 when absent.
func queryFloat(r *http.Request, key string) float64 {
	value := r.URL.Query().Get(key)
	if value == "" {
		return 0
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil || f < 0 {
		return 0
	}
	return f
}
