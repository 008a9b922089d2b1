package server

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/jonathan/prospector/internal/types"
)

// handleSubmitJob starts a batch analysis job and returns its ID immediately.
func (s *Server) handleSubmitJob(w http.ResponseWriter, r *http.Request) {
	var req types.SubmitJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	jobID, err := s.jobs.Submit(r.Context(), &req)
	if err != nil {
		s.errorResponse(w, HTTPStatus(err), err.Error())
		return
	}

	s.jsonResponse(w, http.StatusAccepted, map[string]string{
		"job_id": jobID.String(),
		"status": "pending",
	})
}

// handleGetJob returns the live status snapshot for a job.
func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	jobID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid job ID")
		return
	}

	job := s.jobs.GetJob(jobID)
	if job == nil {
		notFound := &ErrJobNotFound{JobID: jobID}
		s.errorResponse(w, HTTPStatus(notFound), notFound.Error())
		return
	}

	s.jsonResponse(w, http.StatusOK, job)
}

// handleListJobs returns all known jobs, newest first.
func (s *Server) handleListJobs(w http.ResponseWriter, _ *http.Request) {
	jobs := s.jobs.ListJobs()
	s.jsonResponse(w, http.StatusOK, map[string]any{
		"jobs":  jobs,
		"count": len(jobs),
	})
}
