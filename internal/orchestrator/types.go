package orchestrator

import (
	"time"

	"github.com/google/uuid"

	"github.com/jonathan/prospector/internal/directory"
)

// Job status values
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Company outcome values within a job
const (
	CompanyCompleted      = "completed"
	CompanyFailed         = "failed"
	CompanySkipped        = "skipped"
	CompanyDisambiguation = "disambiguation_required"
)

// CompanyResult is the per-company outcome recorded on a job snapshot
type CompanyResult struct {
	Query       string            `json:"query"`
	CompanyName string            `json:"company_name,omitempty"`
	CIK         string            `json:"cik,omitempty"`
	Status      string            `json:"status"`
	Stage       string            `json:"stage,omitempty"` // stage reached when failed
	Error       string            `json:"error,omitempty"`
	Candidates  []directory.Entry `json:"candidates,omitempty"`
	TokensUsed  int               `json:"tokens_used"`
	AnalysisID  string            `json:"analysis_id,omitempty"`
}

// Job is the in-memory status snapshot served to clients
type Job struct {
	ID             uuid.UUID       `json:"id"`
	Status         string          `json:"status"`
	Total          int             `json:"total"`
	Completed      int             `json:"completed"`
	Failed         int             `json:"failed"`
	Skipped        int             `json:"skipped"`
	CurrentCompany string          `json:"current_company,omitempty"`
	CurrentStage   string          `json:"current_stage,omitempty"`
	ETASeconds     int             `json:"eta_seconds,omitempty"`
	TotalTokens    int             `json:"total_tokens"`
	Results        []CompanyResult `json:"results,omitempty"`
	Error          string          `json:"error,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	StartedAt      *time.Time      `json:"started_at,omitempty"`
	CompletedAt    *time.Time      `json:"completed_at,omitempty"`
}

// Terminal reports whether the job has finished
func (j *Job) Terminal() bool {
	return j.Status == StatusCompleted || j.Status == StatusFailed
}

// clone returns a deep copy safe to hand to callers
func (j *Job) clone() *Job {
	c := *j
	c.Results = append([]CompanyResult(nil), j.Results...)
	return &c
}
