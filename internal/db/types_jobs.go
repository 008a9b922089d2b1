package db

import (
	"time"

	"github.com/google/uuid"
)

// Job status values
const (
	JobStatusPending   = "pending"
	JobStatusRunning   = "running"
	JobStatusCompleted = "completed"
	JobStatusFailed    = "failed"
)

// Job represents a batch analysis job record
type Job struct {
	ID             uuid.UUID  `json:"id"`
	Status         string     `json:"status"`
	TotalCompanies int        `json:"total_companies"`
	Completed      int        `json:"completed"`
	Failed         int        `json:"failed"`
	Skipped        int        `json:"skipped"`
	CurrentCompany *string    `json:"current_company,omitempty"`
	CurrentStage   *string    `json:"current_stage,omitempty"`
	ETASeconds     *int       `json:"eta_seconds,omitempty"`
	TotalTokens    int        `json:"total_tokens"`
	ForceReanalyze bool       `json:"force_reanalyze"`
	ErrorMessage   *string    `json:"error_message,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	StartedAt      *time.Time `json:"started_at,omitempty"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
}

// JobProgress carries a progress update for a running job
type JobProgress struct {
	Completed      int
	Failed         int
	Skipped        int
	CurrentCompany string
	CurrentStage   string
	ETASeconds     int
	TotalTokens    int
}
