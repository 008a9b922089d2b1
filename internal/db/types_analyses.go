package db

import (
	"time"

	"github.com/google/uuid"
)

// Analysis status values
const (
	AnalysisStatusRunning        = "running"
	AnalysisStatusCompleted      = "completed"
	AnalysisStatusFailed         = "failed"
	AnalysisStatusSkipped        = "skipped"
	AnalysisStatusDisambiguation = "disambiguation_required"
)

// Analysis represents one company's run within a job
type Analysis struct {
	ID               uuid.UUID  `json:"id"`
	JobID            *uuid.UUID `json:"job_id,omitempty"`
	CompanyID        string     `json:"company_id"` // zero-padded CIK
	Ticker           *string    `json:"ticker,omitempty"`
	CompanyName      string     `json:"company_name"`
	Industry         *string    `json:"industry,omitempty"`
	Sector           *string    `json:"sector,omitempty"`
	SizeUSD          *float64   `json:"size_usd,omitempty"`
	Status           string     `json:"status"`
	CurrentStage     *string    `json:"current_stage,omitempty"`
	Accession        *string    `json:"accession,omitempty"`
	FilingDate       *string    `json:"filing_date,omitempty"`
	UsedCachedFiling bool       `json:"used_cached_filing"`
	CatalogHash      *string    `json:"catalog_hash,omitempty"`
	PainCount        int        `json:"pain_count"`
	TokensUsed       int        `json:"tokens_used"`
	ErrorMessage     *string    `json:"error_message,omitempty"`
	StartedAt        time.Time  `json:"started_at"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
}

// StoredPainPoint is a persisted mined pain point
type StoredPainPoint struct {
	ID         int64     `json:"id"`
	AnalysisID uuid.UUID `json:"analysis_id"`
	Theme      string    `json:"theme"`
	Rationale  string    `json:"rationale"`
	Confidence float64   `json:"confidence"`
	Quotes     []string  `json:"quotes"`
}

// StoredMatch is a persisted product match score
type StoredMatch struct {
	ID          int64     `json:"id"`
	AnalysisID  uuid.UUID `json:"analysis_id"`
	PainTheme   string    `json:"pain_theme"`
	ProductID   string    `json:"product_id"`
	ProductName string    `json:"product_name"`
	Score       float64   `json:"score"`
	Why         string    `json:"why"`
	Evidence    []string  `json:"evidence,omitempty"`
}

// StoredPitch is a persisted outreach pitch
type StoredPitch struct {
	ID         int64     `json:"id"`
	AnalysisID uuid.UUID `json:"analysis_id"`
	Persona    string    `json:"persona"`
	Subject    string    `json:"subject"`
	Body       string    `json:"body"`
	KeyQuotes  []string  `json:"key_quotes"`
}
