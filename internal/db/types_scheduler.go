package db

import (
	"time"

	"github.com/google/uuid"
)

// Reason codes recorded with scheduling decisions
const (
	ReasonFirstTime     = "first_time"
	ReasonHighPriority  = "high_priority"
	ReasonStale         = "stale"
	ReasonTierExpansion = "tier_expansion"
)

// Decision values
const (
	DecisionSelected = "selected"
	DecisionSkipped  = "skipped"
)

// Scheduler run trigger sources
const (
	TriggerScheduler = "scheduler"
	TriggerManual    = "manual"
	TriggerAPI       = "api"
)

// Scheduler run status values
const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)

// SchedulerConfig is the singleton scheduler configuration row
type SchedulerConfig struct {
	Active             bool       `json:"active"`
	CadenceMinutes     int        `json:"cadence_minutes"`
	MinIntervalMinutes int        `json:"min_interval_minutes"`
	MaxPerRun          int        `json:"max_per_run"`
	ReanalyzeAfterDays int        `json:"reanalyze_after_days"`
	StrictTier         *string    `json:"strict_tier,omitempty"`
	UseGenerativeRank  bool       `json:"use_generative_rank"`
	IncludeIndustries  []string   `json:"include_industries,omitempty"`
	ExcludeIndustries  []string   `json:"exclude_industries,omitempty"`
	LastRunAt          *time.Time `json:"last_run_at,omitempty"`
	NextRunAt          *time.Time `json:"next_run_at,omitempty"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// DefaultSchedulerConfig returns the configuration used before any update
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Active:             false,
		CadenceMinutes:     1440,
		MinIntervalMinutes: 60,
		MaxPerRun:          10,
		ReanalyzeAfterDays: 90,
		UseGenerativeRank:  true,
	}
}

// SchedulerRun records one scheduler wake-up or manual trigger
type SchedulerRun struct {
	ID           uuid.UUID  `json:"id"`
	TriggeredBy  string     `json:"triggered_by"`
	Status       string     `json:"status"`
	Reasoning    *string    `json:"reasoning,omitempty"`
	Considered   int        `json:"considered"`
	Selected     int        `json:"selected"`
	JobID        *uuid.UUID `json:"job_id,omitempty"`
	Analyzed     int        `json:"analyzed"`
	Skipped      int        `json:"skipped"`
	Failed       int        `json:"failed"`
	TotalTokens  int        `json:"total_tokens"`
	ErrorMessage *string    `json:"error_message,omitempty"`
	StartedAt    time.Time  `json:"started_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}

// Decision is one candidate verdict within a scheduler run
type Decision struct {
	ID            int64     `json:"id"`
	RunID         uuid.UUID `json:"run_id"`
	CIK           string    `json:"cik"`
	CompanyName   string    `json:"company_name"`
	Decision      string    `json:"decision"`
	Reason        string    `json:"reason"`
	Reasoning     *string   `json:"reasoning,omitempty"`
	PriorityScore float64   `json:"priority_score"`
	SizeUSD       float64   `json:"size_usd"`
	TimesAnalyzed int       `json:"times_analyzed"`
	CreatedAt     time.Time `json:"created_at"`
}

// LearnedPattern is a keyed memory entry the agent consults between runs
type LearnedPattern struct {
	ID          int64      `json:"id"`
	Key         string     `json:"key"`
	Value       []byte     `json:"value"` // JSON payload
	Description *string    `json:"description,omitempty"`
	Confidence  float64    `json:"confidence"`
	TimesUsed   int        `json:"times_used"`
	LastUsedAt  *time.Time `json:"last_used_at,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}
