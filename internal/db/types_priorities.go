package db

import "time"

// CompanyPriority is the per-CIK scheduling record the agent selects from
type CompanyPriority struct {
	CIK             string     `json:"cik"`
	CompanyName     string     `json:"company_name"`
	Ticker          *string    `json:"ticker,omitempty"`
	SizeUSD         float64    `json:"size_usd"`
	Industry        *string    `json:"industry,omitempty"`
	Sector          *string    `json:"sector,omitempty"`
	TimesAnalyzed   int        `json:"times_analyzed"`
	LastAnalyzedAt  *time.Time `json:"last_analyzed_at,omitempty"`
	NextEligibleAt  *time.Time `json:"next_eligible_at,omitempty"`
	PriorityScore   float64    `json:"priority_score"`
	PriorityReason  *string    `json:"priority_reason,omitempty"`
	AvgMatchScore   *float64   `json:"avg_match_score,omitempty"`
	TotalPainPoints int        `json:"total_pain_points"`
	HighValueMatch  bool       `json:"has_high_value_matches"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// AnalysisOutcome summarizes one finished analysis for priority bookkeeping
type AnalysisOutcome struct {
	CIK            string
	CompanyName    string
	Ticker         string
	SizeUSD        float64
	Industry       string
	Sector         string
	PainPoints     int
	AvgMatchScore  float64
	HighValueMatch bool
	NextEligibleIn time.Duration
}
