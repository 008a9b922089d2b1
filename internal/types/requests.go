package types

import (
	"github.com/go-playground/validator/v10"
)

// FilterSpec selects companies from the directory by attributes instead of
// naming them explicitly.
type FilterSpec struct {
	SizeTiers  []string `json:"size_tiers,omitempty" validate:"dive,oneof=small mid large mega"`
	Industries []string `json:"industries,omitempty"`
	Sectors    []string `json:"sectors,omitempty"`
}

// SubmitJobRequest is the request body for starting a batch analysis job.
// Exactly one of Companies or Filter must be provided.
type SubmitJobRequest struct {
	Companies      []string    `json:"companies,omitempty"`
	Filter         *FilterSpec `json:"filter,omitempty"`
	Limit          int         `json:"limit,omitempty" validate:"gte=0,lte=500"`
	ForceReanalyze bool        `json:"force_reanalyze,omitempty"`
}

// Validate validates the SubmitJobRequest using the validator.
func (r *SubmitJobRequest) Validate() error {
	if len(r.Companies) == 0 && r.Filter == nil {
		return &InvalidRequestError{Field: "companies", Message: "either companies or filter is required"}
	}
	if len(r.Companies) > 0 && r.Filter != nil {
		return &InvalidRequestError{Field: "filter", Message: "companies and filter are mutually exclusive"}
	}
	validate := validator.New()
	return validate.Struct(r)
}

// UpdateSchedulerConfigRequest carries a partial scheduler config update.
// Nil pointers leave the corresponding field unchanged.
type UpdateSchedulerConfigRequest struct {
	Active             *bool    `json:"active,omitempty"`
	CadenceMinutes     *int     `json:"cadence_minutes,omitempty" validate:"omitempty,gte=1"`
	MinIntervalMinutes *int     `json:"min_interval_minutes,omitempty" validate:"omitempty,gte=1"`
	MaxPerRun          *int     `json:"max_per_run,omitempty" validate:"omitempty,gte=1,lte=200"`
	ReanalyzeAfterDays *int     `json:"reanalyze_after_days,omitempty" validate:"omitempty,gte=1"`
	StrictTier         *string  `json:"strict_tier,omitempty" validate:"omitempty,oneof=small mid large mega"`
	UseGenerativeRank  *bool    `json:"use_generative_rank,omitempty"`
	IncludeIndustries  []string `json:"include_industries,omitempty"`
	ExcludeIndustries  []string `json:"exclude_industries,omitempty"`
}

// Validate validates the UpdateSchedulerConfigRequest using the validator.
func (r *UpdateSchedulerConfigRequest) Validate() error {
	validate := validator.New()
	return validate.Struct(r)
}

// InvalidRequestError indicates a malformed submission.
type InvalidRequestError struct {
	Field   string
	Message string
}

func (e *InvalidRequestError) Error() string {
	return "invalid request: " + e.Field + ": " + e.Message
}
