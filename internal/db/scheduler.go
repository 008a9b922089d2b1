package db

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/jonathan/prospector/internal/types"
)

// GetSchedulerConfig retrieves the singleton config row, returning defaults
// when none has been stored yet.
func (db *DB) GetSchedulerConfig(ctx context.Context) (*SchedulerConfig, error) {
	var c SchedulerConfig
	var include, exclude []byte
	err := db.pool.QueryRow(ctx,
		`SELECT active, cadence_minutes, min_interval_minutes, max_per_run,
		        reanalyze_after_days, strict_tier, use_generative_rank,
		        include_industries, exclude_industries,
		        last_run_at, next_run_at, updated_at
		 FROM scheduler_config WHERE id = 1`,
	).Scan(&c.Active, &c.CadenceMinutes, &c.MinIntervalMinutes, &c.MaxPerRun,
		&c.ReanalyzeAfterDays, &c.StrictTier, &c.UseGenerativeRank,
		&include, &exclude, &c.LastRunAt, &c.NextRunAt, &c.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			def := DefaultSchedulerConfig()
			return &def, nil
		}
		return nil, fmt.Errorf("failed to get scheduler config: %w", err)
	}

	if len(include) > 0 {
		if err := json.Unmarshal(include, &c.IncludeIndustries); err != nil {
			return nil, fmt.Errorf("failed to decode include industries: %w", err)
		}
	}
	if len(exclude) > 0 {
		if err := json.Unmarshal(exclude, &c.ExcludeIndustries); err != nil {
			return nil, fmt.Errorf("failed to decode exclude industries: %w", err)
		}
	}
	return &c, nil
}

// UpdateSchedulerConfig applies a partial update and returns the stored
// config. Nil fields in the request leave the current values in place.
func (db *DB) UpdateSchedulerConfig(ctx context.Context, req *types.UpdateSchedulerConfigRequest) (*SchedulerConfig, error) {
	current, err := db.GetSchedulerConfig(ctx)
	if err != nil {
		return nil, err
	}

	if req.Active != nil {
		current.Active = *req.Active
	}
	if req.CadenceMinutes != nil {
		current.CadenceMinutes = *req.CadenceMinutes
	}
	if req.MinIntervalMinutes != nil {
		current.MinIntervalMinutes = *req.MinIntervalMinutes
	}
	if req.MaxPerRun != nil {
		current.MaxPerRun = *req.MaxPerRun
	}
	if req.ReanalyzeAfterDays != nil {
		current.ReanalyzeAfterDays = *req.ReanalyzeAfterDays
	}
	if req.StrictTier != nil {
		if *req.StrictTier == "" {
			current.StrictTier = nil
		} else {
			current.StrictTier = req.StrictTier
		}
	}
	if req.UseGenerativeRank != nil {
		current.UseGenerativeRank = *req.UseGenerativeRank
	}
	if req.IncludeIndustries != nil {
		current.IncludeIndustries = req.IncludeIndustries
	}
	if req.ExcludeIndustries != nil {
		current.ExcludeIndustries = req.ExcludeIndustries
	}

	include, err := json.Marshal(current.IncludeIndustries)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal include industries: %w", err)
	}
	exclude, err := json.Marshal(current.ExcludeIndustries)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal exclude industries: %w", err)
	}

	err = db.pool.QueryRow(ctx,
		`INSERT INTO scheduler_config
		     (id, active, cadence_minutes, min_interval_minutes, max_per_run,
		      reanalyze_after_days, strict_tier, use_generative_rank,
		      include_industries, exclude_industries)
		 VALUES (1, $1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (id) DO UPDATE SET
		     active = $1, cadence_minutes = $2, min_interval_minutes = $3,
		     max_per_run = $4, reanalyze_after_days = $5, strict_tier = $6,
		     use_generative_rank = $7, include_industries = $8,
		     exclude_industries = $9, updated_at = NOW()
		 RETURNING updated_at`,
		current.Active, current.CadenceMinutes, current.MinIntervalMinutes,
		current.MaxPerRun, current.ReanalyzeAfterDays, current.StrictTier,
		current.UseGenerativeRank, include, exclude,
	).Scan(&current.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to update scheduler config: %w", err)
	}
	return current, nil
}

// TouchSchedulerRunTimes records when the scheduler last fired and when it
// expects to fire next.
func (db *DB) TouchSchedulerRunTimes(ctx context.Context, cadenceMinutes int) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO scheduler_config (id, last_run_at, next_run_at)
		 VALUES (1, NOW(), NOW() + $1 * INTERVAL '1 minute')
		 ON CONFLICT (id) DO UPDATE SET
		     last_run_at = NOW(),
		     next_run_at = NOW() + $1 * INTERVAL '1 minute',
		     updated_at = NOW()`,
		cadenceMinutes,
	)
	if err != nil {
		return fmt.Errorf("failed to touch scheduler run times: %w", err)
	}
	return nil
}

// CreateSchedulerRun inserts a running scheduler run record
func (db *DB) CreateSchedulerRun(ctx context.Context, runID uuid.UUID, triggeredBy string) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO scheduler_runs (id, triggered_by, status)
		 VALUES ($1, $2, $3)`,
		runID, triggeredBy, RunStatusRunning,
	)
	if err != nil {
		return fmt.Errorf("failed to create scheduler run: %w", err)
	}
	return nil
}

// AttachRunSelection records the agent's selection outcome on a run
func (db *DB) AttachRunSelection(ctx context.Context, runID uuid.UUID, considered, selected int, reasoning string, jobID *uuid.UUID) error {
	_, err := db.pool.Exec(ctx,
		`UPDATE scheduler_runs SET
		     considered = $1, selected = $2, reasoning = NULLIF($3, ''), job_id = $4
		 WHERE id = $5`,
		considered, selected, reasoning, jobID, runID,
	)
	if err != nil {
		return fmt.Errorf("failed to attach run selection: %w", err)
	}
	return nil
}

// CompleteSchedulerRun marks a run terminal with its outcome counts
func (db *DB) CompleteSchedulerRun(ctx context.Context, runID uuid.UUID, status string, analyzed, skipped, failed, totalTokens int, errorMessage string) error {
	_, err := db.pool.Exec(ctx,
		`UPDATE scheduler_runs SET
		     status = $1, analyzed = $2, skipped = $3, failed = $4,
		     total_tokens = $5, error_message = NULLIF($6, ''), completed_at = NOW()
		 WHERE id = $7`,
		status, analyzed, skipped, failed, totalTokens, errorMessage, runID,
	)
	if err != nil {
		return fmt.Errorf("failed to complete scheduler run: %w", err)
	}
	return nil
}

// GetSchedulerRun retrieves a run by ID, nil when absent
func (db *DB) GetSchedulerRun(ctx context.Context, runID uuid.UUID) (*SchedulerRun, error) {
	var r SchedulerRun
	err := db.pool.QueryRow(ctx, schedulerRunSelect+` WHERE id = $1`, runID).
		Scan(schedulerRunFields(&r)...)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get scheduler run: %w", err)
	}
	return &r, nil
}

// ListSchedulerRuns retrieves recent runs, newest first
func (db *DB) ListSchedulerRuns(ctx context.Context, limit int) ([]SchedulerRun, error) {
	if limit == 0 {
		limit = 50
	}
	rows, err := db.pool.Query(ctx,
		schedulerRunSelect+` ORDER BY started_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list scheduler runs: %w", err)
	}
	defer rows.Close()

	var runs []SchedulerRun
	for rows.Next() {
		var r SchedulerRun
		if err := rows.Scan(schedulerRunFields(&r)...); err != nil {
			return nil, fmt.Errorf("failed to scan scheduler run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, nil
}

const schedulerRunSelect = `SELECT id, triggered_by, status, reasoning, considered, selected,
	        job_id, analyzed, skipped, failed, total_tokens, error_message,
	        started_at, completed_at
	 FROM scheduler_runs`

func schedulerRunFields(r *SchedulerRun) []any {
	return []any{&r.ID, &r.TriggeredBy, &r.Status, &r.Reasoning, &r.Considered, &r.Selected,
		&r.JobID, &r.Analyzed, &r.Skipped, &r.Failed, &r.TotalTokens, &r.ErrorMessage,
		&r.StartedAt, &r.CompletedAt}
}

// RecordDecision appends a candidate verdict for a scheduler run
func (db *DB) RecordDecision(ctx context.Context, d *Decision) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO scheduler_decisions
		     (run_id, cik, company_name, decision, reason, reasoning,
		      priority_score, size_usd, times_analyzed)
		 VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, $8, $9)`,
		d.RunID, d.CIK, d.CompanyName, d.Decision, d.Reason, derefStr(d.Reasoning),
		d.PriorityScore, d.SizeUSD, d.TimesAnalyzed,
	)
	if err != nil {
		return fmt.Errorf("failed to record decision: %w", err)
	}
	return nil
}

// ListDecisions retrieves all decisions for a run in recorded order
func (db *DB) ListDecisions(ctx context.Context, runID uuid.UUID) ([]Decision, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, run_id, cik, company_name, decision, reason, reasoning,
		        priority_score, size_usd, times_analyzed, created_at
		 FROM scheduler_decisions WHERE run_id = $1 ORDER BY id`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list decisions: %w", err)
	}
	defer rows.Close()

	var decisions []Decision
	for rows.Next() {
		var d Decision
		if err := rows.Scan(&d.ID, &d.RunID, &d.CIK, &d.CompanyName, &d.Decision, &d.Reason,
			&d.Reasoning, &d.PriorityScore, &d.SizeUSD, &d.TimesAnalyzed, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan decision: %w", err)
		}
		decisions = append(decisions, d)
	}
	return decisions, nil
}

// UpsertLearnedPattern stores or refreshes a keyed memory entry
func (db *DB) UpsertLearnedPattern(ctx context.Context, p *LearnedPattern) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO learned_patterns (key, value, description, confidence, expires_at)
		 VALUES ($1, $2, NULLIF($3, ''), $4, $5)
		 ON CONFLICT (key) DO UPDATE SET
		     value = $2, description = COALESCE(NULLIF($3, ''), learned_patterns.description),
		     confidence = $4, expires_at = $5, updated_at = NOW()`,
		p.Key, p.Value, derefStr(p.Description), p.Confidence, p.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert learned pattern: %w", err)
	}
	return nil
}

// ListLearnedPatterns retrieves unexpired memory entries and bumps their
// usage counters.
func (db *DB) ListLearnedPatterns(ctx context.Context, limit int) ([]LearnedPattern, error) {
	if limit == 0 {
		limit = 20
	}
	rows, err := db.pool.Query(ctx,
		`UPDATE learned_patterns SET times_used = times_used + 1, last_used_at = NOW()
		 WHERE id IN (
		     SELECT id FROM learned_patterns
		     WHERE expires_at IS NULL OR expires_at > NOW()
		     ORDER BY confidence DESC, updated_at DESC LIMIT $1
		 )
		 RETURNING id, key, value, description, confidence, times_used,
		           last_used_at, expires_at, created_at, updated_at`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list learned patterns: %w", err)
	}
	defer rows.Close()

	var patterns []LearnedPattern
	for rows.Next() {
		var p LearnedPattern
		if err := rows.Scan(&p.ID, &p.Key, &p.Value, &p.Description, &p.Confidence, &p.TimesUsed,
			&p.LastUsedAt, &p.ExpiresAt, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan learned pattern: %w", err)
		}
		patterns = append(patterns, p)
	}
	return patterns, nil
}

// DeleteExpiredPatterns removes memory entries past their expiry
func (db *DB) DeleteExpiredPatterns(ctx context.Context) (int64, error) {
	result, err := db.pool.Exec(ctx,
		`DELETE FROM learned_patterns WHERE expires_at IS NOT NULL AND expires_at < NOW()`,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired patterns: %w", err)
	}
	return result.RowsAffected(), nil
}
