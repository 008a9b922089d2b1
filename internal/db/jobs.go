package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// CreateJob creates a new batch job record with the given ID and candidate count
func (db *DB) CreateJob(ctx context.Context, jobID uuid.UUID, totalCompanies int, forceReanalyze bool) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO analysis_jobs (id, status, total_companies, force_reanalyze)
		 VALUES ($1, $2, $3, $4)`,
		jobID, JobStatusPending, totalCompanies, forceReanalyze,
	)
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}
	return nil
}

// StartJob transitions a job to running
func (db *DB) StartJob(ctx context.Context, jobID uuid.UUID) error {
	_, err := db.pool.Exec(ctx,
		`UPDATE analysis_jobs SET status = $1, started_at = NOW() WHERE id = $2`,
		JobStatusRunning, jobID,
	)
	if err != nil {
		return fmt.Errorf("failed to start job: %w", err)
	}
	return nil
}

// UpdateJobProgress refreshes counters and the current company/stage snapshot
func (db *DB) UpdateJobProgress(ctx context.Context, jobID uuid.UUID, p JobProgress) error {
	_, err := db.pool.Exec(ctx,
		`UPDATE analysis_jobs SET
		     completed = $1, failed = $2, skipped = $3,
		     current_company = NULLIF($4, ''), current_stage = NULLIF($5, ''),
		     eta_seconds = $6, total_tokens = $7
		 WHERE id = $8`,
		p.Completed, p.Failed, p.Skipped, p.CurrentCompany, p.CurrentStage,
		p.ETASeconds, p.TotalTokens, jobID,
	)
	if err != nil {
		return fmt.Errorf("failed to update job progress: %w", err)
	}
	return nil
}

// CompleteJob marks a job terminal with its final counters
func (db *DB) CompleteJob(ctx context.Context, jobID uuid.UUID, status string, p JobProgress, errorMessage string) error {
	_, err := db.pool.Exec(ctx,
		`UPDATE analysis_jobs SET
		     status = $1, completed = $2, failed = $3, skipped = $4,
		     current_company = NULL, current_stage = NULL, eta_seconds = NULL,
		     total_tokens = $5, error_message = NULLIF($6, ''), completed_at = NOW()
		 WHERE id = $7`,
		status, p.Completed, p.Failed, p.Skipped, p.TotalTokens, errorMessage, jobID,
	)
	if err != nil {
		return fmt.Errorf("failed to complete job: %w", err)
	}
	return nil
}

// GetJob retrieves a job by ID, nil when absent
func (db *DB) GetJob(ctx context.Context, jobID uuid.UUID) (*Job, error) {
	var j Job
	err := db.pool.QueryRow(ctx,
		`SELECT id, status, total_companies, completed, failed, skipped,
		        current_company, current_stage, eta_seconds, total_tokens,
		        force_reanalyze, error_message, created_at, started_at, completed_at
		 FROM analysis_jobs WHERE id = $1`,
		jobID,
	).Scan(&j.ID, &j.Status, &j.TotalCompanies, &j.Completed, &j.Failed, &j.Skipped,
		&j.CurrentCompany, &j.CurrentStage, &j.ETASeconds, &j.TotalTokens,
		&j.ForceReanalyze, &j.ErrorMessage, &j.CreatedAt, &j.StartedAt, &j.CompletedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return &j, nil
}

// JobFilters holds optional filters for listing jobs
type JobFilters struct {
	Status string
	Limit  int
}

// ListJobs retrieves recent jobs with optional filters
func (db *DB) ListJobs(ctx context.Context, filters JobFilters) ([]Job, error) {
	if filters.Limit == 0 {
		filters.Limit = 50
	}

	query := `SELECT id, status, total_companies, completed, failed, skipped,
	          current_company, current_stage, eta_seconds, total_tokens,
	          force_reanalyze, error_message, created_at, started_at, completed_at
	      FROM analysis_jobs WHERE 1=1`
	args := []any{}
	argNum := 1

	if filters.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argNum)
		args = append(args, filters.Status)
		argNum++
	}

	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", argNum)
	args = append(args, filters.Limit)

	rows, err := db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		var j Job
		if err := rows.Scan(&j.ID, &j.Status, &j.TotalCompanies, &j.Completed, &j.Failed, &j.Skipped,
			&j.CurrentCompany, &j.CurrentStage, &j.ETASeconds, &j.TotalTokens,
			&j.ForceReanalyze, &j.ErrorMessage, &j.CreatedAt, &j.StartedAt, &j.CompletedAt); err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, j)
	}
	return jobs, nil
}
