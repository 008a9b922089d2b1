// Package db provides PostgreSQL persistence for analysis jobs, per-company
// analyses and their artifacts, company priorities, and scheduler state.
//
// Schema overview (DDL managed externally):
//
//	analysis_jobs       batch job records with progress counters
//	analyses            one row per company per run, staged artifacts hang off it
//	pain_points         mined pains (quotes stored as JSONB)
//	product_matches     scored catalog matches per analysis
//	pitches             generated outreach per analysis
//	company_priorities  one row per CIK, drives scheduler selection
//	scheduler_config    singleton row (id = 1)
//	scheduler_runs      one row per scheduler wake-up or manual trigger
//	scheduler_decisions per-candidate audit trail for a run
//	learned_patterns    keyed memory entries with confidence and expiry
package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DB wraps a PostgreSQL connection pool
type DB struct {
	pool *pgxpool.Pool
}

// Connect establishes a connection pool to the database
func Connect(ctx context.Context, databaseURL string) (*DB, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{pool: pool}, nil
}

// Close closes the connection pool
func (db *DB) Close() {
	if db.pool != nil {
		db.pool.Close()
	}
}
