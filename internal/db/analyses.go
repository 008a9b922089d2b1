package db

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/jonathan/prospector/internal/pipeline"
	"github.com/jonathan/prospector/internal/types"
)

// CreateAnalysis creates a running analysis row for a company query and
// returns its ID. jobID is nil for single-company CLI runs.
func (db *DB) CreateAnalysis(ctx context.Context, jobID *uuid.UUID, query, catalogHash string) (uuid.UUID, error) {
	var id uuid.UUID
	err := db.pool.QueryRow(ctx,
		`INSERT INTO analyses (job_id, company_name, status, catalog_hash)
		 VALUES ($1, $2, $3, NULLIF($4, ''))
		 RETURNING id`,
		jobID, query, AnalysisStatusRunning, catalogHash,
	).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to create analysis: %w", err)
	}
	return id, nil
}

// RecordStage persists the artifacts produced by one pipeline stage. It is
// called after every stage so partial results survive a mid-run failure.
// Re-recording a stage replaces its previous rows.
func (db *DB) RecordStage(ctx context.Context, analysisID string, stage pipeline.Stage, result *types.AnalysisResult) error {
	id, err := uuid.Parse(analysisID)
	if err != nil {
		return fmt.Errorf("invalid analysis id %q: %w", analysisID, err)
	}

	var accession, filingDate string
	usedCache := false
	if result.Document != nil {
		accession = result.Document.Accession
		filingDate = result.Document.FilingDate
		usedCache = result.Document.FromCache
	}

	_, err = db.pool.Exec(ctx,
		`UPDATE analyses SET
		     current_stage = $1,
		     company_id = NULLIF($2, ''), ticker = NULLIF($3, ''),
		     company_name = COALESCE(NULLIF($4, ''), company_name),
		     industry = NULLIF($5, ''), sector = NULLIF($6, ''),
		     size_usd = NULLIF($7, 0),
		     accession = NULLIF($8, ''), filing_date = NULLIF($9, ''),
		     used_cached_filing = $10,
		     tokens_used = $11
		 WHERE id = $12`,
		string(stage),
		result.Company.ID, result.Company.Ticker, result.Company.Name,
		result.Company.Industry, result.Company.Sector, result.Company.SizeUSD,
		accession, filingDate, usedCache, result.TokensUsed, id,
	)
	if err != nil {
		return fmt.Errorf("failed to record stage %s: %w", stage, err)
	}

	switch stage {
	case pipeline.StageMining:
		return db.replacePainPoints(ctx, id, result.Pains)
	case pipeline.StageMatching:
		return db.replaceMatches(ctx, id, result.Matches)
	case pipeline.StagePitching:
		if result.Pitch != nil {
			return db.replacePitch(ctx, id, result.Pitch)
		}
	}
	return nil
}

func (db *DB) replacePainPoints(ctx context.Context, analysisID uuid.UUID, pains []types.PainPoint) error {
	if _, err := db.pool.Exec(ctx, `DELETE FROM pain_points WHERE analysis_id = $1`, analysisID); err != nil {
		return fmt.Errorf("failed to clear pain points: %w", err)
	}
	for _, p := range pains {
		quotes, err := json.Marshal(p.Quotes)
		if err != nil {
			return fmt.Errorf("failed to marshal quotes: %w", err)
		}
		_, err = db.pool.Exec(ctx,
			`INSERT INTO pain_points (analysis_id, theme, rationale, confidence, quotes)
			 VALUES ($1, $2, $3, $4, $5)`,
			analysisID, p.Theme, p.Rationale, p.Confidence, quotes,
		)
		if err != nil {
			return fmt.Errorf("failed to save pain point: %w", err)
		}
	}
	return nil
}

func (db *DB) replaceMatches(ctx context.Context, analysisID uuid.UUID, matches []types.ProductMatch) error {
	if _, err := db.pool.Exec(ctx, `DELETE FROM product_matches WHERE analysis_id = $1`, analysisID); err != nil {
		return fmt.Errorf("failed to clear matches: %w", err)
	}
	for _, m := range matches {
		evidence, err := json.Marshal(m.Evidence)
		if err != nil {
			return fmt.Errorf("failed to marshal evidence: %w", err)
		}
		_, err = db.pool.Exec(ctx,
			`INSERT INTO product_matches (analysis_id, pain_theme, product_id, product_name, score, why, evidence)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			analysisID, m.PainTheme, m.ProductID, m.ProductName, m.Score, m.Why, evidence,
		)
		if err != nil {
			return fmt.Errorf("failed to save match: %w", err)
		}
	}
	return nil
}

func (db *DB) replacePitch(ctx context.Context, analysisID uuid.UUID, pitch *types.Pitch) error {
	quotes, err := json.Marshal(pitch.KeyQuotes)
	if err != nil {
		return fmt.Errorf("failed to marshal key quotes: %w", err)
	}
	_, err = db.pool.Exec(ctx,
		`INSERT INTO pitches (analysis_id, persona, subject, body, key_quotes)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (analysis_id) DO UPDATE SET
		     persona = $2, subject = $3, body = $4, key_quotes = $5, created_at = NOW()`,
		analysisID, pitch.Persona, pitch.Subject, pitch.Body, quotes,
	)
	if err != nil {
		return fmt.Errorf("failed to save pitch: %w", err)
	}
	return nil
}

// CompleteAnalysis marks an analysis terminal
func (db *DB) CompleteAnalysis(ctx context.Context, analysisID uuid.UUID, status string, tokensUsed int, errorMessage string) error {
	_, err := db.pool.Exec(ctx,
		`UPDATE analyses SET
		     status = $1, tokens_used = $2, error_message = NULLIF($3, ''),
		     completed_at = NOW()
		 WHERE id = $4`,
		status, tokensUsed, errorMessage, analysisID,
	)
	if err != nil {
		return fmt.Errorf("failed to complete analysis: %w", err)
	}
	return nil
}

// GetAnalysis retrieves an analysis by ID, nil when absent
func (db *DB) GetAnalysis(ctx context.Context, analysisID uuid.UUID) (*Analysis, error) {
	var a Analysis
	err := db.pool.QueryRow(ctx, analysisSelect+` WHERE a.id = $1`, analysisID).
		Scan(analysisFields(&a)...)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get analysis: %w", err)
	}
	return &a, nil
}

// GetLatestCompletedAnalysis returns the most recent completed analysis for a
// company, nil when the company has never completed one. PainCount is filled
// so callers can apply the reuse rule without a second query.
func (db *DB) GetLatestCompletedAnalysis(ctx context.Context, companyID string) (*Analysis, error) {
	var a Analysis
	err := db.pool.QueryRow(ctx,
		analysisSelect+` WHERE a.company_id = $1 AND a.status = $2
		 ORDER BY a.started_at DESC LIMIT 1`,
		companyID, AnalysisStatusCompleted,
	).Scan(analysisFields(&a)...)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get latest analysis: %w", err)
	}
	return &a, nil
}

// ListAnalysesByJob retrieves all analyses belonging to a job
func (db *DB) ListAnalysesByJob(ctx context.Context, jobID uuid.UUID) ([]Analysis, error) {
	rows, err := db.pool.Query(ctx,
		analysisSelect+` WHERE a.job_id = $1 ORDER BY a.started_at`, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to list analyses: %w", err)
	}
	defer rows.Close()

	var analyses []Analysis
	for rows.Next() {
		var a Analysis
		if err := rows.Scan(analysisFields(&a)...); err != nil {
			return nil, fmt.Errorf("failed to scan analysis: %w", err)
		}
		analyses = append(analyses, a)
	}
	return analyses, nil
}

const analysisSelect = `SELECT a.id, a.job_id, COALESCE(a.company_id, ''), a.ticker, a.company_name,
	        a.industry, a.sector, a.size_usd, a.status, a.current_stage,
	        a.accession, a.filing_date, a.used_cached_filing, a.catalog_hash,
	        (SELECT COUNT(*) FROM pain_points p WHERE p.analysis_id = a.id),
	        a.tokens_used, a.error_message, a.started_at, a.completed_at
	 FROM analyses a`

func analysisFields(a *Analysis) []any {
	return []any{&a.ID, &a.JobID, &a.CompanyID, &a.Ticker, &a.CompanyName,
		&a.Industry, &a.Sector, &a.SizeUSD, &a.Status, &a.CurrentStage,
		&a.Accession, &a.FilingDate, &a.UsedCachedFiling, &a.CatalogHash,
		&a.PainCount, &a.TokensUsed, &a.ErrorMessage, &a.StartedAt, &a.CompletedAt}
}

// ListPainPoints retrieves the mined pains for an analysis
func (db *DB) ListPainPoints(ctx context.Context, analysisID uuid.UUID) ([]StoredPainPoint, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, analysis_id, theme, rationale, confidence, quotes
		 FROM pain_points WHERE analysis_id = $1 ORDER BY id`,
		analysisID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list pain points: %w", err)
	}
	defer rows.Close()

	var pains []StoredPainPoint
	for rows.Next() {
		var p StoredPainPoint
		var quotes []byte
		if err := rows.Scan(&p.ID, &p.AnalysisID, &p.Theme, &p.Rationale, &p.Confidence, &quotes); err != nil {
			return nil, fmt.Errorf("failed to scan pain point: %w", err)
		}
		if err := json.Unmarshal(quotes, &p.Quotes); err != nil {
			return nil, fmt.Errorf("failed to decode quotes: %w", err)
		}
		pains = append(pains, p)
	}
	return pains, nil
}

// ListMatches retrieves the product matches for an analysis, best first
func (db *DB) ListMatches(ctx context.Context, analysisID uuid.UUID) ([]StoredMatch, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, analysis_id, pain_theme, product_id, product_name, score, why, evidence
		 FROM product_matches WHERE analysis_id = $1 ORDER BY score DESC, product_id`,
		analysisID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list matches: %w", err)
	}
	defer rows.Close()

	var matches []StoredMatch
	for rows.Next() {
		var m StoredMatch
		var evidence []byte
		if err := rows.Scan(&m.ID, &m.AnalysisID, &m.PainTheme, &m.ProductID, &m.ProductName, &m.Score, &m.Why, &evidence); err != nil {
			return nil, fmt.Errorf("failed to scan match: %w", err)
		}
		if err := json.Unmarshal(evidence, &m.Evidence); err != nil {
			return nil, fmt.Errorf("failed to decode evidence: %w", err)
		}
		matches = append(matches, m)
	}
	return matches, nil
}

// GetPitch retrieves the pitch for an analysis, nil when none was generated
func (db *DB) GetPitch(ctx context.Context, analysisID uuid.UUID) (*StoredPitch, error) {
	var p StoredPitch
	var quotes []byte
	err := db.pool.QueryRow(ctx,
		`SELECT id, analysis_id, persona, subject, body, key_quotes
		 FROM pitches WHERE analysis_id = $1`,
		analysisID,
	).Scan(&p.ID, &p.AnalysisID, &p.Persona, &p.Subject, &p.Body, &quotes)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get pitch: %w", err)
	}
	if err := json.Unmarshal(quotes, &p.KeyQuotes); err != nil {
		return nil, fmt.Errorf("failed to decode key quotes: %w", err)
	}
	return &p, nil
}
