package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// UpsertCompanyPriority registers or refreshes a company's priority row.
// next_eligible_at only ever moves forward so a refresh cannot make a
// recently analyzed company eligible again early.
func (db *DB) UpsertCompanyPriority(ctx context.Context, p *CompanyPriority) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO company_priorities
		     (cik, company_name, ticker, size_usd, industry, sector,
		      priority_score, priority_reason, next_eligible_at)
		 VALUES ($1, $2, NULLIF($3, ''), $4, NULLIF($5, ''), NULLIF($6, ''), $7, NULLIF($8, ''), $9)
		 ON CONFLICT (cik) DO UPDATE SET
		     company_name = $2,
		     ticker = COALESCE(NULLIF($3, ''), company_priorities.ticker),
		     size_usd = CASE WHEN $4 > 0 THEN $4 ELSE company_priorities.size_usd END,
		     industry = COALESCE(NULLIF($5, ''), company_priorities.industry),
		     sector = COALESCE(NULLIF($6, ''), company_priorities.sector),
		     priority_score = $7,
		     priority_reason = COALESCE(NULLIF($8, ''), company_priorities.priority_reason),
		     next_eligible_at = GREATEST(company_priorities.next_eligible_at, $9),
		     updated_at = NOW()`,
		p.CIK, p.CompanyName, derefStr(p.Ticker), p.SizeUSD, derefStr(p.Industry), derefStr(p.Sector),
		p.PriorityScore, derefStr(p.PriorityReason), p.NextEligibleAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert company priority: %w", err)
	}
	return nil
}

// UpdateAfterAnalysis folds a finished analysis into the company's priority
// row. priorityScore is the freshly computed score for the new state.
func (db *DB) UpdateAfterAnalysis(ctx context.Context, outcome AnalysisOutcome, priorityScore float64, reason string) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO company_priorities
		     (cik, company_name, ticker, size_usd, industry, sector,
		      times_analyzed, last_analyzed_at, next_eligible_at,
		      priority_score, priority_reason, avg_match_score,
		      total_pain_points, has_high_value_matches)
		 VALUES ($1, $2, NULLIF($3, ''), $4, NULLIF($5, ''), NULLIF($6, ''),
		         1, NOW(), NOW() + $7 * INTERVAL '1 second',
		         $8, NULLIF($9, ''), $10, $11, $12)
		 ON CONFLICT (cik) DO UPDATE SET
		     company_name = $2,
		     ticker = COALESCE(NULLIF($3, ''), company_priorities.ticker),
		     size_usd = CASE WHEN $4 > 0 THEN $4 ELSE company_priorities.size_usd END,
		     industry = COALESCE(NULLIF($5, ''), company_priorities.industry),
		     sector = COALESCE(NULLIF($6, ''), company_priorities.sector),
		     times_analyzed = company_priorities.times_analyzed + 1,
		     last_analyzed_at = NOW(),
		     next_eligible_at = GREATEST(company_priorities.next_eligible_at, NOW() + $7 * INTERVAL '1 second'),
		     priority_score = $8,
		     priority_reason = NULLIF($9, ''),
		     avg_match_score = $10,
		     total_pain_points = company_priorities.total_pain_points + $11,
		     has_high_value_matches = company_priorities.has_high_value_matches OR $12,
		     updated_at = NOW()`,
		outcome.CIK, outcome.CompanyName, outcome.Ticker, outcome.SizeUSD,
		outcome.Industry, outcome.Sector,
		int64(outcome.NextEligibleIn.Seconds()),
		priorityScore, reason, outcome.AvgMatchScore, outcome.PainPoints, outcome.HighValueMatch,
	)
	if err != nil {
		return fmt.Errorf("failed to update priority after analysis: %w", err)
	}
	return nil
}

// GetCompanyPriority retrieves the priority row for a CIK, nil when absent
func (db *DB) GetCompanyPriority(ctx context.Context, cik string) (*CompanyPriority, error) {
	var p CompanyPriority
	err := db.pool.QueryRow(ctx, prioritySelect+` WHERE cik = $1`, cik).
		Scan(priorityFields(&p)...)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get company priority: %w", err)
	}
	return &p, nil
}

// PriorityFilters holds optional filters for listing priority rows
type PriorityFilters struct {
	MaxSizeUSD    float64 // 0 means no ceiling
	EligibleBy    bool    // only rows whose next_eligible_at has passed or is unset
	MinScore      float64
	Industries    []string
	NotIndustries []string
	Limit         int
}

// ListCompanyPriorities retrieves priority rows ordered smallest company
// first, then highest score, then least recently analyzed.
func (db *DB) ListCompanyPriorities(ctx context.Context, filters PriorityFilters) ([]CompanyPriority, error) {
	if filters.Limit == 0 {
		filters.Limit = 200
	}

	query := prioritySelect + ` WHERE 1=1`
	args := []any{}
	argNum := 1

	if filters.MaxSizeUSD > 0 {
		query += fmt.Sprintf(" AND size_usd < $%d", argNum)
		args = append(args, filters.MaxSizeUSD)
		argNum++
	}
	if filters.EligibleBy {
		query += " AND (next_eligible_at IS NULL OR next_eligible_at <= NOW())"
	}
	if filters.MinScore > 0 {
		query += fmt.Sprintf(" AND priority_score >= $%d", argNum)
		args = append(args, filters.MinScore)
		argNum++
	}
	if len(filters.Industries) > 0 {
		query += fmt.Sprintf(" AND industry = ANY($%d)", argNum)
		args = append(args, filters.Industries)
		argNum++
	}
	if len(filters.NotIndustries) > 0 {
		query += fmt.Sprintf(" AND (industry IS NULL OR industry != ALL($%d))", argNum)
		args = append(args, filters.NotIndustries)
		argNum++
	}

	query += fmt.Sprintf(` ORDER BY size_usd ASC, priority_score DESC,
	     last_analyzed_at ASC NULLS FIRST LIMIT $%d`, argNum)
	args = append(args, filters.Limit)

	rows, err := db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list company priorities: %w", err)
	}
	defer rows.Close()

	var priorities []CompanyPriority
	for rows.Next() {
		var p CompanyPriority
		if err := rows.Scan(priorityFields(&p)...); err != nil {
			return nil, fmt.Errorf("failed to scan company priority: %w", err)
		}
		priorities = append(priorities, p)
	}
	return priorities, nil
}

const prioritySelect = `SELECT cik, company_name, ticker, size_usd, industry, sector,
	        times_analyzed, last_analyzed_at, next_eligible_at,
	        priority_score, priority_reason, avg_match_score,
	        total_pain_points, has_high_value_matches, updated_at
	 FROM company_priorities`

func priorityFields(p *CompanyPriority) []any {
	return []any{&p.CIK, &p.CompanyName, &p.Ticker, &p.SizeUSD, &p.Industry, &p.Sector,
		&p.TimesAnalyzed, &p.LastAnalyzedAt, &p.NextEligibleAt,
		&p.PriorityScore, &p.PriorityReason, &p.AvgMatchScore,
		&p.TotalPainPoints, &p.HighValueMatch, &p.UpdatedAt}
}

func derefStr(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
