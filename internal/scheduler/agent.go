// Package scheduler decides which companies to analyze next and runs
// batch jobs for them on a configured cadence.
package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jonathan/prospector/internal/db"
	"github.com/jonathan/prospector/internal/directory"
	"github.com/jonathan/prospector/internal/llm"
	"github.com/jonathan/prospector/internal/prompts"
)

// Priority scoring weights
const (
	baseScore      = 50.0
	highValueBonus = 25.0 // company had a product match scoring 80+
	strongAvgBonus = 15.0 // average match score above 70, without a high value hit
	manyPainsBonus = 10.0 // more than 10 pain points found so far
	repeatPenalty  = 10.0 // analyzed more than 3 times already
	smallTierBonus = 10.0
	midTierBonus   = 5.0
	strongAvgFloor = 70.0
	manyPainsFloor = 10
	repeatFloor    = 3
)

// HighPriorityFloor marks scores that may jump the eligibility window
const HighPriorityFloor = 75.0

// maxConsidered caps how many priority rows one selection round loads
const maxConsidered = 500

// seedBudget caps directory enrichment calls per selection round. A fresh
// deployment fills its candidate pool over successive rounds instead of
// crawling the whole listing at once.
const seedBudget = 40

// Score computes the rule-based priority score for a company, 0 to 100.
// Smaller companies score higher because their filings are shorter and
// their pains tend to map onto the catalog more directly.
func Score(p db.CompanyPriority) float64 {
	score := baseScore
	if p.HighValueMatch {
		score += highValueBonus
	} else if p.AvgMatchScore != nil && *p.AvgMatchScore > strongAvgFloor {
		score += strongAvgBonus
	}
	if p.TotalPainPoints > manyPainsFloor {
		score += manyPainsBonus
	}
	if p.TimesAnalyzed > repeatFloor {
		score -= repeatPenalty
	}
	switch directory.TierFor(p.SizeUSD) {
	case "small":
		score += smallTierBonus
	case "mid":
		score += midTierBonus
	}
	return math.Max(0, math.Min(100, score))
}

// Candidate is one company under consideration with its verdict context
type Candidate struct {
	db.CompanyPriority
	Reason     string  // reason code when selected
	Reasoning  string  // free-text explanation
	Confidence float64 // only set by generative re-rank
	tierIndex  int
}

// Selection is the outcome of one agent decision round
type Selection struct {
	Candidates []Candidate // in analysis order
	Considered int
	Reasoning  string
	TokensUsed int
}

// PriorityStore is the persistence surface the agent reads and audits to
type PriorityStore interface {
	ListCompanyPriorities(ctx context.Context, filters db.PriorityFilters) ([]db.CompanyPriority, error)
	UpsertCompanyPriority(ctx context.Context, p *db.CompanyPriority) error
	RecordDecision(ctx context.Context, d *db.Decision) error
	ListLearnedPatterns(ctx context.Context, limit int) ([]db.LearnedPattern, error)
}

// Agent selects companies for the next run. The candidate pool is the
// public directory merged with the persisted priority history; companies
// the store has never seen are discovered and seeded each round. With an
// LLM configured the agent re-ranks the rule-based shortlist; without
// one, or when the model response cannot be used, the rule-based order
// stands.
type Agent struct {
	Store     PriorityStore
	Directory directory.Directory // nil disables discovery
	LLM       llm.Client
	Now       func() time.Time // test override, nil means time.Now
}

func (a *Agent) now() time.Time {
	if a.Now != nil {
		return a.Now()
	}
	return time.Now()
}

// Select picks up to cfg.MaxPerRun companies and records a decision for
// every candidate considered.
func (a *Agent) Select(ctx context.Context, runID uuid.UUID, cfg *db.SchedulerConfig) (*Selection, error) {
	rows, err := a.Store.ListCompanyPriorities(ctx, db.PriorityFilters{
		Industries:    cfg.IncludeIndustries,
		NotIndustries: cfg.ExcludeIndustries,
		Limit:         maxConsidered,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load priority rows: %w", err)
	}
	if a.Directory != nil {
		rows = a.seed(ctx, rows, cfg)
	}

	selected, skipped := a.expand(rows, cfg)
	sel := &Selection{
		Candidates: selected,
		Considered: len(rows),
		Reasoning:  "rule-based selection: smallest eligible companies first",
	}

	if cfg.UseGenerativeRank && a.LLM != nil && len(selected) > 1 {
		a.rerank(ctx, sel, cfg)
	}

	a.audit(ctx, runID, sel.Candidates, skipped)
	return sel, nil
}

// seed folds directory listings the store has never seen into the pool.
// The priority table starts empty on a new deployment, so without
// discovery the agent would have nothing to choose from until someone ran
// manual analyses. Discovered companies are persisted so later rounds
// skip the enrichment cost.
func (a *Agent) seed(ctx context.Context, rows []db.CompanyPriority, cfg *db.SchedulerConfig) []db.CompanyPriority {
	entries, err := a.Directory.List(ctx)
	if err != nil {
		log.Printf("scheduler: directory listing unavailable, using stored pool: %v", err)
		return rows
	}

	known := make(map[string]bool, len(rows))
	for _, row := range rows {
		known[row.CIK] = true
	}

	budget := seedBudget
	for _, entry := range entries {
		if budget == 0 || len(rows) >= maxConsidered {
			break
		}
		if known[entry.CIK] {
			continue
		}
		budget--

		info, err := a.Directory.Enrich(ctx, entry)
		if err != nil {
			log.Printf("scheduler: failed to enrich %s (%s): %v", entry.Name, entry.CIK, err)
			continue
		}
		if !industryAllowed(info.Industry, cfg) {
			continue
		}

		row := db.CompanyPriority{
			CIK:         entry.CIK,
			CompanyName: entry.Name,
			SizeUSD:     info.SizeUSD,
		}
		if entry.Ticker != "" {
			row.Ticker = &entry.Ticker
		}
		if info.Industry != "" {
			row.Industry = &info.Industry
		}
		if info.Sector != "" {
			row.Sector = &info.Sector
		}
		row.PriorityScore = Score(row)
		reason := "discovered in directory listing"
		row.PriorityReason = &reason

		if err := a.Store.UpsertCompanyPriority(ctx, &row); err != nil {
			log.Printf("scheduler: failed to persist priority row for %s: %v", entry.CIK, err)
		}
		rows = append(rows, row)
	}
	return rows
}

func industryAllowed(industry string, cfg *db.SchedulerConfig) bool {
	for _, excluded := range cfg.ExcludeIndustries {
		if strings.EqualFold(excluded, industry) {
			return false
		}
	}
	if len(cfg.IncludeIndustries) == 0 {
		return true
	}
	for _, included := range cfg.IncludeIndustries {
		if strings.EqualFold(included, industry) {
			return true
		}
	}
	return false
}

// expand walks the size thresholds from smallest to largest, admitting
// eligible companies until the per-run cap is reached. Strict mode uses
// the single configured tier ceiling and never expands past it.
func (a *Agent) expand(rows []db.CompanyPriority, cfg *db.SchedulerConfig) (selected, skipped []Candidate) {
	thresholds := []float64{
		directory.MidCapFloor,
		directory.LargeCapFloor,
		directory.MegaCapFloor,
		math.MaxFloat64,
	}
	if cfg.StrictTier != nil {
		thresholds = []float64{directory.TierCeiling(*cfg.StrictTier)}
	}

	now := a.now()
	taken := make(map[string]bool)

	for tierIndex, threshold := range thresholds {
		if len(selected) >= cfg.MaxPerRun {
			break
		}

		var pool []Candidate
		for _, row := range rows {
			if taken[row.CIK] || row.SizeUSD >= threshold {
				continue
			}
			c := Candidate{CompanyPriority: row, tierIndex: tierIndex}
			if !a.eligible(row, now) {
				c.Reason = "ineligible"
				c.Reasoning = fmt.Sprintf("not eligible again until %s", row.NextEligibleAt.Format(time.RFC3339))
				taken[row.CIK] = true
				skipped = append(skipped, c)
				continue
			}
			pool = append(pool, c)
		}

		sort.SliceStable(pool, func(i, k int) bool {
			if pool[i].SizeUSD != pool[k].SizeUSD {
				return pool[i].SizeUSD < pool[k].SizeUSD
			}
			si, sk := Score(pool[i].CompanyPriority), Score(pool[k].CompanyPriority)
			if si != sk {
				return si > sk
			}
			return staleness(pool[i].CompanyPriority, now) > staleness(pool[k].CompanyPriority, now)
		})

		for _, c := range pool {
			taken[c.CIK] = true
			if len(selected) < cfg.MaxPerRun {
				c.Reason = reasonFor(c)
				c.Reasoning = reasoningFor(c, now)
				selected = append(selected, c)
			} else {
				c.Reason = "capacity"
				c.Reasoning = "eligible but the run is full"
				skipped = append(skipped, c)
			}
		}
	}
	return selected, skipped
}

func (a *Agent) eligible(p db.CompanyPriority, now time.Time) bool {
	if p.NextEligibleAt == nil || !p.NextEligibleAt.After(now) {
		return true
	}
	return Score(p) >= HighPriorityFloor
}

func staleness(p db.CompanyPriority, now time.Time) time.Duration {
	if p.LastAnalyzedAt == nil {
		return time.Duration(math.MaxInt64)
	}
	return now.Sub(*p.LastAnalyzedAt)
}

func reasonFor(c Candidate) string {
	if c.TimesAnalyzed == 0 {
		return db.ReasonFirstTime
	}
	if Score(c.CompanyPriority) >= HighPriorityFloor {
		return db.ReasonHighPriority
	}
	if c.tierIndex > 0 {
		return db.ReasonTierExpansion
	}
	return db.ReasonStale
}

func reasoningFor(c Candidate, now time.Time) string {
	if c.LastAnalyzedAt == nil {
		return "never analyzed before"
	}
	days := int(now.Sub(*c.LastAnalyzedAt).Hours() / 24)
	return fmt.Sprintf("last analyzed %d days ago, score %.0f", days, Score(c.CompanyPriority))
}

// rerankResponse is the JSON shape the re-rank prompt asks for
type rerankResponse struct {
	Reasoning string `json:"reasoning"`
	Selected  []struct {
		ID         string  `json:"id"`
		Reasoning  string  `json:"reasoning"`
		Confidence float64 `json:"confidence"`
	} `json:"selected"`
}

// rerank asks the model to reorder the shortlist. Any problem with the
// response leaves the rule-based selection untouched.
func (a *Agent) rerank(ctx context.Context, sel *Selection, cfg *db.SchedulerConfig) {
	template := prompts.MustGet("scheduler.json", "rerank-candidates")
	prompt := prompts.Format(template, map[string]string{
		"Candidates": formatCandidates(sel.Candidates),
		"Patterns":   a.formatPatterns(ctx),
		"Limit":      fmt.Sprintf("%d", cfg.MaxPerRun),
	})

	raw, tokens, err := a.LLM.GenerateJSON(ctx, prompt, llm.TierStandard)
	sel.TokensUsed += tokens
	if err != nil {
		log.Printf("scheduler: re-rank unavailable, keeping rule order: %v", err)
		return
	}

	var resp rerankResponse
	if err := json.Unmarshal([]byte(llm.CleanJSONBlock(raw)), &resp); err != nil {
		log.Printf("scheduler: unusable re-rank response, keeping rule order: %v", err)
		return
	}
	if len(resp.Selected) == 0 {
		log.Printf("scheduler: empty re-rank response, keeping rule order")
		return
	}

	byCIK := make(map[string]Candidate, len(sel.Candidates))
	for _, c := range sel.Candidates {
		byCIK[c.CIK] = c
	}

	var reranked []Candidate
	seen := make(map[string]bool)
	for _, pick := range resp.Selected {
		c, ok := byCIK[pick.ID]
		if !ok || seen[pick.ID] {
			log.Printf("scheduler: re-rank named unknown or duplicate id %q, keeping rule order", pick.ID)
			return
		}
		seen[pick.ID] = true
		if pick.Reasoning != "" {
			c.Reasoning = pick.Reasoning
		}
		c.Confidence = pick.Confidence
		reranked = append(reranked, c)
	}
	if len(reranked) > cfg.MaxPerRun {
		reranked = reranked[:cfg.MaxPerRun]
	}

	// Companies the model dropped still count as skipped considerations
	sel.Candidates = reranked
	if resp.Reasoning != "" {
		sel.Reasoning = resp.Reasoning
	}
}

func formatCandidates(candidates []Candidate) string {
	var b strings.Builder
	for _, c := range candidates {
		fmt.Fprintf(&b, "- id=%s name=%q tier=%s score=%.0f analyzed=%d reason=%s\n",
			c.CIK, c.CompanyName, directory.TierFor(c.SizeUSD),
			Score(c.CompanyPriority), c.TimesAnalyzed, c.Reason)
	}
	return b.String()
}

// formatPatterns renders learned memory for the prompt. Failures here
// never block a run.
func (a *Agent) formatPatterns(ctx context.Context) string {
	patterns, err := a.Store.ListLearnedPatterns(ctx, 10)
	if err != nil {
		log.Printf("scheduler: failed to load learned patterns: %v", err)
		return "(none)"
	}
	if len(patterns) == 0 {
		return "(none)"
	}
	var b strings.Builder
	for _, p := range patterns {
		desc := ""
		if p.Description != nil {
			desc = *p.Description
		}
		fmt.Fprintf(&b, "- %s (confidence %.2f): %s %s\n", p.Key, p.Confidence, desc, string(p.Value))
	}
	return b.String()
}

// audit writes one decision row per considered candidate
func (a *Agent) audit(ctx context.Context, runID uuid.UUID, selected, skipped []Candidate) {
	record := func(c Candidate, verdict string) {
		reasoning := c.Reasoning
		d := &db.Decision{
			RunID:         runID,
			CIK:           c.CIK,
			CompanyName:   c.CompanyName,
			Decision:      verdict,
			Reason:        c.Reason,
			Reasoning:     &reasoning,
			PriorityScore: Score(c.CompanyPriority),
			SizeUSD:       c.SizeUSD,
			TimesAnalyzed: c.TimesAnalyzed,
		}
		if err := a.Store.RecordDecision(ctx, d); err != nil {
			log.Printf("scheduler: failed to record decision for %s: %v", c.CIK, err)
		}
	}
	for _, c := range selected {
		record(c, db.DecisionSelected)
	}
	for _, c := range skipped {
		record(c, db.DecisionSkipped)
	}
}
