package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jonathan/prospector/internal/db"
	"github.com/jonathan/prospector/internal/orchestrator"
	"github.com/jonathan/prospector/internal/types"
)

// Trigger guard errors
var (
	ErrRunInFlight = errors.New("a scheduler run is already in progress")
	ErrTooSoon     = errors.New("minimum interval between runs has not elapsed")
)

// HighValueFitScore marks a product match as high value
const HighValueFitScore = 80.0

// JobRunner submits batch jobs and waits for them to finish
type JobRunner interface {
	Submit(ctx context.Context, req *types.SubmitJobRequest) (uuid.UUID, error)
	Wait(ctx context.Context, jobID uuid.UUID) (*orchestrator.Job, error)
}

// RunStore is the persistence surface for scheduler runs and the
// priority bookkeeping that follows them
type RunStore interface {
	GetSchedulerConfig(ctx context.Context) (*db.SchedulerConfig, error)
	TouchSchedulerRunTimes(ctx context.Context, cadenceMinutes int) error
	CreateSchedulerRun(ctx context.Context, runID uuid.UUID, triggeredBy string) error
	AttachRunSelection(ctx context.Context, runID uuid.UUID, considered, selected int, reasoning string, jobID *uuid.UUID) error
	CompleteSchedulerRun(ctx context.Context, runID uuid.UUID, status string, analyzed, skipped, failed, totalTokens int, errorMessage string) error
	ListAnalysesByJob(ctx context.Context, jobID uuid.UUID) ([]db.Analysis, error)
	ListMatches(ctx context.Context, analysisID uuid.UUID) ([]db.StoredMatch, error)
	GetCompanyPriority(ctx context.Context, cik string) (*db.CompanyPriority, error)
	UpdateAfterAnalysis(ctx context.Context, outcome db.AnalysisOutcome, priorityScore float64, reason string) error
	UpsertLearnedPattern(ctx context.Context, p *db.LearnedPattern) error
	DeleteExpiredPatterns(ctx context.Context) (int64, error)
}

// Scheduler wakes on a cadence, asks the Agent which companies to
// analyze, and drives a batch job for them.
type Scheduler struct {
	Store RunStore
	Agent *Agent
	Jobs  JobRunner

	mu        sync.Mutex
	inFlight  bool
	lastRunAt time.Time
	cancel    context.CancelFunc
	done      chan struct{}
}

// Status is the snapshot served by the status endpoint
type Status struct {
	Active    bool                `json:"active"`
	Running   bool                `json:"running"`
	LastRunAt *time.Time          `json:"last_run_at,omitempty"`
	NextRunAt *time.Time          `json:"next_run_at,omitempty"`
	Config    *db.SchedulerConfig `json:"config"`
}

// Start arms the cadence loop. Config is re-read on every wake-up so
// changes apply without a restart. Calling Start twice is an error.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return errors.New("scheduler already started")
	}

	cfg, err := s.Store.GetSchedulerConfig(ctx)
	if err != nil {
		return fmt.Errorf("failed to load scheduler config: %w", err)
	}

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.loop(loopCtx, cfg.CadenceMinutes)
	return nil
}

// Stop cancels the cadence loop and waits for it to exit. An in-flight
// run finishes on its own; Stop does not interrupt it.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	done := s.done
	s.cancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

func (s *Scheduler) loop(ctx context.Context, cadenceMinutes int) {
	defer close(s.done)
	if cadenceMinutes <= 0 {
		cadenceMinutes = db.DefaultSchedulerConfig().CadenceMinutes
	}
	timer := time.NewTimer(time.Duration(cadenceMinutes) * time.Minute)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		cfg, err := s.Store.GetSchedulerConfig(ctx)
		if err != nil {
			log.Printf("scheduler: failed to reload config, keeping cadence: %v", err)
			cfg = &db.SchedulerConfig{CadenceMinutes: cadenceMinutes}
		}
		if cfg.Active {
			if _, err := s.runOnce(ctx, db.TriggerScheduler); err != nil &&
				!errors.Is(err, ErrRunInFlight) && !errors.Is(err, ErrTooSoon) {
				log.Printf("scheduler: run failed: %v", err)
			}
		}

		cadenceMinutes = cfg.CadenceMinutes
		if cadenceMinutes <= 0 {
			cadenceMinutes = db.DefaultSchedulerConfig().CadenceMinutes
		}
		timer.Reset(time.Duration(cadenceMinutes) * time.Minute)
	}
}

// TriggerNow starts a run immediately, bypassing the cadence but not
// the single-flight and minimum interval guards. It returns the run ID
// as soon as the run record exists; the run itself continues in the
// background.
func (s *Scheduler) TriggerNow(ctx context.Context, triggeredBy string) (uuid.UUID, error) {
	runID, cfg, err := s.beginRun(ctx, triggeredBy)
	if err != nil {
		return uuid.Nil, err
	}
	go func() {
		defer s.release()
		if err := s.execute(context.WithoutCancel(ctx), runID, cfg); err != nil {
			log.Printf("scheduler: run %s failed: %v", runID, err)
		}
	}()
	return runID, nil
}

// Status reports the current scheduler state
func (s *Scheduler) Status(ctx context.Context) (*Status, error) {
	cfg, err := s.Store.GetSchedulerConfig(ctx)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	running := s.inFlight
	s.mu.Unlock()
	return &Status{
		Active:    cfg.Active,
		Running:   running,
		LastRunAt: cfg.LastRunAt,
		NextRunAt: cfg.NextRunAt,
		Config:    cfg,
	}, nil
}

// runOnce executes one full scheduler cycle synchronously. The cadence
// loop uses it; TriggerNow runs the same cycle in the background.
func (s *Scheduler) runOnce(ctx context.Context, triggeredBy string) (uuid.UUID, error) {
	runID, cfg, err := s.beginRun(ctx, triggeredBy)
	if err != nil {
		return uuid.Nil, err
	}
	defer s.release()
	return runID, s.execute(ctx, runID, cfg)
}

// beginRun applies the single-flight and minimum interval guards and
// creates the run record. The caller must release() when the run ends.
func (s *Scheduler) beginRun(ctx context.Context, triggeredBy string) (uuid.UUID, *db.SchedulerConfig, error) {
	cfg, err := s.Store.GetSchedulerConfig(ctx)
	if err != nil {
		return uuid.Nil, nil, fmt.Errorf("failed to load scheduler config: %w", err)
	}

	s.mu.Lock()
	if s.inFlight {
		s.mu.Unlock()
		return uuid.Nil, nil, ErrRunInFlight
	}
	// A restart clears s.lastRunAt; the persisted timestamp still counts.
	last := s.lastRunAt
	if cfg.LastRunAt != nil && cfg.LastRunAt.After(last) {
		last = *cfg.LastRunAt
	}
	minInterval := time.Duration(cfg.MinIntervalMinutes) * time.Minute
	if !last.IsZero() && time.Since(last) < minInterval {
		s.mu.Unlock()
		return uuid.Nil, nil, ErrTooSoon
	}
	s.inFlight = true
	s.lastRunAt = time.Now()
	s.mu.Unlock()

	runID := uuid.New()
	if err := s.Store.CreateSchedulerRun(ctx, runID, triggeredBy); err != nil {
		s.release()
		return uuid.Nil, nil, fmt.Errorf("failed to create run record: %w", err)
	}
	if err := s.Store.TouchSchedulerRunTimes(ctx, cfg.CadenceMinutes); err != nil {
		log.Printf("scheduler: failed to record run times: %v", err)
	}
	return runID, cfg, nil
}

func (s *Scheduler) release() {
	s.mu.Lock()
	s.inFlight = false
	s.mu.Unlock()
}

// execute runs selection, the derived job, and the bookkeeping that
// follows it.
func (s *Scheduler) execute(ctx context.Context, runID uuid.UUID, cfg *db.SchedulerConfig) error {
	// Stale learned memory must not influence this round's re-rank
	if n, err := s.Store.DeleteExpiredPatterns(ctx); err != nil {
		log.Printf("scheduler: failed to sweep expired patterns: %v", err)
	} else if n > 0 {
		log.Printf("scheduler: removed %d expired learned patterns", n)
	}

	sel, err := s.Agent.Select(ctx, runID, cfg)
	if err != nil {
		_ = s.Store.CompleteSchedulerRun(ctx, runID, db.RunStatusFailed, 0, 0, 0, 0, err.Error())
		return fmt.Errorf("candidate selection failed: %w", err)
	}

	if len(sel.Candidates) == 0 {
		if err := s.Store.CompleteSchedulerRun(ctx, runID, db.RunStatusCompleted, 0, 0, 0, sel.TokensUsed, ""); err != nil {
			log.Printf("scheduler: failed to complete empty run: %v", err)
		}
		return nil
	}

	companies := make([]string, 0, len(sel.Candidates))
	for _, c := range sel.Candidates {
		query := c.CompanyName
		if c.Ticker != nil && *c.Ticker != "" {
			query = *c.Ticker
		}
		companies = append(companies, query)
	}

	jobID, err := s.Jobs.Submit(ctx, &types.SubmitJobRequest{Companies: companies})
	if err != nil {
		_ = s.Store.CompleteSchedulerRun(ctx, runID, db.RunStatusFailed, 0, 0, 0, sel.TokensUsed, err.Error())
		return fmt.Errorf("failed to submit job: %w", err)
	}
	if err := s.Store.AttachRunSelection(ctx, runID, sel.Considered, len(sel.Candidates), sel.Reasoning, &jobID); err != nil {
		log.Printf("scheduler: failed to attach selection to run %s: %v", runID, err)
	}

	job, err := s.Jobs.Wait(ctx, jobID)
	if err != nil {
		_ = s.Store.CompleteSchedulerRun(ctx, runID, db.RunStatusFailed, 0, 0, 0, sel.TokensUsed, err.Error())
		return fmt.Errorf("failed waiting for job: %w", err)
	}

	status := db.RunStatusCompleted
	message := ""
	if job.Status == orchestrator.StatusFailed {
		status = db.RunStatusFailed
		message = job.Error
	}
	if err := s.Store.CompleteSchedulerRun(ctx, runID, status,
		job.Completed, job.Skipped, job.Failed, sel.TokensUsed+job.TotalTokens, message); err != nil {
		log.Printf("scheduler: failed to complete run %s: %v", runID, err)
	}

	s.updatePriorities(ctx, jobID, cfg)
	s.recordRunPattern(ctx, runID, job)
	return nil
}

// updatePriorities folds each finished analysis back into the priority
// store so future selections see the new state.
func (s *Scheduler) updatePriorities(ctx context.Context, jobID uuid.UUID, cfg *db.SchedulerConfig) {
	analyses, err := s.Store.ListAnalysesByJob(ctx, jobID)
	if err != nil {
		log.Printf("scheduler: failed to list analyses for job %s: %v", jobID, err)
		return
	}

	for _, a := range analyses {
		if a.Status != db.AnalysisStatusCompleted || a.CompanyID == "" {
			continue
		}

		matches, err := s.Store.ListMatches(ctx, a.ID)
		if err != nil {
			log.Printf("scheduler: failed to list matches for analysis %s: %v", a.ID, err)
			continue
		}

		var sum float64
		highValue := false
		for _, m := range matches {
			sum += m.Score
			if m.Score >= HighValueFitScore {
				highValue = true
			}
		}
		avg := 0.0
		if len(matches) > 0 {
			avg = sum / float64(len(matches))
		}

		outcome := db.AnalysisOutcome{
			CIK:            a.CompanyID,
			CompanyName:    a.CompanyName,
			Ticker:         derefOr(a.Ticker),
			SizeUSD:        derefOrFloat(a.SizeUSD),
			Industry:       derefOr(a.Industry),
			Sector:         derefOr(a.Sector),
			PainPoints:     a.PainCount,
			AvgMatchScore:  avg,
			HighValueMatch: highValue,
			NextEligibleIn: time.Duration(cfg.ReanalyzeAfterDays) * 24 * time.Hour,
		}

		// Score against the state the row will have after this update
		projected := db.CompanyPriority{
			SizeUSD:         outcome.SizeUSD,
			TimesAnalyzed:   1,
			TotalPainPoints: outcome.PainPoints,
			AvgMatchScore:   &avg,
			HighValueMatch:  highValue,
		}
		if current, err := s.Store.GetCompanyPriority(ctx, a.CompanyID); err != nil {
			log.Printf("scheduler: failed to read priority for %s: %v", a.CompanyID, err)
		} else if current != nil {
			projected.TimesAnalyzed = current.TimesAnalyzed + 1
			projected.TotalPainPoints = current.TotalPainPoints + outcome.PainPoints
			projected.HighValueMatch = current.HighValueMatch || highValue
			if projected.SizeUSD == 0 {
				projected.SizeUSD = current.SizeUSD
			}
		}
		reason := "analysis completed"
		if highValue {
			reason = "high-value product match found"
		}
		if err := s.Store.UpdateAfterAnalysis(ctx, outcome, Score(projected), reason); err != nil {
			log.Printf("scheduler: failed to update priority for %s: %v", a.CompanyID, err)
		}
	}
}

// recordRunPattern stores a compact summary of the run outcome as
// learned memory for future re-ranks.
func (s *Scheduler) recordRunPattern(ctx context.Context, runID uuid.UUID, job *orchestrator.Job) {
	summary := map[string]any{
		"run_id":   runID.String(),
		"analyzed": job.Completed,
		"skipped":  job.Skipped,
		"failed":   job.Failed,
		"tokens":   job.TotalTokens,
		"finished": time.Now().UTC().Format(time.RFC3339),
	}
	value, err := json.Marshal(summary)
	if err != nil {
		return
	}

	confidence := 1.0
	if total := job.Completed + job.Failed; total > 0 {
		confidence = float64(job.Completed) / float64(total)
	}
	desc := "outcome of the most recent scheduler run"
	expires := time.Now().Add(30 * 24 * time.Hour)
	pattern := &db.LearnedPattern{
		Key:         "last_run_outcome",
		Value:       value,
		Description: &desc,
		Confidence:  confidence,
		ExpiresAt:   &expires,
	}
	if err := s.Store.UpsertLearnedPattern(ctx, pattern); err != nil {
		log.Printf("scheduler: failed to store run pattern: %v", err)
	}
}

func derefOr(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func derefOrFloat(f *float64) float64 {
	if f == nil {
		return 0
	}
	return *f
}
