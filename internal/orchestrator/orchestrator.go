// Package orchestrator runs batch analysis jobs: it expands a submission
// into candidate companies, runs the pipeline over them with bounded
// concurrency, applies the result reuse rule, and tracks progress.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/jonathan/prospector/internal/db"
	"github.com/jonathan/prospector/internal/directory"
	"github.com/jonathan/prospector/internal/pipeline"
	"github.com/jonathan/prospector/internal/types"
)

const (
	// DefaultMaxConcurrent bounds companies analyzed in parallel per job
	DefaultMaxConcurrent = 5

	// DefaultFilterLimit caps filter expansion when no limit is given
	DefaultFilterLimit = 50

	// maxRecordedErrors caps per-job error detail kept in memory
	maxRecordedErrors = 50
)

// Runner executes the per-company pipeline
type Runner interface {
	Run(ctx context.Context, analysisID, query string) *pipeline.Outcome
}

// Store persists job and analysis state. A nil Store disables persistence
// and the orchestrator serves status from memory only.
type Store interface {
	CreateJob(ctx context.Context, jobID uuid.UUID, totalCompanies int, forceReanalyze bool) error
	StartJob(ctx context.Context, jobID uuid.UUID) error
	UpdateJobProgress(ctx context.Context, jobID uuid.UUID, p db.JobProgress) error
	CompleteJob(ctx context.Context, jobID uuid.UUID, status string, p db.JobProgress, errorMessage string) error
	CreateAnalysis(ctx context.Context, jobID *uuid.UUID, query, catalogHash string) (uuid.UUID, error)
	CompleteAnalysis(ctx context.Context, analysisID uuid.UUID, status string, tokensUsed int, errorMessage string) error
	GetLatestCompletedAnalysis(ctx context.Context, companyID string) (*db.Analysis, error)
	RecordStage(ctx context.Context, analysisID string, stage pipeline.Stage, result *types.AnalysisResult) error
}

// Orchestrator coordinates batch jobs. It also implements
// pipeline.Recorder so per-stage progress flows back into job snapshots
// and, when a Store is configured, into the database.
type Orchestrator struct {
	Runner        Runner
	Directory     directory.Directory
	Store         Store
	CatalogHash   string
	MaxConcurrent int

	mu           sync.Mutex
	jobs         map[uuid.UUID]*Job
	analysisJobs map[string]uuid.UUID // analysis ID -> owning job
}

// New constructs an Orchestrator with an empty job registry
func New(runner Runner, dir directory.Directory, store Store, catalogHash string) *Orchestrator {
	return &Orchestrator{
		Runner:        runner,
		Directory:     dir,
		Store:         store,
		CatalogHash:   catalogHash,
		MaxConcurrent: DefaultMaxConcurrent,
		jobs:          make(map[uuid.UUID]*Job),
		analysisJobs:  make(map[string]uuid.UUID),
	}
}

// Submit validates a request, registers a job, and starts background
// processing. It returns the job ID immediately.
func (o *Orchestrator) Submit(ctx context.Context, req *types.SubmitJobRequest) (uuid.UUID, error) {
	if err := req.Validate(); err != nil {
		return uuid.Nil, err
	}

	jobID := uuid.New()
	job := &Job{
		ID:        jobID,
		Status:    StatusPending,
		Total:     len(req.Companies),
		CreatedAt: time.Now(),
	}

	o.mu.Lock()
	o.jobs[jobID] = job
	o.mu.Unlock()

	if o.Store != nil {
		if err := o.Store.CreateJob(ctx, jobID, job.Total, req.ForceReanalyze); err != nil {
			o.mu.Lock()
			delete(o.jobs, jobID)
			o.mu.Unlock()
			return uuid.Nil, fmt.Errorf("failed to register job: %w", err)
		}
	}

	// The job outlives the submit request
	go o.run(context.WithoutCancel(ctx), jobID, req)

	return jobID, nil
}

// GetJob returns a snapshot of a job, nil when unknown
func (o *Orchestrator) GetJob(jobID uuid.UUID) *Job {
	o.mu.Lock()
	defer o.mu.Unlock()
	job, ok := o.jobs[jobID]
	if !ok {
		return nil
	}
	return job.clone()
}

// ListJobs returns snapshots of all registered jobs, newest first
func (o *Orchestrator) ListJobs() []*Job {
	o.mu.Lock()
	defer o.mu.Unlock()
	jobs := make([]*Job, 0, len(o.jobs))
	for _, j := range o.jobs {
		jobs = append(jobs, j.clone())
	}
	sort.Slice(jobs, func(i, k int) bool {
		return jobs[i].CreatedAt.After(jobs[k].CreatedAt)
	})
	return jobs
}

// Wait blocks until the job reaches a terminal state or the context ends.
// Used by the CLI and tests; the HTTP surface polls instead.
func (o *Orchestrator) Wait(ctx context.Context, jobID uuid.UUID) (*Job, error) {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		job := o.GetJob(jobID)
		if job == nil {
			return nil, fmt.Errorf("unknown job: %s", jobID)
		}
		if job.Terminal() {
			return job, nil
		}
		select {
		case <-ctx.Done():
			return job, ctx.Err()
		case <-ticker.C:
		}
	}
}

// RecordStage implements pipeline.Recorder. It updates the owning job's
// current stage and forwards the artifacts to the store.
func (o *Orchestrator) RecordStage(ctx context.Context, analysisID string, stage pipeline.Stage, result *types.AnalysisResult) error {
	o.mu.Lock()
	if jobID, ok := o.analysisJobs[analysisID]; ok {
		if job, ok := o.jobs[jobID]; ok {
			job.CurrentStage = string(stage)
			if result.Company.Name != "" {
				job.CurrentCompany = result.Company.Name
			}
		}
	}
	o.mu.Unlock()

	if o.Store != nil {
		return o.Store.RecordStage(ctx, analysisID, stage, result)
	}
	return nil
}

func (o *Orchestrator) run(ctx context.Context, jobID uuid.UUID, req *types.SubmitJobRequest) {
	queries, err := o.expandCandidates(ctx, req)
	if err != nil {
		o.finishJob(ctx, jobID, StatusFailed, fmt.Sprintf("candidate expansion failed: %v", err))
		return
	}
	if len(queries) == 0 {
		o.finishJob(ctx, jobID, StatusFailed, "no companies matched the filter")
		return
	}

	now := time.Now()
	o.mu.Lock()
	job := o.jobs[jobID]
	job.Status = StatusRunning
	job.Total = len(queries)
	job.StartedAt = &now
	o.mu.Unlock()

	if o.Store != nil {
		if err := o.Store.StartJob(ctx, jobID); err != nil {
			log.Printf("orchestrator: failed to mark job %s started: %v", jobID, err)
		}
	}

	maxConcurrent := o.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrent
	}

	var resolved int
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrent)
	for _, query := range queries {
		g.Go(func() error {
			if o.processCompany(gCtx, jobID, query, req.ForceReanalyze) {
				o.mu.Lock()
				resolved++
				o.mu.Unlock()
			}
			return nil // company failures never abort the job
		})
	}
	_ = g.Wait()

	status := StatusCompleted
	message := ""
	if resolved == 0 {
		status = StatusFailed
		message = "no companies could be resolved"
	}
	o.finishJob(ctx, jobID, status, message)
}

// processCompany runs one company end to end and reports whether the
// query resolved to a directory entry.
func (o *Orchestrator) processCompany(ctx context.Context, jobID uuid.UUID, query string, force bool) bool {
	o.setCurrent(jobID, query, string(pipeline.StageResolving))

	entry, err := o.Directory.Resolve(ctx, query)
	if err != nil {
		var ambig *directory.AmbiguousError
		if errors.As(err, &ambig) {
			o.recordResult(ctx, jobID, CompanyResult{
				Query:      query,
				Status:     CompanyDisambiguation,
				Stage:      string(pipeline.StageResolving),
				Error:      ambig.Error(),
				Candidates: ambig.Candidates,
			})
			return false
		}
		o.recordResult(ctx, jobID, CompanyResult{
			Query:  query,
			Status: CompanyFailed,
			Stage:  string(pipeline.StageResolving),
			Error:  err.Error(),
		})
		return false
	}

	// Reuse rule: a completed analysis against the same catalog that
	// found at least one pain point makes a rerun redundant.
	if !force && o.Store != nil {
		latest, err := o.Store.GetLatestCompletedAnalysis(ctx, entry.CIK)
		if err != nil {
			log.Printf("orchestrator: reuse check failed for %s: %v", query, err)
		} else if latest != nil && latest.CatalogHash != nil &&
			*latest.CatalogHash == o.CatalogHash && latest.PainCount >= 1 {
			o.recordResult(ctx, jobID, CompanyResult{
				Query:       query,
				CompanyName: entry.Name,
				CIK:         entry.CIK,
				Status:      CompanySkipped,
				AnalysisID:  latest.ID.String(),
			})
			return true
		}
	}

	analysisID := uuid.New()
	if o.Store != nil {
		id, err := o.Store.CreateAnalysis(ctx, &jobID, query, o.CatalogHash)
		if err != nil {
			o.recordResult(ctx, jobID, CompanyResult{
				Query: query, CompanyName: entry.Name, CIK: entry.CIK,
				Status: CompanyFailed, Error: fmt.Sprintf("failed to persist analysis: %v", err),
			})
			return true
		}
		analysisID = id
	}

	o.mu.Lock()
	o.analysisJobs[analysisID.String()] = jobID
	o.mu.Unlock()
	defer func() {
		o.mu.Lock()
		delete(o.analysisJobs, analysisID.String())
		o.mu.Unlock()
	}()

	outcome := o.Runner.Run(ctx, analysisID.String(), query)

	result := CompanyResult{
		Query:       query,
		CompanyName: entry.Name,
		CIK:         entry.CIK,
		AnalysisID:  analysisID.String(),
	}
	if outcome.Result != nil {
		result.TokensUsed = outcome.Result.TokensUsed
		if outcome.Result.Company.Name != "" {
			result.CompanyName = outcome.Result.Company.Name
		}
	}

	var storeStatus string
	switch outcome.Status {
	case pipeline.StatusCompleted:
		result.Status = CompanyCompleted
		storeStatus = db.AnalysisStatusCompleted
	case pipeline.StatusDisambiguation:
		result.Status = CompanyDisambiguation
		result.Stage = string(outcome.Stage)
		result.Candidates = outcome.Candidates
		storeStatus = db.AnalysisStatusDisambiguation
	default:
		result.Status = CompanyFailed
		result.Stage = string(outcome.Stage)
		if outcome.Err != nil {
			result.Error = outcome.Err.Error()
		}
		storeStatus = db.AnalysisStatusFailed
	}

	if o.Store != nil {
		if err := o.Store.CompleteAnalysis(ctx, analysisID, storeStatus, result.TokensUsed, result.Error); err != nil {
			log.Printf("orchestrator: failed to complete analysis %s: %v", analysisID, err)
		}
	}
	o.recordResult(ctx, jobID, result)
	return true
}

func (o *Orchestrator) setCurrent(jobID uuid.UUID, company, stage string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if job, ok := o.jobs[jobID]; ok {
		job.CurrentCompany = company
		job.CurrentStage = stage
	}
}

// recordResult folds a company outcome into the job snapshot and
// persists updated progress.
func (o *Orchestrator) recordResult(ctx context.Context, jobID uuid.UUID, result CompanyResult) {
	o.mu.Lock()
	job, ok := o.jobs[jobID]
	if !ok {
		o.mu.Unlock()
		return
	}

	switch result.Status {
	case CompanyCompleted:
		job.Completed++
	case CompanySkipped:
		job.Skipped++
	default:
		job.Failed++
	}
	job.TotalTokens += result.TokensUsed
	if len(job.Results) < maxRecordedErrors || result.Status != CompanyFailed {
		job.Results = append(job.Results, result)
	}

	// Estimate remaining time from average pace so far
	finished := job.Completed + job.Failed + job.Skipped
	if job.StartedAt != nil && finished > 0 && finished < job.Total {
		elapsed := time.Since(*job.StartedAt)
		perCompany := elapsed / time.Duration(finished)
		job.ETASeconds = int(perCompany.Seconds() * float64(job.Total-finished))
	} else {
		job.ETASeconds = 0
	}

	progress := db.JobProgress{
		Completed:      job.Completed,
		Failed:         job.Failed,
		Skipped:        job.Skipped,
		CurrentCompany: job.CurrentCompany,
		CurrentStage:   job.CurrentStage,
		ETASeconds:     job.ETASeconds,
		TotalTokens:    job.TotalTokens,
	}
	o.mu.Unlock()

	if o.Store != nil {
		if err := o.Store.UpdateJobProgress(ctx, jobID, progress); err != nil {
			log.Printf("orchestrator: failed to persist progress for job %s: %v", jobID, err)
		}
	}
}

func (o *Orchestrator) finishJob(ctx context.Context, jobID uuid.UUID, status, message string) {
	now := time.Now()
	o.mu.Lock()
	job, ok := o.jobs[jobID]
	if !ok {
		o.mu.Unlock()
		return
	}
	job.Status = status
	job.Error = message
	job.CurrentCompany = ""
	job.CurrentStage = ""
	job.ETASeconds = 0
	job.CompletedAt = &now
	progress := db.JobProgress{
		Completed:   job.Completed,
		Failed:      job.Failed,
		Skipped:     job.Skipped,
		TotalTokens: job.TotalTokens,
	}
	o.mu.Unlock()

	if o.Store != nil {
		if err := o.Store.CompleteJob(ctx, jobID, status, progress, message); err != nil {
			log.Printf("orchestrator: failed to complete job %s: %v", jobID, err)
		}
	}
}

// expandCandidates turns a request into the list of company queries to run
func (o *Orchestrator) expandCandidates(ctx context.Context, req *types.SubmitJobRequest) ([]string, error) {
	if len(req.Companies) > 0 {
		return req.Companies, nil
	}

	limit := req.Limit
	if limit <= 0 {
		limit = DefaultFilterLimit
	}

	entries, err := o.Directory.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list directory: %w", err)
	}

	var queries []string
	for _, entry := range entries {
		if len(queries) >= limit {
			break
		}
		ok, err := o.matchesFilter(ctx, entry, req.Filter)
		if err != nil {
			log.Printf("orchestrator: filter check failed for %s: %v", entry.Ticker, err)
			continue
		}
		if ok {
			queries = append(queries, entry.Ticker)
		}
	}
	return queries, nil
}

func (o *Orchestrator) matchesFilter(ctx context.Context, entry directory.Entry, filter *types.FilterSpec) (bool, error) {
	if filter == nil {
		return true, nil
	}
	if len(filter.SizeTiers) == 0 && len(filter.Industries) == 0 && len(filter.Sectors) == 0 {
		return true, nil
	}

	info, err := o.Directory.Enrich(ctx, entry)
	if err != nil {
		return false, err
	}
	if len(filter.SizeTiers) > 0 && !directory.MatchesTiers(info.SizeUSD, filter.SizeTiers) {
		return false, nil
	}
	if len(filter.Industries) > 0 && !containsFold(filter.Industries, info.Industry) {
		return false, nil
	}
	if len(filter.Sectors) > 0 && !containsFold(filter.Sectors, info.Sector) {
		return false, nil
	}
	return true, nil
}

func containsFold(list []string, value string) bool {
	for _, item := range list {
		if strings.EqualFold(item, value) {
			return true
		}
	}
	return false
}
