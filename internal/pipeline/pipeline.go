// Package pipeline runs the per-company analysis pipeline: resolve the
// company, fetch its latest disclosure, index it, mine pain points, match
// catalog products, and write a pitch.
package pipeline

import (
	"context"
	"fmt"

	"github.com/jonathan/prospector/internal/catalog"
	"github.com/jonathan/prospector/internal/directory"
	"github.com/jonathan/prospector/internal/filings"
	"github.com/jonathan/prospector/internal/matching"
	"github.com/jonathan/prospector/internal/mining"
	"github.com/jonathan/prospector/internal/pitching"
	"github.com/jonathan/prospector/internal/types"
	"github.com/jonathan/prospector/internal/vectorindex"
)

// Stage identifies a step of the analysis pipeline.
type Stage string

const (
	StageResolving Stage = "RESOLVING"
	StageFetching  Stage = "FETCHING"
	StageEmbedding Stage = "EMBEDDING"
	StageMining    Stage = "MINING"
	StageMatching  Stage = "MATCHING"
	StagePitching  Stage = "PITCHING"
	StageDone      Stage = "DONE"
)

// Outcome statuses.
const (
	StatusCompleted      = "completed"
	StatusFailed         = "failed"
	StatusDisambiguation = "disambiguation_required"
)

// StageError wraps a failure with the stage it occurred in.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("pipeline failed at %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Recorder persists intermediate pipeline state after each stage. A nil
// Recorder disables persistence.
type Recorder interface {
	RecordStage(ctx context.Context, analysisID string, stage Stage, result *types.AnalysisResult) error
}

// Outcome is the terminal state of one pipeline run.
type Outcome struct {
	Status     string
	Stage      Stage
	Candidates []directory.Entry // populated for disambiguation outcomes
	Result     *types.AnalysisResult
	Err        error
}

// Pipeline wires the analysis stages together.
type Pipeline struct {
	Directory directory.Directory
	Source    filings.Source
	Index     vectorindex.Index
	Miner     *mining.Miner
	Matcher   *matching.Matcher
	Writer    *pitching.Writer
	Catalog   *catalog.Catalog
	Recorder  Recorder
}

// Run executes the full pipeline for one company query. Failures are
// reported in the Outcome rather than as a returned error so the caller
// can distinguish pipeline outcomes from infrastructure problems; only a
// nil query or cancelled context style misuse returns an error.
func (p *Pipeline) Run(ctx context.Context, analysisID, query string) *Outcome {
	result := &types.AnalysisResult{}

	// RESOLVING
	entry, err := p.Directory.Resolve(ctx, query)
	if err != nil {
		if ambiguous, ok := err.(*directory.AmbiguousError); ok {
			return &Outcome{
				Status:     StatusDisambiguation,
				Stage:      StageResolving,
				Candidates: ambiguous.Candidates,
				Result:     result,
			}
		}
		return p.fail(ctx, analysisID, StageResolving, result, err)
	}

	result.Company = types.Company{ID: entry.CIK, Ticker: entry.Ticker, Name: entry.Name}
	if info, err := p.Directory.Enrich(ctx, *entry); err == nil {
		result.Company.SizeUSD = info.SizeUSD
		result.Company.Sector = info.Sector
		result.Company.Industry = info.Industry
	}
	p.record(ctx, analysisID, StageResolving, result)

	// FETCHING
	doc, err := p.Source.Latest(ctx, entry.CIK)
	if err != nil {
		return p.fail(ctx, analysisID, StageFetching, result, err)
	}
	result.Document = doc
	p.record(ctx, analysisID, StageFetching, result)

	// EMBEDDING
	if _, err := p.Index.Build(ctx, doc); err != nil {
		return p.fail(ctx, analysisID, StageEmbedding, result, err)
	}
	p.record(ctx, analysisID, StageEmbedding, result)

	// MINING
	pains, tokens, err := p.Miner.Mine(ctx, doc)
	result.TokensUsed += tokens
	if err != nil {
		return p.fail(ctx, analysisID, StageMining, result, err)
	}
	if len(pains) == 0 {
		return p.fail(ctx, analysisID, StageMining, result,
			fmt.Errorf("no grounded pain points found in filing %s", doc.Accession))
	}
	result.Pains = pains
	p.record(ctx, analysisID, StageMining, result)

	// MATCHING
	result.Matches = p.Matcher.Match(result.Company, pains)
	p.record(ctx, analysisID, StageMatching, result)

	// PITCHING. Skipped when nothing in the catalog cleared the
	// threshold; an analysis without a pitch is still complete.
	if top := matching.Top(result.Matches); top != nil {
		product := p.Catalog.Get(top.ProductID)
		if product == nil {
			return p.fail(ctx, analysisID, StagePitching, result,
				fmt.Errorf("matched product %s not in catalog", top.ProductID))
		}
		pitch, tokens, err := p.Writer.Write(ctx, result.Company, pains, product, top)
		result.TokensUsed += tokens
		if err != nil {
			return p.fail(ctx, analysisID, StagePitching, result, err)
		}
		result.Pitch = pitch
		p.record(ctx, analysisID, StagePitching, result)
	}

	p.record(ctx, analysisID, StageDone, result)
	return &Outcome{Status: StatusCompleted, Stage: StageDone, Result: result}
}

func (p *Pipeline) fail(ctx context.Context, analysisID string, stage Stage, result *types.AnalysisResult, err error) *Outcome {
	p.record(ctx, analysisID, stage, result)
	return &Outcome{
		Status: StatusFailed,
		Stage:  stage,
		Result: result,
		Err:    &StageError{Stage: stage, Err: err},
	}
}

// record persists the stage snapshot. Persistence problems do not abort
// the analysis.
func (p *Pipeline) record(ctx context.Context, analysisID string, stage Stage, result *types.AnalysisResult) {
	if p.Recorder == nil {
		return
	}
	_ = p.Recorder.RecordStage(ctx, analysisID, stage, result)
}
