package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/prospector/internal/catalog"
	"github.com/jonathan/prospector/internal/directory"
	"github.com/jonathan/prospector/internal/llm"
	"github.com/jonathan/prospector/internal/matching"
	"github.com/jonathan/prospector/internal/mining"
	"github.com/jonathan/prospector/internal/pitching"
	"github.com/jonathan/prospector/internal/types"
)

type fakeDirectory struct {
	entry      *directory.Entry
	resolveErr error
	info       *directory.Info
}

func (f *fakeDirectory) Search(context.Context, string) ([]directory.Entry, error) { return nil, nil }
func (f *fakeDirectory) List(context.Context) ([]directory.Entry, error)          { return nil, nil }

func (f *fakeDirectory) Resolve(context.Context, string) (*directory.Entry, error) {
	if f.resolveErr != nil {
		return nil, f.resolveErr
	}
	return f.entry, nil
}

func (f *fakeDirectory) Enrich(context.Context, directory.Entry) (*directory.Info, error) {
	if f.info == nil {
		return nil, errors.New("no info")
	}
	return f.info, nil
}

type fakeSource struct {
	doc *types.Document
	err error
}

func (f *fakeSource) Latest(context.Context, string) (*types.Document, error) {
	return f.doc, f.err
}

type fakeIndex struct {
	chunks   []string
	buildErr error
}

func (f *fakeIndex) Build(context.Context, *types.Document) (int, error) {
	if f.buildErr != nil {
		return 0, f.buildErr
	}
	return len(f.chunks), nil
}

func (f *fakeIndex) Query(context.Context, string, string, int) ([]string, error) {
	return f.chunks, nil
}

func (f *fakeIndex) Has(string) bool { return true }

type fakeLLM struct {
	jsonResponses []string
	call          int
	err           error
}

func (f *fakeLLM) GenerateContent(_ context.Context, _ string, _ llm.ModelTier) (string, int, error) {
	return "", 0, nil
}

func (f *fakeLLM) GenerateJSON(_ context.Context, _ string, _ llm.ModelTier) (string, int, error) {
	if f.err != nil {
		return "", 0, f.err
	}
	resp := f.jsonResponses[f.call%len(f.jsonResponses)]
	f.call++
	return resp, 100, nil
}

func (f *fakeLLM) EmbedTexts(_ context.Context, texts []string) ([][]float32, error) {
	return make([][]float32, len(texts)), nil
}

func (f *fakeLLM) GetModel(llm.ModelTier) string { return "fake" }
func (f *fakeLLM) Close() error                  { return nil }

type recordedStage struct {
	stage  Stage
	result types.AnalysisResult
}

type fakeRecorder struct {
	stages []recordedStage
}

func (f *fakeRecorder) RecordStage(_ context.Context, _ string, stage Stage, result *types.AnalysisResult) error {
	f.stages = append(f.stages, recordedStage{stage: stage, result: *result})
	return nil
}

const minedJSON = `{"pains": [{"theme": "Supply chain disruption", "rationale": "r", "quotes": ["supply chain disruptions increased inventory costs"], "confidence": 0.9}]}`
const pitchJSON = `{"persona": "VP of Operations", "subject": "s", "body": "b", "key_quotes": ["supply chain disruptions increased inventory costs"]}`

func testPipeline(t *testing.T, dir *fakeDirectory, src *fakeSource, idx *fakeIndex, client llm.Client, rec Recorder) *Pipeline {
	t.Helper()
	cat, err := catalog.Parse([]byte(`{
		"products": [{
			"id": "flow-001",
			"name": "FlowTrack",
			"category": "supply-chain",
			"description": "d",
			"capabilities": ["inventory forecasting"],
			"keywords": ["supply chain", "inventory"]
		}]
	}`))
	require.NoError(t, err)

	return &Pipeline{
		Directory: dir,
		Source:    src,
		Index:     idx,
		Miner:     mining.NewMiner(client, idx),
		Matcher:   matching.NewMatcher(cat),
		Writer:    pitching.NewWriter(client),
		Catalog:   cat,
		Recorder:  rec,
	}
}

func happyFakes() (*fakeDirectory, *fakeSource, *fakeIndex, *fakeLLM) {
	dir := &fakeDirectory{
		entry: &directory.Entry{CIK: "0000000001", Ticker: "EXMP", Name: "Example Manufacturing"},
		info:  &directory.Info{SizeUSD: 5e9, Sector: "Industrials", Industry: "Manufacturing"},
	}
	src := &fakeSource{doc: &types.Document{
		CompanyID:   "0000000001",
		Accession:   "0000000001-24-000001",
		FilingDate:  "2024-11-01",
		Text:        "supply chain disruptions increased inventory costs",
		ContentHash: "hash1",
	}}
	idx := &fakeIndex{chunks: []string{"supply chain disruptions increased inventory costs"}}
	client := &fakeLLM{jsonResponses: []string{minedJSON, pitchJSON}}
	return dir, src, idx, client
}

func TestRun_CompletesAllStages(t *testing.T) {
	dir, src, idx, client := happyFakes()
	rec := &fakeRecorder{}
	p := testPipeline(t, dir, src, idx, client, rec)

	outcome := p.Run(context.Background(), "analysis-1", "Example Manufacturing")

	require.Equal(t, StatusCompleted, outcome.Status)
	assert.Equal(t, StageDone, outcome.Stage)
	require.NotNil(t, outcome.Result)
	assert.Equal(t, "Example Manufacturing", outcome.Result.Company.Name)
	assert.Equal(t, 5e9, outcome.Result.Company.SizeUSD)
	assert.Len(t, outcome.Result.Pains, 1)
	assert.NotEmpty(t, outcome.Result.Matches)
	require.NotNil(t, outcome.Result.Pitch)
	assert.Equal(t, "VP of Operations", outcome.Result.Pitch.Persona)
	assert.Equal(t, 200, outcome.Result.TokensUsed, "mining and pitching tokens accumulate")

	// Stage-by-stage persistence in order.
	var stages []Stage
	for _, s := range rec.stages {
		stages = append(stages, s.stage)
	}
	assert.Equal(t, []Stage{StageResolving, StageFetching, StageEmbedding, StageMining, StageMatching, StagePitching, StageDone}, stages)
}

func TestRun_PersistsPartialResults(t *testing.T) {
	dir, src, idx, client := happyFakes()
	rec := &fakeRecorder{}
	p := testPipeline(t, dir, src, idx, client, rec)

	p.Run(context.Background(), "analysis-1", "Example Manufacturing")

	// After MINING the snapshot has pains but no matches yet.
	for _, s := range rec.stages {
		if s.stage == StageMining {
			assert.NotEmpty(t, s.result.Pains)
			assert.Empty(t, s.result.Matches)
		}
	}
}

func TestRun_Disambiguation(t *testing.T) {
	dir, src, idx, client := happyFakes()
	dir.resolveErr = &directory.AmbiguousError{
		Query: "Apple",
		Candidates: []directory.Entry{
			{Name: "Apple Inc.", Ticker: "AAPL"},
			{Name: "Apple Hospitality REIT", Ticker: "APLE"},
		},
	}
	p := testPipeline(t, dir, src, idx, client, nil)

	outcome := p.Run(context.Background(), "analysis-1", "Apple")

	assert.Equal(t, StatusDisambiguation, outcome.Status)
	assert.Equal(t, StageResolving, outcome.Stage)
	assert.Len(t, outcome.Candidates, 2)
	assert.Nil(t, outcome.Err, "disambiguation is not a failure")
}

func TestRun_ResolveFailure(t *testing.T) {
	dir, src, idx, client := happyFakes()
	dir.resolveErr = &directory.NotFoundError{Query: "Ghost Corp"}
	p := testPipeline(t, dir, src, idx, client, nil)

	outcome := p.Run(context.Background(), "analysis-1", "Ghost Corp")

	assert.Equal(t, StatusFailed, outcome.Status)
	assert.Equal(t, StageResolving, outcome.Stage)

	var stageErr *StageError
	require.ErrorAs(t, outcome.Err, &stageErr)
	assert.Equal(t, StageResolving, stageErr.Stage)
}

func TestRun_FetchFailureTagged(t *testing.T) {
	dir, src, idx, client := happyFakes()
	src.err = errors.New("edgar is down")
	src.doc = nil
	p := testPipeline(t, dir, src, idx, client, nil)

	outcome := p.Run(context.Background(), "analysis-1", "Example Manufacturing")

	assert.Equal(t, StatusFailed, outcome.Status)
	assert.Equal(t, StageFetching, outcome.Stage)
	assert.Contains(t, outcome.Err.Error(), "FETCHING")
}

func TestRun_EmbeddingFailureTagged(t *testing.T) {
	dir, src, idx, client := happyFakes()
	idx.buildErr = errors.New("embedder quota exceeded")
	p := testPipeline(t, dir, src, idx, client, nil)

	outcome := p.Run(context.Background(), "analysis-1", "Example Manufacturing")

	assert.Equal(t, StatusFailed, outcome.Status)
	assert.Equal(t, StageEmbedding, outcome.Stage)
}

func TestRun_ZeroPainsFails(t *testing.T) {
	dir, src, idx, client := happyFakes()
	client.jsonResponses = []string{`{"pains": []}`}
	p := testPipeline(t, dir, src, idx, client, nil)

	outcome := p.Run(context.Background(), "analysis-1", "Example Manufacturing")

	assert.Equal(t, StatusFailed, outcome.Status)
	assert.Equal(t, StageMining, outcome.Stage)
	assert.Contains(t, outcome.Err.Error(), "no grounded pain points")
}

func TestRun_NoMatchesStillCompletes(t *testing.T) {
	dir, src, idx, client := happyFakes()
	// Pains that share no vocabulary with the catalog.
	idx.chunks = []string{"regulatory approval timelines for new therapies lengthened"}
	src.doc.Text = idx.chunks[0]
	client.jsonResponses = []string{`{"pains": [{"theme": "Regulatory delay", "rationale": "r", "quotes": ["regulatory approval timelines for new therapies lengthened"], "confidence": 0.8}]}`}
	p := testPipeline(t, dir, src, idx, client, nil)

	outcome := p.Run(context.Background(), "analysis-1", "Example Manufacturing")

	assert.Equal(t, StatusCompleted, outcome.Status)
	assert.Empty(t, outcome.Result.Matches)
	assert.Nil(t, outcome.Result.Pitch, "no pitch without a match")
}

func TestRun_PitchFailureTagged(t *testing.T) {
	dir, src, idx, client := happyFakes()
	client.jsonResponses = []string{minedJSON, "not json at all"}
	p := testPipeline(t, dir, src, idx, client, nil)

	outcome := p.Run(context.Background(), "analysis-1", "Example Manufacturing")

	assert.Equal(t, StatusFailed, outcome.Status)
	assert.Equal(t, StagePitching, outcome.Stage)
}

func TestStageError_Unwrap(t *testing.T) {
	inner := errors.New("boom")
	err := &StageError{Stage: StageMining, Err: inner}
	assert.ErrorIs(t, err, inner)
	assert.Contains(t, err.Error(), "MINING")
}
