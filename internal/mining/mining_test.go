package mining

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/prospector/internal/llm"
	"github.com/jonathan/prospector/internal/types"
)

type fakeLLM struct {
	response string
	tokens   int
	err      error
	prompt   string
}

func (f *fakeLLM) GenerateContent(_ context.Context, prompt string, _ llm.ModelTier) (string, int, error) {
	f.prompt = prompt
	return f.response, f.tokens, f.err
}

func (f *fakeLLM) GenerateJSON(_ context.Context, prompt string, _ llm.ModelTier) (string, int, error) {
	f.prompt = prompt
	return f.response, f.tokens, f.err
}

func (f *fakeLLM) EmbedTexts(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1}
	}
	return out, nil
}

func (f *fakeLLM) GetModel(llm.ModelTier) string { return "fake-model" }
func (f *fakeLLM) Close() error                  { return nil }

type fakeIndex struct {
	chunks []string
	err    error
}

func (f *fakeIndex) Build(context.Context, *types.Document) (int, error) {
	return len(f.chunks), nil
}

func (f *fakeIndex) Query(_ context.Context, _, _ string, _ int) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.chunks, nil
}

func (f *fakeIndex) Has(string) bool { return true }

var testChunks = []string{
	"We experienced significant supply chain disruptions that increased component costs by 30 percent.",
	"Competition for engineering talent remains intense and attrition has risen.",
	"Our legacy billing systems require substantial manual reconciliation effort.",
}

func testDocument() *types.Document {
	return &types.Document{CompanyID: "0000000001", ContentHash: "hash1", Text: "..."}
}

func TestMine_GroundedQuotesKept(t *testing.T) {
	client := &fakeLLM{
		tokens: 321,
		response: `{"pains": [
			{"theme": "Supply chain disruption", "rationale": "Costs up.", "quotes": ["significant supply chain disruptions"], "confidence": 0.9},
			{"theme": "Talent attrition", "rationale": "Hiring hard.", "quotes": ["Competition for engineering talent remains intense"], "confidence": 0.7}
		]}`,
	}
	miner := NewMiner(client, &fakeIndex{chunks: testChunks})

	pains, tokens, err := miner.Mine(context.Background(), testDocument())
	require.NoError(t, err)
	assert.Equal(t, 321, tokens)
	require.Len(t, pains, 2)
	assert.Equal(t, "Supply chain disruption", pains[0].Theme)
	assert.Equal(t, []string{"significant supply chain disruptions"}, pains[0].Quotes)
}

func TestMine_UngroundedQuotesDropped(t *testing.T) {
	client := &fakeLLM{
		response: `{"pains": [
			{"theme": "Fabricated pain", "rationale": "Made up.", "quotes": ["this sentence is not in the filing"], "confidence": 0.9},
			{"theme": "Real pain", "rationale": "Grounded.", "quotes": ["not here either", "legacy billing systems require substantial manual reconciliation"], "confidence": 0.6}
		]}`,
	}
	miner := NewMiner(client, &fakeIndex{chunks: testChunks})

	pains, _, err := miner.Mine(context.Background(), testDocument())
	require.NoError(t, err)
	require.Len(t, pains, 1, "pain with no grounded quote must be dropped")
	assert.Equal(t, "Real pain", pains[0].Theme)
	require.Len(t, pains[0].Quotes, 1, "ungrounded quote must be filtered out")
}

func TestMine_QuoteMatchingIsCaseInsensitive(t *testing.T) {
	client := &fakeLLM{
		response: `{"pains": [{"theme": "Supply", "rationale": "r", "quotes": ["SIGNIFICANT SUPPLY CHAIN DISRUPTIONS"], "confidence": 0.8}]}`,
	}
	miner := NewMiner(client, &fakeIndex{chunks: testChunks})

	pains, _, err := miner.Mine(context.Background(), testDocument())
	require.NoError(t, err)
	require.Len(t, pains, 1)
}

func TestMine_RespectsMaxPains(t *testing.T) {
	client := &fakeLLM{
		response: `{"pains": [
			{"theme": "A", "rationale": "r", "quotes": ["supply chain disruptions"], "confidence": 0.9},
			{"theme": "B", "rationale": "r", "quotes": ["engineering talent"], "confidence": 0.8},
			{"theme": "C", "rationale": "r", "quotes": ["legacy billing systems"], "confidence": 0.7}
		]}`,
	}
	miner := NewMiner(client, &fakeIndex{chunks: testChunks})
	miner.MaxPains = 2

	pains, _, err := miner.Mine(context.Background(), testDocument())
	require.NoError(t, err)
	assert.Len(t, pains, 2)
}

func TestMine_FencedJSONResponse(t *testing.T) {
	client := &fakeLLM{
		response: "```json\n{\"pains\": [{\"theme\": \"Supply\", \"rationale\": \"r\", \"quotes\": [\"supply chain disruptions\"], \"confidence\": 0.8}]}\n```",
	}
	miner := NewMiner(client, &fakeIndex{chunks: testChunks})

	pains, _, err := miner.Mine(context.Background(), testDocument())
	require.NoError(t, err)
	assert.Len(t, pains, 1)
}

func TestMine_MalformedResponse(t *testing.T) {
	client := &fakeLLM{response: "I could not produce JSON today."}
	miner := NewMiner(client, &fakeIndex{chunks: testChunks})

	_, _, err := miner.Mine(context.Background(), testDocument())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse")
}

func TestMine_DefaultConfidenceForOutOfRange(t *testing.T) {
	client := &fakeLLM{
		response: `{"pains": [{"theme": "Supply", "rationale": "r", "quotes": ["supply chain disruptions"], "confidence": 3.5}]}`,
	}
	miner := NewMiner(client, &fakeIndex{chunks: testChunks})

	pains, _, err := miner.Mine(context.Background(), testDocument())
	require.NoError(t, err)
	require.Len(t, pains, 1)
	assert.Equal(t, 0.5, pains[0].Confidence)
}

func TestMine_RetrievalError(t *testing.T) {
	client := &fakeLLM{response: `{"pains": []}`}
	miner := NewMiner(client, &fakeIndex{err: errors.New("index gone")})

	_, _, err := miner.Mine(context.Background(), testDocument())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "retrieval failed")
}

func TestMine_PromptContainsExcerpts(t *testing.T) {
	client := &fakeLLM{
		response: `{"pains": [{"theme": "Supply", "rationale": "r", "quotes": ["supply chain disruptions"], "confidence": 0.8}]}`,
	}
	miner := NewMiner(client, &fakeIndex{chunks: testChunks})

	_, _, err := miner.Mine(context.Background(), testDocument())
	require.NoError(t, err)
	assert.Contains(t, client.prompt, "supply chain disruptions")
	assert.Contains(t, client.prompt, "[Excerpt 1]")
	assert.NotContains(t, client.prompt, "{{.MaxPains}}", "placeholders must be substituted")
}
