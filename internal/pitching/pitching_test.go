package pitching

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/prospector/internal/catalog"
	"github.com/jonathan/prospector/internal/llm"
	"github.com/jonathan/prospector/internal/types"
)

type fakeLLM struct {
	response string
	tokens   int
	prompt   string
}

func (f *fakeLLM) GenerateContent(_ context.Context, prompt string, _ llm.ModelTier) (string, int, error) {
	f.prompt = prompt
	return f.response, f.tokens, nil
}

func (f *fakeLLM) GenerateJSON(_ context.Context, prompt string, _ llm.ModelTier) (string, int, error) {
	f.prompt = prompt
	return f.response, f.tokens, nil
}

func (f *fakeLLM) EmbedTexts(_ context.Context, texts []string) ([][]float32, error) {
	return make([][]float32, len(texts)), nil
}

func (f *fakeLLM) GetModel(llm.ModelTier) string { return "fake-model" }
func (f *fakeLLM) Close() error                  { return nil }

var testPains = []types.PainPoint{
	{
		Theme:      "Supply chain disruption",
		Rationale:  "Component costs rose sharply.",
		Quotes:     []string{"supply chain disruptions increased component costs"},
		Confidence: 0.9,
	},
}

func testProduct() *catalog.Product {
	return &catalog.Product{
		ID:           "flow-001",
		Name:         "FlowTrack",
		Category:     "supply-chain",
		Description:  "Supply chain visibility platform.",
		Capabilities: []string{"shipment tracking"},
	}
}

func testMatch() *types.ProductMatch {
	return &types.ProductMatch{
		PainTheme: "Supply chain disruption",
		ProductID: "flow-001",
		Score:     82,
		Why:       "FlowTrack addresses supply chain visibility",
	}
}

func testCompany() types.Company {
	return types.Company{ID: "0000000001", Name: "Example Manufacturing"}
}

func TestWrite_Success(t *testing.T) {
	client := &fakeLLM{
		tokens: 210,
		response: `{
			"persona": "VP of Operations",
			"subject": "Your disclosed supply chain costs",
			"body": "You noted \"supply chain disruptions increased component costs\". FlowTrack helps.",
			"key_quotes": ["supply chain disruptions increased component costs"]
		}`,
	}
	w := NewWriter(client)

	pitch, tokens, err := w.Write(context.Background(), testCompany(), testPains, testProduct(), testMatch())
	require.NoError(t, err)
	assert.Equal(t, 210, tokens)
	assert.Equal(t, "VP of Operations", pitch.Persona)
	assert.NotEmpty(t, pitch.Subject)
	require.Len(t, pitch.KeyQuotes, 1)
	assert.Contains(t, pitch.KeyQuotes[0], "supply chain disruptions")
}

func TestWrite_PersonaFromCategoryNotModel(t *testing.T) {
	client := &fakeLLM{
		response: `{"persona": "Sorcerer Supreme", "subject": "s", "body": "b", "key_quotes": ["supply chain disruptions increased component costs"]}`,
	}
	w := NewWriter(client)

	pitch, _, err := w.Write(context.Background(), testCompany(), testPains, testProduct(), testMatch())
	require.NoError(t, err)
	assert.Equal(t, "VP of Operations", pitch.Persona, "persona comes from the product category mapping")
}

func TestWrite_InjectsQuoteWhenModelOmitsThem(t *testing.T) {
	client := &fakeLLM{
		response: `{"persona": "VP of Operations", "subject": "s", "body": "A pitch without citations.", "key_quotes": []}`,
	}
	w := NewWriter(client)

	pitch, _, err := w.Write(context.Background(), testCompany(), testPains, testProduct(), testMatch())
	require.NoError(t, err)
	require.Len(t, pitch.KeyQuotes, 1)
	assert.Equal(t, testPains[0].Quotes[0], pitch.KeyQuotes[0])
	assert.Contains(t, pitch.Body, testPains[0].Quotes[0], "fallback quote is surfaced in the body")
}

func TestWrite_DropsFabricatedQuotes(t *testing.T) {
	client := &fakeLLM{
		response: `{"persona": "p", "subject": "s", "body": "b", "key_quotes": ["a quote the filing never said"]}`,
	}
	w := NewWriter(client)

	pitch, _, err := w.Write(context.Background(), testCompany(), testPains, testProduct(), testMatch())
	require.NoError(t, err)
	require.Len(t, pitch.KeyQuotes, 1)
	assert.Equal(t, testPains[0].Quotes[0], pitch.KeyQuotes[0], "fabricated quotes are replaced with a mined one")
}

func TestWrite_NoPains(t *testing.T) {
	w := NewWriter(&fakeLLM{})
	_, _, err := w.Write(context.Background(), testCompany(), nil, testProduct(), testMatch())
	require.Error(t, err)
}

func TestWrite_NoMatch(t *testing.T) {
	w := NewWriter(&fakeLLM{})
	_, _, err := w.Write(context.Background(), testCompany(), testPains, nil, nil)
	require.Error(t, err)
}

func TestWrite_MalformedResponse(t *testing.T) {
	w := NewWriter(&fakeLLM{response: "not json"})
	_, _, err := w.Write(context.Background(), testCompany(), testPains, testProduct(), testMatch())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse")
}

func TestWrite_MissingSubject(t *testing.T) {
	w := NewWriter(&fakeLLM{response: `{"persona": "p", "body": "b"}`})
	_, _, err := w.Write(context.Background(), testCompany(), testPains, testProduct(), testMatch())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "subject")
}

func TestWrite_PromptIncludesContext(t *testing.T) {
	client := &fakeLLM{
		response: `{"persona": "p", "subject": "s", "body": "b", "key_quotes": ["supply chain disruptions increased component costs"]}`,
	}
	w := NewWriter(client)

	_, _, err := w.Write(context.Background(), testCompany(), testPains, testProduct(), testMatch())
	require.NoError(t, err)
	assert.Contains(t, client.prompt, "Example Manufacturing")
	assert.Contains(t, client.prompt, "FlowTrack")
	assert.Contains(t, client.prompt, "VP of Operations")
	assert.Contains(t, client.prompt, "supply chain disruptions increased component costs")
}
