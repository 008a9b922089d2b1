package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// Client is an abstraction over text-generation providers.
type Client interface {
	// GenerateContent generates text content using the specified model tier.
	// Returns the text and the token count charged for the call.
	GenerateContent(ctx context.Context, prompt string, tier ModelTier) (string, int, error)
	// GenerateJSON generates JSON content using the specified model tier.
	// The returned string has markdown code fences stripped but is otherwise
	// unvalidated; callers own the schema contract.
	GenerateJSON(ctx context.Context, prompt string, tier ModelTier) (string, int, error)
	// EmbedTexts returns one embedding vector per input text.
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
	// GetModel returns the underlying provider model for a tier.
	GetModel(tier ModelTier) string
	// Close releases any resources held by the client.
	Close() error
}

// NewClient creates a new LLM client based on configuration.
func NewClient(ctx context.Context, config *Config, apiKey string) (Client, error) {
	if config == nil {
		config = DefaultConfig()
	}

	switch config.Provider {
	case ProviderGemini:
		return NewGeminiClient(ctx, config, apiKey)
	default:
		return NewGeminiClient(ctx, config, apiKey)
	}
}

// GeminiClient implements Client for Google Gemini.
type GeminiClient struct {
	client *genai.Client
	config *Config
}

// NewGeminiClient creates a new Gemini client.
func NewGeminiClient(ctx context.Context, config *Config, apiKey string) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("API key is required")
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiClient{
		client: client,
		config: config,
	}, nil
}

// GenerateContent generates text content using the specified model tier.
func (c *GeminiClient) GenerateContent(ctx context.Context, prompt string, tier ModelTier) (string, int, error) {
	modelName := c.config.GetModel(tier)
	if modelName == "" {
		return "", 0, fmt.Errorf("no model configured for tier %s", tier)
	}

	model := c.client.GenerativeModel(modelName)
	model.SetTemperature(0.2) // Low temperature for consistent output

	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", 0, fmt.Errorf("failed to generate content: %w", err)
	}

	text, err := extractTextFromResponse(resp)
	if err != nil {
		return "", 0, err
	}
	return text, tokensFromResponse(resp, text), nil
}

// GenerateJSON generates JSON content using the specified model tier.
func (c *GeminiClient) GenerateJSON(ctx context.Context, prompt string, tier ModelTier) (string, int, error) {
	modelName := c.config.GetModel(tier)
	if modelName == "" {
		return "", 0, fmt.Errorf("no model configured for tier %s", tier)
	}

	model := c.client.GenerativeModel(modelName)
	model.SetTemperature(0.2)
	model.ResponseMIMEType = "application/json"

	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", 0, fmt.Errorf("failed to generate content: %w", err)
	}

	text, err := extractTextFromResponse(resp)
	if err != nil {
		return "", 0, err
	}

	// Clean any markdown code block wrappers
	return CleanJSONBlock(text), tokensFromResponse(resp, text), nil
}

// EmbedTexts embeds a batch of texts with the configured embedding model.
func (c *GeminiClient) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	em := c.client.EmbeddingModel(c.config.EmbeddingModel)

	batch := em.NewBatch()
	for _, t := range texts {
		batch.AddContent(genai.Text(t))
	}

	resp, err := em.BatchEmbedContents(ctx, batch)
	if err != nil {
		return nil, fmt.Errorf("failed to embed texts: %w", err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("embedding count mismatch: got %d for %d texts", len(resp.Embeddings), len(texts))
	}

	vectors := make([][]float32, len(resp.Embeddings))
	for i, e := range resp.Embeddings {
		vectors[i] = e.Values
	}
	return vectors, nil
}

// GetModel returns the model name for a tier.
func (c *GeminiClient) GetModel(tier ModelTier) string {
	return c.config.GetModel(tier)
}

// Close releases resources held by the client.
func (c *GeminiClient) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// extractTextFromResponse extracts text from a Gemini API response.
func extractTextFromResponse(resp *genai.GenerateContentResponse) (string, error) {
	if len(resp.Candidates) == 0 {
		return "", fmt.Errorf("no candidates in response")
	}

	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return "", fmt.Errorf("no content in response")
	}

	var parts []string
	for _, part := range candidate.Content.Parts {
		if text, ok := part.(genai.Text); ok {
			parts = append(parts, string(text))
		}
	}

	if len(parts) == 0 {
		return "", fmt.Errorf("no text parts in response")
	}

	return strings.Join(parts, ""), nil
}

// tokensFromResponse reads usage metadata when the provider reports it and
// falls back to a length estimate otherwise.
func tokensFromResponse(resp *genai.GenerateContentResponse, text string) int {
	if resp.UsageMetadata != nil && resp.UsageMetadata.TotalTokenCount > 0 {
		return int(resp.UsageMetadata.TotalTokenCount)
	}
	return EstimateTokens(text)
}

// EstimateTokens approximates a token count from text length, roughly one
// token per 4 characters. Used when the provider reports no usage data.
func EstimateTokens(text string) int {
	return len(text) / 4
}
