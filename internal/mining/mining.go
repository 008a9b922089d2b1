// Package mining extracts disclosed business pain points from filing text
// using retrieval over the vector index plus LLM extraction.
package mining

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jonathan/prospector/internal/llm"
	"github.com/jonathan/prospector/internal/prompts"
	"github.com/jonathan/prospector/internal/types"
	"github.com/jonathan/prospector/internal/vectorindex"
)

// Default retrieval and extraction limits.
const (
	DefaultMaxPains  = 7
	DefaultTopChunks = 10

	maxExcerptLen = 500
)

// retrievalQueries steer the index toward risk and difficulty disclosures.
var retrievalQueries = []string{
	"business risks challenges obstacles",
	"financial risks operational difficulties",
	"competitive pressures market challenges",
	"supply chain disruption cost increases",
}

// Miner mines pain points from an indexed document.
type Miner struct {
	llm       llm.Client
	index     vectorindex.Index
	MaxPains  int
	TopChunks int
}

// NewMiner creates a Miner with default limits.
func NewMiner(client llm.Client, index vectorindex.Index) *Miner {
	return &Miner{
		llm:       client,
		index:     index,
		MaxPains:  DefaultMaxPains,
		TopChunks: DefaultTopChunks,
	}
}

type minedPain struct {
	Theme      string   `json:"theme"`
	Rationale  string   `json:"rationale"`
	Quotes     []string `json:"quotes"`
	Confidence float64  `json:"confidence"`
}

type miningResponse struct {
	Pains []minedPain `json:"pains"`
}

// Mine retrieves the most risk-relevant excerpts for the document and asks
// the model for structured pain points. Quotes that do not appear verbatim
// in the retrieved excerpts are discarded, and a pain with no surviving
// quotes is dropped entirely. Returns the pains and tokens consumed.
func (m *Miner) Mine(ctx context.Context, doc *types.Document) ([]types.PainPoint, int, error) {
	excerpts, err := m.retrieve(ctx, doc)
	if err != nil {
		return nil, 0, err
	}
	if len(excerpts) == 0 {
		return nil, 0, fmt.Errorf("no excerpts retrieved for document %s", doc.CompanyID)
	}

	template := prompts.MustGet("mining.json", "extract-pain-points")
	prompt := prompts.Format(template, map[string]string{
		"MaxPains": fmt.Sprintf("%d", m.maxPains()),
		"Excerpts": formatExcerpts(excerpts),
	})

	raw, tokens, err := m.llm.GenerateJSON(ctx, prompt, llm.TierStandard)
	if err != nil {
		return nil, tokens, fmt.Errorf("pain extraction failed: %w", err)
	}

	var resp miningResponse
	if err := json.Unmarshal([]byte(llm.CleanJSONBlock(raw)), &resp); err != nil {
		return nil, tokens, fmt.Errorf("failed to parse pain extraction response: %w", err)
	}

	pains := groundPains(resp.Pains, excerpts, m.maxPains())
	return pains, tokens, nil
}

func (m *Miner) maxPains() int {
	if m.MaxPains > 0 {
		return m.MaxPains
	}
	return DefaultMaxPains
}

// retrieve gathers deduplicated excerpts across the retrieval queries.
func (m *Miner) retrieve(ctx context.Context, doc *types.Document) ([]string, error) {
	topK := m.TopChunks
	if topK <= 0 {
		topK = DefaultTopChunks
	}
	perQuery := topK / len(retrievalQueries)
	if perQuery < 1 {
		perQuery = 1
	}

	var excerpts []string
	seen := make(map[string]bool)
	for _, query := range retrievalQueries {
		chunks, err := m.index.Query(ctx, doc.ContentHash, query, perQuery)
		if err != nil {
			return nil, fmt.Errorf("excerpt retrieval failed: %w", err)
		}
		for _, chunk := range chunks {
			if !seen[chunk] {
				seen[chunk] = true
				excerpts = append(excerpts, chunk)
			}
		}
	}

	if len(excerpts) > topK {
		excerpts = excerpts[:topK]
	}
	return excerpts, nil
}

func formatExcerpts(excerpts []string) string {
	var sb strings.Builder
	for i, e := range excerpts {
		if len(e) > maxExcerptLen {
			e = e[:maxExcerptLen] + "..."
		}
		fmt.Fprintf(&sb, "[Excerpt %d]\n%s\n\n", i+1, e)
	}
	return sb.String()
}

// groundPains validates model output against the source excerpts.
func groundPains(mined []minedPain, excerpts []string, limit int) []types.PainPoint {
	lowered := make([]string, len(excerpts))
	for i, e := range excerpts {
		lowered[i] = strings.ToLower(e)
	}

	var pains []types.PainPoint
	for _, p := range mined {
		if p.Theme == "" {
			continue
		}

		var grounded []string
		for _, quote := range p.Quotes {
			q := strings.TrimSpace(quote)
			if q == "" {
				continue
			}
			needle := strings.ToLower(q)
			for _, excerpt := range lowered {
				if strings.Contains(excerpt, needle) {
					grounded = append(grounded, q)
					break
				}
			}
		}
		if len(grounded) == 0 {
			continue
		}

		confidence := p.Confidence
		if confidence <= 0 || confidence > 1 {
			confidence = 0.5
		}

		pains = append(pains, types.PainPoint{
			Theme:      p.Theme,
			Rationale:  p.Rationale,
			Quotes:     grounded,
			Confidence: confidence,
		})
		if len(pains) >= limit {
			break
		}
	}
	return pains
}
