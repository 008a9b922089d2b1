// Package pitching generates persona-targeted outreach pitches grounded in
// mined pain points.
package pitching

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jonathan/prospector/internal/catalog"
	"github.com/jonathan/prospector/internal/llm"
	"github.com/jonathan/prospector/internal/prompts"
	"github.com/jonathan/prospector/internal/types"
)

// Writer generates pitches for the top product match.
type Writer struct {
	llm llm.Client
}

// NewWriter creates a pitch Writer.
func NewWriter(client llm.Client) *Writer {
	return &Writer{llm: client}
}

type pitchResponse struct {
	Persona   string   `json:"persona"`
	Subject   string   `json:"subject"`
	Body      string   `json:"body"`
	KeyQuotes []string `json:"key_quotes"`
}

// Write produces a pitch for the company targeting the persona implied by
// the product's category. The returned pitch always cites at least one
// mined quote: if the model omits them, the strongest pain's first quote
// is injected.
func (w *Writer) Write(ctx context.Context, company types.Company, pains []types.PainPoint, product *catalog.Product, match *types.ProductMatch) (*types.Pitch, int, error) {
	if len(pains) == 0 {
		return nil, 0, fmt.Errorf("cannot write a pitch without pain points")
	}
	if product == nil || match == nil {
		return nil, 0, fmt.Errorf("cannot write a pitch without a product match")
	}

	persona := catalog.PersonaFor(product.Category)

	template := prompts.MustGet("pitching.json", "write-pitch")
	prompt := prompts.Format(template, map[string]string{
		"Company": company.Name,
		"Pains":   formatPains(pains),
		"Product": formatProduct(product, match),
		"Persona": persona,
	})

	raw, tokens, err := w.llm.GenerateJSON(ctx, prompt, llm.TierAdvanced)
	if err != nil {
		return nil, tokens, fmt.Errorf("pitch generation failed: %w", err)
	}

	var resp pitchResponse
	if err := json.Unmarshal([]byte(llm.CleanJSONBlock(raw)), &resp); err != nil {
		return nil, tokens, fmt.Errorf("failed to parse pitch response: %w", err)
	}
	if resp.Subject == "" || resp.Body == "" {
		return nil, tokens, fmt.Errorf("pitch response missing subject or body")
	}

	pitch := &types.Pitch{
		Persona:   persona,
		Subject:   resp.Subject,
		Body:      resp.Body,
		KeyQuotes: groundQuotes(resp.KeyQuotes, pains),
	}

	// The pitch must cite disclosed language. Fall back to the strongest
	// pain's first quote when the model returned nothing usable.
	if len(pitch.KeyQuotes) == 0 {
		quote := firstQuote(pains)
		if quote == "" {
			return nil, tokens, fmt.Errorf("no citable quote available for pitch")
		}
		pitch.KeyQuotes = []string{quote}
		if !strings.Contains(pitch.Body, quote) {
			pitch.Body = fmt.Sprintf("%q\n\n%s", quote, pitch.Body)
		}
	}

	return pitch, tokens, nil
}

// groundQuotes keeps only quotes that actually came from the mined pains.
func groundQuotes(quotes []string, pains []types.PainPoint) []string {
	var grounded []string
	for _, q := range quotes {
		q = strings.TrimSpace(q)
		if q == "" {
			continue
		}
		for _, pain := range pains {
			if containsQuote(pain.Quotes, q) {
				grounded = append(grounded, q)
				break
			}
		}
	}
	return grounded
}

func containsQuote(quotes []string, q string) bool {
	needle := strings.ToLower(q)
	for _, candidate := range quotes {
		c := strings.ToLower(candidate)
		if c == needle || strings.Contains(c, needle) || strings.Contains(needle, c) {
			return true
		}
	}
	return false
}

func firstQuote(pains []types.PainPoint) string {
	for _, pain := range pains {
		if len(pain.Quotes) > 0 {
			return pain.Quotes[0]
		}
	}
	return ""
}

func formatPains(pains []types.PainPoint) string {
	var sb strings.Builder
	for _, p := range pains {
		fmt.Fprintf(&sb, "- %s: %s\n", p.Theme, p.Rationale)
		for _, q := range p.Quotes {
			fmt.Fprintf(&sb, "  Quote: %q\n", q)
		}
	}
	return sb.String()
}

func formatProduct(product *catalog.Product, match *types.ProductMatch) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s (%s): %s\n", product.Name, product.ID, product.Description)
	if len(product.Capabilities) > 0 {
		fmt.Fprintf(&sb, "Capabilities: %s\n", strings.Join(product.Capabilities, ", "))
	}
	fmt.Fprintf(&sb, "Fit: %.0f/100. %s\n", match.Score, match.Why)
	return sb.String()
}
