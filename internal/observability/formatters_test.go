package observability

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jonathan/prospector/internal/types"
)

func TestPrintCompany(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	company := &types.Company{
		ID:       "0000320193",
		Ticker:   "AAPL",
		Name:     "Apple Inc.",
		SizeUSD:  2.8e12,
		Industry: "Consumer Electronics",
	}
	doc := &types.Document{
		Accession:  "0000320193-24-000123",
		FilingDate: "2024-11-01",
		FromCache:  true,
	}

	p.PrintCompany(company, doc)
	output := buf.String()

	assert.Contains(t, output, "RESOLVED COMPANY")
	assert.Contains(t, output, "Apple Inc.")
	assert.Contains(t, output, "AAPL")
	assert.Contains(t, output, "0000320193")
	assert.Contains(t, output, "[cached]")
}

func TestPrintCompany_Nil(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	p.PrintCompany(nil, nil)

	assert.Empty(t, buf.String())
}

func TestPrintPainPoints(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	pains := []types.PainPoint{
		{
			Theme:      "supply chain concentration",
			Confidence: 0.85,
			Quotes:     []string{"we rely on a limited number of suppliers"},
		},
		{
			Theme:      "regulatory exposure",
			Confidence: 0.6,
		},
	}

	p.PrintPainPoints(pains)
	output := buf.String()

	assert.Contains(t, output, "MINED PAIN POINTS")
	assert.Contains(t, output, "supply chain concentration")
	assert.Contains(t, output, "0.85")
	assert.Contains(t, output, "regulatory exposure")
}

func TestPrintPainPoints_TruncatesLongList(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	pains := make([]types.PainPoint, 8)
	for i := range pains {
		pains[i] = types.PainPoint{Theme: "theme", Confidence: 0.5}
	}

	p.PrintPainPoints(pains)

	assert.Contains(t, buf.String(), "and 3 more pain points")
}

func TestPrintPainPoints_Empty(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	p.PrintPainPoints(nil)

	assert.Empty(t, buf.String())
}

func TestPrintMatches(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	matches := []types.ProductMatch{
		{
			PainTheme:   "supply chain concentration",
			ProductID:   "supply-radar",
			ProductName: "SupplyRadar",
			Score:       87,
			Why:         "monitors supplier risk in real time",
		},
	}

	p.PrintMatches(matches)
	output := buf.String()

	assert.Contains(t, output, "PRODUCT MATCHES")
	assert.Contains(t, output, "SupplyRadar")
	assert.Contains(t, output, "(87)")
}

func TestPrintPitch(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	pitch := &types.Pitch{
		Persona:   "VP Supply Chain",
		Subject:   "Reducing supplier concentration risk",
		Body:      "Hi there,\n\nWe noticed...",
		KeyQuotes: []string{"we rely on a limited number of suppliers"},
	}

	p.PrintPitch(pitch)
	output := buf.String()

	assert.Contains(t, output, "GENERATED PITCH")
	assert.Contains(t, output, "VP Supply Chain")
	assert.Contains(t, output, "Reducing supplier concentration")
}

func TestPrintPitch_Nil(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	p.PrintPitch(nil)

	assert.Contains(t, buf.String(), "NO PITCH GENERATED")
}

func TestPrintSummary(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	result := &types.AnalysisResult{
		Company:    types.Company{Name: "Okta Inc"},
		Pains:      []types.PainPoint{{Theme: "a"}, {Theme: "b"}},
		Matches:    []types.ProductMatch{{ProductID: "x"}},
		TokensUsed: 4321,
	}

	p.PrintSummary(result)
	output := buf.String()

	assert.Contains(t, output, "ANALYSIS SUMMARY")
	assert.Contains(t, output, "Okta Inc")
	assert.Contains(t, output, "4321")
}
