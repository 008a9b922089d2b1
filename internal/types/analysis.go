// Package types provides type definitions for structured data used throughout the prospector system.
package types

// Company is a canonical company identity resolved through the directory.
type Company struct {
	ID       string  `json:"id"` // directory identifier (zero-padded CIK)
	Ticker   string  `json:"ticker,omitempty"`
	Name     string  `json:"name"`
	SizeUSD  float64 `json:"size_usd,omitempty"` // market cap in dollars, 0 when unknown
	Industry string  `json:"industry,omitempty"`
	Sector   string  `json:"sector,omitempty"`
}

// PainPoint is one business pain mined from a disclosure document.
// Quotes are verbatim excerpts grounding the finding.
type PainPoint struct {
	Theme      string   `json:"theme"`
	Rationale  string   `json:"rationale"`
	Quotes     []string `json:"quotes"`
	Confidence float64  `json:"confidence"` // 0.0 - 1.0
}

// ProductMatch scores one catalog product against one pain point.
type ProductMatch struct {
	PainTheme   string   `json:"pain_theme"`
	ProductID   string   `json:"product_id"`
	ProductName string   `json:"product_name"`
	Score       float64  `json:"score"` // 0 - 100
	Why         string   `json:"why"`
	Evidence    []string `json:"evidence,omitempty"`
}

// Pitch is the generated outreach message for the top product match.
type Pitch struct {
	Persona   string   `json:"persona"`
	Subject   string   `json:"subject"`
	Body      string   `json:"body"`
	KeyQuotes []string `json:"key_quotes"`
}

// Document is one disclosure document retrieved from the document source.
type Document struct {
	CompanyID   string `json:"company_id"`
	Accession   string `json:"accession"`
	FilingDate  string `json:"filing_date"` // YYYY-MM-DD
	Text        string `json:"-"`
	ContentHash string `json:"content_hash"` // SHA-256 of Text
	FromCache   bool   `json:"from_cache"`
}

// AnalysisResult is the full output of one company pipeline run.
type AnalysisResult struct {
	Company    Company        `json:"company"`
	Document   *Document      `json:"document,omitempty"`
	Pains      []PainPoint    `json:"pains"`
	Matches    []ProductMatch `json:"matches"`
	Pitch      *Pitch         `json:"pitch,omitempty"`
	TokensUsed int            `json:"tokens_used"`
}
