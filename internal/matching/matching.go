// Package matching scores catalog products against mined pain points with
// a deterministic, explainable scoring model.
package matching

import (
	"fmt"
	"sort"
	"strings"

	"github.com/jonathan/prospector/internal/catalog"
	"github.com/jonathan/prospector/internal/directory"
	"github.com/jonathan/prospector/internal/types"
)

// DefaultThreshold is the minimum score for a match to be kept.
const DefaultThreshold = 40

// Score component ceilings. Overlap dominates so the model rewards
// products whose language actually appears in the disclosed pain.
const (
	maxOverlapScore    = 60
	maxICPScore        = 25
	maxConfidenceScore = 15

	icpIndustryPoints = 15
	icpTierPoints     = 10

	// Awarded when the product declares no preference for the dimension.
	icpIndustryNeutral = 8
	icpTierNeutral     = 5
)

// Matcher scores products against pains.
type Matcher struct {
	catalog   *catalog.Catalog
	Threshold float64
}

// NewMatcher creates a Matcher with the default score threshold.
func NewMatcher(cat *catalog.Catalog) *Matcher {
	return &Matcher{catalog: cat, Threshold: DefaultThreshold}
}

// Match scores every product against every pain and returns the matches at
// or above the threshold, sorted by descending score. Ties break on product
// ID so output is stable.
func (m *Matcher) Match(company types.Company, pains []types.PainPoint) []types.ProductMatch {
	threshold := m.Threshold
	if threshold <= 0 {
		threshold = DefaultThreshold
	}

	var matches []types.ProductMatch
	for _, pain := range pains {
		painText := painCorpus(pain)
		for i := range m.catalog.Products {
			product := &m.catalog.Products[i]

			overlap, evidence := overlapScore(product, painText)
			icp := icpScore(product, company)
			confidence := pain.Confidence * maxConfidenceScore

			score := clamp(overlap+icp+confidence, 0, 100)
			if score < threshold {
				continue
			}

			matches = append(matches, types.ProductMatch{
				PainTheme:   pain.Theme,
				ProductID:   product.ID,
				ProductName: product.Name,
				Score:       score,
				Why:         explain(product, pain, evidence),
				Evidence:    evidence,
			})
		}
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].ProductID < matches[j].ProductID
	})
	return matches
}

// Top returns the highest scoring match, or nil when there are none.
func Top(matches []types.ProductMatch) *types.ProductMatch {
	if len(matches) == 0 {
		return nil
	}
	return &matches[0]
}

func painCorpus(pain types.PainPoint) string {
	parts := []string{pain.Theme, pain.Rationale}
	parts = append(parts, pain.Quotes...)
	return strings.ToLower(strings.Join(parts, " "))
}

// overlapScore measures how much of the product's vocabulary appears in
// the pain text. The score scales with the fraction of matched terms.
func overlapScore(product *catalog.Product, painText string) (float64, []string) {
	terms := productTerms(product)
	if len(terms) == 0 {
		return 0, nil
	}

	var matched []string
	for _, term := range terms {
		if termAppears(painText, term) {
			matched = append(matched, term)
		}
	}
	if len(matched) == 0 {
		return 0, nil
	}

	score := maxOverlapScore * float64(len(matched)) / float64(len(terms))
	return score, matched
}

func productTerms(product *catalog.Product) []string {
	seen := make(map[string]bool)
	var terms []string
	for _, t := range append(append([]string{}, product.Keywords...), product.Capabilities...) {
		t = strings.ToLower(strings.TrimSpace(t))
		if t != "" && !seen[t] {
			seen[t] = true
			terms = append(terms, t)
		}
	}
	return terms
}

// termAppears matches a term if the whole phrase appears, or if every word
// of a multi-word term appears somewhere in the text.
func termAppears(text, term string) bool {
	if strings.Contains(text, term) {
		return true
	}
	words := strings.Fields(term)
	if len(words) < 2 {
		return false
	}
	for _, w := range words {
		if !strings.Contains(text, w) {
			return false
		}
	}
	return true
}

// icpScore rewards alignment between the company and the product's ideal
// customer profile. Products without a stated preference get partial
// credit so they are not unfairly penalized against targeted products.
func icpScore(product *catalog.Product, company types.Company) float64 {
	var score float64

	if len(product.ICP.Industries) == 0 {
		score += icpIndustryNeutral
	} else if industryMatches(product.ICP.Industries, company) {
		score += icpIndustryPoints
	}

	if len(product.ICP.SizeTiers) == 0 {
		score += icpTierNeutral
	} else if company.SizeUSD > 0 && directory.MatchesTiers(company.SizeUSD, product.ICP.SizeTiers) {
		score += icpTierPoints
	}

	if score > maxICPScore {
		score = maxICPScore
	}
	return score
}

func industryMatches(industries []string, company types.Company) bool {
	for _, ind := range industries {
		if strings.EqualFold(ind, company.Industry) || strings.EqualFold(ind, company.Sector) {
			return true
		}
	}
	return false
}

func explain(product *catalog.Product, pain types.PainPoint, evidence []string) string {
	if len(evidence) == 0 {
		return fmt.Sprintf("%s addresses %q", product.Name, pain.Theme)
	}
	return fmt.Sprintf("%s addresses %q through %s", product.Name, pain.Theme, strings.Join(evidence, ", "))
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
