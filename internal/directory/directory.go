// Package directory resolves company identifiers against a public company
// directory and enriches them with size and sector information.
package directory

import (
	"context"
	"fmt"
	"strings"
)

// Size tier boundaries in USD.
const (
	MidCapFloor   = 2_000_000_000
	LargeCapFloor = 10_000_000_000
	MegaCapFloor  = 200_000_000_000
)

// Entry is a directory listing for a public company.
type Entry struct {
	CIK    string `json:"cik"`
	Ticker string `json:"ticker"`
	Name   string `json:"name"`
}

// Info carries enrichment data for a resolved company.
type Info struct {
	SizeUSD  float64 `json:"size_usd"`
	Sector   string  `json:"sector"`
	Industry string  `json:"industry"`
}

// Directory looks up companies by name or ticker.
type Directory interface {
	// Search returns all entries whose name or ticker matches the query.
	Search(ctx context.Context, query string) ([]Entry, error)

	// Resolve narrows a query to a single entry. It returns a
	// *NotFoundError when nothing matches and an *AmbiguousError listing
	// the candidates when several do.
	Resolve(ctx context.Context, query string) (*Entry, error)

	// List returns every entry in the directory.
	List(ctx context.Context) ([]Entry, error)

	// Enrich fetches size and sector information for an entry.
	Enrich(ctx context.Context, entry Entry) (*Info, error)
}

// NotFoundError indicates no directory entry matched the query.
type NotFoundError struct {
	Query string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no company found for: %s", e.Query)
}

// AmbiguousError indicates a query matched more than one entry. Callers
// should surface the candidates rather than treat this as a failure.
type AmbiguousError struct {
	Query      string
	Candidates []Entry
}

func (e *AmbiguousError) Error() string {
	names := make([]string, len(e.Candidates))
	for i, c := range e.Candidates {
		names[i] = c.Name
	}
	return fmt.Sprintf("multiple companies found for %q: %s", e.Query, strings.Join(names, ", "))
}

// TierFor categorizes a company size in USD into a named tier.
func TierFor(sizeUSD float64) string {
	switch {
	case sizeUSD < MidCapFloor:
		return "small"
	case sizeUSD < LargeCapFloor:
		return "mid"
	case sizeUSD < MegaCapFloor:
		return "large"
	default:
		return "mega"
	}
}

// TierCeiling returns the upper size bound for a named tier. The mega tier
// is unbounded and reports positive infinity semantics via MaxFloat.
func TierCeiling(tier string) float64 {
	switch strings.ToLower(tier) {
	case "small":
		return MidCapFloor
	case "mid":
		return LargeCapFloor
	case "large":
		return MegaCapFloor
	default:
		return maxSize
	}
}

const maxSize = 1e18

// MatchesTiers reports whether a size falls into any of the named tiers.
// An empty tier list matches everything.
func MatchesTiers(sizeUSD float64, tiers []string) bool {
	if len(tiers) == 0 {
		return true
	}
	actual := TierFor(sizeUSD)
	for _, t := range tiers {
		if strings.EqualFold(t, actual) {
			return true
		}
	}
	return false
}
