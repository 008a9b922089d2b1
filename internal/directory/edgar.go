// Package directory - edgar.go implements the Directory interface against
// the SEC EDGAR public endpoints.
package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	defaultBaseURL = "https://www.sec.gov"
	defaultDataURL = "https://data.sec.gov"

	tickerFetchRetries = 3
)

// EDGAR is a Directory backed by SEC EDGAR. The full ticker table is
// fetched once and cached for the lifetime of the client; enrichment
// results are cached per CIK.
type EDGAR struct {
	userAgent string
	client    *http.Client

	// Overridable for tests.
	BaseURL string
	DataURL string

	mu        sync.Mutex
	entries   []Entry
	infoCache map[string]*Info
}

// NewEDGAR creates an EDGAR directory client. The user agent must include
// a contact email per SEC fair-access policy.
func NewEDGAR(userAgent string) (*EDGAR, error) {
	if userAgent == "" || !strings.Contains(userAgent, "@") {
		return nil, fmt.Errorf("EDGAR requires a user agent with a contact email: AppName/Version (email@example.com)")
	}
	return &EDGAR{
		userAgent: userAgent,
		client:    &http.Client{Timeout: 30 * time.Second},
		BaseURL:   defaultBaseURL,
		DataURL:   defaultDataURL,
		infoCache: make(map[string]*Info),
	}, nil
}

func (e *EDGAR) get(ctx context.Context, url string, out interface{}) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("User-Agent", e.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return resp.StatusCode, fmt.Errorf("GET %s: HTTP status %d", url, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, err
	}
	return resp.StatusCode, json.Unmarshal(body, out)
}

type tickerRecord struct {
	CIK    json.Number `json:"cik_str"`
	Ticker string      `json:"ticker"`
	Title  string      `json:"title"`
}

// loadEntries fetches and caches the full company ticker table.
// Rate limited responses are retried with exponential backoff.
func (e *EDGAR) loadEntries(ctx context.Context) ([]Entry, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.entries != nil {
		return e.entries, nil
	}

	url := e.BaseURL + "/files/company_tickers.json"

	var raw map[string]tickerRecord
	var lastErr error
	for attempt := 0; attempt < tickerFetchRetries; attempt++ {
		status, err := e.get(ctx, url, &raw)
		if err == nil {
			lastErr = nil
			break
		}
		lastErr = err
		if status == http.StatusTooManyRequests && attempt < tickerFetchRetries-1 {
			wait := time.Duration(1<<attempt) * time.Second
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			continue
		}
		if attempt < tickerFetchRetries-1 {
			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	if lastErr != nil {
		return nil, fmt.Errorf("failed to fetch company tickers: %w", lastErr)
	}

	entries := make([]Entry, 0, len(raw))
	for _, rec := range raw {
		entries = append(entries, Entry{
			CIK:    padCIK(rec.CIK.String()),
			Ticker: rec.Ticker,
			Name:   rec.Title,
		})
	}
	// Map iteration order is random; keep a stable listing.
	sort.Slice(entries, func(i, j int) bool { return entries[i].CIK < entries[j].CIK })

	e.entries = entries
	return entries, nil
}

func padCIK(cik string) string {
	if len(cik) >= 10 {
		return cik
	}
	return strings.Repeat("0", 10-len(cik)) + cik
}

// Search returns entries whose name or ticker matches the query.
func (e *EDGAR) Search(ctx context.Context, query string) ([]Entry, error) {
	entries, err := e.loadEntries(ctx)
	if err != nil {
		return nil, err
	}

	q := strings.ToUpper(strings.TrimSpace(query))
	if q == "" {
		return nil, nil
	}

	var matches []Entry
	for _, entry := range entries {
		name := strings.ToUpper(entry.Name)
		if strings.Contains(name, q) || strings.Contains(q, name) || strings.EqualFold(entry.Ticker, q) {
			matches = append(matches, entry)
		}
	}
	return matches, nil
}

// Resolve narrows a query to one entry. An exact name or ticker match wins
// when several candidates share a substring.
func (e *EDGAR) Resolve(ctx context.Context, query string) (*Entry, error) {
	candidates, err := e.Search(ctx, query)
	if err != nil {
		return nil, err
	}

	switch len(candidates) {
	case 0:
		return nil, &NotFoundError{Query: query}
	case 1:
		return &candidates[0], nil
	}

	for i := range candidates {
		if strings.EqualFold(candidates[i].Name, query) || strings.EqualFold(candidates[i].Ticker, query) {
			return &candidates[i], nil
		}
	}
	return nil, &AmbiguousError{Query: query, Candidates: candidates}
}

// List returns the full directory.
func (e *EDGAR) List(ctx context.Context) ([]Entry, error) {
	return e.loadEntries(ctx)
}

type factValue struct {
	Val   float64 `json:"val"`
	End   string  `json:"end"`
	Filed string  `json:"filed"`
}

type factConcept struct {
	Units map[string][]factValue `json:"units"`
}

type companyFacts struct {
	EntityName     string `json:"entityName"`
	SIC            string `json:"sic"`
	SICDescription string `json:"sicDescription"`
	Facts          struct {
		DEI    map[string]factConcept `json:"dei"`
		USGAAP map[string]factConcept `json:"us-gaap"`
	} `json:"facts"`
}

// Enrich fetches size and sector data from the company facts endpoint.
// Public float is the preferred size signal, with book value and total
// assets as progressively rougher proxies. Companies without usable facts
// fall back to the static tier table.
func (e *EDGAR) Enrich(ctx context.Context, entry Entry) (*Info, error) {
	e.mu.Lock()
	if cached, ok := e.infoCache[entry.CIK]; ok {
		e.mu.Unlock()
		return cached, nil
	}
	e.mu.Unlock()

	url := fmt.Sprintf("%s/api/xbrl/companyfacts/CIK%s.json", e.DataURL, entry.CIK)

	var facts companyFacts
	info := &Info{}
	if _, err := e.get(ctx, url, &facts); err != nil {
		if fallback, ok := staticInfo(entry.Ticker); ok {
			info = fallback
		} else {
			return nil, fmt.Errorf("failed to fetch company facts for CIK %s: %w", entry.CIK, err)
		}
	} else {
		info.SizeUSD = sizeFromFacts(&facts)
		info.Sector = sectorForSIC(facts.SIC)
		info.Industry = facts.SICDescription
		if info.SizeUSD == 0 {
			if fallback, ok := staticInfo(entry.Ticker); ok {
				info.SizeUSD = fallback.SizeUSD
			}
		}
	}

	e.mu.Lock()
	e.infoCache[entry.CIK] = info
	e.mu.Unlock()
	return info, nil
}

func sizeFromFacts(facts *companyFacts) float64 {
	if v, ok := latestUSD(facts.Facts.DEI["EntityPublicFloat"], func(f factValue) string { return f.Filed }); ok {
		return v
	}
	// Book value times a conservative multiple as a proxy.
	if v, ok := latestUSD(facts.Facts.USGAAP["StockholdersEquity"], func(f factValue) string { return f.End }); ok {
		return v * 2
	}
	if v, ok := latestUSD(facts.Facts.USGAAP["Assets"], func(f factValue) string { return f.End }); ok {
		return v * 0.5
	}
	return 0
}

func latestUSD(concept factConcept, key func(factValue) string) (float64, bool) {
	values := concept.Units["USD"]
	if len(values) == 0 {
		return 0, false
	}
	latest := values[0]
	for _, v := range values[1:] {
		if key(v) > key(latest) {
			latest = v
		}
	}
	if latest.Val == 0 {
		return 0, false
	}
	return latest.Val, true
}

// sectorForSIC maps an SIC code to a coarse sector name.
func sectorForSIC(sic string) string {
	code, err := strconv.Atoi(strings.TrimSpace(sic))
	if err != nil || code == 0 {
		return "Unknown"
	}
	switch {
	case code >= 7000 && code < 8000:
		return "Technology"
	case code >= 8000 && code < 8100:
		return "Healthcare"
	case code >= 6500 && code < 6600:
		return "Real Estate"
	case code >= 6000 && code < 7000:
		return "Financial Services"
	case code >= 5000 && code < 6000:
		return "Consumer Cyclical"
	case code >= 4900 && code < 5000:
		return "Utilities"
	case code >= 4000 && code < 4800:
		return "Industrials"
	case code >= 2900 && code < 3000:
		return "Energy"
	case code >= 2000 && code < 4000:
		return "Industrials"
	case code >= 1000 && code < 1500:
		return "Energy"
	default:
		return "Other"
	}
}
