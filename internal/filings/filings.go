// Package filings retrieves disclosure documents from SEC EDGAR and caches
// them on disk keyed by accession number.
package filings

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/jonathan/prospector/internal/fetch"
	"github.com/jonathan/prospector/internal/types"
)

// Source retrieves the latest annual disclosure for a company.
type Source interface {
	Latest(ctx context.Context, companyID string) (*types.Document, error)
}

// NotFoundError indicates the company has no annual filing on record.
type NotFoundError struct {
	CompanyID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no annual filing found for company %s", e.CompanyID)
}

// EDGARSource fetches 10-K filings from EDGAR. When CacheDir is set, a
// filing is stored on disk alongside a metadata sidecar; re-fetching the
// same accession reads from disk instead of the network. UseBrowser
// enables a headless browser fallback for documents that arrive as
// script-rendered shells, such as inline XBRL viewer pages.
type EDGARSource struct {
	UserAgent  string
	CacheDir   string
	UseBrowser bool

	// Overridable for tests.
	DataURL    string
	ArchiveURL string

	client *http.Client
}

// browserTimeout bounds one headless render. Filings are large documents
// and Chrome startup is part of the budget.
const browserTimeout = 90 * time.Second

// renderPage is swappable in tests; real runs launch headless Chrome.
var renderPage = fetch.Render

// NewEDGARSource creates a filing source with the given user agent and
// optional cache directory (empty disables disk caching).
func NewEDGARSource(userAgent, cacheDir string) *EDGARSource {
	return &EDGARSource{
		UserAgent:  userAgent,
		CacheDir:   cacheDir,
		DataURL:    "https://data.sec.gov",
		ArchiveURL: "https://www.sec.gov",
		client:     &http.Client{Timeout: 60 * time.Second},
	}
}

type submissions struct {
	Filings struct {
		Recent struct {
			Form            []string `json:"form"`
			AccessionNumber []string `json:"accessionNumber"`
			FilingDate      []string `json:"filingDate"`
			PrimaryDocument []string `json:"primaryDocument"`
		} `json:"recent"`
	} `json:"filings"`
}

type filingMeta struct {
	CompanyID  string `json:"company_id"`
	Accession  string `json:"accession"`
	FilingDate string `json:"filing_date"`
	FilingURL  string `json:"filing_url"`
}

// Latest returns the most recent 10-K for the company, converted to plain
// text with a content hash.
func (s *EDGARSource) Latest(ctx context.Context, companyID string) (*types.Document, error) {
	meta, err := s.latestMeta(ctx, companyID)
	if err != nil {
		return nil, err
	}

	if text, ok := s.readCached(meta); ok {
		return buildDocument(meta, text, true), nil
	}

	html, err := s.download(ctx, meta.FilingURL)
	if err != nil {
		return nil, err
	}

	text, err := fetch.ExtractMainText(html, fetch.FilingSelectors())
	if err != nil {
		return nil, fmt.Errorf("failed to extract filing text: %w", err)
	}

	if s.UseBrowser && fetch.ShouldUseBrowser(text) {
		if rendered := s.renderFallback(ctx, meta.FilingURL); rendered != "" && len(rendered) > len(text) {
			text = rendered
		}
	}

	s.writeCache(meta, text)
	return buildDocument(meta, text, false), nil
}

// renderFallback re-fetches a thin document through the headless browser.
// Render failures are non-fatal; the plain text stands.
func (s *EDGARSource) renderFallback(ctx context.Context, url string) string {
	html, err := renderPage(ctx, url, browserTimeout)
	if err != nil {
		log.Printf("filings: browser render failed for %s: %v", url, err)
		return ""
	}
	text, err := fetch.ExtractMainText(html, fetch.FilingSelectors())
	if err != nil {
		log.Printf("filings: failed to extract rendered text for %s: %v", url, err)
		return ""
	}
	return text
}

func buildDocument(meta *filingMeta, text string, fromCache bool) *types.Document {
	sum := sha256.Sum256([]byte(text))
	return &types.Document{
		CompanyID:   meta.CompanyID,
		Accession:   meta.Accession,
		FilingDate:  meta.FilingDate,
		Text:        text,
		ContentHash: hex.EncodeToString(sum[:]),
		FromCache:   fromCache,
	}
}

// latestMeta finds the newest 10-K in the company's recent submissions.
func (s *EDGARSource) latestMeta(ctx context.Context, companyID string) (*filingMeta, error) {
	url := fmt.Sprintf("%s/submissions/CIK%s.json", s.DataURL, companyID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", s.UserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch submissions for %s: %w", companyID, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch submissions for %s: HTTP status %d", companyID, resp.StatusCode)
	}

	var subs submissions
	if err := json.NewDecoder(resp.Body).Decode(&subs); err != nil {
		return nil, fmt.Errorf("failed to parse submissions for %s: %w", companyID, err)
	}

	recent := subs.Filings.Recent
	for i, form := range recent.Form {
		if form != "10-K" {
			continue
		}
		// The submissions payload uses parallel arrays; a truncated
		// response can leave them at different lengths.
		if i >= len(recent.AccessionNumber) || i >= len(recent.FilingDate) || i >= len(recent.PrimaryDocument) {
			break
		}
		accession := recent.AccessionNumber[i]
		compact := stripDashes(accession)
		return &filingMeta{
			CompanyID:  companyID,
			Accession:  accession,
			FilingDate: recent.FilingDate[i],
			FilingURL: fmt.Sprintf("%s/Archives/edgar/data/%s/%s/%s",
				s.ArchiveURL, companyID, compact, recent.PrimaryDocument[i]),
		}, nil
	}

	return nil, &NotFoundError{CompanyID: companyID}
}

func (s *EDGARSource) download(ctx context.Context, url string) (string, error) {
	result, err := fetch.URL(ctx, url, &fetch.Options{
		Timeout:   s.client.Timeout,
		UserAgent: s.UserAgent,
	})
	if err != nil {
		return "", fmt.Errorf("failed to download filing: %w", err)
	}
	return result.HTML, nil
}

func (s *EDGARSource) cachePaths(meta *filingMeta) (textPath, metaPath string) {
	name := fmt.Sprintf("%s_%s", meta.CompanyID, stripDashes(meta.Accession))
	return filepath.Join(s.CacheDir, name+".txt"), filepath.Join(s.CacheDir, name+".meta.json")
}

// readCached returns the cached text if the sidecar matches the accession.
func (s *EDGARSource) readCached(meta *filingMeta) (string, bool) {
	if s.CacheDir == "" {
		return "", false
	}
	textPath, metaPath := s.cachePaths(meta)

	metaData, err := os.ReadFile(metaPath)
	if err != nil {
		return "", false
	}
	var cached filingMeta
	if err := json.Unmarshal(metaData, &cached); err != nil {
		return "", false
	}
	if cached.Accession != meta.Accession || cached.FilingDate != meta.FilingDate {
		return "", false
	}

	text, err := os.ReadFile(textPath)
	if err != nil {
		return "", false
	}
	return string(text), true
}

// writeCache stores the extracted text and metadata sidecar. Cache write
// failures are non-fatal; the document was already fetched.
func (s *EDGARSource) writeCache(meta *filingMeta, text string) {
	if s.CacheDir == "" {
		return
	}
	if err := os.MkdirAll(s.CacheDir, 0755); err != nil {
		return
	}
	textPath, metaPath := s.cachePaths(meta)

	if err := os.WriteFile(textPath, []byte(text), 0644); err != nil {
		return
	}
	if data, err := json.MarshalIndent(meta, "", "  "); err == nil {
		_ = os.WriteFile(metaPath, data, 0644)
	}
}

func stripDashes(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] != '-' {
			out = append(out, s[i])
		}
	}
	return string(out)
}
