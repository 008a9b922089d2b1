package filings

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testCIK = "0000320193"

const submissionsFixture = `{
	"filings": {
		"recent": {
			"form": ["8-K", "10-Q", "10-K", "10-K"],
			"accessionNumber": ["0000320193-25-000001", "0000320193-25-000002", "0000320193-24-000123", "0000320193-23-000106"],
			"filingDate": ["2025-01-02", "2025-01-30", "2024-11-01", "2023-11-03"],
			"primaryDocument": ["ev8k.htm", "q1.htm", "aapl-10k.htm", "aapl-10k-prior.htm"]
		}
	}
}`

const filingHTML = `<html><body>
	<nav>Site navigation</nav>
	<main>
		<h2>Item 1A. Risk Factors</h2>
		<p>Global supply constraints have increased component costs.</p>
	</main>
</body></html>`

func newTestSource(t *testing.T, cacheDir string) (*EDGARSource, *int) {
	t.Helper()
	downloads := 0
	mux := http.NewServeMux()
	mux.HandleFunc("/submissions/CIK"+testCIK+".json", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(submissionsFixture))
	})
	mux.HandleFunc(fmt.Sprintf("/Archives/edgar/data/%s/000032019324000123/aapl-10k.htm", testCIK),
		func(w http.ResponseWriter, _ *http.Request) {
			downloads++
			_, _ = w.Write([]byte(filingHTML))
		})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	src := NewEDGARSource("Test/1.0 (test@example.com)", cacheDir)
	src.DataURL = server.URL
	src.ArchiveURL = server.URL
	return src, &downloads
}

func TestLatest_PicksNewestAnnualFiling(t *testing.T) {
	src, _ := newTestSource(t, "")

	doc, err := src.Latest(context.Background(), testCIK)
	require.NoError(t, err)

	assert.Equal(t, "0000320193-24-000123", doc.Accession)
	assert.Equal(t, "2024-11-01", doc.FilingDate)
	assert.Contains(t, doc.Text, "supply constraints")
	assert.NotContains(t, doc.Text, "Site navigation")
	assert.NotEmpty(t, doc.ContentHash)
	assert.False(t, doc.FromCache)
}

func TestLatest_CacheHitSkipsDownload(t *testing.T) {
	cacheDir := t.TempDir()
	src, downloads := newTestSource(t, cacheDir)

	first, err := src.Latest(context.Background(), testCIK)
	require.NoError(t, err)
	assert.False(t, first.FromCache)

	second, err := src.Latest(context.Background(), testCIK)
	require.NoError(t, err)
	assert.True(t, second.FromCache)
	assert.Equal(t, first.ContentHash, second.ContentHash)
	assert.Equal(t, 1, *downloads, "second call should read from disk")
}

func TestLatest_NewAccessionInvalidatesCache(t *testing.T) {
	cacheDir := t.TempDir()
	src, downloads := newTestSource(t, cacheDir)

	_, err := src.Latest(context.Background(), testCIK)
	require.NoError(t, err)

	// Simulate a newer filing appearing: repoint the source at a server
	// that reports a different accession.
	mux := http.NewServeMux()
	mux.HandleFunc("/submissions/CIK"+testCIK+".json", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{
			"filings": {"recent": {
				"form": ["10-K"],
				"accessionNumber": ["0000320193-25-000999"],
				"filingDate": ["2025-10-31"],
				"primaryDocument": ["aapl-10k-new.htm"]
			}}
		}`))
	})
	mux.HandleFunc(fmt.Sprintf("/Archives/edgar/data/%s/000032019325000999/aapl-10k-new.htm", testCIK),
		func(w http.ResponseWriter, _ *http.Request) {
			*downloads++
			_, _ = w.Write([]byte("<html><body><main>New fiscal year risks.</main></body></html>"))
		})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	src.DataURL = server.URL
	src.ArchiveURL = server.URL

	doc, err := src.Latest(context.Background(), testCIK)
	require.NoError(t, err)
	assert.False(t, doc.FromCache)
	assert.Equal(t, "0000320193-25-000999", doc.Accession)
	assert.Equal(t, 2, *downloads)
}

func TestLatest_NoAnnualFiling(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/submissions/CIK0000000001.json", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"filings": {"recent": {"form": ["8-K"], "accessionNumber": ["x"], "filingDate": ["2025-01-01"], "primaryDocument": ["a.htm"]}}}`))
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	src := NewEDGARSource("Test/1.0 (test@example.com)", "")
	src.DataURL = server.URL
	src.ArchiveURL = server.URL

	_, err := src.Latest(context.Background(), "0000000001")
	require.Error(t, err)

	var notFound *NotFoundError
	assert.ErrorAs(t, err, &notFound)
}

func TestLatest_TruncatedSubmissionsPayload(t *testing.T) {
	// Parallel arrays cut short mid-response must not panic
	mux := http.NewServeMux()
	mux.HandleFunc("/submissions/CIK0000000001.json", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"filings": {"recent": {
			"form": ["8-K", "10-K"],
			"accessionNumber": ["0000000001-25-000001"],
			"filingDate": ["2025-01-02"],
			"primaryDocument": ["ev8k.htm"]
		}}}`))
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	src := NewEDGARSource("Test/1.0 (test@example.com)", "")
	src.DataURL = server.URL
	src.ArchiveURL = server.URL

	_, err := src.Latest(context.Background(), "0000000001")
	require.Error(t, err)

	var notFound *NotFoundError
	assert.ErrorAs(t, err, &notFound)
}

const shellHTML = `<html><body><main>Loading viewer...</main></body></html>`

func newShellSource(t *testing.T) *EDGARSource {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/submissions/CIK"+testCIK+".json", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(submissionsFixture))
	})
	mux.HandleFunc(fmt.Sprintf("/Archives/edgar/data/%s/000032019324000123/aapl-10k.htm", testCIK),
		func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(shellHTML))
		})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	src := NewEDGARSource("Test/1.0 (test@example.com)", "")
	src.DataURL = server.URL
	src.ArchiveURL = server.URL
	return src
}

func TestLatest_BrowserFallbackOnThinDocument(t *testing.T) {
	src := newShellSource(t)
	src.UseBrowser = true

	prose := strings.Repeat("Supply constraints increased component costs. ", 20)
	original := renderPage
	renderPage = func(ctx context.Context, url string, timeout time.Duration) (string, error) {
		return "<html><body><main>" + prose + "</main></body></html>", nil
	}
	t.Cleanup(func() { renderPage = original })

	doc, err := src.Latest(context.Background(), testCIK)
	require.NoError(t, err)
	assert.Contains(t, doc.Text, "Supply constraints")
	assert.NotContains(t, doc.Text, "Loading viewer")
}

func TestLatest_NoBrowserWhenDisabled(t *testing.T) {
	src := newShellSource(t)

	rendered := false
	original := renderPage
	renderPage = func(ctx context.Context, url string, timeout time.Duration) (string, error) {
		rendered = true
		return "", nil
	}
	t.Cleanup(func() { renderPage = original })

	doc, err := src.Latest(context.Background(), testCIK)
	require.NoError(t, err)
	assert.False(t, rendered)
	assert.Contains(t, doc.Text, "Loading viewer")
}

func TestLatest_BrowserFailureKeepsPlainText(t *testing.T) {
	src := newShellSource(t)
	src.UseBrowser = true

	original := renderPage
	renderPage = func(ctx context.Context, url string, timeout time.Duration) (string, error) {
		return "", fmt.Errorf("chrome not installed")
	}
	t.Cleanup(func() { renderPage = original })

	doc, err := src.Latest(context.Background(), testCIK)
	require.NoError(t, err)
	assert.Contains(t, doc.Text, "Loading viewer")
}

func TestLatest_SubmissionsEndpointFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(server.Close)

	src := NewEDGARSource("Test/1.0 (test@example.com)", "")
	src.DataURL = server.URL
	src.ArchiveURL = server.URL

	_, err := src.Latest(context.Background(), testCIK)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP status 500")
}
