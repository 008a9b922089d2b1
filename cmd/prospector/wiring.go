package main

import (
	"context"
	"fmt"
	"os"

	"github.com/jonathan/prospector/internal/catalog"
	"github.com/jonathan/prospector/internal/config"
	"github.com/jonathan/prospector/internal/directory"
	"github.com/jonathan/prospector/internal/filings"
	"github.com/jonathan/prospector/internal/llm"
	"github.com/jonathan/prospector/internal/matching"
	"github.com/jonathan/prospector/internal/mining"
	"github.com/jonathan/prospector/internal/pipeline"
	"github.com/jonathan/prospector/internal/pitching"
	"github.com/jonathan/prospector/internal/vectorindex"
)

const (
	defaultCatalogPath = "catalog.json"
	defaultFilingDir   = ".prospector/filings"
	defaultUserAgent   = "prospector/1.0 (research; admin@example.com)"
)

// components holds the wired analysis stack shared by the CLI commands
// and the server.
type components struct {
	llm       llm.Client
	directory *directory.EDGAR
	pipeline  *pipeline.Pipeline
	catalog   *catalog.Catalog
}

// close releases the model client.
func (c *components) close() {
	if c.llm != nil {
		c.llm.Close()
	}
}

// buildComponents wires the directory, filing source, vector index, miner,
// matcher and pitch writer into a pipeline. The recorder may be nil.
func buildComponents(ctx context.Context, cfg config.Config, recorder pipeline.Recorder) (*components, error) {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("GEMINI_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY environment variable is required")
	}

	client, err := llm.NewClient(ctx, nil, apiKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create model client: %w", err)
	}

	dir, err := directory.NewEDGAR(cfg.UserAgent)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to create company directory: %w", err)
	}

	cat, err := catalog.Load(cfg.Catalog)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to load catalog: %w", err)
	}

	index := vectorindex.NewMemoryIndex(client)
	miner := mining.NewMiner(client, index)
	if cfg.MaxPains > 0 {
		miner.MaxPains = cfg.MaxPains
	}
	if cfg.TopChunks > 0 {
		miner.TopChunks = cfg.TopChunks
	}

	matcher := matching.NewMatcher(cat)
	if cfg.MatchThreshold > 0 {
		matcher.Threshold = cfg.MatchThreshold
	}

	source := filings.NewEDGARSource(cfg.UserAgent, cfg.FilingDir)
	source.UseBrowser = cfg.UseBrowser

	pipe := &pipeline.Pipeline{
		Directory: dir,
		Source:    source,
		Index:     index,
		Miner:     miner,
		Matcher:   matcher,
		Writer:    pitching.NewWriter(client),
		Catalog:   cat,
		Recorder:  recorder,
	}

	return &components{
		llm:       client,
		directory: dir,
		pipeline:  pipe,
		catalog:   cat,
	}, nil
}

// resolveConfig loads an optional config file and fills in defaults.
func resolveConfig(path string) (config.Config, error) {
	var cfg config.Config
	if path != "" {
		loaded, err := config.LoadConfig(path)
		if err != nil {
			return cfg, fmt.Errorf("failed to load config: %w", err)
		}
		if err := loaded.Validate(); err != nil {
			return cfg, err
		}
		cfg = *loaded
	}

	userAgent := defaultUserAgent
	if env := os.Getenv("EDGAR_USER_AGENT"); env != "" {
		userAgent = env
	}

	cfg = cfg.MergeWithDefaults(config.Config{
		Catalog:     defaultCatalogPath,
		FilingDir:   defaultFilingDir,
		UserAgent:   userAgent,
		DatabaseURL: os.Getenv("DATABASE_URL"),
	})
	return cfg, nil
}
