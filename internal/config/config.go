// Package config provides configuration loading and validation for the CLI.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Config represents the configuration that can be loaded from a JSON file.
// All fields are optional; missing values use defaults or must be provided via CLI flags.
type Config struct {
	// Paths
	Catalog   string `json:"catalog,omitempty"`    // Path to the product catalog JSON file
	FilingDir string `json:"filing_dir,omitempty"` // Directory for cached filing documents

	// Network
	UserAgent   string `json:"user_agent,omitempty"`   // Declared user agent for EDGAR requests
	DatabaseURL string `json:"database_url,omitempty"` // PostgreSQL connection URL
	ListenAddr  string `json:"listen_addr,omitempty"`  // HTTP listen address for serve mode

	// Limits
	MaxConcurrent int `json:"max_concurrent,omitempty"` // Maximum companies analyzed in parallel
	MaxPains      int `json:"max_pains,omitempty"`      // Maximum pain points mined per company
	TopChunks     int `json:"top_chunks,omitempty"`     // Excerpt chunks retrieved per theme query

	// Behavior
	APIKey         string  `json:"api_key,omitempty"`         // Gemini API key
	UseBrowser     bool    `json:"use_browser,omitempty"`     // Use headless browser for JS-heavy pages
	Verbose        bool    `json:"verbose,omitempty"`         // Print detailed debug information
	MatchThreshold float64 `json:"match_threshold,omitempty"` // Minimum match score to keep (0-100)
}

// LoadConfig loads configuration from a JSON file.
// Returns an error if the file cannot be read or parsed.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config path is empty")
	}

	// Resolve path relative to current directory if not absolute
	if !filepath.IsAbs(path) {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get current directory: %w", err)
		}
		path = filepath.Join(cwd, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	return &cfg, nil
}

// Validate checks that the configuration has valid values.
// Note: This doesn't check for required fields since those are handled
// by CLI flag validation after merging.
func (c *Config) Validate() error {
	// Validate numeric ranges
	if c.MaxConcurrent < 0 {
		return fmt.Errorf("config error: 'max_concurrent' must be non-negative")
	}
	if c.MaxPains < 0 {
		return fmt.Errorf("config error: 'max_pains' must be non-negative")
	}
	if c.MatchThreshold < 0 || c.MatchThreshold > 100 {
		return fmt.Errorf("config error: 'match_threshold' must be between 0 and 100")
	}

	// Validate file paths exist (if specified)
	if c.Catalog != "" {
		if _, err := os.Stat(c.Catalog); os.IsNotExist(err) {
			return fmt.Errorf("config error: catalog file not found: %s", c.Catalog)
		}
	}

	return nil
}

// MergeWithDefaults returns a new Config with empty string fields filled from defaults.
// This is used to apply config file values as defaults for CLI flags.
func (c *Config) MergeWithDefaults(defaults Config) Config {
	result := *c

	// String fields: use default if empty
	if result.Catalog == "" {
		result.Catalog = defaults.Catalog
	}
	if result.FilingDir == "" {
		result.FilingDir = defaults.FilingDir
	}
	if result.UserAgent == "" {
		result.UserAgent = defaults.UserAgent
	}
	if result.DatabaseURL == "" {
		result.DatabaseURL = defaults.DatabaseURL
	}
	if result.ListenAddr == "" {
		result.ListenAddr = defaults.ListenAddr
	}
	if result.APIKey == "" {
		result.APIKey = defaults.APIKey
	}

	// Int fields: use default if zero
	if result.MaxConcurrent == 0 {
		result.MaxConcurrent = defaults.MaxConcurrent
	}
	if result.MaxPains == 0 {
		result.MaxPains = defaults.MaxPains
	}
	if result.TopChunks == 0 {
		result.TopChunks = defaults.TopChunks
	}

	// Float fields
	if result.MatchThreshold == 0 {
		if defaults.MatchThreshold > 0 {
			result.MatchThreshold = defaults.MatchThreshold
		} else {
			result.MatchThreshold = 40 // Default minimum fit score
		}
	}

	// Bool fields: cannot distinguish unset from false, so we don't merge
	// (CLI flags should always win for bools)

	return result
}
