// Package catalog loads and validates the product catalog used for matching.
package catalog

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	_ "embed"

	"github.com/jonathan/prospector/internal/schemas"
)

//go:embed schema.json
var catalogSchema string

// ICP describes the ideal customer profile for a product.
type ICP struct {
	Industries []string `json:"industries,omitempty"`
	SizeTiers  []string `json:"size_tiers,omitempty"`
}

// Product is a single sellable offering in the catalog.
type Product struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Category     string   `json:"category"`
	Description  string   `json:"description"`
	Capabilities []string `json:"capabilities,omitempty"`
	Keywords     []string `json:"keywords,omitempty"`
	ICP          ICP      `json:"icp,omitempty"`
}

// Catalog is the full set of products plus a fingerprint of the source file.
// The fingerprint lets callers detect whether an analysis was produced
// against the current catalog version.
type Catalog struct {
	Products    []Product `json:"products"`
	fingerprint string
}

// Load reads a catalog JSON file, validates it against the embedded schema,
// and computes its content fingerprint.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file %s: %w", path, err)
	}
	return Parse(data)
}

// Parse builds a catalog from raw JSON bytes.
func Parse(data []byte) (*Catalog, error) {
	if err := schemas.ValidateJSONString(catalogSchema, string(data)); err != nil {
		return nil, fmt.Errorf("catalog validation failed: %w", err)
	}

	var cat Catalog
	if err := json.Unmarshal(data, &cat); err != nil {
		return nil, fmt.Errorf("failed to parse catalog JSON: %w", err)
	}

	sum := sha256.Sum256(data)
	cat.fingerprint = hex.EncodeToString(sum[:])

	return &cat, nil
}

// Fingerprint returns the SHA-256 hex digest of the catalog source bytes.
func (c *Catalog) Fingerprint() string {
	return c.fingerprint
}

// Get returns the product with the given ID, or nil if not present.
func (c *Catalog) Get(id string) *Product {
	for i := range c.Products {
		if c.Products[i].ID == id {
			return &c.Products[i]
		}
	}
	return nil
}

// Categories returns the distinct product categories in catalog order.
func (c *Catalog) Categories() []string {
	seen := make(map[string]bool)
	var out []string
	for _, p := range c.Products {
		if !seen[p.Category] {
			seen[p.Category] = true
			out = append(out, p.Category)
		}
	}
	return out
}

// PersonaFor maps a product category to the buyer persona a pitch should target.
func PersonaFor(category string) string {
	switch strings.ToLower(category) {
	case "supply-chain", "logistics", "operations":
		return "VP of Operations"
	case "finance", "accounting", "billing":
		return "CFO"
	case "security", "compliance":
		return "CISO"
	case "data", "analytics":
		return "VP of Data"
	case "hr", "talent", "workforce":
		return "CHRO"
	default:
		return "CEO"
	}
}
