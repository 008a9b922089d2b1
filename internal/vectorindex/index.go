// Package vectorindex builds in-memory embedding indexes over filing text
// and answers nearest-chunk queries by cosine similarity.
package vectorindex

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/jonathan/prospector/internal/types"
)

// Embedder produces embedding vectors for a batch of texts.
// llm.Client satisfies this.
type Embedder interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// Index stores embedded document chunks keyed by content hash.
type Index interface {
	// Build chunks and embeds a document. Building the same content hash
	// twice reuses the existing collection without re-embedding.
	Build(ctx context.Context, doc *types.Document) (int, error)

	// Query returns the topK most similar chunks for a document.
	Query(ctx context.Context, contentHash, query string, topK int) ([]string, error)

	// Has reports whether a collection exists for the content hash.
	Has(contentHash string) bool
}

type collection struct {
	chunks  []string
	vectors [][]float32
}

// MemoryIndex is an Index held entirely in process memory.
type MemoryIndex struct {
	embedder     Embedder
	chunkSize    int
	chunkOverlap int

	mu          sync.RWMutex
	collections map[string]*collection
}

// NewMemoryIndex creates an index using the given embedder and default
// chunking parameters.
func NewMemoryIndex(embedder Embedder) *MemoryIndex {
	return &MemoryIndex{
		embedder:     embedder,
		chunkSize:    DefaultChunkSize,
		chunkOverlap: DefaultChunkOverlap,
		collections:  make(map[string]*collection),
	}
}

// Has reports whether the content hash already has a collection.
func (m *MemoryIndex) Has(contentHash string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.collections[contentHash]
	return ok
}

// Build chunks and embeds the document text. An unchanged document (same
// content hash) is a no-op returning the cached chunk count.
func (m *MemoryIndex) Build(ctx context.Context, doc *types.Document) (int, error) {
	if doc.ContentHash == "" {
		return 0, fmt.Errorf("document has no content hash")
	}

	m.mu.RLock()
	if coll, ok := m.collections[doc.ContentHash]; ok {
		m.mu.RUnlock()
		return len(coll.chunks), nil
	}
	m.mu.RUnlock()

	chunks := Chunk(doc.Text, m.chunkSize, m.chunkOverlap)
	if len(chunks) == 0 {
		return 0, fmt.Errorf("document %s has no text to index", doc.CompanyID)
	}

	vectors, err := m.embedder.EmbedTexts(ctx, chunks)
	if err != nil {
		return 0, fmt.Errorf("failed to embed %d chunks: %w", len(chunks), err)
	}
	if len(vectors) != len(chunks) {
		return 0, fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(chunks))
	}

	m.mu.Lock()
	m.collections[doc.ContentHash] = &collection{chunks: chunks, vectors: vectors}
	m.mu.Unlock()

	return len(chunks), nil
}

// Query embeds the query string and returns the topK most similar chunks.
func (m *MemoryIndex) Query(ctx context.Context, contentHash, query string, topK int) ([]string, error) {
	m.mu.RLock()
	coll, ok := m.collections[contentHash]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no index for content hash %s", contentHash)
	}
	if topK <= 0 {
		topK = 5
	}

	queryVecs, err := m.embedder.EmbedTexts(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	if len(queryVecs) != 1 {
		return nil, fmt.Errorf("embedder returned %d vectors for one query", len(queryVecs))
	}

	type scored struct {
		idx   int
		score float64
	}
	scores := make([]scored, len(coll.chunks))
	for i, vec := range coll.vectors {
		scores[i] = scored{idx: i, score: cosine(queryVecs[0], vec)}
	}
	sort.Slice(scores, func(i, j int) bool { return scores[i].score > scores[j].score })

	if topK > len(scores) {
		topK = len(scores)
	}
	out := make([]string, topK)
	for i := 0; i < topK; i++ {
		out[i] = coll.chunks[scores[i].idx]
	}
	return out, nil
}

// cosine computes cosine similarity between two vectors. Mismatched or
// zero-magnitude vectors score zero.
func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
