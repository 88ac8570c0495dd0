package testutil

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math"
	"sync"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
)

// MockEmbedder produces deterministic embedding vectors for tests. Unknown
// text gets a unit vector derived from its SHA-256 hash; explicit vectors can
// be pinned per text to control similarity between inputs exactly.
//
// Safe for concurrent use.
type MockEmbedder struct {
	mu      sync.Mutex
	pinned  map[string][]float32
	dim     int
	queries []string
}

// NewMockEmbedder creates a mock producing vectors of the given dimension.
func NewMockEmbedder(dim int) *MockEmbedder {
	return &MockEmbedder{pinned: make(map[string][]float32), dim: dim}
}

// Pin fixes the vector returned for text.
func (e *MockEmbedder) Pin(text string, vec []float32) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pinned[text] = vec
}

// Queries returns every text embedded so far, in order.
func (e *MockEmbedder) Queries() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	cp := make([]string, len(e.queries))
	copy(cp, e.queries)
	return cp
}

// Register defines the mock as a Genkit embedder.
func (e *MockEmbedder) Register(g *genkit.Genkit) ai.Embedder {
	return genkit.DefineEmbedder(g, MockEmbedderName, &ai.EmbedderOptions{
		Label:      "Mock Embedder",
		Dimensions: e.dim,
	}, e.embed)
}

func (e *MockEmbedder) embed(_ context.Context, req *ai.EmbedRequest) (*ai.EmbedResponse, error) {
	embeddings := make([]*ai.Embedding, len(req.Input))
	for i, doc := range req.Input {
		var text string
		for _, part := range doc.Content {
			text += part.Text
		}
		embeddings[i] = &ai.Embedding{Embedding: e.vectorFor(text)}
	}
	return &ai.EmbedResponse{Embeddings: embeddings}, nil
}

func (e *MockEmbedder) vectorFor(text string) []float32 {
	e.mu.Lock()
	e.queries = append(e.queries, text)
	if v, ok := e.pinned[text]; ok {
		e.mu.Unlock()
		return v
	}
	e.mu.Unlock()

	return hashVector(text, e.dim)
}

// hashVector derives a normalized vector from the text's SHA-256 hash, so
// the same text always embeds identically and different texts almost never
// collide.
func hashVector(text string, dim int) []float32 {
	sum := sha256.Sum256([]byte(text))

	vec := make([]float32, dim)
	var norm float64
	for i := range vec {
		// Cycle through the digest, reseeding with the index so dimensions
		// beyond the digest length stay distinct.
		off := (i * 4) % (len(sum) - 4)
		bits := binary.BigEndian.Uint32(sum[off:]) ^ uint32(i)*2654435761
		v := float64(int32(bits)) / math.MaxInt32
		vec[i] = float32(v)
		norm += v * v
	}

	norm = math.Sqrt(norm)
	if norm == 0 {
		return vec
	}
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
	return vec
}
