package knowledge

import (
	"context"
	"fmt"
	"strings"

	"github.com/firebase/genkit/go/ai"
)

// Embedder converts text into fixed-length vectors using a Genkit embedder.
// Input text is newline-stripped and trimmed before the provider call, as
// required by the embedding API.
type Embedder struct {
	embedder ai.Embedder
}

// NewEmbedder wraps a Genkit embedder.
func NewEmbedder(embedder ai.Embedder) *Embedder {
	return &Embedder{embedder: embedder}
}

// Embed returns the embedding vector for text.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	text = strings.TrimSpace(strings.ReplaceAll(text, "\n", " "))

	resp, err := e.embedder.Embed(ctx, &ai.EmbedRequest{
		Input: []*ai.Document{
			{Content: []*ai.Part{ai.NewTextPart(text)}},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("generating embedding: %w", err)
	}

	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Embedding) == 0 {
		return nil, fmt.Errorf("embedding provider returned empty vector")
	}

	return resp.Embeddings[0].Embedding, nil
}
