// Package knowledge implements the retrieval side of silvia: document
// chunking, embedding, vector storage, the ingestion pipeline, and semantic
// search over organization knowledge collections.
package knowledge

import (
	"context"
	"fmt"
	"log/slog"
)

// Semantic search defaults.
const (
	// DefaultTopK is the maximum number of sources returned per search.
	DefaultTopK = 5

	// DefaultThreshold is the minimum similarity (1 - cosine distance) for a
	// chunk to count as relevant.
	DefaultThreshold = 0.3
)

// Storage defines the persistence operations the service depends on.
// *Store satisfies this; tests substitute a stub.
type Storage interface {
	GetCollection(ctx context.Context, id, orgID string) (*Collection, error)
	CreateCollection(ctx context.Context, orgID, name, description string) (*Collection, error)
	ListCollections(ctx context.Context, orgID string) ([]Collection, error)
	DeleteCollection(ctx context.Context, id, orgID string) error

	CreateDocument(ctx context.Context, collectionID, title, content, source string, metadata map[string]any) (*Document, error)
	ListDocuments(ctx context.Context, collectionID string) ([]Document, error)
	DeleteDocument(ctx context.Context, id, orgID string) error

	InsertChunk(ctx context.Context, documentID, content string, embedding []float32, chunkIndex int) error
	SearchChunks(ctx context.Context, collectionIDs []string, embedding []float32, threshold float64, limit int) ([]Source, error)
}

// TextEmbedder converts text into an embedding vector.
// *Embedder satisfies this; tests substitute a stub.
type TextEmbedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Service drives the ingestion pipeline (chunk, embed, store) and semantic
// search. All provider clients are injected; the service holds no globals.
type Service struct {
	store    Storage
	embedder TextEmbedder
	chunker  *Chunker
	logger   *slog.Logger
}

// NewService creates a Service. A nil chunker gets default sizing; a nil
// logger falls back to slog.Default().
func NewService(store Storage, embedder TextEmbedder, chunker *Chunker, logger *slog.Logger) *Service {
	if chunker == nil {
		chunker = NewChunker()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:    store,
		embedder: embedder,
		chunker:  chunker,
		logger:   logger,
	}
}

// Ingest materializes a document into searchable chunks: it persists the
// document row, splits the content, and writes one embedded chunk per segment
// in order.
//
// Embedding calls are sequential; the first failure aborts the remaining
// chunks and surfaces the error. The document row persists regardless, so a
// partially ingested document may have fewer chunks than expected — deleting
// the document is the recovery path.
func (s *Service) Ingest(ctx context.Context, collectionID, orgID, title, content, source string, metadata map[string]any) (*IngestResult, error) {
	if _, err := s.store.GetCollection(ctx, collectionID, orgID); err != nil {
		return nil, err
	}

	doc, err := s.store.CreateDocument(ctx, collectionID, title, content, source, metadata)
	if err != nil {
		return nil, err
	}

	chunks := s.chunker.Split(content)
	s.logger.Debug("document chunked", "document_id", doc.ID, "title", title, "chunks", len(chunks))

	for i, chunk := range chunks {
		embedding, err := s.embedder.Embed(ctx, chunk)
		if err != nil {
			return nil, fmt.Errorf("embedding chunk %d of document %q: %w", i, doc.ID, err)
		}
		if err := s.store.InsertChunk(ctx, doc.ID, chunk, embedding, i); err != nil {
			return nil, err
		}
	}

	s.logger.Info("document ingested", "document_id", doc.ID, "chunks", len(chunks))
	return &IngestResult{DocumentID: doc.ID, ChunkCount: len(chunks)}, nil
}

// Search embeds the query and returns the best-matching chunks from the given
// collections, ranked by similarity. An empty collection list short-circuits
// to no results without an embedding call.
func (s *Service) Search(ctx context.Context, query string, collectionIDs []string, topK int, threshold float64) ([]Source, error) {
	if len(collectionIDs) == 0 {
		return nil, nil
	}
	if topK <= 0 {
		topK = DefaultTopK
	}

	embedding, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	sources, err := s.store.SearchChunks(ctx, collectionIDs, embedding, threshold, topK)
	if err != nil {
		return nil, err
	}

	s.logger.Debug("semantic search", "collections", len(collectionIDs), "results", len(sources))
	return sources, nil
}

// CreateCollection creates an organization-scoped collection.
func (s *Service) CreateCollection(ctx context.Context, orgID, name, description string) (*Collection, error) {
	return s.store.CreateCollection(ctx, orgID, name, description)
}

// ListCollections returns an organization's collections with document counts.
func (s *Service) ListCollections(ctx context.Context, orgID string) ([]Collection, error) {
	return s.store.ListCollections(ctx, orgID)
}

// DeleteCollection removes a collection and cascades to documents and chunks.
func (s *Service) DeleteCollection(ctx context.Context, id, orgID string) error {
	return s.store.DeleteCollection(ctx, id, orgID)
}

// ListDocuments lists a collection's documents after verifying ownership.
func (s *Service) ListDocuments(ctx context.Context, collectionID, orgID string) ([]Document, error) {
	if _, err := s.store.GetCollection(ctx, collectionID, orgID); err != nil {
		return nil, err
	}
	return s.store.ListDocuments(ctx, collectionID)
}

// DeleteDocument removes a document and its chunks.
func (s *Service) DeleteDocument(ctx context.Context, id, orgID string) error {
	return s.store.DeleteDocument(ctx, id, orgID)
}
