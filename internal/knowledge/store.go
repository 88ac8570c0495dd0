package knowledge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"
)

// DB is the subset of pgxpool.Pool the store depends on.
// Interfaces are defined by the consumer; *pgxpool.Pool satisfies this.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store persists collections, documents and chunks in PostgreSQL and runs
// pgvector similarity queries over chunk embeddings.
//
// Store is safe for concurrent use by multiple goroutines.
type Store struct {
	db     DB
	logger *slog.Logger
}

// NewStore creates a Store. A nil logger falls back to slog.Default().
func NewStore(db DB, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, logger: logger}
}

// CreateCollection creates an organization-scoped collection.
func (s *Store) CreateCollection(ctx context.Context, orgID, name, description string) (*Collection, error) {
	col := &Collection{
		ID:          uuid.New().String(),
		OrgID:       orgID,
		Name:        name,
		Description: description,
	}

	err := s.db.QueryRow(ctx,
		`INSERT INTO kb_collections (id, org_id, name, description)
		 VALUES ($1, $2, $3, $4)
		 RETURNING created_at`,
		col.ID, orgID, name, description,
	).Scan(&col.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("creating collection: %w", err)
	}

	s.logger.Debug("collection created", "id", col.ID, "org_id", orgID)
	return col, nil
}

// GetCollection loads a collection scoped to an organization.
// Returns ErrCollectionNotFound for missing or out-of-org collections.
func (s *Store) GetCollection(ctx context.Context, id, orgID string) (*Collection, error) {
	col := &Collection{ID: id, OrgID: orgID}

	err := s.db.QueryRow(ctx,
		`SELECT name, COALESCE(description, ''), created_at
		 FROM kb_collections
		 WHERE id = $1 AND org_id = $2`,
		id, orgID,
	).Scan(&col.Name, &col.Description, &col.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrCollectionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading collection %q: %w", id, err)
	}

	return col, nil
}

// ListCollections returns an organization's collections, newest first,
// with their document counts.
func (s *Store) ListCollections(ctx context.Context, orgID string) ([]Collection, error) {
	rows, err := s.db.Query(ctx,
		`SELECT c.id, c.name, COALESCE(c.description, ''), c.created_at,
		        COUNT(d.id)
		 FROM kb_collections c
		 LEFT JOIN kb_documents d ON d.collection_id = c.id
		 WHERE c.org_id = $1
		 GROUP BY c.id
		 ORDER BY c.created_at DESC`,
		orgID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing collections: %w", err)
	}
	defer rows.Close()

	var collections []Collection
	for rows.Next() {
		col := Collection{OrgID: orgID}
		if err := rows.Scan(&col.ID, &col.Name, &col.Description, &col.CreatedAt, &col.DocumentCount); err != nil {
			return nil, fmt.Errorf("scanning collection: %w", err)
		}
		collections = append(collections, col)
	}
	return collections, rows.Err()
}

// DeleteCollection removes a collection and, via cascade, its documents and
// chunks. Returns ErrCollectionNotFound for missing or out-of-org collections.
func (s *Store) DeleteCollection(ctx context.Context, id, orgID string) error {
	tag, err := s.db.Exec(ctx,
		`DELETE FROM kb_collections WHERE id = $1 AND org_id = $2`,
		id, orgID,
	)
	if err != nil {
		return fmt.Errorf("deleting collection %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrCollectionNotFound
	}

	s.logger.Debug("collection deleted", "id", id, "org_id", orgID)
	return nil
}

// CreateDocument persists a document row holding the full original content.
func (s *Store) CreateDocument(ctx context.Context, collectionID, title, content, source string, metadata map[string]any) (*Document, error) {
	doc := &Document{
		ID:           uuid.New().String(),
		CollectionID: collectionID,
		Title:        title,
		Content:      content,
		Source:       source,
		Metadata:     metadata,
	}

	var metadataJSON []byte
	if metadata != nil {
		var err error
		metadataJSON, err = json.Marshal(metadata)
		if err != nil {
			return nil, fmt.Errorf("marshaling document metadata: %w", err)
		}
	}

	err := s.db.QueryRow(ctx,
		`INSERT INTO kb_documents (id, collection_id, title, content, source, metadata)
		 VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6)
		 RETURNING created_at`,
		doc.ID, collectionID, title, content, source, metadataJSON,
	).Scan(&doc.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("creating document: %w", err)
	}

	return doc, nil
}

// ListDocuments returns a collection's documents, newest first, with chunk
// counts. Content is omitted to keep listings light.
func (s *Store) ListDocuments(ctx context.Context, collectionID string) ([]Document, error) {
	rows, err := s.db.Query(ctx,
		`SELECT d.id, d.title, COALESCE(d.source, ''), d.metadata, d.created_at,
		        COUNT(c.id)
		 FROM kb_documents d
		 LEFT JOIN kb_chunks c ON c.document_id = d.id
		 WHERE d.collection_id = $1
		 GROUP BY d.id
		 ORDER BY d.created_at DESC`,
		collectionID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		doc := Document{CollectionID: collectionID}
		var metadataJSON []byte
		if err := rows.Scan(&doc.ID, &doc.Title, &doc.Source, &metadataJSON, &doc.CreatedAt, &doc.ChunkCount); err != nil {
			return nil, fmt.Errorf("scanning document: %w", err)
		}
		if len(metadataJSON) > 0 {
			if err := json.Unmarshal(metadataJSON, &doc.Metadata); err != nil {
				s.logger.Warn("unparseable document metadata", "document_id", doc.ID, "error", err)
			}
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// DeleteDocument removes a document and its chunks, verifying the document's
// collection belongs to the organization.
func (s *Store) DeleteDocument(ctx context.Context, id, orgID string) error {
	tag, err := s.db.Exec(ctx,
		`DELETE FROM kb_documents d
		 USING kb_collections c
		 WHERE d.id = $1 AND d.collection_id = c.id AND c.org_id = $2`,
		id, orgID,
	)
	if err != nil {
		return fmt.Errorf("deleting document %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrDocumentNotFound
	}

	s.logger.Debug("document deleted", "id", id, "org_id", orgID)
	return nil
}

// InsertChunk writes one immutable chunk with its embedding and position.
func (s *Store) InsertChunk(ctx context.Context, documentID, content string, embedding []float32, chunkIndex int) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO kb_chunks (id, document_id, content, embedding, chunk_index)
		 VALUES ($1, $2, $3, $4, $5)`,
		uuid.New().String(), documentID, content, pgvector.NewVector(embedding), chunkIndex,
	)
	if err != nil {
		return fmt.Errorf("inserting chunk %d of document %q: %w", chunkIndex, documentID, err)
	}
	return nil
}

// SearchChunks runs a cosine-similarity query over chunks in the given
// collections. Similarity is 1 - cosine distance; only rows above threshold
// are returned, best match first, at most limit rows.
func (s *Store) SearchChunks(ctx context.Context, collectionIDs []string, embedding []float32, threshold float64, limit int) ([]Source, error) {
	if len(collectionIDs) == 0 {
		return nil, nil
	}

	vec := pgvector.NewVector(embedding)
	rows, err := s.db.Query(ctx,
		`SELECT c.document_id, d.title, c.content,
		        1 - (c.embedding <=> $1) AS similarity
		 FROM kb_chunks c
		 JOIN kb_documents d ON d.id = c.document_id
		 WHERE d.collection_id = ANY($2::uuid[])
		   AND 1 - (c.embedding <=> $1) > $3
		 ORDER BY c.embedding <=> $1
		 LIMIT $4`,
		vec, collectionIDs, threshold, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("searching chunks: %w", err)
	}
	defer rows.Close()

	var sources []Source
	for rows.Next() {
		var src Source
		if err := rows.Scan(&src.DocumentID, &src.Title, &src.Content, &src.Similarity); err != nil {
			return nil, fmt.Errorf("scanning search result: %w", err)
		}
		sources = append(sources, src)
	}
	return sources, rows.Err()
}
