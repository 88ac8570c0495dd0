package knowledge

import (
	"errors"
	"time"
)

// Sentinel errors for knowledge operations.
var (
	// ErrCollectionNotFound indicates the collection does not exist or
	// belongs to another organization.
	ErrCollectionNotFound = errors.New("collection not found")

	// ErrDocumentNotFound indicates the document does not exist or belongs
	// to another organization.
	ErrDocumentNotFound = errors.New("document not found")
)

// Collection is an organization-scoped group of documents.
type Collection struct {
	ID          string
	OrgID       string
	Name        string
	Description string
	CreatedAt   time.Time

	// DocumentCount is populated on list queries.
	DocumentCount int
}

// Document holds the full original text of an ingested document.
// Chunks derived from it are immutable; updating a document means deleting
// it and ingesting again.
type Document struct {
	ID           string
	CollectionID string
	Title        string
	Content      string
	Source       string
	Metadata     map[string]any
	CreatedAt    time.Time

	// ChunkCount is populated on list queries.
	ChunkCount int
}

// Source is a retrieved chunk surfaced as a citation: the matching chunk's
// content together with its parent document's identity and similarity score.
// Multiple chunks of the same document may appear as independent sources.
type Source struct {
	DocumentID string  `json:"documentId"`
	Title      string  `json:"title"`
	Content    string  `json:"content"`
	Similarity float64 `json:"similarity"`
}

// IngestResult reports the outcome of a document ingestion.
type IngestResult struct {
	DocumentID string `json:"documentId"`
	ChunkCount int    `json:"chunks"`
}
