// Package api exposes the HTTP surface: conversation and persona management,
// knowledge ingestion and the message-processing endpoint. Authentication and
// channel webhooks live outside this service; callers identify their
// organization via the X-Org-ID header.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/silviahq/silvia/internal/conversation"
	"github.com/silviahq/silvia/internal/knowledge"
	"github.com/silviahq/silvia/internal/persona"
	"github.com/silviahq/silvia/internal/rag"
)

// ConversationManager is the slice of conversation.Manager the handlers use.
type ConversationManager interface {
	GetOrCreate(ctx context.Context, scope conversation.Scope) (*conversation.Conversation, error)
	ProcessMessage(ctx context.Context, conversationID, orgID, userMessage string) (*conversation.Reply, error)
	Get(ctx context.Context, id, orgID string) (*conversation.Conversation, []conversation.Message, error)
	List(ctx context.Context, orgID string, filter conversation.ListFilter) (*conversation.Page, error)
	Close(ctx context.Context, id, orgID string) error
	TestPersona(ctx context.Context, personaID, orgID, question string) (*rag.Result, error)
}

// PersonaStore is the slice of persona.Store the handlers use.
type PersonaStore interface {
	Create(ctx context.Context, p *persona.Persona) (*persona.Persona, error)
	GetWithBindings(ctx context.Context, id, orgID string) (*persona.Persona, error)
	List(ctx context.Context, orgID string) ([]persona.Persona, error)
	Update(ctx context.Context, p *persona.Persona) error
	Delete(ctx context.Context, id, orgID string) error
	AttachCollection(ctx context.Context, personaID, collectionID string) error
	DetachCollection(ctx context.Context, personaID, collectionID string) error
	UpsertTool(ctx context.Context, personaID string, binding persona.ToolBinding) error
}

// KnowledgeService is the slice of knowledge.Service the handlers use.
type KnowledgeService interface {
	CreateCollection(ctx context.Context, orgID, name, description string) (*knowledge.Collection, error)
	ListCollections(ctx context.Context, orgID string) ([]knowledge.Collection, error)
	DeleteCollection(ctx context.Context, id, orgID string) error
	Ingest(ctx context.Context, collectionID, orgID, title, content, source string, metadata map[string]any) (*knowledge.IngestResult, error)
	ListDocuments(ctx context.Context, collectionID, orgID string) ([]knowledge.Document, error)
	DeleteDocument(ctx context.Context, id, orgID string) error
}

// Config collects the server's dependencies.
type Config struct {
	Logger        *slog.Logger
	Conversations ConversationManager
	Personas      PersonaStore
	Knowledge     KnowledgeService
}

// Server routes API requests to the domain services.
type Server struct {
	handler http.Handler
	logger  *slog.Logger

	conversations ConversationManager
	personas      PersonaStore
	knowledge     KnowledgeService
}

// NewServer creates a Server with all routes configured.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Conversations == nil || cfg.Personas == nil || cfg.Knowledge == nil {
		return nil, errors.New("conversations, personas and knowledge are required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	s := &Server{
		logger:        cfg.Logger,
		conversations: cfg.Conversations,
		personas:      cfg.Personas,
		knowledge:     cfg.Knowledge,
	}

	mux := http.NewServeMux()

	// Probes bypass the org middleware.
	mux.HandleFunc("GET /health", health)
	mux.HandleFunc("GET /ready", health)

	apiMux := http.NewServeMux()

	apiMux.HandleFunc("GET /api/conversations", s.listConversations)
	apiMux.HandleFunc("POST /api/conversations", s.getOrCreateConversation)
	apiMux.HandleFunc("GET /api/conversations/{id}", s.getConversation)
	apiMux.HandleFunc("POST /api/conversations/{id}/messages", s.processMessage)
	apiMux.HandleFunc("POST /api/conversations/{id}/close", s.closeConversation)

	apiMux.HandleFunc("GET /api/personas", s.listPersonas)
	apiMux.HandleFunc("POST /api/personas", s.createPersona)
	apiMux.HandleFunc("GET /api/personas/{id}", s.getPersona)
	apiMux.HandleFunc("PUT /api/personas/{id}", s.updatePersona)
	apiMux.HandleFunc("DELETE /api/personas/{id}", s.deletePersona)
	apiMux.HandleFunc("POST /api/personas/{id}/test", s.testPersona)
	apiMux.HandleFunc("POST /api/personas/{id}/collections", s.attachCollection)
	apiMux.HandleFunc("DELETE /api/personas/{id}/collections/{collectionId}", s.detachCollection)
	apiMux.HandleFunc("POST /api/personas/{id}/tools", s.upsertTool)

	apiMux.HandleFunc("GET /api/knowledge/collections", s.listCollections)
	apiMux.HandleFunc("POST /api/knowledge/collections", s.createCollection)
	apiMux.HandleFunc("DELETE /api/knowledge/collections/{id}", s.deleteCollection)
	apiMux.HandleFunc("GET /api/knowledge/collections/{id}/documents", s.listDocuments)
	apiMux.HandleFunc("POST /api/knowledge/collections/{id}/documents", s.ingestDocument)
	apiMux.HandleFunc("DELETE /api/knowledge/documents/{id}", s.deleteDocument)

	mux.Handle("/api/", requireOrg(apiMux))

	s.handler = logRequests(cfg.Logger)(mux)
	return s, nil
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func health(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
