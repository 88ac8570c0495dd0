package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/silviahq/silvia/internal/knowledge"
	"github.com/silviahq/silvia/internal/rag"
)

// Storage defines the persistence operations the manager depends on.
// *Store satisfies this; tests substitute a stub.
type Storage interface {
	FindActive(ctx context.Context, scope Scope) (*Conversation, error)
	Create(ctx context.Context, scope Scope) (*Conversation, error)
	Get(ctx context.Context, id, orgID string) (*Conversation, error)
	List(ctx context.Context, orgID string, filter ListFilter) (*Page, error)
	AppendMessage(ctx context.Context, conversationID, role, content string, sources []knowledge.Source) (*Message, error)
	RecentMessages(ctx context.Context, conversationID string, limit int) ([]Message, error)
	Messages(ctx context.Context, conversationID string) ([]Message, error)
	Touch(ctx context.Context, id string) error
	Close(ctx context.Context, id, orgID string) error
}

// QueryEngine answers a question as a persona. *rag.Engine satisfies this.
type QueryEngine interface {
	Query(ctx context.Context, question, personaID, orgID string, history []rag.HistoryMessage) (*rag.Result, error)
}

// Reply is the outcome of processing one user message.
type Reply struct {
	Message *Message           `json:"message"`
	Sources []knowledge.Source `json:"sources"`
}

// Manager coordinates conversation persistence with the query engine.
type Manager struct {
	store  Storage
	engine QueryEngine
	logger *slog.Logger
}

// NewManager creates a Manager. A nil logger falls back to slog.Default().
func NewManager(store Storage, engine QueryEngine, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{store: store, engine: engine, logger: logger}
}

// GetOrCreate returns the scope's active conversation, creating one when none
// exists. Two racing callers may both create; the messages land in separate
// conversations rather than being lost, and FindActive picks the most
// recently updated one afterwards.
func (m *Manager) GetOrCreate(ctx context.Context, scope Scope) (*Conversation, error) {
	conv, err := m.store.FindActive(ctx, scope)
	if err == nil {
		return conv, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	return m.store.Create(ctx, scope)
}

// ProcessMessage runs one turn: it persists the user message, queries the
// engine with the conversation's recent history, and persists the assistant
// answer with its sources.
//
// The history window is captured before the user message is saved, so the
// question itself appears once in the prompt, not twice.
func (m *Manager) ProcessMessage(ctx context.Context, conversationID, orgID, userMessage string) (*Reply, error) {
	conv, err := m.store.Get(ctx, conversationID, orgID)
	if err != nil {
		return nil, err
	}

	recent, err := m.store.RecentMessages(ctx, conv.ID, historyLimit)
	if err != nil {
		return nil, err
	}

	if _, err := m.store.AppendMessage(ctx, conv.ID, RoleUser, userMessage, nil); err != nil {
		return nil, err
	}

	history := make([]rag.HistoryMessage, 0, len(recent))
	for _, msg := range recent {
		history = append(history, rag.HistoryMessage{Role: msg.Role, Content: msg.Content})
	}

	result, err := m.engine.Query(ctx, userMessage, conv.PersonaID, orgID, history)
	if err != nil {
		return nil, fmt.Errorf("querying engine: %w", err)
	}

	answer, err := m.store.AppendMessage(ctx, conv.ID, RoleAssistant, result.Answer, result.Sources)
	if err != nil {
		return nil, err
	}

	if err := m.store.Touch(ctx, conv.ID); err != nil {
		// The reply already exists; a stale ordering is not worth failing
		// the turn.
		m.logger.Warn("failed to touch conversation", "id", conv.ID, "error", err)
	}

	m.logger.Debug("message processed",
		"conversation_id", conv.ID, "sources", len(result.Sources))
	return &Reply{Message: answer, Sources: result.Sources}, nil
}

// TestPersona runs a one-shot query with no conversation, no history and no
// persistence. Used from persona configuration screens.
func (m *Manager) TestPersona(ctx context.Context, personaID, orgID, question string) (*rag.Result, error) {
	return m.engine.Query(ctx, question, personaID, orgID, nil)
}

// Get loads a conversation with its full transcript.
func (m *Manager) Get(ctx context.Context, id, orgID string) (*Conversation, []Message, error) {
	conv, err := m.store.Get(ctx, id, orgID)
	if err != nil {
		return nil, nil, err
	}
	messages, err := m.store.Messages(ctx, conv.ID)
	if err != nil {
		return nil, nil, err
	}
	return conv, messages, nil
}

// List returns a page of the organization's conversations.
func (m *Manager) List(ctx context.Context, orgID string, filter ListFilter) (*Page, error) {
	return m.store.List(ctx, orgID, filter)
}

// Close marks a conversation closed.
func (m *Manager) Close(ctx context.Context, id, orgID string) error {
	return m.store.Close(ctx, id, orgID)
}
