package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/silviahq/silvia/internal/knowledge"
)

// DB is the subset of pgxpool.Pool the store depends on.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store persists conversations and messages in PostgreSQL.
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

const conversationColumns = `id, org_id, persona_id,
	COALESCE(channel_id::text, ''), COALESCE(contact_id::text, ''),
	COALESCE(session_id, ''), status, created_at, updated_at`

func scanConversation(row pgx.Row) (*Conversation, error) {
	c := &Conversation{}
	err := row.Scan(&c.ID, &c.OrgID, &c.PersonaID, &c.ChannelID, &c.ContactID,
		&c.SessionID, &c.Status, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// FindActive returns the active conversation matching the scope, or
// ErrNotFound. Unset optional scope fields do not narrow the match.
func (s *Store) FindActive(ctx context.Context, scope Scope) (*Conversation, error) {
	query := `SELECT ` + conversationColumns + `
		 FROM conversations
		 WHERE org_id = $1::uuid AND persona_id = $2::uuid AND status = $3`
	args := []any{scope.OrgID, scope.PersonaID, StatusActive}

	if scope.ChannelID != "" {
		args = append(args, scope.ChannelID)
		query += fmt.Sprintf(" AND channel_id = $%d::uuid", len(args))
	}
	if scope.ContactID != "" {
		args = append(args, scope.ContactID)
		query += fmt.Sprintf(" AND contact_id = $%d::uuid", len(args))
	}
	if scope.SessionID != "" {
		args = append(args, scope.SessionID)
		query += fmt.Sprintf(" AND session_id = $%d", len(args))
	}
	query += " ORDER BY updated_at DESC LIMIT 1"

	c, err := scanConversation(s.db.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("finding active conversation: %w", err)
	}
	return c, nil
}

// Create starts a new active conversation for the scope.
func (s *Store) Create(ctx context.Context, scope Scope) (*Conversation, error) {
	c := &Conversation{
		ID:        uuid.New().String(),
		OrgID:     scope.OrgID,
		PersonaID: scope.PersonaID,
		ChannelID: scope.ChannelID,
		ContactID: scope.ContactID,
		SessionID: scope.SessionID,
		Status:    StatusActive,
	}

	err := s.db.QueryRow(ctx,
		`INSERT INTO conversations
		   (id, org_id, persona_id, channel_id, contact_id, session_id, status)
		 VALUES ($1, $2, $3, NULLIF($4, '')::uuid, NULLIF($5, '')::uuid, NULLIF($6, ''), $7)
		 RETURNING created_at, updated_at`,
		c.ID, c.OrgID, c.PersonaID, c.ChannelID, c.ContactID, c.SessionID, c.Status,
	).Scan(&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("creating conversation: %w", err)
	}

	s.logger.Debug("conversation created", "id", c.ID, "persona_id", c.PersonaID)
	return c, nil
}

// Get loads a conversation scoped to orgID.
func (s *Store) Get(ctx context.Context, id, orgID string) (*Conversation, error) {
	c, err := scanConversation(s.db.QueryRow(ctx,
		`SELECT `+conversationColumns+`
		 FROM conversations
		 WHERE id = $1::uuid AND org_id = $2::uuid`,
		id, orgID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading conversation: %w", err)
	}
	return c, nil
}

// ListFilter narrows a conversation listing. Zero values do not filter.
type ListFilter struct {
	PersonaID string
	ChannelID string
	Status    string
	Page      int
	Limit     int
}

// List returns the organization's conversations, most recently updated
// first, paginated.
func (s *Store) List(ctx context.Context, orgID string, filter ListFilter) (*Page, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.Limit < 1 {
		filter.Limit = 20
	}

	where := []string{"org_id = $1::uuid"}
	args := []any{orgID}
	if filter.PersonaID != "" {
		args = append(args, filter.PersonaID)
		where = append(where, fmt.Sprintf("persona_id = $%d::uuid", len(args)))
	}
	if filter.ChannelID != "" {
		args = append(args, filter.ChannelID)
		where = append(where, fmt.Sprintf("channel_id = $%d::uuid", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	whereClause := strings.Join(where, " AND ")

	var total int
	err := s.db.QueryRow(ctx,
		"SELECT COUNT(*) FROM conversations WHERE "+whereClause, args...,
	).Scan(&total)
	if err != nil {
		return nil, fmt.Errorf("counting conversations: %w", err)
	}

	args = append(args, filter.Limit, (filter.Page-1)*filter.Limit)
	rows, err := s.db.Query(ctx,
		`SELECT `+conversationColumns+`
		 FROM conversations
		 WHERE `+whereClause+`
		 ORDER BY updated_at DESC
		 LIMIT $`+fmt.Sprint(len(args)-1)+` OFFSET $`+fmt.Sprint(len(args)),
		args...)
	if err != nil {
		return nil, fmt.Errorf("listing conversations: %w", err)
	}
	defer rows.Close()

	items := []Conversation{}
	for rows.Next() {
		var c Conversation
		if err := rows.Scan(&c.ID, &c.OrgID, &c.PersonaID, &c.ChannelID,
			&c.ContactID, &c.SessionID, &c.Status, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning conversation: %w", err)
		}
		items = append(items, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating conversations: %w", err)
	}

	totalPages := (total + filter.Limit - 1) / filter.Limit
	return &Page{
		Items:      items,
		Total:      total,
		PageNum:    filter.Page,
		Limit:      filter.Limit,
		TotalPages: totalPages,
	}, nil
}

// AppendMessage persists one turn. Sources may be nil.
func (s *Store) AppendMessage(ctx context.Context, conversationID, role, content string, sources []knowledge.Source) (*Message, error) {
	m := &Message{
		ID:             uuid.New().String(),
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		Sources:        sources,
	}

	var rawSources []byte
	if len(sources) > 0 {
		var err error
		rawSources, err = json.Marshal(sources)
		if err != nil {
			return nil, fmt.Errorf("encoding message sources: %w", err)
		}
	}

	err := s.db.QueryRow(ctx,
		`INSERT INTO messages (id, conversation_id, role, content, sources)
		 VALUES ($1, $2::uuid, $3, $4, $5)
		 RETURNING created_at`,
		m.ID, conversationID, role, content, rawSources,
	).Scan(&m.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("appending message: %w", err)
	}
	return m, nil
}

// RecentMessages returns the conversation's last limit messages in
// chronological order.
func (s *Store) RecentMessages(ctx context.Context, conversationID string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = historyLimit
	}

	rows, err := s.db.Query(ctx,
		`SELECT id, conversation_id, role, content, sources, created_at
		 FROM messages
		 WHERE conversation_id = $1::uuid
		 ORDER BY created_at DESC
		 LIMIT $2`,
		conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("loading recent messages: %w", err)
	}
	defer rows.Close()

	messages, err := scanMessages(rows)
	if err != nil {
		return nil, err
	}

	// Rows come newest-first; flip to chronological.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// Messages returns the conversation's full transcript in chronological order.
func (s *Store) Messages(ctx context.Context, conversationID string) ([]Message, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, conversation_id, role, content, sources, created_at
		 FROM messages
		 WHERE conversation_id = $1::uuid
		 ORDER BY created_at ASC`,
		conversationID)
	if err != nil {
		return nil, fmt.Errorf("loading messages: %w", err)
	}
	defer rows.Close()

	return scanMessages(rows)
}

func scanMessages(rows pgx.Rows) ([]Message, error) {
	var messages []Message
	for rows.Next() {
		var (
			m          Message
			rawSources []byte
		)
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content,
			&rawSources, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		if len(rawSources) > 0 {
			if err := json.Unmarshal(rawSources, &m.Sources); err != nil {
				return nil, fmt.Errorf("decoding message sources: %w", err)
			}
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating messages: %w", err)
	}
	return messages, nil
}

// Touch bumps the conversation's updated_at so listings sort it first.
func (s *Store) Touch(ctx context.Context, id string) error {
	_, err := s.db.Exec(ctx,
		`UPDATE conversations SET updated_at = now() WHERE id = $1::uuid`, id)
	if err != nil {
		return fmt.Errorf("touching conversation: %w", err)
	}
	return nil
}

// Close marks the conversation closed; future GetOrCreate calls for the same
// scope start a fresh one.
func (s *Store) Close(ctx context.Context, id, orgID string) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE conversations
		 SET status = $3, updated_at = now()
		 WHERE id = $1::uuid AND org_id = $2::uuid`,
		id, orgID, StatusClosed)
	if err != nil {
		return fmt.Errorf("closing conversation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
