// Package conversation manages persisted chats between contacts and
// personas: finding or creating the active conversation for a scope,
// appending messages, and driving the query engine over the recent history.
package conversation

import (
	"errors"
	"time"

	"github.com/silviahq/silvia/internal/knowledge"
)

// ErrNotFound is returned when a conversation does not exist or belongs to a
// different organization.
var ErrNotFound = errors.New("conversation not found")

// Message roles.
const (
	RoleUser      = "USER"
	RoleAssistant = "ASSISTANT"
	RoleSystem    = "SYSTEM"
)

// Conversation statuses.
const (
	StatusActive = "ACTIVE"
	StatusClosed = "CLOSED"
)

// historyLimit is how many trailing messages are loaded as context for a new
// turn.
const historyLimit = 10

// Conversation is one persisted chat. ChannelID, ContactID and SessionID are
// optional scope dimensions; together with OrgID and PersonaID they identify
// which active conversation a message belongs to.
type Conversation struct {
	ID        string    `json:"id"`
	OrgID     string    `json:"orgId"`
	PersonaID string    `json:"personaId"`
	ChannelID string    `json:"channelId,omitempty"`
	ContactID string    `json:"contactId,omitempty"`
	SessionID string    `json:"sessionId,omitempty"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Message is one turn in a conversation. Sources carries the knowledge
// chunks that grounded an assistant answer; it is empty for user messages.
type Message struct {
	ID             string             `json:"id"`
	ConversationID string             `json:"conversationId"`
	Role           string             `json:"role"`
	Content        string             `json:"content"`
	Sources        []knowledge.Source `json:"sources,omitempty"`
	CreatedAt      time.Time          `json:"createdAt"`
}

// Scope identifies which conversation a message belongs to. PersonaID is
// required; the rest narrow the match when set.
type Scope struct {
	OrgID     string
	PersonaID string
	ChannelID string
	ContactID string
	SessionID string
}

// Page is one page of a conversation listing.
type Page struct {
	Items      []Conversation `json:"items"`
	Total      int            `json:"total"`
	PageNum    int            `json:"page"`
	Limit      int            `json:"limit"`
	TotalPages int            `json:"totalPages"`
}
