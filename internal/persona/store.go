package persona

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/silviahq/silvia/internal/tools"
)

// DB is the subset of pgxpool.Pool the store depends on.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store persists personas and their collection/tool bindings in PostgreSQL.
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

// Create inserts a persona. Empty model and zero temperature fall back to the
// defaults; temperature is clamped to the accepted range.
func (s *Store) Create(ctx context.Context, p *Persona) (*Persona, error) {
	if p.Model == "" {
		p.Model = DefaultModel
	}
	if p.Temperature == 0 {
		p.Temperature = DefaultTemperature
	}
	p.Temperature = clampTemperature(p.Temperature)
	p.ID = uuid.New().String()

	err := s.db.QueryRow(ctx,
		`INSERT INTO personas
		   (id, org_id, name, description, system_prompt, model, temperature,
		    voice_enabled, voice_uuid, is_active)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULLIF($9, ''), $10)
		 RETURNING created_at, updated_at`,
		p.ID, p.OrgID, p.Name, p.Description, p.SystemPrompt, p.Model,
		p.Temperature, p.VoiceEnabled, p.VoiceUUID, p.IsActive,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("creating persona: %w", err)
	}

	s.logger.Debug("persona created", "id", p.ID, "org_id", p.OrgID)
	return p, nil
}

// Get loads a persona row scoped to orgID, without bindings.
func (s *Store) Get(ctx context.Context, id, orgID string) (*Persona, error) {
	p := &Persona{}

	err := s.db.QueryRow(ctx,
		`SELECT id, org_id, name, COALESCE(description, ''), system_prompt,
		        model, temperature, voice_enabled, COALESCE(voice_uuid, ''),
		        is_active, created_at, updated_at
		 FROM personas
		 WHERE id = $1::uuid AND org_id = $2::uuid`,
		id, orgID,
	).Scan(&p.ID, &p.OrgID, &p.Name, &p.Description, &p.SystemPrompt,
		&p.Model, &p.Temperature, &p.VoiceEnabled, &p.VoiceUUID, &p.IsActive,
		&p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading persona: %w", err)
	}
	return p, nil
}

// GetWithBindings loads a persona together with its attached collection IDs
// and enabled tool bindings. This is the view the query engine consumes.
func (s *Store) GetWithBindings(ctx context.Context, id, orgID string) (*Persona, error) {
	p, err := s.Get(ctx, id, orgID)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.Query(ctx,
		`SELECT collection_id
		 FROM persona_collections
		 WHERE persona_id = $1::uuid
		 ORDER BY created_at`,
		p.ID)
	if err != nil {
		return nil, fmt.Errorf("loading persona collections: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var collectionID string
		if err := rows.Scan(&collectionID); err != nil {
			return nil, fmt.Errorf("scanning collection binding: %w", err)
		}
		p.CollectionIDs = append(p.CollectionIDs, collectionID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating collection bindings: %w", err)
	}

	toolRows, err := s.db.Query(ctx,
		`SELECT tool_type, config, is_enabled
		 FROM persona_tools
		 WHERE persona_id = $1::uuid AND is_enabled
		 ORDER BY created_at`,
		p.ID)
	if err != nil {
		return nil, fmt.Errorf("loading persona tools: %w", err)
	}
	defer toolRows.Close()

	for toolRows.Next() {
		var (
			toolType  string
			rawConfig []byte
			isEnabled bool
		)
		if err := toolRows.Scan(&toolType, &rawConfig, &isEnabled); err != nil {
			return nil, fmt.Errorf("scanning tool binding: %w", err)
		}

		binding := ToolBinding{ToolType: tools.Type(toolType), IsEnabled: isEnabled}
		if len(rawConfig) > 0 {
			// Malformed stored config disables the binding's extras, not
			// the persona.
			if err := json.Unmarshal(rawConfig, &binding.Config); err != nil {
				s.logger.Warn("ignoring malformed tool config",
					"persona_id", p.ID, "tool_type", toolType, "error", err)
			}
		}
		p.Tools = append(p.Tools, binding)
	}
	if err := toolRows.Err(); err != nil {
		return nil, fmt.Errorf("iterating tool bindings: %w", err)
	}

	return p, nil
}

// List returns the organization's personas, newest first, without bindings.
func (s *Store) List(ctx context.Context, orgID string) ([]Persona, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, org_id, name, COALESCE(description, ''), system_prompt,
		        model, temperature, voice_enabled, COALESCE(voice_uuid, ''),
		        is_active, created_at, updated_at
		 FROM personas
		 WHERE org_id = $1::uuid
		 ORDER BY created_at DESC`,
		orgID)
	if err != nil {
		return nil, fmt.Errorf("listing personas: %w", err)
	}
	defer rows.Close()

	var personas []Persona
	for rows.Next() {
		var p Persona
		if err := rows.Scan(&p.ID, &p.OrgID, &p.Name, &p.Description,
			&p.SystemPrompt, &p.Model, &p.Temperature, &p.VoiceEnabled,
			&p.VoiceUUID, &p.IsActive, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning persona: %w", err)
		}
		personas = append(personas, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating personas: %w", err)
	}
	return personas, nil
}

// Update rewrites the persona's editable fields and bumps updated_at.
func (s *Store) Update(ctx context.Context, p *Persona) error {
	p.Temperature = clampTemperature(p.Temperature)

	tag, err := s.db.Exec(ctx,
		`UPDATE personas
		 SET name = $3, description = $4, system_prompt = $5, model = $6,
		     temperature = $7, voice_enabled = $8, voice_uuid = NULLIF($9, ''),
		     is_active = $10, updated_at = now()
		 WHERE id = $1::uuid AND org_id = $2::uuid`,
		p.ID, p.OrgID, p.Name, p.Description, p.SystemPrompt, p.Model,
		p.Temperature, p.VoiceEnabled, p.VoiceUUID, p.IsActive)
	if err != nil {
		return fmt.Errorf("updating persona: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes the persona; bindings and conversations cascade.
func (s *Store) Delete(ctx context.Context, id, orgID string) error {
	tag, err := s.db.Exec(ctx,
		`DELETE FROM personas WHERE id = $1::uuid AND org_id = $2::uuid`,
		id, orgID)
	if err != nil {
		return fmt.Errorf("deleting persona: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	s.logger.Debug("persona deleted", "id", id, "org_id", orgID)
	return nil
}

// AttachCollection links a knowledge collection to the persona. Attaching an
// already-linked collection is a no-op.
func (s *Store) AttachCollection(ctx context.Context, personaID, collectionID string) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO persona_collections (persona_id, collection_id)
		 VALUES ($1::uuid, $2::uuid)
		 ON CONFLICT (persona_id, collection_id) DO NOTHING`,
		personaID, collectionID)
	if err != nil {
		return fmt.Errorf("attaching collection: %w", err)
	}
	return nil
}

// DetachCollection unlinks a knowledge collection from the persona.
func (s *Store) DetachCollection(ctx context.Context, personaID, collectionID string) error {
	_, err := s.db.Exec(ctx,
		`DELETE FROM persona_collections
		 WHERE persona_id = $1::uuid AND collection_id = $2::uuid`,
		personaID, collectionID)
	if err != nil {
		return fmt.Errorf("detaching collection: %w", err)
	}
	return nil
}

// UpsertTool creates or replaces the persona's binding for a tool type.
func (s *Store) UpsertTool(ctx context.Context, personaID string, binding ToolBinding) error {
	if !binding.ToolType.Valid() {
		return fmt.Errorf("unknown tool type %q", binding.ToolType)
	}

	var rawConfig []byte
	if binding.Config != nil {
		var err error
		rawConfig, err = json.Marshal(binding.Config)
		if err != nil {
			return fmt.Errorf("encoding tool config: %w", err)
		}
	}

	_, err := s.db.Exec(ctx,
		`INSERT INTO persona_tools (id, persona_id, tool_type, config, is_enabled)
		 VALUES ($1, $2::uuid, $3, $4, $5)
		 ON CONFLICT (persona_id, tool_type)
		 DO UPDATE SET config = EXCLUDED.config, is_enabled = EXCLUDED.is_enabled`,
		uuid.New().String(), personaID, string(binding.ToolType), rawConfig, binding.IsEnabled)
	if err != nil {
		return fmt.Errorf("upserting tool binding: %w", err)
	}
	return nil
}
