package api

import (
	"net/http"
	"strings"

	"github.com/silviahq/silvia/internal/persona"
	"github.com/silviahq/silvia/internal/tools"
)

type personaRequest struct {
	Name         string  `json:"name"`
	Description  string  `json:"description,omitempty"`
	SystemPrompt string  `json:"systemPrompt"`
	Model        string  `json:"model,omitempty"`
	Temperature  float64 `json:"temperature,omitempty"`
	VoiceEnabled bool    `json:"voiceEnabled,omitempty"`
	VoiceUUID    string  `json:"voiceUuid,omitempty"`
	IsActive     bool    `json:"isActive"`
}

func (s *Server) createPersona(w http.ResponseWriter, r *http.Request) {
	var req personaRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "corpo do pedido invalido")
		return
	}
	if strings.TrimSpace(req.Name) == "" || strings.TrimSpace(req.SystemPrompt) == "" {
		respondError(w, http.StatusBadRequest, "name e systemPrompt sao obrigatorios")
		return
	}

	created, err := s.personas.Create(r.Context(), &persona.Persona{
		OrgID:        orgID(r.Context()),
		Name:         req.Name,
		Description:  req.Description,
		SystemPrompt: req.SystemPrompt,
		Model:        req.Model,
		Temperature:  req.Temperature,
		VoiceEnabled: req.VoiceEnabled,
		VoiceUUID:    req.VoiceUUID,
		IsActive:     true,
	})
	if err != nil {
		respondFromError(w, s.logger, err)
		return
	}
	respondData(w, http.StatusCreated, created)
}

func (s *Server) listPersonas(w http.ResponseWriter, r *http.Request) {
	personas, err := s.personas.List(r.Context(), orgID(r.Context()))
	if err != nil {
		respondFromError(w, s.logger, err)
		return
	}
	respondData(w, http.StatusOK, personas)
}

func (s *Server) getPersona(w http.ResponseWriter, r *http.Request) {
	p, err := s.personas.GetWithBindings(r.Context(), r.PathValue("id"), orgID(r.Context()))
	if err != nil {
		respondFromError(w, s.logger, err)
		return
	}
	respondData(w, http.StatusOK, p)
}

func (s *Server) updatePersona(w http.ResponseWriter, r *http.Request) {
	var req personaRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "corpo do pedido invalido")
		return
	}

	p := &persona.Persona{
		ID:           r.PathValue("id"),
		OrgID:        orgID(r.Context()),
		Name:         req.Name,
		Description:  req.Description,
		SystemPrompt: req.SystemPrompt,
		Model:        req.Model,
		Temperature:  req.Temperature,
		VoiceEnabled: req.VoiceEnabled,
		VoiceUUID:    req.VoiceUUID,
		IsActive:     req.IsActive,
	}
	if err := s.personas.Update(r.Context(), p); err != nil {
		respondFromError(w, s.logger, err)
		return
	}
	respondData(w, http.StatusOK, p)
}

func (s *Server) deletePersona(w http.ResponseWriter, r *http.Request) {
	if err := s.personas.Delete(r.Context(), r.PathValue("id"), orgID(r.Context())); err != nil {
		respondFromError(w, s.logger, err)
		return
	}
	respondMessage(w, "Persona eliminada")
}

type testPersonaRequest struct {
	Question string `json:"question"`
}

func (s *Server) testPersona(w http.ResponseWriter, r *http.Request) {
	var req testPersonaRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "corpo do pedido invalido")
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		respondError(w, http.StatusBadRequest, "question e obrigatorio")
		return
	}

	result, err := s.conversations.TestPersona(r.Context(),
		r.PathValue("id"), orgID(r.Context()), req.Question)
	if err != nil {
		respondFromError(w, s.logger, err)
		return
	}
	respondData(w, http.StatusOK, result)
}

type attachCollectionRequest struct {
	CollectionID string `json:"collectionId"`
}

func (s *Server) attachCollection(w http.ResponseWriter, r *http.Request) {
	var req attachCollectionRequest
	if err := decodeJSON(r, &req); err != nil || req.CollectionID == "" {
		respondError(w, http.StatusBadRequest, "collectionId e obrigatorio")
		return
	}

	// Ownership check before linking: both sides must belong to the org.
	if _, err := s.personas.GetWithBindings(r.Context(), r.PathValue("id"), orgID(r.Context())); err != nil {
		respondFromError(w, s.logger, err)
		return
	}
	if err := s.personas.AttachCollection(r.Context(), r.PathValue("id"), req.CollectionID); err != nil {
		respondFromError(w, s.logger, err)
		return
	}
	respondMessage(w, "Colecao associada a persona")
}

func (s *Server) detachCollection(w http.ResponseWriter, r *http.Request) {
	if _, err := s.personas.GetWithBindings(r.Context(), r.PathValue("id"), orgID(r.Context())); err != nil {
		respondFromError(w, s.logger, err)
		return
	}
	if err := s.personas.DetachCollection(r.Context(), r.PathValue("id"), r.PathValue("collectionId")); err != nil {
		respondFromError(w, s.logger, err)
		return
	}
	respondMessage(w, "Colecao removida da persona")
}

type upsertToolRequest struct {
	ToolType  string         `json:"toolType"`
	Config    map[string]any `json:"config,omitempty"`
	IsEnabled bool           `json:"isEnabled"`
}

func (s *Server) upsertTool(w http.ResponseWriter, r *http.Request) {
	var req upsertToolRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "corpo do pedido invalido")
		return
	}

	toolType := tools.Type(req.ToolType)
	if !toolType.Valid() {
		respondError(w, http.StatusBadRequest, "toolType desconhecido")
		return
	}

	if _, err := s.personas.GetWithBindings(r.Context(), r.PathValue("id"), orgID(r.Context())); err != nil {
		respondFromError(w, s.logger, err)
		return
	}
	err := s.personas.UpsertTool(r.Context(), r.PathValue("id"), persona.ToolBinding{
		ToolType:  toolType,
		Config:    req.Config,
		IsEnabled: req.IsEnabled,
	})
	if err != nil {
		respondFromError(w, s.logger, err)
		return
	}
	respondMessage(w, "Ferramenta configurada")
}
