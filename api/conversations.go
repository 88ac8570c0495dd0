package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/silviahq/silvia/internal/conversation"
)

type getOrCreateRequest struct {
	PersonaID string `json:"personaId"`
	ChannelID string `json:"channelId,omitempty"`
	ContactID string `json:"contactId,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
}

func (s *Server) getOrCreateConversation(w http.ResponseWriter, r *http.Request) {
	var req getOrCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "corpo do pedido invalido")
		return
	}
	if req.PersonaID == "" {
		respondError(w, http.StatusBadRequest, "personaId e obrigatorio")
		return
	}

	conv, err := s.conversations.GetOrCreate(r.Context(), conversation.Scope{
		OrgID:     orgID(r.Context()),
		PersonaID: req.PersonaID,
		ChannelID: req.ChannelID,
		ContactID: req.ContactID,
		SessionID: req.SessionID,
	})
	if err != nil {
		respondFromError(w, s.logger, err)
		return
	}
	respondData(w, http.StatusOK, conv)
}

func (s *Server) listConversations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	limit, _ := strconv.Atoi(q.Get("limit"))

	result, err := s.conversations.List(r.Context(), orgID(r.Context()), conversation.ListFilter{
		PersonaID: q.Get("personaId"),
		ChannelID: q.Get("channelId"),
		Status:    q.Get("status"),
		Page:      page,
		Limit:     limit,
	})
	if err != nil {
		respondFromError(w, s.logger, err)
		return
	}
	respondData(w, http.StatusOK, result)
}

func (s *Server) getConversation(w http.ResponseWriter, r *http.Request) {
	conv, messages, err := s.conversations.Get(r.Context(), r.PathValue("id"), orgID(r.Context()))
	if err != nil {
		respondFromError(w, s.logger, err)
		return
	}
	respondData(w, http.StatusOK, map[string]any{
		"conversation": conv,
		"messages":     messages,
	})
}

type processMessageRequest struct {
	Content string `json:"content"`
}

func (s *Server) processMessage(w http.ResponseWriter, r *http.Request) {
	var req processMessageRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "corpo do pedido invalido")
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		respondError(w, http.StatusBadRequest, "content e obrigatorio")
		return
	}

	reply, err := s.conversations.ProcessMessage(r.Context(),
		r.PathValue("id"), orgID(r.Context()), req.Content)
	if err != nil {
		respondFromError(w, s.logger, err)
		return
	}
	respondData(w, http.StatusOK, reply)
}

func (s *Server) closeConversation(w http.ResponseWriter, r *http.Request) {
	if err := s.conversations.Close(r.Context(), r.PathValue("id"), orgID(r.Context())); err != nil {
		respondFromError(w, s.logger, err)
		return
	}
	respondMessage(w, "Conversa fechada")
}
