package api

import (
	"net/http"
	"strings"
)

type createCollectionRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

func (s *Server) createCollection(w http.ResponseWriter, r *http.Request) {
	var req createCollectionRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "corpo do pedido invalido")
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		respondError(w, http.StatusBadRequest, "name e obrigatorio")
		return
	}

	col, err := s.knowledge.CreateCollection(r.Context(), orgID(r.Context()), req.Name, req.Description)
	if err != nil {
		respondFromError(w, s.logger, err)
		return
	}
	respondData(w, http.StatusCreated, col)
}

func (s *Server) listCollections(w http.ResponseWriter, r *http.Request) {
	cols, err := s.knowledge.ListCollections(r.Context(), orgID(r.Context()))
	if err != nil {
		respondFromError(w, s.logger, err)
		return
	}
	respondData(w, http.StatusOK, cols)
}

func (s *Server) deleteCollection(w http.ResponseWriter, r *http.Request) {
	if err := s.knowledge.DeleteCollection(r.Context(), r.PathValue("id"), orgID(r.Context())); err != nil {
		respondFromError(w, s.logger, err)
		return
	}
	respondMessage(w, "Colecao eliminada")
}

type ingestDocumentRequest struct {
	Title    string         `json:"title"`
	Content  string         `json:"content"`
	Source   string         `json:"source,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

func (s *Server) ingestDocument(w http.ResponseWriter, r *http.Request) {
	var req ingestDocumentRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "corpo do pedido invalido")
		return
	}
	if strings.TrimSpace(req.Title) == "" || strings.TrimSpace(req.Content) == "" {
		respondError(w, http.StatusBadRequest, "title e content sao obrigatorios")
		return
	}

	result, err := s.knowledge.Ingest(r.Context(), r.PathValue("id"), orgID(r.Context()),
		req.Title, req.Content, req.Source, req.Metadata)
	if err != nil {
		respondFromError(w, s.logger, err)
		return
	}
	respondData(w, http.StatusCreated, result)
}

func (s *Server) listDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := s.knowledge.ListDocuments(r.Context(), r.PathValue("id"), orgID(r.Context()))
	if err != nil {
		respondFromError(w, s.logger, err)
		return
	}
	respondData(w, http.StatusOK, docs)
}

func (s *Server) deleteDocument(w http.ResponseWriter, r *http.Request) {
	if err := s.knowledge.DeleteDocument(r.Context(), r.PathValue("id"), orgID(r.Context())); err != nil {
		respondFromError(w, s.logger, err)
		return
	}
	respondMessage(w, "Documento eliminado")
}
