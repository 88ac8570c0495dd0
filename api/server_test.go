package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/silviahq/silvia/internal/conversation"
	"github.com/silviahq/silvia/internal/knowledge"
	"github.com/silviahq/silvia/internal/persona"
	"github.com/silviahq/silvia/internal/rag"
	"github.com/silviahq/silvia/internal/testutil"
)

const testOrgID = "11111111-1111-1111-1111-111111111111"

type stubConversations struct {
	reply    *conversation.Reply
	err      error
	lastOrg  string
	lastConv string
}

func (s *stubConversations) GetOrCreate(ctx context.Context, scope conversation.Scope) (*conversation.Conversation, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &conversation.Conversation{ID: "conv-1", OrgID: scope.OrgID, PersonaID: scope.PersonaID, Status: conversation.StatusActive}, nil
}

func (s *stubConversations) ProcessMessage(ctx context.Context, conversationID, orgID, userMessage string) (*conversation.Reply, error) {
	s.lastConv, s.lastOrg = conversationID, orgID
	if s.err != nil {
		return nil, s.err
	}
	return s.reply, nil
}

func (s *stubConversations) Get(ctx context.Context, id, orgID string) (*conversation.Conversation, []conversation.Message, error) {
	if s.err != nil {
		return nil, nil, s.err
	}
	return &conversation.Conversation{ID: id, OrgID: orgID}, nil, nil
}

func (s *stubConversations) List(ctx context.Context, orgID string, filter conversation.ListFilter) (*conversation.Page, error) {
	return &conversation.Page{}, nil
}

func (s *stubConversations) Close(ctx context.Context, id, orgID string) error {
	return s.err
}

func (s *stubConversations) TestPersona(ctx context.Context, personaID, orgID, question string) (*rag.Result, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &rag.Result{Answer: "resposta de teste"}, nil
}

type stubPersonas struct{ err error }

func (s *stubPersonas) Create(ctx context.Context, p *persona.Persona) (*persona.Persona, error) {
	if s.err != nil {
		return nil, s.err
	}
	p.ID = "persona-1"
	return p, nil
}

func (s *stubPersonas) GetWithBindings(ctx context.Context, id, orgID string) (*persona.Persona, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &persona.Persona{ID: id, OrgID: orgID}, nil
}

func (s *stubPersonas) List(ctx context.Context, orgID string) ([]persona.Persona, error) {
	return nil, s.err
}

func (s *stubPersonas) Update(ctx context.Context, p *persona.Persona) error   { return s.err }
func (s *stubPersonas) Delete(ctx context.Context, id, orgID string) error     { return s.err }
func (s *stubPersonas) AttachCollection(ctx context.Context, p, c string) error { return s.err }
func (s *stubPersonas) DetachCollection(ctx context.Context, p, c string) error { return s.err }
func (s *stubPersonas) UpsertTool(ctx context.Context, personaID string, binding persona.ToolBinding) error {
	return s.err
}

type stubKnowledge struct{ err error }

func (s *stubKnowledge) CreateCollection(ctx context.Context, orgID, name, description string) (*knowledge.Collection, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &knowledge.Collection{ID: "col-1", OrgID: orgID, Name: name}, nil
}

func (s *stubKnowledge) ListCollections(ctx context.Context, orgID string) ([]knowledge.Collection, error) {
	return nil, s.err
}

func (s *stubKnowledge) DeleteCollection(ctx context.Context, id, orgID string) error { return s.err }

func (s *stubKnowledge) Ingest(ctx context.Context, collectionID, orgID, title, content, source string, metadata map[string]any) (*knowledge.IngestResult, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &knowledge.IngestResult{DocumentID: "doc-1", ChunkCount: 2}, nil
}

func (s *stubKnowledge) ListDocuments(ctx context.Context, collectionID, orgID string) ([]knowledge.Document, error) {
	return nil, s.err
}

func (s *stubKnowledge) DeleteDocument(ctx context.Context, id, orgID string) error { return s.err }

func newTestServer(t *testing.T, conv *stubConversations, pers *stubPersonas, kb *stubKnowledge) *Server {
	t.Helper()
	if conv == nil {
		conv = &stubConversations{}
	}
	if pers == nil {
		pers = &stubPersonas{}
	}
	if kb == nil {
		kb = &stubKnowledge{}
	}
	srv, err := NewServer(Config{
		Logger:        testutil.DiscardLogger(),
		Conversations: conv,
		Personas:      pers,
		Knowledge:     kb,
	})
	if err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}
	return srv
}

func doRequest(srv *Server, method, path, org, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if org != "" {
		req.Header.Set(OrgHeader, org)
	}
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func TestHealthNoOrgRequired(t *testing.T) {
	srv := newTestServer(t, nil, nil, nil)
	rec := doRequest(srv, http.MethodGet, "/health", "", "")
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestMissingOrgHeader(t *testing.T) {
	srv := newTestServer(t, nil, nil, nil)
	rec := doRequest(srv, http.MethodGet, "/api/personas", "", "")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestInvalidOrgHeader(t *testing.T) {
	srv := newTestServer(t, nil, nil, nil)
	rec := doRequest(srv, http.MethodGet, "/api/personas", "not-a-uuid", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestProcessMessage(t *testing.T) {
	conv := &stubConversations{reply: &conversation.Reply{
		Message: &conversation.Message{Role: conversation.RoleAssistant, Content: "resposta"},
	}}
	srv := newTestServer(t, conv, nil, nil)

	rec := doRequest(srv, http.MethodPost, "/api/conversations/conv-1/messages", testOrgID,
		`{"content":"pergunta"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if conv.lastConv != "conv-1" || conv.lastOrg != testOrgID {
		t.Errorf("manager called with (%s, %s)", conv.lastConv, conv.lastOrg)
	}

	var resp struct {
		Success bool `json:"success"`
		Data    struct {
			Message conversation.Message `json:"message"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if !resp.Success || resp.Data.Message.Content != "resposta" {
		t.Errorf("response = %s", rec.Body.String())
	}
}

func TestProcessMessageEmptyContent(t *testing.T) {
	srv := newTestServer(t, nil, nil, nil)
	rec := doRequest(srv, http.MethodPost, "/api/conversations/conv-1/messages", testOrgID,
		`{"content":"  "}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestNotFoundMapsTo404(t *testing.T) {
	conv := &stubConversations{err: conversation.ErrNotFound}
	srv := newTestServer(t, conv, nil, nil)

	rec := doRequest(srv, http.MethodGet, "/api/conversations/missing", testOrgID, "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}

	var resp envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.Success {
		t.Error("success = true on error response")
	}
}

func TestCreatePersonaValidation(t *testing.T) {
	srv := newTestServer(t, nil, nil, nil)

	rec := doRequest(srv, http.MethodPost, "/api/personas", testOrgID, `{"name":"Silvia"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 for missing systemPrompt", rec.Code)
	}

	rec = doRequest(srv, http.MethodPost, "/api/personas", testOrgID,
		`{"name":"Silvia","systemPrompt":"És a Silvia."}`)
	if rec.Code != http.StatusCreated {
		t.Errorf("status = %d, want 201, body = %s", rec.Code, rec.Body.String())
	}
}

func TestUpsertToolUnknownType(t *testing.T) {
	srv := newTestServer(t, nil, nil, nil)
	rec := doRequest(srv, http.MethodPost, "/api/personas/p1/tools", testOrgID,
		`{"toolType":"WEB_SEARCH","isEnabled":true}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestIngestDocument(t *testing.T) {
	srv := newTestServer(t, nil, nil, &stubKnowledge{})
	rec := doRequest(srv, http.MethodPost, "/api/knowledge/collections/col-1/documents", testOrgID,
		`{"title":"FAQ","content":"conteudo do documento"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Data knowledge.IngestResult `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.Data.ChunkCount != 2 {
		t.Errorf("chunkCount = %d, want 2", resp.Data.ChunkCount)
	}
}
