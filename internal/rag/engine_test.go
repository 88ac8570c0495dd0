package rag

import (
	"context"
	"strings"
	"testing"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"

	"github.com/silviahq/silvia/internal/knowledge"
	"github.com/silviahq/silvia/internal/persona"
	"github.com/silviahq/silvia/internal/testutil"
	"github.com/silviahq/silvia/internal/tools"
)

type stubPersonas struct {
	persona *persona.Persona
	err     error
}

func (s *stubPersonas) GetWithBindings(ctx context.Context, id, orgID string) (*persona.Persona, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.persona, nil
}

type stubSearch struct {
	sources []knowledge.Source
	calls   int
}

func (s *stubSearch) Search(ctx context.Context, query string, collectionIDs []string, topK int, threshold float64) ([]knowledge.Source, error) {
	if len(collectionIDs) == 0 {
		return nil, nil
	}
	s.calls++
	return s.sources, nil
}

type stubRunner struct {
	result string
	calls  []string
}

func (s *stubRunner) Execute(ctx context.Context, name string, args map[string]any, cfg *tools.Config) string {
	s.calls = append(s.calls, name)
	return s.result
}

// newTestEngine wires an Engine against the mock model.
func newTestEngine(t *testing.T, mock *testutil.MockLLM, personas PersonaSource, search Searcher, runner ToolRunner) *Engine {
	t.Helper()

	g := genkit.Init(context.Background())
	mock.Register(g)

	registry, err := tools.NewRegistry(g)
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}

	engine, err := NewEngine(Config{
		Genkit:       g,
		Personas:     personas,
		Search:       search,
		Runner:       runner,
		Registry:     registry,
		DefaultModel: testutil.MockModelName,
		Logger:       testutil.DiscardLogger(),
	})
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	return engine
}

func testPersona() *persona.Persona {
	return &persona.Persona{
		ID:            "persona-1",
		OrgID:         "org-1",
		SystemPrompt:  "És a Silvia, assistente da empresa.",
		Model:         testutil.MockModelName,
		Temperature:   0.3,
		IsActive:      true,
		CollectionIDs: []string{"col-1"},
	}
}

func TestQueryAnswersWithSources(t *testing.T) {
	mock := testutil.NewMockLLM("resposta por omissão")
	mock.Reply("prazo de entrega", "O prazo é de 5 dias úteis.")

	search := &stubSearch{sources: []knowledge.Source{
		{DocumentID: "doc-1", Title: "FAQ Entregas", Content: "Entregamos em 5 dias úteis.", Similarity: 0.9},
	}}
	engine := newTestEngine(t, mock, &stubPersonas{persona: testPersona()}, search, &stubRunner{})

	result, err := engine.Query(context.Background(), "Qual é o prazo de entrega?", "persona-1", "org-1", nil)
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if result.Answer != "O prazo é de 5 dias úteis." {
		t.Errorf("Answer = %q", result.Answer)
	}
	if len(result.Sources) != 1 || result.Sources[0].DocumentID != "doc-1" {
		t.Errorf("Sources = %+v, want the retrieved chunk", result.Sources)
	}
	if search.calls != 1 {
		t.Errorf("search calls = %d, want 1", search.calls)
	}
}

func TestQueryPersonaNotFound(t *testing.T) {
	mock := testutil.NewMockLLM("irrelevante")
	engine := newTestEngine(t, mock, &stubPersonas{err: persona.ErrNotFound}, &stubSearch{}, &stubRunner{})

	_, err := engine.Query(context.Background(), "olá", "missing", "org-1", nil)
	if err != persona.ErrNotFound {
		t.Errorf("Query() error = %v, want ErrNotFound", err)
	}
	if mock.CallCount() != 0 {
		t.Errorf("model calls = %d, want 0", mock.CallCount())
	}
}

func TestQueryNoCollectionsSkipsSearch(t *testing.T) {
	mock := testutil.NewMockLLM("resposta geral")

	p := testPersona()
	p.CollectionIDs = nil
	search := &stubSearch{}
	engine := newTestEngine(t, mock, &stubPersonas{persona: p}, search, &stubRunner{})

	result, err := engine.Query(context.Background(), "pergunta qualquer", "persona-1", "org-1", nil)
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if search.calls != 0 {
		t.Errorf("search calls = %d, want 0", search.calls)
	}
	if len(result.Sources) != 0 {
		t.Errorf("Sources = %+v, want none", result.Sources)
	}

	// Without retrieval hits the system message must say so.
	reqs := mock.Requests()
	if len(reqs) != 1 {
		t.Fatalf("model calls = %d, want 1", len(reqs))
	}
	system := reqs[0].Messages[0]
	if system.Role != ai.RoleSystem {
		t.Fatalf("first message role = %v, want system", system.Role)
	}
	if !strings.Contains(system.Text(), noContextText) {
		t.Errorf("system message missing no-context marker:\n%s", system.Text())
	}
}

func TestQuerySystemMessageNumbersSources(t *testing.T) {
	mock := testutil.NewMockLLM("ok")
	search := &stubSearch{sources: []knowledge.Source{
		{DocumentID: "d1", Title: "Doc A", Content: "aaa"},
		{DocumentID: "d2", Title: "Doc B", Content: "bbb"},
	}}
	engine := newTestEngine(t, mock, &stubPersonas{persona: testPersona()}, search, &stubRunner{})

	if _, err := engine.Query(context.Background(), "pergunta", "persona-1", "org-1", nil); err != nil {
		t.Fatalf("Query() error = %v", err)
	}

	system := mock.Requests()[0].Messages[0].Text()
	for _, want := range []string{"[Fonte 1: Doc A]\naaa", "[Fonte 2: Doc B]\nbbb", "És a Silvia"} {
		if !strings.Contains(system, want) {
			t.Errorf("system message missing %q:\n%s", want, system)
		}
	}
}

func TestQueryHistoryWindow(t *testing.T) {
	mock := testutil.NewMockLLM("ok")
	engine := newTestEngine(t, mock, &stubPersonas{persona: testPersona()}, &stubSearch{}, &stubRunner{})

	history := make([]HistoryMessage, 10)
	for i := range history {
		role := "USER"
		if i%2 == 1 {
			role = "ASSISTANT"
		}
		history[i] = HistoryMessage{Role: role, Content: strings.Repeat("m", i+1)}
	}

	if _, err := engine.Query(context.Background(), "pergunta final", "persona-1", "org-1", history); err != nil {
		t.Fatalf("Query() error = %v", err)
	}

	// system + 6 history + question
	msgs := mock.Requests()[0].Messages
	if len(msgs) != 8 {
		t.Fatalf("len(messages) = %d, want 8", len(msgs))
	}
	// Oldest surviving turn is history[4] (5 chars); history[3] must be gone.
	if got := msgs[1].Text(); got != "mmmmm" {
		t.Errorf("first history message = %q, want the 5th original turn", got)
	}
	if msgs[1].Role != ai.RoleUser || msgs[2].Role != ai.RoleModel {
		t.Errorf("history roles = %v, %v, want user, model", msgs[1].Role, msgs[2].Role)
	}
	if msgs[7].Text() != "pergunta final" {
		t.Errorf("last message = %q, want the question", msgs[7].Text())
	}
}

func TestQueryExecutesToolRequests(t *testing.T) {
	mock := testutil.NewMockLLM("ok")
	mock.ReplyWithTools("estado do pagamento", "Verifiquei o pagamento: está ativo.", 1,
		&ai.ToolRequest{Name: "stripe_check_payment", Ref: "call-1",
			Input: map[string]any{"email": "rita@b.pt"}})

	p := testPersona()
	p.Tools = []persona.ToolBinding{
		{ToolType: tools.TypePaymentStatus, IsEnabled: true},
	}
	runner := &stubRunner{result: `{"found":true}`}
	engine := newTestEngine(t, mock, &stubPersonas{persona: p}, &stubSearch{}, runner)

	result, err := engine.Query(context.Background(), "Qual o estado do pagamento?", "persona-1", "org-1", nil)
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if result.Answer != "Verifiquei o pagamento: está ativo." {
		t.Errorf("Answer = %q", result.Answer)
	}
	if len(runner.calls) != 1 || runner.calls[0] != "stripe_check_payment" {
		t.Errorf("runner calls = %v, want one stripe_check_payment", runner.calls)
	}
	if mock.CallCount() != 2 {
		t.Errorf("model calls = %d, want 2 (tool turn + final)", mock.CallCount())
	}

	// The second request must carry the tool response back to the model.
	second := mock.Requests()[1].Messages
	last := second[len(second)-1]
	if last.Role != ai.RoleTool {
		t.Fatalf("last message role = %v, want tool", last.Role)
	}
	if last.Content[0].ToolResponse == nil || last.Content[0].ToolResponse.Ref != "call-1" {
		t.Errorf("tool response = %+v, want ref call-1", last.Content[0].ToolResponse)
	}
}

func TestQueryToolLoopBounded(t *testing.T) {
	mock := testutil.NewMockLLM("ok")
	// maxToolTurns 0 keeps requesting tools forever.
	mock.ReplyWithTools("pergunta insistente", "ainda a verificar", 0,
		&ai.ToolRequest{Name: "stripe_check_payment", Ref: "r",
			Input: map[string]any{"email": "x@y.pt"}})

	p := testPersona()
	p.Tools = []persona.ToolBinding{
		{ToolType: tools.TypePaymentStatus, IsEnabled: true},
	}
	runner := &stubRunner{result: "{}"}
	engine := newTestEngine(t, mock, &stubPersonas{persona: p}, &stubSearch{}, runner)

	result, err := engine.Query(context.Background(), "pergunta insistente", "persona-1", "org-1", nil)
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	// Initial call plus one per loop iteration.
	if mock.CallCount() != maxToolIterations+1 {
		t.Errorf("model calls = %d, want %d", mock.CallCount(), maxToolIterations+1)
	}
	if len(runner.calls) != maxToolIterations {
		t.Errorf("tool executions = %d, want %d", len(runner.calls), maxToolIterations)
	}
	if result.Answer == "" {
		t.Error("Answer is empty, want the model's last text")
	}
}

func TestQueryEmptyAnswerFallback(t *testing.T) {
	mock := testutil.NewMockLLM("   ")
	engine := newTestEngine(t, mock, &stubPersonas{persona: testPersona()}, &stubSearch{}, &stubRunner{})

	result, err := engine.Query(context.Background(), "pergunta", "persona-1", "org-1", nil)
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if result.Answer != fallbackAnswer {
		t.Errorf("Answer = %q, want %q", result.Answer, fallbackAnswer)
	}
}

func TestQueryDisabledToolsNotOffered(t *testing.T) {
	mock := testutil.NewMockLLM("ok")

	p := testPersona()
	p.Tools = []persona.ToolBinding{
		{ToolType: tools.TypePaymentStatus, IsEnabled: false},
	}
	engine := newTestEngine(t, mock, &stubPersonas{persona: p}, &stubSearch{}, &stubRunner{})

	if _, err := engine.Query(context.Background(), "pergunta", "persona-1", "org-1", nil); err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if got := len(mock.Requests()[0].Tools); got != 0 {
		t.Errorf("tools offered = %d, want 0", got)
	}
}
