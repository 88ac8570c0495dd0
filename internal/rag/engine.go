// Package rag implements the retrieval-augmented query engine: it grounds a
// persona's answer in the organization's knowledge base and drives the
// bounded agentic tool-calling loop against the chat model.
package rag

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"golang.org/x/time/rate"

	"github.com/silviahq/silvia/internal/knowledge"
	"github.com/silviahq/silvia/internal/persona"
	"github.com/silviahq/silvia/internal/tools"
)

const (
	// maxToolIterations bounds the agentic loop. A model that keeps asking
	// for tools past this gets its last text answer returned as-is.
	maxToolIterations = 5

	// maxHistoryMessages is how many trailing history messages go into the
	// prompt.
	maxHistoryMessages = 6

	// maxAnswerTokens caps generation length per model call.
	maxAnswerTokens = 2000

	// fallbackAnswer is returned when the model produced no text at all.
	fallbackAnswer = "Sem resposta."

	// noContextText replaces the knowledge context block when retrieval
	// found nothing relevant.
	noContextText = "Nenhum documento relevante encontrado na base de conhecimento interna."
)

// promptInstructions is appended to every system message, after the persona's
// own prompt and the retrieved context.
const promptInstructions = `Instrucoes adicionais:
- Responde sempre em portugues de Portugal.
- Se a informacao nao estiver no contexto, diz que nao tens essa informacao na base de conhecimento.
- Cita as fontes quando relevante.
- Se nao houver documentos relevantes e a pergunta for generica, responde com base no teu conhecimento geral, mas avisa que a informacao nao vem da base de conhecimento.`

// PersonaSource loads personas with their bindings.
// *persona.Store satisfies this.
type PersonaSource interface {
	GetWithBindings(ctx context.Context, id, orgID string) (*persona.Persona, error)
}

// Searcher runs semantic search over knowledge collections.
// *knowledge.Service satisfies this.
type Searcher interface {
	Search(ctx context.Context, query string, collectionIDs []string, topK int, threshold float64) ([]knowledge.Source, error)
}

// ToolRunner executes a tool call and renders its result for the model.
// *tools.Executor satisfies this.
type ToolRunner interface {
	Execute(ctx context.Context, name string, args map[string]any, cfg *tools.Config) string
}

// HistoryMessage is one prior conversation turn fed into the prompt.
type HistoryMessage struct {
	Role    string // "USER" or "ASSISTANT"
	Content string
}

// Result is the engine's answer with the knowledge sources that grounded it.
// Sources come from the vector search only; tool results reach the caller
// through the answer text.
type Result struct {
	Answer  string             `json:"answer"`
	Sources []knowledge.Source `json:"sources"`
}

// Engine answers questions with persona context. All dependencies are
// injected; the engine holds no globals and is safe for concurrent use.
type Engine struct {
	g            *genkit.Genkit
	personas     PersonaSource
	search       Searcher
	runner       ToolRunner
	registry     *tools.Registry
	limiter      *rate.Limiter
	defaultModel string
	logger       *slog.Logger
}

// Config collects the Engine's dependencies.
type Config struct {
	Genkit   *genkit.Genkit
	Personas PersonaSource
	Search   Searcher
	Runner   ToolRunner
	Registry *tools.Registry

	// Limiter throttles model calls across all conversations. Nil disables
	// throttling.
	Limiter *rate.Limiter

	// DefaultModel is used when a persona has no model set.
	DefaultModel string

	Logger *slog.Logger
}

// NewEngine creates an Engine from its dependencies.
func NewEngine(cfg Config) (*Engine, error) {
	if cfg.Genkit == nil {
		return nil, fmt.Errorf("genkit instance is required")
	}
	if cfg.Personas == nil || cfg.Search == nil || cfg.Runner == nil || cfg.Registry == nil {
		return nil, fmt.Errorf("personas, search, runner and registry are required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Engine{
		g:            cfg.Genkit,
		personas:     cfg.Personas,
		search:       cfg.Search,
		runner:       cfg.Runner,
		registry:     cfg.Registry,
		limiter:      cfg.Limiter,
		defaultModel: cfg.DefaultModel,
		logger:       cfg.Logger,
	}, nil
}

// Query answers a question as the given persona: it retrieves grounding
// chunks from the persona's collections, builds the prompt with recent
// history, and runs the generation loop, executing tool calls the model
// requests until it produces a final text answer or the iteration bound is
// hit.
func (e *Engine) Query(ctx context.Context, question, personaID, orgID string, history []HistoryMessage) (*Result, error) {
	p, err := e.personas.GetWithBindings(ctx, personaID, orgID)
	if err != nil {
		return nil, err
	}

	sources, err := e.search.Search(ctx, question, p.CollectionIDs,
		knowledge.DefaultTopK, knowledge.DefaultThreshold)
	if err != nil {
		return nil, fmt.Errorf("searching knowledge base: %w", err)
	}

	messages := e.buildMessages(p, question, sources, history)

	model := p.Model
	if model == "" {
		model = e.defaultModel
	}

	enabled := p.EnabledTools()
	refs := e.registry.Refs(enabled)

	e.logger.Debug("querying model",
		"persona_id", p.ID, "model", model,
		"sources", len(sources), "tools", len(refs))

	resp, err := e.generate(ctx, model, p.Temperature, messages, refs)
	if err != nil {
		return nil, err
	}

	for iterations := 0; len(resp.ToolRequests()) > 0 && iterations < maxToolIterations; iterations++ {
		messages = append(messages, resp.Message)
		messages = append(messages, e.executeToolRequests(ctx, p, resp.ToolRequests()))

		resp, err = e.generate(ctx, model, p.Temperature, messages, refs)
		if err != nil {
			return nil, err
		}
	}

	answer := resp.Text()
	if strings.TrimSpace(answer) == "" {
		answer = fallbackAnswer
	}

	return &Result{Answer: answer, Sources: sources}, nil
}

// buildMessages assembles the prompt: system message with persona prompt and
// retrieved context, the trailing history window, then the question.
func (e *Engine) buildMessages(p *persona.Persona, question string, sources []knowledge.Source, history []HistoryMessage) []*ai.Message {
	contextText := noContextText
	if len(sources) > 0 {
		blocks := make([]string, len(sources))
		for i, s := range sources {
			blocks[i] = fmt.Sprintf("[Fonte %d: %s]\n%s", i+1, s.Title, s.Content)
		}
		contextText = strings.Join(blocks, "\n\n---\n\n")
	}

	system := p.SystemPrompt +
		"\n\n---\n\nContexto da base de conhecimento:\n" + contextText +
		"\n\n---\n\n" + promptInstructions

	messages := []*ai.Message{ai.NewSystemMessage(ai.NewTextPart(system))}

	if len(history) > maxHistoryMessages {
		history = history[len(history)-maxHistoryMessages:]
	}
	for _, msg := range history {
		if msg.Role == "ASSISTANT" {
			messages = append(messages, ai.NewModelMessage(ai.NewTextPart(msg.Content)))
		} else {
			messages = append(messages, ai.NewUserMessage(ai.NewTextPart(msg.Content)))
		}
	}

	return append(messages, ai.NewUserMessage(ai.NewTextPart(question)))
}

// generate runs one model call. Tool requests are returned to the engine
// instead of being executed by Genkit, so each call can carry the persona's
// binding configuration.
func (e *Engine) generate(ctx context.Context, model string, temperature float64, messages []*ai.Message, refs []ai.ToolRef) (*ai.ModelResponse, error) {
	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("waiting for rate limiter: %w", err)
		}
	}

	opts := []ai.GenerateOption{
		ai.WithModelName(model),
		ai.WithMessages(messages...),
		ai.WithConfig(&ai.GenerationCommonConfig{
			Temperature:     temperature,
			MaxOutputTokens: maxAnswerTokens,
		}),
	}
	if len(refs) > 0 {
		opts = append(opts,
			ai.WithTools(refs...),
			ai.WithReturnToolRequests(true),
		)
	}

	resp, err := genkit.Generate(ctx, e.g, opts...)
	if err != nil {
		return nil, fmt.Errorf("generating response: %w", err)
	}
	return resp, nil
}

// executeToolRequests runs every tool request from one model turn and packs
// the results into a single tool-role message. Failures never escape: the
// model sees them as result text and the loop keeps going.
func (e *Engine) executeToolRequests(ctx context.Context, p *persona.Persona, requests []*ai.ToolRequest) *ai.Message {
	parts := make([]*ai.Part, 0, len(requests))
	for _, req := range requests {
		result := e.executeToolRequest(ctx, p, req)
		parts = append(parts, ai.NewToolResponsePart(&ai.ToolResponse{
			Name:   req.Name,
			Ref:    req.Ref,
			Output: result,
		}))
	}
	return ai.NewMessage(ai.RoleTool, nil, parts...)
}

func (e *Engine) executeToolRequest(ctx context.Context, p *persona.Persona, req *ai.ToolRequest) (result string) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("tool execution panicked", "tool", req.Name, "panic", r)
			result = fmt.Sprintf("Erro ao executar ferramenta %s: %v", req.Name, r)
		}
	}()

	var cfg *tools.Config
	if toolType, ok := tools.TypeForName(req.Name); ok {
		if binding := p.BindingFor(toolType); binding != nil {
			cfg = tools.ParseConfig(binding.Config)
		}
	}

	args, _ := req.Input.(map[string]any)
	return e.runner.Execute(ctx, req.Name, args, cfg)
}
