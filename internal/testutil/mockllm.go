package testutil

import (
	"context"
	"strings"
	"sync"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
)

// MockModelName is the model name the mock registers under; pass it to
// ai.WithModelName in tests.
const MockModelName = "mock/chat"

// MockEmbedderName is the embedder name the mock registers under.
const MockEmbedderName = "mock/embedder"

// MockLLM is a deterministic chat model for tests. It matches the last user
// message against registered rules (substring, case-insensitive, first match
// wins) and replies with the rule's text and tool requests. Unmatched
// messages get the fallback text.
//
// Safe for concurrent use.
type MockLLM struct {
	mu       sync.Mutex
	rules    []mockRule
	fallback string
	requests []*ai.ModelRequest
}

type mockRule struct {
	pattern      string
	text         string
	toolRequests []*ai.ToolRequest

	// maxToolTurns bounds how many times the rule emits its tool requests;
	// after that it replies with text only. Zero means unbounded.
	maxToolTurns int
	toolTurns    int
}

// NewMockLLM creates a mock with the given fallback reply.
func NewMockLLM(fallback string) *MockLLM {
	return &MockLLM{fallback: fallback}
}

// Reply registers a text-only rule.
func (m *MockLLM) Reply(pattern, text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules = append(m.rules, mockRule{pattern: strings.ToLower(pattern), text: text})
}

// ReplyWithTools registers a rule that emits tool requests alongside text.
// maxToolTurns bounds how many generations include the tool requests; zero
// keeps emitting them forever, which exercises iteration limits.
func (m *MockLLM) ReplyWithTools(pattern, text string, maxToolTurns int, toolRequests ...*ai.ToolRequest) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules = append(m.rules, mockRule{
		pattern:      strings.ToLower(pattern),
		text:         text,
		toolRequests: toolRequests,
		maxToolTurns: maxToolTurns,
	})
}

// Requests returns every model request received, in order.
func (m *MockLLM) Requests() []*ai.ModelRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]*ai.ModelRequest, len(m.requests))
	copy(cp, m.requests)
	return cp
}

// CallCount returns how many generations the mock has served.
func (m *MockLLM) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// Register defines the mock as a Genkit model supporting tools, system role
// and multiturn chat.
func (m *MockLLM) Register(g *genkit.Genkit) ai.Model {
	return genkit.DefineModel(g, MockModelName, &ai.ModelOptions{
		Label: "Mock Chat Model",
		Supports: &ai.ModelSupports{
			Multiturn:  true,
			Tools:      true,
			SystemRole: true,
		},
	}, m.generate)
}

func (m *MockLLM) generate(_ context.Context, req *ai.ModelRequest, _ ai.ModelStreamCallback) (*ai.ModelResponse, error) {
	var userText string
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == ai.RoleUser {
			userText = req.Messages[i].Text()
			break
		}
	}

	m.mu.Lock()
	m.requests = append(m.requests, req)

	text := m.fallback
	var toolRequests []*ai.ToolRequest
	lower := strings.ToLower(userText)
	for i := range m.rules {
		rule := &m.rules[i]
		if !strings.Contains(lower, rule.pattern) {
			continue
		}
		text = rule.text
		if len(rule.toolRequests) > 0 &&
			(rule.maxToolTurns == 0 || rule.toolTurns < rule.maxToolTurns) {
			rule.toolTurns++
			toolRequests = rule.toolRequests
		}
		break
	}
	m.mu.Unlock()

	var parts []*ai.Part
	for _, tr := range toolRequests {
		parts = append(parts, &ai.Part{Kind: ai.PartToolRequest, ToolRequest: tr})
	}
	parts = append(parts, ai.NewTextPart(text))

	return &ai.ModelResponse{
		Request: req,
		Message: &ai.Message{Role: ai.RoleModel, Content: parts},
	}, nil
}
