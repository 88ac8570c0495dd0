package tools

import (
	"errors"
	"fmt"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
)

// errOutOfBand guards the registered tool functions. The query engine always
// requests tool calls back (ai.WithReturnToolRequests) and executes them via
// the Executor with the persona's binding config, so Genkit must never run
// these functions itself.
var errOutOfBand = errors.New("tool calls are executed by the query engine, not by genkit")

// PaymentStatusInput is the schema for stripe_check_payment.
type PaymentStatusInput struct {
	Email string `json:"email" jsonschema_description:"Email do aluno"`
}

// PaymentLinkInput is the schema for stripe_send_payment_link.
type PaymentLinkInput struct {
	Product string `json:"product" jsonschema_description:"Nome ou identificador do curso/produto"`
}

// CaseLawSearchInput is the schema for tribunais_search.
type CaseLawSearchInput struct {
	Query    string `json:"query" jsonschema_description:"Descrição da questão jurídica a pesquisar"`
	Tribunal string `json:"tribunal,omitempty" jsonschema_description:"Filtro por tribunal: STA, TCAN, TCAS, TC, TRL, TRP, TRC (opcional)"`
	DateFrom string `json:"date_from,omitempty" jsonschema_description:"Data início no formato YYYY-MM-DD (opcional)"`
	DateTo   string `json:"date_to,omitempty" jsonschema_description:"Data fim no formato YYYY-MM-DD (opcional)"`
}

// StatuteSearchInput is the schema for legislacao_search.
type StatuteSearchInput struct {
	Query string `json:"query" jsonschema_description:"Descrição da norma ou matéria a pesquisar"`
}

// Registry holds the Genkit tool definitions for the closed tool set.
// Definitions carry the name, description and parameter schema the chat
// model uses to decide when and how to call each tool.
type Registry struct {
	byType map[Type]ai.Tool
}

// NewRegistry registers the four persona tools with Genkit and returns the
// registry used to offer per-persona subsets to the model.
func NewRegistry(g *genkit.Genkit) (*Registry, error) {
	if g == nil {
		return nil, fmt.Errorf("genkit instance is required")
	}

	r := &Registry{byType: make(map[Type]ai.Tool, 4)}

	r.byType[TypePaymentStatus] = genkit.DefineTool(g, TypePaymentStatus.Name(),
		"Verifica o estado da subscrição/pagamento de um aluno no Stripe pelo email.",
		func(ctx *ai.ToolContext, in PaymentStatusInput) (string, error) {
			return "", errOutOfBand
		})

	r.byType[TypePaymentLink] = genkit.DefineTool(g, TypePaymentLink.Name(),
		"Obtém o link de pagamento para um curso ou produto específico.",
		func(ctx *ai.ToolContext, in PaymentLinkInput) (string, error) {
			return "", errOutOfBand
		})

	r.byType[TypeCaseLawSearch] = genkit.DefineTool(g, TypeCaseLawSearch.Name(),
		"Pesquisa jurisprudência dos tribunais administrativos portugueses (STA, TCAN, TCAS, TC). "+
			"Usa quando precisas de fundamentar com acórdãos.",
		func(ctx *ai.ToolContext, in CaseLawSearchInput) (string, error) {
			return "", errOutOfBand
		})

	r.byType[TypeStatuteSearch] = genkit.DefineTool(g, TypeStatuteSearch.Name(),
		"Pesquisa legislação portuguesa (CPTA, CPA, CPPT, etc.). "+
			"Usa para encontrar artigos a citar inline na resposta.",
		func(ctx *ai.ToolContext, in StatuteSearchInput) (string, error) {
			return "", errOutOfBand
		})

	return r, nil
}

// Refs returns the tool references for the given types, preserving order and
// skipping unknown types. The result is passed to the model so it only sees
// the tools the persona has enabled.
func (r *Registry) Refs(types []Type) []ai.ToolRef {
	refs := make([]ai.ToolRef, 0, len(types))
	for _, t := range types {
		if tool, ok := r.byType[t]; ok {
			refs = append(refs, tool)
		}
	}
	return refs
}
