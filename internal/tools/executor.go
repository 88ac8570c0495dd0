package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Result messages returned to the model when a backend is unavailable.
// These are model-visible strings, not errors: the agentic loop must keep
// running whatever happens inside a tool.
const (
	msgStripeNotConfigured = "Stripe não configurado."
	msgCorpusNotConfigured = "Lex Corpus não configurado."
	msgNoCaseLawFound      = "Nenhuma decisão relevante encontrada."
	msgNoStatuteFound      = "Nenhuma norma relevante encontrada."
)

// productKeySep collapses whitespace and hyphen runs when normalizing
// product names for the payment-link config match.
var productKeySep = regexp.MustCompile(`[\s-]+`)

// diacriticFolder strips combining marks so "básico" and "basico" normalize
// to the same key.
var diacriticFolder = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Executor dispatches tool calls by canonical name to their handlers.
// Billing and corpus may be nil when the deployment has no credentials for
// them; the handlers then report the backend as not configured.
type Executor struct {
	billing Billing
	corpus  *CorpusClient
	logger  *slog.Logger
}

// NewExecutor creates an Executor. A nil logger falls back to slog.Default().
func NewExecutor(billing Billing, corpus *CorpusClient, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{billing: billing, corpus: corpus, logger: logger}
}

// Execute runs the named tool with the model-supplied arguments and the
// persona's tool configuration. It always returns a result string: unknown
// names and handler failures become model-visible text, never errors.
func (e *Executor) Execute(ctx context.Context, name string, args map[string]any, cfg *Config) string {
	if cfg == nil {
		cfg = &Config{}
	}

	toolType, ok := TypeForName(name)
	if !ok {
		e.logger.Warn("model requested unknown tool", "tool", name)
		return fmt.Sprintf("Ferramenta desconhecida: %s", name)
	}

	e.logger.Debug("executing tool", "tool", name)

	switch toolType {
	case TypePaymentStatus:
		return e.paymentStatus(ctx, stringArg(args, "email"))
	case TypePaymentLink:
		return e.paymentLink(ctx, stringArg(args, "product"), cfg)
	case TypeCaseLawSearch:
		return e.caseLawSearch(ctx, stringArg(args, "query"),
			stringArg(args, "tribunal"), stringArg(args, "date_from"), stringArg(args, "date_to"))
	case TypeStatuteSearch:
		return e.statuteSearch(ctx, stringArg(args, "query"))
	default:
		return fmt.Sprintf("Ferramenta desconhecida: %s", name)
	}
}

// paymentStatus reports a customer's subscription state by email.
// A missing customer is a normal structured result, not an error.
func (e *Executor) paymentStatus(ctx context.Context, email string) string {
	if e.billing == nil {
		return msgStripeNotConfigured
	}

	customer, err := e.billing.FindCustomer(ctx, email)
	if err != nil {
		return fmt.Sprintf("Erro ao consultar o Stripe: %v", err)
	}
	if customer == nil {
		return mustJSON(map[string]any{
			"found":   false,
			"message": "Nenhum cliente encontrado com este email.",
		})
	}

	displayName := customer.Name
	if displayName == "" {
		displayName = customer.Email
	}

	subs, err := e.billing.ListSubscriptions(ctx, customer.ID)
	if err != nil {
		return fmt.Sprintf("Erro ao consultar subscrições: %v", err)
	}
	if len(subs) == 0 {
		return mustJSON(map[string]any{
			"found":         true,
			"customer":      displayName,
			"subscriptions": []any{},
			"message":       "Cliente existe mas sem subscrições.",
		})
	}

	summaries := make([]map[string]any, 0, len(subs))
	for _, s := range subs {
		var periodEnd any
		if s.CurrentPeriodEnd != nil {
			periodEnd = s.CurrentPeriodEnd.Format("02/01/2006")
		}
		summaries = append(summaries, map[string]any{
			"status":               s.Status,
			"product":              s.Product,
			"current_period_end":   periodEnd,
			"cancel_at_period_end": s.CancelAtPeriodEnd,
		})
	}

	return mustJSON(map[string]any{
		"found":         true,
		"customer":      displayName,
		"subscriptions": summaries,
	})
}

// paymentLink resolves a payment link for the requested product. Configured
// links win over the billing provider: a normalized fuzzy containment match
// against config.paymentLinks short-circuits without any provider call.
func (e *Executor) paymentLink(ctx context.Context, product string, cfg *Config) string {
	if url, ok := configuredLink(cfg, product); ok {
		return url
	}

	if e.billing == nil {
		return msgStripeNotConfigured
	}

	products, err := e.billing.SearchProducts(ctx, product)
	if err != nil {
		return fmt.Sprintf("Erro ao pesquisar produtos: %v", err)
	}
	if len(products) == 0 {
		return fmt.Sprintf("Produto %q não encontrado.", product)
	}

	priceID, err := e.billing.ActivePriceID(ctx, products[0].ID)
	if err != nil {
		return fmt.Sprintf("Erro ao consultar preços: %v", err)
	}
	if priceID == "" {
		return fmt.Sprintf("Produto %q sem preços activos.", products[0].Name)
	}

	// Reuse an existing link for this price before creating a new one.
	if url, err := e.billing.FindPaymentLink(ctx, priceID); err == nil && url != "" {
		return url
	} else if err != nil {
		return fmt.Sprintf("Erro ao consultar links de pagamento: %v", err)
	}

	url, err := e.billing.CreatePaymentLink(ctx, priceID)
	if err != nil {
		return fmt.Sprintf("Erro ao criar link de pagamento: %v", err)
	}
	return url
}

// configuredLink matches the requested product against the binding's
// configured payment links using normalized containment in either direction.
func configuredLink(cfg *Config, product string) (string, bool) {
	if cfg == nil || len(cfg.PaymentLinks) == 0 {
		return "", false
	}

	key := normalizeProductKey(product)
	for configured, url := range cfg.PaymentLinks {
		ck := normalizeProductKey(configured)
		if strings.Contains(ck, key) || strings.Contains(key, ck) {
			return url, true
		}
	}
	return "", false
}

// normalizeProductKey lowercases, folds diacritics and collapses
// whitespace/hyphen runs to underscores so "Curso Básico" matches a
// "curso_basico" config key.
func normalizeProductKey(s string) string {
	if folded, _, err := transform.String(diacriticFolder, s); err == nil {
		s = folded
	}
	return productKeySep.ReplaceAllString(strings.ToLower(strings.TrimSpace(s)), "_")
}

// caseLawSearch queries the jurisprudence index and serializes a truncated
// summary of each hit for the model.
func (e *Executor) caseLawSearch(ctx context.Context, query, tribunal, dateFrom, dateTo string) string {
	if e.corpus == nil {
		return msgCorpusNotConfigured
	}

	results, err := e.corpus.Search(ctx, CorpusQuery{
		Query:       query,
		ContentType: "jurisprudencia",
		TopK:        corpusTopK,
		Tribunal:    tribunal,
		DateFrom:    dateFrom,
		DateTo:      dateTo,
	})
	if err != nil {
		return fmt.Sprintf("Erro ao pesquisar jurisprudência: %v", err)
	}
	if len(results) == 0 {
		return msgNoCaseLawFound
	}

	summaries := make([]map[string]any, 0, len(results))
	for _, r := range results {
		summaries = append(summaries, map[string]any{
			"tribunal":   r.Tribunal,
			"processo":   r.Processo,
			"data":       r.DataAcordao,
			"relator":    r.Relator,
			"sumario":    truncateField(r.Sumario, corpusSumarioMax),
			"url":        r.URL,
			"similarity": formatSimilarity(r.Similarity),
		})
	}
	return mustJSON(summaries)
}

// statuteSearch queries the legislation index.
func (e *Executor) statuteSearch(ctx context.Context, query string) string {
	if e.corpus == nil {
		return msgCorpusNotConfigured
	}

	results, err := e.corpus.Search(ctx, CorpusQuery{
		Query:       query,
		ContentType: "legislacao",
		TopK:        corpusTopK,
	})
	if err != nil {
		return fmt.Sprintf("Erro ao pesquisar legislação: %v", err)
	}
	if len(results) == 0 {
		return msgNoStatuteFound
	}

	summaries := make([]map[string]any, 0, len(results))
	for _, r := range results {
		summaries = append(summaries, map[string]any{
			"titulo":     r.Title,
			"conteudo":   truncateField(r.Content, corpusContentoMax),
			"similarity": formatSimilarity(r.Similarity),
		})
	}
	return mustJSON(summaries)
}

// stringArg extracts a string argument, tolerating absent or mistyped values.
func stringArg(args map[string]any, key string) string {
	if args == nil {
		return ""
	}
	s, _ := args[key].(string)
	return s
}

// truncateField bounds a text field before it is serialized to the model.
func truncateField(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for max > 0 && s[max]&0xC0 == 0x80 {
		max--
	}
	return s[:max]
}

// formatSimilarity renders a similarity score with two decimals, or nil when
// the backend supplied none.
func formatSimilarity(v float64) any {
	if v == 0 {
		return nil
	}
	return fmt.Sprintf("%.2f", v)
}

// mustJSON serializes v for the model. The payloads here are built from
// primitives, so marshaling cannot realistically fail; the fallback keeps the
// tool result non-empty regardless.
func mustJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}
