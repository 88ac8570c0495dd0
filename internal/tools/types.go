// Package tools declares the callable tools personas can enable and executes
// them against their external backends (Stripe billing, Lex Corpus search).
//
// Tool execution is deliberately infallible from the caller's point of view:
// every failure is converted into a descriptive result string fed back to the
// model, so the agentic loop in the query engine keeps running.
package tools

import "strings"

// Type identifies a tool a persona can enable. The set is closed; dispatch is
// an exhaustive switch with an explicit unknown fallback.
type Type string

const (
	// TypePaymentStatus looks up a customer's subscription state by email.
	TypePaymentStatus Type = "STRIPE_CHECK_PAYMENT"

	// TypePaymentLink resolves a payment link for a named product.
	TypePaymentLink Type = "STRIPE_SEND_PAYMENT_LINK"

	// TypeCaseLawSearch queries the Lex Corpus jurisprudence index.
	TypeCaseLawSearch Type = "TRIBUNAIS_SEARCH"

	// TypeStatuteSearch queries the Lex Corpus legislation index.
	TypeStatuteSearch Type = "LEGISLACAO_SEARCH"
)

// AllTypes returns every registered tool type.
func AllTypes() []Type {
	return []Type{TypePaymentStatus, TypePaymentLink, TypeCaseLawSearch, TypeStatuteSearch}
}

// Valid reports whether t is a known tool type.
func (t Type) Valid() bool {
	switch t {
	case TypePaymentStatus, TypePaymentLink, TypeCaseLawSearch, TypeStatuteSearch:
		return true
	}
	return false
}

// Name returns the canonical function name offered to the chat model.
func (t Type) Name() string {
	switch t {
	case TypePaymentStatus:
		return "stripe_check_payment"
	case TypePaymentLink:
		return "stripe_send_payment_link"
	case TypeCaseLawSearch:
		return "tribunais_search"
	case TypeStatuteSearch:
		return "legislacao_search"
	default:
		return strings.ToLower(string(t))
	}
}

// TypeForName resolves a model-supplied function name back to a tool type.
// The second return is false for unrecognized names.
func TypeForName(name string) (Type, bool) {
	for _, t := range AllTypes() {
		if t.Name() == name {
			return t, true
		}
	}
	return "", false
}

// Config is the persona-specific tool configuration, narrowed from the
// loosely-typed JSON blob stored on the tool binding. Unknown or malformed
// fields are treated as absent rather than errors.
type Config struct {
	// PaymentLinks maps normalized product keys to pre-configured payment
	// link URLs, letting the payment-link tool bypass the billing provider.
	PaymentLinks map[string]string
}

// ParseConfig narrows a raw JSON object into a Config.
// Shape mismatches yield an empty Config, never an error.
func ParseConfig(raw map[string]any) *Config {
	cfg := &Config{}
	if raw == nil {
		return cfg
	}

	if links, ok := raw["paymentLinks"].(map[string]any); ok {
		cfg.PaymentLinks = make(map[string]string, len(links))
		for k, v := range links {
			if url, ok := v.(string); ok {
				cfg.PaymentLinks[k] = url
			}
		}
	}

	return cfg
}
