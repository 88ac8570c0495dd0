package tools

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

// stubBilling records calls and returns canned data. The zero value reports
// no customers, no products and no links.
type stubBilling struct {
	customer *Customer
	subs     []Subscription
	products []Product
	priceID  string
	foundURL string
	newURL   string

	calls []string
}

func (s *stubBilling) FindCustomer(ctx context.Context, email string) (*Customer, error) {
	s.calls = append(s.calls, "FindCustomer")
	return s.customer, nil
}

func (s *stubBilling) ListSubscriptions(ctx context.Context, customerID string) ([]Subscription, error) {
	s.calls = append(s.calls, "ListSubscriptions")
	return s.subs, nil
}

func (s *stubBilling) SearchProducts(ctx context.Context, name string) ([]Product, error) {
	s.calls = append(s.calls, "SearchProducts")
	return s.products, nil
}

func (s *stubBilling) ActivePriceID(ctx context.Context, productID string) (string, error) {
	s.calls = append(s.calls, "ActivePriceID")
	return s.priceID, nil
}

func (s *stubBilling) FindPaymentLink(ctx context.Context, priceID string) (string, error) {
	s.calls = append(s.calls, "FindPaymentLink")
	return s.foundURL, nil
}

func (s *stubBilling) CreatePaymentLink(ctx context.Context, priceID string) (string, error) {
	s.calls = append(s.calls, "CreatePaymentLink")
	return s.newURL, nil
}

func TestExecuteUnknownTool(t *testing.T) {
	e := NewExecutor(nil, nil, nil)

	got := e.Execute(context.Background(), "rm_rf", nil, nil)
	if !strings.Contains(got, "Ferramenta desconhecida") || !strings.Contains(got, "rm_rf") {
		t.Errorf("Execute() = %q, want unknown-tool message naming rm_rf", got)
	}
}

func TestExecutePaymentStatusNotConfigured(t *testing.T) {
	e := NewExecutor(nil, nil, nil)

	got := e.Execute(context.Background(), "stripe_check_payment",
		map[string]any{"email": "a@b.pt"}, nil)
	if got != msgStripeNotConfigured {
		t.Errorf("Execute() = %q, want %q", got, msgStripeNotConfigured)
	}
}

func TestExecutePaymentStatusNoCustomer(t *testing.T) {
	billing := &stubBilling{}
	e := NewExecutor(billing, nil, nil)

	got := e.Execute(context.Background(), "stripe_check_payment",
		map[string]any{"email": "missing@b.pt"}, nil)

	var parsed map[string]any
	if err := json.Unmarshal([]byte(got), &parsed); err != nil {
		t.Fatalf("result is not JSON: %v\n%s", err, got)
	}
	if parsed["found"] != false {
		t.Errorf("found = %v, want false", parsed["found"])
	}
}

func TestExecutePaymentStatusWithSubscriptions(t *testing.T) {
	end := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)
	billing := &stubBilling{
		customer: &Customer{ID: "cus_1", Name: "Rita", Email: "rita@b.pt"},
		subs: []Subscription{
			{Status: "active", Product: "Curso Completo", CurrentPeriodEnd: &end},
		},
	}
	e := NewExecutor(billing, nil, nil)

	got := e.Execute(context.Background(), "stripe_check_payment",
		map[string]any{"email": "rita@b.pt"}, nil)

	var parsed struct {
		Found         bool   `json:"found"`
		Customer      string `json:"customer"`
		Subscriptions []struct {
			Status           string `json:"status"`
			Product          string `json:"product"`
			CurrentPeriodEnd string `json:"current_period_end"`
		} `json:"subscriptions"`
	}
	if err := json.Unmarshal([]byte(got), &parsed); err != nil {
		t.Fatalf("result is not JSON: %v\n%s", err, got)
	}
	if !parsed.Found || parsed.Customer != "Rita" {
		t.Errorf("found=%v customer=%q, want true/Rita", parsed.Found, parsed.Customer)
	}
	if len(parsed.Subscriptions) != 1 {
		t.Fatalf("len(subscriptions) = %d, want 1", len(parsed.Subscriptions))
	}
	if parsed.Subscriptions[0].CurrentPeriodEnd != "15/03/2026" {
		t.Errorf("current_period_end = %q, want 15/03/2026", parsed.Subscriptions[0].CurrentPeriodEnd)
	}
}

func TestExecutePaymentLinkConfiguredBypassesBilling(t *testing.T) {
	billing := &stubBilling{}
	e := NewExecutor(billing, nil, nil)
	cfg := &Config{PaymentLinks: map[string]string{
		"curso_completo": "https://buy.stripe.com/abc",
		"curso_basico":   "https://pay/x",
	}}

	tests := []struct {
		name    string
		product string
		want    string
	}{
		{name: "exact normalized", product: "Curso Completo", want: "https://buy.stripe.com/abc"},
		{name: "hyphenated", product: "curso-completo", want: "https://buy.stripe.com/abc"},
		{name: "request contains key", product: "Curso Completo 2026", want: "https://buy.stripe.com/abc"},
		{name: "key contains request", product: "completo", want: "https://buy.stripe.com/abc"},
		{name: "accented request against plain key", product: "Curso Básico", want: "https://pay/x"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := e.Execute(context.Background(), "stripe_send_payment_link",
				map[string]any{"product": tt.product}, cfg)
			if got != tt.want {
				t.Errorf("Execute() = %q, want %q", got, tt.want)
			}
		})
	}

	if len(billing.calls) != 0 {
		t.Errorf("billing calls = %v, want none for configured links", billing.calls)
	}
}

func TestExecutePaymentLinkViaBilling(t *testing.T) {
	tests := []struct {
		name    string
		billing *stubBilling
		want    string
	}{
		{
			name:    "product not found",
			billing: &stubBilling{},
			want:    `Produto "Curso X" não encontrado.`,
		},
		{
			name: "no active price",
			billing: &stubBilling{
				products: []Product{{ID: "prod_1", Name: "Curso X"}},
			},
			want: `Produto "Curso X" sem preços activos.`,
		},
		{
			name: "existing link reused",
			billing: &stubBilling{
				products: []Product{{ID: "prod_1", Name: "Curso X"}},
				priceID:  "price_1",
				foundURL: "https://buy.stripe.com/existing",
			},
			want: "https://buy.stripe.com/existing",
		},
		{
			name: "link created",
			billing: &stubBilling{
				products: []Product{{ID: "prod_1", Name: "Curso X"}},
				priceID:  "price_1",
				newURL:   "https://buy.stripe.com/new",
			},
			want: "https://buy.stripe.com/new",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewExecutor(tt.billing, nil, nil)
			got := e.Execute(context.Background(), "stripe_send_payment_link",
				map[string]any{"product": "Curso X"}, nil)
			if got != tt.want {
				t.Errorf("Execute() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExecuteCaseLawSearch(t *testing.T) {
	longSumario := strings.Repeat("a", corpusSumarioMax+200)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/search" {
			t.Errorf("path = %q, want /api/search", r.URL.Path)
		}
		var q CorpusQuery
		if err := json.NewDecoder(r.Body).Decode(&q); err != nil {
			t.Fatalf("decoding query: %v", err)
		}
		if q.ContentType != "jurisprudencia" {
			t.Errorf("contentType = %q, want jurisprudencia", q.ContentType)
		}
		if q.Tribunal != "STA" {
			t.Errorf("tribunal = %q, want STA", q.Tribunal)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{
				"results": []CorpusResult{
					{Tribunal: "STA", Processo: "0123/24", Sumario: longSumario, Similarity: 0.82},
				},
			},
		})
	}))
	defer srv.Close()

	e := NewExecutor(nil, NewCorpusClient(srv.URL, nil), nil)
	got := e.Execute(context.Background(), "tribunais_search",
		map[string]any{"query": "prazo de impugnação", "tribunal": "STA"}, nil)

	var parsed []map[string]any
	if err := json.Unmarshal([]byte(got), &parsed); err != nil {
		t.Fatalf("result is not JSON: %v\n%s", err, got)
	}
	if len(parsed) != 1 {
		t.Fatalf("len(results) = %d, want 1", len(parsed))
	}
	sumario, _ := parsed[0]["sumario"].(string)
	if len(sumario) != corpusSumarioMax {
		t.Errorf("len(sumario) = %d, want truncated to %d", len(sumario), corpusSumarioMax)
	}
	if parsed[0]["similarity"] != "0.82" {
		t.Errorf("similarity = %v, want \"0.82\"", parsed[0]["similarity"])
	}
}

func TestExecuteStatuteSearchEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{"results": []CorpusResult{}},
		})
	}))
	defer srv.Close()

	e := NewExecutor(nil, NewCorpusClient(srv.URL, nil), nil)
	got := e.Execute(context.Background(), "legislacao_search",
		map[string]any{"query": "artigo 58 CPTA"}, nil)
	if got != msgNoStatuteFound {
		t.Errorf("Execute() = %q, want %q", got, msgNoStatuteFound)
	}
}

func TestExecuteCorpusNotConfigured(t *testing.T) {
	e := NewExecutor(nil, nil, nil)

	for _, name := range []string{"tribunais_search", "legislacao_search"} {
		got := e.Execute(context.Background(), name, map[string]any{"query": "x"}, nil)
		if got != msgCorpusNotConfigured {
			t.Errorf("Execute(%s) = %q, want %q", name, got, msgCorpusNotConfigured)
		}
	}
}

func TestExecuteCorpusServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	e := NewExecutor(nil, NewCorpusClient(srv.URL, nil), nil)
	got := e.Execute(context.Background(), "tribunais_search",
		map[string]any{"query": "x"}, nil)
	if !strings.Contains(got, "Erro ao pesquisar jurisprudência") {
		t.Errorf("Execute() = %q, want error message, not an error return", got)
	}
}

func TestTruncateFieldRuneBoundary(t *testing.T) {
	// "é" is 2 bytes; truncating mid-rune must back up to the boundary.
	s := strings.Repeat("é", 10)
	got := truncateField(s, 5)
	if len(got) != 4 {
		t.Errorf("len = %d, want 4 (backed up to rune boundary)", len(got))
	}
}

func TestNormalizeProductKey(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Curso Completo", "curso_completo"},
		{"curso-completo", "curso_completo"},
		{"  Curso   -  Completo ", "curso_completo"},
		{"Curso Básico", "curso_basico"},
		{"pós-graduação", "pos_graduacao"},
		{"já_normalizado", "ja_normalizado"},
	}

	for _, tt := range tests {
		if got := normalizeProductKey(tt.in); got != tt.want {
			t.Errorf("normalizeProductKey(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
