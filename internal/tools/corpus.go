package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Lex Corpus request bounds. Returned text fields are truncated before being
// serialized back to the model so tool results cannot blow up the prompt.
const (
	corpusTimeout     = 10 * time.Second
	corpusTopK        = 5
	corpusSumarioMax  = 400
	corpusContentoMax = 600
)

// CorpusQuery is the search request POSTed to the Lex Corpus endpoint.
type CorpusQuery struct {
	Query       string `json:"query"`
	ContentType string `json:"contentType"`
	TopK        int    `json:"topK"`
	Tribunal    string `json:"tribunal,omitempty"`
	DateFrom    string `json:"dateFrom,omitempty"`
	DateTo      string `json:"dateTo,omitempty"`
}

// CorpusResult is one ranked hit from the Lex Corpus index. Jurisprudence and
// legislation hits populate different subsets of the fields.
type CorpusResult struct {
	Tribunal    string  `json:"tribunal,omitempty"`
	Processo    string  `json:"processo,omitempty"`
	DataAcordao string  `json:"data_acordao,omitempty"`
	Relator     string  `json:"relator,omitempty"`
	Sumario     string  `json:"sumario,omitempty"`
	URL         string  `json:"url,omitempty"`
	Title       string  `json:"title,omitempty"`
	Content     string  `json:"content,omitempty"`
	Similarity  float64 `json:"similarity,omitempty"`
}

type corpusResponse struct {
	Data struct {
		Results []CorpusResult `json:"results"`
	} `json:"data"`
}

// CorpusClient queries the external Lex Corpus search endpoint.
// The zero value is unusable; construct with NewCorpusClient.
type CorpusClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewCorpusClient creates a client for the Lex Corpus service at baseURL.
// A nil httpClient gets a default with the corpus timeout applied.
func NewCorpusClient(baseURL string, httpClient *http.Client) *CorpusClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: corpusTimeout}
	}
	return &CorpusClient{baseURL: baseURL, httpClient: httpClient}
}

// Search POSTs the query and returns the ranked results.
// The call is bounded by the corpus timeout regardless of the parent context.
func (c *CorpusClient) Search(ctx context.Context, query CorpusQuery) ([]CorpusResult, error) {
	ctx, cancel := context.WithTimeout(ctx, corpusTimeout)
	defer cancel()

	body, err := json.Marshal(query)
	if err != nil {
		return nil, fmt.Errorf("encoding corpus query: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/search", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building corpus request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("querying corpus: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("corpus returned status %d", resp.StatusCode)
	}

	var parsed corpusResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decoding corpus response: %w", err)
	}

	return parsed.Data.Results, nil
}
