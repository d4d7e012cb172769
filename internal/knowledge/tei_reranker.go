package knowledge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// TEIRerankerConfig configures a Text Embeddings Inference reranker.
type TEIRerankerConfig struct {
	// BaseURL is the TEI server URL (e.g., "http://localhost:8081")
	BaseURL string

	// Timeout for HTTP requests (default: DefaultRerankTimeout)
	Timeout time.Duration
}

// TEIReranker scores documents through TEI's /rerank endpoint.
type TEIReranker struct {
	baseURL string
	client  *http.Client
}

type teiRerankRequest struct {
	Query    string   `json:"query"`
	Texts    []string `json:"texts"`
	Truncate bool     `json:"truncate,omitempty"`
}

type teiRerankResponse struct {
	Index int     `json:"index"`
	Score float64 `json:"score"`
}

// NewTEIReranker creates a TEI reranker client.
func NewTEIReranker(cfg TEIRerankerConfig) (*TEIReranker, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("TEI base URL is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultRerankTimeout
	}
	return &TEIReranker{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}, nil
}

// Rerank implements Reranker.
func (r *TEIReranker) Rerank(ctx context.Context, query string, documents []string) ([]RerankResult, error) {
	if len(documents) == 0 {
		return nil, nil
	}

	body, err := json.Marshal(teiRerankRequest{Query: query, Texts: documents, Truncate: true})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/rerank", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("TEI rerank returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var scored []teiRerankResponse
	if err := json.NewDecoder(resp.Body).Decode(&scored); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	out := make([]RerankResult, 0, len(scored))
	for _, s := range scored {
		if s.Index < 0 || s.Index >= len(documents) {
			continue
		}
		out = append(out, RerankResult{Index: s.Index, Score: s.Score})
	}
	return out, nil
}
