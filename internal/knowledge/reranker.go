package knowledge

import (
	"context"
	"log/slog"
	"time"
)

// DefaultRerankTimeout bounds a single rerank call.
const DefaultRerankTimeout = 5 * time.Second

// Reranker rescores candidate documents against a query, for example with a
// cross-encoder service.
type Reranker interface {
	// Rerank returns a relevance score per document it kept.
	Rerank(ctx context.Context, query string, documents []string) ([]RerankResult, error)
}

// RerankResult is a reranked document with its score.
type RerankResult struct {
	Index int     // Original index in the input slice
	Score float64 // Relevance in [0,1]
}

// rerankResults replaces the relevance of results with reranker scores.
// If reranking fails or times out, results are returned unchanged. Results the
// reranker did not score keep their original relevance.
func rerankResults(ctx context.Context, reranker Reranker, query string, results []SearchResult, timeout time.Duration, logger *slog.Logger) []SearchResult {
	if reranker == nil || len(results) == 0 {
		return results
	}

	rerankCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	documents := make([]string, len(results))
	for i, r := range results {
		documents[i] = r.Title + "\n" + r.Content
	}

	scored, err := withDeadline(rerankCtx, func(ctx context.Context) ([]RerankResult, error) {
		return reranker.Rerank(ctx, query, documents)
	})
	if err != nil {
		logger.Warn("reranking failed, using original scores",
			"error", err,
			"timeout", timeout,
			"candidates", len(results))
		return results
	}

	out := make([]SearchResult, len(results))
	copy(out, results)
	for _, r := range scored {
		if r.Index >= 0 && r.Index < len(out) {
			out[r.Index].RelevanceScore = clamp01(r.Score)
		}
	}

	logger.Debug("reranking complete",
		"input_count", len(results),
		"scored_count", len(scored))
	return out
}
