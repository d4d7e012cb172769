package knowledge

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/indexer"
	"github.com/cloudwego/eino/components/retriever"
	"github.com/cloudwego/eino/schema"

	"github.com/josephgoksu/KnowledgeWing/internal/scoring"
	"github.com/josephgoksu/KnowledgeWing/internal/timeline"
)

// Candidate is one hit from an external search capability.
type Candidate struct {
	ID       string
	Content  string
	Metadata map[string]any
	Score    float64
}

// CandidateRequest asks a Retriever for candidates within a namespace.
type CandidateRequest struct {
	Query     string
	Namespace string
	TopK      int
}

// Retriever fetches search candidates. Implementations should honor ctx; the
// engine stops waiting at the search deadline either way.
type Retriever interface {
	Search(ctx context.Context, req CandidateRequest) ([]Candidate, error)
}

// Indexer receives stored items for external indexing and reports how many
// documents it created.
type Indexer interface {
	Index(ctx context.Context, namespace string, items []scoring.ScoredItem) (int, error)
}

// projectFromNamespace extracts the project id from a "project:<id>" namespace.
func projectFromNamespace(ns string) (string, error) {
	id, ok := strings.CutPrefix(ns, "project:")
	if !ok || id == "" {
		return "", fmt.Errorf("unsupported namespace %q", ns)
	}
	return id, nil
}

// itemMetadata flattens an item and its score into candidate metadata.
func itemMetadata(item scoring.Item, score scoring.Score) map[string]any {
	md := make(map[string]any, len(item.Metadata)+6)
	for k, v := range item.Metadata {
		md[k] = v
	}
	md["data_type"] = item.Type
	if item.Author != "" {
		md["author"] = item.Author
	}
	if !item.CreatedAt.IsZero() {
		md["created_at"] = item.CreatedAt.UTC().Format(time.RFC3339Nano)
	}
	md["importance_score"] = score.OverallScore
	md["importance_level"] = string(score.Level)
	return md
}

// EinoRetriever adapts an eino retriever, mapping the namespace onto the
// retriever's sub-index.
type EinoRetriever struct {
	r              retriever.Retriever
	index          string
	scoreThreshold *float64
}

// EinoRetrieverOption configures an EinoRetriever.
type EinoRetrieverOption func(*EinoRetriever)

// WithEinoIndex sets the index passed to every Retrieve call.
func WithEinoIndex(index string) EinoRetrieverOption {
	return func(e *EinoRetriever) { e.index = index }
}

// WithEinoScoreThreshold drops documents scored below threshold at the source.
func WithEinoScoreThreshold(threshold float64) EinoRetrieverOption {
	return func(e *EinoRetriever) { e.scoreThreshold = &threshold }
}

// NewEinoRetriever wraps r.
func NewEinoRetriever(r retriever.Retriever, opts ...EinoRetrieverOption) *EinoRetriever {
	e := &EinoRetriever{r: r}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Search implements Retriever.
func (e *EinoRetriever) Search(ctx context.Context, req CandidateRequest) ([]Candidate, error) {
	opts := []retriever.Option{
		retriever.WithSubIndex(req.Namespace),
		retriever.WithTopK(req.TopK),
	}
	if e.index != "" {
		opts = append(opts, retriever.WithIndex(e.index))
	}
	if e.scoreThreshold != nil {
		opts = append(opts, retriever.WithScoreThreshold(*e.scoreThreshold))
	}

	docs, err := e.r.Retrieve(ctx, req.Query, opts...)
	if err != nil {
		return nil, fmt.Errorf("retrieve: %w", err)
	}

	candidates := make([]Candidate, 0, len(docs))
	for _, d := range docs {
		if d == nil {
			continue
		}
		candidates = append(candidates, Candidate{
			ID:       d.ID,
			Content:  d.Content,
			Metadata: d.MetaData,
			Score:    d.Score(),
		})
	}
	return candidates, nil
}

// EinoIndexer adapts an eino indexer. Documents are stored under the
// namespace as their sub-index.
type EinoIndexer struct {
	idx indexer.Indexer
}

// NewEinoIndexer wraps idx.
func NewEinoIndexer(idx indexer.Indexer) *EinoIndexer {
	return &EinoIndexer{idx: idx}
}

// Index implements Indexer.
func (e *EinoIndexer) Index(ctx context.Context, namespace string, items []scoring.ScoredItem) (int, error) {
	if len(items) == 0 {
		return 0, nil
	}
	docs := make([]*schema.Document, len(items))
	for i, si := range items {
		docs[i] = &schema.Document{
			ID:       si.Item.ID,
			Content:  si.Item.Content,
			MetaData: itemMetadata(si.Item, si.Score),
		}
	}
	ids, err := e.idx.Store(ctx, docs, indexer.WithSubIndexes([]string{namespace}))
	if err != nil {
		return 0, fmt.Errorf("store documents: %w", err)
	}
	return len(ids), nil
}

// EntrySearcher is a keyword search over stored timeline entries.
type EntrySearcher interface {
	SearchEntries(ctx context.Context, projectID, query string, limit int, now time.Time) ([]timeline.SearchHit, error)
}

// StoreRetriever serves candidates from the timeline store itself, so search
// works without an external vector service.
type StoreRetriever struct {
	searcher EntrySearcher
	now      func() time.Time
}

// NewStoreRetriever creates a retriever over searcher.
func NewStoreRetriever(searcher EntrySearcher) *StoreRetriever {
	return &StoreRetriever{searcher: searcher, now: time.Now}
}

// Search implements Retriever.
func (s *StoreRetriever) Search(ctx context.Context, req CandidateRequest) ([]Candidate, error) {
	projectID, err := projectFromNamespace(req.Namespace)
	if err != nil {
		return nil, err
	}
	hits, err := s.searcher.SearchEntries(ctx, projectID, req.Query, req.TopK, s.now().UTC())
	if err != nil {
		return nil, err
	}
	candidates := make([]Candidate, len(hits))
	for i, h := range hits {
		md := itemMetadata(h.Entry.Item, h.Entry.Score)
		md["entry_id"] = h.Entry.EntryID
		md["storage_tier"] = string(h.Entry.Tier)
		candidates[i] = Candidate{
			ID:       h.Entry.Item.ID,
			Content:  h.Entry.Item.Content,
			Metadata: md,
			Score:    h.Relevance,
		}
	}
	return candidates, nil
}
