package knowledge

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// DefaultHistoryCap bounds each project's search history.
const DefaultHistoryCap = 100

// HistoryEntry records one completed search.
type HistoryEntry struct {
	SearchID     string     `json:"search_id"`
	Timestamp    time.Time  `json:"timestamp"`
	Query        string     `json:"query"`
	SearchType   SearchType `json:"search_type"`
	ResultsCount int        `json:"results_count"`
}

// historyRing is a fixed-capacity FIFO of entries.
type historyRing struct {
	mu    sync.Mutex
	buf   []HistoryEntry
	start int
	n     int
}

func (r *historyRing) add(e HistoryEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.n < len(r.buf) {
		r.buf[(r.start+r.n)%len(r.buf)] = e
		r.n++
		return
	}
	r.buf[r.start] = e
	r.start = (r.start + 1) % len(r.buf)
}

func (r *historyRing) snapshot() []HistoryEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]HistoryEntry, r.n)
	for i := 0; i < r.n; i++ {
		out[i] = r.buf[(r.start+i)%len(r.buf)]
	}
	return out
}

// HistoryRegistry keeps a capped search history per project.
type HistoryRegistry struct {
	capacity int

	mu       sync.Mutex
	projects map[string]*historyRing
}

// NewHistoryRegistry creates a registry; capacity <= 0 means DefaultHistoryCap.
func NewHistoryRegistry(capacity int) *HistoryRegistry {
	if capacity <= 0 {
		capacity = DefaultHistoryCap
	}
	return &HistoryRegistry{capacity: capacity, projects: make(map[string]*historyRing)}
}

func (h *HistoryRegistry) ring(projectID string) *historyRing {
	h.mu.Lock()
	defer h.mu.Unlock()
	r, ok := h.projects[projectID]
	if !ok {
		r = &historyRing{buf: make([]HistoryEntry, h.capacity)}
		h.projects[projectID] = r
	}
	return r
}

// Append records a search, evicting the oldest entry when full.
func (h *HistoryRegistry) Append(projectID string, e HistoryEntry) {
	h.ring(projectID).add(e)
}

// Replace sets a project's history to entries, keeping the most recent ones
// when entries exceed the capacity.
func (h *HistoryRegistry) Replace(projectID string, entries []HistoryEntry) {
	r := &historyRing{buf: make([]HistoryEntry, h.capacity)}
	for _, e := range entries {
		r.add(e)
	}
	h.mu.Lock()
	h.projects[projectID] = r
	h.mu.Unlock()
}

// Capacity is the per-project history bound.
func (h *HistoryRegistry) Capacity() int { return h.capacity }

// HistoryJournal persists search history across processes.
type HistoryJournal interface {
	AppendSearch(ctx context.Context, projectID string, e HistoryEntry) error
	// ListSearches returns up to limit most recent searches, oldest first.
	ListSearches(ctx context.Context, projectID string, limit int) ([]HistoryEntry, error)
}

// Entries returns a project's history, oldest first.
func (h *HistoryRegistry) Entries(projectID string) []HistoryEntry {
	h.mu.Lock()
	r, ok := h.projects[projectID]
	h.mu.Unlock()
	if !ok {
		return nil
	}
	return r.snapshot()
}

// QueryCount is how often a query was run.
type QueryCount struct {
	Query string `json:"query"`
	Count int    `json:"count"`
}

// SearchAnalytics summarizes a project's recorded history.
type SearchAnalytics struct {
	ProjectID         string             `json:"project_id"`
	TotalSearches     int                `json:"total_searches"`
	SearchesByType    map[SearchType]int `json:"searches_by_type"`
	AverageResults    float64            `json:"average_results"`
	ZeroResultQueries []string           `json:"zero_result_queries,omitempty"`
	TopQueries        []QueryCount       `json:"top_queries,omitempty"`
	LastSearchAt      time.Time          `json:"last_search_at,omitempty"`
}

const topQueryLimit = 5

// Analytics aggregates a project's history.
func (h *HistoryRegistry) Analytics(projectID string) SearchAnalytics {
	entries := h.Entries(projectID)
	a := SearchAnalytics{
		ProjectID:      projectID,
		TotalSearches:  len(entries),
		SearchesByType: make(map[SearchType]int),
	}
	if len(entries) == 0 {
		return a
	}

	counts := make(map[string]int)
	zeroSeen := make(map[string]bool)
	totalResults := 0
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		a.SearchesByType[e.SearchType]++
		totalResults += e.ResultsCount
		q := normalizeQuery(e.Query)
		counts[q]++
		if e.ResultsCount == 0 && !zeroSeen[q] {
			zeroSeen[q] = true
			a.ZeroResultQueries = append(a.ZeroResultQueries, e.Query)
		}
	}
	a.AverageResults = float64(totalResults) / float64(len(entries))
	a.LastSearchAt = entries[len(entries)-1].Timestamp

	for q, n := range counts {
		a.TopQueries = append(a.TopQueries, QueryCount{Query: q, Count: n})
	}
	sort.Slice(a.TopQueries, func(i, j int) bool {
		if a.TopQueries[i].Count != a.TopQueries[j].Count {
			return a.TopQueries[i].Count > a.TopQueries[j].Count
		}
		return a.TopQueries[i].Query < a.TopQueries[j].Query
	})
	if len(a.TopQueries) > topQueryLimit {
		a.TopQueries = a.TopQueries[:topQueryLimit]
	}
	return a
}

// Suggest returns distinct past queries starting with prefix, most recent first.
func (h *HistoryRegistry) Suggest(projectID, prefix string, limit int) []string {
	if limit <= 0 {
		limit = topQueryLimit
	}
	p := normalizeQuery(prefix)
	entries := h.Entries(projectID)
	seen := make(map[string]bool)
	var out []string
	for i := len(entries) - 1; i >= 0 && len(out) < limit; i-- {
		q := normalizeQuery(entries[i].Query)
		if seen[q] || !strings.HasPrefix(q, p) {
			continue
		}
		seen[q] = true
		out = append(out, entries[i].Query)
	}
	return out
}

func normalizeQuery(q string) string {
	return strings.Join(strings.Fields(strings.ToLower(q)), " ")
}
