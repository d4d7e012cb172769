package knowledge

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func historyEntry(i int, query string, results int) HistoryEntry {
	return HistoryEntry{
		SearchID:     fmt.Sprintf("s-%d", i),
		Timestamp:    searchNow.Add(time.Duration(i) * time.Second),
		Query:        query,
		SearchType:   SearchCrossSource,
		ResultsCount: results,
	}
}

func TestHistoryRegistry_CapKeepsMostRecent(t *testing.T) {
	h := NewHistoryRegistry(0)
	for i := 0; i < 150; i++ {
		h.Append("p1", historyEntry(i, fmt.Sprintf("q%d", i), 1))
	}

	entries := h.Entries("p1")
	require.Len(t, entries, DefaultHistoryCap)
	for i, e := range entries {
		assert.Equal(t, fmt.Sprintf("s-%d", i+50), e.SearchID)
	}
}

func TestHistoryRegistry_ProjectsAreIsolated(t *testing.T) {
	h := NewHistoryRegistry(3)
	h.Append("p1", historyEntry(1, "a", 1))
	h.Append("p2", historyEntry(2, "b", 1))

	assert.Len(t, h.Entries("p1"), 1)
	assert.Len(t, h.Entries("p2"), 1)
	assert.Nil(t, h.Entries("p3"))
}

func TestHistoryRegistry_ConcurrentAppends(t *testing.T) {
	h := NewHistoryRegistry(100)
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				h.Append("p1", historyEntry(g*1000+i, "q", 0))
			}
		}(g)
	}
	wg.Wait()
	assert.Len(t, h.Entries("p1"), 100)
}

func TestHistoryRegistry_Analytics(t *testing.T) {
	h := NewHistoryRegistry(10)
	h.Append("p1", historyEntry(1, "jwt auth", 4))
	h.Append("p1", historyEntry(2, "JWT  auth", 2))
	h.Append("p1", historyEntry(3, "missing thing", 0))
	e := historyEntry(4, "deploy steps", 6)
	e.SearchType = SearchCodeSemantic
	h.Append("p1", e)

	a := h.Analytics("p1")
	assert.Equal(t, 4, a.TotalSearches)
	assert.Equal(t, 3, a.SearchesByType[SearchCrossSource])
	assert.Equal(t, 1, a.SearchesByType[SearchCodeSemantic])
	assert.InDelta(t, 3.0, a.AverageResults, 1e-9)
	assert.Equal(t, []string{"missing thing"}, a.ZeroResultQueries)
	require.NotEmpty(t, a.TopQueries)
	assert.Equal(t, QueryCount{Query: "jwt auth", Count: 2}, a.TopQueries[0])
	assert.Equal(t, e.Timestamp, a.LastSearchAt)

	empty := h.Analytics("nobody")
	assert.Zero(t, empty.TotalSearches)
	assert.Zero(t, empty.AverageResults)
}

func TestHistoryRegistry_Suggest(t *testing.T) {
	h := NewHistoryRegistry(10)
	h.Append("p1", historyEntry(1, "jwt auth", 1))
	h.Append("p1", historyEntry(2, "deploy steps", 1))
	h.Append("p1", historyEntry(3, "JWT refresh", 1))
	h.Append("p1", historyEntry(4, "jwt auth", 1))

	assert.Equal(t, []string{"jwt auth", "JWT refresh"}, h.Suggest("p1", "jw", 5))
	assert.Equal(t, []string{"jwt auth"}, h.Suggest("p1", "jwt", 1))
	assert.Empty(t, h.Suggest("p1", "kube", 5))
}
