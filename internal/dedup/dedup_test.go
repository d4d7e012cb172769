package dedup

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josephgoksu/KnowledgeWing/internal/config"
	"github.com/josephgoksu/KnowledgeWing/internal/scoring"
)

func newDetector() *Detector {
	return NewDetector(config.DefaultDedupConfig(), nil)
}

func TestDetect_ExactDuplicatesGroupUnderFirstSeen(t *testing.T) {
	items := []scoring.Item{
		{ID: "a", Content: "Deploy runbook for the payments service"},
		{ID: "b", Content: "deploy  RUNBOOK for the\npayments service"},
		{ID: "c", Content: "Deploy runbook for the payments service"},
	}

	res := newDetector().Detect("p1", items)

	assert.Equal(t, Groups{"a": {"b", "c"}}, res.Groups)
	require.Len(t, res.Unique, 1)
	assert.Equal(t, "a", res.Unique[0].ID)
	assert.Equal(t, 2, res.DuplicatesRemoved)
}

func TestDetect_UnrelatedNeverGroup(t *testing.T) {
	items := []scoring.Item{
		{ID: "a", Content: "Postgres connection pool exhausted under load"},
		{ID: "b", Content: "Quarterly planning meeting notes for the design team"},
	}

	res := newDetector().Detect("p1", items)

	assert.Empty(t, res.Groups)
	assert.Len(t, res.Unique, 2)
	assert.Zero(t, res.DuplicatesRemoved)
}

func TestDetect_NearDuplicates(t *testing.T) {
	base := "the cache layer evicts entries using least recently used ordering across shards " +
		"with background compaction running hourly over every region cluster node"
	items := []scoring.Item{
		{ID: "a", Content: base},
		{ID: "b", Content: base + " today"},
		{ID: "c", Content: "completely different text about onboarding new engineers quickly"},
	}

	res := newDetector().Detect("p1", items)

	assert.Equal(t, Groups{"a": {"b"}}, res.Groups)
	assert.Len(t, res.Unique, 2)
}

func TestDetect_ThresholdIsConfigurable(t *testing.T) {
	items := []scoring.Item{
		{ID: "a", Content: "alpha beta gamma delta epsilon"},
		{ID: "b", Content: "alpha beta gamma delta zeta"},
	}

	strict := NewDetector(config.DedupConfig{NearDuplicateThreshold: 0.85, MinTokens: 4}, nil)
	assert.Empty(t, strict.Detect("p1", items).Groups, "4/6 overlap is below 0.85")

	loose := NewDetector(config.DedupConfig{NearDuplicateThreshold: 0.6, MinTokens: 4}, nil)
	assert.Equal(t, Groups{"a": {"b"}}, loose.Detect("p1", items).Groups)
}

func TestDetect_FailsOpen(t *testing.T) {
	items := []scoring.Item{
		{ID: "", Content: "same content"},
		{ID: "", Content: "same content"},
		{ID: "x", Content: "   "},
		{ID: "y", Content: "   "},
	}

	res := newDetector().Detect("p1", items)

	assert.Empty(t, res.Groups)
	assert.Len(t, res.Unique, 4)
	assert.Len(t, res.Skipped, 4)
}

func TestDetect_Reconciles(t *testing.T) {
	var items []scoring.Item
	for i := 0; i < 20; i++ {
		items = append(items, scoring.Item{ID: fmt.Sprintf("i%d", i), Content: fmt.Sprintf("item body %d", i%5)})
	}

	res := newDetector().Detect("p1", items)

	assert.Equal(t, len(items), len(res.Unique)+res.DuplicatesRemoved)
	dupCount := 0
	for _, ids := range res.Groups {
		dupCount += len(ids)
	}
	assert.Equal(t, res.DuplicatesRemoved, dupCount)
}

func TestHashNormalized(t *testing.T) {
	assert.Equal(t, HashNormalized("Hello   World"), HashNormalized(" hello world\n"))
	assert.NotEqual(t, HashNormalized("hello world"), HashNormalized("hello there"))
	assert.Len(t, HashNormalized("x"), 64)
}

func TestDetect_RepeatedIDCollapsesIntoFirstSeen(t *testing.T) {
	items := []scoring.Item{
		{ID: "x", Content: "Postgres connection pool exhausted under load"},
		{ID: "x", Content: "Quarterly planning meeting notes for the design team"},
		{ID: "e", Content: "  "},
		{ID: "e", Content: "Retry budget for the billing webhook consumer"},
	}

	res := newDetector().Detect("p1", items)

	require.Len(t, res.Unique, 2)
	assert.Equal(t, "Postgres connection pool exhausted under load", res.Unique[0].Content)
	assert.Equal(t, "e", res.Unique[1].ID)
	assert.Equal(t, Groups{"x": {"x"}, "e": {"e"}}, res.Groups)
	assert.Equal(t, 2, res.DuplicatesRemoved)
	assert.Equal(t, len(items), len(res.Unique)+res.DuplicatesRemoved)
}
