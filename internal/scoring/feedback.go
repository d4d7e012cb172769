package scoring

import (
	"context"
	"maps"
	"strings"
	"sync"

	"github.com/josephgoksu/KnowledgeWing/internal/utils"
)

// FeedbackJournal persists the append-only feedback log.
type FeedbackJournal interface {
	AppendFeedback(ctx context.Context, entry FeedbackEntry) error
	ListFeedback(ctx context.Context, projectID string) ([]FeedbackEntry, error)
}

// Bias table key prefixes.
const (
	typeKeyPrefix = "type:"
	sigKeyPrefix  = "sig:"
)

const signatureTokens = 5

// Signature summarizes content as its most frequent tokens so that similar
// items share a bias key.
func Signature(content string) string {
	return strings.Join(utils.TopTokens(content, signatureTokens), ",")
}

func typeKey(dataType string) string { return typeKeyPrefix + strings.ToLower(dataType) }

func sigKey(dataType, signature string) string {
	return sigKeyPrefix + strings.ToLower(dataType) + ":" + signature
}

// seenItem is what the scorer remembers about an item so later feedback can
// be related to it.
type seenItem struct {
	dataType  string
	signature string
	rawScore  float64
}

// feedbackState is the per-project feedback log plus its derived bias table.
type feedbackState struct {
	mu   sync.RWMutex
	log  []FeedbackEntry
	seen map[string]seenItem
	bias map[string]float64
}

// FeedbackRegistry holds feedback state per project, one lock per project.
type FeedbackRegistry struct {
	mu           sync.Mutex
	projects     map[string]*feedbackState
	learningRate float64
	maxBias      float64
}

// NewFeedbackRegistry creates an empty registry.
func NewFeedbackRegistry(learningRate, maxBias float64) *FeedbackRegistry {
	return &FeedbackRegistry{
		projects:     make(map[string]*feedbackState),
		learningRate: learningRate,
		maxBias:      maxBias,
	}
}

func (r *FeedbackRegistry) state(projectID string) *feedbackState {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.projects[projectID]
	if !ok {
		st = &feedbackState{
			seen: make(map[string]seenItem),
			bias: make(map[string]float64),
		}
		r.projects[projectID] = st
	}
	return st
}

func (r *FeedbackRegistry) remember(projectID, dataID string, item seenItem) {
	st := r.state(projectID)
	st.mu.Lock()
	st.seen[dataID] = item
	st.mu.Unlock()
}

func (r *FeedbackRegistry) lookup(projectID, dataID string) (seenItem, bool) {
	st := r.state(projectID)
	st.mu.RLock()
	defer st.mu.RUnlock()
	item, ok := st.seen[dataID]
	return item, ok
}

// append adds entries to the log and rederives the bias table.
func (r *FeedbackRegistry) append(projectID string, entries ...FeedbackEntry) {
	st := r.state(projectID)
	st.mu.Lock()
	defer st.mu.Unlock()
	st.log = append(st.log, entries...)
	st.bias = DeriveBias(st.log, r.learningRate, r.maxBias)
}

// replace swaps the log for entries, used when restoring from a journal.
func (r *FeedbackRegistry) replace(projectID string, entries []FeedbackEntry) {
	st := r.state(projectID)
	st.mu.Lock()
	defer st.mu.Unlock()
	st.log = append([]FeedbackEntry(nil), entries...)
	st.bias = DeriveBias(st.log, r.learningRate, r.maxBias)
}

// biasFor returns the combined correction for an item, clamped to ±maxBias.
func (r *FeedbackRegistry) biasFor(projectID, dataType, signature string) float64 {
	st := r.state(projectID)
	st.mu.RLock()
	defer st.mu.RUnlock()
	b := st.bias[typeKey(dataType)] + st.bias[sigKey(dataType, signature)]
	return clampAbs(b, r.maxBias)
}

// Log returns a copy of the project's feedback log in append order.
func (r *FeedbackRegistry) Log(projectID string) []FeedbackEntry {
	st := r.state(projectID)
	st.mu.RLock()
	defer st.mu.RUnlock()
	return append([]FeedbackEntry(nil), st.log...)
}

// BiasTable returns a copy of the project's derived bias table.
func (r *FeedbackRegistry) BiasTable(projectID string) map[string]float64 {
	st := r.state(projectID)
	st.mu.RLock()
	defer st.mu.RUnlock()
	return maps.Clone(st.bias)
}

// DeriveBias recomputes the bias table from a feedback log. Each key's bias is
// learningRate times the mean gap between feedback and the item's raw score,
// clamped to ±maxBias. Entries without a DataType never contribute.
func DeriveBias(log []FeedbackEntry, learningRate, maxBias float64) map[string]float64 {
	sums := make(map[string]float64)
	counts := make(map[string]int)
	for _, e := range log {
		if e.DataType == "" {
			continue
		}
		delta := e.FeedbackScore - e.PriorScore
		k := typeKey(e.DataType)
		sums[k] += delta
		counts[k]++
		if e.Signature != "" {
			k = sigKey(e.DataType, e.Signature)
			sums[k] += delta
			counts[k]++
		}
	}
	bias := make(map[string]float64, len(sums))
	for k, sum := range sums {
		bias[k] = clampAbs(learningRate*sum/float64(counts[k]), maxBias)
	}
	return bias
}

func clampAbs(v, limit float64) float64 {
	if v > limit {
		return limit
	}
	if v < -limit {
		return -limit
	}
	return v
}
