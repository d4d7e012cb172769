package scoring

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/josephgoksu/KnowledgeWing/internal/config"
)

// Strategy computes the raw importance of an item. Implementations must be
// pure: the same item and clock reading always yield the same Evaluation.
type Strategy interface {
	Evaluate(item Item, now time.Time) Evaluation
}

// Evaluation is the output of a Strategy before feedback bias is applied.
type Evaluation struct {
	Score     float64
	Factors   map[string]float64
	Reasoning []string
	// Signals counts the signals that had real data behind them.
	Signals int
}

// Factor names used in Score.Factors.
const (
	FactorContent    = "content_density"
	FactorType       = "type_priority"
	FactorKeyword    = "keyword_severity"
	FactorEngagement = "engagement"
	FactorRecency    = "recency"
	FactorBrevity    = "brevity_penalty"
	FactorBias       = "feedback_bias"
)

// typePriority is the base weight per item type. Unknown types get defaultTypePriority.
var typePriority = map[string]float64{
	"security_issue": 1.0,
	"incident":       0.95,
	"issue":          0.75,
	"bug":            0.75,
	"pull_request":   0.7,
	"code":           0.7,
	"commit":         0.5,
	"meeting":        0.55,
	"document":       0.6,
	"documentation":  0.6,
	"page":           0.55,
	"email":          0.4,
	"slack_message":  0.35,
	"discussion":     0.35,
	"comment":        0.2,
}

const defaultTypePriority = 0.3

// criticalTerms are matched as substrings of the lowercased content.
var criticalTerms = []string{
	"critical", "security", "vulnerability", "exploit", "breach", "cve-",
	"injection", "xss", "csrf", "authentication bypass", "privilege escalation",
	"data loss", "outage", "production down", "incident", "urgent", "emergency",
	"crash", "corruption", "leak", "hotfix", "rollback", "regression", "blocker",
}

const keywordSaturation = 3

var severityLevels = map[string]float64{
	"critical": 1.0, "blocker": 1.0, "sev0": 1.0, "sev1": 0.9, "p0": 1.0,
	"high": 0.8, "urgent": 0.9, "p1": 0.8, "sev2": 0.7,
	"medium": 0.5, "normal": 0.4, "p2": 0.5,
	"low": 0.2, "minor": 0.2, "trivial": 0.1, "p3": 0.2,
}

var severityLabels = map[string]float64{
	"security": 1.0, "critical": 1.0, "vulnerability": 1.0, "incident": 0.9,
	"bug": 0.6, "regression": 0.7, "urgent": 0.9, "blocker": 1.0,
}

// engagementKeys are summed from metadata; views count a tenth each.
var engagementKeys = []string{"comments", "reactions", "participants"}

// HeuristicStrategy is the hand-tuned weighted-signal scorer.
type HeuristicStrategy struct {
	cfg config.ScoringConfig
}

// NewHeuristicStrategy creates a heuristic strategy with the given weights.
func NewHeuristicStrategy(cfg config.ScoringConfig) *HeuristicStrategy {
	return &HeuristicStrategy{cfg: cfg}
}

// Evaluate implements Strategy.
func (h *HeuristicStrategy) Evaluate(item Item, now time.Time) Evaluation {
	ev := Evaluation{Factors: make(map[string]float64)}
	add := func(name string, weight, signal float64, hasData bool, why string) {
		contribution := weight * signal
		ev.Factors[name] = contribution
		ev.Score += contribution
		if hasData {
			ev.Signals++
		}
		if contribution > 0 {
			ev.Reasoning = append(ev.Reasoning, fmt.Sprintf("%s (+%.3f)", why, contribution))
		}
	}

	content := strings.TrimSpace(item.Content)
	runes := utf8.RuneCountInString(content)

	// Content density
	density := logistic(float64(runes), h.cfg.ContentMidpoint, h.cfg.ContentScale)
	add(FactorContent, h.cfg.ContentWeight, density, runes > 0,
		fmt.Sprintf("content length %d chars", runes))

	// Type priority
	itemType := strings.ToLower(strings.TrimSpace(item.Type))
	priority, known := typePriority[itemType]
	if !known {
		priority = defaultTypePriority
	}
	add(FactorType, h.cfg.TypeWeight, priority, known,
		fmt.Sprintf("type %q priority %.2f", itemType, priority))

	// Keyword / severity
	matches := matchCriticalTerms(content)
	keyword := math.Min(float64(len(matches)), keywordSaturation) / keywordSaturation
	meta, metaWhy := metadataSeverity(item.Metadata)
	why := ""
	switch {
	case meta > keyword:
		keyword = meta
		why = metaWhy
	case len(matches) > 0:
		why = "critical terms: " + strings.Join(matches, ", ")
	}
	add(FactorKeyword, h.cfg.KeywordWeight, keyword, why != "", why)

	// Engagement
	interactions, hasEngagement := engagementCount(item.Metadata)
	engagement := 1 - math.Exp(-interactions/10)
	add(FactorEngagement, h.cfg.EngagementWeight, engagement, hasEngagement,
		fmt.Sprintf("engagement %.0f interactions", interactions))

	// Recency
	age := time.Duration(0)
	if !item.CreatedAt.IsZero() {
		age = now.Sub(item.CreatedAt)
		if age < 0 {
			age = 0
		}
	}
	recency := halfLifeDecay(age, h.cfg.RecencyHalfLifeDays)
	add(FactorRecency, h.cfg.RecencyWeight, recency, !item.CreatedAt.IsZero(),
		fmt.Sprintf("age %.1f days", age.Hours()/24))

	ev.Score = clamp01(ev.Score)

	if runes < h.cfg.MinContentLength {
		penalty := ev.Score / 2
		ev.Score -= penalty
		ev.Factors[FactorBrevity] = -penalty
		ev.Reasoning = append(ev.Reasoning, fmt.Sprintf("content shorter than %d chars (-%.3f)", h.cfg.MinContentLength, penalty))
	}
	return ev
}

func logistic(x, midpoint, scale float64) float64 {
	if scale <= 0 {
		scale = 1
	}
	return 1 / (1 + math.Exp(-(x-midpoint)/scale))
}

// halfLifeDecay returns 0.5^(age/halfLife).
func halfLifeDecay(age time.Duration, halfLifeDays float64) float64 {
	if halfLifeDays <= 0 {
		return 1
	}
	days := age.Hours() / 24
	return math.Pow(0.5, days/halfLifeDays)
}

func matchCriticalTerms(content string) []string {
	lower := strings.ToLower(content)
	var matches []string
	for _, term := range criticalTerms {
		if strings.Contains(lower, term) {
			matches = append(matches, term)
		}
	}
	return matches
}

// metadataSeverity reads severity, priority and labels from metadata and
// returns the strongest signal found.
func metadataSeverity(metadata map[string]any) (float64, string) {
	best, why := 0.0, ""
	for _, key := range []string{"severity", "priority"} {
		raw, ok := metadata[key]
		if !ok {
			continue
		}
		s := strings.ToLower(strings.TrimSpace(fmt.Sprint(raw)))
		if v, ok := severityLevels[s]; ok && v > best {
			best, why = v, fmt.Sprintf("%s %s", key, s)
		}
	}
	for _, label := range stringList(metadata["labels"]) {
		l := strings.ToLower(strings.TrimSpace(label))
		if v, ok := severityLabels[l]; ok && v > best {
			best, why = v, "label "+l
		}
	}
	return best, why
}

func engagementCount(metadata map[string]any) (float64, bool) {
	total, found := 0.0, false
	for _, key := range engagementKeys {
		if v, ok := number(metadata[key]); ok {
			total += v
			found = true
		}
	}
	if v, ok := number(metadata["views"]); ok {
		total += v / 10
		found = true
	}
	if total < 0 {
		total = 0
	}
	return total, found
}

// number converts the numeric shapes produced by JSON, YAML and Go callers.
func number(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return 0, false
		}
		return n, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false
		}
		return f, true
	case fmt.Stringer:
		return number(n.String())
	default:
		return 0, false
	}
}

func stringList(v any) []string {
	switch l := v.(type) {
	case []string:
		return l
	case []any:
		out := make([]string, 0, len(l))
		for _, e := range l {
			out = append(out, fmt.Sprint(e))
		}
		return out
	case string:
		return strings.Split(l, ",")
	default:
		return nil
	}
}
