package knowledge

import (
	"math"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/josephgoksu/KnowledgeWing/internal/config"
	"github.com/josephgoksu/KnowledgeWing/internal/scoring"
	"github.com/josephgoksu/KnowledgeWing/internal/utils"
)

// sourceContentTypes maps source_type and item type values to content types.
var sourceContentTypes = map[string]ContentType{
	"code":          ContentCode,
	"github_code":   ContentCode,
	"source":        ContentCode,
	"snippet":       ContentCode,
	"document":      ContentDocumentation,
	"documentation": ContentDocumentation,
	"docs":          ContentDocumentation,
	"notion":        ContentDocumentation,
	"confluence":    ContentDocumentation,
	"wiki":          ContentDocumentation,
	"readme":        ContentDocumentation,
	"meeting":       ContentMeeting,
	"transcript":    ContentMeeting,
	"zoom":          ContentMeeting,
	"issue":         ContentIssue,
	"github_issue":  ContentIssue,
	"jira":          ContentIssue,
	"linear":        ContentIssue,
	"ticket":        ContentIssue,
	"pull_request":  ContentPullRequest,
	"github_pr":     ContentPullRequest,
	"pr":            ContentPullRequest,
	"merge_request": ContentPullRequest,
	"slack":         ContentSlackMessage,
	"slack_message": ContentSlackMessage,
	"chat":          ContentSlackMessage,
	"email":         ContentEmail,
	"gmail":         ContentEmail,
	"mail":          ContentEmail,
	"commit":        ContentCommit,
	"git_commit":    ContentCommit,
	"discussion":    ContentDiscussion,
	"comment":       ContentDiscussion,
	"forum":         ContentDiscussion,
}

// codeExtensions identify source files by extension.
var codeExtensions = map[string]string{
	"go": "go", "py": "python", "js": "javascript", "jsx": "javascript", "ts": "typescript",
	"tsx": "typescript", "java": "java", "kt": "kotlin", "rb": "ruby", "rs": "rust",
	"c": "c", "h": "c", "cc": "cpp", "cpp": "cpp", "hpp": "cpp", "cs": "csharp",
	"php": "php", "swift": "swift", "scala": "scala", "sh": "shell", "sql": "sql",
}

var docExtensions = map[string]bool{"md": true, "rst": true, "txt": true, "adoc": true, "pdf": true}

// LanguageForPath returns the language of a source file, or "" if unknown.
func LanguageForPath(p string) string {
	return codeExtensions[normalizeExt(path.Ext(p))]
}

// DetermineContentType classifies an item from its metadata: source type first,
// then item type, then file path, then language. Ambiguous items are DOCUMENTATION.
func DetermineContentType(metadata map[string]any) ContentType {
	for _, key := range []string{"source_type", "data_type", "type"} {
		if ct, ok := sourceContentTypes[strings.ToLower(metaString(metadata, key))]; ok {
			return ct
		}
	}
	if fp := metaString(metadata, "file_path"); fp != "" {
		ext := normalizeExt(path.Ext(fp))
		if _, ok := codeExtensions[ext]; ok {
			return ContentCode
		}
		if docExtensions[ext] {
			return ContentDocumentation
		}
	}
	if metaString(metadata, "language") != "" {
		return ContentCode
	}
	return ContentDocumentation
}

// RankResults scores each result as a weighted blend of relevance, importance,
// intent match and recency, drops results below threshold importance, and
// sorts by final score desc, then recency desc, then id asc.
func RankResults(results []SearchResult, query string, intent IntentAnalysis, threshold float64, cfg config.SearchConfig, now time.Time) []SearchResult {
	return rankWith(results, query, intent, threshold, cfg, now, nil)
}

// boostFunc adds a caller-specific adjustment to a result's final score.
type boostFunc func(SearchResult) float64

func rankWith(results []SearchResult, query string, intent IntentAnalysis, threshold float64, cfg config.SearchConfig, now time.Time, boost boostFunc) []SearchResult {
	terms := intentTerms(query, intent)
	ranked := make([]SearchResult, 0, len(results))
	for _, r := range results {
		if r.ImportanceScore < threshold {
			continue
		}
		r.FinalScore = cfg.RelevanceWeight*clamp01(r.RelevanceScore) +
			cfg.ImportanceWeight*clamp01(r.ImportanceScore) +
			cfg.IntentWeight*intentMatch(r, terms) +
			cfg.RecencyWeight*recency(r.CreatedAt, now, cfg.RecencyHalfLifeDays)
		if boost != nil {
			r.FinalScore += boost(r)
		}
		ranked = append(ranked, r)
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.FinalScore != b.FinalScore {
			return a.FinalScore > b.FinalScore
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID < b.ID
	})
	return ranked
}

// intentTerms are the words a result should contain to match the query's intent.
func intentTerms(query string, intent IntentAnalysis) []string {
	seen := make(map[string]bool)
	var terms []string
	add := func(t string) {
		t = strings.ToLower(t)
		if t != "" && !seen[t] {
			seen[t] = true
			terms = append(terms, t)
		}
	}
	if def, ok := intentByName(intent.PrimaryIntent); ok {
		for _, w := range queryWords(query) {
			for _, kw := range def.keywords {
				if keywordMatches(w, kw) {
					add(w)
					break
				}
			}
		}
		for _, e := range def.expansions {
			add(e)
		}
	}
	for _, t := range intent.TechnicalTerms {
		add(t)
	}
	for _, p := range intent.FunctionPatterns {
		add(p)
	}
	return terms
}

// intentMatch is the share of intent terms found in the result, saturating at three hits.
func intentMatch(r SearchResult, terms []string) float64 {
	if len(terms) == 0 {
		return 0
	}
	text := strings.ToLower(r.Title + "\n" + r.Content)
	hits := 0
	for _, t := range terms {
		if strings.Contains(text, t) {
			hits++
		}
	}
	need := math.Min(3, float64(len(terms)))
	return math.Min(1, float64(hits)/need)
}

func recency(createdAt, now time.Time, halfLifeDays float64) float64 {
	if createdAt.IsZero() || halfLifeDays <= 0 {
		return 0
	}
	age := now.Sub(createdAt)
	if age < 0 {
		age = 0
	}
	return math.Pow(0.5, age.Hours()/24/halfLifeDays)
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v) || v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

// neutralImportance is assigned to candidates that carry no stored score.
const neutralImportance = 0.5

// toResults converts candidates into unranked results. Relevance is taken as
// is when every score lies in [0,1], otherwise normalized by the best score.
func toResults(candidates []Candidate, query string, now time.Time) []SearchResult {
	maxScore := 0.0
	for _, c := range candidates {
		maxScore = math.Max(maxScore, c.Score)
	}
	words := utils.Tokenize(query)

	results := make([]SearchResult, 0, len(candidates))
	for _, c := range candidates {
		relevance := c.Score
		if maxScore > 1 {
			relevance = c.Score / maxScore
		}
		md := c.Metadata
		if md == nil {
			md = map[string]any{}
		}

		importance := neutralImportance
		if v, ok := metaFloat(md, "importance_score"); ok {
			importance = clamp01(v)
		}
		level, ok := scoring.ParseLevel(metaString(md, "importance_level"))
		if !ok {
			level = scoring.LevelFor(importance)
		}
		createdAt := metaTime(md, "created_at")

		filePath := metaString(md, "file_path")
		results = append(results, SearchResult{
			ID:               c.ID,
			ContentType:      DetermineContentType(md),
			Title:            resultTitle(md, c.Content),
			Content:          c.Content,
			RelevanceScore:   clamp01(relevance),
			ImportanceScore:  importance,
			ImportanceLevel:  level,
			TimelineCategory: scoring.CategoryAt(createdAt, now),
			SourceInfo: SourceInfo{
				SourceType: metaString(md, "source_type"),
				Author:     metaString(md, "author"),
				URL:        metaString(md, "url"),
				FilePath:   filePath,
			},
			Metadata:     md,
			Highlights:   highlights(c.Content, words),
			RelatedItems: metaStrings(md, "related_items"),
			ContextPath:  contextPath(md),
			CreatedAt:    createdAt,
			FoundAt:      now,
		})
	}
	return results
}

func resultTitle(md map[string]any, content string) string {
	if t := metaString(md, "title"); t != "" {
		return t
	}
	if fp := metaString(md, "file_path"); fp != "" {
		return path.Base(fp)
	}
	line := strings.TrimSpace(content)
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = strings.TrimSpace(line[:i])
	}
	return utils.Truncate(line, 80)
}

func contextPath(md map[string]any) string {
	if fp := metaString(md, "file_path"); fp != "" {
		return fp
	}
	parts := make([]string, 0, 3)
	for _, key := range []string{"source_type", "repository", "channel"} {
		if v := metaString(md, key); v != "" {
			parts = append(parts, v)
		}
	}
	return strings.Join(parts, "/")
}

// highlights returns up to three lines of content that mention a query word.
func highlights(content string, words []string) []string {
	if len(words) == 0 {
		return nil
	}
	var out []string
	for _, line := range strings.Split(content, "\n") {
		lower := strings.ToLower(line)
		for _, w := range words {
			if strings.Contains(lower, w) {
				out = append(out, utils.Truncate(strings.TrimSpace(line), 160))
				break
			}
		}
		if len(out) == 3 {
			break
		}
	}
	return out
}

func metaString(md map[string]any, key string) string {
	s, _ := md[key].(string)
	return s
}

func metaFloat(md map[string]any, key string) (float64, bool) {
	switch v := md[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(v, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func metaTime(md map[string]any, key string) time.Time {
	switch v := md[key].(type) {
	case time.Time:
		return v.UTC()
	case string:
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			return t.UTC()
		}
	case int64:
		return time.Unix(v, 0).UTC()
	case float64:
		return time.Unix(int64(v), 0).UTC()
	}
	return time.Time{}
}

func metaStrings(md map[string]any, key string) []string {
	switch v := md[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, x := range v {
			if s, ok := x.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
