// Package knowledge ingests knowledge items and serves ranked semantic search
// over them.
package knowledge

import (
	"errors"
	"fmt"
	"time"

	"github.com/josephgoksu/KnowledgeWing/internal/scoring"
)

var (
	// ErrEmptyQuery is returned when a search has no query text.
	ErrEmptyQuery = errors.New("query is required")
	// ErrInvalidFilters wraps filter validation failures.
	ErrInvalidFilters = errors.New("invalid search filters")
)

// ContentType classifies a search result by its source.
type ContentType string

const (
	ContentCode          ContentType = "CODE"
	ContentDocumentation ContentType = "DOCUMENTATION"
	ContentMeeting       ContentType = "MEETING"
	ContentIssue         ContentType = "ISSUE"
	ContentPullRequest   ContentType = "PULL_REQUEST"
	ContentSlackMessage  ContentType = "SLACK_MESSAGE"
	ContentEmail         ContentType = "EMAIL"
	ContentCommit        ContentType = "COMMIT"
	ContentDiscussion    ContentType = "DISCUSSION"
)

// ContentTypes lists every content type.
var ContentTypes = []ContentType{
	ContentCode, ContentDocumentation, ContentMeeting, ContentIssue, ContentPullRequest,
	ContentSlackMessage, ContentEmail, ContentCommit, ContentDiscussion,
}

// SearchType names a search entry point.
type SearchType string

const (
	SearchCodeSemantic SearchType = "CODE_SEMANTIC"
	SearchCrossSource  SearchType = "CROSS_SOURCE"
	SearchContextual   SearchType = "CONTEXTUAL"
)

// Namespace returns the retrieval namespace of a project.
func Namespace(projectID string) string {
	return "project:" + projectID
}

// IntentAnalysis is the classification of a query.
type IntentAnalysis struct {
	PrimaryIntent    string             `json:"primary_intent"`
	IntentScores     map[string]float64 `json:"intent_scores"`
	TechnicalTerms   []string           `json:"technical_terms"`
	FunctionPatterns []string           `json:"function_patterns"`
}

// SourceInfo describes where a result came from.
type SourceInfo struct {
	SourceType string `json:"source_type,omitempty"`
	Author     string `json:"author,omitempty"`
	URL        string `json:"url,omitempty"`
	FilePath   string `json:"file_path,omitempty"`
}

// SearchResult is one ranked hit.
type SearchResult struct {
	ID               string           `json:"id"`
	ContentType      ContentType      `json:"content_type"`
	Title            string           `json:"title"`
	Content          string           `json:"content"`
	RelevanceScore   float64          `json:"relevance_score"`
	ImportanceScore  float64          `json:"importance_score"`
	ImportanceLevel  scoring.Level    `json:"importance_level"`
	TimelineCategory scoring.Category `json:"timeline_category"`
	FinalScore       float64          `json:"final_score"`
	SourceInfo       SourceInfo       `json:"source_info"`
	Metadata         map[string]any   `json:"metadata,omitempty"`
	Highlights       []string         `json:"highlights,omitempty"`
	RelatedItems     []string         `json:"related_items,omitempty"`
	ContextPath      string           `json:"context_path,omitempty"`
	CreatedAt        time.Time        `json:"created_at,omitempty"`
	FoundAt          time.Time        `json:"found_at"`
}

// Facets counts results per value of a metadata dimension.
type Facets map[string]map[string]int

// ContextInsights explains how a contextual search read the caller's context.
type ContextInsights struct {
	PrimaryIntent       string      `json:"primary_intent"`
	TechnicalTerms      []string    `json:"technical_terms,omitempty"`
	DominantContentType ContentType `json:"dominant_content_type,omitempty"`
	AverageImportance   float64     `json:"average_importance"`
	RecentResults       int         `json:"recent_results"`
	CurrentLanguage     string      `json:"current_language,omitempty"`
	Role                string      `json:"role,omitempty"`
}

// SearchResponse is returned by every search entry point.
type SearchResponse struct {
	SearchID        string           `json:"search_id"`
	Query           string           `json:"query"`
	EnhancedQuery   string           `json:"enhanced_query"`
	SearchType      SearchType       `json:"search_type"`
	Intent          IntentAnalysis   `json:"intent"`
	TotalResults    int              `json:"total_results"`
	Results         []SearchResult   `json:"results"`
	SearchTimeMS    int64            `json:"search_time_ms"`
	Suggestions     []string         `json:"suggestions,omitempty"`
	RelatedQueries  []string         `json:"related_queries,omitempty"`
	Facets          Facets           `json:"facets,omitempty"`
	ContextInsights *ContextInsights `json:"context_insights,omitempty"`
}

// SearchError reports a failed search. No results accompany it.
type SearchError struct {
	SearchType SearchType
	Elapsed    time.Duration
	Err        error
}

func (e *SearchError) Error() string {
	return fmt.Sprintf("%s search failed after %s: %v", e.SearchType, e.Elapsed.Round(time.Millisecond), e.Err)
}

func (e *SearchError) Unwrap() error { return e.Err }
