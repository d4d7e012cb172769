package knowledge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/josephgoksu/KnowledgeWing/internal/config"
	"github.com/josephgoksu/KnowledgeWing/internal/scoring"
	"github.com/josephgoksu/KnowledgeWing/internal/telemetry"
	"github.com/josephgoksu/KnowledgeWing/internal/timeline"
	"github.com/josephgoksu/KnowledgeWing/internal/utils"
)

const (
	maxSuggestions    = 5
	maxRelatedQueries = 5
	maxContextBoost   = 0.2
)

// CodeSearchRequest is the input of SemanticCodeSearch.
type CodeSearchRequest struct {
	ProjectID string   `json:"project_id"`
	Query     string   `json:"query"`
	Language  string   `json:"language,omitempty"`
	FileTypes []string `json:"file_types,omitempty"`
	Limit     int      `json:"limit,omitempty"`
}

// CrossSourceRequest is the input of CrossSourceSearch.
type CrossSourceRequest struct {
	ProjectID        string           `json:"project_id"`
	Query            string           `json:"query"`
	ContentTypes     []ContentType    `json:"content_types,omitempty"`
	TimelineCategory scoring.Category `json:"timeline_category,omitempty"`
	// Filters adds further constraints; ContentTypes and TimelineCategory above take precedence.
	Filters Filters `json:"filters,omitempty"`
	Limit   int     `json:"limit,omitempty"`
}

// UserContext describes who is searching and what they are working on.
type UserContext struct {
	Role string `json:"role,omitempty"`
	// Preferences are content type names or topic words the user favors.
	Preferences    []string `json:"preferences,omitempty"`
	CurrentFile    string   `json:"current_file,omitempty"`
	RecentActivity []string `json:"recent_activity,omitempty"`
}

// ContextualRequest is the input of ContextualSearch.
type ContextualRequest struct {
	ProjectID string      `json:"project_id"`
	Query     string      `json:"query"`
	Context   UserContext `json:"context"`
	Filters   Filters     `json:"filters,omitempty"`
	Limit     int         `json:"limit,omitempty"`
}

// roleContentTypes are the content types each role tends to look for.
var roleContentTypes = map[string][]ContentType{
	"developer": {ContentCode, ContentPullRequest, ContentCommit, ContentIssue},
	"engineer":  {ContentCode, ContentPullRequest, ContentCommit, ContentIssue},
	"manager":   {ContentMeeting, ContentIssue, ContentDocumentation, ContentEmail},
	"product":   {ContentMeeting, ContentIssue, ContentDocumentation, ContentDiscussion},
	"designer":  {ContentDocumentation, ContentDiscussion, ContentMeeting},
	"support":   {ContentIssue, ContentSlackMessage, ContentEmail, ContentDocumentation},
}

// Engine runs intent-aware searches against a Retriever and keeps per-project
// search history.
type Engine struct {
	retriever     Retriever
	cfg           config.SearchConfig
	history       *HistoryRegistry
	journal       HistoryJournal
	reranker      Reranker
	rerankTimeout time.Duration
	metrics       *telemetry.Metrics
	logger        *slog.Logger
	now           func() time.Time
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithHistory shares a history registry between engines.
func WithHistory(h *HistoryRegistry) EngineOption {
	return func(e *Engine) { e.history = h }
}

// WithHistoryJournal persists every recorded search.
func WithHistoryJournal(j HistoryJournal) EngineOption {
	return func(e *Engine) { e.journal = j }
}

// WithReranker rescores ranked candidates before truncation.
func WithReranker(r Reranker, timeout time.Duration) EngineOption {
	return func(e *Engine) {
		e.reranker = r
		e.rerankTimeout = timeout
	}
}

// WithEngineMetrics records search metrics.
func WithEngineMetrics(m *telemetry.Metrics) EngineOption {
	return func(e *Engine) { e.metrics = m }
}

// WithEngineLogger sets the logger.
func WithEngineLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) { e.logger = l }
}

// WithEngineClock sets the time used for recency and timestamps.
func WithEngineClock(now func() time.Time) EngineOption {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates a search engine.
func NewEngine(r Retriever, cfg config.SearchConfig, opts ...EngineOption) *Engine {
	e := &Engine{
		retriever:     r,
		cfg:           cfg,
		rerankTimeout: DefaultRerankTimeout,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.history == nil {
		e.history = NewHistoryRegistry(cfg.HistoryCap)
	}
	if e.logger == nil {
		e.logger = slog.Default().With("component", "search")
	}
	if e.rerankTimeout <= 0 {
		e.rerankTimeout = DefaultRerankTimeout
	}
	return e
}

type searchPlan struct {
	searchType SearchType
	projectID  string
	query      string
	limit      int
	filters    Filters
	threshold  float64
	language   string
	userCtx    *UserContext
}

// SemanticCodeSearch searches code only, optionally narrowed to a language
// and file types.
func (e *Engine) SemanticCodeSearch(ctx context.Context, req CodeSearchRequest) (*SearchResponse, error) {
	return e.run(ctx, searchPlan{
		searchType: SearchCodeSemantic,
		projectID:  req.ProjectID,
		query:      req.Query,
		limit:      req.Limit,
		filters: Filters{
			Language:     req.Language,
			FileTypes:    req.FileTypes,
			ContentTypes: []ContentType{ContentCode},
		},
		threshold: e.cfg.CodeImportanceThreshold,
		language:  req.Language,
	})
}

// CrossSourceSearch searches across content types and returns facets and
// related queries.
func (e *Engine) CrossSourceSearch(ctx context.Context, req CrossSourceRequest) (*SearchResponse, error) {
	f := req.Filters
	if len(req.ContentTypes) > 0 {
		f.ContentTypes = req.ContentTypes
	}
	if req.TimelineCategory != "" {
		f.TimelineCategory = req.TimelineCategory
	}
	return e.run(ctx, searchPlan{
		searchType: SearchCrossSource,
		projectID:  req.ProjectID,
		query:      req.Query,
		limit:      req.Limit,
		filters:    f,
		threshold:  e.cfg.CrossImportanceThreshold,
	})
}

// ContextualSearch ranks with the caller's role, preferences, current file
// and recent activity, and always returns at least one suggestion.
func (e *Engine) ContextualSearch(ctx context.Context, req ContextualRequest) (*SearchResponse, error) {
	uc := req.Context
	return e.run(ctx, searchPlan{
		searchType: SearchContextual,
		projectID:  req.ProjectID,
		query:      req.Query,
		limit:      req.Limit,
		filters:    req.Filters,
		threshold:  e.cfg.CrossImportanceThreshold,
		language:   LanguageForPath(uc.CurrentFile),
		userCtx:    &uc,
	})
}

// SearchHistory returns a project's recorded searches, oldest first.
func (e *Engine) SearchHistory(projectID string) []HistoryEntry {
	return e.history.Entries(projectID)
}

// StoreSearchHistory records a search for a project.
func (e *Engine) StoreSearchHistory(projectID string, entry HistoryEntry) {
	e.history.Append(projectID, entry)
}

// RestoreHistory reloads a project's history from the journal.
func (e *Engine) RestoreHistory(ctx context.Context, projectID string) error {
	if e.journal == nil {
		return nil
	}
	entries, err := e.journal.ListSearches(ctx, projectID, e.history.Capacity())
	if err != nil {
		return fmt.Errorf("restore search history: %w", err)
	}
	e.history.Replace(projectID, entries)
	return nil
}

// SearchAnalytics aggregates a project's search history.
func (e *Engine) SearchAnalytics(projectID string) SearchAnalytics {
	return e.history.Analytics(projectID)
}

// Suggest returns past queries of a project starting with prefix.
func (e *Engine) Suggest(projectID, prefix string, limit int) []string {
	return e.history.Suggest(projectID, prefix, limit)
}

func (e *Engine) candidateCount(limit int) int {
	n := limit * e.cfg.CandidateMultiplier
	if e.cfg.MaxCandidates > 0 && n > e.cfg.MaxCandidates {
		n = e.cfg.MaxCandidates
	}
	if n < limit {
		n = limit
	}
	return n
}

func (e *Engine) run(ctx context.Context, plan searchPlan) (*SearchResponse, error) {
	start := time.Now()
	ctx, span := telemetry.Tracer().Start(ctx, "knowledge.search", trace.WithAttributes(
		attribute.String("search.type", string(plan.searchType)),
		attribute.String("project.id", plan.projectID),
	))
	defer span.End()

	resp, err := e.execute(ctx, plan, start)
	elapsed := time.Since(start)

	results := 0
	if resp != nil {
		results = resp.TotalResults
	}
	e.metrics.RecordSearch(string(plan.searchType), elapsed, results, err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e.logger.Warn("search failed", "project", plan.projectID, "type", plan.searchType, "error", err)
		return nil, err
	}
	span.SetAttributes(attribute.Int("search.results", results))
	return resp, nil
}

func (e *Engine) execute(ctx context.Context, plan searchPlan, start time.Time) (*SearchResponse, error) {
	if strings.TrimSpace(plan.projectID) == "" {
		return nil, timeline.ErrInvalidProject
	}
	if strings.TrimSpace(plan.query) == "" {
		return nil, ErrEmptyQuery
	}
	if err := plan.filters.Validate(); err != nil {
		return nil, err
	}
	if plan.limit <= 0 {
		plan.limit = e.cfg.DefaultLimit
	}

	intent := AnalyzeIntent(plan.query)
	enhanced := EnhanceQuery(plan.query, intent)
	if plan.searchType == SearchCodeSemantic && plan.language != "" &&
		!strings.Contains(strings.ToLower(enhanced), strings.ToLower(plan.language)) {
		enhanced += " " + plan.language
	}

	candidates, err := e.retrieve(ctx, plan, enhanced)
	if err != nil {
		return nil, &SearchError{SearchType: plan.searchType, Elapsed: time.Since(start), Err: err}
	}

	now := e.now().UTC()
	results := FilterResults(toResults(candidates, plan.query, now), plan.filters)

	boost := e.boostFor(plan, intent)
	results = rankWith(results, plan.query, intent, plan.threshold, e.cfg, now, boost)
	if e.reranker != nil {
		results = rerankResults(ctx, e.reranker, plan.query, results, e.rerankTimeout, e.logger)
		results = rankWith(results, plan.query, intent, plan.threshold, e.cfg, now, boost)
	}
	if len(results) > plan.limit {
		results = results[:plan.limit]
	}

	resp := &SearchResponse{
		SearchID:      uuid.NewString(),
		Query:         plan.query,
		EnhancedQuery: enhanced,
		SearchType:    plan.searchType,
		Intent:        intent,
		TotalResults:  len(results),
		Results:       results,
	}

	switch plan.searchType {
	case SearchCrossSource:
		resp.Facets = computeFacets(results)
		resp.RelatedQueries = relatedQueries(plan.query, intent, resp.Facets)
	case SearchContextual:
		resp.Facets = computeFacets(results)
		resp.Suggestions = e.suggestions(plan, intent, results)
		resp.ContextInsights = contextInsights(intent, results, plan.userCtx)
	default:
		resp.Suggestions = e.suggestions(plan, intent, results)
	}

	resp.SearchTimeMS = time.Since(start).Milliseconds()
	entry := HistoryEntry{
		SearchID:     resp.SearchID,
		Timestamp:    now,
		Query:        plan.query,
		SearchType:   plan.searchType,
		ResultsCount: resp.TotalResults,
	}
	e.history.Append(plan.projectID, entry)
	if e.journal != nil {
		if err := e.journal.AppendSearch(ctx, plan.projectID, entry); err != nil {
			e.logger.Warn("persist search history failed", "project", plan.projectID, "error", err)
		}
	}
	return resp, nil
}

// retrieve fetches candidates within the configured timeout. A timeout is an
// error even if the retriever returned something.
func (e *Engine) retrieve(ctx context.Context, plan searchPlan, enhanced string) ([]Candidate, error) {
	if e.retriever == nil {
		return nil, errors.New("no retriever configured")
	}
	if e.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.Timeout)
		defer cancel()
	}

	req := CandidateRequest{
		Query:     enhanced,
		Namespace: Namespace(plan.projectID),
		TopK:      e.candidateCount(plan.limit),
	}
	candidates, err := withDeadline(ctx, func(ctx context.Context) ([]Candidate, error) {
		return e.retriever.Search(ctx, req)
	})
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		return nil, fmt.Errorf("candidate retrieval: %w", err)
	}
	return candidates, nil
}

// withDeadline runs fn and stops waiting once ctx is done, so a call that
// ignores ctx cannot outlive the search deadline. A late result is dropped.
func withDeadline[T any](ctx context.Context, fn func(context.Context) (T, error)) (T, error) {
	type outcome struct {
		value T
		err   error
	}
	done := make(chan outcome, 1)
	go func() {
		v, err := fn(ctx)
		done <- outcome{value: v, err: err}
	}()

	select {
	case o := <-done:
		return o.value, o.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

func (e *Engine) boostFor(plan searchPlan, intent IntentAnalysis) boostFunc {
	switch {
	case plan.userCtx != nil:
		return contextBoost(*plan.userCtx)
	case plan.searchType == SearchCodeSemantic && len(intent.FunctionPatterns) > 0:
		patterns := intent.FunctionPatterns
		return func(r SearchResult) float64 {
			for _, p := range patterns {
				if strings.Contains(r.Content, p) {
					return 0.05
				}
			}
			return 0
		}
	default:
		return nil
	}
}

func contextBoost(uc UserContext) boostFunc {
	lang := LanguageForPath(uc.CurrentFile)
	dir := ""
	if uc.CurrentFile != "" {
		dir = path.Dir(uc.CurrentFile)
	}

	var prefTypes []ContentType
	var prefWords []string
	for _, p := range uc.Preferences {
		if ct, ok := ParseContentType(p); ok {
			prefTypes = append(prefTypes, ct)
			continue
		}
		prefWords = append(prefWords, strings.ToLower(p))
	}
	roleTypes := roleContentTypes[strings.ToLower(uc.Role)]
	activity := utils.TokenSet(strings.Join(uc.RecentActivity, " "))

	return func(r SearchResult) float64 {
		b := 0.0
		if lang != "" && (metaString(r.Metadata, "language") == lang || LanguageForPath(r.SourceInfo.FilePath) == lang) {
			b += 0.08
		}
		if dir != "" && r.SourceInfo.FilePath != "" && path.Dir(r.SourceInfo.FilePath) == dir {
			b += 0.04
		}
		if containsContentType(prefTypes, r.ContentType) {
			b += 0.04
		}
		if len(prefWords) > 0 {
			text := strings.ToLower(r.Content)
			hits := 0
			for _, w := range prefWords {
				if strings.Contains(text, w) {
					hits++
				}
			}
			b += 0.02 * math.Min(2, float64(hits))
		}
		if containsContentType(roleTypes, r.ContentType) {
			b += 0.04
		}
		if len(activity) > 0 {
			hits := 0
			for t := range utils.TokenSet(r.Content) {
				if _, ok := activity[t]; ok {
					hits++
				}
			}
			b += 0.05 * math.Min(1, float64(hits)/3)
		}
		return math.Min(maxContextBoost, b)
	}
}

var facetDimensions = []string{"content_type", "language", "source_type", "author", "timeline_category", "importance_level"}

func computeFacets(results []SearchResult) Facets {
	facets := make(Facets, len(facetDimensions))
	for _, dim := range facetDimensions {
		facets[dim] = make(map[string]int)
	}
	inc := func(dim, v string) {
		if v != "" {
			facets[dim][v]++
		}
	}
	for _, r := range results {
		inc("content_type", string(r.ContentType))
		inc("language", metaString(r.Metadata, "language"))
		inc("source_type", r.SourceInfo.SourceType)
		inc("author", r.SourceInfo.Author)
		inc("timeline_category", string(r.TimelineCategory))
		inc("importance_level", string(r.ImportanceLevel))
	}
	return facets
}

// topFacetValues returns a dimension's values by count desc, then value.
func topFacetValues(counts map[string]int) []string {
	values := make([]string, 0, len(counts))
	for v := range counts {
		values = append(values, v)
	}
	sort.Slice(values, func(i, j int) bool {
		if counts[values[i]] != counts[values[j]] {
			return counts[values[i]] > counts[values[j]]
		}
		return values[i] < values[j]
	})
	return values
}

func relatedQueries(query string, intent IntentAnalysis, facets Facets) []string {
	seen := map[string]bool{normalizeQuery(query): true}
	var out []string
	add := func(q string) {
		n := normalizeQuery(q)
		if len(out) < maxRelatedQueries && !seen[n] {
			seen[n] = true
			out = append(out, q)
		}
	}

	subject := query
	if len(intent.TechnicalTerms) > 0 {
		subject = intent.TechnicalTerms[0]
	}
	if def, ok := intentByName(intent.PrimaryIntent); ok {
		for _, s := range def.suggestions {
			add(subject + " " + s)
		}
	}
	for _, name := range rankedIntents(intent) {
		if name == intent.PrimaryIntent {
			continue
		}
		if def, ok := intentByName(name); ok {
			add(query + " " + def.expansions[0])
		}
	}
	for _, ct := range topFacetValues(facets["content_type"]) {
		add(query + " in " + strings.ToLower(strings.ReplaceAll(ct, "_", " ")))
	}
	return out
}

func (e *Engine) suggestions(plan searchPlan, intent IntentAnalysis, results []SearchResult) []string {
	seen := map[string]bool{normalizeQuery(plan.query): true}
	var out []string
	add := func(s string) {
		n := normalizeQuery(s)
		if n != "" && len(out) < maxSuggestions && !seen[n] {
			seen[n] = true
			out = append(out, s)
		}
	}

	if def, ok := intentByName(intent.PrimaryIntent); ok {
		for _, s := range def.suggestions[:2] {
			add(s)
		}
	}
	tokens := utils.Tokenize(plan.query)
	if len(tokens) > 0 {
		for _, q := range e.history.Suggest(plan.projectID, tokens[0], maxSuggestions) {
			add(q)
		}
	}
	if plan.userCtx != nil && plan.userCtx.CurrentFile != "" {
		base := path.Base(plan.userCtx.CurrentFile)
		add("usages of " + strings.TrimSuffix(base, path.Ext(base)))
	}
	if len(results) == 0 && len(tokens) > 1 {
		add(tokens[0] + " " + tokens[len(tokens)-1])
	}
	for _, t := range intent.TechnicalTerms {
		add(t + " examples")
	}
	if len(out) == 0 {
		add(plan.query + " examples")
	}
	return out
}

func contextInsights(intent IntentAnalysis, results []SearchResult, uc *UserContext) *ContextInsights {
	ci := &ContextInsights{
		PrimaryIntent:  intent.PrimaryIntent,
		TechnicalTerms: intent.TechnicalTerms,
	}
	if uc != nil {
		ci.Role = uc.Role
		ci.CurrentLanguage = LanguageForPath(uc.CurrentFile)
	}
	if len(results) == 0 {
		return ci
	}
	byType := make(map[string]int)
	total := 0.0
	for _, r := range results {
		byType[string(r.ContentType)]++
		total += r.ImportanceScore
		if r.TimelineCategory == scoring.CategoryRecent {
			ci.RecentResults++
		}
	}
	ci.AverageImportance = total / float64(len(results))
	ci.DominantContentType = ContentType(topFacetValues(byType)[0])
	return ci
}
