package knowledge

import (
	"regexp"
	"sort"
	"strings"
	"unicode"
)

// IntentGeneral is assigned when no other intent matches.
const IntentGeneral = "general"

type intentDef struct {
	name string
	// keywords match whole words, or word prefixes when at least 4 runes long.
	keywords []string
	// expansions are appended to enhanced queries.
	expansions []string
	// suggestions seed follow-up queries.
	suggestions []string
}

// intentTaxonomy is ordered; earlier intents win ties.
var intentTaxonomy = []intentDef{
	{
		name:        "authentication",
		keywords:    []string{"auth", "authenticat", "login", "logout", "signin", "jwt", "token", "oauth", "session", "password", "credential", "sso", "saml", "oidc"},
		expansions:  []string{"login", "token", "session", "credentials"},
		suggestions: []string{"token refresh and expiry handling", "session management", "password hashing"},
	},
	{
		name:        "database",
		keywords:    []string{"database", "sql", "query", "queries", "schema", "migration", "table", "index", "postgres", "mysql", "sqlite", "mongo", "orm", "transaction"},
		expansions:  []string{"sql", "schema", "query", "transaction"},
		suggestions: []string{"schema migrations", "query performance and indexes", "transaction handling"},
	},
	{
		name:        "api",
		keywords:    []string{"api", "endpoint", "rest", "graphql", "grpc", "route", "handler", "request", "response", "webhook", "http"},
		expansions:  []string{"endpoint", "request", "response", "handler"},
		suggestions: []string{"endpoint request validation", "api error responses", "api versioning"},
	},
	{
		name:        "security",
		keywords:    []string{"security", "secure", "vulnerab", "exploit", "xss", "csrf", "injection", "encrypt", "decrypt", "secret", "permission", "cve", "sanitiz", "attack"},
		expansions:  []string{"vulnerability", "sanitize", "permission", "encryption"},
		suggestions: []string{"input sanitization", "secret management", "permission checks"},
	},
	{
		name:        "performance",
		keywords:    []string{"performance", "slow", "latency", "optimiz", "cache", "caching", "memory", "cpu", "throughput", "benchmark", "profil", "bottleneck", "speed"},
		expansions:  []string{"latency", "cache", "optimization", "profiling"},
		suggestions: []string{"caching strategy", "profiling hot paths", "latency regressions"},
	},
	{
		name:        "error_handling",
		keywords:    []string{"error", "exception", "panic", "crash", "fail", "retry", "recover", "timeout", "bug", "traceback", "stacktrace"},
		expansions:  []string{"error", "exception", "retry", "recover"},
		suggestions: []string{"retry and backoff policy", "error propagation", "crash reports"},
	},
	{
		name:        "testing",
		keywords:    []string{"test", "testing", "unittest", "mock", "fixture", "assert", "coverage", "e2e", "integration", "pytest", "spec"},
		expansions:  []string{"test", "mock", "fixture", "assertion"},
		suggestions: []string{"test fixtures", "mocking external services", "coverage gaps"},
	},
	{
		name:        "ui",
		keywords:    []string{"ui", "ux", "frontend", "component", "button", "layout", "css", "style", "react", "vue", "render", "modal", "form", "page"},
		expansions:  []string{"component", "layout", "render", "style"},
		suggestions: []string{"component structure", "form validation", "layout and styling"},
	},
}

// IntentNames lists every intent, general last.
func IntentNames() []string {
	names := make([]string, 0, len(intentTaxonomy)+1)
	for _, d := range intentTaxonomy {
		names = append(names, d.name)
	}
	return append(names, IntentGeneral)
}

func intentByName(name string) (intentDef, bool) {
	for _, d := range intentTaxonomy {
		if d.name == name {
			return d, true
		}
	}
	return intentDef{}, false
}

// technicalVocabulary holds terms worth carrying verbatim into enhanced queries.
var technicalVocabulary = map[string]bool{
	"jwt": true, "oauth": true, "oidc": true, "saml": true, "sso": true, "sql": true,
	"postgres": true, "postgresql": true, "mysql": true, "sqlite": true, "redis": true,
	"mongodb": true, "kafka": true, "grpc": true, "graphql": true, "rest": true, "http": true,
	"https": true, "json": true, "yaml": true, "docker": true, "kubernetes": true, "k8s": true,
	"react": true, "vue": true, "css": true, "html": true, "python": true, "golang": true,
	"go": true, "javascript": true, "typescript": true, "java": true, "rust": true, "api": true,
	"xss": true, "csrf": true, "tls": true, "ssl": true, "cors": true, "websocket": true,
	"bcrypt": true, "aws": true, "gcp": true, "s3": true, "lambda": true, "regex": true,
}

var (
	identifierPattern = regexp.MustCompile(`\b[A-Za-z]+[a-z0-9]*[A-Z][A-Za-z0-9]*\b|\b[a-z][a-z0-9]*_[a-z0-9_]+\b`)
	acronymPattern    = regexp.MustCompile(`\b[A-Z][A-Z0-9]{1,7}\b`)
	functionPatterns  = []*regexp.Regexp{
		regexp.MustCompile(`\b(?:func|def|function|fn|method)\s+(?:to\s+|that\s+|for\s+)?([A-Za-z_][A-Za-z0-9_]*)`),
		regexp.MustCompile(`\b([A-Za-z_][A-Za-z0-9_]*)\s*\(\s*\)`),
		regexp.MustCompile(`\b((?:get|set|create|update|delete|validate|authenticate|handle|parse|load|save|fetch|process|verify)[A-Z_][A-Za-z0-9_]*)`),
	}
)

// queryWords lowercases s and splits it into alphanumeric words.
func queryWords(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	})
}

func keywordMatches(word, keyword string) bool {
	if word == keyword {
		return true
	}
	return len(keyword) >= 4 && strings.HasPrefix(word, keyword)
}

// AnalyzeIntent classifies query into the intent taxonomy by keyword
// matching and extracts technical terms and function patterns.
func AnalyzeIntent(query string) IntentAnalysis {
	words := queryWords(query)
	analysis := IntentAnalysis{
		IntentScores:     make(map[string]float64, len(intentTaxonomy)+1),
		TechnicalTerms:   technicalTerms(query, words),
		FunctionPatterns: detectFunctionPatterns(query),
	}

	hits := make([]int, len(intentTaxonomy))
	total := 0
	for i, def := range intentTaxonomy {
		for _, w := range words {
			for _, kw := range def.keywords {
				if keywordMatches(w, kw) {
					hits[i]++
					break
				}
			}
		}
		total += hits[i]
	}

	analysis.PrimaryIntent = IntentGeneral
	if total == 0 {
		for _, def := range intentTaxonomy {
			analysis.IntentScores[def.name] = 0
		}
		analysis.IntentScores[IntentGeneral] = 1
		return analysis
	}

	best := -1
	for i, def := range intentTaxonomy {
		analysis.IntentScores[def.name] = float64(hits[i]) / float64(total)
		if hits[i] > 0 && (best < 0 || hits[i] > hits[best]) {
			best = i
		}
	}
	analysis.IntentScores[IntentGeneral] = 0
	analysis.PrimaryIntent = intentTaxonomy[best].name
	return analysis
}

func technicalTerms(query string, words []string) []string {
	seen := make(map[string]bool)
	var terms []string
	add := func(t string) {
		t = strings.ToLower(t)
		if t == "" || seen[t] {
			return
		}
		seen[t] = true
		terms = append(terms, t)
	}
	for _, w := range words {
		if technicalVocabulary[w] {
			add(w)
		}
	}
	for _, m := range acronymPattern.FindAllString(query, -1) {
		add(m)
	}
	for _, m := range identifierPattern.FindAllString(query, -1) {
		add(m)
	}
	return terms
}

func detectFunctionPatterns(query string) []string {
	seen := make(map[string]bool)
	var patterns []string
	for _, re := range functionPatterns {
		for _, m := range re.FindAllStringSubmatch(query, -1) {
			name := m[1]
			if len(name) < 3 || seen[name] {
				continue
			}
			seen[name] = true
			patterns = append(patterns, name)
		}
	}
	return patterns
}

// EnhanceQuery appends expansions for the primary intent, the extracted
// technical terms and function patterns. The result always starts with query.
func EnhanceQuery(query string, intent IntentAnalysis) string {
	present := make(map[string]bool)
	for _, w := range queryWords(query) {
		present[w] = true
	}

	var extra []string
	add := func(term string) {
		t := strings.ToLower(term)
		if t == "" || present[t] {
			return
		}
		present[t] = true
		extra = append(extra, t)
	}

	if def, ok := intentByName(intent.PrimaryIntent); ok {
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

	if len(extra) == 0 {
		return query
	}
	return query + " " + strings.Join(extra, " ")
}

// rankedIntents returns intents with a positive score, strongest first.
func rankedIntents(intent IntentAnalysis) []string {
	var names []string
	for name, score := range intent.IntentScores {
		if score > 0 && name != IntentGeneral {
			names = append(names, name)
		}
	}
	sort.Slice(names, func(i, j int) bool {
		si, sj := intent.IntentScores[names[i]], intent.IntentScores[names[j]]
		if si != sj {
			return si > sj
		}
		return names[i] < names[j]
	})
	return names
}
