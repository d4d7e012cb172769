package knowledge

import (
	"fmt"
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/josephgoksu/KnowledgeWing/internal/utils"
)

// CompactFormatter renders search responses as grouped Markdown for terminals.
type CompactFormatter struct {
	// MaxContentLen limits content preview length per result (default: 120)
	MaxContentLen int
	// MaxResultsPerType limits results shown per content type (default: 5)
	MaxResultsPerType int
	// ShowScores appends final and importance scores to each line.
	ShowScores bool
}

// DefaultCompactFormatter returns a formatter with sensible defaults.
func DefaultCompactFormatter() *CompactFormatter {
	return &CompactFormatter{
		MaxContentLen:     120,
		MaxResultsPerType: 5,
		ShowScores:        true,
	}
}

// contentTypeOrder is the render order of result groups.
var contentTypeOrder = []ContentType{
	ContentCode, ContentIssue, ContentPullRequest, ContentDocumentation, ContentMeeting,
	ContentDiscussion, ContentSlackMessage, ContentEmail, ContentCommit,
}

// FormatResponse renders results grouped by content type, followed by
// suggestions and related queries.
func (f *CompactFormatter) FormatResponse(resp *SearchResponse) string {
	if resp == nil {
		return "No results found."
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "## %s: %q (%d results, %dms, intent: %s)\n\n",
		displayName(string(resp.SearchType)), resp.Query, resp.TotalResults, resp.SearchTimeMS, resp.Intent.PrimaryIntent)

	if len(resp.Results) == 0 {
		sb.WriteString("No results found.\n\n")
	}

	grouped := f.groupByContentType(resp.Results)
	for _, ct := range contentTypeOrder {
		if group := grouped[ct]; len(group) > 0 {
			f.renderGroup(&sb, ct, group)
		}
	}

	renderList(&sb, "Suggestions", resp.Suggestions)
	renderList(&sb, "Related", resp.RelatedQueries)

	return strings.TrimSpace(sb.String())
}

// groupByContentType buckets results, keeping rank order within each bucket.
func (f *CompactFormatter) groupByContentType(results []SearchResult) map[ContentType][]SearchResult {
	grouped := make(map[ContentType][]SearchResult)
	for _, r := range results {
		grouped[r.ContentType] = append(grouped[r.ContentType], r)
	}
	for ct := range grouped {
		if f.MaxResultsPerType > 0 && len(grouped[ct]) > f.MaxResultsPerType {
			grouped[ct] = grouped[ct][:f.MaxResultsPerType]
		}
	}
	return grouped
}

func (f *CompactFormatter) renderGroup(sb *strings.Builder, ct ContentType, results []SearchResult) {
	fmt.Fprintf(sb, "### %s %s\n", typeIcon(ct), displayName(string(ct)))
	for _, r := range results {
		fmt.Fprintf(sb, "- **%s**", r.Title)
		if preview := cleanContentPreview(r.Content, r.Title, f.MaxContentLen); preview != "" {
			fmt.Fprintf(sb, ": %s", preview)
		}
		if r.ContextPath != "" && r.ContextPath != r.Title {
			fmt.Fprintf(sb, " [%s]", r.ContextPath)
		}
		if f.ShowScores {
			fmt.Fprintf(sb, " (score %.2f, %s)", r.FinalScore, r.ImportanceLevel)
		}
		sb.WriteString("\n")
	}
	sb.WriteString("\n")
}

func renderList(sb *strings.Builder, title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(sb, "### %s\n", title)
	for _, s := range items {
		fmt.Fprintf(sb, "- %s\n", s)
	}
	sb.WriteString("\n")
}

// FormatFacets renders facet counts, one dimension per line.
func FormatFacets(facets Facets) string {
	dims := make([]string, 0, len(facets))
	for d := range facets {
		if len(facets[d]) > 0 {
			dims = append(dims, d)
		}
	}
	sort.Strings(dims)

	var sb strings.Builder
	for _, d := range dims {
		parts := make([]string, 0, len(facets[d]))
		for _, v := range topFacetValues(facets[d]) {
			parts = append(parts, fmt.Sprintf("%s=%d", v, facets[d][v]))
		}
		fmt.Fprintf(&sb, "%s: %s\n", displayName(d), strings.Join(parts, ", "))
	}
	return strings.TrimSpace(sb.String())
}

// typeIcon returns a compact icon for each content type.
func typeIcon(ct ContentType) string {
	switch ct {
	case ContentCode:
		return "🧩"
	case ContentIssue:
		return "🐛"
	case ContentPullRequest:
		return "🔀"
	case ContentDocumentation:
		return "📄"
	case ContentMeeting:
		return "🗓"
	case ContentSlackMessage, ContentDiscussion:
		return "💬"
	case ContentEmail:
		return "✉️"
	case ContentCommit:
		return "📌"
	default:
		return "•"
	}
}

// displayName turns identifiers like PULL_REQUEST or timeline_category into titles.
func displayName(s string) string {
	return cases.Title(language.English).String(strings.ReplaceAll(strings.ToLower(s), "_", " "))
}

// cleanContentPreview extracts a one-line preview, dropping a leading title.
func cleanContentPreview(content, title string, maxLen int) string {
	if content == "" || content == title {
		return ""
	}
	cleaned := content
	if after, found := strings.CutPrefix(content, title); found {
		cleaned = strings.TrimLeft(after, "\n\r\t :.-")
	}
	cleaned = strings.Join(strings.Fields(cleaned), " ")
	if maxLen > 0 {
		cleaned = utils.Truncate(cleaned, maxLen)
	}
	return cleaned
}
