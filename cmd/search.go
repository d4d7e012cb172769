package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/josephgoksu/KnowledgeWing/internal/knowledge"
	"github.com/josephgoksu/KnowledgeWing/internal/logger"
	"github.com/josephgoksu/KnowledgeWing/internal/scoring"
)

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Search stored knowledge",
	Long: `Search ranks stored entries by relevance, importance, query intent and recency.

Examples:
  knowledgewing search code -p acme "jwt decode" --language python
  knowledgewing search cross -p acme "login outage" --type ISSUE,MEETING
  knowledgewing search context -p acme "session refresh" --role developer --file auth/session.go`,
}

var searchCodeCmd = &cobra.Command{
	Use:   "code <query>",
	Short: "Semantic search over code",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		language, _ := cmd.Flags().GetString("language")
		fileTypes, _ := cmd.Flags().GetStringSlice("file-type")
		limit, _ := cmd.Flags().GetInt("limit")

		return runSearch(cmd, args, func(a *app, req baseRequest) (*knowledge.SearchResponse, error) {
			return a.engine.SemanticCodeSearch(cmd.Context(), knowledge.CodeSearchRequest{
				ProjectID: req.projectID,
				Query:     req.query,
				Language:  language,
				FileTypes: splitList(fileTypes),
				Limit:     limit,
			})
		})
	},
}

var searchCrossCmd = &cobra.Command{
	Use:   "cross <query>",
	Short: "Search across every content type",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		filters, err := searchFilters(cmd)
		if err != nil {
			return err
		}
		types, _ := cmd.Flags().GetStringSlice("type")
		contentTypes, err := parseContentTypes(splitList(types))
		if err != nil {
			return err
		}
		limit, _ := cmd.Flags().GetInt("limit")

		return runSearch(cmd, args, func(a *app, req baseRequest) (*knowledge.SearchResponse, error) {
			return a.engine.CrossSourceSearch(cmd.Context(), knowledge.CrossSourceRequest{
				ProjectID:        req.projectID,
				Query:            req.query,
				ContentTypes:     contentTypes,
				TimelineCategory: filters.TimelineCategory,
				Filters:          filters,
				Limit:            limit,
			})
		})
	},
}

var searchContextCmd = &cobra.Command{
	Use:   "context <query>",
	Short: "Search personalized by role, preferences and current work",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		filters, err := searchFilters(cmd)
		if err != nil {
			return err
		}
		role, _ := cmd.Flags().GetString("role")
		prefs, _ := cmd.Flags().GetStringSlice("prefer")
		file, _ := cmd.Flags().GetString("file")
		recent, _ := cmd.Flags().GetStringSlice("recent")
		limit, _ := cmd.Flags().GetInt("limit")

		return runSearch(cmd, args, func(a *app, req baseRequest) (*knowledge.SearchResponse, error) {
			return a.engine.ContextualSearch(cmd.Context(), knowledge.ContextualRequest{
				ProjectID: req.projectID,
				Query:     req.query,
				Context: knowledge.UserContext{
					Role:           role,
					Preferences:    splitList(prefs),
					CurrentFile:    file,
					RecentActivity: splitList(recent),
				},
				Filters: filters,
				Limit:   limit,
			})
		})
	},
}

type baseRequest struct {
	projectID string
	query     string
}

func runSearch(cmd *cobra.Command, args []string, search func(a *app, req baseRequest) (*knowledge.SearchResponse, error)) error {
	query := strings.Join(args, " ")
	logger.SetLastInput(query)
	showFacets, _ := cmd.Flags().GetBool("facets")

	return withApp(cmd.Context(), func(a *app, projectID string) error {
		resp, err := search(a, baseRequest{projectID: projectID, query: query})
		if err != nil {
			return err
		}
		return render(cmd, resp, func(w io.Writer) error {
			fmt.Fprintln(w, knowledge.DefaultCompactFormatter().FormatResponse(resp))
			if showFacets && len(resp.Facets) > 0 {
				fmt.Fprintf(w, "\n%s\n", knowledge.FormatFacets(resp.Facets))
			}
			if resp.ContextInsights != nil && isVerbose() {
				ci := resp.ContextInsights
				fmt.Fprintf(w, "\nIntent %s, dominant %s, %d recent results\n", ci.PrimaryIntent, ci.DominantContentType, ci.RecentResults)
			}
			return nil
		})
	})
}

// searchFilters reads the shared filter flags.
func searchFilters(cmd *cobra.Command) (knowledge.Filters, error) {
	var f knowledge.Filters
	f.Language, _ = cmd.Flags().GetString("language")
	fileTypes, _ := cmd.Flags().GetStringSlice("file-type")
	f.FileTypes = splitList(fileTypes)
	f.Author, _ = cmd.Flags().GetString("author")
	f.SourceType, _ = cmd.Flags().GetString("source")
	f.MinImportance, _ = cmd.Flags().GetFloat64("min-importance")

	if category, _ := cmd.Flags().GetString("category"); category != "" {
		c, ok := scoring.ParseCategory(category)
		if !ok {
			return f, fmt.Errorf("%w: unknown timeline category %q", knowledge.ErrInvalidFilters, category)
		}
		f.TimelineCategory = c
	}
	return f, nil
}

func parseContentTypes(values []string) ([]knowledge.ContentType, error) {
	out := make([]knowledge.ContentType, 0, len(values))
	for _, v := range values {
		ct, ok := knowledge.ParseContentType(v)
		if !ok {
			return nil, fmt.Errorf("%w: unknown content type %q (use one of %v)", knowledge.ErrInvalidFilters, v, knowledge.ContentTypes)
		}
		out = append(out, ct)
	}
	return out, nil
}

func addFilterFlags(cmd *cobra.Command) {
	cmd.Flags().String("language", "", "only results in this language")
	cmd.Flags().StringSlice("file-type", nil, "only results with these file extensions")
	cmd.Flags().String("author", "", "only results by this author")
	cmd.Flags().String("source", "", "only results from this source type")
	cmd.Flags().String("category", "", "only results in this timeline category")
	cmd.Flags().Float64("min-importance", 0, "only results scoring at least this (0-1)")
}

func init() {
	rootCmd.AddCommand(searchCmd)
	searchCmd.AddCommand(searchCodeCmd, searchCrossCmd, searchContextCmd)

	for _, c := range []*cobra.Command{searchCodeCmd, searchCrossCmd, searchContextCmd} {
		c.Flags().Int("limit", 0, "maximum results (default from search.default_limit)")
		c.Flags().Bool("facets", false, "print result facets")
	}

	searchCodeCmd.Flags().String("language", "", "programming language")
	searchCodeCmd.Flags().StringSlice("file-type", nil, "file extensions, e.g. py,go")

	addFilterFlags(searchCrossCmd)
	searchCrossCmd.Flags().StringSlice("type", nil, "content types, e.g. ISSUE,CODE")

	addFilterFlags(searchContextCmd)
	searchContextCmd.Flags().String("role", "", "your role, e.g. developer or manager")
	searchContextCmd.Flags().StringSlice("prefer", nil, "preferred content types or topics")
	searchContextCmd.Flags().String("file", "", "file you are working on")
	searchContextCmd.Flags().StringSlice("recent", nil, "recent activity, e.g. topics you touched")
}
