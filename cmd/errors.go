package cmd

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/viper"

	"github.com/josephgoksu/KnowledgeWing/internal/connector"
	"github.com/josephgoksu/KnowledgeWing/internal/knowledge"
	"github.com/josephgoksu/KnowledgeWing/internal/scoring"
	"github.com/josephgoksu/KnowledgeWing/internal/timeline"
)

// PrintError prints a user-friendly message by default. If the --verbose
// flag is set, it prints the full technical error instead.
func PrintError(w io.Writer, userMsg string, technicalErr error) {
	if viper.GetBool("verbose") && technicalErr != nil {
		fmt.Fprintf(w, "Error: %v\n", technicalErr)
		return
	}
	fmt.Fprintln(w, userMsg)
}

// userMessage maps known failures to short explanations.
func userMessage(err error) string {
	var searchErr *knowledge.SearchError
	switch {
	case errors.Is(err, timeline.ErrInvalidProject):
		return "Error: a project id is required (use --project)."
	case errors.Is(err, knowledge.ErrEmptyQuery):
		return "Error: the search query must not be empty."
	case errors.Is(err, knowledge.ErrInvalidFilters):
		return fmt.Sprintf("Error: %v", err)
	case errors.As(err, &searchErr):
		return fmt.Sprintf("Error: %s search failed; the retriever did not answer in time or returned an error.", searchErr.SearchType)
	case errors.Is(err, scoring.ErrInvalidFeedback):
		return "Error: feedback score must be between 0 and 1."
	case errors.Is(err, connector.ErrUnsupportedFormat):
		return fmt.Sprintf("Error: %v (use .json, .jsonl or .yaml files)", err)
	default:
		return fmt.Sprintf("Error: %v", err)
	}
}
