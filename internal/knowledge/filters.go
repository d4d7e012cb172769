package knowledge

import (
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/josephgoksu/KnowledgeWing/internal/scoring"
)

// Filters narrows search results. Every set field must match (AND).
type Filters struct {
	// Language matches metadata "language" exactly.
	Language string `json:"language,omitempty" yaml:"language,omitempty" validate:"omitempty,max=64"`
	// FileTypes match the extension of metadata "file_path" or metadata "file_type".
	// Leading dots are optional and matching is case-insensitive.
	FileTypes        []string         `json:"file_types,omitempty" yaml:"file_types,omitempty" validate:"omitempty,max=32,dive,required,max=16"`
	ContentTypes     []ContentType    `json:"content_types,omitempty" yaml:"content_types,omitempty" validate:"omitempty,dive,contenttype"`
	SourceType       string           `json:"source_type,omitempty" yaml:"source_type,omitempty" validate:"omitempty,max=64"`
	Author           string           `json:"author,omitempty" yaml:"author,omitempty" validate:"omitempty,max=128"`
	TimelineCategory scoring.Category `json:"timeline_category,omitempty" yaml:"timeline_category,omitempty" validate:"omitempty,timelinecategory"`
	MinImportance    float64          `json:"min_importance,omitempty" yaml:"min_importance,omitempty" validate:"gte=0,lte=1"`
}

// global validator instance
var validate *validator.Validate

func init() {
	validate = validator.New()
	_ = validate.RegisterValidation("contenttype", func(fl validator.FieldLevel) bool {
		_, ok := ParseContentType(fl.Field().String())
		return ok
	})
	_ = validate.RegisterValidation("timelinecategory", func(fl validator.FieldLevel) bool {
		_, ok := scoring.ParseCategory(fl.Field().String())
		return ok
	})
}

// Validate checks the filter values. Errors wrap ErrInvalidFilters.
func (f Filters) Validate() error {
	err := validate.Struct(f)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrInvalidFilters, err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, e := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s fails %q (value: %v)", e.Namespace(), e.Tag(), e.Value()))
	}
	return fmt.Errorf("%w: %s", ErrInvalidFilters, strings.Join(msgs, "; "))
}

// IsZero reports whether no filter is set.
func (f Filters) IsZero() bool {
	return f.Language == "" && len(f.FileTypes) == 0 && len(f.ContentTypes) == 0 &&
		f.SourceType == "" && f.Author == "" && f.TimelineCategory == "" && f.MinImportance == 0
}

// ParseContentType returns the content type named by s, case-insensitively.
func ParseContentType(s string) (ContentType, bool) {
	for _, c := range ContentTypes {
		if strings.EqualFold(string(c), s) {
			return c, true
		}
	}
	return "", false
}

// FilterResults keeps the results that match every set filter, in order.
func FilterResults(results []SearchResult, f Filters) []SearchResult {
	if f.IsZero() {
		return results
	}
	out := make([]SearchResult, 0, len(results))
	for _, r := range results {
		if f.Matches(r) {
			out = append(out, r)
		}
	}
	return out
}

// Matches reports whether r satisfies every set filter.
func (f Filters) Matches(r SearchResult) bool {
	if f.Language != "" && metaString(r.Metadata, "language") != f.Language {
		return false
	}
	if len(f.FileTypes) > 0 && !matchesFileType(r, f.FileTypes) {
		return false
	}
	if len(f.ContentTypes) > 0 && !containsContentType(f.ContentTypes, r.ContentType) {
		return false
	}
	if f.SourceType != "" && r.SourceInfo.SourceType != f.SourceType {
		return false
	}
	if f.Author != "" && r.SourceInfo.Author != f.Author {
		return false
	}
	if f.TimelineCategory != "" && r.TimelineCategory != f.TimelineCategory {
		return false
	}
	if f.MinImportance > 0 && r.ImportanceScore < f.MinImportance {
		return false
	}
	return true
}

func normalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
}

func resultFileType(r SearchResult) string {
	if ft := metaString(r.Metadata, "file_type"); ft != "" {
		return normalizeExt(ft)
	}
	return normalizeExt(path.Ext(r.SourceInfo.FilePath))
}

func matchesFileType(r SearchResult, fileTypes []string) bool {
	got := resultFileType(r)
	if got == "" {
		return false
	}
	for _, ft := range fileTypes {
		if normalizeExt(ft) == got {
			return true
		}
	}
	return false
}

func containsContentType(types []ContentType, t ContentType) bool {
	for _, c := range types {
		if c == t {
			return true
		}
	}
	return false
}
