package memory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/josephgoksu/KnowledgeWing/internal/timeline"
)

// searchStopWords rarely help keyword matching.
var searchStopWords = map[string]bool{
	"a": true, "an": true, "the": true, "is": true, "are": true,
	"was": true, "were": true, "be": true, "been": true, "being": true,
	"have": true, "has": true, "had": true, "do": true, "does": true,
	"did": true, "will": true, "would": true, "could": true, "should": true,
	"what": true, "which": true, "who": true, "whom": true, "this": true,
	"that": true, "these": true, "those": true, "it": true, "its": true,
	"of": true, "for": true, "with": true, "about": true, "to": true,
	"from": true, "in": true, "on": true, "and": true, "or": true, "not": true,
	"how": true, "why": true, "when": true, "where": true, "near": true,
}

// searchTerms reduces a free-text query to lowercase alphanumeric terms that
// are safe to splice into FTS5 and tsquery expressions.
func searchTerms(query string) []string {
	fields := strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '_' || r > 127)
	})
	seen := make(map[string]bool, len(fields))
	var terms []string
	for _, f := range fields {
		if len(f) < 2 || searchStopWords[f] || seen[f] {
			continue
		}
		seen[f] = true
		terms = append(terms, f)
	}
	return terms
}

// SearchEntries runs a keyword search over a project's live entries and
// returns up to limit hits, best first. Relevance is normalized so the best
// hit scores 1. Terms are OR-combined for recall.
func (s *SQLStore) SearchEntries(ctx context.Context, projectID, query string, limit int, now time.Time) ([]timeline.SearchHit, error) {
	if limit <= 0 {
		limit = 10
	}
	terms := searchTerms(query)
	if len(terms) == 0 {
		return nil, nil
	}

	var q string
	var match string
	if s.dialect == DialectPostgres {
		match = strings.Join(terms, " | ")
		q = `
			SELECT ` + prefixed("e", entryColumns) + `,
			       ts_rank(to_tsvector('english', e.content), to_tsquery('english', ?)) AS rank
			FROM timeline_entries e
			WHERE e.project_id = ? AND e.retention_deadline > ?
			  AND to_tsvector('english', e.content) @@ to_tsquery('english', ?)
			ORDER BY rank DESC, e.entry_id ASC
			LIMIT ?`
	} else {
		quoted := make([]string, len(terms))
		for i, t := range terms {
			quoted[i] = `"` + t + `"`
		}
		match = strings.Join(quoted, " OR ")
		// bm25 is lower-is-better; negate so higher is better like ts_rank.
		q = `
			SELECT ` + prefixed("e", entryColumns) + `, -bm25(timeline_fts) AS rank
			FROM timeline_fts f
			JOIN timeline_entries e ON f.rowid = e.rowid
			WHERE timeline_fts MATCH ? AND e.project_id = ? AND e.retention_deadline > ?
			ORDER BY rank DESC, e.entry_id ASC
			LIMIT ?`
	}

	var args []any
	if s.dialect == DialectPostgres {
		args = []any{match, projectID, s.timeArg(now), match, limit}
	} else {
		args = []any{match, projectID, s.timeArg(now), limit}
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(q), args...)
	if err != nil {
		return nil, fmt.Errorf("keyword search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var hits []timeline.SearchHit
	var ranks []float64
	for rows.Next() {
		var rank float64
		e, err := scanEntry(scanWithExtra{rows: rows, extra: &rank})
		if err != nil {
			return nil, fmt.Errorf("scan hit: %w", err)
		}
		hits = append(hits, timeline.SearchHit{Entry: e})
		ranks = append(ranks, rank)
	}
	if err := checkRowsErr(rows); err != nil {
		return nil, err
	}

	best := 0.0
	for _, r := range ranks {
		if r > best {
			best = r
		}
	}
	for i := range hits {
		if best > 0 && ranks[i] > 0 {
			hits[i].Relevance = ranks[i] / best
		} else {
			hits[i].Relevance = 1
		}
	}
	return hits, nil
}

// scanWithExtra appends extra destinations after the entry columns.
type scanWithExtra struct {
	rows  rowScanner
	extra *float64
}

func (s scanWithExtra) Scan(dest ...any) error {
	return s.rows.Scan(append(dest, s.extra)...)
}

// prefixed qualifies each column in a comma-separated list with alias.
func prefixed(alias, columns string) string {
	parts := strings.Split(columns, ",")
	for i, p := range parts {
		parts[i] = alias + "." + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}
