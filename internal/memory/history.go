package memory

import (
	"context"
	"fmt"
	"time"
)

// SearchRecord is one persisted search.
type SearchRecord struct {
	ProjectID    string
	SearchID     string
	Query        string
	SearchType   string
	ResultsCount int
	Timestamp    time.Time
}

// AppendSearch records a search in the project's history.
func (s *SQLStore) AppendSearch(ctx context.Context, r SearchRecord) error {
	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO search_history (project_id, search_id, query, search_type, results_count, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`),
		r.ProjectID,
		r.SearchID,
		r.Query,
		r.SearchType,
		r.ResultsCount,
		s.timeArg(r.Timestamp),
	)
	if err != nil {
		return fmt.Errorf("append search: %w", err)
	}
	return nil
}

// ListSearches returns the project's most recent searches, oldest first.
// A non-positive limit returns the whole history.
func (s *SQLStore) ListSearches(ctx context.Context, projectID string, limit int) ([]SearchRecord, error) {
	query := `
		SELECT project_id, search_id, query, search_type, results_count, created_at
		FROM search_history
		WHERE project_id = ?
		ORDER BY id DESC`
	args := []any{projectID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("list searches: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []SearchRecord
	for rows.Next() {
		var r SearchRecord
		var createdAt any
		if err := rows.Scan(&r.ProjectID, &r.SearchID, &r.Query, &r.SearchType, &r.ResultsCount, &createdAt); err != nil {
			return nil, fmt.Errorf("scan search: %w", err)
		}
		if r.Timestamp, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	if err := checkRowsErr(rows); err != nil {
		return nil, err
	}

	for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
		records[i], records[j] = records[j], records[i]
	}
	return records, nil
}
