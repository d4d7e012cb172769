package memory

import (
	"context"
	"fmt"

	"github.com/josephgoksu/KnowledgeWing/internal/scoring"
)

// AppendFeedback appends an entry to the feedback journal.
func (s *SQLStore) AppendFeedback(ctx context.Context, e scoring.FeedbackEntry) error {
	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO feedback_log (project_id, data_id, feedback_score, user_id, data_type, signature, prior_score, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`),
		e.ProjectID,
		e.DataID,
		e.FeedbackScore,
		e.UserID,
		e.DataType,
		e.Signature,
		e.PriorScore,
		s.timeArg(e.Timestamp),
	)
	if err != nil {
		return fmt.Errorf("append feedback: %w", err)
	}
	return nil
}

// ListFeedback returns a project's feedback journal in append order.
func (s *SQLStore) ListFeedback(ctx context.Context, projectID string) ([]scoring.FeedbackEntry, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT project_id, data_id, feedback_score, user_id, data_type, signature, prior_score, created_at
		FROM feedback_log
		WHERE project_id = ?
		ORDER BY id ASC
	`), projectID)
	if err != nil {
		return nil, fmt.Errorf("list feedback: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []scoring.FeedbackEntry
	for rows.Next() {
		var e scoring.FeedbackEntry
		var createdAt any
		if err := rows.Scan(&e.ProjectID, &e.DataID, &e.FeedbackScore, &e.UserID, &e.DataType, &e.Signature, &e.PriorScore, &createdAt); err != nil {
			return nil, fmt.Errorf("scan feedback: %w", err)
		}
		if e.Timestamp, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := checkRowsErr(rows); err != nil {
		return nil, err
	}
	return entries, nil
}
