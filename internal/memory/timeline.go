package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/josephgoksu/KnowledgeWing/internal/scoring"
	"github.com/josephgoksu/KnowledgeWing/internal/timeline"
)

const entryColumns = `entry_id, project_id, item_id, item_type, content, author, metadata, created_at,
	overall_score, importance_level, timeline_category, confidence, reasoning, scoring_factors, scored_at,
	storage_tier, retention_deadline, stored_at`

// UpsertEntry inserts an entry or replaces the one stored for the same
// (project, item id). The existing entry_id is kept on conflict; callers pass
// the stored_at they want the entry to keep.
func (s *SQLStore) UpsertEntry(ctx context.Context, e timeline.Entry) error {
	metadata, err := marshalJSON(e.Item.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	reasoning, err := marshalJSON(e.Score.Reasoning)
	if err != nil {
		return fmt.Errorf("marshal reasoning: %w", err)
	}
	factors, err := marshalJSON(e.Score.Factors)
	if err != nil {
		return fmt.Errorf("marshal scoring factors: %w", err)
	}

	query := s.rebind(`
		INSERT INTO timeline_entries (` + entryColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (project_id, item_id) DO UPDATE SET
			item_type = excluded.item_type,
			content = excluded.content,
			author = excluded.author,
			metadata = excluded.metadata,
			created_at = excluded.created_at,
			overall_score = excluded.overall_score,
			importance_level = excluded.importance_level,
			timeline_category = excluded.timeline_category,
			confidence = excluded.confidence,
			reasoning = excluded.reasoning,
			scoring_factors = excluded.scoring_factors,
			scored_at = excluded.scored_at,
			storage_tier = excluded.storage_tier,
			retention_deadline = excluded.retention_deadline,
			stored_at = excluded.stored_at`)

	_, err = s.db.ExecContext(ctx, query,
		e.EntryID,
		e.ProjectID,
		e.Item.ID,
		e.Item.Type,
		e.Item.Content,
		e.Item.Author,
		metadata,
		s.timeArg(e.Item.CreatedAt),
		e.Score.OverallScore,
		string(e.Score.Level),
		string(e.Score.Category),
		e.Score.Confidence,
		reasoning,
		factors,
		s.timeArg(e.Score.ScoredAt),
		string(e.Tier),
		s.timeArg(e.RetentionDeadline),
		s.timeArg(e.StoredAt),
	)
	if err != nil {
		return fmt.Errorf("upsert entry: %w", err)
	}
	return nil
}

// GetEntryByItem returns the entry stored for itemID, or nil if none exists.
func (s *SQLStore) GetEntryByItem(ctx context.Context, projectID, itemID string) (*timeline.Entry, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`SELECT `+entryColumns+` FROM timeline_entries WHERE project_id = ? AND item_id = ?`), projectID, itemID)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get entry by item: %w", err)
	}
	return &e, nil
}

// GetEntry returns the entry with the given id.
func (s *SQLStore) GetEntry(ctx context.Context, entryID string) (*timeline.Entry, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`SELECT `+entryColumns+` FROM timeline_entries WHERE entry_id = ?`), entryID)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("entry %s: %w", entryID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get entry: %w", err)
	}
	return &e, nil
}

// FindEntryIDsByPrefix returns up to limit entry ids of a project starting
// with prefix, in id order.
func (s *SQLStore) FindEntryIDsByPrefix(ctx context.Context, projectID, prefix string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 10
	}
	escaped := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(prefix)
	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT entry_id FROM timeline_entries
		WHERE project_id = ? AND entry_id LIKE ? ESCAPE '\'
		ORDER BY entry_id
		LIMIT ?`), projectID, escaped+"%", limit)
	if err != nil {
		return nil, fmt.Errorf("find entry ids: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan entry id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := checkRowsErr(rows); err != nil {
		return nil, err
	}
	return ids, nil
}

// ListEntries returns live entries matching filter, ordered by importance
// desc, created_at desc, then entry id.
func (s *SQLStore) ListEntries(ctx context.Context, projectID string, f timeline.EntryFilter) ([]timeline.Entry, error) {
	conds := []string{"project_id = ?", "retention_deadline > ?"}
	args := []any{projectID, s.timeArg(f.Now)}
	if f.MinImportance > 0 {
		conds = append(conds, "overall_score >= ?")
		args = append(args, f.MinImportance)
	}
	if !f.CreatedFrom.IsZero() {
		conds = append(conds, "created_at >= ?")
		args = append(args, s.timeArg(f.CreatedFrom))
	}
	if !f.CreatedBefore.IsZero() {
		conds = append(conds, "created_at < ?")
		args = append(args, s.timeArg(f.CreatedBefore))
	}

	query := `SELECT ` + entryColumns + ` FROM timeline_entries WHERE ` + strings.Join(conds, " AND ") +
		` ORDER BY overall_score DESC, created_at DESC, entry_id ASC`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []timeline.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := checkRowsErr(rows); err != nil {
		return nil, err
	}
	return entries, nil
}

// EntryStats returns the analytics projection of live entries stored at or after since.
func (s *SQLStore) EntryStats(ctx context.Context, projectID string, since, now time.Time) ([]timeline.EntryStat, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT overall_score, importance_level, storage_tier, created_at
		FROM timeline_entries
		WHERE project_id = ? AND stored_at >= ? AND retention_deadline > ?
	`), projectID, s.timeArg(since), s.timeArg(now))
	if err != nil {
		return nil, fmt.Errorf("entry stats: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var stats []timeline.EntryStat
	for rows.Next() {
		var st timeline.EntryStat
		var level, tier string
		var createdAt any
		if err := rows.Scan(&st.OverallScore, &level, &tier, &createdAt); err != nil {
			return nil, fmt.Errorf("scan entry stat: %w", err)
		}
		if st.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		st.Level = scoring.Level(level)
		st.Tier = timeline.Tier(tier)
		stats = append(stats, st)
	}
	if err := checkRowsErr(rows); err != nil {
		return nil, err
	}
	return stats, nil
}

// ApplyCleanup deletes expired entries and applies tier demotions in one
// transaction. A demotion only applies while the entry is still in its From tier.
func (s *SQLStore) ApplyCleanup(ctx context.Context, projectID string, now time.Time, changes []timeline.TierChange) (timeline.CleanupCounts, error) {
	var counts timeline.CleanupCounts

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return counts, fmt.Errorf("begin cleanup: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, s.rebind(`DELETE FROM timeline_entries WHERE project_id = ? AND retention_deadline <= ?`),
		projectID, s.timeArg(now))
	if err != nil {
		return counts, fmt.Errorf("delete expired: %w", err)
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return counts, fmt.Errorf("delete expired rows: %w", err)
	}
	counts.Deleted = int(deleted)

	if len(changes) > 0 {
		stmt, err := tx.PrepareContext(ctx, s.rebind(`UPDATE timeline_entries SET storage_tier = ? WHERE project_id = ? AND entry_id = ? AND storage_tier = ?`))
		if err != nil {
			return counts, fmt.Errorf("prepare demotion: %w", err)
		}
		defer func() { _ = stmt.Close() }()

		for _, c := range changes {
			res, err := stmt.ExecContext(ctx, string(c.To), projectID, c.EntryID, string(c.From))
			if err != nil {
				return counts, fmt.Errorf("demote %s: %w", c.EntryID, err)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return counts, fmt.Errorf("demote %s rows: %w", c.EntryID, err)
			}
			counts.Demoted += int(n)
		}
	}

	if err := tx.Commit(); err != nil {
		return timeline.CleanupCounts{}, fmt.Errorf("commit cleanup: %w", err)
	}
	return counts, nil
}

// ListProjects returns every project id with stored entries.
func (s *SQLStore) ListProjects(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT project_id FROM timeline_entries ORDER BY project_id`)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var projects []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		projects = append(projects, id)
	}
	if err := checkRowsErr(rows); err != nil {
		return nil, err
	}
	return projects, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

// scanEntry reads one row selected with entryColumns.
func scanEntry(row rowScanner) (timeline.Entry, error) {
	var e timeline.Entry
	var author, metadata, reasoning, factors sql.NullString
	var level, category, tier string
	var createdAt, scoredAt, deadline, storedAt any

	err := row.Scan(
		&e.EntryID, &e.ProjectID, &e.Item.ID, &e.Item.Type, &e.Item.Content, &author, &metadata, &createdAt,
		&e.Score.OverallScore, &level, &category, &e.Score.Confidence, &reasoning, &factors, &scoredAt,
		&tier, &deadline, &storedAt,
	)
	if err != nil {
		return e, err
	}

	e.Item.Author = author.String
	e.Score.DataID = e.Item.ID
	e.Score.DataType = e.Item.Type
	e.Score.Level = scoring.Level(level)
	e.Score.Category = scoring.Category(category)
	e.Tier = timeline.Tier(tier)

	if err := unmarshalJSON(metadata, &e.Item.Metadata); err != nil {
		return e, fmt.Errorf("metadata: %w", err)
	}
	if err := unmarshalJSON(reasoning, &e.Score.Reasoning); err != nil {
		return e, fmt.Errorf("reasoning: %w", err)
	}
	if err := unmarshalJSON(factors, &e.Score.Factors); err != nil {
		return e, fmt.Errorf("scoring factors: %w", err)
	}

	for _, t := range []struct {
		dst *time.Time
		src any
	}{
		{&e.Item.CreatedAt, createdAt},
		{&e.Score.ScoredAt, scoredAt},
		{&e.RetentionDeadline, deadline},
		{&e.StoredAt, storedAt},
	} {
		parsed, err := parseTime(t.src)
		if err != nil {
			return e, err
		}
		*t.dst = parsed
	}
	return e, nil
}

func marshalJSON(v any) (sql.NullString, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	if string(b) == "null" {
		return sql.NullString{}, nil
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func unmarshalJSON(s sql.NullString, dst any) error {
	if !s.Valid || s.String == "" {
		return nil
	}
	return json.Unmarshal([]byte(s.String), dst)
}
