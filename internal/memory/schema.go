package memory

import (
	"context"
	"fmt"
	"strings"
)

const sqliteSchema = `
	CREATE TABLE IF NOT EXISTS timeline_entries (
		entry_id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL,
		item_id TEXT NOT NULL,
		item_type TEXT NOT NULL,
		content TEXT NOT NULL,
		author TEXT NOT NULL DEFAULT '',
		metadata TEXT,                      -- JSON object
		created_at TEXT NOT NULL,
		overall_score REAL NOT NULL,
		importance_level TEXT NOT NULL,
		timeline_category TEXT NOT NULL,    -- snapshot at scoring time
		confidence REAL NOT NULL,
		reasoning TEXT,                     -- JSON array
		scoring_factors TEXT,               -- JSON object
		scored_at TEXT NOT NULL,
		storage_tier TEXT NOT NULL,
		retention_deadline TEXT NOT NULL,
		stored_at TEXT NOT NULL,
		UNIQUE(project_id, item_id)
	);

	CREATE INDEX IF NOT EXISTS idx_timeline_project_stored ON timeline_entries(project_id, stored_at);
	CREATE INDEX IF NOT EXISTS idx_timeline_project_deadline ON timeline_entries(project_id, retention_deadline);
	CREATE INDEX IF NOT EXISTS idx_timeline_project_rank ON timeline_entries(project_id, overall_score DESC, created_at DESC);

	CREATE TABLE IF NOT EXISTS feedback_log (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		project_id TEXT NOT NULL,
		data_id TEXT NOT NULL,
		feedback_score REAL NOT NULL,
		user_id TEXT NOT NULL DEFAULT '',
		data_type TEXT NOT NULL DEFAULT '',
		signature TEXT NOT NULL DEFAULT '',
		prior_score REAL NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_feedback_project ON feedback_log(project_id, id);

	CREATE TABLE IF NOT EXISTS search_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		project_id TEXT NOT NULL,
		search_id TEXT NOT NULL,
		query TEXT NOT NULL,
		search_type TEXT NOT NULL,
		results_count INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_search_history_project ON search_history(project_id, id);

	-- FTS5 over entry content for keyword candidate retrieval
	CREATE VIRTUAL TABLE IF NOT EXISTS timeline_fts USING fts5(
		entry_id UNINDEXED,
		project_id UNINDEXED,
		content,
		content='timeline_entries',
		content_rowid='rowid'
	);
`

const postgresSchema = `
	CREATE TABLE IF NOT EXISTS timeline_entries (
		entry_id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL,
		item_id TEXT NOT NULL,
		item_type TEXT NOT NULL,
		content TEXT NOT NULL,
		author TEXT NOT NULL DEFAULT '',
		metadata TEXT,
		created_at TIMESTAMPTZ NOT NULL,
		overall_score DOUBLE PRECISION NOT NULL,
		importance_level TEXT NOT NULL,
		timeline_category TEXT NOT NULL,
		confidence DOUBLE PRECISION NOT NULL,
		reasoning TEXT,
		scoring_factors TEXT,
		scored_at TIMESTAMPTZ NOT NULL,
		storage_tier TEXT NOT NULL,
		retention_deadline TIMESTAMPTZ NOT NULL,
		stored_at TIMESTAMPTZ NOT NULL,
		UNIQUE(project_id, item_id)
	);

	CREATE INDEX IF NOT EXISTS idx_timeline_project_stored ON timeline_entries(project_id, stored_at);
	CREATE INDEX IF NOT EXISTS idx_timeline_project_deadline ON timeline_entries(project_id, retention_deadline);
	CREATE INDEX IF NOT EXISTS idx_timeline_project_rank ON timeline_entries(project_id, overall_score DESC, created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_timeline_content_fts ON timeline_entries USING GIN (to_tsvector('english', content));

	CREATE TABLE IF NOT EXISTS feedback_log (
		id BIGSERIAL PRIMARY KEY,
		project_id TEXT NOT NULL,
		data_id TEXT NOT NULL,
		feedback_score DOUBLE PRECISION NOT NULL,
		user_id TEXT NOT NULL DEFAULT '',
		data_type TEXT NOT NULL DEFAULT '',
		signature TEXT NOT NULL DEFAULT '',
		prior_score DOUBLE PRECISION NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_feedback_project ON feedback_log(project_id, id);

	CREATE TABLE IF NOT EXISTS search_history (
		id BIGSERIAL PRIMARY KEY,
		project_id TEXT NOT NULL,
		search_id TEXT NOT NULL,
		query TEXT NOT NULL,
		search_type TEXT NOT NULL,
		results_count INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_search_history_project ON search_history(project_id, id);
`

// sqliteTriggers keep timeline_fts in sync with timeline_entries.
// SQLite doesn't support IF NOT EXISTS for triggers in older versions, so
// each is created only when missing.
var sqliteTriggers = []struct {
	name string
	sql  string
}{
	{
		name: "timeline_fts_ai",
		sql: `CREATE TRIGGER timeline_fts_ai AFTER INSERT ON timeline_entries BEGIN
			INSERT INTO timeline_fts(rowid, entry_id, project_id, content)
			VALUES (NEW.rowid, NEW.entry_id, NEW.project_id, NEW.content);
		END`,
	},
	{
		name: "timeline_fts_ad",
		sql: `CREATE TRIGGER timeline_fts_ad AFTER DELETE ON timeline_entries BEGIN
			INSERT INTO timeline_fts(timeline_fts, rowid, entry_id, project_id, content)
			VALUES('delete', OLD.rowid, OLD.entry_id, OLD.project_id, OLD.content);
		END`,
	},
	{
		name: "timeline_fts_au",
		sql: `CREATE TRIGGER timeline_fts_au AFTER UPDATE OF content ON timeline_entries BEGIN
			INSERT INTO timeline_fts(timeline_fts, rowid, entry_id, project_id, content)
			VALUES('delete', OLD.rowid, OLD.entry_id, OLD.project_id, OLD.content);
			INSERT INTO timeline_fts(rowid, entry_id, project_id, content)
			VALUES (NEW.rowid, NEW.entry_id, NEW.project_id, NEW.content);
		END`,
	},
}

// sqliteColumnMigrations add columns introduced after the first schema.
var sqliteColumnMigrations = []struct {
	table  string
	column string
	ddl    string
}{
	{"timeline_entries", "author", "ALTER TABLE timeline_entries ADD COLUMN author TEXT NOT NULL DEFAULT ''"},
	{"feedback_log", "prior_score", "ALTER TABLE feedback_log ADD COLUMN prior_score REAL NOT NULL DEFAULT 0"},
}

// initSchema creates the database tables if they don't exist.
func (s *SQLStore) initSchema(ctx context.Context) error {
	if s.dialect == DialectPostgres {
		if _, err := s.db.ExecContext(ctx, postgresSchema); err != nil {
			return fmt.Errorf("create postgres schema: %w", err)
		}
		return nil
	}

	if _, err := s.db.ExecContext(ctx, sqliteSchema); err != nil {
		return fmt.Errorf("create sqlite schema: %w", err)
	}

	for _, t := range sqliteTriggers {
		var count int
		err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM sqlite_master WHERE type='trigger' AND name=?", t.name).Scan(&count)
		if err != nil {
			return fmt.Errorf("check trigger %s: %w", t.name, err)
		}
		if count == 0 {
			if _, err := s.db.ExecContext(ctx, t.sql); err != nil {
				return fmt.Errorf("create trigger %s: %w", t.name, err)
			}
		}
	}

	for _, m := range sqliteColumnMigrations {
		exists, err := s.columnExists(ctx, m.table, m.column)
		if err != nil {
			return err
		}
		if exists {
			continue
		}
		if _, err := s.db.ExecContext(ctx, m.ddl); err != nil {
			// Only ignore "duplicate column" errors (happens in rare race conditions)
			if !strings.Contains(err.Error(), "duplicate column") {
				return fmt.Errorf("migration %s.%s failed: %w", m.table, m.column, err)
			}
		}
	}
	return nil
}

func (s *SQLStore) columnExists(ctx context.Context, table, column string) (bool, error) {
	rows, err := s.db.QueryContext(ctx, "PRAGMA table_info("+table+")")
	if err != nil {
		return false, fmt.Errorf("table info %s: %w", table, err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var cid, notnull, pk int
		var name, ctype string
		var dflt any
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			return false, fmt.Errorf("scan table info: %w", err)
		}
		if name == column {
			return true, nil
		}
	}
	return false, checkRowsErr(rows)
}
