package memory

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josephgoksu/KnowledgeWing/internal/timeline"
)

// setupMockDB creates a Postgres-dialect store over a mock database.
func setupMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *SQLStore) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	store := &SQLStore{db: db, dialect: DialectPostgres}
	return db, mock, store
}

func TestRebind(t *testing.T) {
	pg := &SQLStore{dialect: DialectPostgres}
	lite := &SQLStore{dialect: DialectSQLite}

	q := "SELECT * FROM t WHERE a = ? AND b = ? LIMIT ?"
	assert.Equal(t, "SELECT * FROM t WHERE a = $1 AND b = $2 LIMIT $3", pg.rebind(q))
	assert.Equal(t, q, lite.rebind(q))
}

func TestPostgres_UpsertEntry(t *testing.T) {
	e := testEntry("p1", "i1", 0.7, time.Hour, 24*time.Hour)

	tests := []struct {
		name        string
		setupMock   func(sqlmock.Sqlmock)
		wantErr     bool
		errContains string
	}{
		{
			name: "successful upsert",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(`INSERT INTO timeline_entries .* VALUES \(\$1, \$2, .*\$18\)\s+ON CONFLICT \(project_id, item_id\) DO UPDATE`).
					WithArgs(
						e.EntryID, "p1", "i1", "document", e.Item.Content, "alice",
						sqlmock.AnyArg(), // metadata
						sqlmock.AnyArg(), // created_at
						0.7, "HIGH", "RECENT", 0.84,
						sqlmock.AnyArg(), // reasoning
						sqlmock.AnyArg(), // scoring_factors
						sqlmock.AnyArg(), // scored_at
						"HOT",
						sqlmock.AnyArg(), // retention_deadline
						sqlmock.AnyArg(), // stored_at
					).
					WillReturnResult(sqlmock.NewResult(0, 1))
			},
		},
		{
			name: "database error",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec("INSERT INTO timeline_entries").
					WillReturnError(errors.New("connection refused"))
			},
			wantErr:     true,
			errContains: "upsert entry",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, mock, store := setupMockDB(t)
			tt.setupMock(mock)

			err := store.UpsertEntry(context.Background(), e)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errContains)
			} else {
				require.NoError(t, err)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestPostgres_ApplyCleanup(t *testing.T) {
	changes := []timeline.TierChange{{EntryID: "e1", From: timeline.TierHot, To: timeline.TierWarm}}

	tests := []struct {
		name      string
		setupMock func(sqlmock.Sqlmock)
		want      timeline.CleanupCounts
		wantErr   bool
	}{
		{
			name: "delete and demote in one transaction",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectExec(`DELETE FROM timeline_entries WHERE project_id = \$1 AND retention_deadline <= \$2`).
					WithArgs("p1", sqlmock.AnyArg()).
					WillReturnResult(sqlmock.NewResult(0, 3))
				prep := mock.ExpectPrepare(`UPDATE timeline_entries SET storage_tier = \$1`)
				prep.ExpectExec().
					WithArgs("WARM", "p1", "e1", "HOT").
					WillReturnResult(sqlmock.NewResult(0, 1))
				mock.ExpectCommit()
			},
			want: timeline.CleanupCounts{Deleted: 3, Demoted: 1},
		},
		{
			name: "delete failure rolls back",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectExec("DELETE FROM timeline_entries").
					WillReturnError(errors.New("deadlock detected"))
				mock.ExpectRollback()
			},
			wantErr: true,
		},
		{
			name: "commit failure reports nothing applied",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectExec("DELETE FROM timeline_entries").
					WillReturnResult(sqlmock.NewResult(0, 1))
				prep := mock.ExpectPrepare("UPDATE timeline_entries")
				prep.ExpectExec().WillReturnResult(sqlmock.NewResult(0, 1))
				mock.ExpectCommit().WillReturnError(errors.New("serialization failure"))
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, mock, store := setupMockDB(t)
			tt.setupMock(mock)

			got, err := store.ApplyCleanup(context.Background(), "p1", now, changes)
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, timeline.CleanupCounts{}, got)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.want, got)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestPostgres_ListFeedback(t *testing.T) {
	_, mock, store := setupMockDB(t)

	rows := sqlmock.NewRows([]string{"project_id", "data_id", "feedback_score", "user_id", "data_type", "signature", "prior_score", "created_at"}).
		AddRow("p1", "d1", 0.9, "u1", "issue", "auth", 0.4, now).
		AddRow("p1", "d2", 0.1, "u2", "", "", 0.0, now.Add(time.Minute))
	mock.ExpectQuery(`SELECT project_id, data_id .* FROM feedback_log\s+WHERE project_id = \$1`).
		WithArgs("p1").
		WillReturnRows(rows)

	got, err := store.ListFeedback(context.Background(), "p1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "issue", got[0].DataType)
	assert.True(t, now.Equal(got[0].Timestamp))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_EntryStats(t *testing.T) {
	_, mock, store := setupMockDB(t)

	rows := sqlmock.NewRows([]string{"overall_score", "importance_level", "storage_tier", "created_at"}).
		AddRow(0.85, "CRITICAL", "HOT", now.Add(-time.Hour)).
		AddRow(0.1, "NOISE", "COLD", now.Add(-40*24*time.Hour))
	mock.ExpectQuery(`FROM timeline_entries\s+WHERE project_id = \$1 AND stored_at >= \$2 AND retention_deadline > \$3`).
		WithArgs("p1", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(rows)

	stats, err := store.EntryStats(context.Background(), "p1", now.Add(-30*24*time.Hour), now)
	require.NoError(t, err)
	require.Len(t, stats, 2)
	assert.Equal(t, timeline.TierCold, stats[1].Tier)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_SearchEntriesUsesTsquery(t *testing.T) {
	_, mock, store := setupMockDB(t)

	mock.ExpectQuery(`ts_rank\(to_tsvector\('english', e.content\), to_tsquery\('english', \$1\)\)`).
		WithArgs("jwt | token", "p1", sqlmock.AnyArg(), "jwt | token", 5).
		WillReturnRows(sqlmock.NewRows(nil))

	hits, err := store.SearchEntries(context.Background(), "p1", "JWT token", 5, now)
	require.NoError(t, err)
	assert.Empty(t, hits)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_ListProjectsError(t *testing.T) {
	_, mock, store := setupMockDB(t)
	mock.ExpectQuery("SELECT DISTINCT project_id").WillReturnError(errors.New("connection reset"))

	_, err := store.ListProjects(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "list projects")
}

func TestNewPostgresStore_RequiresDSN(t *testing.T) {
	_, err := NewPostgresStore(context.Background(), "", DefaultPoolConfig())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dsn is required")
}
