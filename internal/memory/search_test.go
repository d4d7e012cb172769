package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSearchTerms(t *testing.T) {
	assert.Equal(t, []string{"authenticate", "users", "jwt", "tokens"},
		searchTerms(`How to authenticate users with "JWT" tokens? (tokens)`))
	assert.Empty(t, searchTerms("the a of"))
	assert.Equal(t, []string{"user_id", "lookup"}, searchTerms("user_id NEAR lookup"))
}

func TestSearchEntries_RanksAndScopes(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	auth := testEntry("p1", "auth", 0.6, time.Hour, 24*time.Hour)
	auth.Item.Content = "def authenticate_user(token): verify the JWT token and load the user session"
	printer := testEntry("p1", "print", 0.2, time.Hour, 24*time.Hour)
	printer.Item.Content = "print('hello world')"
	expired := testEntry("p1", "expired", 0.9, time.Hour, -time.Hour)
	expired.Item.Content = "JWT token rotation policy"
	other := testEntry("p2", "other", 0.9, time.Hour, 24*time.Hour)
	other.Item.Content = "JWT token validation"
	require.NoError(t, store.UpsertEntry(ctx, auth))
	require.NoError(t, store.UpsertEntry(ctx, printer))
	require.NoError(t, store.UpsertEntry(ctx, expired))
	require.NoError(t, store.UpsertEntry(ctx, other))

	hits, err := store.SearchEntries(ctx, "p1", "JWT token", 10, now)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "auth", hits[0].Entry.Item.ID)
	assert.Equal(t, 1.0, hits[0].Relevance)
}

func TestSearchEntries_FollowsUpdates(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	e := testEntry("p1", "doc", 0.5, time.Hour, 24*time.Hour)
	e.Item.Content = "postgres connection pooling"
	require.NoError(t, store.UpsertEntry(ctx, e))

	e.Item.Content = "redis cache eviction"
	require.NoError(t, store.UpsertEntry(ctx, e))

	hits, err := store.SearchEntries(ctx, "p1", "postgres", 10, now)
	require.NoError(t, err)
	assert.Empty(t, hits)

	hits, err = store.SearchEntries(ctx, "p1", "redis", 10, now)
	require.NoError(t, err)
	assert.Len(t, hits, 1)
}

func TestSearchEntries_EmptyQuery(t *testing.T) {
	hits, err := newTestStore(t).SearchEntries(context.Background(), "p1", "  ?? ", 10, now)
	require.NoError(t, err)
	assert.Nil(t, hits)
}
