package database

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lysyi3m/tradewire/app/feed"
	"github.com/lysyi3m/tradewire/app/teams"
	"github.com/lysyi3m/tradewire/app/transaction"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	_, dirty, err := s.Migrate()
	require.NoError(t, err)
	require.False(t, dirty)
	return s
}

func testItem(guid string) feed.Item {
	return feed.Item{
		GUID:        guid,
		Source:      "espn",
		Title:       "Title " + guid,
		Description: "Description " + guid,
		Link:        "https://example.com/" + guid,
		PublishedAt: time.Date(2025, 3, 10, 16, 0, 0, 0, time.UTC),
	}
}

func guids(items []feed.Item) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.GUID
	}
	return out
}

func mustCandidate(t *testing.T, raw string) transaction.Candidate {
	t.Helper()
	c, err := transaction.Decode([]byte(raw))
	require.NoError(t, err)
	require.NoError(t, transaction.Check(c))
	return c
}

const (
	signingBUF = `{"type":"signing","timestamp":"2025-03-10T16:00:00Z","summary":"Bills sign WR","team":"BUF","player":{"name":"John Doe","position":"WR"},"signing_type":"free_agent"}`
	tradeBUFKC = `{"type":"trade","timestamp":"2025-03-10T18:00:00Z","summary":"Bills and Chiefs trade","teams":["BUF","KC"],"assets":[
		{"kind":"player","from_team":"BUF","to_team":"KC","player":{"name":"A B"}},
		{"kind":"cash","from_team":"KC","to_team":"BUF"}]}`
)

func TestSQLite_MigrateIsRepeatable(t *testing.T) {
	s := newTestStore(t)
	version, dirty, err := s.Migrate()
	require.NoError(t, err)
	assert.Equal(t, uint(2), version)
	assert.False(t, dirty)
}

func TestSQLite_AdmitNewItems_Idempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	admitted, err := s.AdmitNewItems(ctx, []feed.Item{testItem("a"), testItem("b")})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, guids(admitted))

	admitted, err = s.AdmitNewItems(ctx, []feed.Item{testItem("b"), testItem("c")})
	require.NoError(t, err)
	assert.Equal(t, []string{"c"}, guids(admitted))

	admitted, err = s.AdmitNewItems(ctx, []feed.Item{testItem("a"), testItem("b"), testItem("c")})
	require.NoError(t, err)
	assert.NotNil(t, admitted)
	assert.Empty(t, admitted)

	admitted, err = s.AdmitNewItems(ctx, nil)
	require.NoError(t, err)
	assert.NotNil(t, admitted)
	assert.Empty(t, admitted)
}

func TestSQLite_AdmitNewItems_Concurrent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	batch := make([]feed.Item, 20)
	for i := range batch {
		batch[i] = testItem(string(rune('a' + i)))
	}

	var (
		mu    sync.Mutex
		total int
		wg    sync.WaitGroup
	)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			admitted, err := s.AdmitNewItems(ctx, batch)
			assert.NoError(t, err)
			mu.Lock()
			total += len(admitted)
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, len(batch), total, "each guid must be admitted exactly once")
}

func TestSQLite_AdmittedItemIsPending(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.AdmitNewItems(ctx, []feed.Item{testItem("a")})
	require.NoError(t, err)

	item, err := s.GetItem(ctx, "a")
	require.NoError(t, err)
	require.NotNil(t, item)
	assert.Equal(t, StatusPending, item.Status)
	assert.Equal(t, "espn", item.Source)
	assert.Equal(t, "Title a", item.Title)
	assert.True(t, item.PublishedAt.Equal(testItem("a").PublishedAt))
	assert.NotNil(t, item.TransactionIDs)
	assert.Empty(t, item.TransactionIDs)
	assert.Nil(t, item.ProcessedAt)

	missing, err := s.GetItem(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestSQLite_SetItemStatus(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.AdmitNewItems(ctx, []feed.Item{testItem("a"), testItem("b")})
	require.NoError(t, err)

	require.NoError(t, s.SetItemStatus(ctx, "a", StatusProcessed, []string{"t1", "t2"}, "ignored"))
	a, err := s.GetItem(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, StatusProcessed, a.Status)
	assert.Equal(t, []string{"t1", "t2"}, a.TransactionIDs)
	assert.Empty(t, a.Error, "error is only kept for failed items")
	assert.NotNil(t, a.ProcessedAt)

	require.NoError(t, s.SetItemStatus(ctx, "b", StatusFailed, nil, "model timeout"))
	b, err := s.GetItem(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, b.Status)
	assert.Equal(t, "model timeout", b.Error)
	assert.Equal(t, []string{}, b.TransactionIDs)

	assert.Error(t, s.SetItemStatus(ctx, "missing", StatusProcessed, nil, ""))
	assert.Error(t, s.SetItemStatus(ctx, "a", ItemStatus("done"), nil, ""))

	failed, err := s.ListItems(ctx, ItemFilter{Status: StatusFailed})
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, "b", failed[0].GUID)

	all, err := s.ListItems(ctx, ItemFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestSQLite_CommitAndFindRecentMatches(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	committed, err := s.Commit(ctx, mustCandidate(t, signingBUF), "item-1")
	require.NoError(t, err)
	assert.NotEmpty(t, committed.ID)
	assert.Equal(t, transaction.KindSigning, committed.Kind)
	assert.Equal(t, []teams.ID{"BUF"}, committed.TeamIDs)
	assert.NotContains(t, string(committed.Data), `"id"`)

	_, err = s.Commit(ctx, mustCandidate(t, tradeBUFKC), "item-2")
	require.NoError(t, err)

	ts := time.Date(2025, 3, 10, 20, 0, 0, 0, time.UTC)
	window := func(at time.Time) (time.Time, time.Time) { return at.Add(-24 * time.Hour), at.Add(24 * time.Hour) }

	from, to := window(ts)
	matches, err := s.FindRecentMatches(ctx, transaction.KindSigning, []teams.ID{"BUF"}, from, to)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, committed.ID, matches[0].ID)
	assert.Equal(t, "item-1", matches[0].SourceGUID)
	assert.True(t, committed.Timestamp.Equal(matches[0].Timestamp))
	assert.JSONEq(t, string(committed.Data), string(matches[0].Data))

	matches, err = s.FindRecentMatches(ctx, transaction.KindSigning, []teams.ID{"MIA"}, from, to)
	require.NoError(t, err)
	assert.Empty(t, matches, "no team overlap")

	matches, err = s.FindRecentMatches(ctx, transaction.KindRelease, []teams.ID{"BUF"}, from, to)
	require.NoError(t, err)
	assert.Empty(t, matches, "different kind")

	from, to = window(ts.Add(72 * time.Hour))
	matches, err = s.FindRecentMatches(ctx, transaction.KindSigning, []teams.ID{"BUF"}, from, to)
	require.NoError(t, err)
	assert.Empty(t, matches, "outside window")

	from, to = window(ts)
	matches, err = s.FindRecentMatches(ctx, transaction.KindTrade, []teams.ID{"KC", "NYJ"}, from, to)
	require.NoError(t, err)
	require.Len(t, matches, 1, "one shared team is enough")
	assert.Equal(t, []teams.ID{"BUF", "KC"}, matches[0].TeamIDs)

	matches, err = s.FindRecentMatches(ctx, transaction.KindTrade, nil, from, to)
	require.NoError(t, err)
	assert.Empty(t, matches)

	listed, err := s.ListTransactions(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, listed, 2)
}

func TestSQLite_RunsAndStats(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	start := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	require.NoError(t, s.RecordRun(ctx, RunRecord{
		ID: "r1", StartedAt: start, FinishedAt: start.Add(time.Minute),
		ItemsChecked: 5, NewItemsFound: 2, TransactionsExtracted: 2, TransactionsAdded: 1,
	}))
	require.NoError(t, s.RecordRun(ctx, RunRecord{
		ID: "r2", StartedAt: start.Add(time.Hour), FinishedAt: start.Add(time.Hour),
		Errors: []string{"fetch cancelled"},
	}))

	runs, err := s.ListRuns(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "r2", runs[0].ID, "newest first")
	assert.Equal(t, []string{"fetch cancelled"}, runs[0].Errors)
	assert.Equal(t, []string{}, runs[1].Errors)
	assert.Equal(t, 5, runs[1].ItemsChecked)
	assert.True(t, runs[1].StartedAt.Equal(start))

	_, err = s.AdmitNewItems(ctx, []feed.Item{testItem("a"), testItem("b")})
	require.NoError(t, err)
	require.NoError(t, s.SetItemStatus(ctx, "a", StatusProcessed, nil, ""))
	_, err = s.Commit(ctx, mustCandidate(t, signingBUF), "a")
	require.NoError(t, err)

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.ItemsByStatus[StatusPending])
	assert.Equal(t, 1, stats.ItemsByStatus[StatusProcessed])
	assert.Equal(t, 0, stats.ItemsByStatus[StatusFailed])
	assert.Equal(t, 1, stats.Transactions)
	assert.Equal(t, 2, stats.Runs)
}

func TestSQLite_ListPendingCreatedBefore(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	earlier := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return earlier }
	_, err := store.AdmitNewItems(ctx, []feed.Item{testItem("old-a"), testItem("old-b")})
	require.NoError(t, err)
	require.NoError(t, store.SetItemStatus(ctx, "old-b", StatusProcessed, nil, ""))

	store.now = func() time.Time { return earlier.Add(time.Hour) }
	_, err = store.AdmitNewItems(ctx, []feed.Item{testItem("new")})
	require.NoError(t, err)

	items, err := store.ListItems(ctx, ItemFilter{Status: StatusPending, CreatedBefore: earlier.Add(time.Minute)})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "old-a", items[0].GUID)

	it := items[0].FeedItem()
	assert.Equal(t, "old-a", it.GUID)
	assert.Equal(t, items[0].Title, it.Title)
	assert.True(t, items[0].PublishedAt.Equal(it.PublishedAt))
}

func TestSQLite_ClaimItem(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	admitted := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return admitted }
	_, err := store.AdmitNewItems(ctx, []feed.Item{testItem("a"), testItem("done")})
	require.NoError(t, err)
	require.NoError(t, store.SetItemStatus(ctx, "done", StatusProcessed, nil, ""))

	lease := 10 * time.Minute

	ok, err := store.ClaimItem(ctx, "a", admitted.Add(-lease))
	require.NoError(t, err)
	assert.True(t, ok, "unclaimed item is claimable")

	store.now = func() time.Time { return admitted.Add(5 * time.Minute) }
	ok, err = store.ClaimItem(ctx, "a", admitted.Add(5*time.Minute-lease))
	require.NoError(t, err)
	assert.False(t, ok, "live claim is exclusive")

	store.now = func() time.Time { return admitted.Add(20 * time.Minute) }
	ok, err = store.ClaimItem(ctx, "a", admitted.Add(20*time.Minute-lease))
	require.NoError(t, err)
	assert.True(t, ok, "expired claim can be taken over")

	ok, err = store.ClaimItem(ctx, "done", admitted.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, ok, "only pending items are claimed")

	ok, err = store.ClaimItem(ctx, "missing", admitted.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSQLite_ClaimItem_Concurrent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	_, err := store.AdmitNewItems(ctx, []feed.Item{testItem("a")})
	require.NoError(t, err)

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := store.ClaimItem(ctx, "a", time.Now().Add(-time.Minute))
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}
