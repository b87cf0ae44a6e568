package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/lysyi3m/tradewire/app/feed"
	"github.com/lysyi3m/tradewire/app/teams"
	"github.com/lysyi3m/tradewire/app/transaction"
)

// SQLiteStore implements Store using modernc.org/sqlite. Timestamps are
// stored as unix milliseconds and lists as JSON text.
type SQLiteStore struct {
	db  *sql.DB
	d   dialect
	now func() time.Time
}

var sqlitePragmas = []string{
	"busy_timeout(5000)",
	"journal_mode(WAL)",
	"foreign_keys(1)",
	"synchronous(NORMAL)",
}

// NewSQLite opens the database at path. Pragmas go in the DSN so every
// pooled connection gets them.
func NewSQLite(path string) (*SQLiteStore, error) {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	dsn := path + sep + "_pragma=" + strings.Join(sqlitePragmas, "&_pragma=")

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, eris.Wrap(err, "sqlite: ping")
	}

	return &SQLiteStore{db: db, d: sqliteDialect, now: time.Now}, nil
}

func (s *SQLiteStore) Migrate() (uint, bool, error) {
	return migrateSQLite(s.db)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) AdmitNewItems(ctx context.Context, items []feed.Item) ([]feed.Item, error) {
	admitted := make([]feed.Item, 0, len(items))
	if len(items) == 0 {
		return admitted, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: begin admit")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO feed_items (guid, source, title, description, link, published_at, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, 'pending', ?)
		ON CONFLICT (guid) DO NOTHING`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: prepare admit")
	}
	defer stmt.Close()

	now := s.now().UTC().UnixMilli()
	for _, item := range items {
		res, err := stmt.ExecContext(ctx,
			item.GUID, item.Source, item.Title, item.Description, item.Link,
			item.PublishedAt.UTC().UnixMilli(), now)
		if err != nil {
			return nil, eris.Wrapf(err, "sqlite: admit %s", item.GUID)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: rows affected")
		}
		if n == 1 {
			admitted = append(admitted, item)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, eris.Wrap(err, "sqlite: commit admit")
	}
	return admitted, nil
}

func (s *SQLiteStore) SetItemStatus(ctx context.Context, guid string, status ItemStatus, transactionIDs []string, errMsg string) error {
	if !status.Valid() {
		return eris.Errorf("sqlite: invalid status %q", status)
	}
	if status != StatusFailed {
		errMsg = ""
	}

	ids, err := json.Marshal(nonNil(transactionIDs))
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal transaction ids")
	}

	var processedAt any
	if status != StatusPending {
		processedAt = s.now().UTC().UnixMilli()
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE feed_items SET status = ?, transaction_ids = ?, error = ?, processed_at = ? WHERE guid = ?`,
		string(status), string(ids), errMsg, processedAt, guid)
	if err != nil {
		return eris.Wrapf(err, "sqlite: set status %s", guid)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return eris.Errorf("sqlite: item %s not found", guid)
	}
	return nil
}

func (s *SQLiteStore) ClaimItem(ctx context.Context, guid string, staleBefore time.Time) (bool, error) {
	query, args, err := s.d.claimItemQuery(guid, s.now(), staleBefore)
	if err != nil {
		return false, err
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: claim %s", guid)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, eris.Wrap(err, "sqlite: rows affected")
	}
	return n == 1, nil
}

func (s *SQLiteStore) GetItem(ctx context.Context, guid string) (*StoredItem, error) {
	query, args, err := s.d.getItemQuery(guid)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: build get item")
	}

	item, err := scanSQLiteItem(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get item %s", guid)
	}
	return item, nil
}

func (s *SQLiteStore) ListItems(ctx context.Context, filter ItemFilter) ([]StoredItem, error) {
	query, args, err := s.d.listItemsQuery(filter)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: build list items")
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list items")
	}
	defer rows.Close()

	items := []StoredItem{}
	for rows.Next() {
		item, err := scanSQLiteItem(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan item")
		}
		items = append(items, *item)
	}
	return items, eris.Wrap(rows.Err(), "sqlite: iterate items")
}

func (s *SQLiteStore) FindRecentMatches(ctx context.Context, kind transaction.Kind, teamIDs []teams.ID, from, to time.Time) ([]transaction.Transaction, error) {
	if len(teamIDs) == 0 {
		return []transaction.Transaction{}, nil
	}

	query, args, err := s.d.recentMatchesQuery(kind, teamIDs, from, to)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: build recent matches")
	}
	return s.queryTransactions(ctx, query, args)
}

func (s *SQLiteStore) ListTransactions(ctx context.Context, limit int) ([]transaction.Transaction, error) {
	query, args, err := s.d.listTransactionsQuery(limit)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: build list transactions")
	}
	return s.queryTransactions(ctx, query, args)
}

func (s *SQLiteStore) Commit(ctx context.Context, c transaction.Candidate, sourceGUID string) (*transaction.Transaction, error) {
	t, err := newTransaction(c, sourceGUID, s.now())
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: commit")
	}

	teamIDs, err := json.Marshal(teams.Strings(t.TeamIDs))
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal teams")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: begin commit")
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO transactions (id, kind, occurred_at, team_ids, data, source_guid, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		t.ID, string(t.Kind), t.Timestamp.UnixMilli(), string(teamIDs), string(t.Data), t.SourceGUID, t.CreatedAt.UnixMilli())
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert transaction")
	}

	for _, team := range t.TeamIDs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO transaction_teams (transaction_id, team_id) VALUES (?, ?)`, t.ID, string(team)); err != nil {
			return nil, eris.Wrapf(err, "sqlite: insert transaction team %s", team)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, eris.Wrap(err, "sqlite: commit transaction")
	}
	return t, nil
}

func (s *SQLiteStore) RecordRun(ctx context.Context, run RunRecord) error {
	errs, err := json.Marshal(nonNil(run.Errors))
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal run errors")
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO pipeline_runs (id, started_at, finished_at, items_checked, new_items_found,
			transactions_extracted, transactions_added, errors)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.StartedAt.UTC().UnixMilli(), run.FinishedAt.UTC().UnixMilli(),
		run.ItemsChecked, run.NewItemsFound, run.TransactionsExtracted, run.TransactionsAdded, string(errs))
	return eris.Wrap(err, "sqlite: record run")
}

func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	query, args, err := s.d.listRunsQuery(limit)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: build list runs")
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	runs := []RunRecord{}
	for rows.Next() {
		var (
			r                 RunRecord
			started, finished int64
			errs              string
		)
		if err := rows.Scan(&r.ID, &started, &finished, &r.ItemsChecked, &r.NewItemsFound,
			&r.TransactionsExtracted, &r.TransactionsAdded, &errs); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run")
		}
		r.StartedAt = time.UnixMilli(started).UTC()
		r.FinishedAt = time.UnixMilli(finished).UTC()
		if err := json.Unmarshal([]byte(errs), &r.Errors); err != nil {
			return nil, eris.Wrap(err, "sqlite: decode run errors")
		}
		r.Errors = nonNil(r.Errors)
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: iterate runs")
}

func (s *SQLiteStore) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{ItemsByStatus: map[ItemStatus]int{
		StatusPending: 0, StatusProcessed: 0, StatusFailed: 0,
	}}

	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM feed_items GROUP BY status`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: count items")
	}
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			rows.Close()
			return nil, eris.Wrap(err, "sqlite: scan item count")
		}
		stats.ItemsByStatus[ItemStatus(status)] = n
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: iterate item counts")
	}

	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM transactions`).Scan(&stats.Transactions); err != nil {
		return nil, eris.Wrap(err, "sqlite: count transactions")
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM pipeline_runs`).Scan(&stats.Runs); err != nil {
		return nil, eris.Wrap(err, "sqlite: count runs")
	}
	return stats, nil
}

func (s *SQLiteStore) queryTransactions(ctx context.Context, query string, args []any) ([]transaction.Transaction, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query transactions")
	}
	defer rows.Close()

	out := []transaction.Transaction{}
	for rows.Next() {
		var (
			t                   transaction.Transaction
			kind, teamIDs, data string
			occurred, created   int64
		)
		if err := rows.Scan(&t.ID, &kind, &occurred, &teamIDs, &data, &t.SourceGUID, &created); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan transaction")
		}
		if err := json.Unmarshal([]byte(teamIDs), &t.TeamIDs); err != nil {
			return nil, eris.Wrap(err, "sqlite: decode transaction teams")
		}
		t.Kind = transaction.Kind(kind)
		t.Timestamp = time.UnixMilli(occurred).UTC()
		t.CreatedAt = time.UnixMilli(created).UTC()
		t.Data = json.RawMessage(data)
		out = append(out, t)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate transactions")
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteItem(row rowScanner) (*StoredItem, error) {
	var (
		item               StoredItem
		status, ids        string
		published, created int64
		processed          sql.NullInt64
	)
	err := row.Scan(&item.GUID, &item.Source, &item.Title, &item.Description, &item.Link,
		&published, &status, &ids, &item.Error, &created, &processed)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(ids), &item.TransactionIDs); err != nil {
		return nil, eris.Wrap(err, "decode transaction ids")
	}
	item.TransactionIDs = nonNil(item.TransactionIDs)
	item.Status = ItemStatus(status)
	item.PublishedAt = time.UnixMilli(published).UTC()
	item.CreatedAt = time.UnixMilli(created).UTC()
	if processed.Valid {
		t := time.UnixMilli(processed.Int64).UTC()
		item.ProcessedAt = &t
	}
	return &item, nil
}
