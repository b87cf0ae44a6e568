package database

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/rotisserie/eris"

	"github.com/lysyi3m/tradewire/app/feed"
	"github.com/lysyi3m/tradewire/app/teams"
	"github.com/lysyi3m/tradewire/app/transaction"
)

// Pool is the subset of pgxpool.Pool the store uses.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Close()
}

// PostgresStore implements Store using pgx.
type PostgresStore struct {
	pool Pool
	raw  *pgxpool.Pool // nil when pool is not a real pgxpool
	d    dialect
	now  func() time.Time
}

func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}
	cfg.MaxConnLifetime = 30 * time.Minute
	cfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}

	s := newPostgresStore(pool)
	s.raw = pool
	return s, nil
}

func newPostgresStore(pool Pool) *PostgresStore {
	return &PostgresStore{pool: pool, d: postgresDialect, now: time.Now}
}

func (s *PostgresStore) Migrate() (uint, bool, error) {
	if s.raw == nil {
		return 0, false, eris.New("postgres: migrations need a pgxpool connection")
	}
	db := stdlib.OpenDBFromPool(s.raw)
	defer db.Close()
	return migratePostgres(db)
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) AdmitNewItems(ctx context.Context, items []feed.Item) ([]feed.Item, error) {
	admitted := make([]feed.Item, 0, len(items))
	if len(items) == 0 {
		return admitted, nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: begin admit")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	now := s.now().UTC()
	for _, item := range items {
		tag, err := tx.Exec(ctx, `
			INSERT INTO feed_items (guid, source, title, description, link, published_at, status, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, 'pending', $7)
			ON CONFLICT (guid) DO NOTHING`,
			item.GUID, item.Source, item.Title, item.Description, item.Link, item.PublishedAt.UTC(), now)
		if err != nil {
			return nil, eris.Wrapf(err, "postgres: admit %s", item.GUID)
		}
		if tag.RowsAffected() == 1 {
			admitted = append(admitted, item)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, eris.Wrap(err, "postgres: commit admit")
	}
	return admitted, nil
}

func (s *PostgresStore) SetItemStatus(ctx context.Context, guid string, status ItemStatus, transactionIDs []string, errMsg string) error {
	if !status.Valid() {
		return eris.Errorf("postgres: invalid status %q", status)
	}
	if status != StatusFailed {
		errMsg = ""
	}

	var processedAt *time.Time
	if status != StatusPending {
		now := s.now().UTC()
		processedAt = &now
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE feed_items SET status = $1, transaction_ids = $2, error = $3, processed_at = $4 WHERE guid = $5`,
		string(status), nonNil(transactionIDs), errMsg, processedAt, guid)
	if err != nil {
		return eris.Wrapf(err, "postgres: set status %s", guid)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("postgres: item %s not found", guid)
	}
	return nil
}

func (s *PostgresStore) ClaimItem(ctx context.Context, guid string, staleBefore time.Time) (bool, error) {
	query, args, err := s.d.claimItemQuery(guid, s.now(), staleBefore)
	if err != nil {
		return false, err
	}

	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: claim %s", guid)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) GetItem(ctx context.Context, guid string) (*StoredItem, error) {
	query, args, err := s.d.getItemQuery(guid)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: build get item")
	}

	item, err := scanPostgresItem(s.pool.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get item %s", guid)
	}
	return item, nil
}

func (s *PostgresStore) ListItems(ctx context.Context, filter ItemFilter) ([]StoredItem, error) {
	query, args, err := s.d.listItemsQuery(filter)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: build list items")
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list items")
	}
	defer rows.Close()

	items := []StoredItem{}
	for rows.Next() {
		item, err := scanPostgresItem(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan item")
		}
		items = append(items, *item)
	}
	return items, eris.Wrap(rows.Err(), "postgres: iterate items")
}

func (s *PostgresStore) FindRecentMatches(ctx context.Context, kind transaction.Kind, teamIDs []teams.ID, from, to time.Time) ([]transaction.Transaction, error) {
	if len(teamIDs) == 0 {
		return []transaction.Transaction{}, nil
	}

	query, args, err := s.d.recentMatchesQuery(kind, teamIDs, from, to)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: build recent matches")
	}
	return s.queryTransactions(ctx, query, args)
}

func (s *PostgresStore) ListTransactions(ctx context.Context, limit int) ([]transaction.Transaction, error) {
	query, args, err := s.d.listTransactionsQuery(limit)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: build list transactions")
	}
	return s.queryTransactions(ctx, query, args)
}

func (s *PostgresStore) Commit(ctx context.Context, c transaction.Candidate, sourceGUID string) (*transaction.Transaction, error) {
	t, err := newTransaction(c, sourceGUID, s.now())
	if err != nil {
		return nil, eris.Wrap(err, "postgres: commit")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: begin commit")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx,
		`INSERT INTO transactions (id, kind, occurred_at, team_ids, data, source_guid, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		t.ID, string(t.Kind), t.Timestamp, teams.Strings(t.TeamIDs), []byte(t.Data), t.SourceGUID, t.CreatedAt)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert transaction")
	}

	for _, team := range t.TeamIDs {
		if _, err := tx.Exec(ctx,
			`INSERT INTO transaction_teams (transaction_id, team_id) VALUES ($1, $2)`, t.ID, string(team)); err != nil {
			return nil, eris.Wrapf(err, "postgres: insert transaction team %s", team)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, eris.Wrap(err, "postgres: commit transaction")
	}
	return t, nil
}

func (s *PostgresStore) RecordRun(ctx context.Context, run RunRecord) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO pipeline_runs (id, started_at, finished_at, items_checked, new_items_found,
			transactions_extracted, transactions_added, errors)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		run.ID, run.StartedAt.UTC(), run.FinishedAt.UTC(),
		run.ItemsChecked, run.NewItemsFound, run.TransactionsExtracted, run.TransactionsAdded, nonNil(run.Errors))
	return eris.Wrap(err, "postgres: record run")
}

func (s *PostgresStore) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	query, args, err := s.d.listRunsQuery(limit)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: build list runs")
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	runs := []RunRecord{}
	for rows.Next() {
		var r RunRecord
		if err := rows.Scan(&r.ID, &r.StartedAt, &r.FinishedAt, &r.ItemsChecked, &r.NewItemsFound,
			&r.TransactionsExtracted, &r.TransactionsAdded, &r.Errors); err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		r.Errors = nonNil(r.Errors)
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: iterate runs")
}

func (s *PostgresStore) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{ItemsByStatus: map[ItemStatus]int{
		StatusPending: 0, StatusProcessed: 0, StatusFailed: 0,
	}}

	rows, err := s.pool.Query(ctx, `SELECT status, COUNT(*) FROM feed_items GROUP BY status`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: count items")
	}
	defer rows.Close()
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, eris.Wrap(err, "postgres: scan item count")
		}
		stats.ItemsByStatus[ItemStatus(status)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: iterate item counts")
	}

	err = s.pool.QueryRow(ctx,
		`SELECT (SELECT COUNT(*) FROM transactions), (SELECT COUNT(*) FROM pipeline_runs)`).
		Scan(&stats.Transactions, &stats.Runs)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: count transactions and runs")
	}
	return stats, nil
}

func (s *PostgresStore) queryTransactions(ctx context.Context, query string, args []any) ([]transaction.Transaction, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query transactions")
	}
	defer rows.Close()

	out := []transaction.Transaction{}
	for rows.Next() {
		var (
			t       transaction.Transaction
			kind    string
			teamIDs []string
			data    []byte
		)
		if err := rows.Scan(&t.ID, &kind, &t.Timestamp, &teamIDs, &data, &t.SourceGUID, &t.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan transaction")
		}
		t.Kind = transaction.Kind(kind)
		t.Timestamp = t.Timestamp.UTC()
		t.CreatedAt = t.CreatedAt.UTC()
		t.Data = data
		t.TeamIDs = make([]teams.ID, len(teamIDs))
		for i, id := range teamIDs {
			t.TeamIDs[i] = teams.ID(id)
		}
		out = append(out, t)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate transactions")
}

func scanPostgresItem(row pgx.Row) (*StoredItem, error) {
	var (
		item   StoredItem
		status string
	)
	err := row.Scan(&item.GUID, &item.Source, &item.Title, &item.Description, &item.Link,
		&item.PublishedAt, &status, &item.TransactionIDs, &item.Error, &item.CreatedAt, &item.ProcessedAt)
	if err != nil {
		return nil, err
	}
	item.Status = ItemStatus(status)
	item.TransactionIDs = nonNil(item.TransactionIDs)
	return &item, nil
}
