package database

import (
	"context"
	"time"

	"github.com/lysyi3m/tradewire/app/feed"
	"github.com/lysyi3m/tradewire/app/teams"
	"github.com/lysyi3m/tradewire/app/transaction"
)

// ItemRepository persists feed items and their processing status.
type ItemRepository interface {
	// AdmitNewItems inserts items whose GUID is not yet stored, as pending,
	// and returns exactly those it inserted in input order. Uniqueness is
	// enforced by the primary key at insert time.
	AdmitNewItems(ctx context.Context, items []feed.Item) ([]feed.Item, error)
	SetItemStatus(ctx context.Context, guid string, status ItemStatus, transactionIDs []string, errMsg string) error
	// ClaimItem marks a pending item as taken by the caller. It succeeds only
	// when the item was never claimed or its last claim is older than
	// staleBefore, so at most one run holds a live claim.
	ClaimItem(ctx context.Context, guid string, staleBefore time.Time) (bool, error)
	GetItem(ctx context.Context, guid string) (*StoredItem, error)
	ListItems(ctx context.Context, filter ItemFilter) ([]StoredItem, error)
}

type TransactionRepository interface {
	// FindRecentMatches returns transactions of kind sharing at least one
	// team with teamIDs and occurring within [from, to].
	FindRecentMatches(ctx context.Context, kind transaction.Kind, teamIDs []teams.ID, from, to time.Time) ([]transaction.Transaction, error)
	Commit(ctx context.Context, c transaction.Candidate, sourceGUID string) (*transaction.Transaction, error)
	ListTransactions(ctx context.Context, limit int) ([]transaction.Transaction, error)
}

type RunRepository interface {
	RecordRun(ctx context.Context, run RunRecord) error
	ListRuns(ctx context.Context, limit int) ([]RunRecord, error)
}

type Store interface {
	ItemRepository
	TransactionRepository
	RunRepository

	Stats(ctx context.Context) (*Stats, error)
	// Migrate applies pending migrations and reports the resulting version.
	Migrate() (uint, bool, error)
	Close() error
}
