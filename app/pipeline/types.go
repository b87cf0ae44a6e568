package pipeline

import (
	"context"
	"time"

	"github.com/lysyi3m/tradewire/app/database"
	"github.com/lysyi3m/tradewire/app/extract"
	"github.com/lysyi3m/tradewire/app/feed"
	"github.com/lysyi3m/tradewire/app/transaction"
)

// RunResult summarizes one pipeline run. Errors is never nil.
type RunResult struct {
	ItemsChecked          int       `json:"itemsChecked"`
	NewItemsFound         int       `json:"newItemsFound"`
	TransactionsExtracted int       `json:"transactionsExtracted"`
	TransactionsAdded     int       `json:"transactionsAdded"`
	Errors                []string  `json:"errors"`
	StartedAt             time.Time `json:"startedAt"`
	FinishedAt            time.Time `json:"finishedAt"`

	aborted bool
}

// Aborted reports whether the run stopped before processing any item
// because fetching or admission failed.
func (r RunResult) Aborted() bool { return r.aborted }

type Fetcher interface {
	FetchAll(ctx context.Context) ([]feed.Item, error)
}

// Enricher optionally adds article content to an item before extraction.
type Enricher interface {
	Enrich(ctx context.Context, item *feed.Item)
}

type Extractor interface {
	Extract(ctx context.Context, item feed.Item) (extract.Result, error)
}

type DuplicateChecker interface {
	IsDuplicate(ctx context.Context, c transaction.Candidate) (bool, error)
}

type Admitter interface {
	AdmitNewItems(ctx context.Context, items []feed.Item) ([]feed.Item, error)
}

// Store is the persistence the runner writes to.
type Store interface {
	Admitter
	SetItemStatus(ctx context.Context, guid string, status database.ItemStatus, transactionIDs []string, errMsg string) error
	Commit(ctx context.Context, c transaction.Candidate, sourceGUID string) (*transaction.Transaction, error)
}

// PendingStore finds items left pending by earlier runs and claims items
// before they are processed.
type PendingStore interface {
	ListItems(ctx context.Context, filter database.ItemFilter) ([]database.StoredItem, error)
	ClaimItem(ctx context.Context, guid string, staleBefore time.Time) (bool, error)
}
