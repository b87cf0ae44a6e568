package api

import (
	"context"

	"github.com/lysyi3m/tradewire/app/database"
	"github.com/lysyi3m/tradewire/app/pipeline"
	"github.com/lysyi3m/tradewire/app/transaction"
)

// RunTrigger starts one pipeline run and waits for it.
type RunTrigger interface {
	Run(ctx context.Context) (pipeline.RunResult, error)
}

// Reader is the read side of the store the API exposes.
type Reader interface {
	GetItem(ctx context.Context, guid string) (*database.StoredItem, error)
	ListItems(ctx context.Context, filter database.ItemFilter) ([]database.StoredItem, error)
	ListTransactions(ctx context.Context, limit int) ([]transaction.Transaction, error)
	ListRuns(ctx context.Context, limit int) ([]database.RunRecord, error)
	Stats(ctx context.Context) (*database.Stats, error)
}

// SourceCounter reports how many sources are configured.
type SourceCounter interface {
	Count() int
}

type Handler struct {
	trigger RunTrigger
	store   Reader
	sources SourceCounter
	version string
}
