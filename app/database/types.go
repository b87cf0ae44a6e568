package database

import (
	"time"

	"github.com/lysyi3m/tradewire/app/feed"
)

type ItemStatus string

const (
	StatusPending   ItemStatus = "pending"
	StatusProcessed ItemStatus = "processed"
	StatusFailed    ItemStatus = "failed"
)

func (s ItemStatus) Valid() bool {
	switch s {
	case StatusPending, StatusProcessed, StatusFailed:
		return true
	}
	return false
}

// StoredItem is a feed item as recorded by the gate, plus its processing
// outcome.
type StoredItem struct {
	GUID           string     `json:"guid"`
	Source         string     `json:"source"`
	Title          string     `json:"title"`
	Description    string     `json:"description"`
	Link           string     `json:"link"`
	PublishedAt    time.Time  `json:"published_at"`
	Status         ItemStatus `json:"status"`
	TransactionIDs []string   `json:"transaction_ids"` // never nil
	Error          string     `json:"error,omitempty"` // set only when failed
	CreatedAt      time.Time  `json:"created_at"`
	ProcessedAt    *time.Time `json:"processed_at,omitempty"`
}

// FeedItem returns the item as the pipeline sees it. Content is not stored.
func (s StoredItem) FeedItem() feed.Item {
	return feed.Item{
		GUID:        s.GUID,
		Source:      s.Source,
		Title:       s.Title,
		Description: s.Description,
		Link:        s.Link,
		PublishedAt: s.PublishedAt,
	}
}

type ItemFilter struct {
	Status        ItemStatus // empty means any
	CreatedBefore time.Time  // zero means any
	Limit         int
}

// RunRecord is one persisted pipeline run.
type RunRecord struct {
	ID                    string    `json:"id"`
	StartedAt             time.Time `json:"started_at"`
	FinishedAt            time.Time `json:"finished_at"`
	ItemsChecked          int       `json:"items_checked"`
	NewItemsFound         int       `json:"new_items_found"`
	TransactionsExtracted int       `json:"transactions_extracted"`
	TransactionsAdded     int       `json:"transactions_added"`
	Errors                []string  `json:"errors"`
}

type Stats struct {
	ItemsByStatus map[ItemStatus]int `json:"items_by_status"`
	Transactions  int                `json:"transactions"`
	Runs          int                `json:"runs"`
}

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

func clampLimit(limit int) uint64 {
	switch {
	case limit <= 0:
		return defaultListLimit
	case limit > maxListLimit:
		return maxListLimit
	}
	return uint64(limit)
}
