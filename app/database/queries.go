package database

import (
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/lysyi3m/tradewire/app/teams"
	"github.com/lysyi3m/tradewire/app/transaction"
)

// maxMatches bounds the rows handed to the duplicate judgment.
const maxMatches = 20

var (
	itemColumns = []string{
		"guid", "source", "title", "description", "link", "published_at",
		"status", "transaction_ids", "error", "created_at", "processed_at",
	}
	transactionColumns = []string{
		"t.id", "t.kind", "t.occurred_at", "t.team_ids", "t.data", "t.source_guid", "t.created_at",
	}
	runColumns = []string{
		"id", "started_at", "finished_at", "items_checked", "new_items_found",
		"transactions_extracted", "transactions_added", "errors",
	}
)

// dialect captures what differs between the SQL backends: placeholders and
// how a timestamp is bound.
type dialect struct {
	placeholder sq.PlaceholderFormat
	timestamp   func(time.Time) any
}

var (
	sqliteDialect = dialect{
		placeholder: sq.Question,
		timestamp:   func(t time.Time) any { return t.UTC().UnixMilli() },
	}
	postgresDialect = dialect{
		placeholder: sq.Dollar,
		timestamp:   func(t time.Time) any { return t.UTC() },
	}
)

func (d dialect) builder() sq.StatementBuilderType {
	return sq.StatementBuilder.PlaceholderFormat(d.placeholder)
}

func (d dialect) recentMatchesQuery(kind transaction.Kind, teamIDs []teams.ID, from, to time.Time) (string, []any, error) {
	shared, sharedArgs, err := sq.Select("1").
		From("transaction_teams tt").
		Where("tt.transaction_id = t.id").
		Where(sq.Eq{"tt.team_id": teams.Strings(teamIDs)}).
		ToSql()
	if err != nil {
		return "", nil, eris.Wrap(err, "build team overlap subquery")
	}

	return d.builder().
		Select(transactionColumns...).
		From("transactions t").
		Where(sq.Eq{"t.kind": string(kind)}).
		Where(sq.GtOrEq{"t.occurred_at": d.timestamp(from)}).
		Where(sq.LtOrEq{"t.occurred_at": d.timestamp(to)}).
		Where("EXISTS ("+shared+")", sharedArgs...).
		OrderBy("t.occurred_at", "t.id").
		Limit(maxMatches).
		ToSql()
}

func (d dialect) listTransactionsQuery(limit int) (string, []any, error) {
	return d.builder().
		Select(transactionColumns...).
		From("transactions t").
		OrderBy("t.created_at DESC", "t.id").
		Limit(clampLimit(limit)).
		ToSql()
}

func (d dialect) listItemsQuery(filter ItemFilter) (string, []any, error) {
	q := d.builder().Select(itemColumns...).From("feed_items")
	if filter.Status != "" {
		q = q.Where(sq.Eq{"status": string(filter.Status)})
	}
	if !filter.CreatedBefore.IsZero() {
		q = q.Where(sq.Lt{"created_at": d.timestamp(filter.CreatedBefore)})
	}
	return q.OrderBy("created_at DESC", "guid").Limit(clampLimit(filter.Limit)).ToSql()
}

// claimItemQuery builds the conditional update behind ClaimItem. The claim
// condition is checked by the update itself, so two racing claims cannot
// both match.
func (d dialect) claimItemQuery(guid string, now, staleBefore time.Time) (string, []any, error) {
	query, args, err := d.builder().
		Update("feed_items").
		Set("claimed_at", d.timestamp(now)).
		Where(sq.Eq{"guid": guid, "status": string(StatusPending)}).
		Where(sq.Or{sq.Eq{"claimed_at": nil}, sq.Lt{"claimed_at": d.timestamp(staleBefore)}}).
		ToSql()
	return query, args, eris.Wrap(err, "build claim query")
}

func (d dialect) getItemQuery(guid string) (string, []any, error) {
	return d.builder().Select(itemColumns...).From("feed_items").Where(sq.Eq{"guid": guid}).ToSql()
}

func (d dialect) listRunsQuery(limit int) (string, []any, error) {
	return d.builder().
		Select(runColumns...).
		From("pipeline_runs").
		OrderBy("started_at DESC", "id").
		Limit(clampLimit(limit)).
		ToSql()
}

// newTransaction assigns identity to a candidate about to be committed.
func newTransaction(c transaction.Candidate, sourceGUID string, now time.Time) (*transaction.Transaction, error) {
	data, err := transaction.Encode(c)
	if err != nil {
		return nil, eris.Wrap(err, "encode candidate")
	}

	return &transaction.Transaction{
		ID:         uuid.NewString(),
		Kind:       c.Kind(),
		Timestamp:  c.When().UTC(),
		TeamIDs:    c.TeamIDs(),
		Data:       data,
		SourceGUID: sourceGUID,
		CreatedAt:  now.UTC().Truncate(time.Millisecond),
	}, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
