package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/lysyi3m/tradewire/app/database"
	"github.com/lysyi3m/tradewire/app/feed"
)

const (
	defaultStatusAttempts = 3
	defaultStatusBackoff  = 200 * time.Millisecond
	defaultRecoveryLimit  = 25
	defaultRecoveryLease  = 10 * time.Minute
)

type Runner struct {
	fetcher   Fetcher
	enricher  Enricher
	gate      *Gate
	store     Store
	extractor Extractor
	dedup     DuplicateChecker

	pending       PendingStore
	recoveryLimit int
	recoveryLease time.Duration

	statusAttempts int
	statusBackoff  time.Duration
	now            func() time.Time
}

type Option func(*Runner)

func WithEnricher(e Enricher) Option {
	return func(r *Runner) { r.enricher = e }
}

// WithStatusRetry sets how many times a status write is attempted and the
// initial delay between attempts, doubled after each failure.
func WithStatusRetry(attempts int, backoff time.Duration) Option {
	return func(r *Runner) {
		if attempts > 0 {
			r.statusAttempts = attempts
		}
		r.statusBackoff = backoff
	}
}

// WithPendingRecovery reprocesses up to limit items that earlier runs left
// pending, after this run's new items. Every item is claimed in the store
// before it is processed, and a pending item is only recovered once its
// claim is older than the recovery lease.
func WithPendingRecovery(store PendingStore, limit int) Option {
	return func(r *Runner) {
		r.pending = store
		if limit > 0 {
			r.recoveryLimit = limit
		}
	}
}

// WithRecoveryLease sets how long a claim protects an item from being
// recovered by another run. It must exceed the time one item takes.
func WithRecoveryLease(d time.Duration) Option {
	return func(r *Runner) {
		if d > 0 {
			r.recoveryLease = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(r *Runner) { r.now = now }
}

func NewRunner(fetcher Fetcher, store Store, extractor Extractor, dedup DuplicateChecker, opts ...Option) *Runner {
	r := &Runner{
		fetcher:        fetcher,
		gate:           NewGate(store),
		store:          store,
		extractor:      extractor,
		dedup:          dedup,
		statusAttempts: defaultStatusAttempts,
		statusBackoff:  defaultStatusBackoff,
		recoveryLimit:  defaultRecoveryLimit,
		recoveryLease:  defaultRecoveryLease,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run fetches every source, admits unseen items and turns each into
// committed transactions. Failures of a single item are recorded in the
// result and never stop the run. A fetch or gate failure aborts the run
// with zero counts.
func (r *Runner) Run(ctx context.Context) (result RunResult) {
	result = RunResult{Errors: []string{}, StartedAt: r.now().UTC()}
	defer func() { result.FinishedAt = r.now().UTC() }()

	items, err := r.fetch(ctx)
	if err != nil {
		zap.L().Error("Run aborted during fetch", zap.Error(err))
		result.Errors = append(result.Errors, fmt.Sprintf("fetch: %v", err))
		result.aborted = true
		return result
	}

	novel, err := r.admit(ctx, items)
	if err != nil {
		zap.L().Error("Run aborted during admission", zap.Error(err))
		result.Errors = append(result.Errors, fmt.Sprintf("admit: %v", err))
		result.aborted = true
		return result
	}

	result.ItemsChecked = len(items)
	result.NewItemsFound = len(novel)

	staleBefore := result.StartedAt.Add(-r.recoveryLease)
	queue := novel
	if r.pending != nil {
		stale, err := r.stalePending(ctx, staleBefore, novel)
		if err != nil {
			zap.L().Warn("Pending recovery failed", zap.Error(err))
			result.Errors = append(result.Errors, fmt.Sprintf("recover pending: %v", err))
		}
		queue = append(queue, stale...)
	}

	for i, item := range queue {
		if ctx.Err() != nil {
			result.Errors = append(result.Errors,
				fmt.Sprintf("run cancelled: %d items left pending", len(queue)-i))
			break
		}

		if r.pending != nil {
			claimed, err := r.pending.ClaimItem(ctx, item.GUID, staleBefore)
			if err != nil {
				result.Errors = append(result.Errors, itemError(item, eris.Wrap(err, "claim")))
				continue
			}
			if !claimed {
				zap.L().Info("Item claimed by another run, skipping", zap.String("guid", item.GUID))
				continue
			}
		}

		out, err := r.processItem(ctx, item)
		result.TransactionsExtracted += out.extracted
		result.TransactionsAdded += len(out.ids)

		if err != nil && ctx.Err() != nil {
			// Left pending so a later run does not see it as handled.
			result.Errors = append(result.Errors,
				fmt.Sprintf("run cancelled: %d items left pending", len(queue)-i))
			break
		}

		status, msg := database.StatusProcessed, ""
		if err != nil {
			msg = itemError(item, err)
			status = database.StatusFailed
			result.Errors = append(result.Errors, msg)
		}

		if serr := r.setStatus(ctx, item.GUID, status, out.ids, msg); serr != nil {
			result.Errors = append(result.Errors, itemError(item, eris.Wrap(serr, "set status")))
		}

		zap.L().Info("Item processed",
			zap.String("guid", item.GUID),
			zap.String("source", item.Source),
			zap.String("status", string(status)),
			zap.Int("extracted", out.extracted),
			zap.Int("added", len(out.ids)))
	}

	zap.L().Info("Run completed",
		zap.Int("items_checked", result.ItemsChecked),
		zap.Int("new_items", result.NewItemsFound),
		zap.Int("extracted", result.TransactionsExtracted),
		zap.Int("added", result.TransactionsAdded),
		zap.Int("errors", len(result.Errors)))

	return result
}

type itemOutcome struct {
	extracted int
	ids       []string
}

func (r *Runner) processItem(ctx context.Context, item feed.Item) (out itemOutcome, err error) {
	out.ids = []string{}
	defer func() {
		if p := recover(); p != nil {
			err = eris.Errorf("panic: %v", p)
		}
	}()

	if r.enricher != nil {
		r.enricher.Enrich(ctx, &item)
	}

	res, err := r.extractor.Extract(ctx, item)
	if err != nil {
		return out, eris.Wrap(err, "extract")
	}
	out.extracted = len(res.Candidates)

	for i, c := range res.Candidates {
		duplicate, err := r.dedup.IsDuplicate(ctx, c)
		if err != nil {
			return out, eris.Wrapf(err, "candidate %d: duplicate check", i)
		}
		if duplicate {
			zap.L().Debug("Duplicate candidate dropped",
				zap.String("guid", item.GUID),
				zap.String("kind", string(c.Kind())))
			continue
		}

		t, err := r.store.Commit(ctx, c, item.GUID)
		if err != nil {
			return out, eris.Wrapf(err, "candidate %d: commit", i)
		}
		out.ids = append(out.ids, t.ID)
	}

	return out, nil
}

// stalePending returns pending items admitted before staleBefore, skipping
// any admitted by this run. Whether another run still holds one is decided
// by the claim.
func (r *Runner) stalePending(ctx context.Context, staleBefore time.Time, novel []feed.Item) ([]feed.Item, error) {
	stored, err := r.pending.ListItems(ctx, database.ItemFilter{
		Status:        database.StatusPending,
		CreatedBefore: staleBefore,
		Limit:         r.recoveryLimit,
	})
	if err != nil {
		return nil, eris.Wrap(err, "list pending items")
	}

	admitted := make(map[string]bool, len(novel))
	for _, it := range novel {
		admitted[it.GUID] = true
	}

	out := make([]feed.Item, 0, len(stored))
	for _, s := range stored {
		if admitted[s.GUID] {
			continue
		}
		out = append(out, s.FeedItem())
	}
	if len(out) > 0 {
		zap.L().Info("Recovering pending items", zap.Int("count", len(out)))
	}
	return out, nil
}

func (r *Runner) fetch(ctx context.Context) (items []feed.Item, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = eris.Errorf("panic: %v", p)
		}
	}()
	return r.fetcher.FetchAll(ctx)
}

func (r *Runner) admit(ctx context.Context, items []feed.Item) (novel []feed.Item, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = eris.Errorf("panic: %v", p)
		}
	}()
	return r.gate.AdmitNew(ctx, items)
}

func (r *Runner) setStatus(ctx context.Context, guid string, status database.ItemStatus, ids []string, msg string) error {
	backoff := r.statusBackoff
	var err error
	for attempt := 1; attempt <= r.statusAttempts; attempt++ {
		if err = r.store.SetItemStatus(ctx, guid, status, ids, msg); err == nil {
			return nil
		}
		if attempt == r.statusAttempts {
			break
		}

		zap.L().Warn("Status write failed, retrying",
			zap.String("guid", guid),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", backoff),
			zap.Error(err))

		select {
		case <-ctx.Done():
			return err
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return err
}

func itemError(item feed.Item, err error) string {
	return fmt.Sprintf("item %s (%q): %v", item.GUID, item.Title, err)
}
