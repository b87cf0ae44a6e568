package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/lysyi3m/tradewire/app/database"
	"github.com/lysyi3m/tradewire/app/extract"
	"github.com/lysyi3m/tradewire/app/feed"
	"github.com/lysyi3m/tradewire/app/transaction"
)

type fakeFetcher struct {
	items []feed.Item
	err   error
	panic bool
}

func (f *fakeFetcher) FetchAll(ctx context.Context) ([]feed.Item, error) {
	if f.panic {
		panic("parser exploded")
	}
	return f.items, f.err
}

// fakeExtractor returns per-GUID results; unknown GUIDs extract nothing.
type fakeExtractor struct {
	mu      sync.Mutex
	results map[string][]transaction.Candidate
	errs    map[string]error
	panics  map[string]bool
	calls   []string
}

func (e *fakeExtractor) Extract(ctx context.Context, item feed.Item) (extract.Result, error) {
	e.mu.Lock()
	e.calls = append(e.calls, item.GUID)
	e.mu.Unlock()

	if e.panics[item.GUID] {
		panic("nil map write")
	}
	if err := e.errs[item.GUID]; err != nil {
		return extract.Result{Candidates: []transaction.Candidate{}}, err
	}
	c := e.results[item.GUID]
	if c == nil {
		c = []transaction.Candidate{}
	}
	return extract.Result{Candidates: c, Reasoning: "test"}, nil
}

type fakeDedup struct {
	duplicate map[transaction.Kind]bool
	err       error
}

func (d *fakeDedup) IsDuplicate(ctx context.Context, c transaction.Candidate) (bool, error) {
	if d.err != nil {
		return false, d.err
	}
	return d.duplicate[c.Kind()], nil
}

type statusRecord struct {
	status database.ItemStatus
	ids    []string
	msg    string
}

// memStore is an in-memory Store with injectable failures.
type memStore struct {
	mu              sync.Mutex
	seen            map[string]bool
	statuses        map[string]statusRecord
	committed       []transaction.Transaction
	admitErr        error
	commitErr       error
	statusFailures  int // remaining SetItemStatus calls that fail
	statusCalls     int
	nextTransaction int
}

func newMemStore() *memStore {
	return &memStore{seen: map[string]bool{}, statuses: map[string]statusRecord{}}
}

func (s *memStore) AdmitNewItems(ctx context.Context, items []feed.Item) ([]feed.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.admitErr != nil {
		return nil, s.admitErr
	}
	out := []feed.Item{}
	for _, it := range items {
		if s.seen[it.GUID] {
			continue
		}
		s.seen[it.GUID] = true
		s.statuses[it.GUID] = statusRecord{status: database.StatusPending}
		out = append(out, it)
	}
	return out, nil
}

func (s *memStore) SetItemStatus(ctx context.Context, guid string, status database.ItemStatus, ids []string, msg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statusCalls++
	if s.statusFailures > 0 {
		s.statusFailures--
		return errors.New("database is locked")
	}
	s.statuses[guid] = statusRecord{status: status, ids: ids, msg: msg}
	return nil
}

func (s *memStore) Commit(ctx context.Context, c transaction.Candidate, sourceGUID string) (*transaction.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.commitErr != nil {
		return nil, s.commitErr
	}
	s.nextTransaction++
	t := transaction.Transaction{
		ID:         fmt.Sprintf("tx-%d", s.nextTransaction),
		Kind:       c.Kind(),
		Timestamp:  c.When(),
		TeamIDs:    c.TeamIDs(),
		SourceGUID: sourceGUID,
		CreatedAt:  time.Now(),
	}
	s.committed = append(s.committed, t)
	return &t, nil
}

func (s *memStore) status(guid string) statusRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statuses[guid]
}
