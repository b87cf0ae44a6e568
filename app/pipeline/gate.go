package pipeline

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/lysyi3m/tradewire/app/feed"
)

// Gate passes through only items whose GUID has never been stored.
type Gate struct {
	store Admitter
}

func NewGate(store Admitter) *Gate {
	return &Gate{store: store}
}

// AdmitNew returns the items not seen before, in input order, after
// recording them as pending. A GUID repeated within items is kept once.
func (g *Gate) AdmitNew(ctx context.Context, items []feed.Item) ([]feed.Item, error) {
	seen := make(map[string]struct{}, len(items))
	unique := make([]feed.Item, 0, len(items))
	for _, item := range items {
		if _, ok := seen[item.GUID]; ok {
			continue
		}
		seen[item.GUID] = struct{}{}
		unique = append(unique, item)
	}

	admitted, err := g.store.AdmitNewItems(ctx, unique)
	if err != nil {
		return nil, eris.Wrap(err, "gate: admit items")
	}
	if admitted == nil {
		admitted = []feed.Item{}
	}
	return admitted, nil
}
