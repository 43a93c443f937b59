package service

import (
	"context"
	"errors"
	"sync"

	"github.com/jackc/pgx/v5"

	"github.com/mathieu-neron/toptabled/internal/model"
	"github.com/mathieu-neron/toptabled/internal/repository"
)

var errLedgerDown = errors.New("ledger unavailable")

// fakeLedger is an in-memory Ledger that maintains the aggregates the way the
// database trigger does.
type fakeLedger struct {
	mu    sync.Mutex
	items map[string]model.Item
	votes map[string]model.VoteIndex

	failWrites bool
	failReads  bool

	upserts, deletes, inserts, listVotes, listItems int
}

func newFakeLedger(items ...model.Item) *fakeLedger {
	l := &fakeLedger{
		items: make(map[string]model.Item),
		votes: make(map[string]model.VoteIndex),
	}
	for _, it := range items {
		l.items[it.ID] = it.Clone()
	}
	return l
}

func (l *fakeLedger) setFailWrites(v bool) {
	l.mu.Lock()
	l.failWrites = v
	l.mu.Unlock()
}

func (l *fakeLedger) item(id string) model.Item {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.items[id].Clone()
}

func (l *fakeLedger) writeCalls() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.upserts + l.deletes + l.inserts
}

func (l *fakeLedger) ListItems(_ context.Context, q repository.ItemQuery) ([]model.Item, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.listItems++
	if l.failReads {
		return nil, errLedgerDown
	}

	var out []model.Item
	for _, it := range l.items {
		if !q.AllStatuses && it.Status != model.StatusApproved {
			continue
		}
		if !q.Predicate.Matches(it) {
			continue
		}
		out = append(out, it.Clone())
	}
	SortByVotes(out)

	if q.Offset > 0 {
		if q.Offset >= len(out) {
			return []model.Item{}, nil
		}
		out = out[q.Offset:]
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (l *fakeLedger) GetItem(_ context.Context, id string) (*model.Item, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.failReads {
		return nil, errLedgerDown
	}
	it, ok := l.items[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	c := it.Clone()
	return &c, nil
}

func (l *fakeLedger) GetItems(_ context.Context, ids []string) ([]model.Item, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.failReads {
		return nil, errLedgerDown
	}
	var out []model.Item
	for _, id := range ids {
		if it, ok := l.items[id]; ok {
			out = append(out, it.Clone())
		}
	}
	return out, nil
}

func (l *fakeLedger) InsertItem(_ context.Context, it model.Item) (model.Item, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.inserts++
	if l.failWrites {
		return model.Item{}, errLedgerDown
	}
	if it.ID == "" {
		it.ID = "new-" + it.Name
	}
	l.items[it.ID] = it.Clone()
	return it.Clone(), nil
}

func (l *fakeLedger) ListVotes(_ context.Context, userID string) (model.VoteIndex, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.listVotes++
	if l.failReads {
		return nil, errLedgerDown
	}
	return l.votes[userID].Clone(), nil
}

func (l *fakeLedger) UpsertVote(_ context.Context, userID, itemID string, dir model.Direction) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.upserts++
	if l.failWrites {
		return errLedgerDown
	}
	idx := l.votesFor(userID)
	l.adjust(itemID, dir.Sign()-idx[itemID].Sign())
	idx[itemID] = dir
	return nil
}

func (l *fakeLedger) DeleteVote(_ context.Context, userID, itemID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.deletes++
	if l.failWrites {
		return errLedgerDown
	}
	idx := l.votesFor(userID)
	l.adjust(itemID, -idx[itemID].Sign())
	delete(idx, itemID)
	return nil
}

func (l *fakeLedger) votesFor(userID string) model.VoteIndex {
	idx, ok := l.votes[userID]
	if !ok {
		idx = make(model.VoteIndex)
		l.votes[userID] = idx
	}
	return idx
}

func (l *fakeLedger) adjust(itemID string, delta int) {
	it, ok := l.items[itemID]
	if !ok || delta == 0 {
		return
	}
	it.VoteCount += delta
	it.WeeklyDelta += sign(delta)
	l.items[itemID] = it
}

func approved(id string, votes int, facets map[model.Category]string) model.Item {
	return model.Item{ID: id, Name: id, VoteCount: votes, Status: model.StatusApproved, Facets: facets}
}
