package service

import (
	"sort"
	"sync"
	"time"

	"github.com/mathieu-neron/toptabled/internal/model"
)

// Store is the process-wide cache of the item catalog and of every known
// user's vote index. All mutation goes through its methods, one writer at a
// time.
//
// Next to the live view it keeps the confirmed view: the state as last read
// from the ledger. Discard resets the live view to it.
type Store struct {
	mu sync.RWMutex

	items     map[string]model.Item
	confirmed map[string]model.Item

	votes          map[string]model.VoteIndex
	confirmedVotes map[string]model.VoteIndex

	loadedAt time.Time // last full catalog read, zero until the first one
}

func NewStore() *Store {
	return &Store{
		items:          make(map[string]model.Item),
		confirmed:      make(map[string]model.Item),
		votes:          make(map[string]model.VoteIndex),
		confirmedVotes: make(map[string]model.VoteIndex),
	}
}

// Items returns a copy of all cached items ordered by vote count descending.
func (s *Store) Items() []model.Item {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Item, 0, len(s.items))
	for _, it := range s.items {
		out = append(out, it.Clone())
	}
	SortByVotes(out)
	return out
}

// Item returns a copy of the cached item.
func (s *Store) Item(id string) (model.Item, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	it, ok := s.items[id]
	if !ok {
		return model.Item{}, false
	}
	return it.Clone(), true
}

// Len returns the number of cached items.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// ReplaceItems swaps in a full catalog read from the ledger. Both the live
// and the confirmed view are replaced.
func (s *Store) ReplaceItems(items []model.Item) {
	live := make(map[string]model.Item, len(items))
	confirmed := make(map[string]model.Item, len(items))
	for _, it := range items {
		live[it.ID] = it.Clone()
		confirmed[it.ID] = it.Clone()
	}

	s.mu.Lock()
	s.items = live
	s.confirmed = confirmed
	s.loadedAt = time.Now()
	s.mu.Unlock()
}

// LoadedAt reports when the catalog was last read in full from the ledger.
func (s *Store) LoadedAt() (time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loadedAt, !s.loadedAt.IsZero()
}

// CountByStatus returns the number of cached items per moderation status.
func (s *Store) CountByStatus() map[model.Status]int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[model.Status]int, 3)
	for _, it := range s.items {
		out[it.Status]++
	}
	return out
}

// MergeItems overwrites the given items (live and confirmed) and leaves the
// rest of the catalog alone.
func (s *Store) MergeItems(items []model.Item) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, it := range items {
		s.items[it.ID] = it.Clone()
		s.confirmed[it.ID] = it.Clone()
	}
}

// AddItem inserts a newly submitted item.
func (s *Store) AddItem(it model.Item) {
	s.MergeItems([]model.Item{it})
}

// VoteIndex returns a copy of the user's vote index (empty when unknown).
func (s *Store) VoteIndex(userID string) model.VoteIndex {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx, ok := s.votes[userID]
	if !ok {
		return model.VoteIndex{}
	}
	return idx.Clone()
}

// ReplaceVotes installs a vote index read from its source of truth as both
// the live and the confirmed index for the user.
func (s *Store) ReplaceVotes(userID string, idx model.VoteIndex) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.votes[userID] = idx.Clone()
	s.confirmedVotes[userID] = idx.Clone()
}

// ForgetVotes drops everything cached for the user.
func (s *Store) ForgetVotes(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.votes, userID)
	delete(s.confirmedVotes, userID)
}

// Discard throws away every optimistic change: the catalog and the user's
// vote index go back to their confirmed state.
func (s *Store) Discard(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items = make(map[string]model.Item, len(s.confirmed))
	for id, it := range s.confirmed {
		s.items[id] = it.Clone()
	}

	if idx, ok := s.confirmedVotes[userID]; ok {
		s.votes[userID] = idx.Clone()
	} else {
		delete(s.votes, userID)
	}
}

// Mutate runs fn with exclusive access to the store. Reads and writes made
// through tx are atomic with respect to every other store operation.
func (s *Store) Mutate(fn func(tx *StoreTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(&StoreTx{s: s})
}

// StoreTx is the handle passed to Mutate callbacks. It must not escape the
// callback.
type StoreTx struct {
	s *Store
}

// Item returns the live copy of an item.
func (tx *StoreTx) Item(id string) (model.Item, bool) {
	it, ok := tx.s.items[id]
	if !ok {
		return model.Item{}, false
	}
	return it.Clone(), true
}

// Vote returns the user's live direction on the item.
func (tx *StoreTx) Vote(userID, itemID string) model.Direction {
	return tx.s.votes[userID][itemID]
}

// SetVote records the user's live direction on the item. DirectionNone
// removes the entry.
func (tx *StoreTx) SetVote(userID, itemID string, dir model.Direction) {
	idx, ok := tx.s.votes[userID]
	if !ok {
		idx = make(model.VoteIndex)
		tx.s.votes[userID] = idx
	}
	if dir == model.DirectionNone {
		delete(idx, itemID)
		return
	}
	idx[itemID] = dir
}

// ConfirmVote records the direction in the confirmed index as well. Used for
// identities whose in-memory index is the source of truth.
func (tx *StoreTx) ConfirmVote(userID, itemID string, dir model.Direction) {
	tx.SetVote(userID, itemID, dir)
	idx, ok := tx.s.confirmedVotes[userID]
	if !ok {
		idx = make(model.VoteIndex)
		tx.s.confirmedVotes[userID] = idx
	}
	if dir == model.DirectionNone {
		delete(idx, itemID)
		return
	}
	idx[itemID] = dir
}

// PatchCounters adds the deltas to the live item and returns the result.
func (tx *StoreTx) PatchCounters(itemID string, score, weekly int) (model.Item, bool) {
	it, ok := tx.s.items[itemID]
	if !ok {
		return model.Item{}, false
	}
	it.VoteCount += score
	it.WeeklyDelta += weekly
	tx.s.items[itemID] = it
	return it.Clone(), true
}

// SortByVotes orders items by vote count descending. Ties keep the older
// item first, then fall back to the id so the order is total.
func SortByVotes(items []model.Item) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if a.VoteCount != b.VoteCount {
			return a.VoteCount > b.VoteCount
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}

// SortByWeekly orders items by weekly delta descending, ties by vote count.
func SortByWeekly(items []model.Item) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if a.WeeklyDelta != b.WeeklyDelta {
			return a.WeeklyDelta > b.WeeklyDelta
		}
		if a.VoteCount != b.VoteCount {
			return a.VoteCount > b.VoteCount
		}
		return a.ID < b.ID
	})
}
