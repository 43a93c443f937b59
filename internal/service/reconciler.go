package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"

	"github.com/mathieu-neron/toptabled/internal/logging"
	"github.com/mathieu-neron/toptabled/internal/metrics"
	"github.com/mathieu-neron/toptabled/internal/model"
)

const (
	// DefaultRefreshDelay is how long after a successful ledger write the
	// aggregates are re-read, giving the ledger trigger time to settle.
	DefaultRefreshDelay = 500 * time.Millisecond

	refreshTimeout  = 10 * time.Second
	rollbackTimeout = 10 * time.Second
)

// VoteReconciler owns the (user, item) → direction mapping. A vote is applied
// to the store first and written to the identity's backend second; a failed
// write discards the optimistic state and re-reads it from the ledger.
type VoteReconciler struct {
	catalog      *CatalogService
	store        *Store
	ledger       Ledger
	cache        *CacheService
	clock        clockwork.Clock
	refreshDelay time.Duration

	refreshGroup singleflight.Group
	pending      sync.WaitGroup

	mu       sync.Mutex
	backends map[string]VoteBackend
}

// ReconcilerOption customises a VoteReconciler.
type ReconcilerOption func(*VoteReconciler)

// WithClock replaces the wall clock used to schedule refreshes.
func WithClock(clock clockwork.Clock) ReconcilerOption {
	return func(r *VoteReconciler) { r.clock = clock }
}

// WithRefreshDelay sets the delay between a successful write and the refresh.
func WithRefreshDelay(d time.Duration) ReconcilerOption {
	return func(r *VoteReconciler) {
		if d > 0 {
			r.refreshDelay = d
		}
	}
}

func NewVoteReconciler(catalog *CatalogService, ledger Ledger, cache *CacheService, opts ...ReconcilerOption) *VoteReconciler {
	r := &VoteReconciler{
		catalog:      catalog,
		store:        catalog.Store(),
		ledger:       ledger,
		cache:        cache,
		clock:        clockwork.NewRealClock(),
		refreshDelay: DefaultRefreshDelay,
		backends:     make(map[string]VoteBackend),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// pendingVote is the first phase of a vote: the transition as applied to the
// store and the resulting item.
type pendingVote struct {
	userID string
	itemID string
	t      Transition
	item   model.Item
}

// ApplyVote casts, changes or revokes the identity's vote on itemID.
//
// The store is updated before the backend is written, so readers see the new
// state immediately. A second click that arrives while the first write is in
// flight is evaluated against the already-updated store. The call returns as
// soon as the write succeeds; the refresh from the ledger happens later.
func (r *VoteReconciler) ApplyVote(ctx context.Context, ident model.Identity, itemID string, dir model.Direction) (model.VoteResult, error) {
	if !ident.SignedIn() {
		return model.VoteResult{}, ErrNotAuthenticated
	}
	if !dir.Valid() {
		return model.VoteResult{}, ErrInvalidDirection
	}

	backend, err := r.ensureBackend(ctx, ident)
	if err != nil {
		return model.VoteResult{}, err
	}

	pv, err := r.applyLocal(ident.ID, itemID, dir)
	if err != nil {
		return model.VoteResult{}, err
	}

	if err := r.commitRemote(ctx, backend, pv); err != nil {
		r.rollbackOnFailure(ctx, backend, pv, err)
		return model.VoteResult{}, err
	}

	metrics.VotesTotal.WithLabelValues(string(dir), string(pv.t.Action()), backend.Class().String()).Inc()
	return model.VoteResult{
		Action:    pv.t.Action(),
		Direction: dir,
		VoteCount: pv.item.VoteCount,
	}, nil
}

// applyLocal computes the transition against the latest store snapshot and
// applies it in the same critical section.
func (r *VoteReconciler) applyLocal(userID, itemID string, dir model.Direction) (pendingVote, error) {
	var pv pendingVote
	err := r.store.Mutate(func(tx *StoreTx) error {
		if _, ok := tx.Item(itemID); !ok {
			return ErrItemNotFound
		}
		t := ComputeTransition(tx.Vote(userID, itemID), dir)
		it, _ := tx.PatchCounters(itemID, t.ScoreDelta, t.WeeklyDelta)
		tx.SetVote(userID, itemID, t.Next)
		pv = pendingVote{userID: userID, itemID: itemID, t: t, item: it}
		return nil
	})
	return pv, err
}

// commitRemote writes the transition to the backend. For ledger-backed
// identities it also invalidates cached pages and schedules the refresh.
func (r *VoteReconciler) commitRemote(ctx context.Context, backend VoteBackend, pv pendingVote) error {
	if err := backend.Commit(ctx, pv.itemID, pv.t); err != nil {
		var wErr *RemoteWriteError
		if !errors.As(err, &wErr) {
			err = &RemoteWriteError{Op: "commit vote", Err: err}
		}
		return err
	}

	if backend.Class() == model.Ephemeral {
		// the in-memory index is authoritative: confirm it right away
		_ = r.store.Mutate(func(tx *StoreTx) error {
			tx.ConfirmVote(pv.userID, pv.itemID, tx.Vote(pv.userID, pv.itemID))
			return nil
		})
		return nil
	}

	if err := r.cache.InvalidatePages(ctx); err != nil {
		logging.Logger.Warn().Err(err).Msg("cache: invalidate pages error")
	}
	r.scheduleRefresh(pv.userID, backend)
	return nil
}

// rollbackOnFailure discards every optimistic change (back to the last state
// read from the ledger) and then re-reads items and votes. Inverse deltas are
// never applied.
func (r *VoteReconciler) rollbackOnFailure(ctx context.Context, backend VoteBackend, pv pendingVote, cause error) {
	metrics.VoteRollbacks.Inc()
	logging.Logger.Warn().Err(cause).
		Str("user_id", pv.userID).
		Str("item_id", pv.itemID).
		Str("direction", string(pv.t.Requested)).
		Msg("vote write failed, rolling back")

	r.store.Discard(pv.userID)

	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), rollbackTimeout)
	defer cancel()
	r.refresh(rctx, pv.userID, backend)
}

// scheduleRefresh re-reads items and the user's votes after refreshDelay.
// Refreshes for the same user that are running at the same time collapse
// into one.
func (r *VoteReconciler) scheduleRefresh(userID string, backend VoteBackend) {
	r.pending.Add(1)
	r.clock.AfterFunc(r.refreshDelay, func() {
		defer r.pending.Done()
		ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
		defer cancel()
		_, _, _ = r.refreshGroup.Do(userID, func() (any, error) {
			r.refresh(ctx, userID, backend)
			return nil, nil
		})
	})
}

// refresh re-reads the catalog and the user's vote index. Failures leave the
// current cache in place.
func (r *VoteReconciler) refresh(ctx context.Context, userID string, backend VoteBackend) {
	if err := r.catalog.Refresh(ctx); err != nil {
		logging.Logger.Warn().Err(err).Msg("refresh: items")
	}

	idx, err := backend.LoadVotes(ctx)
	if err != nil {
		metrics.RefreshFailures.WithLabelValues("votes").Inc()
		logging.Logger.Warn().Err(err).Str("user_id", userID).Msg("refresh: votes")
		return
	}
	r.store.ReplaceVotes(userID, idx)
}

// Wait blocks until every scheduled refresh has run.
func (r *VoteReconciler) Wait() {
	r.pending.Wait()
}

// LoadVotes reads the identity's vote index from its backend into the store.
func (r *VoteReconciler) LoadVotes(ctx context.Context, ident model.Identity) error {
	if !ident.SignedIn() {
		return nil
	}
	backend, _, err := r.backendFor(ident)
	if err != nil {
		return err
	}
	idx, err := backend.LoadVotes(ctx)
	if err != nil {
		return err
	}
	r.store.ReplaceVotes(ident.ID, idx)
	return nil
}

// EnsureVotes loads the identity's vote index unless it is already cached.
func (r *VoteReconciler) EnsureVotes(ctx context.Context, ident model.Identity) error {
	if !ident.SignedIn() {
		return nil
	}
	_, err := r.ensureBackend(ctx, ident)
	return err
}

// ensureBackend returns the identity's backend. On first sight of the
// identity its index is seeded into the store, so the first transition is
// computed against what the backend already holds. A failed seed is logged
// and retried on the next call.
func (r *VoteReconciler) ensureBackend(ctx context.Context, ident model.Identity) (VoteBackend, error) {
	backend, created, err := r.backendFor(ident)
	if err != nil || !created {
		return backend, err
	}
	idx, err := backend.LoadVotes(ctx)
	if err != nil {
		logging.Logger.Warn().Err(err).Str("user_id", ident.ID).Msg("vote index load failed")
		r.mu.Lock()
		delete(r.backends, ident.ID)
		r.mu.Unlock()
		return backend, nil
	}
	r.store.ReplaceVotes(ident.ID, idx)
	return backend, nil
}

// VoteIndex returns the identity's current (possibly optimistic) vote index.
func (r *VoteReconciler) VoteIndex(ident model.Identity) model.VoteIndex {
	if !ident.SignedIn() {
		return model.VoteIndex{}
	}
	return r.store.VoteIndex(ident.ID)
}

// Forget drops the backend chosen for userID and its cached votes, e.g. on
// sign-out.
func (r *VoteReconciler) Forget(userID string) {
	r.mu.Lock()
	delete(r.backends, userID)
	r.mu.Unlock()
	r.store.ForgetVotes(userID)
}

// backendFor returns the identity's backend, creating it on first use, and
// reports whether it was just created. The class is decided by the identity
// provider, never by inspecting the id.
func (r *VoteReconciler) backendFor(ident model.Identity) (VoteBackend, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if b, ok := r.backends[ident.ID]; ok && b.Class() == ident.Class {
		return b, false, nil
	}

	var b VoteBackend
	switch ident.Class {
	case model.Ephemeral:
		b = NewInMemoryBackend(ident.ID, r.cache)
	default:
		rb, err := NewRemoteBackend(ident.ID, r.ledger)
		if err != nil {
			return nil, false, err
		}
		b = rb
	}
	r.backends[ident.ID] = b
	return b, true, nil
}
