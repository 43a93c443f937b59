package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mathieu-neron/toptabled/internal/metrics"
	"github.com/mathieu-neron/toptabled/internal/model"
)

type reconcilerHarness struct {
	ledger  *fakeLedger
	catalog *CatalogService
	clock   *clockwork.FakeClock
	rec     *VoteReconciler
}

func newReconcilerHarness(t *testing.T, items ...model.Item) *reconcilerHarness {
	t.Helper()
	ledger := newFakeLedger(items...)
	catalog := NewCatalogService(ledger, NewStore(), nil, 0)
	require.NoError(t, catalog.Refresh(context.Background()))

	clock := clockwork.NewFakeClock()
	rec := NewVoteReconciler(catalog, ledger, nil, WithClock(clock))
	return &reconcilerHarness{ledger: ledger, catalog: catalog, clock: clock, rec: rec}
}

// settle fires every scheduled refresh and waits for them to finish.
func (h *reconcilerHarness) settle() {
	h.clock.Advance(DefaultRefreshDelay)
	h.rec.Wait()
}

func (h *reconcilerHarness) count(id string) int {
	it, _ := h.catalog.Store().Item(id)
	return it.VoteCount
}

func persisted() model.Identity {
	return model.Identity{ID: uuid.NewString(), Authenticated: true, Class: model.Persisted}
}

func TestApplyVote_UpDownDown(t *testing.T) {
	h := newReconcilerHarness(t, approved("x", 10, nil))
	ctx := context.Background()
	user := persisted()

	res, err := h.rec.ApplyVote(ctx, user, "x", model.DirectionUp)
	require.NoError(t, err)
	assert.Equal(t, model.ActionVoted, res.Action)
	assert.Equal(t, 11, res.VoteCount)
	assert.Equal(t, 11, h.count("x"))

	res, err = h.rec.ApplyVote(ctx, user, "x", model.DirectionDown)
	require.NoError(t, err)
	assert.Equal(t, 9, res.VoteCount)
	assert.Equal(t, model.DirectionDown, h.rec.VoteIndex(user)["x"])

	res, err = h.rec.ApplyVote(ctx, user, "x", model.DirectionDown)
	require.NoError(t, err)
	assert.Equal(t, model.ActionRemoved, res.Action)
	assert.Equal(t, 10, res.VoteCount)

	h.settle()

	assert.Equal(t, 10, h.count("x"))
	assert.Equal(t, 10, h.ledger.item("x").VoteCount)
	assert.Empty(t, h.rec.VoteIndex(user))
	assert.Equal(t, 2, h.ledger.upserts)
	assert.Equal(t, 1, h.ledger.deletes)
}

func TestApplyVote_RefreshIsDelayed(t *testing.T) {
	h := newReconcilerHarness(t, approved("x", 10, nil))
	user := persisted()

	_, err := h.rec.ApplyVote(context.Background(), user, "x", model.DirectionUp)
	require.NoError(t, err)

	// bypass the store: only a refresh can bring this value in
	h.ledger.mu.Lock()
	it := h.ledger.items["x"]
	it.VoteCount = 50
	h.ledger.items["x"] = it
	h.ledger.mu.Unlock()

	h.clock.Advance(DefaultRefreshDelay - time.Millisecond)
	assert.Equal(t, 11, h.count("x"))

	h.settle()
	assert.Equal(t, 50, h.count("x"))
}

func TestApplyVote_RollbackOnWriteFailure(t *testing.T) {
	h := newReconcilerHarness(t, approved("x", 10, nil))
	ctx := context.Background()
	user := persisted()

	_, err := h.rec.ApplyVote(ctx, user, "x", model.DirectionUp)
	require.NoError(t, err)
	h.settle()
	require.Equal(t, 11, h.count("x"))

	h.ledger.setFailWrites(true)
	rollbacks := testutil.ToFloat64(metrics.VoteRollbacks)
	_, err = h.rec.ApplyVote(ctx, user, "x", model.DirectionDown)

	var wErr *RemoteWriteError
	require.ErrorAs(t, err, &wErr)
	assert.ErrorIs(t, err, errLedgerDown)
	assert.Equal(t, 11, h.count("x"), "rollback restores the last refreshed count")
	assert.Equal(t, model.DirectionUp, h.rec.VoteIndex(user)["x"])
	assert.Equal(t, 11, h.ledger.item("x").VoteCount)
	assert.Equal(t, rollbacks+1, testutil.ToFloat64(metrics.VoteRollbacks))
}

func TestApplyVote_RejectedWithoutMutation(t *testing.T) {
	tests := []struct {
		name  string
		ident model.Identity
		item  string
		dir   model.Direction
		want  error
	}{
		{"anonymous", model.Anonymous, "x", model.DirectionUp, ErrNotAuthenticated},
		{"malformed id", model.Identity{ID: "not-a-uuid", Authenticated: true}, "x", model.DirectionUp, ErrInvalidIdentity},
		{"bad direction", persisted(), "x", model.Direction("sideways"), ErrInvalidDirection},
		{"unknown item", persisted(), "missing", model.DirectionUp, ErrItemNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newReconcilerHarness(t, approved("x", 10, nil))

			_, err := h.rec.ApplyVote(context.Background(), tt.ident, tt.item, tt.dir)
			assert.True(t, errors.Is(err, tt.want), "got %v, want %v", err, tt.want)
			assert.Equal(t, 10, h.count("x"))
			assert.Empty(t, h.rec.VoteIndex(tt.ident))
			assert.Zero(t, h.ledger.writeCalls())
		})
	}
}

func TestApplyVote_EphemeralNeverTouchesLedger(t *testing.T) {
	h := newReconcilerHarness(t, approved("x", 10, nil))
	ctx := context.Background()
	demo := NewClassifier([]string{"1"}).Identify("1", false)
	require.Equal(t, model.Ephemeral, demo.Class)

	res, err := h.rec.ApplyVote(ctx, demo, "x", model.DirectionUp)
	require.NoError(t, err)
	assert.Equal(t, 11, res.VoteCount)
	assert.Equal(t, model.DirectionUp, h.rec.VoteIndex(demo)["x"])

	res, err = h.rec.ApplyVote(ctx, demo, "x", model.DirectionUp)
	require.NoError(t, err)
	assert.Equal(t, model.ActionRemoved, res.Action)
	assert.Equal(t, 10, res.VoteCount)

	h.rec.Wait()
	assert.Zero(t, h.ledger.writeCalls())
	assert.Zero(t, h.ledger.listVotes)
	assert.Equal(t, 10, h.ledger.item("x").VoteCount)
}

func TestApplyVote_EphemeralSurvivesLedgerOutage(t *testing.T) {
	h := newReconcilerHarness(t, approved("x", 10, nil))
	h.ledger.setFailWrites(true)
	demo := model.Identity{ID: "2", Authenticated: true, Class: model.Ephemeral}

	_, err := h.rec.ApplyVote(context.Background(), demo, "x", model.DirectionDown)
	require.NoError(t, err)
	assert.Equal(t, 9, h.count("x"))
}

func TestVoteReconciler_LoadVotesAndForget(t *testing.T) {
	user := persisted()
	h := newReconcilerHarness(t, approved("x", 10, nil))
	h.ledger.votes[user.ID] = model.VoteIndex{"x": model.DirectionUp}

	require.NoError(t, h.rec.LoadVotes(context.Background(), user))
	assert.Equal(t, model.VoteIndex{"x": model.DirectionUp}, h.rec.VoteIndex(user))

	// a vote on the loaded index is evaluated against it
	res, err := h.rec.ApplyVote(context.Background(), user, "x", model.DirectionUp)
	require.NoError(t, err)
	assert.Equal(t, model.ActionRemoved, res.Action)
	h.settle()

	h.rec.Forget(user.ID)
	assert.Empty(t, h.rec.VoteIndex(user))
}

func TestVoteReconciler_SeedsIndexOnFirstVote(t *testing.T) {
	user := persisted()
	h := newReconcilerHarness(t, approved("x", 11, nil))
	h.ledger.votes[user.ID] = model.VoteIndex{"x": model.DirectionUp}

	// no LoadVotes: the first click must still see the existing upvote
	res, err := h.rec.ApplyVote(context.Background(), user, "x", model.DirectionDown)
	require.NoError(t, err)
	assert.Equal(t, 9, res.VoteCount)
	h.settle()
	assert.Equal(t, 9, h.ledger.item("x").VoteCount)
}

// gatedLedger holds every upsert until release is closed.
type gatedLedger struct {
	*fakeLedger
	entered chan struct{}
	release chan struct{}
}

func (l *gatedLedger) UpsertVote(ctx context.Context, userID, itemID string, dir model.Direction) error {
	l.entered <- struct{}{}
	<-l.release
	return l.fakeLedger.UpsertVote(ctx, userID, itemID, dir)
}

func TestApplyVote_ReclickWhileWriteInFlight(t *testing.T) {
	inner := newFakeLedger(approved("x", 10, nil))
	ledger := &gatedLedger{fakeLedger: inner, entered: make(chan struct{}, 1), release: make(chan struct{})}
	catalog := NewCatalogService(ledger, NewStore(), nil, 0)
	require.NoError(t, catalog.Refresh(context.Background()))
	clock := clockwork.NewFakeClock()
	rec := NewVoteReconciler(catalog, ledger, nil, WithClock(clock))
	ctx := context.Background()
	user := persisted()

	type outcome struct {
		res model.VoteResult
		err error
	}
	first := make(chan outcome, 1)
	go func() {
		res, err := rec.ApplyVote(ctx, user, "x", model.DirectionUp)
		first <- outcome{res, err}
	}()

	select {
	case <-ledger.entered:
	case <-time.After(time.Second):
		t.Fatal("first write never reached the ledger")
	}

	it, _ := catalog.Store().Item("x")
	assert.Equal(t, 11, it.VoteCount, "optimistic count is visible while the write is pending")
	assert.Equal(t, model.DirectionUp, rec.VoteIndex(user)["x"])

	// evaluated against the optimistic up, not the ledger's none
	res, err := rec.ApplyVote(ctx, user, "x", model.DirectionUp)
	require.NoError(t, err)
	assert.Equal(t, model.ActionRemoved, res.Action)
	assert.Equal(t, 10, res.VoteCount)
	assert.Empty(t, rec.VoteIndex(user))

	close(ledger.release)
	var got outcome
	select {
	case got = <-first:
	case <-time.After(time.Second):
		t.Fatal("first vote did not return")
	}
	require.NoError(t, got.err)
	assert.Equal(t, model.ActionVoted, got.res.Action)
	assert.Equal(t, 11, got.res.VoteCount)

	clock.Advance(DefaultRefreshDelay)
	rec.Wait()

	// writes landed in arrival order; the store converges to the ledger
	want, err := inner.ListVotes(ctx, user.ID)
	require.NoError(t, err)
	it, _ = catalog.Store().Item("x")
	assert.Equal(t, inner.item("x").VoteCount, it.VoteCount)
	assert.Equal(t, want, rec.VoteIndex(user))
}
