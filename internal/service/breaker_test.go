package service

import (
	"context"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mathieu-neron/toptabled/internal/model"
)

func TestBreakerLedger_OpensAfterFailures(t *testing.T) {
	inner := newFakeLedger(approved("x", 10, nil))
	inner.setFailWrites(true)
	l := NewBreakerLedgerWithSettings(inner, gobreaker.Settings{
		Name:    "test",
		Timeout: time.Minute,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= 2
		},
	})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		assert.ErrorIs(t, l.UpsertVote(ctx, "u", "x", model.DirectionUp), errLedgerDown)
	}
	require.Equal(t, gobreaker.StateOpen, l.State())

	err := l.DeleteVote(ctx, "u", "x")
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, 2, inner.writeCalls(), "open breaker must not reach the ledger")

	// reads are not guarded
	_, err = l.GetItem(ctx, "x")
	assert.NoError(t, err)
}

func TestBreakerLedger_OpenStateRollsBackVote(t *testing.T) {
	inner := newFakeLedger(approved("x", 10, nil))
	l := NewBreakerLedgerWithSettings(inner, gobreaker.Settings{
		Name:        "test",
		Timeout:     time.Minute,
		ReadyToTrip: func(c gobreaker.Counts) bool { return c.ConsecutiveFailures >= 1 },
	})
	inner.setFailWrites(true)
	require.Error(t, l.UpsertVote(context.Background(), "u", "x", model.DirectionUp))
	inner.setFailWrites(false)

	catalog := NewCatalogService(l, NewStore(), nil, 0)
	require.NoError(t, catalog.Refresh(context.Background()))
	rec := NewVoteReconciler(catalog, l, nil)

	_, err := rec.ApplyVote(context.Background(), persisted(), "x", model.DirectionUp)
	var wErr *RemoteWriteError
	require.ErrorAs(t, err, &wErr)
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)

	it, _ := catalog.Store().Item("x")
	assert.Equal(t, 10, it.VoteCount)
}
