package service

import (
	"context"
	"time"

	"github.com/sony/gobreaker"

	"github.com/mathieu-neron/toptabled/internal/logging"
	"github.com/mathieu-neron/toptabled/internal/metrics"
	"github.com/mathieu-neron/toptabled/internal/model"
)

// BreakerLedger guards ledger writes with a circuit breaker. After sustained
// write failures further writes fail fast with gobreaker.ErrOpenState until
// the breaker half-opens. Reads pass straight through: a stale catalog is
// preferred over none.
type BreakerLedger struct {
	Ledger
	cb *gobreaker.CircuitBreaker
}

// NewBreakerLedger wraps inner with the default breaker settings: trip when at
// least 5 writes in a 60s window failed 60% of the time, probe again after 10s.
func NewBreakerLedger(inner Ledger) *BreakerLedger {
	return NewBreakerLedgerWithSettings(inner, gobreaker.Settings{
		Name:        "ledger-writes",
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.Requests >= 5 && float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
	})
}

func NewBreakerLedgerWithSettings(inner Ledger, st gobreaker.Settings) *BreakerLedger {
	st.OnStateChange = func(name string, from, to gobreaker.State) {
		logging.Logger.Warn().
			Str("breaker", name).
			Str("from", from.String()).
			Str("to", to.String()).
			Msg("circuit breaker state change")
		metrics.LedgerBreakerState.Set(float64(to))
	}
	return &BreakerLedger{Ledger: inner, cb: gobreaker.NewCircuitBreaker(st)}
}

// State returns the breaker's current state.
func (l *BreakerLedger) State() gobreaker.State {
	return l.cb.State()
}

func (l *BreakerLedger) UpsertVote(ctx context.Context, userID, itemID string, dir model.Direction) error {
	_, err := l.cb.Execute(func() (interface{}, error) {
		return nil, l.Ledger.UpsertVote(ctx, userID, itemID, dir)
	})
	return err
}

func (l *BreakerLedger) DeleteVote(ctx context.Context, userID, itemID string) error {
	_, err := l.cb.Execute(func() (interface{}, error) {
		return nil, l.Ledger.DeleteVote(ctx, userID, itemID)
	})
	return err
}

func (l *BreakerLedger) InsertItem(ctx context.Context, it model.Item) (model.Item, error) {
	out, err := l.cb.Execute(func() (interface{}, error) {
		return l.Ledger.InsertItem(ctx, it)
	})
	if err != nil {
		return model.Item{}, err
	}
	return out.(model.Item), nil
}
