package service

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/mathieu-neron/toptabled/internal/logging"
)

// DefaultResyncInterval is the period of the full catalog re-read.
const DefaultResyncInterval = time.Minute

// ResyncWorker re-reads the whole catalog on an interval. It settles the
// counters after writes that reached the ledger out of order.
type ResyncWorker struct {
	catalog  *CatalogService
	interval time.Duration
	clock    clockwork.Clock
	stopCh   chan struct{}
}

// NewResyncWorker builds the worker. A nil clock means the wall clock.
func NewResyncWorker(catalog *CatalogService, interval time.Duration, clock clockwork.Clock) *ResyncWorker {
	if interval <= 0 {
		interval = DefaultResyncInterval
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &ResyncWorker{
		catalog:  catalog,
		interval: interval,
		clock:    clock,
		stopCh:   make(chan struct{}),
	}
}

// Start runs one resync immediately, then every interval.
func (w *ResyncWorker) Start(ctx context.Context) {
	log := logging.Component("resync-worker")
	log.Info().Dur("interval", w.interval).Msg("starting")

	w.tick(ctx)

	ticker := w.clock.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.Chan():
			w.tick(ctx)
		case <-ctx.Done():
			log.Info().Msg("stopping (context cancelled)")
			return
		case <-w.stopCh:
			log.Info().Msg("stopping (stop signal)")
			return
		}
	}
}

// Stop signals the worker to stop.
func (w *ResyncWorker) Stop() {
	close(w.stopCh)
}

func (w *ResyncWorker) tick(ctx context.Context) {
	start := w.clock.Now()
	log := logging.Component("resync-worker")

	if err := w.catalog.Refresh(ctx); err != nil {
		log.Warn().Err(err).Msg("resync failed, keeping cached catalog")
		return
	}
	log.Debug().
		Int("items", w.catalog.Store().Len()).
		Dur("elapsed", w.clock.Since(start)).
		Msg("resync complete")
}
