package service

import (
	"context"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/mathieu-neron/toptabled/internal/logging"
)

// DefaultNotifyBatch is how long item ids reported by the ledger are collected
// before their aggregates are re-read.
const DefaultNotifyBatch = 2 * time.Second

// RefreshWorker listens for PostgreSQL NOTIFY on the 'vote_changes' channel
// and re-reads the aggregates of the changed items in batches. Fifty votes on
// one item within a window cost one read.
type RefreshWorker struct {
	pool    *pgxpool.Pool
	catalog *CatalogService
	cache   *CacheService
	batch   time.Duration
	clock   clockwork.Clock

	mu      sync.Mutex
	pending map[string]struct{} // item IDs waiting for a refresh
}

// NewRefreshWorker builds the worker. A nil clock means the wall clock.
func NewRefreshWorker(pool *pgxpool.Pool, catalog *CatalogService, cache *CacheService, batch time.Duration, clock clockwork.Clock) *RefreshWorker {
	if batch <= 0 {
		batch = DefaultNotifyBatch
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &RefreshWorker{
		pool:    pool,
		catalog: catalog,
		cache:   cache,
		batch:   batch,
		clock:   clock,
		pending: make(map[string]struct{}),
	}
}

// Start listens for vote_changes notifications until ctx is cancelled,
// reconnecting after errors.
func (w *RefreshWorker) Start(ctx context.Context) {
	log := logging.Component("refresh-worker")
	log.Info().Dur("batch", w.batch).Msg("starting")

	for {
		if err := w.listenLoop(ctx, log); err != nil {
			if ctx.Err() != nil {
				log.Info().Msg("stopping (context cancelled)")
				return
			}
			log.Warn().Err(err).Msg("listen error, reconnecting in 5s")
			select {
			case <-w.clock.After(5 * time.Second):
			case <-ctx.Done():
				log.Info().Msg("stopping (context cancelled)")
				return
			}
		}
	}
}

// listenLoop holds a dedicated connection, LISTENs on vote_changes and
// queues the item id carried by each notification.
func (w *RefreshWorker) listenLoop(ctx context.Context, log zerolog.Logger) error {
	conn, err := w.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "LISTEN vote_changes"); err != nil {
		return err
	}
	log.Info().Msg("listening on vote_changes")

	flushCtx, flushCancel := context.WithCancel(ctx)
	defer flushCancel()
	go w.flushLoop(flushCtx)

	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			return err
		}
		w.Enqueue(n.Payload)
	}
}

// Enqueue marks an item for the next batch.
func (w *RefreshWorker) Enqueue(itemID string) {
	if itemID == "" {
		return
	}
	w.mu.Lock()
	w.pending[itemID] = struct{}{}
	w.mu.Unlock()
}

// flushLoop flushes every batch interval, and once more when ctx ends so
// queued ids are not lost on shutdown.
func (w *RefreshWorker) flushLoop(ctx context.Context) {
	ticker := w.clock.NewTicker(w.batch)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.Chan():
			w.Flush(ctx)
		case <-ctx.Done():
			w.Flush(context.Background())
			return
		}
	}
}

// Flush drains the pending set and re-reads those items into the store. It
// returns how many ids were refreshed.
func (w *RefreshWorker) Flush(ctx context.Context) int {
	w.mu.Lock()
	if len(w.pending) == 0 {
		w.mu.Unlock()
		return 0
	}
	batch := w.pending
	w.pending = make(map[string]struct{})
	w.mu.Unlock()

	ids := make([]string, 0, len(batch))
	for id := range batch {
		ids = append(ids, id)
	}

	log := logging.Component("refresh-worker")
	if err := w.catalog.RefreshItems(ctx, ids); err != nil {
		log.Warn().Err(err).Int("items", len(ids)).Msg("batch refresh failed")
		return 0
	}
	if err := w.cache.InvalidatePages(ctx); err != nil {
		log.Warn().Err(err).Msg("cache invalidate error")
	}
	log.Debug().Int("items", len(ids)).Msg("batch complete")
	return len(ids)
}
