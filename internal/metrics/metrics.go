package metrics

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// VotesTotal counts successful votes by direction and action (voted/removed)
	// and identity class.
	VotesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "toptabled_votes_total",
			Help: "Total votes applied, by direction, action and identity class.",
		},
		[]string{"direction", "action", "class"},
	)

	VoteRollbacks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "toptabled_vote_rollbacks_total",
			Help: "Optimistic vote mutations discarded after a failed ledger write.",
		},
	)

	RefreshFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "toptabled_refresh_failures_total",
			Help: "Failed background refreshes from the ledger, by target.",
		},
		[]string{"target"},
	)

	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "toptabled_api_request_duration_seconds",
			Help:    "HTTP request duration in seconds, by endpoint and method.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint", "method", "status"},
	)

	RequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "toptabled_requests_in_flight",
			Help: "Number of HTTP requests currently being served.",
		},
	)

	CacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "toptabled_cache_hits_total",
			Help: "Total Redis cache hits.",
		},
	)

	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "toptabled_cache_misses_total",
			Help: "Total Redis cache misses.",
		},
	)

	CatalogSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "toptabled_catalog_items",
			Help: "Number of items held in the local catalog cache.",
		},
	)

	LedgerBreakerState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "toptabled_ledger_breaker_state",
			Help: "Ledger write circuit breaker state (0=closed, 1=half-open, 2=open).",
		},
	)
)

// RegisterPoolGauges exposes live pgxpool statistics. Call once at startup.
func RegisterPoolGauges(pool *pgxpool.Pool) {
	if pool == nil {
		return
	}
	prometheus.MustRegister(
		prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Name: "toptabled_db_connection_pool_active",
				Help: "Number of active database connections.",
			},
			func() float64 { return float64(pool.Stat().AcquiredConns()) },
		),
		prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Name: "toptabled_db_connection_pool_idle",
				Help: "Number of idle database connections.",
			},
			func() float64 { return float64(pool.Stat().IdleConns()) },
		),
	)
}
