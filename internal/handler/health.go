package handler

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/mathieu-neron/toptabled/internal/model"
	"github.com/mathieu-neron/toptabled/internal/service"
)

// DefaultCatalogStaleAfter is how old the last full catalog read may get
// before readiness reports it stale.
const DefaultCatalogStaleAfter = 5 * time.Minute

type HealthHandler struct {
	pool       *pgxpool.Pool
	rdb        *redis.Client
	store      *service.Store
	staleAfter time.Duration
	startAt    time.Time
}

func NewHealthHandler(pool *pgxpool.Pool, rdb *redis.Client, store *service.Store, staleAfter time.Duration) *HealthHandler {
	if staleAfter <= 0 {
		staleAfter = DefaultCatalogStaleAfter
	}
	return &HealthHandler{
		pool:       pool,
		rdb:        rdb,
		store:      store,
		staleAfter: staleAfter,
		startAt:    time.Now(),
	}
}

// Live handles GET /health/live, the liveness probe.
func (h *HealthHandler) Live(c fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

// Ready handles GET /health/ready. The service is ready when the ledger
// answers and the catalog was read from it recently; Redis is optional.
func (h *HealthHandler) Ready(c fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.Context(), 3*time.Second)
	defer cancel()

	checks := fiber.Map{
		"database": checkDB(ctx, h.pool),
		"redis":    checkRedis(ctx, h.rdb),
		"catalog":  checkCatalog(h.store, time.Now(), h.staleAfter),
	}

	overall := "healthy"
	for _, check := range checks {
		switch check.(fiber.Map)["status"] {
		case "down", "stale":
			overall = "degraded"
		}
	}

	status := fiber.StatusOK
	if overall != "healthy" {
		status = fiber.StatusServiceUnavailable
	}
	return c.Status(status).JSON(fiber.Map{
		"status":         overall,
		"checks":         checks,
		"uptime_seconds": int(time.Since(h.startAt).Seconds()),
	})
}

// checkCatalog reports whether the store holds a catalog read from the ledger
// and how the cached items split by moderation status. A catalog that is
// empty but loaded is up.
func checkCatalog(store *service.Store, now time.Time, staleAfter time.Duration) fiber.Map {
	loadedAt, ok := store.LoadedAt()
	if !ok {
		return fiber.Map{"status": "down", "error": "catalog not loaded"}
	}

	counts := store.CountByStatus()
	age := now.Sub(loadedAt)
	status := "up"
	if age > staleAfter {
		status = "stale"
	}
	return fiber.Map{
		"status":      status,
		"age_seconds": int(age.Seconds()),
		"approved":    counts[model.StatusApproved],
		"pending":     counts[model.StatusPending],
		"rejected":    counts[model.StatusRejected],
	}
}

func checkDB(ctx context.Context, pool *pgxpool.Pool) fiber.Map {
	if pool == nil {
		return fiber.Map{"status": "down", "error": "not configured"}
	}
	start := time.Now()
	err := pool.Ping(ctx)
	latency := time.Since(start).Milliseconds()
	if err != nil {
		return fiber.Map{"status": "down", "latency_ms": latency, "error": "connection failed"}
	}
	return fiber.Map{"status": "up", "latency_ms": latency}
}

// checkRedis never fails readiness on its own: pages fall through to the
// ledger when the cache is gone.
func checkRedis(ctx context.Context, rdb *redis.Client) fiber.Map {
	if rdb == nil {
		return fiber.Map{"status": "disabled"}
	}
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start).Milliseconds()
	if err != nil {
		return fiber.Map{"status": "unavailable", "latency_ms": latency, "error": "connection failed"}
	}
	return fiber.Map{"status": "up", "latency_ms": latency}
}
