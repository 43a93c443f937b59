package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"

	"github.com/mathieu-neron/toptabled/internal/logging"
	"github.com/mathieu-neron/toptabled/internal/metrics"
	"github.com/mathieu-neron/toptabled/internal/model"
)

const (
	PageCacheTTL = 2 * time.Minute
	// Demo accounts keep their votes for a day after their last click.
	EphemeralVotesTTL = 24 * time.Hour

	pageGenerationKey = "items:gen"
)

// CacheService provides a Redis cache-aside layer for listing pages and holds
// the vote snapshots of ephemeral identities.
type CacheService struct {
	rdb *redis.Client
}

// NewCacheService creates a new CacheService. If redisURL is empty or connection
// fails, it returns a CacheService with a nil client (cache operations become no-ops).
func NewCacheService(redisURL string) *CacheService {
	log := logging.Component("redis")

	if redisURL == "" {
		log.Info().Msg("no URL configured, caching disabled")
		return &CacheService{}
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		log.Warn().Err(err).Msg("invalid URL, caching disabled")
		return &CacheService{}
	}

	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Warn().Err(err).Msg("connection failed, caching disabled")
		_ = rdb.Close()
		return &CacheService{}
	}

	log.Info().Msg("connected, caching enabled")
	return &CacheService{rdb: rdb}
}

// NewCacheServiceWithClient wraps an existing client. A nil client disables caching.
func NewCacheServiceWithClient(rdb *redis.Client) *CacheService {
	return &CacheService{rdb: rdb}
}

// Client returns the underlying Redis client (for health checks). May be nil.
func (c *CacheService) Client() *redis.Client {
	if c == nil {
		return nil
	}
	return c.rdb
}

func (c *CacheService) enabled() bool {
	return c != nil && c.rdb != nil
}

// GetPage retrieves a cached listing page. Returns nil if not cached or cache is disabled.
func (c *CacheService) GetPage(ctx context.Context, key string) (*model.ItemPage, error) {
	if !c.enabled() {
		return nil, nil
	}
	gen, err := c.generation(ctx)
	if err != nil {
		return nil, err
	}

	data, err := c.rdb.Get(ctx, pageKey(gen, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		metrics.CacheMisses.Inc()
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var page model.ItemPage
	if err := json.Unmarshal(data, &page); err != nil {
		return nil, err
	}
	metrics.CacheHits.Inc()
	return &page, nil
}

// SetPage stores a listing page in cache.
func (c *CacheService) SetPage(ctx context.Context, key string, page *model.ItemPage) error {
	if !c.enabled() {
		return nil
	}
	gen, err := c.generation(ctx)
	if err != nil {
		return err
	}
	b, err := json.Marshal(page)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, pageKey(gen, key), b, PageCacheTTL).Err()
}

// InvalidatePages drops every cached listing page by moving to a new key
// generation. Old generations expire on their own.
func (c *CacheService) InvalidatePages(ctx context.Context) error {
	if !c.enabled() {
		return nil
	}
	return c.rdb.Incr(ctx, pageGenerationKey).Err()
}

// LoadEphemeralVotes returns the saved vote index of a demo identity, or an
// empty index when nothing was saved.
func (c *CacheService) LoadEphemeralVotes(ctx context.Context, userID string) (model.VoteIndex, error) {
	if !c.enabled() {
		return model.VoteIndex{}, nil
	}
	data, err := c.rdb.Get(ctx, ephemeralKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return model.VoteIndex{}, nil
	}
	if err != nil {
		return nil, err
	}

	var raw map[string]string
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	idx := make(model.VoteIndex, len(raw))
	for itemID, v := range raw {
		if d := model.Direction(v); d.Valid() {
			idx[itemID] = d
		}
	}
	return idx, nil
}

// SaveEphemeralVotes snapshots a demo identity's vote index. Saving an empty
// index deletes the snapshot.
func (c *CacheService) SaveEphemeralVotes(ctx context.Context, userID string, idx model.VoteIndex) error {
	if !c.enabled() {
		return nil
	}
	if len(idx) == 0 {
		return c.rdb.Del(ctx, ephemeralKey(userID)).Err()
	}
	b, err := json.Marshal(idx)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, ephemeralKey(userID), b, EphemeralVotesTTL).Err()
}

// Close shuts down the Redis connection.
func (c *CacheService) Close() error {
	if !c.enabled() {
		return nil
	}
	return c.rdb.Close()
}

func (c *CacheService) generation(ctx context.Context) (int64, error) {
	gen, err := c.rdb.Get(ctx, pageGenerationKey).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

func pageKey(gen int64, key string) string {
	return fmt.Sprintf("items:%d:%s", gen, key)
}

func ephemeralKey(userID string) string {
	return fmt.Sprintf("ephemeral_votes:%s", userID)
}
