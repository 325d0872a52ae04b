package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"bankroll-tracker/internal/config"
	"bankroll-tracker/internal/model"
	"bankroll-tracker/internal/pkg/metrics"
)

var _ Client = (*CachedClient)(nil)

// ConnectRedis opens and pings a Redis client.
func ConnectRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis %s: %w", cfg.Addr, err)
	}
	return rdb, nil
}

// CachedClient caches recommendations per bankroll amount. Audits always go
// to the wrapped client because results change as events finish.
type CachedClient struct {
	next    Client
	rdb     *redis.Client
	prefix  string
	ttl     time.Duration
	metrics *metrics.Metrics
}

// NewCachedClient wraps next with a Redis cache.
func NewCachedClient(next Client, rdb *redis.Client, prefix string, ttl time.Duration, m *metrics.Metrics) *CachedClient {
	return &CachedClient{next: next, rdb: rdb, prefix: prefix, ttl: ttl, metrics: m}
}

func (c *CachedClient) key(bankroll decimal.Decimal) string {
	return c.prefix + ":recs:" + bankroll.StringFixed(2)
}

// Recommend serves from cache when possible. Cache errors are logged and
// fall through to the wrapped client.
func (c *CachedClient) Recommend(ctx context.Context, bankroll decimal.Decimal) ([]model.Recommendation, error) {
	key := c.key(bankroll)

	recs, hit, err := c.get(ctx, key)
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Recommendation cache read failed")
	}
	if hit {
		c.metrics.OracleCall(opRecommend, "cached", 0)
		return recs, nil
	}

	recs, err = c.next.Recommend(ctx, bankroll)
	if err != nil {
		return nil, err
	}
	if len(recs) > 0 {
		if err := c.set(ctx, key, recs); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("Recommendation cache write failed")
		}
	}
	return recs, nil
}

func (c *CachedClient) Audit(ctx context.Context, bets []model.Bet) ([]model.AuditResult, error) {
	return c.next.Audit(ctx, bets)
}

func (c *CachedClient) get(ctx context.Context, key string) ([]model.Recommendation, bool, error) {
	b, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var recs []model.Recommendation
	if err := json.Unmarshal(b, &recs); err != nil {
		return nil, false, fmt.Errorf("decode cached recommendations: %w", err)
	}
	return recs, true, nil
}

func (c *CachedClient) set(ctx context.Context, key string, recs []model.Recommendation) error {
	b, err := json.Marshal(recs)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, key, b, c.ttl).Err()
}
