package main

import (
	"context"

	"github.com/rs/zerolog/log"

	"bankroll-tracker/internal/config"
	"bankroll-tracker/internal/oracle"
	"bankroll-tracker/internal/pkg/metrics"
)

// newOracleClient builds the Gemini client, wrapped in the Redis cache when
// one is configured and reachable. It returns a nil client without an API
// key. The returned close function releases the Redis connection and is
// never nil.
func newOracleClient(ctx context.Context, cfg *config.Config, m *metrics.Metrics) (oracle.Client, func()) {
	noop := func() {}
	if !cfg.Oracle.Enabled() {
		return nil, noop
	}
	var client oracle.Client = oracle.NewGeminiClient(cfg.Oracle)

	if cfg.Redis.Addr == "" {
		return client, noop
	}
	rdb, err := oracle.ConnectRedis(ctx, cfg.Redis)
	if err != nil {
		log.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("Redis unavailable, recommendations are not cached")
		return client, noop
	}
	log.Info().Str("addr", cfg.Redis.Addr).Dur("ttl", cfg.Redis.RecommendationTTL).Msg("Caching recommendations in Redis")

	closeRedis := func() {
		if err := rdb.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close Redis client")
		}
	}
	return oracle.NewCachedClient(client, rdb, cfg.Redis.KeyPrefix, cfg.Redis.RecommendationTTL, m), closeRedis
}
