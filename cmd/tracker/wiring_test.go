package main

import (
	"context"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"

	"bankroll-tracker/internal/config"
	"bankroll-tracker/internal/oracle"
)

func TestNewOracleClient(t *testing.T) {
	ctx := context.Background()

	cfg := &config.Config{}
	client, closeFn := newOracleClient(ctx, cfg, nil)
	assert.Nil(t, client, "no api key disables the oracle")
	assert.NotPanics(t, closeFn)

	cfg.Oracle = config.OracleConfig{APIKey: "k", Model: "m", BaseURL: "http://localhost"}
	client, closeFn = newOracleClient(ctx, cfg, nil)
	assert.IsType(t, &oracle.GeminiClient{}, client)
	assert.NotPanics(t, closeFn)

	cfg.Redis = config.RedisConfig{Addr: "127.0.0.1:1", KeyPrefix: "t", RecommendationTTL: time.Minute}
	client, closeFn = newOracleClient(ctx, cfg, nil)
	assert.IsType(t, &oracle.GeminiClient{}, client, "unreachable redis falls back to the plain client")
	assert.NotPanics(t, closeFn)
}

func TestNewOracleClient_ClosesRedis(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	if exec.Command("docker", "info").Run() != nil {
		t.Skip("Docker is not available, skipping integration test")
	}

	ctx := context.Background()
	container, err := tcredis.Run(ctx, "redis:7-alpine")
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	uri, err := container.ConnectionString(ctx)
	require.NoError(t, err)
	opts, err := redis.ParseURL(uri)
	require.NoError(t, err)

	observer := redis.NewClient(opts)
	t.Cleanup(func() { _ = observer.Close() })
	clients := func() int {
		list, err := observer.ClientList(ctx).Result()
		if err != nil {
			return -1
		}
		return len(strings.Split(strings.TrimSpace(list), "\n"))
	}

	cfg := &config.Config{
		Oracle: config.OracleConfig{APIKey: "k", Model: "m", BaseURL: "http://localhost"},
		Redis:  config.RedisConfig{Addr: opts.Addr, KeyPrefix: "t", RecommendationTTL: time.Minute},
	}
	client, closeFn := newOracleClient(ctx, cfg, nil)
	assert.IsType(t, &oracle.CachedClient{}, client)
	assert.Equal(t, 2, clients())

	closeFn()
	assert.Eventually(t, func() bool { return clients() == 1 }, 5*time.Second, 50*time.Millisecond)
}

func TestSetupLogging(t *testing.T) {
	prev := zerolog.GlobalLevel()
	t.Cleanup(func() { zerolog.SetGlobalLevel(prev) })

	setupLogging(config.LogConfig{Level: "bogus", Pretty: true})
	assert.Equal(t, "info", zerolog.GlobalLevel().String())

	setupLogging(config.LogConfig{Level: "debug", Pretty: true})
	assert.Equal(t, "debug", zerolog.GlobalLevel().String())
}
