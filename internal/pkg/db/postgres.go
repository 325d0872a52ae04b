// Package db manages the PostgreSQL connection pool used by the postgres
// account store.
package db

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"bankroll-tracker/internal/config"
)

const healthCheckPeriod = 30 * time.Second

// Pool wraps pgxpool.Pool.
type Pool struct {
	*pgxpool.Pool
}

// NewPool connects using the host/port/user fields of cfg.
func NewPool(ctx context.Context, cfg *config.DatabaseConfig) (*Pool, error) {
	return Connect(ctx, cfg.DSN(), cfg)
}

// Connect opens a pool for dsn, applying the sizing and lifetime settings
// from cfg. A nil cfg keeps pgx defaults.
func Connect(ctx context.Context, dsn string, cfg *config.DatabaseConfig) (*Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}
	if cfg != nil {
		applySettings(poolConfig, cfg)
	}
	poolConfig.HealthCheckPeriod = healthCheckPeriod

	log.Info().
		Str("target", redact(dsn)).
		Int32("max_conns", poolConfig.MaxConns).
		Msg("Connecting to PostgreSQL")

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info().Msg("Connected to PostgreSQL")
	return &Pool{Pool: pool}, nil
}

func applySettings(pc *pgxpool.Config, cfg *config.DatabaseConfig) {
	if cfg.PoolSize > 0 {
		pc.MaxConns = int32(cfg.PoolSize)
		pc.MinConns = max(int32(cfg.PoolSize/4), 1)
	}
	pc.ConnConfig.ConnectTimeout = orDefault(cfg.ConnectTimeout, 10*time.Second)
	pc.MaxConnLifetime = orDefault(cfg.MaxConnLifetime, time.Hour)
	pc.MaxConnIdleTime = orDefault(cfg.MaxConnIdleTime, 30*time.Minute)
}

func orDefault(d, fallback time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return fallback
}

// redact strips credentials from a connection URL for logging.
func redact(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil || u.Host == "" {
		return "postgres"
	}
	return u.Host + u.Path
}

// Close closes the pool.
func (p *Pool) Close() {
	if p.Pool != nil {
		p.Pool.Close()
		log.Info().Msg("PostgreSQL connection pool closed")
	}
}

// HealthCheck pings the database.
func (p *Pool) HealthCheck(ctx context.Context) error {
	return p.Pool.Ping(ctx)
}
