// Package config provides configuration management using viper.
// It supports loading from YAML files and environment variable overrides.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config holds all application configuration.
type Config struct {
	Bot        BotConfig          `mapstructure:"bot"`
	Store      StoreConfig        `mapstructure:"store"`
	Database   DatabaseConfig     `mapstructure:"database"`
	Redis      RedisConfig        `mapstructure:"redis"`
	Oracle     OracleConfig       `mapstructure:"oracle"`
	Strategies map[string]float64 `mapstructure:"strategies"`
	Auth       AuthConfig         `mapstructure:"auth"`
	Schedule   ScheduleConfig     `mapstructure:"schedule"`
	Metrics    MetricsConfig      `mapstructure:"metrics"`
	Log        LogConfig          `mapstructure:"log"`
	Whitelist  WhitelistConfig    `mapstructure:"whitelist"`
}

// BotConfig holds Telegram bot configuration.
type BotConfig struct {
	Token       string        `mapstructure:"token"`
	LockTimeout time.Duration `mapstructure:"lock_timeout"`
	HistorySize int           `mapstructure:"history_size"`
}

// StoreConfig selects the account store driver.
type StoreConfig struct {
	Driver     string `mapstructure:"driver"`
	SQLitePath string `mapstructure:"sqlite_path"`
}

// DatabaseConfig holds PostgreSQL connection configuration.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	PoolSize        int           `mapstructure:"pool_size"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
}

// RedisConfig holds the recommendation cache configuration.
// An empty address disables caching.
type RedisConfig struct {
	Addr              string        `mapstructure:"addr"`
	Password          string        `mapstructure:"password"`
	DB                int           `mapstructure:"db"`
	KeyPrefix         string        `mapstructure:"key_prefix"`
	RecommendationTTL time.Duration `mapstructure:"recommendation_ttl"`
}

// OracleConfig holds the generative-search API configuration.
// An empty API key disables the oracle.
type OracleConfig struct {
	APIKey          string        `mapstructure:"api_key"`
	BaseURL         string        `mapstructure:"base_url"`
	Model           string        `mapstructure:"model"`
	Timeout         time.Duration `mapstructure:"timeout"`
	Recommendations int           `mapstructure:"recommendations"`
}

// AuthConfig holds registration rules.
type AuthConfig struct {
	MinPasswordLength int     `mapstructure:"min_password_length"`
	MinBankroll       float64 `mapstructure:"min_bankroll"`
	DefaultUsername   string  `mapstructure:"default_username"`
}

// ScheduleConfig holds cron expressions (with seconds). Empty disables a job.
type ScheduleConfig struct {
	AuditCron string `mapstructure:"audit_cron"`
}

// MetricsConfig holds the Prometheus endpoint configuration.
// An empty port disables the endpoint.
type MetricsConfig struct {
	Port string `mapstructure:"port"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

// WhitelistConfig restricts the bot to specific Telegram users.
type WhitelistConfig struct {
	Users []int64 `mapstructure:"users"`
}

// DSN returns the PostgreSQL connection string.
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name,
	)
}

// Enabled reports whether the oracle has credentials.
func (o *OracleConfig) Enabled() bool {
	return strings.TrimSpace(o.APIKey) != ""
}

// Load reads configuration from file and environment variables.
// It looks for config.yaml in the config directory.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	// Environment variables use underscore separator and uppercase,
	// e.g. BOT_TOKEN, ORACLE_API_KEY, STORE_DRIVER
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Config file is optional - env vars can provide all config
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks values that have no sensible fallback.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case DriverMemory, DriverSQLite, DriverPostgres:
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
	if c.Store.Driver == DriverSQLite && c.Store.SQLitePath == "" {
		return fmt.Errorf("store.sqlite_path is required for the sqlite driver")
	}
	if len(c.Strategies) == 0 {
		return fmt.Errorf("at least one strategy must be configured")
	}
	if c.Auth.MinPasswordLength < 1 {
		return fmt.Errorf("auth.min_password_length must be positive")
	}
	return nil
}

// setDefaults sets default configuration values.
// Keys without a natural default are still registered so that
// AutomaticEnv picks them up during Unmarshal.
func setDefaults(v *viper.Viper) {
	v.SetDefault("bot.token", "")
	v.SetDefault("bot.lock_timeout", "5s")
	v.SetDefault("bot.history_size", 10)

	v.SetDefault("store.driver", DriverSQLite)
	v.SetDefault("store.sqlite_path", "bankroll.db")

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "bankroll")
	v.SetDefault("database.password", "")
	v.SetDefault("database.name", "bankroll")
	v.SetDefault("database.pool_size", 10)
	v.SetDefault("database.connect_timeout", "10s")
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.max_conn_idle_time", "30m")

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.key_prefix", "bankroll")
	v.SetDefault("redis.recommendation_ttl", "30m")

	v.SetDefault("oracle.api_key", "")
	v.SetDefault("oracle.base_url", "https://generativelanguage.googleapis.com")
	v.SetDefault("oracle.model", "gemini-2.5-flash")
	v.SetDefault("oracle.timeout", "60s")
	v.SetDefault("oracle.recommendations", 5)

	v.SetDefault("strategies", map[string]float64{
		"conservative": 0.01,
		"moderate":     0.02,
		"risky":        0.03,
	})

	v.SetDefault("auth.min_password_length", 6)
	v.SetDefault("auth.min_bankroll", 1)
	v.SetDefault("auth.default_username", "Investor")

	v.SetDefault("schedule.audit_cron", "0 0 */6 * * *")

	v.SetDefault("metrics.port", "9100")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", true)

	v.SetDefault("whitelist.users", []int64{})
}

// IsUserAllowed checks if a Telegram user ID is in the whitelist.
func (c *Config) IsUserAllowed(userID int64) bool {
	// Empty whitelist means all users are allowed
	if len(c.Whitelist.Users) == 0 {
		return true
	}
	for _, id := range c.Whitelist.Users {
		if id == userID {
			return true
		}
	}
	return false
}
