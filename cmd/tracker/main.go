// Package main is the entry point for the bankroll tracker bot.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"bankroll-tracker/internal/bot"
	"bankroll-tracker/internal/config"
	"bankroll-tracker/internal/jobs"
	"bankroll-tracker/internal/ledger"
	"bankroll-tracker/internal/oracle"
	"bankroll-tracker/internal/pkg/lock"
	"bankroll-tracker/internal/pkg/metrics"
	"bankroll-tracker/internal/service"
	"bankroll-tracker/internal/store"
)

// auditRunLimit bounds one scheduled audit over all accounts.
const auditRunLimit = 30 * time.Minute

func main() {
	configDir := flag.String("config", "config", "directory containing config.yaml")
	flag.Parse()

	// Configure zerolog
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	// .env is optional; real environment variables win
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Msg("Failed to read .env file")
	}

	// Load configuration
	cfg, err := config.Load(*configDir)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	setupLogging(cfg.Log)
	log.Info().Str("store", cfg.Store.Driver).Msg("Configuration loaded successfully")

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := metrics.New()

	// Initialize account store
	st, err := store.Open(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open account store")
	}
	defer st.Close()

	// Initialize ledger
	strategies, err := ledger.StrategiesFromConfig(cfg.Strategies)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid strategy table")
	}
	l, err := ledger.New(strategies)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create ledger")
	}

	// Initialize oracle
	oracleClient, closeOracle := newOracleClient(ctx, cfg, m)
	adapter := oracle.NewAdapter(oracleClient, cfg.Oracle.Timeout, m)
	if !adapter.Enabled() {
		log.Warn().Msg("ORACLE_API_KEY not set, recommendations and audits are disabled")
	}

	// Initialize services
	accountService := service.NewAccountService(st, service.AccountOptionsFromConfig(cfg.Auth))
	trackerService := service.NewTrackerService(st, l, adapter, lock.NewUserLock(), cfg.Bot.LockTimeout, m)

	// Metrics and health endpoint
	var metricsServer *http.Server
	if cfg.Metrics.Port != "" {
		metricsServer = metrics.StartServer(cfg.Metrics.Port, m, st.Ping)
	}

	// Scheduled audits
	scheduler := jobs.NewScheduler(ctx, trackerService, auditRunLimit)
	if err := scheduler.RegisterAudit(cfg.Schedule.AuditCron); err != nil {
		log.Fatal().Err(err).Msg("Failed to schedule audit")
	}

	// Initialize bot
	telegramBot, err := bot.New(&bot.Dependencies{
		Config:         cfg,
		AccountService: accountService,
		TrackerService: trackerService,
		Metrics:        m,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create bot")
	}

	// Setup graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	scheduler.Start()

	// Start bot in a goroutine
	go func() {
		log.Info().Msg("Bot is starting...")
		telegramBot.Start()
	}()

	// Wait for shutdown signal
	sig := <-sigChan
	log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")

	// Graceful shutdown
	telegramBot.Stop()
	cancel()
	scheduler.Stop()
	closeOracle()

	if metricsServer != nil {
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("Metrics server shutdown failed")
		}
	}
	log.Info().Msg("Bot stopped gracefully")
}

func setupLogging(cfg config.LogConfig) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if !cfg.Pretty {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
}
