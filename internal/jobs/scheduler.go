// Package jobs runs periodic background work on a cron schedule.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"bankroll-tracker/internal/service"
)

// Syncer audits every account's pending bets.
type Syncer interface {
	SyncAll(ctx context.Context) (service.SyncReport, error)
}

// Scheduler owns the cron instance. Overlapping runs of the same job are
// skipped and panics are recovered.
type Scheduler struct {
	cron     *cron.Cron
	syncer   Syncer
	ctx      context.Context
	runLimit time.Duration
}

// NewScheduler creates a Scheduler. Jobs receive ctx, so cancelling it
// aborts runs in progress. runLimit bounds a single run (0 means none).
func NewScheduler(ctx context.Context, syncer Syncer, runLimit time.Duration) *Scheduler {
	logger := cronLogger{}
	return &Scheduler{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithLogger(logger),
			cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
		),
		syncer:   syncer,
		ctx:      ctx,
		runLimit: runLimit,
	}
}

// RegisterAudit schedules the result audit. An empty spec disables it.
func (s *Scheduler) RegisterAudit(spec string) error {
	if spec == "" {
		log.Info().Msg("Audit job disabled")
		return nil
	}
	if _, err := s.cron.AddFunc(spec, s.auditTask); err != nil {
		return fmt.Errorf("register audit task: %w", err)
	}
	log.Info().Str("spec", spec).Msg("Audit job registered")
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.cron.Start()
	log.Info().Int("jobs", len(s.cron.Entries())).Msg("Scheduler started")
}

// Stop stops scheduling and waits for running jobs.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	log.Info().Msg("Scheduler stopped")
}

// RunAuditNow runs the audit synchronously.
func (s *Scheduler) RunAuditNow() {
	s.auditTask()
}

func (s *Scheduler) auditTask() {
	ctx := s.ctx
	if s.runLimit > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.runLimit)
		defer cancel()
	}

	log.Info().Msg("Running scheduled audit")
	report, err := s.syncer.SyncAll(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Scheduled audit failed")
		return
	}
	log.Info().
		Int("accounts", report.Accounts).
		Int("resolved", report.Resolved).
		Int("failed", report.Failed).
		Msg("Scheduled audit finished")
}

// cronLogger routes cron's own logging through zerolog.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...any) {
	log.Debug().Fields(keysAndValues).Msg("cron: " + msg)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...any) {
	log.Error().Err(err).Fields(keysAndValues).Msg("cron: " + msg)
}
