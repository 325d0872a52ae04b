package oracle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"bankroll-tracker/internal/model"
	"bankroll-tracker/internal/pkg/metrics"
)

const (
	opRecommend = "recommend"
	opAudit     = "audit"
)

var _ RecommendationSource = (*Adapter)(nil)

// Adapter turns a fallible Client into a RecommendationSource.
type Adapter struct {
	client   Client
	timeout  time.Duration
	metrics  *metrics.Metrics
	validate *validator.Validate
}

// NewAdapter wraps client. A nil client disables the oracle: every call
// returns an empty slice without contacting anything. A non-positive timeout
// leaves the caller's deadline as the only limit.
func NewAdapter(client Client, timeout time.Duration, m *metrics.Metrics) *Adapter {
	return &Adapter{
		client:   client,
		timeout:  timeout,
		metrics:  m,
		validate: newValidator(),
	}
}

// Enabled reports whether a backend is configured.
func (a *Adapter) Enabled() bool {
	return a.client != nil
}

// FetchRecommendations asks the oracle for bet suggestions.
func (a *Adapter) FetchRecommendations(ctx context.Context, bankroll decimal.Decimal) []model.Recommendation {
	if a.client == nil {
		return []model.Recommendation{}
	}

	var recs []model.Recommendation
	err := a.call(ctx, opRecommend, func(ctx context.Context) error {
		var err error
		recs, err = a.client.Recommend(ctx, bankroll)
		return err
	})
	if err != nil {
		return []model.Recommendation{}
	}

	kept, dropped := validRecommendations(a.validate, recs)
	if dropped > 0 {
		log.Warn().Int("dropped", dropped).Int("kept", len(kept)).Msg("Discarded invalid recommendations")
	}
	return kept
}

// AuditPendingBets asks the oracle to settle bets. An empty input returns
// immediately.
func (a *Adapter) AuditPendingBets(ctx context.Context, bets []model.Bet) []model.AuditResult {
	if a.client == nil || len(bets) == 0 {
		return []model.AuditResult{}
	}

	var results []model.AuditResult
	err := a.call(ctx, opAudit, func(ctx context.Context) error {
		var err error
		results, err = a.client.Audit(ctx, bets)
		return err
	})
	if err != nil {
		return []model.AuditResult{}
	}

	kept, dropped := validAuditResults(a.validate, results)
	if dropped > 0 {
		log.Warn().Int("dropped", dropped).Int("kept", len(kept)).Msg("Discarded invalid audit entries")
	}
	return kept
}

// call runs fn under the adapter timeout, converting panics to errors and
// recording the outcome.
func (a *Adapter) call(ctx context.Context, op string, fn func(ctx context.Context) error) (err error) {
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	start := time.Now()
	outcome := "ok"
	defer func() {
		if r := recover(); r != nil {
			outcome = "panic"
			err = fmt.Errorf("%w: panic: %v", ErrUnavailable, r)
		}
		elapsed := time.Since(start)
		a.metrics.OracleCall(op, outcome, elapsed)
		if err != nil {
			log.Error().Err(err).Str("op", op).Str("outcome", outcome).Dur("elapsed", elapsed).Msg("Oracle call failed")
			return
		}
		log.Debug().Str("op", op).Dur("elapsed", elapsed).Msg("Oracle call completed")
	}()

	err = fn(ctx)
	switch {
	case err == nil:
	case errors.Is(err, context.DeadlineExceeded):
		outcome = "timeout"
	default:
		outcome = "error"
	}
	return err
}
