package service

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"bankroll-tracker/internal/ledger"
	"bankroll-tracker/internal/model"
	"bankroll-tracker/internal/oracle"
	"bankroll-tracker/internal/pkg/lock"
	"bankroll-tracker/internal/pkg/metrics"
	"bankroll-tracker/internal/store"
)

const defaultLockTimeout = 5 * time.Second

// Dashboard is the read model behind the balance view.
type Dashboard struct {
	User    *model.User
	Summary ledger.Summary
	Curve   []ledger.CurvePoint
}

// SyncReport summarises a SyncAll run.
type SyncReport struct {
	Accounts int // accounts with pending bets that were audited
	Resolved int
	Failed   int
}

// TrackerService applies ledger operations to stored accounts. Mutations on
// the same account are serialised; the snapshot is reloaded under the lock
// and saved whole.
type TrackerService struct {
	store       store.AccountStore
	ledger      *ledger.Ledger
	oracle      oracle.RecommendationSource
	locks       *lock.UserLock
	lockTimeout time.Duration
	metrics     *metrics.Metrics
}

// NewTrackerService creates a TrackerService.
func NewTrackerService(
	st store.AccountStore,
	l *ledger.Ledger,
	src oracle.RecommendationSource,
	locks *lock.UserLock,
	lockTimeout time.Duration,
	m *metrics.Metrics,
) *TrackerService {
	if locks == nil {
		locks = lock.NewUserLock()
	}
	if lockTimeout <= 0 {
		lockTimeout = defaultLockTimeout
	}
	return &TrackerService{
		store:       st,
		ledger:      l,
		oracle:      src,
		locks:       locks,
		lockTimeout: lockTimeout,
		metrics:     m,
	}
}

// Strategies exposes the configured strategy table.
func (s *TrackerService) Strategies() ledger.StrategyTable {
	return s.ledger.Strategies()
}

// GetUser loads an account.
func (s *TrackerService) GetUser(ctx context.Context, userID string) (*model.User, error) {
	u, err := s.store.LoadUser(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	return u, nil
}

// mutate runs fn on a fresh snapshot under the account lock and saves the
// result when fn produced a new snapshot.
func (s *TrackerService) mutate(ctx context.Context, userID string, fn func(u *model.User) (*model.User, error)) (before, after *model.User, err error) {
	err = s.locks.WithLockContext(ctx, userID, s.lockTimeout, func() error {
		u, err := s.GetUser(ctx, userID)
		if err != nil {
			return err
		}
		next, err := fn(u)
		if err != nil {
			before, after = u, u
			return err
		}
		if next != u {
			if err := s.store.SaveUser(ctx, next); err != nil {
				return fmt.Errorf("failed to save user: %w", err)
			}
		}
		before, after = u, next
		return nil
	})
	return before, after, err
}

// PlaceBet stakes the user's strategy share on rec.
func (s *TrackerService) PlaceBet(ctx context.Context, userID string, rec model.Recommendation) (*model.User, *model.Bet, error) {
	var bet *model.Bet
	_, after, err := s.mutate(ctx, userID, func(u *model.User) (*model.User, error) {
		next, b, err := s.ledger.PlaceBet(u, rec)
		bet = b
		return next, err
	})
	if err != nil {
		switch {
		case errors.Is(err, ledger.ErrInsufficientFunds):
			s.metrics.BetRejected("insufficient_funds")
		case errors.Is(err, ledger.ErrUnknownStrategy):
			s.metrics.BetRejected("unknown_strategy")
		case errors.Is(err, ledger.ErrInvalidRecommendation):
			s.metrics.BetRejected("invalid_recommendation")
		}
		return after, nil, err
	}

	s.metrics.BetPlaced(string(after.Bankroll.Strategy))
	log.Info().
		Str("user_id", userID).
		Str("bet_id", bet.ID).
		Str("stake", bet.Stake.String()).
		Str("odd", bet.Odd.String()).
		Msg("Bet placed")
	return after, bet, nil
}

// ResolveBet settles a pending bet by hand. changed is false when the id is
// unknown or the bet was already settled.
func (s *TrackerService) ResolveBet(ctx context.Context, userID, betID string, result model.BetResult) (u *model.User, changed bool, err error) {
	if !result.IsFinal() {
		return nil, false, invalid("result", "%q is not WIN, LOSS or VOID", result)
	}
	before, after, err := s.mutate(ctx, userID, func(u *model.User) (*model.User, error) {
		return s.ledger.ResolveBet(u, betID, result), nil
	})
	if err != nil {
		return nil, false, err
	}
	changed = before != after
	if changed {
		s.metrics.BetResolved(string(result), "manual")
	}
	return after, changed, nil
}

// DeleteBet removes a bet, refunding it if still pending.
func (s *TrackerService) DeleteBet(ctx context.Context, userID, betID string) (*model.User, bool, error) {
	before, after, err := s.mutate(ctx, userID, func(u *model.User) (*model.User, error) {
		return s.ledger.DeleteBet(u, betID), nil
	})
	if err != nil {
		return nil, false, err
	}
	return after, before != after, nil
}

// UpdateBankroll overwrites one bankroll figure. Negative values become zero.
func (s *TrackerService) UpdateBankroll(ctx context.Context, userID string, field model.BankrollField, value decimal.Decimal) (*model.User, error) {
	if field != model.FieldInitial && field != model.FieldCurrent {
		return nil, invalid("field", "%q is not initial or current", field)
	}
	_, after, err := s.mutate(ctx, userID, func(u *model.User) (*model.User, error) {
		return s.ledger.UpdateBankroll(u, field, value), nil
	})
	return after, err
}

// UpdateStrategy switches the user's risk strategy.
func (s *TrackerService) UpdateStrategy(ctx context.Context, userID string, strategy model.RiskStrategy) (*model.User, error) {
	if !s.ledger.Strategies().Has(strategy) {
		return nil, invalid("strategy", "%q is not configured", strategy)
	}
	_, after, err := s.mutate(ctx, userID, func(u *model.User) (*model.User, error) {
		return s.ledger.UpdateStrategy(u, strategy), nil
	})
	return after, err
}

// ClearHistory drops every bet without refunds.
func (s *TrackerService) ClearHistory(ctx context.Context, userID string) (*model.User, error) {
	return s.clearHistory(ctx, userID, "")
}

// ClearHistoryAt is ClearHistory guarded by a HistoryVersion taken when the
// user was asked to confirm. It fails with ErrHistoryChanged if bets were
// added or removed since.
func (s *TrackerService) ClearHistoryAt(ctx context.Context, userID, version string) (*model.User, error) {
	if version == "" {
		return nil, ErrHistoryChanged
	}
	return s.clearHistory(ctx, userID, version)
}

func (s *TrackerService) clearHistory(ctx context.Context, userID, version string) (*model.User, error) {
	_, after, err := s.mutate(ctx, userID, func(u *model.User) (*model.User, error) {
		if version != "" && HistoryVersion(u.Bets) != version {
			return nil, ErrHistoryChanged
		}
		return s.ledger.ClearHistory(u), nil
	})
	if err != nil {
		return nil, err
	}
	log.Info().Str("user_id", userID).Msg("Bet history cleared")
	return after, nil
}

// HistoryVersion fingerprints the set of bets. Settling a bet keeps the
// version; placing or deleting one changes it.
func HistoryVersion(bets []model.Bet) string {
	h := fnv.New64a()
	for _, b := range bets {
		h.Write([]byte(b.ID))
		h.Write([]byte{0})
	}
	return strconv.Itoa(len(bets)) + "." + strconv.FormatUint(h.Sum64(), 36)
}

// Recommendations asks the oracle for suggestions sized to the user's
// current bankroll. An unavailable oracle yields an empty slice.
func (s *TrackerService) Recommendations(ctx context.Context, userID string) ([]model.Recommendation, error) {
	u, err := s.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.oracle.FetchRecommendations(ctx, u.Bankroll.Current), nil
}

// SyncResults audits the user's pending bets and applies the verdicts. The
// oracle is consulted without holding the lock; verdicts are applied to a
// fresh snapshot, so bets settled meanwhile are left alone. It returns the
// number of bets resolved.
func (s *TrackerService) SyncResults(ctx context.Context, userID string) (int, error) {
	u, err := s.GetUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	pending := ledger.PendingBets(u)
	if len(pending) == 0 {
		return 0, nil
	}

	results := s.oracle.AuditPendingBets(ctx, pending)
	if len(results) == 0 {
		return 0, nil
	}

	before, after, err := s.mutate(ctx, userID, func(u *model.User) (*model.User, error) {
		return s.ledger.SyncResolutions(u, results), nil
	})
	if err != nil {
		return 0, err
	}

	resolved := 0
	for _, b := range after.Bets {
		if b.Result == model.ResultPending {
			continue
		}
		if prev, ok := ledger.FindBet(before, b.ID); ok && prev.Result == model.ResultPending {
			resolved++
			s.metrics.BetResolved(string(b.Result), "oracle")
		}
	}
	if resolved > 0 {
		log.Info().Str("user_id", userID).Int("resolved", resolved).Msg("Synced bet results")
	}
	return resolved, nil
}

// SyncAll audits every account. Per-account failures are logged and
// counted; only a failure to list accounts or a cancelled context aborts.
func (s *TrackerService) SyncAll(ctx context.Context) (SyncReport, error) {
	s.metrics.SyncRun("all")

	var report SyncReport
	ids, err := s.store.ListUserIDs(ctx)
	if err != nil {
		return report, fmt.Errorf("failed to list users: %w", err)
	}

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		u, err := s.GetUser(ctx, id)
		if err != nil {
			report.Failed++
			log.Error().Err(err).Str("user_id", id).Msg("Sync skipped account")
			continue
		}
		if len(ledger.PendingBets(u)) == 0 {
			continue
		}

		report.Accounts++
		n, err := s.SyncResults(ctx, id)
		if err != nil {
			report.Failed++
			log.Error().Err(err).Str("user_id", id).Msg("Sync failed")
			continue
		}
		report.Resolved += n
	}

	log.Info().
		Int("accounts", report.Accounts).
		Int("resolved", report.Resolved).
		Int("failed", report.Failed).
		Msg("Sync run finished")
	return report, nil
}

// Summary returns the dashboard view for the user.
func (s *TrackerService) Summary(ctx context.Context, userID string) (*Dashboard, error) {
	u, err := s.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &Dashboard{
		User:    u,
		Summary: ledger.Summarize(u.Bets),
		Curve:   ledger.ProfitCurve(u.Bets),
	}, nil
}
