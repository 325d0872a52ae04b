// Package ledger implements the bankroll and bet state machine.
//
// Every operation takes a user snapshot and returns a new one; the input is
// never modified. Routine outcomes such as an unknown bet id or a second
// resolution of the same bet are no-ops, not errors.
package ledger

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"bankroll-tracker/internal/model"
)

// Ledger errors.
var (
	ErrInsufficientFunds     = errors.New("insufficient funds")
	ErrUnknownStrategy       = errors.New("unknown risk strategy")
	ErrInvalidRecommendation = errors.New("invalid recommendation")
	ErrIDCollision           = errors.New("could not generate a unique bet id")
)

// maxIDAttempts bounds how often the id generator is retried on collision.
const maxIDAttempts = 8

// Ledger applies bankroll transitions using a configurable strategy table.
type Ledger struct {
	strategies StrategyTable
	now        func() time.Time
	newID      func() string
}

// Option customises a Ledger.
type Option func(*Ledger)

// WithClock overrides the time source used for bet timestamps.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// WithIDGenerator overrides the bet id generator.
func WithIDGenerator(gen func() string) Option {
	return func(l *Ledger) { l.newID = gen }
}

// New creates a Ledger. The table is copied.
func New(strategies StrategyTable, opts ...Option) (*Ledger, error) {
	if err := strategies.Validate(); err != nil {
		return nil, err
	}
	table := make(StrategyTable, len(strategies))
	for s, pct := range strategies {
		table[s] = pct
	}

	l := &Ledger{
		strategies: table,
		now:        time.Now,
		newID:      uuid.NewString,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Strategies returns the ledger's strategy table.
func (l *Ledger) Strategies() StrategyTable {
	return l.strategies
}

// PlaceBet stakes the strategy's share of the current bankroll on rec.
// On failure the original user is returned together with the error.
func (l *Ledger) PlaceBet(u *model.User, rec model.Recommendation) (*model.User, *model.Bet, error) {
	if strings.TrimSpace(rec.Event) == "" || !rec.Odd.IsPositive() {
		return u, nil, ErrInvalidRecommendation
	}

	stake, err := l.strategies.StakeFor(u.Bankroll.Current, u.Bankroll.Strategy)
	if err != nil {
		return u, nil, err
	}
	if !stake.IsPositive() || u.Bankroll.Current.LessThan(stake) {
		return u, nil, ErrInsufficientFunds
	}

	id, err := l.uniqueID(u.Bets)
	if err != nil {
		return u, nil, err
	}

	bet := model.Bet{
		ID:        id,
		Event:     rec.Event,
		Player:    rec.Player,
		Category:  rec.Category,
		Type:      rec.Type,
		Odd:       rec.Odd,
		Stake:     stake,
		Result:    model.ResultPending,
		Timestamp: l.now(),
	}

	next := u.Clone()
	next.Bets = append([]model.Bet{bet}, next.Bets...)
	next.Bankroll.Current = next.Bankroll.Current.Sub(stake)
	return next, &bet, nil
}

func (l *Ledger) uniqueID(bets []model.Bet) (string, error) {
	for i := 0; i < maxIDAttempts; i++ {
		id := l.newID()
		if id == "" {
			continue
		}
		if indexOf(bets, id) < 0 {
			return id, nil
		}
	}
	return "", fmt.Errorf("%w after %d attempts", ErrIDCollision, maxIDAttempts)
}

// ResolveBet settles a pending bet. Unknown ids, already settled bets and
// non-final results leave the user unchanged.
func (l *Ledger) ResolveBet(u *model.User, betID string, result model.BetResult) *model.User {
	if !result.IsFinal() {
		return u
	}
	idx := indexOf(u.Bets, betID)
	if idx < 0 || u.Bets[idx].Result != model.ResultPending {
		return u
	}

	next := u.Clone()
	bet := &next.Bets[idx]
	payout := Payout(bet.Stake, bet.Odd, result)
	profit := payout.Sub(bet.Stake)
	bet.Result = result
	bet.Profit = &profit
	next.Bankroll.Current = next.Bankroll.Current.Add(payout)
	return next
}

// Payout is the amount credited back to the bankroll when a bet settles.
func Payout(stake, odd decimal.Decimal, result model.BetResult) decimal.Decimal {
	switch result {
	case model.ResultWin:
		return stake.Mul(odd)
	case model.ResultVoid:
		return stake
	default:
		return decimal.Zero
	}
}

// DeleteBet removes a bet. A pending bet's stake is refunded; a settled bet's
// profit or loss stays in the bankroll.
func (l *Ledger) DeleteBet(u *model.User, betID string) *model.User {
	idx := indexOf(u.Bets, betID)
	if idx < 0 {
		return u
	}

	next := u.Clone()
	removed := next.Bets[idx]
	next.Bets = append(next.Bets[:idx], next.Bets[idx+1:]...)
	if removed.Result == model.ResultPending {
		next.Bankroll.Current = next.Bankroll.Current.Add(removed.Stake)
	}
	return next
}

// UpdateBankroll overwrites the initial or current figure, clamped at zero.
func (l *Ledger) UpdateBankroll(u *model.User, field model.BankrollField, value decimal.Decimal) *model.User {
	if value.IsNegative() {
		value = decimal.Zero
	}

	next := u.Clone()
	switch field {
	case model.FieldInitial:
		next.Bankroll.Initial = value
	case model.FieldCurrent:
		next.Bankroll.Current = value
	default:
		return u
	}
	return next
}

// UpdateStrategy replaces the risk strategy. Existing bets are unaffected.
func (l *Ledger) UpdateStrategy(u *model.User, s model.RiskStrategy) *model.User {
	next := u.Clone()
	next.Bankroll.Strategy = s
	return next
}

// ClearHistory drops every bet. Pending stakes are not refunded.
func (l *Ledger) ClearHistory(u *model.User) *model.User {
	next := u.Clone()
	next.Bets = []model.Bet{}
	return next
}

// SyncResolutions applies oracle verdicts in order, skipping PENDING ones.
func (l *Ledger) SyncResolutions(u *model.User, results []model.AuditResult) *model.User {
	next := u
	for _, r := range results {
		if r.Result == model.ResultPending {
			continue
		}
		next = l.ResolveBet(next, r.ID, r.Result)
	}
	return next
}

// PendingBets returns the user's unsettled bets in ledger order.
func PendingBets(u *model.User) []model.Bet {
	var pending []model.Bet
	for _, b := range u.Bets {
		if b.Result == model.ResultPending {
			pending = append(pending, b)
		}
	}
	return pending
}

// FindBet looks up a bet by id.
func FindBet(u *model.User, betID string) (model.Bet, bool) {
	idx := indexOf(u.Bets, betID)
	if idx < 0 {
		return model.Bet{}, false
	}
	return u.Bets[idx], true
}

func indexOf(bets []model.Bet, id string) int {
	for i := range bets {
		if bets[i].ID == id {
			return i
		}
	}
	return -1
}
