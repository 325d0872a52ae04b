// Package oracle talks to the external generative-search model that suggests
// bets and reports results of pending ones. The model is opaque: anything it
// returns is validated before it reaches the ledger, and any failure is
// reported to callers as "no data".
package oracle

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"bankroll-tracker/internal/model"
)

var (
	// ErrUnavailable covers transport failures, timeouts and upstream errors.
	ErrUnavailable = errors.New("oracle unavailable")
	// ErrMalformed is returned when a reply cannot be parsed.
	ErrMalformed = errors.New("oracle reply malformed")
)

// RecommendationSource is what the tracker depends on. Neither method
// returns an error; failures yield an empty slice.
type RecommendationSource interface {
	FetchRecommendations(ctx context.Context, bankroll decimal.Decimal) []model.Recommendation
	AuditPendingBets(ctx context.Context, bets []model.Bet) []model.AuditResult
}

// Client is a fallible oracle backend.
type Client interface {
	Recommend(ctx context.Context, bankroll decimal.Decimal) ([]model.Recommendation, error)
	Audit(ctx context.Context, bets []model.Bet) ([]model.AuditResult, error)
}
