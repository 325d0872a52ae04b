package ledger

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"bankroll-tracker/internal/model"
)

var hundred = decimal.NewFromInt(100)

// Summary aggregates a bet history for the dashboard.
type Summary struct {
	Total       int
	Pending     int
	Closed      int
	Wins        int
	Losses      int
	Voids       int
	WinRate     decimal.Decimal // percent of closed bets won
	TotalProfit decimal.Decimal
	TotalStaked decimal.Decimal // closed bets only
	ROI         decimal.Decimal // percent
}

// Summarize computes win rate, profit and ROI over bets.
func Summarize(bets []model.Bet) Summary {
	s := Summary{Total: len(bets)}
	for _, b := range bets {
		if b.Profit != nil {
			s.TotalProfit = s.TotalProfit.Add(*b.Profit)
		}
		switch b.Result {
		case model.ResultPending:
			s.Pending++
			continue
		case model.ResultWin:
			s.Wins++
		case model.ResultLoss:
			s.Losses++
		case model.ResultVoid:
			s.Voids++
		}
		s.Closed++
		s.TotalStaked = s.TotalStaked.Add(b.Stake)
	}

	if s.Closed > 0 {
		s.WinRate = decimal.NewFromInt(int64(s.Wins)).Mul(hundred).Div(decimal.NewFromInt(int64(s.Closed)))
	}
	if s.TotalStaked.IsPositive() {
		s.ROI = s.TotalProfit.Mul(hundred).Div(s.TotalStaked)
	}
	return s
}

// CurvePoint is one step of the cumulative profit curve.
type CurvePoint struct {
	Time   time.Time // zero for the starting point
	Profit decimal.Decimal
}

// ProfitCurve returns cumulative profit over settled bets in time order,
// starting from a zero point. Bets with equal timestamps keep ledger order.
func ProfitCurve(bets []model.Bet) []CurvePoint {
	closed := make([]model.Bet, 0, len(bets))
	for _, b := range bets {
		if b.Result != model.ResultPending {
			closed = append(closed, b)
		}
	}
	sort.SliceStable(closed, func(i, j int) bool {
		return closed[i].Timestamp.Before(closed[j].Timestamp)
	})

	curve := make([]CurvePoint, 0, len(closed)+1)
	curve = append(curve, CurvePoint{Profit: decimal.Zero})
	acc := decimal.Zero
	for _, b := range closed {
		if b.Profit != nil {
			acc = acc.Add(*b.Profit)
		}
		curve = append(curve, CurvePoint{Time: b.Timestamp, Profit: acc})
	}
	return curve
}
